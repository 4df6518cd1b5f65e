package manifest

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch invokes onChange whenever the manifest at path is rewritten,
// debounced so one editor save triggers one reload. The parent directory
// is watched rather than the file itself because most editors replace
// files by rename, which silently drops a watch on the file. The
// returned stop function releases the watcher.
func Watch(path string, debounce time.Duration, onChange func()) (func(), error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch manifest directory: %w", err)
	}
	logger.Info("Watching manifest for changes: %s", abs)

	done := make(chan struct{})
	go func() {
		var timer *time.Timer
		var fire <-chan time.Time

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filepath.Base(abs) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				logger.Debug("Manifest event: %s", event)

				// Restart the debounce window. A replaced timer may
				// already have fired, but its channel is no longer
				// selected on.
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(debounce)
				fire = timer.C

			case <-fire:
				timer = nil
				fire = nil
				logger.Info("Manifest changed, triggering reload")
				onChange()

			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("Watcher error: %v", watchErr)

			case <-done:
				return
			}
		}
	}()

	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			close(done)
			watcher.Close()
		})
	}
	return stop, nil
}
