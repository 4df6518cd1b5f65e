package main

import (
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"stillfs/internal/fs"
	"stillfs/internal/logging"
	"stillfs/internal/manifest"

	"bazil.org/fuse"
	"github.com/dustin/go-humanize"
)

var (
	logger = logging.GetLogger()
)

func main() {
	// Parse command line flags
	mountPoint := flag.String("mount", "", "Mount point for the filesystem")
	manifestPath := flag.String("manifest", "", "Manifest file path (required)")
	initManifest := flag.Bool("init", false, "Write a starter manifest to the -manifest path and exit")
	attrTTL := flag.Duration("attr-ttl", fs.DefaultAttrValid, "How long the kernel may cache attributes")
	allowOther := flag.Bool("allow-other", false, "Allow other users to access the mount")
	watch := flag.Bool("watch", false, "Reload the catalog when the manifest file changes")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	flag.Parse()

	// Configure logging based on flags
	if *verbose {
		logger.SetLevel(logging.LevelDebug)
	}

	if *manifestPath == "" {
		logger.Error("Manifest file path is required")
		os.Exit(1)
	}

	if *initManifest {
		if err := manifest.WriteStarter(*manifestPath); err != nil {
			logger.Error("Failed to write starter manifest: %v", err)
			os.Exit(1)
		}
		logger.Info("Wrote starter manifest to %s", *manifestPath)
		return
	}

	logger.Info("Starting StillFS...")
	logger.Debug("Mount point: %s", *mountPoint)
	logger.Debug("Manifest file: %s", *manifestPath)
	logger.Debug("Attribute TTL: %s", *attrTTL)

	if *mountPoint == "" {
		logger.Error("Mount point is required")
		os.Exit(1)
	}

	cleanMount := filepath.Clean(*mountPoint)

	logger.Info("Compiling manifest...")
	cat, err := manifest.Compile(*manifestPath, manifest.BuildOptions{})
	if err != nil {
		logger.Error("Failed to compile manifest: %v", err)
		os.Exit(1)
	}
	stats := cat.Stats()
	logger.Info("Catalog ready: %d inodes (%d directories, %d files, %s of content)",
		stats.Inodes, stats.Directories, stats.Files, humanize.IBytes(stats.ContentBytes))

	logger.Info("Creating filesystem...")
	handler := fs.NewHandler(cat)
	handler.SetAttrValid(*attrTTL)
	sfs := fs.NewStillFS(handler)

	if *watch {
		reload := func() {
			newCat, err := manifest.Compile(*manifestPath, manifest.BuildOptions{})
			if err != nil {
				logger.Warn("Keeping previous catalog, reload failed: %v", err)
				return
			}
			handler.SetCatalog(newCat)
			ns := newCat.Stats()
			logger.Info("Catalog reloaded: %d inodes (%d directories, %d files, %s of content)",
				ns.Inodes, ns.Directories, ns.Files, humanize.IBytes(ns.ContentBytes))
		}
		stopWatch, err := manifest.Watch(*manifestPath, time.Second, reload)
		if err != nil {
			logger.Error("Failed to watch manifest: %v", err)
			os.Exit(1)
		}
		defer stopWatch()
		logger.Info("Watching %s for changes", *manifestPath)
	}

	logger.Debug("Setting up signal handlers...")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var opts []fuse.MountOption
	if *allowOther {
		opts = append(opts, fuse.AllowOther())
	}

	logger.Info("Mounting filesystem...")
	if err := sfs.Mount(cleanMount, opts...); err != nil {
		logger.Error("Mount failed: %v", err)
		os.Exit(1)
	}
	defer sfs.Close()

	logger.Info("Filesystem mounted and ready")

	// Wait for signal
	go func() {
		sig := <-sigChan
		logger.Info("Received signal %v", sig)
		if err := sfs.Unmount(cleanMount); err != nil {
			logger.Error("Unmount error: %v", err)
		}
	}()

	sfs.Wait()
	logger.Info("Clean shutdown complete")
}
