package fs

import (
	"context"
	"fmt"
	"os"
	"time"

	"stillfs/internal/catalog"
	"stillfs/internal/logging"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
	"github.com/cenkalti/backoff/v4"
)

var (
	fsLogger = logging.GetLogger().WithPrefix("fs")
)

// statfsBlockSize is the block unit used when reporting filesystem totals.
const statfsBlockSize = 4096

// StillFS serves a catalog as a read-only filesystem. It owns the FUSE
// connection and the serve loop; answering the individual kernel requests
// is the Handler's job.
type StillFS struct {
	handler *Handler   // Answers attribute, lookup, listing and read requests
	conn    *fuse.Conn // FUSE connection, nil until mounted
	done    chan struct{}
}

// NewStillFS creates a filesystem instance around the given handler.
func NewStillFS(handler *Handler) *StillFS {
	fsLogger.Debug("Creating read-only filesystem instance")
	return &StillFS{handler: handler}
}

// Handler returns the operation handler the filesystem serves from.
func (s *StillFS) Handler() *Handler {
	return s.handler
}

// Root implements the fusefs.FS interface, returning the root directory node.
func (s *StillFS) Root() (fusefs.Node, error) {
	fsLogger.Trace("Getting root directory node")
	return &Dir{fs: s, ino: catalog.RootID}, nil
}

// Statfs implements the fusefs.FSStatfser interface, reporting catalog
// totals. Free counts stay at zero: nothing can be created here.
func (s *StillFS) Statfs(_ context.Context, _ *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	fsLogger.Trace("Getting filesystem statistics")
	stats := s.handler.Catalog().Stats()
	resp.Bsize = statfsBlockSize
	resp.Frsize = statfsBlockSize
	resp.Blocks = (stats.ContentBytes + statfsBlockSize - 1) / statfsBlockSize
	resp.Files = uint64(stats.Inodes)
	resp.Namelen = 255
	return nil
}

func waitForMount(mountPoint string) error {
	for i := 0; i < 30; i++ {
		if mounted(mountPoint) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("mount point not available after 3 seconds")
}

// Mount mounts the filesystem at mountPoint and starts serving in the
// background. Extra options are appended to the read-only defaults; pass
// fuse.AllowOther to open the mount to other users.
func (s *StillFS) Mount(mountPoint string, extra ...fuse.MountOption) error {
	fsLogger.Info("Mounting read-only filesystem")
	fsLogger.Debug("Mount point: %s", mountPoint)

	mountOpts := []fuse.MountOption{
		fuse.FSName("stillfs"),
		fuse.Subtype("stillfs"),
		fuse.ReadOnly(),
		fuse.DefaultPermissions(),
		fuse.AsyncRead(),
	}
	mountOpts = append(mountOpts, extra...)

	fsLogger.Debug("Mounting with options: %+v", mountOpts)

	c, err := fuse.Mount(mountPoint, mountOpts...)
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}
	s.conn = c
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		if err := fusefs.Serve(c, s); err != nil {
			fsLogger.Error("FUSE server error: %v", err)
		}
	}()

	// Wait for mount to be ready
	if err := waitForMount(mountPoint); err != nil {
		c.Close()
		fsLogger.Error("Mount point not ready: %v", err)
		return fmt.Errorf("mount point failed to initialize: %w", err)
	}

	fsLogger.Info("Filesystem mounted successfully")
	return nil
}

// Wait blocks until the serve loop exits, normally after Unmount.
func (s *StillFS) Wait() {
	if s.done != nil {
		<-s.done
	}
}

// Unmount cleanly unmounts the filesystem. Busy mounts are retried
// briefly: the kernel keeps a mount busy for a moment after the last
// open file on it closes.
func (s *StillFS) Unmount(mountPoint string) error {
	fsLogger.Info("Unmounting filesystem from: %s", mountPoint)
	if s.conn == nil {
		return nil
	}

	attempt := func() error {
		err := fuse.Unmount(mountPoint)
		if err == nil {
			return nil
		}
		if !IsTemporary(err) {
			return backoff.Permanent(err)
		}
		fsLogger.Debug("Mount still busy, retrying: %v", err)
		return err
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(300*time.Millisecond), 10)
	if err := backoff.Retry(attempt, policy); err != nil {
		fsLogger.Error("Unmount failed: %v", err)
		return err
	}

	fsLogger.Info("Unmount completed successfully")
	return nil
}

// Close releases the FUSE connection.
func (s *StillFS) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// node returns the fs node serving ino, picked by the inode's type bits.
func (s *StillFS) node(ino catalog.InodeID, mode os.FileMode) fusefs.Node {
	if mode.IsDir() {
		return &Dir{fs: s, ino: ino}
	}
	return &File{fs: s, ino: ino}
}
