package fs

import (
	"context"

	"stillfs/internal/catalog"
	"stillfs/internal/logging"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	dirLogger = logging.GetLogger().WithPrefix("dir")
)

// Dir represents a directory inode. It carries no state beyond the inode
// id; every request is answered from the current catalog snapshot.
type Dir struct {
	fs  *StillFS
	ino catalog.InodeID
}

// Attr implements the Node interface, returning directory attributes.
func (d *Dir) Attr(_ context.Context, a *fuse.Attr) error {
	dirLogger.Trace("Getting attributes for directory inode %d", d.ino)

	reply, err := d.fs.handler.GetAttributes(d.ino)
	if err != nil {
		dirLogger.Warn("Directory inode %d has no catalog record", d.ino)
		return ToFuseError(err)
	}
	fillAttr(a, d.ino, reply)
	return nil
}

// Lookup implements the NodeStringLookuper interface, finding a child node.
func (d *Dir) Lookup(_ context.Context, name string) (fusefs.Node, error) {
	dirLogger.Debug("Looking up %q in directory inode %d", name, d.ino)

	entry, err := d.fs.handler.Lookup(d.ino, name)
	if err != nil {
		dirLogger.Debug("Name not found: %q", name)
		return nil, ToFuseError(err)
	}

	dirLogger.Debug("Found %q as inode %d", name, entry.ID)
	return d.fs.node(entry.ID, entry.Attr.Mode), nil
}

// direntCollector buffers listing entries as FUSE dirents. It never
// reports fullness: the bazil layer takes whole listings and pages them
// out to the kernel itself.
type direntCollector struct {
	entries []fuse.Dirent
}

func (c *direntCollector) Add(e DirEntry) bool {
	c.entries = append(c.entries, fuse.Dirent{
		Inode: uint64(e.ID),
		Type:  direntType(e.Kind),
		Name:  e.Name,
	})
	return true
}

// ReadDirAll implements the HandleReadDirAller interface, listing
// directory contents. The catalog listing already starts with the "."
// and ".." entries.
func (d *Dir) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	dirLogger.Debug("Reading contents of directory inode %d", d.ino)

	collector := &direntCollector{}
	if err := d.fs.handler.ReadDirectory(d.ino, 0, collector); err != nil {
		dirLogger.Warn("Failed to read directory inode %d: %v", d.ino, err)
		return nil, ToFuseError(err)
	}

	dirLogger.Debug("Directory inode %d contains %d entries", d.ino, len(collector.entries))
	return collector.entries, nil
}
