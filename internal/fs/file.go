package fs

import (
	"context"
	"syscall"

	"stillfs/internal/catalog"
	"stillfs/internal/logging"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	fileLogger = logging.GetLogger().WithPrefix("file")
)

// File represents a regular file inode. Like Dir it holds only the inode
// id; content and attributes come from the current catalog snapshot.
type File struct {
	fs  *StillFS
	ino catalog.InodeID
}

// Attr implements the Node interface, returning the file's attributes.
func (f *File) Attr(_ context.Context, a *fuse.Attr) error {
	fileLogger.Trace("Getting attributes for file inode %d", f.ino)

	reply, err := f.fs.handler.GetAttributes(f.ino)
	if err != nil {
		fileLogger.Warn("File inode %d has no catalog record", f.ino)
		return ToFuseError(err)
	}
	fillAttr(a, f.ino, reply)

	fileLogger.Trace("File attributes: mode=%v, size=%d, mtime=%v",
		a.Mode, a.Size, a.Mtime)
	return nil
}

// Open implements the NodeOpener interface, handing out a read handle.
func (f *File) Open(_ context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	fileLogger.Debug("Opening file inode %d with flags %v", f.ino, req.Flags)

	// Enforce read-only access
	if !req.Flags.IsReadOnly() {
		fileLogger.Warn("Attempted write access to read-only file inode %d", f.ino)
		return nil, ToFuseError(NewError(OpOpen, f.ino, "", ErrReadOnly))
	}

	// Bypass the page cache so reads always see the current catalog,
	// not content cached before a reload.
	resp.Flags |= fuse.OpenDirectIO

	fileLogger.Debug("Successfully opened file inode %d", f.ino)
	return &FileHandle{fs: f.fs, ino: f.ino}, nil
}

// Getxattr implements the NodeGetxattrer interface, retrieving an extended attribute.
func (f *File) Getxattr(_ context.Context, req *fuse.GetxattrRequest, resp *fuse.GetxattrResponse) error {
	fileLogger.Debug("Getting xattr %q for file inode %d", req.Name, f.ino)

	value, err := f.fs.handler.GetXattr(f.ino, req.Name)
	if err != nil {
		fileLogger.Trace("Xattr %q not available on inode %d", req.Name, f.ino)
		return ToFuseError(err)
	}

	resp.Xattr = value
	fileLogger.Trace("Retrieved xattr %q: %d bytes", req.Name, len(value))
	return nil
}

// Listxattr implements the NodeListxattrer interface, listing all extended attributes.
func (f *File) Listxattr(_ context.Context, _ *fuse.ListxattrRequest, resp *fuse.ListxattrResponse) error {
	fileLogger.Debug("Listing xattrs for file inode %d", f.ino)

	names, err := f.fs.handler.ListXattrs(f.ino)
	if err != nil {
		return ToFuseError(err)
	}
	for _, name := range names {
		resp.Append(name)
	}

	fileLogger.Trace("Listed %d xattrs", len(names))
	return nil
}

// Setxattr implements the NodeSetxattrer interface. Attributes are fixed
// at catalog build time, so every store attempt is refused.
func (f *File) Setxattr(_ context.Context, req *fuse.SetxattrRequest) error {
	fileLogger.Warn("Rejecting setxattr %q on read-only inode %d", req.Name, f.ino)
	return syscall.EROFS
}

// Removexattr implements the NodeRemovexattrer interface, refusing like
// Setxattr does.
func (f *File) Removexattr(_ context.Context, req *fuse.RemovexattrRequest) error {
	fileLogger.Warn("Rejecting removexattr %q on read-only inode %d", req.Name, f.ino)
	return syscall.EROFS
}

// FileHandle represents an open file handle. Handles hold no descriptor
// or position state: each read is answered straight from the catalog.
type FileHandle struct {
	fs  *StillFS
	ino catalog.InodeID
}

// Read implements the HandleReader interface, reading data from the file.
func (fh *FileHandle) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	fileLogger.Trace("Reading %d bytes from inode %d at offset %d",
		req.Size, fh.ino, req.Offset)

	if req.Offset < 0 {
		fileLogger.Warn("Rejecting negative read offset %d on inode %d", req.Offset, fh.ino)
		return syscall.EINVAL
	}

	data, err := fh.fs.handler.ReadFile(fh.ino, uint64(req.Offset), req.Size)
	if err != nil {
		fileLogger.Error("Failed to read from inode %d: %v", fh.ino, err)
		return ToFuseError(err)
	}

	resp.Data = data
	fileLogger.Trace("Successfully read %d bytes", len(data))
	return nil
}

// Release implements the HandleReleaser interface. Nothing is held, so
// there is nothing to close.
func (fh *FileHandle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	fileLogger.Debug("Releasing handle on inode %d", fh.ino)
	return nil
}
