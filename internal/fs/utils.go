package fs

import (
	"stillfs/internal/catalog"

	"bazil.org/fuse"
)

// fillAttr copies a catalog attribute record into a FUSE attribute reply,
// including the cache lifetime the kernel should honor.
func fillAttr(a *fuse.Attr, ino catalog.InodeID, reply AttrReply) {
	a.Valid = reply.Valid
	a.Inode = uint64(ino)
	a.Size = reply.Attr.Size
	a.Blocks = reply.Attr.Blocks
	a.Atime = reply.Attr.Atime
	a.Mtime = reply.Attr.Mtime
	a.Ctime = reply.Attr.Ctime
	a.Crtime = reply.Attr.Crtime
	a.Mode = reply.Attr.Mode
	a.Nlink = reply.Attr.Nlink
	a.Uid = reply.Attr.Uid
	a.Gid = reply.Attr.Gid
	a.Rdev = reply.Attr.Rdev
	a.Flags = reply.Attr.Flags
	a.BlockSize = reply.Attr.BlockSize
}

// direntType maps catalog kinds onto FUSE dirent types.
func direntType(kind catalog.Kind) fuse.DirentType {
	switch kind {
	case catalog.KindDirectory:
		return fuse.DT_Dir
	case catalog.KindRegularFile:
		return fuse.DT_File
	default:
		return fuse.DT_Unknown
	}
}
