// Package catalog holds the in-memory inode table served over FUSE:
// one metadata record per inode, ordered directory listings, and the
// full content of every regular file.
//
// A Catalog is immutable once built. Construction goes through a Builder,
// which enforces the structural rules (single root, every child under an
// existing directory, unique names per directory, content length matching
// the recorded size) so that query paths never have to re-check them.
package catalog

import (
	"os"
	"time"
)

// InodeID identifies one filesystem object for the lifetime of a mount.
// IDs are never reused within a catalog.
type InodeID uint64

// RootID is the inode id of the filesystem root. The kernel addresses
// the root as 1 without looking it up first, so the catalog reserves it.
const RootID InodeID = 1

// Kind distinguishes the object types a catalog can hold.
type Kind int

const (
	// KindDirectory is an inode with an ordered list of named children.
	KindDirectory Kind = iota
	// KindRegularFile is an inode with byte content.
	KindRegularFile
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindRegularFile:
		return "file"
	default:
		return "unknown"
	}
}

// Attributes is the full metadata record for one inode. The field set
// mirrors what a stat reply carries.
type Attributes struct {
	Size      uint64      // content length in bytes
	Blocks    uint64      // allocated size in 512-byte units
	Atime     time.Time   // time of last access
	Mtime     time.Time   // time of last modification
	Ctime     time.Time   // time of last inode change
	Crtime    time.Time   // time of creation
	Mode      os.FileMode // type and permission bits
	Nlink     uint32      // hard link count
	Uid       uint32      // owning user id
	Gid       uint32      // owning group id
	Rdev      uint32      // device numbers, always zero here
	Flags     uint32      // chflags(2) flags, only meaningful on darwin
	BlockSize uint32      // preferred I/O size in bytes
}

// DirEntry is one name in a directory listing.
type DirEntry struct {
	ID   InodeID
	Kind Kind
	Name string
}
