package catalog

import (
	"errors"
	"sort"
)

var (
	// ErrNotFound indicates the inode id or name has no catalog record.
	ErrNotFound = errors.New("catalog: entry not found")

	// ErrNotADirectory indicates a listing was requested on a file inode.
	ErrNotADirectory = errors.New("catalog: not a directory")

	// ErrNotAFile indicates content was requested on a directory inode.
	ErrNotAFile = errors.New("catalog: not a file")

	// ErrNoXattr indicates the inode exists but the named extended
	// attribute is not set on it.
	ErrNoXattr = errors.New("catalog: no such extended attribute")
)

// inode is one catalog record. For directories, entries holds the full
// listing with "." and ".." at positions 0 and 1 followed by the children
// in insertion order, and byName indexes the children only.
type inode struct {
	id      InodeID
	kind    Kind
	attr    Attributes
	parent  InodeID
	entries []DirEntry
	byName  map[string]InodeID
	content []byte
	xattrs  map[string][]byte
}

// Stats summarizes what a catalog holds.
type Stats struct {
	Inodes       int
	Directories  int
	Files        int
	ContentBytes uint64
}

// Catalog is an immutable inode table. All methods are safe for concurrent
// use without locking: nothing mutates after Build returns.
type Catalog struct {
	inodes map[InodeID]*inode
	stats  Stats
}

// AttributesOf returns the metadata record for id.
func (c *Catalog) AttributesOf(id InodeID) (Attributes, error) {
	ino, ok := c.inodes[id]
	if !ok {
		return Attributes{}, ErrNotFound
	}
	return ino.attr, nil
}

// Resolve finds the child of parent with exactly the given name and
// returns its id and attributes. The match is case sensitive. Resolve
// reports ErrNotFound when parent is absent, when parent is not a
// directory, and when no child carries the name; "." and ".." are
// listing artifacts, not resolvable children.
func (c *Catalog) Resolve(parent InodeID, name string) (InodeID, Attributes, error) {
	dir, ok := c.inodes[parent]
	if !ok || dir.kind != KindDirectory {
		return 0, Attributes{}, ErrNotFound
	}
	id, ok := dir.byName[name]
	if !ok {
		return 0, Attributes{}, ErrNotFound
	}
	return id, c.inodes[id].attr, nil
}

// ChildrenOf returns the full listing of the directory id, starting with
// "." and ".." and followed by the children in the order they were added.
// The returned slice is shared and must not be modified.
func (c *Catalog) ChildrenOf(id InodeID) ([]DirEntry, error) {
	ino, ok := c.inodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	if ino.kind != KindDirectory {
		return nil, ErrNotADirectory
	}
	return ino.entries, nil
}

// ContentOf returns the content of the file id. The returned slice is
// shared and must not be modified.
func (c *Catalog) ContentOf(id InodeID) ([]byte, error) {
	ino, ok := c.inodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	if ino.kind != KindRegularFile {
		return nil, ErrNotAFile
	}
	return ino.content, nil
}

// XattrOf returns the value of the named extended attribute of id.
func (c *Catalog) XattrOf(id InodeID, name string) ([]byte, error) {
	ino, ok := c.inodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	val, ok := ino.xattrs[name]
	if !ok {
		return nil, ErrNoXattr
	}
	return val, nil
}

// XattrNamesOf returns the extended attribute names set on id, sorted.
func (c *Catalog) XattrNamesOf(id InodeID) ([]string, error) {
	ino, ok := c.inodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	names := make([]string, 0, len(ino.xattrs))
	for name := range ino.xattrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Stats returns totals for the whole catalog.
func (c *Catalog) Stats() Stats {
	return c.stats
}
