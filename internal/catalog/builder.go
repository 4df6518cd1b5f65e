package catalog

import (
	"fmt"
	"os"
	"strings"
)

// DefaultBlockSize is the preferred I/O size reported for inodes that do
// not set one explicitly.
const DefaultBlockSize = 4096

// Builder assembles a Catalog record by record and enforces its structural
// invariants at insertion time: ids are unique and nonzero, every entry
// hangs off an existing directory, names are unique within their parent,
// and file sizes match their content. A builder is single use; it must not
// be touched again after Build.
type Builder struct {
	inodes map[InodeID]*inode
	built  bool
}

// NewBuilder returns an empty builder. AddRoot must be called before any
// other entry is added.
func NewBuilder() *Builder {
	return &Builder{inodes: make(map[InodeID]*inode)}
}

// AddRoot creates the root directory under the reserved id. It must be
// called exactly once, before AddDirectory or AddFile.
func (b *Builder) AddRoot(attr Attributes) error {
	if b.built {
		return fmt.Errorf("catalog: builder already built")
	}
	if _, ok := b.inodes[RootID]; ok {
		return fmt.Errorf("catalog: root already added")
	}
	normalizeDirAttr(&attr)
	b.inodes[RootID] = &inode{
		id:     RootID,
		kind:   KindDirectory,
		attr:   attr,
		parent: RootID,
		byName: make(map[string]InodeID),
	}
	return nil
}

// AddDirectory creates an empty directory named name under parent.
func (b *Builder) AddDirectory(id, parent InodeID, name string, attr Attributes) error {
	normalizeDirAttr(&attr)
	ino, err := b.add(id, parent, name, KindDirectory, attr)
	if err != nil {
		return err
	}
	ino.byName = make(map[string]InodeID)
	return nil
}

// AddFile creates a file named name under parent holding content. When
// attr.Size is zero it is taken from the content length; a nonzero size
// that disagrees with the content is rejected.
func (b *Builder) AddFile(id, parent InodeID, name string, content []byte, attr Attributes) error {
	size := uint64(len(content))
	if attr.Size == 0 {
		attr.Size = size
	} else if attr.Size != size {
		return fmt.Errorf("catalog: file %q declares size %d but has %d bytes of content", name, attr.Size, size)
	}
	attr.Mode &^= os.ModeType
	if attr.Blocks == 0 {
		attr.Blocks = (attr.Size + 511) / 512
	}
	if attr.BlockSize == 0 {
		attr.BlockSize = DefaultBlockSize
	}
	if attr.Nlink == 0 {
		attr.Nlink = 1
	}
	ino, err := b.add(id, parent, name, KindRegularFile, attr)
	if err != nil {
		return err
	}
	ino.content = content
	return nil
}

// SetXattr attaches an extended attribute to an already added inode.
func (b *Builder) SetXattr(id InodeID, name string, value []byte) error {
	if b.built {
		return fmt.Errorf("catalog: builder already built")
	}
	ino, ok := b.inodes[id]
	if !ok {
		return fmt.Errorf("catalog: inode %d not present", id)
	}
	if name == "" {
		return fmt.Errorf("catalog: empty extended attribute name on inode %d", id)
	}
	if ino.xattrs == nil {
		ino.xattrs = make(map[string][]byte)
	}
	ino.xattrs[name] = append([]byte(nil), value...)
	return nil
}

func (b *Builder) add(id, parent InodeID, name string, kind Kind, attr Attributes) (*inode, error) {
	if b.built {
		return nil, fmt.Errorf("catalog: builder already built")
	}
	if id == 0 {
		return nil, fmt.Errorf("catalog: inode id 0 is not usable")
	}
	if id == RootID {
		return nil, fmt.Errorf("catalog: inode id %d is reserved for the root", RootID)
	}
	if _, ok := b.inodes[id]; ok {
		return nil, fmt.Errorf("catalog: inode id %d already in use", id)
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	dir, ok := b.inodes[parent]
	if !ok {
		return nil, fmt.Errorf("catalog: parent inode %d not present", parent)
	}
	if dir.kind != KindDirectory {
		return nil, fmt.Errorf("catalog: parent inode %d is not a directory", parent)
	}
	if _, ok := dir.byName[name]; ok {
		return nil, fmt.Errorf("catalog: name %q already present in directory %d", name, parent)
	}

	ino := &inode{id: id, kind: kind, attr: attr, parent: parent}
	b.inodes[id] = ino
	dir.byName[name] = id
	dir.entries = append(dir.entries, DirEntry{ID: id, Kind: kind, Name: name})
	return ino, nil
}

// Build finalizes the catalog: directory listings get their "." and ".."
// entries, link counts are filled in, and totals are computed. The builder
// is unusable afterwards.
func (b *Builder) Build() (*Catalog, error) {
	if b.built {
		return nil, fmt.Errorf("catalog: builder already built")
	}
	root, ok := b.inodes[RootID]
	if !ok || root.kind != KindDirectory {
		return nil, fmt.Errorf("catalog: no root directory")
	}
	b.built = true

	stats := Stats{Inodes: len(b.inodes)}
	for _, ino := range b.inodes {
		switch ino.kind {
		case KindDirectory:
			stats.Directories++
			if ino.attr.Nlink == 0 {
				ino.attr.Nlink = 2 + countSubdirs(ino)
			}
			if ino.attr.BlockSize == 0 {
				ino.attr.BlockSize = DefaultBlockSize
			}
			listing := make([]DirEntry, 0, len(ino.entries)+2)
			listing = append(listing,
				DirEntry{ID: ino.id, Kind: KindDirectory, Name: "."},
				DirEntry{ID: ino.parent, Kind: KindDirectory, Name: ".."},
			)
			ino.entries = append(listing, ino.entries...)
		case KindRegularFile:
			stats.Files++
			stats.ContentBytes += ino.attr.Size
		}
	}
	return &Catalog{inodes: b.inodes, stats: stats}, nil
}

func countSubdirs(dir *inode) uint32 {
	var n uint32
	for _, e := range dir.entries {
		if e.Kind == KindDirectory {
			n++
		}
	}
	return n
}

func normalizeDirAttr(attr *Attributes) {
	attr.Mode = (attr.Mode &^ os.ModeType) | os.ModeDir
	attr.Size = 0
	attr.Blocks = 0
}

func validateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("catalog: empty entry name")
	case name == "." || name == "..":
		return fmt.Errorf("catalog: entry name %q is reserved", name)
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("catalog: entry name %q contains a separator or NUL", name)
	}
	return nil
}
