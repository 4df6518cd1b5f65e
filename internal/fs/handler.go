package fs

import (
	"errors"
	"sync/atomic"
	"time"

	"stillfs/internal/catalog"
	"stillfs/internal/logging"
)

var handlerLogger = logging.GetLogger().WithPrefix("handler")

// DefaultAttrValid is the cache lifetime attached to attribute and entry
// replies when none is configured. One second keeps kernel stat traffic
// low while bounding how long a swapped catalog stays invisible.
const DefaultAttrValid = time.Second

// AttrReply is the answer to GetAttributes: the full attribute record
// plus how long the caller may cache it.
type AttrReply struct {
	Attr  catalog.Attributes
	Valid time.Duration
}

// EntryReply is the answer to Lookup. Generation is always zero because
// catalog inode ids are never reused within a mount.
type EntryReply struct {
	ID         catalog.InodeID
	Attr       catalog.Attributes
	Generation uint64
	Valid      time.Duration
}

// DirEntry is one listing entry as emitted by ReadDirectory. Offset is
// the position enumeration resumes at after this entry: passing it back
// as the start offset of a later call continues exactly behind it, even
// across separate calls.
type DirEntry struct {
	ID     catalog.InodeID
	Kind   catalog.Kind
	Name   string
	Offset uint64
}

// DirSink receives directory entries during ReadDirectory. Add reports
// whether the entry was accepted; false means the reply buffer is full
// and enumeration stops without error.
type DirSink interface {
	Add(DirEntry) bool
}

// Handler answers filesystem queries against a catalog snapshot. Every
// operation reads the pointer once and works on that snapshot for its
// whole duration, so a concurrent SetCatalog never produces a torn
// result. All methods are safe for concurrent use.
type Handler struct {
	cat   atomic.Pointer[catalog.Catalog]
	valid atomic.Int64
}

// NewHandler creates a handler serving the given catalog.
func NewHandler(cat *catalog.Catalog) *Handler {
	h := &Handler{}
	h.cat.Store(cat)
	h.valid.Store(int64(DefaultAttrValid))
	return h
}

// SetAttrValid overrides the cache lifetime attached to replies.
func (h *Handler) SetAttrValid(d time.Duration) {
	h.valid.Store(int64(d))
}

// AttrValid returns the cache lifetime currently attached to replies.
func (h *Handler) AttrValid() time.Duration {
	return time.Duration(h.valid.Load())
}

// Catalog returns the snapshot currently being served.
func (h *Handler) Catalog() *catalog.Catalog {
	return h.cat.Load()
}

// SetCatalog atomically replaces the served snapshot. Operations already
// in flight finish against the snapshot they started with.
func (h *Handler) SetCatalog(cat *catalog.Catalog) {
	h.cat.Store(cat)
	handlerLogger.Debug("Catalog snapshot replaced")
}

// GetAttributes returns the attribute record of ino together with the
// cache lifetime.
func (h *Handler) GetAttributes(ino catalog.InodeID) (AttrReply, error) {
	attr, err := h.cat.Load().AttributesOf(ino)
	if err != nil {
		handlerLogger.Debug("Attributes of unknown inode %d requested", ino)
		return AttrReply{}, NewError(OpGetattr, ino, "", ErrNoSuchEntry)
	}
	return AttrReply{Attr: attr, Valid: h.AttrValid()}, nil
}

// Lookup resolves name among the children of the directory parent. The
// match is exact and case sensitive. Missing names, unknown parents, and
// parents that are not directories all report ErrNoSuchEntry, so probing
// cannot tell the cases apart.
func (h *Handler) Lookup(parent catalog.InodeID, name string) (EntryReply, error) {
	id, attr, err := h.cat.Load().Resolve(parent, name)
	if err != nil {
		handlerLogger.Trace("Lookup of %q under inode %d found nothing", name, parent)
		return EntryReply{}, NewError(OpLookup, parent, name, ErrNoSuchEntry)
	}
	handlerLogger.Trace("Lookup of %q under inode %d resolved to %d", name, parent, id)
	return EntryReply{ID: id, Attr: attr, Valid: h.AttrValid()}, nil
}

// ReadDirectory streams the listing of the directory ino into sink,
// starting at the zero-based offset and stopping early when the sink
// reports it is full. An offset at or past the end of the listing emits
// nothing and is not an error, which is how enumeration terminates.
func (h *Handler) ReadDirectory(ino catalog.InodeID, offset uint64, sink DirSink) error {
	entries, err := h.cat.Load().ChildrenOf(ino)
	if err != nil {
		if errors.Is(err, catalog.ErrNotADirectory) {
			handlerLogger.Debug("Directory read on non-directory inode %d", ino)
			return NewError(OpReadDir, ino, "", ErrNotADirectory)
		}
		return NewError(OpReadDir, ino, "", ErrNoSuchEntry)
	}
	if offset >= uint64(len(entries)) {
		return nil
	}
	for i := int(offset); i < len(entries); i++ {
		e := entries[i]
		out := DirEntry{ID: e.ID, Kind: e.Kind, Name: e.Name, Offset: uint64(i) + 1}
		if !sink.Add(out) {
			handlerLogger.Trace("Directory %d listing paused at offset %d", ino, out.Offset)
			return nil
		}
	}
	return nil
}

// ReadFile returns the content of the file ino from offset, capped at
// maxLen bytes and clamped to the content length. Reads starting at or
// past the end return an empty result, mirroring ordinary end-of-file
// behavior. The returned slice aliases catalog content and must not be
// modified.
func (h *Handler) ReadFile(ino catalog.InodeID, offset uint64, maxLen int) ([]byte, error) {
	content, err := h.cat.Load().ContentOf(ino)
	if err != nil {
		if errors.Is(err, catalog.ErrNotAFile) {
			handlerLogger.Debug("Content read on directory inode %d", ino)
			return nil, NewError(OpRead, ino, "", ErrIsADirectory)
		}
		return nil, NewError(OpRead, ino, "", ErrNoSuchEntry)
	}
	size := uint64(len(content))
	if offset >= size || maxLen <= 0 {
		return nil, nil
	}
	end := offset + uint64(maxLen)
	if end > size {
		end = size
	}
	return content[offset:end], nil
}

// GetXattr returns the value of the named extended attribute of ino.
func (h *Handler) GetXattr(ino catalog.InodeID, name string) ([]byte, error) {
	val, err := h.cat.Load().XattrOf(ino, name)
	if err != nil {
		if errors.Is(err, catalog.ErrNoXattr) {
			return nil, NewError(OpGetxattr, ino, name, ErrNoXattr)
		}
		return nil, NewError(OpGetxattr, ino, name, ErrNoSuchEntry)
	}
	return val, nil
}

// ListXattrs returns the extended attribute names set on ino, sorted.
func (h *Handler) ListXattrs(ino catalog.InodeID) ([]string, error) {
	names, err := h.cat.Load().XattrNamesOf(ino)
	if err != nil {
		return nil, NewError(OpListxattr, ino, "", ErrNoSuchEntry)
	}
	return names, nil
}
