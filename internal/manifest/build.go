package manifest

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"stillfs/internal/catalog"

	"github.com/benbjohnson/clock"
)

// Permissions applied when neither the entry nor the manifest defaults
// set a mode.
const (
	defaultDirPerm  = os.FileMode(0o755)
	defaultFilePerm = os.FileMode(0o644)
)

// BuildOptions adjust catalog compilation.
type BuildOptions struct {
	// Clock supplies timestamps for entries that do not set their own.
	// Nil means the wall clock.
	Clock clock.Clock
}

// Build compiles a manifest into an immutable catalog. Inode ids are
// assigned depth first in manifest order starting right after the root,
// so an unchanged manifest always compiles to the same ids. baseDir
// anchors relative content source paths, normally the manifest's own
// directory.
func Build(m *Manifest, baseDir string, opts BuildOptions) (*catalog.Catalog, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	uid, gid := defaultOwner(m.Defaults)
	logger.Debug("Compiling manifest with default uid=%d gid=%d", uid, gid)

	c := &compiler{
		b:       catalog.NewBuilder(),
		next:    catalog.RootID + 1,
		defs:    m.Defaults,
		uid:     uid,
		gid:     gid,
		now:     clk.Now(),
		baseDir: baseDir,
	}

	if err := c.b.AddRoot(c.attrFor(m.Root, defaultDirPerm)); err != nil {
		return nil, err
	}
	for _, child := range m.Root.Entries {
		if err := c.addEntry(catalog.RootID, joinPath("/", child.Name), child); err != nil {
			return nil, err
		}
	}
	for name, val := range m.Root.Xattrs {
		if err := c.b.SetXattr(catalog.RootID, name, []byte(val)); err != nil {
			return nil, err
		}
	}

	cat, err := c.b.Build()
	if err != nil {
		return nil, err
	}

	stats := cat.Stats()
	logger.Info("Catalog compiled: %d directories, %d files, %d bytes of content",
		stats.Directories, stats.Files, stats.ContentBytes)
	return cat, nil
}

// Compile loads the manifest at path and builds its catalog in one step.
// Relative content sources resolve against the manifest's directory.
func Compile(path string, opts BuildOptions) (*catalog.Catalog, error) {
	m, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Build(m, filepath.Dir(path), opts)
}

// compiler walks the manifest tree, handing ids out in encounter order.
type compiler struct {
	b       *catalog.Builder
	next    catalog.InodeID
	defs    Defaults
	uid     uint32
	gid     uint32
	now     time.Time
	baseDir string
}

func (c *compiler) addEntry(parent catalog.InodeID, path string, e *Entry) error {
	id := c.next
	c.next++

	switch e.Kind {
	case KindDir:
		logger.Trace("Adding directory %s as inode %d", path, id)
		if err := c.b.AddDirectory(id, parent, e.Name, c.attrFor(e, defaultDirPerm)); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for _, child := range e.Entries {
			if err := c.addEntry(id, joinPath(path, child.Name), child); err != nil {
				return err
			}
		}
	case KindFile:
		content, err := c.contentFor(e)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		logger.Trace("Adding file %s as inode %d (%d bytes)", path, id, len(content))
		if err := c.b.AddFile(id, parent, e.Name, content, c.attrFor(e, defaultFilePerm)); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	for name, val := range e.Xattrs {
		if err := c.b.SetXattr(id, name, []byte(val)); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

// contentFor resolves an entry's single content source. A file with no
// source at all is empty, which is valid.
func (c *compiler) contentFor(e *Entry) ([]byte, error) {
	switch {
	case e.Content != "":
		return []byte(e.Content), nil
	case e.ContentBase64 != "":
		data, err := base64.StdEncoding.DecodeString(e.ContentBase64)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 content: %w", err)
		}
		return data, nil
	case e.Source != "":
		p := e.Source
		if !filepath.IsAbs(p) {
			p = filepath.Join(c.baseDir, p)
		}
		logger.Trace("Reading content source: %s", p)
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read content source: %w", err)
		}
		return data, nil
	}
	return nil, nil
}

func (c *compiler) attrFor(e *Entry, fallbackPerm os.FileMode) catalog.Attributes {
	mode := fallbackPerm
	if e.Kind == KindDir && c.defs.DirMode != nil {
		mode = os.FileMode(*c.defs.DirMode)
	}
	if e.Kind == KindFile && c.defs.FileMode != nil {
		mode = os.FileMode(*c.defs.FileMode)
	}
	if e.Mode != nil {
		mode = os.FileMode(*e.Mode)
	}

	uid := c.uid
	if e.Uid != nil {
		uid = *e.Uid
	}
	gid := c.gid
	if e.Gid != nil {
		gid = *e.Gid
	}

	ts := c.now
	if e.Mtime != nil {
		ts = *e.Mtime
	}

	return catalog.Attributes{
		Mode:   mode,
		Uid:    uid,
		Gid:    gid,
		Atime:  ts,
		Mtime:  ts,
		Ctime:  ts,
		Crtime: ts,
	}
}

// defaultOwner resolves the uid and gid applied to entries that set
// none: manifest defaults win, then PUID and PGID from the environment,
// then the credentials of the current process.
func defaultOwner(defs Defaults) (uint32, uint32) {
	uid := safeIntToUint32(os.Getuid())
	gid := safeIntToUint32(os.Getgid())

	if puidStr := os.Getenv("PUID"); puidStr != "" {
		if puid, err := strconv.ParseUint(puidStr, 10, 32); err == nil {
			uid = uint32(puid)
			logger.Debug("Using PUID from environment: %d", uid)
		}
	}
	if pgidStr := os.Getenv("PGID"); pgidStr != "" {
		if pgid, err := strconv.ParseUint(pgidStr, 10, 32); err == nil {
			gid = uint32(pgid)
			logger.Debug("Using PGID from environment: %d", gid)
		}
	}

	if defs.Uid != nil {
		uid = *defs.Uid
	}
	if defs.Gid != nil {
		gid = *defs.Gid
	}
	return uid, gid
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	return uint32(n)
}
