// Package manifest loads the JSON document describing the tree served by
// the filesystem: every directory, file, attribute, and piece of content.
// A manifest is read and validated as a whole, then compiled into an
// immutable catalog by Build.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"stillfs/internal/logging"

	"github.com/hashicorp/go-multierror"
)

var (
	logger = logging.GetLogger().WithPrefix("manifest")
)

// FormatVersion is the manifest format this build understands.
const FormatVersion = 1

// Entry kinds as written in manifests.
const (
	KindDir  = "dir"
	KindFile = "file"
)

// FileMode is a permission field that marshals as an octal string, the
// way modes are written everywhere else.
type FileMode os.FileMode

func (m FileMode) String() string {
	return fmt.Sprintf("%04o", uint32(m))
}

// MarshalJSON renders the mode in octal notation.
func (m FileMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON parses octal notation such as "0644".
func (m *FileMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("mode must be an octal string: %w", err)
	}
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return fmt.Errorf("invalid mode %q: %w", s, err)
	}
	if v > 0o7777 {
		return fmt.Errorf("mode %q out of range", s)
	}
	*m = FileMode(v)
	return nil
}

// Manifest is the on-disk description of a filesystem tree.
type Manifest struct {
	// Version for forward compatibility
	Version int `json:"version"`

	// Defaults applied to entries that leave the matching field unset
	Defaults Defaults `json:"defaults,omitempty"`

	// Root is the tree itself; it must be an unnamed directory
	Root *Entry `json:"root"`
}

// Defaults are fallback attribute values for the whole manifest.
type Defaults struct {
	Uid      *uint32   `json:"uid,omitempty"`
	Gid      *uint32   `json:"gid,omitempty"`
	FileMode *FileMode `json:"file_mode,omitempty"`
	DirMode  *FileMode `json:"dir_mode,omitempty"`
}

// Entry is one node of the manifest tree. Directories carry Entries;
// files carry at most one content source (inline text, inline base64,
// or a path to read at build time). A file with no source is empty.
type Entry struct {
	Name          string            `json:"name,omitempty"`
	Kind          string            `json:"kind"`
	Mode          *FileMode         `json:"mode,omitempty"`
	Uid           *uint32           `json:"uid,omitempty"`
	Gid           *uint32           `json:"gid,omitempty"`
	Mtime         *time.Time        `json:"mtime,omitempty"`
	Content       string            `json:"content,omitempty"`
	ContentBase64 string            `json:"content_base64,omitempty"`
	Source        string            `json:"source,omitempty"`
	Xattrs        map[string]string `json:"xattrs,omitempty"`
	Entries       []*Entry          `json:"entries,omitempty"`
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	logger.Debug("Loading manifest from: %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("manifest file %s is empty", path)
	}

	logger.Debug("Parsing manifest (%d bytes)", len(data))
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	logger.Info("Manifest loaded successfully")
	return &m, nil
}

// Validate checks the structural rules before building: version, kinds,
// names, content sources, and duplicates. Problems are aggregated so a
// broken manifest reports everything wrong with it at once.
func (m *Manifest) Validate() error {
	var errs *multierror.Error

	if m.Version != FormatVersion {
		errs = multierror.Append(errs, fmt.Errorf(
			"unsupported manifest version %d (this build understands %d)", m.Version, FormatVersion))
	}
	if m.Root == nil {
		errs = multierror.Append(errs, errors.New("manifest has no root entry"))
		return errs.ErrorOrNil()
	}
	if m.Root.Name != "" {
		errs = multierror.Append(errs, fmt.Errorf("root entry must not carry a name, got %q", m.Root.Name))
	}
	if m.Root.Kind != KindDir {
		errs = multierror.Append(errs, fmt.Errorf("root entry must have kind %q, got %q", KindDir, m.Root.Kind))
	}

	errs = validateEntry(m.Root, "/", errs)
	return errs.ErrorOrNil()
}

func validateEntry(e *Entry, path string, errs *multierror.Error) *multierror.Error {
	switch e.Kind {
	case KindDir:
		if e.Content != "" || e.ContentBase64 != "" || e.Source != "" {
			errs = multierror.Append(errs, fmt.Errorf("%s: directories cannot carry content", path))
		}
		seen := make(map[string]bool)
		for _, child := range e.Entries {
			if err := validName(child.Name); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", path, err))
			} else if seen[child.Name] {
				errs = multierror.Append(errs, fmt.Errorf("%s: duplicate entry name %q", path, child.Name))
			}
			seen[child.Name] = true
			errs = validateEntry(child, joinPath(path, child.Name), errs)
		}
	case KindFile:
		if len(e.Entries) > 0 {
			errs = multierror.Append(errs, fmt.Errorf("%s: files cannot hold entries", path))
		}
		sources := 0
		if e.Content != "" {
			sources++
		}
		if e.ContentBase64 != "" {
			sources++
		}
		if e.Source != "" {
			sources++
		}
		if sources > 1 {
			errs = multierror.Append(errs, fmt.Errorf(
				"%s: content, content_base64 and source are mutually exclusive", path))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("%s: unknown kind %q", path, e.Kind))
	}

	for name := range e.Xattrs {
		if name == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s: empty extended attribute name", path))
		}
	}
	return errs
}

func validName(name string) error {
	switch {
	case name == "":
		return errors.New("entry has no name")
	case name == "." || name == "..":
		return fmt.Errorf("entry name %q is reserved", name)
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("entry name %q contains a separator or NUL", name)
	}
	return nil
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// Starter returns the manifest a fresh installation begins with: a root
// directory holding one classic greeting file.
func Starter() *Manifest {
	fileMode := FileMode(0o644)
	dirMode := FileMode(0o755)
	return &Manifest{
		Version: FormatVersion,
		Root: &Entry{
			Kind: KindDir,
			Mode: &dirMode,
			Entries: []*Entry{
				{
					Name:    "hello.txt",
					Kind:    KindFile,
					Mode:    &fileMode,
					Content: "Hello World!\n",
				},
			},
		},
	}
}

// WriteStarter writes the starter manifest to path, creating parent
// directories as needed and refusing to overwrite an existing file.
func WriteStarter(path string) error {
	logger.Debug("Writing starter manifest to: %s", path)

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("manifest %s already exists", path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check manifest path: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create manifest directory %s: %w", dir, err)
		}
	}

	data, err := json.MarshalIndent(Starter(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal starter manifest: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write starter manifest: %w", err)
	}

	logger.Info("Starter manifest written successfully")
	return nil
}
