package catalog

import (
	"bytes"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"
)

func testAttr(mode os.FileMode) Attributes {
	ts := time.Date(2024, 5, 14, 9, 30, 0, 0, time.UTC)
	return Attributes{
		Mode:   mode,
		Uid:    1000,
		Gid:    1000,
		Atime:  ts,
		Mtime:  ts,
		Ctime:  ts,
		Crtime: ts,
	}
}

// buildTestCatalog assembles the tree shared by the query tests:
//
//	/            (1)
//	  hello.txt  (2)  "Hello World!\n"
//	  docs       (3)
//	    guide.md (4)  "# Guide\n"
//	  empty      (5)
func buildTestCatalog(t *testing.T) *Catalog {
	t.Helper()

	b := NewBuilder()
	if err := b.AddRoot(testAttr(0o755)); err != nil {
		t.Fatalf("Failed to add root: %v", err)
	}
	if err := b.AddFile(2, RootID, "hello.txt", []byte("Hello World!\n"), testAttr(0o644)); err != nil {
		t.Fatalf("Failed to add hello.txt: %v", err)
	}
	if err := b.AddDirectory(3, RootID, "docs", testAttr(0o755)); err != nil {
		t.Fatalf("Failed to add docs: %v", err)
	}
	if err := b.AddFile(4, 3, "guide.md", []byte("# Guide\n"), testAttr(0o644)); err != nil {
		t.Fatalf("Failed to add guide.md: %v", err)
	}
	if err := b.AddDirectory(5, RootID, "empty", testAttr(0o755)); err != nil {
		t.Fatalf("Failed to add empty: %v", err)
	}
	if err := b.SetXattr(2, "user.origin", []byte("greeting")); err != nil {
		t.Fatalf("Failed to set xattr: %v", err)
	}
	if err := b.SetXattr(2, "user.checksum", []byte("abc123")); err != nil {
		t.Fatalf("Failed to set xattr: %v", err)
	}

	cat, err := b.Build()
	if err != nil {
		t.Fatalf("Failed to build catalog: %v", err)
	}
	return cat
}

func TestBuilderValidation(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder) error
	}{
		{
			name: "duplicate inode id",
			build: func(b *Builder) error {
				if err := b.AddFile(2, RootID, "a.txt", nil, testAttr(0o644)); err != nil {
					return err
				}
				return b.AddFile(2, RootID, "b.txt", nil, testAttr(0o644))
			},
		},
		{
			name: "inode id zero",
			build: func(b *Builder) error {
				return b.AddFile(0, RootID, "a.txt", nil, testAttr(0o644))
			},
		},
		{
			name: "inode id reserved for root",
			build: func(b *Builder) error {
				return b.AddDirectory(RootID, RootID, "a", testAttr(0o755))
			},
		},
		{
			name: "missing parent",
			build: func(b *Builder) error {
				return b.AddFile(2, 99, "a.txt", nil, testAttr(0o644))
			},
		},
		{
			name: "file as parent",
			build: func(b *Builder) error {
				if err := b.AddFile(2, RootID, "a.txt", nil, testAttr(0o644)); err != nil {
					return err
				}
				return b.AddFile(3, 2, "b.txt", nil, testAttr(0o644))
			},
		},
		{
			name: "duplicate name in directory",
			build: func(b *Builder) error {
				if err := b.AddFile(2, RootID, "a.txt", nil, testAttr(0o644)); err != nil {
					return err
				}
				return b.AddDirectory(3, RootID, "a.txt", testAttr(0o755))
			},
		},
		{
			name: "empty name",
			build: func(b *Builder) error {
				return b.AddFile(2, RootID, "", nil, testAttr(0o644))
			},
		},
		{
			name: "dot name",
			build: func(b *Builder) error {
				return b.AddDirectory(2, RootID, ".", testAttr(0o755))
			},
		},
		{
			name: "dot dot name",
			build: func(b *Builder) error {
				return b.AddDirectory(2, RootID, "..", testAttr(0o755))
			},
		},
		{
			name: "separator in name",
			build: func(b *Builder) error {
				return b.AddFile(2, RootID, "a/b.txt", nil, testAttr(0o644))
			},
		},
		{
			name: "declared size disagrees with content",
			build: func(b *Builder) error {
				attr := testAttr(0o644)
				attr.Size = 5
				return b.AddFile(2, RootID, "a.txt", []byte("abc"), attr)
			},
		},
		{
			name: "xattr on missing inode",
			build: func(b *Builder) error {
				return b.SetXattr(42, "user.x", []byte("v"))
			},
		},
		{
			name: "empty xattr name",
			build: func(b *Builder) error {
				if err := b.AddFile(2, RootID, "a.txt", nil, testAttr(0o644)); err != nil {
					return err
				}
				return b.SetXattr(2, "", []byte("v"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			if err := b.AddRoot(testAttr(0o755)); err != nil {
				t.Fatalf("Failed to add root: %v", err)
			}
			if err := tt.build(b); err == nil {
				t.Error("Expected a builder error, got none")
			}
		})
	}
}

func TestBuilderRootRules(t *testing.T) {
	t.Run("build without root fails", func(t *testing.T) {
		if _, err := NewBuilder().Build(); err == nil {
			t.Error("Expected an error building an empty catalog")
		}
	})

	t.Run("root added twice fails", func(t *testing.T) {
		b := NewBuilder()
		if err := b.AddRoot(testAttr(0o755)); err != nil {
			t.Fatalf("First AddRoot failed: %v", err)
		}
		if err := b.AddRoot(testAttr(0o755)); err == nil {
			t.Error("Expected second AddRoot to fail")
		}
	})

	t.Run("entries before root fail", func(t *testing.T) {
		b := NewBuilder()
		if err := b.AddFile(2, RootID, "a.txt", nil, testAttr(0o644)); err == nil {
			t.Error("Expected AddFile before AddRoot to fail")
		}
	})

	t.Run("builder unusable after build", func(t *testing.T) {
		b := NewBuilder()
		if err := b.AddRoot(testAttr(0o755)); err != nil {
			t.Fatalf("AddRoot failed: %v", err)
		}
		if _, err := b.Build(); err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if err := b.AddFile(2, RootID, "late.txt", nil, testAttr(0o644)); err == nil {
			t.Error("Expected AddFile after Build to fail")
		}
		if _, err := b.Build(); err == nil {
			t.Error("Expected second Build to fail")
		}
	})
}

func TestAttributeDefaults(t *testing.T) {
	cat := buildTestCatalog(t)

	t.Run("file", func(t *testing.T) {
		attr, err := cat.AttributesOf(2)
		if err != nil {
			t.Fatalf("AttributesOf failed: %v", err)
		}
		if attr.Size != 13 {
			t.Errorf("Expected size 13, got %d", attr.Size)
		}
		if attr.Blocks != 1 {
			t.Errorf("Expected 1 block for 13 bytes, got %d", attr.Blocks)
		}
		if attr.BlockSize != DefaultBlockSize {
			t.Errorf("Expected block size %d, got %d", DefaultBlockSize, attr.BlockSize)
		}
		if attr.Nlink != 1 {
			t.Errorf("Expected nlink 1 for a file, got %d", attr.Nlink)
		}
		if attr.Mode.IsDir() {
			t.Error("File attributes should not carry the directory bit")
		}
		if perm := attr.Mode.Perm(); perm != 0o644 {
			t.Errorf("Expected permissions 0644, got %o", perm)
		}
	})

	t.Run("directory", func(t *testing.T) {
		attr, err := cat.AttributesOf(RootID)
		if err != nil {
			t.Fatalf("AttributesOf failed: %v", err)
		}
		if !attr.Mode.IsDir() {
			t.Error("Root attributes should carry the directory bit")
		}
		// Root has two subdirectories, so nlink is 2 + 2.
		if attr.Nlink != 4 {
			t.Errorf("Expected root nlink 4, got %d", attr.Nlink)
		}
		docs, err := cat.AttributesOf(3)
		if err != nil {
			t.Fatalf("AttributesOf failed: %v", err)
		}
		if docs.Nlink != 2 {
			t.Errorf("Expected docs nlink 2, got %d", docs.Nlink)
		}
	})

	t.Run("type bits are normalized", func(t *testing.T) {
		b := NewBuilder()
		if err := b.AddRoot(testAttr(0o755)); err != nil {
			t.Fatalf("AddRoot failed: %v", err)
		}
		attr := testAttr(0o644)
		attr.Mode |= os.ModeSymlink
		if err := b.AddFile(2, RootID, "a.txt", []byte("x"), attr); err != nil {
			t.Fatalf("AddFile failed: %v", err)
		}
		cat, err := b.Build()
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		got, err := cat.AttributesOf(2)
		if err != nil {
			t.Fatalf("AttributesOf failed: %v", err)
		}
		if got.Mode&os.ModeType != 0 {
			t.Errorf("Expected type bits stripped from file mode, got %v", got.Mode)
		}
	})
}

func TestAttributesOf(t *testing.T) {
	cat := buildTestCatalog(t)

	if _, err := cat.AttributesOf(2); err != nil {
		t.Errorf("AttributesOf(2) failed: %v", err)
	}
	if _, err := cat.AttributesOf(99); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown inode, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	cat := buildTestCatalog(t)

	tests := []struct {
		name    string
		parent  InodeID
		child   string
		wantID  InodeID
		wantErr error
	}{
		{"file under root", RootID, "hello.txt", 2, nil},
		{"directory under root", RootID, "docs", 3, nil},
		{"nested file", 3, "guide.md", 4, nil},
		{"unknown name", RootID, "missing.txt", 0, ErrNotFound},
		{"case sensitive", RootID, "Hello.txt", 0, ErrNotFound},
		{"unknown parent", 99, "hello.txt", 0, ErrNotFound},
		{"file as parent", 2, "guide.md", 0, ErrNotFound},
		{"dot is not resolvable", RootID, ".", 0, ErrNotFound},
		{"dot dot is not resolvable", RootID, "..", 0, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, attr, err := cat.Resolve(tt.parent, tt.child)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if id != tt.wantID {
				t.Errorf("Expected inode %d, got %d", tt.wantID, id)
			}
			want, err := cat.AttributesOf(tt.wantID)
			if err != nil {
				t.Fatalf("AttributesOf failed: %v", err)
			}
			if !reflect.DeepEqual(attr, want) {
				t.Error("Resolve attributes disagree with AttributesOf")
			}
		})
	}
}

func TestChildrenOf(t *testing.T) {
	cat := buildTestCatalog(t)

	t.Run("root listing", func(t *testing.T) {
		entries, err := cat.ChildrenOf(RootID)
		if err != nil {
			t.Fatalf("ChildrenOf failed: %v", err)
		}
		want := []DirEntry{
			{ID: RootID, Kind: KindDirectory, Name: "."},
			{ID: RootID, Kind: KindDirectory, Name: ".."},
			{ID: 2, Kind: KindRegularFile, Name: "hello.txt"},
			{ID: 3, Kind: KindDirectory, Name: "docs"},
			{ID: 5, Kind: KindDirectory, Name: "empty"},
		}
		if !reflect.DeepEqual(entries, want) {
			t.Errorf("Unexpected root listing:\n got %v\nwant %v", entries, want)
		}
	})

	t.Run("nested listing points dot dot at the parent", func(t *testing.T) {
		entries, err := cat.ChildrenOf(3)
		if err != nil {
			t.Fatalf("ChildrenOf failed: %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("Expected 3 entries, got %d", len(entries))
		}
		if entries[0].Name != "." || entries[0].ID != 3 {
			t.Errorf("Expected . to point at the directory itself, got %v", entries[0])
		}
		if entries[1].Name != ".." || entries[1].ID != RootID {
			t.Errorf("Expected .. to point at the parent, got %v", entries[1])
		}
		if entries[2].Name != "guide.md" || entries[2].ID != 4 {
			t.Errorf("Unexpected child entry: %v", entries[2])
		}
	})

	t.Run("empty directory lists only dots", func(t *testing.T) {
		entries, err := cat.ChildrenOf(5)
		if err != nil {
			t.Fatalf("ChildrenOf failed: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("Expected 2 entries, got %d", len(entries))
		}
	})

	t.Run("file is rejected", func(t *testing.T) {
		if _, err := cat.ChildrenOf(2); !errors.Is(err, ErrNotADirectory) {
			t.Errorf("Expected ErrNotADirectory, got %v", err)
		}
	})

	t.Run("unknown inode is rejected", func(t *testing.T) {
		if _, err := cat.ChildrenOf(99); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestContentOf(t *testing.T) {
	cat := buildTestCatalog(t)

	content, err := cat.ContentOf(2)
	if err != nil {
		t.Fatalf("ContentOf failed: %v", err)
	}
	if !bytes.Equal(content, []byte("Hello World!\n")) {
		t.Errorf("Unexpected content: %q", content)
	}

	if _, err := cat.ContentOf(3); !errors.Is(err, ErrNotAFile) {
		t.Errorf("Expected ErrNotAFile for a directory, got %v", err)
	}
	if _, err := cat.ContentOf(99); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown inode, got %v", err)
	}
}

func TestXattrs(t *testing.T) {
	cat := buildTestCatalog(t)

	val, err := cat.XattrOf(2, "user.origin")
	if err != nil {
		t.Fatalf("XattrOf failed: %v", err)
	}
	if string(val) != "greeting" {
		t.Errorf("Unexpected xattr value: %q", val)
	}

	if _, err := cat.XattrOf(2, "user.missing"); !errors.Is(err, ErrNoXattr) {
		t.Errorf("Expected ErrNoXattr, got %v", err)
	}
	if _, err := cat.XattrOf(99, "user.origin"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	names, err := cat.XattrNamesOf(2)
	if err != nil {
		t.Fatalf("XattrNamesOf failed: %v", err)
	}
	want := []string{"user.checksum", "user.origin"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Expected sorted names %v, got %v", want, names)
	}

	empty, err := cat.XattrNamesOf(3)
	if err != nil {
		t.Fatalf("XattrNamesOf failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Expected no xattr names, got %v", empty)
	}
}

func TestStats(t *testing.T) {
	cat := buildTestCatalog(t)

	stats := cat.Stats()
	want := Stats{Inodes: 5, Directories: 3, Files: 2, ContentBytes: 21}
	if stats != want {
		t.Errorf("Unexpected stats: got %+v, want %+v", stats, want)
	}
}
