package export

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"workbench/internal/vfs"
)

func seededStore(t *testing.T) *vfs.Store {
	t.Helper()
	store := vfs.NewStore()
	if err := store.CreateFile("README.md", []byte("hello")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.CreateFile("src/index.ts", []byte("export {}")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}

func TestZipSnapshot(t *testing.T) {
	data, err := Zip(seededStore(t))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	contents := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		contents[f.Name] = string(raw)
	}
	if len(contents) != 2 {
		t.Fatalf("expected 2 archive entries, got %v", contents)
	}
	if contents["README.md"] != "hello" || contents["src/index.ts"] != "export {}" {
		t.Fatalf("unexpected archive contents: %v", contents)
	}
}

func TestSyncDir(t *testing.T) {
	root := t.TempDir()
	if err := SyncDir(seededStore(t), root); err != nil {
		t.Fatalf("sync: %v", err)
	}
	readme, err := os.ReadFile(filepath.Join(root, "README.md"))
	if err != nil || string(readme) != "hello" {
		t.Fatalf("README not synced: %v %q", err, readme)
	}
	index, err := os.ReadFile(filepath.Join(root, "src", "index.ts"))
	if err != nil || string(index) != "export {}" {
		t.Fatalf("nested file not synced: %v %q", err, index)
	}
}
