// Package export provides read-only snapshot exports of the virtual file
// store: a zip archive, a one-time sync to a local directory, and an
// object-storage snapshot store. None of these mutate the store.
package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"workbench/internal/vfs"
)

// Zip renders the store snapshot as a zip archive. Directories are
// implied by file paths; empty directories are skipped.
func Zip(store *vfs.Store) ([]byte, error) {
	if store == nil {
		return nil, fmt.Errorf("export: store is nil")
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, entry := range store.Snapshot() {
		if entry.Kind != vfs.EntryFile {
			continue
		}
		w, err := zw.Create(strings.TrimPrefix(entry.Path, "/"))
		if err != nil {
			return nil, fmt.Errorf("export: adding %s: %w", entry.Path, err)
		}
		if _, err := w.Write(entry.Content); err != nil {
			return nil, fmt.Errorf("export: writing %s: %w", entry.Path, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SyncDir writes the store snapshot under root, creating directories as
// needed. Existing files at the same paths are overwritten; nothing else
// under root is touched.
func SyncDir(store *vfs.Store, root string) error {
	if store == nil {
		return fmt.Errorf("export: store is nil")
	}
	root = strings.TrimSpace(root)
	if root == "" {
		return fmt.Errorf("export: root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return err
	}
	for _, entry := range store.Snapshot() {
		rel := filepath.FromSlash(strings.TrimPrefix(entry.Path, "/"))
		target := filepath.Join(abs, rel)
		if !strings.HasPrefix(target, abs+string(filepath.Separator)) {
			return fmt.Errorf("export: %s resolves outside %s", entry.Path, abs)
		}
		if entry.Kind == vfs.EntryDirectory {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, entry.Content, 0o644); err != nil {
			return fmt.Errorf("export: writing %s: %w", entry.Path, err)
		}
	}
	return nil
}
