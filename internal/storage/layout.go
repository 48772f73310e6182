// Package storage owns the on-disk directory layout: the data root, the raw
// monthly file cache, and the processed output directory.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/couchcryptid/rides-hourly-etl/internal/domain"
)

// Layout holds the resolved process-managed directories.
type Layout struct {
	Root      string
	Data      string
	Raw       string
	Processed string
}

// Init resolves the directories under root and creates any that are missing.
// Calling it again on an existing tree is a no-op.
func Init(root string) (Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, fmt.Errorf("resolve data root %q: %w", root, err)
	}

	l := Layout{
		Root:      abs,
		Data:      filepath.Join(abs, "data"),
		Raw:       filepath.Join(abs, "raw"),
		Processed: filepath.Join(abs, "processed"),
	}
	for _, dir := range []string{l.Data, l.Raw, l.Processed} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return Layout{}, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return l, nil
}

// RawFileName is the cache file name for a month, e.g. "rides_2023-02.parquet".
func RawFileName(m domain.Month) string {
	return fmt.Sprintf("rides_%s.parquet", m.String())
}

// RawPath is the cache location for a month.
func (l Layout) RawPath(m domain.Month) string {
	return filepath.Join(l.Raw, RawFileName(m))
}

// ProcessedPath is the location of a named output file.
func (l Layout) ProcessedPath(name string) string {
	return filepath.Join(l.Processed, name)
}

// WriteFileAtomic streams r into path via a temp file in the same directory
// and renames it into place, so readers never observe a partial file.
// Concurrent writers to the same path are last-writer-wins.
func WriteFileAtomic(path string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return n, fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return n, fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return n, fmt.Errorf("rename into %s: %w", path, err)
	}
	return n, nil
}
