package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FS implements Provider backed by the local file system.
type FS struct{}

// NewFS creates a new FS provider.
func NewFS() *FS {
	return &FS{}
}

// ReadDir lists dir sorted by name.
func (f *FS) ReadDir(dir string) ([]Entry, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage: read dir: empty path")
	}
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: read dir %s: %w", dir, err)
	}
	out := make([]Entry, 0, len(items))
	for _, it := range items {
		info, err := it.Info()
		if err != nil {
			// Entry vanished between listing and stat.
			continue
		}
		out = append(out, Entry{
			Name:    it.Name(),
			IsDir:   it.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Stat describes one file or directory.
func (f *FS) Stat(path string) (Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	return Entry{
		Name:    info.Name(),
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// ReadFile returns the raw bytes of a file.
func (f *FS) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// WriteFile atomically writes content: tmp file → fsync → rename.
func (f *FS) WriteFile(path string, content []byte) error {
	if path == "" {
		return fmt.Errorf("storage: write: empty path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".capsule-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Remove deletes a file.
func (f *FS) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}

// MkdirAll creates a directory tree.
func (f *FS) MkdirAll(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}
	return nil
}

// Join resolves a plain file name against base and rejects any result that
// escapes it (separators, traversal, absolute names).
func Join(base, name string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("storage: empty base directory")
	}
	if name == "" {
		return "", fmt.Errorf("storage: empty name")
	}
	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) || cleaned != filepath.Base(cleaned) || cleaned == ".." || cleaned == "." ||
		strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("storage: invalid name: %s", name)
	}
	abs := filepath.Join(base, cleaned)
	if !strings.HasPrefix(abs, filepath.Clean(base)+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes %s: %s", base, name)
	}
	return abs, nil
}
