// Package assets manages the files that live inside a vertex's asset
// directory: images with a metadata sidecar, Markdown notes and an ordered
// link list. Reads of missing or corrupt sidecars yield empty results;
// failed writes are returned to the caller.
package assets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/starford/capsule/internal/apperr"
	"github.com/starford/capsule/internal/storage"
)

// Sidecar and folder names inside an asset directory.
const (
	ImagesFile = "images.json"
	LinksFile  = "links.json"
	NotesDir   = "notes"
	NoteExt    = ".md"
)

// Store reads and writes asset files through a storage.Provider.
type Store struct {
	fs     storage.Provider
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides time.Now, which names new notes.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store.
func New(p storage.Provider, opts ...Option) *Store {
	s := &Store{fs: p, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureBaseline creates an empty link list in dir when none exists, so
// later link reads always find a file.
func (s *Store) EnsureBaseline(dir string) error {
	path, err := join(dir, LinksFile)
	if err != nil {
		return err
	}
	if _, err := s.fs.ReadFile(path); err == nil {
		return nil
	}
	return s.fs.WriteFile(path, []byte("[]\n"))
}

// readSidecar decodes a JSON sidecar into dst. It reports false when the
// file is missing or unreadable, leaving dst untouched.
func (s *Store) readSidecar(path string, dst any) bool {
	raw, err := s.fs.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("assets: sidecar unreadable", slog.String("path", path), slog.String("error", err.Error()))
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.Warn("assets: sidecar corrupt, treating as empty", slog.String("path", path), slog.String("error", err.Error()))
		return false
	}
	return true
}

func (s *Store) writeSidecar(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("assets: encode %s: %w", path, err)
	}
	return s.fs.WriteFile(path, append(data, '\n'))
}

// join resolves name inside dir, mapping unsafe names to ErrInvalid.
func join(dir, name string) (string, error) {
	path, err := storage.Join(dir, name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}
	return path, nil
}

// notFound maps a missing file to apperr.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	}
	return err
}
