package assets

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/starford/capsule/internal/apperr"
	"github.com/starford/capsule/internal/checksum"
	"github.com/starford/capsule/internal/models"
	"github.com/starford/capsule/internal/parser"
)

// Notes lists the notes of dir ordered by name.
func (s *Store) Notes(dir string) ([]models.Note, error) {
	out := []models.Note{}
	if dir == "" {
		return out, nil
	}
	notesDir := filepath.Join(dir, NotesDir)
	entries, err := s.fs.ReadDir(notesDir)
	if err != nil {
		return out, nil
	}
	for _, e := range entries {
		if e.IsDir || !strings.HasSuffix(e.Name, NoteExt) {
			continue
		}
		path := filepath.Join(notesDir, e.Name)
		data, err := s.fs.ReadFile(path)
		if err != nil {
			s.logger.Warn("assets: note unreadable", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		out = append(out, buildNote(strings.TrimSuffix(e.Name, NoteExt), data, e.ModTime))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Note returns one note, or nil when it does not exist.
func (s *Store) Note(dir, name string) (*models.Note, error) {
	path, err := s.notePath(dir, name)
	if err != nil {
		return nil, err
	}
	data, err := s.fs.ReadFile(path)
	if err != nil {
		return nil, nil
	}
	n := buildNote(name, data, s.modTime(path))
	return &n, nil
}

// CreateNote stores text under a new timestamp-derived name.
func (s *Store) CreateNote(dir, text string) (models.Note, error) {
	if dir == "" {
		return models.Note{}, fmt.Errorf("%w: empty asset directory", apperr.ErrInvalid)
	}
	now := s.now()
	base := NoteName(now)
	name := base
	for i := 1; ; i++ {
		path, err := s.notePath(dir, name)
		if err != nil {
			return models.Note{}, err
		}
		if _, err := s.fs.ReadFile(path); err != nil {
			break
		}
		name = base + "-" + strconv.Itoa(i)
	}
	path, _ := s.notePath(dir, name)
	data := []byte(text)
	if err := s.fs.WriteFile(path, data); err != nil {
		return models.Note{}, err
	}
	return buildNote(name, data, s.modTime(path)), nil
}

// UpdateNote replaces the text of an existing note. A non-empty ifMatch must
// equal the checksum of the current text, otherwise ErrConflict is returned.
func (s *Store) UpdateNote(dir, name, text, ifMatch string) (models.Note, error) {
	path, err := s.notePath(dir, name)
	if err != nil {
		return models.Note{}, err
	}
	existing, err := s.fs.ReadFile(path)
	if err != nil {
		return models.Note{}, notFound(err, "note "+name)
	}
	if ifMatch != "" && !checksum.Matches(existing, ifMatch) {
		return models.Note{}, fmt.Errorf("note %s: %w", name, apperr.ErrConflict)
	}
	data := []byte(text)
	if err := s.fs.WriteFile(path, data); err != nil {
		return models.Note{}, err
	}
	return buildNote(name, data, s.modTime(path)), nil
}

// DeleteNote removes a note file.
func (s *Store) DeleteNote(dir, name string) error {
	path, err := s.notePath(dir, name)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(path); err != nil {
		return notFound(err, "note "+name)
	}
	return nil
}

// NoteName derives a file-safe note name from t.
func NoteName(t time.Time) string {
	raw := t.UTC().Format("2006-01-02T15:04:05.000Z")
	return strings.Trim(unsafeName.ReplaceAllString(strings.NewReplacer(":", "-", ".", "-").Replace(raw), "-"), "-")
}

func (s *Store) notePath(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("%w: empty asset directory", apperr.ErrInvalid)
	}
	return join(filepath.Join(dir, NotesDir), name+NoteExt)
}

// modTime is the file's modification time, the same value Notes reports.
// It falls back to the store clock when the file cannot be stat'ed.
func (s *Store) modTime(path string) time.Time {
	info, err := s.fs.Stat(path)
	if err != nil {
		return s.now()
	}
	return info.ModTime
}

func buildNote(name string, data []byte, modTime time.Time) models.Note {
	p := parser.Parse(data)
	return models.Note{
		Name:      name,
		Text:      string(data),
		Title:     p.Title,
		Tags:      p.Tags,
		Checksum:  checksum.Sum(data),
		UpdatedAt: modTime,
	}
}
