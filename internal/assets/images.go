package assets

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/starford/capsule/internal/apperr"
	"github.com/starford/capsule/internal/models"
)

// imageTypes maps accepted extensions to the MIME type used in data URIs.
var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".svg":  "image/svg+xml",
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// imageSidecar is the on-disk shape of images.json.
type imageSidecar struct {
	Images map[string]models.ImageMetadata `json:"images"`
}

// IsImage reports whether name has an accepted image extension.
func IsImage(name string) bool {
	_, ok := imageTypes[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Images lists the image files of dir with their metadata. Each image
// carries its bytes as a data URI. A missing directory yields no images.
func (s *Store) Images(dir string) ([]models.Image, error) {
	out := []models.Image{}
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		return out, nil
	}
	meta := s.imageMeta(dir)
	for _, e := range entries {
		if e.IsDir || !IsImage(e.Name) {
			continue
		}
		path := filepath.Join(dir, e.Name)
		data, err := s.fs.ReadFile(path)
		if err != nil {
			s.logger.Warn("assets: image unreadable", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		m := meta[e.Name]
		out = append(out, models.Image{
			Name:        e.Name,
			Path:        path,
			Alt:         m.Alt,
			Description: m.Description,
			Src:         dataURI(e.Name, data),
		})
	}
	return out, nil
}

// AddImage writes a new image file into dir. The name is reduced to a safe
// character set and must keep an accepted extension.
func (s *Store) AddImage(dir, name string, data []byte) (models.Image, error) {
	clean := strings.Trim(unsafeName.ReplaceAllString(filepath.Base(name), "-"), "-.")
	if !IsImage(clean) {
		return models.Image{}, fmt.Errorf("%w: unsupported image type %q", apperr.ErrInvalid, name)
	}
	path, err := join(dir, clean)
	if err != nil {
		return models.Image{}, err
	}
	if _, err := s.fs.ReadFile(path); err == nil {
		return models.Image{}, fmt.Errorf("image %s: %w", clean, apperr.ErrAlreadyExists)
	}
	if err := s.fs.WriteFile(path, data); err != nil {
		return models.Image{}, err
	}
	s.logger.Info("assets: image added", slog.String("path", path), slog.Int("bytes", len(data)))
	return models.Image{Name: clean, Path: path, Src: dataURI(clean, data)}, nil
}

// DeleteImage removes an image file and its metadata entry.
func (s *Store) DeleteImage(dir, name string) error {
	if !IsImage(name) {
		return fmt.Errorf("%w: %q is not an image", apperr.ErrInvalid, name)
	}
	path, err := join(dir, name)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(path); err != nil {
		return notFound(err, "image "+name)
	}
	meta := s.imageMeta(dir)
	if _, ok := meta[name]; !ok {
		return nil
	}
	delete(meta, name)
	return s.writeImageMeta(dir, meta)
}

// UpdateImageMetadata sets the alt text and description of an image.
// When both are blank the entry is removed instead of stored empty.
func (s *Store) UpdateImageMetadata(dir, name string, m models.ImageMetadata) error {
	if !IsImage(name) {
		return fmt.Errorf("%w: %q is not an image", apperr.ErrInvalid, name)
	}
	if _, err := join(dir, name); err != nil {
		return err
	}
	m.Alt = strings.TrimSpace(m.Alt)
	m.Description = strings.TrimSpace(m.Description)

	meta := s.imageMeta(dir)
	if m == (models.ImageMetadata{}) {
		delete(meta, name)
	} else {
		meta[name] = m
	}
	return s.writeImageMeta(dir, meta)
}

func (s *Store) imageMeta(dir string) map[string]models.ImageMetadata {
	var sc imageSidecar
	path, err := join(dir, ImagesFile)
	if err != nil || !s.readSidecar(path, &sc) || sc.Images == nil {
		return map[string]models.ImageMetadata{}
	}
	return sc.Images
}

// writeImageMeta persists meta, dropping entries that carry no fields.
func (s *Store) writeImageMeta(dir string, meta map[string]models.ImageMetadata) error {
	path, err := join(dir, ImagesFile)
	if err != nil {
		return err
	}
	for name, m := range meta {
		if m == (models.ImageMetadata{}) {
			delete(meta, name)
		}
	}
	return s.writeSidecar(path, imageSidecar{Images: meta})
}

func dataURI(name string, data []byte) string {
	mime := imageTypes[strings.ToLower(filepath.Ext(name))]
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
