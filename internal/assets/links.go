package assets

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"

	"github.com/starford/capsule/internal/apperr"
	"github.com/starford/capsule/internal/models"
)

// Links returns the ordered link list of dir.
func (s *Store) Links(dir string) ([]models.Link, error) {
	path, err := join(dir, LinksFile)
	if err != nil {
		return []models.Link{}, nil
	}
	var links []models.Link
	if !s.readSidecar(path, &links) || links == nil {
		return []models.Link{}, nil
	}
	return links, nil
}

// CreateLink appends l to the list, assigning a fresh id.
func (s *Store) CreateLink(dir string, l models.Link) (models.Link, error) {
	l.ID = uuid.NewString()
	if err := validateLink(&l); err != nil {
		return models.Link{}, err
	}
	links, _ := s.Links(dir)
	links = append(links, l)
	if err := s.writeLinks(dir, links); err != nil {
		return models.Link{}, err
	}
	return l, nil
}

// UpdateLink replaces the entry with the same id, keeping its position.
func (s *Store) UpdateLink(dir string, l models.Link) (models.Link, error) {
	if err := validateLink(&l); err != nil {
		return models.Link{}, err
	}
	links, _ := s.Links(dir)
	found := false
	for i := range links {
		if links[i].ID == l.ID {
			links[i] = l
			found = true
			break
		}
	}
	if !found {
		return models.Link{}, fmt.Errorf("link %s: %w", l.ID, apperr.ErrNotFound)
	}
	if err := s.writeLinks(dir, links); err != nil {
		return models.Link{}, err
	}
	return l, nil
}

// DeleteLink removes the entry with id.
func (s *Store) DeleteLink(dir, id string) error {
	links, _ := s.Links(dir)
	kept := make([]models.Link, 0, len(links))
	for _, l := range links {
		if l.ID != id {
			kept = append(kept, l)
		}
	}
	if len(kept) == len(links) {
		return fmt.Errorf("link %s: %w", id, apperr.ErrNotFound)
	}
	return s.writeLinks(dir, kept)
}

func (s *Store) writeLinks(dir string, links []models.Link) error {
	path, err := join(dir, LinksFile)
	if err != nil {
		return err
	}
	return s.writeSidecar(path, links)
}

func validateLink(l *models.Link) error {
	l.URL = strings.TrimSpace(l.URL)
	l.Title = strings.TrimSpace(l.Title)
	err := validation.ValidateStruct(l,
		validation.Field(&l.ID, validation.Required),
		validation.Field(&l.URL, validation.Required, is.URL),
	)
	if err != nil {
		return fmt.Errorf("%w: link: %v", apperr.ErrInvalid, err)
	}
	return nil
}
