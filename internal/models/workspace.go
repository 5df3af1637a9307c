// Package models defines the domain types for Capsule.
package models

import "time"

// Workspace is a user-chosen root folder plus its metadata.
// Path is the authoritative filesystem root; ID stays stable when Path changes.
type Workspace struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Path          string    `json:"path"`
	Purpose       string    `json:"purpose,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Tags          []string  `json:"tags"`
	RootVertexIDs []string  `json:"root_vertex_ids,omitempty"`
}

// CatalogEntry is the projection of a Workspace persisted in the catalog.
type CatalogEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Purpose   string    `json:"purpose,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Tags      []string  `json:"tags"`
}

// Entry projects the workspace into its catalog form.
func (w Workspace) Entry() CatalogEntry {
	return CatalogEntry{
		ID:        w.ID,
		Name:      w.Name,
		Path:      w.Path,
		Purpose:   w.Purpose,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
		Tags:      cloneStrings(w.Tags),
	}
}

// Workspace expands a catalog entry back into a Workspace.
func (e CatalogEntry) Workspace() Workspace {
	return Workspace{
		ID:        e.ID,
		Name:      e.Name,
		Path:      e.Path,
		Purpose:   e.Purpose,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
		Tags:      cloneStrings(e.Tags),
	}
}

// Clone returns a deep copy.
func (w Workspace) Clone() Workspace {
	w.Tags = cloneStrings(w.Tags)
	w.RootVertexIDs = cloneStrings(w.RootVertexIDs)
	return w
}

func cloneStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
