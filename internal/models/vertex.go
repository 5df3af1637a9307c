package models

import (
	"encoding/json"
	"time"
)

// ChildrenBehavior controls how a vertex's children are created and displayed.
type ChildrenBehavior struct {
	ChildKind string `json:"child_kind,omitempty"`
	Display   string `json:"display,omitempty"`
}

// Reference is a tagged union keyed by Type: "vertex", "url", "image" or "comment".
type Reference struct {
	Type      string     `json:"type"`
	VertexID  string     `json:"vertex_id,omitempty"`
	URL       string     `json:"url,omitempty"`
	Title     string     `json:"title,omitempty"`
	Path      string     `json:"path,omitempty"`
	Alt       string     `json:"alt,omitempty"`
	Text      string     `json:"text,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Vertex is a node of a workspace forest as seen by callers.
// WorkspaceID, AssetDirectory and IsCorrupt are derived on every hydration.
type Vertex struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Description      string            `json:"description,omitempty"`
	Thumbnail        string            `json:"thumbnail_path,omitempty"`
	ParentID         string            `json:"parent_id,omitempty"`
	WorkspaceID      string            `json:"workspace_id,omitempty"`
	Kind             string            `json:"kind"`
	Tags             []string          `json:"tags"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	ChildrenBehavior *ChildrenBehavior `json:"children_behavior,omitempty"`
	ChildrenLayout   string            `json:"children_layout,omitempty"`
	References       []Reference       `json:"references,omitempty"`
	AssetDirectory   string            `json:"asset_directory"`
	IsCorrupt        bool              `json:"is_corrupt,omitempty"`

	// Extra holds record keys this version does not know about.
	Extra map[string]json.RawMessage `json:"-"`
}

// StoredVertex is the on-disk form: a Vertex without its derived location fields.
type StoredVertex struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Description      string            `json:"description,omitempty"`
	Thumbnail        string            `json:"thumbnail_path,omitempty"`
	ParentID         string            `json:"parent_id,omitempty"`
	Kind             string            `json:"kind"`
	Tags             []string          `json:"tags"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	ChildrenBehavior *ChildrenBehavior `json:"children_behavior,omitempty"`
	ChildrenLayout   string            `json:"children_layout,omitempty"`
	References       []Reference       `json:"references,omitempty"`
	IsCorrupt        bool              `json:"is_corrupt,omitempty"`

	// Extra is written back verbatim next to the known fields.
	Extra map[string]json.RawMessage `json:"-"`
}

// Stored strips the derived fields.
func (v Vertex) Stored() StoredVertex {
	return StoredVertex{
		ID:               v.ID,
		Title:            v.Title,
		Description:      v.Description,
		Thumbnail:        v.Thumbnail,
		ParentID:         v.ParentID,
		Kind:             v.Kind,
		Tags:             cloneStrings(v.Tags),
		CreatedAt:        v.CreatedAt,
		UpdatedAt:        v.UpdatedAt,
		ChildrenBehavior: cloneBehavior(v.ChildrenBehavior),
		ChildrenLayout:   v.ChildrenLayout,
		References:       cloneReferences(v.References),
		IsCorrupt:        v.IsCorrupt,
		Extra:            cloneExtra(v.Extra),
	}
}

// Vertex lifts a stored record; the caller fills WorkspaceID and AssetDirectory.
func (s StoredVertex) Vertex() Vertex {
	return Vertex{
		ID:               s.ID,
		Title:            s.Title,
		Description:      s.Description,
		Thumbnail:        s.Thumbnail,
		ParentID:         s.ParentID,
		Kind:             s.Kind,
		Tags:             cloneStrings(s.Tags),
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
		ChildrenBehavior: cloneBehavior(s.ChildrenBehavior),
		ChildrenLayout:   s.ChildrenLayout,
		References:       cloneReferences(s.References),
		IsCorrupt:        s.IsCorrupt,
		Extra:            cloneExtra(s.Extra),
	}
}

// Clone returns a deep copy.
func (v Vertex) Clone() Vertex {
	v.Tags = cloneStrings(v.Tags)
	v.ChildrenBehavior = cloneBehavior(v.ChildrenBehavior)
	v.References = cloneReferences(v.References)
	v.Extra = cloneExtra(v.Extra)
	return v
}

// IsRoot reports whether the vertex has no parent.
func (v Vertex) IsRoot() bool { return v.ParentID == "" }

func cloneBehavior(b *ChildrenBehavior) *ChildrenBehavior {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

func cloneReferences(refs []Reference) []Reference {
	if refs == nil {
		return nil
	}
	out := make([]Reference, len(refs))
	copy(out, refs)
	return out
}
