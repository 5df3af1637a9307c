package api

import "github.com/starford/capsule/internal/models"

// WorkspaceListResponse wraps the workspace catalog.
type WorkspaceListResponse struct {
	Workspaces []models.Workspace `json:"workspaces"`
}

// VertexListResponse wraps a vertex listing.
type VertexListResponse struct {
	Vertices []models.Vertex `json:"vertices"`
}

// RemoveWorkspaceResponse reports how many vertices went with the workspace.
type RemoveWorkspaceResponse struct {
	VerticesRemoved int `json:"vertices_removed"`
}

// PickDirectoryResponse carries the chosen folder; empty when nothing was picked.
type PickDirectoryResponse struct {
	Path string `json:"path"`
}

// LoadIssuesResponse lists workspaces whose data file could not be read.
type LoadIssuesResponse struct {
	Issues map[string]string `json:"issues"`
}

// NoteRequest is the body for creating or updating a note.
type NoteRequest struct {
	Text string `json:"text"`
}

// LinkRequest is the body for creating or updating a link.
type LinkRequest struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// ImageListResponse wraps the images of a vertex.
type ImageListResponse struct {
	Images []models.Image `json:"images"`
}

// NoteListResponse wraps the notes of a vertex.
type NoteListResponse struct {
	Notes []models.Note `json:"notes"`
}

// LinkListResponse wraps the links of a vertex.
type LinkListResponse struct {
	Links []models.Link `json:"links"`
}
