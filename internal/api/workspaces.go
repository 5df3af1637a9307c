package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/capsule/internal/models"
)

// ListWorkspaces handles GET /api/workspaces.
func (h *Handler) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.Workspaces(r.Context())
	if err != nil {
		writeError(w, "list workspaces", err)
		return
	}
	writeJSON(w, http.StatusOK, WorkspaceListResponse{Workspaces: list})
}

// CreateWorkspace handles POST /api/workspaces.
func (h *Handler) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req models.Workspace
	if !decode(w, r, &req) {
		return
	}
	ws, err := h.engine.CreateWorkspace(r.Context(), req)
	if err != nil {
		writeError(w, "create workspace", err)
		return
	}
	writeJSON(w, http.StatusCreated, ws)
}

// GetWorkspace handles GET /api/workspaces/{id}.
func (h *Handler) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := h.engine.Workspace(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get workspace", err)
		return
	}
	if ws == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// UpdateWorkspace handles PUT /api/workspaces/{id}. Empty fields keep their
// stored value; a new path relocates the workspace.
func (h *Handler) UpdateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req models.Workspace
	if !decode(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "id")
	ws, err := h.engine.UpdateWorkspace(r.Context(), req)
	if err != nil {
		writeError(w, "update workspace", err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// RemoveWorkspace handles DELETE /api/workspaces/{id}. Files stay on disk.
func (h *Handler) RemoveWorkspace(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.RemoveWorkspace(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "remove workspace", err)
		return
	}
	writeJSON(w, http.StatusOK, RemoveWorkspaceResponse{VerticesRemoved: n})
}

// WorkspaceRoots handles GET /api/workspaces/{id}/roots.
func (h *Handler) WorkspaceRoots(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.WorkspaceRootVertices(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "list root vertices", err)
		return
	}
	writeJSON(w, http.StatusOK, VertexListResponse{Vertices: list})
}

// PickDirectory handles POST /api/workspaces/pick.
func (h *Handler) PickDirectory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PickDirectoryResponse{Path: h.engine.SelectWorkspaceDirectory(r.Context())})
}

// PruneWorkspaces handles POST /api/workspaces/prune.
func (h *Handler) PruneWorkspaces(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.PruneMissingWorkspaces(r.Context())
	if err != nil {
		writeError(w, "prune workspaces", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// LoadIssues handles GET /api/workspaces/issues.
func (h *Handler) LoadIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := h.engine.LoadIssues(r.Context())
	if err != nil {
		writeError(w, "load issues", err)
		return
	}
	writeJSON(w, http.StatusOK, LoadIssuesResponse{Issues: issues})
}
