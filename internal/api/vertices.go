package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/capsule/internal/models"
)

// ListVertices handles GET /api/vertices. Without parameters it returns root
// vertices; parent_id selects children and all=true returns everything.
func (h *Handler) ListVertices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		list []models.Vertex
		err  error
	)
	if q.Get("all") == "true" {
		list, err = h.engine.AllVertices(r.Context())
	} else {
		list, err = h.engine.Vertices(r.Context(), q.Get("parent_id"))
	}
	if err != nil {
		writeError(w, "list vertices", err)
		return
	}
	writeJSON(w, http.StatusOK, VertexListResponse{Vertices: list})
}

// CreateVertex handles POST /api/vertices.
func (h *Handler) CreateVertex(w http.ResponseWriter, r *http.Request) {
	var req models.Vertex
	if !decode(w, r, &req) {
		return
	}
	v, err := h.engine.CreateVertex(r.Context(), req)
	if err != nil {
		writeError(w, "create vertex", err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// GetVertex handles GET /api/vertices/{id}.
func (h *Handler) GetVertex(w http.ResponseWriter, r *http.Request) {
	v, ok := h.vertex(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// UpdateVertex handles PUT /api/vertices/{id}.
func (h *Handler) UpdateVertex(w http.ResponseWriter, r *http.Request) {
	var req models.Vertex
	if !decode(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "id")
	// The asset directory is derived; clients cannot relocate it.
	req.AssetDirectory = ""
	v, err := h.engine.UpdateVertex(r.Context(), req)
	if err != nil {
		writeError(w, "update vertex", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// RemoveVertex handles DELETE /api/vertices/{id}.
func (h *Handler) RemoveVertex(w http.ResponseWriter, r *http.Request) {
	v, ok := h.vertex(w, r)
	if !ok {
		return
	}
	if err := h.engine.RemoveVertex(r.Context(), *v); err != nil {
		writeError(w, "remove vertex", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// vertex loads the vertex named by the {id} URL parameter, answering 404
// when it does not exist.
func (h *Handler) vertex(w http.ResponseWriter, r *http.Request) (*models.Vertex, bool) {
	v, err := h.engine.Vertex(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get vertex", err)
		return nil, false
	}
	if v == nil {
		writeJSON(w, http.StatusNotFound, errorBody("vertex not found"))
		return nil, false
	}
	return v, true
}
