package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/capsule/internal/models"
)

const maxUploadBytes = 50 << 20 // 50 MB

// assetDir resolves the asset directory of the {id} vertex.
func (h *Handler) assetDir(w http.ResponseWriter, r *http.Request) (string, bool) {
	v, ok := h.vertex(w, r)
	if !ok {
		return "", false
	}
	if v.AssetDirectory == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("vertex has no asset directory"))
		return "", false
	}
	return v.AssetDirectory, true
}

// ListImages handles GET /api/vertices/{id}/images.
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.assetDir(w, r)
	if !ok {
		return
	}
	imgs, err := h.assets.Images(dir)
	if err != nil {
		writeError(w, "list images", err)
		return
	}
	writeJSON(w, http.StatusOK, ImageListResponse{Images: imgs})
}

// UploadImage handles POST /api/vertices/{id}/images (multipart/form-data, field "file").
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.assetDir(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read upload"))
		return
	}
	img, err := h.assets.AddImage(dir, header.Filename, data)
	if err != nil {
		writeError(w, "add image", err)
		return
	}
	writeJSON(w, http.StatusCreated, img)
}

// DeleteImage handles DELETE /api/vertices/{id}/images/{name}.
func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.assetDir(w, r)
	if !ok {
		return
	}
	if err := h.assets.DeleteImage(dir, chi.URLParam(r, "name")); err != nil {
		writeError(w, "delete image", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateImageMetadata handles PUT /api/vertices/{id}/images/{name}/metadata.
// Sending both fields empty clears the metadata.
func (h *Handler) UpdateImageMetadata(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.assetDir(w, r)
	if !ok {
		return
	}
	var req models.ImageMetadata
	if !decode(w, r, &req) {
		return
	}
	if err := h.assets.UpdateImageMetadata(dir, chi.URLParam(r, "name"), req); err != nil {
		writeError(w, "update image metadata", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListNotes handles GET /api/vertices/{id}/notes.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.assetDir(w, r)
	if !ok {
		return
	}
	notes, err := h.assets.Notes(dir)
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes})
}

// CreateNote handles POST /api/vertices/{id}/notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.assetDir(w, r)
	if !ok {
		return
	}
	var req NoteRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := h.assets.CreateNote(dir, req.Text)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// GetNote handles GET /api/vertices/{id}/notes/{name}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.assetDir(w, r)
	if !ok {
		return
	}
	n, err := h.assets.Note(dir, chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	if n == nil {
		writeJSON(w, http.StatusNotFound, errorBody("note not found"))
		return
	}
	w.Header().Set("ETag", `"`+n.Checksum+`"`)
	writeJSON(w, http.StatusOK, n)
}

// UpdateNote handles PUT /api/vertices/{id}/notes/{name}. An If-Match header
// carrying the note checksum rejects stale writes with 409.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.assetDir(w, r)
	if !ok {
		return
	}
	var req NoteRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := h.assets.UpdateNote(dir, chi.URLParam(r, "name"), req.Text, r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// DeleteNote handles DELETE /api/vertices/{id}/notes/{name}.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.assetDir(w, r)
	if !ok {
		return
	}
	if err := h.assets.DeleteNote(dir, chi.URLParam(r, "name")); err != nil {
		writeError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListLinks handles GET /api/vertices/{id}/links.
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.assetDir(w, r)
	if !ok {
		return
	}
	links, err := h.assets.Links(dir)
	if err != nil {
		writeError(w, "list links", err)
		return
	}
	writeJSON(w, http.StatusOK, LinkListResponse{Links: links})
}

// CreateLink handles POST /api/vertices/{id}/links.
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.assetDir(w, r)
	if !ok {
		return
	}
	var req LinkRequest
	if !decode(w, r, &req) {
		return
	}
	l, err := h.assets.CreateLink(dir, models.Link{URL: req.URL, Title: req.Title})
	if err != nil {
		writeError(w, "create link", err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// UpdateLink handles PUT /api/vertices/{id}/links/{linkID}.
func (h *Handler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.assetDir(w, r)
	if !ok {
		return
	}
	var req LinkRequest
	if !decode(w, r, &req) {
		return
	}
	l, err := h.assets.UpdateLink(dir, models.Link{ID: chi.URLParam(r, "linkID"), URL: req.URL, Title: req.Title})
	if err != nil {
		writeError(w, "update link", err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// DeleteLink handles DELETE /api/vertices/{id}/links/{linkID}.
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.assetDir(w, r)
	if !ok {
		return
	}
	if err := h.assets.DeleteLink(dir, chi.URLParam(r, "linkID")); err != nil {
		writeError(w, "delete link", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
