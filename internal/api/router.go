package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/capsule/internal/assets"
	"github.com/starford/capsule/internal/engine"
)

// Handler holds API route handlers.
type Handler struct {
	engine *engine.Engine
	assets *assets.Store
}

// NewHandler creates a new Handler.
func NewHandler(e *engine.Engine, a *assets.Store) *Handler {
	return &Handler{engine: e, assets: a}
}

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(e *engine.Engine, a *assets.Store, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(e, a)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/workspaces", func(r chi.Router) {
		r.Get("/", h.ListWorkspaces)
		r.Post("/", h.CreateWorkspace)
		r.Post("/pick", h.PickDirectory)
		r.Post("/prune", h.PruneWorkspaces)
		r.Get("/issues", h.LoadIssues)
		r.Get("/{id}", h.GetWorkspace)
		r.Put("/{id}", h.UpdateWorkspace)
		r.Delete("/{id}", h.RemoveWorkspace)
		r.Get("/{id}/roots", h.WorkspaceRoots)
	})

	r.Route("/vertices", func(r chi.Router) {
		r.Get("/", h.ListVertices)
		r.Post("/", h.CreateVertex)
		r.Get("/{id}", h.GetVertex)
		r.Put("/{id}", h.UpdateVertex)
		r.Delete("/{id}", h.RemoveVertex)

		r.Get("/{id}/images", h.ListImages)
		r.Post("/{id}/images", h.UploadImage)
		r.Delete("/{id}/images/{name}", h.DeleteImage)
		r.Put("/{id}/images/{name}/metadata", h.UpdateImageMetadata)

		r.Get("/{id}/notes", h.ListNotes)
		r.Post("/{id}/notes", h.CreateNote)
		r.Get("/{id}/notes/{name}", h.GetNote)
		r.Put("/{id}/notes/{name}", h.UpdateNote)
		r.Delete("/{id}/notes/{name}", h.DeleteNote)

		r.Get("/{id}/links", h.ListLinks)
		r.Post("/{id}/links", h.CreateLink)
		r.Put("/{id}/links/{linkID}", h.UpdateLink)
		r.Delete("/{id}/links/{linkID}", h.DeleteLink)
	})

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
