package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/starford/capsule/internal/apperr"
	"github.com/starford/capsule/internal/hydrate"
	"github.com/starford/capsule/internal/keys"
	"github.com/starford/capsule/internal/models"
)

// CreateVertex adds v to the workspace it resolves to, either through its
// own workspace id or through its ancestors. An empty id is generated.
func (e *Engine) CreateVertex(ctx context.Context, v models.Vertex) (models.Vertex, error) {
	if err := e.EnsureLoaded(ctx); err != nil {
		return models.Vertex{}, err
	}
	rec := v.Clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if err := validateVertex(&rec); err != nil {
		return models.Vertex{}, err
	}

	wsID, err := e.resolve(rec)
	if err != nil {
		return models.Vertex{}, err
	}

	unlock := e.lockWorkspace(wsID)
	defer unlock()

	e.mu.Lock()
	ws, ok := e.workspaces[wsID]
	if !ok {
		e.mu.Unlock()
		return models.Vertex{}, fmt.Errorf("vertex %s: workspace %s: %w", rec.ID, wsID, apperr.ErrMissingLink)
	}
	if _, dup := e.vertices[rec.ID]; dup {
		e.mu.Unlock()
		return models.Vertex{}, fmt.Errorf("vertex %s: %w", rec.ID, apperr.ErrAlreadyExists)
	}
	now := e.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	rec.AssetDirectory = ""
	hydrate.Derive(&rec, *ws)
	live := rec.Clone()
	e.vertices[rec.ID] = &live
	wsCopy := ws.Clone()
	stored := e.storedLocked(wsID)
	e.mu.Unlock()

	if err := e.persistWorkspace(wsCopy, stored); err != nil {
		e.mu.Lock()
		delete(e.vertices, rec.ID)
		e.mu.Unlock()
		return models.Vertex{}, err
	}

	if e.assets != nil && rec.AssetDirectory != "" {
		if err := e.assets.EnsureBaseline(rec.AssetDirectory); err != nil {
			e.logger.Warn("engine: asset baseline failed",
				slog.String("vertex_id", rec.ID), slog.String("error", err.Error()))
		}
	}

	e.emit(Event{Kind: EventVertexCreated, WorkspaceID: wsID, VertexID: rec.ID})
	return rec, nil
}

// Vertices returns the direct children of parentID ordered by creation time.
// An empty parentID yields every root vertex.
func (e *Engine) Vertices(ctx context.Context, parentID string) ([]models.Vertex, error) {
	return e.collect(ctx, func(v *models.Vertex) bool { return v.ParentID == parentID })
}

// AllVertices returns every loaded vertex.
func (e *Engine) AllVertices(ctx context.Context) ([]models.Vertex, error) {
	return e.collect(ctx, func(*models.Vertex) bool { return true })
}

// WorkspaceRootVertices returns the root vertices of one workspace.
func (e *Engine) WorkspaceRootVertices(ctx context.Context, wsID string) ([]models.Vertex, error) {
	return e.collect(ctx, func(v *models.Vertex) bool { return v.IsRoot() && v.WorkspaceID == wsID })
}

// Vertex returns one vertex, or nil when the id is unknown.
func (e *Engine) Vertex(ctx context.Context, id string) (*models.Vertex, error) {
	if err := e.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.vertices[id]
	if !ok {
		return nil, nil
	}
	out := v.Clone()
	return &out, nil
}

// UpdateVertex replaces a vertex. The asset directory is the caller's value
// when set, otherwise the stored one when the vertex stays in its workspace,
// otherwise recomputed from the workspace path.
func (e *Engine) UpdateVertex(ctx context.Context, v models.Vertex) (models.Vertex, error) {
	if err := e.EnsureLoaded(ctx); err != nil {
		return models.Vertex{}, err
	}
	if err := validateVertex(&v); err != nil {
		return models.Vertex{}, err
	}

	e.mu.RLock()
	prev, ok := e.vertices[v.ID]
	if !ok {
		e.mu.RUnlock()
		return models.Vertex{}, fmt.Errorf("vertex %s: %w", v.ID, apperr.ErrNotFound)
	}
	oldWS := prev.WorkspaceID
	newWS := oldWS
	target := v
	if target.IsRoot() && target.WorkspaceID == "" {
		target.WorkspaceID = oldWS
	}
	if resolved, ok := e.vertices.ResolveWorkspace(target); ok {
		newWS = resolved
	}
	_, known := e.workspaces[newWS]
	e.mu.RUnlock()
	if !known {
		return models.Vertex{}, fmt.Errorf("vertex %s: workspace %s: %w", v.ID, newWS, apperr.ErrMissingLink)
	}

	unlock := e.lockWorkspaces(oldWS, newWS)
	defer unlock()

	e.mu.Lock()
	prev, ok = e.vertices[v.ID]
	ws, wsOK := e.workspaces[newWS]
	if !ok || !wsOK {
		e.mu.Unlock()
		return models.Vertex{}, fmt.Errorf("vertex %s: %w", v.ID, apperr.ErrNotFound)
	}
	before := prev.Clone()
	rec := v.Clone()
	rec.WorkspaceID = newWS
	if !prev.CreatedAt.IsZero() {
		rec.CreatedAt = prev.CreatedAt
	}
	rec.UpdatedAt = e.now()
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	if rec.Extra == nil {
		rec.Extra = before.Extra
	}
	switch {
	case rec.AssetDirectory != "":
	case prev.AssetDirectory != "" && newWS == before.WorkspaceID:
		rec.AssetDirectory = prev.AssetDirectory
	default:
		rec.AssetDirectory = keys.AssetDirectory(ws.Path, rec.ID)
	}
	rec.IsCorrupt = rec.AssetDirectory == ""
	live := rec.Clone()
	e.vertices[rec.ID] = &live

	type write struct {
		ws       models.Workspace
		vertices map[string]models.StoredVertex
	}
	writes := []write{{ws: ws.Clone(), vertices: e.storedLocked(newWS)}}
	if before.WorkspaceID != newWS {
		if old, ok := e.workspaces[before.WorkspaceID]; ok {
			writes = append(writes, write{ws: old.Clone(), vertices: e.storedLocked(before.WorkspaceID)})
		}
	}
	e.mu.Unlock()

	for _, w := range writes {
		if err := e.persistWorkspace(w.ws, w.vertices); err != nil {
			e.mu.Lock()
			e.vertices[before.ID] = &before
			e.mu.Unlock()
			return models.Vertex{}, err
		}
	}

	e.emit(Event{Kind: EventVertexUpdated, WorkspaceID: newWS, VertexID: rec.ID})
	return rec, nil
}

// RemoveVertex deletes one vertex record. Children and asset files are left
// in place.
func (e *Engine) RemoveVertex(ctx context.Context, v models.Vertex) error {
	if err := e.EnsureLoaded(ctx); err != nil {
		return err
	}
	if _, err := e.resolve(v); err != nil {
		return err
	}

	e.mu.RLock()
	rec, ok := e.vertices[v.ID]
	var wsID string
	if ok {
		wsID = rec.WorkspaceID
	}
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("vertex %s: %w", v.ID, apperr.ErrNotFound)
	}

	unlock := e.lockWorkspace(wsID)
	defer unlock()

	e.mu.Lock()
	rec, ok = e.vertices[v.ID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("vertex %s: %w", v.ID, apperr.ErrNotFound)
	}
	ws, wsOK := e.workspaces[wsID]
	if !wsOK {
		e.mu.Unlock()
		return fmt.Errorf("vertex %s: workspace %s: %w", v.ID, wsID, apperr.ErrMissingLink)
	}
	delete(e.vertices, v.ID)
	wsCopy := ws.Clone()
	stored := e.storedLocked(wsID)
	e.mu.Unlock()

	if err := e.persistWorkspace(wsCopy, stored); err != nil {
		e.mu.Lock()
		e.vertices[rec.ID] = rec
		e.mu.Unlock()
		return err
	}

	e.emit(Event{Kind: EventVertexRemoved, WorkspaceID: wsID, VertexID: v.ID})
	return nil
}

// resolve finds the workspace of v and checks that it is cataloged.
func (e *Engine) resolve(v models.Vertex) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	wsID, ok := e.vertices.ResolveWorkspace(v)
	if !ok {
		return "", fmt.Errorf("vertex %s: %w", v.ID, apperr.ErrMissingLink)
	}
	if _, known := e.workspaces[wsID]; !known {
		return "", fmt.Errorf("vertex %s: workspace %s: %w", v.ID, wsID, apperr.ErrMissingLink)
	}
	return wsID, nil
}

func (e *Engine) collect(ctx context.Context, keep func(*models.Vertex) bool) ([]models.Vertex, error) {
	if err := e.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	e.mu.RLock()
	out := make([]models.Vertex, 0)
	for _, v := range e.vertices {
		if keep(v) {
			out = append(out, v.Clone())
		}
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
