package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/capsule/internal/apperr"
	"github.com/starford/capsule/internal/catalog"
	"github.com/starford/capsule/internal/checksum"
	"github.com/starford/capsule/internal/hydrate"
	"github.com/starford/capsule/internal/migrate"
	"github.com/starford/capsule/internal/models"
)

// CreateWorkspace registers a workspace rooted at ws.Path. When the folder
// already holds a data file its vertices are adopted (and migrated if
// needed); otherwise an empty data file is written. An empty id is
// generated; an empty name is taken from the folder name.
func (e *Engine) CreateWorkspace(ctx context.Context, ws models.Workspace) (models.Workspace, error) {
	if err := e.EnsureLoaded(ctx); err != nil {
		return models.Workspace{}, err
	}
	ws = ws.Clone()
	if ws.ID == "" {
		ws.ID = uuid.NewString()
	}
	if err := validateWorkspace(&ws); err != nil {
		return models.Workspace{}, err
	}
	if strings.TrimSpace(ws.Name) == "" {
		ws.Name = catalog.NameFromPath(ws.Path)
	}
	now := e.now()
	if ws.CreatedAt.IsZero() {
		ws.CreatedAt = now
	}
	if ws.UpdatedAt.IsZero() {
		ws.UpdatedAt = now
	}
	ws.RootVertexIDs = nil

	unlock := e.lockWorkspace(ws.ID)
	defer unlock()

	if e.hasWorkspace(ws.ID) {
		return models.Workspace{}, fmt.Errorf("workspace %s: %w", ws.ID, apperr.ErrAlreadyExists)
	}

	forest := make(models.Forest)
	var sum, issue string
	var pending map[string]models.StoredVertex
	data, res, raw, err := migrate.ReadWorkspaceData(e.fs, ws.Path)
	switch {
	case err == nil:
		forest = hydrate.Hydrate(ws, data.Vertices)
		sum = checksum.Sum(raw)
		if res.Migrated {
			pending = data.Vertices
		}
	case errors.Is(err, migrate.ErrCorrupt):
		e.logger.Warn("engine: existing data file unreadable, attaching as empty",
			slog.String("workspace_id", ws.ID), slog.String("error", err.Error()))
		issue = "corrupt data file: " + err.Error()
	default:
		pending = map[string]models.StoredVertex{}
	}

	e.mu.Lock()
	if _, exists := e.workspaces[ws.ID]; exists {
		e.mu.Unlock()
		return models.Workspace{}, fmt.Errorf("workspace %s: %w", ws.ID, apperr.ErrAlreadyExists)
	}
	stored := ws.Clone()
	e.workspaces[ws.ID] = &stored
	e.order = append(e.order, ws.ID)
	for id, v := range forest {
		if other, dup := e.vertices[id]; dup {
			e.logger.Warn("engine: adopted vertex id already in use",
				slog.String("vertex_id", id), slog.String("owner", other.WorkspaceID))
			continue
		}
		e.vertices[id] = v
	}
	if sum != "" {
		e.written[ws.ID] = sum
	}
	if issue != "" {
		e.issues[ws.ID] = issue
	}
	e.mu.Unlock()

	if pending != nil {
		if err := e.persistWorkspace(ws, pending); err != nil {
			e.dropWorkspace(ws.ID)
			return models.Workspace{}, err
		}
	}
	if err := e.saveCatalog(ctx); err != nil {
		e.dropWorkspace(ws.ID)
		return models.Workspace{}, err
	}

	e.logger.Info("engine: workspace created",
		slog.String("workspace_id", ws.ID), slog.String("path", ws.Path), slog.Int("adopted", len(forest)))
	e.emit(Event{Kind: EventWorkspaceCreated, WorkspaceID: ws.ID})
	return e.workspaceView(ws.ID), nil
}

// Workspaces returns every cataloged workspace in catalog order.
func (e *Engine) Workspaces(ctx context.Context) ([]models.Workspace, error) {
	if err := e.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.Workspace, 0, len(e.order))
	for _, id := range e.order {
		if _, ok := e.workspaces[id]; ok {
			out = append(out, e.workspaceViewLocked(id))
		}
	}
	return out, nil
}

// Workspace returns one workspace, or nil when the id is unknown.
func (e *Engine) Workspace(ctx context.Context, id string) (*models.Workspace, error) {
	if err := e.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, ok := e.workspaces[id]; !ok {
		return nil, nil
	}
	ws := e.workspaceViewLocked(id)
	return &ws, nil
}

// UpdateWorkspace merges the non-empty fields of ws into the stored
// workspace. A changed path relocates every vertex's asset directory and
// rewrites the data file under the new root.
func (e *Engine) UpdateWorkspace(ctx context.Context, ws models.Workspace) (models.Workspace, error) {
	if err := e.EnsureLoaded(ctx); err != nil {
		return models.Workspace{}, err
	}
	unlock := e.lockWorkspace(ws.ID)
	defer unlock()

	e.mu.Lock()
	prev, ok := e.workspaces[ws.ID]
	if !ok {
		e.mu.Unlock()
		return models.Workspace{}, fmt.Errorf("workspace %s: %w", ws.ID, apperr.ErrNotFound)
	}
	merged := prev.Clone()
	if ws.Name != "" {
		merged.Name = ws.Name
	}
	if ws.Path != "" {
		merged.Path = ws.Path
	}
	if ws.Purpose != "" {
		merged.Purpose = ws.Purpose
	}
	if ws.Tags != nil {
		merged.Tags = append([]string{}, ws.Tags...)
	}
	merged.RootVertexIDs = nil
	merged.UpdatedAt = e.now()
	relocated := merged.Path != prev.Path

	before := prev.Clone()
	e.workspaces[ws.ID] = &merged
	var vertices map[string]models.StoredVertex
	if relocated {
		for _, v := range e.vertices {
			if v.WorkspaceID == ws.ID {
				hydrate.Derive(v, merged)
			}
		}
		// The new folder has not been written by us yet.
		delete(e.written, ws.ID)
		delete(e.issues, ws.ID)
		vertices = e.storedLocked(ws.ID)
	}
	e.mu.Unlock()

	if relocated {
		if err := e.persistWorkspace(merged, vertices); err != nil {
			e.restoreWorkspace(before)
			return models.Workspace{}, err
		}
	}
	if err := e.saveCatalog(ctx); err != nil {
		return models.Workspace{}, err
	}

	if relocated {
		e.logger.Info("engine: workspace relocated",
			slog.String("workspace_id", ws.ID), slog.String("from", before.Path), slog.String("to", merged.Path))
	}
	e.emit(Event{Kind: EventWorkspaceUpdated, WorkspaceID: ws.ID})
	return e.workspaceView(ws.ID), nil
}

// RemoveWorkspace drops the workspace and all of its vertices from the
// catalog and memory. Files on disk are left alone. It returns the number of
// vertices removed.
func (e *Engine) RemoveWorkspace(ctx context.Context, id string) (int, error) {
	if err := e.EnsureLoaded(ctx); err != nil {
		return 0, err
	}
	unlock := e.lockWorkspace(id)
	defer unlock()

	if !e.hasWorkspace(id) {
		return 0, fmt.Errorf("workspace %s: %w", id, apperr.ErrNotFound)
	}
	removed := e.dropWorkspace(id)
	if err := e.saveCatalog(ctx); err != nil {
		return removed, err
	}
	e.logger.Info("engine: workspace removed", slog.String("workspace_id", id), slog.Int("vertices", removed))
	e.emit(Event{Kind: EventWorkspaceRemoved, WorkspaceID: id})
	return removed, nil
}

// PruneMissingWorkspaces removes every workspace whose folder can no longer
// be listed, together with its vertices.
func (e *Engine) PruneMissingWorkspaces(ctx context.Context) (PruneResult, error) {
	if err := e.EnsureLoaded(ctx); err != nil {
		return PruneResult{}, err
	}

	type candidate struct{ id, path string }
	e.mu.RLock()
	all := make([]candidate, 0, len(e.order))
	for _, id := range e.order {
		if ws, ok := e.workspaces[id]; ok {
			all = append(all, candidate{id: id, path: ws.Path})
		}
	}
	e.mu.RUnlock()

	var res PruneResult
	var pruned []string
	for _, c := range all {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		_, err := e.fs.ReadDir(c.path)
		if err == nil {
			continue
		}
		e.logger.Info("engine: pruning unreachable workspace",
			slog.String("workspace_id", c.id), slog.String("path", c.path), slog.String("error", err.Error()))
		unlock := e.lockWorkspace(c.id)
		if e.hasWorkspace(c.id) {
			res.Vertices += e.dropWorkspace(c.id)
			res.Workspaces++
			pruned = append(pruned, c.id)
		}
		unlock()
	}
	if res.Workspaces == 0 {
		return res, nil
	}
	if err := e.saveCatalog(ctx); err != nil {
		return res, err
	}
	for _, id := range pruned {
		e.emit(Event{Kind: EventWorkspaceRemoved, WorkspaceID: id})
	}
	return res, nil
}

func (e *Engine) hasWorkspace(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.workspaces[id]
	return ok
}

// dropWorkspace removes a workspace and its vertices from memory and returns
// the number of vertices dropped.
func (e *Engine) dropWorkspace(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.workspaces, id)
	delete(e.written, id)
	delete(e.issues, id)
	for i, wid := range e.order {
		if wid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	n := 0
	for vid, v := range e.vertices {
		if v.WorkspaceID == id {
			delete(e.vertices, vid)
			n++
		}
	}
	return n
}

// restoreWorkspace puts back a workspace record after a failed relocation.
func (e *Engine) restoreWorkspace(ws models.Workspace) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workspaces[ws.ID] = &ws
	for _, v := range e.vertices {
		if v.WorkspaceID == ws.ID {
			hydrate.Derive(v, ws)
		}
	}
}

func (e *Engine) workspaceView(id string) models.Workspace {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.workspaceViewLocked(id)
}

// workspaceViewLocked copies a workspace and fills its derived root ids.
func (e *Engine) workspaceViewLocked(id string) models.Workspace {
	stored, ok := e.workspaces[id]
	if !ok {
		return models.Workspace{}
	}
	ws := stored.Clone()
	roots := []string{}
	for vid, v := range e.vertices {
		if v.WorkspaceID == id && v.IsRoot() {
			roots = append(roots, vid)
		}
	}
	sort.Strings(roots)
	ws.RootVertexIDs = roots
	return ws
}
