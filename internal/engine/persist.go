package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/starford/capsule/internal/checksum"
	"github.com/starford/capsule/internal/keys"
	"github.com/starford/capsule/internal/migrate"
	"github.com/starford/capsule/internal/models"
)

// lockWorkspace serializes writers of one workspace's data file.
func (e *Engine) lockWorkspace(id string) func() {
	e.locksMu.Lock()
	m, ok := e.wsLocks[id]
	if !ok {
		m = &sync.Mutex{}
		e.wsLocks[id] = m
	}
	e.locksMu.Unlock()
	m.Lock()
	return m.Unlock
}

// lockWorkspaces locks several workspaces in a stable order.
func (e *Engine) lockWorkspaces(ids ...string) func() {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	sort.Strings(uniq)
	unlocks := make([]func(), 0, len(uniq))
	for _, id := range uniq {
		unlocks = append(unlocks, e.lockWorkspace(id))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// writeData encodes vertices and writes the data file under ws.Path.
// It returns the checksum of the bytes written.
func (e *Engine) writeData(ws models.Workspace, vertices map[string]models.StoredVertex) (string, error) {
	path := keys.DataFile(ws.Path)
	if path == "" {
		return "", fmt.Errorf("engine: workspace %s has no path", ws.ID)
	}
	data, err := migrate.Encode(migrate.Data{Vertices: vertices})
	if err != nil {
		return "", err
	}
	if err := e.fs.WriteFile(path, data); err != nil {
		return "", fmt.Errorf("engine: write workspace %s data: %w", ws.ID, err)
	}
	return checksum.Sum(data), nil
}

// persistWorkspace writes the data file of ws unless its encoded content
// equals what was last read or written. Must be called with the workspace
// lock held and e.mu released.
func (e *Engine) persistWorkspace(ws models.Workspace, vertices map[string]models.StoredVertex) error {
	data, err := migrate.Encode(migrate.Data{Vertices: vertices})
	if err != nil {
		return err
	}
	sum := checksum.Sum(data)

	e.mu.RLock()
	prev := e.written[ws.ID]
	e.mu.RUnlock()
	if prev == sum {
		e.logger.Debug("engine: data unchanged, skipping write", slog.String("workspace_id", ws.ID))
		return nil
	}

	path := keys.DataFile(ws.Path)
	if path == "" {
		return fmt.Errorf("engine: workspace %s has no path", ws.ID)
	}
	if err := e.fs.WriteFile(path, data); err != nil {
		return fmt.Errorf("engine: write workspace %s data: %w", ws.ID, err)
	}

	e.mu.Lock()
	e.written[ws.ID] = sum
	// Overwriting a corrupt file resolves its load issue.
	delete(e.issues, ws.ID)
	e.mu.Unlock()
	return nil
}

// storedLocked returns the stored form of every vertex of wsID.
// Caller holds e.mu.
func (e *Engine) storedLocked(wsID string) map[string]models.StoredVertex {
	out := make(map[string]models.StoredVertex)
	for id, v := range e.vertices {
		if v.WorkspaceID == wsID {
			out[id] = v.Stored()
		}
	}
	return out
}

// saveCatalog writes the current workspace list to the catalog key.
func (e *Engine) saveCatalog(ctx context.Context) error {
	e.catalogMu.Lock()
	defer e.catalogMu.Unlock()

	e.mu.RLock()
	entries := make([]models.CatalogEntry, 0, len(e.order))
	for _, id := range e.order {
		if ws, ok := e.workspaces[id]; ok {
			entries = append(entries, ws.Entry())
		}
	}
	e.mu.RUnlock()

	return e.catalog.Save(ctx, entries)
}
