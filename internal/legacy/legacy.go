// Package legacy reads the flat ws-<id>.json / vert-<id>.json records that
// predate per-workspace data files. It is a one-way bootstrap adapter: once
// every user has migrated, this package and its call sites can be deleted.
package legacy

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/starford/capsule/internal/keys"
	"github.com/starford/capsule/internal/kvstore"
	"github.com/starford/capsule/internal/models"
)

// Snapshot is every legacy record found in the shared store.
type Snapshot struct {
	Workspaces map[string]models.Workspace
	Vertices   models.Forest
}

// Empty reports whether no legacy records exist.
func (s *Snapshot) Empty() bool {
	return s == nil || (len(s.Workspaces) == 0 && len(s.Vertices) == 0)
}

// Scan enumerates all keys and loads each legacy record. Records that fail to
// decode are skipped with a warning.
func Scan(ctx context.Context, kv kvstore.Store, logger *slog.Logger) (*Snapshot, error) {
	all, err := kv.Keys(ctx)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Workspaces: make(map[string]models.Workspace),
		Vertices:   make(models.Forest),
	}
	for _, key := range all {
		if id, ok := keys.ParseWorkspaceKey(key); ok {
			var ws models.Workspace
			if !load(ctx, kv, key, &ws, logger) {
				continue
			}
			ws.ID = id
			snap.Workspaces[id] = ws
			continue
		}
		if id, ok := keys.ParseVertexKey(key); ok {
			var v models.Vertex
			if !load(ctx, kv, key, &v, logger) {
				continue
			}
			v.ID = id
			snap.Vertices[id] = &v
		}
	}
	return snap, nil
}

// WorkspaceList returns the legacy workspaces ordered by creation time.
func (s *Snapshot) WorkspaceList() []models.Workspace {
	if s == nil {
		return nil
	}
	out := make([]models.Workspace, 0, len(s.Workspaces))
	for _, ws := range s.Workspaces {
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// VerticesFor returns the stored form of every legacy vertex that resolves to
// wsID. Stale workspace_id and asset_directory values are dropped.
func (s *Snapshot) VerticesFor(wsID string) map[string]models.StoredVertex {
	out := make(map[string]models.StoredVertex)
	if s == nil {
		return out
	}
	for id, v := range s.Vertices {
		resolved, ok := s.Vertices.ResolveWorkspace(*v)
		if !ok || resolved != wsID {
			continue
		}
		out[id] = v.Stored()
	}
	return out
}

// Purge deletes the legacy keys of one workspace and the given vertices.
func Purge(ctx context.Context, kv kvstore.Store, wsID string, vertexIDs []string) error {
	del := make([]string, 0, len(vertexIDs)+1)
	del = append(del, keys.WorkspaceKey(wsID))
	for _, id := range vertexIDs {
		del = append(del, keys.VertexKey(id))
	}
	return kvstore.DeleteKeys(ctx, kv, del)
}

func load(ctx context.Context, kv kvstore.Store, key string, dst any, logger *slog.Logger) bool {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil || !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logger.Warn("legacy: skipping unreadable record", slog.String("key", key), slog.String("error", err.Error()))
		return false
	}
	return true
}
