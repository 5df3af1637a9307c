// Package engine owns the in-memory workspace and vertex maps, loads them
// lazily from the catalog and the per-workspace data files, and writes every
// mutation back to the single affected workspace.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/capsule/internal/catalog"
	"github.com/starford/capsule/internal/checksum"
	"github.com/starford/capsule/internal/hydrate"
	"github.com/starford/capsule/internal/kvstore"
	"github.com/starford/capsule/internal/legacy"
	"github.com/starford/capsule/internal/migrate"
	"github.com/starford/capsule/internal/models"
	"github.com/starford/capsule/internal/storage"
)

// DirectoryPicker asks the user for a folder. It is opaque to the engine.
type DirectoryPicker interface {
	PickDirectory(ctx context.Context) (string, error)
}

// AssetInitializer prepares a freshly created vertex's asset directory.
type AssetInitializer interface {
	EnsureBaseline(dir string) error
}

// Event describes a completed mutation.
type Event struct {
	Kind        string `json:"kind"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	VertexID    string `json:"vertex_id,omitempty"`
}

// Event kinds.
const (
	EventWorkspaceCreated = "workspace.created"
	EventWorkspaceUpdated = "workspace.updated"
	EventWorkspaceRemoved = "workspace.removed"
	EventVertexCreated    = "vertex.created"
	EventVertexUpdated    = "vertex.updated"
	EventVertexRemoved    = "vertex.removed"
)

// Listener receives events after the mutation has been persisted.
type Listener func(Event)

// PruneResult counts what PruneMissingWorkspaces removed.
type PruneResult struct {
	Workspaces int `json:"workspaces"`
	Vertices   int `json:"vertices"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPicker sets the directory picker used by SelectWorkspaceDirectory.
func WithPicker(p DirectoryPicker) Option {
	return func(e *Engine) { e.picker = p }
}

// WithAssetInitializer sets the hook run for every new vertex.
func WithAssetInitializer(a AssetInitializer) Option {
	return func(e *Engine) { e.assets = a }
}

// WithListener registers a mutation listener.
func WithListener(l Listener) Option {
	return func(e *Engine) { e.listeners = append(e.listeners, l) }
}

// Engine is the persistence engine. Construct one per process with New.
type Engine struct {
	fs        storage.Provider
	kv        kvstore.Store
	catalog   *catalog.Catalog
	logger    *slog.Logger
	now       func() time.Time
	picker    DirectoryPicker
	assets    AssetInitializer
	listeners []Listener

	loadGroup singleflight.Group

	mu         sync.RWMutex
	loaded     bool
	order      []string
	workspaces map[string]*models.Workspace
	vertices   models.Forest
	issues     map[string]string
	written    map[string]string // workspace id -> checksum of the data file bytes last seen

	locksMu   sync.Mutex
	wsLocks   map[string]*sync.Mutex
	catalogMu sync.Mutex
}

// New creates an engine. Nothing is read until the first operation.
func New(fs storage.Provider, kv kvstore.Store, opts ...Option) *Engine {
	e := &Engine{
		fs:         fs,
		kv:         kv,
		logger:     slog.Default(),
		now:        time.Now,
		workspaces: make(map[string]*models.Workspace),
		vertices:   make(models.Forest),
		issues:     make(map[string]string),
		written:    make(map[string]string),
		wsLocks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.catalog = catalog.New(kv, e.logger, e.now)
	return e
}

// EnsureLoaded runs the bootstrap exactly once. Concurrent callers wait for
// the load already in flight. A failed bootstrap is retried by the next call.
func (e *Engine) EnsureLoaded(ctx context.Context) error {
	if e.isLoaded() {
		return nil
	}
	_, err, _ := e.loadGroup.Do("bootstrap", func() (any, error) {
		if e.isLoaded() {
			return nil, nil
		}
		return nil, e.bootstrap(ctx)
	})
	return err
}

func (e *Engine) isLoaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded
}

// LoadIssues returns workspaces whose data file could not be read, keyed by
// workspace id. These loaded as empty and may indicate lost data.
func (e *Engine) LoadIssues(ctx context.Context) (map[string]string, error) {
	if err := e.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]string, len(e.issues))
	for k, v := range e.issues {
		out[k] = v
	}
	return out, nil
}

// workspaceLoad is the outcome of reading one workspace during bootstrap.
type workspaceLoad struct {
	vertices models.Forest
	checksum string
	issue    string
}

func (e *Engine) bootstrap(ctx context.Context) error {
	started := time.Now()

	snap, err := legacy.Scan(ctx, e.kv, e.logger)
	if err != nil {
		return fmt.Errorf("engine: legacy scan: %w", err)
	}
	entries, err := e.catalog.Load(ctx, snap)
	if err != nil {
		return err
	}

	workspaces := make(map[string]*models.Workspace, len(entries))
	order := make([]string, 0, len(entries))
	forest := make(models.Forest)
	issues := make(map[string]string)
	written := make(map[string]string)

	for _, entry := range entries {
		ws := entry.Workspace()
		workspaces[ws.ID] = &ws
		order = append(order, ws.ID)

		res := e.loadWorkspace(ctx, ws, snap)
		for id, v := range res.vertices {
			if other, dup := forest[id]; dup {
				e.logger.Warn("engine: vertex id claimed by two workspaces",
					slog.String("vertex_id", id),
					slog.String("kept", other.WorkspaceID),
					slog.String("dropped", ws.ID))
				continue
			}
			forest[id] = v
		}
		if res.issue != "" {
			issues[ws.ID] = res.issue
		}
		if res.checksum != "" {
			written[ws.ID] = res.checksum
		}
	}

	e.mu.Lock()
	e.workspaces = workspaces
	e.order = order
	e.vertices = forest
	e.issues = issues
	e.written = written
	e.loaded = true
	e.mu.Unlock()

	e.logger.Info("engine: loaded",
		slog.Int("workspaces", len(workspaces)),
		slog.Int("vertices", len(forest)),
		slog.Int("issues", len(issues)),
		slog.Duration("took", time.Since(started)))
	return nil
}

// loadWorkspace reads, migrates and hydrates one cataloged workspace.
// It never fails: unreadable data degrades to the legacy records or to empty.
func (e *Engine) loadWorkspace(ctx context.Context, ws models.Workspace, snap *legacy.Snapshot) workspaceLoad {
	log := e.logger.With(slog.String("workspace_id", ws.ID), slog.String("path", ws.Path))

	data, res, raw, err := migrate.ReadWorkspaceData(e.fs, ws.Path)
	switch {
	case err == nil:
		out := workspaceLoad{
			vertices: hydrate.Hydrate(ws, data.Vertices),
			checksum: checksum.Sum(raw),
		}
		if len(res.Skipped) > 0 {
			// The file is left as is until the next mutation rewrites it.
			log.Warn("engine: skipped unreadable vertices", slog.Any("vertex_ids", res.Skipped))
			out.issue = fmt.Sprintf("unreadable vertices: %s", strings.Join(res.Skipped, ", "))
			return out
		}
		if res.Migrated {
			log.Info("engine: migrating data file",
				slog.String("from", res.Format.String()),
				slog.Int("source_version", res.SourceVersion))
			sum, werr := e.writeData(ws, data.Vertices)
			if werr != nil {
				log.Warn("engine: migration write-back failed", slog.String("error", werr.Error()))
				return out
			}
			out.checksum = sum
		}
		e.purgeLegacy(ctx, ws.ID, snap, log)
		return out

	case errors.Is(err, migrate.ErrCorrupt):
		log.Warn("engine: data file unreadable, loading as empty", slog.String("error", err.Error()))
		// The corrupt file is left in place; only recoverable legacy records are used.
		return workspaceLoad{
			vertices: hydrate.Hydrate(ws, legacyVertices(snap, ws.ID)),
			issue:    "corrupt data file: " + err.Error(),
		}

	default:
		stored := legacyVertices(snap, ws.ID)
		out := workspaceLoad{vertices: hydrate.Hydrate(ws, stored)}
		if _, hasRecord := snap.Workspaces[ws.ID]; len(stored) == 0 && !hasRecord {
			return out
		}
		if _, derr := e.fs.ReadDir(ws.Path); derr != nil {
			// Never recreate a folder that has gone missing; pruning handles it.
			log.Warn("engine: workspace folder unreachable, keeping legacy records", slog.String("error", derr.Error()))
			return out
		}
		sum, werr := e.writeData(ws, stored)
		if werr != nil {
			log.Warn("engine: legacy migration write failed", slog.String("error", werr.Error()))
			return out
		}
		out.checksum = sum
		log.Info("engine: migrated legacy records", slog.Int("vertices", len(stored)))
		e.purgeLegacy(ctx, ws.ID, snap, log)
		return out
	}
}

// legacyVertices returns the legacy records of wsID in the shape they will
// have once written, so memory and the data file agree.
func legacyVertices(snap *legacy.Snapshot, wsID string) map[string]models.StoredVertex {
	return migrate.Normalize(migrate.Data{Vertices: snap.VerticesFor(wsID)}).Vertices
}

func (e *Engine) purgeLegacy(ctx context.Context, wsID string, snap *legacy.Snapshot, log *slog.Logger) {
	if snap.Empty() {
		return
	}
	stored := snap.VerticesFor(wsID)
	_, hasRecord := snap.Workspaces[wsID]
	if len(stored) == 0 && !hasRecord {
		return
	}
	ids := make([]string, 0, len(stored))
	for id := range stored {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if err := legacy.Purge(ctx, e.kv, wsID, ids); err != nil {
		log.Warn("engine: legacy purge failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) emit(ev Event) {
	for _, l := range e.listeners {
		l(ev)
	}
}

// SelectWorkspaceDirectory asks the configured picker for a folder.
// It returns "" when no picker is configured, the user cancels, or the picker fails.
func (e *Engine) SelectWorkspaceDirectory(ctx context.Context) string {
	if e.picker == nil {
		return ""
	}
	dir, err := e.picker.PickDirectory(ctx)
	if err != nil {
		e.logger.Warn("engine: directory picker failed", slog.String("error", err.Error()))
		return ""
	}
	return dir
}
