package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/capsule/internal/apperr"
	"github.com/starford/capsule/internal/keys"
	"github.com/starford/capsule/internal/kvstore"
	"github.com/starford/capsule/internal/migrate"
	"github.com/starford/capsule/internal/models"
	"github.com/starford/capsule/internal/storage"
)

// countingKV counts key enumerations, which only the bootstrap performs.
type countingKV struct {
	kvstore.Store
	scans atomic.Int32
}

func (c *countingKV) Keys(ctx context.Context) ([]string, error) {
	c.scans.Add(1)
	return c.Store.Keys(ctx)
}

// countingFS counts data file writes per path.
type countingFS struct {
	storage.Provider
	mu     sync.Mutex
	writes map[string]int
}

func (c *countingFS) WriteFile(path string, content []byte) error {
	c.mu.Lock()
	c.writes[path]++
	c.mu.Unlock()
	return c.Provider.WriteFile(path, content)
}

func (c *countingFS) count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[path]
}

type harness struct {
	kv *countingKV
	fs *countingFS
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := kvstore.Open(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &harness{
		kv: &countingKV{Store: db},
		fs: &countingFS{Provider: storage.NewFS(), writes: map[string]int{}},
	}
}

// engine builds a fresh engine over the harness stores. Each call simulates a
// process restart.
func (h *harness) engine(opts ...Option) *Engine {
	var tick atomic.Int64
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		return base.Add(time.Duration(tick.Add(1)) * time.Second)
	}
	all := append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(clock),
	}, opts...)
	return New(h.fs, h.kv, all...)
}

func (h *harness) setJSON(t *testing.T, key string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal %s: %v", key, err)
	}
	if err := h.kv.Set(context.Background(), key, data); err != nil {
		t.Fatalf("Set %s: %v", key, err)
	}
}

func readData(t *testing.T, root string) migrate.Data {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(root, keys.DataFileName))
	if err != nil {
		t.Fatalf("read data file: %v", err)
	}
	var d migrate.Data
	if err := json.Unmarshal(raw, &d); err != nil {
		t.Fatalf("decode data file: %v", err)
	}
	return d
}

// readRawVertices decodes the data file without the vertex model, so keys
// the model does not know are visible.
func readRawVertices(t *testing.T, root string) map[string]map[string]any {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(root, keys.DataFileName))
	if err != nil {
		t.Fatalf("read data file: %v", err)
	}
	var d struct {
		Vertices map[string]map[string]any `json:"vertices"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		t.Fatalf("decode data file: %v", err)
	}
	return d.Vertices
}

func mustWorkspace(t *testing.T, e *Engine, id string) models.Workspace {
	t.Helper()
	ws, err := e.CreateWorkspace(context.Background(), models.Workspace{ID: id, Path: t.TempDir()})
	if err != nil {
		t.Fatalf("CreateWorkspace %s: %v", id, err)
	}
	return ws
}

func mustVertex(t *testing.T, e *Engine, v models.Vertex) models.Vertex {
	t.Helper()
	got, err := e.CreateVertex(context.Background(), v)
	if err != nil {
		t.Fatalf("CreateVertex %s: %v", v.ID, err)
	}
	return got
}

func TestEnsureLoaded_RunsBootstrapOnce(t *testing.T) {
	h := newHarness(t)
	root := t.TempDir()
	h.setJSON(t, keys.WorkspaceKey("w1"), map[string]any{"id": "w1", "name": "One", "path": root})
	h.setJSON(t, keys.VertexKey("r"), map[string]any{"id": "r", "title": "Root", "workspace_id": "w1"})
	e := h.engine()
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.EnsureLoaded(ctx); err != nil {
				t.Errorf("EnsureLoaded: %v", err)
			}
		}()
	}
	wg.Wait()

	if _, err := e.Workspaces(ctx); err != nil {
		t.Fatalf("Workspaces: %v", err)
	}
	if _, err := e.AllVertices(ctx); err != nil {
		t.Fatalf("AllVertices: %v", err)
	}
	if err := e.EnsureLoaded(ctx); err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}

	if got := h.kv.scans.Load(); got != 1 {
		t.Errorf("key scans = %d, want 1", got)
	}
	if got := h.fs.count(filepath.Join(root, keys.DataFileName)); got != 1 {
		t.Errorf("data file writes = %d, want 1", got)
	}
}

func TestCreateVertex_RoundTrip(t *testing.T) {
	h := newHarness(t)
	e := h.engine()
	ctx := context.Background()
	ws := mustWorkspace(t, e, "w1")

	at := time.Date(2025, 5, 4, 3, 2, 1, 0, time.UTC)
	in := models.Vertex{
		ID:               "v1",
		Title:            "Trip",
		Description:      "notes for the trip",
		WorkspaceID:      ws.ID,
		Kind:             "folder",
		Tags:             []string{"travel"},
		CreatedAt:        at,
		UpdatedAt:        at,
		ChildrenBehavior: &models.ChildrenBehavior{ChildKind: "note", Display: "grid"},
		References:       []models.Reference{{Type: "url", URL: "https://example.com"}},
	}
	created := mustVertex(t, e, in)

	got, err := e.Vertex(ctx, "v1")
	if err != nil {
		t.Fatalf("Vertex: %v", err)
	}
	if got == nil {
		t.Fatal("Vertex returned nil")
	}

	want := in.Clone()
	want.AssetDirectory = filepath.Join(ws.Path, "v1")
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("Vertex = %+v, want %+v", *got, want)
	}
	if !reflect.DeepEqual(created, want) {
		t.Errorf("CreateVertex = %+v, want %+v", created, want)
	}

	d := readData(t, ws.Path)
	if d.Version != migrate.CurrentVersion {
		t.Errorf("Version = %d, want %d", d.Version, migrate.CurrentVersion)
	}
	if d.Vertices["v1"].Title != "Trip" {
		t.Errorf("stored title = %q, want Trip", d.Vertices["v1"].Title)
	}

	missing, err := e.Vertex(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("Vertex(nope) = %v, %v; want nil, nil", missing, err)
	}
}

func TestCreateVertex_DuplicateRejected(t *testing.T) {
	h := newHarness(t)
	e := h.engine()
	ctx := context.Background()
	ws := mustWorkspace(t, e, "w1")
	path := filepath.Join(ws.Path, keys.DataFileName)

	mustVertex(t, e, models.Vertex{ID: "v1", Title: "first", WorkspaceID: ws.ID})
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	_, err = e.CreateVertex(ctx, models.Vertex{ID: "v1", Title: "second", WorkspaceID: ws.ID})
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("duplicate: err = %v, want ErrAlreadyExists", err)
	}

	got, err := e.Vertex(ctx, "v1")
	if err != nil {
		t.Fatalf("Vertex: %v", err)
	}
	if got.Title != "first" {
		t.Errorf("Title = %q, want first", got.Title)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(before) != string(after) {
		t.Error("rejected create changed the data file")
	}
}

func TestCreateWorkspace_DuplicateRejected(t *testing.T) {
	h := newHarness(t)
	e := h.engine()
	ctx := context.Background()
	ws := mustWorkspace(t, e, "w1")

	_, err := e.CreateWorkspace(ctx, models.Workspace{ID: "w1", Path: t.TempDir()})
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("duplicate: err = %v, want ErrAlreadyExists", err)
	}

	all, err := e.Workspaces(ctx)
	if err != nil {
		t.Fatalf("Workspaces: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len(Workspaces) = %d, want 1", len(all))
	}
	if all[0].Path != ws.Path {
		t.Errorf("Path = %q, want %q", all[0].Path, ws.Path)
	}
}

func TestCreateWorkspace_Defaults(t *testing.T) {
	h := newHarness(t)
	e := h.engine()
	root := filepath.Join(t.TempDir(), "Holiday Plans")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	ws, err := e.CreateWorkspace(context.Background(), models.Workspace{Path: root})
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	if ws.ID == "" {
		t.Error("no id generated")
	}
	if ws.Name != "Holiday Plans" {
		t.Errorf("Name = %q, want Holiday Plans", ws.Name)
	}
	if ws.Tags == nil || len(ws.Tags) != 0 {
		t.Errorf("Tags = %#v, want empty slice", ws.Tags)
	}
	if ws.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
	if v := readData(t, root).Version; v != migrate.CurrentVersion {
		t.Errorf("data file version = %d, want %d", v, migrate.CurrentVersion)
	}

	_, err = e.CreateWorkspace(context.Background(), models.Workspace{ID: "x"})
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("no path: err = %v, want ErrInvalid", err)
	}
}

func TestCreateWorkspace_AdoptsExistingFolder(t *testing.T) {
	h := newHarness(t)
	root := t.TempDir()
	e1 := h.engine()
	ws, err := e1.CreateWorkspace(context.Background(), models.Workspace{ID: "w1", Path: root})
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	mustVertex(t, e1, models.Vertex{ID: "r", WorkspaceID: ws.ID})

	// A second catalog attaching the same folder picks up its vertices.
	h2 := newHarness(t)
	e2 := h2.engine()
	adopted, err := e2.CreateWorkspace(context.Background(), models.Workspace{ID: "w9", Path: root})
	if err != nil {
		t.Fatalf("CreateWorkspace adopt: %v", err)
	}
	if !reflect.DeepEqual(adopted.RootVertexIDs, []string{"r"}) {
		t.Errorf("RootVertexIDs = %v, want [r]", adopted.RootVertexIDs)
	}

	v, err := e2.Vertex(context.Background(), "r")
	if err != nil || v == nil {
		t.Fatalf("Vertex = %v, %v", v, err)
	}
	if v.WorkspaceID != "w9" {
		t.Errorf("WorkspaceID = %q, want w9", v.WorkspaceID)
	}
}

func TestCreateVertex_ResolvesThroughAncestors(t *testing.T) {
	h := newHarness(t)
	e := h.engine()
	ctx := context.Background()
	ws := mustWorkspace(t, e, "w1")

	mustVertex(t, e, models.Vertex{ID: "root", WorkspaceID: ws.ID})
	mustVertex(t, e, models.Vertex{ID: "child", ParentID: "root"})
	grand := mustVertex(t, e, models.Vertex{ID: "grand", ParentID: "child"})

	if grand.WorkspaceID != ws.ID {
		t.Errorf("WorkspaceID = %q, want %q", grand.WorkspaceID, ws.ID)
	}
	if want := filepath.Join(ws.Path, "grand"); grand.AssetDirectory != want {
		t.Errorf("AssetDirectory = %q, want %q", grand.AssetDirectory, want)
	}

	d := readData(t, ws.Path)
	if len(d.Vertices) != 3 {
		t.Errorf("stored %d vertices, want 3", len(d.Vertices))
	}
	if d.Vertices["grand"].ParentID != "child" {
		t.Errorf("stored grand parent = %q, want child", d.Vertices["grand"].ParentID)
	}

	children, err := e.Vertices(ctx, "root")
	if err != nil {
		t.Fatalf("Vertices: %v", err)
	}
	if len(children) != 1 || children[0].ID != "child" {
		t.Errorf("children of root = %+v, want [child]", children)
	}

	roots, err := e.WorkspaceRootVertices(ctx, ws.ID)
	if err != nil {
		t.Fatalf("WorkspaceRootVertices: %v", err)
	}
	if len(roots) != 1 || roots[0].ID != "root" {
		t.Errorf("roots = %+v, want [root]", roots)
	}
}

func TestCreateVertex_MissingLink(t *testing.T) {
	h := newHarness(t)
	e := h.engine()
	ctx := context.Background()
	mustWorkspace(t, e, "w1")

	tests := []struct {
		name string
		v    models.Vertex
	}{
		{"no workspace no parent", models.Vertex{ID: "a"}},
		{"unknown parent", models.Vertex{ID: "b", ParentID: "ghost"}},
		{"unknown workspace", models.Vertex{ID: "c", WorkspaceID: "w404"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.CreateVertex(ctx, tt.v); !errors.Is(err, apperr.ErrMissingLink) {
				t.Errorf("err = %v, want ErrMissingLink", err)
			}
		})
	}

	all, err := e.AllVertices(ctx)
	if err != nil {
		t.Fatalf("AllVertices: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("AllVertices = %+v, want none", all)
	}
}

func TestUpdateWorkspace_RelocationKeepsVerticesConsistent(t *testing.T) {
	h := newHarness(t)
	e := h.engine()
	ctx := context.Background()
	ws := mustWorkspace(t, e, "w1")
	for _, id := range []string{"a", "b"} {
		mustVertex(t, e, models.Vertex{ID: id, WorkspaceID: ws.ID})
	}
	mustVertex(t, e, models.Vertex{ID: "c", ParentID: "a"})

	moved := t.TempDir()
	updated, err := e.UpdateWorkspace(ctx, models.Workspace{ID: ws.ID, Path: moved})
	if err != nil {
		t.Fatalf("UpdateWorkspace: %v", err)
	}
	if updated.Path != moved {
		t.Errorf("Path = %q, want %q", updated.Path, moved)
	}
	if updated.Name != ws.Name {
		t.Errorf("Name = %q, want %q", updated.Name, ws.Name)
	}
	if !reflect.DeepEqual(updated.RootVertexIDs, []string{"a", "b"}) {
		t.Errorf("RootVertexIDs = %v, want [a b]", updated.RootVertexIDs)
	}

	check := func(e *Engine) {
		t.Helper()
		all, err := e.AllVertices(ctx)
		if err != nil {
			t.Fatalf("AllVertices: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("len(AllVertices) = %d, want 3", len(all))
		}
		for _, v := range all {
			if want := filepath.Join(moved, v.ID); v.AssetDirectory != want {
				t.Errorf("%s AssetDirectory = %q, want %q", v.ID, v.AssetDirectory, want)
			}
			if v.WorkspaceID != ws.ID {
				t.Errorf("%s WorkspaceID = %q, want %q", v.ID, v.WorkspaceID, ws.ID)
			}
		}
	}
	check(e)
	if n := len(readData(t, moved).Vertices); n != 3 {
		t.Errorf("moved data file holds %d vertices, want 3", n)
	}

	// A restart reads the new path from the catalog.
	check(h.engine())
}

func TestUpdateWorkspace_MergesFields(t *testing.T) {
	h := newHarness(t)
	e := h.engine()
	ctx := context.Background()
	ws := mustWorkspace(t, e, "w1")
	dataFile := filepath.Join(ws.Path, keys.DataFileName)
	writes := h.fs.count(dataFile)

	updated, err := e.UpdateWorkspace(ctx, models.Workspace{ID: ws.ID, Name: "Renamed", Purpose: "research", Tags: []string{"x"}})
	if err != nil {
		t.Fatalf("UpdateWorkspace: %v", err)
	}
	if updated.Name != "Renamed" || updated.Purpose != "research" {
		t.Errorf("updated = %+v", updated)
	}
	if !reflect.DeepEqual(updated.Tags, []string{"x"}) {
		t.Errorf("Tags = %v, want [x]", updated.Tags)
	}
	if updated.Path != ws.Path {
		t.Errorf("Path = %q, want %q", updated.Path, ws.Path)
	}
	if !updated.UpdatedAt.After(ws.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want after %v", updated.UpdatedAt, ws.UpdatedAt)
	}
	if got := h.fs.count(dataFile); got != writes {
		t.Errorf("metadata-only update wrote the data file (%d writes, want %d)", got, writes)
	}

	_, err = e.UpdateWorkspace(ctx, models.Workspace{ID: "ghost", Name: "x"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("ghost: err = %v, want ErrNotFound", err)
	}
}

func TestPruneMissingWorkspaces(t *testing.T) {
	h := newHarness(t)
	e := h.engine()
	ctx := context.Background()

	keep := mustWorkspace(t, e, "keep")
	gone := mustWorkspace(t, e, "gone")
	mustVertex(t, e, models.Vertex{ID: "k", WorkspaceID: keep.ID})
	for _, id := range []string{"g1", "g2"} {
		mustVertex(t, e, models.Vertex{ID: id, WorkspaceID: gone.ID})
	}
	if err := os.RemoveAll(gone.Path); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}

	res, err := e.PruneMissingWorkspaces(ctx)
	if err != nil {
		t.Fatalf("PruneMissingWorkspaces: %v", err)
	}
	if want := (PruneResult{Workspaces: 1, Vertices: 2}); res != want {
		t.Errorf("PruneResult = %+v, want %+v", res, want)
	}

	all, err := e.AllVertices(ctx)
	if err != nil {
		t.Fatalf("AllVertices: %v", err)
	}
	if len(all) != 1 || all[0].ID != "k" {
		t.Errorf("AllVertices = %+v, want [k]", all)
	}

	restarted, err := h.engine().Workspaces(ctx)
	if err != nil {
		t.Fatalf("Workspaces after restart: %v", err)
	}
	if len(restarted) != 1 || restarted[0].ID != "keep" {
		t.Errorf("Workspaces after restart = %+v, want [keep]", restarted)
	}
	if _, err := os.Stat(gone.Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("pruning recreated the folder: %v", err)
	}

	again, err := e.PruneMissingWorkspaces(ctx)
	if err != nil {
		t.Fatalf("second prune: %v", err)
	}
	if again != (PruneResult{}) {
		t.Errorf("second prune = %+v, want zero", again)
	}
}

func TestRemoveWorkspace(t *testing.T) {
	h := newHarness(t)
	e := h.engine()
	ctx := context.Background()
	ws := mustWorkspace(t, e, "w1")
	mustVertex(t, e, models.Vertex{ID: "a", WorkspaceID: ws.ID})

	n, err := e.RemoveWorkspace(ctx, ws.ID)
	if err != nil {
		t.Fatalf("RemoveWorkspace: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d vertices, want 1", n)
	}

	got, err := e.Workspace(ctx, ws.ID)
	if err != nil || got != nil {
		t.Errorf("Workspace after remove = %v, %v; want nil, nil", got, err)
	}
	if _, err := os.Stat(filepath.Join(ws.Path, keys.DataFileName)); err != nil {
		t.Errorf("data file on disk was touched: %v", err)
	}

	if _, err := e.RemoveWorkspace(ctx, ws.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second remove: err = %v, want ErrNotFound", err)
	}
}

func TestUpdateVertex(t *testing.T) {
	h := newHarness(t)
	e := h.engine()
	ctx := context.Background()
	ws := mustWorkspace(t, e, "w1")
	orig := mustVertex(t, e, models.Vertex{ID: "a", Title: "old", WorkspaceID: ws.ID})

	t.Run("keeps stored asset directory", func(t *testing.T) {
		v := orig.Clone()
		v.Title = "new"
		v.AssetDirectory = ""
		got, err := e.UpdateVertex(ctx, v)
		if err != nil {
			t.Fatalf("UpdateVertex: %v", err)
		}
		if got.Title != "new" {
			t.Errorf("Title = %q, want new", got.Title)
		}
		if got.AssetDirectory != orig.AssetDirectory {
			t.Errorf("AssetDirectory = %q, want %q", got.AssetDirectory, orig.AssetDirectory)
		}
		if !got.CreatedAt.Equal(orig.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, orig.CreatedAt)
		}
		if !got.UpdatedAt.After(orig.UpdatedAt) {
			t.Errorf("UpdatedAt = %v, want after %v", got.UpdatedAt, orig.UpdatedAt)
		}
		if got.IsCorrupt {
			t.Error("vertex marked corrupt")
		}
		if title := readData(t, ws.Path).Vertices["a"].Title; title != "new" {
			t.Errorf("stored title = %q, want new", title)
		}
	})

	t.Run("caller value wins", func(t *testing.T) {
		v := orig.Clone()
		v.AssetDirectory = "/elsewhere/a"
		got, err := e.UpdateVertex(ctx, v)
		if err != nil {
			t.Fatalf("UpdateVertex: %v", err)
		}
		if got.AssetDirectory != "/elsewhere/a" {
			t.Errorf("AssetDirectory = %q, want /elsewhere/a", got.AssetDirectory)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := e.UpdateVertex(ctx, models.Vertex{ID: "ghost", WorkspaceID: ws.ID})
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestRemoveVertex(t *testing.T) {
	h := newHarness(t)
	e := h.engine()
	ctx := context.Background()
	ws := mustWorkspace(t, e, "w1")
	root := mustVertex(t, e, models.Vertex{ID: "a", WorkspaceID: ws.ID})
	mustVertex(t, e, models.Vertex{ID: "b", ParentID: "a"})

	if err := e.RemoveVertex(ctx, root); err != nil {
		t.Fatalf("RemoveVertex: %v", err)
	}
	got, err := e.Vertex(ctx, "a")
	if err != nil || got != nil {
		t.Errorf("Vertex(a) = %v, %v; want nil, nil", got, err)
	}
	d := readData(t, ws.Path)
	if _, ok := d.Vertices["a"]; ok {
		t.Error("a still stored")
	}
	if _, ok := d.Vertices["b"]; !ok {
		t.Error("child b was removed with its parent")
	}

	if err := e.RemoveVertex(ctx, models.Vertex{ID: "zzz", WorkspaceID: ws.ID}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown id: err = %v, want ErrNotFound", err)
	}
	if err := e.RemoveVertex(ctx, models.Vertex{ID: "zzz"}); !errors.Is(err, apperr.ErrMissingLink) {
		t.Errorf("unresolvable: err = %v, want ErrMissingLink", err)
	}
}

func TestBootstrap_MigratesLegacyRecords(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	root := t.TempDir()
	h.setJSON(t, keys.WorkspaceKey("w1"), map[string]any{"id": "w1", "name": "Legacy", "path": root})
	h.setJSON(t, keys.VertexKey("r"), map[string]any{
		"id": "r", "title": "Root", "workspace_id": "w1", "asset_directory": "/stale/r",
	})
	h.setJSON(t, keys.VertexKey("c"), map[string]any{"id": "c", "title": "Child", "parent_id": "r"})

	e := h.engine()
	all, err := e.AllVertices(ctx)
	if err != nil {
		t.Fatalf("AllVertices: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(AllVertices) = %d, want 2", len(all))
	}
	for _, v := range all {
		if v.WorkspaceID != "w1" {
			t.Errorf("%s WorkspaceID = %q, want w1", v.ID, v.WorkspaceID)
		}
		if want := filepath.Join(root, v.ID); v.AssetDirectory != want {
			t.Errorf("%s AssetDirectory = %q, want %q", v.ID, v.AssetDirectory, want)
		}
	}

	d := readData(t, root)
	if d.Version != migrate.CurrentVersion {
		t.Errorf("Version = %d, want %d", d.Version, migrate.CurrentVersion)
	}
	if len(d.Vertices) != 2 {
		t.Errorf("stored %d vertices, want 2", len(d.Vertices))
	}

	remaining, err := h.kv.Store.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if !reflect.DeepEqual(remaining, []string{keys.CatalogKey}) {
		t.Errorf("keys after purge = %v, want [%s]", remaining, keys.CatalogKey)
	}

	// The second start reads the data file only.
	restarted, err := h.engine().AllVertices(ctx)
	if err != nil {
		t.Fatalf("AllVertices after restart: %v", err)
	}
	if len(restarted) != 2 {
		t.Errorf("len(AllVertices) after restart = %d, want 2", len(restarted))
	}
}

func TestBootstrap_LegacyUnknownFieldsSurvivePurge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	root := t.TempDir()
	h.setJSON(t, keys.WorkspaceKey("w1"), map[string]any{"id": "w1", "name": "Legacy", "path": root})
	h.setJSON(t, keys.VertexKey("r"), map[string]any{
		"id":               "r",
		"title":            "Root",
		"workspace_id":     "w1",
		"children_ids":     []string{"c"},
		"reference_groups": map[string]any{"reading": []string{"c"}},
	})
	h.setJSON(t, keys.VertexKey("c"), map[string]any{"id": "c", "title": "Child", "parent_id": "r", "created_at": ""})

	e := h.engine()
	if err := e.EnsureLoaded(ctx); err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	remaining, err := h.kv.Store.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if !reflect.DeepEqual(remaining, []string{keys.CatalogKey}) {
		t.Fatalf("legacy keys not purged: %v", remaining)
	}

	check := func(when string) {
		t.Helper()
		raw, err := os.ReadFile(filepath.Join(root, keys.DataFileName))
		if err != nil {
			t.Fatalf("%s: read data file: %v", when, err)
		}
		if strings.Contains(string(raw), "0001-01-01") {
			t.Errorf("%s: zero timestamp written:\n%s", when, raw)
		}
		r := readRawVertices(t, root)["r"]
		if got, want := r["children_ids"], []any{"c"}; !reflect.DeepEqual(got, want) {
			t.Errorf("%s: children_ids = %v, want %v", when, got, want)
		}
		if got, want := r["reference_groups"], map[string]any{"reading": []any{"c"}}; !reflect.DeepEqual(got, want) {
			t.Errorf("%s: reference_groups = %v, want %v", when, got, want)
		}
		if _, ok := r["workspace_id"]; ok {
			t.Errorf("%s: derived workspace_id stored", when)
		}
	}
	check("after migration")

	c, err := e.Vertex(ctx, "c")
	if err != nil || c == nil {
		t.Fatalf("Vertex(c) = %v, %v", c, err)
	}
	if c.CreatedAt.IsZero() || c.UpdatedAt.IsZero() {
		t.Errorf("c timestamps = %v / %v, want backfilled", c.CreatedAt, c.UpdatedAt)
	}

	// An update that does not know about the extra keys keeps them.
	if _, err := e.UpdateVertex(ctx, models.Vertex{ID: "r", Title: "Renamed", WorkspaceID: "w1"}); err != nil {
		t.Fatalf("UpdateVertex: %v", err)
	}
	check("after update")

	// And so does a restart that reads the migrated file.
	if _, err := h.engine().AllVertices(ctx); err != nil {
		t.Fatalf("AllVertices after restart: %v", err)
	}
	check("after restart")
}

func TestBootstrap_UpgradesUnversionedFile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	root := t.TempDir()
	h.setJSON(t, keys.CatalogKey, []map[string]any{{"id": "w1", "name": "W", "path": root}})
	err := os.WriteFile(filepath.Join(root, keys.DataFileName),
		[]byte(`{"workspace": {"id": "w1"}, "vertices": {"v": {"title": "V"}}}`), 0o644)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	e := h.engine()
	v, err := e.Vertex(ctx, "v")
	if err != nil || v == nil {
		t.Fatalf("Vertex = %v, %v", v, err)
	}
	if v.Title != "V" {
		t.Errorf("Title = %q, want V", v.Title)
	}

	d := readData(t, root)
	if d.Version != migrate.CurrentVersion {
		t.Errorf("Version = %d, want %d", d.Version, migrate.CurrentVersion)
	}
	if d.Vertices["v"].ID != "v" {
		t.Errorf("stored id = %q, want v", d.Vertices["v"].ID)
	}
}

func TestBootstrap_UnreadableVertexKeepsTheRest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	root := t.TempDir()
	path := filepath.Join(root, keys.DataFileName)
	h.setJSON(t, keys.CatalogKey, []map[string]any{{"id": "w1", "name": "W", "path": root}})
	content := `{"version": 2, "vertices": {"a": {"title": "A"}, "b": {"title": "B", "created_at": ""}, "c": {"title": ["x"]}}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	e := h.engine()
	all, err := e.AllVertices(ctx)
	if err != nil {
		t.Fatalf("AllVertices: %v", err)
	}
	ids := make([]string, 0, len(all))
	for _, v := range all {
		ids = append(ids, v.ID)
	}
	sort.Strings(ids)
	if !reflect.DeepEqual(ids, []string{"a", "b"}) {
		t.Errorf("loaded ids = %v, want [a b]", ids)
	}

	issues, err := e.LoadIssues(ctx)
	if err != nil {
		t.Fatalf("LoadIssues: %v", err)
	}
	if want := "unreadable vertices: c"; issues["w1"] != want {
		t.Errorf("issue = %q, want %q", issues["w1"], want)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(raw) != content {
		t.Errorf("data file rewritten at load:\n%s", raw)
	}
}

func TestBootstrap_CorruptFileIsReportedNotOverwritten(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	root := t.TempDir()
	path := filepath.Join(root, keys.DataFileName)
	h.setJSON(t, keys.CatalogKey, []map[string]any{{"id": "w1", "name": "W", "path": root}})
	if err := os.WriteFile(path, []byte(`{not json`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	e := h.engine()
	issues, err := e.LoadIssues(ctx)
	if err != nil {
		t.Fatalf("LoadIssues: %v", err)
	}
	if _, ok := issues["w1"]; !ok {
		t.Errorf("issues = %v, want an entry for w1", issues)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(raw) != `{not json` {
		t.Errorf("corrupt file overwritten: %q", raw)
	}

	all, err := e.AllVertices(ctx)
	if err != nil {
		t.Fatalf("AllVertices: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("AllVertices = %+v, want none", all)
	}
}

func TestPersist_SkipsIdenticalContent(t *testing.T) {
	h := newHarness(t)
	e := h.engine()
	ws := mustWorkspace(t, e, "w1")
	path := filepath.Join(ws.Path, keys.DataFileName)
	before := h.fs.count(path)

	stored := map[string]models.StoredVertex{"a": {ID: "a", Title: "A", CreatedAt: time.Unix(1, 0).UTC(), UpdatedAt: time.Unix(1, 0).UTC()}}
	if err := e.persistWorkspace(ws, stored); err != nil {
		t.Fatalf("persistWorkspace: %v", err)
	}
	if err := e.persistWorkspace(ws, stored); err != nil {
		t.Fatalf("persistWorkspace again: %v", err)
	}
	if got := h.fs.count(path); got != before+1 {
		t.Errorf("writes = %d, want %d", got, before+1)
	}
}

type stubPicker struct {
	dir string
	err error
}

func (p stubPicker) PickDirectory(context.Context) (string, error) { return p.dir, p.err }

func TestSelectWorkspaceDirectory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if got := h.engine().SelectWorkspaceDirectory(ctx); got != "" {
		t.Errorf("no picker = %q, want empty", got)
	}
	if got := h.engine(WithPicker(stubPicker{dir: "/picked"})).SelectWorkspaceDirectory(ctx); got != "/picked" {
		t.Errorf("picked = %q, want /picked", got)
	}
	if got := h.engine(WithPicker(stubPicker{err: errors.New("cancelled")})).SelectWorkspaceDirectory(ctx); got != "" {
		t.Errorf("failing picker = %q, want empty", got)
	}
}

type recordingInit struct{ dirs []string }

func (r *recordingInit) EnsureBaseline(dir string) error {
	r.dirs = append(r.dirs, dir)
	return nil
}

func TestCreateVertex_HooksAndEvents(t *testing.T) {
	h := newHarness(t)
	hook := &recordingInit{}
	var events []Event
	e := h.engine(
		WithAssetInitializer(hook),
		WithListener(func(ev Event) { events = append(events, ev) }),
	)
	ws := mustWorkspace(t, e, "w1")

	v := mustVertex(t, e, models.Vertex{ID: "a", WorkspaceID: ws.ID})

	if !reflect.DeepEqual(hook.dirs, []string{v.AssetDirectory}) {
		t.Errorf("baseline dirs = %v, want [%s]", hook.dirs, v.AssetDirectory)
	}
	want := []Event{
		{Kind: EventWorkspaceCreated, WorkspaceID: "w1"},
		{Kind: EventVertexCreated, WorkspaceID: "w1", VertexID: "a"},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %+v, want %+v", events, want)
	}
}
