// Package testutil provides shared test helpers for building stores and engines.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/capsule/internal/assets"
	"github.com/starford/capsule/internal/engine"
	"github.com/starford/capsule/internal/kvstore"
	"github.com/starford/capsule/internal/storage"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestKV creates a temporary SQLite key/value store that is automatically cleaned up.
func TestKV(t *testing.T) *kvstore.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "capsule-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := kvstore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Env is an engine plus the asset store wired to it.
type Env struct {
	KV     *kvstore.DB
	FS     storage.Provider
	Engine *engine.Engine
	Assets *assets.Store
}

// TestEnv builds an engine over a fresh key/value store and the local file system.
func TestEnv(t *testing.T, opts ...engine.Option) *Env {
	t.Helper()
	kv := TestKV(t)
	fs := storage.NewFS()
	store := assets.New(fs, assets.WithLogger(Logger()))
	all := append([]engine.Option{
		engine.WithLogger(Logger()),
		engine.WithAssetInitializer(store),
	}, opts...)
	return &Env{
		KV:     kv,
		FS:     fs,
		Engine: engine.New(fs, kv, all...),
		Assets: store,
	}
}
