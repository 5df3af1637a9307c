// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/capsule/internal/api"
	"github.com/starford/capsule/internal/assets"
	"github.com/starford/capsule/internal/engine"
	"github.com/starford/capsule/internal/kvstore"
	"github.com/starford/capsule/internal/mcpserver"
	"github.com/starford/capsule/internal/sse"
	"github.com/starford/capsule/internal/storage"
	"github.com/starford/capsule/internal/watch"
)

// core is the storage stack shared by every entry point.
type core struct {
	kv     *kvstore.DB
	engine *engine.Engine
	assets *assets.Store
}

func (c *core) Close() error {
	return c.kv.Close()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger builds the structured JSON logger. MCP mode passes stderr so
// stdout stays reserved for the protocol.
func newLogger(cfg *Config, out *os.File) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func openCore(app *application, logger *slog.Logger, extra ...engine.Option) (*core, error) {
	cfg := app.config
	kv, err := kvstore.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	fs := storage.NewFS()
	store := assets.New(fs, assets.WithLogger(logger))

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithAssetInitializer(store),
	}
	switch {
	case app.picker != nil:
		opts = append(opts, engine.WithPicker(app.picker))
	case cfg.Workspaces.DefaultRoot != "":
		opts = append(opts, engine.WithPicker(newFolderPicker(cfg.Workspaces.DefaultRoot)))
	}
	opts = append(opts, extra...)

	return &core{
		kv:     kv,
		engine: engine.New(fs, kv, opts...),
		assets: store,
	}, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(cfg, os.Stdout)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_path", cfg.Store.Path),
		slog.String("default_root", cfg.Workspaces.DefaultRoot),
		slog.Bool("watcher", cfg.Watcher.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(2*time.Second, sse.WithHeartbeat(30*time.Second))
	defer broker.Close()

	// Workspace events ask the watcher to refresh its roots.
	retrack := make(chan struct{}, 1)
	listener := func(ev engine.Event) {
		broker.Notify(sse.Change{Kind: ev.Kind, WorkspaceID: ev.WorkspaceID, VertexID: ev.VertexID})
		if ev.VertexID == "" {
			select {
			case retrack <- struct{}{}:
			default:
			}
		}
	}

	c, err := openCore(app, logger, engine.WithListener(listener))
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.engine.EnsureLoaded(ctx); err != nil {
		return fmt.Errorf("load workspaces: %w", err)
	}
	if issues, err := c.engine.LoadIssues(ctx); err == nil {
		for id, msg := range issues {
			logger.Warn("workspace data file unreadable", slog.String("workspace_id", id), slog.String("error", msg))
		}
	}

	apiRouter := api.NewRouter(c.engine, c.assets, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.engine.EnsureLoaded(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"loading"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watcher.Enabled {
		w, err := watch.New(logger, cfg.Watcher.Debounce, func(n watch.Notice) {
			broker.Publish(sse.Event{Type: n.Kind, Data: sse.Change{WorkspaceID: n.WorkspaceID}})
		})
		if err != nil {
			return fmt.Errorf("init watcher: %w", err)
		}
		track := func() {
			list, err := c.engine.Workspaces(gCtx)
			if err != nil {
				logger.Warn("watch: list workspaces failed", slog.String("error", err.Error()))
				return
			}
			roots := make([]watch.Root, 0, len(list))
			for _, ws := range list {
				roots = append(roots, watch.Root{WorkspaceID: ws.ID, Path: ws.Path})
			}
			w.Track(roots)
		}
		track()

		g.Go(func() error {
			return w.Run(gCtx)
		})
		g.Go(func() error {
			defer w.Close()
			for {
				select {
				case <-gCtx.Done():
					return nil
				case <-retrack:
					track()
				}
			}
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Long-lived SSE streams would otherwise hold Shutdown open.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher goroutines exit with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdio until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, os.Stderr)

	c, err := openCore(app, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.engine.EnsureLoaded(ctx); err != nil {
		return fmt.Errorf("load workspaces: %w", err)
	}
	logger.Info("MCP server starting on stdio")
	return mcpserver.New(c.engine, c.assets).ServeStdio()
}

// Prune removes catalog entries whose folders are gone and reports the counts.
func Prune(ctx context.Context, opts ...Option) (engine.PruneResult, error) {
	app, err := newApplication(opts)
	if err != nil {
		return engine.PruneResult{}, err
	}
	logger := newLogger(app.config, os.Stderr)

	c, err := openCore(app, logger)
	if err != nil {
		return engine.PruneResult{}, err
	}
	defer c.Close()

	return c.engine.PruneMissingWorkspaces(ctx)
}
