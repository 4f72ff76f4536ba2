// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/syndicator/internal/api"
	"github.com/starford/syndicator/internal/contentstore"
	"github.com/starford/syndicator/internal/journal"
	"github.com/starford/syndicator/internal/mcpserver"
	"github.com/starford/syndicator/internal/relay"
	"github.com/starford/syndicator/internal/sse"
	"github.com/starford/syndicator/internal/syndication"
	"github.com/starford/syndicator/internal/watch"
)

// components are the wired services shared by every entry point.
type components struct {
	logger  *slog.Logger
	store   contentstore.Store
	fsStore *contentstore.FS
	engine  *syndication.Engine
	journal *journal.DB
}

func (c *components) Close() {
	if c.journal != nil {
		if err := c.journal.Close(); err != nil {
			c.logger.Warn("journal: close failed", slog.String("error", err.Error()))
		}
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{
		logOutput: os.Stdout,
		version:   "dev",
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// build wires the store, relay, journal and engine. Extra observers receive
// transitions and finished runs after the journal.
func (a *application) build(extra ...syndication.Observer) (*components, error) {
	cfg := a.config

	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("site_url", cfg.Site.URL),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("relay_endpoint", cfg.Relay.Endpoint),
		slog.String("journal_path", cfg.Journal.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c := &components{logger: logger}

	switch cfg.Store.Driver {
	case StoreDriverGitHub:
		gh, err := contentstore.NewGitHub(contentstore.GitHubConfig{
			APIURL:   cfg.Store.GitHub.APIURL,
			Token:    cfg.Store.GitHub.Token,
			Owner:    cfg.Store.GitHub.Owner,
			Repo:     cfg.Store.GitHub.Repo,
			Branch:   cfg.Store.GitHub.Branch,
			PostsDir: cfg.Store.GitHub.PostsDir,
		}, a.httpClient)
		if err != nil {
			return nil, fmt.Errorf("init github store: %w", err)
		}
		c.store = gh
	default:
		fs, err := contentstore.NewFS(cfg.Store.FS.Root, cfg.Store.FS.PostsDir)
		if err != nil {
			return nil, fmt.Errorf("init fs store: %w", err)
		}
		c.store, c.fsStore = fs, fs
	}

	relayOpts := []relay.Option{relay.WithTimeout(cfg.Relay.Timeout)}
	if cfg.Relay.RatePerSecond > 0 {
		relayOpts = append(relayOpts, relay.WithRateLimit(cfg.Relay.RatePerSecond, cfg.Relay.Burst))
	}
	if a.httpClient != nil {
		relayOpts = append(relayOpts, relay.WithHTTPClient(a.httpClient))
	}
	client := relay.NewClient(cfg.Relay.Endpoint, relayOpts...)

	var observers syndication.Observers
	if cfg.Journal.Enabled() {
		db, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("init journal: %w", err)
		}
		c.journal = db
		observers = append(observers, journal.Observer(db, logger))
	}
	observers = append(observers, extra...)

	c.engine = syndication.NewEngine(c.store, client, cfg.Relay.Registry(), cfg.Site.Site(), cfg.Syndication.Engine(),
		syndication.WithLogger(logger),
		syndication.WithObserver(observers),
	)
	return c, nil
}

// history returns the journal as an api.History, or nil when disabled.
func (c *components) history() api.History {
	if c.journal == nil {
		return nil
	}
	return c.journal
}

// Deploy runs the orchestrator once for trig and returns its report.
func Deploy(ctx context.Context, trig syndication.Trigger, opts ...Option) (*syndication.Report, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	c, err := app.build()
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return c.engine.Run(ctx, trig), nil
}

// Syndicate runs the manual runner once.
func Syndicate(ctx context.Context, req syndication.ManualRequest, opts ...Option) (*syndication.Report, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	c, err := app.build()
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return c.engine.Syndicate(ctx, req)
}

// ServeMCP serves the MCP tools on stdin/stdout until the client disconnects.
func ServeMCP(_ context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	c, err := app.build()
	if err != nil {
		return err
	}
	defer c.Close()

	c.logger.Info("mcp: serving on stdio")
	return mcpserver.New(c.engine, app.version).ServeStdio()
}

// Run starts the HTTP server, and the file watcher when it is enabled and
// posts live on disk.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := app.build(broker)
	if err != nil {
		return err
	}
	defer c.Close()
	logger := c.logger

	handler := api.NewHandler(c.engine, c.history(), logger)
	apiRouter := api.NewRouter(handler, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", healthOK)
	r.Get("/health/ready", healthOK)

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled && c.fsStore != nil {
		g.Go(func() error {
			err := watch.Watch(gCtx, c.fsStore.Root(), c.fsStore.PostsDir(), cfg.Watch.Debounce, logger,
				repairOnSave(c.engine, logger))
			if err != nil {
				logger.Error("watcher: stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		handler.Wait()
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// repairOnSave reconciles a saved post's bookkeeping. It never calls the
// relay: publishing only happens after a deploy.
func repairOnSave(eng *syndication.Engine, logger *slog.Logger) watch.Handler {
	return func(ctx context.Context, path string) {
		if _, err := eng.Repair(ctx, syndication.ManualRequest{Post: path}); err != nil {
			logger.Warn("watcher: repair failed", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

func healthOK(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, `{"status":"ok"}`)
}
