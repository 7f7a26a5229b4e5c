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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notionvault/internal/api"
	"github.com/starford/notionvault/internal/importer"
	"github.com/starford/notionvault/internal/index"
	"github.com/starford/notionvault/internal/materialize"
	"github.com/starford/notionvault/internal/mcpserver"
	"github.com/starford/notionvault/internal/notion"
	"github.com/starford/notionvault/internal/sse"
	"github.com/starford/notionvault/internal/storage"
)

// ErrNoNotionToken is returned by commands that need the Notion API when no
// integration token is configured.
var ErrNoNotionToken = errors.New("notion.token is empty (set NOTION_TOKEN or notion.token in the config file)")

// components are the long-lived pieces every command shares.
type components struct {
	logger   *slog.Logger
	store    *storage.FS
	db       *index.DB
	client   *notion.Client
	importer *importer.Service
}

func (c *components) Close() {
	if err := c.db.Close(); err != nil {
		c.logger.Warn("close index failed", slog.String("error", err.Error()))
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOut: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
}

// open initialises storage, the ledger and the import service. broker may
// be nil when nobody listens for events.
func (a *application) open(logger *slog.Logger, broker *sse.Broker) (*components, error) {
	cfg := a.config

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	// Notes moved or deleted while we were not running are reconciled
	// before anything consults the ledger.
	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	client := notion.New(cfg.Notion.ClientOptions(logger))
	fetcher := importer.NewHTTPFetcher(store, importer.FetcherOptions{
		MaxBytes:   cfg.Import.MaxAssetBytes,
		Timeout:    cfg.Notion.Timeout,
		MaxRetries: cfg.Notion.MaxRetries,
		Logger:     logger,
	})

	opts := []importer.Option{
		importer.WithConfig(cfg.Import.ImporterConfig()),
		importer.WithLogger(logger),
		importer.WithFetcher(fetcher),
		importer.WithMaterializer(materialize.New(client, cfg.Notion.MaterializeOptions(logger))),
	}
	if broker != nil {
		opts = append(opts, importer.WithPublisher(broker))
	}

	return &components{
		logger:   logger,
		store:    store,
		db:       db,
		client:   client,
		importer: importer.New(client, store, db, opts...),
	}, nil
}

func (a *application) requireToken() error {
	if a.config.Notion.Token == "" {
		return ErrNoNotionToken
	}
	return nil
}

// withComponents runs fn against freshly opened components for a one-shot
// command that talks to Notion.
func withComponents[T any](opts []Option, fn func(c *components) (T, error)) (T, error) {
	var zero T
	app, err := newApplication(opts)
	if err != nil {
		return zero, err
	}
	if err := app.requireToken(); err != nil {
		return zero, err
	}
	c, err := app.open(app.newLogger(), nil)
	if err != nil {
		return zero, err
	}
	defer c.Close()
	return fn(c)
}

// RunImport performs one import and returns its report.
func RunImport(ctx context.Context, sel importer.Selection, opts ...Option) (*importer.Report, error) {
	return withComponents(opts, func(c *components) (*importer.Report, error) {
		return c.importer.Import(ctx, sel)
	})
}

// RunRefresh re-imports every ledger page that changed in Notion.
func RunRefresh(ctx context.Context, opts ...Option) (*importer.Report, error) {
	return withComponents(opts, func(c *components) (*importer.Report, error) {
		return c.importer.Refresh(ctx)
	})
}

// RunPreview renders a page without writing it.
func RunPreview(ctx context.Context, pageID string, opts ...Option) (*importer.Preview, error) {
	return withComponents(opts, func(c *components) (*importer.Preview, error) {
		return c.importer.Preview(ctx, pageID)
	})
}

// RunSearch lists the pages and databases shared with the integration.
func RunSearch(ctx context.Context, query string, opts ...Option) (notion.SearchResult, error) {
	return withComponents(opts, func(c *components) (notion.SearchResult, error) {
		return c.importer.Search(ctx, query)
	})
}

// RunCheck verifies the integration token and returns the bot name.
func RunCheck(ctx context.Context, opts ...Option) (string, error) {
	return withComponents(opts, func(c *components) (string, error) {
		return c.client.Ping(ctx)
	})
}

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects
// or ctx is cancelled.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if err := app.requireToken(); err != nil {
		return err
	}
	logger := app.newLogger()
	c, err := app.open(logger, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	logger.Info("MCP server starting on stdio", slog.String("version", app.version))
	return mcpserver.New(c.importer, app.version).Serve(ctx, os.Stdin, os.Stdout)
}

// Run starts the HTTP server, the vault watcher and, if configured, a
// refresh of changed pages.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := app.newLogger()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("import_folder", cfg.Import.Folder),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if app.requireToken() != nil {
		logger.Warn("notion.token is empty; searches and imports will fail until it is set")
	}

	broker := sse.NewBroker(sse.WithProgressInterval(500 * time.Millisecond))
	defer broker.Close()

	c, err := app.open(logger, broker)
	if err != nil {
		return err
	}
	defer c.Close()

	g, gCtx := errgroup.WithContext(ctx)

	apiRouter := api.NewRouter(c.importer, api.Options{
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		Events:      broker,
		Files:       c.store,
		BaseContext: gCtx,
		Logger:      logger,
	})

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
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if app.requireToken() != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"notion token missing"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Vault watcher feeding SSE.
	g.Go(func() error {
		w := index.NewWatcher(c.db, c.store, c.store.Root(),
			index.WithWatchLogger(logger),
			index.WithOnChange(broker.PublishVaultEvent),
			index.WithIgnoredDirs(cfg.Import.AttachmentsDir),
		)
		if err := w.Run(gCtx); err != nil {
			logger.Error("vault watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	if cfg.Import.RefreshOnStart && app.requireToken() == nil {
		g.Go(func() error {
			rep, err := c.importer.Refresh(gCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("startup refresh failed", slog.String("error", err.Error()))
				return nil
			}
			if rep != nil {
				logger.Info("startup refresh done",
					slog.Int("imported", rep.Imported),
					slog.Int("skipped", rep.Skipped),
					slog.Int("failed", rep.Failed))
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

// errShutdown cancels the group once the HTTP server has stopped so the
// watcher and any running import wind down too.
var errShutdown = errors.New("shutdown")
