package main

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

	"github.com/joho/godotenv"

	"github.com/p-n-ai/pai-progress/internal/content"
	"github.com/p-n-ai/pai-progress/internal/httpapi"
	"github.com/p-n-ai/pai-progress/internal/kvstore"
	"github.com/p-n-ai/pai-progress/internal/platform/cache"
	"github.com/p-n-ai/pai-progress/internal/platform/config"
	"github.com/p-n-ai/pai-progress/internal/platform/database"
	"github.com/p-n-ai/pai-progress/internal/platform/logging"
	"github.com/p-n-ai/pai-progress/internal/progress"
	"github.com/p-n-ai/pai-progress/internal/quiz"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(cfg.Log))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// app holds the wired components of a running server.
type app struct {
	engine  *progress.Engine
	store   kvstore.Store
	handler http.Handler
	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	loader, err := content.NewLoader(cfg.ContentPath)
	if err != nil {
		return nil, err
	}

	var db *database.DB
	if cfg.NeedsDatabase() {
		db, err = database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
	}

	store, ready, err := a.openStore(ctx, cfg, db)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	var events progress.EventLogger = progress.NopEventLogger{}
	if cfg.Progress.EventsSink == config.EventsPostgres {
		pgEvents, err := db.EventLogger(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		events = pgEvents
	}

	a.engine = progress.NewEngine(progress.EngineConfig{
		Store:  store,
		Events: events,
		Generator: quiz.NewGenerator(quiz.GeneratorConfig{
			ProtectedNames: cfg.Progress.ProtectedNames,
			Count:          cfg.Progress.QuizQuestions,
		}),
		RollbackDelay: cfg.Progress.RollbackDelay,
		OnRollback: func(storyID string, stageStart int) {
			slog.Info("navigating back after rollback", "story_id", storyID, "stage_start", stageStart)
			store.Publish(kvstore.Change{StoryID: storyID, Kind: kvstore.ChangeNavigate})
		},
	})

	a.handler = httpapi.New(httpapi.Config{
		Engine:         a.engine,
		Stories:        loader,
		Ready:          ready,
		ReportsEnabled: cfg.Server.ReportsEnabled,
	}).Handler()

	return a, nil
}

// openStore opens the configured backend and returns it with its readiness
// check.
func (a *app) openStore(ctx context.Context, cfg *config.Config, db *database.DB) (kvstore.Store, func(context.Context) error, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return kvstore.NewMemoryStore(), nil, nil

	case config.BackendSQLite:
		s, err := kvstore.NewSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		return s, func(context.Context) error { return s.HealthCheck() }, nil

	case config.BackendPostgres:
		s, err := db.OpenStore(ctx)
		if err != nil {
			return nil, nil, err
		}
		return s, db.HealthCheck, nil

	case config.BackendRedis:
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect cache: %w", err)
		}
		a.closers = append(a.closers, func() { _ = c.Close() })
		s, err := c.OpenStore(ctx, cfg.Cache.Channel)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		return s, c.HealthCheck, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// Close cancels pending rollbacks and releases resources in reverse order.
func (a *app) Close() {
	if a.engine != nil {
		a.engine.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
