package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-lessons/internal/backend"
	"github.com/p-n-ai/pai-lessons/internal/lesson"
	"github.com/p-n-ai/pai-lessons/internal/platform/cache"
	"github.com/p-n-ai/pai-lessons/internal/platform/config"
	"github.com/p-n-ai/pai-lessons/internal/platform/database"
	"github.com/p-n-ai/pai-lessons/internal/platform/logging"
	"github.com/p-n-ai/pai-lessons/internal/snapshot"
)

// healthChecker is a dependency probed by /readyz.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// deps is everything the router needs.
type deps struct {
	handler *backend.Handler
	lessons *lesson.Loader
	checks  map[string]healthChecker
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	d, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      newMux(d),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting",
			"addr", srv.Addr,
			"storage", cfg.Storage.Backend,
			"sessions", cfg.Session.Backend,
		)
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

// buildDeps connects the configured storage and returns a cleanup func that
// closes every connection it opened.
func buildDeps(ctx context.Context, cfg *config.Config) (*deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*deps, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	checks := make(map[string]healthChecker)

	var (
		repo   backend.Repository  = backend.NewMemoryRepository()
		events backend.EventLogger = backend.NopEventLogger{}
	)
	if cfg.UsesPostgres() {
		lifetime, idle := cfg.ConnLifetime()
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns,
			database.WithConnLifetime(lifetime, idle))
		if err != nil {
			return fail(fmt.Errorf("connecting database: %w", err))
		}
		closers = append(closers, db.Close)
		checks["database"] = db

		if cfg.Database.Migrate {
			if err := database.Migrate(ctx, db.Pool); err != nil {
				return fail(err)
			}
		}
		pgRepo, err := backend.NewPostgresRepository(db.Pool)
		if err != nil {
			return fail(err)
		}
		repo = pgRepo
		events = backend.NewPostgresEventLogger(db.Pool)
	}

	var (
		sessions  backend.SessionStore = backend.NewMemorySessions()
		snapshots snapshot.Store       = snapshot.NewMemoryStore()
	)
	if cfg.UsesRedis() {
		c, err := cache.New(ctx, cfg.Cache.URL, cache.WithTimeouts(cfg.CacheTimeouts()))
		if err != nil {
			return fail(fmt.Errorf("connecting cache: %w", err))
		}
		closers = append(closers, func() { c.Close() })
		checks["cache"] = c

		sessions = backend.NewRedisSessions(c.Client, cfg.SessionTTL())
		snapshots = snapshot.NewRedisStore(c.Client, cfg.SnapshotTTL())
	}

	schemas, err := backend.NewSchemas()
	if err != nil {
		return fail(err)
	}

	lessons, err := lesson.NewLoader(cfg.LessonsPath)
	if err != nil {
		slog.Warn("lessons unavailable", "path", cfg.LessonsPath, "error", err)
	}

	opts := []backend.HandlerOption{
		backend.WithEvents(events),
		backend.WithSnapshots(snapshots),
	}
	if cfg.Session.DevIssue {
		slog.Warn("POST /sessions is enabled; any caller can sign in as any user")
		opts = append(opts, backend.WithSessionIssuing())
	}

	return &deps{
		handler: backend.NewHandler(repo, sessions, schemas, opts...),
		lessons: lessons,
		checks:  checks,
	}, cleanup, nil
}

// newMux creates the HTTP router.
func newMux(d *deps) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(d.checks))
	mux.HandleFunc("GET /lessons", handleLessons(d.lessons))
	mux.HandleFunc("GET /lessons/{lesson_id}", handleLesson(d.lessons))
	d.handler.Register(mux)
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(checks map[string]healthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		for name, check := range checks {
			if err := check.HealthCheck(ctx); err != nil {
				slog.Warn("readiness check failed", "dependency", name, "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, `{"status":"unavailable","dependency":%q}`, name)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
