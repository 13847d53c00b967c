// Package main is the entrypoint for the bulk study API server.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/r2clabs/bulkstudy/internal/api"
	"github.com/r2clabs/bulkstudy/internal/api/handler"
	mw "github.com/r2clabs/bulkstudy/internal/api/middleware"
	"github.com/r2clabs/bulkstudy/internal/api/response"
	"github.com/r2clabs/bulkstudy/internal/bulk"
	"github.com/r2clabs/bulkstudy/internal/cache"
	"github.com/r2clabs/bulkstudy/internal/config"
	"github.com/r2clabs/bulkstudy/internal/identity"
	"github.com/r2clabs/bulkstudy/internal/jobstore"
	"github.com/r2clabs/bulkstudy/internal/metrics"
	"github.com/r2clabs/bulkstudy/internal/notify"
	"github.com/r2clabs/bulkstudy/internal/r2c"
	"github.com/r2clabs/bulkstudy/internal/reconcile"
	"github.com/r2clabs/bulkstudy/internal/store"
)

const shutdownTimeout = 30 * time.Second

var logLevel = new(slog.LevelVar)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logLevel.Set(cfg.Server.LogLevel)
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"jobstore_backend", cfg.JobStore.Backend,
		"identity_mode", cfg.Identity.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the job slot on the configured backend
	slot, checks, closeSlot, err := openSlot(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSlot()

	// 3. Identity and R2C client
	session, err := identity.FromConfig(ctx, cfg.Identity)
	if err != nil {
		return fmt.Errorf("create identity: %w", err)
	}
	client := r2c.NewHTTPClient(cfg.API.BaseURL, session, cfg.API.Timeout)
	checks["r2c_api"] = pingFunc(client.Ready)

	// 4. Notifications: log, in-process feed, optionally NATS
	feed := notify.NewFeed(cfg.Notify.FeedSize)
	notifier := notify.Multi{notify.LogNotifier{}, feed}
	if cfg.NATS.URL != "" {
		natsNotifier, err := notify.ConnectNATS(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer natsNotifier.Close()
		notifier = append(notifier, natsNotifier)
		slog.Info("nats connected", "subject", cfg.NATS.Subject)
	}

	// 5. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// 6. Job lifecycle manager and reconciler
	trackerOpts := []bulk.Option{
		bulk.WithInterval(cfg.Poller.Interval),
		bulk.WithRequestTimeout(cfg.Poller.RequestTimeout),
		bulk.WithConcurrency(cfg.Poller.Concurrency),
		bulk.WithNotifyLink(cfg.Notify.Link),
		bulk.WithMetrics(m),
	}
	if cfg.Identity.Mode != config.IdentityNone {
		// Configured token sources recover without a sign-in to re-arm polling.
		trackerOpts = append(trackerOpts, bulk.WithTokenRetry())
	}
	tracker := bulk.NewTracker(ctx, jobstore.New(slot), client, session, notifier, trackerOpts...)
	defer tracker.Close()
	session.OnSignIn(tracker.Refresh)

	rec := reconcile.New(client, tracker, cfg.Notify.ConfirmationPath, m)

	// 7. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(cfg.Server.TokenHash),
		RateLimit: mw.NewRateLimit(cfg.Server.RateLimitRPM),

		HealthHandler:  healthHandler(checks),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),

		GetIdentity: handler.NewGetIdentityHandler(session),
		SignIn:      handler.NewSignInHandler(session),
		SignOut:     handler.NewSignOutHandler(session),

		Upload:    handler.NewUploadHandler(rec, cfg.Server.MaxUploadBytes),
		ListJobs:  handler.NewListJobsHandler(tracker),
		ClearJobs: handler.NewClearJobsHandler(tracker),

		LoadDrafts:     handler.NewLoadDraftsHandler(rec),
		ListDrafts:     handler.NewListDraftsHandler(rec),
		GetDraft:       handler.NewGetDraftHandler(rec),
		PatchDraft:     handler.NewPatchDraftHandler(rec),
		PutQuestion:    handler.NewPutQuestionHandler(rec),
		AddQuestion:    handler.NewAddQuestionHandler(rec),
		DeleteQuestion: handler.NewDeleteQuestionHandler(rec),
		Submit:         handler.NewSubmitHandler(rec),
		Discard:        handler.NewDiscardHandler(rec),

		Notifications: handler.NewNotificationsHandler(feed),
	}
	if !deps.Auth.Enabled() {
		slog.Warn("R2C_SERVICE_TOKEN_HASH is empty, service API is open")
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// openSlot builds the job slot for cfg.JobStore.Backend. Remote backends are
// pinged before use and contribute a health check.
func openSlot(ctx context.Context, cfg *config.Config) (jobstore.Slot, map[string]pinger, func(), error) {
	checks := map[string]pinger{}
	noop := func() {}

	switch cfg.JobStore.Backend {
	case config.BackendMemory:
		slog.Warn("memory job store: batches do not survive a restart")
		return jobstore.NewMemorySlot(), checks, noop, nil

	case config.BackendFile:
		slot, err := jobstore.NewFileSlot(cfg.JobStore.Dir, cfg.JobStore.Key)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("open file job store: %w", err)
		}
		slog.Info("file job store ready", "path", slot.Path())
		return slot, checks, noop, nil

	case config.BackendRedis:
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("create redis cache: %w", err)
		}
		if err := redisCache.Ping(ctx); err != nil {
			redisCache.Close()
			return nil, nil, noop, fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")
		checks["job_store"] = redisCache
		return jobstore.NewRedisSlot(redisCache, cfg.JobStore.Key), checks, func() { redisCache.Close() }, nil

	case config.BackendPostgres:
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("connect database: %w", err)
		}
		slog.Info("database connected")

		if err := store.RunMigrations(cfg.Database.URL); err != nil {
			pool.Close()
			return nil, nil, noop, fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")

		pgStore := store.NewPostgresStore(pool)
		checks["job_store"] = pgStore
		return jobstore.NewPostgresSlot(pgStore, cfg.JobStore.Key), checks, pool.Close, nil
	}
	return nil, nil, noop, fmt.Errorf("unknown job store backend %q", cfg.JobStore.Backend)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// healthHandler pings every dependency and reports each one.
func healthHandler(checks map[string]pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := make(map[string]string, len(checks))
		degraded := false
		for name, p := range checks {
			results[name] = "ok"
			if err := p.Ping(r.Context()); err != nil {
				slog.Warn("health check failed", "service", name, "error", err)
				results[name] = "degraded"
				degraded = true
			}
		}

		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", results)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": results,
		})
	}
}
