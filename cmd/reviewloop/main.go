package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	rlhttp "github.com/Strob0t/ReviewLoop/internal/adapter/http"
	rlmcp "github.com/Strob0t/ReviewLoop/internal/adapter/mcp"
	rlnats "github.com/Strob0t/ReviewLoop/internal/adapter/nats"
	"github.com/Strob0t/ReviewLoop/internal/adapter/natskv"
	"github.com/Strob0t/ReviewLoop/internal/adapter/otel"
	"github.com/Strob0t/ReviewLoop/internal/adapter/postgres"
	"github.com/Strob0t/ReviewLoop/internal/adapter/ristretto"
	_ "github.com/Strob0t/ReviewLoop/internal/adapter/telegram" // register the telegram notifier
	"github.com/Strob0t/ReviewLoop/internal/adapter/ws"
	"github.com/Strob0t/ReviewLoop/internal/config"
	"github.com/Strob0t/ReviewLoop/internal/domain/guardrail"
	"github.com/Strob0t/ReviewLoop/internal/logger"
	"github.com/Strob0t/ReviewLoop/internal/middleware"
	"github.com/Strob0t/ReviewLoop/internal/port/cache"
	"github.com/Strob0t/ReviewLoop/internal/port/notifier"
	"github.com/Strob0t/ReviewLoop/internal/resilience"
	"github.com/Strob0t/ReviewLoop/internal/secrets"
	"github.com/Strob0t/ReviewLoop/internal/service"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"dispatch_interval", cfg.Dispatcher.Interval,
		"rate_capacity", cfg.Rate.Capacity,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	if cfg.Telemetry.Enabled {
		shutdown, err := otel.Setup(ctx, cfg.Logging.Service, cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				slog.Error("telemetry shutdown", "error", err)
			}
		}()
	}
	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := rlnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	limiter, err := natskv.NewLimiter(ctx, queue.JetStream(), cfg.Rate.Capacity, cfg.Rate.Window)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var regCache cache.Cache
	switch cfg.Cache.Backend {
	case "nats":
		regCache, err = natskv.NewCacheBucket(ctx, queue.JetStream(), cfg.Cache.ProjectTTL)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	default:
		mem, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		defer mem.Close()
		regCache = mem
	}

	vault, err := secrets.NewVault(secrets.EnvLoader())
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	resolver := secrets.NewResolver(vault)

	// --- Services ---
	store := postgres.NewStore(pool)
	gcfg := guardrail.Config{
		ForbiddenPaths:  cfg.Guardrail.ForbiddenPaths,
		DependencyFiles: cfg.Guardrail.DependencyFiles,
	}

	buildSvc := service.NewBuildService(store, queue, gcfg, metrics)
	reviewSvc := service.NewReviewService(store, queue, metrics, cfg.Approval.MaxIterations)
	projectSvc := service.NewProjectService(store, regCache, cfg.Cache.ProjectTTL)
	dbCtxSvc := service.NewDBContextService(projectSvc, store, resolver)

	dispatcher := service.NewDispatcher(store, queue, limiter, metrics, service.DispatcherConfig{
		Interval:       cfg.Dispatcher.Interval,
		CycleTimeout:   cfg.Dispatcher.CycleTimeout,
		BatchSize:      cfg.Dispatcher.BatchSize,
		InspectorModel: cfg.Dispatcher.InspectorModel,
		Method:         cfg.Dispatcher.Method,
	})
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	// --- Notifications ---
	if cfg.Notify.Provider != "" {
		n, err := notifier.New(cfg.Notify.Provider, cfg.Notify.Config)
		if err != nil {
			return fmt.Errorf("notifier: %w", err)
		}
		breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
		notifySvc := service.NewNotificationService(n, breaker, queue)
		if err := notifySvc.Start(ctx); err != nil {
			return fmt.Errorf("notification subscriber: %w", err)
		}
		defer notifySvc.Stop()
	}

	// --- Event stream ---
	hub := ws.NewHub()
	bridge := ws.NewBridge(hub, queue)
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("event bridge: %w", err)
	}
	defer bridge.Stop()

	// --- MCP ---
	mcpSrv := rlmcp.NewServer(
		rlmcp.ServerConfig{Name: "reviewloop", Version: version},
		rlmcp.ServerDeps{Builds: buildSvc, Reviews: reviewSvc},
	)

	// --- HTTP ---
	handlers := &rlhttp.Handlers{
		Builds:    buildSvc,
		Reviews:   reviewSvc,
		Projects:  projectSvc,
		DBContext: dbCtxSvc,
	}

	ipLimiter := middleware.NewRateLimiter(cfg.Server.RatePerIPRPS, cfg.Server.RatePerIPBurst)
	ipLimiter.StartCleanup(5*time.Minute, time.Hour)
	defer ipLimiter.Stop()

	r := chi.NewRouter()
	r.Use(rlhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(rlhttp.SecurityHeaders)
	r.Use(rlhttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(ipLimiter.Handler)
	if cfg.Telemetry.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}

	r.Get("/health", healthHandler(pool.Ping))
	r.Get("/ws", hub.HandleWS)
	r.Handle("/mcp", mcpSrv.Handler())
	rlhttp.MountRoutes(r, handlers, cfg.Server.AdminAPIKey)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// healthHandler reports liveness plus database reachability.
func healthHandler(ping func(context.Context) error) http.HandlerFunc {
	type healthStatus struct {
		Status   string `json:"status"`
		Postgres string `json:"postgres"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		status := healthStatus{Status: "ok", Postgres: "ok"}
		code := http.StatusOK
		if err := ping(r.Context()); err != nil {
			status.Status = "degraded"
			status.Postgres = err.Error()
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}
