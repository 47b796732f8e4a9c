// Package main is the entry point for the Little Escape API server.
// Its sole responsibility is wiring dependencies together and starting the server.
// No business logic belongs here.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/nats-io/nats.go"
	"github.com/pressly/goose/v3"

	"github.com/pkordes/little-escape/internal/clock"
	"github.com/pkordes/little-escape/internal/config"
	"github.com/pkordes/little-escape/internal/handler"
	"github.com/pkordes/little-escape/internal/lock"
	"github.com/pkordes/little-escape/internal/metrics"
	"github.com/pkordes/little-escape/internal/middleware"
	"github.com/pkordes/little-escape/internal/position"
	"github.com/pkordes/little-escape/internal/repo"
	"github.com/pkordes/little-escape/internal/service"
	"github.com/pkordes/little-escape/internal/tracker"
	"github.com/pkordes/little-escape/migrations"
	"github.com/pkordes/little-escape/spec"
)

func main() {
	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		// Use plain stderr before the logger is configured.
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	// --- Database ---------------------------------------------------------
	// New() does not open connections immediately; the first query does.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	// Verify the DB is reachable before accepting traffic.
	if err := pool.Ping(ctx); err != nil {
		return err
	}
	logger.Info("database connection established")

	if cfg.MigrateOnStart {
		if err := migrate(ctx, pool, logger); err != nil {
			return err
		}
	}

	// --- Optional infrastructure -------------------------------------------
	collector := metrics.NewCollector()

	var locker lock.Locker = lock.NewLocal()
	if cfg.Redis != nil {
		rdb, err := lock.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL)
		logger.Info("redis trip locks enabled", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB, "tls", cfg.Redis.TLSConfig != nil)
	}

	var (
		remote service.SourceFactory
		events service.EventPublisher
	)
	if cfg.NATSURL != "" {
		nc, err := position.Connect(cfg.NATSURL, logger, collector)
		if err != nil {
			return err
		}
		defer drain(nc, logger)
		remote = func(tripID uuid.UUID) tracker.PositionSource {
			return position.NewNATSSource(nc, cfg.NATSPositionPrefix, tripID)
		}
		events = position.NewNATSEvents(nc, cfg.NATSEventPrefix)
		logger.Info("nats enabled", "positions", cfg.NATSPositionPrefix, "events", cfg.NATSEventPrefix)
	}

	// --- Services ---------------------------------------------------------
	clk := clock.System{Location: cfg.Location}

	runs := repo.NewRunRepo(pool)
	tags := repo.NewTagRepo(pool)

	trips := service.NewTripService(service.TripServiceConfig{
		Appointments: repo.NewAppointmentRepo(pool),
		Preps:        repo.NewPrepRepo(pool),
		Pool:         repo.NewPoolRepo(pool),
		Runs:         runs,
		Reviews:      service.NewReviewService(runs, tags, clk),

		Locker:  locker,
		Remote:  remote,
		Events:  events,
		Metrics: collector,

		Clock:          clk,
		Policy:         tracker.ArrivalPolicy{RadiusM: cfg.ArrivalRadiusM, MaxAccuracyM: cfg.ArrivalMaxAccuracyM},
		CompletionMode: cfg.CompletionMode,
		Logger:         logger,
		IdleTTL:        cfg.TripIdleTTL,
		RunTTL:         cfg.TripRunTTL,
	})

	api := handler.NewServer(handler.Deps{
		Trips:          trips,
		History:        service.NewHistoryService(runs),
		Tags:           service.NewTagService(tags),
		Export:         service.NewExportService(runs),
		Clock:          clk,
		Logger:         logger,
		AllowedOrigins: cfg.CORSOrigins,
	})

	// --- Router -----------------------------------------------------------
	// Middleware is applied in order: RequestID → RealIP → Logger → Recoverer.
	// RealIP sets r.RemoteAddr from X-Forwarded-For / X-Real-IP so the rate
	// limiter keys on the client, not the proxy.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Limit)
	r.Use(middleware.NewMaxBodySizeHandler(cfg.MaxBodyBytes))

	r.Method(http.MethodGet, "/metrics", collector.Handler())
	r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		//nolint:errcheck
		w.Write(spec.OpenAPI)
	})
	api.Register(r)

	// --- HTTP Server ------------------------------------------------------
	// Explicit timeouts prevent slowloris and resource exhaustion attacks.
	// /live resets its own deadlines after the upgrade.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown: wait for OS signal, then give in-flight requests
	// up to ShutdownTimeout to complete before forcefully closing.
	stop, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go sweepTrips(stop, trips, cfg.TripSweepInterval, logger)

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-stop.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// migrate applies pending goose migrations through a database/sql view of the pool.
func migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}
	for _, res := range results {
		logger.Info("migration applied", "version", res.Source.Version, "duration_ms", res.Duration.Milliseconds())
	}
	return nil
}

// sweepTrips evicts idle trips until ctx is cancelled.
func sweepTrips(ctx context.Context, trips *service.TripService, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, every/2)
			if n := trips.Evict(runCtx); n > 0 {
				logger.Info("idle trips evicted", "count", n, "remaining", trips.Len())
			}
			cancel()
		}
	}
}

func drain(nc *nats.Conn, logger *slog.Logger) {
	if err := nc.Drain(); err != nil {
		logger.Warn("nats drain failed", "error", err)
	}
}
