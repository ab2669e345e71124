package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/splax/taskboard/internal/app/migrate"
	httpx "github.com/splax/taskboard/internal/http"
	"github.com/splax/taskboard/internal/ratelimit"
	"github.com/splax/taskboard/internal/repository"
	"github.com/splax/taskboard/internal/repository/postgres"
	"github.com/splax/taskboard/internal/repository/sqlite"
	"github.com/splax/taskboard/internal/service/auth"
	"github.com/splax/taskboard/internal/service/task"
	"github.com/splax/taskboard/internal/ws"
	"github.com/splax/taskboard/pkg/config"
	"github.com/splax/taskboard/pkg/crypto"
	jwtpkg "github.com/splax/taskboard/pkg/jwt"
	"github.com/splax/taskboard/pkg/logger"
)

func main() {
	log := logger.New("api", slog.LevelInfo)
	cfg, err := config.LoadAPIConfig()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log = logger.New("api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.DatabaseDriver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	issuer, err := jwtpkg.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		log.Error("failed to configure token issuer", "error", err)
		os.Exit(1)
	}

	hub := ws.NewHub()
	defer hub.Close()

	authSvc := auth.New(store, issuer, crypto.NewHasher(cfg.BcryptCost), log)
	taskSvc := task.New(store, ws.NewTaskFeed(hub, log), log)

	limiter := ratelimit.NewMemory()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := ratelimit.NewRedis(ctx, addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router := httpx.NewRouter(log, authSvc, taskSvc, httpx.Options{
		Hub:            hub,
		Limiter:        limiter,
		Registry:       registry,
		DBHealth:       store.Ping,
		AllowedOrigins: cfg.WSAllowedOrigins,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment, "driver", cfg.DatabaseDriver)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

// openStore connects to the configured backend and applies pending migrations.
func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (repository.Store, error) {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		runner, err := migrate.New(store.DB(), cfg.DatabaseDriver, log)
		if err != nil {
			store.Close()
			return nil, err
		}
		if err := runner.Ensure(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		runner, err := migrate.Open(cfg.DatabaseDriver, cfg.DatabaseURL, log)
		if err != nil {
			pool.Close()
			return nil, err
		}
		defer runner.Close()
		if err := runner.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping: %w", err)
		}
		if err := runner.Ensure(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return postgres.New(pool), nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.DatabaseDriver)
	}
}
