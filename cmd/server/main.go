/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the savings goal server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (--env=path/to/.env optional)
  2. Configure the logger
  3. Open the store selected by STORE_DRIVER
  4. Build the per-goal locker selected by LOCK_BACKEND
  5. Register prometheus collectors
  6. Wire Goals, Service, Reconciler and the HTTP router
  7. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the reconciliation sweep
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the store and redis connections

EXAMPLES:
  # Defaults: sqlite at ./data/savings.db, in-process locks
  ./server

  # Postgres + redis locks from an env file
  ./server --env=./deploy/prod.env

SEE ALSO:
  - internal/config/config.go: Every setting and its default
  - api/server.go: Router configuration
  - cmd/migrate/main.go: Postgres schema migrations
*/
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/warp/savings-engine/api"
	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/generic/store"
	"github.com/warp/savings-engine/internal/config"
	"github.com/warp/savings-engine/pkg/logger"
	"github.com/warp/savings-engine/savings"
	"github.com/warp/savings-engine/store/postgres"
	"github.com/warp/savings-engine/store/sqlite"
)

func main() {
	defer logger.Sync()

	if err := config.Load(argContainsEnvPath()); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Get()
	if err := logger.Configure(cfg.AppEnv, cfg.LogLevel); err != nil {
		logger.Error("failed to configure logger", "error", err)
	}

	ctx := context.Background()

	txStore, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	locker, closeLocker, err := openLocker(ctx, cfg)
	if err != nil {
		logger.Error("failed to set up goal locks", "backend", cfg.LockBackend, "error", err)
		os.Exit(1)
	}
	defer closeLocker()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := savings.NewMetrics(reg, cfg.PromNamespace)
	if err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	goals := savings.NewGoals(txStore, savings.Options{
		Locker:                  locker,
		Metrics:                 metrics,
		AllowTargetBelowBalance: cfg.GoalsAllowTargetBelowBalance,
	})
	svc := savings.NewService(goals, generic.UrgencyThresholds{
		Warning:  cfg.UrgencyWarningDays,
		Critical: cfg.UrgencyCriticalDays,
	})

	reconciler := savings.NewReconciler(goals, cfg.ReconcileInterval, cfg.ReconcileAutoRepair)
	reconciler.Start()
	defer reconciler.Stop()

	handler := api.NewHandler(svc, reconciler)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.CorsOrigins(),
		Gatherer:       reg,
	})

	server := &http.Server{
		Addr:         cfg.HttpListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.HttpServerReadTimeout,
		WriteTimeout: cfg.HttpServerWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.HttpListenAddr, "app", cfg.AppName, "env", cfg.AppEnv,
			"store", cfg.StoreDriver, "locks", cfg.LockBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	logger.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (generic.TxStore, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		return store.NewMemory(), func() {}, nil

	case "sqlite":
		if cfg.SqlitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SqlitePath), 0o755); err != nil {
				return nil, nil, err
			}
		}
		s, err := sqlite.New(cfg.SqlitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, closer("sqlite", s), nil

	case "postgres":
		writeConf := postgres.Config{
			User:     cfg.PostgresWriteUser,
			Host:     cfg.PostgresWriteHost,
			Port:     cfg.PostgresWritePort,
			Password: cfg.PostgresWritePassword,
			Database: cfg.PostgresWriteDatabase,
		}
		var readConf postgres.Config
		readConf.Host, readConf.Port, readConf.User, readConf.Password, readConf.Database = cfg.PostgresRead()

		if cfg.PostgresAutoMigrate {
			if err := postgres.Migrate(ctx, writeConf); err != nil {
				return nil, nil, err
			}
		}
		s, err := postgres.New(readConf, writeConf, cfg.PostgresDebug)
		if err != nil {
			return nil, nil, err
		}
		return s, closer("postgres", s), nil
	}
	return nil, nil, errors.New("unknown store driver " + cfg.StoreDriver)
}

func openLocker(ctx context.Context, cfg *config.Config) (savings.Locker, func(), error) {
	if cfg.LockBackend != "redis" {
		return savings.NewKeyedLocker(cfg.LockWaitTimeout), func() {}, nil
	}

	client, err := savings.DialRedis(ctx, &goredis.UniversalOptions{
		Addrs:      []string{cfg.RedisAddr},
		ClientName: cfg.AppName,
		DB:         cfg.RedisDatabase,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
	})
	if err != nil {
		return nil, nil, err
	}
	locker := savings.NewRedisLocker(client, savings.RedisLockerOptions{
		KeyPrefix:   cfg.RedisKeyPrefix,
		TTL:         cfg.LockTTL,
		WaitTimeout: cfg.LockWaitTimeout,
	})
	return locker, closer("redis", client), nil
}

func closer(name string, c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Warn("failed to close "+name, "error", err)
		}
	}
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.HasPrefix(v, "--env=") {
			path := strings.TrimPrefix(v, "--env=")
			if _, err := os.Stat(path); err != nil {
				logger.Error("failed to open the passed env file", "path", path, "error", err)
				return ""
			}
			return path
		}
	}
	return ""
}
