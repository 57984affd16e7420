/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the recognition engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Build the logger
  3. Initialize SQLite store
  4. Build notification sinks (log, Slack/Teams webhooks, optional Redis)
  5. Create the recognition and redemption services
  6. Start the monthly allowance scheduler
  7. Optionally seed the demo tenant
  8. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: recognition.db)
           Use ":memory:" for in-memory database
  -seed    Load the demo tenant and log a token per demo user

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler and drain in-flight notifications
  4. Close Redis and database connections

EXAMPLES:
  ./server -db=":memory:" -seed
  REDIS_URL=redis://localhost:6379/0 ./server -port=3000

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/recognition-engine/api"
	"github.com/warp/recognition-engine/config"
	"github.com/warp/recognition-engine/notify"
	"github.com/warp/recognition-engine/observ"
	"github.com/warp/recognition-engine/recognition"
	"github.com/warp/recognition-engine/redemption"
	"github.com/warp/recognition-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env", os.Args[1:])
	if err != nil {
		return err
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	sinks := []notify.Sink{
		notify.LogSink{Logger: logger.Named("notify")},
		notify.NewWebhookSink(cfg.NotifyTimeout),
	}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// events are best effort; keep serving without them
			logger.Warn("redis unreachable, events will be dropped until it recovers", zap.Error(err))
		}
		sinks = append(sinks, &notify.RedisSink{Client: rdb, Prefix: cfg.RedisChannel})
	}
	dispatcher := notify.NewDispatcher(logger.Named("notify"), cfg.NotifyTimeout, sinks...)
	defer dispatcher.Wait()

	rec := recognition.NewService(store, dispatcher, logger.Named("recognition"))
	red := redemption.NewService(store, dispatcher, logger.Named("redemption"))

	scheduler := api.NewAllowanceScheduler(store, logger.Named("scheduler"))
	scheduler.CheckInterval = cfg.ResetInterval
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.SeedDemo {
		users, err := api.SeedDemo(context.Background(), store, rec, red, cfg.JWTSecret, 7*24*time.Hour)
		if err != nil {
			return fmt.Errorf("seed demo tenant: %w", err)
		}
		for _, u := range users {
			logger.Info("demo user", zap.String("tenant_id", api.DemoTenant),
				zap.String("user_id", u.ID), zap.String("role", string(u.Role)), zap.String("token", u.Token))
		}
	}

	handler := api.NewHandler(store, rec, red, scheduler, cfg.JWTSecret, logger.Named("api"))
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
