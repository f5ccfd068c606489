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

	"github.com/redis/go-redis/v9"

	"github.com/shaadicards/console/internal/app"
	"github.com/shaadicards/console/internal/console"
	"github.com/shaadicards/console/internal/guard"
	"github.com/shaadicards/console/internal/observability"
	"github.com/shaadicards/console/internal/perms"
	"github.com/shaadicards/console/internal/session"
	"github.com/shaadicards/console/internal/upstream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	defer redisClient.Close()

	metrics := observability.NewMetrics()
	api := upstream.NewClient(cfg.APIBaseURL, cfg.APITimeout, logger, metrics)
	refresher := perms.NewRefresher(api, cfg.PermissionTTL, logger)
	sessions := session.NewManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction(), api)
	handler := console.NewHandler(logger, api, refresher)

	router := app.NewRouter(app.RouterParams{
		Logger:   logger,
		Config:   cfg,
		Sessions: sessions,
		Console:  handler,
		Guards:   guard.Middleware{Perms: refresher, Logger: logger},
		Metrics:  metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("console listening",
			slog.String("addr", cfg.AppAddr),
			slog.String("api", api.BaseURL()),
			slog.String("env", cfg.AppEnv))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}

	logger.Info("console stopped")
	return nil
}
