// AC Buy front desk server
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

	"github.com/ashureev/acbuy/internal/api"
	"github.com/ashureev/acbuy/internal/backend"
	"github.com/ashureev/acbuy/internal/config"
	"github.com/ashureev/acbuy/internal/connection"
	"github.com/ashureev/acbuy/internal/identity"
	"github.com/ashureev/acbuy/internal/middleware"
	"github.com/ashureev/acbuy/internal/session"
	"github.com/ashureev/acbuy/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"backend", cfg.BackendAddr,
		"schema", cfg.Schema)

	clientCfg := backend.DefaultGrpcClientConfig()
	clientCfg.Address = cfg.BackendAddr
	clientCfg.Schema = cfg.Schema
	clientCfg.RequestTimeout = cfg.BackendRequestTimeout

	// Anonymous client shared by login verification and health checks.
	probe, err := backend.NewGrpcClient(clientCfg, logger)
	if err != nil {
		slog.Error("Failed to create backend client", "error", err)
		os.Exit(1)
	}
	defer probe.Close()

	sessions := session.NewRegistry(session.Config{
		Schema:              cfg.Schema,
		ConnectTimeout:      cfg.BackendConnectTimeout,
		LoginTimeout:        cfg.LoginTimeout,
		QueryStaleTime:      cfg.QueryStaleTime,
		SubmitRatePerMinute: cfg.SubmitRatePerMinute,
	}, connection.GrpcDialer(clientCfg, logger), probe, logger)
	defer sessions.Close()

	// Initialize handlers.
	handler := api.NewHandler(sessions, cfg.Schema, cfg.FrontendURL, cfg.IsDevelopment(), logger)
	healthHandler := api.NewHealthHandler(handler, probe.WaitForReady, cfg.BackendConnectTimeout)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.DeviceMiddleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	handler.RegisterRoutes(r)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// WriteTimeout stays 0 so the event stream can stay open.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions.StartSweeper(ctx, cfg.SessionSweepInterval, cfg.SessionTTL, func(deviceID string) {
		slog.Info("Idle session expired", "device_id", deviceID)
	})

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
