// AC Buy reference backend: the gRPC service the front desk submits to and reads from.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/acbuy/internal/backend"
	"github.com/ashureev/acbuy/internal/config"
	"github.com/ashureev/acbuy/internal/store"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.LoadBackend()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if len(cfg.AdminTokens) == 0 {
		slog.Warn("ADMIN_TOKENS is empty; admin reads will always be rejected")
	}

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		slog.Error("Failed to listen", "addr", cfg.Listen, "error", err)
		os.Exit(1)
	}

	g := grpc.NewServer(
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             time.Minute,
			PermitWithoutStream: false,
		}),
	)
	backend.NewServer(repo, backend.ServerConfig{
		Schema:      cfg.Schema,
		AdminTokens: cfg.AdminTokens,
	}, logger).Register(g)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Backend listening", "addr", lis.Addr().String(), "schema", cfg.Schema)
		if err := g.Serve(lis); err != nil {
			slog.Error("Backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")
	done := make(chan struct{})
	go func() {
		g.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		slog.Warn("Graceful stop timed out, forcing")
		g.Stop()
	}
	slog.Info("Backend stopped successfully")
}
