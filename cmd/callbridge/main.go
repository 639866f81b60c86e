package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sebas/callbridge/internal/banner"
	"github.com/sebas/callbridge/internal/logger"
	"github.com/sebas/callbridge/services/callbridge/app"
	"github.com/sebas/callbridge/services/callbridge/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(2)
	}

	// Initialize logger
	logger.InitLogger(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	banner.Print("callbridge call connection manager", []banner.ConfigLine{
		banner.Line("gRPC", cfg.GRPCAddr),
		banner.Line("HTTP API", cfg.HTTPAddr),
		banner.Line("Node", cfg.NodeID),
		banner.Line("Settings backend", cfg.SettingsBackend),
		banner.Line("Reachability timeout", cfg.ReachabilityTimeout),
		banner.Line("Wake lease", cfg.WakeLease),
		banner.Line("Platform API level", cfg.Platform.APILevel),
		banner.Line("Setup file", cfg.SetupFile),
		banner.Line("Log level", logger.GetLevel()),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cb, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to create callbridge", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cb.Close(); err != nil {
			slog.Warn("Shutdown finished with errors", "error", err)
		}
	}()

	if err := cb.ApplySetup(ctx); err != nil {
		slog.Error("Failed to apply setup options", "error", err)
		return
	}

	slog.Info("Starting callbridge", "grpc", cfg.GRPCAddr, "http", cfg.HTTPAddr)
	if err := cb.Run(ctx); err != nil {
		slog.Error("Server error", "error", err)
		return
	}
	slog.Info("callbridge stopped")
}
