package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"orderbook_go/internal/aggregator"
	"orderbook_go/internal/app"
	"orderbook_go/internal/server"

	"github.com/joho/godotenv"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// Optional .env for local overrides
	_ = godotenv.Load()

	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := bootstrap.Config

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Registry over the configured exchange feeds. Aggregators are
	// spawned lazily, one per pair, on first subscription.
	registry := aggregator.NewRegistry(ctx, bootstrap.Feeds(), aggregator.Options{
		SubscriberBuffer: cfg.Aggregator.SubscriberBuffer,
	})

	// 5. gRPC surface
	svc := server.NewSummaryService(registry)

	slog.InfoContext(ctx, "Orderbook summary service operational",
		slog.String("addr", cfg.Server.ListenAddr))

	if err := server.Serve(ctx, cfg.Server.ListenAddr, svc); err != nil {
		slog.Error("gRPC server failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.InfoContext(ctx, "Shut down gracefully")
}
