package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"rollcall/internal/app"
	"rollcall/internal/config"
	"rollcall/internal/worker"
)

// Worker consumes upload messages and reconciles each roster into the Ledger.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.QueueBackend == "memory" {
		logger.Fatal("QUEUE_BACKEND=memory runs the worker inside the api process")
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("build app failed", zap.Error(err))
	}
	defer a.Close()

	if err := worker.Run(ctx, a.Queue, a.Processor(), logger); err != nil {
		logger.Error("worker failed", zap.Error(err))
	}
}
