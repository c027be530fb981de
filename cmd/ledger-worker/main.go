package main

import (
	"context"
	"os"
	"time"

	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/log"
	"ledger/internal/worker"
)

func main() {
	cfg, logger := cli.LoadConfig((*config.Config).Validate)
	logger = logger.WithComponent(log.ComponentWorker)
	logger.Info("Starting ledger-worker", "scan_interval", cfg.ScanInterval)

	repo := cli.InitStorage(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	broker := cli.InitBroker(logger, cfg)
	svc := cli.NewServices(logger, cfg, repo, broker)

	var consumer worker.Consumer
	if broker != nil {
		consumer = broker
	}
	w := worker.New(consumer, svc.Contacts, svc.Notifications, svc.Scanner, cfg.ScanInterval)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if broker != nil {
			if err := broker.Close(); err != nil {
				logger.Warn("AMQP close failed", log.FieldError, err)
			}
		}
	})

	if err := w.Run(ctx); err != nil {
		logger.Error("Worker stopped", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
