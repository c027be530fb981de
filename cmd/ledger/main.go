package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ledger/internal/auth"
	"ledger/internal/cache"
	"ledger/internal/cli"
	"ledger/internal/config"
	apphttp "ledger/internal/http"
	"ledger/internal/log"
)

func main() {
	cfg, logger := cli.LoadConfig((*config.Config).ValidateServer)
	logger.Info("Starting ledger server")

	repo := cli.InitStorage(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	broker := cli.InitBroker(logger, cfg)
	if broker != nil {
		defer broker.Close()
	}
	svc := cli.NewServices(logger, cfg, repo, broker)

	caches := cache.NewManager()
	if c := svc.Dashboard.Cache(); c != nil {
		caches.Register(c)
		caches.StartCleanup(cfg.MetricsTTL)
	}
	defer caches.Stop()

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		CookieSecure:       cfg.CookieSecure,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	}, apphttp.Deps{
		Store:         repo,
		Auth:          svc.Auth,
		Sessions:      auth.NewJWTManager(cfg.SessionSecret, cfg.SessionTTL),
		Invoices:      svc.Invoices,
		Expenses:      svc.Expenses,
		Directory:     svc.Directory,
		Dashboard:     svc.Dashboard,
		Reports:       svc.Reports,
		Admin:         svc.Admin,
		Notifications: svc.Notifications,
		Contacts:      svc.Contacts,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", log.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	logger.Info("Listening", "port", cfg.Port, "amqp", broker != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
