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

	httpadapter "scour/internal/adapters/http"
	"scour/internal/app"
	"scour/internal/config"
	"scour/internal/logging"
	"scour/internal/workers/scourrunner"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := httpadapter.New(httpadapter.Deps{
		Jobs:        a.Jobs,
		Runner:      a.Runner,
		Health:      a.Health,
		Trends:      a.Trends,
		Incidents:   a.Incidents,
		Importer:    a.Sources,
		Sources:     a.Store,
		Metrics:     a.Metrics,
		Tokens:      cfg.Tokens(),
		AdminSecret: cfg.AdminSecret,
		Logger:      logger,
	})

	// Optional background job workers
	if cfg.Workers > 0 {
		go scourrunner.Run(ctx, a.Store, a.Jobs, app.AdvanceOptions(cfg), cfg.Workers, cfg.PollInterval, logger)
		logger.Info("scour workers started", "workers", cfg.Workers)
	}
	if _, err := scourrunner.ScheduleTrends(ctx, cfg.TrendCron, a.Trends, logger); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()
	logger.Info("listening", "addr", cfg.ListenAddr, "env", cfg.Env, "store", cfg.Store)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
