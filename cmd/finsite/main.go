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

	"FinSite/internal/api"
	"FinSite/internal/app"
	"FinSite/internal/notifier"
	"FinSite/internal/scheduler"
)

func main() {
	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "finsite: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()
	log := a.Logger
	cfg := a.Config

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, a.Reconciler, a.Recorder, a.Notifier, cfg.Location(), log)
	sched.Lookback = cfg.Backfill.LookbackDays
	sched.RunTimeout = cfg.Backfill.RunTimeout
	if err := sched.RegisterAll(cfg.Backfill.Cron, cfg.Backfill.DailyCron); err != nil {
		log.Fatal().Err(err).Msg("register cron tasks")
	}
	sched.Start()
	defer sched.Stop()

	// Init API server
	srv := api.NewServer(api.Options{
		Addr:         cfg.Server.Addr,
		APIKey:       cfg.Server.APIKey,
		AllowOrigins: cfg.Server.AllowOrigins,
		Lookback:     cfg.Backfill.LookbackDays,
	}, a.Store, a.Reconciler, a.Recorder, a.Registry, log)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("api server stopped")
			cancel()
		}
	}()

	// Optional: run immediately on start
	if cfg.Backfill.RunOnStart {
		log.Info().Msg("RUN_ON_START enabled, executing backfill now")
		go func() {
			if sum := sched.RunBackfillNow(); sum != nil {
				log.Info().Msg("\n" + notifier.FormatRunSummary(sum))
			}
		}()
	}

	log.Info().Msg("FinSite is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info().Msg("shutdown signal received, stopping...")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("api shutdown")
	}
	log.Info().Msg("FinSite stopped")
}
