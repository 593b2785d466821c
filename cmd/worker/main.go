package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/expense-ledger/internal/app"
	"github.com/dvloznov/expense-ledger/internal/config"
	"github.com/dvloznov/expense-ledger/internal/jobs"
	"github.com/dvloznov/expense-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/expense-ledger/internal/logger"
	"github.com/dvloznov/expense-ledger/internal/reconcile"
	"github.com/dvloznov/expense-ledger/internal/watch"
)

func main() {
	configPath := flag.String("config", "", "Path to ledger.yaml (defaults to ./ledger.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := app.NewLogger(cfg)

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger service")
	}
	defer a.Close()

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.Options{Workers: 1}, jobStore)

	log.Info().
		Str("ledger", cfg.Local.Path).
		Str("remote", cfg.Remote.Backend).
		Dur("poll_interval", cfg.Sync.PollInterval).
		Msg("Starting sync worker")

	if err := jobQueue.Start(ctx, jobs.SyncHandler(a.Service)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	watcher, err := watch.NewFileWatcher(cfg.Local.Path, cfg.Sync.Debounce)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create ledger file watcher")
	}
	if err := watcher.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start ledger file watcher")
	}
	defer watcher.Stop()

	var ticks <-chan time.Time
	if cfg.Sync.PollInterval > 0 {
		ticker := time.NewTicker(cfg.Sync.PollInterval)
		defer ticker.Stop()
		ticks = ticker.C
	} else {
		log.Warn().Msg("Remote polling disabled, only local changes trigger a sync")
	}

	// Bring both sides in line before waiting for changes
	if err := jobQueue.PublishSync(ctx, &jobs.SyncJob{Trigger: jobs.TriggerManual}); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue initial sync")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		schedule(ctx, jobQueue, watcher.Changes(), watcher.Errors(), ticks)
	}()

	log.Info().Msg("Sync worker started, waiting for changes...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down sync worker...")

	// Cancel context to stop the scheduler and workers
	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for the in-flight sync
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Sync worker exited")
}

// schedule turns ledger file changes and poll ticks into sync jobs until
// ctx is cancelled. A file change names the local side as the mutator; a
// poll has no mutator, so only remote-side changes are picked up.
func schedule(ctx context.Context, pub jobs.Publisher, changes <-chan struct{}, errs <-chan error, ticks <-chan time.Time) {
	log := logger.FromContext(ctx)

	publish := func(trigger jobs.Trigger, mutator reconcile.Side) {
		job := &jobs.SyncJob{Trigger: trigger, Mutator: mutator}
		if err := pub.PublishSync(ctx, job); err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("trigger", string(trigger)).Msg("Failed to enqueue sync")
			}
			return
		}
		log.Debug().Str("job_id", job.JobID).Str("trigger", string(trigger)).Msg("Sync enqueued")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			publish(jobs.TriggerWatch, reconcile.SideLocal)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Warn().Err(err).Msg("Ledger file watcher error")
		case <-ticks:
			publish(jobs.TriggerPoll, reconcile.SideNone)
		}
	}
}
