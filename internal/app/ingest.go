package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"gasledger/internal/enrich"
	"gasledger/internal/feed"
	"gasledger/internal/pipeline"
	"gasledger/internal/scheduler"
	"gasledger/internal/storage"
)

// Ingest reads the feed, enriches every record and stores it. Each stored
// record is written to Out as one JSON line. A positive Interval re-reads the
// feed on a schedule until the process is stopped.
func (a *App) Ingest(ctx context.Context, opts IngestOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.Input == "" {
		opts.Input = a.Config.Ingest.Input
	}

	var writer storage.TransactionWriter
	if opts.DryRun {
		a.Logger.Warn().Msg("dry-run: nothing will be written to the database")
	} else {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		if key := a.Config.Ingest.AdvisoryLockKey; key != 0 {
			unlock, acquired, err := store.TryAdvisoryLock(ctx, key)
			if err != nil {
				return err
			}
			if !acquired {
				return errors.New("another ingest process holds the advisory lock")
			}
			defer unlock()
		}
		writer = store
	}

	enricher := enrich.New(a.newOracle(), a.Config.Pricing.Symbol, a.Logger)
	pipe := pipeline.New(enricher, writer, pipeline.Options{
		FailFast: opts.FailFast,
		DryRun:   opts.DryRun,
	}, a.Metrics, a.Logger)
	notifier := a.newNotifier()

	runOnce := func(ctx context.Context) error {
		src, err := feed.OpenCSV(opts.Input)
		if err != nil {
			return err
		}
		defer src.Close()

		startedAt := time.Now().UTC()
		summary, err := pipe.Run(ctx, src, a.emitJSON)
		a.notifyFailures(ctx, notifier, opts.Input, startedAt, summary)
		return err
	}

	if opts.Interval <= 0 {
		return runOnce(ctx)
	}

	sched := scheduler.New(scheduler.Options{
		Interval:       opts.Interval,
		StartupDelay:   a.Config.Ingest.StartupDelay,
		RunImmediately: true,
	}, a.Logger)

	a.Logger.Info().Dur("interval", opts.Interval).Str("input", opts.Input).Msg("starting scheduled ingest")
	err := sched.Run(ctx, func(ctx context.Context, at time.Time) error {
		return runOnce(ctx)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	a.Logger.Info().Msg("scheduled ingest stopped")
	return nil
}

func (a *App) emitJSON(result pipeline.Result) error {
	line, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	line = append(line, '\n')
	_, err = a.Out.Write(line)
	return err
}
