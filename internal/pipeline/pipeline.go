package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gasledger/internal/enrich"
	"gasledger/internal/feed"
	"gasledger/internal/metrics"
	"gasledger/internal/storage"
)

// Outcome labels the per-record result.
type Outcome string

const (
	OutcomeInserted      Outcome = "inserted"
	OutcomeAlreadyExists Outcome = "already_exists"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeFailed        Outcome = "failed"
)

// Enricher turns a raw row into an enriched transaction.
type Enricher interface {
	Extract(ctx context.Context, raw feed.RawTransaction) (storage.Transaction, error)
}

// Result is what the pipeline emits for each successfully enriched record.
type Result struct {
	Outcome     Outcome             `json:"outcome"`
	Transaction storage.Transaction `json:"transaction"`
}

// emittedTransaction adds the native gas cost, which the read API omits.
type emittedTransaction struct {
	storage.Transaction
	GasCostNative float64 `json:"gasCostNative"`
}

// MarshalJSON renders r as one emitted line, native cost included.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Outcome     Outcome            `json:"outcome"`
		Transaction emittedTransaction `json:"transaction"`
	}{
		Outcome:     r.Outcome,
		Transaction: emittedTransaction{Transaction: r.Transaction, GasCostNative: r.Transaction.GasCostNative},
	})
}

// EmitFunc receives results in arrival order.
type EmitFunc func(Result) error

// Options tune a run.
type Options struct {
	// FailFast stops the run at the first record that cannot be processed.
	FailFast bool
	// DryRun enriches without writing to the store.
	DryRun bool
}

// Summary counts what a run did.
type Summary struct {
	RunID      string
	Processed  int
	Inserted   int
	Duplicates int
	Skipped    int
	Failed     int
	FirstError error
	Duration   time.Duration
}

// Pipeline drives records through the enricher and into the store, one at a time.
type Pipeline struct {
	enricher Enricher
	store    storage.TransactionWriter
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	opts     Options
}

// New constructs a pipeline. store may be nil only when opts.DryRun is set.
func New(enricher Enricher, store storage.TransactionWriter, opts Options, m *metrics.Metrics, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		enricher: enricher,
		store:    store,
		metrics:  m,
		logger:   logger.With().Str("component", "pipeline").Logger(),
		opts:     opts,
	}
}

// Process enriches one record and stores it. A failed record is never written.
func (p *Pipeline) Process(ctx context.Context, raw feed.RawTransaction) (Result, error) {
	start := time.Now()
	result, err := p.process(ctx, raw)
	outcome := result.Outcome
	if err != nil {
		outcome = OutcomeFailed
	}
	p.metrics.ObserveRecord(string(outcome), time.Since(start).Seconds())
	return result, err
}

func (p *Pipeline) process(ctx context.Context, raw feed.RawTransaction) (Result, error) {
	txn, err := p.enricher.Extract(ctx, raw)
	if err != nil {
		return Result{}, err
	}

	if p.opts.DryRun {
		return Result{Outcome: OutcomeSkipped, Transaction: txn}, nil
	}
	if p.store == nil {
		return Result{}, storage.ErrNotConfigured
	}

	outcome, err := p.store.Insert(ctx, txn)
	if err != nil {
		return Result{}, fmt.Errorf("store %s: %w", txn.Hash, err)
	}

	switch outcome {
	case storage.Inserted:
		p.logger.Debug().Str("hash", txn.Hash).Msg("transaction written")
		return Result{Outcome: OutcomeInserted, Transaction: txn}, nil
	default:
		p.logger.Debug().Str("hash", txn.Hash).Msg("transaction already stored")
		return Result{Outcome: OutcomeAlreadyExists, Transaction: txn}, nil
	}
}

// Run drains src in order, emitting one Result per stored record. With
// FailFast the first failure ends the run and is returned; otherwise failures
// are logged and counted in the Summary.
func (p *Pipeline) Run(ctx context.Context, src feed.Source, emit EmitFunc) (Summary, error) {
	summary := Summary{RunID: uuid.NewString()}
	logger := p.logger.With().Str("run_id", summary.RunID).Logger()
	start := time.Now()

	logger.Info().Bool("dry_run", p.opts.DryRun).Bool("fail_fast", p.opts.FailFast).Msg("ingest run started")

	for {
		raw, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			summary.Duration = time.Since(start)
			return summary, fmt.Errorf("read feed: %w", err)
		}

		summary.Processed++
		result, err := p.Process(ctx, raw)
		if err != nil {
			summary.Failed++
			if summary.FirstError == nil {
				summary.FirstError = err
			}
			event := logger.Error().Err(err).Str("hash", raw.Hash)
			if enrich.IsPriceUnavailable(err) {
				event = event.Bool("price_unavailable", true)
			}
			event.Msg("record failed")

			if p.opts.FailFast || ctx.Err() != nil {
				summary.Duration = time.Since(start)
				return summary, err
			}
			continue
		}

		switch result.Outcome {
		case OutcomeInserted:
			summary.Inserted++
		case OutcomeAlreadyExists:
			summary.Duplicates++
		case OutcomeSkipped:
			summary.Skipped++
		}

		if emit != nil {
			if err := emit(result); err != nil {
				summary.Duration = time.Since(start)
				return summary, fmt.Errorf("emit result: %w", err)
			}
		}
	}

	summary.Duration = time.Since(start)
	logger.Info().
		Int("processed", summary.Processed).
		Int("inserted", summary.Inserted).
		Int("duplicates", summary.Duplicates).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("ingest run finished")
	return summary, nil
}
