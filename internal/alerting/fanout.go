package alerting

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// LogNotifier writes notifications to the structured log. It backs the
// "log" channel.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier builds a log-only notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the run summary at warn level.
func (n *LogNotifier) Notify(ctx context.Context, note Notification) error {
	n.logger.Warn().
		Str("run_id", note.RunID).
		Str("feed", note.Source).
		Int("processed", note.Processed).
		Int("failed", note.Failed).
		Str("first_error", note.FirstError).
		Msg("ingest run had failures")
	return nil
}

// Fanout delivers to every wrapped notifier and joins their errors.
type Fanout []Notifier

// Notify sends to all channels even when one fails.
func (f Fanout) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for i, n := range f {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, fmt.Errorf("channel %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Fanout(nil)
)
