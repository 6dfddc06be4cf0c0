package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"gasledger/internal/alerting"
)

// TestAlert sends a synthetic run-failure notification through the
// configured channels.
func (a *App) TestAlert(ctx context.Context) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	return notifier.Notify(ctx, alerting.Notification{
		RunID:      uuid.NewString(),
		Source:     "test-alert",
		StartedAt:  time.Now().UTC(),
		Processed:  1,
		Failed:     1,
		FirstError: "simulated failure",
		Channels:   a.Config.Alerting.Channels,
	})
}
