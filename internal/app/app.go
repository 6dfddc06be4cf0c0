package app

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"gasledger/internal/alerting"
	"gasledger/internal/config"
	"gasledger/internal/logging"
	"gasledger/internal/metrics"
	"gasledger/internal/pipeline"
	"gasledger/internal/pricing"
	"gasledger/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	// Out receives command output. Logs never go here.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config:  cfg,
		Logger:  logging.Component(logger, "app"),
		Metrics: metrics.New(prometheus.NewRegistry()),
		Out:     os.Stdout,
	}
}

func (a *App) newOracle() *pricing.Oracle {
	return pricing.NewOracle(pricing.OracleOptions{
		BaseURL:   a.Config.Pricing.BaseURL,
		APIKey:    a.Config.Pricing.APIKey,
		Timeout:   a.Config.Pricing.RequestTimeout,
		UserAgent: a.Config.Pricing.UserAgent,
	}, a.Logger, a.Metrics)
}

// newNotifier builds one notifier per configured channel. Telegram also
// needs alerting.telegram.enabled.
func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}

	var fanout alerting.Fanout
	for _, channel := range a.Config.Alerting.Channels {
		switch strings.ToLower(strings.TrimSpace(channel)) {
		case "telegram":
			cfg := a.Config.Alerting.Telegram
			if !cfg.Enabled {
				a.Logger.Warn().Msg("telegram channel listed but alerting.telegram.enabled is false")
				continue
			}
			fanout = append(fanout, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
		case "log":
			fanout = append(fanout, alerting.NewLogNotifier(a.Logger))
		default:
			a.Logger.Warn().Str("channel", channel).Msg("unknown alert channel ignored")
		}
	}

	if len(fanout) == 0 {
		return nil
	}
	return fanout
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func (a *App) notifyFailures(ctx context.Context, notifier alerting.Notifier, input string, startedAt time.Time, summary pipeline.Summary) {
	if notifier == nil || summary.Failed == 0 {
		return
	}

	note := alerting.Notification{
		RunID:      summary.RunID,
		Source:     input,
		StartedAt:  startedAt,
		Processed:  summary.Processed,
		Inserted:   summary.Inserted,
		Duplicates: summary.Duplicates,
		Failed:     summary.Failed,
		Channels:   a.Config.Alerting.Channels,
	}
	if summary.FirstError != nil {
		note.FirstError = summary.FirstError.Error()
	}

	// delivered even when the run itself was cancelled
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := notifier.Notify(sendCtx, note); err != nil {
		a.Logger.Error().Err(err).Str("run_id", summary.RunID).Msg("failed to send run failure alert")
	}
}

// IngestOptions configure the ingest command.
type IngestOptions struct {
	Input    string
	DryRun   bool
	FailFast bool
	Interval time.Duration
}

// ExportOptions hold parameters for exporting stored transactions.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command. A non-empty Hash shows that
// transaction only.
type ShowOptions struct {
	Limit int
	Hash  string
	JSON  bool
}
