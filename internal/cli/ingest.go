package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gasledger/internal/app"
)

var (
	ingestInput    string
	ingestDryRun   bool
	ingestFailFast bool
	ingestInterval time.Duration
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Enrich the transaction feed and store it",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()

		opts := app.IngestOptions{
			Input:    a.Config.Ingest.Input,
			DryRun:   ingestDryRun,
			FailFast: a.Config.Ingest.FailFast,
			Interval: a.Config.Ingest.Interval,
		}
		if cmd.Flags().Changed("input") {
			opts.Input = ingestInput
		}
		if cmd.Flags().Changed("fail-fast") {
			opts.FailFast = ingestFailFast
		}
		if cmd.Flags().Changed("interval") {
			opts.Interval = ingestInterval
		}
		if opts.Interval < 0 {
			return fmt.Errorf("--interval cannot be negative")
		}

		return a.Ingest(cmd.Context(), opts)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestInput, "input", "", "Path to the transaction CSV (defaults to config)")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "Enrich without writing to the database")
	ingestCmd.Flags().BoolVar(&ingestFailFast, "fail-fast", true, "Stop at the first record that cannot be processed")
	ingestCmd.Flags().DurationVar(&ingestInterval, "interval", 0, "Re-ingest the feed at this interval (0 runs once)")
}
