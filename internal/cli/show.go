package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"gasledger/internal/app"
)

var (
	showLimit int
	showJSON  bool
)

var showCmd = &cobra.Command{
	Use:   "show [hash]",
	Short: "Display recent transactions, or one transaction by hash",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{Limit: showLimit, JSON: showJSON}
		if len(args) == 1 {
			opts.Hash = args[0]
		}
		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of transactions to display")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print one JSON object per line instead of a table")
}
