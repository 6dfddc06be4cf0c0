package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gasledger/internal/app"
)

var (
	exportFrom      string
	exportTo        string
	exportLast      time.Duration
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored transactions as CSV and/or a PNG gas cost chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		to, err := parseTimeFlag("to", exportTo)
		if err != nil {
			return err
		}
		opts.To = to

		from, err := parseTimeFlag("from", exportFrom)
		if err != nil {
			return err
		}
		if exportLast > 0 {
			if from != nil {
				return fmt.Errorf("--last and --from are mutually exclusive")
			}
			end := time.Now().UTC()
			if to != nil {
				end = *to
			}
			start := end.Add(-exportLast)
			from = &start
		}
		opts.From = from

		return getApp().Export(cmd.Context(), opts)
	},
}

// parseTimeFlag accepts RFC3339 or a bare UTC date. An empty value yields nil.
func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid --%s value %q: want RFC3339 or YYYY-MM-DD", name, value)
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Earliest execution time (RFC3339 or YYYY-MM-DD, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Latest execution time (RFC3339 or YYYY-MM-DD, exclusive)")
	exportCmd.Flags().DurationVar(&exportLast, "last", 0, "Export this much history before --to (e.g. 168h)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write the gas cost chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write transaction rows")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum rows to export (defaults to config)")
}
