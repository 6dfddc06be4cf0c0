package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"gasledger/internal/storage"
)

// Export renders stored transactions as CSV and/or a PNG gas cost chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := time.Unix(0, 0).UTC()
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	txns, err := store.ListBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(txns) == 0 {
		a.Logger.Info().Msg("no transactions found for export window")
		return nil
	}

	return a.writeExport(txns, opts)
}

func (a *App) writeExport(txns []storage.Transaction, opts ExportOptions) error {
	downsampled := downsampleTransactions(txns, opts.MaxPoints)
	a.Logger.Info().Int("total", len(txns)).Int("exported", len(downsampled)).Msg("exporting transactions")

	if opts.CSVPath != "" {
		if err := writeTransactionsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeGasCostPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleTransactions(txns []storage.Transaction, max int) []storage.Transaction {
	if max <= 0 || len(txns) <= max {
		return txns
	}
	if max == 1 {
		return txns[:1]
	}

	result := make([]storage.Transaction, 0, max)
	step := float64(len(txns)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(txns) {
			idx = len(txns) - 1
		}
		result = append(result, txns[idx])
	}
	return result
}

func writeTransactionsCSV(path string, txns []storage.Transaction) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"hash", "from_address", "to_address", "block_number", "executed_at", "gas_used", "gas_cost_native", "gas_cost_usd"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, txn := range txns {
		record := []string{
			txn.Hash,
			txn.FromAddress,
			txn.ToAddress,
			strconv.FormatInt(txn.BlockNumber, 10),
			txn.ExecutedAt,
			strconv.FormatInt(txn.GasUsed, 10),
			decimal.NewFromFloat(txn.GasCostNative).String(),
			formatDecimal(decimal.NewFromFloat(txn.GasCostUSD), 2),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeGasCostPNG(path string, txns []storage.Transaction) error {
	x := make([]time.Time, 0, len(txns))
	costUSD := make([]float64, 0, len(txns))
	gasUsed := make([]float64, 0, len(txns))

	for _, txn := range txns {
		executedAt, err := time.Parse(storage.ExecutedAtLayout, txn.ExecutedAt)
		if err != nil {
			continue
		}
		x = append(x, executedAt)
		costUSD = append(costUSD, txn.GasCostUSD)
		gasUsed = append(gasUsed, float64(txn.GasUsed))
	}
	if len(x) < 2 {
		return fmt.Errorf("png export needs at least two transactions, have %d", len(x))
	}

	if err := ensureDir(path); err != nil {
		return err
	}

	usdFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Gas cost (USD)",
			ValueFormatter: usdFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name: "Gas used",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Gas cost (USD)",
				XValues: x,
				YValues: costUSD,
			},
			chart.TimeSeries{
				Name:    "Gas used",
				XValues: x,
				YValues: gasUsed,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
