package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"gasledger/internal/storage"
)

// Show prints the most recently executed transactions, or a single one.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var txns []storage.Transaction
	if opts.Hash != "" {
		txn, err := store.Fetch(ctx, opts.Hash)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("transaction %s not found", opts.Hash)
		}
		if err != nil {
			return err
		}
		txns = append(txns, txn)
	} else {
		txns, err = store.ListRecent(ctx, opts.Limit)
		if err != nil {
			return err
		}
	}

	if opts.JSON {
		return a.printTransactionsJSON(txns)
	}
	return a.printTransactions(txns)
}

func (a *App) printTransactionsJSON(txns []storage.Transaction) error {
	enc := json.NewEncoder(a.Out)
	for _, txn := range txns {
		if err := enc.Encode(txn); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) printTransactions(txns []storage.Transaction) error {
	if len(txns) == 0 {
		fmt.Fprintln(a.Out, "no transactions found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Executed At\tHash\tBlock\tGas Used\tCost (ETH)\tCost (USD)")

	for _, txn := range txns {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\t%d\t%s\t%s\n",
			txn.ExecutedAt,
			sanitizeInline(txn.Hash),
			txn.BlockNumber,
			txn.GasUsed,
			formatDecimal(decimal.NewFromFloat(txn.GasCostNative), 9),
			formatDecimal(decimal.NewFromFloat(txn.GasCostUSD), 2),
		)
	}

	return writer.Flush()
}

// Stats prints the aggregate figures served by GET /stats.
func (a *App) Stats(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	return a.printStats(stats)
}

func (a *App) printStats(stats storage.Stats) error {
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Transactions\t%d\n", stats.Count)
	fmt.Fprintf(writer, "Total gas used\t%d\n", stats.TotalGasUsed)
	fmt.Fprintf(writer, "Total gas cost (USD)\t%s\n", formatDecimal(decimal.NewFromFloat(stats.TotalGasCostUSD), 2))
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
