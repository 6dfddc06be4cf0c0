// Package enrich turns raw feed rows into priced, persisted-ready transactions.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/params"
	"github.com/rs/zerolog"

	"gasledger/internal/feed"
	"gasledger/internal/pricing"
	"gasledger/internal/storage"
)

const (
	blockTimestampLayout = "2006-01-02 15:04:05.999999"
	maxFractionDigits    = 6
)

var errNotDecimal = errors.New("not a decimal integer")

// Error reports why a single record could not be enriched.
type Error struct {
	Hash string
	Err  error
}

func (e *Error) Error() string {
	if errors.Is(e.Err, pricing.ErrUnavailable) {
		return fmt.Sprintf("price lookup for %s: %v", e.Hash, e.Err)
	}
	return fmt.Sprintf("process transaction %s: %v", e.Hash, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsPriceUnavailable reports whether err stems from a failed price lookup.
func IsPriceUnavailable(err error) bool {
	return errors.Is(err, pricing.ErrUnavailable)
}

// Enricher derives execution time and gas cost for raw transactions.
type Enricher struct {
	prices pricing.Source
	symbol string
	logger zerolog.Logger
}

// New builds an Enricher pricing gas in symbol (defaults to ethereum).
func New(prices pricing.Source, symbol string, logger zerolog.Logger) *Enricher {
	if symbol == "" {
		symbol = pricing.DefaultSymbol
	}
	return &Enricher{
		prices: prices,
		symbol: symbol,
		logger: logger.With().Str("component", "enricher").Logger(),
	}
}

// Extract converts raw into a storage.Transaction. Any failure is an *Error
// and nothing about the record should be persisted. The price is looked up
// before any gas field is parsed.
func (e *Enricher) Extract(ctx context.Context, raw feed.RawTransaction) (storage.Transaction, error) {
	fail := func(err error) (storage.Transaction, error) {
		return storage.Transaction{}, &Error{Hash: raw.Hash, Err: err}
	}

	if strings.TrimSpace(raw.Hash) == "" {
		return fail(errors.New("missing hash"))
	}

	executedAt, err := ExecutionTime(raw.BlockTimestamp)
	if err != nil {
		return fail(err)
	}

	date := executedAt.Format(pricing.DateLayout)
	price, err := e.prices.Price(ctx, date, e.symbol)
	if err != nil {
		e.logger.Error().Err(err).Str("hash", raw.Hash).Str("date", date).Msg("price lookup failed")
		return fail(err)
	}

	blockNumber, err := strconv.ParseInt(strings.TrimSpace(raw.BlockNumber), 10, 64)
	if err != nil {
		return fail(fmt.Errorf("parse block_number %q: %w", raw.BlockNumber, err))
	}
	gasUsed, err := strconv.ParseInt(strings.TrimSpace(raw.ReceiptsGasUsed), 10, 64)
	if err != nil {
		return fail(fmt.Errorf("parse receipts_gas_used %q: %w", raw.ReceiptsGasUsed, err))
	}

	native, err := GasCostNative(gasUsed, raw.ReceiptsEffectiveGasPrice, raw.MaxPriorityFeePerGas)
	if err != nil {
		return fail(err)
	}

	return storage.Transaction{
		Hash:          raw.Hash,
		FromAddress:   raw.FromAddress,
		ToAddress:     raw.ToAddress,
		BlockNumber:   blockNumber,
		ExecutedAt:    FormatExecutedAt(executedAt),
		GasUsed:       gasUsed,
		GasCostNative: native,
		GasCostUSD:    native * price,
	}, nil
}

// ExecutionTime parses a feed block timestamp such as
// "2021-09-01 12:00:00.000000 UTC". The fraction must have one to six
// digits. The transaction is taken to execute at its block's timestamp;
// propagation delay inside the block is ignored.
func ExecutionTime(blockTimestamp string) (time.Time, error) {
	value := blockTimestamp
	if idx := strings.Index(value, " UTC"); idx >= 0 {
		value = value[:idx]
	}
	value = strings.TrimSpace(value)

	dot := strings.LastIndexByte(value, '.')
	if digits := len(value) - dot - 1; dot < 0 || digits == 0 || digits > maxFractionDigits {
		return time.Time{}, fmt.Errorf("parse block_timestamp %q: want 1 to %d fractional second digits", blockTimestamp, maxFractionDigits)
	}

	ts, err := time.Parse(blockTimestampLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse block_timestamp %q: %w", blockTimestamp, err)
	}
	return ts.UTC(), nil
}

// FormatExecutedAt renders t with six fractional digits and a " UTC" suffix.
func FormatExecutedAt(t time.Time) string {
	return t.UTC().Format(storage.ExecutedAtLayout)
}

// GasCostNative returns gasUsed * (gasPrice + priorityFee) scaled from wei
// to ether in two gwei steps. Wei amounts are base-10 integers of up to 256
// bits. A priority fee that is empty or not a decimal integer counts as zero.
func GasCostNative(gasUsed int64, gasPrice, priorityFee string) (float64, error) {
	price, err := parseWei("receipts_effective_gas_price", gasPrice)
	if err != nil {
		return 0, err
	}

	var tip float64
	fee, err := parseWei("max_priority_fee_per_gas", priorityFee)
	switch {
	case err == nil:
		tip = weiToGwei(fee)
	case !errors.Is(err, errNotDecimal):
		return 0, err
	}

	return float64(gasUsed) * (weiToGwei(price) + tip) / params.GWei, nil
}

// parseWei reads a base-10 wei amount. Hex is rejected.
func parseWei(field, value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if !isDecimal(value) {
		return nil, fmt.Errorf("parse %s %q: %w", field, value, errNotDecimal)
	}
	wei, ok := math.ParseBig256(strings.TrimPrefix(value, "+"))
	if !ok {
		return nil, fmt.Errorf("parse %s %q: exceeds 256 bits", field, value)
	}
	return wei, nil
}

func isDecimal(value string) bool {
	digits := strings.TrimLeft(value, "+-")
	if len(value)-len(digits) > 1 || digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func weiToGwei(wei *big.Int) float64 {
	f, _ := new(big.Float).SetInt(wei).Float64()
	return f / params.GWei
}
