package pricing

import (
	"context"
	"errors"
	"fmt"
)

// DefaultSymbol is the CoinGecko coin id used when none is given.
const DefaultSymbol = "ethereum"

// DateLayout is the DD-MM-YYYY format the history endpoint expects.
const DateLayout = "02-01-2006"

// ErrUnavailable matches every failed price lookup.
var ErrUnavailable = errors.New("price unavailable")

// Source resolves the USD price of a coin on a calendar date.
type Source interface {
	Price(ctx context.Context, date, symbol string) (float64, error)
}

// UnavailableError describes why a lookup for (Date, Symbol) failed.
// Either Status is a non-2xx code or Payload holds a body without a price.
type UnavailableError struct {
	Date    string
	Symbol  string
	Status  int
	Payload string
	Err     error
}

func (e *UnavailableError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("fetch price for %s on %s: %v", e.Symbol, e.Date, e.Err)
	case e.Payload != "":
		return fmt.Sprintf("fetch price for %s on %s: %s", e.Symbol, e.Date, e.Payload)
	default:
		return fmt.Sprintf("fetch price for %s on %s: status %d", e.Symbol, e.Date, e.Status)
	}
}

// Is reports ErrUnavailable so callers need not know the concrete type.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
