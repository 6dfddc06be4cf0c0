package storage

// Transaction is an enriched transaction as persisted in the transactions table.
type Transaction struct {
	Hash          string  `json:"hash"`
	FromAddress   string  `json:"fromAddress"`
	ToAddress     string  `json:"toAddress"`
	BlockNumber   int64   `json:"blockNumber"`
	ExecutedAt    string  `json:"executedAt"`
	GasUsed       int64   `json:"gasUsed"`
	GasCostNative float64 `json:"-"`
	GasCostUSD    float64 `json:"gasCostInDollars"`
}

// Stats aggregates the whole table.
type Stats struct {
	Count           int64   `json:"totalTransactionsInDB"`
	TotalGasUsed    int64   `json:"totalGasUsed"`
	TotalGasCostUSD float64 `json:"totalGasCostInDollars"`
}

// InsertOutcome reports what Insert did with a record.
type InsertOutcome int

const (
	// Inserted means the record was written.
	Inserted InsertOutcome = iota + 1
	// AlreadyExists means the hash was present and nothing was written.
	AlreadyExists
)

func (o InsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case AlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// MarshalText renders the outcome label in JSON output.
func (o InsertOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}
