package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// RawTransaction is one feed row. Numeric fields keep their string encoding.
type RawTransaction struct {
	Hash                      string
	FromAddress               string
	ToAddress                 string
	BlockNumber               string
	BlockTimestamp            string
	TransactionIndex          string
	ReceiptsGasUsed           string
	ReceiptsEffectiveGasPrice string
	MaxPriorityFeePerGas      string
}

// Source yields raw transactions in arrival order. Next returns io.EOF when drained.
type Source interface {
	Next(ctx context.Context) (RawTransaction, error)
}

var requiredColumns = []string{
	"hash",
	"from_address",
	"to_address",
	"block_number",
	"block_timestamp",
	"transaction_index",
	"receipts_gas_used",
	"receipts_effective_gas_price",
	"max_priority_fee_per_gas",
}

// CSVSource reads a transaction export with a header row. Column order is
// free and unknown columns are ignored.
type CSVSource struct {
	reader  *csv.Reader
	closer  io.Closer
	columns map[string]int
	line    int
}

// NewCSVSource reads the header from r and validates the required columns.
func NewCSVSource(r io.Reader) (*CSVSource, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("feed is empty: missing header row")
		}
		return nil, fmt.Errorf("read feed header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("feed header missing columns: %s", strings.Join(missing, ", "))
	}

	return &CSVSource{reader: reader, columns: columns, line: 1}, nil
}

// OpenCSV opens a feed file on disk.
func OpenCSV(path string) (*CSVSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed: %w", err)
	}
	src, err := NewCSVSource(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	src.closer = file
	return src, nil
}

// Next returns the next row or io.EOF.
func (s *CSVSource) Next(ctx context.Context) (RawTransaction, error) {
	if err := ctx.Err(); err != nil {
		return RawTransaction{}, err
	}

	record, err := s.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return RawTransaction{}, io.EOF
		}
		return RawTransaction{}, fmt.Errorf("read feed line %d: %w", s.line+1, err)
	}
	s.line++

	field := func(name string) string {
		idx := s.columns[name]
		if idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	return RawTransaction{
		Hash:                      field("hash"),
		FromAddress:               field("from_address"),
		ToAddress:                 field("to_address"),
		BlockNumber:               field("block_number"),
		BlockTimestamp:            field("block_timestamp"),
		TransactionIndex:          field("transaction_index"),
		ReceiptsGasUsed:           field("receipts_gas_used"),
		ReceiptsEffectiveGasPrice: field("receipts_effective_gas_price"),
		MaxPriorityFeePerGas:      field("max_priority_fee_per_gas"),
	}, nil
}

// Close releases the underlying file, if any.
func (s *CSVSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// SliceSource replays a fixed set of rows.
type SliceSource struct {
	rows []RawTransaction
	pos  int
}

// NewSliceSource wraps rows as a Source.
func NewSliceSource(rows ...RawTransaction) *SliceSource {
	return &SliceSource{rows: rows}
}

// Next returns the next row or io.EOF.
func (s *SliceSource) Next(ctx context.Context) (RawTransaction, error) {
	if err := ctx.Err(); err != nil {
		return RawTransaction{}, err
	}
	if s.pos >= len(s.rows) {
		return RawTransaction{}, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

var (
	_ Source = (*CSVSource)(nil)
	_ Source = (*SliceSource)(nil)
)
