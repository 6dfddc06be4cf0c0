package feed

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleCSV = `hash,nonce,from_address,to_address,block_number,block_timestamp,transaction_index,receipts_gas_used,receipts_effective_gas_price,max_priority_fee_per_gas
0xaa,1,0x2,0x3,13136426,2021-09-01 12:00:00.000000 UTC,10,21000,1000000000,1000000000
0xbb,2,0x4,0x5,13136427,2021-09-01 12:00:13.123456 UTC,0,50000,2000000000,
`

func TestCSVSourceReadsRowsInOrder(t *testing.T) {
	src, err := NewCSVSource(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	ctx := context.Background()

	first, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("first row: %v", err)
	}
	want := RawTransaction{
		Hash:                      "0xaa",
		FromAddress:               "0x2",
		ToAddress:                 "0x3",
		BlockNumber:               "13136426",
		BlockTimestamp:            "2021-09-01 12:00:00.000000 UTC",
		TransactionIndex:          "10",
		ReceiptsGasUsed:           "21000",
		ReceiptsEffectiveGasPrice: "1000000000",
		MaxPriorityFeePerGas:      "1000000000",
	}
	if first != want {
		t.Fatalf("first row mismatch:\n got %+v\nwant %+v", first, want)
	}

	second, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("second row: %v", err)
	}
	if second.Hash != "0xbb" || second.MaxPriorityFeePerGas != "" {
		t.Fatalf("unexpected second row %+v", second)
	}

	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("want io.EOF after last row, got %v", err)
	}
}

func TestCSVSourceMissingColumns(t *testing.T) {
	_, err := NewCSVSource(strings.NewReader("hash,from_address\n0x1,0x2\n"))
	if err == nil {
		t.Fatal("missing columns should be rejected")
	}
	if !strings.Contains(err.Error(), "block_timestamp") {
		t.Fatalf("error should list missing columns: %v", err)
	}
}

func TestCSVSourceEmpty(t *testing.T) {
	if _, err := NewCSVSource(strings.NewReader("")); err == nil {
		t.Fatal("empty feed should be rejected")
	}
}

func TestOpenCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txs.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o600); err != nil {
		t.Fatalf("write feed: %v", err)
	}
	src, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("open feed: %v", err)
	}
	defer src.Close()

	row, err := src.Next(context.Background())
	if err != nil || row.Hash != "0xaa" {
		t.Fatalf("unexpected row %+v err %v", row, err)
	}
}

func TestSliceSourceHonoursContext(t *testing.T) {
	src := NewSliceSource(RawTransaction{Hash: "0x1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
