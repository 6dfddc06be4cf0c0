package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"gasledger/internal/enrich"
	"gasledger/internal/feed"
	"gasledger/internal/metrics"
	"gasledger/internal/pricing"
	"gasledger/internal/storage"
)

type fakeEnricher struct {
	failures map[string]error
}

func (f *fakeEnricher) Extract(ctx context.Context, raw feed.RawTransaction) (storage.Transaction, error) {
	if err, ok := f.failures[raw.Hash]; ok {
		return storage.Transaction{}, &enrich.Error{Hash: raw.Hash, Err: err}
	}
	return storage.Transaction{Hash: raw.Hash, GasUsed: 21000, GasCostUSD: 1.5}, nil
}

type memoryStore struct {
	rows   map[string]storage.Transaction
	writes int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: make(map[string]storage.Transaction)}
}

func (m *memoryStore) Insert(ctx context.Context, txn storage.Transaction) (storage.InsertOutcome, error) {
	if _, ok := m.rows[txn.Hash]; ok {
		return storage.AlreadyExists, nil
	}
	m.rows[txn.Hash] = txn
	m.writes++
	return storage.Inserted, nil
}

func rows(hashes ...string) *feed.SliceSource {
	out := make([]feed.RawTransaction, 0, len(hashes))
	for _, h := range hashes {
		out = append(out, feed.RawTransaction{Hash: h})
	}
	return feed.NewSliceSource(out...)
}

func TestRunReportsDedupeOutcomes(t *testing.T) {
	store := newMemoryStore()
	m := metrics.New(prometheus.NewRegistry())
	p := New(&fakeEnricher{}, store, Options{FailFast: true}, m, zerolog.Nop())

	var emitted []Result
	summary, err := p.Run(context.Background(), rows("0xa", "0xb", "0xa"), func(r Result) error {
		emitted = append(emitted, r)
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	wantOutcomes := []Outcome{OutcomeInserted, OutcomeInserted, OutcomeAlreadyExists}
	if len(emitted) != len(wantOutcomes) {
		t.Fatalf("want %d results, got %d", len(wantOutcomes), len(emitted))
	}
	for i, want := range wantOutcomes {
		if emitted[i].Outcome != want {
			t.Errorf("result %d: want %s, got %s", i, want, emitted[i].Outcome)
		}
	}
	if emitted[2].Transaction.Hash != "0xa" {
		t.Fatalf("duplicate result should carry the enriched payload")
	}
	if summary.Processed != 3 || summary.Inserted != 2 || summary.Duplicates != 1 || summary.Failed != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.RunID == "" {
		t.Fatal("run id should be set")
	}
	if store.writes != 2 {
		t.Fatalf("want 2 writes, got %d", store.writes)
	}
	if got := testutil.ToFloat64(m.RecordsProcessed.WithLabelValues("already_exists")); got != 1 {
		t.Fatalf("want one already_exists record counted, got %v", got)
	}
}

func TestRunFailFastStopsWithoutWriting(t *testing.T) {
	store := newMemoryStore()
	priceErr := &pricing.UnavailableError{Date: "01-09-2001", Symbol: "ethereum", Status: 404}
	p := New(&fakeEnricher{failures: map[string]error{"0xbad": priceErr}}, store, Options{FailFast: true}, nil, zerolog.Nop())

	summary, err := p.Run(context.Background(), rows("0xa", "0xbad", "0xc"), nil)
	if !errors.Is(err, pricing.ErrUnavailable) {
		t.Fatalf("want price failure to end the run, got %v", err)
	}
	if _, ok := store.rows["0xbad"]; ok {
		t.Fatal("failed record must not be written")
	}
	if _, ok := store.rows["0xc"]; ok {
		t.Fatal("records after a fatal failure must not be processed")
	}
	if summary.Processed != 2 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestRunSkipsFailuresWhenNotFailFast(t *testing.T) {
	store := newMemoryStore()
	p := New(&fakeEnricher{failures: map[string]error{"0xbad": errors.New("bad timestamp")}}, store, Options{}, nil, zerolog.Nop())

	summary, err := p.Run(context.Background(), rows("0xa", "0xbad", "0xc"), nil)
	if err != nil {
		t.Fatalf("run should continue past failures: %v", err)
	}
	if summary.Failed != 1 || summary.Inserted != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.FirstError == nil {
		t.Fatal("first error should be recorded")
	}
	if len(store.rows) != 2 {
		t.Fatalf("want 2 stored rows, got %d", len(store.rows))
	}
}

func TestProcessDryRunDoesNotWrite(t *testing.T) {
	p := New(&fakeEnricher{}, nil, Options{DryRun: true}, nil, zerolog.Nop())

	result, err := p.Process(context.Background(), feed.RawTransaction{Hash: "0xa"})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if result.Outcome != OutcomeSkipped || result.Transaction.Hash != "0xa" {
		t.Fatalf("unexpected dry-run result %+v", result)
	}
}

func TestProcessWithoutStore(t *testing.T) {
	p := New(&fakeEnricher{}, nil, Options{}, nil, zerolog.Nop())
	if _, err := p.Process(context.Background(), feed.RawTransaction{Hash: "0xa"}); !errors.Is(err, storage.ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured, got %v", err)
	}
}

func TestResultJSONIncludesNativeCost(t *testing.T) {
	result := Result{
		Outcome:     OutcomeInserted,
		Transaction: storage.Transaction{Hash: "0xa", GasUsed: 21000, GasCostNative: 0.000042, GasCostUSD: 0.000084},
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var line struct {
		Outcome     string         `json:"outcome"`
		Transaction map[string]any `json:"transaction"`
	}
	if err := json.Unmarshal(data, &line); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	if line.Outcome != "inserted" {
		t.Fatalf("unexpected outcome %q", line.Outcome)
	}
	if line.Transaction["gasCostNative"] != 0.000042 || line.Transaction["gasCostInDollars"] != 0.000084 {
		t.Fatalf("both costs should be emitted, got %s", data)
	}
	if line.Transaction["hash"] != "0xa" {
		t.Fatalf("embedded fields should be flattened, got %s", data)
	}

	api, err := json.Marshal(result.Transaction)
	if err != nil {
		t.Fatalf("marshal transaction: %v", err)
	}
	if strings.Contains(string(api), "gasCostNative") {
		t.Fatalf("the read API shape must not change, got %s", api)
	}
}
