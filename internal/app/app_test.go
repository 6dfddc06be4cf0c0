package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gasledger/internal/config"
	"gasledger/internal/storage"
)

const feedHeader = "hash,from_address,to_address,block_number,block_timestamp,transaction_index,receipts_gas_used,receipts_effective_gas_price,max_priority_fee_per_gas\n"

func writeFeed(t *testing.T, rows ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "txs.csv")
	content := feedHeader + strings.Join(rows, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write feed: %v", err)
	}
	return path
}

func priceServer(t *testing.T, status int, usd float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"market_data": map[string]any{"current_price": map[string]float64{"usd": usd}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(pricingURL string) (*App, *bytes.Buffer) {
	cfg := &config.Config{
		Pricing: config.PricingConfig{BaseURL: pricingURL, Symbol: "ethereum", RequestTimeout: time.Second},
		Export:  config.ExportConfig{MaxDataPoints: 100},
	}
	a := NewApp(cfg, zerolog.Nop())
	out := &bytes.Buffer{}
	a.Out = out
	return a, out
}

func TestIngestDryRunWritesJSONLines(t *testing.T) {
	srv := priceServer(t, http.StatusOK, 2)
	a, out := newTestApp(srv.URL)
	path := writeFeed(t,
		"0xa,0x1,0x2,100,2021-09-01 12:00:00.000000 UTC,0,21000,1000000000,1000000000",
		"0xb,0x1,0x2,101,2021-09-01 12:00:13.000000 UTC,1,21000,2000000000,",
	)

	err := a.Ingest(context.Background(), IngestOptions{Input: path, DryRun: true, FailFast: true})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	var lines []map[string]any
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var line map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("line is not json: %q", scanner.Text())
		}
		lines = append(lines, line)
	}
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d: %s", len(lines), out.String())
	}
	if lines[0]["outcome"] != "skipped" {
		t.Fatalf("dry-run outcome should be skipped, got %v", lines[0]["outcome"])
	}
	txn := lines[0]["transaction"].(map[string]any)
	if txn["hash"] != "0xa" || txn["executedAt"] != "2021-09-01T12:00:00.000000 UTC" {
		t.Fatalf("unexpected transaction %v", txn)
	}
	if txn["gasCostInDollars"] != 0.000084 {
		t.Fatalf("want 0.000084 USD, got %v", txn["gasCostInDollars"])
	}
	if txn["gasCostNative"] != 0.000042 {
		t.Fatalf("want 0.000042 native, got %v", txn["gasCostNative"])
	}
}

func TestIngestFailFastReturnsPriceError(t *testing.T) {
	srv := priceServer(t, http.StatusTooManyRequests, 0)
	a, out := newTestApp(srv.URL)
	path := writeFeed(t, "0xa,0x1,0x2,100,2021-09-01 12:00:00.000000 UTC,0,21000,1000000000,0")

	err := a.Ingest(context.Background(), IngestOptions{Input: path, DryRun: true, FailFast: true})
	if err == nil {
		t.Fatal("price failure should abort a fail-fast run")
	}
	if out.Len() != 0 {
		t.Fatalf("failed record must not be emitted, got %q", out.String())
	}
}

func TestIngestNotifiesOnFailures(t *testing.T) {
	prices := priceServer(t, http.StatusOK, 2)

	var alerts int32
	texts := make(chan string, 4)
	telegram := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&alerts, 1)
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		texts <- payload["text"]
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer telegram.Close()

	a, out := newTestApp(prices.URL)
	a.Config.Alerting = config.AlertingConfig{
		Enabled:  true,
		Channels: []string{"telegram", "log"},
		Telegram: config.TelegramConfig{Enabled: true, BotToken: "token", ChatID: "chat", APIBase: telegram.URL},
	}
	path := writeFeed(t,
		"0xa,0x1,0x2,100,2021-09-01 12:00:00.000000 UTC,0,21000,1000000000,0",
		"0xbad,0x1,0x2,101,not a timestamp,1,21000,1000000000,0",
	)

	err := a.Ingest(context.Background(), IngestOptions{Input: path, DryRun: true, FailFast: false})
	if err != nil {
		t.Fatalf("skip mode should finish the run: %v", err)
	}
	if got := strings.Count(out.String(), "\n"); got != 1 {
		t.Fatalf("want one emitted line, got %d", got)
	}
	if atomic.LoadInt32(&alerts) != 1 {
		t.Fatalf("want one alert, got %d", alerts)
	}
	if text := <-texts; !strings.Contains(text, "failed 1") {
		t.Fatalf("alert should count the failure: %q", text)
	}
}

func TestIngestMissingFeed(t *testing.T) {
	a, _ := newTestApp("http://127.0.0.1:0")
	err := a.Ingest(context.Background(), IngestOptions{Input: filepath.Join(t.TempDir(), "absent.csv"), DryRun: true})
	if err == nil {
		t.Fatal("missing feed should be an error")
	}
}

func TestTestAlertRequiresChannel(t *testing.T) {
	a, _ := newTestApp("")
	if err := a.TestAlert(context.Background()); err == nil {
		t.Fatal("disabled alerting should be an error")
	}
	a.Config.Alerting.Enabled = true
	if err := a.TestAlert(context.Background()); err == nil {
		t.Fatal("no channel should be an error")
	}

	a.Config.Alerting.Channels = []string{"log"}
	if err := a.TestAlert(context.Background()); err != nil {
		t.Fatalf("log channel should deliver: %v", err)
	}
}

func TestPrintTransactionsAndStats(t *testing.T) {
	a, out := newTestApp("")
	err := a.printTransactions([]storage.Transaction{{
		Hash:          "0xa",
		BlockNumber:   100,
		ExecutedAt:    "2021-09-01T12:00:00.000000 UTC",
		GasUsed:       21000,
		GasCostNative: 0.000042,
		GasCostUSD:    0.1445,
	}})
	if err != nil {
		t.Fatalf("print transactions: %v", err)
	}
	if !strings.Contains(out.String(), "0.000042000") || !strings.Contains(out.String(), "0.14") {
		t.Fatalf("unexpected table %q", out.String())
	}

	out.Reset()
	if err := a.printStats(storage.Stats{Count: 3, TotalGasUsed: 63000, TotalGasCostUSD: 1.5}); err != nil {
		t.Fatalf("print stats: %v", err)
	}
	if !strings.Contains(out.String(), "63000") || !strings.Contains(out.String(), "1.50") {
		t.Fatalf("unexpected stats %q", out.String())
	}

	out.Reset()
	if err := a.printTransactions(nil); err != nil {
		t.Fatalf("print empty: %v", err)
	}
	if !strings.Contains(out.String(), "no transactions found") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestPrintTransactionsJSON(t *testing.T) {
	a, out := newTestApp("")
	err := a.printTransactionsJSON([]storage.Transaction{{Hash: "0xa"}, {Hash: "0xb"}})
	if err != nil {
		t.Fatalf("print json: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], `"hash":"0xb"`) {
		t.Fatalf("unexpected output %q", out.String())
	}
}
