package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRecord("inserted", 0.1)
	m.PriceLookup("hit")
	m.ObserveHTTP("GET", "/stats", "2xx", 0.01)
}

func TestCountersAndHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRecord("inserted", 0.2)
	m.ObserveRecord("inserted", 0.1)
	m.PriceLookup("miss")

	if got := testutil.ToFloat64(m.RecordsProcessed.WithLabelValues("inserted")); got != 2 {
		t.Fatalf("want 2 inserted records, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics handler status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gasledger_price_lookups_total") {
		t.Fatal("exposition should include price lookup counter")
	}
}
