package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gasledger/internal/metrics"
)

const (
	defaultBaseURL = "https://api.coingecko.com/api/v3"
	apiKeyHeader   = "x-cg-demo-api-key"
)

// OracleOptions parameterise the CoinGecko history client.
type OracleOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

type cacheKey struct {
	date   string
	symbol string
}

// Oracle looks up historical USD prices and memoises successful answers
// for the life of the process. Failures are never cached.
type Oracle struct {
	opts    OracleOptions
	logger  zerolog.Logger
	metrics *metrics.Metrics
	client  *http.Client
	baseURL string

	mu    sync.RWMutex
	cache map[cacheKey]float64
}

// NewOracle constructs a price oracle with an empty cache.
func NewOracle(opts OracleOptions, logger zerolog.Logger, m *metrics.Metrics) *Oracle {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Oracle{
		opts:    opts,
		logger:  logger.With().Str("component", "price_oracle").Logger(),
		metrics: m,
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		cache:   make(map[cacheKey]float64),
	}
}

// Price returns the USD price of symbol on date (DD-MM-YYYY).
func (o *Oracle) Price(ctx context.Context, date, symbol string) (float64, error) {
	if symbol == "" {
		symbol = DefaultSymbol
	}
	key := cacheKey{date: date, symbol: symbol}

	o.mu.RLock()
	price, ok := o.cache[key]
	o.mu.RUnlock()
	if ok {
		o.metrics.PriceLookup("hit")
		return price, nil
	}

	o.logger.Debug().Str("symbol", symbol).Str("date", date).Msg("fetching historical price")
	price, err := o.fetch(ctx, date, symbol)
	if err != nil {
		o.metrics.PriceLookup("error")
		return 0, err
	}
	o.metrics.PriceLookup("miss")

	o.mu.Lock()
	o.cache[key] = price
	o.mu.Unlock()

	return price, nil
}

// CacheSize reports how many (date, symbol) pairs are memoised.
func (o *Oracle) CacheSize() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.cache)
}

func (o *Oracle) fetch(ctx context.Context, date, symbol string) (float64, error) {
	unavailable := func(err error) error {
		return &UnavailableError{Date: date, Symbol: symbol, Err: err}
	}

	if _, err := time.Parse(DateLayout, date); err != nil {
		return 0, unavailable(fmt.Errorf("date must be DD-MM-YYYY: %w", err))
	}

	query := url.Values{}
	query.Set("date", date)
	query.Set("localization", "false")
	endpoint := fmt.Sprintf("%s/coins/%s/history?%s", o.baseURL, url.PathEscape(symbol), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, unavailable(err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(o.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "gasledger/1.0")
	}
	if o.opts.APIKey != "" {
		req.Header.Set(apiKeyHeader, o.opts.APIKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, unavailable(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, unavailable(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &UnavailableError{Date: date, Symbol: symbol, Status: resp.StatusCode}
	}

	var history historyResponse
	if err := json.Unmarshal(payload, &history); err != nil || history.price() == nil {
		return 0, &UnavailableError{
			Date:    date,
			Symbol:  symbol,
			Status:  resp.StatusCode,
			Payload: strings.TrimSpace(string(payload)),
		}
	}

	return *history.price(), nil
}

type historyResponse struct {
	MarketData *struct {
		CurrentPrice struct {
			USD *float64 `json:"usd"`
		} `json:"current_price"`
	} `json:"market_data"`
}

func (h historyResponse) price() *float64 {
	if h.MarketData == nil {
		return nil
	}
	return h.MarketData.CurrentPrice.USD
}

var _ Source = (*Oracle)(nil)
