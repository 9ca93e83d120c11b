// Package quotes fetches live market prices. Quote lookups are fallible,
// time-bounded I/O and are kept strictly outside the accounting computation.
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrNoQuote is returned when the provider has no usable price for a symbol.
var ErrNoQuote = errors.New("quotes: no price available")

// Provider returns the latest price for a symbol.
type Provider interface {
	GetPrice(ctx context.Context, symbol string) (price float64, asOf time.Time, err error)
}

type cachedQuote struct {
	price   float64
	asOf    time.Time
	fetched time.Time
}

// YahooProvider resolves prices against the Yahoo Finance v8 chart endpoint,
// with a short in-process cache to avoid hammering the endpoint when many
// open symbols share a refresh cycle.
type YahooProvider struct {
	cli     *http.Client
	baseURL string
	ttl     time.Duration
	mu      sync.RWMutex
	cache   map[string]cachedQuote
}

// NewYahooProvider creates a provider with an 8s request timeout and 60s
// quote cache.
func NewYahooProvider() *YahooProvider {
	return &YahooProvider{
		cli:     &http.Client{Timeout: 8 * time.Second},
		baseURL: "https://query2.finance.yahoo.com/v8/finance/chart",
		ttl:     60 * time.Second,
		cache:   make(map[string]cachedQuote),
	}
}

// GetPrice returns the latest price for a symbol.
func (p *YahooProvider) GetPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return 0, time.Time{}, ErrNoQuote
	}

	p.mu.RLock()
	if c, ok := p.cache[symbol]; ok && time.Since(c.fetched) < p.ttl {
		p.mu.RUnlock()
		return c.price, c.asOf, nil
	}
	p.mu.RUnlock()

	url := fmt.Sprintf("%s/%s?interval=1m&range=1d", p.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, time.Time{}, err
	}
	req.Header.Set("User-Agent", "tradetools-server/1.0")

	resp, err := p.cli.Do(req)
	if err != nil {
		return 0, time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, time.Time{}, fmt.Errorf("quotes: http %d for %s", resp.StatusCode, symbol)
	}

	var raw struct {
		Chart struct {
			Result []struct {
				Meta struct {
					RegularMarketPrice float64 `json:"regularMarketPrice"`
					RegularMarketTime  int64   `json:"regularMarketTime"`
				} `json:"meta"`
				Timestamp  []int64 `json:"timestamp"`
				Indicators struct {
					Quote []struct {
						Close []float64 `json:"close"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return 0, time.Time{}, err
	}
	if len(raw.Chart.Result) == 0 {
		return 0, time.Time{}, ErrNoQuote
	}

	r := raw.Chart.Result[0]
	price := r.Meta.RegularMarketPrice
	asOf := time.Unix(r.Meta.RegularMarketTime, 0)

	// Fall back to the last nonzero close when the meta quote is missing.
	if (price <= 0 || r.Meta.RegularMarketTime == 0) && len(r.Timestamp) > 0 &&
		len(r.Indicators.Quote) > 0 && len(r.Indicators.Quote[0].Close) == len(r.Timestamp) {
		for i := len(r.Timestamp) - 1; i >= 0; i-- {
			if c := r.Indicators.Quote[0].Close[i]; c > 0 {
				price = c
				asOf = time.Unix(r.Timestamp[i], 0)
				break
			}
		}
	}

	if price <= 0 {
		return 0, time.Time{}, ErrNoQuote
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}

	p.mu.Lock()
	p.cache[symbol] = cachedQuote{price: price, asOf: asOf, fetched: time.Now()}
	p.mu.Unlock()

	return price, asOf, nil
}
