package quotes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chartBody(price float64, ts int64) string {
	return fmt.Sprintf(`{"chart": {"result": [{"meta": {"regularMarketPrice": %f, "regularMarketTime": %d}}]}}`, price, ts)
}

func newTestProvider(srv *httptest.Server) *YahooProvider {
	p := NewYahooProvider()
	p.baseURL = srv.URL
	p.cli = srv.Client()
	return p
}

func TestYahooProvider_GetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/AAPL", r.URL.Path)
		fmt.Fprint(w, chartBody(187.23, 1741024800))
	}))
	defer srv.Close()

	p := newTestProvider(srv)
	price, asOf, err := p.GetPrice(context.Background(), "aapl")
	require.NoError(t, err)
	assert.InDelta(t, 187.23, price, 1e-9)
	assert.Equal(t, time.Unix(1741024800, 0), asOf)
}

func TestYahooProvider_CachesQuotes(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, chartBody(10, 1741024800))
	}))
	defer srv.Close()

	p := newTestProvider(srv)
	for i := 0; i < 3; i++ {
		_, _, err := p.GetPrice(context.Background(), "MSFT")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestYahooProvider_FallsBackToLastClose(t *testing.T) {
	body := `{"chart": {"result": [{
		"meta": {"regularMarketPrice": 0, "regularMarketTime": 0},
		"timestamp": [100, 200, 300],
		"indicators": {"quote": [{"close": [9.5, 9.8, 0]}]}
	}]}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	p := newTestProvider(srv)
	price, asOf, err := p.GetPrice(context.Background(), "XIU.TO")
	require.NoError(t, err)
	assert.InDelta(t, 9.8, price, 1e-9)
	assert.Equal(t, time.Unix(200, 0), asOf)
}

func TestYahooProvider_NoResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart": {"result": []}}`)
	}))
	defer srv.Close()

	p := newTestProvider(srv)
	_, _, err := p.GetPrice(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, ErrNoQuote)
}

func TestYahooProvider_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := newTestProvider(srv)
	_, _, err := p.GetPrice(context.Background(), "AAPL")
	assert.Error(t, err)
}

func TestYahooProvider_EmptySymbol(t *testing.T) {
	p := NewYahooProvider()
	_, _, err := p.GetPrice(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrNoQuote)
}
