package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradetools/tradetools-server/internal/config"
	"github.com/tradetools/tradetools-server/internal/importer"
	"github.com/tradetools/tradetools-server/internal/models"
	"github.com/tradetools/tradetools-server/internal/networth"
)

type mockStore struct {
	trades    []models.Trade
	tradesErr error
	prices    map[string]float64
	pricesErr error

	updateFound bool
	updateErr   error
	updatedID   string

	upserted []models.MarketPrice

	nwEntries []models.NetWorthEntry
	nwSaved   []models.NetWorthEntry
	nwGet     *models.NetWorthEntry

	pingErr error
}

func (m *mockStore) FetchAllTrades() ([]models.Trade, error) {
	return m.trades, m.tradesErr
}

func (m *mockStore) InsertTradeIfAbsent(t *models.Trade) (bool, error) {
	return true, nil
}

func (m *mockStore) UpdateTradeFields(tradeID string, delta, undPrice *float64) (bool, error) {
	m.updatedID = tradeID
	return m.updateFound, m.updateErr
}

func (m *mockStore) FetchLatestPrices() (map[string]float64, error) {
	return m.prices, m.pricesErr
}

func (m *mockStore) FetchAllPrices() ([]models.MarketPrice, error) {
	out := make([]models.MarketPrice, 0, len(m.prices))
	for symbol, price := range m.prices {
		out = append(out, models.MarketPrice{Symbol: symbol, Price: price})
	}
	return out, nil
}

func (m *mockStore) UpsertPrice(symbol string, price float64, observedAt time.Time) error {
	m.upserted = append(m.upserted, models.MarketPrice{Symbol: symbol, Price: price, ObservedAt: observedAt})
	return nil
}

func (m *mockStore) FetchNetWorthEntries() ([]models.NetWorthEntry, error) {
	return m.nwEntries, nil
}

func (m *mockStore) UpsertNetWorthEntry(e *models.NetWorthEntry) error {
	m.nwSaved = append(m.nwSaved, *e)
	return nil
}

func (m *mockStore) GetNetWorthEntry(date time.Time, account string) (*models.NetWorthEntry, error) {
	return m.nwGet, nil
}

func (m *mockStore) Ping() error { return m.pingErr }

type mockCache struct {
	prices map[string]float64
	set    map[string]float64
}

func (m *mockCache) SetPrice(ctx context.Context, symbol string, price float64, ttl time.Duration) error {
	if m.set == nil {
		m.set = map[string]float64{}
	}
	m.set[symbol] = price
	return nil
}

func (m *mockCache) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	return m.prices, nil
}

func (m *mockCache) Ping(ctx context.Context) error { return nil }

type mockQuotes struct {
	prices map[string]float64
}

func (m *mockQuotes) GetPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	price, ok := m.prices[symbol]
	if !ok {
		return 0, time.Time{}, errors.New("no quote")
	}
	return price, time.Date(2025, 3, 3, 16, 0, 0, 0, time.UTC), nil
}

type mockImporter struct {
	result    *importer.Result
	err       error
	queryType string
}

func (m *mockImporter) Import(ctx context.Context, queryType string) (*importer.Result, error) {
	m.queryType = queryType
	return m.result, m.err
}

type mockProducer struct {
	imports int
	prices  int
}

func (m *mockProducer) PublishTradesImported(ctx context.Context, queryType string, count int) error {
	m.imports++
	return nil
}

func (m *mockProducer) PublishPricesUpdated(ctx context.Context, count int) error {
	m.prices++
	return nil
}

func sampleTrades() []models.Trade {
	base := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	return []models.Trade{
		{TradeID: "1", Symbol: "AAPL", UnderlyingSymbol: "AAPL", DateTime: base, Quantity: 10, TradePrice: 100},
		{TradeID: "2", Symbol: "AAPL", UnderlyingSymbol: "AAPL", DateTime: base.Add(time.Hour), Quantity: -4, TradePrice: 110},
	}
}

func newTestServer(t *testing.T, store *mockStore, opts ...func(*Handler)) *httptest.Server {
	t.Helper()
	h := NewHandler(store, nil, nil, nil, nil,
		networth.NewService([]models.Account{{Name: "MARGIN", Portfolio: "IBKR", Currency: "CAD"}}, "CAD"),
		config.PortfolioConfig{ExcludedSymbols: map[string]bool{"USD.CAD": true}},
	)
	for _, opt := range opts {
		opt(h)
	}
	srv := httptest.NewServer(SetupRoutes(h, StaticVerifier{}))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestGetPositions(t *testing.T) {
	store := &mockStore{trades: sampleTrades(), prices: map[string]float64{"AAPL": 120}}
	srv := newTestServer(t, store)

	var report models.PositionReport
	resp := getJSON(t, srv.URL+"/api/ibkr/positions", &report)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, report.Positions, 1)
	pos := report.Positions[0]
	assert.Equal(t, "AAPL", pos.Symbol)
	assert.InDelta(t, 6.0, pos.StockQty, 1e-9)
	// 6 open shares marked at 120
	assert.InDelta(t, 720.0, pos.MTM, 1e-9)
	// realized on the 4 closed shares
	assert.InDelta(t, 40.0, pos.StockPnL, 1e-9)
}

func TestGetPositions_StoreError(t *testing.T) {
	store := &mockStore{tradesErr: errors.New("connection refused")}
	srv := newTestServer(t, store)

	var body map[string]string
	resp := getJSON(t, srv.URL+"/api/ibkr/positions", &body)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body["error"], "connection refused")
}

func TestGetPositions_PriceStoreFallsBackToCache(t *testing.T) {
	store := &mockStore{trades: sampleTrades(), pricesErr: errors.New("timeout")}
	cache := &mockCache{prices: map[string]float64{"AAPL": 120}}
	srv := newTestServer(t, store, func(h *Handler) { h.cache = cache })

	var report models.PositionReport
	resp := getJSON(t, srv.URL+"/api/ibkr/positions", &report)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, report.Positions, 1)
	assert.InDelta(t, 720.0, report.Positions[0].MTM, 1e-9)
}

func TestGetPositionDetail_NotFound(t *testing.T) {
	store := &mockStore{trades: sampleTrades(), prices: map[string]float64{}}
	srv := newTestServer(t, store)

	resp := getJSON(t, srv.URL+"/api/ibkr/positions/ZZZZ", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetPositionDetail(t *testing.T) {
	store := &mockStore{trades: sampleTrades(), prices: map[string]float64{}}
	srv := newTestServer(t, store)

	var detail models.PositionDetail
	resp := getJSON(t, srv.URL+"/api/ibkr/positions/aapl", &detail)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "AAPL", detail.Summary.Symbol)
	assert.Len(t, detail.Trades, 2)
}

func TestGetTrades(t *testing.T) {
	store := &mockStore{trades: sampleTrades(), prices: map[string]float64{}}
	srv := newTestServer(t, store)

	var enriched []models.EnrichedTrade
	resp := getJSON(t, srv.URL+"/api/ibkr/trades", &enriched)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, enriched, 2)
	assert.InDelta(t, 40.0, enriched[1].RealizedPnL, 1e-9)
}

func patchJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPatch, url, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestUpdateTrade(t *testing.T) {
	store := &mockStore{updateFound: true}
	srv := newTestServer(t, store)

	resp := patchJSON(t, srv.URL+"/api/ibkr/trades/42", `{"delta": 0.55}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "42", store.updatedID)
}

func TestUpdateTrade_NoFields(t *testing.T) {
	srv := newTestServer(t, &mockStore{updateFound: true})

	resp := patchJSON(t, srv.URL+"/api/ibkr/trades/42", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateTrade_NotFound(t *testing.T) {
	srv := newTestServer(t, &mockStore{updateFound: false})

	resp := patchJSON(t, srv.URL+"/api/ibkr/trades/42", `{"und_price": 99.5}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestImportTrades(t *testing.T) {
	store := &mockStore{}
	imp := &mockImporter{result: &importer.Result{Count: 3, Message: "Imported 3 trades"}}
	producer := &mockProducer{}
	srv := newTestServer(t, store, func(h *Handler) {
		h.importer = imp
		h.producer = producer
	})

	resp, err := http.Post(srv.URL+"/api/ibkr/import", "application/json", bytes.NewBufferString(`{"query_type": "weekly"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var result importer.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 3, result.Count)
	assert.Equal(t, "weekly", imp.queryType)
	assert.Equal(t, 1, producer.imports)
}

func TestImportTrades_DefaultsToDaily(t *testing.T) {
	imp := &mockImporter{result: &importer.Result{}}
	srv := newTestServer(t, &mockStore{}, func(h *Handler) { h.importer = imp })

	resp, err := http.Post(srv.URL+"/api/ibkr/import", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "daily", imp.queryType)
}

func TestImportTrades_NotConfigured(t *testing.T) {
	srv := newTestServer(t, &mockStore{})

	resp, err := http.Post(srv.URL+"/api/ibkr/import", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestUpdateMTM(t *testing.T) {
	hundred := 100.0
	trades := sampleTrades()
	trades = append(trades, models.Trade{
		TradeID: "3", Symbol: "AAPL  250620C00100000", UnderlyingSymbol: "AAPL",
		PutCall: "C", Strike: &hundred, DateTime: trades[1].DateTime.Add(time.Hour),
		Quantity: 1, TradePrice: 2.5, Multiplier: 100,
	})
	store := &mockStore{trades: trades, prices: map[string]float64{}}
	cache := &mockCache{}
	producer := &mockProducer{}
	srv := newTestServer(t, store, func(h *Handler) {
		h.quotes = &mockQuotes{prices: map[string]float64{"AAPL": 123.45}}
		h.cache = cache
		h.producer = producer
	})

	resp, err := http.Post(srv.URL+"/api/ibkr/mtm", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var result importer.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 1, result.Count)

	// only the stock symbol is refreshed, the option is skipped
	require.Len(t, store.upserted, 1)
	assert.Equal(t, "AAPL", store.upserted[0].Symbol)
	assert.InDelta(t, 123.45, store.upserted[0].Price, 1e-9)
	assert.InDelta(t, 123.45, cache.set["AAPL"], 1e-9)
	assert.Equal(t, 1, producer.prices)
}

func TestUpdateMTM_QuoteFailureSkipsSymbol(t *testing.T) {
	store := &mockStore{trades: sampleTrades(), prices: map[string]float64{}}
	srv := newTestServer(t, store, func(h *Handler) {
		h.quotes = &mockQuotes{prices: map[string]float64{}}
	})

	resp, err := http.Post(srv.URL+"/api/ibkr/mtm", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var result importer.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 0, result.Count)
	assert.Empty(t, store.upserted)
}

func TestGetPrices(t *testing.T) {
	store := &mockStore{prices: map[string]float64{"AAPL": 120}}
	srv := newTestServer(t, store)

	var body struct {
		Prices []models.MarketPrice `json:"prices"`
	}
	resp := getJSON(t, srv.URL+"/api/ibkr/prices", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Prices, 1)
	assert.Equal(t, "AAPL", body.Prices[0].Symbol)
}

func TestGetDailyStats(t *testing.T) {
	store := &mockStore{trades: sampleTrades(), prices: map[string]float64{}}
	srv := newTestServer(t, store)

	var stats models.DailyStatsResult
	resp := getJSON(t, srv.URL+"/api/ibkr/stats/daily", &stats)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, stats.Stats, 1)
	assert.InDelta(t, 40.0, stats.Stats[0].PnL, 1e-9)
}

func TestGetAccounts(t *testing.T) {
	srv := newTestServer(t, &mockStore{})

	var body struct {
		Accounts []models.Account `json:"accounts"`
	}
	resp := getJSON(t, srv.URL+"/api/fbn/accounts", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Accounts, 1)
	assert.Equal(t, "MARGIN", body.Accounts[0].Name)
}

func TestSaveNetWorthEntry_Validation(t *testing.T) {
	srv := newTestServer(t, &mockStore{})

	resp, err := http.Post(srv.URL+"/api/fbn/entry", "application/json", bytes.NewBufferString(`{"account": "MARGIN"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSaveNetWorthEntry(t *testing.T) {
	store := &mockStore{}
	srv := newTestServer(t, store)

	body := `{"date": "2025-03-31", "account": "MARGIN", "asset": "1500.25", "deposit": "100"}`
	resp, err := http.Post(srv.URL+"/api/fbn/entry", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, store.nwSaved, 1)
	saved := store.nwSaved[0]
	assert.Equal(t, "MARGIN", saved.Account)
	assert.Equal(t, "1500.25", saved.Asset.String())
	// omitted rate defaults to 1
	assert.Equal(t, "1", saved.Rate.String())
}

func TestGetNetWorthEntry_NotFound(t *testing.T) {
	srv := newTestServer(t, &mockStore{})

	resp := getJSON(t, srv.URL+"/api/fbn/entry/2025-03-31/MARGIN", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetNetWorthEntry_BadDate(t *testing.T) {
	srv := newTestServer(t, &mockStore{})

	resp := getJSON(t, srv.URL+"/api/fbn/entry/yesterday/MARGIN", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, &mockStore{})

	var health map[string]interface{}
	resp := getJSON(t, srv.URL+"/health", &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", health["status"])
}

func TestHealthCheck_DatabaseDown(t *testing.T) {
	srv := newTestServer(t, &mockStore{pingErr: errors.New("down")})

	var health map[string]interface{}
	resp := getJSON(t, srv.URL+"/health", &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "degraded", health["status"])
}

func TestAuthMiddleware(t *testing.T) {
	store := &mockStore{trades: []models.Trade{}, prices: map[string]float64{}}
	h := NewHandler(store, nil, nil, nil, nil,
		networth.NewService(nil, "CAD"), config.PortfolioConfig{})
	srv := httptest.NewServer(SetupRoutes(h, StaticVerifier{Token: "s3cret"}))
	defer srv.Close()

	// no token
	resp, err := http.Get(srv.URL + "/api/ibkr/trades")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// wrong token
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/ibkr/trades", nil)
	req.Header.Set("Authorization", "Bearer nope")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// valid token
	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/api/ibkr/trades", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// health stays open
	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
