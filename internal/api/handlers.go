package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/tradetools/tradetools-server/internal/config"
	"github.com/tradetools/tradetools-server/internal/importer"
	"github.com/tradetools/tradetools-server/internal/ledger"
	"github.com/tradetools/tradetools-server/internal/metrics"
	"github.com/tradetools/tradetools-server/internal/models"
	"github.com/tradetools/tradetools-server/internal/networth"
	"github.com/tradetools/tradetools-server/internal/quotes"
)

// Store is the slice of the database layer the handlers need.
type Store interface {
	FetchAllTrades() ([]models.Trade, error)
	InsertTradeIfAbsent(t *models.Trade) (bool, error)
	UpdateTradeFields(tradeID string, delta, undPrice *float64) (bool, error)
	FetchLatestPrices() (map[string]float64, error)
	FetchAllPrices() ([]models.MarketPrice, error)
	UpsertPrice(symbol string, price float64, observedAt time.Time) error
	FetchNetWorthEntries() ([]models.NetWorthEntry, error)
	UpsertNetWorthEntry(e *models.NetWorthEntry) error
	GetNetWorthEntry(date time.Time, account string) (*models.NetWorthEntry, error)
	Ping() error
}

// PriceCache is the Redis last-known-price surface.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ttl time.Duration) error
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
	Ping(ctx context.Context) error
}

// Importer runs one flex report import.
type Importer interface {
	Import(ctx context.Context, queryType string) (*importer.Result, error)
}

// EventPublisher announces completed imports and price refreshes.
type EventPublisher interface {
	PublishTradesImported(ctx context.Context, queryType string, count int) error
	PublishPricesUpdated(ctx context.Context, count int) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	store     Store
	cache     PriceCache
	producer  EventPublisher
	quotes    quotes.Provider
	importer  Importer
	networth  *networth.Service
	portfolio config.PortfolioConfig

	priceTTL time.Duration
}

// NewHandler creates a new Handler. cache, producer, quotes and imp may be
// nil when the corresponding collaborator is not configured.
func NewHandler(store Store, cache PriceCache, producer EventPublisher, quoteProvider quotes.Provider, imp Importer, nw *networth.Service, portfolio config.PortfolioConfig) *Handler {
	return &Handler{
		store:     store,
		cache:     cache,
		producer:  producer,
		quotes:    quoteProvider,
		importer:  imp,
		networth:  nw,
		portfolio: portfolio,
		priceTTL:  15 * time.Minute,
	}
}

// loadEnriched reloads the full trade history and recomputes the lot
// accounting against the latest known prices. Price-store failure degrades
// to the cache rather than aborting the accounting.
func (h *Handler) loadEnriched(ctx context.Context) ([]models.EnrichedTrade, error) {
	trades, err := h.store.FetchAllTrades()
	if err != nil {
		return nil, err
	}

	prices, err := h.store.FetchLatestPrices()
	if err != nil {
		log.Printf("Warning: price store unavailable, falling back to cache: %v", err)
		prices = map[string]float64{}
		if h.cache != nil {
			symbols := make([]string, 0, len(trades))
			seen := map[string]bool{}
			for i := range trades {
				if s := trades[i].Symbol; !seen[s] {
					seen[s] = true
					symbols = append(symbols, s)
				}
			}
			if cached, cerr := h.cache.GetPrices(ctx, symbols); cerr == nil {
				prices = cached
			}
		}
	}

	return ledger.EnrichTrades(trades, prices, h.portfolio.ExcludedSymbols), nil
}

// GetPositions handles GET /api/ibkr/positions
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	sortBy := r.URL.Query().Get("sort_by")
	if sortBy == "" {
		sortBy = ledger.SortByMTM
	}
	ascending := r.URL.Query().Get("ascending") == "true"

	enriched, err := h.loadEnriched(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, ledger.AggregatePositions(enriched, h.portfolio.TargetAllocation, sortBy, ascending))
}

// GetPositionDetail handles GET /api/ibkr/positions/{symbol}
func (h *Handler) GetPositionDetail(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	enriched, err := h.loadEnriched(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	detail := ledger.PositionDetail(enriched, symbol)
	if detail == nil {
		respondError(w, http.StatusNotFound, "no trades found for "+symbol)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// GetTrades handles GET /api/ibkr/trades
func (h *Handler) GetTrades(w http.ResponseWriter, r *http.Request) {
	enriched, err := h.loadEnriched(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, enriched)
}

// UpdateTrade handles PATCH /api/ibkr/trades/{trade_id}
func (h *Handler) UpdateTrade(w http.ResponseWriter, r *http.Request) {
	tradeID := mux.Vars(r)["trade_id"]

	var req struct {
		Delta           *float64 `json:"delta"`
		UnderlyingPrice *float64 `json:"und_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Delta == nil && req.UnderlyingPrice == nil {
		respondError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	found, err := h.store.UpdateTradeFields(tradeID, req.Delta, req.UnderlyingPrice)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "trade "+tradeID+" not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ImportTrades handles POST /api/ibkr/import
func (h *Handler) ImportTrades(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		respondError(w, http.StatusServiceUnavailable, "import is not configured")
		return
	}

	req := struct {
		QueryType string `json:"query_type"`
	}{QueryType: "daily"}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := h.importer.Import(r.Context(), req.QueryType)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.TradesImported.Add(float64(result.Count))

	if h.producer != nil {
		if err := h.producer.PublishTradesImported(r.Context(), req.QueryType, result.Count); err != nil {
			log.Printf("Warning: failed to publish import event: %v", err)
		}
	}
	respondJSON(w, http.StatusOK, result)
}

// UpdateMTM handles POST /api/ibkr/mtm: refresh live prices for every stock
// symbol in the book.
func (h *Handler) UpdateMTM(w http.ResponseWriter, r *http.Request) {
	if h.quotes == nil {
		respondError(w, http.StatusServiceUnavailable, "quote provider is not configured")
		return
	}

	enriched, err := h.loadEnriched(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	seen := map[string]bool{}
	symbols := []string{}
	for i := range enriched {
		if enriched[i].IsOption() {
			continue
		}
		if s := enriched[i].Symbol; !seen[s] {
			seen[s] = true
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		respondJSON(w, http.StatusOK, importer.Result{Message: "No stock positions found"})
		return
	}

	count := 0
	for _, symbol := range symbols {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		price, asOf, err := h.quotes.GetPrice(ctx, symbol)
		cancel()
		if err != nil {
			metrics.QuoteFailures.Inc()
			log.Printf("Quote lookup failed for %s: %v", symbol, err)
			continue
		}
		if err := h.store.UpsertPrice(symbol, price, asOf); err != nil {
			log.Printf("Failed to store price for %s: %v", symbol, err)
			continue
		}
		if h.cache != nil {
			if err := h.cache.SetPrice(r.Context(), symbol, price, h.priceTTL); err != nil {
				log.Printf("Warning: failed to cache price for %s: %v", symbol, err)
			}
		}
		count++
		metrics.PricesUpdated.Inc()
	}

	if h.producer != nil {
		if err := h.producer.PublishPricesUpdated(r.Context(), count); err != nil {
			log.Printf("Warning: failed to publish price event: %v", err)
		}
	}
	respondJSON(w, http.StatusOK, importer.Result{
		Count:   count,
		Message: updatedPricesMessage(count),
	})
}

// GetPrices handles GET /api/ibkr/prices: the raw price book with
// observation timestamps.
func (h *Handler) GetPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.store.FetchAllPrices()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"prices": prices})
}

// GetDailyStats handles GET /api/ibkr/stats/daily
func (h *Handler) GetDailyStats(w http.ResponseWriter, r *http.Request) {
	enriched, err := h.loadEnriched(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, ledger.DailyStats(enriched))
}

// GetWeeklyStats handles GET /api/ibkr/stats/weekly
func (h *Handler) GetWeeklyStats(w http.ResponseWriter, r *http.Request) {
	enriched, err := h.loadEnriched(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, ledger.WeeklyStats(enriched))
}

// GetAccounts handles GET /api/fbn/accounts
func (h *Handler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"accounts": h.networth.Accounts()})
}

func (h *Handler) loadNetWorth(w http.ResponseWriter) ([]models.NetWorthEntry, bool) {
	entries, err := h.store.FetchNetWorthEntries()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return entries, true
}

// GetMonthlyStats handles GET /api/fbn/stats/monthly
func (h *Handler) GetMonthlyStats(w http.ResponseWriter, r *http.Request) {
	entries, ok := h.loadNetWorth(w)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.networth.MonthlyStats(entries))
}

// GetYearlyStats handles GET /api/fbn/stats/yearly
func (h *Handler) GetYearlyStats(w http.ResponseWriter, r *http.Request) {
	entries, ok := h.loadNetWorth(w)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.networth.YearlyStats(entries))
}

// GetMonthlyMatrix handles GET /api/fbn/matrix/monthly
func (h *Handler) GetMonthlyMatrix(w http.ResponseWriter, r *http.Request) {
	entries, ok := h.loadNetWorth(w)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.networth.MonthlyMatrix(entries))
}

// GetYearlyMatrix handles GET /api/fbn/matrix/yearly
func (h *Handler) GetYearlyMatrix(w http.ResponseWriter, r *http.Request) {
	entries, ok := h.loadNetWorth(w)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.networth.YearlyMatrix(entries))
}

// GetNetWorthEntry handles GET /api/fbn/entry/{date}/{account}
func (h *Handler) GetNetWorthEntry(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	date, err := time.Parse("2006-01-02", vars["date"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	entry, err := h.store.GetNetWorthEntry(date, vars["account"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entry == nil {
		respondError(w, http.StatusNotFound, "no entry for "+vars["account"]+" on "+vars["date"])
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// SaveNetWorthEntry handles POST /api/fbn/entry
func (h *Handler) SaveNetWorthEntry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date         string          `json:"date"`
		Account      string          `json:"account"`
		Portfolio    string          `json:"portfolio"`
		Currency     string          `json:"currency"`
		Investment   decimal.Decimal `json:"investment"`
		Deposit      decimal.Decimal `json:"deposit"`
		Interest     decimal.Decimal `json:"interest"`
		Dividend     decimal.Decimal `json:"dividend"`
		Distribution decimal.Decimal `json:"distribution"`
		Tax          decimal.Decimal `json:"tax"`
		Fee          decimal.Decimal `json:"fee"`
		Other        decimal.Decimal `json:"other"`
		Cash         decimal.Decimal `json:"cash"`
		Asset        decimal.Decimal `json:"asset"`
		Rate         decimal.Decimal `json:"rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Date == "" || req.Account == "" {
		respondError(w, http.StatusBadRequest, "date and account are required")
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	rate := req.Rate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}
	entry := &models.NetWorthEntry{
		Date:         date,
		Account:      req.Account,
		Portfolio:    req.Portfolio,
		Currency:     req.Currency,
		Investment:   req.Investment,
		Deposit:      req.Deposit,
		Interest:     req.Interest,
		Dividend:     req.Dividend,
		Distribution: req.Distribution,
		Tax:          req.Tax,
		Fee:          req.Fee,
		Other:        req.Other,
		Cash:         req.Cash,
		Asset:        req.Asset,
		Rate:         rate,
	}
	if err := h.store.UpsertNetWorthEntry(entry); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  map[string]string{},
	}
	services := health["services"].(map[string]string)

	if err := h.store.Ping(); err != nil {
		services["postgres"] = "unhealthy: " + err.Error()
		health["status"] = "degraded"
	} else {
		services["postgres"] = "healthy"
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			services["redis"] = "unhealthy: " + err.Error()
		} else {
			services["redis"] = "healthy"
		}
	} else {
		services["redis"] = "not configured"
	}

	if h.producer != nil {
		services["kafka"] = "configured"
	} else {
		services["kafka"] = "not configured"
	}

	respondJSON(w, http.StatusOK, health)
}

func updatedPricesMessage(count int) string {
	if count == 1 {
		return "Updated prices for 1 symbol"
	}
	return "Updated prices for " + strconv.Itoa(count) + " symbols"
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
