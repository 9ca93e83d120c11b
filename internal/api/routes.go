package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tradetools/tradetools-server/internal/metrics"
)

// SetupRoutes configures all API routes. /health and /metrics stay outside
// the auth boundary so probes and scrapers need no token.
func SetupRoutes(h *Handler, verifier TokenVerifier) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(AuthMiddleware(verifier))

	ibkr := api.PathPrefix("/ibkr").Subrouter()
	handle(ibkr, "/positions", h.GetPositions, "GET")
	handle(ibkr, "/positions/{symbol}", h.GetPositionDetail, "GET")
	handle(ibkr, "/trades", h.GetTrades, "GET")
	handle(ibkr, "/trades/{trade_id}", h.UpdateTrade, "PATCH")
	handle(ibkr, "/import", h.ImportTrades, "POST")
	handle(ibkr, "/mtm", h.UpdateMTM, "POST")
	handle(ibkr, "/prices", h.GetPrices, "GET")
	handle(ibkr, "/stats/daily", h.GetDailyStats, "GET")
	handle(ibkr, "/stats/weekly", h.GetWeeklyStats, "GET")

	fbn := api.PathPrefix("/fbn").Subrouter()
	handle(fbn, "/accounts", h.GetAccounts, "GET")
	handle(fbn, "/stats/monthly", h.GetMonthlyStats, "GET")
	handle(fbn, "/stats/yearly", h.GetYearlyStats, "GET")
	handle(fbn, "/matrix/monthly", h.GetMonthlyMatrix, "GET")
	handle(fbn, "/matrix/yearly", h.GetYearlyMatrix, "GET")
	handle(fbn, "/entry/{date}/{account}", h.GetNetWorthEntry, "GET")
	handle(fbn, "/entry", h.SaveNetWorthEntry, "POST")

	return router
}

func handle(r *mux.Router, path string, fn http.HandlerFunc, methods ...string) {
	r.Handle(path, metrics.Middleware(path, fn)).Methods(methods...)
}
