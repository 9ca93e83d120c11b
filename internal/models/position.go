package models

// Position is a per-underlying rollup of enriched trades, split by
// instrument class (stock / call / put). Positions are derived on every load
// and never stored.
type Position struct {
	Symbol        string    `json:"symbol"`
	Value         float64   `json:"value"`
	MTM           float64   `json:"mtm"`
	UnrealizedPnL float64   `json:"unrlzd_pnl"`
	StockQty      float64   `json:"s_qty"`
	CallQty       float64   `json:"c_qty"`
	PutQty        float64   `json:"p_qty"`
	StockPnL      float64   `json:"s_pnl"`
	CallPnL       float64   `json:"c_pnl"`
	PutPnL        float64   `json:"p_pnl"`
	TargetPct     float64   `json:"target_pct"`
	MTMPct        JSONFloat `json:"mtm_pct"`
}

// PositionTotals is the sum row over the emitted (nonzero-filtered)
// positions.
type PositionTotals struct {
	Value         float64 `json:"value"`
	MTM           float64 `json:"mtm"`
	UnrealizedPnL float64 `json:"unrlzd_pnl"`
	StockQty      float64 `json:"s_qty"`
	CallQty       float64 `json:"c_qty"`
	PutQty        float64 `json:"p_qty"`
	StockPnL      float64 `json:"s_pnl"`
	CallPnL       float64 `json:"c_pnl"`
	PutPnL        float64 `json:"p_pnl"`
	TargetPct     float64 `json:"target_pct"`
}

// PositionReport is the positions endpoint payload.
type PositionReport struct {
	Positions []Position     `json:"positions"`
	Totals    PositionTotals `json:"totals"`
}

// PositionSummary heads the per-symbol detail view.
type PositionSummary struct {
	Symbol    string    `json:"symbol"`
	BookPrice JSONFloat `json:"book_price"`
	StockQty  float64   `json:"stock_qty"`
	CallQty   float64   `json:"call_qty"`
	PutQty    float64   `json:"put_qty"`
	StockPnL  float64   `json:"stock_pnl"`
	CallPnL   float64   `json:"call_pnl"`
	PutPnL    float64   `json:"put_pnl"`
}

// DetailTrade is one row of the per-symbol detail view.
type DetailTrade struct {
	TradeID            string    `json:"tradeID"`
	DateTime           string    `json:"dateTime"`
	Description        string    `json:"description"`
	PutCall            string    `json:"putCall"`
	Quantity           float64   `json:"quantity"`
	TradePrice         float64   `json:"tradePrice"`
	Commission         *float64  `json:"ibCommission"`
	OpenCloseIndicator string    `json:"openCloseIndicator"`
	RealizedPnL        float64   `json:"realized_pnl"`
	RemainingQty       float64   `json:"remaining_qty"`
	Credit             JSONFloat `json:"credit"`
	Delta              *float64  `json:"delta"`
	UnderlyingPrice    *float64  `json:"und_price"`
}

// PositionDetail is the per-symbol detail payload.
type PositionDetail struct {
	Summary PositionSummary `json:"summary"`
	Trades  []DetailTrade   `json:"trades"`
}

// DailyStat is one calendar day of realized P&L.
type DailyStat struct {
	Date string  `json:"date"`
	Day  string  `json:"day"`
	PnL  float64 `json:"pnl"`
}

// DailyStatsResult is the daily stats payload with the running total.
type DailyStatsResult struct {
	Stats []DailyStat `json:"stats"`
	Total float64     `json:"total"`
}

// WeeklyStat is one Friday-ending week of realized P&L.
type WeeklyStat struct {
	WeekEnding string  `json:"week_ending"`
	PnL        float64 `json:"pnl"`
}

// WeeklyStatsResult is the weekly stats payload with the running total.
type WeeklyStatsResult struct {
	Stats []WeeklyStat `json:"stats"`
	Total float64      `json:"total"`
}
