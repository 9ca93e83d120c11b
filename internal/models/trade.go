package models

import "time"

// Trade represents a single brokerage execution. Field names on the wire
// follow the Flex report attributes (camelCase), the schema translation to
// snake_case happens in the database layer.
type Trade struct {
	TradeID            string    `json:"tradeID"`
	AccountID          string    `json:"accountId"`
	UnderlyingSymbol   string    `json:"underlyingSymbol"`
	Symbol             string    `json:"symbol"`
	Description        string    `json:"description,omitempty"`
	Expiry             string    `json:"expiry,omitempty"`
	PutCall            string    `json:"putCall,omitempty"`
	Strike             *float64  `json:"strike,omitempty"`
	DateTime           time.Time `json:"dateTime"`
	Quantity           float64   `json:"quantity"`
	TradePrice         float64   `json:"tradePrice"`
	Multiplier         float64   `json:"multiplier,omitempty"`
	Commission         *float64  `json:"ibCommission,omitempty"`
	Currency           string    `json:"currency,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	OpenCloseIndicator string    `json:"openCloseIndicator,omitempty"`

	// Analyst annotations, the only mutable fields after a trade is recorded.
	Delta           *float64 `json:"delta,omitempty"`
	UnderlyingPrice *float64 `json:"und_price,omitempty"`
}

// IsOption reports whether the trade is an option contract.
func (t *Trade) IsOption() bool {
	return t.PutCall == "C" || t.PutCall == "P"
}

// EffectiveMultiplier returns the contract multiplier, treating an absent or
// zero value as 1.
func (t *Trade) EffectiveMultiplier() float64 {
	if t.Multiplier == 0 {
		return 1.0
	}
	return t.Multiplier
}

// EnrichedTrade is a Trade plus the quantities derived by the lot engine and
// the valuation pass. Derived fields are never persisted.
type EnrichedTrade struct {
	Trade
	RealizedPnL  float64 `json:"realized_pnl"`
	RemainingQty float64 `json:"remaining_qty"`
	Credit       float64 `json:"credit"`
	MTMPrice     float64 `json:"mtm_price"`
	MTMValue     float64 `json:"mtm_value"`
}

// MarketPrice is the latest observed price for one symbol.
type MarketPrice struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}
