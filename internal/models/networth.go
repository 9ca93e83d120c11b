package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NetWorthEntry is one account's ledger row for one statement date. Monetary
// columns use decimal since these are hand-entered statement amounts, not
// market feeds.
type NetWorthEntry struct {
	ID           int             `json:"id,omitempty"`
	Date         time.Time       `json:"date"`
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

// Account describes one entry in the static account catalog.
type Account struct {
	Name      string `json:"name"`
	Portfolio string `json:"portfolio"`
	Currency  string `json:"currency"`
}
