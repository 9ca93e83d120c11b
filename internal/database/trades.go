package database

import (
	"database/sql"
	"fmt"

	"github.com/tradetools/tradetools-server/internal/models"
)

const tradeColumns = `
	trade_id, account_id, underlying_symbol, symbol, description, expiry,
	put_call, strike, date_time, quantity, trade_price, multiplier,
	ib_commission, currency, notes, open_close_indicator, delta, und_price`

// FetchAllTrades returns every recorded trade ordered by execution time
// ascending, ties broken by trade id so reloads are stable. An empty table
// yields an empty slice, not an error.
func (db *DB) FetchAllTrades() ([]models.Trade, error) {
	query := `SELECT ` + tradeColumns + `
		FROM trades
		ORDER BY date_time ASC, trade_id ASC`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trades: %w", err)
	}
	defer rows.Close()

	trades := []models.Trade{}
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trades: %w", err)
	}
	return trades, nil
}

// InsertTradeIfAbsent records a trade, skipping it when the trade_id is
// already present. Returns true when a new row was written.
func (db *DB) InsertTradeIfAbsent(t *models.Trade) (bool, error) {
	query := `
		INSERT INTO trades (` + tradeColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
		ON CONFLICT (trade_id) DO NOTHING
	`
	result, err := db.conn.Exec(query,
		t.TradeID, t.AccountID, t.UnderlyingSymbol, t.Symbol, t.Description, t.Expiry,
		t.PutCall, t.Strike, t.DateTime, t.Quantity, t.TradePrice, nullIfZero(t.Multiplier),
		t.Commission, t.Currency, t.Notes, t.OpenCloseIndicator, t.Delta, t.UnderlyingPrice,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert trade %s: %w", t.TradeID, err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
}

// UpdateTradeFields updates the analyst annotation fields for a trade. A nil
// field is left untouched. Returns false when the trade_id is unknown.
func (db *DB) UpdateTradeFields(tradeID string, delta, undPrice *float64) (bool, error) {
	if delta == nil && undPrice == nil {
		return false, fmt.Errorf("no fields to update for trade %s", tradeID)
	}

	query := `
		UPDATE trades SET
			delta = COALESCE($2, delta),
			und_price = COALESCE($3, und_price)
		WHERE trade_id = $1
	`
	result, err := db.conn.Exec(query, tradeID, delta, undPrice)
	if err != nil {
		return false, fmt.Errorf("failed to update trade %s: %w", tradeID, err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
}

// TradeExists checks if a trade is already recorded.
func (db *DB) TradeExists(tradeID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM trades WHERE trade_id = $1)`
	var exists bool
	if err := db.conn.QueryRow(query, tradeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check trade existence: %w", err)
	}
	return exists, nil
}

// scanTrade maps one row to a Trade, substituting the documented defaults
// for missing numeric columns (0 for quantity/price, 1 for multiplier) so
// the engine never sees a null.
func scanTrade(rows *sql.Rows) (models.Trade, error) {
	var t models.Trade
	var accountID, underlying, description, expiry, putCall sql.NullString
	var currency, notes, openClose sql.NullString
	var quantity, tradePrice, multiplier sql.NullFloat64

	err := rows.Scan(
		&t.TradeID, &accountID, &underlying, &t.Symbol, &description, &expiry,
		&putCall, &t.Strike, &t.DateTime, &quantity, &tradePrice, &multiplier,
		&t.Commission, &currency, &notes, &openClose, &t.Delta, &t.UnderlyingPrice,
	)
	if err != nil {
		return t, fmt.Errorf("failed to scan trade: %w", err)
	}

	t.AccountID = accountID.String
	t.UnderlyingSymbol = underlying.String
	t.Description = description.String
	t.Expiry = expiry.String
	t.PutCall = putCall.String
	t.Currency = currency.String
	t.Notes = notes.String
	t.OpenCloseIndicator = openClose.String

	t.Quantity = quantity.Float64
	t.TradePrice = tradePrice.Float64
	if multiplier.Valid {
		t.Multiplier = multiplier.Float64
	} else {
		t.Multiplier = 1.0
	}
	return t, nil
}

func nullIfZero(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}
