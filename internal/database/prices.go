package database

import (
	"fmt"
	"time"

	"github.com/tradetools/tradetools-server/internal/models"
)

// UpsertPrice stores the latest observed price for a symbol, one row per
// symbol with replace semantics.
func (db *DB) UpsertPrice(symbol string, price float64, observedAt time.Time) error {
	query := `
		INSERT INTO market_prices (symbol, price, observed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol)
		DO UPDATE SET
			price = EXCLUDED.price,
			observed_at = EXCLUDED.observed_at
	`
	if _, err := db.conn.Exec(query, symbol, price, observedAt); err != nil {
		return fmt.Errorf("failed to upsert price for %s: %w", symbol, err)
	}
	return nil
}

// FetchLatestPrices returns the latest price per symbol.
func (db *DB) FetchLatestPrices() (map[string]float64, error) {
	rows, err := db.conn.Query(`SELECT symbol, price FROM market_prices`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market prices: %w", err)
	}
	defer rows.Close()

	prices := make(map[string]float64)
	for rows.Next() {
		var symbol string
		var price float64
		if err := rows.Scan(&symbol, &price); err != nil {
			return nil, fmt.Errorf("failed to scan market price: %w", err)
		}
		prices[symbol] = price
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate market prices: %w", err)
	}
	return prices, nil
}

// FetchAllPrices returns full price rows including observation times.
func (db *DB) FetchAllPrices() ([]models.MarketPrice, error) {
	rows, err := db.conn.Query(`SELECT symbol, price, observed_at FROM market_prices ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market prices: %w", err)
	}
	defer rows.Close()

	prices := []models.MarketPrice{}
	for rows.Next() {
		var p models.MarketPrice
		if err := rows.Scan(&p.Symbol, &p.Price, &p.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan market price: %w", err)
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}
