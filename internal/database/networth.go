package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/tradetools/tradetools-server/internal/models"
)

const netWorthColumns = `
	id, date, account, portfolio, currency, investment, deposit, interest,
	dividend, distribution, tax, fee, other, cash, asset, rate`

// UpsertNetWorthEntry writes an account's ledger row for a statement date,
// replacing a previous entry for the same (date, account) pair.
func (db *DB) UpsertNetWorthEntry(e *models.NetWorthEntry) error {
	query := `
		INSERT INTO net_worth_entries (
			date, account, portfolio, currency, investment, deposit, interest,
			dividend, distribution, tax, fee, other, cash, asset, rate
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (date, account)
		DO UPDATE SET
			portfolio = EXCLUDED.portfolio,
			currency = EXCLUDED.currency,
			investment = EXCLUDED.investment,
			deposit = EXCLUDED.deposit,
			interest = EXCLUDED.interest,
			dividend = EXCLUDED.dividend,
			distribution = EXCLUDED.distribution,
			tax = EXCLUDED.tax,
			fee = EXCLUDED.fee,
			other = EXCLUDED.other,
			cash = EXCLUDED.cash,
			asset = EXCLUDED.asset,
			rate = EXCLUDED.rate
		RETURNING id
	`
	err := db.conn.QueryRow(query,
		e.Date, e.Account, e.Portfolio, e.Currency, e.Investment, e.Deposit, e.Interest,
		e.Dividend, e.Distribution, e.Tax, e.Fee, e.Other, e.Cash, e.Asset, e.Rate,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert net worth entry %s/%s: %w", e.Account, e.Date.Format("2006-01-02"), err)
	}
	return nil
}

// FetchNetWorthEntries returns all ledger rows ordered by date ascending.
func (db *DB) FetchNetWorthEntries() ([]models.NetWorthEntry, error) {
	query := `SELECT ` + netWorthColumns + ` FROM net_worth_entries ORDER BY date ASC, account ASC`
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch net worth entries: %w", err)
	}
	defer rows.Close()

	entries := []models.NetWorthEntry{}
	for rows.Next() {
		var e models.NetWorthEntry
		if err := rows.Scan(
			&e.ID, &e.Date, &e.Account, &e.Portfolio, &e.Currency, &e.Investment, &e.Deposit,
			&e.Interest, &e.Dividend, &e.Distribution, &e.Tax, &e.Fee, &e.Other, &e.Cash,
			&e.Asset, &e.Rate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan net worth entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetNetWorthEntry returns the entry for a date and account, or nil when
// none exists.
func (db *DB) GetNetWorthEntry(date time.Time, account string) (*models.NetWorthEntry, error) {
	query := `SELECT ` + netWorthColumns + ` FROM net_worth_entries WHERE date = $1 AND account = $2`
	var e models.NetWorthEntry
	err := db.conn.QueryRow(query, date, account).Scan(
		&e.ID, &e.Date, &e.Account, &e.Portfolio, &e.Currency, &e.Investment, &e.Deposit,
		&e.Interest, &e.Dividend, &e.Distribution, &e.Tax, &e.Fee, &e.Other, &e.Cash,
		&e.Asset, &e.Rate,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get net worth entry: %w", err)
	}
	return &e, nil
}
