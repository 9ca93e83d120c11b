// Package networth aggregates the account ledger (monthly statement rows
// per account) into monthly/yearly cash-flow stats and asset matrices.
package networth

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tradetools/tradetools-server/internal/models"
)

// Service computes rollups over net-worth entries. The account catalog fixes
// the matrix column order; the reporting currency drives FX normalization.
type Service struct {
	accounts          []models.Account
	reportingCurrency string
}

// NewService creates a net-worth service.
func NewService(accounts []models.Account, reportingCurrency string) *Service {
	return &Service{accounts: accounts, reportingCurrency: reportingCurrency}
}

// Accounts returns the static account catalog.
func (s *Service) Accounts() []models.Account {
	return s.accounts
}

// PeriodStat is one month or year of aggregated cash flow.
// Pnl = asset - deposit - previous period's asset.
type PeriodStat struct {
	Date    string          `json:"date,omitempty"`
	Year    int             `json:"year,omitempty"`
	Deposit decimal.Decimal `json:"deposit"`
	Asset   decimal.Decimal `json:"asset"`
	Fee     decimal.Decimal `json:"fee"`
	PnL     decimal.Decimal `json:"pnl"`
	Pct     decimal.Decimal `json:"pct"`
}

// StatTotals sums a stats series; Asset is the final period's value, not a
// sum.
type StatTotals struct {
	Deposit decimal.Decimal `json:"deposit"`
	Asset   decimal.Decimal `json:"asset"`
	Fee     decimal.Decimal `json:"fee"`
	PnL     decimal.Decimal `json:"pnl"`
}

// StatsResult is the stats endpoint payload.
type StatsResult struct {
	Stats  []PeriodStat `json:"stats"`
	Totals StatTotals   `json:"totals"`
}

// MatrixRow is one matrix line: the period label, one value per account
// (null when the account has no entry), and the row total.
type MatrixRow struct {
	Date   string                      `json:"date,omitempty"`
	Year   int                         `json:"year,omitempty"`
	Values map[string]*decimal.Decimal `json:"values"`
	Total  decimal.Decimal             `json:"total"`
}

// MatrixResult is the matrix endpoint payload.
type MatrixResult struct {
	Accounts []string    `json:"accounts"`
	Data     []MatrixRow `json:"data"`
}

// normalize converts an entry's money columns into the reporting currency by
// its statement rate. Entries already in the reporting currency pass through.
func (s *Service) normalize(e models.NetWorthEntry) models.NetWorthEntry {
	if e.Currency == s.reportingCurrency || e.Rate.IsZero() {
		return e
	}
	e.Investment = e.Investment.Mul(e.Rate)
	e.Deposit = e.Deposit.Mul(e.Rate)
	e.Interest = e.Interest.Mul(e.Rate)
	e.Dividend = e.Dividend.Mul(e.Rate)
	e.Distribution = e.Distribution.Mul(e.Rate)
	e.Tax = e.Tax.Mul(e.Rate)
	e.Fee = e.Fee.Mul(e.Rate)
	e.Other = e.Other.Mul(e.Rate)
	e.Cash = e.Cash.Mul(e.Rate)
	e.Asset = e.Asset.Mul(e.Rate)
	return e
}

type periodAgg struct {
	key     string
	deposit decimal.Decimal
	asset   decimal.Decimal
	fee     decimal.Decimal
}

// aggregateByDate sums normalized entries per statement date, ascending.
func (s *Service) aggregateByDate(entries []models.NetWorthEntry) []periodAgg {
	byDate := make(map[string]*periodAgg)
	for _, raw := range entries {
		e := s.normalize(raw)
		key := e.Date.Format("2006-01-02")
		agg, ok := byDate[key]
		if !ok {
			agg = &periodAgg{key: key}
			byDate[key] = agg
		}
		agg.deposit = agg.deposit.Add(e.Deposit)
		agg.asset = agg.asset.Add(e.Asset)
		agg.fee = agg.fee.Add(e.Fee)
	}

	aggs := make([]periodAgg, 0, len(byDate))
	for _, agg := range byDate {
		aggs = append(aggs, *agg)
	}
	sort.Slice(aggs, func(i, j int) bool { return aggs[i].key < aggs[j].key })
	return aggs
}

// chainPnL turns a sorted aggregate series into stats rows with the
// period-over-period P&L and percentage.
func chainPnL(aggs []periodAgg) StatsResult {
	result := StatsResult{Stats: []PeriodStat{}}
	prevAsset := decimal.Zero
	hundred := decimal.NewFromInt(100)

	for _, agg := range aggs {
		pnl := agg.asset.Sub(agg.deposit).Sub(prevAsset)
		pct := decimal.Zero
		if !prevAsset.IsZero() {
			pct = pnl.Div(prevAsset).Mul(hundred)
		}
		result.Stats = append(result.Stats, PeriodStat{
			Date:    agg.key,
			Deposit: agg.deposit,
			Asset:   agg.asset,
			Fee:     agg.fee,
			PnL:     pnl,
			Pct:     pct,
		})
		result.Totals.Deposit = result.Totals.Deposit.Add(agg.deposit)
		result.Totals.Fee = result.Totals.Fee.Add(agg.fee)
		result.Totals.PnL = result.Totals.PnL.Add(pnl)
		prevAsset = agg.asset
	}
	if len(aggs) > 0 {
		result.Totals.Asset = aggs[len(aggs)-1].asset
	}
	return result
}

// MonthlyStats aggregates entries per statement date.
func (s *Service) MonthlyStats(entries []models.NetWorthEntry) StatsResult {
	return chainPnL(s.aggregateByDate(entries))
}

// YearlyStats rolls the monthly aggregates up by year: deposits and fees
// sum, the asset value is the year's last statement.
func (s *Service) YearlyStats(entries []models.NetWorthEntry) StatsResult {
	monthly := s.aggregateByDate(entries)

	var years []string
	byYear := make(map[string]*periodAgg)
	for _, m := range monthly {
		year := m.key[:4]
		agg, ok := byYear[year]
		if !ok {
			agg = &periodAgg{key: year}
			byYear[year] = agg
			years = append(years, year)
		}
		agg.deposit = agg.deposit.Add(m.deposit)
		agg.fee = agg.fee.Add(m.fee)
		agg.asset = m.asset // monthly is sorted, the last write wins
	}

	aggs := make([]periodAgg, 0, len(years))
	for _, y := range years {
		aggs = append(aggs, *byYear[y])
	}
	result := chainPnL(aggs)
	for i := range result.Stats {
		result.Stats[i].Year = atoiYear(result.Stats[i].Date)
		result.Stats[i].Date = ""
	}
	return result
}

// MonthlyMatrix pivots entries into a dates-by-accounts grid of asset
// values.
func (s *Service) MonthlyMatrix(entries []models.NetWorthEntry) MatrixResult {
	cells := make(map[string]map[string]decimal.Decimal)
	present := make(map[string]bool)
	var dates []string

	for _, raw := range entries {
		e := s.normalize(raw)
		key := e.Date.Format("2006-01-02")
		row, ok := cells[key]
		if !ok {
			row = make(map[string]decimal.Decimal)
			cells[key] = row
			dates = append(dates, key)
		}
		row[e.Account] = row[e.Account].Add(e.Asset)
		present[e.Account] = true
	}
	sort.Strings(dates)

	return s.buildMatrix(dates, cells, present, false)
}

// YearlyMatrix keeps each account's last statement per year and pivots those
// into a years-by-accounts grid.
func (s *Service) YearlyMatrix(entries []models.NetWorthEntry) MatrixResult {
	sorted := make([]models.NetWorthEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	cells := make(map[string]map[string]decimal.Decimal)
	present := make(map[string]bool)
	var years []string

	for _, raw := range sorted {
		e := s.normalize(raw)
		year := e.Date.Format("2006")
		row, ok := cells[year]
		if !ok {
			row = make(map[string]decimal.Decimal)
			cells[year] = row
			years = append(years, year)
		}
		row[e.Account] = e.Asset // entries are date-sorted, last wins
		present[e.Account] = true
	}
	sort.Strings(years)

	return s.buildMatrix(years, cells, present, true)
}

// buildMatrix assembles rows in catalog column order, appending accounts
// that appear in the data but not in the catalog.
func (s *Service) buildMatrix(keys []string, cells map[string]map[string]decimal.Decimal, present map[string]bool, yearly bool) MatrixResult {
	var columns []string
	for _, acc := range s.accounts {
		if present[acc.Name] {
			columns = append(columns, acc.Name)
			delete(present, acc.Name)
		}
	}
	var extras []string
	for name := range present {
		extras = append(extras, name)
	}
	sort.Strings(extras)
	columns = append(columns, extras...)

	result := MatrixResult{Accounts: columns, Data: []MatrixRow{}}
	for _, key := range keys {
		row := MatrixRow{Values: make(map[string]*decimal.Decimal, len(columns))}
		if yearly {
			row.Year = atoiYear(key)
		} else {
			row.Date = key
		}
		for _, acc := range columns {
			if v, ok := cells[key][acc]; ok {
				value := v
				row.Values[acc] = &value
				row.Total = row.Total.Add(v)
			} else {
				row.Values[acc] = nil
			}
		}
		result.Data = append(result.Data, row)
	}
	return result
}

func atoiYear(s string) int {
	year := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		year = year*10 + int(r-'0')
	}
	return year
}
