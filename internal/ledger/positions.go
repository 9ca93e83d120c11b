package ledger

import (
	"sort"
	"strings"

	"github.com/tradetools/tradetools-server/internal/models"
)

// Valid sort keys for AggregatePositions. Anything else falls back to "mtm".
const (
	SortByMTM      = "mtm"
	SortByValue    = "value"
	SortBySymbol   = "symbol"
	SortByStockQty = "s_qty"
)

// AggregatePositions groups enriched trades by underlying symbol into
// per-symbol rollups split by instrument class, suppressing symbols whose
// numeric fields are all zero (fully closed, nothing realized). The totals
// row sums the emitted positions only.
func AggregatePositions(enriched []models.EnrichedTrade, targets map[string]float64, sortBy string, ascending bool) models.PositionReport {
	report := models.PositionReport{Positions: []models.Position{}}
	if len(enriched) == 0 {
		return report
	}

	groups := make(map[string][]*models.EnrichedTrade)
	for i := range enriched {
		e := &enriched[i]
		groups[e.UnderlyingSymbol] = append(groups[e.UnderlyingSymbol], e)
	}

	for symbol, group := range groups {
		var p models.Position
		p.Symbol = symbol
		var stockCredit float64
		for _, e := range group {
			switch e.PutCall {
			case "C":
				p.CallQty += e.RemainingQty
				p.CallPnL += e.RealizedPnL
			case "P":
				p.PutQty += e.RemainingQty
				p.PutPnL += e.RealizedPnL
			default:
				stockCredit += e.Credit
				p.MTM += e.MTMValue
				p.StockQty += e.RemainingQty
				p.StockPnL += e.RealizedPnL
			}
		}
		p.Value = -stockCredit
		p.UnrealizedPnL = p.MTM - p.Value
		p.TargetPct = targets[symbol]

		if p.Value != 0 || p.MTM != 0 ||
			p.StockQty != 0 || p.CallQty != 0 || p.PutQty != 0 ||
			p.StockPnL != 0 || p.CallPnL != 0 || p.PutPnL != 0 {
			report.Positions = append(report.Positions, p)
		}
	}

	sortPositions(report.Positions, sortBy, ascending)

	var totalMTM float64
	for _, p := range report.Positions {
		totalMTM += p.MTM
	}
	for i := range report.Positions {
		p := &report.Positions[i]
		if totalMTM != 0 {
			p.MTMPct = models.JSONFloat(p.MTM / totalMTM * 100)
		}
		report.Totals.Value += p.Value
		report.Totals.MTM += p.MTM
		report.Totals.UnrealizedPnL += p.UnrealizedPnL
		report.Totals.StockQty += p.StockQty
		report.Totals.CallQty += p.CallQty
		report.Totals.PutQty += p.PutQty
		report.Totals.StockPnL += p.StockPnL
		report.Totals.CallPnL += p.CallPnL
		report.Totals.PutPnL += p.PutPnL
		report.Totals.TargetPct += p.TargetPct
	}

	return report
}

func sortPositions(positions []models.Position, sortBy string, ascending bool) {
	switch sortBy {
	case SortByValue, SortBySymbol, SortByStockQty:
	default:
		sortBy = SortByMTM
	}

	if sortBy == SortBySymbol {
		// The symbol key inverts the flag so the default (descending
		// numeric) view still lists names A to Z.
		sort.SliceStable(positions, func(i, j int) bool {
			a, b := strings.ToLower(positions[i].Symbol), strings.ToLower(positions[j].Symbol)
			if ascending {
				return a > b
			}
			return a < b
		})
		return
	}

	key := func(p models.Position) float64 {
		switch sortBy {
		case SortByValue:
			return p.Value
		case SortByStockQty:
			return p.StockQty
		default:
			return p.MTM
		}
	}
	sort.SliceStable(positions, func(i, j int) bool {
		if ascending {
			return key(positions[i]) < key(positions[j])
		}
		return key(positions[i]) > key(positions[j])
	})
}

// PositionDetail builds the single-symbol view: a class-split summary plus
// the symbol's trades newest first. Returns nil when the symbol has no
// trades. The newest-first ordering intentionally differs from the positions
// list, matching the service this replaces.
func PositionDetail(enriched []models.EnrichedTrade, symbol string) *models.PositionDetail {
	var subset []*models.EnrichedTrade
	for i := range enriched {
		e := &enriched[i]
		if e.Symbol == symbol || e.UnderlyingSymbol == symbol {
			subset = append(subset, e)
		}
	}
	if len(subset) == 0 {
		return nil
	}

	sort.SliceStable(subset, func(i, j int) bool {
		return subset[i].DateTime.After(subset[j].DateTime)
	})

	detail := &models.PositionDetail{}
	detail.Summary.Symbol = symbol
	var stockCredit float64
	for _, e := range subset {
		switch e.PutCall {
		case "C":
			detail.Summary.CallQty += e.RemainingQty
			detail.Summary.CallPnL += e.RealizedPnL
		case "P":
			detail.Summary.PutQty += e.RemainingQty
			detail.Summary.PutPnL += e.RealizedPnL
		default:
			stockCredit += e.Credit
			detail.Summary.StockQty += e.RemainingQty
			detail.Summary.StockPnL += e.RealizedPnL
		}
	}
	if detail.Summary.StockQty != 0 {
		detail.Summary.BookPrice = models.JSONFloat(stockCredit / detail.Summary.StockQty)
	}

	detail.Trades = make([]models.DetailTrade, 0, len(subset))
	for _, e := range subset {
		detail.Trades = append(detail.Trades, models.DetailTrade{
			TradeID:            e.TradeID,
			DateTime:           e.DateTime.Format("2006-01-02 15:04"),
			Description:        e.Description,
			PutCall:            e.PutCall,
			Quantity:           e.Quantity,
			TradePrice:         e.TradePrice,
			Commission:         e.Commission,
			OpenCloseIndicator: e.OpenCloseIndicator,
			RealizedPnL:        e.RealizedPnL,
			RemainingQty:       e.RemainingQty,
			Credit:             models.JSONFloat(e.Credit),
			Delta:              e.Delta,
			UnderlyingPrice:    e.UnderlyingPrice,
		})
	}
	return detail
}
