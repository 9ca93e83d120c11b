// Package ledger implements the lot-accounting engine: FIFO matching of
// closing trades against open lots, realized P&L, mark-to-market valuation,
// position aggregation and the P&L statistics views. Everything in this
// package is a pure function of the full trade history; lot state is
// recomputed from scratch on every call and never persisted.
package ledger

import (
	"math"

	"github.com/tradetools/tradetools-server/internal/models"
)

// lot is one still-open slice of a position, pointing back at the trade that
// opened it.
type lot struct {
	idx   int     // index of the originating trade in the result slice
	qty   float64 // signed remaining quantity
	price float64 // open price
}

// ComputeRealizedPnL walks the trade list in input order (callers supply it
// ascending by trade time) and fills in realized P&L and remaining open
// quantity per trade using FIFO matching. Each symbol is processed
// independently against its own lot queue.
//
// The P&L contribution of a match is -(closePrice - openPrice) * matchQty *
// multiplier, which holds for both longs closed by sells and shorts closed
// by buys. A zero multiplier is treated as 1.
func ComputeRealizedPnL(trades []models.Trade) []models.EnrichedTrade {
	enriched := make([]models.EnrichedTrade, len(trades))
	inventory := make(map[string][]*lot)

	for i, t := range trades {
		enriched[i].Trade = t

		qty := t.Quantity
		price := t.TradePrice
		mult := t.EffectiveMultiplier()
		queue := inventory[t.Symbol]

		// Same direction as the open inventory (or nothing open): this
		// trade adds a new lot.
		if len(queue) == 0 || sameSign(queue[0].qty, qty) {
			enriched[i].RemainingQty = qty
			inventory[t.Symbol] = append(queue, &lot{idx: i, qty: qty, price: price})
			continue
		}

		// Opposite direction: consume open lots front to back.
		remaining := qty
		var totalPnL float64
		for remaining != 0 && len(queue) > 0 {
			head := queue[0]
			if math.Abs(remaining) >= math.Abs(head.qty) {
				// Lot fully closed.
				match := -head.qty
				totalPnL += -(price - head.price) * match * mult
				remaining -= match
				enriched[head.idx].RemainingQty = 0
				queue = queue[1:]
			} else {
				// Lot partially closed; shrink it toward zero.
				totalPnL += -(price - head.price) * remaining * mult
				head.qty += remaining
				enriched[head.idx].RemainingQty = head.qty
				remaining = 0
			}
		}
		enriched[i].RealizedPnL = totalPnL

		// Overshoot: the close flipped the position, the residual opens a
		// new lot at this trade's price.
		if remaining != 0 {
			enriched[i].RemainingQty = remaining
			queue = append(queue, &lot{idx: i, qty: remaining, price: price})
		}
		inventory[t.Symbol] = queue
	}

	return enriched
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

// EnrichTrades drops excluded pseudo-symbols (FX bookkeeping pairs), runs the
// FIFO pass, and computes per-trade credit and mark-to-market value against
// the supplied price map. Options are not marked to market; an unknown symbol
// marks at 0.
func EnrichTrades(trades []models.Trade, prices map[string]float64, excluded map[string]bool) []models.EnrichedTrade {
	filtered := make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if excluded[t.Symbol] {
			continue
		}
		filtered = append(filtered, t)
	}

	enriched := ComputeRealizedPnL(filtered)
	for i := range enriched {
		e := &enriched[i]
		m := e.EffectiveMultiplier()
		// Cash-flow sign: opening a long is a debit, hence the negation.
		e.Credit = e.RemainingQty * e.TradePrice * m * -1
		if !e.IsOption() {
			e.MTMPrice = prices[e.Symbol]
		}
		e.MTMValue = e.MTMPrice * e.RemainingQty
	}
	return enriched
}
