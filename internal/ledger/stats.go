package ledger

import (
	"time"

	"github.com/tradetools/tradetools-server/internal/models"
)

// DailyStats rolls realized P&L up by calendar day. The range is gap-filled
// from the first to the last trade date; weekdays are always emitted,
// weekend days only when they carry nonzero P&L. Days are taken in each
// trade's own location, no timezone conversion is performed.
func DailyStats(enriched []models.EnrichedTrade) models.DailyStatsResult {
	result := models.DailyStatsResult{Stats: []models.DailyStat{}}
	if len(enriched) == 0 {
		return result
	}

	byDay := make(map[string]float64)
	var minDay, maxDay time.Time
	for i := range enriched {
		d := normalizeDay(enriched[i].DateTime)
		byDay[dayKey(d)] += enriched[i].RealizedPnL
		if minDay.IsZero() || d.Before(minDay) {
			minDay = d
		}
		if d.After(maxDay) {
			maxDay = d
		}
	}

	for d := minDay; !d.After(maxDay); d = d.AddDate(0, 0, 1) {
		pnl := byDay[dayKey(d)]
		wd := d.Weekday()
		if (wd == time.Saturday || wd == time.Sunday) && pnl == 0 {
			continue
		}
		result.Total += pnl
		result.Stats = append(result.Stats, models.DailyStat{
			Date: dayKey(d),
			Day:  wd.String(),
			PnL:  pnl,
		})
	}
	return result
}

// WeeklyStats buckets realized P&L into Friday-ending weeks (Saturday
// through the following Friday) over the full span of trade dates. Empty
// weeks inside the span are emitted as zero rows.
func WeeklyStats(enriched []models.EnrichedTrade) models.WeeklyStatsResult {
	result := models.WeeklyStatsResult{Stats: []models.WeeklyStat{}}
	if len(enriched) == 0 {
		return result
	}

	byWeek := make(map[string]float64)
	var minWeek, maxWeek time.Time
	for i := range enriched {
		w := weekEnding(enriched[i].DateTime)
		byWeek[dayKey(w)] += enriched[i].RealizedPnL
		if minWeek.IsZero() || w.Before(minWeek) {
			minWeek = w
		}
		if w.After(maxWeek) {
			maxWeek = w
		}
	}

	for w := minWeek; !w.After(maxWeek); w = w.AddDate(0, 0, 7) {
		pnl := byWeek[dayKey(w)]
		result.Total += pnl
		result.Stats = append(result.Stats, models.WeeklyStat{
			WeekEnding: dayKey(w),
			PnL:        pnl,
		})
	}
	return result
}

func normalizeDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// weekEnding returns the Friday closing the week that contains t. A Saturday
// or Sunday trade belongs to the following Friday.
func weekEnding(t time.Time) time.Time {
	d := normalizeDay(t)
	offset := (int(time.Friday) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset)
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
