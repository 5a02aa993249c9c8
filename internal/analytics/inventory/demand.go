package inventory

import (
	"math"
	"time"

	"github.com/tablewise/tablewise-insights/internal/analytics/stats"
	"github.com/tablewise/tablewise-insights/internal/models"
)

const confidenceFullDays = 30

// datedSale is a validated sale.
type datedSale struct {
	day      time.Time
	quantity float64
}

// dailySeries buckets sales into days, zero-filled from the first sale in
// the window through asOf.
func dailySeries(sales []datedSale, asOf time.Time, historyDays int) []float64 {
	end := models.Day(asOf)
	windowStart := end.AddDate(0, 0, -(historyDays - 1))

	buckets := make(map[string]float64)
	var first time.Time
	for _, s := range sales {
		if s.day.Before(windowStart) || s.day.After(end) {
			continue
		}
		buckets[s.day.Format(time.DateOnly)] += s.quantity
		if first.IsZero() || s.day.Before(first) {
			first = s.day
		}
	}
	if first.IsZero() {
		return nil
	}

	days := models.DaysBetween(first, end) + 1
	series := make([]float64, days)
	for i := range series {
		series[i] = buckets[first.AddDate(0, 0, i).Format(time.DateOnly)]
	}
	return series
}

// estimateDemand summarizes a daily series. Seasonality multiplies the
// averages.
func estimateDemand(daily []float64, seasonality float64) Demand {
	if len(daily) == 0 {
		return Demand{Trend: stats.TrendStable}
	}
	avg := stats.Mean(daily) * seasonality
	cv := stats.CoefficientOfVariation(daily)
	confidence := math.Min(1, float64(len(daily))/confidenceFullDays) / (1 + cv)

	return Demand{
		DailyAvg:     avg,
		WeeklyAvg:    avg * 7,
		MonthlyAvg:   avg * 30,
		Trend:        stats.ClassifyTrend(daily),
		Volatility:   stats.StdDev(daily),
		Confidence:   stats.Clamp(confidence, 0, 1),
		DaysObserved: len(daily),
	}
}
