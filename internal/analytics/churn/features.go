package churn

import (
	"fmt"
	"sort"
	"time"

	"github.com/tablewise/tablewise-insights/internal/analytics/stats"
	"github.com/tablewise/tablewise-insights/internal/models"
)

const (
	noOrderRecency       = 999
	defaultTenureDays    = 30
	neutralSatisfaction  = 3.0
	baseEngagement       = 0.5
	engagementSignal     = 0.1
	trendSampleSize      = 6
	trendChangeThreshold = 0.1
)

type datedOrder struct {
	at    time.Time
	total float64
}

// ExtractFeatures derives Features for customer as of asOf. Orders that
// belong to a different customer are ignored. Absent optional profile
// fields get neutral defaults; malformed values are a ValidationError.
func ExtractFeatures(customer models.CustomerProfile, orders []models.Order, asOf time.Time, windowDays int) (Features, error) {
	if windowDays <= 0 {
		windowDays = 90
	}
	today := models.Day(asOf)

	history := make([]datedOrder, 0, len(orders))
	for i, o := range orders {
		if o.CustomerID != "" && customer.ID != "" && o.CustomerID != customer.ID {
			continue
		}
		at, err := models.ParseDate(o.Date)
		if err != nil {
			return Features{}, models.NewValidationError(fmt.Sprintf("orders[%d].date", i), "%v", err)
		}
		if !models.IsFinite(o.Total) {
			return Features{}, models.NewValidationError(fmt.Sprintf("orders[%d].total", i), "total must be finite")
		}
		history = append(history, datedOrder{at: models.Day(at), total: o.Total})
	}
	sort.SliceStable(history, func(i, j int) bool { return history[i].at.Before(history[j].at) })

	f := Features{
		Recency:        noOrderRecency,
		CustomerTenure: defaultTenureDays,
		Satisfaction:   neutralSatisfaction,
	}

	if customer.SatisfactionScore != nil {
		if !models.IsFinite(*customer.SatisfactionScore) {
			return Features{}, models.NewValidationError("satisfactionScore", "must be finite")
		}
		f.Satisfaction = *customer.SatisfactionScore
	}
	if customer.Complaints != nil {
		if *customer.Complaints < 0 {
			return Features{}, models.NewValidationError("complaints", "must not be negative")
		}
		f.Complaints = *customer.Complaints
	}
	if customer.JoinedDate != "" {
		joined, err := models.ParseDate(customer.JoinedDate)
		if err != nil {
			return Features{}, models.NewValidationError("joinedDate", "%v", err)
		}
		f.CustomerTenure = max(0, models.DaysBetween(joined, today))
	}

	if n := len(history); n > 0 {
		f.Recency = max(0, models.DaysBetween(history[n-1].at, today))
	}

	windowStart := today.AddDate(0, 0, -windowDays)
	count := 0
	for _, o := range history {
		if o.at.Before(windowStart) || o.at.After(today) {
			continue
		}
		count++
		f.Monetary += o.total
	}
	f.Frequency = float64(count) / (float64(windowDays) / 30)
	if count > 0 {
		f.AvgOrderValue = f.Monetary / float64(count)
	}

	f.EngagementScore = engagement(customer, len(history), f.Recency)
	f.OrderTrend = orderTrend(history)
	return f, nil
}

func engagement(customer models.CustomerProfile, totalOrders, recency int) float64 {
	score := baseEngagement
	if customer.EmailOpens != nil && *customer.EmailOpens > 0 {
		score += engagementSignal
	}
	if customer.AppLogins != nil && *customer.AppLogins > 5 {
		score += engagementSignal
	}
	if totalOrders > 10 {
		score += engagementSignal
	}
	if recency <= 7 {
		score += engagementSignal
	}
	return stats.Clamp(score, 0, 1)
}

// orderTrend compares the first and last three of the six most recent
// orders: +1 growing, -1 declining, 0 otherwise.
func orderTrend(history []datedOrder) int {
	if len(history) < trendSampleSize {
		return 0
	}
	recent := history[len(history)-trendSampleSize:]
	half := trendSampleSize / 2
	var first, last float64
	for i, o := range recent {
		if i < half {
			first += o.total
		} else {
			last += o.total
		}
	}
	first /= float64(half)
	last /= float64(half)

	switch {
	case last > first*(1+trendChangeThreshold):
		return 1
	case last < first*(1-trendChangeThreshold):
		return -1
	}
	return 0
}
