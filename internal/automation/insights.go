package automation

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/tablewise/tablewise-insights/internal/analytics/churn"
	"github.com/tablewise/tablewise-insights/internal/analytics/forecast"
	"github.com/tablewise/tablewise-insights/internal/analytics/inventory"
	"github.com/tablewise/tablewise-insights/internal/analytics/stats"
)

// InsightFromChurn turns a churn assessment into an insight. Low-risk
// customers produce no insight.
func InsightFromChurn(a *churn.Assessment, at time.Time) (Insight, bool) {
	if a == nil || a.RiskLevel == churn.RiskLow {
		return Insight{}, false
	}
	impact := ImpactMedium
	discount := 10.0
	if a.RiskLevel == churn.RiskHigh {
		impact = ImpactHigh
		discount = 15
	}

	in := Insight{
		ID:          uuid.NewString(),
		Category:    CategoryChurn,
		Title:       fmt.Sprintf("Customer %s at %s churn risk", a.CustomerID, a.RiskLevel),
		Description: fmt.Sprintf("Risk score %.2f with %d contributing factors", a.RiskScore, len(a.ChurnFactors)),
		Impact:      impact,
		CreatedAt:   at,
	}
	seen := make(map[ActionKind]bool)
	for _, rec := range a.Recommendations {
		kind, err := ParseActionKind(rec.Action)
		if err != nil || seen[kind] {
			continue
		}
		seen[kind] = true

		var p Params
		switch kind {
		case ActionSendRetentionOffer:
			p = Params{"customerId": a.CustomerID, "discountPercent": discount}
		case ActionScheduleCampaign:
			p = Params{"name": "Win back " + a.CustomerID, "audience": a.CustomerID}
		case ActionSendNotification:
			p = Params{"recipient": a.CustomerID, "subject": rec.Title, "message": rec.Description}
		case ActionCreateTask:
			p = Params{"title": rec.Title, "description": fmt.Sprintf("%s (customer %s)", rec.Description, a.CustomerID)}
		default:
			continue
		}
		in.SuggestedActions = append(in.SuggestedActions, SuggestedAction{Action: kind, Params: p})
	}
	return in, true
}

// InsightFromReorder turns an inventory recommendation into an insight.
// Items that only need to be maintained produce no insight.
func InsightFromReorder(r inventory.Recommendation, at time.Time) (Insight, bool) {
	in := Insight{
		ID:          uuid.NewString(),
		Category:    CategoryInventory,
		Title:       fmt.Sprintf("%s stock is %s", r.Name, r.StockStatus),
		Description: fmt.Sprintf("%.0f on hand, reorder point %.0f, %.1f days of stock", r.CurrentStock, r.ReorderPoint, r.DaysOfStock),
		CreatedAt:   at,
	}
	switch r.Priority {
	case inventory.PriorityCritical, inventory.PriorityHigh:
		in.Impact = ImpactHigh
	case inventory.PriorityMedium:
		in.Impact = ImpactMedium
	default:
		in.Impact = ImpactLow
	}

	for _, act := range r.Actions {
		switch act.Type {
		case inventory.ActionEmergencyOrder:
			in.SuggestedActions = append(in.SuggestedActions, SuggestedAction{
				Action: ActionEmergencyOrder,
				Params: Params{"itemId": r.ItemID, "quantity": orderQuantity(act, r)},
			})
		case inventory.ActionUrgentReorder, inventory.ActionReorder:
			in.SuggestedActions = append(in.SuggestedActions, SuggestedAction{
				Action: ActionPlaceOrder,
				Params: Params{"itemId": r.ItemID, "quantity": orderQuantity(act, r)},
			})
		case inventory.ActionReduceOrders:
			in.SuggestedActions = append(in.SuggestedActions, SuggestedAction{
				Action: ActionSendNotification,
				Params: Params{"subject": "Overstock: " + r.Name, "message": act.Description},
			})
		case inventory.ActionRunPromotion:
			in.SuggestedActions = append(in.SuggestedActions, SuggestedAction{
				Action: ActionScheduleCampaign,
				Params: Params{"name": "Promote " + r.Name, "audience": "all_customers"},
			})
		}
	}
	if len(in.SuggestedActions) == 0 {
		return Insight{}, false
	}
	return in, true
}

func orderQuantity(act inventory.Action, r inventory.Recommendation) float64 {
	q := act.Quantity
	if q <= 0 {
		q = r.OptimalOrderQuantity
	}
	return math.Max(1, math.Ceil(q))
}

// InsightFromForecast flags strong demand swings in a forecast. A strong
// upswing suggests adding staff on the first forecast day; a strong
// downswing suggests a campaign. Anything milder produces no insight.
func InsightFromForecast(r *forecast.Result, at time.Time) (Insight, bool) {
	if r == nil {
		return Insight{}, false
	}
	metric := r.Metric
	if metric == "" {
		metric = "demand"
	}
	in := Insight{
		ID:        uuid.NewString(),
		Category:  CategoryForecast,
		Impact:    ImpactMedium,
		CreatedAt: at,
	}
	notify := SuggestedAction{Action: ActionSendNotification}

	switch r.ForecastTrend {
	case stats.TrendStrongUp:
		in.Title = fmt.Sprintf("%s expected to rise sharply", metric)
		in.Description = fmt.Sprintf("Forecast total %.0f over %d days", r.Total(), r.Horizon)
		notify.Params = Params{"subject": in.Title, "message": in.Description}
		staffing := Params{"delta": 1, "role": "floor"}
		if len(r.Dates) > 0 {
			staffing["date"] = r.Dates[0]
		}
		in.SuggestedActions = []SuggestedAction{notify, {Action: ActionAdjustStaffing, Params: staffing}}
	case stats.TrendStrongDown:
		in.Title = fmt.Sprintf("%s expected to fall sharply", metric)
		in.Description = fmt.Sprintf("Forecast total %.0f over %d days", r.Total(), r.Horizon)
		notify.Params = Params{"subject": in.Title, "message": in.Description}
		campaign := Params{"name": "Boost " + metric, "audience": "all_customers"}
		if len(r.Dates) > 0 {
			campaign["startDate"] = r.Dates[0]
		}
		in.SuggestedActions = []SuggestedAction{notify, {Action: ActionScheduleCampaign, Params: campaign}}
	default:
		return Insight{}, false
	}
	if r.Volatility > 0.3 {
		in.Impact = ImpactHigh
	}
	return in, true
}
