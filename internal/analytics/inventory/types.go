package inventory

import "github.com/tablewise/tablewise-insights/internal/analytics/stats"

// StockStatus classifies the stock level of an item.
type StockStatus string

const (
	StatusStockout  StockStatus = "stockout"
	StatusCritical  StockStatus = "critical"
	StatusLow       StockStatus = "low"
	StatusHealthy   StockStatus = "healthy"
	StatusOverstock StockStatus = "overstock"
)

// NeedsReorder reports whether the status calls for a purchase.
func (s StockStatus) NeedsReorder() bool {
	return s == StatusStockout || s == StatusCritical || s == StatusLow
}

// Priority ranks how urgently an item needs attention.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank orders priorities, most urgent first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	}
	return 3
}

// Action types.
const (
	ActionEmergencyOrder = "emergency_order"
	ActionUrgentReorder  = "urgent_reorder"
	ActionReorder        = "reorder"
	ActionReduceOrders   = "reduce_orders"
	ActionRunPromotion   = "run_promotion"
	ActionMaintain       = "maintain"
)

// Seasonality scales forecast demand. Items listed in PerItem use their
// own factor; everything else uses Factor. Zero factors mean 1.
type Seasonality struct {
	Factor  float64            `json:"factor"`
	PerItem map[string]float64 `json:"perItem,omitempty"`
}

func (s *Seasonality) factorFor(itemID string) float64 {
	if s == nil {
		return 1
	}
	if f, ok := s.PerItem[itemID]; ok && f > 0 {
		return f
	}
	if s.Factor > 0 {
		return s.Factor
	}
	return 1
}

// Demand summarizes historical sales of one item.
type Demand struct {
	DailyAvg     float64     `json:"dailyAvg"`
	WeeklyAvg    float64     `json:"weeklyAvg"`
	MonthlyAvg   float64     `json:"monthlyAvg"`
	Trend        stats.Trend `json:"trend"`
	Volatility   float64     `json:"volatility"`
	Confidence   float64     `json:"confidence"`
	DaysObserved int         `json:"daysObserved"`
}

// Action is a suggested step for one item.
type Action struct {
	Type        string  `json:"type"`
	Quantity    float64 `json:"quantity,omitempty"`
	Description string  `json:"description"`
}

// Recommendation is the optimizer output for one item.
type Recommendation struct {
	ItemID               string      `json:"itemId"`
	Name                 string      `json:"name"`
	CurrentStock         float64     `json:"currentStock"`
	ReorderPoint         float64     `json:"reorderPoint"`
	OptimalOrderQuantity float64     `json:"optimalOrderQuantity"`
	StockStatus          StockStatus `json:"stockStatus"`
	Priority             Priority    `json:"priority"`
	DaysOfStock          float64     `json:"daysOfStock"`
	ForecastedDemand     float64     `json:"forecastedDemand"`
	Demand               Demand      `json:"demand"`
	Actions              []Action    `json:"actions"`
	EstimatedCost        float64     `json:"estimatedCost"`
	MonthlyCarryingCost  float64     `json:"monthlyCarryingCost,omitempty"`
}

// HasAction reports whether an action of the given type was suggested.
func (r Recommendation) HasAction(actionType string) bool {
	for _, a := range r.Actions {
		if a.Type == actionType {
			return true
		}
	}
	return false
}

// Summary aggregates an analysis run.
type Summary struct {
	TotalItems              int                 `json:"totalItems"`
	ByStatus                map[StockStatus]int `json:"byStatus"`
	ByPriority              map[Priority]int    `json:"byPriority"`
	ItemsNeedingReorder     int                 `json:"itemsNeedingReorder"`
	TotalReorderCost        float64             `json:"totalReorderCost"`
	MonthlySavingsPotential float64             `json:"monthlySavingsPotential"`
}

// Analysis is the full optimizer result.
type Analysis struct {
	Summary         Summary          `json:"summary"`
	Recommendations []Recommendation `json:"perItemRecommendations"`
}
