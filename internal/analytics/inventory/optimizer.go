package inventory

// Package inventory turns sales history and current stock into ranked
// reorder recommendations using reorder points and economic order
// quantities.

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tablewise/tablewise-insights/internal/analytics/stats"
	"github.com/tablewise/tablewise-insights/internal/models"
)

// noDemandDaysOfStock is reported when an item has no recorded demand.
const noDemandDaysOfStock = 999

const forecastDays = 30

// Options tunes the optimizer.
type Options struct {
	LeadTimeDays          float64
	SafetyStockMultiplier float64
	HoldingCostRate       float64
	HistoryDays           int
	DefaultOrderingCost   float64
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		LeadTimeDays:          3,
		SafetyStockMultiplier: 1.5,
		HoldingCostRate:       0.25,
		HistoryDays:           90,
		DefaultOrderingCost:   50,
	}
}

// Optimizer analyzes inventory. It is safe for concurrent use.
type Optimizer struct {
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// New creates an Optimizer. Non-positive options fall back to defaults.
func New(opts Options, logger *zap.Logger) *Optimizer {
	def := DefaultOptions()
	if opts.LeadTimeDays <= 0 {
		opts.LeadTimeDays = def.LeadTimeDays
	}
	if opts.SafetyStockMultiplier < 0 {
		opts.SafetyStockMultiplier = def.SafetyStockMultiplier
	}
	if opts.HoldingCostRate <= 0 {
		opts.HoldingCostRate = def.HoldingCostRate
	}
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = def.HistoryDays
	}
	if opts.DefaultOrderingCost <= 0 {
		opts.DefaultOrderingCost = def.DefaultOrderingCost
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{opts: opts, logger: logger, now: time.Now}
}

// Analyze runs AnalyzeAt as of now.
func (o *Optimizer) Analyze(ctx context.Context, items []models.InventoryItem, sales []models.SaleRecord, seasonality *Seasonality) (*Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return o.AnalyzeAt(items, sales, seasonality, o.now())
}

// AnalyzeAt produces one recommendation per item, most urgent first.
func (o *Optimizer) AnalyzeAt(items []models.InventoryItem, sales []models.SaleRecord, seasonality *Seasonality, asOf time.Time) (*Analysis, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}
	byItem, err := groupSales(sales)
	if err != nil {
		return nil, err
	}

	recs := make([]Recommendation, 0, len(items))
	for _, item := range items {
		daily := dailySeries(byItem[item.ID], asOf, o.opts.HistoryDays)
		demand := estimateDemand(daily, seasonality.factorFor(item.ID))
		recs = append(recs, o.recommend(item, demand))
	}

	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if a.DaysOfStock != b.DaysOfStock {
			return a.DaysOfStock < b.DaysOfStock
		}
		return a.ItemID < b.ItemID
	})

	analysis := &Analysis{Summary: summarize(recs), Recommendations: recs}
	o.logger.Debug("Inventory analyzed",
		zap.Int("items", len(items)),
		zap.Int("sales", len(sales)),
		zap.Int("needing_reorder", analysis.Summary.ItemsNeedingReorder),
	)
	return analysis, nil
}

func (o *Optimizer) recommend(item models.InventoryItem, d Demand) Recommendation {
	unitCost := valueOr(item.UnitCost, 0)
	orderingCost := valueOr(item.OrderingCost, o.opts.DefaultOrderingCost)

	rop := o.ReorderPoint(d)
	eoq := o.EOQ(d, unitCost, orderingCost)

	daysOfStock := float64(noDemandDaysOfStock)
	if d.DailyAvg > 0 {
		daysOfStock = math.Min(noDemandDaysOfStock, item.Quantity/d.DailyAvg)
	}

	status := ClassifyStock(item.Quantity, rop, d.MonthlyAvg)
	priority := PriorityFor(status, daysOfStock)

	rec := Recommendation{
		ItemID:               item.ID,
		Name:                 item.Name,
		CurrentStock:         item.Quantity,
		ReorderPoint:         rop,
		OptimalOrderQuantity: eoq,
		StockStatus:          status,
		Priority:             priority,
		DaysOfStock:          roundTo(daysOfStock, 1),
		ForecastedDemand:     roundTo(d.DailyAvg*forecastDays, 2),
		Demand:               d,
	}

	orderQty := math.Max(1, math.Max(eoq, rop-item.Quantity))
	switch status {
	case StatusStockout:
		rec.Actions = []Action{{
			Type:        ActionEmergencyOrder,
			Quantity:    orderQty,
			Description: fmt.Sprintf("Out of stock: place an emergency order of %.0f units", orderQty),
		}}
	case StatusCritical:
		rec.Actions = []Action{{
			Type:        ActionUrgentReorder,
			Quantity:    orderQty,
			Description: fmt.Sprintf("Stock at %.1f days: reorder %.0f units today", daysOfStock, orderQty),
		}}
	case StatusLow:
		rec.Actions = []Action{{
			Type:        ActionReorder,
			Quantity:    orderQty,
			Description: fmt.Sprintf("Below reorder point %.0f: order %.0f units", rop, orderQty),
		}}
	case StatusOverstock:
		target := math.Ceil(2 * d.MonthlyAvg)
		excess := item.Quantity - 2*d.MonthlyAvg
		rec.MonthlyCarryingCost = o.CarryingCost(excess, unitCost)
		rec.Actions = []Action{
			{
				Type:        ActionReduceOrders,
				Description: fmt.Sprintf("Pause purchasing until stock falls below %.0f units", target),
			},
			{
				Type:        ActionRunPromotion,
				Quantity:    math.Floor(excess),
				Description: fmt.Sprintf("Promote the item to clear %.0f excess units", math.Floor(excess)),
			},
		}
	default:
		rec.Actions = []Action{{Type: ActionMaintain, Description: "Stock level is healthy"}}
	}

	if status.NeedsReorder() {
		rec.EstimatedCost = decimal.NewFromFloat(orderQty).
			Mul(decimal.NewFromFloat(unitCost)).
			Round(2).
			InexactFloat64()
	}
	return rec
}

// ReorderPoint is lead-time demand plus safety stock, rounded up.
func (o *Optimizer) ReorderPoint(d Demand) float64 {
	rop := d.DailyAvg*o.opts.LeadTimeDays + d.Volatility*o.opts.SafetyStockMultiplier
	return math.Max(0, math.Ceil(stats.SafeFloat(rop, 0)))
}

// EOQ is the economic order quantity sqrt(2DS/H), rounded up. With no
// holding cost or no demand it falls back to two weeks of stock; a zero
// ordering cost yields zero.
func (o *Optimizer) EOQ(d Demand, unitCost, orderingCost float64) float64 {
	fallback := math.Max(0, math.Ceil(2*d.WeeklyAvg))
	annualDemand := d.DailyAvg * 365
	holdingCost := unitCost * o.opts.HoldingCostRate
	if holdingCost <= 0 || annualDemand <= 0 {
		return fallback
	}
	eoq := math.Sqrt(2 * annualDemand * orderingCost / holdingCost)
	if !isFinite(eoq) {
		return fallback
	}
	return math.Ceil(eoq)
}

// CarryingCost is the monthly cost of holding excess units.
func (o *Optimizer) CarryingCost(excess, unitCost float64) float64 {
	if excess <= 0 || unitCost <= 0 {
		return 0
	}
	return decimal.NewFromFloat(excess).
		Mul(decimal.NewFromFloat(unitCost)).
		Mul(decimal.NewFromFloat(o.opts.HoldingCostRate)).
		Div(decimal.NewFromInt(365)).
		Mul(decimal.NewFromInt(30)).
		Round(2).
		InexactFloat64()
}

// ClassifyStock maps a stock level to a status.
func ClassifyStock(quantity, reorderPoint, monthlyAvg float64) StockStatus {
	switch {
	case quantity <= 0:
		return StatusStockout
	case quantity <= 0.5*reorderPoint:
		return StatusCritical
	case quantity <= reorderPoint:
		return StatusLow
	case quantity > 2*monthlyAvg:
		return StatusOverstock
	}
	return StatusHealthy
}

// PriorityFor derives the priority from the status.
func PriorityFor(status StockStatus, daysOfStock float64) Priority {
	switch {
	case status == StatusStockout || status == StatusCritical:
		return PriorityCritical
	case status == StatusLow || daysOfStock < 7:
		return PriorityHigh
	case status == StatusOverstock:
		return PriorityMedium
	}
	return PriorityLow
}

func summarize(recs []Recommendation) Summary {
	s := Summary{
		TotalItems: len(recs),
		ByStatus: map[StockStatus]int{
			StatusStockout: 0, StatusCritical: 0, StatusLow: 0, StatusHealthy: 0, StatusOverstock: 0,
		},
		ByPriority: map[Priority]int{
			PriorityCritical: 0, PriorityHigh: 0, PriorityMedium: 0, PriorityLow: 0,
		},
	}
	reorderCost := decimal.Zero
	savings := decimal.Zero
	for _, r := range recs {
		s.ByStatus[r.StockStatus]++
		s.ByPriority[r.Priority]++
		if r.StockStatus.NeedsReorder() {
			s.ItemsNeedingReorder++
			reorderCost = reorderCost.Add(decimal.NewFromFloat(r.EstimatedCost))
		}
		savings = savings.Add(decimal.NewFromFloat(r.MonthlyCarryingCost))
	}
	s.TotalReorderCost = reorderCost.Round(2).InexactFloat64()
	s.MonthlySavingsPotential = savings.Round(2).InexactFloat64()
	return s
}

func validateItems(items []models.InventoryItem) error {
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		field := func(name string) string { return fmt.Sprintf("items[%d].%s", i, name) }
		if item.ID == "" {
			return models.NewValidationError(field("id"), "id is required")
		}
		if _, dup := seen[item.ID]; dup {
			return models.NewValidationError(field("id"), "duplicate id %q", item.ID)
		}
		seen[item.ID] = struct{}{}
		if !isFinite(item.Quantity) || item.Quantity < 0 {
			return models.NewValidationError(field("quantity"), "must be a finite non-negative number")
		}
		if item.UnitCost != nil && (!isFinite(*item.UnitCost) || *item.UnitCost < 0) {
			return models.NewValidationError(field("unitCost"), "must be a finite non-negative number")
		}
		if item.OrderingCost != nil && (!isFinite(*item.OrderingCost) || *item.OrderingCost < 0) {
			return models.NewValidationError(field("orderingCost"), "must be a finite non-negative number")
		}
	}
	return nil
}

func groupSales(sales []models.SaleRecord) (map[string][]datedSale, error) {
	byItem := make(map[string][]datedSale)
	for i, s := range sales {
		if s.ItemID == "" {
			return nil, models.NewValidationError(fmt.Sprintf("sales[%d].itemId", i), "itemId is required")
		}
		at, err := models.ParseDate(s.Date)
		if err != nil {
			return nil, models.NewValidationError(fmt.Sprintf("sales[%d].date", i), "%v", err)
		}
		if !isFinite(s.Quantity) || s.Quantity < 0 {
			return nil, models.NewValidationError(fmt.Sprintf("sales[%d].quantity", i), "must be a finite non-negative number")
		}
		byItem[s.ItemID] = append(byItem[s.ItemID], datedSale{day: models.Day(at), quantity: s.Quantity})
	}
	return byItem, nil
}

func valueOr(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}

func roundTo(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func isFinite(v float64) bool {
	return models.IsFinite(v)
}
