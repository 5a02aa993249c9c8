package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderRequest asks a supplier for stock.
type OrderRequest struct {
	ItemID    string
	Quantity  float64
	Supplier  string
	Emergency bool
}

// OrderConfirmation is the supplier's answer.
type OrderConfirmation struct {
	OrderID          string
	ExpectedDelivery time.Time
}

// Notification is a message to a customer or staff member.
type Notification struct {
	Channel   string
	Recipient string
	Subject   string
	Message   string
}

// Campaign is a scheduled marketing push.
type Campaign struct {
	Name     string
	Audience string
	StartsAt time.Time
}

// Task is a to-do for restaurant staff.
type Task struct {
	Title       string
	Description string
	Assignee    string
}

// StaffingChange adds or removes shifts for a role on a day.
type StaffingChange struct {
	Date  string
	Role  string
	Delta int
}

// OrderPlacer places purchase orders.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderConfirmation, error)
}

// Notifier delivers messages.
type Notifier interface {
	Notify(ctx context.Context, n Notification) (string, error)
}

// CampaignScheduler schedules marketing campaigns.
type CampaignScheduler interface {
	ScheduleCampaign(ctx context.Context, c Campaign) (string, error)
}

// TaskTracker records staff tasks.
type TaskTracker interface {
	CreateTask(ctx context.Context, t Task) (string, error)
}

// StaffPlanner changes the staff rota.
type StaffPlanner interface {
	AdjustStaffing(ctx context.Context, c StaffingChange) (string, error)
}

// Executors are the external systems action handlers call into.
type Executors struct {
	Orders    OrderPlacer
	Notifier  Notifier
	Campaigns CampaignScheduler
	Tasks     TaskTracker
	Staff     StaffPlanner
}

func (e Executors) validate() error {
	var missing []string
	if e.Orders == nil {
		missing = append(missing, "Orders")
	}
	if e.Notifier == nil {
		missing = append(missing, "Notifier")
	}
	if e.Campaigns == nil {
		missing = append(missing, "Campaigns")
	}
	if e.Tasks == nil {
		missing = append(missing, "Tasks")
	}
	if e.Staff == nil {
		missing = append(missing, "Staff")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing executors: %s", strings.Join(missing, ", "))
	}
	return nil
}

// SimulatedExecutors returns executors that succeed immediately with
// generated identifiers. They stand in for the platform integrations.
func SimulatedExecutors() Executors {
	s := simulated{}
	return Executors{Orders: s, Notifier: s, Campaigns: s, Tasks: s, Staff: s}
}

type simulated struct{}

func (simulated) PlaceOrder(ctx context.Context, req OrderRequest) (OrderConfirmation, error) {
	if err := ctx.Err(); err != nil {
		return OrderConfirmation{}, err
	}
	leadTime := 3 * 24 * time.Hour
	if req.Emergency {
		leadTime = 24 * time.Hour
	}
	return OrderConfirmation{
		OrderID:          "PO-" + uuid.NewString(),
		ExpectedDelivery: time.Now().UTC().Add(leadTime),
	}, nil
}

func (simulated) Notify(ctx context.Context, _ Notification) (string, error) {
	return simulatedID(ctx, "MSG")
}

func (simulated) ScheduleCampaign(ctx context.Context, _ Campaign) (string, error) {
	return simulatedID(ctx, "CMP")
}

func (simulated) CreateTask(ctx context.Context, _ Task) (string, error) {
	return simulatedID(ctx, "TSK")
}

func (simulated) AdjustStaffing(ctx context.Context, _ StaffingChange) (string, error) {
	return simulatedID(ctx, "ROTA")
}

func simulatedID(ctx context.Context, prefix string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return prefix + "-" + uuid.NewString(), nil
}
