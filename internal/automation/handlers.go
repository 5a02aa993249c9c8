package automation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tablewise/tablewise-insights/internal/models"
)

const (
	defaultOfferDiscount = 10.0
	maxOfferDiscount     = 50.0
	defaultChannel       = "email"
)

// validateParams checks the arguments each action kind needs before any
// handler runs.
func validateParams(kind ActionKind, p Params) error {
	switch kind {
	case ActionPlaceOrder, ActionEmergencyOrder:
		if _, ok := p.String("itemId"); !ok {
			return models.NewValidationError("params.itemId", "itemId is required")
		}
		qty, ok := p.Float("quantity")
		if !ok || !models.IsFinite(qty) || qty <= 0 {
			return models.NewValidationError("params.quantity", "quantity must be a positive number")
		}
	case ActionSendRetentionOffer:
		if _, ok := p.String("customerId"); !ok {
			return models.NewValidationError("params.customerId", "customerId is required")
		}
		if d, ok := p.Float("discountPercent"); ok && (d <= 0 || d > maxOfferDiscount) {
			return models.NewValidationError("params.discountPercent", "discount must be in (0, %.0f]", maxOfferDiscount)
		}
	case ActionScheduleCampaign:
		if _, ok := p.String("name"); !ok {
			return models.NewValidationError("params.name", "campaign name is required")
		}
		if start, ok := p.String("startDate"); ok {
			if _, err := models.ParseDate(start); err != nil {
				return models.NewValidationError("params.startDate", "%v", err)
			}
		}
	case ActionCreateTask:
		if _, ok := p.String("title"); !ok {
			return models.NewValidationError("params.title", "title is required")
		}
	case ActionSendNotification:
		if _, ok := p.String("message"); !ok {
			return models.NewValidationError("params.message", "message is required")
		}
	case ActionAdjustStaffing:
		delta, ok := p.Float("delta")
		if !ok || delta == 0 || delta != math.Trunc(delta) {
			return models.NewValidationError("params.delta", "delta must be a non-zero whole number")
		}
		if date, ok := p.String("date"); ok {
			if _, err := models.ParseDate(date); err != nil {
				return models.NewValidationError("params.date", "%v", err)
			}
		}
	default:
		return &UnknownActionError{Action: string(kind)}
	}
	return nil
}

// dispatch calls the executor for kind. Params have been validated.
func (e *Engine) dispatch(ctx context.Context, kind ActionKind, p Params) (map[string]any, error) {
	switch kind {
	case ActionPlaceOrder, ActionEmergencyOrder:
		itemID, _ := p.String("itemId")
		qty, _ := p.Float("quantity")
		supplier, _ := p.String("supplier")
		conf, err := e.exec.Orders.PlaceOrder(ctx, OrderRequest{
			ItemID:    itemID,
			Quantity:  qty,
			Supplier:  supplier,
			Emergency: kind == ActionEmergencyOrder,
		})
		if err != nil {
			return nil, fmt.Errorf("place order for %s: %w", itemID, err)
		}
		return map[string]any{
			"orderId":          conf.OrderID,
			"itemId":           itemID,
			"quantity":         qty,
			"expectedDelivery": conf.ExpectedDelivery.Format(time.RFC3339),
		}, nil

	case ActionSendRetentionOffer:
		customerID, _ := p.String("customerId")
		discount, ok := p.Float("discountPercent")
		if !ok {
			discount = defaultOfferDiscount
		}
		code := fmt.Sprintf("COMEBACK%.0f", discount)
		id, err := e.exec.Notifier.Notify(ctx, Notification{
			Channel:   defaultChannel,
			Recipient: customerID,
			Subject:   "We miss you",
			Message:   fmt.Sprintf("Enjoy %.0f%% off your next order with code %s", discount, code),
		})
		if err != nil {
			return nil, fmt.Errorf("send retention offer to %s: %w", customerID, err)
		}
		return map[string]any{
			"messageId":       id,
			"customerId":      customerID,
			"offerCode":       code,
			"discountPercent": discount,
		}, nil

	case ActionScheduleCampaign:
		name, _ := p.String("name")
		audience, ok := p.String("audience")
		if !ok {
			audience = "all_customers"
		}
		startsAt := e.now().UTC()
		if start, ok := p.String("startDate"); ok {
			startsAt, _ = models.ParseDate(start)
		}
		id, err := e.exec.Campaigns.ScheduleCampaign(ctx, Campaign{Name: name, Audience: audience, StartsAt: startsAt})
		if err != nil {
			return nil, fmt.Errorf("schedule campaign %q: %w", name, err)
		}
		return map[string]any{
			"campaignId": id,
			"name":       name,
			"audience":   audience,
			"startsAt":   startsAt.Format(time.RFC3339),
		}, nil

	case ActionCreateTask:
		title, _ := p.String("title")
		desc, _ := p.String("description")
		assignee, _ := p.String("assignee")
		id, err := e.exec.Tasks.CreateTask(ctx, Task{Title: title, Description: desc, Assignee: assignee})
		if err != nil {
			return nil, fmt.Errorf("create task %q: %w", title, err)
		}
		return map[string]any{"taskId": id, "title": title}, nil

	case ActionSendNotification:
		msg, _ := p.String("message")
		recipient, ok := p.String("recipient")
		if !ok {
			recipient = "managers"
		}
		channel, ok := p.String("channel")
		if !ok {
			channel = defaultChannel
		}
		subject, _ := p.String("subject")
		id, err := e.exec.Notifier.Notify(ctx, Notification{Channel: channel, Recipient: recipient, Subject: subject, Message: msg})
		if err != nil {
			return nil, fmt.Errorf("notify %s: %w", recipient, err)
		}
		return map[string]any{"messageId": id, "recipient": recipient, "channel": channel}, nil

	case ActionAdjustStaffing:
		delta, _ := p.Float("delta")
		role, ok := p.String("role")
		if !ok {
			role = "floor"
		}
		date, ok := p.String("date")
		if !ok {
			date = e.now().UTC().Format(time.DateOnly)
		}
		id, err := e.exec.Staff.AdjustStaffing(ctx, StaffingChange{Date: date, Role: role, Delta: int(delta)})
		if err != nil {
			return nil, fmt.Errorf("adjust staffing for %s: %w", date, err)
		}
		return map[string]any{"rotaChangeId": id, "date": date, "role": role, "delta": int(delta)}, nil
	}
	return nil, &UnknownActionError{Action: string(kind)}
}
