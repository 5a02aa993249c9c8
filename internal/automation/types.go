package automation

import (
	"encoding/json"
	"maps"
	"time"
)

// ActionKind is the closed set of actions the engine can carry out.
type ActionKind string

const (
	ActionPlaceOrder         ActionKind = "place_order"
	ActionEmergencyOrder     ActionKind = "emergency_order"
	ActionSendRetentionOffer ActionKind = "send_retention_offer"
	ActionScheduleCampaign   ActionKind = "schedule_campaign"
	ActionCreateTask         ActionKind = "create_task"
	ActionSendNotification   ActionKind = "send_notification"
	ActionAdjustStaffing     ActionKind = "adjust_staffing"
)

// AllActions lists every action kind.
var AllActions = []ActionKind{
	ActionPlaceOrder,
	ActionEmergencyOrder,
	ActionSendRetentionOffer,
	ActionScheduleCampaign,
	ActionCreateTask,
	ActionSendNotification,
	ActionAdjustStaffing,
}

// Valid reports whether k is a known action kind.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionPlaceOrder, ActionEmergencyOrder, ActionSendRetentionOffer,
		ActionScheduleCampaign, ActionCreateTask, ActionSendNotification, ActionAdjustStaffing:
		return true
	}
	return false
}

// ParseActionKind converts a string to an ActionKind.
func ParseActionKind(s string) (ActionKind, error) {
	k := ActionKind(s)
	if !k.Valid() {
		return "", &UnknownActionError{Action: s}
	}
	return k, nil
}

// Category groups insights by the analysis that produced them.
type Category string

const (
	CategoryChurn      Category = "churn"
	CategoryInventory  Category = "inventory"
	CategoryForecast   Category = "forecast"
	CategoryOperations Category = "operations"
	CategoryMarketing  Category = "marketing"
)

// Impact estimates the business effect of acting on an insight.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Params are the arguments of an action. The "approved" key marks an
// action a human has already signed off.
type Params map[string]any

// Approved reports whether params carry approved=true.
func (p Params) Approved() bool {
	v, ok := p["approved"].(bool)
	return ok && v
}

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	return maps.Clone(p)
}

// String returns the string value of key.
func (p Params) String(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok && s != ""
}

// Float returns the numeric value of key, accepting any Go or JSON number.
func (p Params) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// SuggestedAction is an action proposed by an insight.
type SuggestedAction struct {
	Action ActionKind `json:"action"`
	Params Params     `json:"params,omitempty"`
}

// Insight is a structured finding that may be acted on.
type Insight struct {
	ID               string            `json:"id"`
	Category         Category          `json:"category"`
	Title            string            `json:"title"`
	Description      string            `json:"description,omitempty"`
	Impact           Impact            `json:"impact"`
	SuggestedActions []SuggestedAction `json:"suggestedActions,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// Status is the outcome of one action attempt.
type Status string

const (
	StatusExecuted        Status = "executed"
	StatusFailed          Status = "failed"
	StatusPendingApproval Status = "pending_approval"
	StatusRejected        Status = "rejected"
	StatusExpired         Status = "expired"
)

// Result is returned for every action request.
type Result struct {
	Success    bool             `json:"success"`
	Status     Status           `json:"status"`
	Action     ActionKind       `json:"action"`
	InsightID  string           `json:"insightId"`
	Result     map[string]any   `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
	Approval   *ApprovalRequest `json:"approval,omitempty"`
	DurationMs int64            `json:"durationMs"`
}

// ApprovalStatus tracks an approval request through its lifecycle.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalExecuted ApprovalStatus = "executed"
	ApprovalFailed   ApprovalStatus = "failed"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// ApprovalRequest is an action waiting for a human decision.
type ApprovalRequest struct {
	ID         string         `json:"id"`
	InsightID  string         `json:"insightId"`
	Category   Category       `json:"category"`
	Action     ActionKind     `json:"action"`
	Params     Params         `json:"params"`
	Impact     Impact         `json:"impact"`
	Reason     string         `json:"reason,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	ExpiresAt  time.Time      `json:"expiresAt"`
	Status     ApprovalStatus `json:"status"`
	ResolvedAt *time.Time     `json:"resolvedAt,omitempty"`
	ResolvedBy string         `json:"resolvedBy,omitempty"`
	Note       string         `json:"note,omitempty"`
}

// LogEntry is an immutable audit record of one action attempt.
type LogEntry struct {
	ID         string         `json:"id"`
	InsightID  string         `json:"insightId"`
	Action     string         `json:"action"`
	Params     Params         `json:"params,omitempty"`
	Status     Status         `json:"status"`
	Result     map[string]any `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	ApprovalID string         `json:"approvalId,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	DurationMs int64          `json:"durationMs"`
}
