package db

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the durable history of automation activity. The in-memory
// engine keeps only a bounded window; this keeps everything.
type Store interface {
	ActionStore
	ApprovalStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ─── Action log ──────────────────────────────────────────────────────────────

// ActionRecord is one persisted action attempt.
type ActionRecord struct {
	ID         string    `json:"id"`
	InsightID  string    `json:"insight_id"`
	Action     string    `json:"action"`
	Status     string    `json:"status"`
	Params     string    `json:"params"` // JSON
	Result     string    `json:"result"` // JSON
	Error      string    `json:"error"`
	ApprovalID string    `json:"approval_id"`
	Actor      string    `json:"actor"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// ActionQuery filters action history.
type ActionQuery struct {
	InsightID string
	Action    string
	Status    string
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// ActionStore persists action attempts.
type ActionStore interface {
	// AppendAction writes one attempt. Re-appending the same ID is a no-op.
	AppendAction(ctx context.Context, rec *ActionRecord) error

	// QueryActions returns attempts newest first.
	QueryActions(ctx context.Context, q ActionQuery) ([]*ActionRecord, error)

	// ActionSummary counts attempts by status within the window.
	ActionSummary(ctx context.Context, from, to time.Time) (map[string]int, error)
}

// ─── Approvals ───────────────────────────────────────────────────────────────

// ApprovalRecord is the latest known state of an approval request.
type ApprovalRecord struct {
	ID         string     `json:"id"`
	InsightID  string     `json:"insight_id"`
	Category   string     `json:"category"`
	Action     string     `json:"action"`
	Params     string     `json:"params"` // JSON
	Impact     string     `json:"impact"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy string     `json:"resolved_by"`
	Note       string     `json:"note"`
}

// ApprovalStore persists approval requests.
type ApprovalStore interface {
	// SaveApproval inserts or updates a request.
	SaveApproval(ctx context.Context, rec *ApprovalRecord) error

	// GetApproval returns ErrNotFound for unknown IDs.
	GetApproval(ctx context.Context, id string) (*ApprovalRecord, error)

	// ListApprovals returns requests with status (all when empty), newest first.
	ListApprovals(ctx context.Context, status string, limit int) ([]*ApprovalRecord, error)
}
