package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tablewise/tablewise-insights/internal/automation"
)

// Sink persists automation activity to a Store.
type Sink struct {
	store Store
}

// NewSink wraps store as an automation sink.
func NewSink(store Store) *Sink {
	return &Sink{store: store}
}

func (s *Sink) Name() string { return "sqlite" }

// RecordAction appends the entry to the action log table.
func (s *Sink) RecordAction(ctx context.Context, e automation.LogEntry) error {
	params, err := marshalJSON(e.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	result, err := marshalJSON(e.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return s.store.AppendAction(ctx, &ActionRecord{
		ID:         e.ID,
		InsightID:  e.InsightID,
		Action:     e.Action,
		Status:     string(e.Status),
		Params:     params,
		Result:     result,
		Error:      e.Error,
		ApprovalID: e.ApprovalID,
		Actor:      e.Actor,
		DurationMs: e.DurationMs,
		Timestamp:  e.Timestamp,
	})
}

// RecordApproval upserts the request's current state.
func (s *Sink) RecordApproval(ctx context.Context, r automation.ApprovalRequest) error {
	params, err := marshalJSON(r.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	return s.store.SaveApproval(ctx, &ApprovalRecord{
		ID:         r.ID,
		InsightID:  r.InsightID,
		Category:   string(r.Category),
		Action:     string(r.Action),
		Params:     params,
		Impact:     string(r.Impact),
		Reason:     r.Reason,
		Status:     string(r.Status),
		CreatedAt:  r.CreatedAt,
		ExpiresAt:  r.ExpiresAt,
		ResolvedAt: r.ResolvedAt,
		ResolvedBy: r.ResolvedBy,
		Note:       r.Note,
	})
}

func marshalJSON[T ~map[string]any](m T) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
