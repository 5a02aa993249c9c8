package audit

import "time"

// EventType represents the type of audit event
type EventType string

const (
	// Action events
	EventActionExecuted        EventType = "action.executed"
	EventActionFailed          EventType = "action.failed"
	EventActionPendingApproval EventType = "action.pending_approval"
	EventActionApproved        EventType = "action.approved"
	EventActionRejected        EventType = "action.rejected"
	EventActionExpired         EventType = "action.expired"
)

// Result represents the outcome of an audited action
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultPending Result = "pending"
	ResultDenied  Result = "denied"
)

// Event represents a single audit event
type Event struct {
	// Core fields
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	EventType     EventType `json:"event_type"`
	Result        Result    `json:"result"`

	// Actor information
	User string `json:"user,omitempty"`

	// Action details
	Action      string         `json:"action,omitempty"`
	Resource    string         `json:"resource,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	// Error information
	Error string `json:"error,omitempty"`

	DurationMs int64 `json:"duration_ms,omitempty"`
}

// NewEvent creates a new audit event with default values
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Result:    ResultPending,
		Metadata:  make(map[string]any),
	}
}

// WithCorrelationID ties the event to the insight that caused it
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithUser sets the user who triggered the event
func (e *Event) WithUser(user string) *Event {
	e.User = user
	return e
}

// WithAction sets the action being performed
func (e *Event) WithAction(action string) *Event {
	e.Action = action
	return e
}

// WithResource sets the log entry or approval request the event is about
func (e *Event) WithResource(resource string) *Event {
	e.Resource = resource
	return e
}

// WithDescription sets a human-readable description
func (e *Event) WithDescription(desc string) *Event {
	e.Description = desc
	return e
}

// WithResult sets the result of the event
func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

// WithError sets error information
func (e *Event) WithError(msg string) *Event {
	if msg != "" {
		e.Error = msg
		e.Result = ResultFailure
	}
	return e
}

// WithTimestamp overrides the event time
func (e *Event) WithTimestamp(t time.Time) *Event {
	if !t.IsZero() {
		e.Timestamp = t.UTC()
	}
	return e
}

// WithDurationMs sets the duration in milliseconds
func (e *Event) WithDurationMs(ms int64) *Event {
	e.DurationMs = ms
	return e
}

// WithMetadata adds metadata to the event
func (e *Event) WithMetadata(key string, value any) *Event {
	e.Metadata[key] = value
	return e
}
