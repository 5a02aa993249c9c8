package models

// Package models defines the input contracts shared by the analytics and
// automation packages.
//
// Records arrive from the host platform (sales, orders, customers, stock)
// and are read-only to every component in this repository.

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// SeriesPoint is one dated observation of a metric.
type SeriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Order is a single customer order used for churn analysis.
type Order struct {
	Date       string  `json:"date"`
	Total      float64 `json:"total"`
	CustomerID string  `json:"customerId,omitempty"`
}

// CustomerProfile is a customer as supplied by the platform. Optional
// fields are pointers so that "absent" and "zero" stay distinguishable.
type CustomerProfile struct {
	ID                string   `json:"id"`
	JoinedDate        string   `json:"joinedDate,omitempty"`
	Complaints        *int     `json:"complaints,omitempty"`
	SatisfactionScore *float64 `json:"satisfactionScore,omitempty"`
	EmailOpens        *int     `json:"emailOpens,omitempty"`
	AppLogins         *int     `json:"appLogins,omitempty"`
}

// InventoryItem is a stock-keeping unit.
type InventoryItem struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Quantity     float64  `json:"quantity"`
	UnitCost     *float64 `json:"unitCost,omitempty"`
	OrderingCost *float64 `json:"orderingCost,omitempty"`
}

// SaleRecord is a quantity of one item sold on a date.
type SaleRecord struct {
	ItemID   string  `json:"itemId"`
	Date     string  `json:"date"`
	Quantity float64 `json:"quantity"`
}

// ValidationError reports a malformed input record.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// NewValidationError is a shorthand used by the analytics packages.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDate parses an ISO-8601 date or timestamp and returns it in UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse date %q", s)
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of days from a to b (b after a is positive).
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
