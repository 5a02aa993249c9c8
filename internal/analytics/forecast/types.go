package forecast

import (
	"fmt"

	"github.com/tablewise/tablewise-insights/internal/analytics/stats"
	"github.com/tablewise/tablewise-insights/internal/models"
)

// TimeSeries is an ordered run of daily observations of one metric.
type TimeSeries struct {
	Metric string               `json:"metric,omitempty"`
	Points []models.SeriesPoint `json:"points"`
}

// Values returns the observation values in order.
func (s TimeSeries) Values() []float64 {
	vals := make([]float64, len(s.Points))
	for i, p := range s.Points {
		vals[i] = p.Value
	}
	return vals
}

// Interval is a symmetric bound around one forecast point.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// ConfidenceIntervals holds the 90/95/99% bands.
type ConfidenceIntervals struct {
	CI90 []Interval `json:"ci90"`
	CI95 []Interval `json:"ci95"`
	CI99 []Interval `json:"ci99"`
}

// Result is the forecast for one metric.
type Result struct {
	Metric              string              `json:"metric,omitempty"`
	Horizon             int                 `json:"horizon"`
	Baseline            []float64           `json:"baseline"`
	Best                []float64           `json:"best"`
	Worst               []float64           `json:"worst"`
	ConfidenceIntervals ConfidenceIntervals `json:"confidenceIntervals"`
	Trend               stats.Trend         `json:"trend"`
	ForecastTrend       stats.Trend         `json:"forecastTrend"`
	Seasonality         stats.Seasonality   `json:"seasonality"`
	AccuracyEstimate    float64             `json:"accuracyEstimate"`
	Volatility          float64             `json:"volatility"`
	Dates               []string            `json:"dates,omitempty"`
}

// Total sums the baseline over the horizon.
func (r *Result) Total() float64 {
	return stats.Sum(r.Baseline)
}

// InsufficientDataError is returned when a series is too short to forecast.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: have %d points, need at least %d", e.Have, e.Need)
}
