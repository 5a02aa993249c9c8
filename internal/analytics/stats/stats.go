package stats

// Package stats provides the numeric primitives shared by the forecaster,
// the churn scorer and the inventory optimizer.
//
// Every function is total: empty or degenerate input yields a zero value
// (or a documented fallback) and never NaN or Inf.

import "math"

// Trend is the direction of a series comparing its two halves.
type Trend string

const (
	TrendStrongUp   Trend = "strong_up"
	TrendUp         Trend = "up"
	TrendStable     Trend = "stable"
	TrendDown       Trend = "down"
	TrendStrongDown Trend = "strong_down"
)

// Trend thresholds on the relative change between half means.
const (
	strongTrendThreshold = 0.15
	trendThreshold       = 0.05
)

// SeasonalityThreshold is the normalized autocorrelation above which a
// seasonal pattern is reported.
const SeasonalityThreshold = 0.3

// Seasonality describes a periodic pattern in a series.
type Seasonality struct {
	Detected bool    `json:"detected"`
	Period   int     `json:"period"`
	Strength float64 `json:"strength"`
}

// Sum returns the sum of vals.
func Sum(vals []float64) float64 {
	s := 0.0
	for _, v := range vals {
		s += v
	}
	return s
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	return Sum(vals) / float64(len(vals))
}

// StdDev returns the population standard deviation.
func StdDev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	mean := Mean(vals)
	variance := 0.0
	for _, v := range vals {
		d := v - mean
		variance += d * d
	}
	return SafeFloat(math.Sqrt(variance/float64(len(vals))), 0)
}

// Normalize returns (x-mean)/std for every value together with the mean
// and std used. A zero or non-finite std is replaced by 1.
func Normalize(vals []float64) (out []float64, mean, std float64) {
	mean = Mean(vals)
	std = StdDev(vals)
	if std == 0 || !isFinite(std) {
		std = 1
	}
	out = make([]float64, len(vals))
	for i, v := range vals {
		out[i] = (v - mean) / std
	}
	return out, mean, std
}

// Denormalize reverses Normalize.
func Denormalize(vals []float64, mean, std float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = SafeFloat(v*std+mean, mean)
	}
	return out
}

// PctChanges returns day-over-day relative changes. Steps from a zero base
// are skipped.
func PctChanges(vals []float64) []float64 {
	if len(vals) < 2 {
		return nil
	}
	out := make([]float64, 0, len(vals)-1)
	for i := 1; i < len(vals); i++ {
		if vals[i-1] == 0 {
			continue
		}
		out = append(out, (vals[i]-vals[i-1])/vals[i-1])
	}
	return out
}

// Volatility is the standard deviation of day-over-day percentage returns.
func Volatility(vals []float64) float64 {
	return StdDev(PctChanges(vals))
}

// CoefficientOfVariation returns std/mean, or 0 when the mean is zero.
func CoefficientOfVariation(vals []float64) float64 {
	mean := Mean(vals)
	if mean == 0 {
		return 0
	}
	return math.Abs(StdDev(vals) / mean)
}

// Autocorrelation returns the lag-k autocorrelation normalized by the
// series variance, in [-1, 1].
func Autocorrelation(vals []float64, lag int) float64 {
	n := len(vals)
	if lag <= 0 || lag >= n {
		return 0
	}
	mean := Mean(vals)
	variance := 0.0
	for _, v := range vals {
		variance += (v - mean) * (v - mean)
	}
	if variance < 1e-12 {
		return 0
	}
	cov := 0.0
	for i := lag; i < n; i++ {
		cov += (vals[i] - mean) * (vals[i-lag] - mean)
	}
	return clamp(cov/variance, -1, 1)
}

// ClassifyTrend compares the mean of the first half of vals with the mean
// of the second half.
func ClassifyTrend(vals []float64) Trend {
	if len(vals) < 2 {
		return TrendStable
	}
	half := len(vals) / 2
	first := Mean(vals[:half])
	second := Mean(vals[half:])

	var change float64
	switch {
	case first != 0:
		change = (second - first) / math.Abs(first)
	case second > 0:
		change = 1
	case second < 0:
		change = -1
	}

	switch {
	case change > strongTrendThreshold:
		return TrendStrongUp
	case change > trendThreshold:
		return TrendUp
	case change < -strongTrendThreshold:
		return TrendStrongDown
	case change < -trendThreshold:
		return TrendDown
	}
	return TrendStable
}

// DetectSeasonality checks the lag-period autocorrelation. At least two
// full periods are needed before anything is reported.
func DetectSeasonality(vals []float64, period int) Seasonality {
	s := Seasonality{Period: period}
	if period <= 1 || len(vals) < 2*period {
		return s
	}
	s.Strength = math.Abs(Autocorrelation(vals, period))
	s.Detected = s.Strength > SeasonalityThreshold
	return s
}

// SafeFloat returns fallback when v is NaN or Inf.
func SafeFloat(v, fallback float64) float64 {
	if !isFinite(v) {
		return fallback
	}
	return v
}

// Clamp bounds v to [lo, hi]; NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	return clamp(v, lo, hi)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
