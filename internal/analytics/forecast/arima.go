package forecast

import (
	"errors"
	"math"

	"github.com/tablewise/tablewise-insights/internal/analytics/stats"
)

// maxARMass bounds the absolute sum of AR coefficients so that long
// recursive rollouts stay bounded.
const maxARMass = 0.95

// ARModel is an integrated autoregressive model ARI(p, d):
// - p: number of autoregressive lags
// - d: number of differences applied before fitting
//
// Coefficients are fitted by ordinary least squares on the centered,
// differenced series. There is no moving-average component.
type ARModel struct {
	p, d int

	coefficients []float64
	intercept    float64   // mean of the differenced series
	lastLevels   []float64 // last value at each differencing level 0..d-1
	lagTail      []float64 // last p centered differenced values
	residuals    []float64
	fitted       bool
}

// NewARModel creates an unfitted ARI(p, d) model.
func NewARModel(p, d int) *ARModel {
	if p < 0 {
		p = 0
	}
	if d < 0 {
		d = 0
	}
	return &ARModel{p: p, d: d}
}

// Fit estimates the model on series.
func (a *ARModel) Fit(series []float64) error {
	if len(series) < a.p+a.d+1 {
		return errors.New("insufficient data points for model")
	}

	a.lastLevels = make([]float64, a.d)
	level := series
	for k := 0; k < a.d; k++ {
		a.lastLevels[k] = level[len(level)-1]
		level = difference(level)
	}

	a.intercept = stats.Mean(level)
	centered := make([]float64, len(level))
	for i, v := range level {
		centered[i] = v - a.intercept
	}

	a.coefficients = a.estimateAR(centered)
	a.residuals = a.calculateResiduals(centered)

	tail := a.p
	if tail > len(centered) {
		tail = len(centered)
	}
	a.lagTail = append([]float64(nil), centered[len(centered)-tail:]...)
	a.fitted = true
	return nil
}

// Forecast returns steps values on the original scale.
func (a *ARModel) Forecast(steps int) ([]float64, error) {
	if !a.fitted {
		return nil, errors.New("model not fitted")
	}
	if steps <= 0 {
		return nil, errors.New("steps must be positive")
	}

	hist := append([]float64(nil), a.lagTail...)
	diffs := make([]float64, steps)
	for i := 0; i < steps; i++ {
		next := 0.0
		for j, phi := range a.coefficients {
			idx := len(hist) - 1 - j
			if idx < 0 {
				break
			}
			next += phi * hist[idx]
		}
		hist = append(hist, next)
		diffs[i] = next + a.intercept
	}

	// Integrate back, innermost level first.
	out := diffs
	for k := a.d - 1; k >= 0; k-- {
		prev := a.lastLevels[k]
		integrated := make([]float64, steps)
		for i, v := range out {
			prev += v
			integrated[i] = prev
		}
		out = integrated
	}

	for i := range out {
		out[i] = stats.SafeFloat(out[i], 0)
	}
	return out, nil
}

// Coefficients returns a copy of the fitted AR coefficients.
func (a *ARModel) Coefficients() []float64 {
	return append([]float64(nil), a.coefficients...)
}

// StdError is the root mean squared in-sample residual.
func (a *ARModel) StdError() float64 {
	if len(a.residuals) == 0 {
		return 0
	}
	sumSquares := 0.0
	for _, r := range a.residuals {
		sumSquares += r * r
	}
	return math.Sqrt(sumSquares / float64(len(a.residuals)))
}

// estimateAR solves the least-squares normal equations
//
//	sum_t x[t-1-i] x[t-1-j] * phi_j = sum_t x[t] x[t-1-i]
//
// A singular system yields zero coefficients.
func (a *ARModel) estimateAR(x []float64) []float64 {
	coeffs := make([]float64, a.p)
	if a.p == 0 || len(x) <= a.p {
		return coeffs
	}

	A := make([][]float64, a.p)
	b := make([]float64, a.p)
	for i := range A {
		A[i] = make([]float64, a.p)
	}
	for t := a.p; t < len(x); t++ {
		for i := 0; i < a.p; i++ {
			b[i] += x[t] * x[t-1-i]
			for j := 0; j < a.p; j++ {
				A[i][j] += x[t-1-i] * x[t-1-j]
			}
		}
	}

	solved, ok := solveLinear(A, b)
	if !ok {
		return coeffs
	}

	mass := 0.0
	for _, c := range solved {
		if !isFinite(c) {
			return coeffs
		}
		mass += math.Abs(c)
	}
	if mass >= 1 {
		scale := maxARMass / mass
		for i := range solved {
			solved[i] *= scale
		}
	}
	return solved
}

func (a *ARModel) calculateResiduals(x []float64) []float64 {
	if len(x) <= a.p {
		return nil
	}
	residuals := make([]float64, 0, len(x)-a.p)
	for t := a.p; t < len(x); t++ {
		pred := 0.0
		for j, phi := range a.coefficients {
			pred += phi * x[t-1-j]
		}
		residuals = append(residuals, x[t]-pred)
	}
	return residuals
}

// ModelInfo returns a description of the fitted model.
func (a *ARModel) ModelInfo() map[string]interface{} {
	return map[string]interface{}{
		"order":       []int{a.p, a.d},
		"fitted":      a.fitted,
		"ar_coeffs":   a.Coefficients(),
		"intercept":   a.intercept,
		"std_error":   a.StdError(),
		"n_residuals": len(a.residuals),
	}
}

// difference returns the first difference of series.
func difference(series []float64) []float64 {
	if len(series) < 2 {
		return nil
	}
	result := make([]float64, len(series)-1)
	for i := 1; i < len(series); i++ {
		result[i-1] = series[i] - series[i-1]
	}
	return result
}

// solveLinear solves A x = b by Gaussian elimination with partial
// pivoting. A and b are modified in place.
func solveLinear(A [][]float64, b []float64) ([]float64, bool) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(A[r][col]) > math.Abs(A[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(A[pivot][col]) < 1e-12 {
			return nil, false
		}
		A[col], A[pivot] = A[pivot], A[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < n; r++ {
			f := A[r][col] / A[col][col]
			for c := col; c < n; c++ {
				A[r][c] -= f * A[col][c]
			}
			b[r] -= f * b[col]
		}
	}

	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		sum := b[r]
		for c := r + 1; c < n; c++ {
			sum -= A[r][c] * x[c]
		}
		x[r] = sum / A[r][r]
	}
	return x, true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
