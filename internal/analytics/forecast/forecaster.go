package forecast

// Package forecast implements the demand forecaster: an ensemble of a gated
// sequential model and an integrated autoregressive model, with scenario
// envelopes, confidence bands and a holdout accuracy estimate.

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tablewise/tablewise-insights/internal/analytics/stats"
	"github.com/tablewise/tablewise-insights/internal/models"
)

// z-scores for the confidence bands.
const (
	z90 = 1.645
	z95 = 1.96
	z99 = 2.576
)

const (
	seasonalPeriod       = 7
	backtestMinPoints    = 20
	backtestTrainShare   = 0.8
	defaultAccuracyGuess = 0.75
)

// Options tunes the forecaster.
type Options struct {
	SequenceLength       int
	ARLags               int
	Differencing         int
	SequentialWeight     float64
	AutoregressiveWeight float64
	MinHistory           int
	DefaultHorizon       int
	MaxHorizon           int
	Seed                 uint64
	MaxConcurrency       int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		SequenceLength:       7,
		ARLags:               2,
		Differencing:         1,
		SequentialWeight:     0.6,
		AutoregressiveWeight: 0.4,
		MinHistory:           14,
		DefaultHorizon:       90,
		MaxHorizon:           365,
		Seed:                 42,
		MaxConcurrency:       4,
	}
}

// Forecaster produces forecasts. It holds no mutable state; every call
// derives its own generator from the configured seed, so equal inputs give
// equal outputs.
type Forecaster struct {
	opts   Options
	logger *zap.Logger
}

// New creates a Forecaster. Non-positive sizes and an all-zero weight pair
// fall back to defaults.
func New(opts Options, logger *zap.Logger) *Forecaster {
	def := DefaultOptions()
	if opts.SequenceLength <= 0 {
		opts.SequenceLength = def.SequenceLength
	}
	if opts.ARLags <= 0 {
		opts.ARLags = def.ARLags
	}
	if opts.Differencing < 0 {
		opts.Differencing = def.Differencing
	}
	if opts.SequentialWeight == 0 && opts.AutoregressiveWeight == 0 {
		opts.SequentialWeight = def.SequentialWeight
		opts.AutoregressiveWeight = def.AutoregressiveWeight
	}
	if opts.MinHistory <= 0 {
		opts.MinHistory = def.MinHistory
	}
	if opts.DefaultHorizon <= 0 {
		opts.DefaultHorizon = def.DefaultHorizon
	}
	if opts.MaxHorizon <= 0 {
		opts.MaxHorizon = def.MaxHorizon
	}
	if opts.DefaultHorizon > opts.MaxHorizon {
		opts.DefaultHorizon = opts.MaxHorizon
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = def.MaxConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forecaster{opts: opts, logger: logger}
}

// Forecast predicts horizonDays values for series. A non-positive horizon
// uses the configured default; one above MaxHorizon is a ValidationError.
func (f *Forecaster) Forecast(ctx context.Context, series TimeSeries, horizonDays int) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	horizonDays, err := f.horizon(horizonDays)
	if err != nil {
		return nil, err
	}
	if len(series.Points) < f.opts.MinHistory {
		return nil, &InsufficientDataError{Have: len(series.Points), Need: f.opts.MinHistory}
	}

	values := series.Values()
	for i, v := range values {
		if !models.IsFinite(v) {
			return nil, models.NewValidationError(fmt.Sprintf("points[%d].value", i), "value must be finite")
		}
	}

	baseline := f.ensemble(values, horizonDays)

	volatility := stats.Volatility(values)
	best := make([]float64, horizonDays)
	worst := make([]float64, horizonDays)
	for i, b := range baseline {
		best[i] = b * (1 + 2*volatility)
		worst[i] = b * math.Max(0, 1-2*volatility)
	}

	std := stats.StdDev(values)
	result := &Result{
		Metric:   series.Metric,
		Horizon:  horizonDays,
		Baseline: baseline,
		Best:     best,
		Worst:    worst,
		ConfidenceIntervals: ConfidenceIntervals{
			CI90: bands(baseline, z90*std),
			CI95: bands(baseline, z95*std),
			CI99: bands(baseline, z99*std),
		},
		Trend:            stats.ClassifyTrend(values),
		ForecastTrend:    stats.ClassifyTrend(baseline),
		Seasonality:      stats.DetectSeasonality(values, seasonalPeriod),
		AccuracyEstimate: f.backtest(values),
		Volatility:       volatility,
		Dates:            futureDates(series, horizonDays),
	}

	f.logger.Debug("Forecast computed",
		zap.String("metric", series.Metric),
		zap.Int("history", len(values)),
		zap.Int("horizon", horizonDays),
		zap.String("trend", string(result.Trend)),
		zap.Float64("accuracy", result.AccuracyEstimate),
	)
	return result, nil
}

// ForecastMany forecasts independent series concurrently. The first
// failure cancels the remaining work.
func (f *Forecaster) ForecastMany(ctx context.Context, series []TimeSeries, horizonDays int) ([]*Result, error) {
	if _, err := f.horizon(horizonDays); err != nil {
		return nil, err
	}
	results := make([]*Result, len(series))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.MaxConcurrency)
	for i := range series {
		g.Go(func() error {
			res, err := f.Forecast(gctx, series[i], horizonDays)
			if err != nil {
				return fmt.Errorf("forecast %q: %w", series[i].Metric, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// horizon resolves the requested horizon against the configured default
// and ceiling.
func (f *Forecaster) horizon(days int) (int, error) {
	if days <= 0 {
		return f.opts.DefaultHorizon, nil
	}
	if days > f.opts.MaxHorizon {
		return 0, models.NewValidationError("horizonDays", "horizon must be at most %d days, got %d", f.opts.MaxHorizon, days)
	}
	return days, nil
}

// ensemble blends the sequential and autoregressive forecasts and floors
// the result at zero.
func (f *Forecaster) ensemble(values []float64, horizon int) []float64 {
	rng := f.newRand()
	seq := newSequentialModel(f.opts.SequenceLength, rng).forecast(values, horizon)

	ar, err := f.autoregressive(values, horizon)
	if err != nil {
		f.logger.Debug("Autoregressive fit failed, holding last value", zap.Error(err))
		ar = make([]float64, horizon)
		last := values[len(values)-1]
		for i := range ar {
			ar[i] = last
		}
	}

	baseline := make([]float64, horizon)
	for i := range baseline {
		v := f.opts.SequentialWeight*seq[i] + f.opts.AutoregressiveWeight*ar[i]
		baseline[i] = math.Max(0, stats.SafeFloat(v, 0))
	}
	return baseline
}

func (f *Forecaster) autoregressive(values []float64, horizon int) ([]float64, error) {
	model := NewARModel(f.opts.ARLags, f.opts.Differencing)
	if err := model.Fit(values); err != nil {
		return nil, err
	}
	return model.Forecast(horizon)
}

// backtest fits on the leading share of values and scores the forecast of
// the rest by mean absolute percentage error.
func (f *Forecaster) backtest(values []float64) float64 {
	if len(values) < backtestMinPoints {
		return defaultAccuracyGuess
	}
	split := int(float64(len(values)) * backtestTrainShare)
	train, test := values[:split], values[split:]
	pred := f.ensemble(train, len(test))

	sum, n := 0.0, 0
	for i, actual := range test {
		if actual == 0 {
			continue
		}
		sum += math.Abs(actual-pred[i]) / math.Abs(actual)
		n++
	}
	if n == 0 {
		return defaultAccuracyGuess
	}
	mape := sum / float64(n)
	return stats.Clamp(1-mape, 0, 1)
}

func (f *Forecaster) newRand() *rand.Rand {
	return rand.New(rand.NewPCG(f.opts.Seed, f.opts.Seed^0x9e3779b97f4a7c15))
}

func bands(baseline []float64, margin float64) []Interval {
	out := make([]Interval, len(baseline))
	for i, b := range baseline {
		out[i] = Interval{
			Lower: stats.SafeFloat(b-margin, b),
			Upper: stats.SafeFloat(b+margin, b),
		}
	}
	return out
}

// futureDates lists the days after the last observation, or nil when the
// last date does not parse.
func futureDates(series TimeSeries, horizon int) []string {
	last, err := models.ParseDate(series.Points[len(series.Points)-1].Date)
	if err != nil {
		return nil
	}
	day := models.Day(last)
	dates := make([]string, horizon)
	for i := range dates {
		dates[i] = day.AddDate(0, 0, i+1).Format(time.DateOnly)
	}
	return dates
}
