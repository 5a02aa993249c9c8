package forecast

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablewise/tablewise-insights/internal/analytics/stats"
	"github.com/tablewise/tablewise-insights/internal/models"
)

func makeSeries(metric string, values ...float64) TimeSeries {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]models.SeriesPoint, len(values))
	for i, v := range values {
		points[i] = models.SeriesPoint{
			Date:  start.AddDate(0, 0, i).Format(time.DateOnly),
			Value: v,
		}
	}
	return TimeSeries{Metric: metric, Points: points}
}

func weeklySeries(weeks int) []float64 {
	week := []float64{80, 85, 90, 110, 160, 190, 120}
	var vals []float64
	for i := 0; i < weeks; i++ {
		for _, v := range week {
			vals = append(vals, v+float64(i))
		}
	}
	return vals
}

func assertFiniteSlice(t *testing.T, name string, vals []float64) {
	t.Helper()
	for i, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("%s[%d] is not finite: %f", name, i, v)
		}
	}
}

func TestForecast_FlatSeries(t *testing.T) {
	f := New(DefaultOptions(), nil)
	series := makeSeries("revenue", 100, 102, 98, 101, 99, 103, 97, 100, 101, 99, 102, 100, 98, 101)

	res, err := f.Forecast(context.Background(), series, 90)
	require.NoError(t, err)

	assert.Equal(t, stats.TrendStable, res.Trend)
	assert.Len(t, res.Baseline, 90)
	assert.Len(t, res.Best, 90)
	assert.Len(t, res.Worst, 90)
	assert.Equal(t, defaultAccuracyGuess, res.AccuracyEstimate)

	for _, band := range [][]Interval{res.ConfidenceIntervals.CI90, res.ConfidenceIntervals.CI95, res.ConfidenceIntervals.CI99} {
		require.Len(t, band, 90)
		for i, iv := range band {
			assert.False(t, math.IsNaN(iv.Lower) || math.IsInf(iv.Lower, 0), "lower %d", i)
			assert.False(t, math.IsNaN(iv.Upper) || math.IsInf(iv.Upper, 0), "upper %d", i)
			assert.LessOrEqual(t, iv.Lower, iv.Upper)
		}
	}

	// Flat history should forecast near its level.
	for i, b := range res.Baseline {
		assert.InDelta(t, 100, b, 15, "baseline %d", i)
	}
}

func TestForecast_ScenarioOrdering(t *testing.T) {
	f := New(DefaultOptions(), nil)
	inputs := [][]float64{
		weeklySeries(6),
		{0, 0, 5, 0, 3, 0, 0, 8, 0, 0, 1, 0, 0, 2, 0},
		{500, 450, 400, 350, 300, 250, 200, 150, 100, 50, 25, 10, 5, 1},
		{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096, 8192},
	}
	for n, vals := range inputs {
		res, err := f.Forecast(context.Background(), makeSeries("m", vals...), 30)
		require.NoError(t, err, "series %d", n)
		require.Len(t, res.Baseline, 30)
		assertFiniteSlice(t, "baseline", res.Baseline)
		assertFiniteSlice(t, "best", res.Best)
		assertFiniteSlice(t, "worst", res.Worst)
		for i := range res.Baseline {
			assert.GreaterOrEqual(t, res.Best[i], res.Baseline[i], "series %d step %d", n, i)
			assert.GreaterOrEqual(t, res.Baseline[i], res.Worst[i], "series %d step %d", n, i)
			assert.GreaterOrEqual(t, res.Worst[i], 0.0)
		}
		assert.GreaterOrEqual(t, res.AccuracyEstimate, 0.0)
		assert.LessOrEqual(t, res.AccuracyEstimate, 1.0)
	}
}

func TestForecast_InsufficientData(t *testing.T) {
	f := New(DefaultOptions(), nil)
	series := makeSeries("covers", 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13)

	_, err := f.Forecast(context.Background(), series, 90)
	require.Error(t, err)

	var ide *InsufficientDataError
	require.True(t, errors.As(err, &ide))
	assert.Equal(t, 13, ide.Have)
	assert.Equal(t, 14, ide.Need)
}

func TestForecast_RejectsNonFiniteValues(t *testing.T) {
	f := New(DefaultOptions(), nil)
	vals := weeklySeries(2)
	vals[3] = math.NaN()

	_, err := f.Forecast(context.Background(), makeSeries("m", vals...), 7)
	var ve *models.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "points[3].value", ve.Field)
}

func TestForecast_RejectsHorizonAboveMax(t *testing.T) {
	f := New(DefaultOptions(), nil)
	series := makeSeries("revenue", 100, 102, 98, 101, 99, 103, 97, 100, 101, 99, 102, 100, 98, 101)

	for _, horizon := range []int{366, 1 << 40} {
		_, err := f.Forecast(context.Background(), series, horizon)
		var ve *models.ValidationError
		require.True(t, errors.As(err, &ve), "horizon %d", horizon)
		assert.Equal(t, "horizonDays", ve.Field)
	}

	res, err := f.Forecast(context.Background(), series, 365)
	require.NoError(t, err)
	assert.Len(t, res.Baseline, 365)

	short := New(Options{MaxHorizon: 30}, nil)
	_, err = short.Forecast(context.Background(), series, 31)
	assert.ErrorContains(t, err, "at most 30 days")

	res, err = short.Forecast(context.Background(), series, 0)
	require.NoError(t, err)
	assert.Equal(t, 30, res.Horizon)
}

func TestForecast_BacktestAccuracy(t *testing.T) {
	f := New(DefaultOptions(), nil)

	linear := make([]float64, 40)
	for i := range linear {
		linear[i] = 1000 + 2*float64(i)
	}
	smooth, err := f.Forecast(context.Background(), makeSeries("linear", linear...), 7)
	require.NoError(t, err)
	assert.Greater(t, smooth.AccuracyEstimate, 0.9)

	pattern := []float64{3, 180, 40, 150, 4, 120, 2, 170, 60, 5}
	var erratic []float64
	for i := 0; i < 4; i++ {
		erratic = append(erratic, pattern...)
	}
	noisy, err := f.Forecast(context.Background(), makeSeries("noisy", erratic...), 7)
	require.NoError(t, err)
	assert.Less(t, noisy.AccuracyEstimate, 0.5)
	assert.Less(t, noisy.AccuracyEstimate, smooth.AccuracyEstimate)
}

func TestForecast_DefaultHorizonAndDates(t *testing.T) {
	f := New(DefaultOptions(), nil)
	res, err := f.Forecast(context.Background(), makeSeries("m", weeklySeries(2)...), 0)
	require.NoError(t, err)

	assert.Equal(t, 90, res.Horizon)
	require.Len(t, res.Dates, 90)
	assert.Equal(t, "2024-01-15", res.Dates[0])
	assert.Equal(t, "2024-04-13", res.Dates[89])
}

func TestForecast_NoDatesWhenUnparseable(t *testing.T) {
	f := New(DefaultOptions(), nil)
	series := makeSeries("m", weeklySeries(2)...)
	series.Points[len(series.Points)-1].Date = "yesterday"

	res, err := f.Forecast(context.Background(), series, 5)
	require.NoError(t, err)
	assert.Nil(t, res.Dates)
}

func TestForecast_DeterministicForSeed(t *testing.T) {
	opts := DefaultOptions()
	opts.Seed = 7
	series := makeSeries("m", weeklySeries(5)...)

	a, err := New(opts, nil).Forecast(context.Background(), series, 45)
	require.NoError(t, err)
	b, err := New(opts, nil).Forecast(context.Background(), series, 45)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// Repeated calls on one forecaster do not drift either.
	f := New(opts, nil)
	c, _ := f.Forecast(context.Background(), series, 45)
	d, _ := f.Forecast(context.Background(), series, 45)
	assert.Equal(t, c.Baseline, d.Baseline)
}

func TestForecast_WeeklySeasonalityDetected(t *testing.T) {
	f := New(DefaultOptions(), nil)
	res, err := f.Forecast(context.Background(), makeSeries("m", weeklySeries(8)...), 14)
	require.NoError(t, err)
	assert.True(t, res.Seasonality.Detected)
	assert.Equal(t, 7, res.Seasonality.Period)
}

func TestForecast_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(DefaultOptions(), nil).Forecast(ctx, makeSeries("m", weeklySeries(2)...), 7)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestForecastMany(t *testing.T) {
	f := New(DefaultOptions(), nil)
	series := []TimeSeries{
		makeSeries("revenue", weeklySeries(3)...),
		makeSeries("covers", weeklySeries(4)...),
		makeSeries("orders", weeklySeries(2)...),
	}

	results, err := f.ForecastMany(context.Background(), series, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, series[i].Metric, r.Metric)
		assert.Len(t, r.Baseline, 10)
	}

	_, err = f.ForecastMany(context.Background(), series, 1<<40)
	var ve *models.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "horizonDays", ve.Field)

	series = append(series, makeSeries("short", 1, 2, 3))
	_, err = f.ForecastMany(context.Background(), series, 10)
	var ide *InsufficientDataError
	assert.True(t, errors.As(err, &ide))
	assert.Contains(t, err.Error(), `"short"`)
}

func TestSequentialModel_SeedChangesWeights(t *testing.T) {
	a := New(Options{Seed: 1}, nil)
	b := New(Options{Seed: 2}, nil)
	ma := newSequentialModel(7, a.newRand())
	mb := newSequentialModel(7, b.newRand())
	assert.NotEqual(t, ma.forget, mb.forget)

	for _, w := range []float64{ma.forget.wx, ma.input.wh, ma.output.b, ma.candidate.wx, ma.outWeight} {
		assert.GreaterOrEqual(t, w, -0.1)
		assert.Less(t, w, 0.1)
	}
}

func TestResultTotal(t *testing.T) {
	r := &Result{Baseline: []float64{1, 2, 3.5}}
	assert.Equal(t, 6.5, r.Total())
}
