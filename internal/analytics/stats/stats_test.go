package stats

import (
	"math"
	"testing"
)

func TestMeanAndStdDev(t *testing.T) {
	vals := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	if got := Mean(vals); got != 5 {
		t.Errorf("Mean = %f, want 5", got)
	}
	if got := StdDev(vals); math.Abs(got-2) > 1e-9 {
		t.Errorf("StdDev = %f, want 2", got)
	}
	if Mean(nil) != 0 || StdDev(nil) != 0 {
		t.Error("empty input should produce zero values")
	}
}

func TestNormalize_ConstantSeries(t *testing.T) {
	out, mean, std := Normalize([]float64{5, 5, 5})
	if std != 1 {
		t.Errorf("std should fall back to 1, got %f", std)
	}
	if mean != 5 {
		t.Errorf("mean = %f, want 5", mean)
	}
	for i, v := range out {
		if v != 0 {
			t.Errorf("out[%d] = %f, want 0", i, v)
		}
	}
	back := Denormalize(out, mean, std)
	for i, v := range back {
		if v != 5 {
			t.Errorf("back[%d] = %f, want 5", i, v)
		}
	}
}

func TestPctChanges_SkipsZeroBase(t *testing.T) {
	got := PctChanges([]float64{0, 10, 20, 10})
	want := []float64{1, -0.5}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("got[%d] = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		name string
		vals []float64
		want Trend
	}{
		{"flat", []float64{100, 101, 99, 100, 100, 101}, TrendStable},
		{"strong up", []float64{10, 10, 10, 20, 20, 20}, TrendStrongUp},
		{"up", []float64{100, 100, 110, 110}, TrendUp},
		{"down", []float64{100, 100, 90, 90}, TrendDown},
		{"strong down", []float64{100, 100, 50, 50}, TrendStrongDown},
		{"zero base rising", []float64{0, 0, 5, 5}, TrendStrongUp},
		{"all zero", []float64{0, 0, 0, 0}, TrendStable},
		{"single", []float64{3}, TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyTrend(tt.vals); got != tt.want {
				t.Errorf("ClassifyTrend = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDetectSeasonality_WeeklyPattern(t *testing.T) {
	week := []float64{50, 55, 60, 70, 120, 150, 90}
	var vals []float64
	for i := 0; i < 6; i++ {
		vals = append(vals, week...)
	}
	s := DetectSeasonality(vals, 7)
	if !s.Detected {
		t.Errorf("expected weekly seasonality, strength %f", s.Strength)
	}
	if s.Period != 7 {
		t.Errorf("period = %d, want 7", s.Period)
	}
}

func TestDetectSeasonality_TooShort(t *testing.T) {
	s := DetectSeasonality([]float64{1, 2, 3, 4, 5}, 7)
	if s.Detected || s.Strength != 0 {
		t.Errorf("short series should not report seasonality: %+v", s)
	}
}

func TestAutocorrelation_Bounds(t *testing.T) {
	vals := []float64{1, 3, 2, 5, 4, 6, 8, 7}
	for lag := 0; lag < len(vals)+2; lag++ {
		r := Autocorrelation(vals, lag)
		if r < -1 || r > 1 || math.IsNaN(r) {
			t.Errorf("lag %d: autocorrelation %f out of range", lag, r)
		}
	}
	if Autocorrelation([]float64{4, 4, 4, 4}, 1) != 0 {
		t.Error("constant series should have zero autocorrelation")
	}
}

func TestSafeFloatAndClamp(t *testing.T) {
	if SafeFloat(math.NaN(), 7) != 7 {
		t.Error("NaN should map to fallback")
	}
	if SafeFloat(math.Inf(1), 1) != 1 {
		t.Error("Inf should map to fallback")
	}
	if Clamp(math.NaN(), 0, 1) != 0 {
		t.Error("NaN should clamp to lower bound")
	}
	if Clamp(3, 0, 1) != 1 {
		t.Error("value above range should clamp to upper bound")
	}
}
