package forecast

import (
	"math"
	"testing"
)

func TestPctChange(t *testing.T) {
	out := pctChange([]float64{100, 110, 99})
	if !math.IsNaN(out[0]) {
		t.Error("first element must be NaN")
	}
	if !almostEqual(out[1], 0.10, 1e-9) {
		t.Errorf("out[1] = %f, want 0.10", out[1])
	}
	if !almostEqual(out[2], -0.10, 1e-9) {
		t.Errorf("out[2] = %f, want -0.10", out[2])
	}
}

func TestRollingMean(t *testing.T) {
	out := rollingMean([]float64{1, 2, 3, 4, 5}, 3)
	if !math.IsNaN(out[0]) || !math.IsNaN(out[1]) {
		t.Error("warm-up region must be NaN")
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if !almostEqual(out[i+2], w, 1e-9) {
			t.Errorf("out[%d] = %f, want %f", i+2, out[i+2], w)
		}
	}
}

func TestSampleStd(t *testing.T) {
	// Known sample std of {2, 4, 4, 4, 5, 5, 7, 9} with n-1 is ~2.138.
	got := sampleStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if !almostEqual(got, 2.1381, 1e-3) {
		t.Errorf("sampleStd = %f, want ~2.138", got)
	}
	if !math.IsNaN(sampleStd([]float64{1})) {
		t.Error("single observation has no sample std")
	}
}

func TestEwma(t *testing.T) {
	out := ewma([]float64{10, 10, 10}, 5)
	for i, v := range out {
		if !almostEqual(v, 10, 1e-9) {
			t.Errorf("constant series EMA drifted at %d: %f", i, v)
		}
	}

	// First observation seeds the average.
	out = ewma([]float64{1, 2}, 3)
	if out[0] != 1 {
		t.Errorf("EMA seed = %f, want 1", out[0])
	}
	// alpha = 2/(3+1) = 0.5 -> 0.5*2 + 0.5*1 = 1.5
	if !almostEqual(out[1], 1.5, 1e-9) {
		t.Errorf("out[1] = %f, want 1.5", out[1])
	}
}

func TestShiftAndDiffLag(t *testing.T) {
	shifted := shift([]float64{1, 2, 3, 4}, 2)
	if !math.IsNaN(shifted[0]) || !math.IsNaN(shifted[1]) {
		t.Error("shifted head must be NaN")
	}
	if shifted[2] != 1 || shifted[3] != 2 {
		t.Errorf("shift values wrong: %v", shifted)
	}

	diffs := diffLag([]float64{1, 3, 6, 10}, 1)
	if !math.IsNaN(diffs[0]) {
		t.Error("first diff must be NaN")
	}
	if diffs[1] != 2 || diffs[2] != 3 || diffs[3] != 4 {
		t.Errorf("diffLag values wrong: %v", diffs)
	}
}

func TestRollingMinMax(t *testing.T) {
	series := []float64{3, 1, 4, 1, 5}
	mins := rollingMin(series, 3)
	maxs := rollingMax(series, 3)
	if mins[2] != 1 || mins[3] != 1 || mins[4] != 1 {
		t.Errorf("rollingMin wrong: %v", mins)
	}
	if maxs[2] != 4 || maxs[3] != 4 || maxs[4] != 5 {
		t.Errorf("rollingMax wrong: %v", maxs)
	}
}

func TestRSI_Extremes(t *testing.T) {
	// Monotonically rising closes: no losses, RSI saturates at 100.
	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	out := rsi(rising, 14)
	last := out[len(out)-1]
	if !almostEqual(last, 100, 1e-6) {
		t.Errorf("all-gain RSI = %f, want 100", last)
	}

	falling := make([]float64, 30)
	for i := range falling {
		falling[i] = 100 - float64(i)
	}
	out = rsi(falling, 14)
	last = out[len(out)-1]
	if !almostEqual(last, 0, 1e-6) {
		t.Errorf("all-loss RSI = %f, want 0", last)
	}
}

func TestTrendSign(t *testing.T) {
	rising := []float64{1, 2, 3, 4, 5, 6}
	out := trendSign(rising, 3)
	for i := 2; i < len(out); i++ {
		if out[i] != 1 {
			t.Errorf("rising series should trend +1 at %d, got %f", i, out[i])
		}
	}
}

func TestMeanOfAndLastN(t *testing.T) {
	if meanOf(nil) != 0 {
		t.Error("mean of empty slice should be 0")
	}
	if !almostEqual(meanOf([]float64{1, 2, 3}), 2, 1e-12) {
		t.Error("meanOf wrong")
	}

	series := []float64{1, 2, 3, 4}
	tail := lastN(series, 2)
	if len(tail) != 2 || tail[0] != 3 || tail[1] != 4 {
		t.Errorf("lastN wrong: %v", tail)
	}
	if got := lastN(series, 10); len(got) != 4 {
		t.Error("lastN with n > len should return the whole slice")
	}
}
