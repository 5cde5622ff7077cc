package forecast

import (
	"context"
	"testing"

	"stock-forecast/models"
)

func TestML_InsufficientData(t *testing.T) {
	forecasters := []*MLForecaster{
		NewRidgeForecaster(42),
		NewRandomForestForecaster(42),
		NewGradientBoostForecaster(42),
	}
	for _, f := range forecasters {
		_, err := f.Predict(context.Background(), "AAPL", trendingPrices(f.MinHistory()-1), 10, 0.95)
		if !IsInsufficientData(err) {
			t.Errorf("%s: expected InsufficientDataError, got %v", f.Kind(), err)
		}
	}
}

func TestRidge_Predict(t *testing.T) {
	f := NewRidgeForecaster(42)
	prices := trendingPrices(200)

	result, err := f.Predict(context.Background(), "AAPL", prices, 10, 0.95)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if result.Status != models.ResultStatusCompleted {
		t.Fatalf("status = %s, error = %s", result.Status, result.Error)
	}
	if len(result.Predictions) != 10 {
		t.Fatalf("expected 10 predictions, got %d", len(result.Predictions))
	}
	if result.Metadata.FeaturesUsed == 0 {
		t.Error("metadata should report feature count")
	}
	if result.Metadata.TrainingSamples == 0 {
		t.Error("metadata should report training sample count")
	}
	if result.Metadata.AccuracyScore < 0.5 || result.Metadata.AccuracyScore > 0.95 {
		t.Errorf("accuracy %f outside clamp range", result.Metadata.AccuracyScore)
	}

	// Daily clamp: each prediction moves at most dailyClamp from the prior.
	prev := prices[len(prices)-1].Close
	for i, p := range result.Predictions {
		lo := prev * (1 - f.dailyClamp)
		hi := prev * (1 + f.dailyClamp)
		if p.PredictedPrice < lo-1e-9 || p.PredictedPrice > hi+1e-9 {
			t.Errorf("day %d prediction %f escaped daily clamp [%f, %f]", i, p.PredictedPrice, lo, hi)
		}
		// Margin cap: the band half-width never exceeds marginCap of price.
		if p.UpperBound-p.PredictedPrice > f.marginCap*p.PredictedPrice+1e-9 {
			t.Errorf("day %d band wider than cap", i)
		}
		if p.LowerBound > p.PredictedPrice || p.UpperBound < p.PredictedPrice {
			t.Errorf("day %d bounds do not straddle prediction", i)
		}
		prev = p.PredictedPrice
	}
}

func TestRidge_Backtest(t *testing.T) {
	f := NewRidgeForecaster(42)
	prices := trendingPrices(200)

	result, err := f.Backtest(context.Background(), "AAPL", prices, 20)
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}
	if result.Status != models.ResultStatusCompleted {
		t.Fatalf("status = %s, error = %s", result.Status, result.Error)
	}
	if len(result.PredictionsVsActual) != 20 {
		t.Fatalf("expected 20 pairs, got %d", len(result.PredictionsVsActual))
	}
	if result.Metrics.RMSE <= 0 {
		t.Error("RMSE should be positive")
	}
}

func TestML_BacktestInsufficientData(t *testing.T) {
	f := NewRidgeForecaster(42)
	_, err := f.Backtest(context.Background(), "AAPL", trendingPrices(f.MinHistory()), 20)
	if !IsInsufficientData(err) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
}

func TestRandomForest_Predict(t *testing.T) {
	f := NewRandomForestForecaster(42)
	prices := trendingPrices(150)

	result, err := f.Predict(context.Background(), "AAPL", prices, 5, 0.95)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if result.Status != models.ResultStatusCompleted {
		t.Fatalf("status = %s, error = %s", result.Status, result.Error)
	}
	if len(result.Predictions) != 5 {
		t.Fatalf("expected 5 predictions, got %d", len(result.Predictions))
	}
	if result.Metadata.PredictionMethod != "random_forest" {
		t.Errorf("method = %q", result.Metadata.PredictionMethod)
	}
}

func TestGradientBoost_Predict(t *testing.T) {
	f := NewGradientBoostForecaster(42)
	prices := trendingPrices(150)

	result, err := f.Predict(context.Background(), "AAPL", prices, 5, 0.95)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if result.Status != models.ResultStatusCompleted {
		t.Fatalf("status = %s, error = %s", result.Status, result.Error)
	}
	if result.Metadata.PredictionMethod != "gradient_boosting" {
		t.Errorf("method = %q", result.Metadata.PredictionMethod)
	}
}

func TestSyntheticRow(t *testing.T) {
	f := NewRidgeForecaster(42)
	table, err := ComputeFeatures(trendingPrices(100))
	if err != nil {
		t.Fatalf("ComputeFeatures: %v", err)
	}

	last := table.Rows[table.NumRows()-1]
	row := f.syntheticRow(table, last, 100, 105)

	if j := table.ColumnIndex("returns"); j >= 0 {
		if !almostEqual(row[j], 0.05, 1e-9) {
			t.Errorf("returns = %f, want 0.05", row[j])
		}
	}
	if j := table.ColumnIndex("price_lag_1"); j >= 0 {
		if row[j] != 100 {
			t.Errorf("price_lag_1 = %f, want 100", row[j])
		}
	}

	// A huge move clips to the feature clamp.
	row = f.syntheticRow(table, last, 100, 200)
	if j := table.ColumnIndex("returns"); j >= 0 {
		if !almostEqual(row[j], f.featureClamp, 1e-9) {
			t.Errorf("clamped return = %f, want %f", row[j], f.featureClamp)
		}
	}

	// The source row must not be mutated.
	row[0] = -12345
	if last[0] == -12345 {
		t.Error("syntheticRow mutated its input")
	}
}

func TestTrailingMeanDiff(t *testing.T) {
	closes := []float64{100, 102, 104, 106}
	if got := trailingMeanDiff(closes, 3); !almostEqual(got, 2, 1e-9) {
		t.Errorf("trailingMeanDiff = %f, want 2", got)
	}
	if got := trailingMeanDiff([]float64{100}, 3); got != 0 {
		t.Errorf("short series should return 0, got %f", got)
	}
}

func TestRidgeRegressor_Fit(t *testing.T) {
	// Standardized single feature, linear target.
	rows := [][]float64{{-1.5}, {-0.5}, {0.5}, {1.5}}
	targets := []float64{97, 99, 101, 103}

	r := &ridgeRegressor{lambda: 0.01}
	if err := r.fit(rows, targets); err != nil {
		t.Fatalf("fit: %v", err)
	}
	if got := r.predict([]float64{0}); !almostEqual(got, 100, 0.1) {
		t.Errorf("predict(0) = %f, want ~100", got)
	}
	if got := r.predict([]float64{1.5}); !almostEqual(got, 103, 0.5) {
		t.Errorf("predict(1.5) = %f, want ~103", got)
	}
}
