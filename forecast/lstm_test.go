package forecast

import (
	"context"
	"math"
	rand "math/rand/v2"
	"testing"

	"stock-forecast/models"
)

func TestLSTM_InsufficientData(t *testing.T) {
	f := NewLSTMForecaster(42, false)
	_, err := f.Predict(context.Background(), "AAPL", trendingPrices(f.MinHistory()-1), 10, 0.95)
	if !IsInsufficientData(err) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
}

func TestLSTM_FallbackPredict(t *testing.T) {
	f := NewLSTMForecaster(42, false)
	prices := trendingPrices(120)

	result, err := f.Predict(context.Background(), "AAPL", prices, 10, 0.95)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if result.Status != models.ResultStatusCompleted {
		t.Fatalf("status = %s, error = %s", result.Status, result.Error)
	}
	if !result.Metadata.FallbackMode {
		t.Error("non-native forecaster must flag fallback mode")
	}
	if result.Metadata.PredictionMethod != "linear_trend_fallback" {
		t.Errorf("method = %q", result.Metadata.PredictionMethod)
	}
	if len(result.Predictions) != 10 {
		t.Fatalf("expected 10 predictions, got %d", len(result.Predictions))
	}

	for i, p := range result.Predictions {
		if p.PredictedPrice <= 0 {
			t.Errorf("non-positive prediction at %d", i)
		}
		// The fallback enforces a minimum band width relative to price.
		if p.UpperBound-p.PredictedPrice < p.PredictedPrice*fallbackMarginFloor-1e-9 {
			t.Errorf("day %d band below fallback margin floor", i)
		}
	}
}

func TestLSTM_NativePredict(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network training in short mode")
	}
	f := NewLSTMForecaster(42, true)
	f.epochs = 2 // keep the test fast; convergence is not under test here
	prices := trendingPrices(130)

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
	if result.Metadata.PredictionMethod != "lstm" {
		t.Errorf("method = %q", result.Metadata.PredictionMethod)
	}
	if result.Metadata.FallbackMode {
		t.Error("successful native training must not flag fallback")
	}
	for i, p := range result.Predictions {
		if !isFinite(p.PredictedPrice) || p.PredictedPrice <= 0 {
			t.Errorf("invalid prediction at %d: %f", i, p.PredictedPrice)
		}
		if p.UpperBound-p.PredictedPrice < p.PredictedPrice*lstmMarginFloor-1e-9 {
			t.Errorf("day %d band below margin floor", i)
		}
	}
}

func TestLSTM_NativeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewLSTMForecaster(42, true)
	prices := trendingPrices(130)

	// Canceled training degrades to the flagged fallback, not an error.
	result, err := f.Predict(ctx, "AAPL", prices, 5, 0.95)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if result.Status != models.ResultStatusCompleted {
		t.Fatalf("status = %s", result.Status)
	}
	if !result.Metadata.FallbackMode {
		t.Error("aborted training must serve the fallback")
	}
}

func TestLSTM_Backtest(t *testing.T) {
	f := NewLSTMForecaster(42, false)
	prices := trendingPrices(150)

	result, err := f.Backtest(context.Background(), "AAPL", prices, 15)
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}
	if result.Status != models.ResultStatusCompleted {
		t.Fatalf("status = %s, error = %s", result.Status, result.Error)
	}
	if len(result.PredictionsVsActual) != 15 {
		t.Fatalf("expected 15 pairs, got %d", len(result.PredictionsVsActual))
	}
}

func TestLSTMNet_ForwardFinite(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 0))
	net := newLSTMNet(rng)

	window := make([]float64, lstmSeqLen)
	for i := range window {
		window[i] = float64(i) / float64(lstmSeqLen)
	}
	y := net.forward(window)
	if math.IsNaN(y) || math.IsInf(y, 0) {
		t.Fatalf("forward produced non-finite output: %f", y)
	}

	// Deterministic for fixed weights and input.
	if y2 := net.forward(window); y2 != y {
		t.Error("forward is not deterministic")
	}
}

func TestLSTMNet_ForgetBiasInit(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 0))
	net := newLSTMNet(rng)
	for k, b := range net.bf {
		if b != 1 {
			t.Fatalf("forget bias %d = %f, want 1", k, b)
		}
	}
}

func TestLSTM_TrainingReducesLoss(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network training in short mode")
	}
	closes := models.ClosePrices(trendingPrices(130))

	few := NewLSTMForecaster(42, true)
	few.epochs = 1
	_, lossFew, err := few.train(context.Background(), closes)
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	more := NewLSTMForecaster(42, true)
	more.epochs = 10
	_, lossMore, err := more.train(context.Background(), closes)
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	if math.IsNaN(lossFew) || math.IsNaN(lossMore) {
		t.Fatal("validation loss is NaN")
	}
	if lossMore >= lossFew {
		t.Errorf("more epochs did not reduce validation loss: %f >= %f", lossMore, lossFew)
	}
}

func TestAdam_StepMovesParameters(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 0))
	net := newLSTMNet(rng)
	before := net.W2[0]

	grads := newLSTMGrads()
	grads.W2[0] = 1.0 // pretend one parameter has gradient

	opt := newAdam(0.01)
	opt.step(net, grads, 1)

	if net.W2[0] >= before {
		t.Errorf("positive gradient should decrease the parameter: %f -> %f", before, net.W2[0])
	}
}
