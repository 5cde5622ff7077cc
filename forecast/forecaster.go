package forecast

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"stock-forecast/models"
)

// Forecaster is one predictive model. Implementations are safe for concurrent
// use after construction: Predict and Backtest share no mutable state.
//
// Predict and Backtest return a non-nil error only for insufficient history.
// Every other failure is folded into a failed-status result so that one bad
// model never sinks an ensemble run.
type Forecaster interface {
	Kind() models.ModelKind
	Name() string
	MinHistory() int
	Predict(ctx context.Context, symbol string, prices []models.PricePoint, days int, confidence float64) (models.ModelResult, error)
	Backtest(ctx context.Context, symbol string, prices []models.PricePoint, testDays int) (models.BacktestResult, error)
	Info() ModelInfo
}

// ModelInfo is the static description of a forecaster, served by the API.
type ModelInfo struct {
	Kind        models.ModelKind `json:"kind"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	MinHistory  int              `json:"min_history"`
	Strengths   []string         `json:"strengths,omitempty"`
	Limitations []string         `json:"limitations,omitempty"`
}

// zScore maps a two-sided confidence level to the matching standard-normal
// critical value (0.95 -> 1.96).
func zScore(confidence float64) float64 {
	if confidence <= 0 || confidence >= 1 {
		return 1.96
	}
	n := distuv.Normal{Mu: 0, Sigma: 1}
	return n.Quantile((1 + confidence) / 2)
}

// futureDates generates the next n trading days after last, skipping
// weekends.
func futureDates(last time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	d := last
	for len(out) < n {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		out = append(out, d)
	}
	return out
}

// clampLower keeps a prediction band's lower bound non-negative.
func clampLower(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// computeBacktestMetrics aggregates walk-forward pairs into the standard
// error metrics. Direction accuracy compares sign of day-over-day moves and
// is 0 when fewer than two pairs exist.
func computeBacktestMetrics(pairs []models.PredictedVsActual) models.BacktestMetrics {
	if len(pairs) == 0 {
		return models.BacktestMetrics{}
	}
	var sse, sae, sape float64
	for _, p := range pairs {
		err := p.Predicted - p.Actual
		sse += err * err
		sae += math.Abs(err)
		if p.Actual != 0 {
			sape += math.Abs(err / p.Actual)
		}
	}
	n := float64(len(pairs))
	m := models.BacktestMetrics{
		MSE:  sse / n,
		RMSE: math.Sqrt(sse / n),
		MAE:  sae / n,
		MAPE: sape / n * 100,
	}

	if len(pairs) >= 2 {
		correct := 0
		for i := 1; i < len(pairs); i++ {
			predMove := pairs[i].Predicted - pairs[i-1].Actual
			actMove := pairs[i].Actual - pairs[i-1].Actual
			if (predMove >= 0) == (actMove >= 0) {
				correct++
			}
		}
		m.DirectionAccuracy = float64(correct) / float64(len(pairs)-1)
	}
	return m
}

// clampScore bounds an accuracy heuristic to a model-specific range.
func clampScore(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
