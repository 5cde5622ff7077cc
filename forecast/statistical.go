package forecast

import (
	"context"
	"math"
	rand "math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"stock-forecast/models"
	"stock-forecast/observability"
)

const (
	maShortWindow = 10
	maLongWindow  = 30

	maUptrendFactor   = 1.02
	maDowntrendFactor = 0.98

	// Forecast noise is drawn at daily-return scale and damped by half so
	// the band, not the point path, carries the uncertainty.
	maNoiseDamping = 0.5
)

// MovingAverageForecaster extrapolates the short/long moving-average
// crossover trend with seeded stochastic perturbation. It is the cheapest
// model in the ensemble and the baseline the others are judged against.
type MovingAverageForecaster struct {
	seed uint64
}

func NewMovingAverageForecaster(seed uint64) *MovingAverageForecaster {
	return &MovingAverageForecaster{seed: seed}
}

func (f *MovingAverageForecaster) Kind() models.ModelKind { return models.ModelKindMovingAverage }

func (f *MovingAverageForecaster) Name() string { return "Moving Average Crossover" }

func (f *MovingAverageForecaster) MinHistory() int { return maLongWindow }

func (f *MovingAverageForecaster) Info() ModelInfo {
	return ModelInfo{
		Kind:        f.Kind(),
		Name:        f.Name(),
		Description: "Short/long simple moving average crossover with trend extrapolation",
		MinHistory:  f.MinHistory(),
		Strengths:   []string{"fast", "no training phase", "robust on short histories"},
		Limitations: []string{"lags turning points", "no feature awareness"},
	}
}

func (f *MovingAverageForecaster) Predict(ctx context.Context, symbol string, prices []models.PricePoint, days int, confidence float64) (models.ModelResult, error) {
	if len(prices) < f.MinHistory() {
		return models.ModelResult{}, &InsufficientDataError{Model: f.Kind(), Required: f.MinHistory(), Got: len(prices)}
	}
	if err := ctx.Err(); err != nil {
		return models.FailedResult(symbol, f.Kind(), err.Error()), nil
	}

	closes := models.ClosePrices(prices)
	shortMA := meanOf(lastN(closes, maShortWindow))
	longMA := meanOf(lastN(closes, maLongWindow))
	vol := returnVolatility(closes, maLongWindow)
	lastPrice := closes[len(closes)-1]
	trendFactor, trendLabel := crossoverTrend(shortMA, longMA)

	// Deterministic per (seed, series length): repeated calls on the same
	// history produce the same path.
	rng := rand.NewPCG(f.seed, uint64(len(closes)))
	noise := distuv.Normal{Mu: 0, Sigma: vol, Src: rng}
	z := zScore(confidence)

	dates := futureDates(prices[len(prices)-1].Date, days)
	preds := make([]models.PredictionPoint, days)
	for i := 0; i < days; i++ {
		horizon := float64(i+1) / float64(maLongWindow)
		base := lastPrice * math.Pow(trendFactor, horizon)
		price := base * (1 + noise.Rand()*maNoiseDamping)
		if price <= 0 {
			price = base
		}
		// Margin scales off the last observed price, not the noisy path;
		// the band must widen monotonically with horizon.
		margin := vol * lastPrice * z * math.Sqrt(horizon)
		preds[i] = models.PredictionPoint{
			Date:           dates[i],
			PredictedPrice: price,
			LowerBound:     clampLower(price - margin),
			UpperBound:     price + margin,
			Confidence:     confidence,
		}
	}

	accuracy := clampScore(1-maOneStepMAPE(closes), 0.6, 0.9)
	observability.Debug("moving average forecast complete",
		"symbol", symbol, "trend", trendLabel, "days", days)

	return models.ModelResult{
		Symbol:      symbol,
		Model:       f.Kind(),
		Predictions: preds,
		Metadata: models.ResultMetadata{
			AccuracyScore:    accuracy,
			DataPointsUsed:   len(closes),
			LastPrice:        lastPrice,
			PredictionMethod: "sma_crossover",
			Extra: map[string]float64{
				"short_ma":   shortMA,
				"long_ma":    longMA,
				"volatility": vol,
			},
		},
		Status:    models.ResultStatusCompleted,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Backtest walks the test window one day at a time, predicting each close
// from only the data before it. The point forecast here is deterministic:
// noise belongs to forward uncertainty, not to evaluation.
func (f *MovingAverageForecaster) Backtest(ctx context.Context, symbol string, prices []models.PricePoint, testDays int) (models.BacktestResult, error) {
	minLen := f.MinHistory() + testDays
	if len(prices) < minLen {
		return models.BacktestResult{}, &InsufficientDataError{Model: f.Kind(), Required: minLen, Got: len(prices)}
	}

	closes := models.ClosePrices(prices)
	start := len(prices) - testDays
	pairs := make([]models.PredictedVsActual, 0, testDays)
	for i := start; i < len(prices); i++ {
		if err := ctx.Err(); err != nil {
			return models.FailedBacktest(symbol, f.Kind(), err.Error()), nil
		}
		history := closes[:i]
		shortMA := meanOf(lastN(history, maShortWindow))
		longMA := meanOf(lastN(history, maLongWindow))
		factor, _ := crossoverTrend(shortMA, longMA)
		predicted := history[len(history)-1] * math.Pow(factor, 1.0/float64(maLongWindow))
		actual := closes[i]
		pairs = append(pairs, models.PredictedVsActual{
			Date:      prices[i].Date,
			Predicted: predicted,
			Actual:    actual,
			Error:     predicted - actual,
		})
	}

	return models.BacktestResult{
		Symbol:              symbol,
		Model:               f.Kind(),
		TestPeriodDays:      testDays,
		Metrics:             computeBacktestMetrics(pairs),
		PredictionsVsActual: pairs,
		Status:              models.ResultStatusCompleted,
	}, nil
}

// crossoverTrend classifies the short/long MA relationship into an
// extrapolation factor per maLongWindow days.
func crossoverTrend(shortMA, longMA float64) (factor float64, label string) {
	switch {
	case shortMA > longMA*1.001:
		return maUptrendFactor, "up"
	case shortMA < longMA*0.999:
		return maDowntrendFactor, "down"
	default:
		return 1.0, "flat"
	}
}

// returnVolatility is the sample std of daily returns over the trailing
// window, floored to keep bands from collapsing on flat series.
func returnVolatility(closes []float64, window int) float64 {
	rets := make([]float64, 0, window)
	start := len(closes) - window
	if start < 1 {
		start = 1
	}
	for i := start; i < len(closes); i++ {
		rets = append(rets, closes[i]/closes[i-1]-1)
	}
	vol := sampleStd(rets)
	if math.IsNaN(vol) || vol < 1e-4 {
		vol = 1e-4
	}
	return vol
}

// maOneStepMAPE measures how well the short MA tracked the close over the
// trailing long window; feeds the accuracy heuristic.
func maOneStepMAPE(closes []float64) float64 {
	start := len(closes) - maLongWindow
	if start < maShortWindow {
		start = maShortWindow
	}
	var sum float64
	var count int
	for i := start; i < len(closes); i++ {
		ma := meanOf(closes[i-maShortWindow : i])
		if closes[i] != 0 {
			sum += math.Abs((closes[i] - ma) / closes[i])
			count++
		}
	}
	if count == 0 {
		return 0.2
	}
	return sum / float64(count)
}
