package forecast

import (
	"context"
	"errors"
	"math"
	rand "math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"stock-forecast/models"
	"stock-forecast/observability"
)

const (
	arimaMinHistory = 60

	arimaMaxP = 3
	arimaMaxD = 2
	arimaMaxQ = 3

	// 5% critical value of the augmented Dickey-Fuller distribution for a
	// regression with constant.
	adfCritical5 = -2.86

	arimaFallbackWindow = 60
)

// ARIMAForecaster fits an autoregressive integrated moving-average model
// selected over a small (p, d, q) grid by AIC. Differencing order comes from
// repeated stationarity testing; ARMA coefficients come from two-stage
// Hannan-Rissanen least squares. When no candidate fits, it falls back to a
// quadratic trend extrapolation and flags the result.
type ARIMAForecaster struct {
	seed uint64
}

func NewARIMAForecaster(seed uint64) *ARIMAForecaster {
	return &ARIMAForecaster{seed: seed}
}

func (f *ARIMAForecaster) Kind() models.ModelKind { return models.ModelKindARIMA }

func (f *ARIMAForecaster) Name() string { return "ARIMA" }

func (f *ARIMAForecaster) MinHistory() int { return arimaMinHistory }

func (f *ARIMAForecaster) Info() ModelInfo {
	return ModelInfo{
		Kind:        f.Kind(),
		Name:        f.Name(),
		Description: "AIC-selected ARIMA with stationarity-driven differencing",
		MinHistory:  f.MinHistory(),
		Strengths:   []string{"captures autocorrelation structure", "statistically grounded bands"},
		Limitations: []string{"linear dynamics only", "weak on regime changes"},
	}
}

func (f *ARIMAForecaster) Predict(ctx context.Context, symbol string, prices []models.PricePoint, days int, confidence float64) (models.ModelResult, error) {
	if len(prices) < f.MinHistory() {
		return models.ModelResult{}, &InsufficientDataError{Model: f.Kind(), Required: f.MinHistory(), Got: len(prices)}
	}
	if err := ctx.Err(); err != nil {
		return models.FailedResult(symbol, f.Kind(), err.Error()), nil
	}

	closes := models.ClosePrices(prices)
	lastPrice := closes[len(closes)-1]
	z := zScore(confidence)
	dates := futureDates(prices[len(prices)-1].Date, days)

	model, err := fitARIMA(closes)
	if err != nil {
		observability.WithSymbol(symbol).Warn("arima fit failed, using trend fallback", "error", err)
		return f.fallbackPredict(symbol, closes, dates, days, confidence, z), nil
	}

	path := model.forecast(days)
	sigma := sampleStd(lastN(closes, 30))
	if math.IsNaN(sigma) || sigma <= 0 {
		sigma = lastPrice * 0.01
	}

	preds := make([]models.PredictionPoint, days)
	for i, price := range path {
		if !isFinite(price) || price <= 0 {
			price = lastPrice
		}
		margin := z * sigma * math.Sqrt(float64(i+1)/30.0)
		preds[i] = models.PredictionPoint{
			Date:           dates[i],
			PredictedPrice: price,
			LowerBound:     clampLower(price - margin),
			UpperBound:     price + margin,
			Confidence:     confidence,
		}
	}

	accuracy := clampScore(1-model.inSampleMAE()/meanOf(closes), 0.6, 0.95)

	return models.ModelResult{
		Symbol:      symbol,
		Model:       f.Kind(),
		Predictions: preds,
		Metadata: models.ResultMetadata{
			AccuracyScore:    accuracy,
			DataPointsUsed:   len(closes),
			LastPrice:        lastPrice,
			PredictionMethod: "arima",
			Extra: map[string]float64{
				"order_p": float64(model.p),
				"order_d": float64(model.d),
				"order_q": float64(model.q),
				"aic":     model.aic,
			},
		},
		Status:    models.ResultStatusCompleted,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// fallbackPredict extrapolates a quadratic trend over the trailing window
// with lightly perturbed points, used when no ARIMA candidate converges.
func (f *ARIMAForecaster) fallbackPredict(symbol string, closes []float64, dates []time.Time, days int, confidence, z float64) models.ModelResult {
	window := lastN(closes, arimaFallbackWindow)
	xs := make([]float64, len(window))
	for i := range xs {
		xs[i] = float64(i)
	}
	coeffs := polyfit(xs, window, 2)
	sigma := sampleStd(window)
	if math.IsNaN(sigma) || sigma <= 0 {
		sigma = closes[len(closes)-1] * 0.01
	}

	rng := rand.NewPCG(f.seed, uint64(len(closes)))
	noise := distuv.Normal{Mu: 0, Sigma: 0.01 * sigma, Src: rng}
	lastPrice := closes[len(closes)-1]

	preds := make([]models.PredictionPoint, days)
	for i := 0; i < days; i++ {
		price := polyval(coeffs, float64(len(window)+i)) + noise.Rand()
		if !isFinite(price) || price <= 0 {
			price = lastPrice
		}
		margin := z * sigma * math.Sqrt(float64(i+1)/30.0)
		preds[i] = models.PredictionPoint{
			Date:           dates[i],
			PredictedPrice: price,
			LowerBound:     clampLower(price - margin),
			UpperBound:     price + margin,
			Confidence:     confidence,
		}
	}

	return models.ModelResult{
		Symbol:      symbol,
		Model:       f.Kind(),
		Predictions: preds,
		Metadata: models.ResultMetadata{
			AccuracyScore:    0.6,
			DataPointsUsed:   len(closes),
			LastPrice:        lastPrice,
			PredictionMethod: "quadratic_trend_fallback",
			FallbackMode:     true,
		},
		Status:    models.ResultStatusCompleted,
		CreatedAt: time.Now().UTC(),
	}
}

func (f *ARIMAForecaster) Backtest(ctx context.Context, symbol string, prices []models.PricePoint, testDays int) (models.BacktestResult, error) {
	minLen := f.MinHistory() + testDays
	if len(prices) < minLen {
		return models.BacktestResult{}, &InsufficientDataError{Model: f.Kind(), Required: minLen, Got: len(prices)}
	}

	closes := models.ClosePrices(prices)
	start := len(prices) - testDays

	// Select the order once on the training portion, then refit
	// coefficients as the window rolls forward.
	trainModel, fitErr := fitARIMA(closes[:start])

	pairs := make([]models.PredictedVsActual, 0, testDays)
	for i := start; i < len(prices); i++ {
		if err := ctx.Err(); err != nil {
			return models.FailedBacktest(symbol, f.Kind(), err.Error()), nil
		}
		history := closes[:i]
		var predicted float64
		if fitErr == nil {
			m, err := fitARIMAOrder(history, trainModel.p, trainModel.d, trainModel.q)
			if err == nil {
				predicted = m.forecast(1)[0]
			}
		}
		if predicted == 0 || !isFinite(predicted) {
			window := lastN(history, arimaFallbackWindow)
			xs := make([]float64, len(window))
			for j := range xs {
				xs[j] = float64(j)
			}
			predicted = polyval(polyfit(xs, window, 2), float64(len(window)))
		}
		pairs = append(pairs, models.PredictedVsActual{
			Date:      prices[i].Date,
			Predicted: predicted,
			Actual:    closes[i],
			Error:     predicted - closes[i],
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

// arimaModel is one fitted (p, d, q) candidate over a differenced series.
type arimaModel struct {
	p, d, q   int
	phi       []float64 // AR coefficients
	theta     []float64 // MA coefficients
	intercept float64
	aic       float64

	diffed    []float64 // series after d rounds of differencing
	residuals []float64
	seeds     []float64 // last values of each differencing level, innermost first
}

var errARIMANoCandidate = errors.New("no arima candidate converged")

// fitARIMA selects differencing by ADF test, then the (p, q) pair with the
// lowest AIC over the grid.
func fitARIMA(series []float64) (*arimaModel, error) {
	d := 0
	work := append([]float64(nil), series...)
	for d < arimaMaxD && !adfStationary(work) {
		work = difference(work)
		d++
	}

	var best *arimaModel
	for p := 0; p <= arimaMaxP; p++ {
		for q := 0; q <= arimaMaxQ; q++ {
			if p == 0 && q == 0 {
				continue
			}
			m, err := fitARMA(series, work, p, d, q)
			if err != nil {
				continue
			}
			if best == nil || m.aic < best.aic {
				best = m
			}
		}
	}
	if best == nil {
		return nil, errARIMANoCandidate
	}
	return best, nil
}

// fitARIMAOrder refits a known order on a new window.
func fitARIMAOrder(series []float64, p, d, q int) (*arimaModel, error) {
	work := append([]float64(nil), series...)
	for i := 0; i < d; i++ {
		work = difference(work)
	}
	return fitARMA(series, work, p, d, q)
}

// fitARMA runs two-stage Hannan-Rissanen estimation: a long AR fit supplies
// residual estimates, then the ARMA coefficients come from one OLS pass over
// lagged values and lagged residuals.
func fitARMA(original, diffed []float64, p, d, q int) (*arimaModel, error) {
	n := len(diffed)
	longLag := p + q + 3
	if longLag < 5 {
		longLag = 5
	}
	if n < longLag*3 {
		return nil, errARIMANoCandidate
	}

	// Stage 1: long AR regression for residual estimates.
	arCoeffs := fitAR(diffed, longLag)
	if arCoeffs == nil {
		return nil, errARIMANoCandidate
	}
	resid := make([]float64, n)
	for t := longLag; t < n; t++ {
		pred := arCoeffs[0]
		for j := 1; j <= longLag; j++ {
			pred += arCoeffs[j] * diffed[t-j]
		}
		resid[t] = diffed[t] - pred
	}

	// Stage 2: OLS on p value lags and q residual lags.
	startT := longLag + q
	if p > q && longLag+p > startT {
		startT = longLag + p
	}
	rows := make([][]float64, 0, n-startT)
	ys := make([]float64, 0, n-startT)
	for t := startT; t < n; t++ {
		row := make([]float64, 0, 1+p+q)
		row = append(row, 1)
		for j := 1; j <= p; j++ {
			row = append(row, diffed[t-j])
		}
		for j := 1; j <= q; j++ {
			row = append(row, resid[t-j])
		}
		rows = append(rows, row)
		ys = append(ys, diffed[t])
	}
	beta := olsSolve(rows, ys)
	if beta == nil {
		return nil, errARIMANoCandidate
	}

	m := &arimaModel{
		p:         p,
		d:         d,
		q:         q,
		intercept: beta[0],
		phi:       beta[1 : 1+p],
		theta:     beta[1+p:],
		diffed:    diffed,
	}

	// Final residuals and AIC over the stage-2 window.
	sse := 0.0
	m.residuals = make([]float64, n)
	for t := startT; t < n; t++ {
		pred := m.intercept
		for j := 1; j <= p; j++ {
			pred += m.phi[j-1] * diffed[t-j]
		}
		for j := 1; j <= q; j++ {
			pred += m.theta[j-1] * m.residuals[t-j]
		}
		e := diffed[t] - pred
		m.residuals[t] = e
		sse += e * e
	}
	obs := float64(n - startT)
	if obs <= 0 || sse <= 0 || !isFinite(sse) {
		return nil, errARIMANoCandidate
	}
	k := float64(1 + p + q)
	m.aic = obs*math.Log(sse/obs) + 2*k

	m.seeds = differencingSeeds(original, d)
	return m, nil
}

// forecast rolls the fitted ARMA recursion forward h steps on the differenced
// scale, then integrates d times back to price level.
func (m *arimaModel) forecast(h int) []float64 {
	vals := append([]float64(nil), m.diffed...)
	resid := append([]float64(nil), m.residuals...)
	out := make([]float64, h)
	for i := 0; i < h; i++ {
		t := len(vals)
		pred := m.intercept
		for j := 1; j <= m.p && t-j >= 0; j++ {
			pred += m.phi[j-1] * vals[t-j]
		}
		for j := 1; j <= m.q && t-j >= 0; j++ {
			pred += m.theta[j-1] * resid[t-j]
		}
		vals = append(vals, pred)
		resid = append(resid, 0) // future innovations have zero expectation
		out[i] = pred
	}

	// Undo differencing: each level accumulates from its stored seed.
	for level := m.d - 1; level >= 0; level-- {
		acc := m.seeds[level]
		for i := range out {
			acc += out[i]
			out[i] = acc
		}
	}
	return out
}

func (m *arimaModel) inSampleMAE() float64 {
	sum, count := 0.0, 0
	for _, e := range m.residuals {
		if e != 0 {
			sum += math.Abs(e)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// differencingSeeds returns the last value at each differencing level of the
// original series, ordered outermost (level 0 = price) first.
func differencingSeeds(series []float64, d int) []float64 {
	seeds := make([]float64, d)
	work := append([]float64(nil), series...)
	for level := 0; level < d; level++ {
		seeds[level] = work[len(work)-1]
		work = difference(work)
	}
	return seeds
}

func difference(series []float64) []float64 {
	out := make([]float64, len(series)-1)
	for i := 1; i < len(series); i++ {
		out[i-1] = series[i] - series[i-1]
	}
	return out
}

// fitAR fits an AR(lag) model with intercept by OLS; coefficient 0 is the
// intercept.
func fitAR(series []float64, lag int) []float64 {
	n := len(series)
	if n <= lag+1 {
		return nil
	}
	rows := make([][]float64, 0, n-lag)
	ys := make([]float64, 0, n-lag)
	for t := lag; t < n; t++ {
		row := make([]float64, 0, lag+1)
		row = append(row, 1)
		for j := 1; j <= lag; j++ {
			row = append(row, series[t-j])
		}
		rows = append(rows, row)
		ys = append(ys, series[t])
	}
	return olsSolve(rows, ys)
}

// adfStationary runs an augmented Dickey-Fuller regression with one lagged
// difference term and compares the unit-root t-statistic to the 5% critical
// value.
func adfStationary(series []float64) bool {
	n := len(series)
	if n < 20 {
		return true
	}
	// delta_y[t] = a + gamma*y[t-1] + b*delta_y[t-1] + e
	rows := make([][]float64, 0, n-2)
	ys := make([]float64, 0, n-2)
	for t := 2; t < n; t++ {
		rows = append(rows, []float64{1, series[t-1], series[t-1] - series[t-2]})
		ys = append(ys, series[t]-series[t-1])
	}
	beta := olsSolve(rows, ys)
	if beta == nil {
		return false
	}

	// Standard error of the gamma coefficient from the residual variance and
	// the regressor's centered sum of squares.
	sse := 0.0
	for i, row := range rows {
		pred := beta[0] + beta[1]*row[1] + beta[2]*row[2]
		e := ys[i] - pred
		sse += e * e
	}
	dof := float64(len(rows) - 3)
	if dof <= 0 {
		return false
	}
	s2 := sse / dof

	meanLag := 0.0
	for _, row := range rows {
		meanLag += row[1]
	}
	meanLag /= float64(len(rows))
	ssLag := 0.0
	for _, row := range rows {
		d := row[1] - meanLag
		ssLag += d * d
	}
	if ssLag == 0 {
		return false
	}
	tStat := beta[1] / math.Sqrt(s2/ssLag)
	return tStat < adfCritical5
}
