package forecast

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"stock-forecast/config"
	"stock-forecast/models"
	"stock-forecast/observability"
)

// RunRecorder persists forecast run audit rows. The registry works without
// one; a nil recorder disables persistence.
type RunRecorder interface {
	CreateForecastRun(ctx context.Context, run *models.ForecastRun) error
	UpdateForecastRun(ctx context.Context, run *models.ForecastRun) error
}

// Registry owns the forecaster ensemble. Models run concurrently under a
// semaphore bound with per-model timeouts; a slow or failing model never
// takes a sibling's completed result down with it. All error paths surface
// as failed-status results, so ensemble calls always return one entry per
// requested model.
type Registry struct {
	forecasters []Forecaster
	byKind      map[models.ModelKind]Forecaster
	recorder    RunRecorder
	cfg         *config.Config
}

// NewRegistry creates a Registry with the full ensemble registered in
// canonical order.
func NewRegistry(recorder RunRecorder, cfg *config.Config) *Registry {
	r := &Registry{
		byKind:   make(map[models.ModelKind]Forecaster),
		recorder: recorder,
		cfg:      cfg,
	}
	seed := uint64(cfg.Forecast.Seed)
	r.Register(NewMovingAverageForecaster(seed))
	r.Register(NewARIMAForecaster(seed))
	r.Register(NewRidgeForecaster(seed))
	r.Register(NewRandomForestForecaster(seed))
	r.Register(NewGradientBoostForecaster(seed))
	r.Register(NewLSTMForecaster(seed, cfg.Forecast.NativeLSTM))
	return r
}

// Register adds a forecaster, replacing any existing one of the same kind.
func (r *Registry) Register(f Forecaster) {
	if existing, ok := r.byKind[f.Kind()]; ok {
		for i, fc := range r.forecasters {
			if fc == existing {
				r.forecasters[i] = f
				break
			}
		}
	} else {
		r.forecasters = append(r.forecasters, f)
	}
	r.byKind[f.Kind()] = f
}

// Models returns the static info of every registered forecaster.
func (r *Registry) Models() []ModelInfo {
	out := make([]ModelInfo, len(r.forecasters))
	for i, f := range r.forecasters {
		out[i] = f.Info()
	}
	return out
}

// ModelInfo returns one forecaster's info by kind name.
func (r *Registry) ModelInfo(name string) (ModelInfo, error) {
	f, ok := r.byKind[models.ModelKind(name)]
	if !ok {
		return ModelInfo{}, &ModelUnavailableError{Name: name}
	}
	return f.Info(), nil
}

// normalizeParams clamps horizon and confidence into configured bounds,
// substituting defaults for zero values.
func (r *Registry) normalizeParams(days int, confidence float64) (int, float64) {
	fc := r.cfg.Forecast
	if days <= 0 {
		days = fc.PredictionDays
	}
	if days > fc.MaxPredictionDays {
		days = fc.MaxPredictionDays
	}
	if confidence <= 0 {
		confidence = fc.ConfidenceLevel
	}
	if confidence < 0.5 {
		confidence = 0.5
	} else if confidence > 0.99 {
		confidence = 0.99
	}
	return days, confidence
}

// Predict runs a single model by kind name. An unknown name yields a failed
// result, mirroring the ensemble path's error policy.
func (r *Registry) Predict(ctx context.Context, name, symbol string, prices []models.PricePoint, days int, confidence float64) models.ModelResult {
	f, ok := r.byKind[models.ModelKind(name)]
	if !ok {
		return models.FailedResult(symbol, models.ModelKind(name), (&ModelUnavailableError{Name: name}).Error())
	}
	days, confidence = r.normalizeParams(days, confidence)
	return r.runPredict(ctx, f, symbol, prices, days, confidence)
}

// PredictAll fans the request out to every registered model and returns one
// result per model in registry order.
func (r *Registry) PredictAll(ctx context.Context, symbol string, prices []models.PricePoint, days int, confidence float64) []models.ModelResult {
	days, confidence = r.normalizeParams(days, confidence)

	metrics := observability.GetMetrics()
	metrics.RecordPredictionRequest(symbol)
	timer := metrics.NewTimer()

	sem := semaphore.NewWeighted(int64(r.cfg.Forecast.ConcurrencyLimit))
	results := make([]models.ModelResult, len(r.forecasters))

	var wg sync.WaitGroup
	for i, f := range r.forecasters {
		wg.Add(1)
		go func(idx int, fc Forecaster) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				results[idx] = models.FailedResult(symbol, fc.Kind(), err.Error())
				return
			}
			defer sem.Release(1)

			modelCtx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Forecast.TimeoutSeconds)*time.Second)
			defer cancel()

			results[idx] = r.runPredict(modelCtx, fc, symbol, prices, days, confidence)
		}(i, f)
	}
	wg.Wait()

	status := "success"
	completed := 0
	for _, res := range results {
		if res.Status == models.ResultStatusCompleted {
			completed++
		}
	}
	if completed == 0 {
		status = "error"
		metrics.RecordPredictionError(symbol, "all_models_failed")
	}
	timer.ObservePrediction(symbol, status)

	observability.WithSymbol(symbol).Info("ensemble forecast finished",
		"models", len(results), "completed", completed, "days", days)
	return results
}

// runPredict executes one model with run recording and metrics around it.
func (r *Registry) runPredict(ctx context.Context, f Forecaster, symbol string, prices []models.PricePoint, days int, confidence float64) models.ModelResult {
	metrics := observability.GetMetrics()
	run := models.NewForecastRun(models.RunKindPredict, f.Kind(), symbol)
	run.PredictionDays = days
	r.recordCreate(ctx, run)

	timer := metrics.NewTimer()
	result, err := f.Predict(ctx, symbol, prices, days, confidence)
	timer.ObserveModel(string(f.Kind()))

	if err != nil {
		result = models.FailedResult(symbol, f.Kind(), err.Error())
	}

	switch result.Status {
	case models.ResultStatusCompleted:
		run.Complete()
		metrics.RecordPredictionAccuracy(string(f.Kind()), result.Metadata.AccuracyScore)
		if result.Metadata.FallbackMode {
			metrics.RecordModelFallback(string(f.Kind()))
		}
	default:
		run.Fail(result.Error)
		metrics.RecordModelError(string(f.Kind()), categorizeModelError(result.Error))
		observability.WithModel(string(f.Kind())).Warn("model forecast failed",
			"symbol", symbol, "error", result.Error)
	}
	r.recordUpdate(ctx, run)
	return result
}

// Backtest runs a walk-forward evaluation for a single model by kind name.
func (r *Registry) Backtest(ctx context.Context, name, symbol string, prices []models.PricePoint, testDays int) models.BacktestResult {
	f, ok := r.byKind[models.ModelKind(name)]
	if !ok {
		return models.FailedBacktest(symbol, models.ModelKind(name), (&ModelUnavailableError{Name: name}).Error())
	}
	if testDays <= 0 {
		testDays = r.cfg.Forecast.TestDays
	}
	return r.runBacktest(ctx, f, symbol, prices, testDays)
}

// BacktestAll evaluates every registered model over the same test window.
func (r *Registry) BacktestAll(ctx context.Context, symbol string, prices []models.PricePoint, testDays int) []models.BacktestResult {
	if testDays <= 0 {
		testDays = r.cfg.Forecast.TestDays
	}

	metrics := observability.GetMetrics()
	metrics.RecordBacktestRequest(symbol)

	sem := semaphore.NewWeighted(int64(r.cfg.Forecast.ConcurrencyLimit))
	results := make([]models.BacktestResult, len(r.forecasters))

	var wg sync.WaitGroup
	for i, f := range r.forecasters {
		wg.Add(1)
		go func(idx int, fc Forecaster) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				results[idx] = models.FailedBacktest(symbol, fc.Kind(), err.Error())
				return
			}
			defer sem.Release(1)

			modelCtx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Forecast.TimeoutSeconds)*time.Second)
			defer cancel()

			results[idx] = r.runBacktest(modelCtx, fc, symbol, prices, testDays)
		}(i, f)
	}
	wg.Wait()

	observability.WithSymbol(symbol).Info("ensemble backtest finished",
		"models", len(results), "test_days", testDays)
	return results
}

func (r *Registry) runBacktest(ctx context.Context, f Forecaster, symbol string, prices []models.PricePoint, testDays int) models.BacktestResult {
	metrics := observability.GetMetrics()
	run := models.NewForecastRun(models.RunKindBacktest, f.Kind(), symbol)
	run.TestDays = testDays
	r.recordCreate(ctx, run)

	timer := metrics.NewTimer()
	result, err := f.Backtest(ctx, symbol, prices, testDays)
	timer.ObserveBacktest(string(f.Kind()))

	if err != nil {
		result = models.FailedBacktest(symbol, f.Kind(), err.Error())
	}

	switch result.Status {
	case models.ResultStatusCompleted:
		run.Complete()
		metrics.RecordBacktestRMSE(string(f.Kind()), result.Metrics.RMSE)
	default:
		run.Fail(result.Error)
		metrics.RecordModelError(string(f.Kind()), categorizeModelError(result.Error))
		observability.WithModel(string(f.Kind())).Warn("model backtest failed",
			"symbol", symbol, "error", result.Error)
	}
	r.recordUpdate(ctx, run)
	return result
}

func (r *Registry) recordCreate(ctx context.Context, run *models.ForecastRun) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.CreateForecastRun(ctx, run); err != nil {
		observability.Warn("failed to record forecast run", "run_id", run.ID, "error", err)
	}
}

func (r *Registry) recordUpdate(ctx context.Context, run *models.ForecastRun) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.UpdateForecastRun(ctx, run); err != nil {
		observability.Warn("failed to update forecast run", "run_id", run.ID, "error", err)
	}
}

// categorizeModelError buckets an error message for metrics labeling.
func categorizeModelError(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "context deadline"), strings.Contains(lower, "timeout"):
		return "timeout"
	case strings.Contains(lower, "need at least"):
		return "insufficient_data"
	case strings.Contains(lower, "not available"):
		return "unknown_model"
	case strings.Contains(lower, "fitting failed"):
		return "fitting"
	default:
		return "other"
	}
}
