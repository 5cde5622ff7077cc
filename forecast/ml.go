package forecast

import (
	"context"
	"errors"
	"math"
	"time"

	"stock-forecast/models"
	"stock-forecast/observability"
)

const (
	mlLookback      = 30
	mlTrainCushion  = 50
	mlRidgeLambda   = 1.0
	mlTrendFallback = 10 // days of mean close-to-close change for invalid predictions
)

var errRegressorDegenerate = errors.New("regressor fit produced no solution")

// mlRegressor is the trainable core shared by the tabular forecasters.
type mlRegressor interface {
	fit(rows [][]float64, targets []float64) error
	predict(row []float64) float64
}

// MLForecaster wraps one tabular regressor with feature engineering,
// train-only scaling, recursive multi-day forecasting, and per-variant
// stability clamps. The three variants differ only in the regressor and how
// hard their daily moves and synthetic feature updates are clamped.
type MLForecaster struct {
	kind         models.ModelKind
	name         string
	method       string
	seed         uint64
	dailyClamp   float64 // max fraction a prediction may move from the prior day
	featureClamp float64 // max absolute return written into synthetic feature rows
	marginCap    float64 // band half-width cap as a fraction of price
	newRegressor func(seed uint64) mlRegressor
}

// NewRidgeForecaster builds the L2-regularized linear variant, the most
// tightly clamped of the three.
func NewRidgeForecaster(seed uint64) *MLForecaster {
	return &MLForecaster{
		kind:         models.ModelKindRidge,
		name:         "Ridge Regression",
		method:       "ridge_regression",
		seed:         seed,
		dailyClamp:   0.20,
		featureClamp: 0.10,
		marginCap:    0.20,
		newRegressor: func(seed uint64) mlRegressor { return &ridgeRegressor{lambda: mlRidgeLambda} },
	}
}

// NewRandomForestForecaster builds the bagged-tree variant. Forests tolerate
// noisy features, so its clamps are the loosest.
func NewRandomForestForecaster(seed uint64) *MLForecaster {
	return &MLForecaster{
		kind:         models.ModelKindRandomForest,
		name:         "Random Forest",
		method:       "random_forest",
		seed:         seed,
		dailyClamp:   0.50,
		featureClamp: 0.20,
		marginCap:    0.30,
		newRegressor: func(seed uint64) mlRegressor {
			return &forestRegressor{params: forestParams{
				nTrees: 100,
				seed:   seed,
				tree:   treeParams{maxDepth: 10, minSplit: 5, minLeaf: 2, maxFeatures: -1},
			}}
		},
	}
}

// NewGradientBoostForecaster builds the boosted-tree variant.
func NewGradientBoostForecaster(seed uint64) *MLForecaster {
	return &MLForecaster{
		kind:         models.ModelKindGradientBoost,
		name:         "Gradient Boosting",
		method:       "gradient_boosting",
		seed:         seed,
		dailyClamp:   0.30,
		featureClamp: 0.15,
		marginCap:    0.25,
		newRegressor: func(seed uint64) mlRegressor {
			return &boostRegressor{params: boostParams{
				nRounds:      100,
				learningRate: 0.1,
				subsample:    0.8,
				seed:         seed,
				tree:         treeParams{maxDepth: 6, minSplit: 5, minLeaf: 2},
			}}
		},
	}
}

func (f *MLForecaster) Kind() models.ModelKind { return f.kind }

func (f *MLForecaster) Name() string { return f.name }

func (f *MLForecaster) MinHistory() int { return mlLookback + mlTrainCushion }

func (f *MLForecaster) Info() ModelInfo {
	return ModelInfo{
		Kind:        f.kind,
		Name:        f.name,
		Description: "Technical-feature regressor over a " + itoa(mlLookback) + "-day lookback window",
		MinHistory:  f.MinHistory(),
		Strengths:   []string{"uses the full indicator set", "captures nonlinear structure"},
		Limitations: []string{"recursive forecasts compound error", "needs a training cushion"},
	}
}

// fitted bundles everything Predict and Backtest share after training.
type fittedML struct {
	table     *FeatureTable
	scaler    *StandardScaler
	regressor mlRegressor
	residStd  float64
	r2        float64
	samples   int
}

func (f *MLForecaster) fit(prices []models.PricePoint) (*fittedML, error) {
	table, err := ComputeFeatures(prices)
	if err != nil {
		return nil, err
	}
	seqs, err := BuildSequences(table, mlLookback)
	if err != nil || len(seqs) < mlTrainCushion {
		return nil, &InsufficientDataError{Model: f.kind, Required: f.MinHistory(), Got: len(prices)}
	}

	rows := make([][]float64, len(seqs))
	targets := make([]float64, len(seqs))
	for i, s := range seqs {
		rows[i] = FlattenWindow(s.Window)
		targets[i] = s.Target
	}

	scaler := &StandardScaler{}
	scaler.Fit(rows)
	scaled := scaler.TransformAll(rows)

	reg := f.newRegressor(f.seed)
	if err := reg.fit(scaled, targets); err != nil {
		return nil, &FittingError{Model: f.kind, Err: err}
	}

	var sse, sst float64
	mean := meanOf(targets)
	residuals := make([]float64, len(targets))
	for i, row := range scaled {
		pred := reg.predict(row)
		residuals[i] = targets[i] - pred
		sse += residuals[i] * residuals[i]
		d := targets[i] - mean
		sst += d * d
	}
	r2 := 0.0
	if sst > 0 {
		r2 = 1 - sse/sst
	}
	residStd := sampleStd(residuals)
	if math.IsNaN(residStd) || residStd <= 0 {
		residStd = mean * 0.01
	}

	return &fittedML{
		table:     table,
		scaler:    scaler,
		regressor: reg,
		residStd:  residStd,
		r2:        r2,
		samples:   len(seqs),
	}, nil
}

func (f *MLForecaster) Predict(ctx context.Context, symbol string, prices []models.PricePoint, days int, confidence float64) (models.ModelResult, error) {
	if len(prices) < f.MinHistory() {
		return models.ModelResult{}, &InsufficientDataError{Model: f.kind, Required: f.MinHistory(), Got: len(prices)}
	}
	if err := ctx.Err(); err != nil {
		return models.FailedResult(symbol, f.kind, err.Error()), nil
	}

	fitted, err := f.fit(prices)
	if err != nil {
		if IsInsufficientData(err) {
			return models.ModelResult{}, err
		}
		observability.WithModel(string(f.kind)).Error("model fit failed", "symbol", symbol, "error", err)
		return models.FailedResult(symbol, f.kind, err.Error()), nil
	}

	table := fitted.table
	lastPrice := table.Closes[len(table.Closes)-1]
	z := zScore(confidence)
	dates := futureDates(prices[len(prices)-1].Date, days)

	// Recursive forecast over a rolling raw-feature window; each step feeds
	// a synthetic row derived from its own prediction.
	window := make([][]float64, mlLookback)
	copy(window, table.Rows[table.NumRows()-mlLookback:])

	preds := make([]models.PredictionPoint, days)
	prev := lastPrice
	for i := 0; i < days; i++ {
		if err := ctx.Err(); err != nil {
			return models.FailedResult(symbol, f.kind, err.Error()), nil
		}
		x := fitted.scaler.Transform(FlattenWindow(window))
		price := fitted.regressor.predict(x)

		if !isFinite(price) || price <= 0 {
			price = prev + trailingMeanDiff(table.Closes, mlTrendFallback)
		}
		lo := prev * (1 - f.dailyClamp)
		hi := prev * (1 + f.dailyClamp)
		if price < lo {
			price = lo
		} else if price > hi {
			price = hi
		}

		margin := fitted.residStd * z * math.Sqrt(1+0.1*float64(i))
		if limit := f.marginCap * price; margin > limit {
			margin = limit
		}
		preds[i] = models.PredictionPoint{
			Date:           dates[i],
			PredictedPrice: price,
			LowerBound:     clampLower(price - margin),
			UpperBound:     price + margin,
			Confidence:     confidence,
		}

		window = append(window[1:], f.syntheticRow(table, window[len(window)-1], prev, price))
		prev = price
	}

	return models.ModelResult{
		Symbol:      symbol,
		Model:       f.kind,
		Predictions: preds,
		Metadata: models.ResultMetadata{
			AccuracyScore:    clampScore(fitted.r2, 0.5, 0.95),
			DataPointsUsed:   len(prices),
			FeaturesUsed:     table.NumColumns(),
			TrainingSamples:  fitted.samples,
			LastPrice:        lastPrice,
			PredictionMethod: f.method,
		},
		Status:    models.ResultStatusCompleted,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// syntheticRow extends the feature window by one day. Only the return-family
// and price-lag columns can be derived from the prediction alone; everything
// else carries forward, which is why the daily clamp exists.
func (f *MLForecaster) syntheticRow(table *FeatureTable, last []float64, prevPrice, price float64) []float64 {
	row := append([]float64(nil), last...)
	change := 0.0
	if prevPrice > 0 {
		change = (price - prevPrice) / prevPrice
	}
	if change > f.featureClamp {
		change = f.featureClamp
	} else if change < -f.featureClamp {
		change = -f.featureClamp
	}
	set := func(col string, v float64) {
		if j := table.ColumnIndex(col); j >= 0 {
			row[j] = v
		}
	}
	set("returns", change)
	set("log_returns", math.Log1p(change))
	set("price_momentum", change)
	set("price_lag_1", prevPrice)
	set("return_lag_1", change)
	return row
}

// Backtest evaluates one-step-ahead walk-forward predictions: the model is
// trained once on the pre-test history, then each test day is predicted from
// features rebuilt over everything before it.
func (f *MLForecaster) Backtest(ctx context.Context, symbol string, prices []models.PricePoint, testDays int) (models.BacktestResult, error) {
	minLen := f.MinHistory() + testDays
	if len(prices) < minLen {
		return models.BacktestResult{}, &InsufficientDataError{Model: f.kind, Required: minLen, Got: len(prices)}
	}

	start := len(prices) - testDays
	fitted, err := f.fit(prices[:start])
	if err != nil {
		if IsInsufficientData(err) {
			return models.BacktestResult{}, &InsufficientDataError{Model: f.kind, Required: minLen, Got: len(prices)}
		}
		return models.FailedBacktest(symbol, f.kind, err.Error()), nil
	}

	pairs := make([]models.PredictedVsActual, 0, testDays)
	for i := start; i < len(prices); i++ {
		if err := ctx.Err(); err != nil {
			return models.FailedBacktest(symbol, f.kind, err.Error()), nil
		}
		table, ferr := ComputeFeatures(prices[:i])
		if ferr != nil {
			continue
		}
		window := table.Rows[table.NumRows()-mlLookback:]
		x := fitted.scaler.Transform(FlattenWindow(window))
		predicted := fitted.regressor.predict(x)
		prev := table.Closes[len(table.Closes)-1]
		if !isFinite(predicted) || predicted <= 0 {
			predicted = prev + trailingMeanDiff(table.Closes, mlTrendFallback)
		}
		actual := prices[i].Close
		pairs = append(pairs, models.PredictedVsActual{
			Date:      prices[i].Date,
			Predicted: predicted,
			Actual:    actual,
			Error:     predicted - actual,
		})
	}

	return models.BacktestResult{
		Symbol:              symbol,
		Model:               f.kind,
		TestPeriodDays:      testDays,
		Metrics:             computeBacktestMetrics(pairs),
		PredictionsVsActual: pairs,
		Status:              models.ResultStatusCompleted,
	}, nil
}

// trailingMeanDiff is the average close-to-close change over the last n days.
func trailingMeanDiff(closes []float64, n int) float64 {
	window := lastN(closes, n+1)
	if len(window) < 2 {
		return 0
	}
	return (window[len(window)-1] - window[0]) / float64(len(window)-1)
}

// ridgeRegressor is closed-form ridge regression on standardized inputs with
// a centered target.
type ridgeRegressor struct {
	lambda float64
	beta   []float64
	yMean  float64
}

func (r *ridgeRegressor) fit(rows [][]float64, targets []float64) error {
	r.yMean = meanOf(targets)
	centered := make([]float64, len(targets))
	for i, y := range targets {
		centered[i] = y - r.yMean
	}
	r.beta = ridgeSolve(rows, centered, r.lambda)
	if r.beta == nil {
		return errRegressorDegenerate
	}
	return nil
}

func (r *ridgeRegressor) predict(row []float64) float64 {
	v := r.yMean
	for j, b := range r.beta {
		v += b * row[j]
	}
	return v
}

type forestRegressor struct {
	params forestParams
	model  *randomForest
}

func (r *forestRegressor) fit(rows [][]float64, targets []float64) error {
	if r.params.tree.maxFeatures < 0 {
		// Forests decorrelate via feature subsampling; a third of the
		// flattened window keeps trees diverse without starving them.
		r.params.tree.maxFeatures = len(rows[0]) / 3
		if r.params.tree.maxFeatures < 1 {
			r.params.tree.maxFeatures = 1
		}
	}
	r.model = fitForest(rows, targets, r.params)
	return nil
}

func (r *forestRegressor) predict(row []float64) float64 { return r.model.predict(row) }

type boostRegressor struct {
	params boostParams
	model  *gradientBoost
}

func (r *boostRegressor) fit(rows [][]float64, targets []float64) error {
	r.model = fitBoost(rows, targets, r.params)
	return nil
}

func (r *boostRegressor) predict(row []float64) float64 { return r.model.predict(row) }
