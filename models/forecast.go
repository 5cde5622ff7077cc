package models

import "time"

// PredictionPoint is one day of a multi-day forecast. Bounds always straddle
// the predicted price and never go negative.
type PredictionPoint struct {
	Date           time.Time `json:"date"`
	PredictedPrice float64   `json:"predicted_price"`
	LowerBound     float64   `json:"lower_bound"`
	UpperBound     float64   `json:"upper_bound"`
	Confidence     float64   `json:"confidence"`
}

type ResultStatus string

const (
	ResultStatusCompleted ResultStatus = "completed"
	ResultStatusFailed    ResultStatus = "failed"
)

// ModelResult is the output of a single forecaster's predict call. It is
// created fresh per request and never mutated afterwards; persistence is the
// repository's concern.
type ModelResult struct {
	Symbol      string            `json:"symbol"`
	Model       ModelKind         `json:"model"`
	Predictions []PredictionPoint `json:"predictions"`
	Metadata    ResultMetadata    `json:"metadata"`
	Status      ResultStatus      `json:"status"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ResultMetadata describes how a forecast was produced. Extra holds
// model-specific fields (ARIMA order, tree counts, trend labels).
type ResultMetadata struct {
	AccuracyScore    float64            `json:"accuracy_score"`
	DataPointsUsed   int                `json:"data_points_used"`
	FeaturesUsed     int                `json:"features_used,omitempty"`
	TrainingSamples  int                `json:"training_samples,omitempty"`
	LastPrice        float64            `json:"last_price"`
	PredictionMethod string             `json:"prediction_method"`
	FallbackMode     bool               `json:"fallback_mode"`
	Extra            map[string]float64 `json:"extra,omitempty"`
}

// FailedResult builds a failed ModelResult with the given error message.
func FailedResult(symbol string, model ModelKind, errMsg string) ModelResult {
	return ModelResult{
		Symbol:    symbol,
		Model:     model,
		Status:    ResultStatusFailed,
		Error:     errMsg,
		CreatedAt: time.Now().UTC(),
	}
}
