package models

import "time"

// BacktestMetrics are the standard error metrics over a walk-forward test
// window. DirectionAccuracy is the fraction of days whose predicted
// day-over-day move matched the sign of the actual move.
type BacktestMetrics struct {
	MSE               float64 `json:"mse"`
	RMSE              float64 `json:"rmse"`
	MAE               float64 `json:"mae"`
	MAPE              float64 `json:"mape"`
	DirectionAccuracy float64 `json:"direction_accuracy"`
}

// PredictedVsActual is one test day's comparison for inspection.
type PredictedVsActual struct {
	Date      time.Time `json:"date"`
	Predicted float64   `json:"predicted"`
	Actual    float64   `json:"actual"`
	Error     float64   `json:"error"`
}

// BacktestResult is the output of a walk-forward backtest of one model.
type BacktestResult struct {
	Symbol              string              `json:"symbol"`
	Model               ModelKind           `json:"model"`
	TestPeriodDays      int                 `json:"test_period"`
	Metrics             BacktestMetrics     `json:"metrics"`
	PredictionsVsActual []PredictedVsActual `json:"predictions_vs_actual"`
	Status              ResultStatus        `json:"status"`
	Error               string              `json:"error,omitempty"`
}

// FailedBacktest builds a failed BacktestResult with the given error message.
func FailedBacktest(symbol string, model ModelKind, errMsg string) BacktestResult {
	return BacktestResult{
		Symbol: symbol,
		Model:  model,
		Status: ResultStatusFailed,
		Error:  errMsg,
	}
}
