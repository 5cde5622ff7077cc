package models

import (
	"time"

	"github.com/google/uuid"
)

// ForecastRun tracks one predict or backtest call against one model, for
// audit and dashboard history. The engine works fine without persistence;
// runs are only recorded when a repository is configured.
type ForecastRun struct {
	ID             uuid.UUID         `json:"id"`
	Kind           RunKind           `json:"kind"`
	Model          ModelKind         `json:"model"`
	Symbol         string            `json:"symbol"`
	PredictionDays int               `json:"prediction_days,omitempty"`
	TestDays       int               `json:"test_days,omitempty"`
	Status         ForecastRunStatus `json:"status"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	DurationMs     int               `json:"duration_ms"`
	StartedAt      time.Time         `json:"started_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

type RunKind string

const (
	RunKindPredict  RunKind = "predict"
	RunKindBacktest RunKind = "backtest"
)

type ForecastRunStatus string

const (
	ForecastRunStatusRunning   ForecastRunStatus = "running"
	ForecastRunStatusCompleted ForecastRunStatus = "completed"
	ForecastRunStatusFailed    ForecastRunStatus = "failed"
)

func NewForecastRun(kind RunKind, model ModelKind, symbol string) *ForecastRun {
	return &ForecastRun{
		ID:        uuid.New(),
		Kind:      kind,
		Model:     model,
		Symbol:    symbol,
		Status:    ForecastRunStatusRunning,
		StartedAt: time.Now(),
	}
}

func (r *ForecastRun) Complete() {
	now := time.Now()
	r.CompletedAt = &now
	r.Status = ForecastRunStatusCompleted
	r.DurationMs = int(now.Sub(r.StartedAt).Milliseconds())
}

func (r *ForecastRun) Fail(errMsg string) {
	now := time.Now()
	r.CompletedAt = &now
	r.Status = ForecastRunStatusFailed
	r.ErrorMessage = errMsg
	r.DurationMs = int(now.Sub(r.StartedAt).Milliseconds())
}
