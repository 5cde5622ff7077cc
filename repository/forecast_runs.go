package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stock-forecast/models"
	"stock-forecast/observability"
)

const forecastRunColumns = `id, kind, model, symbol, prediction_days, test_days, status, error_message, duration_ms, started_at, completed_at`

// CreateForecastRun creates a new forecast run record
func (r *Repository) CreateForecastRun(ctx context.Context, run *models.ForecastRun) error {
	timer := observability.GetMetrics().NewTimer()
	_, err := r.db.Exec(ctx, `
		INSERT INTO forecast_runs (id, kind, model, symbol, prediction_days, test_days, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, run.ID, run.Kind, run.Model, run.Symbol, run.PredictionDays, run.TestDays, run.Status, run.StartedAt)

	if err != nil {
		observability.GetMetrics().RecordDBError("insert", "forecast_runs")
		return fmt.Errorf("failed to create forecast run: %w", err)
	}
	timer.ObserveDB("insert", "forecast_runs")
	return nil
}

// UpdateForecastRun updates an existing forecast run
func (r *Repository) UpdateForecastRun(ctx context.Context, run *models.ForecastRun) error {
	timer := observability.GetMetrics().NewTimer()
	_, err := r.db.Exec(ctx, `
		UPDATE forecast_runs
		SET status = $2, error_message = $3, duration_ms = $4, completed_at = $5
		WHERE id = $1
	`, run.ID, run.Status, run.ErrorMessage, run.DurationMs, run.CompletedAt)

	if err != nil {
		observability.GetMetrics().RecordDBError("update", "forecast_runs")
		return fmt.Errorf("failed to update forecast run: %w", err)
	}
	timer.ObserveDB("update", "forecast_runs")
	return nil
}

// GetForecastRun returns a single forecast run by ID, or nil when absent
func (r *Repository) GetForecastRun(ctx context.Context, id uuid.UUID) (*models.ForecastRun, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+forecastRunColumns+`
		FROM forecast_runs WHERE id = $1
	`, id)

	run, err := scanForecastRun(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query forecast run: %w", err)
	}
	return run, nil
}

// GetForecastRuns returns forecast runs with optional filtering by model kind
func (r *Repository) GetForecastRuns(ctx context.Context, model models.ModelKind, limit int) ([]models.ForecastRun, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows pgx.Rows
	var err error

	if model == "" {
		rows, err = r.db.Query(ctx, `
			SELECT `+forecastRunColumns+`
			FROM forecast_runs
			ORDER BY started_at DESC
			LIMIT $1
		`, limit)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT `+forecastRunColumns+`
			FROM forecast_runs
			WHERE model = $1
			ORDER BY started_at DESC
			LIMIT $2
		`, model, limit)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query forecast runs: %w", err)
	}
	defer rows.Close()

	return collectForecastRuns(rows)
}

// GetRecentRunsForSymbol returns recent forecast runs for a specific symbol
func (r *Repository) GetRecentRunsForSymbol(ctx context.Context, symbol string, limit int) ([]models.ForecastRun, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+forecastRunColumns+`
		FROM forecast_runs
		WHERE symbol = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecast runs: %w", err)
	}
	defer rows.Close()

	return collectForecastRuns(rows)
}

func collectForecastRuns(rows pgx.Rows) ([]models.ForecastRun, error) {
	var runs []models.ForecastRun
	for rows.Next() {
		run, err := scanForecastRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan forecast run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

func scanForecastRun(row pgx.Row) (*models.ForecastRun, error) {
	var run models.ForecastRun
	var errorMessage *string
	var durationMs *int

	err := row.Scan(&run.ID, &run.Kind, &run.Model, &run.Symbol, &run.PredictionDays,
		&run.TestDays, &run.Status, &errorMessage, &durationMs, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}

	if errorMessage != nil {
		run.ErrorMessage = *errorMessage
	}
	if durationMs != nil {
		run.DurationMs = *durationMs
	}
	return &run, nil
}
