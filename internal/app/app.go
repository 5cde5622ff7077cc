package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"stock-forecast/config"
	"stock-forecast/forecast"
	"stock-forecast/marketdata"
	"stock-forecast/models"
)

// RepositoryInterface defines the repository operations needed by App
type RepositoryInterface interface {
	Close()
	Health(ctx context.Context) error
	GetForecastRuns(ctx context.Context, model models.ModelKind, limit int) ([]models.ForecastRun, error)
	GetRecentRunsForSymbol(ctx context.Context, symbol string, limit int) ([]models.ForecastRun, error)
}

// RegistryInterface defines the forecasting operations needed by App
type RegistryInterface interface {
	Predict(ctx context.Context, name, symbol string, prices []models.PricePoint, days int, confidence float64) models.ModelResult
	PredictAll(ctx context.Context, symbol string, prices []models.PricePoint, days int, confidence float64) []models.ModelResult
	Backtest(ctx context.Context, name, symbol string, prices []models.PricePoint, testDays int) models.BacktestResult
	BacktestAll(ctx context.Context, symbol string, prices []models.PricePoint, testDays int) []models.BacktestResult
	Models() []forecast.ModelInfo
	ModelInfo(name string) (forecast.ModelInfo, error)
}

// App wires the forecast registry, price provider, and repository behind the
// HTTP handlers. Dependencies are interfaces so tests can substitute fakes.
type App struct {
	cfg      *config.Config
	repo     RepositoryInterface
	registry RegistryInterface
	provider marketdata.Provider
}

// New creates a new App
func New(cfg *config.Config, repo RepositoryInterface, registry RegistryInterface, provider marketdata.Provider) *App {
	return &App{
		cfg:      cfg,
		repo:     repo,
		registry: registry,
		provider: provider,
	}
}

// Shutdown releases held resources
func (a *App) Shutdown(ctx context.Context) {
	if a.repo != nil {
		a.repo.Close()
	}
}

// Repo returns the repository interface for API handlers
func (a *App) Repo() RepositoryInterface {
	return a.repo
}

// Config returns the application configuration
func (a *App) Config() *config.Config {
	return a.cfg
}

// loadPrices fetches the daily history for a symbol from the configured
// provider.
func (a *App) loadPrices(ctx context.Context, symbol string) ([]models.PricePoint, error) {
	if a.provider == nil {
		return nil, fmt.Errorf("no market data provider configured")
	}
	prices, err := a.provider.GetDailyPrices(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to load prices for %s: %w", symbol, err)
	}
	return prices, nil
}

// PredictAll runs the whole ensemble for a symbol
func (a *App) PredictAll(ctx context.Context, symbol string, days int, confidence float64) ([]models.ModelResult, error) {
	symbol = NormalizeSymbol(symbol)
	prices, err := a.loadPrices(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return a.registry.PredictAll(ctx, symbol, prices, days, confidence), nil
}

// PredictModel runs a single model for a symbol
func (a *App) PredictModel(ctx context.Context, model, symbol string, days int, confidence float64) (models.ModelResult, error) {
	symbol = NormalizeSymbol(symbol)
	prices, err := a.loadPrices(ctx, symbol)
	if err != nil {
		return models.ModelResult{}, err
	}
	return a.registry.Predict(ctx, model, symbol, prices, days, confidence), nil
}

// BacktestAll evaluates the whole ensemble over a walk-forward window
func (a *App) BacktestAll(ctx context.Context, symbol string, testDays int) ([]models.BacktestResult, error) {
	symbol = NormalizeSymbol(symbol)
	prices, err := a.loadPrices(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return a.registry.BacktestAll(ctx, symbol, prices, testDays), nil
}

// BacktestModel evaluates a single model over a walk-forward window
func (a *App) BacktestModel(ctx context.Context, model, symbol string, testDays int) (models.BacktestResult, error) {
	symbol = NormalizeSymbol(symbol)
	prices, err := a.loadPrices(ctx, symbol)
	if err != nil {
		return models.BacktestResult{}, err
	}
	return a.registry.Backtest(ctx, model, symbol, prices, testDays), nil
}

// Models lists every registered forecaster
func (a *App) Models() []forecast.ModelInfo {
	return a.registry.Models()
}

// ModelInfo returns one forecaster's description
func (a *App) ModelInfo(name string) (forecast.ModelInfo, error) {
	return a.registry.ModelInfo(name)
}

// GetQuote returns the latest quote for a symbol
func (a *App) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if a.provider == nil {
		return nil, fmt.Errorf("no market data provider configured")
	}
	return a.provider.GetQuote(ctx, NormalizeSymbol(symbol))
}

// GetForecastRuns returns recent run history, optionally filtered by model
func (a *App) GetForecastRuns(ctx context.Context, model string, limit int) ([]models.ForecastRun, error) {
	if a.repo == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return a.repo.GetForecastRuns(ctx, models.ModelKind(model), limit)
}

// GetRunsForSymbol returns recent run history for one symbol
func (a *App) GetRunsForSymbol(ctx context.Context, symbol string, limit int) ([]models.ForecastRun, error) {
	if a.repo == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return a.repo.GetRecentRunsForSymbol(ctx, NormalizeSymbol(symbol), limit)
}

// NormalizeSymbol uppercases and trims a ticker symbol
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ParseUUID parses a UUID string with a friendlier error
func ParseUUID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", id, err)
	}
	return parsed, nil
}
