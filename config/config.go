package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Market data provider configuration
	MarketData MarketDataConfig

	// Forecast engine configuration
	Forecast ForecastConfig

	// HTTP configuration
	HTTP HTTPConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// MarketDataConfig holds the daily price provider configuration
type MarketDataConfig struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
	// DatasetDir points at a directory of per-symbol CSV files; when set it
	// takes priority over the HTTP provider.
	DatasetDir string
}

// ForecastConfig holds forecast engine configuration
type ForecastConfig struct {
	PredictionDays    int     // default forecast horizon in trading days
	MaxPredictionDays int     // upper bound accepted from requests
	ConfidenceLevel   float64 // two-sided interval level
	TestDays          int     // default walk-forward window
	TimeoutSeconds    int     // per-model budget in ensemble runs
	ConcurrencyLimit  int     // max models running at once
	Seed              int     // base seed for stochastic components
	NativeLSTM        bool    // train the recurrent model instead of its trend fallback
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port               string
	CORSAllowedOrigins string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		MarketData: MarketDataConfig{
			APIKey:     os.Getenv("MARKET_DATA_API_KEY"),
			BaseURL:    getEnvString("MARKET_DATA_BASE_URL", "https://www.alphavantage.co"),
			MaxRetries: getEnvInt("MARKET_DATA_MAX_RETRIES", 3),
			DatasetDir: os.Getenv("MARKET_DATA_DATASET_DIR"),
		},
		Forecast: ForecastConfig{
			PredictionDays:    getEnvInt("FORECAST_PREDICTION_DAYS", 30),
			MaxPredictionDays: getEnvInt("FORECAST_MAX_PREDICTION_DAYS", 365),
			ConfidenceLevel:   getEnvFloatRange("FORECAST_CONFIDENCE_LEVEL", 0.95, 0.5, 0.99),
			TestDays:          getEnvInt("FORECAST_TEST_DAYS", 30),
			TimeoutSeconds:    getEnvInt("FORECAST_TIMEOUT_SECONDS", 120),
			ConcurrencyLimit:  getEnvInt("FORECAST_CONCURRENCY_LIMIT", 3),
			Seed:              getEnvInt("FORECAST_SEED", 42),
			NativeLSTM:        getEnvBool("FORECAST_NATIVE_LSTM", true),
		},
		HTTP: HTTPConfig{
			Port:               getEnvString("PORT", "8080"),
			CORSAllowedOrigins: getEnvString("CORS_ALLOWED_ORIGINS", "*"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Forecast.PredictionDays <= 0 {
		return fmt.Errorf("FORECAST_PREDICTION_DAYS must be positive, got %d", c.Forecast.PredictionDays)
	}
	if c.Forecast.MaxPredictionDays < c.Forecast.PredictionDays {
		return fmt.Errorf("FORECAST_MAX_PREDICTION_DAYS must be >= FORECAST_PREDICTION_DAYS, got %d < %d",
			c.Forecast.MaxPredictionDays, c.Forecast.PredictionDays)
	}
	if c.Forecast.ConfidenceLevel <= 0.5 || c.Forecast.ConfidenceLevel >= 1 {
		return fmt.Errorf("FORECAST_CONFIDENCE_LEVEL must be in (0.5, 1), got %.2f", c.Forecast.ConfidenceLevel)
	}
	if c.Forecast.TestDays <= 0 {
		return fmt.Errorf("FORECAST_TEST_DAYS must be positive, got %d", c.Forecast.TestDays)
	}
	if c.Forecast.TimeoutSeconds <= 0 {
		return fmt.Errorf("FORECAST_TIMEOUT_SECONDS must be positive, got %d", c.Forecast.TimeoutSeconds)
	}
	if c.Forecast.ConcurrencyLimit <= 0 {
		return fmt.Errorf("FORECAST_CONCURRENCY_LIMIT must be positive, got %d", c.Forecast.ConcurrencyLimit)
	}
	return nil
}

// HasDatabase returns true if database configuration is available
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// HasMarketDataAPI returns true if the HTTP price provider is configured
func (c *Config) HasMarketDataAPI() bool {
	return c.MarketData.APIKey != ""
}

// HasDataset returns true if a local CSV dataset directory is configured
func (c *Config) HasDataset() bool {
	return c.MarketData.DatasetDir != ""
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatRange(key string, defaultValue, minVal, maxVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil && parsed >= minVal && parsed <= maxVal {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// NewTestConfig creates a Config with default values for testing
func NewTestConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL: "",
		},
		MarketData: MarketDataConfig{
			APIKey:     "",
			BaseURL:    "https://www.alphavantage.co",
			MaxRetries: 3,
			DatasetDir: "",
		},
		Forecast: ForecastConfig{
			PredictionDays:    30,
			MaxPredictionDays: 365,
			ConfidenceLevel:   0.95,
			TestDays:          30,
			TimeoutSeconds:    120,
			ConcurrencyLimit:  3,
			Seed:              42,
			NativeLSTM:        false,
		},
		HTTP: HTTPConfig{
			Port:               "8080",
			CORSAllowedOrigins: "*",
		},
	}
}
