package config

import (
	"strings"
	"testing"
)

func clearForecastEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL",
		"MARKET_DATA_API_KEY",
		"MARKET_DATA_BASE_URL",
		"MARKET_DATA_MAX_RETRIES",
		"MARKET_DATA_DATASET_DIR",
		"FORECAST_PREDICTION_DAYS",
		"FORECAST_MAX_PREDICTION_DAYS",
		"FORECAST_CONFIDENCE_LEVEL",
		"FORECAST_TEST_DAYS",
		"FORECAST_TIMEOUT_SECONDS",
		"FORECAST_CONCURRENCY_LIMIT",
		"FORECAST_SEED",
		"FORECAST_NATIVE_LSTM",
		"PORT",
		"CORS_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearForecastEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Forecast.PredictionDays != 30 {
		t.Errorf("PredictionDays = %d", cfg.Forecast.PredictionDays)
	}
	if cfg.Forecast.MaxPredictionDays != 365 {
		t.Errorf("MaxPredictionDays = %d", cfg.Forecast.MaxPredictionDays)
	}
	if cfg.Forecast.ConfidenceLevel != 0.95 {
		t.Errorf("ConfidenceLevel = %f", cfg.Forecast.ConfidenceLevel)
	}
	if cfg.Forecast.TestDays != 30 || cfg.Forecast.TimeoutSeconds != 120 || cfg.Forecast.ConcurrencyLimit != 3 {
		t.Errorf("unexpected forecast defaults: %+v", cfg.Forecast)
	}
	if cfg.Forecast.Seed != 42 || !cfg.Forecast.NativeLSTM {
		t.Errorf("Seed = %d, NativeLSTM = %v", cfg.Forecast.Seed, cfg.Forecast.NativeLSTM)
	}
	if cfg.MarketData.BaseURL != "https://www.alphavantage.co" || cfg.MarketData.MaxRetries != 3 {
		t.Errorf("unexpected market data defaults: %+v", cfg.MarketData)
	}
	if cfg.HTTP.Port != "8080" || cfg.HTTP.CORSAllowedOrigins != "*" {
		t.Errorf("unexpected HTTP defaults: %+v", cfg.HTTP)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearForecastEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/forecasts")
	t.Setenv("MARKET_DATA_API_KEY", "key-123")
	t.Setenv("FORECAST_PREDICTION_DAYS", "14")
	t.Setenv("FORECAST_CONFIDENCE_LEVEL", "0.90")
	t.Setenv("FORECAST_NATIVE_LSTM", "false")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.URL != "postgres://localhost/forecasts" {
		t.Errorf("DatabaseURL = %s", cfg.Database.URL)
	}
	if cfg.MarketData.APIKey != "key-123" {
		t.Errorf("APIKey = %s", cfg.MarketData.APIKey)
	}
	if cfg.Forecast.PredictionDays != 14 {
		t.Errorf("PredictionDays = %d", cfg.Forecast.PredictionDays)
	}
	if cfg.Forecast.ConfidenceLevel != 0.90 {
		t.Errorf("ConfidenceLevel = %f", cfg.Forecast.ConfidenceLevel)
	}
	if cfg.Forecast.NativeLSTM {
		t.Error("NativeLSTM should be disabled")
	}
	if cfg.HTTP.Port != "9090" {
		t.Errorf("Port = %s", cfg.HTTP.Port)
	}
}

func TestLoad_IgnoresInvalidEnvValues(t *testing.T) {
	clearForecastEnv(t)
	t.Setenv("FORECAST_PREDICTION_DAYS", "not-a-number")
	t.Setenv("FORECAST_TEST_DAYS", "-5")
	t.Setenv("FORECAST_CONFIDENCE_LEVEL", "1.5") // above the accepted range

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Forecast.PredictionDays != 30 {
		t.Errorf("bad int should fall back to default, got %d", cfg.Forecast.PredictionDays)
	}
	if cfg.Forecast.TestDays != 30 {
		t.Errorf("negative int should fall back to default, got %d", cfg.Forecast.TestDays)
	}
	if cfg.Forecast.ConfidenceLevel != 0.95 {
		t.Errorf("out-of-range float should fall back to default, got %f", cfg.Forecast.ConfidenceLevel)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero prediction days", func(c *Config) { c.Forecast.PredictionDays = 0 }, "FORECAST_PREDICTION_DAYS"},
		{"max below default", func(c *Config) { c.Forecast.MaxPredictionDays = 10 }, "FORECAST_MAX_PREDICTION_DAYS"},
		{"confidence too low", func(c *Config) { c.Forecast.ConfidenceLevel = 0.5 }, "FORECAST_CONFIDENCE_LEVEL"},
		{"confidence too high", func(c *Config) { c.Forecast.ConfidenceLevel = 1.0 }, "FORECAST_CONFIDENCE_LEVEL"},
		{"zero test days", func(c *Config) { c.Forecast.TestDays = 0 }, "FORECAST_TEST_DAYS"},
		{"zero timeout", func(c *Config) { c.Forecast.TimeoutSeconds = 0 }, "FORECAST_TIMEOUT_SECONDS"},
		{"zero concurrency", func(c *Config) { c.Forecast.ConcurrencyLimit = 0 }, "FORECAST_CONCURRENCY_LIMIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %s", err, tt.wantErr)
			}
		})
	}
}

func TestFeatureChecks(t *testing.T) {
	cfg := NewTestConfig()
	if cfg.HasDatabase() || cfg.HasMarketDataAPI() || cfg.HasDataset() {
		t.Error("test config should have no external services configured")
	}

	cfg.Database.URL = "postgres://localhost/db"
	cfg.MarketData.APIKey = "key"
	cfg.MarketData.DatasetDir = "/data"
	if !cfg.HasDatabase() || !cfg.HasMarketDataAPI() || !cfg.HasDataset() {
		t.Error("feature checks should report configured services")
	}
}

func TestNewTestConfig_Valid(t *testing.T) {
	cfg := NewTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config should validate: %v", err)
	}
	if cfg.Forecast.NativeLSTM {
		t.Error("test config should use the trend fallback for the recurrent model")
	}
	if cfg.Forecast.Seed != 42 {
		t.Errorf("Seed = %d", cfg.Forecast.Seed)
	}
}
