package app

import (
	"context"
	"testing"

	"stock-forecast/config"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"aapl", "AAPL"},
		{"  msft ", "MSFT"},
		{"BRK.B", "BRK.B"},
		{"AAPL", "AAPL"},
	}
	for _, tt := range tests {
		if got := NormalizeSymbol(tt.in); got != tt.want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseUUID(t *testing.T) {
	id, err := ParseUUID("2d9df1a6-93ae-4c4b-8b3e-560a6f3c1a01")
	if err != nil {
		t.Fatalf("ParseUUID: %v", err)
	}
	if id.String() != "2d9df1a6-93ae-4c4b-8b3e-560a6f3c1a01" {
		t.Errorf("round trip mismatch: %s", id)
	}

	if _, err := ParseUUID("not-a-uuid"); err == nil {
		t.Error("expected error for malformed id")
	}
}

func TestApp_NoProvider(t *testing.T) {
	application := New(config.NewTestConfig(), nil, nil, nil)

	if _, err := application.PredictAll(context.Background(), "AAPL", 10, 0.95); err == nil {
		t.Error("PredictAll should fail without a provider")
	}
	if _, err := application.BacktestModel(context.Background(), "arima", "AAPL", 10); err == nil {
		t.Error("BacktestModel should fail without a provider")
	}
	if _, err := application.GetQuote(context.Background(), "AAPL"); err == nil {
		t.Error("GetQuote should fail without a provider")
	}
}

func TestApp_NoRepository(t *testing.T) {
	application := New(config.NewTestConfig(), nil, nil, nil)

	if _, err := application.GetForecastRuns(context.Background(), "", 10); err == nil {
		t.Error("GetForecastRuns should fail without a database")
	}
	if _, err := application.GetRunsForSymbol(context.Background(), "AAPL", 10); err == nil {
		t.Error("GetRunsForSymbol should fail without a database")
	}
}
