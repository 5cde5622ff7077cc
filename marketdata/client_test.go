package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stock-forecast/config"
)

// isolateBreakers gives each test its own circuit breaker registry so trips
// don't leak between tests.
func isolateBreakers(t *testing.T) {
	t.Helper()
	old := GetGlobalRegistry()
	SetGlobalRegistry(NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig))
	t.Cleanup(func() { SetGlobalRegistry(old) })
}

func newTestClient(serverURL string) *Client {
	c := NewClient(config.MarketDataConfig{
		APIKey:     "test-key",
		BaseURL:    serverURL,
		MaxRetries: 1,
	})
	c.retry.InitialBackoff = time.Millisecond
	return c
}

const dailySeriesBody = `{
	"Meta Data": {"2. Symbol": "AAPL", "3. Last Refreshed": "2024-01-04"},
	"Time Series (Daily)": {
		"2024-01-04": {"1. open": "102.5", "2. high": "104.0", "3. low": "101.5", "4. close": "103.0", "5. volume": "900000"},
		"2024-01-02": {"1. open": "100.0", "2. high": "102.0", "3. low": "99.0", "4. close": "101.0", "5. volume": "1000000"},
		"2024-01-03": {"1. open": "101.0", "2. high": "103.0", "3. low": "100.0", "4. close": "102.5", "5. volume": "1100000"}
	}
}`

func TestClient_GetDailyPrices(t *testing.T) {
	isolateBreakers(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("function"); got != "TIME_SERIES_DAILY" {
			t.Errorf("function = %q", got)
		}
		if got := r.URL.Query().Get("symbol"); got != "AAPL" {
			t.Errorf("symbol = %q", got)
		}
		if got := r.URL.Query().Get("apikey"); got != "test-key" {
			t.Errorf("apikey = %q", got)
		}
		w.Write([]byte(dailySeriesBody))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	points, err := client.GetDailyPrices(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetDailyPrices: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	// The map response must come back sorted oldest first.
	if points[0].Close != 101.0 || points[2].Close != 103.0 {
		t.Errorf("points not sorted: %f ... %f", points[0].Close, points[2].Close)
	}
	if points[0].Volume != 1000000 {
		t.Errorf("volume = %d", points[0].Volume)
	}
}

func TestClient_GetDailyPrices_SkipsBadBars(t *testing.T) {
	isolateBreakers(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"Time Series (Daily)": {
				"2024-01-02": {"1. open": "100", "2. high": "101", "3. low": "99", "4. close": "100.5", "5. volume": "1000"},
				"not-a-date": {"1. open": "1", "2. high": "1", "3. low": "1", "4. close": "1", "5. volume": "1"},
				"2024-01-03": {"1. open": "bad", "2. high": "101", "3. low": "99", "4. close": "100.5", "5. volume": "1000"}
			}
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	points, err := client.GetDailyPrices(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetDailyPrices: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected 1 valid point, got %d", len(points))
	}
}

func TestClient_GetDailyPrices_RateLimitNote(t *testing.T) {
	isolateBreakers(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Note": "API call frequency exceeded"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.GetDailyPrices(context.Background(), "AAPL"); err == nil {
		t.Fatal("expected error on rate limit note")
	}
}

func TestClient_GetDailyPrices_ErrorMessage(t *testing.T) {
	isolateBreakers(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Error Message": "Invalid API call"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.GetDailyPrices(context.Background(), "BOGUS"); err == nil {
		t.Fatal("expected error on provider error message")
	}
}

func TestClient_GetDailyPrices_RetriesServerErrors(t *testing.T) {
	isolateBreakers(t)
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(dailySeriesBody))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	points, err := client.GetDailyPrices(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetDailyPrices after retry: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestClient_GetQuote(t *testing.T) {
	isolateBreakers(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("function"); got != "GLOBAL_QUOTE" {
			t.Errorf("function = %q", got)
		}
		w.Write([]byte(`{
			"Global Quote": {
				"01. symbol": "AAPL",
				"05. price": "185.50",
				"06. volume": "55000000",
				"07. latest trading day": "2024-01-04",
				"09. change": "1.25",
				"10. change percent": "0.6785%"
			}
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	quote, err := client.GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if !quote.Price.Equal(decimal.RequireFromString("185.50")) {
		t.Errorf("price = %s", quote.Price)
	}
	if !quote.Change.Equal(decimal.RequireFromString("1.25")) {
		t.Errorf("change = %s", quote.Change)
	}
	if !quote.ChangePercent.Equal(decimal.RequireFromString("0.6785")) {
		t.Errorf("change percent = %s", quote.ChangePercent)
	}
	if quote.Volume != 55000000 {
		t.Errorf("volume = %d", quote.Volume)
	}
	if quote.LatestDay.Format("2006-01-02") != "2024-01-04" {
		t.Errorf("latest day = %s", quote.LatestDay)
	}
}

func TestParseBar(t *testing.T) {
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	point, err := parseBar(date, "100.5", "102", "99", "101.25", "5000")
	if err != nil {
		t.Fatalf("parseBar: %v", err)
	}
	if point.Open != 100.5 || point.High != 102 || point.Low != 99 || point.Close != 101.25 || point.Volume != 5000 {
		t.Errorf("unexpected point: %+v", point)
	}

	if _, err := parseBar(date, "bad", "102", "99", "101", "5000"); err == nil {
		t.Error("expected error on bad open")
	}
	// Empty volume is tolerated.
	point, err = parseBar(date, "100", "102", "99", "101", "")
	if err != nil {
		t.Fatalf("parseBar without volume: %v", err)
	}
	if point.Volume != 0 {
		t.Errorf("volume = %d", point.Volume)
	}
}
