package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stock-forecast/config"
	"stock-forecast/models"
	"stock-forecast/observability"
)

// Client fetches daily price history and quotes from an Alpha Vantage style
// API. Calls run through retry with exponential backoff and the shared
// circuit breaker.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	retry      RetryConfig
}

// NewClient creates a Client from config
func NewClient(cfg config.MarketDataConfig) *Client {
	retry := DefaultRetryConfig
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}
	return &Client{
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    cfg.BaseURL + "/query",
		retry:      retry,
	}
}

// dailySeriesResponse represents the daily time series response
type dailySeriesResponse struct {
	MetaData struct {
		Symbol        string `json:"2. Symbol"`
		LastRefreshed string `json:"3. Last Refreshed"`
	} `json:"Meta Data"`
	TimeSeries map[string]struct {
		Open   string `json:"1. open"`
		High   string `json:"2. high"`
		Low    string `json:"3. low"`
		Close  string `json:"4. close"`
		Volume string `json:"5. volume"`
	} `json:"Time Series (Daily)"`
	Note         string `json:"Note"`
	ErrorMessage string `json:"Error Message"`
}

// GetDailyPrices returns the full daily OHLCV history for a symbol, oldest
// first.
func (c *Client) GetDailyPrices(ctx context.Context, symbol string) ([]models.PricePoint, error) {
	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest("price_api", "daily_series")
	timer := metrics.NewTimer()

	points, err := WithCircuitBreaker(ctx, BreakerPriceAPI, func() ([]models.PricePoint, error) {
		var out []models.PricePoint
		retryErr := WithRetry(ctx, c.retry, func() error {
			params := url.Values{}
			params.Set("function", "TIME_SERIES_DAILY")
			params.Set("symbol", symbol)
			params.Set("outputsize", "full")
			params.Set("apikey", c.apiKey)

			resp, err := c.httpClient.Get(c.baseURL + "?" + params.Encode())
			if err != nil {
				return fmt.Errorf("failed to fetch daily series: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("daily series request returned status %d", resp.StatusCode)
			}

			var series dailySeriesResponse
			if err := json.NewDecoder(resp.Body).Decode(&series); err != nil {
				return fmt.Errorf("failed to decode daily series: %w", err)
			}
			if series.ErrorMessage != "" {
				return fmt.Errorf("daily series error for %s: %s", symbol, series.ErrorMessage)
			}
			if series.Note != "" {
				return fmt.Errorf("daily series rate limited: %s", series.Note)
			}
			if len(series.TimeSeries) == 0 {
				return fmt.Errorf("no price data returned for %s", symbol)
			}

			out = out[:0]
			for day, bar := range series.TimeSeries {
				date, err := time.Parse("2006-01-02", day)
				if err != nil {
					observability.Warn("skipping unparsable date in daily series",
						"symbol", symbol, "date", day, "error", err)
					continue
				}
				point, err := parseBar(date, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
				if err != nil {
					observability.Warn("skipping unparsable bar in daily series",
						"symbol", symbol, "date", day, "error", err)
					continue
				}
				out = append(out, point)
			}
			sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
			return nil
		})
		return out, retryErr
	})

	if err != nil {
		metrics.RecordExternalAPIError("price_api", "daily_series", "fetch_failed")
		return nil, err
	}
	timer.ObserveExternalAPI("price_api", "daily_series")
	return points, nil
}

// quoteResponse represents a quote from the provider
type quoteResponse struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		Volume        string `json:"06. volume"`
		LatestDay     string `json:"07. latest trading day"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
}

// GetQuote returns the latest quote for a symbol
func (c *Client) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest("price_api", "quote")
	timer := metrics.NewTimer()

	quote, err := WithCircuitBreaker(ctx, BreakerPriceAPI, func() (*models.Quote, error) {
		params := url.Values{}
		params.Set("function", "GLOBAL_QUOTE")
		params.Set("symbol", symbol)
		params.Set("apikey", c.apiKey)

		resp, err := c.httpClient.Get(c.baseURL + "?" + params.Encode())
		if err != nil {
			return nil, fmt.Errorf("failed to fetch quote: %w", err)
		}
		defer resp.Body.Close()

		var quoteResp quoteResponse
		if err := json.NewDecoder(resp.Body).Decode(&quoteResp); err != nil {
			return nil, fmt.Errorf("failed to decode quote: %w", err)
		}

		price, _ := decimal.NewFromString(quoteResp.GlobalQuote.Price)
		change, _ := decimal.NewFromString(quoteResp.GlobalQuote.Change)
		changePct, _ := decimal.NewFromString(strings.TrimSuffix(quoteResp.GlobalQuote.ChangePercent, "%"))
		var volume int64
		if quoteResp.GlobalQuote.Volume != "" {
			volume, err = strconv.ParseInt(quoteResp.GlobalQuote.Volume, 10, 64)
			if err != nil {
				observability.Warn("failed to parse quote volume",
					"symbol", symbol, "volume", quoteResp.GlobalQuote.Volume, "error", err)
			}
		}
		latestDay, err := time.Parse("2006-01-02", quoteResp.GlobalQuote.LatestDay)
		if err != nil {
			return nil, fmt.Errorf("bad latest trading day %q: %w", quoteResp.GlobalQuote.LatestDay, err)
		}

		return &models.Quote{
			Symbol:        symbol,
			Price:         price,
			Change:        change,
			ChangePercent: changePct,
			Volume:        volume,
			LatestDay:     latestDay,
		}, nil
	})

	if err != nil {
		metrics.RecordExternalAPIError("price_api", "quote", "fetch_failed")
		return nil, err
	}
	timer.ObserveExternalAPI("price_api", "quote")
	return quote, nil
}

// parseBar converts one day's OHLCV strings into a PricePoint.
func parseBar(date time.Time, open, high, low, close, volume string) (models.PricePoint, error) {
	o, err := strconv.ParseFloat(open, 64)
	if err != nil {
		return models.PricePoint{}, fmt.Errorf("bad open %q: %w", open, err)
	}
	h, err := strconv.ParseFloat(high, 64)
	if err != nil {
		return models.PricePoint{}, fmt.Errorf("bad high %q: %w", high, err)
	}
	l, err := strconv.ParseFloat(low, 64)
	if err != nil {
		return models.PricePoint{}, fmt.Errorf("bad low %q: %w", low, err)
	}
	cl, err := strconv.ParseFloat(close, 64)
	if err != nil {
		return models.PricePoint{}, fmt.Errorf("bad close %q: %w", close, err)
	}
	var v int64
	if volume != "" {
		v, err = strconv.ParseInt(volume, 10, 64)
		if err != nil {
			return models.PricePoint{}, fmt.Errorf("bad volume %q: %w", volume, err)
		}
	}
	return models.PricePoint{Date: date, Open: o, High: h, Low: l, Close: cl, Volume: v}, nil
}
