package forecast

import (
	"math"
	"time"

	"stock-forecast/models"
)

// syntheticPrices builds a deterministic OHLCV series: geometric drift plus a
// sine cycle, business days only. Every test that needs price history uses
// this so failures reproduce exactly.
func syntheticPrices(n int, start, dailyDrift, cycleAmp float64) []models.PricePoint {
	prices := make([]models.PricePoint, 0, n)
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	prev := start
	for i := 0; len(prices) < n; i++ {
		for date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			date = date.AddDate(0, 0, 1)
		}
		base := start * math.Pow(1+dailyDrift, float64(i))
		c := base * (1 + cycleAmp*math.Sin(2*math.Pi*float64(i)/20))
		hi := math.Max(prev, c) * 1.01
		lo := math.Min(prev, c) * 0.99
		prices = append(prices, models.PricePoint{
			Date:   date,
			Open:   prev,
			High:   hi,
			Low:    lo,
			Close:  c,
			Volume: 1_000_000 + int64(i)*1000,
		})
		prev = c
		date = date.AddDate(0, 0, 1)
	}
	return prices
}

// trendingPrices is the common case: a gently rising series long enough for
// every model in the ensemble.
func trendingPrices(n int) []models.PricePoint {
	return syntheticPrices(n, 100, 0.001, 0.02)
}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
