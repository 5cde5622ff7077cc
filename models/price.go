package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is a single day of OHLCV market data. Series are always ordered
// by date ascending with no duplicate dates.
type PricePoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Quote is a point-in-time price snapshot from the market data provider.
// Values stay decimal at the ingestion edge; forecasting works on floats.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Volume        int64           `json:"volume"`
	LatestDay     time.Time       `json:"latest_day"`
}

// ClosePrices extracts the close column from a price series.
func ClosePrices(points []PricePoint) []float64 {
	closes := make([]float64, len(points))
	for i, p := range points {
		closes[i] = p.Close
	}
	return closes
}
