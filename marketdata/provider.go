package marketdata

import (
	"context"

	"stock-forecast/models"
)

// Provider supplies historical daily prices and quotes for a symbol. Prices
// are returned oldest first.
type Provider interface {
	GetDailyPrices(ctx context.Context, symbol string) ([]models.PricePoint, error)
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
}
