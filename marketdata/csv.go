package marketdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stock-forecast/models"
	"stock-forecast/observability"
)

// DatasetLoader serves prices from a directory of per-symbol CSV files
// (SYMBOL.csv with a Date,Open,High,Low,Close[,Volume] header). Useful for
// offline work and deterministic backtests without an API key.
type DatasetLoader struct {
	dir string
}

func NewDatasetLoader(dir string) *DatasetLoader {
	return &DatasetLoader{dir: dir}
}

// GetDailyPrices loads and parses the symbol's CSV file, oldest first.
func (l *DatasetLoader) GetDailyPrices(ctx context.Context, symbol string) ([]models.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(l.dir, strings.ToUpper(symbol)+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("no dataset for %s: %w", symbol, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var points []models.PricePoint
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read %s line %d: %w", path, line, err)
		}
		point, perr := parseRecord(record, cols)
		if perr != nil {
			observability.Warn("skipping bad dataset row",
				"file", path, "line", line, "error", perr)
			continue
		}
		points = append(points, point)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("dataset %s contains no valid rows", path)
	}
	if points[0].Date.After(points[len(points)-1].Date) {
		reverse(points)
	}
	return points, nil
}

// GetQuote synthesizes a quote from the last two rows of the dataset.
func (l *DatasetLoader) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	points, err := l.GetDailyPrices(ctx, symbol)
	if err != nil {
		return nil, err
	}
	last := points[len(points)-1]
	price := decimal.NewFromFloat(last.Close)
	change := decimal.Zero
	changePct := decimal.Zero
	if len(points) >= 2 {
		prev := points[len(points)-2].Close
		change = price.Sub(decimal.NewFromFloat(prev))
		if prev != 0 {
			changePct = decimal.NewFromFloat((last.Close - prev) / prev * 100)
		}
	}
	return &models.Quote{
		Symbol:        strings.ToUpper(symbol),
		Price:         price,
		Change:        change,
		ChangePercent: changePct,
		Volume:        last.Volume,
		LatestDay:     last.Date,
	}, nil
}

type columnMap struct {
	date, open, high, low, close, volume int
}

func mapColumns(header []string) (columnMap, error) {
	cols := columnMap{date: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date":
			cols.date = i
		case "open":
			cols.open = i
		case "high":
			cols.high = i
		case "low":
			cols.low = i
		case "close", "adj close", "adj_close":
			if cols.close < 0 {
				cols.close = i
			}
		case "volume":
			cols.volume = i
		}
	}
	if cols.date < 0 || cols.close < 0 {
		return cols, fmt.Errorf("header missing required Date/Close columns: %v", header)
	}
	return cols, nil
}

func parseRecord(record []string, cols columnMap) (models.PricePoint, error) {
	date, err := time.Parse("2006-01-02", strings.TrimSpace(record[cols.date]))
	if err != nil {
		return models.PricePoint{}, fmt.Errorf("bad date %q: %w", record[cols.date], err)
	}
	closePrice, err := strconv.ParseFloat(strings.TrimSpace(record[cols.close]), 64)
	if err != nil {
		return models.PricePoint{}, fmt.Errorf("bad close %q: %w", record[cols.close], err)
	}

	point := models.PricePoint{
		Date:  date,
		Open:  closePrice,
		High:  closePrice,
		Low:   closePrice,
		Close: closePrice,
	}
	get := func(idx int) (float64, bool) {
		if idx < 0 || idx >= len(record) {
			return 0, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
		return v, err == nil
	}
	if v, ok := get(cols.open); ok {
		point.Open = v
	}
	if v, ok := get(cols.high); ok {
		point.High = v
	}
	if v, ok := get(cols.low); ok {
		point.Low = v
	}
	if cols.volume >= 0 && cols.volume < len(record) {
		if v, err := strconv.ParseInt(strings.TrimSpace(record[cols.volume]), 10, 64); err == nil {
			point.Volume = v
		}
	}
	return point, nil
}

func reverse(points []models.PricePoint) {
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
}
