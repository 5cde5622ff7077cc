package forecast

import (
	"math"
	"time"

	"stock-forecast/models"
)

// featureWarmup is the largest indicator window; rows earlier than this have
// undefined values for at least one column.
const featureWarmup = 50

var maWindows = []int{5, 10, 20, 50}

var lagDays = []int{1, 2, 3, 5}

// FeatureTable is a dense table of technical-indicator values, one row per
// price point. Columns with no valid values are dropped during construction;
// remaining NaN/Inf cells are forward-filled, back-filled, then zero-filled,
// so consumers never see non-finite values.
type FeatureTable struct {
	Columns []string
	Rows    [][]float64 // Rows[i][j] is column j at day i
	Dates   []time.Time
	Closes  []float64
}

// NumRows returns the number of rows in the table.
func (t *FeatureTable) NumRows() int { return len(t.Rows) }

// NumColumns returns the number of retained feature columns.
func (t *FeatureTable) NumColumns() int { return len(t.Columns) }

// ComputeFeatures builds the technical-indicator feature table from an
// ordered OHLCV series. It is a pure function of its input: no randomness,
// no shared state. Fails if the series is shorter than the indicator warm-up.
func ComputeFeatures(prices []models.PricePoint) (*FeatureTable, error) {
	if len(prices) < featureWarmup {
		return nil, &InsufficientDataError{Required: featureWarmup, Got: len(prices)}
	}

	n := len(prices)
	closes := make([]float64, n)
	opens := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	dates := make([]time.Time, n)
	hasVolume := false
	for i, p := range prices {
		closes[i] = p.Close
		opens[i] = p.Open
		highs[i] = p.High
		lows[i] = p.Low
		volumes[i] = float64(p.Volume)
		dates[i] = p.Date
		if p.Volume > 0 {
			hasVolume = true
		}
	}

	cols := make([]string, 0, 48)
	data := make([][]float64, 0, 48)
	add := func(name string, series []float64) {
		cols = append(cols, name)
		data = append(data, series)
	}

	returns := pctChange(closes)
	add("returns", returns)
	add("log_returns", logReturns(closes))
	add("price_momentum", momentum(closes, 5))

	for _, w := range maWindows {
		sma := rollingMean(closes, w)
		add(smaName(w), sma)
		add("ema_"+itoa(w), ewma(closes, w))
		add("price_to_sma_"+itoa(w), ratio(closes, sma))
		add("sma_"+itoa(w)+"_slope", diffLag(sma, 5))
	}

	vol5 := rollingStd(returns, 5)
	vol20 := rollingStd(returns, 20)
	add("volatility_5", vol5)
	add("volatility_20", vol20)
	add("volatility_ratio", ratio(vol5, vol20))

	add("rsi", rsi(closes, 14))

	bbMiddle := rollingMean(closes, 20)
	bbStd := rollingStd(closes, 20)
	bbUpper := make([]float64, n)
	bbLower := make([]float64, n)
	bbPosition := make([]float64, n)
	bbSqueeze := make([]float64, n)
	for i := range closes {
		bbUpper[i] = bbMiddle[i] + 2*bbStd[i]
		bbLower[i] = bbMiddle[i] - 2*bbStd[i]
		bbPosition[i] = (closes[i] - bbLower[i]) / (bbUpper[i] - bbLower[i])
		bbSqueeze[i] = (bbUpper[i] - bbLower[i]) / bbMiddle[i]
	}
	add("bb_middle", bbMiddle)
	add("bb_upper", bbUpper)
	add("bb_lower", bbLower)
	add("bb_position", bbPosition)
	add("bb_squeeze", bbSqueeze)

	ema12 := ewma(closes, 12)
	ema26 := ewma(closes, 26)
	macd := make([]float64, n)
	for i := range macd {
		macd[i] = ema12[i] - ema26[i]
	}
	macdSignal := ewma(macd, 9)
	macdHist := make([]float64, n)
	for i := range macdHist {
		macdHist[i] = macd[i] - macdSignal[i]
	}
	add("macd", macd)
	add("macd_signal", macdSignal)
	add("macd_histogram", macdHist)

	if hasVolume {
		volSMA := rollingMean(volumes, 20)
		add("volume_ratio", ratio(volumes, volSMA))
		add("vwap", vwap(closes, volumes, 20))
	} else {
		// Neutral volume features when the dataset carries no volume.
		add("volume_ratio", constant(n, 1.0))
		add("vwap", append([]float64(nil), closes...))
	}

	highLow := make([]float64, n)
	bodySize := make([]float64, n)
	upperShadow := make([]float64, n)
	lowerShadow := make([]float64, n)
	for i := range closes {
		highLow[i] = highs[i] / lows[i]
		bodySize[i] = math.Abs(closes[i]-opens[i]) / opens[i]
		upperShadow[i] = (highs[i] - math.Max(closes[i], opens[i])) / opens[i]
		lowerShadow[i] = (math.Min(closes[i], opens[i]) - lows[i]) / opens[i]
	}
	add("high_low_ratio", highLow)
	add("body_size", bodySize)
	add("upper_shadow", upperShadow)
	add("lower_shadow", lowerShadow)

	for _, p := range []int{5, 10, 20} {
		add("trend_"+itoa(p), trendSign(closes, p))
		add("support_"+itoa(p), rollingMin(lows, p))
		add("resistance_"+itoa(p), rollingMax(highs, p))
	}

	for _, lag := range lagDays {
		add("price_lag_"+itoa(lag), shift(closes, lag))
		add("return_lag_"+itoa(lag), shift(returns, lag))
	}

	// Drop columns with no finite values at all, then fill the gaps in the
	// survivors deterministically.
	keepCols := make([]string, 0, len(cols))
	keepData := make([][]float64, 0, len(data))
	for j, series := range data {
		if hasFinite(series) {
			keepCols = append(keepCols, cols[j])
			keepData = append(keepData, fillSeries(series))
		}
	}
	if len(keepCols) == 0 {
		return nil, &FittingError{Err: errNoValidFeatures}
	}

	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, len(keepData))
		for j := range keepData {
			row[j] = keepData[j][i]
		}
		rows[i] = row
	}

	return &FeatureTable{
		Columns: keepCols,
		Rows:    rows,
		Dates:   dates,
		Closes:  closes,
	}, nil
}

// ColumnIndex returns the index of the named column, or -1.
func (t *FeatureTable) ColumnIndex(name string) int {
	for j, c := range t.Columns {
		if c == name {
			return j
		}
	}
	return -1
}

// Slice returns a table restricted to rows [0, end).
func (t *FeatureTable) Slice(end int) *FeatureTable {
	return &FeatureTable{
		Columns: t.Columns,
		Rows:    t.Rows[:end],
		Dates:   t.Dates[:end],
		Closes:  t.Closes[:end],
	}
}

func smaName(w int) string { return "sma_" + itoa(w) }

// fillSeries replaces NaN/Inf by forward fill, then backward fill, then zero.
func fillSeries(series []float64) []float64 {
	out := make([]float64, len(series))
	last := math.NaN()
	for i, v := range series {
		if isFinite(v) {
			last = v
			out[i] = v
		} else {
			out[i] = last // may still be NaN at the head
		}
	}
	next := math.NaN()
	for i := len(out) - 1; i >= 0; i-- {
		if isFinite(out[i]) {
			next = out[i]
		} else if isFinite(next) {
			out[i] = next
		} else {
			out[i] = 0
		}
	}
	return out
}

func hasFinite(series []float64) bool {
	for _, v := range series {
		if isFinite(v) {
			return true
		}
	}
	return false
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
