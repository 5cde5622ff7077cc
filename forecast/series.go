package forecast

import (
	"errors"
	"math"
	"strconv"
)

// Series helpers used by the feature engineer and the forecasters. All of
// them return a slice the same length as the input, padding the warm-up
// region with NaN so the fill policy can handle it uniformly.

var errNoValidFeatures = errors.New("no feature column has any finite value")

func itoa(n int) string { return strconv.Itoa(n) }

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// pctChange is the day-over-day relative change; first element is NaN.
func pctChange(series []float64) []float64 {
	out := make([]float64, len(series))
	out[0] = math.NaN()
	for i := 1; i < len(series); i++ {
		out[i] = series[i]/series[i-1] - 1
	}
	return out
}

func logReturns(series []float64) []float64 {
	out := make([]float64, len(series))
	out[0] = math.NaN()
	for i := 1; i < len(series); i++ {
		out[i] = math.Log(series[i] / series[i-1])
	}
	return out
}

// momentum is the relative change over a period lag.
func momentum(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	for i := range out {
		if i < period {
			out[i] = math.NaN()
			continue
		}
		out[i] = series[i]/series[i-period] - 1
	}
	return out
}

func rollingMean(series []float64, window int) []float64 {
	out := make([]float64, len(series))
	sum := 0.0
	for i, v := range series {
		sum += v
		if i >= window {
			sum -= series[i-window]
		}
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(window)
	}
	return out
}

// rollingStd is the sample standard deviation over a trailing window. NaN
// inputs inside the window make the output NaN for those positions.
func rollingStd(series []float64, window int) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sampleStd(series[i-window+1 : i+1])
	}
	return out
}

func sampleStd(window []float64) float64 {
	n := len(window)
	if n < 2 {
		return math.NaN()
	}
	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(n)
	ss := 0.0
	for _, v := range window {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// ewma is the exponentially weighted moving average with span semantics:
// alpha = 2/(span+1), seeded from the first observation.
func ewma(series []float64, span int) []float64 {
	out := make([]float64, len(series))
	alpha := 2.0 / (float64(span) + 1.0)
	prev := math.NaN()
	for i, v := range series {
		if math.IsNaN(v) {
			out[i] = prev
			continue
		}
		if math.IsNaN(prev) {
			prev = v
		} else {
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

func rollingMin(series []float64, window int) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		m := series[i-window+1]
		for _, v := range series[i-window+2 : i+1] {
			if v < m {
				m = v
			}
		}
		out[i] = m
	}
	return out
}

func rollingMax(series []float64, window int) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		m := series[i-window+1]
		for _, v := range series[i-window+2 : i+1] {
			if v > m {
				m = v
			}
		}
		out[i] = m
	}
	return out
}

func ratio(num, den []float64) []float64 {
	out := make([]float64, len(num))
	for i := range num {
		out[i] = num[i] / den[i]
	}
	return out
}

// diffLag is series[i] - series[i-lag].
func diffLag(series []float64, lag int) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		if i < lag {
			out[i] = math.NaN()
			continue
		}
		out[i] = series[i] - series[i-lag]
	}
	return out
}

// shift delays the series by lag positions, padding the head with NaN.
func shift(series []float64, lag int) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		if i < lag {
			out[i] = math.NaN()
			continue
		}
		out[i] = series[i-lag]
	}
	return out
}

// rsi is the relative strength index using rolling-mean gains and losses.
func rsi(closes []float64, period int) []float64 {
	n := len(closes)
	gains := make([]float64, n)
	losses := make([]float64, n)
	gains[0] = math.NaN()
	losses[0] = math.NaN()
	for i := 1; i < n; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	avgGain := rollingMean(gains, period)
	avgLoss := rollingMean(losses, period)
	out := make([]float64, n)
	for i := range out {
		rs := avgGain[i] / avgLoss[i]
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// vwap is the volume-weighted average price over a trailing window.
func vwap(closes, volumes []float64, window int) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		pv, v := 0.0, 0.0
		for j := i - window + 1; j <= i; j++ {
			pv += closes[j] * volumes[j]
			v += volumes[j]
		}
		out[i] = pv / v
	}
	return out
}

// trendSign is +1 when the close is above its trailing mean, else 0.
func trendSign(closes []float64, window int) []float64 {
	mean := rollingMean(closes, window)
	out := make([]float64, len(closes))
	for i := range closes {
		if math.IsNaN(mean[i]) {
			out[i] = math.NaN()
		} else if closes[i] > mean[i] {
			out[i] = 1
		}
	}
	return out
}

func meanOf(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

func lastN(series []float64, n int) []float64 {
	if len(series) <= n {
		return series
	}
	return series[len(series)-n:]
}
