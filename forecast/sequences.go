package forecast

import "math"

// Sequence is one supervised sample: Lookback consecutive feature rows paired
// with the close price of the following day.
type Sequence struct {
	Window [][]float64
	Target float64
}

// BuildSequences turns a feature table into supervised samples for the
// regression models. Sample i spans rows [i, i+lookback) and targets
// Closes[i+lookback]. A table too short to yield a single sample is an
// InsufficientDataError.
func BuildSequences(table *FeatureTable, lookback int) ([]Sequence, error) {
	n := table.NumRows()
	if n <= lookback {
		return nil, &InsufficientDataError{Required: lookback + 1, Got: n}
	}
	seqs := make([]Sequence, 0, n-lookback)
	for i := 0; i+lookback < n; i++ {
		seqs = append(seqs, Sequence{
			Window: table.Rows[i : i+lookback],
			Target: table.Closes[i+lookback],
		})
	}
	return seqs, nil
}

// FlattenWindow concatenates a lookback window into one row vector, the input
// shape the tabular regressors train on.
func FlattenWindow(window [][]float64) []float64 {
	if len(window) == 0 {
		return nil
	}
	out := make([]float64, 0, len(window)*len(window[0]))
	for _, row := range window {
		out = append(out, row...)
	}
	return out
}

// StandardScaler centers and scales columns to zero mean and unit variance.
// Fit on training rows only; transforming unseen rows with train statistics
// is what keeps the walk-forward evaluation honest.
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

// zClip bounds standardized values; extreme rows otherwise destabilize the
// tree splits and the ridge solution.
const zClip = 10.0

// Fit computes per-column mean and standard deviation from rows.
func (s *StandardScaler) Fit(rows [][]float64) {
	if len(rows) == 0 {
		return
	}
	cols := len(rows[0])
	s.Mean = make([]float64, cols)
	s.Std = make([]float64, cols)
	for j := 0; j < cols; j++ {
		sum := 0.0
		for _, row := range rows {
			sum += row[j]
		}
		mean := sum / float64(len(rows))
		ss := 0.0
		for _, row := range rows {
			d := row[j] - mean
			ss += d * d
		}
		std := math.Sqrt(ss / float64(len(rows)))
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j] = mean
		s.Std[j] = std
	}
}

// Transform standardizes a row in place-safe fashion and clips to ±zClip.
func (s *StandardScaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		z := (v - s.Mean[j]) / s.Std[j]
		if z > zClip {
			z = zClip
		} else if z < -zClip {
			z = -zClip
		}
		out[j] = z
	}
	return out
}

// TransformAll standardizes every row.
func (s *StandardScaler) TransformAll(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = s.Transform(row)
	}
	return out
}

// MinMaxScaler maps a single series into [0, 1], the input range the
// recurrent model trains on.
type MinMaxScaler struct {
	Min float64
	Max float64
}

func (s *MinMaxScaler) Fit(series []float64) {
	s.Min = math.Inf(1)
	s.Max = math.Inf(-1)
	for _, v := range series {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	if s.Max == s.Min {
		s.Max = s.Min + 1
	}
}

func (s *MinMaxScaler) Transform(v float64) float64 {
	return (v - s.Min) / (s.Max - s.Min)
}

func (s *MinMaxScaler) Inverse(v float64) float64 {
	return v*(s.Max-s.Min) + s.Min
}

func (s *MinMaxScaler) TransformAll(series []float64) []float64 {
	out := make([]float64, len(series))
	for i, v := range series {
		out[i] = s.Transform(v)
	}
	return out
}
