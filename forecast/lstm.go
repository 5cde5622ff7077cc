package forecast

import (
	"context"
	"math"
	rand "math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"stock-forecast/models"
	"stock-forecast/observability"
)

const (
	lstmSeqLen       = 60
	lstmTrainCushion = 30
	lstmHidden       = 50
	lstmDense        = 25
	lstmDropout      = 0.2
	lstmLearningRate = 0.001
	lstmEpochs       = 50
	lstmBatchSize    = 32
	lstmTrainSplit   = 0.8

	lstmMarginFloor     = 0.025
	fallbackMarginFloor = 0.03
)

// LSTMForecaster trains a small recurrent network on min-max scaled closing
// prices: one LSTM layer feeding a dense head, optimized with Adam over a
// chronological train/validation split. Construct with native=false to skip
// training entirely and serve the linear-trend fallback, which is also what
// a failed training run degrades to.
type LSTMForecaster struct {
	seed   uint64
	native bool
	epochs int
}

func NewLSTMForecaster(seed uint64, native bool) *LSTMForecaster {
	return &LSTMForecaster{seed: seed, native: native, epochs: lstmEpochs}
}

func (f *LSTMForecaster) Kind() models.ModelKind { return models.ModelKindLSTM }

func (f *LSTMForecaster) Name() string { return "LSTM Neural Network" }

func (f *LSTMForecaster) MinHistory() int { return lstmSeqLen + lstmTrainCushion }

func (f *LSTMForecaster) Info() ModelInfo {
	return ModelInfo{
		Kind:        f.Kind(),
		Name:        f.Name(),
		Description: "Recurrent network over " + itoa(lstmSeqLen) + "-day price sequences",
		MinHistory:  f.MinHistory(),
		Strengths:   []string{"learns sequential dependencies", "adapts to long patterns"},
		Limitations: []string{"slowest model in the ensemble", "needs the longest history"},
	}
}

func (f *LSTMForecaster) Predict(ctx context.Context, symbol string, prices []models.PricePoint, days int, confidence float64) (models.ModelResult, error) {
	if len(prices) < f.MinHistory() {
		return models.ModelResult{}, &InsufficientDataError{Model: f.Kind(), Required: f.MinHistory(), Got: len(prices)}
	}

	closes := models.ClosePrices(prices)
	dates := futureDates(prices[len(prices)-1].Date, days)
	z := zScore(confidence)

	if !f.native {
		return f.fallbackResult(symbol, closes, dates, days, confidence, z), nil
	}

	net, valLoss, err := f.train(ctx, closes)
	if err != nil {
		observability.WithModel(string(f.Kind())).Warn("lstm training aborted, serving trend fallback",
			"symbol", symbol, "error", err)
		return f.fallbackResult(symbol, closes, dates, days, confidence, z), nil
	}

	scaler := &MinMaxScaler{}
	scaler.Fit(closes)
	scaled := scaler.TransformAll(closes)

	lastPrice := closes[len(closes)-1]
	sigma := sampleStd(lastN(closes, 30))
	if math.IsNaN(sigma) || sigma <= 0 {
		sigma = lastPrice * 0.01
	}

	window := append([]float64(nil), scaled[len(scaled)-lstmSeqLen:]...)
	preds := make([]models.PredictionPoint, days)
	for i := 0; i < days; i++ {
		if err := ctx.Err(); err != nil {
			return models.FailedResult(symbol, f.Kind(), err.Error()), nil
		}
		next := net.forward(window)
		price := scaler.Inverse(next)
		if !isFinite(price) || price <= 0 {
			price = lastPrice
		}
		margin := sigma * z * math.Sqrt(float64(i+1)/30.0)
		if floor := price * lstmMarginFloor; margin < floor {
			margin = floor
		}
		preds[i] = models.PredictionPoint{
			Date:           dates[i],
			PredictedPrice: price,
			LowerBound:     clampLower(price - margin),
			UpperBound:     price + margin,
			Confidence:     confidence,
		}
		window = append(window[1:], scaler.Transform(price))
	}

	accuracy := clampScore(1-math.Sqrt(valLoss), 0.5, 0.95)

	return models.ModelResult{
		Symbol:      symbol,
		Model:       f.Kind(),
		Predictions: preds,
		Metadata: models.ResultMetadata{
			AccuracyScore:    accuracy,
			DataPointsUsed:   len(closes),
			TrainingSamples:  len(scaled) - lstmSeqLen,
			LastPrice:        lastPrice,
			PredictionMethod: "lstm",
			Extra: map[string]float64{
				"validation_loss": valLoss,
				"hidden_units":    lstmHidden,
				"epochs":          float64(f.epochs),
			},
		},
		Status:    models.ResultStatusCompleted,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// fallbackResult extrapolates the recent linear trend with light noise. Used
// when native training is disabled or fails; always flagged in metadata.
func (f *LSTMForecaster) fallbackResult(symbol string, closes []float64, dates []time.Time, days int, confidence, z float64) models.ModelResult {
	window := lastN(closes, lstmSeqLen)
	xs := make([]float64, len(window))
	for i := range xs {
		xs[i] = float64(i)
	}
	coeffs := polyfit(xs, window, 1)
	sigma := sampleStd(window)
	if math.IsNaN(sigma) || sigma <= 0 {
		sigma = closes[len(closes)-1] * 0.01
	}

	rng := rand.NewPCG(f.seed, uint64(len(closes)))
	noise := distuv.Normal{Mu: 0, Sigma: 0.02 * sigma, Src: rng}
	lastPrice := closes[len(closes)-1]

	preds := make([]models.PredictionPoint, days)
	for i := 0; i < days; i++ {
		price := polyval(coeffs, float64(len(window)+i)) + noise.Rand()
		if !isFinite(price) || price <= 0 {
			price = lastPrice
		}
		margin := sigma * z * math.Sqrt(float64(i+1)/30.0)
		if floor := price * fallbackMarginFloor; margin < floor {
			margin = floor
		}
		preds[i] = models.PredictionPoint{
			Date:           dates[i],
			PredictedPrice: price,
			LowerBound:     clampLower(price - margin),
			UpperBound:     price + margin,
			Confidence:     confidence,
		}
	}

	return models.ModelResult{
		Symbol:      symbol,
		Model:       f.Kind(),
		Predictions: preds,
		Metadata: models.ResultMetadata{
			AccuracyScore:    0.6,
			DataPointsUsed:   len(closes),
			LastPrice:        lastPrice,
			PredictionMethod: "linear_trend_fallback",
			FallbackMode:     true,
		},
		Status:    models.ResultStatusCompleted,
		CreatedAt: time.Now().UTC(),
	}
}

func (f *LSTMForecaster) Backtest(ctx context.Context, symbol string, prices []models.PricePoint, testDays int) (models.BacktestResult, error) {
	minLen := f.MinHistory() + testDays
	if len(prices) < minLen {
		return models.BacktestResult{}, &InsufficientDataError{Model: f.Kind(), Required: minLen, Got: len(prices)}
	}

	closes := models.ClosePrices(prices)
	start := len(prices) - testDays

	var net *lstmNet
	var scaler *MinMaxScaler
	if f.native {
		trained, _, err := f.train(ctx, closes[:start])
		if err == nil {
			net = trained
			scaler = &MinMaxScaler{}
			scaler.Fit(closes[:start])
		}
	}

	pairs := make([]models.PredictedVsActual, 0, testDays)
	for i := start; i < len(prices); i++ {
		if err := ctx.Err(); err != nil {
			return models.FailedBacktest(symbol, f.Kind(), err.Error()), nil
		}
		history := closes[:i]
		var predicted float64
		if net != nil {
			window := make([]float64, lstmSeqLen)
			for k, v := range lastN(history, lstmSeqLen) {
				window[k] = scaler.Transform(v)
			}
			predicted = scaler.Inverse(net.forward(window))
		}
		if predicted == 0 || !isFinite(predicted) {
			window := lastN(history, lstmSeqLen)
			xs := make([]float64, len(window))
			for k := range xs {
				xs[k] = float64(k)
			}
			predicted = polyval(polyfit(xs, window, 1), float64(len(window)))
		}
		pairs = append(pairs, models.PredictedVsActual{
			Date:      prices[i].Date,
			Predicted: predicted,
			Actual:    closes[i],
			Error:     predicted - closes[i],
		})
	}

	return models.BacktestResult{
		Symbol:              symbol,
		Model:               f.Kind(),
		TestPeriodDays:      testDays,
		Metrics:             computeBacktestMetrics(pairs),
		PredictionsVsActual: pairs,
		Status:              models.ResultStatusCompleted,
	}, nil
}

// train scales the series, builds sequences, and runs minibatch Adam over a
// chronological 80/20 split. Returns the trained network and final
// validation MSE on the scaled targets.
func (f *LSTMForecaster) train(ctx context.Context, closes []float64) (*lstmNet, float64, error) {
	scaler := &MinMaxScaler{}
	scaler.Fit(closes)
	scaled := scaler.TransformAll(closes)

	nSeq := len(scaled) - lstmSeqLen
	windows := make([][]float64, nSeq)
	targets := make([]float64, nSeq)
	for i := 0; i < nSeq; i++ {
		windows[i] = scaled[i : i+lstmSeqLen]
		targets[i] = scaled[i+lstmSeqLen]
	}

	split := int(float64(nSeq) * lstmTrainSplit)
	if split < 1 || split >= nSeq {
		split = nSeq - 1
	}

	rng := rand.New(rand.NewPCG(f.seed, uint64(len(closes))))
	net := newLSTMNet(rng)
	opt := newAdam(lstmLearningRate)

	for epoch := 0; epoch < f.epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		order := rng.Perm(split)
		for b := 0; b < split; b += lstmBatchSize {
			end := b + lstmBatchSize
			if end > split {
				end = split
			}
			grads := newLSTMGrads()
			for _, i := range order[b:end] {
				net.backward(windows[i], targets[i], grads, rng)
			}
			opt.step(net, grads, float64(end-b))
		}
	}

	valLoss := 0.0
	for i := split; i < nSeq; i++ {
		d := net.forward(windows[i]) - targets[i]
		valLoss += d * d
	}
	valLoss /= float64(nSeq - split)
	return net, valLoss, nil
}

// lstmNet is one LSTM layer over a scalar input plus a two-layer dense head.
// Gate weight rows are ordered [input; hidden] to match the concatenated
// step input.
type lstmNet struct {
	Wi, Wf, Wg, Wo [][]float64 // lstmHidden x (1 + lstmHidden)
	bi, bf, bg, bo []float64
	W1             [][]float64 // lstmDense x lstmHidden
	b1             []float64
	W2             []float64 // lstmDense
	b2             float64
}

func newLSTMNet(rng *rand.Rand) *lstmNet {
	scale := 1.0 / math.Sqrt(float64(lstmHidden))
	mk := func(r, c int) [][]float64 {
		m := make([][]float64, r)
		for i := range m {
			m[i] = make([]float64, c)
			for j := range m[i] {
				m[i][j] = (rng.Float64()*2 - 1) * scale
			}
		}
		return m
	}
	vec := func(n int) []float64 { return make([]float64, n) }

	net := &lstmNet{
		Wi: mk(lstmHidden, 1+lstmHidden), bi: vec(lstmHidden),
		Wf: mk(lstmHidden, 1+lstmHidden), bf: vec(lstmHidden),
		Wg: mk(lstmHidden, 1+lstmHidden), bg: vec(lstmHidden),
		Wo: mk(lstmHidden, 1+lstmHidden), bo: vec(lstmHidden),
		W1: mk(lstmDense, lstmHidden), b1: vec(lstmDense),
		W2: make([]float64, lstmDense),
	}
	for j := range net.W2 {
		net.W2[j] = (rng.Float64()*2 - 1) * scale
	}
	// Forget-gate bias starts positive so early training retains state.
	for j := range net.bf {
		net.bf[j] = 1
	}
	return net
}

type lstmStep struct {
	z           []float64 // concatenated [x; hPrev]
	i, fg, g, o []float64
	c, tanhC    []float64
	cPrev       []float64
}

// forward runs the sequence through the recurrence and the dense head.
// Inference applies no dropout.
func (n *lstmNet) forward(window []float64) float64 {
	h := n.runSequence(window, nil)
	d1 := make([]float64, lstmDense)
	for j := range d1 {
		v := n.b1[j]
		for k := 0; k < lstmHidden; k++ {
			v += n.W1[j][k] * h[k]
		}
		if v < 0 {
			v = 0
		}
		d1[j] = v
	}
	y := n.b2
	for j := range d1 {
		y += n.W2[j] * d1[j]
	}
	return y
}

func (n *lstmNet) runSequence(window []float64, steps *[]lstmStep) []float64 {
	h := make([]float64, lstmHidden)
	c := make([]float64, lstmHidden)
	for _, x := range window {
		z := make([]float64, 1+lstmHidden)
		z[0] = x
		copy(z[1:], h)

		ig := gate(n.Wi, n.bi, z, sigmoid)
		fg := gate(n.Wf, n.bf, z, sigmoid)
		gg := gate(n.Wg, n.bg, z, math.Tanh)
		og := gate(n.Wo, n.bo, z, sigmoid)

		cPrev := c
		c = make([]float64, lstmHidden)
		tanhC := make([]float64, lstmHidden)
		hNext := make([]float64, lstmHidden)
		for k := 0; k < lstmHidden; k++ {
			c[k] = fg[k]*cPrev[k] + ig[k]*gg[k]
			tanhC[k] = math.Tanh(c[k])
			hNext[k] = og[k] * tanhC[k]
		}
		if steps != nil {
			*steps = append(*steps, lstmStep{
				z: z, i: ig, fg: fg, g: gg, o: og,
				c: c, tanhC: tanhC, cPrev: cPrev,
			})
		}
		h = hNext
	}
	return h
}

func gate(W [][]float64, b, z []float64, act func(float64) float64) []float64 {
	out := make([]float64, len(W))
	for k := range W {
		v := b[k]
		for j, zj := range z {
			v += W[k][j] * zj
		}
		out[k] = act(v)
	}
	return out
}

func sigmoid(v float64) float64 { return 1 / (1 + math.Exp(-v)) }

// lstmGrads accumulates parameter gradients across a minibatch.
type lstmGrads struct {
	Wi, Wf, Wg, Wo [][]float64
	bi, bf, bg, bo []float64
	W1             [][]float64
	b1             []float64
	W2             []float64
	b2             float64
}

func newLSTMGrads() *lstmGrads {
	mk := func(r, c int) [][]float64 {
		m := make([][]float64, r)
		for i := range m {
			m[i] = make([]float64, c)
		}
		return m
	}
	return &lstmGrads{
		Wi: mk(lstmHidden, 1+lstmHidden), bi: make([]float64, lstmHidden),
		Wf: mk(lstmHidden, 1+lstmHidden), bf: make([]float64, lstmHidden),
		Wg: mk(lstmHidden, 1+lstmHidden), bg: make([]float64, lstmHidden),
		Wo: mk(lstmHidden, 1+lstmHidden), bo: make([]float64, lstmHidden),
		W1: mk(lstmDense, lstmHidden), b1: make([]float64, lstmDense),
		W2: make([]float64, lstmDense),
	}
}

// backward accumulates gradients for one sample via truncated-free BPTT over
// the full window, with inverted dropout on the final hidden state.
func (n *lstmNet) backward(window []float64, target float64, grads *lstmGrads, rng *rand.Rand) {
	steps := make([]lstmStep, 0, len(window))
	h := n.runSequence(window, &steps)

	// Dropout mask on the recurrent output feeding the dense head.
	mask := make([]float64, lstmHidden)
	keep := 1 - lstmDropout
	hDropped := make([]float64, lstmHidden)
	for k := range mask {
		if rng.Float64() < keep {
			mask[k] = 1 / keep
		}
		hDropped[k] = h[k] * mask[k]
	}

	// Dense forward with cached pre-activations.
	d1 := make([]float64, lstmDense)
	for j := range d1 {
		v := n.b1[j]
		for k := 0; k < lstmHidden; k++ {
			v += n.W1[j][k] * hDropped[k]
		}
		d1[j] = v
	}
	y := n.b2
	for j, v := range d1 {
		if v > 0 {
			y += n.W2[j] * v
		}
	}

	dy := y - target // d(0.5*(y-t)^2)/dy

	// Dense head gradients.
	dD1 := make([]float64, lstmDense)
	grads.b2 += dy
	for j, v := range d1 {
		if v > 0 {
			grads.W2[j] += dy * v
			dD1[j] = dy * n.W2[j]
		}
	}
	dH := make([]float64, lstmHidden)
	for j := range d1 {
		if d1[j] <= 0 {
			continue
		}
		grads.b1[j] += dD1[j]
		for k := 0; k < lstmHidden; k++ {
			grads.W1[j][k] += dD1[j] * hDropped[k]
			dH[k] += dD1[j] * n.W1[j][k] * mask[k]
		}
	}

	// BPTT through the recurrence.
	dC := make([]float64, lstmHidden)
	for t := len(steps) - 1; t >= 0; t-- {
		s := steps[t]
		dHPrev := make([]float64, lstmHidden)
		dCPrev := make([]float64, lstmHidden)
		for k := 0; k < lstmHidden; k++ {
			dO := dH[k] * s.tanhC[k]
			dCk := dC[k] + dH[k]*s.o[k]*(1-s.tanhC[k]*s.tanhC[k])

			dI := dCk * s.g[k]
			dG := dCk * s.i[k]
			dF := dCk * s.cPrev[k]
			dCPrev[k] = dCk * s.fg[k]

			// Pre-activation gradients.
			pI := dI * s.i[k] * (1 - s.i[k])
			pF := dF * s.fg[k] * (1 - s.fg[k])
			pG := dG * (1 - s.g[k]*s.g[k])
			pO := dO * s.o[k] * (1 - s.o[k])

			grads.bi[k] += pI
			grads.bf[k] += pF
			grads.bg[k] += pG
			grads.bo[k] += pO
			for j, zj := range s.z {
				grads.Wi[k][j] += pI * zj
				grads.Wf[k][j] += pF * zj
				grads.Wg[k][j] += pG * zj
				grads.Wo[k][j] += pO * zj
				if j > 0 {
					dHPrev[j-1] += pI*n.Wi[k][j] + pF*n.Wf[k][j] + pG*n.Wg[k][j] + pO*n.Wo[k][j]
				}
			}
		}
		dH = dHPrev
		dC = dCPrev
	}
}

// adam is the optimizer state: first and second moment estimates shaped like
// the parameters, updated with bias correction.
type adam struct {
	lr      float64
	t       float64
	m, v    *lstmGrads
	beta1   float64
	beta2   float64
	epsilon float64
}

func newAdam(lr float64) *adam {
	return &adam{
		lr:      lr,
		m:       newLSTMGrads(),
		v:       newLSTMGrads(),
		beta1:   0.9,
		beta2:   0.999,
		epsilon: 1e-8,
	}
}

func (a *adam) step(net *lstmNet, g *lstmGrads, batch float64) {
	a.t++
	upd := func(p, grad, m, v []float64) {
		for j := range p {
			gj := grad[j] / batch
			m[j] = a.beta1*m[j] + (1-a.beta1)*gj
			v[j] = a.beta2*v[j] + (1-a.beta2)*gj*gj
			mHat := m[j] / (1 - math.Pow(a.beta1, a.t))
			vHat := v[j] / (1 - math.Pow(a.beta2, a.t))
			p[j] -= a.lr * mHat / (math.Sqrt(vHat) + a.epsilon)
		}
	}
	updMat := func(p, grad, m, v [][]float64) {
		for i := range p {
			upd(p[i], grad[i], m[i], v[i])
		}
	}

	updMat(net.Wi, g.Wi, a.m.Wi, a.v.Wi)
	updMat(net.Wf, g.Wf, a.m.Wf, a.v.Wf)
	updMat(net.Wg, g.Wg, a.m.Wg, a.v.Wg)
	updMat(net.Wo, g.Wo, a.m.Wo, a.v.Wo)
	upd(net.bi, g.bi, a.m.bi, a.v.bi)
	upd(net.bf, g.bf, a.m.bf, a.v.bf)
	upd(net.bg, g.bg, a.m.bg, a.v.bg)
	upd(net.bo, g.bo, a.m.bo, a.v.bo)
	updMat(net.W1, g.W1, a.m.W1, a.v.W1)
	upd(net.b1, g.b1, a.m.b1, a.v.b1)
	upd(net.W2, g.W2, a.m.W2, a.v.W2)

	gb2 := g.b2 / batch
	a.m.b2 = a.beta1*a.m.b2 + (1-a.beta1)*gb2
	a.v.b2 = a.beta2*a.v.b2 + (1-a.beta2)*gb2*gb2
	mHat := a.m.b2 / (1 - math.Pow(a.beta1, a.t))
	vHat := a.v.b2 / (1 - math.Pow(a.beta2, a.t))
	net.b2 -= a.lr * mHat / (math.Sqrt(vHat) + a.epsilon)
}
