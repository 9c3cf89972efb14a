package ml

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Recurrent cell kinds.
const (
	CellLSTM = "lstm"
	CellGRU  = "gru"
)

// RecurrentRegressor is a single-layer LSTM or GRU followed by a ReLU dense
// layer and a linear output, trained by truncated BPTT with Adam. It owns
// its input and target scalers: recurrent cells are sensitive to feature
// scale drift, so the shared trainer scaler is never used here.
type RecurrentRegressor struct {
	Cell           string  `json:"cell"`
	SequenceLength int     `json:"sequence_length"`
	Units          int     `json:"units"`
	DenseUnits     int     `json:"dense_units"`
	DropoutRate    float64 `json:"dropout_rate"`
	LearningRate   float64 `json:"learning_rate"`
	Epochs         int     `json:"epochs"`
	BatchSize      int     `json:"batch_size"`
	Seed           int64   `json:"seed"`

	ScalerX *Scaler    `json:"scaler_x"`
	ScalerY *vecScaler `json:"scaler_y"`

	// Gates: LSTM uses [input, forget, output, candidate]; GRU uses
	// [update, reset, candidate]. Each maps concat(x, h) -> units.
	Gates []denseLayer `json:"gates"`
	Dense denseLayer   `json:"dense"`
	Out   denseLayer   `json:"out"`

	NumFeatures int `json:"num_features"`
}

// SequenceWindows builds overlapping training windows: window i covers rows
// [i, i+seqLen) and predicts the value at row i+seqLen, so n rows yield
// exactly n-seqLen windows.
func SequenceWindows(X *mat.Dense, y []float64, seqLen int) ([][][]float64, []float64) {
	n, cols := X.Dims()
	count := n - seqLen
	if count <= 0 {
		return nil, nil
	}
	windows := make([][][]float64, count)
	targets := make([]float64, count)
	for i := 0; i < count; i++ {
		win := make([][]float64, seqLen)
		for t := 0; t < seqLen; t++ {
			row := make([]float64, cols)
			for j := 0; j < cols; j++ {
				row[j] = X.At(i+t, j)
			}
			win[t] = row
		}
		windows[i] = win
		targets[i] = y[i+seqLen]
	}
	return windows, targets
}

func (r *RecurrentRegressor) Fit(X *mat.Dense, y []float64) error {
	n, cols := X.Dims()
	if n != len(y) {
		return errors.New("recurrent: X and y length mismatch")
	}
	if n <= r.SequenceLength || n-r.SequenceLength < 3 {
		return &InsufficientSequenceDataError{
			Rows:           n,
			SequenceLength: r.SequenceLength,
			Sequences:      maxInt(n-r.SequenceLength, 0),
		}
	}
	r.NumFeatures = cols

	// Scale X and y independently before windowing.
	r.ScalerX = NewScaler(ScaleStandard)
	scaled, err := r.ScalerX.FitTransform(X)
	if err != nil {
		return err
	}
	r.ScalerY = fitVecScaler(y)
	windows, targets := SequenceWindows(scaled, r.ScalerY.transform(y), r.SequenceLength)
	nSeq := len(windows)

	rng := rand.New(rand.NewSource(r.Seed))
	r.initWeights(cols, rng)

	params := r.paramLayers()
	opt := newAdam(params, r.LearningRate)

	// Batch size shrinks on small datasets so updates stay stable.
	batch := r.BatchSize
	if batch <= 0 {
		batch = 32
	}
	if nSeq < 32 {
		batch = maxInt(1, nSeq/4)
	}
	batch = minInt(batch, nSeq)

	order := make([]int, nSeq)
	for i := range order {
		order[i] = i
	}

	bestLoss := math.Inf(1)
	stall := 0
	epochs := r.Epochs
	if epochs <= 0 {
		epochs = 100
	}

	for epoch := 0; epoch < epochs; epoch++ {
		rng.Shuffle(nSeq, func(a, b int) { order[a], order[b] = order[b], order[a] })
		epochLoss := 0.0

		for start := 0; start < nSeq; start += batch {
			end := minInt(start+batch, nSeq)
			grads := zeroGrads(params)

			for _, i := range order[start:end] {
				mask := r.dropoutMask(rng)
				pred, cache := r.forward(windows[i], mask)
				diff := pred - targets[i]
				epochLoss += diff * diff
				r.backward(windows[i], cache, mask, 2*diff, grads)
			}
			opt.step(params, grads, end-start)
		}

		epochLoss /= float64(nSeq)
		// Early-stopping-style convergence control.
		if epochLoss < bestLoss-1e-4 {
			bestLoss = epochLoss
			stall = 0
		} else {
			stall++
			if stall >= 10 {
				break
			}
		}
	}
	return nil
}

// Predict returns one value per input row. Row i is predicted from the
// preceding SequenceLength rows; when fewer exist the window is left-padded
// by repeating the earliest known row — a deliberate approximation, not a
// rejection.
func (r *RecurrentRegressor) Predict(X *mat.Dense) ([]float64, error) {
	if r.Gates == nil {
		return nil, errors.New("recurrent: model not fitted")
	}
	n, cols := X.Dims()
	if cols != r.NumFeatures {
		return nil, errors.New("recurrent: feature count mismatch")
	}
	scaled, err := r.ScalerX.Transform(X)
	if err != nil {
		return nil, err
	}

	L := r.SequenceLength
	first := make([]float64, cols)
	for j := 0; j < cols; j++ {
		first[j] = scaled.At(0, j)
	}

	out := make([]float64, n)
	win := make([][]float64, L)
	for i := 0; i < n; i++ {
		for t := 0; t < L; t++ {
			src := i - L + t
			if src < 0 {
				win[t] = first
				continue
			}
			row := make([]float64, cols)
			for j := 0; j < cols; j++ {
				row[j] = scaled.At(src, j)
			}
			win[t] = row
		}
		pred, _ := r.forward(win, nil)
		out[i] = r.ScalerY.inverse(pred)
	}
	return out, nil
}

func (r *RecurrentRegressor) numGates() int {
	if r.Cell == CellGRU {
		return 3
	}
	return 4
}

func (r *RecurrentRegressor) initWeights(cols int, rng *rand.Rand) {
	in := cols + r.Units
	initLayer := func(out, in int) denseLayer {
		limit := math.Sqrt(6.0 / float64(in+out))
		W := make([][]float64, out)
		for o := range W {
			W[o] = make([]float64, in)
			for i := range W[o] {
				W[o][i] = (rng.Float64()*2 - 1) * limit
			}
		}
		return denseLayer{W: W, B: make([]float64, out)}
	}
	r.Gates = make([]denseLayer, r.numGates())
	for g := range r.Gates {
		r.Gates[g] = initLayer(r.Units, in)
	}
	if r.Cell == CellLSTM {
		// Forget gate bias starts at 1 so early training keeps state.
		for o := range r.Gates[1].B {
			r.Gates[1].B[o] = 1
		}
	}
	r.Dense = initLayer(r.DenseUnits, r.Units)
	r.Out = initLayer(1, r.DenseUnits)
}

// paramLayers returns every trainable block in a fixed order for the
// optimizer. Slice headers share backing arrays with the model fields.
func (r *RecurrentRegressor) paramLayers() []denseLayer {
	params := append([]denseLayer(nil), r.Gates...)
	return append(params, r.Dense, r.Out)
}

// rnnCache stores per-timestep activations for BPTT.
type rnnCache struct {
	concat   [][]float64   // concat(x_t, h_{t-1}) per step
	gates    [][][]float64 // activated gate outputs per step
	c, h     [][]float64   // cell and hidden states (index t+1; 0 is initial)
	dense    []float64     // relu dense output
	densePre []float64
	hDrop    []float64 // final hidden state after dropout mask
}

func (r *RecurrentRegressor) dropoutMask(rng *rand.Rand) []float64 {
	if r.DropoutRate <= 0 || rng == nil {
		return nil
	}
	mask := make([]float64, r.Units)
	keep := 1 - r.DropoutRate
	for i := range mask {
		if rng.Float64() < keep {
			mask[i] = 1 / keep
		}
	}
	return mask
}

func (r *RecurrentRegressor) forward(seq [][]float64, mask []float64) (float64, *rnnCache) {
	L := len(seq)
	cache := &rnnCache{
		c: make([][]float64, L+1),
		h: make([][]float64, L+1),
	}
	cache.c[0] = make([]float64, r.Units)
	cache.h[0] = make([]float64, r.Units)

	for t := 0; t < L; t++ {
		x := seq[t]
		hPrev, cPrev := cache.h[t], cache.c[t]
		z := append(append([]float64(nil), x...), hPrev...)
		cache.concat = append(cache.concat, z)

		if r.Cell == CellGRU {
			up := r.gateForward(0, z, sigmoid)
			reset := r.gateForward(1, z, sigmoid)
			zn := append(append([]float64(nil), x...), mulVec(reset, hPrev)...)
			cand := r.gateForward(2, zn, math.Tanh)

			h := make([]float64, r.Units)
			for u := 0; u < r.Units; u++ {
				h[u] = (1-up[u])*cand[u] + up[u]*hPrev[u]
			}
			cache.gates = append(cache.gates, [][]float64{up, reset, cand, zn})
			cache.c[t+1] = cPrev
			cache.h[t+1] = h
		} else {
			in := r.gateForward(0, z, sigmoid)
			forget := r.gateForward(1, z, sigmoid)
			outg := r.gateForward(2, z, sigmoid)
			cand := r.gateForward(3, z, math.Tanh)

			c := make([]float64, r.Units)
			h := make([]float64, r.Units)
			for u := 0; u < r.Units; u++ {
				c[u] = forget[u]*cPrev[u] + in[u]*cand[u]
				h[u] = outg[u] * math.Tanh(c[u])
			}
			cache.gates = append(cache.gates, [][]float64{in, forget, outg, cand})
			cache.c[t+1] = c
			cache.h[t+1] = h
		}
	}

	hLast := cache.h[L]
	if mask != nil {
		hLast = mulVec(mask, hLast)
	}
	cache.hDrop = hLast

	cache.dense = make([]float64, r.DenseUnits)
	cache.densePre = make([]float64, r.DenseUnits)
	for o := 0; o < r.DenseUnits; o++ {
		v := r.Dense.B[o]
		for i, w := range r.Dense.W[o] {
			v += w * hLast[i]
		}
		cache.densePre[o] = v
		if v < 0 {
			v = 0
		}
		cache.dense[o] = v
	}

	pred := r.Out.B[0]
	for i, w := range r.Out.W[0] {
		pred += w * cache.dense[i]
	}
	return pred, cache
}

func (r *RecurrentRegressor) gateForward(g int, z []float64, act func(float64) float64) []float64 {
	out := make([]float64, r.Units)
	for u := 0; u < r.Units; u++ {
		v := r.Gates[g].B[u]
		for i, w := range r.Gates[g].W[u] {
			v += w * z[i]
		}
		out[u] = act(v)
	}
	return out
}

// backward runs BPTT over one window, accumulating into grads, which is laid
// out like paramLayers(): gates..., dense, out.
func (r *RecurrentRegressor) backward(seq [][]float64, cache *rnnCache, mask []float64, dPred float64, grads []denseLayer) {
	L := len(seq)
	cols := len(seq[0])
	gDense := grads[len(grads)-2]
	gOut := grads[len(grads)-1]

	// Output layer.
	dDense := make([]float64, r.DenseUnits)
	gOut.B[0] += dPred
	for i := 0; i < r.DenseUnits; i++ {
		gOut.W[0][i] += dPred * cache.dense[i]
		dDense[i] = dPred * r.Out.W[0][i]
		if cache.densePre[i] <= 0 {
			dDense[i] = 0
		}
	}

	// Dense layer down to the (possibly dropped-out) final hidden state.
	dh := make([]float64, r.Units)
	for o := 0; o < r.DenseUnits; o++ {
		gDense.B[o] += dDense[o]
		for i := 0; i < r.Units; i++ {
			gDense.W[o][i] += dDense[o] * cache.hDrop[i]
			dh[i] += dDense[o] * r.Dense.W[o][i]
		}
	}
	if mask != nil {
		dh = mulVec(mask, dh)
	}

	dc := make([]float64, r.Units)

	for t := L - 1; t >= 0; t-- {
		z := cache.concat[t]
		hPrev := cache.h[t]
		dhPrev := make([]float64, r.Units)

		if r.Cell == CellGRU {
			up, reset, cand, zn := cache.gates[t][0], cache.gates[t][1], cache.gates[t][2], cache.gates[t][3]

			dUpPre := make([]float64, r.Units)
			dCandPre := make([]float64, r.Units)
			for u := 0; u < r.Units; u++ {
				dUp := dh[u] * (hPrev[u] - cand[u])
				dCand := dh[u] * (1 - up[u])
				dhPrev[u] += dh[u] * up[u]
				dUpPre[u] = dUp * up[u] * (1 - up[u])
				dCandPre[u] = dCand * (1 - cand[u]*cand[u])
			}

			accumulateGate(&grads[0], r.Gates[0], dUpPre, z)
			dzUp := gateInputGrad(r.Gates[0], dUpPre)

			dzn := gateInputGrad(r.Gates[2], dCandPre)
			accumulateGate(&grads[2], r.Gates[2], dCandPre, zn)

			dRH := dzn[cols:]
			dResetPre := make([]float64, r.Units)
			for u := 0; u < r.Units; u++ {
				dhPrev[u] += dRH[u] * reset[u]
				dReset := dRH[u] * hPrev[u]
				dResetPre[u] = dReset * reset[u] * (1 - reset[u])
			}
			accumulateGate(&grads[1], r.Gates[1], dResetPre, z)
			dzReset := gateInputGrad(r.Gates[1], dResetPre)

			for u := 0; u < r.Units; u++ {
				dhPrev[u] += dzUp[cols+u] + dzReset[cols+u]
			}
		} else {
			in, forget, outg, cand := cache.gates[t][0], cache.gates[t][1], cache.gates[t][2], cache.gates[t][3]
			c, cPrev := cache.c[t+1], cache.c[t]

			dcTotal := make([]float64, r.Units)
			dOutPre := make([]float64, r.Units)
			for u := 0; u < r.Units; u++ {
				tc := math.Tanh(c[u])
				dOut := dh[u] * tc
				dcTotal[u] = dc[u] + dh[u]*outg[u]*(1-tc*tc)
				dOutPre[u] = dOut * outg[u] * (1 - outg[u])
			}

			dInPre := make([]float64, r.Units)
			dForgetPre := make([]float64, r.Units)
			dCandPre := make([]float64, r.Units)
			dcPrev := make([]float64, r.Units)
			for u := 0; u < r.Units; u++ {
				dInPre[u] = dcTotal[u] * cand[u] * in[u] * (1 - in[u])
				dForgetPre[u] = dcTotal[u] * cPrev[u] * forget[u] * (1 - forget[u])
				dCandPre[u] = dcTotal[u] * in[u] * (1 - cand[u]*cand[u])
				dcPrev[u] = dcTotal[u] * forget[u]
			}

			pres := [][]float64{dInPre, dForgetPre, dOutPre, dCandPre}
			for g, pre := range pres {
				accumulateGate(&grads[g], r.Gates[g], pre, z)
				dz := gateInputGrad(r.Gates[g], pre)
				for u := 0; u < r.Units; u++ {
					dhPrev[u] += dz[cols+u]
				}
			}
			dc = dcPrev
		}

		dh = dhPrev
	}
}

// accumulateGate adds outer(pre, z) into the gate gradient block.
func accumulateGate(grad *denseLayer, layer denseLayer, pre, z []float64) {
	for u := range layer.W {
		grad.B[u] += pre[u]
		for i := range layer.W[u] {
			grad.W[u][i] += pre[u] * z[i]
		}
	}
}

// gateInputGrad returns Wᵀ·pre for a gate block.
func gateInputGrad(layer denseLayer, pre []float64) []float64 {
	in := len(layer.W[0])
	out := make([]float64, in)
	for u := range layer.W {
		for i := 0; i < in; i++ {
			out[i] += pre[u] * layer.W[u][i]
		}
	}
	return out
}

func mulVec(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] * b[i]
	}
	return out
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}
