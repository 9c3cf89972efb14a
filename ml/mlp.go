package ml

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// denseLayer is one fully connected layer: weights are [out][in].
type denseLayer struct {
	W [][]float64 `json:"w"`
	B []float64   `json:"b"`
}

// MLPRegressor is a small feed-forward network (ReLU hidden layers, linear
// output) trained with Adam and loss-plateau early stopping.
type MLPRegressor struct {
	HiddenSizes  []int   `json:"hidden_sizes"`
	LearningRate float64 `json:"learning_rate"`
	MaxIter      int     `json:"max_iter"`
	Seed         int64   `json:"seed"`

	Layers []denseLayer `json:"layers"`
}

func (m *MLPRegressor) Fit(X *mat.Dense, y []float64) error {
	n, cols := X.Dims()
	if n != len(y) {
		return errors.New("mlp: X and y length mismatch")
	}
	if m.MaxIter <= 0 {
		m.MaxIter = 500
	}
	if m.LearningRate <= 0 {
		m.LearningRate = 0.001
	}

	rng := rand.New(rand.NewSource(m.Seed))
	sizes := append([]int{cols}, m.HiddenSizes...)
	sizes = append(sizes, 1)

	m.Layers = make([]denseLayer, len(sizes)-1)
	for l := range m.Layers {
		in, out := sizes[l], sizes[l+1]
		limit := math.Sqrt(6.0 / float64(in+out))
		W := make([][]float64, out)
		for o := range W {
			W[o] = make([]float64, in)
			for i := range W[o] {
				W[o][i] = (rng.Float64()*2 - 1) * limit
			}
		}
		m.Layers[l] = denseLayer{W: W, B: make([]float64, out)}
	}

	opt := newAdam(m.Layers, m.LearningRate)
	batch := minInt(200, n)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	bestLoss := math.Inf(1)
	stall := 0

	for epoch := 0; epoch < m.MaxIter; epoch++ {
		rng.Shuffle(n, func(a, b int) { order[a], order[b] = order[b], order[a] })
		epochLoss := 0.0

		for start := 0; start < n; start += batch {
			end := minInt(start+batch, n)
			grads := zeroGrads(m.Layers)

			for _, i := range order[start:end] {
				x := mat.Row(nil, i, X)
				acts, pre := m.forward(x)
				pred := acts[len(acts)-1][0]
				diff := pred - y[i]
				epochLoss += diff * diff
				m.backward(x, acts, pre, 2*diff, grads)
			}
			opt.step(m.Layers, grads, end-start)
		}

		epochLoss /= float64(n)
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

// forward returns per-layer activations (index 0 untouched input omitted;
// acts[l] is the output of layer l) and pre-activations.
func (m *MLPRegressor) forward(x []float64) (acts [][]float64, pre [][]float64) {
	input := x
	for l, layer := range m.Layers {
		out := make([]float64, len(layer.W))
		raw := make([]float64, len(layer.W))
		for o := range layer.W {
			v := layer.B[o]
			for i, w := range layer.W[o] {
				v += w * input[i]
			}
			raw[o] = v
			if l < len(m.Layers)-1 && v < 0 {
				v = 0 // relu on hidden layers
			}
			out[o] = v
		}
		acts = append(acts, out)
		pre = append(pre, raw)
		input = out
	}
	return acts, pre
}

func (m *MLPRegressor) backward(x []float64, acts, pre [][]float64, dLoss float64, grads []denseLayer) {
	last := len(m.Layers) - 1
	delta := []float64{dLoss}

	for l := last; l >= 0; l-- {
		var input []float64
		if l == 0 {
			input = x
		} else {
			input = acts[l-1]
		}
		for o := range m.Layers[l].W {
			grads[l].B[o] += delta[o]
			for i := range m.Layers[l].W[o] {
				grads[l].W[o][i] += delta[o] * input[i]
			}
		}
		if l == 0 {
			break
		}
		next := make([]float64, len(m.Layers[l].W[0]))
		for i := range next {
			v := 0.0
			for o := range m.Layers[l].W {
				v += delta[o] * m.Layers[l].W[o][i]
			}
			if pre[l-1][i] <= 0 {
				v = 0 // relu derivative
			}
			next[i] = v
		}
		delta = next
	}
}

func (m *MLPRegressor) Predict(X *mat.Dense) ([]float64, error) {
	if m.Layers == nil {
		return nil, errors.New("mlp: model not fitted")
	}
	n, cols := X.Dims()
	if cols != len(m.Layers[0].W[0]) {
		return nil, errors.New("mlp: feature count mismatch")
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		acts, _ := m.forward(mat.Row(nil, i, X))
		out[i] = acts[len(acts)-1][0]
	}
	return out, nil
}

// PerceptronRegressor adapts a single-layer perceptron for regression by
// wrapping it with its own input and output scalers.
type PerceptronRegressor struct {
	LearningRate float64 `json:"learning_rate"`
	MaxIter      int     `json:"max_iter"`
	Seed         int64   `json:"seed"`

	InScaler  *Scaler    `json:"in_scaler"`
	OutScaler *vecScaler `json:"out_scaler"`
	Weights   []float64  `json:"weights"`
	Bias      float64    `json:"bias"`
}

func (p *PerceptronRegressor) Fit(X *mat.Dense, y []float64) error {
	n, cols := X.Dims()
	if n != len(y) {
		return errors.New("perceptron: X and y length mismatch")
	}
	if p.MaxIter <= 0 {
		p.MaxIter = 1000
	}
	if p.LearningRate <= 0 {
		p.LearningRate = 0.01
	}

	p.InScaler = NewScaler(ScaleStandard)
	scaled, err := p.InScaler.FitTransform(X)
	if err != nil {
		return err
	}
	p.OutScaler = fitVecScaler(y)
	yScaled := p.OutScaler.transform(y)

	rng := rand.New(rand.NewSource(p.Seed))
	p.Weights = make([]float64, cols)
	p.Bias = 0

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	for epoch := 0; epoch < p.MaxIter; epoch++ {
		rng.Shuffle(n, func(a, b int) { order[a], order[b] = order[b], order[a] })
		for _, i := range order {
			pred := p.Bias
			for j := 0; j < cols; j++ {
				pred += p.Weights[j] * scaled.At(i, j)
			}
			grad := pred - yScaled[i]
			for j := 0; j < cols; j++ {
				p.Weights[j] -= p.LearningRate * grad * scaled.At(i, j)
			}
			p.Bias -= p.LearningRate * grad
		}
	}
	return nil
}

func (p *PerceptronRegressor) Predict(X *mat.Dense) ([]float64, error) {
	if p.Weights == nil {
		return nil, errors.New("perceptron: model not fitted")
	}
	scaled, err := p.InScaler.Transform(X)
	if err != nil {
		return nil, err
	}
	n, cols := scaled.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := p.Bias
		for j := 0; j < cols; j++ {
			v += p.Weights[j] * scaled.At(i, j)
		}
		out[i] = p.OutScaler.inverse(v)
	}
	return out, nil
}

// adam is a minimal Adam optimizer over denseLayer parameter sets.
type adam struct {
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64
	t      int
	mW, vW [][][]float64
	mB, vB [][]float64
}

func newAdam(layers []denseLayer, lr float64) *adam {
	a := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8}
	for _, l := range layers {
		mw := make([][]float64, len(l.W))
		vw := make([][]float64, len(l.W))
		for o := range l.W {
			mw[o] = make([]float64, len(l.W[o]))
			vw[o] = make([]float64, len(l.W[o]))
		}
		a.mW = append(a.mW, mw)
		a.vW = append(a.vW, vw)
		a.mB = append(a.mB, make([]float64, len(l.B)))
		a.vB = append(a.vB, make([]float64, len(l.B)))
	}
	return a
}

func (a *adam) step(layers []denseLayer, grads []denseLayer, batchSize int) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	scale := 1 / float64(batchSize)

	for l := range layers {
		for o := range layers[l].W {
			for i := range layers[l].W[o] {
				g := grads[l].W[o][i] * scale
				a.mW[l][o][i] = a.beta1*a.mW[l][o][i] + (1-a.beta1)*g
				a.vW[l][o][i] = a.beta2*a.vW[l][o][i] + (1-a.beta2)*g*g
				layers[l].W[o][i] -= a.lr * (a.mW[l][o][i] / c1) / (math.Sqrt(a.vW[l][o][i]/c2) + a.eps)
			}
			g := grads[l].B[o] * scale
			a.mB[l][o] = a.beta1*a.mB[l][o] + (1-a.beta1)*g
			a.vB[l][o] = a.beta2*a.vB[l][o] + (1-a.beta2)*g*g
			layers[l].B[o] -= a.lr * (a.mB[l][o] / c1) / (math.Sqrt(a.vB[l][o]/c2) + a.eps)
		}
	}
}

func zeroGrads(layers []denseLayer) []denseLayer {
	grads := make([]denseLayer, len(layers))
	for l, layer := range layers {
		W := make([][]float64, len(layer.W))
		for o := range W {
			W[o] = make([]float64, len(layer.W[o]))
		}
		grads[l] = denseLayer{W: W, B: make([]float64, len(layer.B))}
	}
	return grads
}
