package ml

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// treeNode is one node of a regression tree. Leaf when Left/Right are nil.
type treeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Value     float64   `json:"value"`
	Left      *treeNode `json:"left,omitempty"`
	Right     *treeNode `json:"right,omitempty"`
}

// RandomForest is a bagged ensemble of variance-reduction regression trees
// with per-split feature subsampling. Scale-invariant, so it skips the
// trainer's shared scaler entirely.
type RandomForest struct {
	NEstimators     int   `json:"n_estimators"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	Seed            int64 `json:"seed"`

	Trees []*treeNode `json:"trees"`
}

func (f *RandomForest) Fit(X *mat.Dense, y []float64) error {
	n, cols := X.Dims()
	if n != len(y) {
		return errors.New("random_forest: X and y length mismatch")
	}
	if f.NEstimators <= 0 {
		f.NEstimators = 100
	}
	if f.MaxDepth <= 0 {
		f.MaxDepth = 10
	}
	if f.MinSamplesSplit < 2 {
		f.MinSamplesSplit = 2
	}

	rng := rand.New(rand.NewSource(f.Seed))
	mtry := maxInt(1, cols/3)

	f.Trees = make([]*treeNode, f.NEstimators)
	for t := 0; t < f.NEstimators; t++ {
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		f.Trees[t] = growTree(X, y, sample, 0, f.MaxDepth, f.MinSamplesSplit, mtry, rng)
	}
	return nil
}

func (f *RandomForest) Predict(X *mat.Dense) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, errors.New("random_forest: model not fitted")
	}
	n, _ := X.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		row := mat.Row(nil, i, X)
		sum := 0.0
		for _, tree := range f.Trees {
			sum += treePredict(tree, row)
		}
		out[i] = sum / float64(len(f.Trees))
	}
	return out, nil
}

func treePredict(node *treeNode, row []float64) float64 {
	for node.Left != nil {
		if row[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Value
}

func growTree(X *mat.Dense, y []float64, idx []int, depth, maxDepth, minSplit, mtry int, rng *rand.Rand) *treeNode {
	mean := 0.0
	for _, i := range idx {
		mean += y[i]
	}
	mean /= float64(len(idx))
	node := &treeNode{Value: mean}

	if depth >= maxDepth || len(idx) < minSplit {
		return node
	}

	_, cols := X.Dims()
	bestGain := 0.0
	bestFeature, bestThreshold := -1, 0.0

	baseVar := variance(y, idx)
	if baseVar == 0 {
		return node
	}

	features := rng.Perm(cols)[:mtry]
	for _, j := range features {
		for _, i := range idx {
			threshold := X.At(i, j)
			var left, right []int
			for _, r := range idx {
				if X.At(r, j) <= threshold {
					left = append(left, r)
				} else {
					right = append(right, r)
				}
			}
			if len(left) == 0 || len(right) == 0 {
				continue
			}
			w := float64(len(left)) / float64(len(idx))
			gain := baseVar - w*variance(y, left) - (1-w)*variance(y, right)
			if gain > bestGain {
				bestGain = gain
				bestFeature = j
				bestThreshold = threshold
			}
		}
	}

	if bestFeature < 0 {
		return node
	}

	var left, right []int
	for _, r := range idx {
		if X.At(r, bestFeature) <= bestThreshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	node.Feature = bestFeature
	node.Threshold = bestThreshold
	node.Left = growTree(X, y, left, depth+1, maxDepth, minSplit, mtry, rng)
	node.Right = growTree(X, y, right, depth+1, maxDepth, minSplit, mtry, rng)
	return node
}

func variance(y []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	mean := 0.0
	for _, i := range idx {
		mean += y[i]
	}
	mean /= float64(len(idx))
	v := 0.0
	for _, i := range idx {
		d := y[i] - mean
		v += d * d
	}
	if math.IsNaN(v) {
		return 0
	}
	return v / float64(len(idx))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
