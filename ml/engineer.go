package ml

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// EngineerFeatures derives battery-domain features from the base columns.
// Strictly additive: base columns are never removed. Derived values that
// come out Inf or NaN are zeroed so the matrix stays dense and finite.
func EngineerFeatures(m *Matrix) *Matrix {
	n, _ := m.X.Dims()
	idx := make(map[string]int, len(m.Names))
	for j, name := range m.Names {
		idx[name] = j
	}

	names := append([]string(nil), m.Names...)
	var derived [][]float64

	if vi, ok := idx["voltage"]; ok {
		if ci, ok := idx["current"]; ok {
			col := make([]float64, n)
			for i := 0; i < n; i++ {
				col[i] = m.X.At(i, vi) * m.X.At(i, ci)
			}
			names = append(names, "power_draw")
			derived = append(derived, col)
		}
	}
	if ti, ok := idx["temperature"]; ok {
		col := make([]float64, n)
		for i := 0; i < n; i++ {
			v := m.X.At(i, ti)
			col[i] = v * v
		}
		names = append(names, "temperature_sq")
		derived = append(derived, col)
	}
	if ci, ok := idx["cycle_count"]; ok {
		col := make([]float64, n)
		for i := 0; i < n; i++ {
			col[i] = math.Log1p(math.Max(m.X.At(i, ci), 0))
		}
		names = append(names, "log_cycle_count")
		derived = append(derived, col)
	}
	if fi, ok := idx["capacity_fade"]; ok {
		if ci, ok := idx["cycle_count"]; ok {
			col := make([]float64, n)
			for i := 0; i < n; i++ {
				// +1 offset guards divide-by-zero on fresh batteries.
				col[i] = m.X.At(i, fi) / (m.X.At(i, ci) + 1)
			}
			names = append(names, "fade_per_cycle")
			derived = append(derived, col)
		}
	}

	if len(derived) == 0 {
		return m
	}

	X := mat.NewDense(n, len(names), nil)
	for i := 0; i < n; i++ {
		for j := 0; j < len(m.Names); j++ {
			X.Set(i, j, m.X.At(i, j))
		}
		for dj, col := range derived {
			v := col[i]
			if math.IsInf(v, 0) || math.IsNaN(v) {
				v = 0
			}
			X.Set(i, len(m.Names)+dj, v)
		}
	}
	return &Matrix{X: X, Names: names}
}

// DerivedFeature computes one engineered feature from base measurements,
// using the same formulas as EngineerFeatures. Lets inference callers supply
// only base features.
func DerivedFeature(name string, base map[string]float64) (float64, bool) {
	get := func(key string) (float64, bool) {
		v, ok := base[key]
		return v, ok
	}
	switch name {
	case "power_draw":
		v, okV := get("voltage")
		c, okC := get("current")
		if okV && okC {
			return v * c, true
		}
	case "temperature_sq":
		if t, ok := get("temperature"); ok {
			return t * t, true
		}
	case "log_cycle_count":
		if cc, ok := get("cycle_count"); ok {
			return math.Log1p(math.Max(cc, 0)), true
		}
	case "fade_per_cycle":
		f, okF := get("capacity_fade")
		cc, okC := get("cycle_count")
		if okF && okC {
			return f / (cc + 1), true
		}
	}
	return 0, false
}
