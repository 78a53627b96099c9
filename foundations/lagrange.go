package foundations

import (
	"math"

	"github.com/notargets/gohp/utils"
)

// LagrangePoly evaluates the i-th Lagrange polynomial of nodes at x
func LagrangePoly(x float64, nodes []float64, i int) (h float64) {
	h = 1.
	xi := nodes[i]
	for j, xj := range nodes {
		if j == i {
			continue
		}
		h *= (x - xj) / (xi - xj)
	}
	return
}

// LagrangePolyDeriv evaluates d/dx of the i-th Lagrange polynomial at x by
// accumulating the product rule over every other node.
func LagrangePolyDeriv(x float64, nodes []float64, i int) (dh float64) {
	xi := nodes[i]
	for k, xk := range nodes {
		if k == i {
			continue
		}
		term := 1. / (xi - xk)
		for j, xj := range nodes {
			if j == i || j == k {
				continue
			}
			term *= (x - xj) / (xi - xj)
		}
		dh += term
	}
	return
}

// LagrangeInterpolant returns sum_i f[i] L_i(x)
func LagrangeInterpolant(x float64, nodes, f []float64) (y float64) {
	for i := range nodes {
		y += f[i] * LagrangePoly(x, nodes, i)
	}
	return
}

// InterpolationMatrix returns I[i][j] = L_j(to[i]) for the nodes in from
func InterpolationMatrix(from, to []float64) (I utils.Matrix) {
	I = utils.NewMatrix(len(to), len(from))
	for i, x := range to {
		for j := range from {
			I.M.Set(i, j, LagrangePoly(x, from, j))
		}
	}
	return
}

// InterpolationDerivMatrix returns D[i][j] = L_j'(to[i]) for the nodes in from
func InterpolationDerivMatrix(from, to []float64) (D utils.Matrix) {
	D = utils.NewMatrix(len(to), len(from))
	for i, x := range to {
		for j := range from {
			D.M.Set(i, j, LagrangePolyDeriv(x, from, j))
		}
	}
	return
}

// barycentricWeights are 1/prod_{j!=i}(x_i-x_j)
func barycentricWeights(nodes []float64) (w []float64) {
	w = make([]float64, len(nodes))
	for i, xi := range nodes {
		w[i] = 1.
		for j, xj := range nodes {
			if j != i {
				w[i] *= xi - xj
			}
		}
		w[i] = 1. / w[i]
	}
	return
}

// collocationDerivMatrix is D[i][j] = L_j'(x_i) using barycentric weights,
// with the diagonal from the negative row sum
func collocationDerivMatrix(nodes []float64) (D utils.Matrix) {
	var (
		n  = len(nodes)
		bw = barycentricWeights(nodes)
	)
	D = utils.NewMatrix(n, n)
	for i := 0; i < n; i++ {
		var diag float64
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			val := (bw[j] / bw[i]) / (nodes[i] - nodes[j])
			D.M.Set(i, j, val)
			diag -= val
		}
		D.M.Set(i, i, diag)
	}
	return
}

// trigCardinal is the periodic cardinal function on n evenly spaced points
// of [-1,1), centered at offset s = x - x_j
func trigCardinal(s float64, n int) float64 {
	theta := math.Pi * s
	half := 0.5 * theta
	if math.Abs(math.Sin(half)) < utils.NODETOL {
		// s is a multiple of the period
		return 1.
	}
	if n%2 == 0 {
		return math.Sin(float64(n)*half) / (float64(n) * math.Tan(half))
	}
	return math.Sin(float64(n)*half) / (float64(n) * math.Sin(half))
}

func trigCardinalDeriv(s float64, n int) float64 {
	var (
		theta = math.Pi * s
		half  = 0.5 * theta
		fn    = float64(n)
		sh    = math.Sin(half)
	)
	if math.Abs(sh) < utils.NODETOL {
		return 0.
	}
	var d float64
	if n%2 == 0 {
		// d/dtheta [sin(n t/2) cot(t/2) / n]
		ch := math.Cos(half)
		d = 0.5*math.Cos(fn*half)*ch/sh - 0.5*math.Sin(fn*half)/(fn*sh*sh)
	} else {
		ch := math.Cos(half)
		d = (0.5*fn*math.Cos(fn*half)*sh - 0.5*math.Sin(fn*half)*ch) / (fn * sh * sh)
	}
	return math.Pi * d
}
