package utils

import "math"

const (
	NODETOL = 1.e-12
)

type EvalOp uint8

const (
	Equal EvalOp = iota
	Less
	Greater
	LessOrEqual
	GreaterOrEqual
)

func (op EvalOp) Eval(a, b float64) bool {
	switch op {
	case Equal:
		return math.Abs(a-b) < NODETOL
	case Less:
		return a < b
	case Greater:
		return a > b
	case LessOrEqual:
		return a <= b
	case GreaterOrEqual:
		return a >= b
	}
	panic("unknown EvalOp")
}

func POW(x float64, pp int) (y float64) {
	if pp == 0 {
		return 1.
	}
	y = x
	for i := 1; i < pp; i++ {
		y *= x
	}
	return
}

func ConstArray(N int, val float64) (v []float64) {
	v = make([]float64, N)
	for i := range v {
		v[i] = val
	}
	return
}

func ConstArrayInt(N, val int) (v []int) {
	v = make([]int, N)
	for i := range v {
		v[i] = val
	}
	return
}

// IsClose compares with a relative tolerance scaled by the larger magnitude
func IsClose(a, b, tol float64) bool {
	scale := math.Max(1., math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= tol*scale
}

func Sum(v []float64) (s float64) {
	for _, val := range v {
		s += val
	}
	return
}

func Zero(v []float64) {
	for i := range v {
		v[i] = 0
	}
}
