package foundations

import (
	"fmt"
	"strings"

	"github.com/notargets/gohp/utils"
)

type PointsType uint8

const (
	NoPointsType PointsType = iota
	GaussLegendre
	GaussLobattoLegendre
	GaussRadauMLegendre // includes -1
	GaussRadauPLegendre // includes +1
	PolyEvenlySpaced
	FourierEvenlySpaced
	FourierSingleModeSpaced
)

var pointsTypeNames = map[PointsType]string{
	NoPointsType:            "NoPointsType",
	GaussLegendre:           "GaussLegendre",
	GaussLobattoLegendre:    "GaussLobattoLegendre",
	GaussRadauMLegendre:     "GaussRadauMLegendre",
	GaussRadauPLegendre:     "GaussRadauPLegendre",
	PolyEvenlySpaced:        "PolyEvenlySpaced",
	FourierEvenlySpaced:     "FourierEvenlySpaced",
	FourierSingleModeSpaced: "FourierSingleModeSpaced",
}

func (pt PointsType) String() string {
	if name, ok := pointsTypeNames[pt]; ok {
		return name
	}
	return "Unknown"
}

// ParsePointsType matches a type name case-insensitively
func ParsePointsType(name string) (PointsType, error) {
	for pt, n := range pointsTypeNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) && pt != NoPointsType {
			return pt, nil
		}
	}
	return NoPointsType, fmt.Errorf("%w: unknown points type %q", utils.ErrConfig, name)
}

// IsFourier is true for periodic distributions on [-1,1)
func (pt PointsType) IsFourier() bool {
	return pt == FourierEvenlySpaced || pt == FourierSingleModeSpaced
}

// IncludesEndpoints reports whether -1 and +1 are in the distribution
func (pt PointsType) IncludesEndpoints() (left, right bool) {
	switch pt {
	case GaussLobattoLegendre, PolyEvenlySpaced:
		return true, true
	case GaussRadauMLegendre, FourierEvenlySpaced, FourierSingleModeSpaced:
		return true, false
	case GaussRadauPLegendre:
		return false, true
	}
	return false, false
}

// PointsKey identifies a point distribution; it is comparable and used as a map key
type PointsKey struct {
	NumPoints int
	Type      PointsType
}

func NewPointsKey(n int, pt PointsType) PointsKey {
	return PointsKey{NumPoints: n, Type: pt}
}

func (k PointsKey) String() string {
	return fmt.Sprintf("%s(%d)", k.Type, k.NumPoints)
}

func (k PointsKey) Validate() error {
	if k.NumPoints < 1 {
		return fmt.Errorf("%w: %s requires at least one point", utils.ErrConfig, k)
	}
	if _, ok := pointsTypeNames[k.Type]; !ok || k.Type == NoPointsType {
		return fmt.Errorf("%w: points type %d", utils.ErrUnsupported, k.Type)
	}
	if k.Type == FourierEvenlySpaced && k.NumPoints > 1 && k.NumPoints%2 != 0 {
		return fmt.Errorf("%w: %s requires an even number of points", utils.ErrConfig, k)
	}
	return nil
}

// Points holds an immutable distribution: nodes Z, weights W and the
// collocation differentiation matrix D[i][j] = dL_j/dx(Z_i)
type Points struct {
	Key PointsKey
	Z   []float64
	W   []float64
	D   utils.Matrix
}

func (p *Points) NumPoints() int { return p.Key.NumPoints }

// newPoints computes a distribution. Single point distributions of any type
// collapse to the midpoint rule.
func newPoints(key PointsKey) (p *Points, err error) {
	if err = key.Validate(); err != nil {
		return
	}
	var (
		n    = key.NumPoints
		z, w []float64
	)
	p = &Points{Key: key}
	if n == 1 {
		p.Z, p.W = []float64{0.}, []float64{2.}
		p.D = utils.NewMatrix(1, 1)
		p.D.SetReadOnly("D" + key.String())
		return
	}
	switch key.Type {
	case GaussLegendre:
		z, w = JacobiGQ(0, 0, n-1)
	case GaussLobattoLegendre:
		z = JacobiGL(0, 0, n-1)
		w = integrateLagrange(z)
	case GaussRadauMLegendre:
		z = radauM(n)
		w = integrateLagrange(z)
	case GaussRadauPLegendre:
		zm := radauM(n)
		z = make([]float64, n)
		for i := range zm {
			z[n-1-i] = -zm[i]
		}
		w = integrateLagrange(z)
	case PolyEvenlySpaced:
		z = make([]float64, n)
		for i := range z {
			z[i] = -1. + 2.*float64(i)/float64(n-1)
		}
		w = evenlySpacedWeights(z)
	case FourierEvenlySpaced, FourierSingleModeSpaced:
		z = make([]float64, n)
		w = make([]float64, n)
		for i := range z {
			z[i] = -1. + 2.*float64(i)/float64(n)
			w[i] = 2. / float64(n)
		}
	default:
		return nil, fmt.Errorf("%w: points type %s", utils.ErrUnsupported, key.Type)
	}
	p.Z, p.W = z, w
	if key.Type.IsFourier() {
		p.D = fourierDerivMatrix(z)
	} else {
		p.D = collocationDerivMatrix(z)
	}
	p.D.SetReadOnly("D" + key.String())
	return
}

// radauM returns n Gauss-Radau points including -1
func radauM(n int) (z []float64) {
	z = make([]float64, n)
	z[0] = -1.
	if n > 1 {
		xint, _ := JacobiGQ(0, 1, n-2)
		copy(z[1:], xint)
	}
	return
}

// integrateLagrange returns w_i = integral of L_i over [-1,1] using a Gauss
// rule exact for the Lagrange polynomials of the nodes
func integrateLagrange(nodes []float64) (w []float64) {
	zg, wg := JacobiGQ(0, 0, len(nodes)-1)
	w = make([]float64, len(nodes))
	for i := range nodes {
		for k, x := range zg {
			w[i] += wg[k] * LagrangePoly(x, nodes, i)
		}
	}
	return
}

// evenlySpacedWeights integrates the Lagrange polynomials of evenly spaced
// nodes with a Gauss-Lobatto rule of the same count:
// w_i = sum_j wGLL_j L_i(zGLL_j)
func evenlySpacedWeights(nodes []float64) (w []float64) {
	zgll := JacobiGL(0, 0, len(nodes)-1)
	wgll := integrateLagrange(zgll)
	w = make([]float64, len(nodes))
	for i := range nodes {
		for j, x := range zgll {
			w[i] += wgll[j] * LagrangePoly(x, nodes, i)
		}
	}
	return
}

func fourierDerivMatrix(z []float64) (D utils.Matrix) {
	n := len(z)
	D = utils.NewMatrix(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				D.M.Set(i, j, trigCardinalDeriv(z[i]-z[j], n))
			}
		}
	}
	return
}

// interpolationMatrix builds I[i][j] = L_j(to[i]) or its derivative, with the
// periodic cardinal functions for Fourier sources
func interpolationMatrix(from *Points, to []float64, deriv bool) (I utils.Matrix) {
	if !from.Key.Type.IsFourier() || from.Key.NumPoints == 1 {
		if deriv {
			return InterpolationDerivMatrix(from.Z, to)
		}
		return InterpolationMatrix(from.Z, to)
	}
	n := len(from.Z)
	I = utils.NewMatrix(len(to), n)
	for i, x := range to {
		for j, zj := range from.Z {
			if deriv {
				I.M.Set(i, j, trigCardinalDeriv(x-zj, n))
			} else {
				I.M.Set(i, j, trigCardinal(x-zj, n))
			}
		}
	}
	return
}
