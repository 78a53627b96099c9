package foundations

import (
	"fmt"
	"math"
	"strings"

	"github.com/notargets/gohp/utils"
)

type BasisType uint8

const (
	NoBasisType BasisType = iota
	OrthoA                // orthonormal Legendre
	ModifiedA             // C0 modal, vertex modes first
	GLLLagrange
	GaussLagrange
	Legendre
	Chebyshev
	Monomial
	Fourier
	FourierSingleMode
	FourierHalfModeRe
	FourierHalfModeIm
)

var basisTypeNames = map[BasisType]string{
	NoBasisType:       "NoBasisType",
	OrthoA:            "OrthoA",
	ModifiedA:         "ModifiedA",
	GLLLagrange:       "GLLLagrange",
	GaussLagrange:     "GaussLagrange",
	Legendre:          "Legendre",
	Chebyshev:         "Chebyshev",
	Monomial:          "Monomial",
	Fourier:           "Fourier",
	FourierSingleMode: "FourierSingleMode",
	FourierHalfModeRe: "FourierHalfModeRe",
	FourierHalfModeIm: "FourierHalfModeIm",
}

func (bt BasisType) String() string {
	if name, ok := basisTypeNames[bt]; ok {
		return name
	}
	return "Unknown"
}

func ParseBasisType(name string) (BasisType, error) {
	for bt, n := range basisTypeNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) && bt != NoBasisType {
			return bt, nil
		}
	}
	return NoBasisType, fmt.Errorf("%w: unknown basis type %q", utils.ErrConfig, name)
}

func (bt BasisType) IsFourier() bool {
	switch bt {
	case Fourier, FourierSingleMode, FourierHalfModeRe, FourierHalfModeIm:
		return true
	}
	return false
}

func (bt BasisType) IsNodal() bool { return bt == GLLLagrange || bt == GaussLagrange }

// HasBoundaryModes reports whether the basis splits into vertex and interior
// modes, which continuous assembly requires
func (bt BasisType) HasBoundaryModes() bool { return bt == ModifiedA || bt == GLLLagrange }

// BasisKey identifies an expansion basis sampled at a point distribution
type BasisKey struct {
	Type      BasisType
	NumModes  int
	PointsKey PointsKey
}

func NewBasisKey(bt BasisType, numModes int, pk PointsKey) BasisKey {
	return BasisKey{Type: bt, NumModes: numModes, PointsKey: pk}
}

func (k BasisKey) String() string {
	return fmt.Sprintf("%s(%d)@%s", k.Type, k.NumModes, k.PointsKey)
}

func (k BasisKey) NumPoints() int { return k.PointsKey.NumPoints }

func (k BasisKey) Validate() (err error) {
	if err = k.PointsKey.Validate(); err != nil {
		return
	}
	if k.NumModes < 1 {
		return fmt.Errorf("%w: %s requires at least one mode", utils.ErrConfig, k)
	}
	switch k.Type {
	case OrthoA, Legendre, Chebyshev, Monomial:
	case ModifiedA:
		if k.NumModes < 2 {
			return fmt.Errorf("%w: %s requires at least two modes", utils.ErrConfig, k)
		}
	case GLLLagrange:
		if k.NumModes < 2 {
			return fmt.Errorf("%w: %s requires at least two modes", utils.ErrConfig, k)
		}
		if k.PointsKey.Type == GaussLobattoLegendre && k.NumModes != k.NumPoints() {
			return fmt.Errorf("%w: %s collocation requires NumModes == NumPoints", utils.ErrConfig, k)
		}
	case GaussLagrange:
		if k.PointsKey.Type == GaussLegendre && k.NumModes != k.NumPoints() {
			return fmt.Errorf("%w: %s collocation requires NumModes == NumPoints", utils.ErrConfig, k)
		}
	case Fourier:
		if k.NumModes%2 != 0 {
			return fmt.Errorf("%w: %s requires an even number of modes", utils.ErrConfig, k)
		}
	case FourierSingleMode:
		if k.NumModes != 2 {
			return fmt.Errorf("%w: %s requires exactly two modes", utils.ErrConfig, k)
		}
	case FourierHalfModeRe, FourierHalfModeIm:
		if k.NumModes != 1 {
			return fmt.Errorf("%w: %s requires exactly one mode", utils.ErrConfig, k)
		}
	default:
		return fmt.Errorf("%w: basis type %d", utils.ErrUnsupported, k.Type)
	}
	if k.Type.IsFourier() && !k.PointsKey.Type.IsFourier() {
		return fmt.Errorf("%w: %s requires a Fourier point distribution", utils.ErrConfig, k)
	}
	if !k.Type.IsFourier() && k.PointsKey.Type.IsFourier() {
		return fmt.Errorf("%w: %s is not defined on a Fourier point distribution", utils.ErrConfig, k)
	}
	return
}

// Basis holds the mode values B[q][p] = phi_p(z_q) and derivatives DB at the
// points of its key
type Basis struct {
	Key    BasisKey
	B, DB  utils.Matrix
	Points *Points
	nodes  []float64 // Lagrange nodes, nil for modal bases
}

func (b *Basis) NumModes() int  { return b.Key.NumModes }
func (b *Basis) NumPoints() int { return b.Key.NumPoints() }

func newBasis(key BasisKey, pts *Points) (b *Basis, err error) {
	if err = key.Validate(); err != nil {
		return
	}
	b = &Basis{Key: key, Points: pts}
	switch key.Type {
	case GLLLagrange:
		b.nodes = JacobiGL(0, 0, key.NumModes-1)
	case GaussLagrange:
		b.nodes, _ = JacobiGQ(0, 0, key.NumModes-1)
	}
	var (
		nq = pts.NumPoints()
		nm = key.NumModes
	)
	b.B = utils.NewMatrix(nq, nm)
	b.DB = utils.NewMatrix(nq, nm)
	for q, x := range pts.Z {
		vals, ders := b.EvalAt(x), b.DerivAt(x)
		for p := 0; p < nm; p++ {
			b.B.M.Set(q, p, vals[p])
			b.DB.M.Set(q, p, ders[p])
		}
	}
	b.B.SetReadOnly("B" + key.String())
	b.DB.SetReadOnly("DB" + key.String())
	return
}

// EvalAt evaluates every mode at x
func (b *Basis) EvalAt(x float64) (phi []float64) {
	nm := b.Key.NumModes
	phi = make([]float64, nm)
	switch b.Key.Type {
	case OrthoA:
		for p := 0; p < nm; p++ {
			phi[p] = JacobiP([]float64{x}, 0, 0, p)[0]
		}
	case ModifiedA:
		phi[0] = 0.5 * (1. - x)
		phi[1] = 0.5 * (1. + x)
		for p := 2; p < nm; p++ {
			phi[p] = 0.25 * (1. - x) * (1. + x) * JacobiPoly(x, 1, 1, p-2)
		}
	case GLLLagrange, GaussLagrange:
		for p := range b.nodes {
			phi[p] = LagrangePoly(x, b.nodes, p)
		}
	case Legendre:
		for p := 0; p < nm; p++ {
			phi[p] = JacobiPoly(x, 0, 0, p)
		}
	case Chebyshev:
		for p := 0; p < nm; p++ {
			phi[p] = math.Cos(float64(p) * math.Acos(math.Max(-1, math.Min(1, x))))
		}
	case Monomial:
		for p := 0; p < nm; p++ {
			phi[p] = utils.POW(x, p)
		}
	case Fourier:
		theta := math.Pi * (x + 1.)
		phi[0] = 1.
		if nm > 1 {
			phi[1] = math.Cos(float64(nm/2) * theta)
		}
		for k := 1; k < nm/2; k++ {
			phi[2*k] = math.Cos(float64(k) * theta)
			phi[2*k+1] = -math.Sin(float64(k) * theta)
		}
	case FourierSingleMode:
		theta := math.Pi * (x + 1.)
		phi[0] = math.Cos(theta)
		phi[1] = -math.Sin(theta)
	case FourierHalfModeRe:
		phi[0] = math.Cos(math.Pi * (x + 1.))
	case FourierHalfModeIm:
		phi[0] = -math.Sin(math.Pi * (x + 1.))
	}
	return
}

// DerivAt evaluates the derivative of every mode at x
func (b *Basis) DerivAt(x float64) (dphi []float64) {
	nm := b.Key.NumModes
	dphi = make([]float64, nm)
	switch b.Key.Type {
	case OrthoA:
		for p := 0; p < nm; p++ {
			dphi[p] = GradJacobiP([]float64{x}, 0, 0, p)[0]
		}
	case ModifiedA:
		dphi[0] = -0.5
		dphi[1] = 0.5
		for p := 2; p < nm; p++ {
			P := JacobiPoly(x, 1, 1, p-2)
			dP := JacobiPolyDeriv(x, 1, 1, p-2)
			dphi[p] = 0.25 * (-2.*x*P + (1.-x)*(1.+x)*dP)
		}
	case GLLLagrange, GaussLagrange:
		for p := range b.nodes {
			dphi[p] = LagrangePolyDeriv(x, b.nodes, p)
		}
	case Legendre:
		for p := 0; p < nm; p++ {
			dphi[p] = JacobiPolyDeriv(x, 0, 0, p)
		}
	case Chebyshev:
		// T_p' = p U_{p-1}
		for p := 1; p < nm; p++ {
			dphi[p] = float64(p) * chebyshevU(x, p-1)
		}
	case Monomial:
		for p := 1; p < nm; p++ {
			dphi[p] = float64(p) * utils.POW(x, p-1)
		}
	case Fourier:
		theta := math.Pi * (x + 1.)
		if nm > 1 {
			kn := float64(nm / 2)
			dphi[1] = -math.Pi * kn * math.Sin(kn*theta)
		}
		for k := 1; k < nm/2; k++ {
			fk := float64(k)
			dphi[2*k] = -math.Pi * fk * math.Sin(fk*theta)
			dphi[2*k+1] = -math.Pi * fk * math.Cos(fk*theta)
		}
	case FourierSingleMode:
		theta := math.Pi * (x + 1.)
		dphi[0] = -math.Pi * math.Sin(theta)
		dphi[1] = -math.Pi * math.Cos(theta)
	case FourierHalfModeRe:
		dphi[0] = -math.Pi * math.Sin(math.Pi*(x+1.))
	case FourierHalfModeIm:
		dphi[0] = -math.Pi * math.Cos(math.Pi*(x+1.))
	}
	return
}

func chebyshevU(x float64, n int) float64 {
	if n == 0 {
		return 1.
	}
	um1, u := 1., 2.*x
	for k := 2; k <= n; k++ {
		um1, u = u, 2.*x*u-um1
	}
	return u
}

// VertexModes returns the modes that are nonzero at -1 and +1 respectively,
// nil when the basis has no vertex/interior split
func (b *Basis) VertexModes() []int {
	switch b.Key.Type {
	case ModifiedA:
		return []int{0, 1}
	case GLLLagrange:
		return []int{0, b.Key.NumModes - 1}
	}
	return nil
}

// InteriorModes returns the modes vanishing at both ends, in ascending order
// of the edge parametrization
func (b *Basis) InteriorModes() (modes []int) {
	switch b.Key.Type {
	case ModifiedA:
		for p := 2; p < b.Key.NumModes; p++ {
			modes = append(modes, p)
		}
	case GLLLagrange:
		for p := 1; p < b.Key.NumModes-1; p++ {
			modes = append(modes, p)
		}
	default:
		for p := 0; p < b.Key.NumModes; p++ {
			modes = append(modes, p)
		}
	}
	return
}

// ReverseInterior maps mode j to the mode j' and sign s with
// phi_j(-x) = s * phi_j'(x). Modal polynomial bases keep the index and pick up
// the parity of the mode, nodal bases reverse the index.
func (b *Basis) ReverseInterior(j int) (jp int, sign float64) {
	nm := b.Key.NumModes
	switch b.Key.Type {
	case ModifiedA, OrthoA, Legendre, Chebyshev, Monomial:
		if j%2 == 0 {
			return j, 1.
		}
		return j, -1.
	case GLLLagrange, GaussLagrange:
		return nm - 1 - j, 1.
	}
	panic(fmt.Errorf("direction reversal is not defined for %s", b.Key.Type))
}
