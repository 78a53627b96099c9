package expansion

import (
	"fmt"

	"github.com/notargets/gohp/geometry"
	"github.com/notargets/gohp/utils"
)

type MatrixType uint8

const (
	Mass MatrixType = iota
	Laplacian
	Helmholtz
)

func (mt MatrixType) String() string {
	switch mt {
	case Mass:
		return "Mass"
	case Laplacian:
		return "Laplacian"
	case Helmholtz:
		return "Helmholtz"
	}
	return fmt.Sprintf("MatrixType(%d)", uint8(mt))
}

// ParseMatrixType converts a matrix name to MatrixType, case sensitive
func ParseMatrixType(name string) (MatrixType, error) {
	for _, mt := range []MatrixType{Mass, Laplacian, Helmholtz} {
		if mt.String() == name {
			return mt, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown matrix type %q", utils.ErrConfig, name)
}

// MatrixKey identifies an elemental operator matrix. Lambda is used by
// Helmholtz only.
type MatrixKey struct {
	Type   MatrixType
	Lambda float64
}

// Expansion is the local element contract consumed by the assembly map, the
// global systems and the trace map. Coefficients are tensor ordered with
// direction 0 fastest, as are physical values.
type Expansion interface {
	Shape() geometry.Shape
	Geom() geometry.Geometry
	Factors() *geometry.GeomFactors
	NumCoeffs() int
	NumPoints() int

	BwdTrans(coeffs, phys []float64)
	FwdTrans(phys, coeffs []float64) error
	IProductWRTBase(phys, out []float64)
	IProductWRTDerivBase(dir int, phys, out []float64)
	PhysDeriv(phys []float64, out [][]float64)
	Integral(phys []float64) float64
	GetMatrix(key MatrixKey) (utils.Matrix, error)

	// IsC0 reports whether the bases split into boundary and interior modes
	IsC0() bool
	// BoundaryMap lists vertex, then edge interior, then face interior modes
	BoundaryMap() []int
	InteriorMap() []int
	VertexMap(v int) int
	// EdgeInteriorMap returns, for each interior mode slot along the global
	// edge direction, the local mode and its sign
	EdgeInteriorMap(e int, o geometry.EdgeOrient) (modes []int, signs []float64)
	// FaceInteriorMap returns local modes and signs in the canonical (s, t)
	// order of the global face, s fastest
	FaceInteriorMap(f int, o geometry.FaceOrient) (modes []int, signs []float64)
	EdgeNumModes(e int) int
	// FaceNumModes counts face interior modes along the local (a, b) directions
	FaceNumModes(f int) (na, nb int)

	NumFacets() int
	FacetNumPoints(f int) int
	FacetPointsDims(f int) []int
	FacetPhys(phys []float64, f int) []float64
	FacetIProduct(f int, vals, out []float64)
	FacetNormals(f int) [][]float64
	FacetJac(f int) []float64
}
