package geometry

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/notargets/gohp/foundations"
	"github.com/notargets/gohp/utils"
)

// GeomFactors holds the Jacobian and metric terms of one element at the
// tensor product of Keys. Regular factors store a single point that applies
// everywhere.
type GeomFactors struct {
	Type        GeomType
	ExpDim      int
	CoordDim    int
	Valid       bool
	Orientation Orientation
	Keys        []foundations.PointsKey
	// Jac is the signed Jacobian determinant, or sqrt(det(J^T J)) on manifolds
	Jac []float64
	// Deriv[c][d] is dx_c/dxi_d
	Deriv [][][]float64
	// DerivFactors[d][c] is dxi_d/dx_c
	DerivFactors [][][]float64
	// Gmat[i][j] is sum_k dxi_i/dx_k dxi_j/dx_k
	Gmat [][][]float64
	hash uint64
}

func (gf *GeomFactors) NumPoints() (n int) {
	n = 1
	for _, k := range gf.Keys {
		n *= k.NumPoints
	}
	return
}

func (gf *GeomFactors) at(q int) int {
	if gf.Type.IsRegular() {
		return 0
	}
	return q
}

// JacAt is the integration measure |J| at point q
func (gf *GeomFactors) JacAt(q int) float64 { return math.Abs(gf.Jac[gf.at(q)]) }

func (gf *GeomFactors) DerivAt(c, d, q int) float64 { return gf.Deriv[c][d][gf.at(q)] }

func (gf *GeomFactors) DerivFactorAt(d, c, q int) float64 {
	return gf.DerivFactors[d][c][gf.at(q)]
}

func (gf *GeomFactors) GmatAt(i, j, q int) float64 { return gf.Gmat[i][j][gf.at(q)] }

func (gf *GeomFactors) Hash() uint64 { return gf.hash }

// Equal compares type, dimensions, keys and values to a relative tolerance
func (gf *GeomFactors) Equal(o *GeomFactors) bool {
	if gf == o {
		return true
	}
	if gf.Type != o.Type || gf.ExpDim != o.ExpDim || gf.CoordDim != o.CoordDim ||
		gf.Valid != o.Valid || gf.Orientation != o.Orientation || len(gf.Keys) != len(o.Keys) ||
		len(gf.Jac) != len(o.Jac) {
		return false
	}
	for d, k := range gf.Keys {
		if k != o.Keys[d] {
			return false
		}
	}
	const tol = 1.e-11
	for q := range gf.Jac {
		if !utils.IsClose(gf.Jac[q], o.Jac[q], tol) {
			return false
		}
	}
	for d := range gf.DerivFactors {
		for c := range gf.DerivFactors[d] {
			for q := range gf.DerivFactors[d][c] {
				if !utils.IsClose(gf.DerivFactors[d][c][q], o.DerivFactors[d][c][q], tol) {
					return false
				}
			}
		}
	}
	return true
}

// computeHash covers the discrete description only; factors that agree to
// round-off land in one bucket and Equal compares their values
func (gf *GeomFactors) computeHash() uint64 {
	var (
		d   = xxhash.New()
		buf [8]byte
		put = func(u uint64) {
			binary.LittleEndian.PutUint64(buf[:], u)
			_, _ = d.Write(buf[:])
		}
	)
	put(uint64(gf.Type))
	put(uint64(gf.ExpDim))
	put(uint64(gf.CoordDim))
	for _, k := range gf.Keys {
		put(uint64(k.NumPoints))
		put(uint64(k.Type))
	}
	put(uint64(len(gf.Jac)))
	return d.Sum64()
}

// Compute evaluates the factors of g at the tensor product of keys. An element
// with a vanishing or sign changing Jacobian is returned with Valid false.
func Compute(reg *foundations.Registry, g Geometry, keys []foundations.PointsKey) (gf *GeomFactors, err error) {
	var (
		expDim   = g.ExpDim()
		coordDim = g.CoordDim()
		deriv    [][][]float64
	)
	if len(keys) != expDim {
		return nil, fmt.Errorf("%w: element %d: %d point keys for a %s", utils.ErrConfig, g.ID(), len(keys), g.Shape())
	}
	if coordDim < expDim {
		return nil, fmt.Errorf("%w: element %d: coordinate dimension %d below expansion dimension %d",
			utils.ErrConfig, g.ID(), coordDim, expDim)
	}
	for _, k := range keys {
		if err = k.Validate(); err != nil {
			return nil, fmt.Errorf("element %d: %w", g.ID(), err)
		}
	}
	gf = &GeomFactors{
		ExpDim:   expDim,
		CoordDim: coordDim,
		Keys:     append([]foundations.PointsKey(nil), keys...),
	}
	regular := g.IsAffine()
	switch {
	case regular && g.Moving():
		gf.Type = MovingRegular
	case regular:
		gf.Type = Regular
	case g.Moving():
		gf.Type = MovingDeformed
	default:
		gf.Type = Deformed
	}

	if tri, ok := g.(*TriGeom); ok {
		d := tri.refDeriv()
		deriv = make([][][]float64, coordDim)
		for c := range deriv {
			deriv[c] = [][]float64{{d[0][c]}, {d[1][c]}}
		}
	} else if deriv, err = tensorDeriv(reg, g, keys, regular); err != nil {
		return nil, err
	}
	gf.fill(deriv)
	gf.hash = gf.computeHash()
	return
}

// tensorDeriv differentiates the coordinate map along each reference
// direction at its native points and interpolates to keys
func tensorDeriv(reg *foundations.Registry, g Geometry, keys []foundations.PointsKey,
	regular bool) (deriv [][][]float64, err error) {
	var (
		cm   *CoordMap
		dims []int
		ops  = make([]utils.Matrix, len(keys))
	)
	if cm, err = g.CoordinateMap(reg); err != nil {
		return
	}
	dims = cm.Dims()
	if !regular {
		for d, k := range keys {
			if k == cm.Keys[d] {
				continue
			}
			if ops[d], err = reg.GetInterpolation(cm.Keys[d], k); err != nil {
				return
			}
		}
	}
	deriv = make([][][]float64, len(cm.X))
	for c := range cm.X {
		deriv[c] = make([][]float64, len(keys))
		for d := range keys {
			var pts *foundations.Points
			if pts, err = reg.GetPoints(cm.Keys[d]); err != nil {
				return
			}
			dX, _ := utils.TensorApply(pts.D, cm.X[c], dims, d)
			if regular {
				deriv[c][d] = []float64{dX[0]}
				continue
			}
			deriv[c][d], _ = utils.TensorApplyAll(ops, dX, dims)
		}
	}
	return
}

func (gf *GeomFactors) fill(deriv [][][]float64) {
	var (
		nc, nd = gf.CoordDim, gf.ExpDim
		nq     = len(deriv[0][0])
		J      = make([][]float64, nc)
		nPos   int
		nNeg   int
		nZero  int
	)
	gf.Deriv = deriv
	gf.Jac = make([]float64, nq)
	gf.DerivFactors = alloc3(nd, nc, nq)
	gf.Gmat = alloc3(nd, nd, nq)
	for c := range J {
		J[c] = make([]float64, nd)
	}
	for q := 0; q < nq; q++ {
		var scale float64
		for c := 0; c < nc; c++ {
			for d := 0; d < nd; d++ {
				J[c][d] = deriv[c][d][q]
				scale = math.Max(scale, math.Abs(J[c][d]))
			}
		}
		var (
			jac float64
			df  [][]float64
		)
		if nc == nd {
			var inv [][]float64
			inv, jac = invertSmall(J)
			df = inv
		} else {
			// Pseudo-inverse through the metric J^T J
			G := make([][]float64, nd)
			for i := range G {
				G[i] = make([]float64, nd)
				for j := range G[i] {
					for c := 0; c < nc; c++ {
						G[i][j] += J[c][i] * J[c][j]
					}
				}
			}
			Ginv, detG := invertSmall(G)
			jac = math.Sqrt(math.Max(detG, 0))
			df = make([][]float64, nd)
			for d := range df {
				df[d] = make([]float64, nc)
				for c := 0; c < nc; c++ {
					for k := 0; k < nd; k++ {
						df[d][c] += Ginv[d][k] * J[c][k]
					}
				}
			}
		}
		gf.Jac[q] = jac
		switch {
		case math.Abs(jac) <= 1.e-12*math.Max(utils.POW(scale, nd), 1.e-300):
			nZero++
		case jac > 0:
			nPos++
		default:
			nNeg++
		}
		for d := 0; d < nd; d++ {
			for c := 0; c < nc; c++ {
				gf.DerivFactors[d][c][q] = df[d][c]
			}
		}
		for i := 0; i < nd; i++ {
			for j := 0; j < nd; j++ {
				var sum float64
				for c := 0; c < nc; c++ {
					sum += df[i][c] * df[j][c]
				}
				gf.Gmat[i][j][q] = sum
			}
		}
	}
	gf.Valid = nZero == 0 && (nPos == 0 || nNeg == 0)
	if nNeg > 0 && nPos == 0 {
		gf.Orientation = NegativeJacobian
	}
}

func alloc3(n0, n1, n2 int) (a [][][]float64) {
	a = make([][][]float64, n0)
	for i := range a {
		a[i] = make([][]float64, n1)
		for j := range a[i] {
			a[i][j] = make([]float64, n2)
		}
	}
	return
}

// invertSmall inverts a 1x1, 2x2 or 3x3 matrix by cofactors. A singular
// matrix returns zero entries and det 0.
func invertSmall(A [][]float64) (inv [][]float64, det float64) {
	n := len(A)
	inv = make([][]float64, n)
	for i := range inv {
		inv[i] = make([]float64, n)
	}
	switch n {
	case 1:
		det = A[0][0]
		if det != 0 {
			inv[0][0] = 1. / det
		}
	case 2:
		det = A[0][0]*A[1][1] - A[0][1]*A[1][0]
		if det != 0 {
			inv[0][0] = A[1][1] / det
			inv[0][1] = -A[0][1] / det
			inv[1][0] = -A[1][0] / det
			inv[1][1] = A[0][0] / det
		}
	case 3:
		c00 := A[1][1]*A[2][2] - A[1][2]*A[2][1]
		c01 := A[1][2]*A[2][0] - A[1][0]*A[2][2]
		c02 := A[1][0]*A[2][1] - A[1][1]*A[2][0]
		det = A[0][0]*c00 + A[0][1]*c01 + A[0][2]*c02
		if det != 0 {
			inv[0][0] = c00 / det
			inv[1][0] = c01 / det
			inv[2][0] = c02 / det
			inv[0][1] = (A[0][2]*A[2][1] - A[0][1]*A[2][2]) / det
			inv[1][1] = (A[0][0]*A[2][2] - A[0][2]*A[2][0]) / det
			inv[2][1] = (A[0][1]*A[2][0] - A[0][0]*A[2][1]) / det
			inv[0][2] = (A[0][1]*A[1][2] - A[0][2]*A[1][1]) / det
			inv[1][2] = (A[0][2]*A[1][0] - A[0][0]*A[1][2]) / det
			inv[2][2] = (A[0][0]*A[1][1] - A[0][1]*A[1][0]) / det
		}
	default:
		panic(fmt.Errorf("invertSmall: unsupported dimension %d", n))
	}
	return
}

// LocCoords inverts the map of a regular element: the reference coordinates
// of the physical point x
func LocCoords(g Geometry, gf *GeomFactors, x Vec3) (xi []float64, err error) {
	if !gf.Type.IsRegular() {
		return nil, fmt.Errorf("%w: element %d: inverse map of a %s element", utils.ErrUnsupported, g.ID(), gf.Type)
	}
	var (
		anchor   Vec3
		anchorXi = make([]float64, gf.ExpDim)
	)
	if g.Shape() == Triangle {
		anchor = g.Vertex(0)
		for d := range anchorXi {
			anchorXi[d] = -1
		}
	} else {
		for i := 0; i < g.NumVerts(); i++ {
			anchor = anchor.Add(g.Vertex(i))
		}
		anchor = anchor.Scale(1. / float64(g.NumVerts()))
	}
	dx := x.Sub(anchor)
	xi = make([]float64, gf.ExpDim)
	for d := range xi {
		xi[d] = anchorXi[d]
		for c := 0; c < gf.CoordDim; c++ {
			xi[d] += gf.DerivFactorAt(d, c, 0) * dx[c]
		}
	}
	return
}

// ComputeEdgeTangents returns unit tangents [coord][point] of a segment
// embedded in two or three dimensions
func ComputeEdgeTangents(reg *foundations.Registry, g *SegGeom, key foundations.PointsKey) (t [][]float64, err error) {
	if g.CoordDim() < 2 {
		return nil, fmt.Errorf("%w: tangents of segment %d need an embedding dimension of at least 2",
			utils.ErrConfig, g.ID())
	}
	var gf *GeomFactors
	if gf, err = Compute(reg, g, []foundations.PointsKey{key}); err != nil {
		return
	}
	nq := key.NumPoints
	t = make([][]float64, g.CoordDim())
	for c := range t {
		t[c] = make([]float64, nq)
	}
	for q := 0; q < nq; q++ {
		var norm float64
		for c := range t {
			v := gf.DerivAt(c, 0, q)
			norm += v * v
		}
		norm = math.Sqrt(norm)
		for c := range t {
			t[c][q] = gf.DerivAt(c, 0, q) / norm
		}
	}
	return
}
