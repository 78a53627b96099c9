package expansion

import (
	"fmt"
	"math"
	"sync"

	"github.com/notargets/gohp/foundations"
	"github.com/notargets/gohp/geometry"
	"github.com/notargets/gohp/utils"
)

// TensorExpansion is a segment, quadrilateral or hexahedron expansion built
// from one 1D basis per reference direction
type TensorExpansion struct {
	shape geometry.Shape
	geom  geometry.Geometry
	gf    *geometry.GeomFactors
	reg   *foundations.Registry
	bases []*foundations.Basis
	pts   []*foundations.Points
	nm    []int // Modes per direction
	nq    []int // Points per direction
	B, Bt []utils.Matrix
	DBt   []utils.Matrix
	DB    []utils.Matrix
	jw    []float64 // Quadrature weight times |J| per point
	c0    bool

	bmap, imap []int
	facets     []facetData

	mu    sync.Mutex
	mats  map[MatrixKey]utils.Matrix
	massF *utils.CholeskyFactor
}

type facetData struct {
	dir, side int
	dims      []int
	extract   utils.Matrix // 1 x nq[dir] interpolation to the facet
	phiEnd    utils.Matrix // nm[dir] x 1 mode values on the facet
	w         []float64    // Facet quadrature weights
	jac       []float64    // Surface Jacobian
	normals   [][]float64  // Outward unit normals [coord][point]
}

// New builds the expansion of one element. The factors must be computed at
// the point keys of the bases.
func New(reg *foundations.Registry, geom geometry.Geometry, gf *geometry.GeomFactors,
	keys []foundations.BasisKey) (e *TensorExpansion, err error) {
	shape := geom.Shape()
	if !shape.IsTensor() {
		return nil, fmt.Errorf("%w: element %d: expansion of a %s", utils.ErrUnsupported, geom.ID(), shape)
	}
	dim := shape.Dim()
	if len(keys) != dim {
		return nil, fmt.Errorf("%w: element %d: %d basis keys for a %s", utils.ErrConfig, geom.ID(), len(keys), shape)
	}
	if gf == nil || len(gf.Keys) != dim {
		return nil, fmt.Errorf("%w: element %d: geometric factors do not match the %s", utils.ErrConfig,
			geom.ID(), shape)
	}
	e = &TensorExpansion{
		shape: shape,
		geom:  geom,
		gf:    gf,
		reg:   reg,
		c0:    true,
		mats:  make(map[MatrixKey]utils.Matrix),
	}
	for d, k := range keys {
		if gf.Keys[d] != k.PointsKey {
			return nil, fmt.Errorf("%w: element %d: basis %s sampled at %s, factors at %s", utils.ErrConfig,
				geom.ID(), k, k.PointsKey, gf.Keys[d])
		}
		var (
			b *foundations.Basis
			p *foundations.Points
		)
		if b, err = reg.GetBasis(k); err != nil {
			return nil, fmt.Errorf("element %d: %w", geom.ID(), err)
		}
		if p, err = reg.GetPoints(k.PointsKey); err != nil {
			return nil, err
		}
		e.bases = append(e.bases, b)
		e.pts = append(e.pts, p)
		e.nm = append(e.nm, k.NumModes)
		e.nq = append(e.nq, k.NumPoints())
		e.B = append(e.B, b.B)
		e.DB = append(e.DB, b.DB)
		e.Bt = append(e.Bt, b.B.Transpose())
		e.DBt = append(e.DBt, b.DB.Transpose())
		if !b.Key.Type.HasBoundaryModes() {
			e.c0 = false
		}
	}
	e.jw = make([]float64, utils.TensorSize(e.nq))
	for q := range e.jw {
		idx := utils.TensorIndex(q, e.nq)
		w := gf.JacAt(q)
		for d, i := range idx {
			w *= e.pts[d].W[i]
		}
		e.jw[q] = w
	}
	e.buildMaps()
	if err = e.buildFacets(); err != nil {
		return nil, err
	}
	return
}

func (e *TensorExpansion) Shape() geometry.Shape          { return e.shape }
func (e *TensorExpansion) Geom() geometry.Geometry        { return e.geom }
func (e *TensorExpansion) Factors() *geometry.GeomFactors { return e.gf }
func (e *TensorExpansion) NumCoeffs() int                 { return utils.TensorSize(e.nm) }
func (e *TensorExpansion) NumPoints() int                 { return utils.TensorSize(e.nq) }

// Basis returns the 1D basis of direction d
func (e *TensorExpansion) Basis(d int) *foundations.Basis { return e.bases[d] }

func (e *TensorExpansion) checkLen(name string, v []float64, n int) {
	if len(v) != n {
		panic(fmt.Errorf("element %d %s: length %d, want %d", e.geom.ID(), name, len(v), n))
	}
}

// BwdTrans evaluates the expansion at the quadrature points
func (e *TensorExpansion) BwdTrans(coeffs, phys []float64) {
	e.checkLen("BwdTrans coefficients", coeffs, e.NumCoeffs())
	e.checkLen("BwdTrans physical values", phys, e.NumPoints())
	out, _ := utils.TensorApplyAll(e.B, coeffs, e.nm)
	copy(phys, out)
}

// IProductWRTBase computes out_i = sum_q phi_i(q) w_q |J_q| phys_q
func (e *TensorExpansion) IProductWRTBase(phys, out []float64) {
	e.checkLen("IProductWRTBase physical values", phys, e.NumPoints())
	e.checkLen("IProductWRTBase coefficients", out, e.NumCoeffs())
	tmp := make([]float64, len(phys))
	for q, v := range phys {
		tmp[q] = v * e.jw[q]
	}
	res, _ := utils.TensorApplyAll(e.Bt, tmp, e.nq)
	copy(out, res)
}

// IProductWRTDerivBase is the inner product with the reference derivative of
// each mode along direction dir
func (e *TensorExpansion) IProductWRTDerivBase(dir int, phys, out []float64) {
	e.checkLen("IProductWRTDerivBase physical values", phys, e.NumPoints())
	e.checkLen("IProductWRTDerivBase coefficients", out, e.NumCoeffs())
	tmp := make([]float64, len(phys))
	for q, v := range phys {
		tmp[q] = v * e.jw[q]
	}
	ops := append([]utils.Matrix(nil), e.Bt...)
	ops[dir] = e.DBt[dir]
	res, _ := utils.TensorApplyAll(ops, tmp, e.nq)
	copy(out, res)
}

// FwdTrans projects physical values onto the expansion
func (e *TensorExpansion) FwdTrans(phys, coeffs []float64) (err error) {
	var F *utils.CholeskyFactor
	if F, err = e.massFactor(); err != nil {
		return
	}
	rhs := make([]float64, e.NumCoeffs())
	e.IProductWRTBase(phys, rhs)
	return F.Solve(coeffs, rhs)
}

func (e *TensorExpansion) massFactor() (F *utils.CholeskyFactor, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.massF != nil {
		return e.massF, nil
	}
	if e.massF, err = utils.NewCholeskyFactor(e.matrix(MatrixKey{Type: Mass})); err != nil {
		return nil, fmt.Errorf("element %d mass matrix: %w", e.geom.ID(), err)
	}
	return e.massF, nil
}

// refDeriv differentiates physical values along reference direction d
func (e *TensorExpansion) refDeriv(phys []float64, d int) []float64 {
	out, _ := utils.TensorApply(e.pts[d].D, phys, e.nq, d)
	return out
}

// PhysDeriv computes out[c] = d(phys)/dx_c by the chain rule
func (e *TensorExpansion) PhysDeriv(phys []float64, out [][]float64) {
	e.checkLen("PhysDeriv physical values", phys, e.NumPoints())
	var (
		dim = len(e.nq)
		ref = make([][]float64, dim)
	)
	for d := range ref {
		ref[d] = e.refDeriv(phys, d)
	}
	for c := range out {
		e.checkLen("PhysDeriv output", out[c], e.NumPoints())
		for q := range out[c] {
			var sum float64
			for d := 0; d < dim; d++ {
				sum += e.gf.DerivFactorAt(d, c, q) * ref[d][q]
			}
			out[c][q] = sum
		}
	}
}

func (e *TensorExpansion) Integral(phys []float64) (sum float64) {
	e.checkLen("Integral physical values", phys, e.NumPoints())
	for q, v := range phys {
		sum += v * e.jw[q]
	}
	return
}

// GetMatrix returns the memoized, read only elemental matrix of key
func (e *TensorExpansion) GetMatrix(key MatrixKey) (M utils.Matrix, err error) {
	switch key.Type {
	case Mass, Laplacian, Helmholtz:
	default:
		return M, fmt.Errorf("%w: elemental matrix %s", utils.ErrUnsupported, key.Type)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.matrix(key), nil
}

func (e *TensorExpansion) MassMatrix() (utils.Matrix, error) {
	return e.GetMatrix(MatrixKey{Type: Mass})
}

func (e *TensorExpansion) LaplacianMatrix() (utils.Matrix, error) {
	return e.GetMatrix(MatrixKey{Type: Laplacian})
}

func (e *TensorExpansion) HelmholtzMatrix(lambda float64) (utils.Matrix, error) {
	return e.GetMatrix(MatrixKey{Type: Helmholtz, Lambda: lambda})
}

// matrix builds or fetches key, e.mu held
func (e *TensorExpansion) matrix(key MatrixKey) utils.Matrix {
	if key.Type != Helmholtz {
		key.Lambda = 0
	}
	if M, ok := e.mats[key]; ok {
		return M
	}
	var (
		nc = e.NumCoeffs()
		M  = utils.NewMatrix(nc, nc)
	)
	switch key.Type {
	case Mass:
		var (
			unit = make([]float64, nc)
			phys = make([]float64, e.NumPoints())
			col  = make([]float64, nc)
		)
		for j := 0; j < nc; j++ {
			unit[j] = 1
			e.BwdTrans(unit, phys)
			e.IProductWRTBase(phys, col)
			for i, v := range col {
				M.M.Set(i, j, v)
			}
			unit[j] = 0
		}
	case Laplacian:
		e.laplacian(M)
	case Helmholtz:
		var (
			lap  = e.matrix(MatrixKey{Type: Laplacian})
			mass = e.matrix(MatrixKey{Type: Mass})
		)
		for i := 0; i < nc; i++ {
			for j := 0; j < nc; j++ {
				M.M.Set(i, j, lap.At(i, j)+key.Lambda*mass.At(i, j))
			}
		}
	}
	M.SetReadOnly(fmt.Sprintf("%s element %d", key.Type, e.geom.ID()))
	e.mats[key] = M
	return M
}

// laplacian fills L_ij = sum_q w|J| grad phi_i . grad phi_j through the
// metric Gmat of the reference derivatives
func (e *TensorExpansion) laplacian(L utils.Matrix) {
	var (
		dim  = len(e.nm)
		nc   = e.NumCoeffs()
		nq   = e.NumPoints()
		unit = make([]float64, nc)
		ref  = make([][]float64, dim)
		col  = make([]float64, nc)
		tmp  = make([]float64, nc)
		v    = make([]float64, nq)
	)
	for j := 0; j < nc; j++ {
		unit[j] = 1
		for d := 0; d < dim; d++ {
			ops := append([]utils.Matrix(nil), e.B...)
			ops[d] = e.DB[d]
			ref[d], _ = utils.TensorApplyAll(ops, unit, e.nm)
		}
		unit[j] = 0
		for i := range col {
			col[i] = 0
		}
		for d := 0; d < dim; d++ {
			for q := 0; q < nq; q++ {
				var sum float64
				for dp := 0; dp < dim; dp++ {
					sum += e.gf.GmatAt(d, dp, q) * ref[dp][q]
				}
				v[q] = sum
			}
			e.IProductWRTDerivBase(d, v, tmp)
			for i := range col {
				col[i] += tmp[i]
			}
		}
		for i, val := range col {
			L.M.Set(i, j, val)
		}
	}
}

// buildFacets precomputes extraction operators and facet geometry
func (e *TensorExpansion) buildFacets() (err error) {
	var (
		nf   = e.shape.NumFacets()
		nqT  = e.NumPoints()
		dim  = len(e.nq)
		cdim = e.gf.CoordDim
		jac  = make([]float64, nqT)
		df   = make([][][]float64, dim)
	)
	for q := range jac {
		jac[q] = e.gf.JacAt(q)
	}
	for d := range df {
		df[d] = make([][]float64, cdim)
		for c := range df[d] {
			df[d][c] = make([]float64, nqT)
			for q := range df[d][c] {
				df[d][c][q] = e.gf.DerivFactorAt(d, c, q)
			}
		}
	}
	e.facets = make([]facetData, nf)
	for f := 0; f < nf; f++ {
		fd := &e.facets[f]
		fd.dir, fd.side = geometry.FacetDirSide(e.shape, f)
		var I utils.Matrix
		if I, err = e.reg.GetInterpolation(e.pts[fd.dir].Key,
			foundations.NewPointsKey(2, foundations.GaussLobattoLegendre)); err != nil {
			return
		}
		fd.extract = I.SliceRows(utils.Index{fd.side})
		x := float64(2*fd.side - 1)
		phi := e.bases[fd.dir].EvalAt(x)
		fd.phiEnd = utils.NewMatrix(len(phi), 1, phi)
		fd.w = []float64{1}
		for d := 0; d < dim; d++ {
			if d == fd.dir {
				continue
			}
			fd.dims = append(fd.dims, e.nq[d])
			w := make([]float64, 0, len(fd.w)*e.nq[d])
			for _, wd := range e.pts[d].W {
				for _, wf := range fd.w {
					w = append(w, wf*wd)
				}
			}
			fd.w = w
		}
		var (
			fj   = e.extractFacet(jac, f)
			n    = len(fj)
			sgn  = x
			comp = make([][]float64, cdim)
		)
		for c := range comp {
			comp[c] = e.extractFacet(df[fd.dir][c], f)
		}
		fd.jac = make([]float64, n)
		fd.normals = make([][]float64, cdim)
		for c := range fd.normals {
			fd.normals[c] = make([]float64, n)
		}
		for q := 0; q < n; q++ {
			var norm float64
			for c := range comp {
				norm += comp[c][q] * comp[c][q]
			}
			norm = math.Sqrt(norm)
			fd.jac[q] = fj[q] * norm
			for c := range comp {
				fd.normals[c][q] = sgn * comp[c][q] / norm
			}
		}
	}
	return
}

func (e *TensorExpansion) extractFacet(vol []float64, f int) []float64 {
	fd := &e.facets[f]
	out, _ := utils.TensorApply(fd.extract, vol, e.nq, fd.dir)
	return out
}

func (e *TensorExpansion) NumFacets() int { return len(e.facets) }

func (e *TensorExpansion) FacetNumPoints(f int) int { return utils.TensorSize(e.facets[f].dims) }

// FacetPointsDims are the point counts along the facet's tangential
// directions in ascending direction order
func (e *TensorExpansion) FacetPointsDims(f int) []int {
	return append([]int(nil), e.facets[f].dims...)
}

// FacetPhys interpolates volume values to the points of facet f
func (e *TensorExpansion) FacetPhys(phys []float64, f int) []float64 {
	e.checkLen("FacetPhys physical values", phys, e.NumPoints())
	return e.extractFacet(phys, f)
}

// FacetIProduct adds sum_q phi_i(q) w_q sJ_q vals_q over the points of facet f
func (e *TensorExpansion) FacetIProduct(f int, vals, out []float64) {
	fd := &e.facets[f]
	e.checkLen("FacetIProduct values", vals, len(fd.w))
	e.checkLen("FacetIProduct coefficients", out, e.NumCoeffs())
	var (
		tmp  = make([]float64, len(vals))
		dims = append([]int(nil), e.nq...)
		ops  = append([]utils.Matrix(nil), e.Bt...)
	)
	for q, v := range vals {
		tmp[q] = v * fd.w[q] * fd.jac[q]
	}
	dims[fd.dir] = 1
	ops[fd.dir] = fd.phiEnd
	res, _ := utils.TensorApplyAll(ops, tmp, dims)
	for i, v := range res {
		out[i] += v
	}
}

func (e *TensorExpansion) FacetNormals(f int) [][]float64 { return e.facets[f].normals }
func (e *TensorExpansion) FacetJac(f int) []float64       { return e.facets[f].jac }

// FacetWeights are the quadrature weights of facet f without the Jacobian
func (e *TensorExpansion) FacetWeights(f int) []float64 { return e.facets[f].w }
