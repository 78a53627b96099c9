package expansion

import (
	"math"
	"testing"

	"github.com/notargets/gohp/foundations"
	"github.com/notargets/gohp/geometry"
	"github.com/notargets/gohp/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modKeys(dim, nm int) (keys []foundations.BasisKey) {
	for d := 0; d < dim; d++ {
		keys = append(keys, foundations.NewBasisKey(foundations.ModifiedA, nm,
			foundations.NewPointsKey(nm+1, foundations.GaussLegendre)))
	}
	return
}

func gllKeys(dim, nm int) (keys []foundations.BasisKey) {
	for d := 0; d < dim; d++ {
		keys = append(keys, foundations.NewBasisKey(foundations.GLLLagrange, nm,
			foundations.NewPointsKey(nm, foundations.GaussLobattoLegendre)))
	}
	return
}

func newExp(t *testing.T, reg *foundations.Registry, g geometry.Geometry,
	keys []foundations.BasisKey) *TensorExpansion {
	t.Helper()
	var pk []foundations.PointsKey
	for _, k := range keys {
		pk = append(pk, k.PointsKey)
	}
	gf, err := geometry.Compute(reg, g, pk)
	require.NoError(t, err)
	e, err := New(reg, g, gf, keys)
	require.NoError(t, err)
	return e
}

func rectangle(t *testing.T) geometry.Geometry {
	g, err := geometry.NewQuadGeom(0, 2, [4]geometry.Vec3{{0, 0}, {2, 0}, {2, 1}, {0, 1}})
	require.NoError(t, err)
	return g
}

// unity returns the coefficients of the constant 1 for a C0 expansion.
// Nodal bases hold 1 at every node, modal ones only at the vertex modes.
func unity(e *TensorExpansion) []float64 {
	u := make([]float64, e.NumCoeffs())
	if e.Basis(0).Key.Type.IsNodal() {
		return utils.ConstArray(len(u), 1)
	}
	for v := 0; v < e.Shape().NumVerts(); v++ {
		u[e.VertexMap(v)] = 1
	}
	return u
}

func dot(a, b []float64) (s float64) {
	for i := range a {
		s += a[i] * b[i]
	}
	return
}

func TestTransformsAndIntegrals(t *testing.T) {
	reg := foundations.NewRegistry()
	e := newExp(t, reg, rectangle(t), modKeys(2, 4))
	assert.Equal(t, 16, e.NumCoeffs())
	assert.Equal(t, 25, e.NumPoints())

	X, err := geometry.PhysCoords(reg, e.Geom(), e.Factors().Keys)
	require.NoError(t, err)
	f := make([]float64, e.NumPoints())
	for q := range f {
		x, y := X[0][q], X[1][q]
		f[q] = 1 + x + x*y + y*y*y
	}
	c := make([]float64, e.NumCoeffs())
	require.NoError(t, e.FwdTrans(f, c))
	back := make([]float64, e.NumPoints())
	e.BwdTrans(c, back)
	for q := range f {
		assert.InDelta(t, f[q], back[q], 1.e-12)
	}

	one := make([]float64, e.NumPoints())
	e.BwdTrans(unity(e), one)
	for _, v := range one {
		assert.InDelta(t, 1., v, 1.e-14)
	}
	assert.InDelta(t, 2., e.Integral(one), 1.e-13)
	// Integral of 1 + x + xy + y^3 over [0,2]x[0,1]
	assert.InDelta(t, 2.+2.+1.+0.5, e.Integral(f), 1.e-12)

	lin := make([]float64, e.NumPoints())
	for q := range lin {
		lin[q] = X[0][q] + 2*X[1][q]
	}
	d := [][]float64{make([]float64, len(lin)), make([]float64, len(lin))}
	e.PhysDeriv(lin, d)
	for q := range lin {
		assert.InDelta(t, 1., d[0][q], 1.e-12)
		assert.InDelta(t, 2., d[1][q], 1.e-12)
	}
	assert.Panics(t, func() { e.BwdTrans(c[:3], back) })
}

func TestElementalMatrices(t *testing.T) {
	reg := foundations.NewRegistry()
	g, err := geometry.NewQuadGeom(3, 2, [4]geometry.Vec3{{0, 0}, {2, 0}, {2.5, 1.5}, {0, 1}})
	require.NoError(t, err)
	for _, keys := range [][]foundations.BasisKey{modKeys(2, 4), gllKeys(2, 4)} {
		e := newExp(t, reg, g, keys)
		M, err := e.GetMatrix(MatrixKey{Type: Mass})
		require.NoError(t, err)
		assert.True(t, M.IsSymmetric(1.e-13))
		assert.True(t, M.IsReadOnly())
		u := unity(e)
		area := dot(u, M.MulVec(u))
		one := make([]float64, e.NumPoints())
		for q := range one {
			one[q] = 1
		}
		assert.InDelta(t, e.Integral(one), area, 1.e-12)

		L, err := e.GetMatrix(MatrixKey{Type: Laplacian, Lambda: 7})
		require.NoError(t, err)
		assert.True(t, L.IsSymmetric(1.e-12))
		for _, v := range L.MulVec(u) {
			assert.InDelta(t, 0., v, 1.e-12)
		}
		L2, _ := e.GetMatrix(MatrixKey{Type: Laplacian})
		assert.Same(t, L.M, L2.M)

		H, err := e.GetMatrix(MatrixKey{Type: Helmholtz, Lambda: 3})
		require.NoError(t, err)
		assert.InDelta(t, 3*area, dot(u, H.MulVec(u)), 1.e-11)
		assert.InDelta(t, L.At(1, 2)+3*M.At(1, 2), H.At(1, 2), 1.e-14)
	}
	_, err = ParseMatrixType("Bogus")
	assert.ErrorIs(t, err, utils.ErrConfig)
	mt, err := ParseMatrixType("Helmholtz")
	require.NoError(t, err)
	assert.Equal(t, Helmholtz, mt)
}

func TestModeMaps(t *testing.T) {
	reg := foundations.NewRegistry()
	e := newExp(t, reg, rectangle(t), modKeys(2, 4))
	assert.Len(t, e.BoundaryMap(), 12)
	assert.Equal(t, []int{10, 11, 14, 15}, e.InteriorMap())
	assert.Equal(t, []int{0, 1, 5, 4}, []int{e.VertexMap(0), e.VertexMap(1), e.VertexMap(2), e.VertexMap(3)})

	modes, signs := e.EdgeInteriorMap(0, geometry.Forwards)
	assert.Equal(t, []int{2, 3}, modes)
	assert.Equal(t, []float64{1, 1}, signs)
	modes, signs = e.EdgeInteriorMap(0, geometry.Backwards)
	assert.Equal(t, []int{2, 3}, modes)
	assert.Equal(t, []float64{1, -1}, signs)
	modes, _ = e.EdgeInteriorMap(1, geometry.Forwards)
	assert.Equal(t, []int{9, 13}, modes)

	// Nodal modes reverse their order instead
	eg := newExp(t, reg, rectangle(t), gllKeys(2, 4))
	modes, signs = eg.EdgeInteriorMap(0, geometry.Backwards)
	assert.Equal(t, []int{2, 1}, modes)
	assert.Equal(t, []float64{1, 1}, signs)
	assert.Equal(t, []int{0, 3, 15, 12}, []int{eg.VertexMap(0), eg.VertexMap(1), eg.VertexMap(2), eg.VertexMap(3)})

	// Reversed edge modes reproduce the edge trace seen from the other side
	phys := make([]float64, e.NumPoints())
	coeffs := make([]float64, e.NumCoeffs())
	fwd, _ := e.EdgeInteriorMap(0, geometry.Forwards)
	bwd, bs := e.EdgeInteriorMap(0, geometry.Backwards)
	coeffs[fwd[1]] = 1
	e.BwdTrans(coeffs, phys)
	tr := e.FacetPhys(phys, 0)
	utils.Zero(coeffs)
	coeffs[bwd[1]] = bs[1]
	e.BwdTrans(coeffs, phys)
	rev := e.FacetPhys(phys, 0)
	for i := range tr {
		assert.InDelta(t, tr[i], rev[len(rev)-1-i], 1.e-13)
	}

	sg, err := geometry.NewSegGeom(0, 1, geometry.Vec3{0}, geometry.Vec3{1})
	require.NoError(t, err)
	es := newExp(t, reg, sg, modKeys(1, 5))
	assert.Equal(t, []int{0, 1}, es.BoundaryMap())
	assert.Equal(t, []int{2, 3, 4}, es.InteriorMap())
	assert.Panics(t, func() { es.EdgeInteriorMap(0, geometry.Forwards) })

	ortho := []foundations.BasisKey{foundations.NewBasisKey(foundations.OrthoA, 3,
		foundations.NewPointsKey(4, foundations.GaussLegendre))}
	eo := newExp(t, reg, sg, ortho)
	assert.False(t, eo.IsC0())
	assert.Nil(t, eo.BoundaryMap())
	assert.Equal(t, []int{0, 1, 2}, eo.InteriorMap())
	assert.Panics(t, func() { eo.VertexMap(0) })
}

func TestHexFaceMaps(t *testing.T) {
	reg := foundations.NewRegistry()
	g, err := geometry.NewHexGeom(0, [8]geometry.Vec3{
		{0, 0, 0}, {2, 0, 0}, {2, 2, 0}, {0, 2, 0},
		{0, 0, 2}, {2, 0, 2}, {2, 2, 2}, {0, 2, 2}})
	require.NoError(t, err)
	eg := newExp(t, reg, g, gllKeys(3, 4))
	assert.Len(t, eg.BoundaryMap(), 56)
	assert.Len(t, eg.InteriorMap(), 8)

	modes, _ := eg.FaceInteriorMap(0, 0)
	assert.Equal(t, []int{5, 6, 9, 10}, modes)
	modes, _ = eg.FaceInteriorMap(0, geometry.NewFaceOrient(true, false, false))
	assert.Equal(t, []int{5, 9, 6, 10}, modes)
	modes, signs := eg.FaceInteriorMap(0, geometry.NewFaceOrient(false, true, false))
	assert.Equal(t, []int{6, 5, 10, 9}, modes)
	assert.Equal(t, []float64{1, 1, 1, 1}, signs)
	for o := geometry.FaceOrient(0); o < 8; o++ {
		modes, _ = eg.FaceInteriorMap(5, o)
		ref, _ := eg.FaceInteriorMap(5, 0)
		assert.ElementsMatch(t, ref, modes, "orientation %v", o)
	}

	em := newExp(t, reg, g, modKeys(3, 4))
	modes, signs = em.FaceInteriorMap(0, geometry.NewFaceOrient(false, true, false))
	assert.Equal(t, []int{10, 11, 14, 15}, modes)
	assert.Equal(t, []float64{1, -1, 1, -1}, signs)
	_, signs = em.FaceInteriorMap(0, geometry.NewFaceOrient(true, true, true))
	assert.Equal(t, []float64{1, -1, -1, 1}, signs)

	one := make([]float64, em.NumPoints())
	em.BwdTrans(unity(em), one)
	assert.InDelta(t, 8., em.Integral(one), 1.e-12)
	assert.Equal(t, 6, em.NumFacets())
	assert.Equal(t, []int{5, 5}, em.FacetPointsDims(2))
	n := em.FacetNormals(2)
	for q := 0; q < em.FacetNumPoints(2); q++ {
		assert.InDelta(t, 1., n[0][q], 1.e-14)
		assert.InDelta(t, 0., n[1][q], 1.e-14)
	}
	out := make([]float64, em.NumCoeffs())
	em.FacetIProduct(5, utils.ConstArray(em.FacetNumPoints(5), 1), out)
	assert.InDelta(t, 4., dot(unity(em), out), 1.e-12)
}

func TestFacets(t *testing.T) {
	reg := foundations.NewRegistry()
	e := newExp(t, reg, rectangle(t), modKeys(2, 4))
	assert.Equal(t, 4, e.NumFacets())
	expected := [][2]float64{{0, -1}, {1, 0}, {0, 1}, {-1, 0}}
	length := []float64{2, 1, 2, 1}
	u := unity(e)
	for f := 0; f < 4; f++ {
		n := e.FacetNormals(f)
		var sum float64
		for q, w := range e.FacetWeights(f) {
			assert.InDelta(t, expected[f][0], n[0][q], 1.e-14)
			assert.InDelta(t, expected[f][1], n[1][q], 1.e-14)
			sum += w * e.FacetJac(f)[q]
		}
		assert.InDelta(t, length[f], sum, 1.e-13)
		out := make([]float64, e.NumCoeffs())
		e.FacetIProduct(f, utils.ConstArray(e.FacetNumPoints(f), 1), out)
		assert.InDelta(t, length[f], dot(u, out), 1.e-13)
		// Accumulates
		e.FacetIProduct(f, utils.ConstArray(e.FacetNumPoints(f), 1), out)
		assert.InDelta(t, 2*length[f], dot(u, out), 1.e-13)
	}

	X, err := geometry.PhysCoords(reg, e.Geom(), e.Factors().Keys)
	require.NoError(t, err)
	p, err := reg.GetPoints(e.Factors().Keys[0])
	require.NoError(t, err)
	tr := e.FacetPhys(X[0], 0)
	require.Len(t, tr, 5)
	for i, z := range p.Z {
		assert.InDelta(t, 1+z, tr[i], 1.e-13)
	}
	for _, y := range e.FacetPhys(X[1], 2) {
		assert.InDelta(t, 1., y, 1.e-13)
	}

	// A curved edge normal stays unit length
	g, err := geometry.NewQuadGeom(1, 2, [4]geometry.Vec3{{0, 0}, {1, 0}, {1, 1}, {0, 1}})
	require.NoError(t, err)
	require.NoError(t, g.SetEdgeCurve(1, []geometry.Vec3{{1, 0}, {1.2, 0.5}, {1, 1}}))
	ec := newExp(t, reg, g, modKeys(2, 5))
	n := ec.FacetNormals(1)
	for q := range n[0] {
		assert.InDelta(t, 1., math.Hypot(n[0][q], n[1][q]), 1.e-13)
	}
	// x = 1 + 0.8y(1-y) leans outward then back
	assert.Less(t, n[1][0], 0.)
	assert.Greater(t, n[1][len(n[1])-1], 0.)
}

func TestUnsupported(t *testing.T) {
	reg := foundations.NewRegistry()
	tri, err := geometry.NewTriGeom(0, 2, [3]geometry.Vec3{{0, 0}, {1, 0}, {0, 1}})
	require.NoError(t, err)
	_, err = New(reg, tri, nil, modKeys(2, 3))
	assert.ErrorIs(t, err, utils.ErrUnsupported)

	g := rectangle(t)
	gf, err := geometry.Compute(reg, g, []foundations.PointsKey{
		foundations.NewPointsKey(4, foundations.GaussLegendre),
		foundations.NewPointsKey(4, foundations.GaussLegendre)})
	require.NoError(t, err)
	_, err = New(reg, g, gf, modKeys(2, 4))
	assert.ErrorIs(t, err, utils.ErrConfig)
	_, err = New(reg, g, gf, modKeys(1, 3))
	assert.ErrorIs(t, err, utils.ErrConfig)
	e := newExp(t, reg, g, modKeys(2, 3))
	_, err = e.GetMatrix(MatrixKey{Type: MatrixType(9)})
	assert.ErrorIs(t, err, utils.ErrUnsupported)
}
