package foundations

import (
	"math"
	"sync"
	"testing"

	"github.com/notargets/gohp/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nearSlice(t *testing.T, expected, actual []float64, tol float64) {
	t.Helper()
	require.Equal(t, len(expected), len(actual))
	for i := range expected {
		assert.InDeltaf(t, expected[i], actual[i], tol, "index %d", i)
	}
}

func TestJacobiGQ(t *testing.T) {
	// Two point Gauss-Legendre
	X, W := JacobiGQ(0, 0, 1)
	nearSlice(t, []float64{-1. / math.Sqrt(3), 1. / math.Sqrt(3)}, X, 1.e-14)
	nearSlice(t, []float64{1, 1}, W, 1.e-14)
	// Exact for degree 2N+1
	for N := 0; N < 10; N++ {
		X, W = JacobiGQ(0, 0, N)
		deg := 2*N + 1
		var sum float64
		for i := range X {
			sum += W[i] * utils.POW(X[i], deg-1)
		}
		expected := 2. / float64(deg)
		if (deg-1)%2 != 0 {
			expected = 0
		}
		assert.InDelta(t, expected, sum, 1.e-12)
	}
	X = JacobiGL(0, 0, 4)
	nearSlice(t, []float64{-1, -math.Sqrt(3. / 7.), 0, math.Sqrt(3. / 7.), 1}, X, 1.e-14)
}

func TestJacobiPolynomials(t *testing.T) {
	// P^{0,0}_2 = (3x^2-1)/2
	for _, x := range []float64{-1, -0.3, 0, 0.7, 1} {
		assert.InDelta(t, 0.5*(3*x*x-1), JacobiPoly(x, 0, 0, 2), 1.e-14)
		assert.InDelta(t, 3*x, JacobiPolyDeriv(x, 0, 0, 2), 1.e-14)
		// P^{1,1}_1 = 2x
		assert.InDelta(t, 2*x, JacobiPoly(x, 1, 1, 1), 1.e-14)
	}
	// Normalized polynomials are orthonormal under Gauss quadrature
	X, W := JacobiGQ(0, 0, 8)
	for n := 0; n < 5; n++ {
		for m := 0; m < 5; m++ {
			pn, pm := JacobiP(X, 0, 0, n), JacobiP(X, 0, 0, m)
			var sum float64
			for i := range X {
				sum += W[i] * pn[i] * pm[i]
			}
			expected := 0.
			if n == m {
				expected = 1.
			}
			assert.InDelta(t, expected, sum, 1.e-12)
		}
	}
}

func TestPointsDistributions(t *testing.T) {
	reg := NewRegistry()
	// Simpson
	{
		p, err := reg.GetPoints(NewPointsKey(3, PolyEvenlySpaced))
		require.NoError(t, err)
		nearSlice(t, []float64{-1, 0, 1}, p.Z, 1.e-15)
		nearSlice(t, []float64{1. / 3., 4. / 3., 1. / 3.}, p.W, 1.e-14)
	}
	// Single point distributions collapse to the midpoint rule
	for _, pt := range []PointsType{GaussLegendre, GaussLobattoLegendre, PolyEvenlySpaced, GaussRadauMLegendre} {
		p, err := reg.GetPoints(NewPointsKey(1, pt))
		require.NoError(t, err)
		assert.Equal(t, []float64{0}, p.Z)
		assert.Equal(t, []float64{2}, p.W)
	}
	// Gauss-Lobatto
	{
		p, err := reg.GetPoints(NewPointsKey(4, GaussLobattoLegendre))
		require.NoError(t, err)
		nearSlice(t, []float64{1. / 6., 5. / 6., 5. / 6., 1. / 6.}, p.W, 1.e-13)
	}
	// Gauss-Radau
	{
		p, err := reg.GetPoints(NewPointsKey(2, GaussRadauMLegendre))
		require.NoError(t, err)
		nearSlice(t, []float64{-1, 1. / 3.}, p.Z, 1.e-14)
		nearSlice(t, []float64{0.5, 1.5}, p.W, 1.e-13)
		p, err = reg.GetPoints(NewPointsKey(2, GaussRadauPLegendre))
		require.NoError(t, err)
		nearSlice(t, []float64{-1. / 3., 1}, p.Z, 1.e-14)
		nearSlice(t, []float64{1.5, 0.5}, p.W, 1.e-13)
		l, r := GaussRadauPLegendre.IncludesEndpoints()
		assert.False(t, l)
		assert.True(t, r)
	}
	// Every rule integrates a constant exactly
	for _, pt := range []PointsType{GaussLegendre, GaussLobattoLegendre, GaussRadauMLegendre,
		GaussRadauPLegendre, PolyEvenlySpaced, FourierEvenlySpaced} {
		for n := 2; n < 12; n += 2 {
			p, err := reg.GetPoints(NewPointsKey(n, pt))
			require.NoError(t, err)
			assert.InDelta(t, 2., utils.Sum(p.W), 1.e-12, "%s", p.Key)
		}
	}
}

func TestPointsDifferentiation(t *testing.T) {
	reg := NewRegistry()
	for _, pt := range []PointsType{GaussLegendre, GaussLobattoLegendre, GaussRadauMLegendre, PolyEvenlySpaced} {
		p, err := reg.GetPoints(NewPointsKey(6, pt))
		require.NoError(t, err)
		f := make([]float64, 6)
		df := make([]float64, 6)
		for i, x := range p.Z {
			f[i] = x*x*x*x - 2*x
			df[i] = 4*x*x*x - 2
		}
		nearSlice(t, df, p.D.MulVec(f), 1.e-10)
	}
	// Spectral differentiation of a resolved periodic function
	p, err := reg.GetPoints(NewPointsKey(8, FourierEvenlySpaced))
	require.NoError(t, err)
	f := make([]float64, 8)
	df := make([]float64, 8)
	for i, x := range p.Z {
		f[i] = math.Sin(2 * math.Pi * (x + 1))
		df[i] = 2 * math.Pi * math.Cos(2*math.Pi*(x+1))
	}
	nearSlice(t, df, p.D.MulVec(f), 1.e-11)
	// Cached matrices are protected
	assert.Panics(t, func() { p.D.Set(0, 0, 1) })
}

func TestRegistryIdentityCaching(t *testing.T) {
	reg := NewRegistry()
	k := NewPointsKey(5, GaussLobattoLegendre)
	p1, err := reg.GetPoints(k)
	require.NoError(t, err)
	p2, err := reg.GetPoints(NewPointsKey(5, GaussLobattoLegendre))
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	bk := NewBasisKey(ModifiedA, 4, k)
	b1, err := reg.GetBasis(bk)
	require.NoError(t, err)
	b2, err := reg.GetBasis(bk)
	require.NoError(t, err)
	assert.Same(t, b1, b2)
	assert.Same(t, p1, b1.Points)

	// Concurrent first use still yields one object
	reg = NewRegistry()
	var (
		wg   sync.WaitGroup
		got  = make([]*Points, 16)
		errs = make([]error, 16)
	)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], errs[i] = reg.GetPoints(k)
		}(i)
	}
	wg.Wait()
	for i := range got {
		require.NoError(t, errs[i])
		assert.Same(t, got[0], got[i])
	}
	nP, nB := reg.Len()
	assert.Equal(t, 1, nP)
	assert.Equal(t, 0, nB)
}

func TestInterpolation(t *testing.T) {
	reg := NewRegistry()
	from := NewPointsKey(5, GaussLegendre)
	to := NewPointsKey(7, GaussLobattoLegendre)
	ps, err := reg.GetOrCreate(from)
	require.NoError(t, err)
	pTo, err := reg.GetPoints(to)
	require.NoError(t, err)
	poly := func(x float64) float64 { return 3*x*x*x*x - x*x + 0.5 }
	dpoly := func(x float64) float64 { return 12*x*x*x - 2*x }
	f := make([]float64, 5)
	for i, x := range ps.Z {
		f[i] = poly(x)
	}
	I, err := ps.InterpolationTo(to)
	require.NoError(t, err)
	g := I.MulVec(f)
	for i, x := range pTo.Z {
		assert.InDelta(t, poly(x), g[i], 1.e-12)
	}
	D, err := reg.GetInterpolationDeriv(from, to)
	require.NoError(t, err)
	dg := D.MulVec(f)
	for i, x := range pTo.Z {
		assert.InDelta(t, dpoly(x), dg[i], 1.e-10)
	}
	// Round trip at the original nodes reproduces the nodal values
	back := make([]float64, 5)
	require.NoError(t, reg.Interpolate(to, g, from, back))
	nearSlice(t, f, back, 1.e-12)
	// Equal keys give the identity, memoized
	Id, err := reg.GetInterpolation(from, from)
	require.NoError(t, err)
	Id2, err := reg.GetInterpolation(from, from)
	require.NoError(t, err)
	assert.Equal(t, utils.NewIdentity(5).Data(), Id.Data())
	assert.Same(t, &Id.Data()[0], &Id2.Data()[0])
	// Scalar forms agree with the matrix
	for j := range ps.Z {
		assert.InDelta(t, I.At(2, j), LagrangePoly(pTo.Z[2], ps.Z, j), 1.e-15)
	}
	assert.InDelta(t, poly(0.3), LagrangeInterpolant(0.3, ps.Z, f), 1.e-12)
}

func TestBasisValidation(t *testing.T) {
	gll := NewPointsKey(6, GaussLobattoLegendre)
	fourier := NewPointsKey(8, FourierEvenlySpaced)
	bad := []BasisKey{
		NewBasisKey(ModifiedA, 0, gll),
		NewBasisKey(Fourier, 3, fourier),
		NewBasisKey(Fourier, 4, gll),
		NewBasisKey(FourierSingleMode, 4, fourier),
		NewBasisKey(FourierHalfModeRe, 2, fourier),
		NewBasisKey(GLLLagrange, 5, gll),
		NewBasisKey(ModifiedA, 4, fourier),
		NewBasisKey(ModifiedA, 4, NewPointsKey(0, GaussLegendre)),
	}
	reg := NewRegistry()
	for _, k := range bad {
		_, err := reg.GetBasis(k)
		assert.ErrorIs(t, err, utils.ErrConfig, "%s", k)
	}
	good := []BasisKey{
		NewBasisKey(Fourier, 4, fourier),
		NewBasisKey(FourierSingleMode, 2, fourier),
		NewBasisKey(FourierHalfModeIm, 1, fourier),
		NewBasisKey(GLLLagrange, 6, gll),
		NewBasisKey(GLLLagrange, 4, NewPointsKey(6, GaussLegendre)),
		NewBasisKey(Chebyshev, 5, gll),
	}
	for _, k := range good {
		_, err := reg.GetBasis(k)
		assert.NoError(t, err, "%s", k)
	}
	_, err := ParseBasisType("modifieda")
	assert.NoError(t, err)
	_, err = ParsePointsType("nonsense")
	assert.ErrorIs(t, err, utils.ErrConfig)
}

func TestBasisPartitionOfUnity(t *testing.T) {
	reg := NewRegistry()
	pk := NewPointsKey(7, GaussLegendre)
	for _, bt := range []BasisType{OrthoA, ModifiedA, GaussLagrange, Legendre, Chebyshev, Monomial} {
		nm := 5
		if bt == GaussLagrange {
			nm = 7
		}
		b, err := reg.GetBasis(NewBasisKey(bt, nm, pk))
		require.NoError(t, err)
		var (
			nq = b.NumPoints()
			W  = b.Points.W
			M  = utils.NewMatrix(nm, nm)
			rh = make([]float64, nm)
		)
		for i := 0; i < nm; i++ {
			for q := 0; q < nq; q++ {
				rh[i] += b.B.At(q, i) * W[q]
			}
			for j := 0; j < nm; j++ {
				var sum float64
				for q := 0; q < nq; q++ {
					sum += b.B.At(q, i) * W[q] * b.B.At(q, j)
				}
				M.Set(i, j, sum)
			}
		}
		c, err := M.LUSolve(rh)
		require.NoError(t, err, "%s", bt)
		u := b.B.MulVec(c)
		nearSlice(t, utils.ConstArray(nq, 1), u, 1.e-10)
	}
}

func TestBasisDerivativesAndReversal(t *testing.T) {
	reg := NewRegistry()
	pk := NewPointsKey(6, GaussLobattoLegendre)
	for _, bt := range []BasisType{ModifiedA, GLLLagrange, OrthoA, Legendre, Chebyshev, Monomial} {
		b, err := reg.GetBasis(NewBasisKey(bt, 6, pk))
		require.NoError(t, err)
		// Analytic derivative against the collocation derivative of the values
		for p := 0; p < 6; p++ {
			col := b.B.Col(p)
			nearSlice(t, b.DB.Col(p), b.Points.D.MulVec(col), 1.e-9)
		}
		for _, j := range b.InteriorModes() {
			jp, sign := b.ReverseInterior(j)
			for _, x := range []float64{-0.8, -0.1, 0.35, 0.9} {
				assert.InDelta(t, b.EvalAt(-x)[j], sign*b.EvalAt(x)[jp], 1.e-13, "%s mode %d", bt, j)
			}
		}
	}
	// ModifiedA vertex modes are the linear hat functions, interiors vanish at the ends
	b, err := reg.GetBasis(NewBasisKey(ModifiedA, 5, pk))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, b.VertexModes())
	assert.Equal(t, []int{2, 3, 4}, b.InteriorModes())
	for _, j := range b.InteriorModes() {
		assert.InDelta(t, 0., b.EvalAt(-1)[j], 1.e-15)
		assert.InDelta(t, 0., b.EvalAt(1)[j], 1.e-15)
	}
	_, sign := b.ReverseInterior(3)
	assert.Equal(t, -1., sign)
	g, err := reg.GetBasis(NewBasisKey(GLLLagrange, 6, pk))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 5}, g.VertexModes())
	jp, sign := g.ReverseInterior(1)
	assert.Equal(t, 4, jp)
	assert.Equal(t, 1., sign)
}

func TestFourierBasis(t *testing.T) {
	reg := NewRegistry()
	b, err := reg.GetBasis(NewBasisKey(Fourier, 6, NewPointsKey(6, FourierEvenlySpaced)))
	require.NoError(t, err)
	// Discrete orthogonality on the Fourier points
	W := b.Points.W
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			var sum float64
			for q := range W {
				sum += W[q] * b.B.At(q, i) * b.B.At(q, j)
			}
			if i != j {
				assert.InDelta(t, 0., sum, 1.e-12, "modes %d,%d", i, j)
			} else {
				assert.True(t, sum > 0.5)
			}
		}
	}
	for p := 0; p < 6; p++ {
		nearSlice(t, b.DB.Col(p), b.Points.D.MulVec(b.B.Col(p)), 1.e-9)
	}
}
