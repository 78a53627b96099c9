package linsys

import (
	"context"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gohp/assembly"
	"github.com/notargets/gohp/expansion"
	"github.com/notargets/gohp/foundations"
	"github.com/notargets/gohp/geometry"
	"github.com/notargets/gohp/mesh"
	"github.com/notargets/gohp/utils"
)

type field struct {
	am   *assembly.Map
	exps []expansion.Expansion
	reg  *foundations.Registry
}

func (f *field) AssemblyMap() *assembly.Map        { return f.am }
func (f *field) Expansions() []expansion.Expansion { return f.exps }

var allSolnTypes = []SolnType{DirectFull, IterativeFull, DirectStaticCond, IterativeStaticCond,
	DirectMultiLevelStaticCond}

func newField(t *testing.T, n int, dirichlet bool, bt foundations.BasisType, nm int) *field {
	t.Helper()
	m, err := mesh.NewBoxMesh2D(geometry.Vec3{0, 0}, geometry.Vec3{1, 1}, n, n)
	require.NoError(t, err)
	if dirichlet {
		for _, name := range []string{"xmin", "xmax", "ymin", "ymax"} {
			require.NoError(t, m.SetKind(name, utils.BCDirichlet))
		}
	}
	f := &field{reg: foundations.NewRegistry()}
	geoms, err := m.Geometries()
	require.NoError(t, err)
	pk := foundations.NewPointsKey(nm+1, foundations.GaussLegendre)
	if bt == foundations.GLLLagrange {
		pk = foundations.NewPointsKey(nm, foundations.GaussLobattoLegendre)
	}
	bk := foundations.NewBasisKey(bt, nm, pk)
	for _, g := range geoms {
		gf, err := geometry.Compute(f.reg, g, []foundations.PointsKey{pk, pk})
		require.NoError(t, err)
		e, err := expansion.New(f.reg, g, gf, []foundations.BasisKey{bk, bk})
		require.NoError(t, err)
		f.exps = append(f.exps, e)
	}
	f.am, err = assembly.NewContinuousMap(context.Background(), m, f.exps, nil)
	require.NoError(t, err)
	return f
}

// project returns the global coefficients and the assembled inner products
// of the functions u and src
func (f *field) project(t *testing.T, u, src func(x, y float64) float64) (coeffs, rhs []float64) {
	var (
		am   = f.am
		loc  = make([]float64, am.NumLocalCoeffs())
		locF = make([]float64, am.NumLocalCoeffs())
	)
	for i, e := range f.exps {
		X, err := geometry.PhysCoords(f.reg, e.Geom(), e.Factors().Keys)
		require.NoError(t, err)
		pu, pf := make([]float64, e.NumPoints()), make([]float64, e.NumPoints())
		for q := range pu {
			pu[q], pf[q] = u(X[0][q], X[1][q]), src(X[0][q], X[1][q])
		}
		lo, hi := am.ElmtOffset(i), am.ElmtOffset(i+1)
		require.NoError(t, e.FwdTrans(pu, loc[lo:hi]))
		e.IProductWRTBase(pf, locF[lo:hi])
	}
	coeffs = make([]float64, am.NumGlobalCoeffs())
	rhs = make([]float64, am.NumGlobalCoeffs())
	am.LocalToGlobal(loc, coeffs)
	am.Assemble(locF, rhs)
	return
}

func TestDirichletHelmholtz(t *testing.T) {
	const lambda = 2.
	var (
		f   = newField(t, 4, true, foundations.ModifiedA, 4)
		ctx = context.Background()
		u   = func(x, y float64) float64 { return x*x + y + x*y }
		src = func(x, y float64) float64 { return -2 + lambda*u(x, y) }
	)
	exact, rhs := f.project(t, u, src)
	nDir := f.am.NumGlobalDirBndCoeffs()
	require.Greater(t, nDir, 0)
	for _, st := range allSolnTypes {
		sys, err := New(Key{Matrix: expansion.Helmholtz, Lambda: lambda, SolnType: st}, f,
			&Options{Precon: PreconDiagonal, Tolerance: 1.e-12})
		require.NoError(t, err, st.String())
		assert.Equal(t, st, sys.Key().SolnType)
		sol := make([]float64, len(rhs))
		copy(sol, exact[:nDir])
		require.NoError(t, sys.Solve(ctx, rhs, sol), st.String())
		assert.InDeltaSlicef(t, exact, sol, 1.e-7, "%s", st)
	}
}

func TestConsistency(t *testing.T) {
	// No Dirichlet boundary: the Helmholtz operator is definite on its own
	var (
		f     = newField(t, 4, false, foundations.GLLLagrange, 3)
		ctx   = context.Background()
		want  = make([]float64, f.am.NumGlobalCoeffs())
		key   = Key{Matrix: expansion.Helmholtz, Lambda: 1}
		first System
	)
	for i := range want {
		want[i] = math.Cos(0.9 * float64(i))
	}
	for _, st := range allSolnTypes {
		key.SolnType = st
		sys, err := New(key, f, &Options{Tolerance: 1.e-12, MaxLevels: 3})
		require.NoError(t, err)
		if first == nil {
			first = sys
		}
		rhs := first.(*fullSystem).apply(want)
		sol := make([]float64, len(rhs))
		require.NoError(t, sys.Solve(ctx, rhs, sol))
		assert.InDeltaSlicef(t, want, sol, 1.e-7, "%s", st)
	}
	cs, err := New(Key{Matrix: expansion.Helmholtz, Lambda: 1, SolnType: DirectMultiLevelStaticCond}, f, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, cs.(*condensedSystem).levels)
}

func TestFullyDirichlet(t *testing.T) {
	var (
		f   = newField(t, 1, true, foundations.ModifiedA, 5)
		ctx = context.Background()
		u   = func(x, y float64) float64 { return x*x*y + 3*y*y }
		src = func(x, y float64) float64 { return -2*y - 6 + u(x, y) }
	)
	require.True(t, f.am.SingularSystem())
	exact, rhs := f.project(t, u, src)
	nDir := f.am.NumGlobalDirBndCoeffs()
	for _, st := range []SolnType{DirectFull, DirectStaticCond, IterativeStaticCond} {
		sys, err := New(Key{Matrix: expansion.Helmholtz, Lambda: 1, SolnType: st}, f, nil)
		require.NoError(t, err)
		sol := make([]float64, len(rhs))
		copy(sol, exact[:nDir])
		require.NoError(t, sys.Solve(ctx, rhs, sol))
		assert.InDeltaSlicef(t, exact, sol, 1.e-9, "%s", st)
	}
}

func TestMetricsAndFailures(t *testing.T) {
	var (
		f   = newField(t, 3, true, foundations.ModifiedA, 4)
		reg = prometheus.NewRegistry()
		m   = NewMetrics(reg)
		ctx = context.Background()
		rhs = make([]float64, f.am.NumGlobalCoeffs())
		sol = make([]float64, f.am.NumGlobalCoeffs())
	)
	for i := range rhs {
		rhs[i] = 1
	}
	sys, err := New(Key{Matrix: expansion.Helmholtz, Lambda: 1, SolnType: IterativeFull}, f,
		&Options{Metrics: m})
	require.NoError(t, err)
	require.NoError(t, sys.Solve(ctx, rhs, sol))
	require.NoError(t, sys.Solve(ctx, rhs, sol))
	assert.Equal(t, 2., testutil.ToFloat64(m.Solves.WithLabelValues("IterativeFull")))
	assert.Greater(t, testutil.ToFloat64(m.Iterations.WithLabelValues("IterativeFull")), 0.)
	assert.Zero(t, testutil.ToFloat64(m.Failures.WithLabelValues("IterativeFull")))

	sys, err = New(Key{Matrix: expansion.Helmholtz, Lambda: 1, SolnType: IterativeStaticCond}, f,
		&Options{Metrics: m, MaxIterations: 1, Tolerance: 1.e-14})
	require.NoError(t, err)
	assert.ErrorIs(t, sys.Solve(ctx, rhs, sol), utils.ErrNotConverged)
	assert.Equal(t, 1., testutil.ToFloat64(m.Failures.WithLabelValues("IterativeStaticCond")))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	sys, err = New(Key{Matrix: expansion.Mass, SolnType: IterativeFull}, f, &Options{Metrics: m})
	require.NoError(t, err)
	assert.ErrorIs(t, sys.Solve(cctx, rhs, sol), context.Canceled)

	assert.Panics(t, func() { _ = sys.Solve(ctx, rhs[1:], sol) })

	_, err = New(Key{Matrix: expansion.Mass, SolnType: SolnType(9)}, f, nil)
	assert.ErrorIs(t, err, utils.ErrUnsupported)
	_, err = New(Key{Matrix: expansion.MatrixType(9)}, f, nil)
	assert.ErrorIs(t, err, utils.ErrUnsupported)
	_, err = New(Key{Matrix: expansion.Mass, SolnType: IterativeFull}, f, &Options{Precon: PreconType(7)})
	assert.ErrorIs(t, err, utils.ErrUnsupported)
}
