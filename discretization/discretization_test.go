package discretization

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gohp/assembly"
	"github.com/notargets/gohp/expansion"
	"github.com/notargets/gohp/foundations"
	"github.com/notargets/gohp/geometry"
	"github.com/notargets/gohp/linsys"
	"github.com/notargets/gohp/mesh"
	"github.com/notargets/gohp/utils"
)

func dirichletBox(t *testing.T, n int) *mesh.Mesh {
	m, err := mesh.NewBoxMesh2D(geometry.Vec3{0, 0}, geometry.Vec3{1, 1}, n, n)
	require.NoError(t, err)
	for _, name := range []string{"xmin", "xmax", "ymin", "ymax"} {
		require.NoError(t, m.SetKind(name, utils.BCDirichlet))
	}
	return m
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	m := dirichletBox(t, 3)
	f, err := New(ctx, m, &Config{Basis: foundations.ModifiedA, NumModes: 4, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 9*25, f.NumPhys())
	assert.Equal(t, 9*16, f.NumLocalCoeffs())
	require.NotNil(t, f.AssemblyMap())
	assert.Nil(t, f.Trace())
	// Translated copies of one square share their factors
	assert.Equal(t, 9, f.Arena.Len())
	assert.Equal(t, 1, f.Arena.NumUnique())
	assert.Empty(t, f.Report.Invalid)

	one, err := f.Evaluate(func(geometry.Vec3) float64 { return 1 })
	require.NoError(t, err)
	assert.InDelta(t, 1., f.Integral(one), 1.e-12)

	// Projection and back reproduces a polynomial in the space
	u := func(x geometry.Vec3) float64 { return x[0]*x[0]*x[1] - 2*x[1] }
	phys, err := f.Evaluate(u)
	require.NoError(t, err)
	loc := make([]float64, f.NumLocalCoeffs())
	require.NoError(t, f.FwdTrans(phys, loc))
	back := make([]float64, f.NumPhys())
	f.BwdTrans(loc, back)
	assert.InDeltaSlice(t, phys, back, 1.e-12)
	l2, err := f.L2Error(back, u)
	require.NoError(t, err)
	assert.Less(t, l2, 1.e-12)

	assert.Panics(t, func() { f.BwdTrans(loc[1:], back) })
	_, err = New(ctx, m, &Config{Basis: foundations.ModifiedA})
	assert.ErrorIs(t, err, utils.ErrConfig)
}

func TestHelmholtzSolve(t *testing.T) {
	var (
		ctx    = context.Background()
		lambda = 3.
		u      = func(x geometry.Vec3) float64 { return x[0]*x[0] + x[1] + x[0]*x[1] }
		src    = func(x geometry.Vec3) float64 { return -2 + lambda*u(x) }
	)
	for _, st := range []assembly.SolnType{assembly.DirectStaticCond, assembly.IterativeFull,
		assembly.DirectMultiLevelStaticCond} {
		f, err := New(ctx, dirichletBox(t, 4), &Config{Basis: foundations.ModifiedA, NumModes: 4,
			SolnType: st, Precon: assembly.PreconDiagonal, RCM: true})
		require.NoError(t, err)
		glob, err := f.HelmholtzSolve(ctx, lambda, src, u, &linsys.Options{Precon: assembly.PreconDiagonal,
			Tolerance: 1.e-12})
		require.NoError(t, err, st.String())
		l2, err := f.L2Error(f.GlobalToPhys(glob), u)
		require.NoError(t, err)
		assert.Lessf(t, l2, 1.e-8, "%s", st)
	}
}

func TestDirichletValues(t *testing.T) {
	ctx := context.Background()
	f, err := New(ctx, dirichletBox(t, 2), &Config{Basis: foundations.ModifiedA, NumModes: 4})
	require.NoError(t, err)
	g := func(x geometry.Vec3) float64 { return x[0]*x[0]*x[1] + x[0] }
	vals, err := f.DirichletValues(g)
	require.NoError(t, err)
	require.Len(t, vals, f.AssemblyMap().NumGlobalDirBndCoeffs())
	// Every element reproduces g, so all contributions agree
	phys, err := f.Evaluate(g)
	require.NoError(t, err)
	loc := make([]float64, f.NumLocalCoeffs())
	require.NoError(t, f.FwdTrans(phys, loc))
	var (
		lmap = f.AssemblyMap().LocalToGlobalMap()
		sign = f.AssemblyMap().LocalToGlobalSign()
	)
	for i, gid := range lmap {
		if gid < len(vals) {
			assert.InDelta(t, sign[i]*loc[i], vals[gid], 1.e-12)
		}
	}
}

func TestDiscontinuous(t *testing.T) {
	ctx := context.Background()
	m, err := mesh.NewBoxMesh2D(geometry.Vec3{0, 0}, geometry.Vec3{1, 1}, 2, 2)
	require.NoError(t, err)
	f, err := New(ctx, m, &Config{Basis: foundations.OrthoA, NumModes: 3, Discontinuous: true})
	require.NoError(t, err)
	assert.Nil(t, f.AssemblyMap())
	require.NotNil(t, f.Trace())
	assert.Equal(t, 12, f.Trace().NumTraces())
	_, err = f.HelmholtzSolve(ctx, 1, nil, nil, nil)
	assert.ErrorIs(t, err, utils.ErrConfig)
}

func TestInvalidGeometry(t *testing.T) {
	// The vertex order makes a bow tie
	verts := []geometry.Vec3{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	m, err := mesh.Build(2, 2, verts, []geometry.Shape{geometry.Quadrilateral}, [][]int{{0, 1, 2, 3}})
	require.NoError(t, err)
	cfg := &Config{Basis: foundations.ModifiedA, NumModes: 3}
	_, err = New(context.Background(), m, cfg)
	assert.ErrorIs(t, err, utils.ErrInvalidGeometry)
	cfg.AllowInvalid = true
	f, err := New(context.Background(), m, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, f.Report.Invalid)
}

type allMatOps struct{ ops []string }

func (p *allMatOps) DoMatOp(shape, op string, numModes []int) bool {
	p.ops = append(p.ops, shape+"/"+op)
	return true
}

func TestApplyOperator(t *testing.T) {
	ctx := context.Background()
	m, err := mesh.NewBoxMesh2D(geometry.Vec3{0, 0}, geometry.Vec3{2, 1}, 2, 2)
	require.NoError(t, err)
	// Curve one edge so the factors vary over an element
	require.NoError(t, m.SetEdgeCurve(m.Elements[0].Edges[1],
		[]geometry.Vec3{{1, 0}, {1.1, 0.25}, {1, 0.5}}))
	policy := &allMatOps{}
	var fields []*Field
	for _, mo := range []MatOpPolicy{nil, policy} {
		f, err := New(ctx, m, &Config{Basis: foundations.ModifiedA, NumModes: 4, MatOps: mo})
		require.NoError(t, err)
		fields = append(fields, f)
	}
	in := make([]float64, fields[0].NumLocalCoeffs())
	for i := range in {
		in[i] = float64(i%7) - 3
	}
	for _, key := range []expansion.MatrixKey{{Type: expansion.Mass}, {Type: expansion.Laplacian},
		{Type: expansion.Helmholtz, Lambda: 2.5}} {
		var outs [][]float64
		for _, f := range fields {
			out := make([]float64, f.NumLocalCoeffs())
			require.NoError(t, f.ApplyOperator(key, in, out))
			outs = append(outs, out)
		}
		assert.InDeltaSlicef(t, outs[0], outs[1], 1.e-10, "%s", key.Type)
	}
	assert.Contains(t, policy.ops, "Quadrilateral/Helmholtz")
	err = fields[0].ApplyOperator(expansion.MatrixKey{Type: expansion.MatrixType(7)}, in, in)
	assert.ErrorIs(t, err, utils.ErrUnsupported)
}
