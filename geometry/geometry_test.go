package geometry

import (
	"context"
	"math"
	"testing"

	"github.com/notargets/gohp/foundations"
	"github.com/notargets/gohp/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gauss(n int) foundations.PointsKey {
	return foundations.NewPointsKey(n, foundations.GaussLegendre)
}

func integrate(t *testing.T, reg *foundations.Registry, gf *GeomFactors) (sum float64) {
	t.Helper()
	var (
		w    = [][]float64{}
		dims []int
	)
	for _, k := range gf.Keys {
		p, err := reg.GetPoints(k)
		require.NoError(t, err)
		w = append(w, p.W)
		dims = append(dims, k.NumPoints)
	}
	for q := 0; q < gf.NumPoints(); q++ {
		idx := utils.TensorIndex(q, dims)
		wq := 1.
		for d := range idx {
			wq *= w[d][idx[d]]
		}
		sum += wq * gf.JacAt(q)
	}
	return
}

func TestRegularQuad(t *testing.T) {
	reg := foundations.NewRegistry()
	g, err := NewQuadGeom(0, 2, [4]Vec3{{0, 0}, {2, 0}, {2, 1}, {0, 1}})
	require.NoError(t, err)
	assert.True(t, g.IsAffine())
	gf, err := Compute(reg, g, []foundations.PointsKey{gauss(4), gauss(3)})
	require.NoError(t, err)
	assert.Equal(t, Regular, gf.Type)
	assert.True(t, gf.Valid)
	assert.Equal(t, PositiveJacobian, gf.Orientation)
	assert.Len(t, gf.Jac, 1)
	assert.Equal(t, 12, gf.NumPoints())
	for q := 0; q < 12; q++ {
		assert.InDelta(t, 0.5, gf.JacAt(q), 1.e-14)
		assert.InDelta(t, 1., gf.DerivFactorAt(0, 0, q), 1.e-14)
		assert.InDelta(t, 0., gf.DerivFactorAt(0, 1, q), 1.e-14)
		assert.InDelta(t, 2., gf.DerivFactorAt(1, 1, q), 1.e-14)
		assert.InDelta(t, 1., gf.GmatAt(0, 0, q), 1.e-14)
		assert.InDelta(t, 4., gf.GmatAt(1, 1, q), 1.e-14)
		assert.InDelta(t, 0., gf.GmatAt(0, 1, q), 1.e-14)
	}
	assert.InDelta(t, 2., integrate(t, reg, gf), 1.e-13)

	// Wrong number of keys is a configuration error
	_, err = Compute(reg, g, []foundations.PointsKey{gauss(4)})
	assert.ErrorIs(t, err, utils.ErrConfig)
}

func TestRegularMatchesDeformed(t *testing.T) {
	reg := foundations.NewRegistry()
	v := [4]Vec3{{0, 0}, {2, 0.5}, {2.5, 1.5}, {0.5, 1}}
	reg1, err := NewQuadGeom(0, 2, v)
	require.NoError(t, err)
	def, err := NewQuadGeom(1, 2, v)
	require.NoError(t, err)
	// A straight "curve" forces the per point path
	require.NoError(t, def.SetEdgeCurve(0, []Vec3{v[0], v[0].Add(v[1]).Scale(0.5), v[1]}))
	assert.True(t, reg1.IsAffine())
	assert.False(t, def.IsAffine())
	keys := []foundations.PointsKey{gauss(5), gauss(4)}
	gfR, err := Compute(reg, reg1, keys)
	require.NoError(t, err)
	gfD, err := Compute(reg, def, keys)
	require.NoError(t, err)
	assert.Equal(t, Regular, gfR.Type)
	assert.Equal(t, Deformed, gfD.Type)
	assert.Len(t, gfD.Jac, 20)
	for q := 0; q < 20; q++ {
		assert.InDelta(t, gfR.JacAt(q), gfD.JacAt(q), 1.e-13)
		for d := 0; d < 2; d++ {
			for c := 0; c < 2; c++ {
				assert.InDelta(t, gfR.DerivFactorAt(d, c, q), gfD.DerivFactorAt(d, c, q), 1.e-12)
				assert.InDelta(t, gfR.DerivAt(c, d, q), gfD.DerivAt(c, d, q), 1.e-12)
			}
		}
	}
}

func TestCurvedQuadArea(t *testing.T) {
	reg := foundations.NewRegistry()
	// Quarter annulus 1 <= r <= 2
	g, err := NewQuadGeom(0, 2, [4]Vec3{{1, 0}, {2, 0}, {0, 2}, {0, 1}})
	require.NoError(t, err)
	n := 10
	z := foundations.JacobiGL(0, 0, n-1)
	arc := func(r float64) (pts []Vec3) {
		for _, zi := range z {
			th := 0.25 * math.Pi * (1 + zi)
			pts = append(pts, Vec3{r * math.Cos(th), r * math.Sin(th)})
		}
		return
	}
	require.NoError(t, g.SetEdgeCurve(1, arc(2)))
	require.NoError(t, g.SetEdgeCurve(3, arc(1)))
	assert.Error(t, g.SetEdgeCurve(0, arc(3)))
	gf, err := Compute(reg, g, []foundations.PointsKey{gauss(12), gauss(12)})
	require.NoError(t, err)
	assert.Equal(t, Deformed, gf.Type)
	assert.True(t, gf.Valid)
	assert.InDelta(t, 0.75*math.Pi, integrate(t, reg, gf), 1.e-6)

	// Physical coordinates follow the blended map
	X, err := PhysCoords(reg, g, []foundations.PointsKey{gauss(3), gauss(3)})
	require.NoError(t, err)
	for q := range X[0] {
		r := math.Hypot(X[0][q], X[1][q])
		assert.True(t, r > 1 && r < 2)
	}
}

func TestInvalidAndNegativeJacobian(t *testing.T) {
	reg := foundations.NewRegistry()
	keys := []foundations.PointsKey{
		foundations.NewPointsKey(3, foundations.GaussLobattoLegendre),
		foundations.NewPointsKey(3, foundations.GaussLobattoLegendre),
	}
	bowtie, err := NewQuadGeom(0, 2, [4]Vec3{{0, 0}, {1, 0}, {0, 1}, {1, 1}})
	require.NoError(t, err)
	gf, err := Compute(reg, bowtie, keys)
	require.NoError(t, err)
	assert.False(t, gf.Valid)

	cw, err := NewQuadGeom(1, 2, [4]Vec3{{0, 0}, {0, 1}, {1, 1}, {1, 0}})
	require.NoError(t, err)
	gf, err = Compute(reg, cw, keys)
	require.NoError(t, err)
	assert.True(t, gf.Valid)
	assert.Equal(t, NegativeJacobian, gf.Orientation)
	assert.InDelta(t, -0.25, gf.Jac[0], 1.e-14)
	assert.InDelta(t, 0.25, gf.JacAt(4), 1.e-14)

	flat, err := NewQuadGeom(2, 2, [4]Vec3{{0, 0}, {1, 0}, {2, 0}, {3, 0}})
	require.NoError(t, err)
	gf, err = Compute(reg, flat, keys)
	require.NoError(t, err)
	assert.False(t, gf.Valid)
}

func TestManifolds(t *testing.T) {
	reg := foundations.NewRegistry()
	seg, err := NewSegGeom(0, 2, Vec3{0, 0}, Vec3{3, 4})
	require.NoError(t, err)
	gf, err := Compute(reg, seg, []foundations.PointsKey{gauss(3)})
	require.NoError(t, err)
	assert.Equal(t, Regular, gf.Type)
	assert.InDelta(t, 2.5, gf.JacAt(0), 1.e-14)
	var dot float64
	for c := 0; c < 2; c++ {
		dot += gf.DerivFactorAt(0, c, 0) * gf.DerivAt(c, 0, 0)
	}
	assert.InDelta(t, 1., dot, 1.e-14)
	tan, err := ComputeEdgeTangents(reg, seg, gauss(3))
	require.NoError(t, err)
	for q := 0; q < 3; q++ {
		assert.InDelta(t, 0.6, tan[0][q], 1.e-14)
		assert.InDelta(t, 0.8, tan[1][q], 1.e-14)
	}
	seg1, err := NewSegGeom(1, 1, Vec3{0}, Vec3{1})
	require.NoError(t, err)
	_, err = ComputeEdgeTangents(reg, seg1, gauss(3))
	assert.ErrorIs(t, err, utils.ErrConfig)

	// A tilted unit square in 3D
	s := 1. / math.Sqrt2
	quad, err := NewQuadGeom(2, 3, [4]Vec3{{0, 0, 0}, {1, 0, 0}, {1, s, s}, {0, s, s}})
	require.NoError(t, err)
	gf, err = Compute(reg, quad, []foundations.PointsKey{gauss(2), gauss(2)})
	require.NoError(t, err)
	assert.True(t, gf.Valid)
	assert.InDelta(t, 1., integrate(t, reg, gf), 1.e-13)

	_, err = NewQuadGeom(3, 1, [4]Vec3{})
	assert.ErrorIs(t, err, utils.ErrConfig)
}

func TestTriAndHex(t *testing.T) {
	reg := foundations.NewRegistry()
	tri, err := NewTriGeom(0, 2, [3]Vec3{{0, 0}, {2, 0}, {0, 1}})
	require.NoError(t, err)
	gf, err := Compute(reg, tri, []foundations.PointsKey{gauss(3),
		foundations.NewPointsKey(3, foundations.GaussRadauMLegendre)})
	require.NoError(t, err)
	assert.Equal(t, Regular, gf.Type)
	assert.InDelta(t, 0.5, gf.JacAt(0), 1.e-14)
	xi, err := LocCoords(tri, gf, Vec3{2, 0})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, -1}, xi, 1.e-14)

	cube := [8]Vec3{{0, 0, 0}, {2, 0, 0}, {2, 2, 0}, {0, 2, 0}, {0, 0, 1}, {2, 0, 1}, {2, 2, 1}, {0, 2, 1}}
	hex, err := NewHexGeom(1, cube)
	require.NoError(t, err)
	assert.True(t, hex.IsAffine())
	keys := []foundations.PointsKey{gauss(3), gauss(3), gauss(3)}
	gf, err = Compute(reg, hex, keys)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, gf.JacAt(7), 1.e-14)
	assert.InDelta(t, 4., integrate(t, reg, gf), 1.e-13)

	cube[6] = Vec3{3, 3, 2}
	warped, err := NewHexGeom(2, cube)
	require.NoError(t, err)
	assert.False(t, warped.IsAffine())
	gf, err = Compute(reg, warped, keys)
	require.NoError(t, err)
	assert.Equal(t, Deformed, gf.Type)
	assert.True(t, gf.Valid)
	// The volume integral of a trilinear map is exact with 3 Gauss points
	gf4, err := Compute(reg, warped, []foundations.PointsKey{gauss(5), gauss(5), gauss(5)})
	require.NoError(t, err)
	assert.InDelta(t, integrate(t, reg, gf4), integrate(t, reg, gf), 1.e-12)
	_, err = LocCoords(warped, gf, Vec3{1, 1, 1})
	assert.ErrorIs(t, err, utils.ErrUnsupported)
}

func TestLocCoords(t *testing.T) {
	reg := foundations.NewRegistry()
	v := [4]Vec3{{0, 0}, {2, 0.5}, {2.5, 1.5}, {0.5, 1}}
	g, err := NewQuadGeom(0, 2, v)
	require.NoError(t, err)
	gf, err := Compute(reg, g, []foundations.PointsKey{gauss(2), gauss(2)})
	require.NoError(t, err)
	xi, eta := 0.3, -0.2
	x := v[0].Scale((1 - xi) * (1 - eta) / 4).Add(v[1].Scale((1 + xi) * (1 - eta) / 4)).
		Add(v[2].Scale((1 + xi) * (1 + eta) / 4)).Add(v[3].Scale((1 - xi) * (1 + eta) / 4))
	got, err := LocCoords(g, gf, x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{xi, eta}, got, 1.e-13)
}

func TestFactorsArena(t *testing.T) {
	var (
		reg   = foundations.NewRegistry()
		geoms []Geometry
	)
	for i := 0; i < 6; i++ {
		x0 := 0.25 * float64(i)
		g, err := NewQuadGeom(i, 2, [4]Vec3{{x0, 0}, {x0 + 0.25, 0}, {x0 + 0.25, 1}, {x0, 1}})
		require.NoError(t, err)
		geoms = append(geoms, g)
	}
	bowtie, err := NewQuadGeom(6, 2, [4]Vec3{{0, 0}, {1, 0}, {0, 1}, {1, 1}})
	require.NoError(t, err)
	geoms = append(geoms, bowtie)
	keysFor := func(g Geometry) []foundations.PointsKey {
		return []foundations.PointsKey{gauss(3), gauss(3)}
	}
	arena := NewFactorsArena()
	report, err := ComputeAll(context.Background(), reg, arena, geoms, keysFor, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{6}, report.Invalid)
	assert.ErrorIs(t, report.Err(), utils.ErrInvalidGeometry)
	assert.Equal(t, 7, arena.Len())
	assert.Equal(t, 2, arena.NumUnique())
	gf0, ok := arena.Get(0)
	require.True(t, ok)
	gf5, ok := arena.Get(5)
	require.True(t, ok)
	assert.Same(t, gf0, gf5)
	assert.Equal(t, gf0.Hash(), gf5.Hash())

	// Moving one element invalidates and recomputes only that element
	geoms[5].SetVertex(2, Vec3{1.5, 1.5})
	arena.Invalidate(5)
	_, ok = arena.Get(5)
	assert.False(t, ok)
	_, err = ComputeAll(context.Background(), reg, arena, geoms, keysFor, 0, nil)
	require.NoError(t, err)
	gf5, ok = arena.Get(5)
	require.True(t, ok)
	assert.NotSame(t, gf0, gf5)
	assert.Equal(t, Deformed, gf5.Type)
	assert.Equal(t, 3, arena.NumUnique())

	// Configuration errors abort the whole computation
	bad := func(g Geometry) []foundations.PointsKey { return []foundations.PointsKey{gauss(3)} }
	_, err = ComputeAll(context.Background(), reg, NewFactorsArena(), geoms, bad, 2, nil)
	assert.ErrorIs(t, err, utils.ErrConfig)
}

func TestFactorsArenaRoundOff(t *testing.T) {
	var (
		reg   = foundations.NewRegistry()
		geoms []Geometry
		h     = 1. / 3.
	)
	// Translated squares whose factors differ only in the last bits
	for j := 0; j < 3; j++ {
		for i := 0; i < 3; i++ {
			x0, x1 := float64(i)*h, float64(i+1)*h
			y0, y1 := float64(j)*h, float64(j+1)*h
			g, err := NewQuadGeom(3*j+i, 2, [4]Vec3{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}})
			require.NoError(t, err)
			geoms = append(geoms, g)
		}
	}
	keysFor := func(g Geometry) []foundations.PointsKey {
		return []foundations.PointsKey{gauss(4), gauss(4)}
	}
	arena := NewFactorsArena()
	_, err := ComputeAll(context.Background(), reg, arena, geoms, keysFor, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 9, arena.Len())
	assert.Equal(t, 1, arena.NumUnique())
	gf0, _ := arena.Get(0)
	for k := 1; k < 9; k++ {
		gf, ok := arena.Get(k)
		require.True(t, ok)
		assert.Samef(t, gf0, gf, "element %d", k)
	}
}
