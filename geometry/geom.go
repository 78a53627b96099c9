package geometry

import (
	"fmt"
	"math"
	"sync"

	"github.com/notargets/gohp/foundations"
	"github.com/notargets/gohp/utils"
)

// Geometry is a physical element: vertices plus optional curvature, mapped
// from a reference shape
type Geometry interface {
	ID() int
	Shape() Shape
	CoordDim() int
	ExpDim() int
	NumVerts() int
	Vertex(i int) Vec3
	// IsAffine reports a constant Jacobian map
	IsAffine() bool
	Moving() bool
	// CoordinateMap samples the map at its native tensor points
	CoordinateMap(reg *foundations.Registry) (*CoordMap, error)
	SetVertex(i int, v Vec3)
	// Reset drops cached map data after a coordinate change
	Reset()
}

// CoordMap holds physical coordinates at the tensor product of Keys,
// direction 0 varying fastest
type CoordMap struct {
	Keys []foundations.PointsKey
	X    [][]float64 // [coord][point]
}

func (cm *CoordMap) Dims() (dims []int) {
	dims = make([]int, len(cm.Keys))
	for d, k := range cm.Keys {
		dims[d] = k.NumPoints
	}
	return
}

func (cm *CoordMap) NumPoints() int { return utils.TensorSize(cm.Dims()) }

// Interpolate returns the coordinates at the tensor product of keys
func (cm *CoordMap) Interpolate(reg *foundations.Registry, keys []foundations.PointsKey) (X [][]float64, err error) {
	ops := make([]utils.Matrix, len(keys))
	for d, k := range keys {
		if k == cm.Keys[d] {
			continue
		}
		if ops[d], err = reg.GetInterpolation(cm.Keys[d], k); err != nil {
			return
		}
	}
	X = make([][]float64, len(cm.X))
	for c := range cm.X {
		X[c], _ = utils.TensorApplyAll(ops, cm.X[c], cm.Dims())
	}
	return
}

type geomBase struct {
	id       int
	coordDim int
	verts    []Vec3
	moving   bool
	mu       sync.Mutex
	cmap     *CoordMap
}

func (g *geomBase) ID() int           { return g.id }
func (g *geomBase) CoordDim() int     { return g.coordDim }
func (g *geomBase) NumVerts() int     { return len(g.verts) }
func (g *geomBase) Vertex(i int) Vec3 { return g.verts[i] }
func (g *geomBase) Moving() bool      { return g.moving }

// SetMoving marks the geometry as time dependent
func (g *geomBase) SetMoving(moving bool) { g.moving = moving }

func (g *geomBase) SetVertex(i int, v Vec3) {
	g.mu.Lock()
	g.verts[i] = v
	g.cmap = nil
	g.mu.Unlock()
}

func (g *geomBase) Reset() {
	g.mu.Lock()
	g.cmap = nil
	g.mu.Unlock()
}

func (g *geomBase) cached(build func() (*CoordMap, error)) (cm *CoordMap, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cmap != nil {
		return g.cmap, nil
	}
	if cm, err = build(); err != nil {
		return
	}
	g.cmap = cm
	return
}

func checkCoordDim(shape Shape, coordDim int) error {
	if coordDim < shape.Dim() || coordDim > 3 {
		return fmt.Errorf("%w: %s cannot be embedded in %d dimensions", utils.ErrConfig, shape, coordDim)
	}
	return nil
}

func gllKey(n int) foundations.PointsKey {
	return foundations.NewPointsKey(n, foundations.GaussLobattoLegendre)
}

// resample maps curve points given at GLL(len(pts)) onto GLL(n)
func resample(reg *foundations.Registry, pts []Vec3, n, coordDim int) (out []Vec3, err error) {
	out = make([]Vec3, n)
	if len(pts) == n {
		copy(out, pts)
		return
	}
	var I utils.Matrix
	if I, err = reg.GetInterpolation(gllKey(len(pts)), gllKey(n)); err != nil {
		return
	}
	for c := 0; c < coordDim; c++ {
		in := make([]float64, len(pts))
		for i, p := range pts {
			in[i] = p[c]
		}
		res := I.MulVec(in)
		for i := range out {
			out[i][c] = res[i]
		}
	}
	return
}

// SegGeom is a line element, optionally curved through points at GLL nodes
type SegGeom struct {
	geomBase
	curve []Vec3
}

func NewSegGeom(id, coordDim int, v0, v1 Vec3) (g *SegGeom, err error) {
	if err = checkCoordDim(Segment, coordDim); err != nil {
		return
	}
	return &SegGeom{geomBase: geomBase{id: id, coordDim: coordDim, verts: []Vec3{v0, v1}}}, nil
}

func (g *SegGeom) Shape() Shape { return Segment }
func (g *SegGeom) ExpDim() int  { return 1 }

// SetCurve sets the shape from points at the GLL nodes of the segment,
// endpoints included
func (g *SegGeom) SetCurve(pts []Vec3) error {
	if len(pts) < 2 {
		return fmt.Errorf("%w: curve of segment %d needs at least two points", utils.ErrConfig, g.id)
	}
	g.mu.Lock()
	g.curve = append([]Vec3(nil), pts...)
	g.verts[0], g.verts[1] = pts[0], pts[len(pts)-1]
	g.cmap = nil
	g.mu.Unlock()
	return nil
}

func (g *SegGeom) IsAffine() bool {
	if len(g.curve) == 0 {
		return true
	}
	// A curve whose points all sit on the chord at their linear positions is straight
	z := foundations.JacobiGL(0, 0, len(g.curve)-1)
	for i, p := range g.curve {
		lin := g.verts[0].Scale(0.5 * (1 - z[i])).Add(g.verts[1].Scale(0.5 * (1 + z[i])))
		if p.Sub(lin).Norm() > utils.NODETOL*math.Max(1, g.verts[1].Sub(g.verts[0]).Norm()) {
			return false
		}
	}
	return true
}

func (g *SegGeom) CoordinateMap(reg *foundations.Registry) (*CoordMap, error) {
	return g.cached(func() (cm *CoordMap, err error) {
		pts := g.verts
		if len(g.curve) != 0 {
			pts = g.curve
		}
		cm = &CoordMap{Keys: []foundations.PointsKey{gllKey(len(pts))}, X: make([][]float64, g.coordDim)}
		for c := 0; c < g.coordDim; c++ {
			cm.X[c] = make([]float64, len(pts))
			for i, p := range pts {
				cm.X[c][i] = p[c]
			}
		}
		return
	})
}

// QuadGeom is a quadrilateral with optional curved edges blended into the
// interior by transfinite interpolation
type QuadGeom struct {
	geomBase
	curves [4][]Vec3
}

func NewQuadGeom(id, coordDim int, v [4]Vec3) (g *QuadGeom, err error) {
	if err = checkCoordDim(Quadrilateral, coordDim); err != nil {
		return
	}
	return &QuadGeom{geomBase: geomBase{id: id, coordDim: coordDim, verts: v[:]}}, nil
}

func (g *QuadGeom) Shape() Shape { return Quadrilateral }
func (g *QuadGeom) ExpDim() int  { return 2 }

// SetEdgeCurve sets edge e from points at GLL nodes running from the edge's
// first to its second local vertex
func (g *QuadGeom) SetEdgeCurve(e int, pts []Vec3) error {
	if len(pts) < 2 {
		return fmt.Errorf("%w: curve of quad %d edge %d needs at least two points", utils.ErrConfig, g.id, e)
	}
	v0, v1 := g.verts[QuadEdgeVerts[e][0]], g.verts[QuadEdgeVerts[e][1]]
	tol := 1.e-10 * math.Max(1, v1.Sub(v0).Norm())
	if pts[0].Sub(v0).Norm() > tol || pts[len(pts)-1].Sub(v1).Norm() > tol {
		return fmt.Errorf("%w: curve of quad %d edge %d does not meet its vertices", utils.ErrConfig, g.id, e)
	}
	g.mu.Lock()
	g.curves[e] = append([]Vec3(nil), pts...)
	g.cmap = nil
	g.mu.Unlock()
	return nil
}

func (g *QuadGeom) isStraight() bool {
	for _, c := range g.curves {
		if len(c) != 0 {
			return false
		}
	}
	return true
}

func (g *QuadGeom) IsAffine() bool {
	if !g.isStraight() {
		return false
	}
	v := g.verts
	d := v[0].Add(v[2]).Sub(v[1]).Sub(v[3])
	return d.Norm() <= utils.NODETOL*math.Max(1, v[1].Sub(v[0]).Norm())
}

func (g *QuadGeom) CoordinateMap(reg *foundations.Registry) (*CoordMap, error) {
	return g.cached(func() (cm *CoordMap, err error) {
		n := 2
		for _, c := range g.curves {
			if len(c) > n {
				n = len(c)
			}
		}
		var (
			z     = foundations.JacobiGL(0, 0, n-1)
			edges [4][]Vec3
		)
		for e := 0; e < 4; e++ {
			if len(g.curves[e]) != 0 {
				if edges[e], err = resample(reg, g.curves[e], n, g.coordDim); err != nil {
					return
				}
				continue
			}
			v0, v1 := g.verts[QuadEdgeVerts[e][0]], g.verts[QuadEdgeVerts[e][1]]
			edges[e] = make([]Vec3, n)
			for i := range z {
				edges[e][i] = v0.Scale(0.5 * (1 - z[i])).Add(v1.Scale(0.5 * (1 + z[i])))
			}
		}
		cm = &CoordMap{Keys: []foundations.PointsKey{gllKey(n), gllKey(n)}, X: make([][]float64, g.coordDim)}
		for c := range cm.X {
			cm.X[c] = make([]float64, n*n)
		}
		v := g.verts
		for j, eta := range z {
			for i, xi := range z {
				var (
					a0, a1 = 0.5 * (1 - xi), 0.5 * (1 + xi)
					b0, b1 = 0.5 * (1 - eta), 0.5 * (1 + eta)
				)
				p := edges[0][i].Scale(b0).Add(edges[2][i].Scale(b1)).
					Add(edges[3][j].Scale(a0)).Add(edges[1][j].Scale(a1))
				bil := v[0].Scale(a0 * b0).Add(v[1].Scale(a1 * b0)).
					Add(v[2].Scale(a1 * b1)).Add(v[3].Scale(a0 * b1))
				p = p.Sub(bil)
				for c := range cm.X {
					cm.X[c][i+n*j] = p[c]
				}
			}
		}
		return
	})
}

// TriGeom is a straight sided triangle
type TriGeom struct {
	geomBase
}

func NewTriGeom(id, coordDim int, v [3]Vec3) (g *TriGeom, err error) {
	if err = checkCoordDim(Triangle, coordDim); err != nil {
		return
	}
	return &TriGeom{geomBase: geomBase{id: id, coordDim: coordDim, verts: v[:]}}, nil
}

func (g *TriGeom) Shape() Shape   { return Triangle }
func (g *TriGeom) ExpDim() int    { return 2 }
func (g *TriGeom) IsAffine() bool { return true }

// CoordinateMap samples the collapsed map: (eta1, eta2) in [-1,1]^2 with
// xi1 = (1+eta1)(1-eta2)/2 - 1 and xi2 = eta2
func (g *TriGeom) CoordinateMap(reg *foundations.Registry) (*CoordMap, error) {
	return g.cached(func() (cm *CoordMap, err error) {
		v := g.verts
		corners := []Vec3{v[0], v[1], v[2], v[2]}
		cm = &CoordMap{Keys: []foundations.PointsKey{gllKey(2), gllKey(2)}, X: make([][]float64, g.coordDim)}
		for c := range cm.X {
			cm.X[c] = make([]float64, 4)
			for i, p := range corners {
				cm.X[c][i] = p[c]
			}
		}
		return
	})
}

// refDeriv is the constant derivative of the map with respect to (xi1, xi2)
func (g *TriGeom) refDeriv() (d [2]Vec3) {
	v := g.verts
	d[0] = v[1].Sub(v[0]).Scale(0.5)
	d[1] = v[2].Sub(v[0]).Scale(0.5)
	return
}

// HexGeom is a straight sided hexahedron with a trilinear map
type HexGeom struct {
	geomBase
}

func NewHexGeom(id int, v [8]Vec3) (g *HexGeom, err error) {
	return &HexGeom{geomBase: geomBase{id: id, coordDim: 3, verts: v[:]}}, nil
}

func (g *HexGeom) Shape() Shape { return Hexahedron }
func (g *HexGeom) ExpDim() int  { return 3 }

// hexCorner is the local vertex at tensor corner (i,j,k) of the reference cube
var hexCorner = [8]int{0, 1, 3, 2, 4, 5, 7, 6}

// IsAffine checks that the mixed terms of the trilinear map vanish
func (g *HexGeom) IsAffine() bool {
	var (
		mixed [4]Vec3
		scale = g.verts[1].Sub(g.verts[0]).Norm()
	)
	for t := 0; t < 8; t++ {
		sx, sy, sz := float64(2*(t&1)-1), float64(2*((t>>1)&1)-1), float64(2*((t>>2)&1)-1)
		v := g.verts[hexCorner[t]]
		mixed[0] = mixed[0].Add(v.Scale(sx * sy))
		mixed[1] = mixed[1].Add(v.Scale(sx * sz))
		mixed[2] = mixed[2].Add(v.Scale(sy * sz))
		mixed[3] = mixed[3].Add(v.Scale(sx * sy * sz))
	}
	for _, m := range mixed {
		if m.Norm() > utils.NODETOL*math.Max(1, scale) {
			return false
		}
	}
	return true
}

func (g *HexGeom) CoordinateMap(reg *foundations.Registry) (*CoordMap, error) {
	return g.cached(func() (cm *CoordMap, err error) {
		cm = &CoordMap{Keys: []foundations.PointsKey{gllKey(2), gllKey(2), gllKey(2)}, X: make([][]float64, 3)}
		for c := range cm.X {
			cm.X[c] = make([]float64, 8)
			for t := 0; t < 8; t++ {
				cm.X[c][t] = g.verts[hexCorner[t]][c]
			}
		}
		return
	})
}

// PhysCoords returns the coordinates at the tensor product of keys
func PhysCoords(reg *foundations.Registry, g Geometry, keys []foundations.PointsKey) (X [][]float64, err error) {
	var cm *CoordMap
	if cm, err = g.CoordinateMap(reg); err != nil {
		return
	}
	if len(keys) != len(cm.Keys) {
		return nil, fmt.Errorf("%w: %d keys for a %d dimensional map", utils.ErrConfig, len(keys), len(cm.Keys))
	}
	return cm.Interpolate(reg, keys)
}
