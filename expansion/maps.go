package expansion

import (
	"fmt"

	"github.com/notargets/gohp/geometry"
	"github.com/notargets/gohp/utils"
)

var quadCorner = [4][2]int{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

// coeff is the tensor index of the mode with per direction indices p
func (e *TensorExpansion) coeff(p []int) int { return utils.TensorFlat(p, e.nm) }

// vertexSides gives the reference side (0 is -1, 1 is +1) of vertex v per direction
func (e *TensorExpansion) vertexSides(v int) []int {
	switch e.shape {
	case geometry.Segment:
		return []int{v}
	case geometry.Quadrilateral:
		return []int{quadCorner[v][0], quadCorner[v][1]}
	}
	return []int{quadCorner[v%4][0], quadCorner[v%4][1], v / 4}
}

func (e *TensorExpansion) requireC0() {
	if !e.c0 {
		panic(fmt.Errorf("element %d: bases without boundary modes have no entity maps", e.geom.ID()))
	}
}

// IsC0 reports whether every direction has vertex and interior modes
func (e *TensorExpansion) IsC0() bool { return e.c0 }

func (e *TensorExpansion) VertexMap(v int) int {
	e.requireC0()
	sides := e.vertexSides(v)
	p := make([]int, len(sides))
	for d, s := range sides {
		p[d] = e.bases[d].VertexModes()[s]
	}
	return e.coeff(p)
}

// edgeLocal returns the edge interior modes of local edge ed in the local
// edge direction, and the direction they vary along
func (e *TensorExpansion) edgeLocal(ed int) (modes []int, dir int) {
	var (
		p     = make([]int, len(e.nm))
		fixed []int
		sides []int
	)
	switch e.shape {
	case geometry.Quadrilateral:
		dir = geometry.QuadEdgeDir[ed]
		fixed, sides = []int{1 - dir}, []int{geometry.QuadEdgeSide[ed]}
	case geometry.Hexahedron:
		dir = geometry.HexEdgeDir[ed]
		for d := 0; d < 3; d++ {
			if d != dir {
				fixed = append(fixed, d)
			}
		}
		sides = geometry.HexEdgeSides[ed][:]
	default:
		panic(fmt.Errorf("a %s has no edges", e.shape))
	}
	for i, d := range fixed {
		p[d] = e.bases[d].VertexModes()[sides[i]]
	}
	for _, j := range e.bases[dir].InteriorModes() {
		p[dir] = j
		modes = append(modes, e.coeff(p))
	}
	return
}

// reversal returns, for each slot of the interior mode list of direction d,
// the list position read when the direction is reversed and its sign
func (e *TensorExpansion) reversal(d int) (from []int, signs []float64) {
	var (
		b     = e.bases[d]
		modes = b.InteriorModes()
		pos   = make(map[int]int, len(modes))
	)
	for i, j := range modes {
		pos[j] = i
	}
	from = make([]int, len(modes))
	signs = make([]float64, len(modes))
	for i, j := range modes {
		jp, s := b.ReverseInterior(j)
		slot, ok := pos[jp]
		if !ok {
			panic(fmt.Errorf("reversal of mode %d of %s leaves the interior", j, b.Key))
		}
		from[slot], signs[slot] = i, s
	}
	return
}

func (e *TensorExpansion) EdgeInteriorMap(ed int, o geometry.EdgeOrient) (modes []int, signs []float64) {
	e.requireC0()
	local, dir := e.edgeLocal(ed)
	if o == geometry.Forwards {
		return local, utils.ConstArray(len(local), 1)
	}
	from, s := e.reversal(dir)
	modes = make([]int, len(local))
	for slot, i := range from {
		modes[slot] = local[i]
	}
	return modes, s
}

// EdgeNumModes is the number of interior modes of local edge ed
func (e *TensorExpansion) EdgeNumModes(ed int) int {
	var dir int
	switch e.shape {
	case geometry.Quadrilateral:
		dir = geometry.QuadEdgeDir[ed]
	case geometry.Hexahedron:
		dir = geometry.HexEdgeDir[ed]
	default:
		return 0
	}
	return len(e.bases[dir].InteriorModes())
}

// FaceNumModes returns the interior mode counts of hex face f along its
// local (a, b) directions
func (e *TensorExpansion) FaceNumModes(f int) (na, nb int) {
	a, b := geometry.FaceTangentDirs(f)
	return len(e.bases[a].InteriorModes()), len(e.bases[b].InteriorModes())
}

func (e *TensorExpansion) FaceInteriorMap(f int, o geometry.FaceOrient) (modes []int, signs []float64) {
	e.requireC0()
	if e.shape != geometry.Hexahedron {
		panic(fmt.Errorf("a %s has no faces", e.shape))
	}
	var (
		a, b    = geometry.FaceTangentDirs(f)
		fixed   = geometry.HexFaceDir[f]
		ia, ib  = e.bases[a].InteriorModes(), e.bases[b].InteriorModes()
		na, nb  = len(ia), len(ib)
		ns, _   = o.CanonicalDims(na, nb)
		p       = make([]int, 3)
		revA    = make([]int, na)
		revB    = make([]int, nb)
		signA   = utils.ConstArray(na, 1)
		signB   = utils.ConstArray(nb, 1)
		inverse = func(from []int) (inv []int) {
			inv = make([]int, len(from))
			for slot, i := range from {
				inv[i] = slot
			}
			return
		}
	)
	for i := range revA {
		revA[i] = i
	}
	for j := range revB {
		revB[j] = j
	}
	if o.RevA() {
		var from []int
		from, signA = e.reversal(a)
		revA = inverse(from)
		signA = permute(signA, revA)
	}
	if o.RevB() {
		var from []int
		from, signB = e.reversal(b)
		revB = inverse(from)
		signB = permute(signB, revB)
	}
	p[fixed] = e.bases[fixed].VertexModes()[geometry.HexFaceSide[f]]
	modes = make([]int, na*nb)
	signs = make([]float64, na*nb)
	for j := 0; j < nb; j++ {
		for i := 0; i < na; i++ {
			p[a], p[b] = ia[i], ib[j]
			s, t := revA[i], revB[j]
			if o.Transposed() {
				s, t = t, s
			}
			slot := s + ns*t
			modes[slot] = e.coeff(p)
			signs[slot] = signA[i] * signB[j]
		}
	}
	return
}

// permute returns v reordered so that out[i] = v[to[i]]
func permute(v []float64, to []int) (out []float64) {
	out = make([]float64, len(v))
	for i, k := range to {
		out[i] = v[k]
	}
	return
}

// buildMaps orders boundary modes by vertices, edges then faces
func (e *TensorExpansion) buildMaps() {
	nc := e.NumCoeffs()
	if !e.c0 {
		e.imap = utils.NewRange(0, nc-1)
		return
	}
	isBnd := make([]bool, nc)
	add := func(modes ...int) {
		for _, m := range modes {
			if !isBnd[m] {
				isBnd[m] = true
				e.bmap = append(e.bmap, m)
			}
		}
	}
	for v := 0; v < e.shape.NumVerts(); v++ {
		add(e.VertexMap(v))
	}
	for ed := 0; ed < e.shape.NumEdges(); ed++ {
		modes, _ := e.edgeLocal(ed)
		add(modes...)
	}
	for f := 0; f < e.shape.NumFaces(); f++ {
		modes, _ := e.FaceInteriorMap(f, 0)
		add(modes...)
	}
	for m := 0; m < nc; m++ {
		if !isBnd[m] {
			e.imap = append(e.imap, m)
		}
	}
}

func (e *TensorExpansion) BoundaryMap() []int { return e.bmap }
func (e *TensorExpansion) InteriorMap() []int { return e.imap }
