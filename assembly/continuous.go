package assembly

import (
	"context"
	"fmt"
	"sort"

	"github.com/notargets/gohp/expansion"
	"github.com/notargets/gohp/geometry"
	"github.com/notargets/gohp/mesh"
	"github.com/notargets/gohp/utils"
)

type entityKind uint8

const (
	vertexEnt entityKind = iota
	edgeEnt
	faceEnt
)

// entity is a mesh vertex, edge or face after periodic identification
type entity struct {
	kind entityKind
	id   int
}

// identification holds the periodic representatives of vertices and edges.
// The representative is the lowest id of each class.
type identification struct {
	vert     []int
	edge     []int
	edgeFlip []bool // Edge runs against its representative
}

func newIdentification(m *mesh.Mesh) (id *identification, err error) {
	if m.Dim == 3 && len(m.Periodic) > 0 {
		return nil, fmt.Errorf("%w: periodic faces", utils.ErrUnsupported)
	}
	var (
		vp = make([]int, len(m.Vertices))
		ep = make([]int, len(m.Edges))
		ef = make([]bool, len(m.Edges)) // Flip relative to the parent
	)
	for i := range vp {
		vp[i] = i
	}
	for i := range ep {
		ep[i] = i
	}
	var findV func(i int) int
	findV = func(i int) int {
		if vp[i] != i {
			vp[i] = findV(vp[i])
		}
		return vp[i]
	}
	var findE func(i int) (int, bool)
	findE = func(i int) (int, bool) {
		if ep[i] == i {
			return i, false
		}
		r, f := findE(ep[i])
		ep[i], ef[i] = r, ef[i] != f
		return r, ef[i]
	}
	for _, vpair := range m.VertexPairs {
		a, b := findV(vpair[0]), findV(vpair[1])
		if a > b {
			a, b = b, a
		}
		vp[b] = a
	}
	if m.Dim == 2 {
		for _, pp := range m.Periodic {
			ra, fa := findE(pp.A)
			rb, fb := findE(pp.B)
			flip := fa != fb != pp.Reversed
			switch {
			case ra == rb:
				if flip {
					return nil, fmt.Errorf("%w: periodic edges %d and %d are identified with both orientations",
						utils.ErrConfig, pp.A, pp.B)
				}
			case ra < rb:
				ep[rb], ef[rb] = ra, flip
			default:
				ep[ra], ef[ra] = rb, flip
			}
		}
	}
	id = &identification{
		vert:     make([]int, len(vp)),
		edge:     make([]int, len(ep)),
		edgeFlip: make([]bool, len(ep)),
	}
	for i := range vp {
		id.vert[i] = findV(i)
	}
	for i := range ep {
		id.edge[i], id.edgeFlip[i] = findE(i)
	}
	return
}

// edgeOrient is the orientation of local edge e against its representative
func (id *identification) edgeOrient(el *mesh.Element, e int) geometry.EdgeOrient {
	o := el.EdgeOrient[e]
	if id.edgeFlip[el.Edges[e]] {
		if o == geometry.Forwards {
			return geometry.Backwards
		}
		return geometry.Forwards
	}
	return o
}

// entities lists the representative entities of an element
func (id *identification) entities(m *mesh.Mesh, el *mesh.Element) (ents []entity) {
	for _, v := range el.Verts {
		ents = append(ents, entity{vertexEnt, id.vert[v]})
	}
	if m.Dim >= 2 {
		for _, e := range el.Edges {
			ents = append(ents, entity{edgeEnt, id.edge[e]})
		}
	}
	for _, f := range el.Faces {
		ents = append(ents, entity{faceEnt, f})
	}
	return
}

// dirichletEntities marks the closure of every facet on an essential region
func (id *identification) dirichletEntities(m *mesh.Mesh) map[entity]bool {
	dir := make(map[entity]bool)
	for _, r := range m.Regions {
		if !r.Kind.IsEssential() {
			continue
		}
		for _, fr := range r.Facets {
			el := &m.Elements[fr.Elmt]
			for _, v := range m.FacetVerts(fr.Elmt, fr.Facet) {
				dir[entity{vertexEnt, id.vert[v]}] = true
			}
			switch m.Dim {
			case 2:
				dir[entity{edgeEnt, id.edge[el.Edges[fr.Facet]]}] = true
			case 3:
				dir[entity{faceEnt, el.Faces[fr.Facet]}] = true
				for _, le := range geometry.HexFaceEdges[fr.Facet] {
					dir[entity{edgeEnt, id.edge[el.Edges[le]]}] = true
				}
			}
		}
	}
	return dir
}

// facetLocal returns the local vertices, edges and faces in the closure of
// local facet f of a shape
func facetLocal(s geometry.Shape, f int) (verts, edges, faces []int) {
	switch s {
	case geometry.Segment:
		return []int{f}, nil, nil
	case geometry.Quadrilateral:
		ev := geometry.QuadEdgeVerts[f]
		return ev[:], []int{f}, nil
	case geometry.Hexahedron:
		fv, fe := geometry.HexFaceVerts[f], geometry.HexFaceEdges[f]
		return fv[:], fe[:], []int{f}
	}
	panic(fmt.Errorf("facets of a %s", s))
}

func checkElements(m *mesh.Mesh, exps []expansion.Expansion, opts *Options) (elements []int, err error) {
	elements = opts.Elements
	if elements == nil {
		elements = make([]int, len(m.Elements))
		for k := range elements {
			elements[k] = k
		}
	}
	if len(elements) != len(exps) {
		return nil, fmt.Errorf("%w: %d expansions for %d elements", utils.ErrConfig, len(exps), len(elements))
	}
	if opts.Partition != nil && len(opts.Partition) != len(m.Elements) {
		return nil, fmt.Errorf("%w: partition of %d elements for a mesh of %d", utils.ErrConfig,
			len(opts.Partition), len(m.Elements))
	}
	for i, k := range elements {
		if k < 0 || k >= len(m.Elements) {
			return nil, fmt.Errorf("%w: element %d is not in the mesh", utils.ErrConfig, k)
		}
		el, e := &m.Elements[k], exps[i]
		switch {
		case e == nil:
			return nil, fmt.Errorf("%w: element %d has no expansion", utils.ErrConfig, k)
		case e.Shape() != el.Shape:
			return nil, fmt.Errorf("%w: element %d is a %s with a %s expansion", utils.ErrConfig, k,
				el.Shape, e.Shape())
		case el.Shape.Dim() != m.Dim:
			return nil, fmt.Errorf("%w: %dD element %d in a %dD mesh", utils.ErrConfig, el.Shape.Dim(), k, m.Dim)
		}
	}
	if err = m.CheckPeriodic(); err != nil {
		return nil, err
	}
	return
}

// NewContinuousMap numbers the C0 degrees of freedom of the expansions.
// Shared vertex, edge and face modes, including periodic images, map to one
// global coefficient with the signs needed for matching orientations.
func NewContinuousMap(ctx context.Context, m *mesh.Mesh, exps []expansion.Expansion, opts *Options) (am *Map, err error) {
	if opts == nil {
		opts = &Options{}
	}
	var (
		elements []int
		id       *identification
	)
	if elements, err = checkElements(m, exps, opts); err != nil {
		return
	}
	for i, e := range exps {
		if !e.IsC0() {
			return nil, fmt.Errorf("%w: element %d expansion has no boundary modes", utils.ErrConfig, elements[i])
		}
	}
	if id, err = newIdentification(m); err != nil {
		return
	}
	var (
		dir      = id.dirichletEntities(m)
		counts   = make(map[entity]int)
		faceDims = make(map[int][2]int)
		elmtEnts = make([][]entity, len(exps))
	)
	setCount := func(ent entity, n int, k int) error {
		if old, ok := counts[ent]; ok && old != n {
			return fmt.Errorf("%w: element %d has %d modes on %v, a neighbour has %d", utils.ErrConfig,
				k, n, ent, old)
		}
		counts[ent] = n
		return nil
	}
	for i, k := range elements {
		el, e := &m.Elements[k], exps[i]
		elmtEnts[i] = id.entities(m, el)
		for _, v := range el.Verts {
			counts[entity{vertexEnt, id.vert[v]}] = 1
		}
		if m.Dim >= 2 {
			for le, ge := range el.Edges {
				if err = setCount(entity{edgeEnt, id.edge[ge]}, e.EdgeNumModes(le), k); err != nil {
					return
				}
			}
		}
		for lf, gf := range el.Faces {
			na, nb := e.FaceNumModes(lf)
			ns, nt := el.FaceOrient[lf].CanonicalDims(na, nb)
			if d, ok := faceDims[gf]; ok && d != [2]int{ns, nt} {
				return nil, fmt.Errorf("%w: face %d has %dx%d modes in element %d, %dx%d in a neighbour",
					utils.ErrConfig, gf, ns, nt, k, d[0], d[1])
			}
			faceDims[gf] = [2]int{ns, nt}
			counts[entity{faceEnt, gf}] = ns * nt
		}
	}

	// Dirichlet entities first, then the rest, each by kind and id
	var dirEnts, freeEnts []entity
	for ent := range counts {
		if counts[ent] == 0 {
			continue
		}
		if dir[ent] {
			dirEnts = append(dirEnts, ent)
		} else {
			freeEnts = append(freeEnts, ent)
		}
	}
	sortEntities(dirEnts)
	sortEntities(freeEnts)
	if opts.RCM && len(freeEnts) > 1 {
		freeEnts = rcmEntities(freeEnts, elmtEnts)
	}
	am = &Map{
		kind:     Continuous,
		solnType: opts.SolnType,
		precon:   opts.Precon,
		comm:     opts.comm(),
		elements: elements,
	}
	offset := make(map[entity]int, len(counts))
	var nb int
	for _, ent := range dirEnts {
		offset[ent] = nb
		nb += counts[ent]
	}
	am.numGlobalDirBndCoeffs = nb
	for _, ent := range freeEnts {
		offset[ent] = nb
		nb += counts[ent]
		switch ent.kind {
		case vertexEnt:
			am.nonDirVertexModes += counts[ent]
		case edgeEnt:
			am.nonDirEdgeModes += counts[ent]
		case faceEnt:
			am.nonDirFaceModes += counts[ent]
		}
	}
	am.numGlobalBndCoeffs = nb

	// Element maps
	var (
		lmaps  = make([][]int, len(exps))
		lsigns = make([][]float64, len(exps))
		nInt   int
	)
	for i, k := range elements {
		lmaps[i], lsigns[i] = elementMap(m, id, &m.Elements[k], exps[i], offset, nb+nInt)
		nInt += len(exps[i].InteriorMap())
	}
	am.numGlobalCoeffs = nb + nInt
	am.fillLocal(exps, lmaps, lsigns)
	am.fillBndCond(m, id, exps, lmaps, lsigns)
	if err = am.fillUniversal(ctx, m, id, exps, offset, counts, opts); err != nil {
		return nil, err
	}
	am.finish()
	opts.logger().Debug("built continuous assembly map",
		"elements", len(exps), "global", am.numGlobalCoeffs, "boundary", am.numGlobalBndCoeffs,
		"dirichlet", am.numGlobalDirBndCoeffs, "bandwidth", am.bandwidth)
	return
}

func sortEntities(ents []entity) {
	sort.Slice(ents, func(i, j int) bool {
		if ents[i].kind != ents[j].kind {
			return ents[i].kind < ents[j].kind
		}
		return ents[i].id < ents[j].id
	})
}

func rcmEntities(free []entity, elmtEnts [][]entity) []entity {
	index := make(map[entity]int, len(free))
	for i, ent := range free {
		index[ent] = i
	}
	groups := make([][]int, len(elmtEnts))
	for i, ents := range elmtEnts {
		for _, ent := range ents {
			if j, ok := index[ent]; ok {
				groups[i] = append(groups[i], j)
			}
		}
	}
	order := reverseCuthillMcKee(couplingGraph(len(free), groups))
	out := make([]entity, len(free))
	for i, j := range order {
		out[i] = free[j]
	}
	return out
}

// elementMap returns the global id and sign of every coefficient of one
// element; interior modes are numbered from intBase
func elementMap(m *mesh.Mesh, id *identification, el *mesh.Element, e expansion.Expansion,
	offset map[entity]int, intBase int) (lmap []int, lsign []float64) {
	nc := e.NumCoeffs()
	lmap, lsign = make([]int, nc), make([]float64, nc)
	for i := range lmap {
		lmap[i] = -1
	}
	set := func(mode, g int, s float64) {
		lmap[mode], lsign[mode] = g, s
	}
	for lv, v := range el.Verts {
		set(e.VertexMap(lv), offset[entity{vertexEnt, id.vert[v]}], 1)
	}
	if m.Dim >= 2 {
		for le, ge := range el.Edges {
			modes, signs := e.EdgeInteriorMap(le, id.edgeOrient(el, le))
			base := offset[entity{edgeEnt, id.edge[ge]}]
			for s, mode := range modes {
				set(mode, base+s, signs[s])
			}
		}
	}
	for lf, gf := range el.Faces {
		modes, signs := e.FaceInteriorMap(lf, el.FaceOrient[lf])
		base := offset[entity{faceEnt, gf}]
		for s, mode := range modes {
			set(mode, base+s, signs[s])
		}
	}
	for j, mode := range e.InteriorMap() {
		set(mode, intBase+j, 1)
	}
	for i, g := range lmap {
		if g < 0 {
			panic(fmt.Errorf("element %d coefficient %d has no global id", el.ID, i))
		}
	}
	return
}

func (am *Map) fillLocal(exps []expansion.Expansion, lmaps [][]int, lsigns [][]float64) {
	am.offsets = make([]int, len(exps)+1)
	am.bndOffsets = make([]int, len(exps)+1)
	for i, e := range exps {
		am.elmtBndMaps = append(am.elmtBndMaps, e.BoundaryMap())
		am.elmtIntMaps = append(am.elmtIntMaps, e.InteriorMap())
		am.localToGlobal = append(am.localToGlobal, lmaps[i]...)
		am.localToGlobalSign = append(am.localToGlobalSign, lsigns[i]...)
		for _, mode := range e.BoundaryMap() {
			g := lmaps[i][mode]
			am.localToGlobalBnd = append(am.localToGlobalBnd, g)
			am.localToGlobalBndSign = append(am.localToGlobalBndSign, lsigns[i][mode])
			if g < am.numGlobalDirBndCoeffs {
				am.numLocalDirBndCoeffs++
			}
		}
		am.offsets[i+1] = am.offsets[i] + e.NumCoeffs()
		am.bndOffsets[i+1] = am.bndOffsets[i] + len(e.BoundaryMap())
	}
	am.numLocalCoeffs = am.offsets[len(exps)]
	am.numLocalBndCoeffs = am.bndOffsets[len(exps)]
}

// fillBndCond lists, per non-periodic boundary facet in region order, the global
// coefficients of its vertices, edges and faces
func (am *Map) fillBndCond(m *mesh.Mesh, id *identification, exps []expansion.Expansion,
	lmaps [][]int, lsigns [][]float64) {
	local := make(map[int]int, len(am.elements))
	for i, k := range am.elements {
		local[k] = i
	}
	am.bndCondOffsets = []int{0}
	for _, r := range m.Regions {
		if r.Kind == utils.BCPeriodic {
			continue
		}
		for _, fr := range r.Facets {
			i, ok := local[fr.Elmt]
			if !ok {
				continue
			}
			el, e := &m.Elements[fr.Elmt], exps[i]
			vs, es, fs := facetLocal(el.Shape, fr.Facet)
			add := func(mode int) {
				am.bndCondCoeffsToGlobal = append(am.bndCondCoeffsToGlobal, lmaps[i][mode])
				am.bndCondCoeffsToGlobalSign = append(am.bndCondCoeffsToGlobalSign, lsigns[i][mode])
			}
			for _, lv := range vs {
				add(e.VertexMap(lv))
			}
			for _, le := range es {
				modes, _ := e.EdgeInteriorMap(le, id.edgeOrient(el, le))
				for _, mode := range modes {
					add(mode)
				}
			}
			for _, lf := range fs {
				modes, _ := e.FaceInteriorMap(lf, el.FaceOrient[lf])
				for _, mode := range modes {
					add(mode)
				}
			}
			am.bndCondOffsets = append(am.bndCondOffsets, len(am.bndCondCoeffsToGlobal))
			am.bndCondTraceToGlobalTrace = append(am.bndCondTraceToGlobalTrace, m.FacetEntity(fr.Elmt, fr.Facet))
		}
	}
}

// fillUniversal numbers coefficients across partitions: vertices by id, then
// edges and faces with a stride of their largest mode count over all ranks,
// then element interiors by element id
func (am *Map) fillUniversal(ctx context.Context, m *mesh.Mesh, id *identification, exps []expansion.Expansion,
	offset map[entity]int, counts map[entity]int, opts *Options) (err error) {
	var maxE, maxF, maxI int
	for ent, n := range counts {
		switch ent.kind {
		case edgeEnt:
			maxE = max(maxE, n)
		case faceEnt:
			maxF = max(maxF, n)
		}
	}
	for _, e := range exps {
		maxI = max(maxI, len(e.InteriorMap()))
	}
	for _, p := range []*int{&maxE, &maxF, &maxI} {
		if *p, err = am.comm.AllReduceMax(ctx, *p); err != nil {
			return
		}
	}
	var (
		nV, nE, nF = len(m.Vertices), len(m.Edges), len(m.Faces)
		intBase    = nV + nE*maxE + nF*maxF
		nb         = am.numGlobalBndCoeffs
		rank       = am.comm.Rank()
		owner      = make(map[entity]int)
	)
	am.globalToUniversal = make([]int, am.numGlobalCoeffs)
	am.globalToUniversalBndUnique = make([]int, nb)
	if opts.Partition != nil {
		for k := range m.Elements {
			for _, ent := range id.entities(m, &m.Elements[k]) {
				if r, ok := owner[ent]; !ok || opts.Partition[k] < r {
					owner[ent] = opts.Partition[k]
				}
			}
		}
	}
	for ent, base := range offset {
		for s := 0; s < counts[ent]; s++ {
			var u int
			switch ent.kind {
			case vertexEnt:
				u = ent.id
			case edgeEnt:
				u = nV + ent.id*maxE + s
			case faceEnt:
				u = nV + nE*maxE + ent.id*maxF + s
			}
			am.globalToUniversal[base+s] = u
			if r, ok := owner[ent]; !ok || r == rank {
				am.globalToUniversalBndUnique[base+s] = 1
			}
		}
	}
	g := nb
	for i, k := range am.elements {
		for j := range exps[i].InteriorMap() {
			am.globalToUniversal[g] = intBase + k*maxI + j
			g++
		}
	}
	am.globalToUniversalBnd = am.globalToUniversal[:nb]
	return
}
