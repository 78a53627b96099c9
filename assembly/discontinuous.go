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

// traceData is the skeleton numbering held by discontinuous maps
type traceData struct {
	entities     []int   // Representative facet entity of every trace
	offsets      []int   // Global offset of every trace, plus the total
	facetTrace   [][]int // Trace of each local facet per element
	facetOffsets [][]int // Local offset of each facet per element, plus the element total
}

// NewDiscontinuousMap numbers the trace space of the mesh skeleton. Local
// values are the facet points of every element, facets in local order; the
// global values are the points of every trace in the canonical order of its
// facet entity, Dirichlet traces first. Periodic images share one trace.
func NewDiscontinuousMap(ctx context.Context, m *mesh.Mesh, exps []expansion.Expansion,
	opts *Options) (am *Map, err error) {
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
	if id, err = newIdentification(m); err != nil {
		return
	}
	rep := func(el *mesh.Element, f int) int {
		switch m.Dim {
		case 1:
			return id.vert[el.Verts[f]]
		case 2:
			return id.edge[el.Edges[f]]
		}
		return el.Faces[f]
	}
	var (
		dims = make(map[int][2]int)
		dir  = make(map[int]bool)
	)
	for i, k := range elements {
		el, e := &m.Elements[k], exps[i]
		if e.NumFacets() != el.Shape.NumFacets() {
			return nil, fmt.Errorf("%w: element %d expansion has %d facets", utils.ErrConfig, k, e.NumFacets())
		}
		for f := 0; f < e.NumFacets(); f++ {
			var ns, nt = e.FacetNumPoints(f), 1
			if m.Dim == 3 {
				d := e.FacetPointsDims(f)
				ns, nt = el.FaceOrient[f].CanonicalDims(d[0], d[1])
			}
			t := rep(el, f)
			if d, ok := dims[t]; ok && d != [2]int{ns, nt} {
				return nil, fmt.Errorf("%w: element %d facet %d has %dx%d trace points, a neighbour has %dx%d",
					utils.ErrConfig, k, f, ns, nt, d[0], d[1])
			}
			dims[t] = [2]int{ns, nt}
		}
	}
	for _, r := range m.Regions {
		if !r.Kind.IsEssential() {
			continue
		}
		for _, fr := range r.Facets {
			dir[rep(&m.Elements[fr.Elmt], fr.Facet)] = true
		}
	}
	var dirTr, freeTr []int
	for t := range dims {
		if dir[t] {
			dirTr = append(dirTr, t)
		} else {
			freeTr = append(freeTr, t)
		}
	}
	sort.Ints(dirTr)
	sort.Ints(freeTr)

	am = &Map{
		kind:     Discontinuous,
		solnType: opts.SolnType,
		precon:   opts.Precon,
		comm:     opts.comm(),
		elements: elements,
		trace:    &traceData{offsets: []int{0}},
	}
	var (
		td    = am.trace
		index = make(map[int]int, len(dims))
	)
	for _, t := range append(dirTr, freeTr...) {
		index[t] = len(td.entities)
		td.entities = append(td.entities, t)
		d := dims[t]
		td.offsets = append(td.offsets, td.offsets[len(td.offsets)-1]+d[0]*d[1])
		if dir[t] {
			am.numGlobalDirBndCoeffs = td.offsets[len(td.offsets)-1]
		}
	}
	am.numGlobalBndCoeffs = td.offsets[len(td.offsets)-1]
	am.numGlobalCoeffs = am.numGlobalBndCoeffs

	am.offsets = []int{0}
	for i, k := range elements {
		var (
			el, e = &m.Elements[k], exps[i]
			ft    = make([]int, e.NumFacets())
			fo    = []int{0}
			lo    = am.offsets[i]
		)
		for f := range ft {
			t := index[rep(el, f)]
			ft[f] = t
			base := td.offsets[t]
			for q := 0; q < e.FacetNumPoints(f); q++ {
				am.localToGlobal = append(am.localToGlobal, base+facetPointPos(m, id, el, e, f, q))
				am.localToGlobalSign = append(am.localToGlobalSign, 1)
			}
			fo = append(fo, fo[f]+e.FacetNumPoints(f))
		}
		td.facetTrace = append(td.facetTrace, ft)
		td.facetOffsets = append(td.facetOffsets, fo)
		n := fo[len(fo)-1]
		am.offsets = append(am.offsets, lo+n)
		am.elmtBndMaps = append(am.elmtBndMaps, utils.NewRange(0, n-1))
		am.elmtIntMaps = append(am.elmtIntMaps, nil)
	}
	am.bndOffsets = am.offsets
	am.localToGlobalBnd = am.localToGlobal
	am.localToGlobalBndSign = am.localToGlobalSign
	am.numLocalCoeffs = am.offsets[len(elements)]
	am.numLocalBndCoeffs = am.numLocalCoeffs
	for _, g := range am.localToGlobal {
		if g < am.numGlobalDirBndCoeffs {
			am.numLocalDirBndCoeffs++
		}
	}
	am.fillTraceBndCond(m, rep, index)
	if err = am.fillTraceUniversal(ctx, m, elements, opts, rep); err != nil {
		return nil, err
	}
	am.finish()
	opts.logger().Debug("built discontinuous assembly map",
		"elements", len(exps), "traces", len(td.entities), "points", am.numGlobalCoeffs,
		"dirichlet", am.numGlobalDirBndCoeffs)
	return
}

// facetPointPos is the canonical trace position of point q of local facet f
func facetPointPos(m *mesh.Mesh, id *identification, el *mesh.Element, e expansion.Expansion, f, q int) int {
	switch m.Dim {
	case 2:
		if id.edgeOrient(el, f) == geometry.Backwards {
			return e.FacetNumPoints(f) - 1 - q
		}
	case 3:
		d := e.FacetPointsDims(f)
		o := el.FaceOrient[f]
		s, t := o.ToCanonical(q%d[0], q/d[0], d[0], d[1])
		ns, _ := o.CanonicalDims(d[0], d[1])
		return s + t*ns
	}
	return q
}

// fillTraceBndCond lists the trace points of every non-periodic boundary facet
func (am *Map) fillTraceBndCond(m *mesh.Mesh, rep func(*mesh.Element, int) int, index map[int]int) {
	td := am.trace
	am.bndCondOffsets = []int{0}
	local := make(map[int]bool, len(am.elements))
	for _, k := range am.elements {
		local[k] = true
	}
	for _, r := range m.Regions {
		if r.Kind == utils.BCPeriodic {
			continue
		}
		for _, fr := range r.Facets {
			if !local[fr.Elmt] {
				continue
			}
			t := index[rep(&m.Elements[fr.Elmt], fr.Facet)]
			for g := td.offsets[t]; g < td.offsets[t+1]; g++ {
				am.bndCondCoeffsToGlobal = append(am.bndCondCoeffsToGlobal, g)
				am.bndCondCoeffsToGlobalSign = append(am.bndCondCoeffsToGlobalSign, 1)
			}
			am.bndCondOffsets = append(am.bndCondOffsets, len(am.bndCondCoeffsToGlobal))
			am.bndCondTraceToGlobalTrace = append(am.bndCondTraceToGlobalTrace, t)
		}
	}
}

// fillTraceUniversal numbers trace points across partitions by facet entity
// with a stride of the largest trace over all ranks
func (am *Map) fillTraceUniversal(ctx context.Context, m *mesh.Mesh, elements []int, opts *Options,
	rep func(*mesh.Element, int) int) (err error) {
	var (
		td     = am.trace
		maxPts int
		rank   = am.comm.Rank()
		owner  = make(map[int]int)
	)
	for t := range td.entities {
		maxPts = max(maxPts, td.offsets[t+1]-td.offsets[t])
	}
	if maxPts, err = am.comm.AllReduceMax(ctx, maxPts); err != nil {
		return
	}
	if opts.Partition != nil {
		for k := range m.Elements {
			el := &m.Elements[k]
			for f := 0; f < el.Shape.NumFacets(); f++ {
				t := rep(el, f)
				if r, ok := owner[t]; !ok || opts.Partition[k] < r {
					owner[t] = opts.Partition[k]
				}
			}
		}
	}
	am.globalToUniversal = make([]int, am.numGlobalCoeffs)
	am.globalToUniversalBndUnique = make([]int, am.numGlobalCoeffs)
	for t, ent := range td.entities {
		for g := td.offsets[t]; g < td.offsets[t+1]; g++ {
			am.globalToUniversal[g] = ent*maxPts + g - td.offsets[t]
			if r, ok := owner[ent]; !ok || r == rank {
				am.globalToUniversalBndUnique[g] = 1
			}
		}
	}
	am.globalToUniversalBnd = am.globalToUniversal
	return
}

// NumTraces counts the traces of a discontinuous map, zero otherwise
func (am *Map) NumTraces() int {
	if am.trace == nil {
		return 0
	}
	return len(am.trace.entities)
}

// TraceEntity is the mesh vertex, edge or face of trace t
func (am *Map) TraceEntity(t int) int { return am.trace.entities[t] }

// TraceOffset is the global offset of trace t; TraceOffset(NumTraces()) is the total
func (am *Map) TraceOffset(t int) int { return am.trace.offsets[t] }

// FacetTrace is the trace of local facet f of local element i
func (am *Map) FacetTrace(i, f int) int { return am.trace.facetTrace[i][f] }

// FacetOffset is the offset of local facet f within the values of local
// element i; FacetOffset(i, NumFacets) is the element total
func (am *Map) FacetOffset(i, f int) int { return am.trace.facetOffsets[i][f] }
