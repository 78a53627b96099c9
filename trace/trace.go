// Package trace evaluates fields on the mesh skeleton for flux based
// schemes. Every trace has a forward side, the adjacent element with the
// lower mesh element id, and a backward side which is the neighbour or, on
// the boundary, boundary data.
package trace

import (
	"context"
	"fmt"

	"github.com/notargets/gohp/assembly"
	"github.com/notargets/gohp/expansion"
	"github.com/notargets/gohp/mesh"
	"github.com/notargets/gohp/utils"
)

// Side is local facet Facet of local element Elmt; Elmt is -1 for a missing side
type Side struct {
	Elmt, Facet int
}

// Map holds the forward and backward designation of every trace
type Map struct {
	am   *assembly.Map
	exps []expansion.Expansion

	fwd, bwd []Side
	kinds    []utils.BCType // Boundary kind per trace, BCNone when two sided
	normals  [][]float64    // Outward normals of the forward side, trace ordered

	physOffsets, coeffOffsets []int
	bndElmts, bndFacets       []int
}

// New builds the trace map of the expansions over the mesh. opts selects a
// subset of elements and the communicator as for assembly maps.
func New(ctx context.Context, m *mesh.Mesh, exps []expansion.Expansion, opts *assembly.Options) (tm *Map, err error) {
	var am *assembly.Map
	if am, err = assembly.NewDiscontinuousMap(ctx, m, exps, opts); err != nil {
		return
	}
	nt := am.NumTraces()
	tm = &Map{
		am:    am,
		exps:  exps,
		fwd:   make([]Side, nt),
		bwd:   make([]Side, nt),
		kinds: make([]utils.BCType, nt),
	}
	for t := range tm.fwd {
		tm.fwd[t], tm.bwd[t] = Side{-1, -1}, Side{-1, -1}
	}
	tm.physOffsets, tm.coeffOffsets = []int{0}, []int{0}
	for i, e := range exps {
		tm.physOffsets = append(tm.physOffsets, tm.physOffsets[i]+e.NumPoints())
		tm.coeffOffsets = append(tm.coeffOffsets, tm.coeffOffsets[i]+e.NumCoeffs())
		for f := 0; f < e.NumFacets(); f++ {
			t := am.FacetTrace(i, f)
			s := Side{i, f}
			switch {
			case tm.fwd[t].Elmt < 0:
				tm.fwd[t] = s
			case tm.bwd[t].Elmt >= 0:
				return nil, fmt.Errorf("%w: trace %d is shared by more than two facets", utils.ErrConfig, t)
			case am.Element(i) < am.Element(tm.fwd[t].Elmt):
				tm.fwd[t], tm.bwd[t] = s, tm.fwd[t]
			default:
				tm.bwd[t] = s
			}
		}
	}
	local := make(map[int]int, len(exps))
	for i := range exps {
		local[am.Element(i)] = i
	}
	for _, r := range m.Regions {
		if r.Kind == utils.BCPeriodic {
			continue
		}
		for _, fr := range r.Facets {
			i, ok := local[fr.Elmt]
			if !ok {
				continue
			}
			tm.kinds[am.FacetTrace(i, fr.Facet)] = r.Kind
			tm.bndElmts = append(tm.bndElmts, i)
			tm.bndFacets = append(tm.bndFacets, fr.Facet)
		}
	}
	tm.normals = tm.forwardNormals()
	return
}

func (tm *Map) forwardNormals() (normals [][]float64) {
	var (
		lmap = tm.am.LocalToGlobalMap()
		n    = tm.am.NumGlobalCoeffs()
	)
	for _, s := range tm.fwd {
		e := tm.exps[s.Elmt]
		fn := e.FacetNormals(s.Facet)
		if normals == nil {
			normals = make([][]float64, len(fn))
			for c := range normals {
				normals[c] = make([]float64, n)
			}
		}
		base := tm.am.ElmtOffset(s.Elmt) + tm.am.FacetOffset(s.Elmt, s.Facet)
		for q := range fn[0] {
			g := lmap[base+q]
			for c := range fn {
				normals[c][g] = fn[c][q]
			}
		}
	}
	return
}

// AssemblyMap is the trace space map, Dirichlet traces first
func (tm *Map) AssemblyMap() *assembly.Map { return tm.am }

func (tm *Map) NumTraces() int { return len(tm.fwd) }

// NumTracePoints is the length of the trace ordered arrays
func (tm *Map) NumTracePoints() int { return tm.am.NumGlobalCoeffs() }

// TracePoints returns the range [lo, hi) of trace t in trace ordered arrays
func (tm *Map) TracePoints(t int) (lo, hi int) {
	return tm.am.TraceOffset(t), tm.am.TraceOffset(t + 1)
}

func (tm *Map) Fwd(t int) Side { return tm.fwd[t] }

// Bwd is the backward side of trace t, with Elmt -1 on the boundary
func (tm *Map) Bwd(t int) Side { return tm.bwd[t] }

// Kind is the boundary condition kind of trace t, BCNone for two sided traces
func (tm *Map) Kind(t int) utils.BCType { return tm.kinds[t] }

// IsForward reports whether local element i is the forward side of its facet f
func (tm *Map) IsForward(i, f int) bool {
	return tm.fwd[tm.am.FacetTrace(i, f)] == Side{i, f}
}

// Normals are the outward normals of the forward sides, trace ordered, one
// slice per coordinate direction
func (tm *Map) Normals() [][]float64 { return tm.normals }

// BoundaryToElmtMap lists the local element and facet of every boundary
// facet, in boundary region order
func (tm *Map) BoundaryToElmtMap() (elmts, facets []int) { return tm.bndElmts, tm.bndFacets }

func (tm *Map) checkPhys(op string, phys []float64) {
	if n := tm.physOffsets[len(tm.exps)]; len(phys) != n {
		panic(fmt.Errorf("%s: %d physical values for %d", op, len(phys), n))
	}
}

func (tm *Map) checkTrace(op string, vals []float64) {
	if len(vals) != tm.NumTracePoints() {
		panic(fmt.Errorf("%s: %d trace values for %d", op, len(vals), tm.NumTracePoints()))
	}
}

// eachFacet calls fn with the facet values of phys and the trace index of
// every facet point
func (tm *Map) eachFacet(phys []float64, fn func(i, f int, vals []float64, gids []int)) {
	lmap := tm.am.LocalToGlobalMap()
	for i, e := range tm.exps {
		p := phys[tm.physOffsets[i]:tm.physOffsets[i+1]]
		for f := 0; f < e.NumFacets(); f++ {
			lo := tm.am.ElmtOffset(i) + tm.am.FacetOffset(i, f)
			fn(i, f, e.FacetPhys(p, f), lmap[lo:lo+e.FacetNumPoints(f)])
		}
	}
}

// GetFwdBwdTracePhys fills trace ordered forward and backward values of the
// concatenated element physical values phys. Backward values of Dirichlet
// boundary traces are taken from bnd, trace ordered; other boundary traces
// and a nil bnd copy the forward value.
func (tm *Map) GetFwdBwdTracePhys(phys, bnd, fwd, bwd []float64) {
	tm.checkPhys("GetFwdBwdTracePhys", phys)
	if bnd != nil {
		tm.checkTrace("GetFwdBwdTracePhys", bnd)
	}
	tm.checkTrace("GetFwdBwdTracePhys", fwd)
	tm.checkTrace("GetFwdBwdTracePhys", bwd)
	tm.eachFacet(phys, func(i, f int, vals []float64, gids []int) {
		out := bwd
		if tm.IsForward(i, f) {
			out = fwd
		}
		for q, g := range gids {
			out[g] = vals[q]
		}
	})
	for t, s := range tm.bwd {
		if s.Elmt >= 0 {
			continue
		}
		lo, hi := tm.TracePoints(t)
		if bnd != nil && tm.kinds[t].IsEssential() {
			copy(bwd[lo:hi], bnd[lo:hi])
		} else {
			copy(bwd[lo:hi], fwd[lo:hi])
		}
	}
}

// ExtractTracePhys overwrites out with the forward trace values of phys
func (tm *Map) ExtractTracePhys(phys, out []float64) {
	tm.checkPhys("ExtractTracePhys", phys)
	tm.checkTrace("ExtractTracePhys", out)
	tm.eachFacet(phys, func(i, f int, vals []float64, gids []int) {
		if !tm.IsForward(i, f) {
			return
		}
		for q, g := range gids {
			out[g] = vals[q]
		}
	})
}

// addIntegrals adds the facet integrals of the trace values fwd into the
// forward elements and of -bwd into the backward elements of the
// concatenated coefficients out
func (tm *Map) addIntegrals(fwd, bwd, out []float64) {
	if n := tm.coeffOffsets[len(tm.exps)]; len(out) != n {
		panic(fmt.Errorf("trace integral: %d coefficients for %d", len(out), n))
	}
	lmap := tm.am.LocalToGlobalMap()
	for i, e := range tm.exps {
		o := out[tm.coeffOffsets[i]:tm.coeffOffsets[i+1]]
		for f := 0; f < e.NumFacets(); f++ {
			var (
				lo   = tm.am.ElmtOffset(i) + tm.am.FacetOffset(i, f)
				vals = make([]float64, e.FacetNumPoints(f))
				src  = bwd
				sgn  = -1.
			)
			if tm.IsForward(i, f) {
				src, sgn = fwd, 1
			}
			for q := range vals {
				vals[q] = sgn * src[lmap[lo+q]]
			}
			e.FacetIProduct(f, vals, o)
		}
	}
}

// AddTraceIntegral adds the integral of the trace ordered flux fn times each
// test function over every facet into out. fn is taken along the forward
// normal, so it enters the backward element with a minus sign.
func (tm *Map) AddTraceIntegral(fn, out []float64) {
	tm.checkTrace("AddTraceIntegral", fn)
	tm.addIntegrals(fn, fn, out)
}

// AddTraceIntegralVec adds the trace integral of the normal component of the
// flux (fx, fy, fz); unused components may be nil
func (tm *Map) AddTraceIntegralVec(fx, fy, fz, out []float64) {
	fn := make([]float64, tm.NumTracePoints())
	for c, fc := range [][]float64{fx, fy, fz} {
		if fc == nil || c >= len(tm.normals) {
			continue
		}
		tm.checkTrace("AddTraceIntegralVec", fc)
		for g, v := range fc {
			fn[g] += v * tm.normals[c][g]
		}
	}
	tm.addIntegrals(fn, fn, out)
}

// AddTraceBiIntegral adds fwd into the forward elements and -bwd into the
// backward elements
func (tm *Map) AddTraceBiIntegral(fwd, bwd, out []float64) {
	tm.checkTrace("AddTraceBiIntegral", fwd)
	tm.checkTrace("AddTraceBiIntegral", bwd)
	tm.addIntegrals(fwd, bwd, out)
}
