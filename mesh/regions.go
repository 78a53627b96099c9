package mesh

import (
	"fmt"
	"math"

	"github.com/notargets/gohp/geometry"
	"github.com/notargets/gohp/utils"
)

// BoundaryRegion is a named set of boundary facets sharing one condition kind
type BoundaryRegion struct {
	ID     int
	Name   string
	Kind   utils.BCType
	Paired int // Periodic partner region, -1 if none
	Facets []FacetRef
}

// PeriodicPair identifies two facet entities (vertices, edges or faces)
type PeriodicPair struct {
	A, B int
	// Reversed is set for edges whose global directions disagree
	Reversed bool
	// Orient relates the canonical frame of face A to that of face B
	Orient geometry.FaceOrient
}

// AddRegion groups boundary facets into a region
func (m *Mesh) AddRegion(name string, kind utils.BCType, facets []FacetRef) (id int, err error) {
	if _, ok := m.regionIndex(name); ok {
		return -1, fmt.Errorf("%w: duplicate boundary region %q", utils.ErrConfig, name)
	}
	claimed := m.FacetRegions()
	for _, fr := range facets {
		if fr.Elmt < 0 || fr.Elmt >= len(m.Elements) || fr.Facet < 0 || fr.Facet >= len(m.EToE[fr.Elmt]) {
			return -1, fmt.Errorf("%w: region %q: facet %v out of range", utils.ErrConfig, name, fr)
		}
		if m.EToE[fr.Elmt][fr.Facet] != -1 {
			return -1, fmt.Errorf("%w: region %q: facet %v is interior", utils.ErrConfig, name, fr)
		}
		if r, ok := claimed[fr]; ok {
			return -1, fmt.Errorf("%w: region %q: facet %v already in region %q", utils.ErrConfig, name, fr,
				m.Regions[r].Name)
		}
	}
	id = len(m.Regions)
	m.Regions = append(m.Regions, BoundaryRegion{
		ID:     id,
		Name:   name,
		Kind:   kind,
		Paired: -1,
		Facets: append([]FacetRef(nil), facets...),
	})
	return
}

func (m *Mesh) regionIndex(name string) (int, bool) {
	for i, r := range m.Regions {
		if r.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Region looks up a boundary region by name
func (m *Mesh) Region(name string) (r *BoundaryRegion, err error) {
	i, ok := m.regionIndex(name)
	if !ok {
		return nil, fmt.Errorf("%w: no boundary region %q", utils.ErrConfig, name)
	}
	return &m.Regions[i], nil
}

// SetKind changes the condition kind of a region. Periodic regions are made
// with PairRegions.
func (m *Mesh) SetKind(name string, kind utils.BCType) (err error) {
	var r *BoundaryRegion
	if r, err = m.Region(name); err != nil {
		return
	}
	if r.Paired >= 0 && kind != utils.BCPeriodic {
		return fmt.Errorf("%w: region %q is periodic with %q", utils.ErrConfig, name, m.Regions[r.Paired].Name)
	}
	r.Kind = kind
	return
}

// FacetRegions maps every facet in a region to the region id
func (m *Mesh) FacetRegions() (fr map[FacetRef]int) {
	fr = make(map[FacetRef]int)
	for _, r := range m.Regions {
		for _, f := range r.Facets {
			fr[f] = r.ID
		}
	}
	return
}

func (m *Mesh) extent() (size float64) {
	if len(m.Vertices) == 0 {
		return 1
	}
	lo, hi := m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices {
		for c := 0; c < 3; c++ {
			lo[c], hi[c] = math.Min(lo[c], v[c]), math.Max(hi[c], v[c])
		}
	}
	return math.Max(1, hi.Sub(lo).Norm())
}

// PairRegions makes regions a and b periodic: every facet of a, translated
// by shift, must coincide with a facet of b
func (m *Mesh) PairRegions(a, b int, shift geometry.Vec3) error {
	if a < 0 || b < 0 || a >= len(m.Regions) || b >= len(m.Regions) || a == b {
		return fmt.Errorf("%w: periodic pairing of regions %d and %d", utils.ErrConfig, a, b)
	}
	ra, rb := &m.Regions[a], &m.Regions[b]
	if ra.Paired >= 0 || rb.Paired >= 0 {
		return fmt.Errorf("%w: region %q or %q is already paired", utils.ErrConfig, ra.Name, rb.Name)
	}
	if len(ra.Facets) != len(rb.Facets) {
		return fmt.Errorf("%w: periodic regions %q and %q have %d and %d facets", utils.ErrConfig,
			ra.Name, rb.Name, len(ra.Facets), len(rb.Facets))
	}
	var (
		tol   = 1.e-8 * m.extent()
		used  = make([]bool, len(rb.Facets))
		vmap  = make(map[int]int)
		pairs []PeriodicPair
	)
	match := func(va, vb []int, local map[int]int) bool {
		for _, i := range va {
			x := m.Vertices[i].Add(shift)
			found := false
			for _, j := range vb {
				if x.Sub(m.Vertices[j]).Norm() < tol {
					local[i], found = j, true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
	for _, fa := range ra.Facets {
		va := m.FacetVerts(fa.Elmt, fa.Facet)
		matched := false
		for ib, fb := range rb.Facets {
			if used[ib] {
				continue
			}
			local := make(map[int]int)
			if !match(va, m.FacetVerts(fb.Elmt, fb.Facet), local) {
				continue
			}
			used[ib], matched = true, true
			for i, j := range local {
				vmap[i] = j
			}
			pp := PeriodicPair{A: m.FacetEntity(fa.Elmt, fa.Facet), B: m.FacetEntity(fb.Elmt, fb.Facet)}
			switch m.Dim {
			case 2:
				pp.Reversed = local[m.Edges[pp.A].V[0]] != m.Edges[pp.B].V[0]
			case 3:
				fA, fB := m.Faces[pp.A].V, m.Faces[pp.B].V
				pp.Orient = geometry.FaceOrientation([4]int{local[fA[0]], local[fA[1]], local[fA[2]], local[fA[3]]}, fB)
			}
			pairs = append(pairs, pp)
			break
		}
		if !matched {
			return fmt.Errorf("%w: region %q facet %v has no periodic image in %q", utils.ErrConfig,
				ra.Name, fa, rb.Name)
		}
	}
	m.Periodic = append(m.Periodic, pairs...)
	seen := make(map[[2]int]bool)
	for _, p := range m.VertexPairs {
		seen[p] = true
	}
	for _, i := range sortedKeys(vmap) {
		p := [2]int{i, vmap[i]}
		if !seen[p] {
			m.VertexPairs = append(m.VertexPairs, p)
			seen[p] = true
		}
	}
	ra.Kind, rb.Kind = utils.BCPeriodic, utils.BCPeriodic
	ra.Paired, rb.Paired = b, a
	return nil
}

func sortedKeys(mp map[int]int) utils.Index {
	keys := make(utils.Index, 0, len(mp))
	for k := range mp {
		keys = append(keys, k)
	}
	return keys.Sorted()
}

// CheckPeriodic verifies that every periodic region names an existing
// periodic partner that names it back
func (m *Mesh) CheckPeriodic() error {
	for _, r := range m.Regions {
		if r.Kind != utils.BCPeriodic {
			continue
		}
		if r.Paired < 0 || r.Paired >= len(m.Regions) {
			return fmt.Errorf("%w: periodic region %q has no partner region", utils.ErrConfig, r.Name)
		}
		p := m.Regions[r.Paired]
		if p.Kind != utils.BCPeriodic || p.Paired != r.ID {
			return fmt.Errorf("%w: periodic region %q is not paired back by %q", utils.ErrConfig, r.Name, p.Name)
		}
	}
	return nil
}
