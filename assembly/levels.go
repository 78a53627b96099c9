package assembly

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph/simple"

	"github.com/notargets/gohp/utils"
)

// PatchEntry locates a previous level local boundary coefficient inside a
// patch of the next level
type PatchEntry struct {
	Patch int // -1 for Dirichlet coefficients, Index is then the global id
	Index int // Position in the patch boundary or interior list
	IsBnd bool
	Sign  float64
}

// Level is one stage of multi-level static condensation. Level 0 has the
// elements as patches. Every further level glues groups of patches of the
// previous level; coefficients private to a group become patch interior.
type Level struct {
	Index      int
	NumPatches int

	NumLocalBndCoeffsPerPatch []int
	NumLocalIntCoeffsPerPatch []int
	// Patch boundary coefficients to level global ids, patch after patch
	LocalToGlobalBnd     []int
	LocalToGlobalBndSign []float64

	NumGlobalBndCoeffs    int
	NumGlobalDirBndCoeffs int

	// PatchMap has one entry per local boundary coefficient of the previous
	// level, Groups the previous patches of each patch. Both are nil at level 0.
	PatchMap []PatchEntry
	Groups   [][]int

	AtLastLevel bool

	bndOffsets []int
}

func (l *Level) setOffsets() {
	l.bndOffsets = make([]int, l.NumPatches+1)
	for p, n := range l.NumLocalBndCoeffsPerPatch {
		l.bndOffsets[p+1] = l.bndOffsets[p] + n
	}
}

// PatchBndOffset is the start of patch p in LocalToGlobalBnd
func (l *Level) PatchBndOffset(p int) int { return l.bndOffsets[p] }

func (l *Level) NumLocalBndCoeffs() int { return l.bndOffsets[l.NumPatches] }

func (l *Level) NumLocalIntCoeffs() (n int) {
	for _, ni := range l.NumLocalIntCoeffsPerPatch {
		n += ni
	}
	return
}

// Level0 is the boundary system left after condensing element interiors
func (am *Map) Level0() *Level {
	l := &Level{
		NumPatches:                len(am.elements),
		NumLocalBndCoeffsPerPatch: make([]int, len(am.elements)),
		NumLocalIntCoeffsPerPatch: make([]int, len(am.elements)),
		LocalToGlobalBnd:          am.localToGlobalBnd,
		LocalToGlobalBndSign:      am.localToGlobalBndSign,
		NumGlobalBndCoeffs:        am.numGlobalBndCoeffs,
		NumGlobalDirBndCoeffs:     am.numGlobalDirBndCoeffs,
	}
	for i := range am.elements {
		l.NumLocalBndCoeffsPerPatch[i] = len(am.elmtBndMaps[i])
		l.NumLocalIntCoeffsPerPatch[i] = len(am.elmtIntMaps[i])
	}
	l.setOffsets()
	return l
}

func checkGroups(prev *Level, groups [][]int) (groupOf []int, err error) {
	groupOf = make([]int, prev.NumPatches)
	for p := range groupOf {
		groupOf[p] = -1
	}
	for gi, grp := range groups {
		if len(grp) == 0 {
			return nil, fmt.Errorf("%w: patch group %d is empty", utils.ErrConfig, gi)
		}
		for _, p := range grp {
			if p < 0 || p >= prev.NumPatches || groupOf[p] != -1 {
				return nil, fmt.Errorf("%w: patch %d in group %d is out of range or grouped twice",
					utils.ErrConfig, p, gi)
			}
			groupOf[p] = gi
		}
	}
	for p, gi := range groupOf {
		if gi == -1 {
			return nil, fmt.Errorf("%w: patch %d is in no group", utils.ErrConfig, p)
		}
	}
	return
}

// NewNextLevel glues the patches of prev into groups. Coefficients touched by
// one group only become interior to it, the rest stay boundary and are
// renumbered after the Dirichlet ones in ascending order of their previous id.
// Dirichlet coefficients do not enter the patches of level 1 and above.
func NewNextLevel(prev *Level, groups [][]int) (l *Level, err error) {
	var groupOf []int
	if groupOf, err = checkGroups(prev, groups); err != nil {
		return
	}
	var (
		nDir    = prev.NumGlobalDirBndCoeffs
		first   = make(map[int]int)
		shared  = make(map[int]bool)
		touched = make([]map[int]bool, len(groups))
	)
	for gi, grp := range groups {
		touched[gi] = make(map[int]bool)
		for _, p := range grp {
			for _, g := range prev.LocalToGlobalBnd[prev.bndOffsets[p]:prev.bndOffsets[p+1]] {
				if g < nDir {
					continue
				}
				touched[gi][g] = true
				if f, ok := first[g]; !ok {
					first[g] = gi
				} else if f != gi {
					shared[g] = true
				}
			}
		}
	}
	var sharedIDs []int
	for g := range shared {
		sharedIDs = append(sharedIDs, g)
	}
	sort.Ints(sharedIDs)
	newID := make(map[int]int, len(sharedIDs))
	for i, g := range sharedIDs {
		newID[g] = nDir + i
	}
	l = &Level{
		Index:                     prev.Index + 1,
		NumPatches:                len(groups),
		NumLocalBndCoeffsPerPatch: make([]int, len(groups)),
		NumLocalIntCoeffsPerPatch: make([]int, len(groups)),
		NumGlobalBndCoeffs:        nDir + len(sharedIDs),
		NumGlobalDirBndCoeffs:     nDir,
		PatchMap:                  make([]PatchEntry, prev.NumLocalBndCoeffs()),
		Groups:                    make([][]int, len(groups)),
	}
	position := make([]map[int]int, len(groups))
	for gi := range groups {
		l.Groups[gi] = append([]int(nil), groups[gi]...)
		ids := make([]int, 0, len(touched[gi]))
		for g := range touched[gi] {
			ids = append(ids, g)
		}
		sort.Ints(ids)
		position[gi] = make(map[int]int, len(ids))
		for _, g := range ids {
			if shared[g] {
				position[gi][g] = l.NumLocalBndCoeffsPerPatch[gi]
				l.NumLocalBndCoeffsPerPatch[gi]++
				l.LocalToGlobalBnd = append(l.LocalToGlobalBnd, newID[g])
				l.LocalToGlobalBndSign = append(l.LocalToGlobalBndSign, 1)
			} else {
				position[gi][g] = l.NumLocalIntCoeffsPerPatch[gi]
				l.NumLocalIntCoeffsPerPatch[gi]++
			}
		}
	}
	for p := 0; p < prev.NumPatches; p++ {
		gi := groupOf[p]
		for i := prev.bndOffsets[p]; i < prev.bndOffsets[p+1]; i++ {
			g, s := prev.LocalToGlobalBnd[i], prev.LocalToGlobalBndSign[i]
			if g < nDir {
				l.PatchMap[i] = PatchEntry{Patch: -1, Index: g, Sign: s}
				continue
			}
			l.PatchMap[i] = PatchEntry{Patch: gi, Index: position[gi][g], IsBnd: shared[g], Sign: s}
		}
	}
	l.setOffsets()
	return
}

// Grouping chooses the previous level patches glued into each new patch
type Grouping func(l *Level) [][]int

// PairwiseGrouping matches patches in ascending order with the unmatched
// neighbour sharing the most non-Dirichlet coefficients, ties to the lowest id
func PairwiseGrouping(l *Level) (groups [][]int) {
	var (
		nDir    = l.NumGlobalDirBndCoeffs
		g       = simple.NewWeightedUndirectedGraph(0, 0)
		touches = make(map[int][]int)
	)
	for p := 0; p < l.NumPatches; p++ {
		g.AddNode(simple.Node(p))
		seen := make(map[int]bool)
		for _, id := range l.LocalToGlobalBnd[l.bndOffsets[p]:l.bndOffsets[p+1]] {
			if id >= nDir && !seen[id] {
				seen[id] = true
				touches[id] = append(touches[id], p)
			}
		}
	}
	for _, ps := range touches {
		for a := 0; a < len(ps); a++ {
			for b := a + 1; b < len(ps); b++ {
				w, _ := g.Weight(int64(ps[a]), int64(ps[b]))
				g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(ps[a]), simple.Node(ps[b]), w+1))
			}
		}
	}
	matched := make([]bool, l.NumPatches)
	for p := 0; p < l.NumPatches; p++ {
		if matched[p] {
			continue
		}
		matched[p] = true
		var (
			best  = -1
			bestW float64
		)
		nbrs := g.From(int64(p))
		for nbrs.Next() {
			q := int(nbrs.Node().ID())
			if matched[q] {
				continue
			}
			w, _ := g.Weight(int64(p), int64(q))
			if w > bestW || (w == bestW && q < best) {
				best, bestW = q, w
			}
		}
		if best < 0 {
			groups = append(groups, []int{p})
			continue
		}
		matched[best] = true
		groups = append(groups, []int{p, best})
	}
	return
}

// Hierarchy holds the levels of multi-level static condensation, level 0 first
type Hierarchy struct {
	Levels []*Level
}

func (h *Hierarchy) Last() *Level { return h.Levels[len(h.Levels)-1] }

// BuildHierarchy coarsens from Level0 with grouping, PairwiseGrouping if nil,
// adding at most maxLevels levels. It stops early at a single patch, or when
// a level would glue nothing or condense no coefficient.
func BuildHierarchy(am *Map, maxLevels int, grouping Grouping) (h *Hierarchy, err error) {
	if maxLevels < 0 {
		return nil, fmt.Errorf("%w: negative level cap %d", utils.ErrConfig, maxLevels)
	}
	if grouping == nil {
		grouping = PairwiseGrouping
	}
	h = &Hierarchy{Levels: []*Level{am.Level0()}}
	for len(h.Levels) <= maxLevels {
		cur := h.Last()
		if cur.NumPatches <= 1 {
			break
		}
		groups := grouping(cur)
		if len(groups) >= cur.NumPatches {
			break
		}
		var next *Level
		if next, err = NewNextLevel(cur, groups); err != nil {
			return nil, err
		}
		if next.NumLocalIntCoeffs() == 0 {
			break
		}
		h.Levels = append(h.Levels, next)
	}
	h.Last().AtLastLevel = true
	return
}
