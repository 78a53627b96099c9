package foundations

import (
	"fmt"
	"sync"

	"github.com/notargets/gohp/utils"
)

type interpKey struct {
	From, To PointsKey
	Deriv    bool
}

// Registry memoizes points, bases and interpolation matrices by key. It is
// created once per discretization and shared by reference; concurrent reads
// are safe.
type Registry struct {
	mu      sync.RWMutex
	points  map[PointsKey]*Points
	bases   map[BasisKey]*Basis
	interps map[interpKey]utils.Matrix
}

func NewRegistry() *Registry {
	return &Registry{
		points:  make(map[PointsKey]*Points),
		bases:   make(map[BasisKey]*Basis),
		interps: make(map[interpKey]utils.Matrix),
	}
}

// GetPoints returns the cached distribution for key, computing it on first use.
// Equal keys always return the identical object.
func (r *Registry) GetPoints(key PointsKey) (p *Points, err error) {
	var ok bool
	r.mu.RLock()
	p, ok = r.points[key]
	r.mu.RUnlock()
	if ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok = r.points[key]; ok {
		return
	}
	if p, err = newPoints(key); err != nil {
		return nil, fmt.Errorf("points %s: %w", key, err)
	}
	r.points[key] = p
	return
}

func (r *Registry) GetBasis(key BasisKey) (b *Basis, err error) {
	var ok bool
	r.mu.RLock()
	b, ok = r.bases[key]
	r.mu.RUnlock()
	if ok {
		return
	}
	if err = key.Validate(); err != nil {
		return nil, fmt.Errorf("basis %s: %w", key, err)
	}
	var pts *Points
	if pts, err = r.GetPoints(key.PointsKey); err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.bases[key]; ok {
		return
	}
	if b, err = newBasis(key, pts); err != nil {
		return nil, fmt.Errorf("basis %s: %w", key, err)
	}
	r.bases[key] = b
	return
}

// GetInterpolation returns I[i][j] = L_j(x_i^to) for the nodes of from, the
// identity for equal keys
func (r *Registry) GetInterpolation(from, to PointsKey) (I utils.Matrix, err error) {
	return r.getInterp(interpKey{From: from, To: to})
}

// GetInterpolationDeriv returns D[i][j] = L_j'(x_i^to)
func (r *Registry) GetInterpolationDeriv(from, to PointsKey) (D utils.Matrix, err error) {
	return r.getInterp(interpKey{From: from, To: to, Deriv: true})
}

func (r *Registry) getInterp(key interpKey) (I utils.Matrix, err error) {
	var ok bool
	r.mu.RLock()
	I, ok = r.interps[key]
	r.mu.RUnlock()
	if ok {
		return
	}
	var pFrom, pTo *Points
	if pFrom, err = r.GetPoints(key.From); err != nil {
		return
	}
	if pTo, err = r.GetPoints(key.To); err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if I, ok = r.interps[key]; ok {
		return
	}
	switch {
	case key.From == key.To && !key.Deriv:
		I = utils.NewIdentity(key.From.NumPoints)
	case key.From == key.To && key.Deriv:
		I = pFrom.D.Copy()
	default:
		I = interpolationMatrix(pFrom, pTo.Z, key.Deriv)
	}
	name := "I"
	if key.Deriv {
		name = "ID"
	}
	I.SetReadOnly(fmt.Sprintf("%s %s->%s", name, key.From, key.To))
	r.interps[key] = I
	return
}

// PointsSet is the (points, weights, derivative, interpolation) view of one
// cached distribution
type PointsSet struct {
	*Points
	reg *Registry
}

// GetOrCreate returns the cached view for key
func (r *Registry) GetOrCreate(key PointsKey) (ps PointsSet, err error) {
	var p *Points
	if p, err = r.GetPoints(key); err != nil {
		return
	}
	return PointsSet{Points: p, reg: r}, nil
}

func (ps PointsSet) InterpolationTo(other PointsKey) (utils.Matrix, error) {
	return ps.reg.GetInterpolation(ps.Key, other)
}

// Interpolate maps values at the points of from onto the points of to
func (r *Registry) Interpolate(from PointsKey, fin []float64, to PointsKey, fout []float64) (err error) {
	if from == to {
		copy(fout, fin)
		return
	}
	var I utils.Matrix
	if I, err = r.GetInterpolation(from, to); err != nil {
		return
	}
	I.MulVecTo(fout, fin)
	return
}

// Len returns the number of cached distributions and bases
func (r *Registry) Len() (nPoints, nBases int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.points), len(r.bases)
}
