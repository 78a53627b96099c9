package geometry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/notargets/gohp/foundations"
	"github.com/notargets/gohp/utils"
	"golang.org/x/sync/errgroup"
)

// FactorsArena owns the geometric factors of a discretization. Identical
// factors (same type, dimensions, keys and values) are stored once and
// shared between elements.
type FactorsArena struct {
	mu     sync.RWMutex
	byHash map[uint64][]*GeomFactors
	byElmt map[int]*GeomFactors
}

func NewFactorsArena() *FactorsArena {
	return &FactorsArena{
		byHash: make(map[uint64][]*GeomFactors),
		byElmt: make(map[int]*GeomFactors),
	}
}

// Add stores gf for element id and returns the shared instance
func (a *FactorsArena) Add(id int, gf *GeomFactors) *GeomFactors {
	a.mu.Lock()
	defer a.mu.Unlock()
	canon := gf
	for _, cand := range a.byHash[gf.hash] {
		if cand.Equal(gf) {
			canon = cand
			break
		}
	}
	if canon == gf {
		a.byHash[gf.hash] = append(a.byHash[gf.hash], gf)
	}
	a.byElmt[id] = canon
	return canon
}

func (a *FactorsArena) Get(id int) (gf *GeomFactors, ok bool) {
	a.mu.RLock()
	gf, ok = a.byElmt[id]
	a.mu.RUnlock()
	return
}

// Invalidate drops the factors of element id so they are recomputed
func (a *FactorsArena) Invalidate(id int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	gf, ok := a.byElmt[id]
	if !ok {
		return
	}
	delete(a.byElmt, id)
	for _, other := range a.byElmt {
		if other == gf {
			return
		}
	}
	list := a.byHash[gf.hash]
	for i, cand := range list {
		if cand == gf {
			a.byHash[gf.hash] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(a.byHash[gf.hash]) == 0 {
		delete(a.byHash, gf.hash)
	}
}

func (a *FactorsArena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.byElmt)
}

// NumUnique counts distinct stored factor objects
func (a *FactorsArena) NumUnique() (n int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, list := range a.byHash {
		n += len(list)
	}
	return
}

// ValidityReport collects elements whose factors failed the Jacobian checks
type ValidityReport struct {
	Invalid  []int
	Negative []int
}

// Err returns ErrInvalidGeometry naming the invalid elements, nil if none
func (r *ValidityReport) Err() error {
	if len(r.Invalid) == 0 {
		return nil
	}
	return fmt.Errorf("%w: elements %v", utils.ErrInvalidGeometry, r.Invalid)
}

// KeysFunc chooses the point keys of an element
type KeysFunc func(g Geometry) []foundations.PointsKey

// ComputeAll computes factors for every geometry not already in the arena,
// running at most workers elements at once. Configuration errors abort;
// invalid Jacobians are collected in the report.
func ComputeAll(ctx context.Context, reg *foundations.Registry, arena *FactorsArena, geoms []Geometry,
	keysFor KeysFunc, workers int, logger *slog.Logger) (report *ValidityReport, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		g, gCtx = errgroup.WithContext(ctx)
		mu      sync.Mutex
	)
	report = &ValidityReport{}
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, geom := range geoms {
		if _, ok := arena.Get(geom.ID()); ok {
			continue
		}
		geom := geom
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			gf, err := Compute(reg, geom, keysFor(geom))
			if err != nil {
				return err
			}
			arena.Add(geom.ID(), gf)
			if !gf.Valid || gf.Orientation == NegativeJacobian {
				mu.Lock()
				if !gf.Valid {
					report.Invalid = append(report.Invalid, geom.ID())
				} else {
					report.Negative = append(report.Negative, geom.ID())
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}
	sort.Ints(report.Invalid)
	sort.Ints(report.Negative)
	if len(report.Invalid) != 0 {
		logger.Warn("invalid element geometry", "elements", report.Invalid)
	}
	if len(report.Negative) != 0 {
		logger.Info("elements with negative Jacobian orientation", "elements", report.Negative)
	}
	logger.Debug("geometric factors computed", "elements", arena.Len(), "unique", arena.NumUnique())
	return
}
