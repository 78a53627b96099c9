// Package linsys solves the global systems assembled from elemental
// operators through an assembly.Map, either whole or after (multi-level)
// static condensation of interior coefficients.
package linsys

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/notargets/gohp/assembly"
	"github.com/notargets/gohp/expansion"
	"github.com/notargets/gohp/utils"
)

type (
	SolnType   = assembly.SolnType
	PreconType = assembly.PreconType
)

const (
	DirectFull                 = assembly.DirectFull
	DirectStaticCond           = assembly.DirectStaticCond
	DirectMultiLevelStaticCond = assembly.DirectMultiLevelStaticCond
	IterativeFull              = assembly.IterativeFull
	IterativeStaticCond        = assembly.IterativeStaticCond

	PreconNull     = assembly.PreconNull
	PreconDiagonal = assembly.PreconDiagonal
)

// Key identifies a global system: the elemental operator and how to solve it
type Key struct {
	Matrix   expansion.MatrixType
	Lambda   float64
	SolnType SolnType
}

func (k Key) String() string {
	return fmt.Sprintf("%s(lambda=%g)/%s", k.Matrix, k.Lambda, k.SolnType)
}

// Field is the discretization a system is built on
type Field interface {
	AssemblyMap() *assembly.Map
	Expansions() []expansion.Expansion
}

type System interface {
	Key() Key
	// Solve takes the assembled forcing rhs and the Dirichlet values in the
	// leading NumGlobalDirBndCoeffs entries of sol, and fills the rest of sol
	Solve(ctx context.Context, rhs, sol []float64) error
}

type Options struct {
	Precon        PreconType
	Tolerance     float64 // Relative residual of the iterative solvers
	MaxIterations int
	MaxLevels     int // Cap on condensation levels above the elements
	Grouping      assembly.Grouping
	Workers       int
	Metrics       *Metrics
	Logger        *slog.Logger
}

func (o *Options) withDefaults() (out Options) {
	if o != nil {
		out = *o
	}
	if out.Tolerance <= 0 {
		out.Tolerance = 1.e-10
	}
	if out.MaxLevels <= 0 {
		out.MaxLevels = 10
	}
	if out.Workers <= 0 {
		out.Workers = runtime.GOMAXPROCS(0)
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.Metrics == nil {
		out.Metrics = NewMetrics(nil)
	}
	return
}

// base holds what every strategy shares: the map and the elemental matrices
type base struct {
	key  Key
	am   *assembly.Map
	exps []expansion.Expansion
	mats []utils.Matrix
	opts Options
}

func (b *base) Key() Key { return b.key }

// New builds the system of key over f. The strategy named in key.SolnType
// is prepared here: factorizations and Schur complements are done once.
func New(key Key, f Field, opts *Options) (sys System, err error) {
	var (
		am   = f.AssemblyMap()
		exps = f.Expansions()
	)
	if am.Kind() != assembly.Continuous {
		return nil, fmt.Errorf("%w: global system on a %s map", utils.ErrConfig, am.Kind())
	}
	if am.Comm().Size() > 1 {
		return nil, fmt.Errorf("%w: global solve across %d ranks", utils.ErrUnsupported, am.Comm().Size())
	}
	if len(exps) != am.NumElmts() {
		return nil, fmt.Errorf("%w: %d expansions for a map of %d elements", utils.ErrConfig, len(exps),
			am.NumElmts())
	}
	b := &base{key: key, am: am, exps: exps, opts: opts.withDefaults()}
	b.mats = make([]utils.Matrix, len(exps))
	for i, e := range exps {
		if b.mats[i], err = e.GetMatrix(expansion.MatrixKey{Type: key.Matrix, Lambda: key.Lambda}); err != nil {
			return
		}
	}
	start := time.Now()
	switch key.SolnType {
	case DirectFull, IterativeFull:
		sys, err = newFull(b)
	case DirectStaticCond, DirectMultiLevelStaticCond, IterativeStaticCond:
		sys, err = newCondensed(b)
	default:
		return nil, fmt.Errorf("%w: solution type %s", utils.ErrUnsupported, key.SolnType)
	}
	if err != nil {
		return nil, err
	}
	b.opts.Logger.Debug("global system ready", "key", key.String(), "coeffs", am.NumGlobalCoeffs(),
		"setup", time.Since(start))
	return
}

// apply computes the assembled product A x, element by element
func (b *base) apply(x []float64) (y []float64) {
	var (
		loc = make([]float64, b.am.NumLocalCoeffs())
		el  []float64
	)
	for i, M := range b.mats {
		lo, hi := b.am.ElmtOffset(i), b.am.ElmtOffset(i+1)
		if cap(el) < hi-lo {
			el = make([]float64, hi-lo)
		}
		el = el[:hi-lo]
		b.am.GlobalToLocalElmt(i, x, el)
		M.MulVecTo(loc[lo:hi], el)
	}
	y = make([]float64, b.am.NumGlobalCoeffs())
	b.am.Assemble(loc, y)
	return
}

// lift returns rhs - A uD, where uD carries the Dirichlet values of sol
func (b *base) lift(rhs, sol []float64) (r []float64) {
	var (
		n    = b.am.NumGlobalCoeffs()
		nDir = b.am.NumGlobalDirBndCoeffs()
	)
	r = append([]float64(nil), rhs...)
	if nDir == 0 {
		return
	}
	uD := make([]float64, n)
	copy(uD, sol[:nDir])
	for i, v := range b.apply(uD) {
		r[i] -= v
	}
	return
}

func (b *base) checkSolve(rhs, sol []float64) {
	n := b.am.NumGlobalCoeffs()
	if len(rhs) != n || len(sol) != n {
		panic(fmt.Errorf("solve of %s: rhs %d and sol %d for %d coefficients", b.key, len(rhs), len(sol), n))
	}
}

// observe records a finished solve
func (b *base) observe(start time.Time, iters int, err error) {
	m, st := b.opts.Metrics, b.key.SolnType.String()
	m.Solves.WithLabelValues(st).Inc()
	m.SolveSeconds.WithLabelValues(st).Observe(time.Since(start).Seconds())
	if iters > 0 {
		m.Iterations.WithLabelValues(st).Add(float64(iters))
	}
	if err != nil {
		m.Failures.WithLabelValues(st).Inc()
		b.opts.Logger.Warn("global solve failed", "key", b.key.String(), "err", err)
	}
}

// forEach runs fn for every index in [0, n) on the worker pool
func (b *base) forEach(n int, fn func(i int) error) error {
	var eg errgroup.Group
	eg.SetLimit(b.opts.Workers)
	for i := 0; i < n; i++ {
		i := i
		eg.Go(func() error { return fn(i) })
	}
	return eg.Wait()
}
