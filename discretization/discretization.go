// Package discretization owns everything a field needs on one mesh: the
// points and bases registry, the geometric factors, the element expansions
// and the assembly and trace maps built over them.
package discretization

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/notargets/gohp/assembly"
	"github.com/notargets/gohp/comm"
	"github.com/notargets/gohp/expansion"
	"github.com/notargets/gohp/foundations"
	"github.com/notargets/gohp/geometry"
	"github.com/notargets/gohp/linsys"
	"github.com/notargets/gohp/mesh"
	"github.com/notargets/gohp/trace"
	"github.com/notargets/gohp/utils"
)

type Config struct {
	Basis    foundations.BasisType
	NumModes int
	// NumPoints defaults to NumModes+1 Gauss points, or NumModes GLL points
	// for GLL Lagrange bases
	NumPoints int

	SolnType assembly.SolnType
	Precon   assembly.PreconType
	RCM      bool
	// Discontinuous builds the trace map for flux based schemes
	Discontinuous bool
	// AllowInvalid keeps elements with invalid Jacobians, reporting them only
	AllowInvalid bool
	// MatOps selects elemental matrices over sum factorisation, nil for none
	MatOps MatOpPolicy

	Workers   int
	Comm      comm.Communicator
	Elements  []int // Mesh elements of this rank, nil for all
	Partition []int
	Logger    *slog.Logger
}

func (c *Config) pointsKey() foundations.PointsKey {
	switch {
	case c.NumPoints > 0 && c.Basis == foundations.GLLLagrange:
		return foundations.NewPointsKey(c.NumPoints, foundations.GaussLobattoLegendre)
	case c.NumPoints > 0:
		return foundations.NewPointsKey(c.NumPoints, foundations.GaussLegendre)
	case c.Basis == foundations.GLLLagrange:
		return foundations.NewPointsKey(c.NumModes, foundations.GaussLobattoLegendre)
	}
	return foundations.NewPointsKey(c.NumModes+1, foundations.GaussLegendre)
}

// Field is a discretization of one scalar field
type Field struct {
	Mesh     *mesh.Mesh
	Registry *foundations.Registry
	Arena    *geometry.FactorsArena
	Report   *geometry.ValidityReport

	cfg        Config
	elements   []int
	exps       []expansion.Expansion
	am         *assembly.Map
	tm         *trace.Map
	physOffset []int
	locOffset  []int
}

// New discretizes the mesh. The continuous map is built for bases with
// boundary modes; the trace map when cfg.Discontinuous is set.
func New(ctx context.Context, m *mesh.Mesh, cfg *Config) (f *Field, err error) {
	if cfg == nil || cfg.NumModes < 1 {
		return nil, fmt.Errorf("%w: discretization needs a mode count", utils.ErrConfig)
	}
	f = &Field{
		Mesh:     m,
		Registry: foundations.NewRegistry(),
		Arena:    geometry.NewFactorsArena(),
		cfg:      *cfg,
	}
	if f.cfg.Workers <= 0 {
		f.cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if f.cfg.Logger == nil {
		f.cfg.Logger = slog.Default()
	}
	f.elements = cfg.Elements
	if f.elements == nil {
		f.elements = utils.NewRange(0, len(m.Elements)-1)
	}
	geoms := make([]geometry.Geometry, len(f.elements))
	for i, k := range f.elements {
		if k < 0 || k >= len(m.Elements) {
			return nil, fmt.Errorf("%w: element %d is not in the mesh", utils.ErrConfig, k)
		}
		if geoms[i], err = m.Geometry(k); err != nil {
			return nil, err
		}
	}
	var (
		pk      = f.cfg.pointsKey()
		keysFor = func(g geometry.Geometry) (keys []foundations.PointsKey) {
			for d := 0; d < g.Shape().Dim(); d++ {
				keys = append(keys, pk)
			}
			return
		}
	)
	if f.Report, err = geometry.ComputeAll(ctx, f.Registry, f.Arena, geoms, keysFor, f.cfg.Workers,
		f.cfg.Logger); err != nil {
		return nil, err
	}
	if err = f.Report.Err(); err != nil && !cfg.AllowInvalid {
		return nil, err
	}
	f.exps = make([]expansion.Expansion, len(geoms))
	for i, g := range geoms {
		gf, _ := f.Arena.Get(g.ID())
		var bks []foundations.BasisKey
		for range gf.Keys {
			bks = append(bks, foundations.NewBasisKey(cfg.Basis, cfg.NumModes, pk))
		}
		if f.exps[i], err = expansion.New(f.Registry, g, gf, bks); err != nil {
			return nil, err
		}
	}
	f.physOffset, f.locOffset = []int{0}, []int{0}
	for i, e := range f.exps {
		f.physOffset = append(f.physOffset, f.physOffset[i]+e.NumPoints())
		f.locOffset = append(f.locOffset, f.locOffset[i]+e.NumCoeffs())
	}
	opts := &assembly.Options{
		SolnType:  cfg.SolnType,
		Precon:    cfg.Precon,
		RCM:       cfg.RCM,
		Comm:      cfg.Comm,
		Elements:  cfg.Elements,
		Partition: cfg.Partition,
		Logger:    f.cfg.Logger,
	}
	if cfg.Basis.HasBoundaryModes() {
		if f.am, err = assembly.NewContinuousMap(ctx, m, f.exps, opts); err != nil {
			return nil, err
		}
	}
	if cfg.Discontinuous {
		if f.tm, err = trace.New(ctx, m, f.exps, opts); err != nil {
			return nil, err
		}
	}
	f.cfg.Logger.Info("discretization ready", "elements", len(f.exps), "basis", cfg.Basis.String(),
		"modes", cfg.NumModes, "points", pk.String())
	return
}

// AssemblyMap is the continuous map, nil for bases without boundary modes
func (f *Field) AssemblyMap() *assembly.Map         { return f.am }
func (f *Field) Expansions() []expansion.Expansion { return f.exps }

// Trace is the trace map, nil unless built as discontinuous
func (f *Field) Trace() *trace.Map { return f.tm }

// NumPhys is the length of the concatenated physical values
func (f *Field) NumPhys() int { return f.physOffset[len(f.exps)] }

// NumLocalCoeffs is the length of the concatenated element coefficients
func (f *Field) NumLocalCoeffs() int { return f.locOffset[len(f.exps)] }

func (f *Field) elmt(i int, phys, coeffs []float64) (p, c []float64) {
	if phys != nil {
		p = phys[f.physOffset[i]:f.physOffset[i+1]]
	}
	if coeffs != nil {
		c = coeffs[f.locOffset[i]:f.locOffset[i+1]]
	}
	return
}

func (f *Field) check(op string, phys, coeffs []float64) {
	if phys != nil && len(phys) != f.NumPhys() {
		panic(fmt.Errorf("%s: %d physical values for %d", op, len(phys), f.NumPhys()))
	}
	if coeffs != nil && len(coeffs) != f.NumLocalCoeffs() {
		panic(fmt.Errorf("%s: %d coefficients for %d", op, len(coeffs), f.NumLocalCoeffs()))
	}
}

// forEach runs fn over the elements on the worker pool
func (f *Field) forEach(fn func(i int, e expansion.Expansion) error) error {
	var g errgroup.Group
	g.SetLimit(f.cfg.Workers)
	for i, e := range f.exps {
		i, e := i, e
		g.Go(func() error { return fn(i, e) })
	}
	return g.Wait()
}

// Evaluate samples fn at every quadrature point
func (f *Field) Evaluate(fn func(x geometry.Vec3) float64) (phys []float64, err error) {
	phys = make([]float64, f.NumPhys())
	err = f.forEach(func(i int, e expansion.Expansion) error {
		X, err := geometry.PhysCoords(f.Registry, e.Geom(), e.Factors().Keys)
		if err != nil {
			return err
		}
		p, _ := f.elmt(i, phys, nil)
		for q := range p {
			var x geometry.Vec3
			for c := range X {
				x[c] = X[c][q]
			}
			p[q] = fn(x)
		}
		return nil
	})
	return
}

// FwdTrans projects physical values onto the element coefficients
func (f *Field) FwdTrans(phys, coeffs []float64) error {
	f.check("FwdTrans", phys, coeffs)
	return f.forEach(func(i int, e expansion.Expansion) error {
		p, c := f.elmt(i, phys, coeffs)
		return e.FwdTrans(p, c)
	})
}

func (f *Field) BwdTrans(coeffs, phys []float64) {
	f.check("BwdTrans", phys, coeffs)
	_ = f.forEach(func(i int, e expansion.Expansion) error {
		p, c := f.elmt(i, phys, coeffs)
		e.BwdTrans(c, p)
		return nil
	})
}

func (f *Field) IProductWRTBase(phys, out []float64) {
	f.check("IProductWRTBase", phys, out)
	_ = f.forEach(func(i int, e expansion.Expansion) error {
		p, c := f.elmt(i, phys, out)
		e.IProductWRTBase(p, c)
		return nil
	})
}

// Integral sums the element integrals of phys
func (f *Field) Integral(phys []float64) (sum float64) {
	f.check("Integral", phys, nil)
	for i, e := range f.exps {
		p, _ := f.elmt(i, phys, nil)
		sum += e.Integral(p)
	}
	return
}

// L2Error is the L2 norm of phys - fn
func (f *Field) L2Error(phys []float64, fn func(x geometry.Vec3) float64) (float64, error) {
	exact, err := f.Evaluate(fn)
	if err != nil {
		return 0, err
	}
	for q := range exact {
		exact[q] -= phys[q]
		exact[q] *= exact[q]
	}
	return math.Sqrt(f.Integral(exact)), nil
}

// GlobalToPhys evaluates global coefficients at the quadrature points
func (f *Field) GlobalToPhys(glob []float64) (phys []float64) {
	loc := make([]float64, f.NumLocalCoeffs())
	f.am.GlobalToLocal(glob, loc)
	phys = make([]float64, f.NumPhys())
	f.BwdTrans(loc, phys)
	return
}

// DirichletValues returns the leading Dirichlet global coefficients of g.
// Each element projects g; shared coefficients take the mean of the
// contributing elements.
func (f *Field) DirichletValues(g func(x geometry.Vec3) float64) (vals []float64, err error) {
	var (
		nDir = f.am.NumGlobalDirBndCoeffs()
		phys []float64
		loc  = make([]float64, f.NumLocalCoeffs())
		hits = make([]float64, nDir)
	)
	vals = make([]float64, nDir)
	if nDir == 0 {
		return
	}
	if phys, err = f.Evaluate(g); err != nil {
		return
	}
	if err = f.FwdTrans(phys, loc); err != nil {
		return
	}
	var (
		lmap = f.am.LocalToGlobalMap()
		sign = f.am.LocalToGlobalSign()
	)
	for i, gid := range lmap {
		if gid < nDir {
			vals[gid] += sign[i] * loc[i]
			hits[gid]++
		}
	}
	for i := range vals {
		vals[i] /= hits[i]
	}
	return
}

// HelmholtzSolve solves -Laplacian(u) + lambda u = src with u = g on the
// Dirichlet regions and natural conditions elsewhere, returning the global
// coefficients of u
func (f *Field) HelmholtzSolve(ctx context.Context, lambda float64, src, g func(x geometry.Vec3) float64,
	opts *linsys.Options) (glob []float64, err error) {
	if f.am == nil {
		return nil, fmt.Errorf("%w: Helmholtz solve without a continuous map", utils.ErrConfig)
	}
	var (
		sys  linsys.System
		phys []float64
		loc  = make([]float64, f.NumLocalCoeffs())
		rhs  = make([]float64, f.am.NumGlobalCoeffs())
		dir  []float64
	)
	key := linsys.Key{Matrix: expansion.Helmholtz, Lambda: lambda, SolnType: f.cfg.SolnType}
	if opts == nil {
		opts = &linsys.Options{Precon: f.cfg.Precon, Workers: f.cfg.Workers, Logger: f.cfg.Logger}
	}
	if sys, err = linsys.New(key, f, opts); err != nil {
		return
	}
	if phys, err = f.Evaluate(src); err != nil {
		return
	}
	f.IProductWRTBase(phys, loc)
	f.am.Assemble(loc, rhs)
	if dir, err = f.DirichletValues(g); err != nil {
		return
	}
	glob = make([]float64, len(rhs))
	copy(glob, dir)
	if err = sys.Solve(ctx, rhs, glob); err != nil {
		return nil, err
	}
	return
}
