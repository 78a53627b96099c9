package linsys

import (
	"context"
	"fmt"
	"time"

	"github.com/notargets/gohp/assembly"
	"github.com/notargets/gohp/utils"
)

// schur condenses the interior block of a dense patch matrix
//
//	S = Abb - Abi Aii^-1 Aib
type schur struct {
	nb, ni   int
	Abi, Aib utils.Matrix // Empty when nb or ni is zero
	Aii      *utils.LUFactor
	S        utils.Matrix // Empty when nb is zero
}

func newSchur(A utils.Matrix, bnd, in utils.Index) (s *schur, err error) {
	s = &schur{nb: len(bnd), ni: len(in)}
	if s.nb > 0 {
		s.S = A.Subset(bnd, bnd)
	}
	if s.ni == 0 {
		return
	}
	if s.Aii, err = utils.NewLUFactor(A.Subset(in, in)); err != nil {
		return nil, fmt.Errorf("%w: interior block: %v", utils.ErrSingular, err)
	}
	if s.nb == 0 {
		return
	}
	s.Abi, s.Aib = A.Subset(bnd, in), A.Subset(in, bnd)
	var (
		C   = utils.NewMatrix(s.ni, s.nb)
		col = make([]float64, s.ni)
	)
	for j := 0; j < s.nb; j++ {
		if err = s.Aii.Solve(col, s.Aib.Col(j)); err != nil {
			return nil, err
		}
		for i, v := range col {
			C.Set(i, j, v)
		}
	}
	s.S.Subtract(s.Abi.Mul(C))
	return
}

// correction returns Abi Aii^-1 f, the interior forcing seen by the boundary
func (s *schur) correction(f []float64) (t []float64, err error) {
	t = make([]float64, s.nb)
	if s.ni == 0 || s.nb == 0 {
		return
	}
	y := make([]float64, s.ni)
	if err = s.Aii.Solve(y, f); err != nil {
		return
	}
	s.Abi.MulVecTo(t, y)
	return
}

// interior recovers Aii^-1 (f - Aib ub)
func (s *schur) interior(f, ub []float64) (ui []float64, err error) {
	ui = make([]float64, s.ni)
	if s.ni == 0 {
		return
	}
	rhs := append([]float64(nil), f...)
	if s.nb > 0 {
		for i, v := range s.Aib.MulVec(ub) {
			rhs[i] -= v
		}
	}
	err = s.Aii.Solve(ui, rhs)
	return
}

// patchLoc places a coefficient of the previous level in a patch
type patchLoc struct {
	patch, index int
	isBnd        bool
	global       int // Level global id when isBnd
}

// condLevel is the solver state of one assembly.Level
type condLevel struct {
	lvl     *assembly.Level
	patches []*schur
	// Indexed by previous level global boundary id, patch -1 for Dirichlet
	locs []patchLoc
}

// condensedSystem eliminates element interiors, then the patch interiors of
// every further level, and solves what remains on the last level
type condensedSystem struct {
	*base
	elmts  []*schur
	levels []*condLevel // Levels above the elements
	top    *assembly.Level
	topLU  *utils.LUFactor
	topA   utils.CSR
	diag   []float64
	nTop   int // Free coefficients of the last level
}

func newCondensed(b *base) (cs *condensedSystem, err error) {
	cs = &condensedSystem{base: b, elmts: make([]*schur, len(b.mats))}
	err = b.forEach(len(b.mats), func(i int) (err error) {
		cs.elmts[i], err = newSchur(b.mats[i], b.am.ElmtBndMap(i), b.am.ElmtIntMap(i))
		if err != nil {
			err = fmt.Errorf("element %d: %w", b.am.Element(i), err)
		}
		return
	})
	if err != nil {
		return nil, err
	}
	maxLevels := 0
	if b.key.SolnType == DirectMultiLevelStaticCond {
		maxLevels = b.opts.MaxLevels
	}
	h, err := assembly.BuildHierarchy(b.am, maxLevels, b.opts.Grouping)
	if err != nil {
		return nil, err
	}
	prev := make([]*schur, len(cs.elmts))
	copy(prev, cs.elmts)
	for _, lvl := range h.Levels[1:] {
		var cl *condLevel
		if cl, err = cs.condenseLevel(h.Levels[lvl.Index-1], lvl, prev); err != nil {
			return nil, err
		}
		cs.levels = append(cs.levels, cl)
		prev = cl.patches
	}
	cs.top = h.Last()
	if err = cs.factorTop(prev); err != nil {
		return nil, err
	}
	b.opts.Logger.Debug("static condensation", "levels", len(h.Levels), "top", cs.nTop)
	return
}

// condenseLevel glues the Schur complements of the previous level patches
// into the patches of lvl and condenses their interiors
func (cs *condensedSystem) condenseLevel(prevLvl, lvl *assembly.Level, prev []*schur) (cl *condLevel, err error) {
	cl = &condLevel{
		lvl:     lvl,
		patches: make([]*schur, lvl.NumPatches),
		locs:    make([]patchLoc, prevLvl.NumGlobalBndCoeffs),
	}
	for g := range cl.locs {
		cl.locs[g].patch = -1
	}
	for i, pe := range lvl.PatchMap {
		if pe.Patch < 0 {
			continue
		}
		loc := patchLoc{patch: pe.Patch, index: pe.Index, isBnd: pe.IsBnd}
		if pe.IsBnd {
			loc.global = lvl.LocalToGlobalBnd[lvl.PatchBndOffset(pe.Patch)+pe.Index]
		}
		cl.locs[prevLvl.LocalToGlobalBnd[i]] = loc
	}
	err = cs.forEach(lvl.NumPatches, func(P int) (err error) {
		nb, ni := lvl.NumLocalBndCoeffsPerPatch[P], lvl.NumLocalIntCoeffsPerPatch[P]
		if nb+ni == 0 {
			cl.patches[P] = &schur{}
			return
		}
		A := utils.NewMatrix(nb+ni, nb+ni)
		for _, p := range lvl.Groups[P] {
			var (
				off = prevLvl.PatchBndOffset(p)
				S   = prev[p].S
				pos = make([]int, prev[p].nb)
				sgn = make([]float64, prev[p].nb)
			)
			for ii := range pos {
				pe := lvl.PatchMap[off+ii]
				pos[ii], sgn[ii] = -1, pe.Sign
				if pe.Patch >= 0 {
					pos[ii] = pe.Index
					if !pe.IsBnd {
						pos[ii] += nb
					}
				}
			}
			for ii, pi := range pos {
				if pi < 0 {
					continue
				}
				for jj, pj := range pos {
					if pj >= 0 {
						A.AddAt(pi, pj, sgn[ii]*sgn[jj]*S.At(ii, jj))
					}
				}
			}
		}
		cl.patches[P], err = newSchur(A, utils.NewRange(0, nb-1), utils.NewRange(nb, nb+ni-1))
		if err != nil {
			err = fmt.Errorf("level %d patch %d: %w", lvl.Index, P, err)
		}
		return
	})
	return
}

// factorTop assembles the free part of the last level boundary system
func (cs *condensedSystem) factorTop(patches []*schur) (err error) {
	var (
		top  = cs.top
		nDir = top.NumGlobalDirBndCoeffs
	)
	cs.nTop = top.NumGlobalBndCoeffs - nDir
	if cs.nTop == 0 {
		return
	}
	A := utils.NewDOK(cs.nTop, cs.nTop)
	for p, s := range patches {
		if s.nb == 0 {
			continue
		}
		var (
			off  = top.PatchBndOffset(p)
			ids  = make(utils.Index, s.nb)
			sgns = top.LocalToGlobalBndSign[off : off+s.nb]
			keep utils.Index
		)
		for i := range ids {
			ids[i] = top.LocalToGlobalBnd[off+i] - nDir
			if ids[i] >= 0 {
				keep = append(keep, i)
			}
		}
		if len(keep) == 0 {
			continue
		}
		var (
			I  = make(utils.Index, len(keep))
			sI = make([]float64, len(keep))
		)
		for k, i := range keep {
			I[k], sI[k] = ids[i], sgns[i]
		}
		A.AddBlock(I, I, sI, sI, s.S.Subset(keep, keep))
	}
	if cs.key.SolnType.IsIterative() {
		cs.topA = A.ToCSR()
		cs.diag, err = jacobi(cs.opts.Precon, cs.topA.Diagonal())
		return
	}
	all := utils.NewRange(0, cs.nTop-1)
	if cs.topLU, err = utils.NewLUFactor(A.ToDense(all, all)); err != nil {
		return fmt.Errorf("%w: %s boundary system: %v", utils.ErrSingular, cs.key, err)
	}
	return
}

func (cs *condensedSystem) Solve(ctx context.Context, rhs, sol []float64) (err error) {
	cs.checkSolve(rhs, sol)
	var (
		start = time.Now()
		iters int
	)
	defer func() { cs.observe(start, iters, err) }()
	var (
		am   = cs.am
		nDir = am.NumGlobalDirBndCoeffs()
		nb   = am.NumGlobalBndCoeffs()
		r    = cs.lift(rhs, sol)
		g    = append([]float64(nil), r[:nb]...)
		lmap = am.LocalToGlobalMap()
		fi   = make([][]float64, len(cs.elmts))
	)
	// Element interiors
	for i, s := range cs.elmts {
		lo := am.ElmtOffset(i)
		fi[i] = make([]float64, s.ni)
		for j, mode := range am.ElmtIntMap(i) {
			fi[i][j] = r[lmap[lo+mode]]
		}
		var t []float64
		if t, err = s.correction(fi[i]); err != nil {
			return
		}
		bmap, bsign := cs.elmtBnd(i)
		for j, v := range t {
			g[bmap[j]] -= bsign[j] * v
		}
	}
	// Patch interiors, level by level
	var (
		gs = [][]float64{g}
		fs = make([][][]float64, len(cs.levels))
	)
	for l, cl := range cs.levels {
		var (
			lvl  = cl.lvl
			gOld = gs[l]
			gNew = make([]float64, lvl.NumGlobalBndCoeffs)
		)
		fs[l] = make([][]float64, lvl.NumPatches)
		for P := range fs[l] {
			fs[l][P] = make([]float64, lvl.NumLocalIntCoeffsPerPatch[P])
		}
		for gid, loc := range cl.locs {
			switch {
			case loc.patch < 0:
			case loc.isBnd:
				gNew[loc.global] = gOld[gid]
			default:
				fs[l][loc.patch][loc.index] = gOld[gid]
			}
		}
		for P, s := range cl.patches {
			var t []float64
			if t, err = s.correction(fs[l][P]); err != nil {
				return
			}
			off := lvl.PatchBndOffset(P)
			for j, v := range t {
				gNew[lvl.LocalToGlobalBnd[off+j]] -= v
			}
		}
		gs = append(gs, gNew)
	}
	// Last level boundary solve
	u := make([]float64, cs.top.NumGlobalBndCoeffs)
	if cs.nTop > 0 {
		var (
			gTop = gs[len(gs)-1][nDir:]
			x    = make([]float64, cs.nTop)
		)
		if cs.topLU != nil {
			err = cs.topLU.Solve(x, gTop)
		} else {
			iters, err = pcg(ctx, cs.topA.MulVecTo, cs.diag, gTop, x, cs.opts.Tolerance, cs.opts.MaxIterations)
		}
		if err != nil {
			return
		}
		copy(u[nDir:], x)
	}
	// Back substitution down to the elements
	for l := len(cs.levels) - 1; l >= 0; l-- {
		var (
			cl   = cs.levels[l]
			lvl  = cl.lvl
			uOld = make([]float64, len(cl.locs))
			ui   = make([][]float64, lvl.NumPatches)
		)
		for P, s := range cl.patches {
			off := lvl.PatchBndOffset(P)
			ub := make([]float64, s.nb)
			for j := range ub {
				ub[j] = u[lvl.LocalToGlobalBnd[off+j]]
			}
			if ui[P], err = s.interior(fs[l][P], ub); err != nil {
				return
			}
		}
		for gid, loc := range cl.locs {
			switch {
			case loc.patch < 0:
			case loc.isBnd:
				uOld[gid] = u[loc.global]
			default:
				uOld[gid] = ui[loc.patch][loc.index]
			}
		}
		u = uOld
	}
	copy(sol[nDir:nb], u[nDir:])
	for i, s := range cs.elmts {
		bmap, bsign := cs.elmtBnd(i)
		ub := make([]float64, s.nb)
		for j := range ub {
			ub[j] = bsign[j] * u[bmap[j]]
		}
		var ui []float64
		if ui, err = s.interior(fi[i], ub); err != nil {
			return
		}
		lo := am.ElmtOffset(i)
		for j, mode := range am.ElmtIntMap(i) {
			sol[lmap[lo+mode]] = ui[j]
		}
	}
	return
}

// elmtBnd returns the global boundary ids and signs of element i. Dirichlet
// entries are kept; their values are zero after lifting.
func (cs *condensedSystem) elmtBnd(i int) (ids []int, signs []float64) {
	lo, hi := cs.am.ElmtBndOffset(i), cs.am.ElmtBndOffset(i+1)
	return cs.am.LocalToGlobalBndMap()[lo:hi], cs.am.LocalToGlobalBndSign()[lo:hi]
}
