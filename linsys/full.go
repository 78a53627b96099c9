package linsys

import (
	"context"
	"fmt"
	"time"

	"github.com/notargets/gohp/utils"
)

// fullSystem solves the assembled matrix over all non-Dirichlet coefficients
type fullSystem struct {
	*base
	A    utils.CSR
	lu   *utils.LUFactor
	diag []float64 // Jacobi diagonal of the free rows
}

func newFull(b *base) (fs *fullSystem, err error) {
	var (
		n    = b.am.NumGlobalCoeffs()
		nDir = b.am.NumGlobalDirBndCoeffs()
		A    = utils.NewDOK(n, n)
		lmap = b.am.LocalToGlobalMap()
		sign = b.am.LocalToGlobalSign()
	)
	for i, M := range b.mats {
		lo, hi := b.am.ElmtOffset(i), b.am.ElmtOffset(i+1)
		A.AddBlock(lmap[lo:hi], lmap[lo:hi], sign[lo:hi], sign[lo:hi], M)
	}
	A.SetReadOnly(fmt.Sprintf("global %s", b.key.Matrix))
	fs = &fullSystem{base: b, A: A.ToCSR()}
	free := utils.NewRange(nDir, n-1)
	if b.key.SolnType.IsIterative() {
		fs.diag, err = jacobi(b.opts.Precon, fs.A.Diagonal()[nDir:])
		return
	}
	if len(free) == 0 {
		return
	}
	if fs.lu, err = utils.NewLUFactor(A.ToDense(free, free)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", utils.ErrSingular, b.key, err)
	}
	return
}

func (fs *fullSystem) Solve(ctx context.Context, rhs, sol []float64) (err error) {
	fs.checkSolve(rhs, sol)
	var (
		start = time.Now()
		iters int
		nDir  = fs.am.NumGlobalDirBndCoeffs()
		r     = fs.lift(rhs, sol)
		u     = make([]float64, len(r)-nDir)
	)
	defer func() { fs.observe(start, iters, err) }()
	if len(u) == 0 {
		return
	}
	if fs.lu != nil {
		if err = fs.lu.Solve(u, r[nDir:]); err != nil {
			return
		}
	} else {
		x := make([]float64, len(r))
		y := make([]float64, len(r))
		apply := func(Ap, p []float64) {
			copy(x[nDir:], p)
			fs.A.MulVecTo(y, x)
			copy(Ap, y[nDir:])
		}
		if iters, err = pcg(ctx, apply, fs.diag, r[nDir:], u, fs.opts.Tolerance, fs.opts.MaxIterations); err != nil {
			return
		}
	}
	copy(sol[nDir:], u)
	return
}
