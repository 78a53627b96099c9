package linsys

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gohp/utils"
)

// pcg solves A x = b for symmetric positive definite A given as apply, with
// an optional Jacobi preconditioner. x holds the initial guess.
func pcg(ctx context.Context, apply func(y, x []float64), diag []float64, b, x []float64,
	tol float64, maxIter int) (iters int, err error) {
	n := len(b)
	if n == 0 {
		return
	}
	bNorm := floats.Norm(b, 2)
	if bNorm == 0 {
		utils.Zero(x)
		return
	}
	var (
		r  = make([]float64, n)
		z  = make([]float64, n)
		p  = make([]float64, n)
		Ap = make([]float64, n)
	)
	precon := func() {
		if diag == nil {
			copy(z, r)
			return
		}
		floats.DivTo(z, r, diag)
	}
	apply(Ap, x)
	floats.SubTo(r, b, Ap)
	precon()
	copy(p, z)
	rz := floats.Dot(r, z)
	if maxIter <= 0 {
		maxIter = 10 * n
	}
	for iters = 0; iters < maxIter; iters++ {
		if floats.Norm(r, 2) <= tol*bNorm {
			return
		}
		if err = ctx.Err(); err != nil {
			return
		}
		apply(Ap, p)
		alpha := rz / floats.Dot(p, Ap)
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, Ap)
		precon()
		rzNew := floats.Dot(r, z)
		floats.AddScaledTo(p, z, rzNew/rz, p)
		rz = rzNew
	}
	if floats.Norm(r, 2) <= tol*bNorm {
		return
	}
	return iters, fmt.Errorf("%w: residual %g after %d iterations", utils.ErrNotConverged,
		floats.Norm(r, 2)/bNorm, iters)
}

// jacobi returns the preconditioner diagonal, nil for PreconNull
func jacobi(pt PreconType, diag []float64) ([]float64, error) {
	switch pt {
	case PreconNull:
		return nil, nil
	case PreconDiagonal:
		for i, d := range diag {
			if d == 0 {
				return nil, fmt.Errorf("%w: zero diagonal at %d", utils.ErrSingular, i)
			}
		}
		return diag, nil
	}
	return nil, fmt.Errorf("%w: preconditioner %s", utils.ErrUnsupported, pt)
}
