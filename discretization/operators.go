package discretization

import (
	"fmt"

	"github.com/notargets/gohp/expansion"
	"github.com/notargets/gohp/utils"
)

// MatOpPolicy chooses, per element shape, operator and mode counts, whether
// an operator is applied through its elemental matrix instead of by sum
// factorisation
type MatOpPolicy interface {
	DoMatOp(shape, op string, numModes []int) bool
}

func (f *Field) doMatOp(e expansion.Expansion, op string) bool {
	if f.cfg.MatOps == nil {
		return false
	}
	nm := make([]int, e.Shape().Dim())
	for d := range nm {
		nm[d] = f.cfg.NumModes
	}
	return f.cfg.MatOps.DoMatOp(e.Shape().String(), op, nm)
}

// ApplyOperator computes out = A in over the concatenated element
// coefficients, A being the elemental operator of key
func (f *Field) ApplyOperator(key expansion.MatrixKey, in, out []float64) error {
	f.check("ApplyOperator", nil, in)
	f.check("ApplyOperator", nil, out)
	switch key.Type {
	case expansion.Mass, expansion.Laplacian, expansion.Helmholtz:
	default:
		return fmt.Errorf("%w: operator %s", utils.ErrUnsupported, key.Type)
	}
	return f.forEach(func(i int, e expansion.Expansion) error {
		_, c := f.elmt(i, nil, in)
		_, o := f.elmt(i, nil, out)
		if f.doMatOp(e, key.Type.String()) {
			M, err := e.GetMatrix(key)
			if err != nil {
				return err
			}
			M.MulVecTo(o, c)
			return nil
		}
		sumFactorised(e, key, c, o)
		return nil
	})
}

// sumFactorised applies the operator through the physical values
func sumFactorised(e expansion.Expansion, key expansion.MatrixKey, in, out []float64) {
	var (
		phys = make([]float64, e.NumPoints())
		tmp  = make([]float64, e.NumCoeffs())
	)
	e.BwdTrans(in, phys)
	utils.Zero(out)
	if key.Type == expansion.Mass || key.Type == expansion.Helmholtz {
		e.IProductWRTBase(phys, out)
		if key.Type == expansion.Helmholtz {
			for i := range out {
				out[i] *= key.Lambda
			}
		}
	}
	if key.Type == expansion.Mass {
		return
	}
	var (
		gf  = e.Factors()
		du  = make([][]float64, gf.CoordDim)
		dim = e.Shape().Dim()
		v   = make([]float64, e.NumPoints())
	)
	for c := range du {
		du[c] = make([]float64, e.NumPoints())
	}
	e.PhysDeriv(phys, du)
	for d := 0; d < dim; d++ {
		for q := range v {
			var sum float64
			for c := range du {
				sum += gf.DerivFactorAt(d, c, q) * du[c][q]
			}
			v[q] = sum
		}
		e.IProductWRTDerivBase(d, v, tmp)
		for i, t := range tmp {
			out[i] += t
		}
	}
}
