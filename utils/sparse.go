package utils

import (
	"fmt"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// DOK accumulates a sparse matrix entry by entry
type DOK struct {
	M        *sparse.DOK
	readOnly bool
	name     string
}

func NewDOK(nr, nc int) (R DOK) {
	R = DOK{
		sparse.NewDOK(nr, nc),
		false,
		"unnamed - hint: pass a variable name to SetReadOnly()",
	}
	return
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (m DOK) Dims() (r, c int)    { return m.M.Dims() }
func (m DOK) At(i, j int) float64 { return m.M.At(i, j) }
func (m DOK) T() mat.Matrix       { return m.M.T() }
func (m DOK) NNZ() int            { return m.M.NNZ() }

func (m *DOK) SetReadOnly(name ...string) DOK {
	if len(name) != 0 {
		m.name = name[0]
	}
	m.readOnly = true
	return *m
}

func (m DOK) Set(i, j int, val float64) DOK { // Changes receiver
	m.checkWritable()
	m.M.Set(i, j, val)
	return m
}

// AddAt accumulates val into entry (i,j)
func (m DOK) AddAt(i, j int, val float64) DOK { // Changes receiver
	m.checkWritable()
	if val == 0 {
		return m
	}
	m.M.Set(i, j, m.M.At(i, j)+val)
	return m
}

// AddBlock scatters a dense block into rows I and columns J with per row and
// per column signs; nil signs mean +1
func (m DOK) AddBlock(I, J Index, sI, sJ []float64, A Matrix) DOK { // Changes receiver
	m.checkWritable()
	for ii, i := range I {
		si := 1.
		if sI != nil {
			si = sI[ii]
		}
		for jj, j := range J {
			sj := 1.
			if sJ != nil {
				sj = sJ[jj]
			}
			if val := A.At(ii, jj); val != 0 {
				m.M.Set(i, j, m.M.At(i, j)+si*sj*val)
			}
		}
	}
	return m
}

func (m DOK) ToCSR() CSR {
	return CSR{
		M:        m.M.ToCSR(),
		readOnly: m.readOnly,
		name:     m.name,
	}
}

// ToDense extracts the rows I and columns J as a dense matrix
func (m DOK) ToDense(I, J Index) (R Matrix) {
	R = NewMatrix(len(I), len(J))
	for ii, i := range I {
		for jj, j := range J {
			R.M.Set(ii, jj, m.M.At(i, j))
		}
	}
	return
}

func (m DOK) checkWritable() {
	if m.readOnly {
		err := fmt.Errorf("attempt to write to a read only matrix named: \"%v\"", m.name)
		panic(err)
	}
}

// CSR is a compressed sparse row matrix used for products
type CSR struct {
	M        *sparse.CSR
	readOnly bool
	name     string
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (m CSR) Dims() (r, c int)    { return m.M.Dims() }
func (m CSR) At(i, j int) float64 { return m.M.At(i, j) }
func (m CSR) T() mat.Matrix       { return m.M.T() }
func (m CSR) NNZ() int            { return m.M.NNZ() }

// MulVecTo writes m*x into y
func (m CSR) MulVecTo(y, x []float64) {
	nr, nc := m.Dims()
	if len(x) != nc || len(y) != nr {
		panic(fmt.Errorf("dimension mismatch: matrix %dx%d, len(x) = %d, len(y) = %d", nr, nc, len(x), len(y)))
	}
	Zero(y)
	m.M.MulVecTo(y, false, x)
}

// Diagonal returns the main diagonal
func (m CSR) Diagonal() (d []float64) {
	nr, _ := m.Dims()
	d = make([]float64, nr)
	m.M.DoNonZero(func(i, j int, v float64) {
		if i == j {
			d[i] = v
		}
	})
	return
}

// DoNonZero visits every stored entry
func (m CSR) DoNonZero(fn func(i, j int, v float64)) {
	m.M.DoNonZero(fn)
}

// Bandwidth returns the largest |i-j| over the stored entries
func (m CSR) Bandwidth() (bw int) {
	m.M.DoNonZero(func(i, j int, v float64) {
		d := i - j
		if d < 0 {
			d = -d
		}
		if d > bw {
			bw = d
		}
	})
	return
}
