package utils

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/lapack/lapack64"
	"gonum.org/v1/gonum/mat"
)

// Condition numbers above this are treated as singular by the solvers below
const SingularCond = 1.e14

type Matrix struct {
	M        *mat.Dense
	readOnly bool
	name     string
}

func NewMatrix(nr, nc int, dataO ...[]float64) (R Matrix) {
	var m *mat.Dense
	if len(dataO) != 0 {
		if len(dataO[0]) != nr*nc {
			err := fmt.Errorf("mismatch in allocation: NewMatrix nr,nc = %v,%v, len(data[0]) = %v", nr, nc, len(dataO[0]))
			panic(err)
		}
		m = mat.NewDense(nr, nc, dataO[0])
	} else {
		m = mat.NewDense(nr, nc, make([]float64, nr*nc))
	}
	R = Matrix{
		m,
		false,
		"unnamed - hint: pass a variable name to SetReadOnly()",
	}
	return
}

func NewIdentity(n int) (R Matrix) {
	R = NewMatrix(n, n)
	for i := 0; i < n; i++ {
		R.M.Set(i, i, 1.)
	}
	return
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (m Matrix) Dims() (r, c int)          { return m.M.Dims() }
func (m Matrix) At(i, j int) float64       { return m.M.At(i, j) }
func (m Matrix) T() mat.Matrix             { return m.M.T() }
func (m Matrix) RawMatrix() blas64.General { return m.M.RawMatrix() }
func (m Matrix) Data() []float64           { return m.M.RawMatrix().Data }
func (m Matrix) IsEmpty() bool             { return m.M == nil }
func (m Matrix) IsReadOnly() bool          { return m.readOnly }

// Chainable methods (extended)
func (m *Matrix) SetReadOnly(name ...string) Matrix {
	if len(name) != 0 {
		m.name = name[0]
	}
	m.readOnly = true
	return *m
}

func (m *Matrix) SetWritable() Matrix {
	m.readOnly = false
	return *m
}

func (m Matrix) Copy() (R Matrix) { // Does not change receiver
	var (
		nr, nc = m.Dims()
	)
	R = NewMatrix(nr, nc)
	copy(R.Data(), m.Data())
	return
}

func (m Matrix) Transpose() (R Matrix) { // Does not change receiver
	var (
		nr, nc = m.Dims()
	)
	R = NewMatrix(nc, nr)
	for i := 0; i < nr; i++ {
		for j := 0; j < nc; j++ {
			R.M.Set(j, i, m.M.At(i, j))
		}
	}
	return
}

func (m Matrix) Mul(A Matrix) (R Matrix) { // Does not change receiver
	var (
		nr, _ = m.Dims()
		_, nc = A.Dims()
	)
	R = NewMatrix(nr, nc)
	R.M.Mul(m.M, A.M)
	return
}

// MulVec returns m*x
func (m Matrix) MulVec(x []float64) (y []float64) {
	nr, _ := m.Dims()
	y = make([]float64, nr)
	m.MulVecTo(y, x)
	return
}

// MulVecTo writes m*x into y
func (m Matrix) MulVecTo(y, x []float64) {
	var (
		nr, nc = m.Dims()
		data   = m.Data()
	)
	if len(x) != nc || len(y) != nr {
		panic(fmt.Errorf("dimension mismatch: matrix %dx%d, len(x) = %d, len(y) = %d", nr, nc, len(x), len(y)))
	}
	for i := 0; i < nr; i++ {
		var sum float64
		row := data[i*nc : (i+1)*nc]
		for j, val := range row {
			sum += val * x[j]
		}
		y[i] = sum
	}
}

// MulVecTransTo writes transpose(m)*x into y
func (m Matrix) MulVecTransTo(y, x []float64) {
	var (
		nr, nc = m.Dims()
		data   = m.Data()
	)
	if len(x) != nr || len(y) != nc {
		panic(fmt.Errorf("dimension mismatch: matrix %dx%d transposed, len(x) = %d, len(y) = %d", nr, nc, len(x), len(y)))
	}
	Zero(y)
	for i := 0; i < nr; i++ {
		row := data[i*nc : (i+1)*nc]
		xi := x[i]
		for j, val := range row {
			y[j] += val * xi
		}
	}
}

// Subset extracts the rows I and columns J
func (m Matrix) Subset(I, J Index) (R Matrix) { // Does not change receiver
	R = NewMatrix(len(I), len(J))
	for ii, i := range I {
		for jj, j := range J {
			R.M.Set(ii, jj, m.M.At(i, j))
		}
	}
	return
}

func (m Matrix) SliceRows(I Index) (R Matrix) { // Does not change receiver
	_, nc := m.Dims()
	return m.Subset(I, NewRange(0, nc-1))
}

func (m Matrix) SliceCols(J Index) (R Matrix) { // Does not change receiver
	nr, _ := m.Dims()
	return m.Subset(NewRange(0, nr-1), J)
}

func (m Matrix) Row(i int) (r []float64) {
	_, nc := m.Dims()
	r = make([]float64, nc)
	copy(r, m.Data()[i*nc:(i+1)*nc])
	return
}

func (m Matrix) Col(j int) (c []float64) {
	nr, nc := m.Dims()
	c = make([]float64, nr)
	data := m.Data()
	for i := range c {
		c[i] = data[i*nc+j]
	}
	return
}

func (m Matrix) Set(i, j int, val float64) Matrix { // Changes receiver
	m.checkWritable()
	m.M.Set(i, j, val)
	return m
}

func (m Matrix) AddAt(i, j int, val float64) Matrix { // Changes receiver
	m.checkWritable()
	m.M.Set(i, j, m.M.At(i, j)+val)
	return m
}

func (m Matrix) Add(A Matrix) Matrix { // Changes receiver
	m.checkWritable()
	m.M.Add(m.M, A.M)
	return m
}

func (m Matrix) Subtract(A Matrix) Matrix { // Changes receiver
	m.checkWritable()
	m.M.Sub(m.M, A.M)
	return m
}

func (m Matrix) Scale(a float64) Matrix { // Changes receiver
	m.checkWritable()
	data := m.Data()
	for i := range data {
		data[i] *= a
	}
	return m
}

// Kron returns the Kronecker product m ⊗ A
func (m Matrix) Kron(A Matrix) (R Matrix) {
	var (
		mr, mc = m.Dims()
		ar, ac = A.Dims()
	)
	R = NewMatrix(mr*ar, mc*ac)
	R.M.Kronecker(m.M, A.M)
	return
}

func (m Matrix) Inverse() (R Matrix, err error) {
	var (
		nr, nc = m.Dims()
	)
	R = m.Copy()
	iPiv := make([]int, nr)
	if ok := lapack64.Getrf(R.RawMatrix(), iPiv); !ok {
		err = fmt.Errorf("unable to invert, matrix is singular")
		return
	}
	work := make([]float64, nr*nc)
	if ok := lapack64.Getri(R.RawMatrix(), iPiv, work, nr*nc); !ok {
		err = fmt.Errorf("unable to invert, matrix is singular")
	}
	return
}

// MaxAbs returns the largest absolute entry
func (m Matrix) MaxAbs() (mx float64) {
	for _, val := range m.Data() {
		mx = math.Max(mx, math.Abs(val))
	}
	return
}

// IsSymmetric checks symmetry to a relative tolerance
func (m Matrix) IsSymmetric(tol float64) bool {
	nr, nc := m.Dims()
	if nr != nc {
		return false
	}
	scale := math.Max(1., m.MaxAbs())
	for i := 0; i < nr; i++ {
		for j := i + 1; j < nc; j++ {
			if math.Abs(m.At(i, j)-m.At(j, i)) > tol*scale {
				return false
			}
		}
	}
	return true
}

func (m Matrix) checkWritable() {
	if m.readOnly {
		err := fmt.Errorf("attempt to write to a read only matrix named: \"%v\"", m.name)
		panic(err)
	}
}

// LUFactor is a reusable dense LU factorization
type LUFactor struct {
	lu mat.LU
	n  int
}

func NewLUFactor(m Matrix) (F *LUFactor, err error) {
	nr, nc := m.Dims()
	if nr != nc {
		panic(fmt.Errorf("LU of non square matrix %dx%d", nr, nc))
	}
	F = &LUFactor{n: nr}
	if nr == 0 {
		return
	}
	F.lu.Factorize(m.M)
	if cond := F.lu.Cond(); math.IsInf(cond, 1) || cond > SingularCond {
		err = fmt.Errorf("matrix is singular, condition number %g", cond)
		F = nil
	}
	return
}

// Solve writes the solution of A x = b into x; x and b may alias
func (F *LUFactor) Solve(x, b []float64) (err error) {
	if F.n == 0 {
		return
	}
	var (
		xv = mat.NewVecDense(F.n, nil)
		bv = mat.NewVecDense(F.n, append([]float64(nil), b...))
	)
	if err = F.lu.SolveVecTo(xv, false, bv); err != nil {
		if _, ok := err.(mat.Condition); !ok {
			return
		}
		err = nil
	}
	copy(x, xv.RawVector().Data)
	return
}

// LUSolve solves m x = b
func (m Matrix) LUSolve(b []float64) (x []float64, err error) {
	var F *LUFactor
	if F, err = NewLUFactor(m); err != nil {
		return
	}
	x = make([]float64, len(b))
	err = F.Solve(x, b)
	return
}

// CholeskyFactor is a reusable factorization of a symmetric positive definite matrix
type CholeskyFactor struct {
	chol mat.Cholesky
	n    int
}

func NewCholeskyFactor(m Matrix) (F *CholeskyFactor, err error) {
	nr, nc := m.Dims()
	if nr != nc {
		panic(fmt.Errorf("Cholesky of non square matrix %dx%d", nr, nc))
	}
	sym := mat.NewSymDense(nr, append([]float64(nil), m.Data()...))
	F = &CholeskyFactor{n: nr}
	if ok := F.chol.Factorize(sym); !ok {
		err = fmt.Errorf("matrix is not positive definite")
		F = nil
	}
	return
}

func (F *CholeskyFactor) Solve(x, b []float64) (err error) {
	var (
		xv = mat.NewVecDense(F.n, nil)
		bv = mat.NewVecDense(F.n, append([]float64(nil), b...))
	)
	if err = F.chol.SolveVecTo(xv, bv); err != nil {
		return
	}
	copy(x, xv.RawVector().Data)
	return
}
