package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrix(t *testing.T) {
	// Transpose
	{
		M := NewMatrix(2, 3, []float64{
			1, 2, 3,
			4, 5, 6,
		})
		mNr, mNc := M.Dims()
		A := M.Transpose()
		aNr, aNc := A.Dims()
		assert.Equal(t, aNc, mNr)
		assert.Equal(t, aNr, mNc)
		assert.Equal(t, A.RawMatrix().Data, []float64{1, 4, 2, 5, 3, 6})
	}
	// SliceRows
	{
		M := NewMatrix(2, 3, []float64{
			1, 2, 3,
			4, 5, 6,
		})
		I := NewIndex(2)
		I[0] = 1
		I[1] = 0
		A := M.SliceRows(I)
		assert.Equal(t, A.Data(), []float64{
			4, 5, 6,
			1, 2, 3,
		})
	}
	// SliceCols
	{
		M := NewMatrix(2, 3, []float64{
			1, 2, 3,
			4, 5, 6,
		})
		A := M.SliceCols(Index{1, 0})
		assert.Equal(t, A.Data(), []float64{
			2, 1,
			5, 4,
		})
	}
	// MulVec and its transpose
	{
		M := NewMatrix(2, 3, []float64{
			1, 2, 3,
			4, 5, 6,
		})
		assert.Equal(t, []float64{14, 32}, M.MulVec([]float64{1, 2, 3}))
		y := make([]float64, 3)
		M.MulVecTransTo(y, []float64{1, 1})
		assert.Equal(t, []float64{5, 7, 9}, y)
		assert.Panics(t, func() { M.MulVec([]float64{1, 2}) })
	}
	// Kronecker
	{
		A := NewMatrix(2, 2, []float64{1, 2, 3, 4})
		K := A.Kron(NewIdentity(2))
		nr, nc := K.Dims()
		assert.Equal(t, 4, nr)
		assert.Equal(t, 4, nc)
		assert.Equal(t, 2., K.At(0, 2))
		assert.Equal(t, 0., K.At(0, 3))
		assert.Equal(t, 4., K.At(3, 3))
	}
}

func TestMatrixReadOnly(t *testing.T) {
	M := NewMatrix(2, 2, []float64{1, 0, 0, 1})
	M.SetReadOnly("Identity")
	assert.True(t, M.IsReadOnly())
	assert.Panics(t, func() { M.Set(0, 0, 2) })
	assert.Panics(t, func() { M.Scale(2) })
	C := M.Copy()
	assert.NotPanics(t, func() { C.Set(0, 0, 2) })
	assert.Equal(t, 1., M.At(0, 0))
}

func TestMatrixSolvers(t *testing.T) {
	A := NewMatrix(3, 3, []float64{
		4, 1, 0,
		1, 3, 1,
		0, 1, 2,
	})
	xExact := []float64{1, -2, 3}
	b := A.MulVec(xExact)
	// LU
	{
		x, err := A.LUSolve(b)
		require.NoError(t, err)
		assert.InDeltaSlice(t, xExact, x, 1.e-12)
	}
	// Cholesky, reused for two right hand sides
	{
		F, err := NewCholeskyFactor(A)
		require.NoError(t, err)
		x := make([]float64, 3)
		require.NoError(t, F.Solve(x, b))
		assert.InDeltaSlice(t, xExact, x, 1.e-12)
		b2 := A.MulVec([]float64{0, 1, 0})
		require.NoError(t, F.Solve(x, b2))
		assert.InDeltaSlice(t, []float64{0, 1, 0}, x, 1.e-12)
	}
	// Inverse
	{
		Ainv, err := A.Inverse()
		require.NoError(t, err)
		P := A.Mul(Ainv)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				expected := 0.
				if i == j {
					expected = 1.
				}
				assert.InDelta(t, expected, P.At(i, j), 1.e-12)
			}
		}
	}
	// Singular
	{
		S := NewMatrix(2, 2, []float64{1, 2, 2, 4})
		_, err := S.LUSolve([]float64{1, 1})
		assert.Error(t, err)
		_, err = NewCholeskyFactor(S)
		assert.Error(t, err)
	}
	assert.True(t, A.IsSymmetric(1.e-14))
	assert.False(t, NewMatrix(2, 2, []float64{1, 2, 3, 4}).IsSymmetric(1.e-14))
}

func TestSparse(t *testing.T) {
	D := NewDOK(3, 3)
	D.AddAt(0, 0, 2)
	D.AddAt(0, 0, 2)
	D.AddBlock(Index{1, 2}, Index{1, 2}, []float64{1, -1}, []float64{1, -1},
		NewMatrix(2, 2, []float64{1, 2, 3, 4}))
	assert.Equal(t, 4., D.At(0, 0))
	assert.Equal(t, 1., D.At(1, 1))
	assert.Equal(t, -2., D.At(1, 2))
	assert.Equal(t, -3., D.At(2, 1))
	assert.Equal(t, 4., D.At(2, 2))
	C := D.ToCSR()
	y := []float64{99, 99, 99}
	C.MulVecTo(y, []float64{1, 1, 1})
	assert.Equal(t, []float64{4, -1, 1}, y)
	assert.Equal(t, []float64{4, 1, 4}, C.Diagonal())
	assert.Equal(t, 1, C.Bandwidth())
	Dense := D.ToDense(Index{1, 2}, Index{2})
	assert.Equal(t, []float64{-2, 4}, Dense.Data())
	D.SetReadOnly("K")
	assert.Panics(t, func() { D.AddAt(0, 0, 1) })
}

func TestIndex(t *testing.T) {
	assert.Equal(t, Index{2, 3, 4}, NewRange(2, 4))
	assert.Equal(t, Index{0, 1}, NewRangeOffset(1, 2))
	assert.Equal(t, Index{}, NewRange(3, 2))
	I := Index{5, 1, 5, 3}
	assert.Equal(t, Index{1, 3, 5}, I.Sorted())
	assert.Equal(t, Index{3, 5, 1, 5}, I.Reverse())
	assert.Equal(t, 5, I.Max())
	assert.Equal(t, 1, I.Min())
	assert.True(t, I.Contains(3))
	assert.Equal(t, Index{2, 0, 1}, Index{1, 2, 0}.Inverse())
	assert.Panics(t, func() { Index{0, 0}.Inverse() })
}

func TestBCTypes(t *testing.T) {
	bc, err := ParseBCName(" Dirichlet ")
	require.NoError(t, err)
	assert.Equal(t, BCDirichlet, bc)
	assert.True(t, bc.IsEssential())
	bc, err = ParseBCName("periodic")
	require.NoError(t, err)
	assert.Equal(t, "Periodic", bc.String())
	_, err = ParseBCName("supersonic")
	assert.Error(t, err)
}
