package InputParameters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gohp/utils"
)

func TestParse(t *testing.T) {
	fileInput := []byte(`
Title: Test Case
Dimension: 2
PolynomialOrder: 5
Basis: GLLLagrange
Mesh:
  Elements: [3, 2]
  Lo: [0, 0]
  Hi: [2, 1]
  Periodic: [1]
BCs:
  Dirichlet:
      0:
         Value: 1.5
  Neumann:
      1:
         Flux: 0.
SolnType: IterativeStaticCond
Lambda: 2.
OptimizationParameters:
  Quadrilateral:
    Helmholtz:
      - NumModes0: 6
        NumModes1: 6
        DoMatOp: true
      - DoMatOp: false
    Mass:
      - DoMatOp: true
`)
	var input InputParametersHP
	require.NoError(t, input.Parse(fileInput))
	assert.Equal(t, "Test Case", input.Title)
	assert.Equal(t, 6, input.NumModes())
	assert.Equal(t, []int{3, 2}, input.Mesh.Elements)
	assert.Equal(t, []float64{2, 1}, input.Mesh.Hi)
	assert.Equal(t, []int{1}, input.Mesh.Periodic)
	// Check Dirichlet BC on region 0
	assert.Equal(t, 1.5, input.BCs["Dirichlet"][0]["Value"])
	assert.Equal(t, map[int]utils.BCType{0: utils.BCDirichlet, 1: utils.BCNeumann}, input.RegionKinds())
	// Defaults fill what the file leaves out
	assert.Equal(t, "Diagonal", input.Precon)
	assert.Equal(t, 1.e-10, input.Tolerance)
	assert.Equal(t, 1, input.Partitions)
	input.Print()

	op := input.Optimization
	assert.True(t, op.DoMatOp("Quadrilateral", "Helmholtz", []int{6, 6}))
	assert.False(t, op.DoMatOp("Quadrilateral", "Helmholtz", []int{5, 5}))
	assert.True(t, op.DoMatOp("quadrilateral", "mass", []int{2, 2}))
	assert.False(t, op.DoMatOp("Hexahedron", "Mass", []int{2, 2, 2}))
	assert.False(t, op.DoMatOp("Quadrilateral", "Laplacian", []int{6, 6}))
}

func TestDefault(t *testing.T) {
	for dim := 1; dim <= 3; dim++ {
		ip := Default(dim)
		require.NoError(t, ip.Validate())
		assert.Len(t, ip.Mesh.Elements, dim)
		assert.Len(t, ip.RegionKinds(), 2*dim)
		assert.Equal(t, 5, ip.NumModes())
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"dimension":       "Dimension: 4\nLambda: 1",
		"basis":           "Basis: Wavelet\nLambda: 1",
		"solver":          "SolnType: Multigrid\nLambda: 1",
		"mesh entries":    "Lambda: 1\nMesh:\n  Elements: [2]",
		"inverted box":    "Lambda: 1\nMesh:\n  Lo: [1, 0]",
		"region":          "Lambda: 1\nBCs:\n  Dirichlet:\n    7:\n      Value: 0",
		"unknown BC":      "Lambda: 1\nBCs:\n  Slip:\n    0:\n      Value: 0",
		"periodic BC":     "Lambda: 1\nBCs:\n  Periodic:\n    0:\n      Value: 0",
		"singular":        "Lambda: 0",
		"periodic dir":    "Lambda: 1\nMesh:\n  Periodic: [2]",
		"negative modes":  "Lambda: 1\nOptimizationParameters:\n  Quadrilateral:\n    Mass:\n      - NumModes0: -1",
		"malformed input": "Lambda: [1",
	}
	for name, in := range cases {
		var ip InputParametersHP
		assert.ErrorIsf(t, ip.Parse([]byte(in)), utils.ErrConfig, "%s", name)
	}
	var ip InputParametersHP
	assert.NoError(t, ip.Parse([]byte("Lambda: 0\nBCs:\n  Dirichlet:\n    2:\n      Value: 0")))
}
