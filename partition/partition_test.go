package partition

import (
	"testing"

	"github.com/notargets/gohp/geometry"
	"github.com/notargets/gohp/mesh"
	"github.com/notargets/gohp/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContiguous(t *testing.T) {
	part, err := Contiguous(10, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0, 1, 1, 1, 2, 2, 2}, part)
	_, err = Contiguous(10, 0)
	assert.ErrorIs(t, err, utils.ErrConfig)

	m, err := mesh.NewLineMesh(0, 1, 10)
	require.NoError(t, err)
	st := Analyze(m, part, 3)
	assert.Equal(t, []int{4, 3, 3}, st.Elements)
	assert.Equal(t, 2, st.CutLinks)
	assert.Equal(t, map[int]int{0: 1, 2: 1}, st.Neighbors[1])
	assert.InDelta(t, 8./(20./3.)-1, st.Imbalance, 1.e-14)
}

func TestMetis(t *testing.T) {
	m, err := mesh.NewBoxMesh2D(geometry.Vec3{0, 0}, geometry.Vec3{1, 1}, 8, 8)
	require.NoError(t, err)
	for _, obj := range []string{"cut", "vol"} {
		cfg := DefaultConfig(4)
		cfg.Objective = obj
		part, err := Metis(m, cfg)
		require.NoError(t, err)
		require.Len(t, part, 64)
		st := Analyze(m, part, 4)
		for p := 0; p < 4; p++ {
			assert.Greater(t, st.Elements[p], 0)
		}
		// Any four way split of the 8x8 grid cuts at least two full lines
		assert.GreaterOrEqual(t, st.CutLinks, 16)
		assert.Less(t, st.Imbalance, 0.2)
	}
	part, err := Metis(m, DefaultConfig(1))
	require.NoError(t, err)
	assert.Equal(t, make([]int, 64), part)
	_, err = Metis(m, &Config{})
	assert.ErrorIs(t, err, utils.ErrConfig)
}
