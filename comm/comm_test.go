package comm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/notargets/gohp/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerial(t *testing.T) {
	var c Communicator = Serial{}
	assert.Equal(t, 0, c.Rank())
	assert.Equal(t, 1, c.Size())
	vals := []float64{1, 2, 3, 4}
	require.NoError(t, c.GatherScatterSum(context.Background(), []int{5, 7, 5, -1}, vals))
	assert.Equal(t, []float64{4, 2, 4, 4}, vals)
	mx, err := c.AllReduceMax(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, mx)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.GatherScatterSum(ctx, nil, nil), utils.ErrComm)
	assert.Panics(t, func() { _ = c.GatherScatterSum(context.Background(), []int{1}, nil) })
}

func TestInProcess(t *testing.T) {
	var (
		np  = 3
		eps = NewInProcess(np)
		wg  sync.WaitGroup
		// Rank r holds ids r, r+1 and the shared id 10
		got = make([][]float64, np)
		mxs = make([]int, np)
	)
	wg.Add(np)
	for r := 0; r < np; r++ {
		go func(c *InProcess) {
			defer wg.Done()
			ctx := context.Background()
			r := c.Rank()
			vals := []float64{1, 1, float64(r + 1)}
			ids := []int{r, r + 1, 10}
			for round := 0; round < 2; round++ {
				assert.NoError(t, c.GatherScatterSum(ctx, ids, vals))
			}
			got[r] = vals
			mx, err := c.AllReduceMax(ctx, 5*r)
			assert.NoError(t, err)
			mxs[r] = mx
		}(eps[r])
	}
	wg.Wait()
	// Id 0 lives on rank 0 only, 1 on ranks 0 and 1, 2 on ranks 1 and 2, 3 on rank 2.
	// Two rounds compound the sums.
	assert.Equal(t, []float64{1, 4, 18}, got[0])
	assert.Equal(t, []float64{4, 4, 18}, got[1])
	assert.Equal(t, []float64{4, 1, 18}, got[2])
	assert.Equal(t, []int{10, 10, 10}, mxs)
}

func TestInProcessCancel(t *testing.T) {
	eps := NewInProcess(2)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := eps[0].GatherScatterSum(ctx, []int{0}, []float64{1})
	assert.ErrorIs(t, err, utils.ErrComm)
	assert.Panics(t, func() { NewInProcess(0) })
}
