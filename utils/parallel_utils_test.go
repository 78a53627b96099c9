package utils

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionMap(t *testing.T) {
	{ // Test PartitionMap
		getHisto := func(K, Np int) (histo map[int]int) {
			pm := NewPartitionMap(Np, K)
			histo = make(map[int]int)
			for np := 0; np < pm.ParallelDegree; np++ {
				maxK := pm.GetBucketDimension(np)
				histo[maxK]++
			}
			return
		}
		getTotal := func(histo map[int]int) (total int) {
			for key, count := range histo {
				total += key * count
			}
			return
		}
		assert.Equal(t, map[int]int{0: 30, 1: 2}, getHisto(2, 32))
		assert.Equal(t, map[int]int{1: 32}, getHisto(32, 32))
		assert.Equal(t, map[int]int{8: 32}, getHisto(256, 32))
		assert.Equal(t, map[int]int{8: 1, 9: 31}, getHisto(287, 32))
		assert.Equal(t, 287, getTotal(getHisto(287, 32)))
		for n := 64; n < 10000; n++ {
			var (
				keys   [2]float64
				keyNum int
			)
			histo := getHisto(n, 32)
			for key := range histo {
				keys[keyNum] = float64(key)
				keyNum++
			}
			if keyNum == 2 {
				assert.Equal(t, 1., math.Abs(keys[0]-keys[1])) // Maximum imbalance of 1
			}
			assert.Equal(t, n, getTotal(histo))
		}
	}
	{ // Test inverted bucket probe - find bucket that contains index (efficiently)
		for maxIndex := 10; maxIndex < 1000; maxIndex++ {
			pm := NewPartitionMap(5, maxIndex)
			for k := 0; k < maxIndex; k++ {
				tryCount, bn, min, max := pm.getBucketWithTryCount(k)
				mmin, mmax := pm.GetBucketRange(bn)
				assert.True(t, k >= min && k < max && min == mmin && max == mmax && tryCount <= 1)
			}
		}
	}
}

func TestPartitionMapOutOfRange(t *testing.T) {
	pm := NewPartitionMap(4, 10)
	bn, _, _ := pm.GetBucket(10)
	assert.Equal(t, -1, bn)
	bn, _, _ = pm.GetBucket(-1)
	assert.Equal(t, -1, bn)
	// Buckets are [0,3) [3,6) [6,8) [8,10)
	for _, tc := range []struct{ global, bucket, local, size int }{
		{2, 0, 2, 3}, {7, 2, 1, 2}, {8, 3, 0, 2}, {9, 3, 1, 2},
	} {
		k, kmax, bn := pm.GetLocalK(tc.global)
		assert.Equal(t, tc.bucket, bn)
		assert.Equal(t, tc.local, k)
		assert.Equal(t, tc.size, kmax)
		assert.Equal(t, tc.global, pm.GetGlobalK(k, bn))
		assert.Equal(t, pm.GetBucketDimension(bn), kmax)
	}
}

func TestMailBoxAllToAll(t *testing.T) {
	var (
		NP      = 4
		mb      = NewMailBox[int](NP)
		barrier = NewBarrier(NP)
		wg      sync.WaitGroup
		got     = make([][]int, NP)
		ctx     = context.Background()
	)
	for round := 0; round < 3; round++ {
		wg.Add(NP)
		for n := 0; n < NP; n++ {
			go func(myThread int) {
				defer wg.Done()
				mb.PostMessageToAll(myThread, 10*round+myThread)
				mb.DeliverMyMessages(myThread)
				assert.NoError(t, barrier.Wait(ctx))
				mb.ReceiveMyMessages(myThread)
				var sum int
				for _, msg := range mb.ReceiveMsgQs[myThread].Cells() {
					sum += msg
				}
				got[myThread] = append(got[myThread], sum)
				mb.ClearMyMessages(myThread)
				assert.NoError(t, barrier.Wait(ctx))
			}(n)
		}
		wg.Wait()
	}
	for n := 0; n < NP; n++ {
		require.Len(t, got[n], 3)
		for round := 0; round < 3; round++ {
			// sum over the other threads of 10*round+k
			expected := 3*10*round + (0 + 1 + 2 + 3 - n)
			assert.Equal(t, expected, got[n][round])
		}
	}
}

func TestBarrierCancel(t *testing.T) {
	b := NewBarrier(2)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Wait(ctx), context.DeadlineExceeded)
}
