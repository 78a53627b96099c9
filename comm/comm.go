// Package comm is the reduction collaborator used by universal assembly.
// Values are matched across ranks by universal id and summed in place.
package comm

import (
	"context"
	"fmt"

	"github.com/notargets/gohp/utils"
)

type Communicator interface {
	Rank() int
	Size() int
	// GatherScatterSum replaces every vals[i] with the sum of all values, on
	// all ranks, that carry the id ids[i]. Negative ids are left untouched.
	// The call blocks until every rank has joined.
	GatherScatterSum(ctx context.Context, ids []int, vals []float64) error
	// AllReduceMax returns the largest v over all ranks
	AllReduceMax(ctx context.Context, v int) (int, error)
}

func checkLen(ids []int, vals []float64) {
	if len(ids) != len(vals) {
		panic(fmt.Errorf("gather-scatter: %d ids for %d values", len(ids), len(vals)))
	}
}

// sumByID accumulates vals into sums keyed by id
func sumByID(sums map[int]float64, ids []int, vals []float64) {
	for i, id := range ids {
		if id >= 0 {
			sums[id] += vals[i]
		}
	}
}

func scatter(sums map[int]float64, ids []int, vals []float64) {
	for i, id := range ids {
		if id >= 0 {
			vals[i] = sums[id]
		}
	}
}

// Serial is the single rank communicator. Duplicate ids within the one rank
// are still summed.
type Serial struct{}

func (Serial) Rank() int { return 0 }
func (Serial) Size() int { return 1 }

func (Serial) GatherScatterSum(ctx context.Context, ids []int, vals []float64) error {
	checkLen(ids, vals)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrComm, err)
	}
	sums := make(map[int]float64, len(ids))
	sumByID(sums, ids, vals)
	scatter(sums, ids, vals)
	return nil
}

func (Serial) AllReduceMax(ctx context.Context, v int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", utils.ErrComm, err)
	}
	return v, nil
}
