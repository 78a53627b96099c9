package comm

import (
	"context"
	"fmt"

	"github.com/notargets/gohp/utils"
)

type message struct {
	ids  []int
	vals []float64
}

// hub is shared by the endpoints of one in-process group
type hub struct {
	np      int
	mb      *utils.MailBox[message]
	barrier *utils.Barrier
}

// InProcess is one rank of a group of goroutines exchanging through a shared
// mailbox. Every rank must enter each collective call, in the same order.
type InProcess struct {
	rank int
	h    *hub
}

// NewInProcess returns the np endpoints of a new group
func NewInProcess(np int) (eps []*InProcess) {
	if np < 1 {
		panic(fmt.Errorf("in-process group of %d ranks", np))
	}
	h := &hub{
		np:      np,
		mb:      utils.NewMailBox[message](np),
		barrier: utils.NewBarrier(np),
	}
	for r := 0; r < np; r++ {
		eps = append(eps, &InProcess{rank: r, h: h})
	}
	return
}

func (c *InProcess) Rank() int { return c.rank }
func (c *InProcess) Size() int { return c.h.np }

// exchange sends msg to every other rank and returns what they sent
func (c *InProcess) exchange(ctx context.Context, msg message) (got []message, err error) {
	mb := c.h.mb
	mb.PostMessageToAll(c.rank, msg)
	mb.DeliverMyMessages(c.rank)
	if err = c.h.barrier.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rank %d: %v", utils.ErrComm, c.rank, err)
	}
	mb.ReceiveMyMessages(c.rank)
	got = append(got, mb.ReceiveMsgQs[c.rank].Cells()...)
	mb.ClearMyMessages(c.rank)
	// Senders reuse their buffers only after every receiver has drained them
	if err = c.h.barrier.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rank %d: %v", utils.ErrComm, c.rank, err)
	}
	return
}

func (c *InProcess) GatherScatterSum(ctx context.Context, ids []int, vals []float64) (err error) {
	checkLen(ids, vals)
	var (
		sums = make(map[int]float64, len(ids))
		got  []message
	)
	msg := message{
		ids:  append([]int(nil), ids...),
		vals: append([]float64(nil), vals...),
	}
	if got, err = c.exchange(ctx, msg); err != nil {
		return
	}
	mine := make(map[int]bool, len(ids))
	for _, id := range ids {
		mine[id] = true
	}
	sumByID(sums, ids, vals)
	for _, m := range got {
		for i, id := range m.ids {
			if id >= 0 && mine[id] {
				sums[id] += m.vals[i]
			}
		}
	}
	scatter(sums, ids, vals)
	return
}

func (c *InProcess) AllReduceMax(ctx context.Context, v int) (mx int, err error) {
	var got []message
	if got, err = c.exchange(ctx, message{ids: []int{v}}); err != nil {
		return
	}
	mx = v
	for _, m := range got {
		if m.ids[0] > mx {
			mx = m.ids[0]
		}
	}
	return
}
