package utils

import (
	"fmt"
	"sort"
)

type Index []int

func NewIndex(N int) (I Index) {
	return make(Index, N)
}

func NewRangeOffset(rmin, rmax int) (r Index) {
	// Input range is "1 based" and converted to zero based index
	return NewRange(rmin-1, rmax-1)
}

func NewRange(rmin, rmax int) (r Index) {
	var (
		size = rmax - rmin + 1 // INCLUSIVE RANGE
	)
	if size < 0 {
		size = 0
	}
	r = make(Index, size)
	for i := range r {
		r[i] = i + rmin
	}
	return
}

// NewFill returns an Index of length N with every entry set to val
func NewFill(N, val int) (r Index) {
	r = make(Index, N)
	for i := range r {
		r[i] = val
	}
	return
}

func (I Index) Add(val int) (r Index) {
	r = make(Index, len(I))
	for i, ival := range I {
		r[i] = val + ival
	}
	return r
}

func (I Index) AddInPlace(val int) (r Index) {
	for i := range I {
		I[i] += val
	}
	return I
}

func (I Index) Subset(J Index) (r Index) {
	r = make(Index, len(J))
	for j, val := range J {
		r[j] = I[val]
	}
	return
}

func (I Index) Copy() (r Index) {
	r = make(Index, len(I))
	copy(r, I)
	return
}

// Reverse returns a reversed copy
func (I Index) Reverse() (r Index) {
	r = make(Index, len(I))
	for i, val := range I {
		r[len(I)-1-i] = val
	}
	return
}

func (I Index) Max() (m int) {
	if len(I) == 0 {
		return -1
	}
	m = I[0]
	for _, val := range I[1:] {
		if val > m {
			m = val
		}
	}
	return
}

func (I Index) Min() (m int) {
	if len(I) == 0 {
		return -1
	}
	m = I[0]
	for _, val := range I[1:] {
		if val < m {
			m = val
		}
	}
	return
}

func (I Index) Contains(val int) bool {
	for _, v := range I {
		if v == val {
			return true
		}
	}
	return false
}

// Sorted returns a sorted copy with duplicates removed
func (I Index) Sorted() (r Index) {
	r = I.Copy()
	sort.Ints(r)
	if len(r) == 0 {
		return
	}
	w := 1
	for i := 1; i < len(r); i++ {
		if r[i] != r[w-1] {
			r[w] = r[i]
			w++
		}
	}
	return r[:w]
}

// Inverse returns the inverse permutation; I must be a permutation of 0..len(I)-1
func (I Index) Inverse() (r Index) {
	r = NewFill(len(I), -1)
	for i, val := range I {
		if val < 0 || val >= len(I) || r[val] != -1 {
			panic(fmt.Errorf("index is not a permutation at position %d, value %d", i, val))
		}
		r[val] = i
	}
	return
}
