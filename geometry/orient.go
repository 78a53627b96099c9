package geometry

import "fmt"

// EdgeOrient relates an element's local edge direction to the edge's global
// direction, which runs from its lower to its higher global vertex id
type EdgeOrient uint8

const (
	Forwards EdgeOrient = iota
	Backwards
)

func (o EdgeOrient) String() string {
	if o == Backwards {
		return "Backwards"
	}
	return "Forwards"
}

// FaceOrient is one of the 8 alignments of a local face (a, b) frame with the
// canonical (s, t) frame of the global face
type FaceOrient uint8

const (
	faceRevB FaceOrient = 1 << iota
	faceRevA
	faceTransposed
)

func NewFaceOrient(transposed, revA, revB bool) (o FaceOrient) {
	if transposed {
		o |= faceTransposed
	}
	if revA {
		o |= faceRevA
	}
	if revB {
		o |= faceRevB
	}
	return
}

// Transposed is true when local a runs along canonical t
func (o FaceOrient) Transposed() bool { return o&faceTransposed != 0 }

// RevA is true when local a runs against the canonical direction it is aligned with
func (o FaceOrient) RevA() bool { return o&faceRevA != 0 }
func (o FaceOrient) RevB() bool { return o&faceRevB != 0 }

func (o FaceOrient) String() string {
	return fmt.Sprintf("FaceOrient(T=%v,Ra=%v,Rb=%v)", o.Transposed(), o.RevA(), o.RevB())
}

// ToCanonical maps index (i, j) of a local na x nb face grid to canonical (s, t)
func (o FaceOrient) ToCanonical(i, j, na, nb int) (s, t int) {
	if o.RevA() {
		i = na - 1 - i
	}
	if o.RevB() {
		j = nb - 1 - j
	}
	if o.Transposed() {
		return j, i
	}
	return i, j
}

// CanonicalDims are the (s, t) extents of a local na x nb face grid
func (o FaceOrient) CanonicalDims(na, nb int) (ns, nt int) {
	if o.Transposed() {
		return nb, na
	}
	return na, nb
}

// CanonicalFace orders the cyclic vertex list v starting at its smallest id and
// proceeding toward the smaller of that vertex's two neighbours
func CanonicalFace(v [4]int) (c [4]int) {
	k := 0
	for i := 1; i < 4; i++ {
		if v[i] < v[k] {
			k = i
		}
	}
	step := 1
	if v[(k+3)%4] < v[(k+1)%4] {
		step = 3
	}
	for i := 0; i < 4; i++ {
		c[i] = v[(k+i*step)%4]
	}
	return
}

// FaceOrientation compares a local cyclic vertex list, ordered
// (a-,b-), (a+,b-), (a+,b+), (a-,b+), with the canonical list of the same face
func FaceOrientation(local, canon [4]int) FaceOrient {
	pos := func(v int) (s, t int) {
		for m, c := range canon {
			if c == v {
				if m == 1 || m == 2 {
					s = 1
				}
				if m >= 2 {
					t = 1
				}
				return
			}
		}
		panic(fmt.Errorf("vertex %d is not on face %v", v, canon))
	}
	s0, t0 := pos(local[0])
	s1, t1 := pos(local[1])
	s3, t3 := pos(local[3])
	if t1 == t0 {
		return NewFaceOrient(false, s1 < s0, t3 < t0)
	}
	return NewFaceOrient(true, t1 < t0, s3 < s0)
}
