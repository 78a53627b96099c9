package geometry

import (
	"fmt"
	"math"
)

type Shape uint8

const (
	Point Shape = iota
	Segment
	Triangle
	Quadrilateral
	Hexahedron
)

func (s Shape) String() string {
	switch s {
	case Point:
		return "Point"
	case Segment:
		return "Segment"
	case Triangle:
		return "Triangle"
	case Quadrilateral:
		return "Quadrilateral"
	case Hexahedron:
		return "Hexahedron"
	}
	return fmt.Sprintf("Shape(%d)", uint8(s))
}

// Dim is the reference (expansion) dimension
func (s Shape) Dim() int {
	switch s {
	case Segment:
		return 1
	case Triangle, Quadrilateral:
		return 2
	case Hexahedron:
		return 3
	}
	return 0
}

func (s Shape) NumVerts() int {
	switch s {
	case Point:
		return 1
	case Segment:
		return 2
	case Triangle:
		return 3
	case Quadrilateral:
		return 4
	case Hexahedron:
		return 8
	}
	return 0
}

func (s Shape) NumEdges() int {
	switch s {
	case Triangle:
		return 3
	case Quadrilateral:
		return 4
	case Hexahedron:
		return 12
	}
	return 0
}

func (s Shape) NumFaces() int {
	if s == Hexahedron {
		return 6
	}
	return 0
}

// IsTensor is true for shapes with a tensor product reference element
func (s Shape) IsTensor() bool {
	return s == Segment || s == Quadrilateral || s == Hexahedron
}

// NumFacets is the number of codimension one entities
func (s Shape) NumFacets() int {
	switch s {
	case Segment:
		return 2
	case Triangle, Quadrilateral:
		return s.NumEdges()
	case Hexahedron:
		return 6
	}
	return 0
}

type GeomType uint8

const (
	NoGeomType GeomType = iota
	// Regular maps are affine: the factors are constant and stored once
	Regular
	// Deformed maps store factors at every point
	Deformed
	MovingRegular
	MovingDeformed
)

func (gt GeomType) String() string {
	switch gt {
	case Regular:
		return "Regular"
	case Deformed:
		return "Deformed"
	case MovingRegular:
		return "MovingRegular"
	case MovingDeformed:
		return "MovingDeformed"
	}
	return "NoGeomType"
}

func (gt GeomType) IsRegular() bool { return gt == Regular || gt == MovingRegular }
func (gt GeomType) IsMoving() bool  { return gt == MovingRegular || gt == MovingDeformed }

type Orientation uint8

const (
	PositiveJacobian Orientation = iota
	NegativeJacobian
)

func (o Orientation) String() string {
	if o == NegativeJacobian {
		return "NegativeJacobian"
	}
	return "PositiveJacobian"
}

// Reference element edges, each aligned with one reference axis and running
// from the lower to the upper end of that axis.
var (
	QuadEdgeVerts = [4][2]int{{0, 1}, {1, 2}, {3, 2}, {0, 3}}
	QuadEdgeDir   = [4]int{0, 1, 0, 1}
	// Side of the fixed direction (0 is -1, 1 is +1)
	QuadEdgeSide = [4]int{0, 1, 1, 0}

	TriEdgeVerts = [3][2]int{{0, 1}, {1, 2}, {0, 2}}

	HexEdgeVerts = [12][2]int{
		{0, 1}, {1, 2}, {3, 2}, {0, 3},
		{0, 4}, {1, 5}, {2, 6}, {3, 7},
		{4, 5}, {5, 6}, {7, 6}, {4, 7},
	}
	HexEdgeDir = [12]int{0, 1, 0, 1, 2, 2, 2, 2, 0, 1, 0, 1}
	// Sides of the two fixed directions, in ascending direction order
	HexEdgeSides = [12][2]int{
		{0, 0}, {1, 0}, {1, 0}, {0, 0},
		{0, 0}, {1, 0}, {1, 1}, {0, 1},
		{0, 1}, {1, 1}, {1, 1}, {0, 1},
	}

	// HexFaceVerts lists (a-,b-), (a+,b-), (a+,b+), (a-,b+) where a<b are
	// the tangential reference directions of the face
	HexFaceVerts = [6][4]int{
		{0, 1, 2, 3}, {0, 1, 5, 4}, {1, 2, 6, 5},
		{3, 2, 6, 7}, {0, 3, 7, 4}, {4, 5, 6, 7},
	}
	HexFaceDir  = [6]int{2, 1, 0, 1, 0, 2}
	HexFaceSide = [6]int{0, 0, 1, 1, 0, 1}
	// HexFaceEdges are the local edges bounding each face
	HexFaceEdges = [6][4]int{
		{0, 1, 2, 3}, {0, 4, 5, 8}, {1, 5, 6, 9},
		{2, 6, 7, 10}, {3, 4, 7, 11}, {8, 9, 10, 11},
	}
)

// FaceTangentDirs returns the two tangential directions of a hex face in ascending order
func FaceTangentDirs(f int) (a, b int) {
	switch HexFaceDir[f] {
	case 0:
		return 1, 2
	case 1:
		return 0, 2
	}
	return 0, 1
}

// FacetDirSide returns the fixed reference direction and side of a facet of
// a tensor shape
func FacetDirSide(s Shape, facet int) (dir, side int) {
	switch s {
	case Segment:
		return 0, facet
	case Quadrilateral:
		return QuadEdgeDir[facet] ^ 1, QuadEdgeSide[facet]
	case Hexahedron:
		return HexFaceDir[facet], HexFaceSide[facet]
	}
	panic(fmt.Errorf("facets of %s are not tensor aligned", s))
}

type Vec3 [3]float64

func (a Vec3) Add(b Vec3) Vec3 { return Vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func (a Vec3) Sub(b Vec3) Vec3 { return Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func (a Vec3) Scale(s float64) Vec3 {
	return Vec3{s * a[0], s * a[1], s * a[2]}
}
func (a Vec3) Dot(b Vec3) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }
func (a Vec3) Norm() float64      { return math.Sqrt(a.Dot(a)) }
func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
