package mesh

import (
	"fmt"

	"github.com/notargets/gohp/geometry"
	"github.com/notargets/gohp/utils"
)

// Edge vertices are stored with V[0] < V[1]
type Edge struct {
	V [2]int
}

// Face vertices are stored in canonical order, see geometry.CanonicalFace
type Face struct {
	V [4]int
}

// Element is one cell of the mesh with its entity connectivity
type Element struct {
	ID    int
	Shape geometry.Shape
	Verts []int
	// Global edge ids per local edge, with the local direction against the global one
	Edges      []int
	EdgeOrient []geometry.EdgeOrient
	Faces      []int
	FaceOrient []geometry.FaceOrient
	Tag        int
}

// FacetRef names local facet Facet of element Elmt
type FacetRef struct {
	Elmt, Facet int
}

// Mesh represents a conforming unstructured mesh with all connectivity
type Mesh struct {
	Dim      int // Reference dimension of every element
	CoordDim int
	Vertices []geometry.Vec3
	Edges    []Edge
	Faces    []Face
	Elements []Element

	// Connectivity across facets (built during initialization)
	EToE [][]int // Neighbour element per local facet, -1 on the boundary
	EToF [][]int // Neighbour's local facet, -1 on the boundary

	Regions     []BoundaryRegion
	Periodic    []PeriodicPair
	VertexPairs [][2]int

	// Curves holds edge shapes at GLL points, running along the global edge direction
	Curves map[int][]geometry.Vec3

	edgeMap map[[2]int]int
	faceMap map[[4]int]int
}

func localEdges(s geometry.Shape) [][2]int {
	switch s {
	case geometry.Triangle:
		return geometry.TriEdgeVerts[:]
	case geometry.Quadrilateral:
		return geometry.QuadEdgeVerts[:]
	case geometry.Hexahedron:
		return geometry.HexEdgeVerts[:]
	}
	return nil
}

// Build creates a mesh from vertex coordinates and element to vertex
// connectivity, numbering edges and faces in order of first appearance
func Build(dim, coordDim int, verts []geometry.Vec3, shapes []geometry.Shape, conn [][]int) (m *Mesh, err error) {
	if dim < 1 || dim > 3 || coordDim < dim || coordDim > 3 {
		return nil, fmt.Errorf("%w: mesh of dimension %d in %d coordinates", utils.ErrConfig, dim, coordDim)
	}
	if len(shapes) != len(conn) {
		return nil, fmt.Errorf("%w: %d shapes for %d elements", utils.ErrConfig, len(shapes), len(conn))
	}
	m = &Mesh{
		Dim:      dim,
		CoordDim: coordDim,
		Vertices: append([]geometry.Vec3(nil), verts...),
		Elements: make([]Element, len(conn)),
		Curves:   make(map[int][]geometry.Vec3),
		edgeMap:  make(map[[2]int]int),
		faceMap:  make(map[[4]int]int),
	}
	for k, vs := range conn {
		s := shapes[k]
		if s.Dim() != dim {
			return nil, fmt.Errorf("%w: element %d is a %s in a %dD mesh", utils.ErrConfig, k, s, dim)
		}
		if len(vs) != s.NumVerts() {
			return nil, fmt.Errorf("%w: element %d: %s with %d vertices", utils.ErrConfig, k, s, len(vs))
		}
		for _, v := range vs {
			if v < 0 || v >= len(verts) {
				return nil, fmt.Errorf("%w: element %d: vertex %d out of range", utils.ErrConfig, k, v)
			}
		}
		el := &m.Elements[k]
		el.ID, el.Shape, el.Verts = k, s, append([]int(nil), vs...)
		for _, lv := range localEdges(s) {
			a, b := vs[lv[0]], vs[lv[1]]
			o := geometry.Forwards
			if a > b {
				a, b, o = b, a, geometry.Backwards
			}
			el.Edges = append(el.Edges, m.addEdge(a, b))
			el.EdgeOrient = append(el.EdgeOrient, o)
		}
		if s == geometry.Hexahedron {
			for _, lf := range geometry.HexFaceVerts {
				local := [4]int{vs[lf[0]], vs[lf[1]], vs[lf[2]], vs[lf[3]]}
				canon := geometry.CanonicalFace(local)
				el.Faces = append(el.Faces, m.addFace(canon))
				el.FaceOrient = append(el.FaceOrient, geometry.FaceOrientation(local, canon))
			}
		}
	}
	if err = m.buildConnectivity(); err != nil {
		return nil, err
	}
	return
}

func (m *Mesh) addEdge(a, b int) int {
	key := [2]int{a, b}
	if id, ok := m.edgeMap[key]; ok {
		return id
	}
	id := len(m.Edges)
	m.Edges = append(m.Edges, Edge{V: key})
	m.edgeMap[key] = id
	return id
}

func (m *Mesh) addFace(canon [4]int) int {
	if id, ok := m.faceMap[canon]; ok {
		return id
	}
	id := len(m.Faces)
	m.Faces = append(m.Faces, Face{V: canon})
	m.faceMap[canon] = id
	return id
}

// buildConnectivity pairs elements through shared facet entities
func (m *Mesh) buildConnectivity() error {
	var (
		ne    = len(m.Elements)
		first = make(map[int]FacetRef)
	)
	m.EToE = make([][]int, ne)
	m.EToF = make([][]int, ne)
	for k := range m.Elements {
		nf := m.Elements[k].Shape.NumFacets()
		m.EToE[k] = make([]int, nf)
		m.EToF[k] = make([]int, nf)
		for f := 0; f < nf; f++ {
			m.EToE[k][f], m.EToF[k][f] = -1, -1
			ent := m.FacetEntity(k, f)
			nb, ok := first[ent]
			if !ok {
				first[ent] = FacetRef{Elmt: k, Facet: f}
				continue
			}
			if m.EToE[nb.Elmt][nb.Facet] != -1 {
				return fmt.Errorf("%w: facet entity %d shared by more than two elements", utils.ErrConfig, ent)
			}
			m.EToE[k][f], m.EToF[k][f] = nb.Elmt, nb.Facet
			m.EToE[nb.Elmt][nb.Facet], m.EToF[nb.Elmt][nb.Facet] = k, f
		}
	}
	return nil
}

// NumFacetEntities counts vertices in 1D, edges in 2D and faces in 3D
func (m *Mesh) NumFacetEntities() int {
	switch m.Dim {
	case 1:
		return len(m.Vertices)
	case 2:
		return len(m.Edges)
	}
	return len(m.Faces)
}

// FacetEntity is the global vertex, edge or face id of a local facet
func (m *Mesh) FacetEntity(k, f int) int {
	el := &m.Elements[k]
	switch m.Dim {
	case 1:
		return el.Verts[f]
	case 2:
		return el.Edges[f]
	}
	return el.Faces[f]
}

// FacetVerts returns the global vertices of a local facet in local order
func (m *Mesh) FacetVerts(k, f int) []int {
	el := &m.Elements[k]
	switch el.Shape {
	case geometry.Segment:
		return []int{el.Verts[f]}
	case geometry.Hexahedron:
		lf := geometry.HexFaceVerts[f]
		return []int{el.Verts[lf[0]], el.Verts[lf[1]], el.Verts[lf[2]], el.Verts[lf[3]]}
	}
	le := localEdges(el.Shape)[f]
	return []int{el.Verts[le[0]], el.Verts[le[1]]}
}

// BoundaryFacets lists facets without a neighbour, in element order
func (m *Mesh) BoundaryFacets() (facets []FacetRef) {
	for k := range m.EToE {
		for f, nb := range m.EToE[k] {
			if nb == -1 {
				facets = append(facets, FacetRef{Elmt: k, Facet: f})
			}
		}
	}
	return
}

// SetEdgeCurve curves a 2D edge through points at GLL nodes, ordered along
// the global edge direction
func (m *Mesh) SetEdgeCurve(edge int, pts []geometry.Vec3) error {
	if m.Dim != 2 {
		return fmt.Errorf("%w: curved edges in a %dD mesh", utils.ErrUnsupported, m.Dim)
	}
	if edge < 0 || edge >= len(m.Edges) || len(pts) < 2 {
		return fmt.Errorf("%w: curve for edge %d", utils.ErrConfig, edge)
	}
	m.Curves[edge] = append([]geometry.Vec3(nil), pts...)
	return nil
}

// Geometry builds the geometric element of element k
func (m *Mesh) Geometry(k int) (g geometry.Geometry, err error) {
	el := &m.Elements[k]
	v := func(i int) geometry.Vec3 { return m.Vertices[el.Verts[i]] }
	switch el.Shape {
	case geometry.Segment:
		return geometry.NewSegGeom(k, m.CoordDim, v(0), v(1))
	case geometry.Triangle:
		return geometry.NewTriGeom(k, m.CoordDim, [3]geometry.Vec3{v(0), v(1), v(2)})
	case geometry.Quadrilateral:
		var q *geometry.QuadGeom
		if q, err = geometry.NewQuadGeom(k, m.CoordDim, [4]geometry.Vec3{v(0), v(1), v(2), v(3)}); err != nil {
			return
		}
		for e, id := range el.Edges {
			pts, ok := m.Curves[id]
			if !ok {
				continue
			}
			if el.EdgeOrient[e] == geometry.Backwards {
				pts = reversed(pts)
			}
			if err = q.SetEdgeCurve(e, pts); err != nil {
				return
			}
		}
		return q, nil
	case geometry.Hexahedron:
		var c [8]geometry.Vec3
		for i := range c {
			c[i] = v(i)
		}
		return geometry.NewHexGeom(k, c)
	}
	return nil, fmt.Errorf("%w: geometry of a %s", utils.ErrUnsupported, el.Shape)
}

func reversed(pts []geometry.Vec3) (r []geometry.Vec3) {
	r = make([]geometry.Vec3, len(pts))
	for i, p := range pts {
		r[len(pts)-1-i] = p
	}
	return
}

// Geometries builds every element's geometry
func (m *Mesh) Geometries() (geoms []geometry.Geometry, err error) {
	geoms = make([]geometry.Geometry, len(m.Elements))
	for k := range m.Elements {
		if geoms[k], err = m.Geometry(k); err != nil {
			return nil, err
		}
	}
	return
}

// DualGraph returns the element adjacency through facets in CSR form,
// including periodic neighbours
func (m *Mesh) DualGraph() (xadj, adjncy []int32) {
	nbrs := make([]utils.Index, len(m.Elements))
	link := func(a, b int) {
		if a >= 0 && b >= 0 && a != b && !nbrs[a].Contains(b) {
			nbrs[a] = append(nbrs[a], b)
			nbrs[b] = append(nbrs[b], a)
		}
	}
	for k := range m.EToE {
		for _, nb := range m.EToE[k] {
			link(k, nb)
		}
	}
	for _, pp := range m.Periodic {
		link(m.periodicElmt(pp.A), m.periodicElmt(pp.B))
	}
	xadj = make([]int32, len(m.Elements)+1)
	for k, list := range nbrs {
		xadj[k+1] = xadj[k] + int32(len(list))
		for _, nb := range list {
			adjncy = append(adjncy, int32(nb))
		}
	}
	return
}

func (m *Mesh) periodicElmt(ent int) int {
	for _, r := range m.Regions {
		for _, fr := range r.Facets {
			if m.FacetEntity(fr.Elmt, fr.Facet) == ent {
				return fr.Elmt
			}
		}
	}
	return -1
}

// PrintStatistics prints mesh statistics
func (m *Mesh) PrintStatistics() {
	fmt.Printf("Mesh Statistics:\n")
	fmt.Printf("  Dimension: %d (coordinates %d)\n", m.Dim, m.CoordDim)
	fmt.Printf("  Vertices: %d\n", len(m.Vertices))
	fmt.Printf("  Edges: %d\n", len(m.Edges))
	fmt.Printf("  Faces: %d\n", len(m.Faces))
	fmt.Printf("  Elements: %d\n", len(m.Elements))
	fmt.Printf("  Boundary facets: %d\n", len(m.BoundaryFacets()))
	for _, r := range m.Regions {
		paired := ""
		if r.Paired >= 0 {
			paired = fmt.Sprintf(" paired with %s", m.Regions[r.Paired].Name)
		}
		fmt.Printf("  Region %d %-8s %-10s facets %d%s\n", r.ID, r.Name, r.Kind, len(r.Facets), paired)
	}
}
