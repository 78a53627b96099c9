package mesh

import (
	"fmt"

	"github.com/notargets/gohp/geometry"
	"github.com/notargets/gohp/utils"
)

// Region ids of the generated meshes
const (
	XMin = iota
	XMax
	YMin
	YMax
	ZMin
	ZMax
)

var regionNames = [6]string{"xmin", "xmax", "ymin", "ymax", "zmin", "zmax"}

// NewLineMesh divides [x0, x1] into nel equal segments. Regions xmin and
// xmax hold the end vertices.
func NewLineMesh(x0, x1 float64, nel int) (m *Mesh, err error) {
	if nel < 1 || x1 <= x0 {
		return nil, fmt.Errorf("%w: line mesh [%g,%g] with %d elements", utils.ErrConfig, x0, x1, nel)
	}
	var (
		verts  = make([]geometry.Vec3, nel+1)
		shapes = make([]geometry.Shape, nel)
		conn   = make([][]int, nel)
	)
	for i := range verts {
		verts[i] = geometry.Vec3{x0 + (x1-x0)*float64(i)/float64(nel)}
	}
	for k := range conn {
		shapes[k], conn[k] = geometry.Segment, []int{k, k + 1}
	}
	if m, err = Build(1, 1, verts, shapes, conn); err != nil {
		return
	}
	err = m.addRegions([][]FacetRef{{{0, 0}}, {{nel - 1, 1}}})
	return
}

// NewBoxMesh2D divides the rectangle lo..hi into nx by ny quadrilaterals.
// Vertex (i, j) has id j*(nx+1)+i and element (i, j) has id j*nx+i.
func NewBoxMesh2D(lo, hi geometry.Vec3, nx, ny int) (m *Mesh, err error) {
	if nx < 1 || ny < 1 || hi[0] <= lo[0] || hi[1] <= lo[1] {
		return nil, fmt.Errorf("%w: box mesh %v..%v with %dx%d elements", utils.ErrConfig, lo, hi, nx, ny)
	}
	var (
		verts   []geometry.Vec3
		shapes  []geometry.Shape
		conn    [][]int
		vid     = func(i, j int) int { return j*(nx+1) + i }
		regions = make([][]FacetRef, 4)
	)
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			verts = append(verts, geometry.Vec3{
				lo[0] + (hi[0]-lo[0])*float64(i)/float64(nx),
				lo[1] + (hi[1]-lo[1])*float64(j)/float64(ny),
			})
		}
	}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			k := len(conn)
			shapes = append(shapes, geometry.Quadrilateral)
			conn = append(conn, []int{vid(i, j), vid(i+1, j), vid(i+1, j+1), vid(i, j+1)})
			if i == 0 {
				regions[XMin] = append(regions[XMin], FacetRef{k, 3})
			}
			if i == nx-1 {
				regions[XMax] = append(regions[XMax], FacetRef{k, 1})
			}
			if j == 0 {
				regions[YMin] = append(regions[YMin], FacetRef{k, 0})
			}
			if j == ny-1 {
				regions[YMax] = append(regions[YMax], FacetRef{k, 2})
			}
		}
	}
	if m, err = Build(2, 2, verts, shapes, conn); err != nil {
		return
	}
	err = m.addRegions(regions)
	return
}

// NewBoxMesh3D divides the box lo..hi into nx by ny by nz hexahedra.
// Vertex (i, j, l) has id (l*(ny+1)+j)*(nx+1)+i.
func NewBoxMesh3D(lo, hi geometry.Vec3, nx, ny, nz int) (m *Mesh, err error) {
	if nx < 1 || ny < 1 || nz < 1 || hi[0] <= lo[0] || hi[1] <= lo[1] || hi[2] <= lo[2] {
		return nil, fmt.Errorf("%w: box mesh %v..%v with %dx%dx%d elements", utils.ErrConfig, lo, hi, nx, ny, nz)
	}
	var (
		verts   []geometry.Vec3
		shapes  []geometry.Shape
		conn    [][]int
		vid     = func(i, j, l int) int { return (l*(ny+1)+j)*(nx+1) + i }
		regions = make([][]FacetRef, 6)
	)
	for l := 0; l <= nz; l++ {
		for j := 0; j <= ny; j++ {
			for i := 0; i <= nx; i++ {
				verts = append(verts, geometry.Vec3{
					lo[0] + (hi[0]-lo[0])*float64(i)/float64(nx),
					lo[1] + (hi[1]-lo[1])*float64(j)/float64(ny),
					lo[2] + (hi[2]-lo[2])*float64(l)/float64(nz),
				})
			}
		}
	}
	for l := 0; l < nz; l++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				k := len(conn)
				shapes = append(shapes, geometry.Hexahedron)
				conn = append(conn, []int{
					vid(i, j, l), vid(i+1, j, l), vid(i+1, j+1, l), vid(i, j+1, l),
					vid(i, j, l+1), vid(i+1, j, l+1), vid(i+1, j+1, l+1), vid(i, j+1, l+1),
				})
				if i == 0 {
					regions[XMin] = append(regions[XMin], FacetRef{k, 4})
				}
				if i == nx-1 {
					regions[XMax] = append(regions[XMax], FacetRef{k, 2})
				}
				if j == 0 {
					regions[YMin] = append(regions[YMin], FacetRef{k, 1})
				}
				if j == ny-1 {
					regions[YMax] = append(regions[YMax], FacetRef{k, 3})
				}
				if l == 0 {
					regions[ZMin] = append(regions[ZMin], FacetRef{k, 0})
				}
				if l == nz-1 {
					regions[ZMax] = append(regions[ZMax], FacetRef{k, 5})
				}
			}
		}
	}
	if m, err = Build(3, 3, verts, shapes, conn); err != nil {
		return
	}
	err = m.addRegions(regions)
	return
}

// addRegions adds generated regions with natural conditions
func (m *Mesh) addRegions(regions [][]FacetRef) error {
	for r, facets := range regions {
		if _, err := m.AddRegion(regionNames[r], utils.BCNeumann, facets); err != nil {
			return err
		}
	}
	return nil
}

// SetPeriodic pairs the min and max regions of one coordinate direction of a
// generated mesh
func (m *Mesh) SetPeriodic(dir int) error {
	if dir < 0 || dir >= m.Dim {
		return fmt.Errorf("%w: periodic direction %d in a %dD mesh", utils.ErrConfig, dir, m.Dim)
	}
	lo, err := m.Region(regionNames[2*dir])
	if err != nil {
		return err
	}
	hi, err := m.Region(regionNames[2*dir+1])
	if err != nil {
		return err
	}
	xl, xh := m.Vertices[m.FacetVerts(lo.Facets[0].Elmt, lo.Facets[0].Facet)[0]],
		m.Vertices[m.FacetVerts(hi.Facets[0].Elmt, hi.Facets[0].Facet)[0]]
	var shift geometry.Vec3
	shift[dir] = xh[dir] - xl[dir]
	return m.PairRegions(lo.ID, hi.ID, shift)
}
