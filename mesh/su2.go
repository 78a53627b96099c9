package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/notargets/gohp/geometry"
	"github.com/notargets/gohp/utils"
)

// From here: https://su2code.github.io/docs_v7/Mesh-File/
type SU2ElementType uint8

const (
	ELType_LINE          SU2ElementType = 3
	ELType_Triangle      SU2ElementType = 5
	ELType_Quadrilateral SU2ElementType = 9
	ELType_Tetrahedral   SU2ElementType = 10
	ELType_Hexahedral    SU2ElementType = 12
	ELType_Prism         SU2ElementType = 13
	ELType_Pyramid       SU2ElementType = 14
)

func (et SU2ElementType) shape() (s geometry.Shape, nv int, ok bool) {
	switch et {
	case ELType_LINE:
		return geometry.Segment, 2, true
	case ELType_Quadrilateral:
		return geometry.Quadrilateral, 4, true
	case ELType_Hexahedral:
		return geometry.Hexahedron, 8, true
	}
	return
}

type su2Reader struct {
	sc   *bufio.Scanner
	line int
}

// next returns the next line that is neither blank nor a comment
func (r *su2Reader) next() (string, error) {
	for r.sc.Scan() {
		r.line++
		line := strings.TrimSpace(r.sc.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		return line, nil
	}
	if err := r.sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("%w: SU2 file ends at line %d", utils.ErrConfig, r.line)
}

// token reads a "NAME= value" line and returns value
func (r *su2Reader) token(name string) (string, error) {
	line, err := r.next()
	if err != nil {
		return "", err
	}
	ind := strings.Index(line, "=")
	if ind < 0 || !strings.EqualFold(strings.TrimSpace(line[:ind]), name) {
		return "", fmt.Errorf("%w: line %d is [%s], should be %s=", utils.ErrConfig, r.line, line, name)
	}
	return strings.TrimSpace(line[ind+1:]), nil
}

func (r *su2Reader) number(name string) (n int, err error) {
	var tok string
	if tok, err = r.token(name); err != nil {
		return
	}
	if n, err = strconv.Atoi(tok); err != nil || n < 0 {
		return 0, fmt.Errorf("%w: line %d: %s= %q", utils.ErrConfig, r.line, name, tok)
	}
	return
}

// fields reads a line of at least n whitespace separated fields
func (r *su2Reader) fields(n int) (f []string, err error) {
	var line string
	if line, err = r.next(); err != nil {
		return
	}
	if f = strings.Fields(line); len(f) < n {
		return nil, fmt.Errorf("%w: line %d has %d of %d fields", utils.ErrConfig, r.line, len(f), n)
	}
	return
}

// readCell reads an element type and its vertex ids
func (r *su2Reader) readCell() (et SU2ElementType, verts []int, err error) {
	var f []string
	if f, err = r.fields(2); err != nil {
		return
	}
	t, err := strconv.Atoi(f[0])
	if err != nil {
		return 0, nil, fmt.Errorf("%w: line %d element type %q", utils.ErrConfig, r.line, f[0])
	}
	et = SU2ElementType(t)
	_, nv, ok := et.shape()
	if !ok {
		return 0, nil, fmt.Errorf("%w: SU2 element type %d at line %d", utils.ErrUnsupported, t, r.line)
	}
	if len(f) < nv+1 {
		return 0, nil, fmt.Errorf("%w: line %d has %d vertices of %d", utils.ErrConfig, r.line, len(f)-1, nv)
	}
	verts = make([]int, nv)
	for i := range verts {
		if verts[i], err = strconv.Atoi(f[i+1]); err != nil {
			return 0, nil, fmt.Errorf("%w: line %d vertex %q", utils.ErrConfig, r.line, f[i+1])
		}
	}
	return
}

// ReadSU2File reads a mesh in SU2 native format, see ReadSU2
func ReadSU2File(filename string) (m *Mesh, err error) {
	var file *os.File
	if file, err = os.Open(filename); err != nil {
		return
	}
	defer file.Close()
	if m, err = ReadSU2(file); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return
}

// ReadSU2 reads a quadrilateral or hexahedral mesh in SU2 native format.
// Every marker becomes a boundary region named by its tag, with the kind
// the tag names in utils.BCNameMap or Neumann otherwise.
func ReadSU2(rd io.Reader) (m *Mesh, err error) {
	r := &su2Reader{sc: bufio.NewScanner(rd)}
	var dim, ne, nv, nmark int
	if dim, err = r.number("NDIME"); err != nil {
		return
	}
	if dim != 2 && dim != 3 {
		return nil, fmt.Errorf("%w: %dD SU2 mesh", utils.ErrUnsupported, dim)
	}
	if ne, err = r.number("NELEM"); err != nil {
		return
	}
	var (
		shapes = make([]geometry.Shape, ne)
		conn   = make([][]int, ne)
	)
	for k := range conn {
		var et SU2ElementType
		if et, conn[k], err = r.readCell(); err != nil {
			return
		}
		if shapes[k], _, _ = et.shape(); shapes[k].Dim() != dim {
			return nil, fmt.Errorf("%w: %s element %d in a %dD mesh", utils.ErrConfig, shapes[k], k, dim)
		}
	}
	if nv, err = r.number("NPOIN"); err != nil {
		return
	}
	verts := make([]geometry.Vec3, nv)
	for i := range verts {
		var f []string
		if f, err = r.fields(dim); err != nil {
			return
		}
		for c := 0; c < dim; c++ {
			if verts[i][c], err = strconv.ParseFloat(f[c], 64); err != nil {
				return nil, fmt.Errorf("%w: line %d coordinate %q", utils.ErrConfig, r.line, f[c])
			}
		}
	}
	for k, c := range conn {
		for _, v := range c {
			if v < 0 || v >= nv {
				return nil, fmt.Errorf("%w: element %d names vertex %d of %d", utils.ErrConfig, k, v, nv)
			}
		}
	}
	if m, err = Build(dim, dim, verts, shapes, conn); err != nil {
		return
	}
	// Boundary facets by sorted vertex ids
	bnd := make(map[string]FacetRef)
	for _, fr := range m.BoundaryFacets() {
		bnd[facetKey(m.FacetVerts(fr.Elmt, fr.Facet))] = fr
	}
	if nmark, err = r.number("NMARK"); err != nil {
		return nil, err
	}
	for n := 0; n < nmark; n++ {
		var (
			tag    string
			nelems int
			facets []FacetRef
		)
		if tag, err = r.token("MARKER_TAG"); err != nil {
			return nil, err
		}
		if nelems, err = r.number("MARKER_ELEMS"); err != nil {
			return nil, err
		}
		for i := 0; i < nelems; i++ {
			var fv []int
			if _, fv, err = r.readCell(); err != nil {
				return nil, err
			}
			fr, ok := bnd[facetKey(fv)]
			if !ok {
				return nil, fmt.Errorf("%w: marker %q element %v is not a boundary facet", utils.ErrConfig, tag, fv)
			}
			facets = append(facets, fr)
		}
		kind, perr := utils.ParseBCName(tag)
		if perr != nil || kind == utils.BCPeriodic || kind == utils.BCNone {
			kind = utils.BCNeumann
		}
		if _, err = m.AddRegion(tag, kind, facets); err != nil {
			return nil, err
		}
	}
	return
}

func facetKey(verts []int) string {
	v := append([]int(nil), verts...)
	sort.Ints(v)
	var sb strings.Builder
	for _, id := range v {
		sb.WriteString(strconv.Itoa(id))
		sb.WriteByte(',')
	}
	return sb.String()
}
