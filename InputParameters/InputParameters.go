package InputParameters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/notargets/gohp/assembly"
	"github.com/notargets/gohp/foundations"
	"github.com/notargets/gohp/utils"
)

// MeshParameters describe a generated box mesh, or name an SU2 grid file
// whose markers become the regions in file order
type MeshParameters struct {
	GridFile string    `json:"GridFile"`
	Elements []int     `json:"Elements"` // Per direction
	Lo       []float64 `json:"Lo"`
	Hi       []float64 `json:"Hi"`
	Periodic []int     `json:"Periodic"` // Directions joined end to end
}

// Parameters obtained from the YAML input file
type InputParametersHP struct {
	Title            string         `json:"Title"`
	Dimension        int            `json:"Dimension"`
	PolynomialOrder  int            `json:"PolynomialOrder"`
	Basis            string         `json:"Basis"`
	QuadraturePoints int            `json:"QuadraturePoints"` // Zero picks from the order
	Mesh             MeshParameters `json:"Mesh"`
	// First key is the BC kind, second the region id, third a parameter name
	BCs           map[string]map[int]map[string]float64 `json:"BCs"`
	SolnType      string                                `json:"SolnType"`
	Precon        string                                `json:"Precon"`
	Lambda        float64                               `json:"Lambda"`
	MaxLevels     int                                   `json:"MaxLevels"`
	Tolerance     float64                               `json:"Tolerance"`
	MaxIterations int                                   `json:"MaxIterations"`
	RCM           bool                                  `json:"RCM"`
	Partitions    int                                   `json:"Partitions"`
	Workers       int                                   `json:"Workers"`
	Discontinuous bool                                  `json:"Discontinuous"`

	Optimization OptimizationParameters `json:"OptimizationParameters"`
}

// Default is the input used when no file is given, a Helmholtz problem on
// the unit box with a 4 element wide mesh and Dirichlet walls
func Default(dim int) *InputParametersHP {
	ip := &InputParametersHP{
		Title:           fmt.Sprintf("Helmholtz %dD", dim),
		Dimension:       dim,
		PolynomialOrder: 4,
		Lambda:          1,
		BCs:             map[string]map[int]map[string]float64{"Dirichlet": {}},
	}
	for id := 0; id < 2*dim; id++ {
		ip.BCs["Dirichlet"][id] = map[string]float64{}
	}
	ip.setDefaults()
	return ip
}

func (ip *InputParametersHP) Parse(data []byte) (err error) {
	if err = yaml.Unmarshal(data, ip); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrConfig, err)
	}
	ip.setDefaults()
	return ip.Validate()
}

func (ip *InputParametersHP) setDefaults() {
	if ip.Dimension == 0 {
		ip.Dimension = 2
	}
	if ip.Basis == "" {
		ip.Basis = foundations.ModifiedA.String()
	}
	if ip.SolnType == "" {
		ip.SolnType = assembly.DirectStaticCond.String()
	}
	if ip.Precon == "" {
		ip.Precon = assembly.PreconDiagonal.String()
	}
	if ip.Tolerance == 0 {
		ip.Tolerance = 1.e-10
	}
	if ip.Partitions == 0 {
		ip.Partitions = 1
	}
	mp := &ip.Mesh
	if len(mp.Elements) == 0 {
		mp.Elements = utils.ConstArrayInt(ip.Dimension, 4)
	}
	if len(mp.Lo) == 0 {
		mp.Lo = make([]float64, ip.Dimension)
	}
	if len(mp.Hi) == 0 {
		mp.Hi = utils.ConstArray(ip.Dimension, 1)
	}
}

// Validate checks ranges and that every type name parses
func (ip *InputParametersHP) Validate() (err error) {
	bad := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", utils.ErrConfig, fmt.Sprintf(format, args...))
	}
	d := ip.Dimension
	switch {
	case d < 1 || d > 3:
		return bad("dimension %d", d)
	case ip.PolynomialOrder < 0:
		return bad("polynomial order %d", ip.PolynomialOrder)
	case ip.QuadraturePoints < 0:
		return bad("quadrature points %d", ip.QuadraturePoints)
	case len(ip.Mesh.Elements) != d || len(ip.Mesh.Lo) != d || len(ip.Mesh.Hi) != d:
		return bad("mesh parameters need %d entries each", d)
	case ip.Lambda < 0:
		return bad("negative lambda %g", ip.Lambda)
	case ip.Partitions < 1 || ip.Workers < 0 || ip.MaxLevels < 0 || ip.MaxIterations < 0:
		return bad("negative counts")
	}
	for i := 0; i < d; i++ {
		if ip.Mesh.Elements[i] < 1 || ip.Mesh.Hi[i] <= ip.Mesh.Lo[i] {
			return bad("mesh direction %d", i)
		}
	}
	for _, dir := range ip.Mesh.Periodic {
		if dir < 0 || dir >= d || ip.Mesh.GridFile != "" {
			return bad("periodic direction %d", dir)
		}
	}
	if _, err = foundations.ParseBasisType(ip.Basis); err != nil {
		return
	}
	if _, err = assembly.ParseSolnType(ip.SolnType); err != nil {
		return
	}
	if _, err = assembly.ParsePreconType(ip.Precon); err != nil {
		return
	}
	var essential bool
	for name, regions := range ip.BCs {
		var kind utils.BCType
		if kind, err = utils.ParseBCName(name); err != nil {
			return fmt.Errorf("%w: %v", utils.ErrConfig, err)
		}
		if kind == utils.BCPeriodic {
			return bad("periodic regions are set with Mesh.Periodic")
		}
		for id := range regions {
			// Grid file regions are checked once the file is read
			if id < 0 || (id >= 2*d && ip.Mesh.GridFile == "") {
				return bad("BC %s on region %d of a %dD box", name, id, d)
			}
		}
		essential = essential || (kind.IsEssential() && len(regions) > 0)
	}
	if ip.Lambda == 0 && !essential {
		return bad("lambda 0 needs a Dirichlet region")
	}
	return ip.Optimization.Validate()
}

// NumModes is the modal count per direction of the polynomial order
func (ip *InputParametersHP) NumModes() int { return ip.PolynomialOrder + 1 }

// RegionKinds maps region ids to the kind given in BCs
func (ip *InputParametersHP) RegionKinds() (kinds map[int]utils.BCType) {
	kinds = make(map[int]utils.BCType)
	for name, regions := range ip.BCs {
		kind, _ := utils.ParseBCName(name)
		for id := range regions {
			kinds[id] = kind
		}
	}
	return
}

func (ip *InputParametersHP) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("[%d]\t\t\t\t= Dimension\n", ip.Dimension)
	fmt.Printf("[%d]\t\t\t\t= Polynomial Order\n", ip.PolynomialOrder)
	fmt.Printf("[%s]\t\t\t= Basis\n", ip.Basis)
	if ip.Mesh.GridFile != "" {
		fmt.Printf("[%s]\t\t= Grid File\n", ip.Mesh.GridFile)
	} else {
		fmt.Printf("%v %v..%v\t= Mesh\n", ip.Mesh.Elements, ip.Mesh.Lo, ip.Mesh.Hi)
	}
	if len(ip.Mesh.Periodic) != 0 {
		fmt.Printf("%v\t\t\t\t= Periodic Directions\n", ip.Mesh.Periodic)
	}
	fmt.Printf("[%s/%s]\t= Solver\n", ip.SolnType, ip.Precon)
	fmt.Printf("%8.5f\t\t= Lambda\n", ip.Lambda)
	keys := make([]string, 0, len(ip.BCs))
	for k := range ip.BCs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("BCs[%s] = %v\n", key, ip.BCs[key])
	}
	ip.Optimization.Print()
}

// MatOpRule selects the elemental matrix path for one set of mode counts.
// A zero mode count matches any.
type MatOpRule struct {
	NumModes0 int  `json:"NumModes0"`
	NumModes1 int  `json:"NumModes1"`
	NumModes2 int  `json:"NumModes2"`
	DoMatOp   bool `json:"DoMatOp"`
}

func (r MatOpRule) matches(numModes []int) bool {
	for d, n := range []int{r.NumModes0, r.NumModes1, r.NumModes2} {
		if n == 0 {
			continue
		}
		if d >= len(numModes) || numModes[d] != n {
			return false
		}
	}
	return true
}

// OptimizationParameters map element shape and operator names to rules; the
// first matching rule decides
type OptimizationParameters map[string]map[string][]MatOpRule

// DoMatOp reports whether op on a shape element with numModes is applied
// through its elemental matrix
func (op OptimizationParameters) DoMatOp(shape, opName string, numModes []int) bool {
	for s, ops := range op {
		if !strings.EqualFold(s, shape) {
			continue
		}
		for o, rules := range ops {
			if !strings.EqualFold(o, opName) {
				continue
			}
			for _, r := range rules {
				if r.matches(numModes) {
					return r.DoMatOp
				}
			}
		}
	}
	return false
}

func (op OptimizationParameters) Validate() error {
	for s, ops := range op {
		for o, rules := range ops {
			for _, r := range rules {
				if r.NumModes0 < 0 || r.NumModes1 < 0 || r.NumModes2 < 0 {
					return fmt.Errorf("%w: optimization rule %s/%s with negative modes", utils.ErrConfig, s, o)
				}
			}
		}
	}
	return nil
}

func (op OptimizationParameters) Print() {
	shapes := make([]string, 0, len(op))
	for s := range op {
		shapes = append(shapes, s)
	}
	sort.Strings(shapes)
	for _, s := range shapes {
		names := make([]string, 0, len(op[s]))
		for o := range op[s] {
			names = append(names, o)
		}
		sort.Strings(names)
		for _, o := range names {
			fmt.Printf("MatOp[%s][%s] = %v\n", s, o, op[s][o])
		}
	}
}
