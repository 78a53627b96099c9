// Package partition assigns mesh elements to ranks
package partition

import (
	"fmt"
	"log/slog"
	"math"

	metis "github.com/notargets/go-metis"

	"github.com/notargets/gohp/mesh"
	"github.com/notargets/gohp/utils"
)

// Config holds configuration for mesh partitioning
type Config struct {
	NumPartitions   int
	ImbalanceFactor float32 // e.g., 1.05 for 5% imbalance
	// Weight elements by cost and links by shared facet size
	UseWeights bool
	Objective  string // "cut" or "vol"
	Logger     *slog.Logger
}

func DefaultConfig(nparts int) *Config {
	return &Config{
		NumPartitions:   nparts,
		ImbalanceFactor: 1.05,
		UseWeights:      true,
		Objective:       "vol", // minimize communication volume
	}
}

// ElementCost is the relative work of an element, by vertex count
func ElementCost(el *mesh.Element) int32 { return int32(el.Shape.NumVerts()) }

// Metis partitions the element dual graph with METIS k-way, returning the
// rank of each element
func Metis(m *mesh.Mesh, cfg *Config) (part []int, err error) {
	if cfg == nil || cfg.NumPartitions < 1 {
		return nil, fmt.Errorf("%w: partition count", utils.ErrConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ne := len(m.Elements)
	if cfg.NumPartitions == 1 || ne <= cfg.NumPartitions {
		return Contiguous(ne, cfg.NumPartitions)
	}
	xadj, adjncy := m.DualGraph()
	var vwgt, adjwgt []int32
	if cfg.UseWeights {
		vwgt = make([]int32, ne)
		for k := range m.Elements {
			vwgt[k] = ElementCost(&m.Elements[k])
		}
		// Link weight is the vertex count of a shared facet
		fw := int32(1 << (m.Dim - 1))
		adjwgt = make([]int32, len(adjncy))
		for i := range adjwgt {
			adjwgt[i] = fw
		}
	}
	opts := make([]int32, metis.NoOptions)
	if err = metis.SetDefaultOptions(opts); err != nil {
		return nil, fmt.Errorf("failed to set METIS options: %w", err)
	}
	if cfg.Objective == "vol" {
		opts[metis.OptionObjType] = metis.ObjTypeVol
	} else {
		opts[metis.OptionObjType] = metis.ObjTypeCut
	}
	ubvec := []float32{cfg.ImbalanceFactor}
	p, objval, err := metis.PartGraphKwayWeighted(xadj, adjncy, vwgt, adjwgt,
		int32(cfg.NumPartitions), nil, ubvec, opts)
	if err != nil {
		return nil, fmt.Errorf("METIS partitioning failed: %w", err)
	}
	part = make([]int, ne)
	for k := range part {
		part[k] = int(p[k])
	}
	st := Analyze(m, part, cfg.NumPartitions)
	logger.Info("partitioned mesh", "elements", ne, "parts", cfg.NumPartitions,
		"objective", objval, "cut", st.CutLinks, "imbalance", st.Imbalance)
	return
}

// Contiguous splits elements into nparts runs of consecutive ids
func Contiguous(nelem, nparts int) (part []int, err error) {
	if nparts < 1 {
		return nil, fmt.Errorf("%w: partition count %d", utils.ErrConfig, nparts)
	}
	part = make([]int, nelem)
	if nelem == 0 {
		return
	}
	pm := utils.NewPartitionMap(nparts, nelem)
	for k := range part {
		bn, _, _ := pm.GetBucket(k)
		part[k] = bn
	}
	return
}

// Stats summarizes the quality of a partition
type Stats struct {
	Elements  []int // Per part
	Load      []int64
	CutLinks  int
	Neighbors []map[int]int // Neighbour part -> shared facets
	Imbalance float64       // max load / average load - 1
}

// Analyze computes partition quality metrics
func Analyze(m *mesh.Mesh, part []int, nparts int) (st Stats) {
	st.Elements = make([]int, nparts)
	st.Load = make([]int64, nparts)
	st.Neighbors = make([]map[int]int, nparts)
	for i := range st.Neighbors {
		st.Neighbors[i] = make(map[int]int)
	}
	for k, p := range part {
		st.Elements[p]++
		st.Load[p] += int64(ElementCost(&m.Elements[k]))
		for _, nb := range m.EToE[k] {
			if nb > k && part[nb] != p { // Count each link once
				st.CutLinks++
				st.Neighbors[p][part[nb]]++
				st.Neighbors[part[nb]][p]++
			}
		}
	}
	var (
		avg     float64
		maxLoad int64
		minLoad int64 = math.MaxInt64
	)
	for _, l := range st.Load {
		avg += float64(l)
		maxLoad = max(maxLoad, l)
		minLoad = min(minLoad, l)
	}
	avg /= float64(nparts)
	if avg > 0 {
		st.Imbalance = float64(maxLoad)/avg - 1
	}
	return
}
