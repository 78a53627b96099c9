/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/notargets/gohp/InputParameters"
	"github.com/notargets/gohp/assembly"
	"github.com/notargets/gohp/comm"
	"github.com/notargets/gohp/discretization"
	"github.com/notargets/gohp/foundations"
	"github.com/notargets/gohp/geometry"
	"github.com/notargets/gohp/linsys"
	"github.com/notargets/gohp/mesh"
	"github.com/notargets/gohp/partition"
	"github.com/notargets/gohp/utils"
)

// RankSummary describes the part of the discretization one rank holds
type RankSummary struct {
	Rank, Elements  int
	GlobalCoeffs    int
	UniversalCoeffs int // Highest universal id plus one
	SharedCoeffs    int // Held by more than one rank
	Volume          float64
}

type Result struct {
	Elements        int
	GlobalCoeffs    int
	DirichletCoeffs int
	Traces          int
	L2Error         float64 // Zero when nothing was solved
	Solved          bool
	Elapsed         time.Duration
	Ranks           []RankSummary
	Partition       *partition.Stats
}

// addInputFlags adds the flags overriding the input file to a solve command
func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("n", "n", 0, "polynomial order")
	cmd.Flags().IntP("k", "k", 0, "elements per direction")
	cmd.Flags().Float64("lambda", 0, "Helmholtz constant")
	cmd.Flags().String("solver", "", "DirectFull, DirectStaticCond, DirectMultiLevelStaticCond, IterativeFull or IterativeStaticCond")
	cmd.Flags().String("basis", "", "ModifiedA, GLLLagrange or OrthoA")
	cmd.Flags().IntP("partitions", "p", 0, "number of METIS partitions to report")
	cmd.Flags().IntP("workers", "w", 0, "worker goroutines, 0 for all processors")
}

// loadInput reads the input file if one is named, otherwise the default
// problem of dimension dim, then applies the flags and the config file
func loadInput(cmd *cobra.Command, dim int) (ip *InputParameters.InputParametersHP, err error) {
	file, _ := cmd.Flags().GetString("inputConditionsFile")
	if file == "" {
		file = viper.GetString("inputConditionsFile")
	}
	if file != "" {
		var data []byte
		if data, err = os.ReadFile(file); err != nil {
			return
		}
		ip = &InputParameters.InputParametersHP{Dimension: dim}
		if err = ip.Parse(data); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		if ip.Dimension != dim {
			return nil, fmt.Errorf("%w: %s is a %dD input", utils.ErrConfig, file, ip.Dimension)
		}
	} else {
		ip = InputParameters.Default(dim)
	}
	set := func(name string) bool { return cmd.Flags().Changed(name) || viper.IsSet(name) }
	getInt := func(name string) int {
		if cmd.Flags().Changed(name) {
			v, _ := cmd.Flags().GetInt(name)
			return v
		}
		return viper.GetInt(name)
	}
	getString := func(name string) string {
		if cmd.Flags().Changed(name) {
			v, _ := cmd.Flags().GetString(name)
			return v
		}
		return viper.GetString(name)
	}
	if set("n") {
		ip.PolynomialOrder = getInt("n")
	}
	if set("k") {
		ip.Mesh.Elements = utils.ConstArrayInt(dim, getInt("k"))
	}
	if set("lambda") {
		if cmd.Flags().Changed("lambda") {
			ip.Lambda, _ = cmd.Flags().GetFloat64("lambda")
		} else {
			ip.Lambda = viper.GetFloat64("lambda")
		}
	}
	if set("solver") {
		ip.SolnType = getString("solver")
	}
	if set("basis") {
		ip.Basis = getString("basis")
	}
	if set("partitions") {
		ip.Partitions = getInt("partitions")
	}
	if set("workers") {
		ip.Workers = getInt("workers")
	}
	return ip, ip.Validate()
}

// BuildMesh generates the box mesh of the input with its boundary kinds
func BuildMesh(ip *InputParameters.InputParametersHP) (m *mesh.Mesh, err error) {
	var (
		mp     = ip.Mesh
		lo, hi geometry.Vec3
	)
	copy(lo[:], mp.Lo)
	copy(hi[:], mp.Hi)
	switch {
	case mp.GridFile != "":
		if m, err = mesh.ReadSU2File(mp.GridFile); err == nil && m.Dim != ip.Dimension {
			err = fmt.Errorf("%w: %s is a %dD mesh", utils.ErrConfig, mp.GridFile, m.Dim)
		}
	case ip.Dimension == 1:
		m, err = mesh.NewLineMesh(lo[0], hi[0], mp.Elements[0])
	case ip.Dimension == 2:
		m, err = mesh.NewBoxMesh2D(lo, hi, mp.Elements[0], mp.Elements[1])
	case ip.Dimension == 3:
		m, err = mesh.NewBoxMesh3D(lo, hi, mp.Elements[0], mp.Elements[1], mp.Elements[2])
	default:
		err = fmt.Errorf("%w: %dD mesh", utils.ErrConfig, ip.Dimension)
	}
	if err != nil {
		return
	}
	for _, dir := range mp.Periodic {
		if err = m.SetPeriodic(dir); err != nil {
			return
		}
	}
	for id, kind := range ip.RegionKinds() {
		if id >= len(m.Regions) {
			return nil, fmt.Errorf("%w: BC on region %d of %d", utils.ErrConfig, id, len(m.Regions))
		}
		if err = m.SetKind(m.Regions[id].Name, kind); err != nil {
			return
		}
	}
	return
}

// exactSolution is a product of cosines with a whole period across the
// bounding box of m, so on a box mesh its normal derivative vanishes on
// every side and it is periodic. It returns u and the forcing of
// -Laplacian(u) + lambda u.
func exactSolution(m *mesh.Mesh, lambda float64) (u, src func(x geometry.Vec3) float64) {
	var (
		lo, hi = m.Vertices[0], m.Vertices[0]
		k      = make([]float64, m.CoordDim)
		k2     = lambda
	)
	for _, v := range m.Vertices {
		for d := range k {
			lo[d], hi[d] = math.Min(lo[d], v[d]), math.Max(hi[d], v[d])
		}
	}
	for d := range k {
		k[d] = 2 * math.Pi / (hi[d] - lo[d])
		k2 += k[d] * k[d]
	}
	u = func(x geometry.Vec3) float64 {
		v := 1.
		for d := range k {
			v *= math.Cos(k[d] * (x[d] - lo[d]))
		}
		return v
	}
	src = func(x geometry.Vec3) float64 { return k2 * u(x) }
	return
}

// discretizationConfig parses the basis, solver and preconditioner names of
// ip; a name that fails to parse is an ErrConfig even when ip was not validated
func discretizationConfig(ip *InputParameters.InputParametersHP, logger *slog.Logger) (cfg *discretization.Config, err error) {
	var (
		bt foundations.BasisType
		st assembly.SolnType
		pt assembly.PreconType
	)
	if bt, err = foundations.ParseBasisType(ip.Basis); err != nil {
		return
	}
	if st, err = assembly.ParseSolnType(ip.SolnType); err != nil {
		return
	}
	if pt, err = assembly.ParsePreconType(ip.Precon); err != nil {
		return
	}
	cfg = &discretization.Config{
		Basis:         bt,
		NumModes:      ip.NumModes(),
		NumPoints:     ip.QuadraturePoints,
		SolnType:      st,
		Precon:        pt,
		RCM:           ip.RCM,
		Discontinuous: ip.Discontinuous || !bt.HasBoundaryModes(),
		Workers:       ip.Workers,
		Logger:        logger,
	}
	if len(ip.Optimization) != 0 {
		cfg.MatOps = ip.Optimization
	}
	return
}

// RunHelmholtz discretizes the input's mesh and, for continuous bases,
// solves the Helmholtz problem of the manufactured solution
func RunHelmholtz(ctx context.Context, ip *InputParameters.InputParametersHP, logger *slog.Logger) (res *Result, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	var m *mesh.Mesh
	if m, err = BuildMesh(ip); err != nil {
		return
	}
	var (
		cfg *discretization.Config
		f   *discretization.Field
	)
	if cfg, err = discretizationConfig(ip, logger); err != nil {
		return
	}
	if f, err = discretization.New(ctx, m, cfg); err != nil {
		return
	}
	res = &Result{Elements: len(m.Elements)}
	if tm := f.Trace(); tm != nil {
		res.Traces = tm.NumTraces()
	}
	if ip.Partitions > 1 {
		if err = res.partition(ctx, m, cfg, ip.Partitions, logger); err != nil {
			return nil, err
		}
	}
	am := f.AssemblyMap()
	if am == nil {
		res.Elapsed = time.Since(start)
		return
	}
	res.GlobalCoeffs, res.DirichletCoeffs = am.NumGlobalCoeffs(), am.NumGlobalDirBndCoeffs()
	u, src := exactSolution(m, ip.Lambda)
	var glob []float64
	if glob, err = f.HelmholtzSolve(ctx, ip.Lambda, src, u, &linsys.Options{
		Precon:        cfg.Precon,
		Tolerance:     ip.Tolerance,
		MaxIterations: ip.MaxIterations,
		MaxLevels:     ip.MaxLevels,
		Workers:       ip.Workers,
		Logger:        logger,
	}); err != nil {
		return nil, err
	}
	if res.L2Error, err = f.L2Error(f.GlobalToPhys(glob), u); err != nil {
		return nil, err
	}
	res.Solved = true
	res.Elapsed = time.Since(start)
	return
}

// partition splits the mesh with METIS and builds every rank's
// discretization concurrently over an in process communicator
func (res *Result) partition(ctx context.Context, m *mesh.Mesh, cfg *discretization.Config, nparts int,
	logger *slog.Logger) (err error) {
	if nparts > len(m.Elements) {
		return fmt.Errorf("%w: %d partitions of %d elements", utils.ErrConfig, nparts, len(m.Elements))
	}
	pc := partition.DefaultConfig(nparts)
	pc.Logger = logger
	var part []int
	if part, err = partition.Metis(m, pc); err != nil {
		return
	}
	st := partition.Analyze(m, part, nparts)
	res.Partition = &st
	var (
		eps   = comm.NewInProcess(nparts)
		g, gc = errgroup.WithContext(ctx)
	)
	res.Ranks = make([]RankSummary, nparts)
	for r := range eps {
		r := r
		g.Go(func() error {
			rc := *cfg
			rc.Comm, rc.Partition = eps[r], part
			rc.Elements = []int{}
			for k, p := range part {
				if p == r {
					rc.Elements = append(rc.Elements, k)
				}
			}
			f, err := discretization.New(gc, m, &rc)
			if err != nil {
				return fmt.Errorf("rank %d: %w", r, err)
			}
			one, err := f.Evaluate(func(geometry.Vec3) float64 { return 1 })
			if err != nil {
				return err
			}
			rs := RankSummary{Rank: r, Elements: len(rc.Elements), Volume: f.Integral(one)}
			if am := f.AssemblyMap(); am != nil {
				rs.GlobalCoeffs = am.NumGlobalCoeffs()
				for _, id := range am.GlobalToUniversalMap() {
					rs.UniversalCoeffs = max(rs.UniversalCoeffs, id+1)
				}
				owners := utils.ConstArray(am.NumGlobalCoeffs(), 1)
				if err = am.UniversalAssemble(gc, owners); err != nil {
					return err
				}
				for _, n := range owners {
					if n > 1 {
						rs.SharedCoeffs++
					}
				}
			}
			res.Ranks[r] = rs
			return nil
		})
	}
	return g.Wait()
}

func (res *Result) Print() {
	fmt.Printf("%d\t\t\t\t= Elements\n", res.Elements)
	if res.Traces > 0 {
		fmt.Printf("%d\t\t\t\t= Traces\n", res.Traces)
	}
	if res.Partition != nil {
		fmt.Printf("%d cut links, imbalance %.3f\t= Partition\n", res.Partition.CutLinks, res.Partition.Imbalance)
		for _, rs := range res.Ranks {
			fmt.Printf("Rank %d: %d elements, %d global (%d shared) of %d universal coefficients, volume %8.5f\n",
				rs.Rank, rs.Elements, rs.GlobalCoeffs, rs.SharedCoeffs, rs.UniversalCoeffs, rs.Volume)
		}
	}
	if !res.Solved {
		fmt.Printf("No continuous map, nothing solved\n")
		return
	}
	fmt.Printf("%d (%d Dirichlet)\t\t= Global Coefficients\n", res.GlobalCoeffs, res.DirichletCoeffs)
	fmt.Printf("%12.5e\t\t= L2 Error\n", res.L2Error)
	fmt.Printf("%v\t\t= Elapsed\n", res.Elapsed)
}

func runDim(cmd *cobra.Command, dim int) (err error) {
	var ip *InputParameters.InputParametersHP
	if ip, err = loadInput(cmd, dim); err != nil {
		return
	}
	ip.Print()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	var res *Result
	if res, err = RunHelmholtz(ctx, ip, slog.Default()); err != nil {
		return
	}
	res.Print()
	return
}
