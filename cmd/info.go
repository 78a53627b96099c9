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

	"github.com/spf13/cobra"

	"github.com/notargets/gohp/InputParameters"
	"github.com/notargets/gohp/assembly"
	"github.com/notargets/gohp/discretization"
	"github.com/notargets/gohp/partition"
)

// InfoCmd represents the info command
var InfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Mesh, partition and assembly map statistics without solving",
	Long: `
Builds the mesh and the discretization of the input and prints their
statistics, the METIS partition quality and the condensation levels,

gohp info -D 3 -k 6 -p 4`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		dim, _ := cmd.Flags().GetInt("dimension")
		var ip *InputParameters.InputParametersHP
		if ip, err = loadInput(cmd, dim); err != nil {
			return
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return Info(ctx, ip)
	},
}

func init() {
	rootCmd.AddCommand(InfoCmd)
	addInputFlags(InfoCmd)
	InfoCmd.Flags().IntP("dimension", "D", 2, "mesh dimension when no input file is given")
}

// Info prints the statistics of the input's mesh and discretization
func Info(ctx context.Context, ip *InputParameters.InputParametersHP) (err error) {
	ip.Print()
	m, err := BuildMesh(ip)
	if err != nil {
		return
	}
	m.PrintStatistics()
	if ip.Partitions > 1 {
		var part []int
		if part, err = partition.Metis(m, partition.DefaultConfig(ip.Partitions)); err != nil {
			return
		}
		st := partition.Analyze(m, part, ip.Partitions)
		fmt.Printf("Partition: %d parts, %d cut links, imbalance %.3f\n", ip.Partitions, st.CutLinks, st.Imbalance)
		for p := range st.Elements {
			fmt.Printf("  Part %d: %d elements, load %d, %d neighbours\n", p, st.Elements[p], st.Load[p],
				len(st.Neighbors[p]))
		}
	}
	var (
		cfg *discretization.Config
		f   *discretization.Field
	)
	if cfg, err = discretizationConfig(ip, slog.Default()); err != nil {
		return
	}
	if f, err = discretization.New(ctx, m, cfg); err != nil {
		return
	}
	fmt.Printf("Geometric factors: %d elements, %d unique\n", f.Arena.Len(), f.Arena.NumUnique())
	if tm := f.Trace(); tm != nil {
		fmt.Printf("Traces: %d with %d points\n", tm.NumTraces(), tm.NumTracePoints())
	}
	am := f.AssemblyMap()
	if am == nil {
		return
	}
	v, e, fc := am.NumNonDirModes()
	fmt.Printf("Assembly map %016x:\n", am.Hash())
	fmt.Printf("  Local coefficients: %d (%d boundary)\n", am.NumLocalCoeffs(), am.NumLocalBndCoeffs())
	fmt.Printf("  Global coefficients: %d (%d boundary, %d Dirichlet)\n", am.NumGlobalCoeffs(),
		am.NumGlobalBndCoeffs(), am.NumGlobalDirBndCoeffs())
	fmt.Printf("  Free vertex, edge and face modes: %d %d %d\n", v, e, fc)
	fmt.Printf("  Bandwidth: %d, sign change: %v\n", am.Bandwidth(), am.SignChange())
	maxLevels := ip.MaxLevels
	if maxLevels == 0 {
		maxLevels = 10
	}
	var h *assembly.Hierarchy
	if h, err = assembly.BuildHierarchy(am, maxLevels, nil); err != nil {
		return
	}
	for _, l := range h.Levels {
		fmt.Printf("  Level %d: %d patches, %d interior and %d boundary, %d global boundary\n", l.Index,
			l.NumPatches, l.NumLocalIntCoeffs(), l.NumLocalBndCoeffs(), l.NumGlobalBndCoeffs)
	}
	return
}
