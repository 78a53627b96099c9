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
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/notargets/gohp/InputParameters"
	"github.com/notargets/gohp/utils"
)

// ConvergeCmd represents the converge command
var ConvergeCmd = &cobra.Command{
	Use:   "converge",
	Short: "h-refinement convergence study of the Helmholtz solution",
	Long: `
Solves the input problem on a sequence of meshes and prints the L2 error
and the observed order of convergence, optionally writing them as CSV,

gohp converge -D 2 -n 3 --meshes 2,4,8,16 --csvFile study.csv`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		dim, _ := cmd.Flags().GetInt("dimension")
		var ip *InputParameters.InputParametersHP
		if ip, err = loadInput(cmd, dim); err != nil {
			return
		}
		meshes, _ := cmd.Flags().GetIntSlice("meshes")
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		var cs *ConvergenceStudy
		if cs, err = RunConvergence(ctx, ip, meshes); err != nil {
			return
		}
		cs.Print()
		if file, _ := cmd.Flags().GetString("csvFile"); file != "" {
			var f *os.File
			if f, err = os.Create(file); err != nil {
				return
			}
			defer f.Close()
			return cs.WriteCSV(f)
		}
		return
	},
}

func init() {
	rootCmd.AddCommand(ConvergeCmd)
	addInputFlags(ConvergeCmd)
	ConvergeCmd.Flags().IntP("dimension", "D", 2, "mesh dimension when no input file is given")
	ConvergeCmd.Flags().IntSlice("meshes", []int{2, 4, 8}, "elements per direction of each refinement")
	ConvergeCmd.Flags().String("csvFile", "", "file to write the study to")
}

type ConvergenceStudy struct {
	Title  string
	Order  int
	NumElm []int // Per direction
	L2     []float64
	Rate   []float64 // Observed order between a mesh and the previous one, NaN for the first
}

func NewConvergenceStudy(title string, order int) *ConvergenceStudy {
	return &ConvergenceStudy{Title: title, Order: order}
}

func (cs *ConvergenceStudy) Add(numElm int, l2 float64) {
	rate := math.NaN()
	if n := len(cs.L2); n > 0 {
		rate = math.Log(cs.L2[n-1]/l2) / math.Log(float64(numElm)/float64(cs.NumElm[n-1]))
	}
	cs.NumElm = append(cs.NumElm, numElm)
	cs.L2 = append(cs.L2, l2)
	cs.Rate = append(cs.Rate, rate)
}

// RunConvergence solves ip on box meshes with each element count of meshes
// in every direction
func RunConvergence(ctx context.Context, ip *InputParameters.InputParametersHP, meshes []int) (cs *ConvergenceStudy, err error) {
	if len(meshes) < 2 || ip.Mesh.GridFile != "" {
		return nil, fmt.Errorf("%w: a study needs two or more box meshes", utils.ErrConfig)
	}
	cs = NewConvergenceStudy(ip.Title, ip.PolynomialOrder)
	for i, k := range meshes {
		if k < 1 || (i > 0 && k <= meshes[i-1]) {
			return nil, fmt.Errorf("%w: mesh sequence %v must increase", utils.ErrConfig, meshes)
		}
		run := *ip
		run.Partitions = 1
		run.Mesh.Elements = utils.ConstArrayInt(ip.Dimension, k)
		var res *Result
		if res, err = RunHelmholtz(ctx, &run, nil); err != nil {
			return nil, err
		}
		if !res.Solved {
			return nil, fmt.Errorf("%w: %s basis gives no continuous solution", utils.ErrConfig, ip.Basis)
		}
		cs.Add(k, res.L2Error)
	}
	return
}

func (cs *ConvergenceStudy) Print() {
	fmt.Printf("Title = %s, Order = %d\n", cs.Title, cs.Order)
	for i := range cs.NumElm {
		fmt.Printf("%d, %12.5e, %6.3f\n", cs.NumElm[i], cs.L2[i], cs.Rate[i])
	}
}

// WriteCSV writes a header and one record per mesh
func (cs *ConvergenceStudy) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	records := [][]string{{"Title", "Order", "NumElm", "L2", "Rate"}}
	for i := range cs.NumElm {
		records = append(records, []string{cs.Title, strconv.Itoa(cs.Order), strconv.Itoa(cs.NumElm[i]),
			strconv.FormatFloat(cs.L2[i], 'e', 8, 64), strconv.FormatFloat(cs.Rate[i], 'f', 4, 64)})
	}
	return cw.WriteAll(records)
}
