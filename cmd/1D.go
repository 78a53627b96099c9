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
	"github.com/spf13/cobra"
)

// OneDCmd represents the 1D command
var OneDCmd = &cobra.Command{
	Use:   "1D",
	Short: "One dimensional Helmholtz solution on a box mesh",
	Long: `
Solves the Helmholtz problem on a 1D box mesh of segments, reading the
mesh, basis and solver from the input file or the defaults and flags,

gohp 1D -n 6 -k 4 --solver IterativeStaticCond`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDim(cmd, 1)
	},
}

func init() {
	rootCmd.AddCommand(OneDCmd)
	addInputFlags(OneDCmd)
}
