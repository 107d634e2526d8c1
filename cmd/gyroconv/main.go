/*
Copyright 2025 The gyroconv Authors

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

// gyroconv converts input decks between gyrokinetic codes. Decks are
// read into a code-independent local flux-surface model and written
// back out in any supported code's native format and normalization.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fusionkit/gyroconv/internal/config"
	"github.com/fusionkit/gyroconv/internal/driver"
	_ "github.com/fusionkit/gyroconv/internal/driver/all"
	"github.com/fusionkit/gyroconv/internal/logging"
)

var (
	verbose    bool
	tablesPath string

	logger *zap.Logger
	tables *config.ReferenceTables
)

var rootCmd = &cobra.Command{
	Use:   "gyroconv",
	Short: "Convert gyrokinetic input decks between codes",
	Long: `gyroconv translates local flux-surface input decks between
gyrokinetic codes (` + strings.Join(driver.Names(), ", ") + `).

A deck is parsed into a canonical model: Miller/MXH geometry, species
kinetics, and numerics, all in a single reference normalization. The
model is then renormalized to the target code's conventions and written
in its native format. Keys the converter does not map are carried
through untouched and re-emitted when converting back to the same code.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logging.NewLogger(verbose)

		tables = config.DefaultTables()
		if tablesPath != "" {
			t, err := config.Load(tablesPath)
			if err != nil {
				return fmt.Errorf("loading reference tables: %w", err)
			}
			tables = t
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var codesCmd = &cobra.Command{
	Use:   "codes",
	Short: "List supported codes and their capabilities",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range driver.Names() {
			d, err := driver.Get(name)
			if err != nil {
				return err
			}
			caps := d.Capabilities()
			var notes []string
			if !caps.Nonlinear {
				notes = append(notes, "linear only")
			}
			if !caps.Squareness {
				notes = append(notes, "no squareness")
			}
			if !caps.HigherMoments {
				notes = append(notes, "no high-order shaping")
			}
			if caps.MaxSpecies > 0 {
				notes = append(notes, fmt.Sprintf("max %d species", caps.MaxSpecies))
			}
			line := name
			if len(notes) > 0 {
				line += "  (" + strings.Join(notes, ", ") + ")"
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&tablesPath, "tables", "", "Reference tables YAML overriding the built-in physical constants")

	convertCmd.Flags().StringVar(&fromCode, "from", "", "Source code (inferred from the input filename when omitted)")
	convertCmd.Flags().StringVar(&toCode, "to", "", "Target code (required)")
	convertCmd.Flags().StringVarP(&outPath, "output", "o", "-", "Output path, '-' for stdout; a directory when converting multiple decks")
	convertCmd.Flags().BoolVar(&lossy, "lossy", false, "Drop features the target cannot represent instead of failing")
	convertCmd.Flags().Float64Var(&fitTolerance, "fit-tolerance", 0, "Override the shape-fit residual tolerance from the reference tables")
	convertCmd.Flags().StringVar(&tracePath, "geometry-trace", "", "R,Z flux-surface contour file; its fitted shape replaces the deck's analytic shape")
	convertCmd.Flags().IntVar(&workers, "workers", 4, "Parallel conversions when given multiple decks")
	_ = convertCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(codesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gyroconv:", err)
		os.Exit(1)
	}
}
