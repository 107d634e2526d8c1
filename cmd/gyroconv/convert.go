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

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fusionkit/gyroconv/internal/pipeline"
)

var (
	fromCode     string
	toCode       string
	outPath      string
	lossy        bool
	workers      int
	fitTolerance float64
	tracePath    string
)

var convertCmd = &cobra.Command{
	Use:   "convert [deck...]",
	Short: "Convert one or more input decks to a target code",
	Long: `Reads each deck, maps it through the canonical model, and writes the
target code's deck. With a single input the result goes to --output
(stdout by default); with several inputs --output must be a directory
and each result is named by the target code's convention.

Output files are written atomically: a failed conversion leaves no
partial deck behind.

Examples:
  gyroconv convert --to gene input.cgyro
  gyroconv convert --from gs2 --to tglf - < gs2.in
  gyroconv convert --to cgyro -o out/ runs/*/parameters`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func runConvert(cmd *cobra.Command, args []string) error {
	if fitTolerance > 0 {
		tables.FitTolerance = fitTolerance
	}
	if len(args) > 1 {
		return runConvertBatch(cmd, args)
	}

	path := args[0]
	src := fromCode
	if src == "" {
		var err error
		if src, err = inferCode(path); err != nil {
			return err
		}
	}

	input, err := readDeck(path)
	if err != nil {
		return err
	}

	var trace *pipeline.ShapeTrace
	if tracePath != "" {
		if trace, err = readTrace(tracePath); err != nil {
			return err
		}
	}

	res, err := pipeline.New(logger, tables).Convert(cmd.Context(), pipeline.Request{
		SourceCode: src,
		TargetCode: toCode,
		Input:      input,
		Lossy:      lossy,
		ShapeTrace: trace,
	})
	if err != nil {
		return err
	}

	if outPath == "" || outPath == "-" {
		_, err = cmd.OutOrStdout().Write(res.Output)
		return err
	}
	dest := outPath
	if fi, statErr := os.Stat(outPath); statErr == nil && fi.IsDir() {
		dest = filepath.Join(outPath, outputName(path, toCode))
	}
	return writeAtomic(dest, res.Output)
}

func runConvertBatch(cmd *cobra.Command, args []string) error {
	if outPath == "" || outPath == "-" {
		return fmt.Errorf("--output must name a directory when converting %d decks", len(args))
	}
	if tracePath != "" {
		return fmt.Errorf("--geometry-trace applies to a single deck, got %d", len(args))
	}
	if err := os.MkdirAll(outPath, 0o755); err != nil {
		return err
	}

	items := make([]pipeline.BatchItem, 0, len(args))
	for _, path := range args {
		src := fromCode
		if src == "" {
			var err error
			if src, err = inferCode(path); err != nil {
				return err
			}
		}
		input, err := readDeck(path)
		if err != nil {
			return err
		}
		items = append(items, pipeline.BatchItem{
			Name: path,
			Request: pipeline.Request{
				SourceCode: src,
				TargetCode: toCode,
				Input:      input,
				Lossy:      lossy,
			},
		})
	}

	results := pipeline.ConvertAll(cmd.Context(), items, workers, logger, tables)
	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			logger.Error("conversion failed", zap.String("deck", r.Name), zap.Error(r.Err))
			continue
		}
		dest := filepath.Join(outPath, outputName(r.Name, toCode))
		if err := writeAtomic(dest, r.Output); err != nil {
			return err
		}
		logger.Info("deck written", zap.String("deck", r.Name), zap.String("output", dest))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d conversions failed", failed, len(results))
	}
	return nil
}

// inferCode guesses the source code from the deck's filename, following
// each code's naming convention.
func inferCode(path string) (string, error) {
	base := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(base, ".cgyro") || base == "input.cgyro":
		return "cgyro", nil
	case strings.HasSuffix(base, ".tglf") || base == "input.tglf":
		return "tglf", nil
	case base == "parameters" || strings.HasPrefix(base, "parameters_") || strings.HasSuffix(base, ".gene"):
		return "gene", nil
	case strings.HasSuffix(base, ".in") || strings.HasSuffix(base, ".gs2"):
		return "gs2", nil
	}
	return "", fmt.Errorf("cannot infer source code from %q; pass --from", path)
}

// outputName picks the target code's conventional deck name, keeping
// the source's base name where the convention allows one.
func outputName(srcPath, target string) string {
	stem := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	if stem == "" || stem == "-" {
		stem = "input"
	}
	switch target {
	case "cgyro":
		return "input.cgyro"
	case "tglf":
		return "input.tglf"
	case "gene":
		return "parameters_" + stem
	case "gs2":
		return stem + ".in"
	}
	return stem + "." + target
}

// readTrace parses a two-column R Z contour file, metres, one point per
// line, '#' comments.
func readTrace(path string) (*pipeline.ShapeTrace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trace := &pipeline.ShapeTrace{}
	for i, line := range strings.Split(string(data), "\n") {
		if j := strings.Index(line, "#"); j >= 0 {
			line = line[:j]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s:%d: expected two columns R Z, got %d", path, i+1, len(fields))
		}
		r, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, i+1, err)
		}
		z, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, i+1, err)
		}
		trace.R = append(trace.R, r)
		trace.Z = append(trace.Z, z)
	}
	if len(trace.R) == 0 {
		return nil, fmt.Errorf("%s: no contour points", path)
	}
	return trace, nil
}

func readDeck(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// writeAtomic writes through a temp file in the destination directory
// so readers never observe a truncated deck.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
