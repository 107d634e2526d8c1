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

// Package pipeline drives one conversion end to end: read the source
// deck into the canonical model, validate it, and serialize it for the
// target code. A pipeline either produces complete output bytes or an
// error; it never emits partial output.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fusionkit/gyroconv/internal/config"
	"github.com/fusionkit/gyroconv/internal/driver"
	"github.com/fusionkit/gyroconv/internal/geometry"
	"github.com/fusionkit/gyroconv/internal/logging"
	"github.com/fusionkit/gyroconv/internal/model"
)

// State labels where a conversion currently is. Transitions are
// monotone: Idle -> Reading -> Normalizing -> Writing -> Done, with
// Failed reachable from any working state.
type State string

const (
	StateIdle        State = "Idle"
	StateReading     State = "Reading"
	StateNormalizing State = "Normalizing"
	StateWriting     State = "Writing"
	StateDone        State = "Done"
	StateFailed      State = "Failed"
)

// ShapeTrace is a numerically sampled flux-surface contour in machine
// units (metres), one point per index.
type ShapeTrace struct {
	R []float64
	Z []float64
}

// Request names one conversion.
type Request struct {
	SourceCode string
	TargetCode string
	Input      []byte

	// Lossy permits dropping features the target cannot represent.
	Lossy bool

	// ShapeTrace, when set, replaces the source deck's analytic shape
	// with one fitted to the contour. Fit tolerances come from the
	// pipeline's reference tables.
	ShapeTrace *ShapeTrace
}

// Result carries the finished output and the canonical model it came
// from, for callers that want to inspect intermediate quantities.
type Result struct {
	Output []byte
	Model  *model.CanonicalModel
}

// Pipeline is a single-use conversion state machine. Create one per
// Convert call when tracking state; Convert itself is safe to call once.
type Pipeline struct {
	log    *zap.Logger
	tables *config.ReferenceTables

	mu    sync.Mutex
	state State
}

// New returns an idle pipeline. A nil logger silences progress logs; a
// nil tables uses the built-in defaults.
func New(log *zap.Logger, tables *config.ReferenceTables) *Pipeline {
	if log == nil {
		log = logging.NopLogger()
	}
	if tables == nil {
		tables = config.DefaultTables()
	}
	return &Pipeline{log: log, tables: tables, state: StateIdle}
}

// State returns the current state. Safe to call concurrently with
// Convert.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) transition(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Pipeline) fail(stage string, err error) error {
	p.transition(StateFailed)
	return fmt.Errorf("pipeline: %s: %w", stage, err)
}

// Convert runs the full read, validate, write sequence. The returned
// error wraps the failing driver's error so callers can match the
// taxonomy with errors.As.
func (p *Pipeline) Convert(ctx context.Context, req Request) (*Result, error) {
	src, err := driver.Get(req.SourceCode)
	if err != nil {
		return nil, p.fail("resolving source", err)
	}
	dst, err := driver.Get(req.TargetCode)
	if err != nil {
		return nil, p.fail("resolving target", err)
	}
	opts := driver.Options{Tables: p.tables, Logger: p.log, Lossy: req.Lossy}

	p.transition(StateReading)
	if err := ctx.Err(); err != nil {
		return nil, p.fail("reading", err)
	}
	m, err := src.Read(req.Input, opts)
	if err != nil {
		return nil, p.fail("reading "+src.Name()+" deck", err)
	}
	p.log.Debug("deck read into canonical model",
		zap.String("source", src.Name()),
		zap.Int("species", m.Species.Count()))

	p.transition(StateNormalizing)
	if err := ctx.Err(); err != nil {
		return nil, p.fail("normalizing", err)
	}
	if req.ShapeTrace != nil {
		primary := m.Primary()
		fitted, err := geometry.FromFluxSurfaceTrace(
			req.ShapeTrace.R, req.ShapeTrace.Z, primary.PsiN, p.tables.FitOptions())
		if err != nil {
			return nil, p.fail("fitting shape trace", err)
		}
		if err := primary.AdoptShape(fitted); err != nil {
			return nil, p.fail("fitting shape trace", err)
		}
		p.log.Debug("shape trace fitted",
			zap.Int("points", len(req.ShapeTrace.R)),
			zap.Float64("residual", fitted.FitResidual))
	}
	if err := m.Validate(); err != nil {
		return nil, p.fail("validating canonical model", err)
	}

	p.transition(StateWriting)
	if err := ctx.Err(); err != nil {
		return nil, p.fail("writing", err)
	}
	out, err := dst.Write(m, opts)
	if err != nil {
		return nil, p.fail("writing "+dst.Name()+" deck", err)
	}

	p.transition(StateDone)
	p.log.Info("conversion finished",
		zap.String("source", src.Name()),
		zap.String("target", dst.Name()),
		zap.Int("bytes", len(out)))
	return &Result{Output: out, Model: m}, nil
}

// BatchItem names one conversion of a batch.
type BatchItem struct {
	Name string
	Request
}

// BatchResult pairs an item's name with its outcome.
type BatchResult struct {
	Name   string
	Output []byte
	Err    error
}

// ConvertAll runs a batch through a bounded worker pool. Results come
// back in input order; individual failures do not stop the rest, but a
// canceled context does.
func ConvertAll(ctx context.Context, items []BatchItem, workers int, log *zap.Logger, tables *config.ReferenceTables) []BatchResult {
	if workers <= 0 {
		workers = 1
	}
	results := make([]BatchResult, len(items))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		g.Go(func() error {
			res, err := New(log, tables).Convert(ctx, item.Request)
			results[i] = BatchResult{Name: item.Name, Err: err}
			if err == nil {
				results[i].Output = res.Output
			}
			// Item errors are reported per result, not through the group.
			return ctx.Err()
		})
	}
	// The only group error is context cancellation, already visible in
	// the per-item results of whatever did not run.
	_ = g.Wait()
	for i := range results {
		if results[i].Err == nil && results[i].Output == nil && ctx.Err() != nil {
			results[i].Err = ctx.Err()
		}
	}
	return results
}
