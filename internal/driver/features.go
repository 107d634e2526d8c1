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

package driver

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fusionkit/gyroconv/internal/model"
	"github.com/fusionkit/gyroconv/internal/units"
)

// PrepareForWrite runs the common pre-serialization sequence: validate
// the model, check it against the target's capabilities, renormalize
// into the target's units and, in lossy mode, strip what the target
// cannot carry. The returned copy is what the driver serializes; the
// input model is never touched.
func PrepareForWrite(code string, m *model.CanonicalModel, caps Capabilities, target *units.System, opts Options) (*model.CanonicalModel, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", code, err)
	}
	if err := CheckFeatures(code, m, caps, opts); err != nil {
		return nil, err
	}
	out, err := m.Renormalize(target)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", code, err)
	}
	if opts.Lossy {
		trimUnsupported(out, caps)
	}
	return out, nil
}

func trimUnsupported(m *model.CanonicalModel, caps Capabilities) {
	if g := m.Primary(); g != nil {
		if !caps.Squareness {
			g.SetZeta(0)
			g.SetSZeta(0)
		}
		if !caps.HigherMoments {
			for n := 1; n < len(g.Cn); n++ {
				g.Cn[n], g.DCndr[n] = 0, 0
			}
			for n := 3; n < len(g.Sn); n++ {
				g.Sn[n], g.DSndr[n] = 0, 0
			}
		}
	}
	if !caps.Apar {
		m.Numerics.Apar = false
	}
	if !caps.Bpar {
		m.Numerics.Bpar = false
	}
	if !caps.Nonlinear {
		m.Numerics.Nonlinear = false
	}
}

// CheckFeatures verifies a model fits the target's capabilities before
// any serialization starts. In lossy mode each unrepresentable feature
// is logged and the write proceeds without it; otherwise the first one
// aborts the write.
func CheckFeatures(code string, m *model.CanonicalModel, caps Capabilities, opts Options) error {
	drop := func(feature string) error {
		if opts.Lossy {
			opts.Logger.Warn("dropping feature the target cannot represent",
				zap.String("code", code),
				zap.String("feature", feature))
			return nil
		}
		return &UnsupportedFeatureError{Code: code, Feature: feature}
	}

	g := m.Primary()
	if g != nil {
		if !caps.Squareness && g.Zeta() != 0 {
			if err := drop("squareness (second shaping moment)"); err != nil {
				return err
			}
		}
		if !caps.HigherMoments && hasHigherMoments(g.Cn, g.Sn) {
			if err := drop("shaping moments beyond triangularity and squareness"); err != nil {
				return err
			}
		}
	}
	if !caps.Apar && m.Numerics.Apar {
		if err := drop("parallel magnetic potential fluctuations"); err != nil {
			return err
		}
	}
	if !caps.Bpar && m.Numerics.Bpar {
		if err := drop("parallel magnetic field fluctuations"); err != nil {
			return err
		}
	}
	if !caps.Nonlinear && m.Numerics.Nonlinear {
		if err := drop("nonlinear runs"); err != nil {
			return err
		}
	}
	// Species never drop silently, even in lossy mode.
	if caps.MaxSpecies > 0 && m.Species.Count() > caps.MaxSpecies {
		return &UnsupportedFeatureError{
			Code:    code,
			Feature: fmt.Sprintf("%d species (limit %d)", m.Species.Count(), caps.MaxSpecies),
		}
	}
	return nil
}

func hasHigherMoments(cn, sn []float64) bool {
	for n := 1; n < len(cn); n++ {
		if cn[n] != 0 {
			return true
		}
	}
	for n := 3; n < len(sn); n++ {
		if sn[n] != 0 {
			return true
		}
	}
	return false
}
