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

// Package model defines the canonical in-memory representation of one
// simulation setup, the sole artifact handed between drivers.
//
// A CanonicalModel is always held in the canonical (pyrokinetics)
// normalization: lengths in the LCFS minor radius, fields in B0,
// temperatures and densities in the electron's, masses in deuterium's.
// Renormalize produces the copy a target driver serializes from; the
// inverse mapping happens inside each driver's Read.
package model

import (
	"fmt"

	"github.com/fusionkit/gyroconv/internal/geometry"
	"github.com/fusionkit/gyroconv/internal/numerics"
	"github.com/fusionkit/gyroconv/internal/species"
	"github.com/fusionkit/gyroconv/internal/units"
)

// Passthrough carries native options with no canonical equivalent as an
// ordered key -> raw-value side channel. They survive conversion
// untouched and re-emit character-for-character when the writing driver
// recognises them.
type Passthrough struct {
	keys   []string
	values map[string]string
}

// NewPassthrough returns an empty side channel.
func NewPassthrough() *Passthrough {
	return &Passthrough{values: make(map[string]string)}
}

// Set records a raw option, preserving first-insertion order.
func (p *Passthrough) Set(key, raw string) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = raw
}

// Get returns the raw value for key.
func (p *Passthrough) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (p *Passthrough) Keys() []string { return p.keys }

// Len returns the number of carried options.
func (p *Passthrough) Len() int { return len(p.keys) }

// Copy returns a deep copy.
func (p *Passthrough) Copy() *Passthrough {
	out := NewPassthrough()
	for _, k := range p.keys {
		out.Set(k, p.values[k])
	}
	return out
}

// CanonicalModel aggregates everything one conversion pass carries:
// unit system, one or more flux surfaces, the species list and the
// numerical setup. Created fresh per conversion and never partially
// mutated across drivers.
type CanonicalModel struct {
	Units    *units.System
	Geometry []*geometry.LocalGeometry
	Species  *species.LocalSpecies
	Numerics numerics.Numerics

	Passthrough *Passthrough
}

// New returns a model in the canonical normalization with an empty
// passthrough channel.
func New() *CanonicalModel {
	return &CanonicalModel{
		Units:       units.Simulation(units.ConventionPyrokinetics),
		Species:     species.New(),
		Passthrough: NewPassthrough(),
	}
}

// Primary returns the first (reference) flux surface.
func (m *CanonicalModel) Primary() *geometry.LocalGeometry {
	if len(m.Geometry) == 0 {
		return nil
	}
	return m.Geometry[0]
}

// Validate enforces the cross-component invariants before any write
// begins.
func (m *CanonicalModel) Validate() error {
	if m.Primary() == nil {
		return fmt.Errorf("model: no flux surface")
	}
	for i, g := range m.Geometry {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("model: surface %d: %w", i, err)
		}
	}
	if err := m.Species.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if err := m.Numerics.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	return nil
}

// Copy returns a deep copy sharing only the immutable unit system.
func (m *CanonicalModel) Copy() *CanonicalModel {
	out := &CanonicalModel{
		Units:       m.Units,
		Species:     m.Species.Copy(),
		Numerics:    m.Numerics,
		Passthrough: m.Passthrough.Copy(),
	}
	out.Geometry = make([]*geometry.LocalGeometry, len(m.Geometry))
	for i, g := range m.Geometry {
		out.Geometry[i] = g.Copy()
	}
	return out
}

// ReferenceBasis extracts the equilibrium and kinetic ratios that
// anchor cross-convention rescaling. Valid on a model in the canonical
// normalization, where the primary surface's major radius is the aspect
// ratio.
func (m *CanonicalModel) ReferenceBasis() units.Basis {
	b := units.Basis{}
	if g := m.Primary(); g != nil {
		b.AspectRatio = g.Rmaj
		b.BunitOverB0 = g.BunitOverB0()
	}
	if m.Species != nil {
		b.SpeciesTemp, b.SpeciesDensity, b.SpeciesMass = m.Species.Basis()
	}
	return b
}

// Renormalize re-expresses the model in the target system's basis and
// returns the new copy; the receiver stays in the canonical basis.
func (m *CanonicalModel) Renormalize(to *units.System) (*CanonicalModel, error) {
	return m.RenormalizeWith(to, m.ReferenceBasis())
}

// RenormalizeWith is Renormalize with an explicitly supplied basis, for
// callers holding a model in a normalization where the basis ratios are
// not recoverable from the fields themselves (major-radius length
// references hide the aspect ratio).
func (m *CanonicalModel) RenormalizeWith(to *units.System, basis units.Basis) (*CanonicalModel, error) {
	from := m.Units

	out := m.Copy()
	out.Units = to

	lengthF, err := units.Factor(units.KindLength, from, to, basis)
	if err != nil {
		return nil, fmt.Errorf("model: renormalizing geometry: %w", err)
	}
	invLengthF := 1.0 / lengthF
	betaF, err := units.Factor(units.KindBeta, from, to, basis)
	if err != nil {
		return nil, fmt.Errorf("model: renormalizing beta: %w", err)
	}
	for _, g := range out.Geometry {
		g.Rho *= lengthF
		g.Rmaj *= lengthF
		g.Z0 *= lengthF
		// beta' = 2 mu0 p' / Bref^2 carries one inverse length.
		g.BetaPrime *= betaF * invLengthF
	}

	out.Species, err = m.Species.Normalize(from, to, basis)
	if err != nil {
		return nil, fmt.Errorf("model: renormalizing species: %w", err)
	}

	waveF, err := units.Factor(units.KindWavenumber, from, to, basis)
	if err != nil {
		return nil, fmt.Errorf("model: renormalizing wavenumbers: %w", err)
	}
	freqF, err := units.Factor(units.KindFrequency, from, to, basis)
	if err != nil {
		return nil, fmt.Errorf("model: renormalizing times: %w", err)
	}
	out.Numerics.KyMin *= waveF
	out.Numerics.Theta0 = m.Numerics.Theta0
	out.Numerics.DeltaT /= freqF
	out.Numerics.MaxTime /= freqF
	out.Numerics.Beta *= betaF

	return out, nil
}
