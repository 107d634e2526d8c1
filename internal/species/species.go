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

// Package species holds the canonical per-species kinetic profile of a
// flux surface, with normalization-aware rescaling between reference
// systems.
package species

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/fusionkit/gyroconv/internal/config"
	"github.com/fusionkit/gyroconv/internal/units"
)

// Species is one kinetic species in normalised units: mass in mref,
// charge in elementary charges, density in nref, temperature in tref,
// velocity in vref, gradients as a/L, collisionality in vref/lref.
type Species struct {
	Name   string
	Charge float64
	Mass   float64

	Density     float64
	Temperature float64
	Velocity    float64

	// InverseGradDens is a/Ln = -a dln(n)/dr; likewise for temperature
	// and velocity.
	InverseGradDens float64
	InverseGradTemp float64
	InverseGradVel  float64

	// Collisionality is the species collision frequency in vref/lref.
	Collisionality float64
}

// LocalSpecies is the ordered species list of one flux surface plus the
// derived bulk quantities. Ordering is preserved through every
// conversion; drivers rely on it for indexed keys.
type LocalSpecies struct {
	list []Species

	// Zeff is sum(n_i Z_i^2)/n_e over ions, set by UpdateDerived or
	// overridden from the deck.
	Zeff float64

	// Pressure is sum(n_s T_s) in nref*tref; ALp the normalised total
	// pressure gradient a/Lp.
	Pressure float64
	ALp      float64
}

// New returns an empty species list.
func New() *LocalSpecies {
	return &LocalSpecies{}
}

// Add appends a species, preserving insertion order, and refreshes the
// derived bulk quantities.
func (ls *LocalSpecies) Add(s Species) {
	ls.list = append(ls.list, s)
	ls.UpdateDerived()
}

// Count returns the number of species.
func (ls *LocalSpecies) Count() int { return len(ls.list) }

// All returns the species in deck order. The slice is owned by the
// list; callers must not append to it.
func (ls *LocalSpecies) All() []Species { return ls.list }

// Names returns the species names in deck order.
func (ls *LocalSpecies) Names() []string {
	names := make([]string, len(ls.list))
	for i, s := range ls.list {
		names[i] = s.Name
	}
	return names
}

// ByName returns a pointer to the named species, or nil.
func (ls *LocalSpecies) ByName(name string) *Species {
	for i := range ls.list {
		if ls.list[i].Name == name {
			return &ls.list[i]
		}
	}
	return nil
}

// Electron returns the electron species, identified by charge -1.
func (ls *LocalSpecies) Electron() *Species {
	for i := range ls.list {
		if ls.list[i].Charge == -1 {
			return &ls.list[i]
		}
	}
	return nil
}

// Validate enforces the canonical invariants: non-empty list and a
// resolvable reference (electron) species.
func (ls *LocalSpecies) Validate() error {
	if len(ls.list) == 0 {
		return fmt.Errorf("species: list must not be empty")
	}
	if ls.Electron() == nil {
		return fmt.Errorf("species: no electron (charge -1) reference species found")
	}
	for _, s := range ls.list {
		if s.Mass <= 0 {
			return fmt.Errorf("species: %s has non-positive mass %g", s.Name, s.Mass)
		}
		if s.Density < 0 || s.Temperature < 0 {
			return fmt.Errorf("species: %s has negative density or temperature", s.Name)
		}
	}
	return nil
}

// UpdateDerived recomputes Zeff, total pressure and a/Lp from the
// current list.
func (ls *LocalSpecies) UpdateDerived() {
	ls.Pressure = 0
	weightedGrad := 0.0
	for _, s := range ls.list {
		p := s.Density * s.Temperature
		ls.Pressure += p
		weightedGrad += p * (s.InverseGradDens + s.InverseGradTemp)
	}
	if ls.Pressure > 0 {
		ls.ALp = weightedGrad / ls.Pressure
	}

	if e := ls.Electron(); e != nil && e.Density > 0 {
		zeff := 0.0
		for _, s := range ls.list {
			if s.Charge < 0 {
				continue
			}
			zeff += s.Density * s.Charge * s.Charge
		}
		ls.Zeff = zeff / e.Density
	}
}

// ChargeImbalance returns the net charge density relative to the
// electron charge density, sum(n_s Z_s) / (n_e |Z_e|).
func (ls *LocalSpecies) ChargeImbalance() float64 {
	e := ls.Electron()
	if e == nil || e.Density == 0 {
		return math.NaN()
	}
	net := 0.0
	for _, s := range ls.list {
		net += s.Density * s.Charge
	}
	return net / (e.Density * math.Abs(e.Charge))
}

// CheckQuasineutrality is the advisory neutrality check: a violation is
// logged at warning level, never raised, because partially specified
// decks are legal intermediate states.
func (ls *LocalSpecies) CheckQuasineutrality(tol float64, log *zap.Logger) bool {
	imbalance := ls.ChargeImbalance()
	if math.IsNaN(imbalance) || math.Abs(imbalance) <= tol {
		return true
	}
	log.Warn("species list violates quasineutrality",
		zap.Float64("imbalance", imbalance),
		zap.Float64("tolerance", tol),
	)
	return false
}

// Normalize re-expresses every per-species quantity in the target
// system's basis. Pure function: returns a new list, the receiver is
// untouched.
func (ls *LocalSpecies) Normalize(from, to *units.System, basis units.Basis) (*LocalSpecies, error) {
	type scaled struct {
		kind units.RefKind
		get  func(*Species) *float64
	}
	fields := []scaled{
		{units.KindMass, func(s *Species) *float64 { return &s.Mass }},
		{units.KindDensity, func(s *Species) *float64 { return &s.Density }},
		{units.KindTemperature, func(s *Species) *float64 { return &s.Temperature }},
		{units.KindVelocity, func(s *Species) *float64 { return &s.Velocity }},
		{units.KindInverseLength, func(s *Species) *float64 { return &s.InverseGradDens }},
		{units.KindInverseLength, func(s *Species) *float64 { return &s.InverseGradTemp }},
		{units.KindInverseLength, func(s *Species) *float64 { return &s.InverseGradVel }},
		{units.KindFrequency, func(s *Species) *float64 { return &s.Collisionality }},
	}

	out := &LocalSpecies{list: append([]Species(nil), ls.list...), Zeff: ls.Zeff}
	for _, f := range fields {
		factor, err := units.Factor(f.kind, from, to, basis)
		if err != nil {
			return nil, err
		}
		for i := range out.list {
			*f.get(&out.list[i]) *= factor
		}
	}
	out.UpdateDerived()
	return out, nil
}

// Basis extracts the per-species reference ratios (relative to the
// electron) that anchor cross-convention temperature, density and mass
// conversions.
func (ls *LocalSpecies) Basis() (temp, dens, mass map[string]float64) {
	temp = make(map[string]float64, len(ls.list))
	dens = make(map[string]float64, len(ls.list))
	mass = make(map[string]float64, len(ls.list))
	for _, s := range ls.list {
		temp[s.Name] = s.Temperature
		dens[s.Name] = s.Density
		mass[s.Name] = s.Mass
	}
	return temp, dens, mass
}

// CoulombLog evaluates the configured Coulomb-logarithm convention for
// electron density [m^-3] and temperature [eV].
func CoulombLog(tables *config.ReferenceTables, neSI, teEV float64) float64 {
	switch tables.CoulombLog {
	case config.CoulombLogFixed:
		return tables.FixedCoulombLog
	default:
		// NRL electron-electron form; density converted to cm^-3.
		return 24.0 - math.Log(math.Sqrt(neSI*1e-6)/teEV)
	}
}

// ElectronCollisionFrequency computes nu_ee [1/s] from physical electron
// density [m^-3] and temperature [eV]:
//
//	nu_ee = sqrt(2) pi e^4 n_e lnLambda / ((4 pi eps0)^2 sqrt(m_e) T_e^{3/2})
func ElectronCollisionFrequency(tables *config.ReferenceTables, neSI, teEV float64) float64 {
	lnLambda := CoulombLog(tables, neSI, teEV)
	teJ := teEV * config.ElementaryCharge
	e4 := math.Pow(config.ElementaryCharge, 4)
	denom := math.Pow(4*math.Pi*config.Epsilon0, 2) *
		math.Sqrt(config.ElectronMass) * math.Pow(teJ, 1.5)
	return math.Sqrt2 * math.Pi * e4 * neSI * lnLambda / denom
}

// ScaleIonCollisionalities fills ion collisionalities from the electron
// one by the Z^4 n / (T^{3/2} m^{1/2}) scaling. The Coulomb logarithm
// does vary between pairs, but by far less than deck precision.
func (ls *LocalSpecies) ScaleIonCollisionalities() error {
	e := ls.Electron()
	if e == nil {
		return fmt.Errorf("species: cannot scale ion collisionalities without electrons")
	}
	if e.Density == 0 || e.Temperature == 0 || e.Mass == 0 {
		return fmt.Errorf("species: electron reference values must be nonzero")
	}
	eWeight := e.Density / (math.Pow(e.Temperature, 1.5) * math.Sqrt(e.Mass))
	for i := range ls.list {
		s := &ls.list[i]
		if s.Charge < 0 {
			continue
		}
		if s.Temperature <= 0 || s.Mass <= 0 {
			return fmt.Errorf("species: %s needs positive temperature and mass", s.Name)
		}
		weight := math.Pow(s.Charge, 4) * s.Density /
			(math.Pow(s.Temperature, 1.5) * math.Sqrt(s.Mass))
		s.Collisionality = e.Collisionality * weight / eWeight
	}
	return nil
}

// Copy returns a deep copy of the species list.
func (ls *LocalSpecies) Copy() *LocalSpecies {
	out := *ls
	out.list = append([]Species(nil), ls.list...)
	return &out
}
