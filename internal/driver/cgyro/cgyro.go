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

// Package cgyro reads and writes CGYRO input decks (input.cgyro): the
// flat KEY = VALUE format of the GACODE suite, Miller or MXH geometry,
// Bunit field normalization.
package cgyro

import (
	"fmt"

	"github.com/fusionkit/gyroconv/internal/deck"
	"github.com/fusionkit/gyroconv/internal/driver"
	"github.com/fusionkit/gyroconv/internal/geometry"
	"github.com/fusionkit/gyroconv/internal/model"
	"github.com/fusionkit/gyroconv/internal/numerics"
	"github.com/fusionkit/gyroconv/internal/species"
	"github.com/fusionkit/gyroconv/internal/units"
)

const codeName = "cgyro"

func init() {
	driver.Register(&Driver{})
}

// Driver implements the CGYRO frontend. Stateless.
type Driver struct{}

func (*Driver) Name() string { return codeName }

func (*Driver) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		Squareness:    true,
		HigherMoments: true,
		Apar:          true,
		Bpar:          true,
		Nonlinear:     true,
		Grid:          numerics.GridLayout{},
	}
}

func (*Driver) DefaultUnits() *units.System {
	return units.Simulation(units.ConventionCGYRO)
}

func (d *Driver) Read(data []byte, opts driver.Options) (*model.CanonicalModel, error) {
	opts = opts.WithDefaults()
	parsed, err := driver.ParseFlat(codeName, data)
	if err != nil {
		return nil, err
	}
	in := driver.NewReader(parsed.Groups()[0])

	m := model.New()
	m.Units = d.DefaultUnits()

	geo, err := readGeometry(in)
	if err != nil {
		return nil, err
	}
	m.Geometry = []*geometry.LocalGeometry{geo}

	if err := readSpecies(in, m, opts); err != nil {
		return nil, err
	}
	readNumerics(in, m)

	// CGYRO has no pressure-gradient input; it follows from the species
	// betas and gradients.
	m.Species.UpdateDerived()
	geo.BetaPrime = betaPrimeFromSpecies(m.Numerics.Beta, m.Species)

	m.Species.CheckQuasineutrality(opts.Tables.NeutralityTolerance, opts.Logger)
	in.Leftover(codeName+".", m.Passthrough)

	canonical, err := m.RenormalizeWith(units.Simulation(units.ConventionPyrokinetics), m.ReferenceBasis())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", codeName, err)
	}
	return canonical, nil
}

func readGeometry(in *driver.Reader) (*geometry.LocalGeometry, error) {
	p := geometry.Parameters{
		Rho:    in.Float("rmin", 0.5),
		Rmaj:   in.Float("rmaj", 3.0),
		Z0:     in.Float("zmag", 0),
		DZ0dr:  in.Float("dzmag", 0),
		Shift:  in.Float("shift", 0),
		Kappa:  in.Float("kappa", 1.0),
		SKappa: in.Float("s_kappa", 0),
		Delta:  in.Float("delta", 0),
		SDelta: in.Float("s_delta", 0),
		Zeta:   in.Float("zeta", 0),
		SZeta:  in.Float("s_zeta", 0),
		Q:      in.Float("q", 2.0),
		Shat:   in.Float("s", 1.0),
	}
	// Direction flags are CCW-positive viewed from above; the canonical
	// signs are the negation.
	if in.Has("ipccw") {
		p.IpSign = -in.Int("ipccw", -1)
	}
	if in.Has("btccw") {
		p.BtSign = -in.Int("btccw", -1)
	}
	p = geometry.NormalizeSigns(p, geometry.ParamsCGYRO)

	g, err := geometry.FromAnalyticParameters(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", codeName, err)
	}
	for n := 0; n < g.NMoments(); n++ {
		g.Cn[n] = in.Float(fmt.Sprintf("shape_cos%d", n), g.Cn[n])
		g.DCndr[n] = in.Float(fmt.Sprintf("shape_s_cos%d", n), g.DCndr[n])
		if n >= 3 {
			g.Sn[n] = in.Float(fmt.Sprintf("shape_sin%d", n), g.Sn[n])
			g.DSndr[n] = in.Float(fmt.Sprintf("shape_s_sin%d", n), g.DSndr[n])
		}
	}
	in.MarkUsed("equilibrium_model")
	return g, nil
}

func readSpecies(in *driver.Reader, m *model.CanonicalModel, opts driver.Options) error {
	ns := in.Int("n_species", 0)
	if ns <= 0 {
		return &driver.UnsupportedSchemaError{Code: codeName, Detail: "N_SPECIES missing or not positive"}
	}
	for i := 1; i <= ns; i++ {
		charge := in.Float(fmt.Sprintf("z_%d", i), 1)
		mass := in.Float(fmt.Sprintf("mass_%d", i), 1)
		m.Species.Add(species.Species{
			Name:            driver.GuessSpeciesName(opts.Tables, charge, mass, i),
			Charge:          charge,
			Mass:            mass,
			Density:         in.Float(fmt.Sprintf("dens_%d", i), 1),
			Temperature:     in.Float(fmt.Sprintf("temp_%d", i), 1),
			InverseGradDens: in.Float(fmt.Sprintf("dlnndr_%d", i), 0),
			InverseGradTemp: in.Float(fmt.Sprintf("dlntdr_%d", i), 0),
		})
	}
	if m.Species.Electron() == nil {
		return &driver.UnsupportedSchemaError{Code: codeName, Detail: "no electron species in deck"}
	}
	m.Species.Electron().Collisionality = in.Float("nu_ee", 0)
	if err := m.Species.ScaleIonCollisionalities(); err != nil {
		return fmt.Errorf("%s: %w", codeName, err)
	}
	return nil
}

func readNumerics(in *driver.Reader, m *model.CanonicalModel) {
	nField := in.Int("n_field", 1)
	m.Numerics = numerics.Numerics{
		NRadial:   in.Int("n_radial", 4),
		NKy:       in.Int("n_toroidal", 1),
		NTheta:    in.Int("n_theta", 24),
		NEnergy:   in.Int("n_energy", 8),
		NPitch:    in.Int("n_xi", 16),
		NPeriod:   1,
		KyMin:     in.Float("ky", 0.3),
		DeltaT:    in.Float("delta_t", 0.01),
		MaxTime:   in.Float("max_time", 100),
		Phi:       true,
		Apar:      nField >= 2,
		Bpar:      nField >= 3,
		Nonlinear: in.Int("nonlinear_flag", 0) != 0,
		Beta:      in.Float("betae_unit", 0),
	}
}

// betaPrimeFromSpecies evaluates -betae sum_s n_s T_s (a/Ln + a/LT) in
// the deck's own normalization, where n_e = T_e = 1.
func betaPrimeFromSpecies(betae float64, ls *species.LocalSpecies) float64 {
	e := ls.Electron()
	if e == nil || e.Density == 0 || e.Temperature == 0 {
		return 0
	}
	return -betae * ls.Pressure * ls.ALp / (e.Density * e.Temperature)
}

func (d *Driver) Write(m *model.CanonicalModel, opts driver.Options) ([]byte, error) {
	opts = opts.WithDefaults()
	prep, err := driver.PrepareForWrite(codeName, m, d.Capabilities(), d.DefaultUnits(), opts)
	if err != nil {
		return nil, err
	}

	out := deck.New()
	g := out.Group("")
	geo := prep.Primary()
	p := geo.ToParameters(geometry.ParamsCGYRO)

	g.SetInt("equilibrium_model", 2)
	g.SetFloat("rmin", p.Rho)
	g.SetFloat("rmaj", p.Rmaj)
	g.SetFloat("zmag", p.Z0)
	g.SetFloat("dzmag", p.DZ0dr)
	g.SetFloat("shift", p.Shift)
	g.SetFloat("kappa", p.Kappa)
	g.SetFloat("s_kappa", p.SKappa)
	g.SetFloat("delta", p.Delta)
	g.SetFloat("s_delta", p.SDelta)
	g.SetFloat("zeta", p.Zeta)
	g.SetFloat("s_zeta", p.SZeta)
	if geo.IsShaped() {
		for n := 0; n < geo.NMoments(); n++ {
			g.SetFloat(fmt.Sprintf("shape_cos%d", n), geo.Cn[n])
			g.SetFloat(fmt.Sprintf("shape_s_cos%d", n), geo.DCndr[n])
			if n >= 3 {
				g.SetFloat(fmt.Sprintf("shape_sin%d", n), geo.Sn[n])
				g.SetFloat(fmt.Sprintf("shape_s_sin%d", n), geo.DSndr[n])
			}
		}
	}
	g.SetFloat("q", p.Q)
	g.SetFloat("s", p.Shat)
	g.SetInt("ipccw", -p.IpSign)
	g.SetInt("btccw", -p.BtSign)

	n := prep.Numerics
	nField := 1
	if n.Apar {
		nField = 2
	}
	if n.Bpar {
		nField = 3
	}
	g.SetInt("n_field", nField)
	g.SetFloat("betae_unit", n.Beta)
	nonlinear := 0
	if n.Nonlinear {
		nonlinear = 1
	}
	g.SetInt("nonlinear_flag", nonlinear)

	g.SetInt("n_radial", n.NRadial)
	g.SetInt("n_toroidal", n.NKy)
	g.SetInt("n_theta", n.NTheta)
	g.SetInt("n_energy", n.NEnergy)
	g.SetInt("n_xi", n.NPitch)
	g.SetFloat("ky", n.KyMin)
	g.SetFloat("delta_t", n.DeltaT)
	g.SetFloat("max_time", n.MaxTime)

	if e := prep.Species.Electron(); e != nil {
		g.SetFloat("nu_ee", e.Collisionality)
	}
	g.SetInt("n_species", prep.Species.Count())
	for i, s := range prep.Species.All() {
		idx := i + 1
		g.SetFloat(fmt.Sprintf("z_%d", idx), s.Charge)
		g.SetFloat(fmt.Sprintf("mass_%d", idx), s.Mass)
		g.SetFloat(fmt.Sprintf("dens_%d", idx), s.Density)
		g.SetFloat(fmt.Sprintf("temp_%d", idx), s.Temperature)
		g.SetFloat(fmt.Sprintf("dlnndr_%d", idx), s.InverseGradDens)
		g.SetFloat(fmt.Sprintf("dlntdr_%d", idx), s.InverseGradTemp)
	}

	driver.EmitPassthrough(codeName+".", prep.Passthrough, g)

	style := deck.Style{
		FloatDigits: opts.Tables.FloatDigits,
		UpperKeys:   true,
	}
	if opts.Tables.AlignColumns {
		style.AlignColumn = 16
	}
	return []byte(out.Render(style)), nil
}
