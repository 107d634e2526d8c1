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

// Package gs2 reads and writes GS2 input files: Fortran namelists,
// plain Miller geometry (no squareness), thermal velocities referenced
// to the most probable speed, which puts a sqrt(2) between GS2 and the
// other supported codes.
package gs2

import (
	"fmt"
	"math"
	"strings"

	"github.com/fusionkit/gyroconv/internal/deck"
	"github.com/fusionkit/gyroconv/internal/driver"
	"github.com/fusionkit/gyroconv/internal/geometry"
	"github.com/fusionkit/gyroconv/internal/model"
	"github.com/fusionkit/gyroconv/internal/numerics"
	"github.com/fusionkit/gyroconv/internal/species"
	"github.com/fusionkit/gyroconv/internal/units"
)

const codeName = "gs2"

func init() {
	driver.Register(&Driver{})
}

// Driver implements the GS2 frontend. Stateless.
type Driver struct{}

func (*Driver) Name() string { return codeName }

func (*Driver) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		Squareness:    false,
		HigherMoments: false,
		Apar:          true,
		Bpar:          true,
		Nonlinear:     true,
		Grid:          numerics.GridLayout{SpecifiesBoxLength: true},
	}
}

func (*Driver) DefaultUnits() *units.System {
	return units.Simulation(units.ConventionGS2)
}

func (d *Driver) Read(data []byte, opts driver.Options) (*model.CanonicalModel, error) {
	opts = opts.WithDefaults()
	parsed, err := driver.ParseNamelist(codeName, data)
	if err != nil {
		return nil, err
	}

	m := model.New()
	m.Units = d.DefaultUnits()

	geo, err := readGeometry(parsed, m)
	if err != nil {
		return nil, err
	}
	m.Geometry = []*geometry.LocalGeometry{geo}

	if err := readSpecies(parsed, m); err != nil {
		return nil, err
	}
	if err := readNumerics(parsed, m); err != nil {
		return nil, err
	}

	m.Species.UpdateDerived()
	m.Species.CheckQuasineutrality(opts.Tables.NeutralityTolerance, opts.Logger)

	for _, g := range parsed.Groups() {
		if consumedGroups[g.Name] || strings.HasPrefix(g.Name, "species_parameters_") {
			continue
		}
		r := driver.NewReader(g)
		r.Leftover(codeName+"."+g.Name+".", m.Passthrough)
	}

	canonical, err := m.RenormalizeWith(units.Simulation(units.ConventionPyrokinetics), m.ReferenceBasis())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", codeName, err)
	}
	return canonical, nil
}

var consumedGroups = map[string]bool{
	"theta_grid_knobs":           true,
	"theta_grid_parameters":      true,
	"theta_grid_eik_knobs":       true,
	"parameters":                 true,
	"species_knobs":              true,
	"knobs":                      true,
	"le_grids_knobs":             true,
	"kt_grids_knobs":             true,
	"kt_grids_single_parameters": true,
	"kt_grids_box_parameters":    true,
	"nonlinear_terms_knobs":      true,
	"hyper_knobs":                true,
}

func reader(parsed *deck.Deck, name string) *driver.Reader {
	if g, ok := parsed.Lookup(name); ok {
		return driver.NewReader(g)
	}
	return driver.NewReader(deck.New().Group(name))
}

func readGeometry(parsed *deck.Deck, m *model.CanonicalModel) (*geometry.LocalGeometry, error) {
	tg, ok := parsed.Lookup("theta_grid_parameters")
	if !ok {
		return nil, &driver.UnsupportedSchemaError{Code: codeName, Detail: "missing &theta_grid_parameters group"}
	}
	in := driver.NewReader(tg)
	eik := reader(parsed, "theta_grid_eik_knobs")

	rhoc := in.Float("rhoc", 0.5)
	kappa := in.Float("akappa", 1.0)

	p := geometry.Parameters{
		Rho:    rhoc,
		Rmaj:   in.Float("rmaj", 3.0),
		Q:      in.Float("qinp", 2.0),
		Shat:   in.Float("shat", 1.0),
		Kappa:  kappa,
		Delta:  in.Float("tri", 0),
		Shift:  in.Float("shift", 0),
		SDelta: in.Float("tripri", 0) * rhoc,
	}
	if kappa > 0 {
		p.SKappa = in.Float("akappri", 0) * rhoc / kappa
	}
	// Bishop-style overrides take precedence over the raw grid values.
	if eik.Has("s_hat_input") {
		p.Shat = eik.Float("s_hat_input", p.Shat)
	}
	p.BetaPrime = eik.Float("beta_prime_input", 0)
	p = geometry.NormalizeSigns(p, geometry.ParamsGS2)

	g, err := geometry.FromAnalyticParameters(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", codeName, err)
	}

	in.MarkUsed("r_geo", "ntheta", "nperiod")
	eik.MarkUsed("irho", "iflux", "bishop", "local_eq", "beta_prime_input")
	in.Leftover(codeName+".theta_grid_parameters.", m.Passthrough)
	eik.Leftover(codeName+".theta_grid_eik_knobs.", m.Passthrough)
	tgk := reader(parsed, "theta_grid_knobs")
	tgk.MarkUsed("equilibrium_option")
	tgk.Leftover(codeName+".theta_grid_knobs.", m.Passthrough)
	return g, nil
}

func readSpecies(parsed *deck.Deck, m *model.CanonicalModel) error {
	sk, ok := parsed.Lookup("species_knobs")
	if !ok {
		return &driver.UnsupportedSchemaError{Code: codeName, Detail: "missing &species_knobs group"}
	}
	skIn := driver.NewReader(sk)
	nspec := skIn.Int("nspec", 0)
	if nspec <= 0 {
		return &driver.UnsupportedSchemaError{Code: codeName, Detail: "nspec missing or not positive"}
	}
	skIn.Leftover(codeName+".species_knobs.", m.Passthrough)

	for i := 1; i <= nspec; i++ {
		name := fmt.Sprintf("species_parameters_%d", i)
		g, ok := parsed.Lookup(name)
		if !ok {
			return &driver.UnsupportedSchemaError{Code: codeName, Detail: "missing &" + name + " group"}
		}
		in := driver.NewReader(g)
		kind := strings.ToLower(in.Str("type", "ion"))
		s := species.Species{
			Charge:          in.Float("z", 1),
			Mass:            in.Float("mass", 1),
			Density:         in.Float("dens", 1),
			Temperature:     in.Float("temp", 1),
			InverseGradDens: in.Float("fprim", 0),
			InverseGradTemp: in.Float("tprim", 0),
			InverseGradVel:  in.Float("uprim", 0),
			Collisionality:  in.Float("vnewk", 0),
		}
		s.Name = kind
		if kind != "electron" {
			s.Name = fmt.Sprintf("ion%d", i)
		}
		m.Species.Add(s)
		in.Leftover(fmt.Sprintf("%s.species.%d.", codeName, i-1), m.Passthrough)
	}
	if m.Species.Electron() == nil {
		return &driver.UnsupportedSchemaError{Code: codeName, Detail: "no species with type = 'electron'"}
	}
	return nil
}

func readNumerics(parsed *deck.Deck, m *model.CanonicalModel) error {
	tgIn := reader(parsed, "theta_grid_parameters")
	knobs := reader(parsed, "knobs")
	le := reader(parsed, "le_grids_knobs")
	ktKnobs := reader(parsed, "kt_grids_knobs")
	nl := reader(parsed, "nonlinear_terms_knobs")

	n := numerics.Numerics{
		NRadial: 1,
		NTheta:  tgIn.Int("ntheta", 32),
		NPeriod: tgIn.Int("nperiod", 1),
		NEnergy: le.Int("negrid", 8),
		NPitch:  le.Int("ngauss", 8),
		DeltaT:  knobs.Float("delt", 0),
		Phi:     knobs.Float("fphi", 1) != 0,
		Apar:    knobs.Float("fapar", 0) != 0,
		Bpar:    knobs.Float("fbpar", 0) != 0,
	}
	n.MaxTime = n.DeltaT * float64(knobs.Int("nstep", 0))

	n.Nonlinear = strings.EqualFold(nl.Str("nonlinear_mode", "off"), "on")

	switch grid := strings.ToLower(ktKnobs.Str("grid_option", "single")); grid {
	case "single":
		single := reader(parsed, "kt_grids_single_parameters")
		n.NKy = 1
		n.KyMin = single.Float("aky", 0.5)
		n.Theta0 = single.Float("theta0", 0)
		single.Leftover(codeName+".kt_grids_single_parameters.", m.Passthrough)
	case "box":
		box := reader(parsed, "kt_grids_box_parameters")
		n.NKy = box.Int("naky", 1)
		n.NRadial = box.Int("nx", 1)
		if y0 := box.Float("y0", 0); y0 > 0 {
			n.KyMin = 1 / y0
		}
		box.Leftover(codeName+".kt_grids_box_parameters.", m.Passthrough)
	default:
		return &driver.UnrecognizedOptionError{Code: codeName, Group: "kt_grids_knobs", Key: "grid_option", Value: grid}
	}

	params := reader(parsed, "parameters")
	n.Beta = params.Float("beta", 0)

	// Hyperresistive dissipation ~ (k_perp^2)^nexp.
	hyper := reader(parsed, "hyper_knobs")
	if d := hyper.Float("d_hypres", 0); d != 0 {
		n.HyperStrength = d
		n.HyperOrder = 2 * hyper.Int("nexp", 2)
	} else {
		hyper.MarkUsed("hyper_option")
		hyper.MarkUsed("nexp")
	}
	hyper.Leftover(codeName+".hyper_knobs.", m.Passthrough)

	m.Numerics = n

	knobs.Leftover(codeName+".knobs.", m.Passthrough)
	le.Leftover(codeName+".le_grids_knobs.", m.Passthrough)
	ktKnobs.Leftover(codeName+".kt_grids_knobs.", m.Passthrough)
	nl.Leftover(codeName+".nonlinear_terms_knobs.", m.Passthrough)
	params.Leftover(codeName+".parameters.", m.Passthrough)
	return nil
}

func (d *Driver) Write(m *model.CanonicalModel, opts driver.Options) ([]byte, error) {
	opts = opts.WithDefaults()
	prep, err := driver.PrepareForWrite(codeName, m, d.Capabilities(), d.DefaultUnits(), opts)
	if err != nil {
		return nil, err
	}

	out := deck.New()
	pass := prep.Passthrough

	tgk := out.Append("theta_grid_knobs")
	tgk.SetString("equilibrium_option", "eik")
	driver.EmitPassthrough(codeName+".theta_grid_knobs.", pass, tgk)

	geo := prep.Primary()
	p := geo.ToParameters(geometry.ParamsGS2)
	n := prep.Numerics

	tg := out.Append("theta_grid_parameters")
	tg.SetInt("ntheta", n.NTheta)
	tg.SetInt("nperiod", n.NPeriod)
	tg.SetFloat("rhoc", p.Rho)
	tg.SetFloat("rmaj", p.Rmaj)
	tg.SetFloat("r_geo", p.Rmaj)
	tg.SetFloat("qinp", p.Q)
	tg.SetFloat("shat", p.Shat)
	tg.SetFloat("shift", p.Shift)
	tg.SetFloat("akappa", p.Kappa)
	tg.SetFloat("tri", p.Delta)
	if p.Rho != 0 {
		tg.SetFloat("akappri", p.SKappa*p.Kappa/p.Rho)
		tg.SetFloat("tripri", p.SDelta/p.Rho)
	}
	driver.EmitPassthrough(codeName+".theta_grid_parameters.", pass, tg)

	eik := out.Append("theta_grid_eik_knobs")
	eik.SetInt("iflux", 0)
	eik.SetInt("irho", 2)
	eik.SetBool("local_eq", true)
	eik.SetInt("bishop", 4)
	eik.SetFloat("s_hat_input", p.Shat)
	eik.SetFloat("beta_prime_input", p.BetaPrime)
	driver.EmitPassthrough(codeName+".theta_grid_eik_knobs.", pass, eik)

	params := out.Append("parameters")
	params.SetFloat("beta", n.Beta)
	params.SetFloat("zeff", prep.Species.Zeff)
	driver.EmitPassthrough(codeName+".parameters.", pass, params)

	knobs := out.Append("knobs")
	knobs.SetFloat("fphi", boolUnit(n.Phi))
	knobs.SetFloat("fapar", boolUnit(n.Apar))
	knobs.SetFloat("fbpar", boolUnit(n.Bpar))
	knobs.SetFloat("delt", n.DeltaT)
	if n.DeltaT > 0 {
		knobs.SetInt("nstep", int(math.Round(n.MaxTime/n.DeltaT)))
	}
	driver.EmitPassthrough(codeName+".knobs.", pass, knobs)

	le := out.Append("le_grids_knobs")
	le.SetInt("negrid", n.NEnergy)
	le.SetInt("ngauss", n.NPitch)
	driver.EmitPassthrough(codeName+".le_grids_knobs.", pass, le)

	ktk := out.Append("kt_grids_knobs")
	if n.Nonlinear {
		ktk.SetString("grid_option", "box")
		driver.EmitPassthrough(codeName+".kt_grids_knobs.", pass, ktk)
		box := out.Append("kt_grids_box_parameters")
		box.SetInt("naky", n.NKy)
		box.SetInt("nx", n.NRadial)
		if n.KyMin > 0 {
			box.SetFloat("y0", 1/n.KyMin)
		}
		driver.EmitPassthrough(codeName+".kt_grids_box_parameters.", pass, box)
	} else {
		ktk.SetString("grid_option", "single")
		driver.EmitPassthrough(codeName+".kt_grids_knobs.", pass, ktk)
		single := out.Append("kt_grids_single_parameters")
		single.SetFloat("aky", n.KyMin)
		single.SetFloat("theta0", n.Theta0)
		driver.EmitPassthrough(codeName+".kt_grids_single_parameters.", pass, single)
	}

	nl := out.Append("nonlinear_terms_knobs")
	mode := "off"
	if n.Nonlinear {
		mode = "on"
	}
	nl.SetString("nonlinear_mode", mode)
	driver.EmitPassthrough(codeName+".nonlinear_terms_knobs.", pass, nl)

	if n.HyperStrength != 0 {
		hyper := out.Append("hyper_knobs")
		hyper.SetString("hyper_option", "res_only")
		hyper.SetFloat("d_hypres", n.HyperStrength)
		nexp := n.HyperOrder / 2
		if nexp < 1 {
			nexp = 2
		}
		hyper.SetInt("nexp", nexp)
		driver.EmitPassthrough(codeName+".hyper_knobs.", pass, hyper)
	}

	sk := out.Append("species_knobs")
	sk.SetInt("nspec", prep.Species.Count())
	driver.EmitPassthrough(codeName+".species_knobs.", pass, sk)

	for i, s := range prep.Species.All() {
		sp := out.Append(fmt.Sprintf("species_parameters_%d", i+1))
		kind := "ion"
		if s.Charge < 0 {
			kind = "electron"
		}
		sp.SetFloat("z", s.Charge)
		sp.SetFloat("mass", s.Mass)
		sp.SetFloat("dens", s.Density)
		sp.SetFloat("temp", s.Temperature)
		sp.SetFloat("fprim", s.InverseGradDens)
		sp.SetFloat("tprim", s.InverseGradTemp)
		sp.SetFloat("uprim", s.InverseGradVel)
		sp.SetFloat("vnewk", s.Collisionality)
		sp.SetString("type", kind)
		driver.EmitPassthrough(fmt.Sprintf("%s.species.%d.", codeName, i), pass, sp)
	}

	emitForeignGroups(pass, out)

	style := deck.Style{
		FloatDigits: opts.Tables.FloatDigits,
		Namelist:    true,
		BoolTrue:    ".true.",
		BoolFalse:   ".false.",
		Quote:       true,
	}
	if opts.Tables.AlignColumns {
		style.AlignColumn = 12
	}
	return []byte(out.Render(style)), nil
}

func boolUnit(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func emitForeignGroups(p *model.Passthrough, out *deck.Deck) {
	prefix := codeName + "."
	for _, key := range p.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		groupName, k, ok := strings.Cut(rest, ".")
		if !ok || consumedGroups[groupName] || groupName == "species" {
			continue
		}
		raw, _ := p.Get(key)
		out.Group(groupName).SetRaw(k, raw)
	}
}
