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

// Package gene reads and writes GENE parameter files: Fortran
// namelists, Miller geometry, lengths referenced to the flux-surface
// major radius. Decks may use any reference length; minor_r and
// major_R pin it down, and Read rescales everything to the canonical
// minor-radius normalization directly.
package gene

import (
	"fmt"
	"math"
	"strings"

	"github.com/fusionkit/gyroconv/internal/config"
	"github.com/fusionkit/gyroconv/internal/deck"
	"github.com/fusionkit/gyroconv/internal/driver"
	"github.com/fusionkit/gyroconv/internal/geometry"
	"github.com/fusionkit/gyroconv/internal/model"
	"github.com/fusionkit/gyroconv/internal/numerics"
	"github.com/fusionkit/gyroconv/internal/species"
	"github.com/fusionkit/gyroconv/internal/units"
)

const codeName = "gene"

func init() {
	driver.Register(&Driver{})
}

// Driver implements the GENE frontend. Stateless.
type Driver struct{}

func (*Driver) Name() string { return codeName }

func (*Driver) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		Squareness:    true,
		HigherMoments: false,
		Apar:          true,
		Bpar:          true,
		Nonlinear:     true,
		Grid:          numerics.GridLayout{},
	}
}

func (*Driver) DefaultUnits() *units.System {
	return units.Simulation(units.ConventionGENE)
}

func (d *Driver) Read(data []byte, opts driver.Options) (*model.CanonicalModel, error) {
	opts = opts.WithDefaults()
	parsed, err := driver.ParseNamelist(codeName, data)
	if err != nil {
		return nil, err
	}

	geoGroup, ok := parsed.Lookup("geometry")
	if !ok {
		return nil, &driver.UnsupportedSchemaError{Code: codeName, Detail: "missing &geometry group"}
	}
	geoIn := driver.NewReader(geoGroup)
	if kind := strings.ToLower(geoIn.Str("magn_geometry", "miller")); kind != "miller" {
		return nil, &driver.UnrecognizedOptionError{Code: codeName, Group: "geometry", Key: "magn_geometry", Value: kind}
	}

	// minor_r is the LCFS minor radius in the deck's own reference
	// length; it converts every length-bearing quantity to canonical
	// units regardless of which Lref the deck was written with.
	majorR := geoIn.Float("major_r", 1.0)
	minorR := geoIn.Float("minor_r", 0)
	if minorR <= 0 {
		return nil, &driver.UnsupportedSchemaError{Code: codeName, Detail: "minor_r missing or not positive"}
	}

	m := model.New()

	geo, err := readGeometry(geoIn, majorR, minorR)
	if err != nil {
		return nil, err
	}
	m.Geometry = []*geometry.LocalGeometry{geo}
	geoIn.Leftover(codeName+".geometry.", m.Passthrough)

	if err := readSpecies(parsed, m, minorR); err != nil {
		return nil, err
	}
	if err := readNumerics(parsed, m, minorR, opts); err != nil {
		return nil, err
	}

	m.Species.UpdateDerived()
	m.Species.CheckQuasineutrality(opts.Tables.NeutralityTolerance, opts.Logger)

	// Whole groups with no canonical mapping (&in_out, &units, ...)
	// ride through untouched.
	for _, g := range parsed.Groups() {
		switch g.Name {
		case "geometry", "species", "box", "general":
		default:
			r := driver.NewReader(g)
			r.Leftover(codeName+"."+g.Name+".", m.Passthrough)
		}
	}
	return m, nil
}

func readGeometry(in *driver.Reader, majorR, minorR float64) (*geometry.LocalGeometry, error) {
	p := geometry.Parameters{
		Rho:    in.Float("trpeps", 0.18) * majorR / minorR,
		Rmaj:   majorR / minorR,
		Z0:     in.Float("major_z", 0) / minorR,
		Q:      in.Float("q0", 2.0),
		Shat:   in.Float("shat", 1.0),
		Kappa:  in.Float("kappa", 1.0),
		SKappa: in.Float("s_kappa", 0),
		Delta:  in.Float("delta", 0),
		SDelta: in.Float("s_delta", 0),
		Zeta:   in.Float("zeta", 0),
		SZeta:  in.Float("s_zeta", 0),
		Shift:  in.Float("drr", 0),
		DZ0dr:  in.Float("drz", 0),
	}
	// amhd = -q^2 R0 beta' in deck lengths; beta' converts with one
	// inverse length.
	if amhd := in.Float("amhd", 0); amhd != 0 && majorR > 0 {
		p.BetaPrime = -amhd / (p.Q * p.Q * majorR) * minorR
	}
	if in.Has("sign_ip_cw") {
		p.IpSign = in.Int("sign_ip_cw", 1)
	}
	if in.Has("sign_bt_cw") {
		p.BtSign = in.Int("sign_bt_cw", 1)
	}
	p = geometry.NormalizeSigns(p, geometry.ParamsGENE)
	in.MarkUsed("rhostar")

	g, err := geometry.FromAnalyticParameters(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", codeName, err)
	}
	return g, nil
}

func readSpecies(parsed *deck.Deck, m *model.CanonicalModel, minorR float64) error {
	groups := parsed.GroupsNamed("species")
	if len(groups) == 0 {
		return &driver.UnsupportedSchemaError{Code: codeName, Detail: "no &species groups"}
	}
	for i, g := range groups {
		in := driver.NewReader(g)
		s := species.Species{
			Name:        in.Str("name", fmt.Sprintf("ion%d", i+1)),
			Charge:      in.Float("charge", 1),
			Mass:        in.Float("mass", 1),
			Density:     in.Float("dens", 1),
			Temperature: in.Float("temp", 1),
			// omn, omt are Lref/L gradients.
			InverseGradDens: in.Float("omn", 0) * minorR,
			InverseGradTemp: in.Float("omt", 0) * minorR,
		}
		m.Species.Add(s)
		in.Leftover(fmt.Sprintf("%s.species.%d.", codeName, i), m.Passthrough)
	}
	if m.Species.Electron() == nil {
		return &driver.UnsupportedSchemaError{Code: codeName, Detail: "no electron species in deck"}
	}
	return nil
}

func readNumerics(parsed *deck.Deck, m *model.CanonicalModel, minorR float64, opts driver.Options) error {
	box, ok := parsed.Lookup("box")
	if !ok {
		return &driver.UnsupportedSchemaError{Code: codeName, Detail: "missing &box group"}
	}
	boxIn := driver.NewReader(box)

	general, ok := parsed.Lookup("general")
	var genIn *driver.Reader
	if ok {
		genIn = driver.NewReader(general)
	} else {
		genIn = driver.NewReader(deck.New().Group("general"))
	}

	beta := genIn.Float("beta", 0)
	m.Numerics = numerics.Numerics{
		NRadial: boxIn.Int("nx0", 16),
		NKy:     boxIn.Int("nky0", 1),
		NTheta:  boxIn.Int("nz0", 24),
		NEnergy: boxIn.Int("nv0", 16),
		NPitch:  boxIn.Int("nw0", 8),
		NPeriod: 1,
		// GENE's gyroradius uses Bref = B0, so kymin carries over.
		KyMin:     boxIn.Float("kymin", 0.3),
		DeltaT:    genIn.Float("dt_max", 0) / minorR,
		MaxTime:   genIn.Float("simtimelim", 0) / minorR,
		Phi:       true,
		Apar:      beta > 0,
		Bpar:      genIn.Bool("bpar", false),
		Nonlinear: genIn.Bool("nonlinear", false),
		Beta:      beta,
	}
	boxIn.MarkUsed("n_spec")

	// hyp_z is the parallel hyperdiffusion amplitude; GENE's stencil is
	// fourth order.
	if hypZ := genIn.Float("hyp_z", 0); hypZ != 0 {
		m.Numerics.HyperStrength = hypZ
		m.Numerics.HyperOrder = 4
	}

	// coll is the normalized electron collision frequency in the deck's
	// time units. Decks that give physical references in &units instead
	// get it computed from Tref and nref.
	if e := m.Species.Electron(); e != nil {
		coll := genIn.Float("coll", 0)
		if coll == 0 {
			coll = collFromUnits(parsed, opts.Tables)
		}
		e.Collisionality = coll * minorR
		if err := m.Species.ScaleIonCollisionalities(); err != nil {
			return fmt.Errorf("%s: %w", codeName, err)
		}
	}
	genIn.MarkUsed("calc_dt")

	boxIn.Leftover(codeName+".box.", m.Passthrough)
	genIn.Leftover(codeName+".general.", m.Passthrough)
	return nil
}

// collFromUnits derives the GENE-normalized electron collision
// frequency nu_ee * Lref/cref from the physical references in the
// &units group: Tref in keV, nref in 1e19 m^-3, Lref in metres, mref in
// proton masses (deuterium when absent). Values are read straight off
// the group so the keys still ride through as passthrough.
func collFromUnits(parsed *deck.Deck, tables *config.ReferenceTables) float64 {
	g, ok := parsed.Lookup("units")
	if !ok {
		return 0
	}
	tref := g.Float("tref", 0)
	nref := g.Float("nref", 0)
	lref := g.Float("lref", 0)
	if tref <= 0 || nref <= 0 || lref <= 0 {
		return 0
	}
	mref := g.Float("mref", 0) * config.ProtonMass
	if mref <= 0 {
		mref = config.DeuteriumMass
	}

	teEV := tref * 1e3
	nu := species.ElectronCollisionFrequency(tables, nref*1e19, teEV)
	cref := math.Sqrt(teEV * config.ElementaryCharge / mref)
	return nu * lref / cref
}

func (d *Driver) Write(m *model.CanonicalModel, opts driver.Options) ([]byte, error) {
	opts = opts.WithDefaults()
	prep, err := driver.PrepareForWrite(codeName, m, d.Capabilities(), d.DefaultUnits(), opts)
	if err != nil {
		return nil, err
	}
	aspect := m.ReferenceBasis().AspectRatio
	if aspect <= 0 {
		return nil, &driver.UnsupportedFeatureError{Code: codeName, Feature: "a surface with nonpositive aspect ratio"}
	}
	minorR := 1.0 / aspect

	out := deck.New()

	box := out.Append("box")
	n := prep.Numerics
	box.SetInt("n_spec", prep.Species.Count())
	box.SetInt("nx0", n.NRadial)
	box.SetInt("nky0", n.NKy)
	box.SetInt("nz0", n.NTheta)
	box.SetInt("nv0", n.NEnergy)
	box.SetInt("nw0", n.NPitch)
	box.SetFloat("kymin", n.KyMin)
	driver.EmitPassthrough(codeName+".box.", prep.Passthrough, box)

	general := out.Append("general")
	general.SetBool("nonlinear", n.Nonlinear)
	general.SetFloat("beta", n.Beta)
	general.SetBool("bpar", n.Bpar)
	if e := prep.Species.Electron(); e != nil {
		general.SetFloat("coll", e.Collisionality)
	}
	if n.HyperStrength != 0 {
		general.SetFloat("hyp_z", n.HyperStrength)
	}
	if n.DeltaT > 0 {
		general.SetFloat("dt_max", n.DeltaT)
	}
	if n.MaxTime > 0 {
		general.SetFloat("simtimelim", n.MaxTime)
	}
	driver.EmitPassthrough(codeName+".general.", prep.Passthrough, general)

	geoOut := out.Append("geometry")
	geo := prep.Primary()
	p := geo.ToParameters(geometry.ParamsGENE)
	geoOut.SetString("magn_geometry", "miller")
	geoOut.SetFloat("trpeps", p.Rho/p.Rmaj)
	geoOut.SetFloat("major_r", p.Rmaj)
	geoOut.SetFloat("major_z", p.Z0)
	geoOut.SetFloat("minor_r", minorR)
	geoOut.SetFloat("q0", p.Q)
	geoOut.SetFloat("shat", p.Shat)
	geoOut.SetFloat("kappa", p.Kappa)
	geoOut.SetFloat("s_kappa", p.SKappa)
	geoOut.SetFloat("delta", p.Delta)
	geoOut.SetFloat("s_delta", p.SDelta)
	geoOut.SetFloat("zeta", p.Zeta)
	geoOut.SetFloat("s_zeta", p.SZeta)
	geoOut.SetFloat("drr", p.Shift)
	geoOut.SetFloat("drz", p.DZ0dr)
	geoOut.SetFloat("amhd", -p.Q*p.Q*p.Rmaj*p.BetaPrime)
	geoOut.SetInt("sign_ip_cw", p.IpSign)
	geoOut.SetInt("sign_bt_cw", p.BtSign)
	driver.EmitPassthrough(codeName+".geometry.", prep.Passthrough, geoOut)

	for i, s := range prep.Species.All() {
		sp := out.Append("species")
		sp.SetString("name", s.Name)
		sp.SetFloat("mass", s.Mass)
		sp.SetFloat("charge", s.Charge)
		sp.SetFloat("temp", s.Temperature)
		sp.SetFloat("dens", s.Density)
		sp.SetFloat("omt", s.InverseGradTemp)
		sp.SetFloat("omn", s.InverseGradDens)
		driver.EmitPassthrough(fmt.Sprintf("%s.species.%d.", codeName, i), prep.Passthrough, sp)
	}

	emitForeignGroups(prep.Passthrough, out)

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

// emitForeignGroups recreates passthrough-only namelist groups
// (&in_out, &units, ...) that the mapping never touches.
func emitForeignGroups(p *model.Passthrough, out *deck.Deck) {
	prefix := codeName + "."
	for _, key := range p.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		groupName, k, ok := strings.Cut(rest, ".")
		if !ok {
			continue
		}
		switch groupName {
		case "box", "general", "geometry", "species":
			continue
		}
		raw, _ := p.Get(key)
		out.Group(groupName).SetRaw(k, raw)
	}
}
