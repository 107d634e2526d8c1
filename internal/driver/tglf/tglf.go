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

// Package tglf reads and writes TGLF input decks (input.tglf). TGLF is
// a quasilinear eigenvalue solver in the GACODE suite; it shares the
// CGYRO normalization (Bunit, minor radius) but folds the shear and
// pressure gradient into Q_PRIME and P_PRIME composites.
package tglf

import (
	"fmt"
	"math"

	"github.com/fusionkit/gyroconv/internal/deck"
	"github.com/fusionkit/gyroconv/internal/driver"
	"github.com/fusionkit/gyroconv/internal/geometry"
	"github.com/fusionkit/gyroconv/internal/model"
	"github.com/fusionkit/gyroconv/internal/numerics"
	"github.com/fusionkit/gyroconv/internal/species"
	"github.com/fusionkit/gyroconv/internal/units"
)

const codeName = "tglf"

// maxParallelBasis caps NXGRID; TGLF's Hermite basis does not go
// beyond this.
const maxParallelBasis = 16

func init() {
	driver.Register(&Driver{})
}

// Driver implements the TGLF frontend. Stateless.
type Driver struct{}

func (*Driver) Name() string { return codeName }

func (*Driver) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		Squareness:    true,
		HigherMoments: false,
		Apar:          true,
		Bpar:          true,
		Nonlinear:     false,
		Grid:          numerics.GridLayout{MaxNTheta: maxParallelBasis},
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

	if in.Has("geometry_flag") && in.Int("geometry_flag", 1) != 1 {
		return nil, &driver.UnrecognizedOptionError{
			Code: codeName, Key: "GEOMETRY_FLAG",
			Value: fmt.Sprint(in.Int("geometry_flag", 1)),
		}
	}
	in.MarkUsed("geometry_flag", "units")

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

	// ZEFF stays unconsumed: the canonical model re-derives it from the
	// species list, and the passthrough copy wins on a TGLF-to-TGLF trip.
	m.Species.CheckQuasineutrality(opts.Tables.NeutralityTolerance, opts.Logger)
	in.Leftover(codeName+".", m.Passthrough)

	canonical, err := m.RenormalizeWith(units.Simulation(units.ConventionPyrokinetics), m.ReferenceBasis())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", codeName, err)
	}
	return canonical, nil
}

func readGeometry(in *driver.Reader) (*geometry.LocalGeometry, error) {
	rho := in.Float("rmin_loc", 0.5)
	q := in.Float("q_loc", 2.0)

	p := geometry.Parameters{
		Rho:    rho,
		Rmaj:   in.Float("rmaj_loc", 3.0),
		Z0:     in.Float("zmaj_loc", 0),
		DZ0dr:  in.Float("dzmajdx_loc", 0),
		Shift:  in.Float("drmajdx_loc", 0),
		Kappa:  in.Float("kappa_loc", 1.0),
		SKappa: in.Float("s_kappa_loc", 0),
		Delta:  in.Float("delta_loc", 0),
		SDelta: in.Float("s_delta_loc", 0),
		Zeta:   in.Float("zeta_loc", 0),
		SZeta:  in.Float("s_zeta_loc", 0),
		Q:      q,
	}
	// TGLF stores composites instead of shear and beta gradient:
	//   Q_PRIME = shat (q/r)^2, P_PRIME = (q/r) beta'/(8 pi).
	if rho != 0 && q != 0 {
		p.Shat = in.Float("q_prime_loc", 0) * (rho / q) * (rho / q)
		p.BetaPrime = in.Float("p_prime_loc", 0) * 8 * math.Pi * rho / q
	}
	if in.Has("sign_it") {
		p.IpSign = in.Int("sign_it", 1)
	}
	if in.Has("sign_bt") {
		p.BtSign = in.Int("sign_bt", 1)
	}
	p = geometry.NormalizeSigns(p, geometry.ParamsTGLF)
	in.MarkUsed("drmindx_loc")

	g, err := geometry.FromAnalyticParameters(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", codeName, err)
	}
	return g, nil
}

func readSpecies(in *driver.Reader, m *model.CanonicalModel, opts driver.Options) error {
	ns := in.Int("ns", 0)
	if ns <= 0 {
		return &driver.UnsupportedSchemaError{Code: codeName, Detail: "NS missing or not positive"}
	}
	for i := 1; i <= ns; i++ {
		charge := in.Float(fmt.Sprintf("zs_%d", i), 1)
		mass := in.Float(fmt.Sprintf("mass_%d", i), 1)
		m.Species.Add(species.Species{
			Name:            driver.GuessSpeciesName(opts.Tables, charge, mass, i),
			Charge:          charge,
			Mass:            mass,
			Density:         in.Float(fmt.Sprintf("as_%d", i), 1),
			Temperature:     in.Float(fmt.Sprintf("taus_%d", i), 1),
			InverseGradDens: in.Float(fmt.Sprintf("rlns_%d", i), 0),
			InverseGradTemp: in.Float(fmt.Sprintf("rlts_%d", i), 0),
			Velocity:        in.Float(fmt.Sprintf("vpar_%d", i), 0),
			InverseGradVel:  in.Float(fmt.Sprintf("vpar_shear_%d", i), 0),
		})
	}
	if m.Species.Electron() == nil {
		return &driver.UnsupportedSchemaError{Code: codeName, Detail: "no electron species in deck"}
	}
	m.Species.Electron().Collisionality = in.Float("xnue", 0)
	if err := m.Species.ScaleIonCollisionalities(); err != nil {
		return fmt.Errorf("%s: %w", codeName, err)
	}
	m.Species.UpdateDerived()
	return nil
}

func readNumerics(in *driver.Reader, m *model.CanonicalModel) {
	layout := numerics.GridLayout{MaxNTheta: maxParallelBasis}
	nky, kyMin := numerics.FromTargetGrid(numerics.TargetGrid{
		NKy:   in.Int("nky", 12),
		KyMin: in.Float("ky", 0.3),
	}, layout)
	m.Numerics = numerics.Numerics{
		NRadial: in.Int("nbasis_max", 4),
		NKy:     nky,
		NTheta:  in.Int("nxgrid", maxParallelBasis),
		NPeriod: 1,
		KyMin:   kyMin,
		Phi:     true,
		Apar:    in.Bool("use_bper", false),
		Bpar:    in.Bool("use_bpar", false),
		Beta:    in.Float("betae", 0),
	}
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
	p := geo.ToParameters(geometry.ParamsTGLF)

	g.SetString("units", "CGYRO")
	g.SetInt("geometry_flag", 1)
	g.SetFloat("rmin_loc", p.Rho)
	g.SetFloat("rmaj_loc", p.Rmaj)
	g.SetFloat("zmaj_loc", p.Z0)
	g.SetFloat("drmindx_loc", 1.0)
	g.SetFloat("drmajdx_loc", p.Shift)
	g.SetFloat("dzmajdx_loc", p.DZ0dr)
	g.SetFloat("kappa_loc", p.Kappa)
	g.SetFloat("s_kappa_loc", p.SKappa)
	g.SetFloat("delta_loc", p.Delta)
	g.SetFloat("s_delta_loc", p.SDelta)
	g.SetFloat("zeta_loc", p.Zeta)
	g.SetFloat("s_zeta_loc", p.SZeta)
	g.SetFloat("q_loc", p.Q)
	if p.Rho != 0 && p.Q != 0 {
		g.SetFloat("q_prime_loc", p.Shat*(p.Q/p.Rho)*(p.Q/p.Rho))
		g.SetFloat("p_prime_loc", p.Q/p.Rho*p.BetaPrime/(8*math.Pi))
	}
	g.SetInt("sign_bt", p.BtSign)
	g.SetInt("sign_it", p.IpSign)

	n := prep.Numerics
	tg := n.AdaptTo(d.Capabilities().Grid)
	g.SetFloat("betae", n.Beta)
	g.SetBool("use_bper", n.Apar)
	g.SetBool("use_bpar", n.Bpar)
	g.SetFloat("ky", tg.KyMin)
	g.SetInt("nky", tg.NKy)
	g.SetInt("nxgrid", tg.NTheta)
	g.SetInt("nbasis_max", n.NRadial)

	if e := prep.Species.Electron(); e != nil {
		g.SetFloat("xnue", e.Collisionality)
	}
	g.SetFloat("zeff", prep.Species.Zeff)

	g.SetInt("ns", prep.Species.Count())
	for i, s := range prep.Species.All() {
		idx := i + 1
		g.SetFloat(fmt.Sprintf("zs_%d", idx), s.Charge)
		g.SetFloat(fmt.Sprintf("mass_%d", idx), s.Mass)
		g.SetFloat(fmt.Sprintf("as_%d", idx), s.Density)
		g.SetFloat(fmt.Sprintf("taus_%d", idx), s.Temperature)
		g.SetFloat(fmt.Sprintf("rlns_%d", idx), s.InverseGradDens)
		g.SetFloat(fmt.Sprintf("rlts_%d", idx), s.InverseGradTemp)
		g.SetFloat(fmt.Sprintf("vpar_%d", idx), s.Velocity)
		g.SetFloat(fmt.Sprintf("vpar_shear_%d", idx), s.InverseGradVel)
	}

	driver.EmitPassthrough(codeName+".", prep.Passthrough, g)

	style := deck.Style{
		FloatDigits: opts.Tables.FloatDigits,
		UpperKeys:   true,
		BoolTrue:    "T",
		BoolFalse:   "F",
	}
	if opts.Tables.AlignColumns {
		style.AlignColumn = 16
	}
	return []byte(out.Render(style)), nil
}
