package units

import (
	"math"

	"github.com/fusionkit/gyroconv/internal/config"
)

// System is a self-consistent basis of reference quantities. Physical
// values may be NaN when the source deck carries no physical anchors (a
// pure normalized deck); conversions that need them fail with
// UnderspecifiedSystemError instead of propagating NaN.
type System struct {
	convention Convention

	lref float64 // m
	mref float64 // kg
	tref float64 // eV
	nref float64 // m^-3
	bref float64 // T
}

// FromReference constructs a System from explicit physical reference
// values: length [m], mass [kg], temperature [eV], magnetic field [T]
// and density [m^-3]. The reference velocity is derived, never stored.
func FromReference(conv Convention, length, mass, temp, field, density float64) *System {
	return &System{
		convention: conv,
		lref:       length,
		mref:       mass,
		tref:       temp,
		nref:       density,
		bref:       field,
	}
}

// Simulation constructs a System with no physical anchors. All relative
// conversions between conventions still work through a Basis; absolute
// conversions to SI fail as underspecified.
func Simulation(conv Convention) *System {
	nan := math.NaN()
	return FromReference(conv, nan, nan, nan, nan, nan)
}

// Convention returns the normalization convention this system implements.
func (s *System) Convention() Convention { return s.convention }

// trefJoule returns the reference temperature as an energy in joules.
func (s *System) trefJoule() float64 {
	return s.tref * config.ElementaryCharge
}

// vref returns the reference velocity in m/s under this convention.
func (s *System) vref() float64 {
	return s.convention.velocityFactor() * math.Sqrt(s.trefJoule()/s.mref)
}

func (s *System) base(name string, scale float64, dim Dimension, missing string) (Unit, error) {
	if math.IsNaN(scale) {
		return Unit{}, &UnderspecifiedSystemError{
			System:   s.convention.Name,
			Quantity: name,
			Missing:  missing,
		}
	}
	return Unit{Name: name + "_" + s.convention.Name, Scale: scale, Dim: dim}, nil
}

// Derive forms a named derived unit from the stored reference set. The
// returned Unit is anchored in SI (temperature in eV), so Convert can
// move values between any two systems' derived units.
func (s *System) Derive(quantity string) (Unit, error) {
	switch quantity {
	case "lref":
		return s.base("lref", s.lref, DimLength, "length")
	case "mref":
		return s.base("mref", s.mref, DimMass, "mass")
	case "tref":
		return s.base("tref", s.tref, DimTemp, "temperature")
	case "nref":
		return s.base("nref", s.nref, DimDensity, "density")
	case "bref":
		return s.base("bref", s.bref, DimBField, "magnetic field")
	case "vref":
		return s.base("vref", s.vref(), DimVelocity, "temperature or mass")
	case "tref_joule":
		// Thermal energy; k_B absorbed by construction.
		return s.base("tref", s.trefJoule(), Dimension{Mass: 1, Length: 2, Time: -2}, "temperature")
	case "rhoref":
		// Reference gyroradius mref vref / (e bref).
		return s.base("rhoref", s.mref*s.vref()/(config.ElementaryCharge*s.bref),
			DimLength, "mass, temperature or magnetic field")
	case "omegaref":
		// Reference gyrofrequency e bref / mref.
		return s.base("omegaref", config.ElementaryCharge*s.bref/s.mref,
			DimFrequency, "mass or magnetic field")
	case "nuref":
		// Reference collision frequency vref / lref.
		return s.base("nuref", s.vref()/s.lref, DimFrequency, "length, temperature or mass")
	case "pref":
		// Reference pressure nref tref.
		return s.base("pref", s.nref*s.trefJoule(),
			Dimension{Mass: 1, Length: -1, Time: -2}, "density or temperature")
	case "betaref":
		// 2 mu0 nref tref / bref^2, the dimensionless reference beta.
		return s.base("betaref", 2*config.Mu0*s.nref*s.trefJoule()/(s.bref*s.bref),
			Dimensionless, "density, temperature or magnetic field")
	}
	return Unit{}, &UnderspecifiedSystemError{
		System:   s.convention.Name,
		Quantity: quantity,
		Missing:  "formula (unknown derived quantity)",
	}
}

// RefKind labels a normalized quantity with the reference it is measured
// against, so a canonical model can be rescaled between conventions
// without knowing absolute physical values.
type RefKind string

const (
	KindLength        RefKind = "lref"
	KindInverseLength RefKind = "1/lref" // gradients a/L, wavenumbers in 1/lref
	KindMass          RefKind = "mref"
	KindTemperature   RefKind = "tref"
	KindDensity       RefKind = "nref"
	KindVelocity      RefKind = "vref"
	KindField         RefKind = "bref"
	KindFrequency     RefKind = "vref/lref" // collision frequencies, growth rates
	KindBeta          RefKind = "betaref"
	KindGyroradius    RefKind = "rhoref"
	KindWavenumber    RefKind = "1/rhoref" // binormal wavenumbers k_y rho
)

// Basis carries the equilibrium and kinetic ratios that relate one
// convention's references to another's. It is derived from the canonical
// model (geometry and species), never guessed.
type Basis struct {
	// AspectRatio is Rmajor / a_minor for the flux surface.
	AspectRatio float64

	// BunitOverB0 is the GACODE effective-field ratio for the surface.
	BunitOverB0 float64

	// SpeciesTemp maps species name to temperature relative to any common
	// anchor (conventionally the electron temperature).
	SpeciesTemp map[string]float64

	// SpeciesDensity maps species name to density relative to a common
	// anchor (conventionally the electron density).
	SpeciesDensity map[string]float64

	// SpeciesMass maps species name to mass relative to a common anchor.
	SpeciesMass map[string]float64
}

func (b Basis) ratio(table map[string]float64, from, to, what, system string) (float64, error) {
	if from == to {
		return 1.0, nil
	}
	fromVal, okFrom := table[from]
	toVal, okTo := table[to]
	if !okFrom || !okTo || toVal == 0 {
		return 0, &UnderspecifiedSystemError{
			System:   system,
			Quantity: what,
			Missing:  "species ratio " + from + "/" + to,
		}
	}
	return fromVal / toVal, nil
}

func (b Basis) lengthRatio(from, to Convention) (float64, error) {
	if from.Length == to.Length {
		return 1.0, nil
	}
	if math.IsNaN(b.AspectRatio) || b.AspectRatio == 0 {
		return 0, &UnderspecifiedSystemError{
			System:   to.Name,
			Quantity: "lref",
			Missing:  "aspect ratio",
		}
	}
	if from.Length == LengthMinorRadius {
		// a -> Rmajor
		return 1.0 / b.AspectRatio, nil
	}
	return b.AspectRatio, nil
}

func (b Basis) fieldRatio(from, to Convention) (float64, error) {
	if from.Field == to.Field {
		return 1.0, nil
	}
	if math.IsNaN(b.BunitOverB0) || b.BunitOverB0 == 0 {
		return 0, &UnderspecifiedSystemError{
			System:   to.Name,
			Quantity: "bref",
			Missing:  "bunit_over_b0",
		}
	}
	if from.Field == FieldB0 {
		return 1.0 / b.BunitOverB0, nil
	}
	return b.BunitOverB0, nil
}

func (b Basis) tempRatio(from, to Convention) (float64, error) {
	return b.ratio(b.SpeciesTemp, from.TempSpecies, to.TempSpecies, "tref", to.Name)
}

func (b Basis) densityRatio(from, to Convention) (float64, error) {
	return b.ratio(b.SpeciesDensity, from.DensitySpecies, to.DensitySpecies, "nref", to.Name)
}

func (b Basis) massRatio(from, to Convention) (float64, error) {
	return b.ratio(b.SpeciesMass, from.MassSpecies, to.MassSpecies, "mref", to.Name)
}

func (b Basis) velocityRatio(from, to Convention) (float64, error) {
	tr, err := b.tempRatio(from, to)
	if err != nil {
		return 0, err
	}
	mr, err := b.massRatio(from, to)
	if err != nil {
		return 0, err
	}
	return from.velocityFactor() / to.velocityFactor() * math.Sqrt(tr/mr), nil
}

// Factor computes the multiplier that re-expresses a quantity of the
// given reference kind from one system's basis in another's:
// value_to = value_from * factor. Both directions compose to exactly 1.
func Factor(kind RefKind, from, to *System, b Basis) (float64, error) {
	fc, tc := from.convention, to.convention
	switch kind {
	case KindLength:
		return b.lengthRatio(fc, tc)
	case KindInverseLength:
		r, err := b.lengthRatio(fc, tc)
		if err != nil {
			return 0, err
		}
		return 1.0 / r, nil
	case KindMass:
		return b.massRatio(fc, tc)
	case KindTemperature:
		return b.tempRatio(fc, tc)
	case KindDensity:
		return b.densityRatio(fc, tc)
	case KindVelocity:
		return b.velocityRatio(fc, tc)
	case KindField:
		return b.fieldRatio(fc, tc)
	case KindFrequency:
		v, err := b.velocityRatio(fc, tc)
		if err != nil {
			return 0, err
		}
		l, err := b.lengthRatio(fc, tc)
		if err != nil {
			return 0, err
		}
		return v / l, nil
	case KindBeta:
		n, err := b.densityRatio(fc, tc)
		if err != nil {
			return 0, err
		}
		t, err := b.tempRatio(fc, tc)
		if err != nil {
			return 0, err
		}
		f, err := b.fieldRatio(fc, tc)
		if err != nil {
			return 0, err
		}
		return f * f / (n * t), nil
	case KindGyroradius:
		m, err := b.massRatio(fc, tc)
		if err != nil {
			return 0, err
		}
		v, err := b.velocityRatio(fc, tc)
		if err != nil {
			return 0, err
		}
		f, err := b.fieldRatio(fc, tc)
		if err != nil {
			return 0, err
		}
		return m * v / f, nil
	case KindWavenumber:
		r, err := Factor(KindGyroradius, from, to, b)
		if err != nil {
			return 0, err
		}
		return 1.0 / r, nil
	}
	return 0, &UnderspecifiedSystemError{
		System:   tc.Name,
		Quantity: string(kind),
		Missing:  "rescale rule (unknown reference kind)",
	}
}
