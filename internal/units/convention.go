package units

import (
	"fmt"
	"math"
)

// LengthRef identifies which equilibrium length a convention normalises to.
type LengthRef string

const (
	LengthMinorRadius LengthRef = "minor_radius"
	LengthMajorRadius LengthRef = "major_radius"
)

// FieldRef identifies which magnetic field a convention normalises to.
type FieldRef string

const (
	// FieldB0 is the toroidal field at the flux-surface centroid major
	// radius, f_psi / Rmajor.
	FieldB0 FieldRef = "B0"

	// FieldBunit is the GACODE effective field q/r dpsi/dr.
	FieldBunit FieldRef = "Bunit"
)

// VelocityRef identifies the thermal-velocity convention. The two differ
// by a constant factor of sqrt(2).
type VelocityRef string

const (
	// VelocityNRL is sqrt(Tref/mref).
	VelocityNRL VelocityRef = "nrl"

	// VelocityMostProbable is sqrt(2 Tref/mref), used by GS2.
	VelocityMostProbable VelocityRef = "most_probable"
)

// Convention names the normalization basis a code uses: which species
// supplies the reference temperature, density and mass, and which
// equilibrium quantities anchor length and field.
type Convention struct {
	Name string

	TempSpecies    string // species supplying Tref
	DensitySpecies string // species supplying nref
	MassSpecies    string // species supplying mref

	Length   LengthRef
	Field    FieldRef
	Velocity VelocityRef
}

// The conventions of the supported code families. TGLF shares the CGYRO
// (GACODE) convention.
var (
	ConventionPyrokinetics = Convention{
		Name:           "pyrokinetics",
		TempSpecies:    "electron",
		DensitySpecies: "electron",
		MassSpecies:    "deuterium",
		Length:         LengthMinorRadius,
		Field:          FieldB0,
		Velocity:       VelocityNRL,
	}

	ConventionCGYRO = Convention{
		Name:           "cgyro",
		TempSpecies:    "electron",
		DensitySpecies: "electron",
		MassSpecies:    "deuterium",
		Length:         LengthMinorRadius,
		Field:          FieldBunit,
		Velocity:       VelocityNRL,
	}

	ConventionGENE = Convention{
		Name:           "gene",
		TempSpecies:    "electron",
		DensitySpecies: "electron",
		MassSpecies:    "deuterium",
		Length:         LengthMajorRadius,
		Field:          FieldB0,
		Velocity:       VelocityNRL,
	}

	ConventionGS2 = Convention{
		Name:           "gs2",
		TempSpecies:    "electron",
		DensitySpecies: "electron",
		MassSpecies:    "deuterium",
		Length:         LengthMinorRadius,
		Field:          FieldB0,
		Velocity:       VelocityMostProbable,
	}
)

// ConventionByName resolves a convention from its name.
func ConventionByName(name string) (Convention, error) {
	switch name {
	case "pyrokinetics":
		return ConventionPyrokinetics, nil
	case "cgyro", "tglf":
		return ConventionCGYRO, nil
	case "gene":
		return ConventionGENE, nil
	case "gs2":
		return ConventionGS2, nil
	}
	return Convention{}, fmt.Errorf("units: unknown convention %q", name)
}

// velocityFactor returns the multiplier applied to sqrt(Tref/mref) for
// this convention's thermal velocity.
func (c Convention) velocityFactor() float64 {
	if c.Velocity == VelocityMostProbable {
		return math.Sqrt2
	}
	return 1.0
}
