// Package numerics carries the canonical grid, resolution and timestep
// description of a simulation, independent of any one code's variable
// names. Drivers translate it to native grid variables through AdaptTo.
package numerics

import (
	"fmt"
	"math"
)

// Numerics is the canonical numerical setup. Wavenumbers are in units
// of the inverse reference gyroradius; times in lref/vref.
type Numerics struct {
	// Resolutions, one per dimension.
	NRadial int // radial modes or grid points
	NKy     int // non-negative binormal modes
	NTheta  int // parallel (poloidal) grid points
	NEnergy int // velocity-space energy grid
	NPitch  int // velocity-space pitch-angle grid

	// NPeriod counts 2π segments of the parallel domain (ballooning
	// representation); 1 for a single poloidal turn.
	NPeriod int

	// KyMin is the smallest nonzero binormal wavenumber ky*rhoref. The
	// binormal box length is 2π/KyMin.
	KyMin float64

	// Theta0 is the ballooning angle of the lowest radial mode.
	Theta0 float64

	// DeltaT is the timestep and MaxTime the simulated span, in
	// lref/vref.
	DeltaT  float64
	MaxTime float64

	// Field switches.
	Phi  bool
	Apar bool
	Bpar bool

	Nonlinear bool

	// Beta is the electron beta in the owning system's betaref.
	Beta float64

	// Numerical dissipation.
	HyperOrder    int
	HyperStrength float64
}

// GridLayout describes how a target code counts its binormal grid.
// Some codes count modes, others wavenumbers; some specify box length,
// others the minimum wavenumber.
type GridLayout struct {
	// CountsModes codes store the full signed mode count 2*NKy-1
	// instead of the non-negative wavenumber count.
	CountsModes bool

	// SpecifiesBoxLength codes store the binormal box length in
	// gyroradii instead of KyMin.
	SpecifiesBoxLength bool

	// MaxNTheta caps the parallel resolution (0 for no cap).
	MaxNTheta int
}

// TargetGrid is the layout-adapted view of the binormal/parallel grid a
// driver serializes from.
type TargetGrid struct {
	NKy       int
	NModes    int
	KyMin     float64
	BoxLength float64
	NTheta    int
}

// AdaptTo maps the canonical grid onto a target layout. The identities
// are NModes = 2*NKy - 1 and BoxLength = 2π/KyMin.
func (n Numerics) AdaptTo(layout GridLayout) TargetGrid {
	tg := TargetGrid{
		NKy:    n.NKy,
		NModes: 2*n.NKy - 1,
		KyMin:  n.KyMin,
		NTheta: n.NTheta,
	}
	if n.KyMin > 0 {
		tg.BoxLength = 2 * math.Pi / n.KyMin
	}
	if layout.MaxNTheta > 0 && tg.NTheta > layout.MaxNTheta {
		tg.NTheta = layout.MaxNTheta
	}
	return tg
}

// FromTargetGrid recovers the canonical binormal fields from a native
// layout, inverting AdaptTo.
func FromTargetGrid(tg TargetGrid, layout GridLayout) (nky int, kyMin float64) {
	nky = tg.NKy
	if layout.CountsModes && tg.NModes > 0 {
		nky = (tg.NModes + 1) / 2
	}
	kyMin = tg.KyMin
	if layout.SpecifiesBoxLength && tg.BoxLength > 0 {
		kyMin = 2 * math.Pi / tg.BoxLength
	}
	return nky, kyMin
}

// Validate enforces the canonical invariants: positive integer
// resolutions and positive real extents.
func (n Numerics) Validate() error {
	resolutions := []struct {
		name  string
		value int
	}{
		{"radial", n.NRadial},
		{"binormal", n.NKy},
		{"parallel", n.NTheta},
	}
	for _, r := range resolutions {
		if r.value <= 0 {
			return fmt.Errorf("numerics: %s resolution must be a positive integer, got %d", r.name, r.value)
		}
	}
	// Velocity-space grids are optional for flux-tube eigensolvers
	// (TGLF), but never negative.
	if n.NEnergy < 0 || n.NPitch < 0 {
		return fmt.Errorf("numerics: velocity-space resolutions must be >= 0")
	}
	if n.Nonlinear && n.KyMin <= 0 {
		return fmt.Errorf("numerics: nonlinear runs need a positive minimum wavenumber, got %g", n.KyMin)
	}
	if n.KyMin < 0 {
		return fmt.Errorf("numerics: minimum wavenumber must be >= 0, got %g", n.KyMin)
	}
	if n.DeltaT < 0 || n.MaxTime < 0 {
		return fmt.Errorf("numerics: timestep and simulated span must be >= 0")
	}
	if n.HyperOrder < 0 {
		return fmt.Errorf("numerics: dissipation order must be >= 0, got %d", n.HyperOrder)
	}
	return nil
}
