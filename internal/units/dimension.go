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

// Package units implements the normalization bases used by gyrokinetic
// codes and the dimensional algebra needed to convert quantities between
// them. A System is immutable once constructed; conversions build new
// systems rather than mutating in place.
package units

import (
	"fmt"
	"strings"
)

// Dimension is a vector of exponents over the five base dimensions:
// length, mass, time, temperature and charge. Temperature is tracked as
// its own base dimension; the thermal-velocity relation vref^2 = tref/mref
// absorbs the Boltzmann constant the way plasma codes do, so derived
// units carry the converted exponents, not a stray k_B.
type Dimension struct {
	Length      int
	Mass        int
	Time        int
	Temperature int
	Charge      int
}

// Base dimensions and common composites.
var (
	Dimensionless = Dimension{}
	DimLength     = Dimension{Length: 1}
	DimMass       = Dimension{Mass: 1}
	DimTime       = Dimension{Time: 1}
	DimTemp       = Dimension{Temperature: 1}
	DimCharge     = Dimension{Charge: 1}
	DimVelocity   = Dimension{Length: 1, Time: -1}
	DimFrequency  = Dimension{Time: -1}
	DimDensity    = Dimension{Length: -3}
	// DimBField is kg/(C s), the SI dimension of magnetic flux density.
	DimBField = Dimension{Mass: 1, Charge: -1, Time: -1}
)

// Mul returns the dimension of a product of quantities.
func (d Dimension) Mul(o Dimension) Dimension {
	return Dimension{
		Length:      d.Length + o.Length,
		Mass:        d.Mass + o.Mass,
		Time:        d.Time + o.Time,
		Temperature: d.Temperature + o.Temperature,
		Charge:      d.Charge + o.Charge,
	}
}

// Div returns the dimension of a quotient of quantities.
func (d Dimension) Div(o Dimension) Dimension {
	return Dimension{
		Length:      d.Length - o.Length,
		Mass:        d.Mass - o.Mass,
		Time:        d.Time - o.Time,
		Temperature: d.Temperature - o.Temperature,
		Charge:      d.Charge - o.Charge,
	}
}

// Pow raises every exponent by n.
func (d Dimension) Pow(n int) Dimension {
	return Dimension{
		Length:      d.Length * n,
		Mass:        d.Mass * n,
		Time:        d.Time * n,
		Temperature: d.Temperature * n,
		Charge:      d.Charge * n,
	}
}

// IsDimensionless reports whether all exponents are zero.
func (d Dimension) IsDimensionless() bool {
	return d == Dimension{}
}

func (d Dimension) String() string {
	if d.IsDimensionless() {
		return "1"
	}
	var parts []string
	appendDim := func(sym string, exp int) {
		switch {
		case exp == 1:
			parts = append(parts, sym)
		case exp != 0:
			parts = append(parts, fmt.Sprintf("%s^%d", sym, exp))
		}
	}
	appendDim("L", d.Length)
	appendDim("M", d.Mass)
	appendDim("T", d.Time)
	appendDim("Θ", d.Temperature)
	appendDim("Q", d.Charge)
	return strings.Join(parts, " ")
}

// Unit couples a dimension vector with a scale: the magnitude of one unit
// expressed in the package's SI-anchored base (metres, kilograms, seconds,
// electronvolts, coulombs).
type Unit struct {
	Name  string
	Scale float64
	Dim   Dimension
}

// Mul returns the product unit a*b.
func (u Unit) Mul(o Unit) Unit {
	return Unit{
		Name:  u.Name + "*" + o.Name,
		Scale: u.Scale * o.Scale,
		Dim:   u.Dim.Mul(o.Dim),
	}
}

// Div returns the quotient unit a/b.
func (u Unit) Div(o Unit) Unit {
	return Unit{
		Name:  u.Name + "/" + o.Name,
		Scale: u.Scale / o.Scale,
		Dim:   u.Dim.Div(o.Dim),
	}
}

// IncompatibleDimensionError reports a conversion between units whose
// base-dimension vectors differ. It always indicates a caller bug and is
// never silently coerced.
type IncompatibleDimensionError struct {
	From, To Unit
}

func (e *IncompatibleDimensionError) Error() string {
	return fmt.Sprintf("units: cannot convert %q [%s] to %q [%s]: dimensions differ",
		e.From.Name, e.From.Dim, e.To.Name, e.To.Dim)
}

// UnderspecifiedSystemError reports a derived unit that cannot be formed
// because the stored reference set is missing a physical value.
type UnderspecifiedSystemError struct {
	System   string
	Quantity string
	Missing  string
}

func (e *UnderspecifiedSystemError) Error() string {
	return fmt.Sprintf("units: system %q cannot derive %q: reference %s is not set",
		e.System, e.Quantity, e.Missing)
}

// Convert re-expresses value from one unit in another. It is pure
// dimensional analysis: no physical-model assumptions, and the round trip
// Convert(Convert(x, a, b), b, a) recovers x to floating-point tolerance.
func Convert(value float64, from, to Unit) (float64, error) {
	if from.Dim != to.Dim {
		return 0, &IncompatibleDimensionError{From: from, To: to}
	}
	return value * from.Scale / to.Scale, nil
}
