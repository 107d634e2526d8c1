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

// Package geometry holds the canonical flux-surface representation and
// the fitting routines that recover shape parameters from numerically
// sampled flux-surface contours.
//
// The canonical shape is the Miller eXtended Harmonic (MXH)
// parameterization (Arbon, Candy, Belli, PPCF 63 012001):
//
//	R(r, θ) = Rmaj(r) + r cos(θR)
//	Z(r, θ) = Z0(r) + r κ(r) sin(θ)
//	θR = θ + Σ_n [cn(r) cos(nθ) + sn(r) sin(nθ)]
//
// Plain Miller surfaces are the special case sn = (0, arcsin δ, -ζ, 0).
// All lengths are normalised to the last-closed-flux-surface minor radius.
package geometry

import (
	"fmt"
	"math"
)

// DefaultMoments is the number of shaping moments carried when none is
// requested. Four moments resolve elongation, triangularity and
// squareness with one spare harmonic.
const DefaultMoments = 4

// LocalGeometry is the canonical description of one flux surface. It is
// owned by the canonical model of a single conversion pass; drivers read
// from it and never share instances across conversions.
type LocalGeometry struct {
	// PsiN labels the surface by normalised poloidal flux.
	PsiN float64

	// Rho is the normalised minor radius r/a of the surface.
	Rho float64

	// Rmaj is the normalised flux-surface-centre major radius R0/a.
	Rmaj float64

	// Z0 is the normalised midplane elevation Zmid/a.
	Z0 float64

	// Q is the safety factor and Shat the magnetic shear r/q dq/dr.
	Q    float64
	Shat float64

	// Kappa is the elongation, SKappa its shear r/κ dκ/dr.
	Kappa  float64
	SKappa float64

	// Shift is the Shafranov shift dRmaj/dr, DZ0dr the midplane
	// elevation shear.
	Shift float64
	DZ0dr float64

	// Cn, Sn are the cosine and sine shaping moments of θR; DCndr and
	// DSndr their radial derivatives. All four share one length.
	Cn    []float64
	Sn    []float64
	DCndr []float64
	DSndr []float64

	// BetaPrime is 2 mu0 dp/dr / B0^2 in normalised units.
	BetaPrime float64

	// FitResidual is the relative residual of the trace fit that
	// produced this surface, zero for analytic construction.
	FitResidual float64

	// IpSign and BtSign record the plasma-current and toroidal-field
	// directions of the source deck (+1 or -1).
	IpSign int
	BtSign int
}

// Parameters is the analytic (Miller-style) parameter set used for
// direct construction when the source code already exposes shape
// parameters, and for re-emission under a target convention.
type Parameters struct {
	PsiN   float64
	Rho    float64
	Rmaj   float64
	Z0     float64
	Q      float64
	Shat   float64
	Kappa  float64
	SKappa float64
	Delta  float64
	SDelta float64
	Zeta   float64
	SZeta  float64
	Shift  float64
	DZ0dr  float64

	BetaPrime float64

	IpSign int
	BtSign int
}

// FromAnalyticParameters constructs the canonical surface from Miller
// parameters. This is a straight mapping with no fitting: δ and ζ land
// in the first and second sine moments.
func FromAnalyticParameters(p Parameters) (*LocalGeometry, error) {
	if p.Kappa <= 0 {
		return nil, fmt.Errorf("geometry: elongation must be > 0, got %g", p.Kappa)
	}
	if p.Q == 0 {
		return nil, fmt.Errorf("geometry: safety factor must be nonzero")
	}
	if math.Abs(p.Delta) >= 1 {
		return nil, fmt.Errorf("geometry: |triangularity| must be < 1, got %g", p.Delta)
	}

	g := &LocalGeometry{
		PsiN:      p.PsiN,
		Rho:       p.Rho,
		Rmaj:      p.Rmaj,
		Z0:        p.Z0,
		Q:         p.Q,
		Shat:      p.Shat,
		Kappa:     p.Kappa,
		SKappa:    p.SKappa,
		Shift:     p.Shift,
		DZ0dr:     p.DZ0dr,
		BetaPrime: p.BetaPrime,
		Cn:        make([]float64, DefaultMoments),
		Sn:        make([]float64, DefaultMoments),
		DCndr:     make([]float64, DefaultMoments),
		DSndr:     make([]float64, DefaultMoments),
		IpSign:    signOrDefault(p.IpSign),
		BtSign:    signOrDefault(p.BtSign),
	}
	g.SetDelta(p.Delta)
	g.SetSDelta(p.SDelta)
	g.SetZeta(p.Zeta)
	g.SetSZeta(p.SZeta)
	return g, nil
}

func signOrDefault(s int) int {
	if s < 0 {
		return -1
	}
	return 1
}

// NMoments returns the number of shaping moments carried.
func (g *LocalGeometry) NMoments() int { return len(g.Sn) }

// Delta is the triangularity, sin of the first sine moment.
func (g *LocalGeometry) Delta() float64 { return math.Sin(g.Sn[1]) }

// SetDelta sets the triangularity by writing the first sine moment.
func (g *LocalGeometry) SetDelta(delta float64) { g.Sn[1] = math.Asin(delta) }

// SDelta is the triangularity shear r dδ/dr.
func (g *LocalGeometry) SDelta() float64 {
	d := g.Delta()
	return g.DSndr[1] * math.Sqrt(1-d*d)
}

// SetSDelta sets the triangularity shear.
func (g *LocalGeometry) SetSDelta(sDelta float64) {
	d := g.Delta()
	g.DSndr[1] = sDelta / math.Sqrt(1-d*d)
}

// Zeta is the squareness, negative of the second sine moment.
func (g *LocalGeometry) Zeta() float64 { return -g.Sn[2] }

// SetZeta sets the squareness.
func (g *LocalGeometry) SetZeta(zeta float64) { g.Sn[2] = -zeta }

// SZeta is the squareness shear.
func (g *LocalGeometry) SZeta() float64 { return -g.DSndr[2] }

// SetSZeta sets the squareness shear.
func (g *LocalGeometry) SetSZeta(sZeta float64) { g.DSndr[2] = -sZeta }

// IsShaped reports whether the surface carries shaping beyond plain
// Miller (any moment other than sn[1], sn[2] nonzero).
func (g *LocalGeometry) IsShaped() bool {
	for n, c := range g.Cn {
		if c != 0 || g.DCndr[n] != 0 {
			return true
		}
	}
	for n, s := range g.Sn {
		if n == 1 || n == 2 {
			continue
		}
		if s != 0 || g.DSndr[n] != 0 {
			return true
		}
	}
	return false
}

// thetaR maps the geometric poloidal angle to the angle appearing in R.
func (g *LocalGeometry) thetaR(theta float64) float64 {
	tr := theta
	for n := range g.Cn {
		nt := float64(n) * theta
		tr += g.Cn[n]*math.Cos(nt) + g.Sn[n]*math.Sin(nt)
	}
	return tr
}

// dThetaRdTheta is the θ derivative of thetaR.
func (g *LocalGeometry) dThetaRdTheta(theta float64) float64 {
	d := 1.0
	for n := range g.Cn {
		fn := float64(n)
		nt := fn * theta
		d += -g.Cn[n]*fn*math.Sin(nt) + g.Sn[n]*fn*math.Cos(nt)
	}
	return d
}

// dThetaRdr is the radial derivative of thetaR for the given moment
// derivative coefficients.
func (g *LocalGeometry) dThetaRdr(theta float64, dcndr, dsndr []float64) float64 {
	d := 0.0
	for n := range dcndr {
		nt := float64(n) * theta
		d += dcndr[n]*math.Cos(nt) + dsndr[n]*math.Sin(nt)
	}
	return d
}

// FluxSurface evaluates the analytic surface on the given poloidal
// angles, in normalised units.
func (g *LocalGeometry) FluxSurface(theta []float64) (r, z []float64) {
	r = make([]float64, len(theta))
	z = make([]float64, len(theta))
	for i, th := range theta {
		r[i] = g.Rmaj + g.Rho*math.Cos(g.thetaR(th))
		z[i] = g.Z0 + g.Kappa*g.Rho*math.Sin(th)
	}
	return r, z
}

// rzDerivatives evaluates the four partial derivatives of (R, Z) with
// respect to θ and r at one angle. They feed the Bunit integral and the
// poloidal-field calculation.
func (g *LocalGeometry) rzDerivatives(theta float64) (dRdTheta, dRdr, dZdTheta, dZdr float64) {
	tr := g.thetaR(theta)
	dtrDt := g.dThetaRdTheta(theta)
	dtrDr := g.dThetaRdr(theta, g.DCndr, g.DSndr)

	dRdTheta = -g.Rho * math.Sin(tr) * dtrDt
	dRdr = g.Shift + math.Cos(tr) - g.Rho*math.Sin(tr)*dtrDr
	dZdTheta = g.Kappa * g.Rho * math.Cos(theta)
	dZdr = g.DZ0dr + g.Kappa*math.Sin(theta)*(1+g.SKappa)
	return dRdTheta, dRdr, dZdTheta, dZdr
}

// BunitOverB0 is the ratio of the GACODE effective field
// Bunit = q/r dψ/dr to the centroid field B0 = f/Rmaj, computed from the
// loop integral (Rmaj / 2π r) ∮ J_r / R dθ with the radial Jacobian
// J_r = dRdr dZdθ - dRdθ dZdr.
func (g *LocalGeometry) BunitOverB0() float64 {
	const n = 256
	sum := 0.0
	dTheta := 2 * math.Pi / float64(n)
	for i := 0; i < n; i++ {
		theta := float64(i) * dTheta
		dRdTheta, dRdr, dZdTheta, dZdr := g.rzDerivatives(theta)
		jacobian := dRdr*dZdTheta - dRdTheta*dZdr
		radius := g.Rmaj + g.Rho*math.Cos(g.thetaR(theta))
		sum += jacobian / radius
	}
	return g.Rmaj / (2 * math.Pi * g.Rho) * sum * dTheta
}

// Copy returns a deep copy. Conversions always work on copies so the
// source model stays untouched.
func (g *LocalGeometry) Copy() *LocalGeometry {
	c := *g
	c.Cn = append([]float64(nil), g.Cn...)
	c.Sn = append([]float64(nil), g.Sn...)
	c.DCndr = append([]float64(nil), g.DCndr...)
	c.DSndr = append([]float64(nil), g.DSndr...)
	return &c
}

// Validate enforces the canonical invariants.
func (g *LocalGeometry) Validate() error {
	if g.Kappa <= 0 {
		return fmt.Errorf("geometry: elongation must be > 0, got %g", g.Kappa)
	}
	if g.Q == 0 {
		return fmt.Errorf("geometry: safety factor must be nonzero")
	}
	if g.Rho <= 0 {
		return fmt.Errorf("geometry: normalised minor radius must be > 0, got %g", g.Rho)
	}
	n := len(g.Cn)
	if len(g.Sn) != n || len(g.DCndr) != n || len(g.DSndr) != n {
		return fmt.Errorf("geometry: moment arrays must share one length")
	}
	if n < 3 {
		return fmt.Errorf("geometry: at least 3 shaping moments required, got %d", n)
	}
	return nil
}

// AdoptShape rescales a machine-unit fitted surface onto g's
// normalisation and replaces g's shape with it. The LCFS minor radius
// follows from matching the fitted surface's minor radius to g's
// normalised one. Safety factor, shear, signs and the radial-derivative
// fields stay as they are; a single contour cannot supply them.
func (g *LocalGeometry) AdoptShape(fitted *LocalGeometry) error {
	if g.Rho <= 0 {
		return fmt.Errorf("geometry: adopting a shape needs a positive normalised minor radius, got %g", g.Rho)
	}
	if fitted.Rho <= 0 {
		return fmt.Errorf("geometry: fitted surface has nonpositive minor radius %g", fitted.Rho)
	}
	aMinor := fitted.Rho / g.Rho

	g.Rmaj = fitted.Rmaj / aMinor
	g.Z0 = fitted.Z0 / aMinor
	g.Kappa = fitted.Kappa
	g.Cn = append([]float64(nil), fitted.Cn...)
	g.Sn = append([]float64(nil), fitted.Sn...)
	g.DCndr = growTo(g.DCndr, len(g.Cn))
	g.DSndr = growTo(g.DSndr, len(g.Sn))
	g.FitResidual = fitted.FitResidual
	return nil
}

func growTo(v []float64, n int) []float64 {
	for len(v) < n {
		v = append(v, 0)
	}
	return v[:n]
}

// RadialDerivatives fills the radial-derivative fields of mid from
// finite differences of two adjacent fitted surfaces. The surfaces must
// be ordered inner, outer in minor radius.
func RadialDerivatives(mid, inner, outer *LocalGeometry) error {
	dr := outer.Rho - inner.Rho
	if dr <= 0 {
		return fmt.Errorf("geometry: adjacent surfaces must have increasing rho (%g, %g)",
			inner.Rho, outer.Rho)
	}
	if inner.NMoments() != mid.NMoments() || outer.NMoments() != mid.NMoments() {
		return fmt.Errorf("geometry: adjacent surfaces must share moment count")
	}

	mid.Shat = mid.Rho / mid.Q * (outer.Q - inner.Q) / dr
	mid.SKappa = mid.Rho / mid.Kappa * (outer.Kappa - inner.Kappa) / dr
	mid.Shift = (outer.Rmaj - inner.Rmaj) / dr
	mid.DZ0dr = (outer.Z0 - inner.Z0) / dr
	for n := range mid.Cn {
		mid.DCndr[n] = (outer.Cn[n] - inner.Cn[n]) / dr
		mid.DSndr[n] = (outer.Sn[n] - inner.Sn[n]) / dr
	}
	return nil
}
