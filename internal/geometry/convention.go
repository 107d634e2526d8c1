package geometry

import "math"

// ParamConvention names a code's sign convention for the geometric
// parameters. The canonical model stores |q| with the toroidal-field and
// plasma-current directions carried separately, and shift as dRmaj/dr;
// codes disagree on both.
type ParamConvention struct {
	Name string

	// SignedQ codes fold sign(Ip)*sign(Bt) into the safety factor.
	SignedQ bool

	// FlippedShift codes define the Shafranov shift as -dRmaj/dr.
	FlippedShift bool
}

// Sign conventions of the supported code families.
var (
	ParamsCanonical = ParamConvention{Name: "canonical"}
	ParamsCGYRO     = ParamConvention{Name: "cgyro", SignedQ: true}
	ParamsTGLF      = ParamConvention{Name: "tglf", SignedQ: true}
	ParamsGENE      = ParamConvention{Name: "gene"}
	ParamsGS2       = ParamConvention{Name: "gs2", FlippedShift: true}
)

// ToParameters re-expresses the canonical surface as an analytic Miller
// parameter set under the target convention. Shaping beyond Miller is
// not representable here; callers check IsShaped before flattening.
func (g *LocalGeometry) ToParameters(c ParamConvention) Parameters {
	p := Parameters{
		PsiN:      g.PsiN,
		Rho:       g.Rho,
		Rmaj:      g.Rmaj,
		Z0:        g.Z0,
		Q:         math.Abs(g.Q),
		Shat:      g.Shat,
		Kappa:     g.Kappa,
		SKappa:    g.SKappa,
		Delta:     g.Delta(),
		SDelta:    g.SDelta(),
		Zeta:      g.Zeta(),
		SZeta:     g.SZeta(),
		Shift:     g.Shift,
		DZ0dr:     g.DZ0dr,
		BetaPrime: g.BetaPrime,
		IpSign:    g.IpSign,
		BtSign:    g.BtSign,
	}
	if c.SignedQ {
		p.Q *= float64(g.IpSign * g.BtSign)
	}
	if c.FlippedShift {
		p.Shift = -p.Shift
	}
	return p
}

// NormalizeSigns strips a code's sign convention from a parameter set
// read off a native deck, recovering the canonical representation.
func NormalizeSigns(p Parameters, c ParamConvention) Parameters {
	if c.FlippedShift {
		p.Shift = -p.Shift
	}
	if c.SignedQ && p.Q < 0 {
		// A negative signed q means Ip and Bt are antiparallel. Which of
		// the two is reversed is not recoverable from q alone; decks
		// carry explicit direction flags when it matters, and drivers
		// overwrite these defaults from them.
		p.Q = -p.Q
		if p.IpSign == 0 {
			p.IpSign = -1
		}
		if p.BtSign == 0 {
			p.BtSign = 1
		}
	}
	if p.IpSign == 0 {
		p.IpSign = 1
	}
	if p.BtSign == 0 {
		p.BtSign = 1
	}
	return p
}
