package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// millerTrace samples an analytic Miller surface for use as a synthetic
// "measured" contour.
func millerTrace(points int, rmaj, rho, kappa, delta float64) (r, z []float64) {
	r = make([]float64, points)
	z = make([]float64, points)
	for i := 0; i < points; i++ {
		theta := 2 * math.Pi * float64(i) / float64(points)
		r[i] = rmaj + rho*math.Cos(theta+math.Asin(delta)*math.Sin(theta))
		z[i] = kappa * rho * math.Sin(theta)
	}
	return r, z
}

func Test_FromAnalyticParameters(t *testing.T) {
	g, err := FromAnalyticParameters(Parameters{
		Rho: 0.5, Rmaj: 3.0, Q: 2.0, Shat: 1.0,
		Kappa: 1.5, Delta: 0.3, Zeta: -0.05,
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.3, g.Delta(), 1e-14)
	assert.InDelta(t, -0.05, g.Zeta(), 1e-14)
	assert.InDelta(t, math.Asin(0.3), g.Sn[1], 1e-14)
	assert.InDelta(t, 0.05, g.Sn[2], 1e-14)
	require.NoError(t, g.Validate())
}

func Test_FromAnalyticParameters_invalid(t *testing.T) {
	tests := []struct {
		name   string
		params Parameters
	}{
		{name: "zero elongation", params: Parameters{Rho: 0.5, Q: 2.0, Kappa: 0}},
		{name: "negative elongation", params: Parameters{Rho: 0.5, Q: 2.0, Kappa: -1.5}},
		{name: "zero safety factor", params: Parameters{Rho: 0.5, Q: 0, Kappa: 1.0}},
		{name: "triangularity out of range", params: Parameters{Rho: 0.5, Q: 2.0, Kappa: 1.0, Delta: 1.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromAnalyticParameters(tt.params)
			assert.Error(t, err)
		})
	}
}

func Test_FluxSurface_circular(t *testing.T) {
	g, err := FromAnalyticParameters(Parameters{
		Rho: 1.0, Rmaj: 0.0, Q: 2.0, Kappa: 1.0,
	})
	require.NoError(t, err)

	theta := uniformGrid(257)
	r, z := g.FluxSurface(theta)
	for i := range theta {
		assert.InDelta(t, 1.0, r[i]*r[i]+z[i]*z[i], 1e-12)
	}
}

func Test_FromFluxSurfaceTrace_circle(t *testing.T) {
	// κ=1, δ=0, ζ=0 must be recovered to 1e-3 at any sampling >= 64.
	for _, points := range []int{64, 128, 257} {
		r, z := millerTrace(points, 3.0, 0.5, 1.0, 0.0)

		g, err := FromFluxSurfaceTrace(r, z, 0.5, FitOptions{})
		require.NoError(t, err, "points=%d", points)

		assert.InDelta(t, 1.0, g.Kappa, 1e-3, "points=%d", points)
		assert.InDelta(t, 0.0, g.Delta(), 1e-3, "points=%d", points)
		assert.InDelta(t, 0.0, g.Zeta(), 1e-3, "points=%d", points)
		assert.InDelta(t, 3.0, g.Rmaj, 1e-3, "points=%d", points)
		assert.InDelta(t, 0.5, g.Rho, 1e-3, "points=%d", points)
		assert.Less(t, g.FitResidual, 1e-3, "points=%d", points)
	}
}

func Test_FromFluxSurfaceTrace_symmetricExactZeros(t *testing.T) {
	r, z := millerTrace(256, 3.0, 0.5, 1.0, 0.0)

	g, err := FromFluxSurfaceTrace(r, z, 0.5, FitOptions{})
	require.NoError(t, err)

	// Up-down-symmetric circle: exactly zero, not merely small.
	assert.Zero(t, g.Delta())
	assert.Zero(t, g.Zeta())
}

func Test_FromFluxSurfaceTrace_elongation(t *testing.T) {
	r, z := millerTrace(257, 3.0, 1.0, 2.5, 0.0)

	g, err := FromFluxSurfaceTrace(r, z, 0.7, FitOptions{})
	require.NoError(t, err)

	assert.InDelta(t, 2.5, g.Kappa, 1e-2)

	rFit, zFit := g.FluxSurface(uniformGrid(257))
	rMax, rMin := maxMin(rFit)
	zMax, zMin := maxMin(zFit)
	assert.InDelta(t, 4.0, rMax, 1e-2)
	assert.InDelta(t, 2.0, rMin, 1e-2)
	assert.InDelta(t, 2.5, zMax, 1e-2)
	assert.InDelta(t, -2.5, zMin, 1e-2)
}

func Test_FromFluxSurfaceTrace_triangularity(t *testing.T) {
	r, z := millerTrace(257, 3.0, 1.0, 1.0, 0.5)

	g, err := FromFluxSurfaceTrace(r, z, 0.5, FitOptions{})
	require.NoError(t, err)

	assert.InDelta(t, 0.5, g.Delta(), 1e-2)

	// The top corner of a δ=0.5 surface sits at R = Rmaj - rho*δ.
	rFit, zFit := g.FluxSurface(uniformGrid(257))
	top := 0
	for i, zv := range zFit {
		if zv > zFit[top] {
			top = i
		}
	}
	assert.InDelta(t, 2.5, rFit[top], 1e-2)
	assert.InDelta(t, 1.0, zFit[top], 1e-2)
}

func Test_FromFluxSurfaceTrace_badInput(t *testing.T) {
	_, err := FromFluxSurfaceTrace([]float64{1, 2, 3}, []float64{1, 2}, 0.5, FitOptions{})
	assert.Error(t, err)

	_, err = FromFluxSurfaceTrace(make([]float64, 8), make([]float64, 8), 0.5, FitOptions{})
	assert.Error(t, err)
}

func Test_FromFluxSurfaceTrace_doesNotMutateInput(t *testing.T) {
	r, z := millerTrace(128, 3.0, 0.5, 1.4, 0.2)
	rOrig := append([]float64(nil), r...)
	zOrig := append([]float64(nil), z...)

	_, err := FromFluxSurfaceTrace(r, z, 0.5, FitOptions{})
	require.NoError(t, err)
	assert.Equal(t, rOrig, r)
	assert.Equal(t, zOrig, z)
}

func Test_BunitOverB0_circular(t *testing.T) {
	// Circular concentric surface: Bunit/B0 = 1/sqrt(1 - (r/R)^2).
	g, err := FromAnalyticParameters(Parameters{
		Rho: 0.5, Rmaj: 3.0, Q: 2.0, Kappa: 1.0, Shift: 0.0,
	})
	require.NoError(t, err)
	// dRdr for the circle needs cos(theta) only; analytic check below.
	got := g.BunitOverB0()
	want := 1.0 / math.Sqrt(1.0-(0.5/3.0)*(0.5/3.0))
	assert.InDelta(t, want, got, 1e-6)
}

func Test_RadialDerivatives(t *testing.T) {
	mk := func(rho, q, kappa float64) *LocalGeometry {
		g, err := FromAnalyticParameters(Parameters{
			Rho: rho, Rmaj: 3.0, Q: q, Kappa: kappa,
		})
		require.NoError(t, err)
		return g
	}

	inner := mk(0.4, 1.8, 1.40)
	mid := mk(0.5, 2.0, 1.45)
	outer := mk(0.6, 2.2, 1.50)

	require.NoError(t, RadialDerivatives(mid, inner, outer))

	// shat = rho/q dq/dr = 0.5/2.0 * (0.4/0.2)
	assert.InDelta(t, 0.5, mid.Shat, 1e-12)
	// s_kappa = rho/kappa dkappa/dr = 0.5/1.45 * 0.5
	assert.InDelta(t, 0.5/1.45*0.5, mid.SKappa, 1e-12)

	err := RadialDerivatives(mid, outer, inner)
	assert.Error(t, err)
}

func Test_ToParameters_signConventions(t *testing.T) {
	g, err := FromAnalyticParameters(Parameters{
		Rho: 0.5, Rmaj: 3.0, Q: 2.0, Shat: 1.0, Kappa: 1.0,
		Shift: -0.2, IpSign: -1, BtSign: 1,
	})
	require.NoError(t, err)

	canonical := g.ToParameters(ParamsCanonical)
	assert.Equal(t, 2.0, canonical.Q)
	assert.Equal(t, -0.2, canonical.Shift)

	cgyro := g.ToParameters(ParamsCGYRO)
	assert.Equal(t, -2.0, cgyro.Q)

	gs2 := g.ToParameters(ParamsGS2)
	assert.Equal(t, 2.0, gs2.Q)
	assert.Equal(t, 0.2, gs2.Shift)
}

func Test_NormalizeSigns_roundTrip(t *testing.T) {
	g, err := FromAnalyticParameters(Parameters{
		Rho: 0.5, Rmaj: 3.0, Q: 2.0, Kappa: 1.2, Shift: -0.1,
		IpSign: -1, BtSign: 1,
	})
	require.NoError(t, err)

	for _, conv := range []ParamConvention{ParamsCGYRO, ParamsGENE, ParamsGS2, ParamsTGLF} {
		emitted := g.ToParameters(conv)
		back := NormalizeSigns(emitted, conv)
		assert.Equal(t, 2.0, back.Q, conv.Name)
		assert.InDelta(t, -0.1, back.Shift, 1e-14, conv.Name)
	}
}

func Test_IsShaped(t *testing.T) {
	g, err := FromAnalyticParameters(Parameters{
		Rho: 0.5, Rmaj: 3.0, Q: 2.0, Kappa: 1.2, Delta: 0.3, Zeta: 0.02,
	})
	require.NoError(t, err)
	assert.False(t, g.IsShaped())

	g.Sn[3] = 0.01
	assert.True(t, g.IsShaped())
}

func Test_GeometryFitError_message(t *testing.T) {
	err := error(&GeometryFitError{PsiN: 0.5, Residual: 0.2, Iterations: 200, Reason: "no convergence"})

	var fitErr *GeometryFitError
	require.True(t, errors.As(err, &fitErr))
	assert.Contains(t, err.Error(), "psi_n=0.5")
	assert.Contains(t, err.Error(), "200 iterations")
}

func Test_AdoptShape(t *testing.T) {
	// Contour in metres: r = 0.4 m at rho = 0.5 puts the LCFS minor
	// radius at 0.8 m.
	rTrace, zTrace := millerTrace(720, 2.2, 0.4, 1.3, 0.2)
	fitted, err := FromFluxSurfaceTrace(rTrace, zTrace, 0.5, FitOptions{})
	require.NoError(t, err)

	g, err := FromAnalyticParameters(Parameters{
		Rho: 0.5, Rmaj: 3.0, Q: 2.0, Shat: 1.0,
		Kappa: 1.0, SKappa: 0.2,
	})
	require.NoError(t, err)

	require.NoError(t, g.AdoptShape(fitted))

	assert.InDelta(t, 2.75, g.Rmaj, 1e-3)
	assert.InDelta(t, 1.3, g.Kappa, 1e-3)
	assert.InDelta(t, 0.2, g.Delta(), 1e-3)
	// The deck's surface label and radial quantities survive.
	assert.Equal(t, 0.5, g.Rho)
	assert.Equal(t, 2.0, g.Q)
	assert.Equal(t, 1.0, g.Shat)
	assert.Equal(t, 0.2, g.SKappa)
	require.NoError(t, g.Validate())
}

func Test_AdoptShape_invalid(t *testing.T) {
	g, err := FromAnalyticParameters(Parameters{Rho: 0.5, Rmaj: 3.0, Q: 2.0, Kappa: 1.0})
	require.NoError(t, err)

	bad := g.Copy()
	bad.Rho = 0
	assert.Error(t, g.AdoptShape(bad))

	g.Rho = 0
	assert.Error(t, g.AdoptShape(g.Copy()))
}
