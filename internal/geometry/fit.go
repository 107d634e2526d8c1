package geometry

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/mat"
)

// FitOptions controls the trace fit. Zero values select the defaults.
type FitOptions struct {
	// Samples is the number of uniform poloidal-angle points the analytic
	// parameterization is evaluated on (default 256, minimum 64).
	Samples int

	// MaxIterations bounds the least-squares refinement (default 200).
	// An iteration cap, not a wall clock, so fits reproduce across
	// machines.
	MaxIterations int

	// Moments is the number of shaping moments fitted (default 4).
	Moments int

	// Tolerance is the maximum accepted relative residual, rms distance
	// over minor radius (default 1e-3).
	Tolerance float64
}

func (o FitOptions) withDefaults() FitOptions {
	if o.Samples == 0 {
		o.Samples = 256
	}
	if o.MaxIterations == 0 {
		o.MaxIterations = 200
	}
	if o.Moments == 0 {
		o.Moments = DefaultMoments
	}
	if o.Tolerance == 0 {
		o.Tolerance = 1e-3
	}
	return o
}

// GeometryFitError reports a shape fit that failed to converge or
// produced an ill-posed surface.
type GeometryFitError struct {
	PsiN       float64
	Residual   float64
	Iterations int
	Reason     string
}

func (e *GeometryFitError) Error() string {
	return fmt.Sprintf("geometry: fit at psi_n=%g failed after %d iterations (residual %.3e): %s",
		e.PsiN, e.Iterations, e.Residual, e.Reason)
}

// FromFluxSurfaceTrace fits MXH shape parameters to a numerically
// sampled flux-surface contour:
//
//  1. surface centre and minor radius from trace extrema,
//  2. initial elongation and shaping moments from the poloidal angle
//     asymmetry, extracted by trapezoidal quadrature,
//  3. Levenberg-Marquardt refinement of centre, elongation and moments
//     against the trace resampled on a uniform poloidal-angle grid.
//
// Radial-derivative quantities (shat, s_kappa, moment derivatives)
// cannot come from a single contour; use RadialDerivatives with
// adjacent surfaces, or set them from analytic values if the source
// supplies them.
func FromFluxSurfaceTrace(rTrace, zTrace []float64, psiN float64, opts FitOptions) (*LocalGeometry, error) {
	opts = opts.withDefaults()

	if len(rTrace) != len(zTrace) {
		return nil, fmt.Errorf("geometry: trace arrays differ in length (%d, %d)",
			len(rTrace), len(zTrace))
	}
	if len(rTrace) < 16 {
		return nil, fmt.Errorf("geometry: trace too short (%d points, need >= 16)", len(rTrace))
	}

	// Work on copies: the angle reconstruction reorders the points.
	rTrace = append([]float64(nil), rTrace...)
	zTrace = append([]float64(nil), zTrace...)

	rMax, rMin := maxMin(rTrace)
	zMax, zMin := maxMin(zTrace)

	rMinor := (rMax - rMin) / 2
	if rMinor <= 0 {
		return nil, fmt.Errorf("geometry: degenerate trace, zero radial extent")
	}
	rCentre := (rMax + rMin) / 2
	zMid := (zMax + zMin) / 2
	kappa := (zMax - zMin) / (2 * rMinor)

	theta, thetaR := traceAngles(rTrace, zTrace, rCentre, zMid, rMinor, kappa)

	// Moments of θR - θ over one poloidal turn.
	cn, sn := shapeMoments(theta, thetaR, opts.Moments)

	g := &LocalGeometry{
		PsiN:   psiN,
		Rho:    rMinor, // caller rescales by a_minor when known
		Rmaj:   rCentre,
		Z0:     zMid,
		Kappa:  kappa,
		Cn:     cn,
		Sn:     sn,
		DCndr:  make([]float64, opts.Moments),
		DSndr:  make([]float64, opts.Moments),
		IpSign: 1,
		BtSign: 1,
	}

	// Resample the measured trace on the uniform grid the refinement
	// evaluates the parameterization on.
	grid := uniformGrid(opts.Samples)
	rMeas := interpPeriodic(grid, theta, rTrace)
	zMeas := interpPeriodic(grid, theta, zTrace)

	residual, iterations, err := refine(g, grid, rMeas, zMeas, opts)
	if err != nil {
		return nil, err
	}
	g.FitResidual = residual / rMinor

	if g.Kappa <= 0 {
		return nil, &GeometryFitError{
			PsiN:       psiN,
			Residual:   g.FitResidual,
			Iterations: iterations,
			Reason:     fmt.Sprintf("fitted elongation %g <= 0", g.Kappa),
		}
	}
	if g.FitResidual > opts.Tolerance {
		return nil, &GeometryFitError{
			PsiN:       psiN,
			Residual:   g.FitResidual,
			Iterations: iterations,
			Reason:     fmt.Sprintf("residual above tolerance %g", opts.Tolerance),
		}
	}

	// Up-down-symmetric circular surfaces must come out exactly
	// circular, not with 1e-9 leftovers that break convention checks.
	snapTiny(g.Cn, rMinor)
	snapTiny(g.Sn, rMinor)

	return g, nil
}

// maxMin returns the extrema of a slice.
func maxMin(values []float64) (maxVal, minVal float64) {
	maxVal, minVal = values[0], values[0]
	for _, v := range values[1:] {
		maxVal = math.Max(maxVal, v)
		minVal = math.Min(minVal, v)
	}
	return maxVal, minVal
}

// traceAngles reconstructs the geometric angle θ and the radial angle θR
// for each trace point, both on [0, 2π) and sorted ascending in θ.
func traceAngles(rTrace, zTrace []float64, rCentre, zMid, rMinor, kappa float64) (theta, thetaR []float64) {
	n := len(rTrace)
	theta = make([]float64, n)
	thetaR = make([]float64, n)

	// Upper-extreme major radius splits the inboard/outboard branches.
	zInd := 0
	for i, z := range zTrace {
		if math.Abs(z-zMid) > math.Abs(zTrace[zInd]-zMid) {
			zInd = i
		}
	}
	rUpper := rTrace[zInd]

	for i := range rTrace {
		height := clampUnit((zTrace[i] - zMid) / (kappa * rMinor))
		radius := clampUnit((rTrace[i] - rCentre) / rMinor)

		th := math.Asin(height)
		tr := math.Acos(radius)

		if rTrace[i] < rUpper {
			th = math.Pi - th
		} else if zTrace[i] < zMid {
			th = 2*math.Pi + th
		}
		if zTrace[i] < zMid {
			tr = 2*math.Pi - tr
		}

		theta[i] = math.Mod(th+2*math.Pi, 2*math.Pi)
		thetaR[i] = math.Mod(tr+2*math.Pi, 2*math.Pi)
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return theta[idx[a]] < theta[idx[b]] })

	sortedTheta := make([]float64, n)
	sortedThetaR := make([]float64, n)
	sortedR := make([]float64, n)
	sortedZ := make([]float64, n)
	for i, j := range idx {
		sortedTheta[i] = theta[j]
		sortedThetaR[i] = thetaR[j]
		sortedR[i] = rTrace[j]
		sortedZ[i] = zTrace[j]
	}
	copy(rTrace, sortedR)
	copy(zTrace, sortedZ)
	return sortedTheta, sortedThetaR
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// shapeMoments extracts the cosine/sine moments of θR - θ by
// trapezoidal quadrature over one poloidal turn.
func shapeMoments(theta, thetaR []float64, moments int) (cn, sn []float64) {
	n := len(theta)

	diff := make([]float64, n)
	for i := range diff {
		d := thetaR[i] - theta[i]
		// The branch reconstruction can leave a 2π offset near the wrap.
		for d > math.Pi {
			d -= 2 * math.Pi
		}
		for d < -math.Pi {
			d += 2 * math.Pi
		}
		diff[i] = d
	}

	// Close the poloidal turn so the quadrature covers [θ0, θ0+2π].
	x := append(append([]float64(nil), theta...), theta[0]+2*math.Pi)
	diffClosed := append(append([]float64(nil), diff...), diff[0])

	cn = make([]float64, moments)
	sn = make([]float64, moments)
	fCos := make([]float64, n+1)
	fSin := make([]float64, n+1)
	for m := 0; m < moments; m++ {
		fm := float64(m)
		for i := range x {
			fCos[i] = diffClosed[i] * math.Cos(fm*x[i])
			fSin[i] = diffClosed[i] * math.Sin(fm*x[i])
		}
		cn[m] = integrate.Trapezoidal(x, fCos) / math.Pi
		sn[m] = integrate.Trapezoidal(x, fSin) / math.Pi
	}
	// The n=0 cosine moment is a rigid rotation of the angle origin and
	// carries a half weight in the Fourier sum.
	cn[0] /= 2
	return cn, sn
}

func uniformGrid(samples int) []float64 {
	grid := make([]float64, samples)
	for i := range grid {
		grid[i] = 2 * math.Pi * float64(i) / float64(samples)
	}
	return grid
}

// interpPeriodic linearly interpolates samples (x ascending on [0, 2π))
// onto the query grid, wrapping around the poloidal turn.
func interpPeriodic(query, x, y []float64) []float64 {
	n := len(x)
	out := make([]float64, len(query))
	for qi, q := range query {
		q = math.Mod(q+2*math.Pi, 2*math.Pi)
		i := sort.SearchFloat64s(x, q)

		var x0, x1, y0, y1 float64
		switch i {
		case 0, n:
			// Wrap segment between the last and first sample.
			x0, y0 = x[n-1]-2*math.Pi, y[n-1]
			x1, y1 = x[0], y[0]
			if q > x[n-1] {
				x0, y0 = x[n-1], y[n-1]
				x1, y1 = x[0]+2*math.Pi, y[0]
			}
		default:
			x0, y0 = x[i-1], y[i-1]
			x1, y1 = x[i], y[i]
		}
		if x1 == x0 {
			out[qi] = y0
			continue
		}
		out[qi] = y0 + (y1-y0)*(q-x0)/(x1-x0)
	}
	return out
}

// refine runs a Levenberg-Marquardt minimisation of the stacked (R, Z)
// residuals between the analytic surface and the resampled trace.
// Free parameters: centre (Rmaj, Z0), elongation and the shaping
// moments cn[0..M-1], sn[1..M-1]. The minor radius stays pinned to the
// trace extrema. Returns the rms point distance.
func refine(g *LocalGeometry, grid, rMeas, zMeas []float64, opts FitOptions) (float64, int, error) {
	m := opts.Moments
	params := packParams(g, m)

	residuals := func(p []float64) []float64 {
		trial := g.Copy()
		unpackParams(trial, p, m)
		r, z := trial.FluxSurface(grid)
		res := make([]float64, 2*len(grid))
		for i := range grid {
			res[2*i] = r[i] - rMeas[i]
			res[2*i+1] = z[i] - zMeas[i]
		}
		return res
	}

	res := residuals(params)
	cost := sumSquares(res)
	lambda := 1e-3

	iterations := 0
	for ; iterations < opts.MaxIterations; iterations++ {
		jac := numericalJacobian(residuals, params, res)
		step, ok := lmStep(jac, res, lambda)
		if !ok {
			lambda *= 10
			continue
		}

		trialParams := make([]float64, len(params))
		for i := range params {
			trialParams[i] = params[i] + step[i]
		}
		trialRes := residuals(trialParams)
		trialCost := sumSquares(trialRes)

		if trialCost < cost {
			improvement := cost - trialCost
			params, res, cost = trialParams, trialRes, trialCost
			lambda = math.Max(lambda/10, 1e-12)
			if improvement < 1e-24 || cost < 1e-24 {
				break
			}
		} else {
			lambda *= 10
			if lambda > 1e12 {
				break
			}
		}
	}

	unpackParams(g, params, m)
	rms := math.Sqrt(cost / float64(len(res)/2))

	if iterations >= opts.MaxIterations {
		return 0, iterations, &GeometryFitError{
			PsiN:       g.PsiN,
			Residual:   rms / g.Rho,
			Iterations: iterations,
			Reason:     "least-squares refinement did not converge",
		}
	}
	return rms, iterations, nil
}

func packParams(g *LocalGeometry, m int) []float64 {
	p := make([]float64, 0, 3+2*m-1)
	p = append(p, g.Rmaj, g.Z0, g.Kappa)
	p = append(p, g.Cn[:m]...)
	p = append(p, g.Sn[1:m]...)
	return p
}

func unpackParams(g *LocalGeometry, p []float64, m int) {
	g.Rmaj, g.Z0, g.Kappa = p[0], p[1], p[2]
	copy(g.Cn, p[3:3+m])
	copy(g.Sn[1:], p[3+m:])
}

func sumSquares(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x * x
	}
	return s
}

// numericalJacobian fills J with forward differences of the residual
// vector.
func numericalJacobian(f func([]float64) []float64, p, f0 []float64) *mat.Dense {
	const h = 1e-7
	jac := mat.NewDense(len(f0), len(p), nil)
	for j := range p {
		pj := append([]float64(nil), p...)
		step := h * math.Max(1, math.Abs(p[j]))
		pj[j] += step
		fj := f(pj)
		for i := range f0 {
			jac.Set(i, j, (fj[i]-f0[i])/step)
		}
	}
	return jac
}

// lmStep solves the damped normal equations (JᵀJ + λ diag(JᵀJ)) δ = -Jᵀr.
func lmStep(jac *mat.Dense, res []float64, lambda float64) ([]float64, bool) {
	_, nParams := jac.Dims()

	var jtj mat.Dense
	jtj.Mul(jac.T(), jac)

	rhs := mat.NewVecDense(nParams, nil)
	rhs.MulVec(jac.T(), mat.NewVecDense(len(res), res))
	rhs.ScaleVec(-1, rhs)

	damped := mat.NewSymDense(nParams, nil)
	for i := 0; i < nParams; i++ {
		for j := i; j < nParams; j++ {
			v := jtj.At(i, j)
			if i == j {
				v += lambda * math.Max(jtj.At(i, i), 1e-12)
			}
			damped.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(damped); !ok {
		return nil, false
	}
	step := mat.NewVecDense(nParams, nil)
	if err := chol.SolveVecTo(step, rhs); err != nil {
		return nil, false
	}
	return step.RawVector().Data, true
}

// snapTiny zeroes moments below the numerical noise floor of the fit so
// symmetric surfaces report exactly zero triangularity and squareness.
func snapTiny(moments []float64, scale float64) {
	tol := 1e-7 * math.Max(1, scale)
	for i, v := range moments {
		if math.Abs(v) < tol {
			moments[i] = 0
		}
	}
}
