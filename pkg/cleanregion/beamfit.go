/*
Extracted from HocusFocus plugin by George Hilios.
Original Copyright © 2021 George Hilios <ghilios+NINA@googlemail.com>
Licensed under Mozilla Public License 2.0.
Ported to Go.
*/

package cleanregion

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/mat"
)

var sigmaToFWHM = 2.0 * math.Sqrt(2.0*math.Log(2.0))

// BeamFit is an elliptical Gaussian fitted to the main lobe of a beam plane.
type BeamFit struct {
	// Major and Minor are full widths at half maximum in pixels.
	Major, Minor float64
	// PA is the position angle of the major axis in degrees east of north, in (-90, 90].
	PA float64
	// Center is the fitted 0-based pixel position of the lobe.
	Center   Point
	RSquared float64
}

func (f *BeamFit) String() string {
	return fmt.Sprintf("{Major=%.2f, Minor=%.2f, PA=%.1f, R2=%.3f}", f.Major, f.Minor, f.PA, f.RSquared)
}

// FitBeam fits a 2D Gaussian to the brightest lobe of beamPlane. The window
// spans three half-power widths around the peak.
func FitBeam(beamPlane Plane) (*BeamFit, error) {
	if beamPlane.Data.Empty() {
		return nil, fmt.Errorf("%w: empty beam plane", ErrMalformedBeam)
	}
	work := workingCopy(beamPlane)
	defer work.Close()

	peak, loc := maxLoc(work)
	if !(peak > 0) {
		return nil, fmt.Errorf("%w: beam peak %g is not positive", ErrMalformedBeam, peak)
	}
	rows, cols := work.Rows(), work.Cols()
	data := work.DataFloat32()

	extent := halfPowerExtent(data, rows, cols, loc, peak)
	w := 3 * extent
	window := image.Rect(loc.X-w, loc.Y-w, loc.X+w+1, loc.Y+w+1).Intersect(image.Rect(0, 0, cols, rows))

	inputs := make([][2]float64, 0, window.Dx()*window.Dy())
	outputs := make([]float64, 0, window.Dx()*window.Dy())
	for y := window.Min.Y; y < window.Max.Y; y++ {
		for x := window.Min.X; x < window.Max.X; x++ {
			v := float64(data[y*cols+x])
			if math.IsInf(v, 0) {
				continue
			}
			inputs = append(inputs, [2]float64{float64(x - loc.X), float64(y - loc.Y)})
			outputs = append(outputs, v/float64(peak))
		}
	}
	if len(inputs) < 7 {
		return nil, fmt.Errorf("%w: main lobe covers %d pixels", ErrMalformedBeam, len(inputs))
	}

	s0 := math.Max(1, 2*float64(extent)/sigmaToFWHM)
	x0 := []float64{1, 0, 0, s0, s0, 0}
	lower := []float64{0, -1, -1, 0.1, 0.1, -math.Pi / 2}
	upper := []float64{2, 1, 1, float64(w), float64(w), math.Pi / 2}

	solution := levenbergMarquardt(inputs, outputs, x0, lower, upper, 1e-10, 200)
	sigMajor, sigMinor := solution[3], solution[4]
	if math.IsNaN(sigMajor) || math.IsNaN(sigMinor) {
		return nil, fmt.Errorf("%w: Gaussian fit diverged", ErrMalformedBeam)
	}

	// angle of the major axis from +x, counterclockwise
	phi := solution[5]
	if sigMinor > sigMajor {
		sigMajor, sigMinor = sigMinor, sigMajor
		phi += math.Pi / 2
	}

	return &BeamFit{
		Major:    sigMajor * sigmaToFWHM,
		Minor:    sigMinor * sigmaToFWHM,
		PA:       positionAngle(phi),
		Center:   Point{X: float64(loc.X) + solution[1], Y: float64(loc.Y) + solution[2]},
		RSquared: computeRSquared(inputs, outputs, solution),
	}, nil
}

// positionAngle converts an axis angle from +x into degrees from +y (north)
// toward -x (east).
func positionAngle(phi float64) float64 {
	pa := math.Atan2(-math.Cos(phi), math.Sin(phi)) * 180 / math.Pi
	for pa > 90 {
		pa -= 180
	}
	for pa <= -90 {
		pa += 180
	}
	return pa
}

// halfPowerExtent walks the row and column through loc and returns the
// largest distance at which the value first falls below half the peak.
func halfPowerExtent(data []float32, rows, cols int, loc image.Point, peak float32) int {
	half := peak / 2
	extent := 1
	for _, d := range []image.Point{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}} {
		p := loc
		steps := 0
		for {
			p = p.Add(d)
			steps++
			if p.X < 0 || p.Y < 0 || p.X >= cols || p.Y >= rows || data[p.Y*cols+p.X] < half {
				break
			}
		}
		if steps > extent {
			extent = steps
		}
	}
	return extent
}

// gaussianValue evaluates A*exp(-E) with parameters A, x0, y0, U, V, T.
func gaussianValue(p []float64, input [2]float64) float64 {
	A := p[0]
	x0, y0 := p[1], p[2]
	U, V, T := p[3], p[4], p[5]

	cosT, sinT := math.Cos(T), math.Sin(T)
	X := (input[0]-x0)*cosT + (input[1]-y0)*sinT
	Y := -(input[0]-x0)*sinT + (input[1]-y0)*cosT
	return A * math.Exp(-(X*X/(2*U*U) + Y*Y/(2*V*V)))
}

func gaussianGradient(p []float64, input [2]float64, grad []float64) {
	A := p[0]
	x0, y0 := p[1], p[2]
	U, V, T := p[3], p[4], p[5]

	cosT, sinT := math.Cos(T), math.Sin(T)
	X := (input[0]-x0)*cosT + (input[1]-y0)*sinT
	Y := -(input[0]-x0)*sinT + (input[1]-y0)*cosT
	U2, V2 := U*U, V*V
	eE := math.Exp(-(X*X/(2*U2) + Y*Y/(2*V2)))

	grad[0] = eE
	grad[1] = A * (cosT*X/U2 - sinT*Y/V2) * eE
	grad[2] = A * (sinT*X/U2 + cosT*Y/V2) * eE
	grad[3] = A * X * X / (U2 * U) * eE
	grad[4] = A * Y * Y / (V2 * V) * eE
	grad[5] = A * X * Y * (1.0/V2 - 1.0/U2) * eE
}

func computeRSquared(inputs [][2]float64, outputs, p []float64) float64 {
	yBar := 0.0
	for _, o := range outputs {
		yBar += o
	}
	yBar /= float64(len(outputs))

	tss, rss := 0.0, 0.0
	for i := range inputs {
		res := gaussianValue(p, inputs[i]) - outputs[i]
		disp := outputs[i] - yBar
		rss += res * res
		tss += disp * disp
	}
	if tss > 0 {
		return 1.0 - rss/tss
	}
	return 0.0
}

// levenbergMarquardt minimizes the squared residuals of gaussianValue with
// box constraints, damping the normal equations with lambda*I.
func levenbergMarquardt(inputs [][2]float64, outputs, x0, lower, upper []float64, tolerance float64, maxIter int) []float64 {
	n, m := len(x0), len(inputs)
	x := make([]float64, n)
	for j := range x0 {
		x[j] = clampLM(x0[j], lower[j], upper[j])
	}

	jac := mat.NewDense(m, n, nil)
	res := mat.NewVecDense(m, nil)
	cost := residuals(inputs, outputs, x, res, jac)

	var jtj, damped mat.Dense
	var jtf, step mat.VecDense
	xNew := make([]float64, n)
	resNew := mat.NewVecDense(m, nil)
	lambda := 1e-3

	for iter := 0; iter < maxIter; iter++ {
		jtj.Mul(jac.T(), jac)
		jtf.MulVec(jac.T(), res)
		if mat.Norm(&jtf, 2) < tolerance*cost {
			break
		}

		improved := false
		for tries := 0; tries < 20 && !improved; tries++ {
			damped.CloneFrom(&jtj)
			for i := 0; i < n; i++ {
				damped.Set(i, i, damped.At(i, i)+lambda)
			}
			if err := step.SolveVec(&damped, &jtf); err != nil {
				lambda *= 2
				continue
			}
			for j := 0; j < n; j++ {
				xNew[j] = clampLM(x[j]-step.AtVec(j), lower[j], upper[j])
			}

			costNew := residuals(inputs, outputs, xNew, resNew, nil)
			if costNew >= cost {
				lambda *= 2
				if lambda > 1e16 {
					return x
				}
				continue
			}
			improvement := (cost - costNew) / cost
			copy(x, xNew)
			cost = residuals(inputs, outputs, x, res, jac)
			lambda = math.Max(lambda/3.0, 1e-15)
			if improvement < tolerance {
				return x
			}
			improved = true
		}
		if !improved {
			break
		}
	}
	return x
}

// residuals fills res, and jac when not nil, and returns the sum of squares.
func residuals(inputs [][2]float64, outputs, x []float64, res *mat.VecDense, jac *mat.Dense) float64 {
	grad := make([]float64, len(x))
	for k := range inputs {
		res.SetVec(k, gaussianValue(x, inputs[k])-outputs[k])
		if jac != nil {
			gaussianGradient(x, inputs[k], grad)
			jac.SetRow(k, grad)
		}
	}
	return mat.Dot(res, res)
}

func clampLM(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
