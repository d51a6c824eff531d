/*
Extracted from HocusFocus plugin by George Hilios.
Original Copyright © 2021 George Hilios <ghilios+NINA@googlemail.com>
Licensed under Mozilla Public License 2.0.
Ported to Go.
*/

package cleanregion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// KappaSigmaResult holds noise estimation results.
type KappaSigmaResult struct {
	Sigma          float64
	BackgroundMean float64
	NumIterations  int
}

func (r KappaSigmaResult) String() string {
	return fmt.Sprintf("{Sigma=%g, BackgroundMean=%g, NumIterations=%d}", r.Sigma, r.BackgroundMean, r.NumIterations)
}

// NewMatFromFloat32 copies a row major rows x cols slice into a new Mat. It
// panics when rows or cols is negative or values holds fewer than rows*cols
// elements.
func NewMatFromFloat32(rows, cols int, values []float32) Mat {
	if rows < 0 || cols < 0 || len(values) < rows*cols {
		panic(fmt.Sprintf("cleanregion: %d values for a %dx%d Mat", len(values), rows, cols))
	}
	m := NewMatWithSize(rows, cols)
	copy(m.DataFloat32(), values[:rows*cols])
	return m
}

// NewPlane builds a plane without a mask from row major values.
func NewPlane(rows, cols int, values []float32) Plane {
	return Plane{Data: NewMatFromFloat32(rows, cols, values)}
}

// KappaSigmaNoiseEstimate performs iterative kappa-sigma noise estimation on
// the valid pixels of a plane. Each iteration keeps the pixels within
// clippingMultiplier standard deviations of the mean and stops once sigma
// changes by no more than allowedError.
func KappaSigmaNoiseEstimate(plane Plane, clippingMultiplier, allowedError float64, maxIterations int) KappaSigmaResult {
	data := plane.Data.DataFloat32()
	n := plane.Data.Rows() * plane.Data.Cols()
	values := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v := float64(data[i])
		if (plane.Mask != nil && !plane.Mask[i]) || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return KappaSigmaResult{}
	}

	lastSigma := 0.0
	lastBackgroundMean := 0.0
	numIterations := 0
	clipped := values

	for numIterations < maxIterations && len(clipped) > 1 {
		meanVal, sigmaVal := stat.PopMeanStdDev(clipped, nil)
		numIterations++
		if numIterations > 1 && math.Abs(sigmaVal-lastSigma) <= allowedError {
			lastSigma = sigmaVal
			lastBackgroundMean = meanVal
			break
		}
		lastSigma = sigmaVal
		lastBackgroundMean = meanVal

		lo := meanVal - clippingMultiplier*sigmaVal
		hi := meanVal + clippingMultiplier*sigmaVal
		next := make([]float64, 0, len(clipped))
		for _, v := range clipped {
			if v >= lo && v <= hi {
				next = append(next, v)
			}
		}
		clipped = next
	}

	return KappaSigmaResult{
		Sigma:          lastSigma,
		BackgroundMean: lastBackgroundMean,
		NumIterations:  numIterations,
	}
}

// EstimateNoise returns the background rms of a plane with the clipping used
// for automatic cutoffs.
func EstimateNoise(plane Plane) float64 {
	return KappaSigmaNoiseEstimate(plane, 3.0, 1e-6, 20).Sigma
}
