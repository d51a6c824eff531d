package cleanregion

import (
	"fmt"
	"image"
	"math"
)

// ConstructBeam models the synthesized beam from a single beam plane. The main
// lobe axes come from the header; the lobes are found by repeatedly taking the
// brightest pixel above BeamThreshold times the beam peak and erasing a square
// of twice the larger axis around it. Offsets are relative to the plane center
// (cols/2, rows/2).
func ConstructBeam(beamPlane Plane, header *ImageHeader, p *Params) (*Beam, error) {
	p = orDefault(p)
	if header == nil {
		return nil, fmt.Errorf("%w: no header", ErrMalformedBeam)
	}
	major, minor := header.BeamMajorPixels(), header.BeamMinorPixels()
	if !(major > 0) || !(minor > 0) {
		return nil, fmt.Errorf("%w: beam axes %.3f x %.3f pixels", ErrMalformedBeam, major, minor)
	}
	if beamPlane.Data.Empty() {
		return nil, fmt.Errorf("%w: empty beam plane", ErrMalformedBeam)
	}

	work := workingCopy(beamPlane)
	defer work.Close()

	peak, _ := maxLoc(work)
	if !(peak > 0) {
		return nil, fmt.Errorf("%w: beam peak %g is not positive", ErrMalformedBeam, peak)
	}
	threshold := float32(p.BeamThreshold) * peak

	rows, cols := work.Rows(), work.Cols()
	center := image.Pt(cols/2, rows/2)
	half := 2 * int(math.Max(major, minor))
	bounds := image.Rect(0, 0, cols, rows)

	beam := &Beam{Major: major, Minor: minor, PA: header.BeamPA}
	for {
		v, loc := maxLoc(work)
		if v < threshold {
			break
		}
		beam.Sidelobes = append(beam.Sidelobes, loc.Sub(center))
		eraseSquare(&work, loc, half, bounds)
	}
	p.verbosef("beam %s above %.3f", beam, threshold)
	p.maybeSaveText("beam.txt", beam.String())
	return beam, nil
}

// eraseSquare sets the square of half side half around c, clipped to bounds, to -Inf.
func eraseSquare(m *Mat, c image.Point, half int, bounds image.Rectangle) {
	r := image.Rect(c.X-half, c.Y-half, c.X+half+1, c.Y+half+1).Intersect(bounds)
	if r.Empty() {
		return
	}
	view := m.Region(r)
	view.SetTo(float32(math.Inf(-1)))
	view.Close()
}

// workingCopy returns a private copy of the plane with masked and NaN pixels
// replaced by zero.
func workingCopy(plane Plane) Mat {
	work := plane.Data.Clone()
	data := work.DataFloat32()
	n := work.Rows() * work.Cols()
	for i := 0; i < n; i++ {
		if (plane.Mask != nil && !plane.Mask[i]) || math.IsNaN(float64(data[i])) {
			data[i] = 0
		}
	}
	return work
}
