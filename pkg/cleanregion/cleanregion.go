// Package cleanregion computes clean regions for interferometric images: the
// set of polygons within which deconvolution may place model flux.
//
// A region comes either from the primary beam footprints of a mosaic's
// pointings, or from the source peaks found in an image cube after the
// synthesized beam's sidelobes have been stamped out. Both are serialized as
// polygon'(x1,y1,...)' clauses, or as QuarterRegion when nothing better can be
// said.
package cleanregion

import (
	"context"
	"fmt"
	"image"
)

// RegionResult is the outcome of a peak based clean region computation.
type RegionResult struct {
	Region string
	Beam   *Beam
	// Peaks holds the 0-based peak pixels of every plane, indexed by plane.
	Peaks [][]image.Point
}

// FindCleanRegion models the beam from beamPlane, scans every plane of the cube
// for peaks at or above cutoff and compiles the region around all of them.
// Beam axes are taken from the cube header. A malformed beam or an empty cube is
// returned as an error; no peaks yields QuarterRegion.
func FindCleanRegion(ctx context.Context, cube *Cube, beamPlane Plane, cutoff float64, p *Params) (string, error) {
	res, err := ComputeCleanRegion(ctx, cube, beamPlane, cutoff, p)
	if err != nil {
		return "", err
	}
	return res.Region, nil
}

// ComputeCleanRegion is FindCleanRegion keeping the beam model and the
// per-plane peaks the region was built from.
func ComputeCleanRegion(ctx context.Context, cube *Cube, beamPlane Plane, cutoff float64, p *Params) (*RegionResult, error) {
	p = orDefault(p)
	if cube == nil || len(cube.Planes) == 0 {
		return nil, ErrEmptyCube
	}
	beam, err := ConstructBeam(beamPlane, cube.Header, p)
	if err != nil {
		return nil, fmt.Errorf("constructing beam: %w", err)
	}
	perPlane, err := FindPeaks(ctx, cube, beam, cutoff, p)
	if err != nil {
		return nil, fmt.Errorf("finding peaks: %w", err)
	}
	peaks := FlattenPeaks(perPlane)
	p.verbosef("%d peaks above %g in %d planes", len(peaks), cutoff, len(perPlane))

	region := PeakCleanRegion(peaks, beam, cube.Width(), cube.Height(), p)
	p.maybeSaveText("region.txt", region)
	return &RegionResult{Region: region, Beam: beam, Peaks: perPlane}, nil
}

// SpectralPeak is a peak found in one plane, with the flux of the untouched cube.
type SpectralPeak struct {
	Plane int
	Pixel image.Point
	Flux  float32
	// FrequencyGHz is zero when the cube has no usable spectral axis.
	FrequencyGHz float64
}

// FindSpectralPeaks returns every peak of every plane in plane order. The cube
// keeps its original values, so the fluxes reported are the observed ones.
func FindSpectralPeaks(ctx context.Context, cube *Cube, beamPlane Plane, cutoff float64, p *Params) ([]SpectralPeak, error) {
	p = orDefault(p)
	if cube == nil || len(cube.Planes) == 0 {
		return nil, ErrEmptyCube
	}
	beam, err := ConstructBeam(beamPlane, cube.Header, p)
	if err != nil {
		return nil, fmt.Errorf("constructing beam: %w", err)
	}
	perPlane, err := FindPeaks(ctx, cube, beam, cutoff, p)
	if err != nil {
		return nil, fmt.Errorf("finding peaks: %w", err)
	}

	var out []SpectralPeak
	for plane, peaks := range perPlane {
		freq := 0.0
		if cube.Header != nil {
			if f, err := cube.Header.PlaneFrequency(plane); err == nil {
				freq = f
			}
		}
		data := cube.Planes[plane].Data.DataFloat32()
		cols := cube.Planes[plane].Data.Cols()
		for _, pk := range peaks {
			out = append(out, SpectralPeak{
				Plane:        plane,
				Pixel:        pk,
				Flux:         data[pk.Y*cols+pk.X],
				FrequencyGHz: freq,
			})
		}
	}
	return out, nil
}

// HeaderMosaicCleanRegion is MosaicCleanRegion with the cell size, phase center
// and frequency of the given plane read from an image header.
func HeaderMosaicCleanRegion(pointings []Pointing, header *ImageHeader, plane int, p *Params) (string, error) {
	if header == nil || header.CellArcsec <= 0 {
		return "", fmt.Errorf("%w: header has no pixel scale", ErrInvalidFits)
	}
	freq, err := header.PlaneFrequency(plane)
	if err != nil {
		return "", fmt.Errorf("plane frequency: %w", err)
	}
	return MosaicCleanRegion(pointings, header.CellArcsec, freq, header.Center(), p), nil
}

// ResolveBeamAxes makes sure header carries beam axes. It keeps its own, else
// takes those of beamHeader, else fits a Gaussian to the main lobe of beamPlane.
func ResolveBeamAxes(header, beamHeader *ImageHeader, beamPlane Plane, p *Params) error {
	p = orDefault(p)
	if header == nil {
		return fmt.Errorf("%w: no header", ErrMalformedBeam)
	}
	if header.BeamMajorArcsec > 0 && header.BeamMinorArcsec > 0 {
		return nil
	}
	if beamHeader != nil && beamHeader.BeamMajorArcsec > 0 && beamHeader.BeamMinorArcsec > 0 {
		header.BeamMajorArcsec = beamHeader.BeamMajorArcsec
		header.BeamMinorArcsec = beamHeader.BeamMinorArcsec
		header.BeamPA = beamHeader.BeamPA
		return nil
	}
	fit, err := FitBeam(beamPlane)
	if err != nil {
		return err
	}
	header.SetBeamPixels(fit)
	p.verbosef("beam axes fitted from the beam plane: %s", fit)
	return nil
}
