package cleanregion

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// pointSourceCube is a 100x100 single plane cube with one 10 Jy source at
// pixel (62,57), one arcsecond pixels and a 4 arcsecond round beam.
func pointSourceCube() *Cube {
	cube := NewCube(planeWith(100, 100, map[image.Point]float32{{X: 62, Y: 57}: 10}))
	cube.Header.CellArcsec = 1
	cube.Header.BeamMajorArcsec = 4
	cube.Header.BeamMinorArcsec = 4
	return cube
}

func pointBeam() Plane {
	return planeWith(64, 64, map[image.Point]float32{{X: 32, Y: 32}: 1})
}

func quietParams() *Params {
	p := NewParams()
	p.Logger = log.New(io.Discard, "", 0)
	return p
}

func TestFindCleanRegion(t *testing.T) {
	cube := pointSourceCube()
	defer cube.Close()

	got, err := FindCleanRegion(context.Background(), cube, pointBeam(), 5, quietParams())
	if err != nil {
		t.Fatalf("FindCleanRegion: %v", err)
	}
	want := FormatRegion([]Polygon{NewOctagon(Pt(63, 58), 10)}, 100, 100)
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestComputeCleanRegion(t *testing.T) {
	cube := NewCube(
		planeWith(100, 100, map[image.Point]float32{{X: 62, Y: 57}: 10}),
		planeWith(100, 100, map[image.Point]float32{{X: 20, Y: 30}: 7}),
	)
	defer cube.Close()
	cube.Header.CellArcsec = 1
	cube.Header.BeamMajorArcsec = 4
	cube.Header.BeamMinorArcsec = 4

	res, err := ComputeCleanRegion(context.Background(), cube, pointBeam(), 5, quietParams())
	if err != nil {
		t.Fatalf("ComputeCleanRegion: %v", err)
	}
	wantPeaks := [][]image.Point{{{X: 62, Y: 57}}, {{X: 20, Y: 30}}}
	if len(res.Peaks) != len(wantPeaks) {
		t.Fatalf("got peaks for %d planes, want %d", len(res.Peaks), len(wantPeaks))
	}
	for plane := range wantPeaks {
		if !samePeaks(res.Peaks[plane], wantPeaks[plane]) {
			t.Errorf("plane %d: got %v, want %v", plane, res.Peaks[plane], wantPeaks[plane])
		}
	}
	if res.Beam == nil || res.Beam.Size() != 4 {
		t.Errorf("beam %v, want size 4", res.Beam)
	}

	region, err := FindCleanRegion(context.Background(), cube, pointBeam(), 5, quietParams())
	if err != nil {
		t.Fatalf("FindCleanRegion: %v", err)
	}
	if region != res.Region {
		t.Errorf("FindCleanRegion %q differs from ComputeCleanRegion %q", region, res.Region)
	}
	if n := strings.Count(res.Region, "polygon"); n != 2 {
		t.Errorf("got %d clauses in %q, want 2", n, res.Region)
	}
}

func TestFindCleanRegionContinuumSource(t *testing.T) {
	source := map[image.Point]float32{{X: 62, Y: 57}: 10}
	cube := NewCube(planeWith(100, 100, source), planeWith(100, 100, source), planeWith(100, 100, source))
	defer cube.Close()
	cube.Header.CellArcsec = 1
	cube.Header.BeamMajorArcsec = 4
	cube.Header.BeamMinorArcsec = 4

	got, err := FindCleanRegion(context.Background(), cube, pointBeam(), 5, quietParams())
	if err != nil {
		t.Fatalf("FindCleanRegion: %v", err)
	}
	want := FormatRegion([]Polygon{NewOctagon(Pt(63, 58), 10)}, 100, 100)
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFindCleanRegionNoPeaks(t *testing.T) {
	cube := pointSourceCube()
	defer cube.Close()

	got, err := FindCleanRegion(context.Background(), cube, pointBeam(), 50, quietParams())
	if err != nil {
		t.Fatalf("FindCleanRegion: %v", err)
	}
	if got != QuarterRegion {
		t.Errorf("got %q, want %q", got, QuarterRegion)
	}
}

func TestFindCleanRegionErrors(t *testing.T) {
	noBeam := pointSourceCube()
	defer noBeam.Close()
	noBeam.Header.BeamMajorArcsec = 0

	tests := []struct {
		name string
		cube *Cube
		want error
	}{
		{"nil cube", nil, ErrEmptyCube},
		{"no planes", &Cube{}, ErrEmptyCube},
		{"beam without axes", noBeam, ErrMalformedBeam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FindCleanRegion(context.Background(), tt.cube, pointBeam(), 5, quietParams())
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFindSpectralPeaks(t *testing.T) {
	cube := NewCube(
		planeWith(100, 100, map[image.Point]float32{{X: 62, Y: 57}: 10}),
		planeWith(100, 100, map[image.Point]float32{{X: 20, Y: 30}: 7, {X: 80, Y: 80}: 6}),
	)
	defer cube.Close()
	h := cube.Header
	h.CellArcsec = 1
	h.BeamMajorArcsec = 4
	h.BeamMinorArcsec = 4
	h.Spectral = SpectralFrequency
	h.specRefPixel = 1
	h.specRefValue = 100e9
	h.specDelta = 1e9
	h.specScale = 1

	got, err := FindSpectralPeaks(context.Background(), cube, pointBeam(), 5, quietParams())
	if err != nil {
		t.Fatalf("FindSpectralPeaks: %v", err)
	}
	want := []SpectralPeak{
		{Plane: 0, Pixel: image.Pt(62, 57), Flux: 10, FrequencyGHz: 100},
		{Plane: 1, Pixel: image.Pt(20, 30), Flux: 7, FrequencyGHz: 101},
		{Plane: 1, Pixel: image.Pt(80, 80), Flux: 6, FrequencyGHz: 101},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d peaks %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("peak %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestHeaderMosaicCleanRegion(t *testing.T) {
	pointings := []Pointing{{DX: 0, DY: 0}, {DX: 6, DY: 0}}
	header := &ImageHeader{
		Width: 100, Height: 100, NumPlanes: 1,
		CellArcsec:   1,
		RefPixel:     Pt(50, 50),
		hasRefPixel:  true,
		Spectral:     SpectralFrequency,
		specRefPixel: 1,
		specRefValue: 230e9,
		specDelta:    1e6,
		specScale:    1,
	}

	got, err := HeaderMosaicCleanRegion(pointings, header, 0, quietParams())
	if err != nil {
		t.Fatalf("HeaderMosaicCleanRegion: %v", err)
	}
	want := MosaicCleanRegion(pointings, 1, 230, Pt(50, 50), quietParams())
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got == QuarterRegion {
		t.Error("overlapping pointings fell back to the quarter region")
	}

	t.Run("no pixel scale", func(t *testing.T) {
		_, err := HeaderMosaicCleanRegion(pointings, &ImageHeader{}, 0, quietParams())
		if !errors.Is(err, ErrInvalidFits) {
			t.Errorf("err = %v, want ErrInvalidFits", err)
		}
	})
	t.Run("no spectral axis", func(t *testing.T) {
		_, err := HeaderMosaicCleanRegion(pointings, &ImageHeader{CellArcsec: 1, NumPlanes: 1}, 0, quietParams())
		if err == nil {
			t.Error("expected an error without a spectral axis")
		}
	})
}

func TestEstimateNoise(t *testing.T) {
	const rows, cols, sigma = 200, 200, 0.5
	rng := rand.New(rand.NewSource(7))
	values := make([]float32, rows*cols)
	for i := range values {
		values[i] = float32(rng.NormFloat64() * sigma)
	}
	values[rows*cols/2] = 1000
	plane := NewPlane(rows, cols, values)
	defer plane.Data.Close()

	got := EstimateNoise(plane)
	if math.Abs(got-sigma) > 0.05 {
		t.Errorf("got %g, want %g +- 0.05", got, sigma)
	}

	empty := Plane{Data: NewMatWithSize(2, 2), Mask: make([]bool, 4)}
	defer empty.Data.Close()
	if got := EstimateNoise(empty); got != 0 {
		t.Errorf("fully masked plane: got %g, want 0", got)
	}
}

func TestDebugOutput(t *testing.T) {
	dir := t.TempDir()
	cube := pointSourceCube()
	defer cube.Close()
	p := quietParams()
	p.DebugDir = dir

	region, err := FindCleanRegion(context.Background(), cube, pointBeam(), 5, p)
	if err != nil {
		t.Fatalf("FindCleanRegion: %v", err)
	}

	text, err := os.ReadFile(filepath.Join(dir, "region.txt"))
	if err != nil {
		t.Fatalf("region.txt: %v", err)
	}
	if string(text) != region {
		t.Errorf("region.txt holds %q, want %q", text, region)
	}
	if _, err := os.Stat(filepath.Join(dir, "beam.txt")); err != nil {
		t.Errorf("beam.txt: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "peak-region.geojson"))
	if err != nil {
		t.Fatalf("peak-region.geojson: %v", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		t.Fatalf("decoding GeoJSON: %v", err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("got %d features, want 1", len(fc.Features))
	}
	poly, ok := fc.Features[0].Geometry.(orb.Polygon)
	if !ok {
		t.Fatalf("geometry is %T, want orb.Polygon", fc.Features[0].Geometry)
	}
	if len(poly) != 1 || len(poly[0]) != 9 {
		t.Errorf("got rings %v, want one closed octagon", poly)
	}
}

func TestDebugOutputMissingDir(t *testing.T) {
	cube := pointSourceCube()
	defer cube.Close()
	p := quietParams()
	p.DebugDir = filepath.Join(t.TempDir(), "missing")

	if _, err := FindCleanRegion(context.Background(), cube, pointBeam(), 5, p); err != nil {
		t.Fatalf("FindCleanRegion: %v", err)
	}
	if _, err := os.Stat(p.DebugDir); !os.IsNotExist(err) {
		t.Errorf("debug directory was created: %v", err)
	}
}

func TestRenderRegionOverlay(t *testing.T) {
	cube := pointSourceCube()
	defer cube.Close()
	region := FormatRegion([]Polygon{NewOctagon(Pt(63, 58), 10)}, 100, 100)
	peaks := []image.Point{{X: 62, Y: 57}}

	data, err := RenderRegionOverlayBytes(cube.Planes[0], region, peaks)
	if err != nil {
		t.Fatalf("RenderRegionOverlayBytes: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decoding PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 500 || b.Dy() != 524 {
		t.Errorf("got %v, want 500x524", b)
	}

	path := filepath.Join(t.TempDir(), "overlay.png")
	if err := RenderRegionOverlay(cube.Planes[0], QuarterRegion, nil, path); err != nil {
		t.Fatalf("RenderRegionOverlay: %v", err)
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		t.Errorf("overlay file: %v", err)
	}

	if _, err := RenderRegionOverlayBytes(cube.Planes[0], "polygon'(1,2,3", nil); err == nil {
		t.Error("malformed region accepted")
	}
}

func TestResolveBeamAxes(t *testing.T) {
	fitted := gaussianPlane(41, 41, Pt(20, 20), 3, 2, 0)
	defer fitted.Data.Close()

	tests := []struct {
		name      string
		header    *ImageHeader
		beam      *ImageHeader
		wantMajor float64
		wantMinor float64
	}{
		{"own axes", &ImageHeader{CellArcsec: 1, BeamMajorArcsec: 5, BeamMinorArcsec: 4}, &ImageHeader{BeamMajorArcsec: 9, BeamMinorArcsec: 9}, 5, 4},
		{"beam header axes", &ImageHeader{CellArcsec: 1}, &ImageHeader{BeamMajorArcsec: 9, BeamMinorArcsec: 8}, 9, 8},
		{"fitted axes", &ImageHeader{CellArcsec: 2}, nil, 6 * sigmaToFWHM, 4 * sigmaToFWHM},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ResolveBeamAxes(tt.header, tt.beam, fitted, quietParams()); err != nil {
				t.Fatalf("ResolveBeamAxes: %v", err)
			}
			if math.Abs(tt.header.BeamMajorArcsec-tt.wantMajor) > 0.02 || math.Abs(tt.header.BeamMinorArcsec-tt.wantMinor) > 0.02 {
				t.Errorf("got %g x %g, want %g x %g", tt.header.BeamMajorArcsec, tt.header.BeamMinorArcsec, tt.wantMajor, tt.wantMinor)
			}
		})
	}

	if err := ResolveBeamAxes(nil, nil, fitted, nil); !errors.Is(err, ErrMalformedBeam) {
		t.Errorf("nil header: err = %v", err)
	}
}
