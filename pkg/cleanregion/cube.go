package cleanregion

import (
	"fmt"
	"math"
	"strings"
)

// Plane is one 2D flux image. Mask is true for valid pixels and may be nil,
// meaning every pixel is valid.
type Plane struct {
	Data Mat
	Mask []bool
}

// Valid reports whether pixel (x, y) carries data.
func (p Plane) Valid(x, y int) bool {
	if p.Mask == nil {
		return true
	}
	return p.Mask[y*p.Data.Cols()+x]
}

// Cube is an image cube: a stack of equally sized planes plus the header
// describing them.
type Cube struct {
	Planes []Plane
	Header *ImageHeader
}

// NewCube wraps planes into a cube with a minimal header.
func NewCube(planes ...Plane) *Cube {
	c := &Cube{Planes: planes}
	if len(planes) > 0 {
		c.Header = &ImageHeader{Width: planes[0].Data.Cols(), Height: planes[0].Data.Rows(), NumPlanes: len(planes)}
	}
	return c
}

func (c *Cube) Width() int {
	if len(c.Planes) == 0 {
		return 0
	}
	return c.Planes[0].Data.Cols()
}

func (c *Cube) Height() int {
	if len(c.Planes) == 0 {
		return 0
	}
	return c.Planes[0].Data.Rows()
}

// Close releases the pixel data of every plane.
func (c *Cube) Close() {
	for i := range c.Planes {
		c.Planes[i].Data.Close()
	}
}

// SpectralAxis identifies the world coordinate of the third image axis.
type SpectralAxis string

const (
	SpectralNone      SpectralAxis = ""
	SpectralFrequency SpectralAxis = "FREQ"
	SpectralVelocity  SpectralAxis = "VELO"
	SpectralOptical   SpectralAxis = "FELO"
)

// ImageHeader is the subset of the FITS header needed to compute clean regions.
type ImageHeader struct {
	Width, Height, NumPlanes int

	// CellArcsec is the pixel scale in arcseconds.
	CellArcsec float64
	// Beam axes in arcseconds, position angle in degrees.
	BeamMajorArcsec float64
	BeamMinorArcsec float64
	BeamPA          float64

	// RefPixel is the 1-based reference pixel of the celestial axes.
	RefPixel    Point
	hasRefPixel bool

	Spectral      SpectralAxis
	RestFrequency float64 // Hz
	specRefPixel  float64
	specRefValue  float64
	specDelta     float64
	specScale     float64 // to Hz or m/s

	Metadata *FitsMetadata
}

func newImageHeader(m *FitsMetadata, width, height, planes int) *ImageHeader {
	h := &ImageHeader{Width: width, Height: height, NumPlanes: planes, Metadata: m}

	if cdelt, ok := m.GetDouble("CDELT1"); ok {
		h.CellArcsec = math.Abs(cdelt) * 3600
	}
	if v, ok := m.GetDouble("BMAJ"); ok {
		h.BeamMajorArcsec = v * 3600
	}
	if v, ok := m.GetDouble("BMIN"); ok {
		h.BeamMinorArcsec = v * 3600
	}
	h.BeamPA, _ = m.GetDouble("BPA")

	x, okX := m.GetDouble("CRPIX1")
	y, okY := m.GetDouble("CRPIX2")
	if okX && okY {
		h.RefPixel = Point{X: x, Y: y}
		h.hasRefPixel = true
	}

	if v, ok := m.GetDouble("RESTFRQ"); ok {
		h.RestFrequency = v
	} else if v, ok := m.GetDouble("RESTFREQ"); ok {
		h.RestFrequency = v
	}

	for axis := 3; axis <= 4; axis++ {
		ctype := strings.ToUpper(m.GetString(fmt.Sprintf("CTYPE%d", axis)))
		var kind SpectralAxis
		switch {
		case strings.HasPrefix(ctype, "FREQ"):
			kind = SpectralFrequency
		case strings.HasPrefix(ctype, "VELO"), strings.HasPrefix(ctype, "VRAD"):
			kind = SpectralVelocity
		case strings.HasPrefix(ctype, "FELO"), strings.HasPrefix(ctype, "VOPT"):
			kind = SpectralOptical
		default:
			continue
		}
		h.Spectral = kind
		h.specRefPixel, _ = m.GetDouble(fmt.Sprintf("CRPIX%d", axis))
		h.specRefValue, _ = m.GetDouble(fmt.Sprintf("CRVAL%d", axis))
		h.specDelta, _ = m.GetDouble(fmt.Sprintf("CDELT%d", axis))
		h.specScale = unitScale(m.GetString(fmt.Sprintf("CUNIT%d", axis)))
		break
	}
	return h
}

func unitScale(unit string) float64 {
	switch strings.ToUpper(strings.TrimSpace(unit)) {
	case "GHZ":
		return 1e9
	case "MHZ":
		return 1e6
	case "KHZ":
		return 1e3
	case "KM/S":
		return 1e3
	}
	return 1
}

// BeamMajorPixels is the beam major axis in pixels.
func (h *ImageHeader) BeamMajorPixels() float64 {
	if h.CellArcsec <= 0 {
		return 0
	}
	return h.BeamMajorArcsec / h.CellArcsec
}

// BeamMinorPixels is the beam minor axis in pixels.
func (h *ImageHeader) BeamMinorPixels() float64 {
	if h.CellArcsec <= 0 {
		return 0
	}
	return h.BeamMinorArcsec / h.CellArcsec
}

// Center is the 1-based reference pixel, or the middle of the image when the
// header does not carry one.
func (h *ImageHeader) Center() Point {
	if h.hasRefPixel {
		return h.RefPixel
	}
	return Point{X: float64(h.Width) / 2, Y: float64(h.Height) / 2}
}

// PlaneFrequency returns the observing frequency of a 0-based plane in GHz.
// Velocity axes are converted with the radio convention f = f0 - v*f0/c.
func (h *ImageHeader) PlaneFrequency(plane int) (float64, error) {
	if plane < 0 || (h.NumPlanes > 0 && plane >= h.NumPlanes) {
		return 0, fmt.Errorf("plane %d out of range [0, %d)", plane, h.NumPlanes)
	}
	value := (h.specRefValue + (float64(plane+1)-h.specRefPixel)*h.specDelta) * h.specScale
	switch h.Spectral {
	case SpectralFrequency:
		return value / 1e9, nil
	case SpectralVelocity, SpectralOptical:
		if h.RestFrequency <= 0 {
			return 0, fmt.Errorf("velocity axis without rest frequency")
		}
		return (h.RestFrequency - value*h.RestFrequency/speedOfLight) / 1e9, nil
	default:
		return 0, fmt.Errorf("image has no spectral axis")
	}
}

// SetBeamPixels stores a fitted beam, converting its axes to arcseconds.
func (h *ImageHeader) SetBeamPixels(fit *BeamFit) {
	h.BeamMajorArcsec = fit.Major * h.CellArcsec
	h.BeamMinorArcsec = fit.Minor * h.CellArcsec
	h.BeamPA = fit.PA
}
