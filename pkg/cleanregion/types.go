package cleanregion

import (
	"errors"
	"fmt"
	"image"
	"log"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/spatial/r2"
)

// QuarterRegion is the fallback region meaning "clean the inner quarter of the image".
const QuarterRegion = "quarter"

var (
	ErrNoOverlap      = errors.New("regions do not overlap")
	ErrAmbiguousMerge = errors.New("ambiguous polygon merge")
	ErrMalformedBeam  = errors.New("malformed beam")
	ErrEmptyCube      = errors.New("empty image cube")
	ErrInvalidFits    = errors.New("invalid FITS")
)

// Point is a pixel position. Coordinates may be fractional until a region is serialized.
type Point struct {
	X, Y float64
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point { return Point{X: x, Y: y} }

func (p Point) vec() r2.Vec { return r2.Vec{X: p.X, Y: p.Y} }

func (p Point) String() string { return fmt.Sprintf("(%g,%g)", p.X, p.Y) }

// Polygon is a closed vertex sequence: the last point repeats the first.
type Polygon []Point

// Vertices returns the distinct vertices without the closing point.
func (poly Polygon) Vertices() []Point {
	n := len(poly)
	if n > 1 && samePoint(poly[0], poly[n-1]) {
		return poly[:n-1]
	}
	return poly
}

func (poly Polygon) ring() orb.Ring {
	ring := make(orb.Ring, len(poly))
	for i, p := range poly {
		ring[i] = orb.Point{p.X, p.Y}
	}
	return ring
}

func (poly Polygon) bound() orb.Bound {
	return poly.ring().Bound()
}

// Clone returns an independent copy.
func (poly Polygon) Clone() Polygon {
	out := make(Polygon, len(poly))
	copy(out, poly)
	return out
}

// closePolygon returns pts as a closed polygon with consecutive duplicates removed.
func closePolygon(pts []Point) Polygon {
	out := make(Polygon, 0, len(pts)+1)
	for _, p := range pts {
		if len(out) > 0 && samePoint(out[len(out)-1], p) {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && samePoint(out[0], out[len(out)-1]) {
		out = out[:len(out)-1]
	}
	if len(out) > 0 {
		out = append(out, out[0])
	}
	return out
}

const samePointTolerance = 1e-9

func samePoint(a, b Point) bool {
	return math.Abs(a.X-b.X) <= samePointTolerance && math.Abs(a.Y-b.Y) <= samePointTolerance
}

// Beam describes the synthesized beam: main lobe axes in pixels, position angle
// in degrees and the pixel offsets of every lobe above the detection threshold.
type Beam struct {
	Major     float64
	Minor     float64
	PA        float64
	Sidelobes []image.Point
}

// Size is the mean main lobe axis rounded up to whole pixels.
func (b *Beam) Size() int {
	return int(math.Ceil((b.Major + b.Minor) / 2.0))
}

func (b *Beam) String() string {
	return fmt.Sprintf("{Major=%.2f, Minor=%.2f, PA=%.1f, Sidelobes=%d}", b.Major, b.Minor, b.PA, len(b.Sidelobes))
}

// Params contains the tunables of the clean region computation.
type Params struct {
	// Workers bounds the number of planes scanned concurrently.
	Workers int
	// BeamThreshold is the fraction of the beam peak above which a lobe is recorded.
	BeamThreshold float64
	// EraseHalfWidth is the half side, in beam sizes, of the square erased around every lobe of a found peak.
	EraseHalfWidth float64
	// PeakPolygonRadius is the radius, in beam sizes, of the octagon wrapped around every peak.
	PeakPolygonRadius float64
	Antenna           AntennaClass
	// DebugDir receives working planes and GeoJSON polygons when it names an existing directory.
	DebugDir string
	Verbose  bool
	Logger   *log.Logger
}

// NewParams creates Params with default values.
func NewParams() *Params {
	return &Params{
		Workers:           5,
		BeamThreshold:     0.08,
		EraseHalfWidth:    2.0,
		PeakPolygonRadius: 2.5,
		Antenna:           AntennaStandard,
	}
}

func (p *Params) logger() *log.Logger {
	if p == nil || p.Logger == nil {
		return log.Default()
	}
	return p.Logger
}

func (p *Params) verbosef(format string, args ...interface{}) {
	if p != nil && p.Verbose {
		p.logger().Printf(format, args...)
	}
}

func orDefault(p *Params) *Params {
	if p == nil {
		return NewParams()
	}
	return p
}
