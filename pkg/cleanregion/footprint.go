package cleanregion

import (
	"fmt"
	"log"
	"math"
	"sort"
)

const (
	speedOfLight    = 299792458.0
	arcsecPerRadian = 206264.806247
	// halfPowerFraction scales the 1.22 lambda/D first null to the half-power radius.
	halfPowerFraction = 0.51
)

// AntennaClass selects the dish diameter used for primary beam footprints.
type AntennaClass int

const (
	AntennaStandard AntennaClass = iota
	AntennaCompact
)

// Diameter is the effective dish diameter in meters.
func (a AntennaClass) Diameter() float64 {
	if a == AntennaCompact {
		return 3.5
	}
	return 6.1
}

func (a AntennaClass) String() string {
	switch a {
	case AntennaStandard:
		return "standard"
	case AntennaCompact:
		return "compact"
	default:
		return "unknown"
	}
}

// ParseAntennaClass maps a configuration name to an AntennaClass.
func ParseAntennaClass(name string) (AntennaClass, error) {
	switch name {
	case "", "standard":
		return AntennaStandard, nil
	case "compact":
		return AntennaCompact, nil
	default:
		return AntennaStandard, fmt.Errorf("unknown antenna class %q", name)
	}
}

// PrimaryBeamRadius returns the half-power radius of the primary beam in pixels.
func PrimaryBeamRadius(freqGHz, cellArcsec float64, antenna AntennaClass) float64 {
	wavelength := speedOfLight / (freqGHz * 1e9)
	return halfPowerFraction * (1.22 * wavelength / antenna.Diameter()) * arcsecPerRadian / cellArcsec
}

// ImageSize returns the image size in pixels that puts the primary beam inside
// the inner quarter of the map.
func ImageSize(freqGHz, cellArcsec float64, antenna AntennaClass) int {
	wavelength := speedOfLight / (freqGHz * 1e9)
	quarter := (1.22*wavelength/antenna.Diameter())*arcsecPerRadian/cellArcsec + 2
	return int(math.Floor(quarter))
}

// Pointing is an offset in arcseconds from the phase center. Positive DX is east.
type Pointing struct {
	DX, DY float64
}

func (p Pointing) point() Point { return Point{X: p.DX, Y: p.DY} }

// Pixel converts the pointing to image pixels around center. East is toward
// decreasing x.
func (p Pointing) Pixel(cellArcsec float64, center Point) Point {
	return Point{X: center.X - p.DX/cellArcsec, Y: center.Y + p.DY/cellArcsec}
}

// SortPointings puts the eastern-most pointing first, found as the pointing
// nearest a reference twice the image half-width east of the center, followed
// by the rest in increasing distance from it. The input is not modified.
func SortPointings(pointings []Pointing, cellArcsec float64, center Point) []Pointing {
	if len(pointings) == 0 {
		return nil
	}
	east := Point{X: 2 * center.X * cellArcsec, Y: 0}

	first := 0
	best := math.Inf(1)
	for i, p := range pointings {
		if d := Distance(east, p.point()); d < best {
			best = d
			first = i
		}
	}

	sorted := make([]Pointing, 0, len(pointings))
	sorted = append(sorted, pointings[first])
	rest := make([]Pointing, 0, len(pointings)-1)
	rest = append(rest, pointings[:first]...)
	rest = append(rest, pointings[first+1:]...)

	origin := pointings[first].point()
	sort.SliceStable(rest, func(i, j int) bool {
		return Distance(origin, rest[i].point()) < Distance(origin, rest[j].point())
	})
	return append(sorted, rest...)
}

// BuildFootprints returns one octagon of radiusPx per pointing in SortPointings order.
func BuildFootprints(pointings []Pointing, cellArcsec, radiusPx float64, center Point) []Polygon {
	sorted := SortPointings(pointings, cellArcsec, center)
	polys := make([]Polygon, 0, len(sorted))
	for _, p := range sorted {
		polys = append(polys, NewOctagon(p.Pixel(cellArcsec, center), radiusPx))
	}
	return polys
}

// MergeFootprints grows the first footprint by absorbing, one at a time, the
// first remaining footprint that overlaps it. Every footprint of a mosaic must
// end up in one polygon, so a footprint that overlaps nothing is an error.
func MergeFootprints(polys []Polygon, logger *log.Logger) ([]Polygon, error) {
	if logger == nil {
		logger = log.Default()
	}
	work := make([]Polygon, len(polys))
	copy(work, polys)

	for len(work) > 1 {
		joined := false
		for k := 1; k < len(work); k++ {
			out, outcome := MergePolygons(work[0], work[k])
			switch outcome {
			case MergeDisjoint:
				continue
			case MergeAmbiguous:
				logger.Printf("footprint %d overlaps the merged mosaic but has no boundary crossing", k)
				return nil, ErrAmbiguousMerge
			}
			work[0] = out
			work = append(work[:k], work[k+1:]...)
			joined = true
			break
		}
		if !joined {
			logger.Printf("%s: %d footprints left unmerged", ErrNoOverlap, len(work)-1)
			return nil, ErrNoOverlap
		}
	}
	return work, nil
}

// MosaicCleanRegion computes the clean region of a multi-pointing mosaic. center
// is the pixel of the phase center; the region is clipped to twice that offset.
// Any merge failure yields QuarterRegion.
func MosaicCleanRegion(pointings []Pointing, cellArcsec, freqGHz float64, center Point, p *Params) string {
	p = orDefault(p)
	radius := PrimaryBeamRadius(freqGHz, cellArcsec, p.Antenna)
	p.verbosef("primary beam radius %.2f px for %d pointings", radius, len(pointings))
	return mosaicRegion(pointings, cellArcsec, radius, center, p)
}

func mosaicRegion(pointings []Pointing, cellArcsec, radiusPx float64, center Point, p *Params) string {
	if len(pointings) == 0 {
		return QuarterRegion
	}
	polys := BuildFootprints(pointings, cellArcsec, radiusPx, center)
	merged, err := MergeFootprints(polys, p.logger())
	if err != nil {
		p.logger().Printf("mosaic clean region: %v, using %s", err, QuarterRegion)
		return QuarterRegion
	}
	p.maybeSaveGeoJSON("mosaic-region.geojson", merged)
	return FormatRegion(merged, 2*center.X, 2*center.Y)
}
