package cleanregion

import (
	"fmt"
	"image"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var clauseOpenings = []string{"polygon'('", "polygon'(", "polygon("}

const clauseOpening = "polygon'("
const clauseClosing = ")'"

// FormatRegion serializes polygons as comma separated polygon'(x1,y1,...)'
// clauses. Coordinates are rounded to whole pixels and clipped to [1, maxX] and
// [1, maxY]. Polygons without area after clipping are dropped; no polygons
// yields QuarterRegion.
func FormatRegion(polys []Polygon, maxX, maxY float64) string {
	clauses := make([]string, 0, len(polys))
	for _, poly := range polys {
		pts := make([]Point, 0, len(poly))
		for _, p := range poly {
			pts = append(pts, Point{X: clipCoord(p.X, maxX), Y: clipCoord(p.Y, maxY)})
		}
		closed := closePolygon(pts)
		// clipping can flatten a polygon onto the image edge
		if len(closed) < 4 || planar.Area(closed.ring()) == 0 {
			continue
		}
		var sb strings.Builder
		sb.WriteString(clauseOpening)
		for i, p := range closed {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "%d,%d", int(p.X), int(p.Y))
		}
		sb.WriteString(clauseClosing)
		clauses = append(clauses, sb.String())
	}
	if len(clauses) == 0 {
		return QuarterRegion
	}
	return strings.Join(clauses, ",")
}

func clipCoord(v, max float64) float64 {
	return math.Max(1, math.Min(math.Round(v), math.Floor(max)))
}

// ParseRegion reads the polygons of a region string back into closed polygons
// with a common counterclockwise winding. QuarterRegion and the empty string
// yield no polygons.
func ParseRegion(region string) ([]Polygon, error) {
	region = strings.TrimSpace(region)
	if region == "" || region == QuarterRegion {
		return nil, nil
	}

	var polys []Polygon
	rest := region
	for {
		start, opening := nextClause(rest)
		if start < 0 {
			break
		}
		body := rest[start+len(opening):]
		end := strings.Index(body, ")")
		if end < 0 {
			return nil, fmt.Errorf("unterminated polygon clause in %q", region)
		}
		poly, err := parseClause(strings.Trim(body[:end], "'"))
		if err != nil {
			return nil, err
		}
		polys = append(polys, poly)
		rest = body[end+1:]
	}
	if len(polys) == 0 {
		return nil, fmt.Errorf("no polygon clause in %q", region)
	}
	return polys, nil
}

func nextClause(s string) (int, string) {
	offset := 0
	for {
		i := strings.Index(s[offset:], "polygon")
		if i < 0 {
			return -1, ""
		}
		offset += i
		for _, opening := range clauseOpenings {
			if strings.HasPrefix(s[offset:], opening) {
				return offset, opening
			}
		}
		offset++
	}
}

func parseClause(body string) (Polygon, error) {
	fields := strings.Split(body, ",")
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("odd number of coordinates in polygon %q", body)
	}
	pts := make([]Point, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		x, err := strconv.Atoi(strings.TrimSpace(fields[i]))
		if err != nil {
			return nil, fmt.Errorf("parsing polygon x coordinate: %w", err)
		}
		y, err := strconv.Atoi(strings.TrimSpace(fields[i+1]))
		if err != nil {
			return nil, fmt.Errorf("parsing polygon y coordinate: %w", err)
		}
		pts = append(pts, Point{X: float64(x), Y: float64(y)})
	}
	poly := closePolygon(pts)
	if len(poly) < 4 {
		return nil, fmt.Errorf("polygon %q has fewer than 3 vertices", body)
	}
	return counterClockwise(poly), nil
}

func counterClockwise(poly Polygon) Polygon {
	if poly.ring().Orientation() != orb.CW {
		return poly
	}
	out := make(Polygon, len(poly))
	for i, p := range poly {
		out[len(poly)-1-i] = p
	}
	return out
}

// PeakPolygons wraps every peak in an octagon of PeakPolygonRadius beam sizes.
// Peaks are 0-based pixel indices; the octagons are centered on the 1-based pixel.
func PeakPolygons(peaks []image.Point, beam *Beam, p *Params) []Polygon {
	p = orDefault(p)
	radius := p.PeakPolygonRadius * float64(beam.Size())
	polys := make([]Polygon, 0, len(peaks))
	for _, pk := range peaks {
		polys = append(polys, NewOctagon(Point{X: float64(pk.X + 1), Y: float64(pk.Y + 1)}, radius))
	}
	return polys
}

// PeakCleanRegion compiles the region around the given peaks of a width x height image.
func PeakCleanRegion(peaks []image.Point, beam *Beam, width, height int, p *Params) string {
	p = orDefault(p)
	if len(peaks) == 0 {
		return QuarterRegion
	}
	merged := mergeRegions(PeakPolygons(peaks, beam, p), p.logger())
	p.maybeSaveGeoJSON("peak-region.geojson", merged)
	return FormatRegion(merged, float64(width), float64(height))
}

// CompactRegions merges the regions computed per spectral window into a single
// region. Windows are visited in ascending order; unparsable regions are logged
// and skipped.
func CompactRegions(regions map[int]string, width, height int, p *Params) string {
	p = orDefault(p)
	windows := make([]int, 0, len(regions))
	for w := range regions {
		windows = append(windows, w)
	}
	sort.Ints(windows)

	var polys []Polygon
	for _, w := range windows {
		parsed, err := ParseRegion(regions[w])
		if err != nil {
			p.logger().Printf("window %d: %v", w, err)
			continue
		}
		polys = append(polys, parsed...)
	}
	if len(polys) == 0 {
		return QuarterRegion
	}
	return FormatRegion(mergeRegions(polys, p.logger()), float64(width), float64(height))
}

// CompactRegionList is CompactRegions for regions listed in window order.
func CompactRegionList(regions []string, width, height int, logger *log.Logger) string {
	byWindow := make(map[int]string, len(regions))
	for i, r := range regions {
		byWindow[i+1] = r
	}
	p := NewParams()
	p.Logger = logger
	return CompactRegions(byWindow, width, height, p)
}
