package cleanregion

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r2"
)

// IntersectionKind classifies the outcome of SegmentIntersect.
type IntersectionKind int

const (
	// NoIntersection: the supporting lines are parallel and distinct, or collinear without overlap.
	NoIntersection IntersectionKind = iota
	// ParallelOverlap: the segments are collinear and share at least one point.
	ParallelOverlap
	// Intersecting: the segments cross at Point.
	Intersecting
	// IntersectingOutside: the supporting lines cross at Point, outside at least one segment.
	IntersectingOutside
)

func (k IntersectionKind) String() string {
	switch k {
	case NoIntersection:
		return "None"
	case ParallelOverlap:
		return "ParallelOverlap"
	case Intersecting:
		return "Intersecting"
	case IntersectingOutside:
		return "IntersectingOutside"
	default:
		return "Unknown"
	}
}

// Intersection is the tagged result of SegmentIntersect. Point is only
// meaningful for Intersecting and IntersectingOutside.
type Intersection struct {
	Kind  IntersectionKind
	Point Point
}

const (
	intersectLimit = 1e-5
	// verticalSlope stands in for an infinite slope.
	verticalSlope = 1e10
)

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return r2.Norm(r2.Sub(a.vec(), b.vec()))
}

// IsBetween reports whether v lies in the closed range spanned by start and end.
func IsBetween(start, end, v float64) bool {
	return v <= math.Max(start, end) && v >= math.Min(start, end)
}

func nearlyBetween(start, end, v float64) bool {
	return v <= math.Max(start, end)+intersectLimit && v >= math.Min(start, end)-intersectLimit
}

func slope(start, end Point) float64 {
	if scalar.EqualWithinAbs(start.X, end.X, intersectLimit) {
		return verticalSlope
	}
	return (start.Y - end.Y) / (start.X - end.X)
}

// SegmentIntersect intersects segment startA-endA with segment startB-endB in
// slope/intercept form. Vertical segments use a large finite slope.
func SegmentIntersect(startA, endA, startB, endB Point) Intersection {
	a1 := slope(startA, endA)
	a2 := slope(startB, endB)
	vertA := a1 == verticalSlope
	vertB := a2 == verticalSlope

	if vertA && vertB {
		if !scalar.EqualWithinAbs(startA.X, startB.X, intersectLimit) {
			return Intersection{Kind: NoIntersection}
		}
		if rangesOverlap(startA.Y, endA.Y, startB.Y, endB.Y) {
			return Intersection{Kind: ParallelOverlap}
		}
		return Intersection{Kind: NoIntersection}
	}

	b1 := startA.Y - a1*startA.X
	b2 := startB.Y - a2*startB.X

	if !vertA && !vertB && scalar.EqualWithinAbs(a1, a2, intersectLimit) {
		if !scalar.EqualWithinAbs(b1, b2, intersectLimit) {
			return Intersection{Kind: NoIntersection}
		}
		if rangesOverlap(startA.X, endA.X, startB.X, endB.X) {
			return Intersection{Kind: ParallelOverlap}
		}
		return Intersection{Kind: NoIntersection}
	}

	var x, y float64
	switch {
	case vertA:
		x = startA.X
		y = a2*x + b2
	case vertB:
		x = startB.X
		y = a1*x + b1
	default:
		x = -(b1 - b2) / (a1 - a2)
		y = a1*x + b1
	}

	p := Point{X: x, Y: y}
	if nearlyBetween(startA.X, endA.X, x) && nearlyBetween(startB.X, endB.X, x) &&
		nearlyBetween(startA.Y, endA.Y, y) && nearlyBetween(startB.Y, endB.Y, y) {
		return Intersection{Kind: Intersecting, Point: p}
	}
	return Intersection{Kind: IntersectingOutside, Point: p}
}

func rangesOverlap(startA, endA, startB, endB float64) bool {
	return IsBetween(startB, endB, startA) || IsBetween(startB, endB, endA) ||
		IsBetween(startA, endA, startB)
}

// PointInPolygon tests (x, y) against poly by ray casting. Points on the
// boundary are not inside.
func PointInPolygon(poly Polygon, x, y float64) bool {
	pts := poly.Vertices()
	n := len(pts)
	if n < 3 {
		return false
	}

	if onBoundary(pts, Point{X: x, Y: y}) {
		return false
	}

	inside := false
	for i := 0; i < n; i++ {
		pi, pj := pts[i], pts[(i+1)%n]
		// The strict/non-strict pair never admits a horizontal edge.
		if (pi.Y < y && pj.Y >= y) || (pj.Y < y && pi.Y >= y) {
			if pi.X+(y-pi.Y)/(pj.Y-pi.Y)*(pj.X-pi.X) < x {
				inside = !inside
			}
		}
	}
	return inside
}

const boundaryTolerance = 1e-9

// onBoundary reports whether p lies on an edge of the ring with vertices pts.
func onBoundary(pts []Point, p Point) bool {
	n := len(pts)
	for i := 0; i < n; i++ {
		if onSegment(pts[i], pts[(i+1)%n], p) {
			return true
		}
	}
	return false
}

func onSegment(a, b, p Point) bool {
	dx := b.X - a.X
	dy := b.Y - a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return samePoint(a, p)
	}
	cross := dx*(p.Y-a.Y) - dy*(p.X-a.X)
	if math.Abs(cross) > boundaryTolerance*length {
		return false
	}
	return p.X <= math.Max(a.X, b.X)+boundaryTolerance && p.X >= math.Min(a.X, b.X)-boundaryTolerance &&
		p.Y <= math.Max(a.Y, b.Y)+boundaryTolerance && p.Y >= math.Min(a.Y, b.Y)-boundaryTolerance
}

// SortByDistance returns pts ordered by increasing distance from ref. Ties keep their input order.
func SortByDistance(pts []Point, ref Point) []Point {
	out := make([]Point, len(pts))
	copy(out, pts)
	sort.SliceStable(out, func(i, j int) bool {
		return Distance(out[i], ref) < Distance(out[j], ref)
	})
	return out
}
