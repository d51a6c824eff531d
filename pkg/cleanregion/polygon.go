package cleanregion

import (
	"log"
	"math"
)

// octagonAngle places the vertices 22.5 degrees off the axes.
const octagonAngle = 22.5 * math.Pi / 180.0

// NewOctagon returns the closed octagon of the given radius around center.
// Vertices start at 112.5 degrees and advance counterclockwise in 45 degree
// steps, so octagons of equal radius are comparable vertex by vertex.
func NewOctagon(center Point, radius float64) Polygon {
	o1 := radius * math.Sin(octagonAngle)
	o2 := math.Sqrt(radius*radius - o1*o1)
	template := [8][2]float64{
		{-o1, o2},
		{-o2, o1},
		{-o2, -o1},
		{-o1, -o2},
		{o1, -o2},
		{o2, -o1},
		{o2, o1},
		{o1, o2},
	}
	poly := make(Polygon, 0, 9)
	for _, t := range template {
		poly = append(poly, Point{X: center.X + t[0], Y: center.Y + t[1]})
	}
	return append(poly, poly[0])
}

// MergeOutcome tags the result of merging one polygon into another.
type MergeOutcome int

const (
	// MergeDisjoint: no vertex of either polygon lies inside the other.
	MergeDisjoint MergeOutcome = iota
	// MergeContained: one polygon lies entirely inside the other, which is kept.
	MergeContained
	// MergeJoined: the exterior arc of one polygon was spliced into the other.
	MergeJoined
	// MergeAmbiguous: vertices lie inside but the boundary crossings could not be resolved.
	MergeAmbiguous
)

func (o MergeOutcome) String() string {
	switch o {
	case MergeDisjoint:
		return "Disjoint"
	case MergeContained:
		return "Contained"
	case MergeJoined:
		return "Joined"
	case MergeAmbiguous:
		return "Ambiguous"
	default:
		return "Unknown"
	}
}

// MergePolygons merges b into a by testing the vertices of b against a and, if
// none is inside, the vertices of a against b. Both polygons must share the
// same winding. The result is only meaningful for Contained and Joined.
func MergePolygons(a, b Polygon) (Polygon, MergeOutcome) {
	if !a.bound().Intersects(b.bound()) {
		return nil, MergeDisjoint
	}
	merged, outcome := spliceInto(a, b)
	if outcome != MergeDisjoint {
		return merged, outcome
	}
	return spliceInto(b, a)
}

// spliceInto merges other into main using only the vertices of other that lie
// inside main. other is contained when every vertex is inside or on main.
func spliceInto(main, other Polygon) (Polygon, MergeOutcome) {
	mv := main.Vertices()
	ov := other.Vertices()
	n := len(ov)
	if len(mv) < 3 || n < 3 {
		return nil, MergeDisjoint
	}

	// vertices on the boundary of main count as covered but not as inside, so
	// coincident polygons are contained rather than disjoint
	inside := make([]bool, n)
	count, covered := 0, 0
	for i, v := range ov {
		switch {
		case PointInPolygon(main, v.X, v.Y):
			inside[i] = true
			count++
			covered++
		case onBoundary(mv, v):
			covered++
		}
	}
	if covered == n {
		return main.Clone(), MergeContained
	}
	if count == 0 {
		return nil, MergeDisjoint
	}

	exit, entry := -1, -1
	for i := 0; i < n; i++ {
		next := (i + 1) % n
		switch {
		case inside[i] && !inside[next]:
			if exit >= 0 {
				return nil, MergeAmbiguous
			}
			exit = i
		case !inside[i] && inside[next]:
			if entry >= 0 {
				return nil, MergeAmbiguous
			}
			entry = i
		}
	}

	// other leaves main between ov[exit] and ov[exit+1] and comes back between ov[entry] and ov[entry+1].
	start, ok := boundaryCrossing(mv, ov[exit], ov[(exit+1)%n])
	if !ok {
		return nil, MergeAmbiguous
	}
	end, ok := boundaryCrossing(mv, ov[(entry+1)%n], ov[entry])
	if !ok {
		return nil, MergeAmbiguous
	}

	arc := make([]Point, 0, n)
	for k := (exit + 1) % n; ; k = (k + 1) % n {
		arc = append(arc, ov[k])
		if k == entry {
			break
		}
	}

	// main keeps its boundary from the entry point forward to the exit point.
	m := len(mv)
	kept := (start.edge - end.edge + m) % m
	if kept == 0 && start.t <= end.t {
		kept = m
	}

	prefix := make([]Point, 0, kept+1)
	prefix = append(prefix, end.point)
	for k := 1; k <= kept; k++ {
		prefix = append(prefix, mv[(end.edge+k)%m])
	}

	out := make([]Point, 0, len(prefix)+len(arc)+2)
	out = append(out, prefix...)
	out = append(out, start.point)
	out = append(out, arc...)
	return closePolygon(out), MergeJoined
}

type crossing struct {
	point Point
	edge  int
	t     float64
}

// boundaryCrossing finds where the segment from-to crosses the boundary of the
// polygon with vertices mv, choosing the crossing nearest to from.
func boundaryCrossing(mv []Point, from, to Point) (crossing, bool) {
	best := crossing{edge: -1}
	bestDist := math.Inf(1)
	m := len(mv)
	for k := 0; k < m; k++ {
		a, b := mv[k], mv[(k+1)%m]
		r := SegmentIntersect(from, to, a, b)
		if r.Kind != Intersecting {
			continue
		}
		if d := Distance(from, r.Point); d < bestDist {
			bestDist = d
			t := 0.0
			if l := Distance(a, b); l > 0 {
				t = Distance(a, r.Point) / l
			}
			best = crossing{point: r.Point, edge: k, t: t}
		}
	}
	return best, best.edge >= 0
}

// mergeRegions coalesces every overlapping pair until none is left. Pairs that
// turn out disjoint or ambiguous stay as separate polygons.
func mergeRegions(polys []Polygon, logger *log.Logger) []Polygon {
	work := make([]Polygon, len(polys))
	copy(work, polys)

	for {
		merged := false
		ambiguous := 0
		for i := 0; i < len(work) && !merged; i++ {
			for j := i + 1; j < len(work); j++ {
				out, outcome := MergePolygons(work[i], work[j])
				if outcome == MergeAmbiguous {
					ambiguous++
					continue
				}
				if outcome == MergeDisjoint {
					continue
				}
				work[i] = out
				work = append(work[:j], work[j+1:]...)
				merged = true
				break
			}
		}
		if !merged {
			if ambiguous > 0 {
				logger.Printf("%d overlapping polygon pairs could not be merged, keeping them separate", ambiguous)
			}
			return work
		}
	}
}
