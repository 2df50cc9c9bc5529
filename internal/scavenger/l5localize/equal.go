package l5localize

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/banshee-data/scavenger/internal/scavenger"
	"github.com/banshee-data/scavenger/internal/units"
)

// Match is the outcome of comparing two sets of regions.
type Match struct {
	Equal bool
	// Prev and Curr are the first pair found within reach. Both are nil
	// when Equal is false.
	Prev, Curr scavenger.Region
	// DistanceM is the distance of the matching pair, or the smallest
	// distance seen when nothing matched. It is +Inf when either side
	// has no regions.
	DistanceM float64
}

// IsEqual reports whether a device seen in one of prev could have walked to
// one of curr in elapsedS seconds at walkingKmh. Pairs are tried with prev
// as the outer loop and the first pair within reach wins.
func (l *Localizer) IsEqual(prev, curr []scavenger.Region, elapsedS, walkingKmh float64) Match {
	return IsEqual(prev, curr, elapsedS, walkingKmh, l.opts.MeterPerBin)
}

// IsEqual is the Localizer-free form of Localizer.IsEqual for callers that
// only know the bin size.
func IsEqual(prev, curr []scavenger.Region, elapsedS, walkingKmh, meterPerBin float64) Match {
	reach := units.ReachableMeters(elapsedS, walkingKmh, units.KMPH)
	best := math.Inf(1)
	for _, p := range prev {
		pg := RegionGeometry(p)
		if pg == nil {
			continue
		}
		for _, c := range curr {
			cg := RegionGeometry(c)
			if cg == nil {
				continue
			}
			d := GeometryDistance(pg, cg) * meterPerBin
			if d <= reach {
				return Match{Equal: true, Prev: p, Curr: c, DistanceM: d}
			}
			if d < best {
				best = d
			}
		}
	}
	return Match{DistanceM: best}
}

// RegionGeometry converts a region to an orb polygon, line string or point.
// An empty region has no geometry.
func RegionGeometry(r scavenger.Region) orb.Geometry {
	switch r.Kind() {
	case scavenger.RegionPolygon:
		ring := make(orb.Ring, 0, len(r)+1)
		for _, c := range r {
			ring = append(ring, cellPoint(c))
		}
		ring = append(ring, ring[0])
		return orb.Polygon{ring}
	case scavenger.RegionSegment:
		return orb.LineString{cellPoint(r[0]), cellPoint(r[1])}
	case scavenger.RegionPoint:
		return cellPoint(r[0])
	default:
		return nil
	}
}

// RegionCentroid returns the centroid of a region in bin coordinates.
func RegionCentroid(r scavenger.Region) orb.Point {
	g := RegionGeometry(r)
	if g == nil {
		return orb.Point{math.NaN(), math.NaN()}
	}
	c, _ := planar.CentroidArea(g)
	return c
}

func cellPoint(c scavenger.CellPoint) orb.Point {
	return orb.Point{float64(c.X), float64(c.Y)}
}

// GeometryDistance is the shape-to-shape distance between two of the
// geometries RegionGeometry produces: zero when they touch, overlap or one
// contains the other, otherwise the smallest vertex-to-boundary distance.
func GeometryDistance(a, b orb.Geometry) float64 {
	av, bv := vertices(a), vertices(b)
	if containsAny(a, bv) || containsAny(b, av) {
		return 0
	}
	for _, ea := range edges(a) {
		for _, eb := range edges(b) {
			if segmentsIntersect(ea[0], ea[1], eb[0], eb[1]) {
				return 0
			}
		}
	}
	d := math.Inf(1)
	for _, v := range av {
		d = math.Min(d, planar.DistanceFrom(b, v))
	}
	for _, v := range bv {
		d = math.Min(d, planar.DistanceFrom(a, v))
	}
	return d
}

func vertices(g orb.Geometry) []orb.Point {
	switch g := g.(type) {
	case orb.Point:
		return []orb.Point{g}
	case orb.LineString:
		return []orb.Point(g)
	case orb.Polygon:
		ring := g[0]
		return []orb.Point(ring[:len(ring)-1])
	}
	return nil
}

func edges(g orb.Geometry) [][2]orb.Point {
	var pts []orb.Point
	switch g := g.(type) {
	case orb.LineString:
		pts = g
	case orb.Polygon:
		pts = g[0]
	default:
		return nil
	}
	out := make([][2]orb.Point, 0, len(pts))
	for i := 0; i+1 < len(pts); i++ {
		out = append(out, [2]orb.Point{pts[i], pts[i+1]})
	}
	return out
}

func containsAny(g orb.Geometry, pts []orb.Point) bool {
	poly, ok := g.(orb.Polygon)
	if !ok {
		return false
	}
	for _, p := range pts {
		if planar.PolygonContains(poly, p) {
			return true
		}
	}
	return false
}

func orientation(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

// segmentsIntersect reports whether segments p1p2 and q1q2 share a point.
func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := orientation(q1, q2, p1)
	d2 := orientation(q1, q2, p2)
	d3 := orientation(p1, p2, q1)
	d4 := orientation(p1, p2, q2)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}
