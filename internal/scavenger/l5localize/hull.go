package l5localize

import (
	"sort"

	"github.com/banshee-data/scavenger/internal/scavenger"
)

func cross(o, a, b scavenger.CellPoint) int {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// convexHull returns the hull of cells counter-clockwise, starting from the
// lowest-x then lowest-y cell. Collinear boundary cells are dropped, so the
// hull of collinear cells is its two end cells and a single cell is a
// one-vertex region.
func convexHull(cells []scavenger.CellPoint) scavenger.Region {
	pts := append([]scavenger.CellPoint(nil), cells...)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})
	uniq := pts[:0]
	for _, p := range pts {
		if len(uniq) == 0 || p != uniq[len(uniq)-1] {
			uniq = append(uniq, p)
		}
	}
	pts = uniq
	if len(pts) < 3 {
		return scavenger.Region(pts)
	}

	hull := make([]scavenger.CellPoint, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return scavenger.Region(hull[:len(hull)-1])
}
