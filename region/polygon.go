// Package region holds the per-signal regions of interest and the point-in-region test.
package region

import (
	"fmt"
	"image"

	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
)

// Points is the number of vertices every stored region must have.
const Points = 4

// Contains reports whether pt lies inside poly using the even-odd rule: a ray is cast
// from pt towards +x and every edge it crosses toggles membership. The last vertex
// connects back to the first.
//
// An edge (p1, p2) is crossed when minY < pt.Y <= maxY and pt.X <= the edge's x at
// pt.Y. Horizontal edges never toggle. For an axis-aligned rectangle this puts points
// on the max-x and max-y sides inside and points on the min-x and min-y sides outside.
//
// Polygons with fewer than 3 vertices contain nothing.
func Contains(pt image.Point, poly iface.Polygon) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	x, y := float64(pt.X), float64(pt.Y)
	inside := false
	p1 := poly[0]
	for i := 1; i <= n; i++ {
		p2 := poly[i%n]
		if p1.Y != p2.Y {
			x1, y1 := float64(p1.X), float64(p1.Y)
			x2, y2 := float64(p2.X), float64(p2.Y)
			if y > min(y1, y2) && y <= max(y1, y2) && x <= max(x1, x2) {
				xinters := (y-y1)*(x2-x1)/(y2-y1) + x1
				if x1 == x2 || x <= xinters {
					inside = !inside
				}
			}
		}
		p1 = p2
	}
	return inside
}

// Validate checks that poly is a usable stored region.
func Validate(poly iface.Polygon) error {
	if len(poly) != Points {
		return fmt.Errorf("%w: want %d points, got %d", iface.ErrInvalidRegion, Points, len(poly))
	}
	return nil
}
