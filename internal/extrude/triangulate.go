package extrude

import (
	"github.com/golang/geo/r3"

	"github.com/wegman-software/osm2scs-go/internal/geom"
)

const areaEpsilon = 1e-9

// SignedArea returns the shoelace area of the ring in the X/Z plane.
// Positive means counter-clockwise. The ring is treated as closed.
func SignedArea(ring []r3.Vector) float64 {
	n := len(ring)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		a, b := ring[i], ring[(i+1)%n]
		sum += a.X*b.Z - b.X*a.Z
	}
	return sum / 2
}

// NormalizeWinding returns the ring in counter-clockwise order,
// reversing a copy when it is clockwise
func NormalizeWinding(ring []r3.Vector) []r3.Vector {
	if SignedArea(ring) >= 0 {
		return ring
	}
	out := make([]r3.Vector, len(ring))
	for i, v := range ring {
		out[len(ring)-1-i] = v
	}
	return out
}

// cross2 is the z component of (b-a) x (c-b) projected on X/Z
func cross2(a, b, c r3.Vector) float64 {
	return (b.X-a.X)*(c.Z-b.Z) - (b.Z-a.Z)*(c.X-b.X)
}

func distinctCount(ring []r3.Vector) int {
	seen := make(map[r3.Vector]struct{}, len(ring))
	for _, v := range ring {
		seen[r3.Vector{X: v.X, Z: v.Z}] = struct{}{}
	}
	return len(seen)
}

// Triangulate splits a simple polygon into triangles by ear clipping.
// The ring must not repeat its first point. Triangles index into ring and
// are counter-clockwise in the X/Z plane.
func Triangulate(ring []r3.Vector) ([]geom.Triangle, error) {
	if distinctCount(ring) < 3 {
		return nil, geom.ErrDegeneratePolygon
	}

	idx := make([]int, len(ring))
	for i := range idx {
		idx[i] = i
	}
	if SignedArea(ring) < 0 {
		for i, j := 0, len(idx)-1; i < j; i, j = i+1, j-1 {
			idx[i], idx[j] = idx[j], idx[i]
		}
	}

	tris := make([]geom.Triangle, 0, len(ring)-2)
	for len(idx) > 3 {
		m := len(idx)
		clipped := false

		for i := 0; i < m; i++ {
			prev, cur, next := idx[(i+m-1)%m], idx[i], idx[(i+1)%m]
			if !isEar(ring, idx, prev, cur, next) {
				continue
			}
			tris = append(tris, geom.Triangle{prev, cur, next})
			idx = append(idx[:i], idx[i+1:]...)
			clipped = true
			break
		}
		if clipped {
			continue
		}

		// No ear: drop a collinear or duplicate vertex, otherwise the
		// ring self-intersects and we clip the first convex corner
		idx = dropStuckVertex(ring, idx, &tris)
	}

	if len(idx) == 3 && cross2(ring[idx[0]], ring[idx[1]], ring[idx[2]]) > areaEpsilon {
		tris = append(tris, geom.Triangle{idx[0], idx[1], idx[2]})
	}

	if len(tris) == 0 {
		return nil, geom.ErrDegeneratePolygon
	}
	return tris, nil
}

func isEar(ring []r3.Vector, idx []int, prev, cur, next int) bool {
	a, b, c := ring[prev], ring[cur], ring[next]
	if cross2(a, b, c) <= areaEpsilon {
		return false
	}
	for _, k := range idx {
		if k == prev || k == cur || k == next {
			continue
		}
		p := ring[k]
		if samePoint(p, a) || samePoint(p, b) || samePoint(p, c) {
			continue
		}
		if inTriangle(p, a, b, c) {
			return false
		}
	}
	return true
}

func dropStuckVertex(ring []r3.Vector, idx []int, tris *[]geom.Triangle) []int {
	m := len(idx)
	for i := 0; i < m; i++ {
		prev, cur, next := idx[(i+m-1)%m], idx[i], idx[(i+1)%m]
		if c := cross2(ring[prev], ring[cur], ring[next]); c > -areaEpsilon && c < areaEpsilon {
			return append(idx[:i], idx[i+1:]...)
		}
	}
	for i := 0; i < m; i++ {
		prev, cur, next := idx[(i+m-1)%m], idx[i], idx[(i+1)%m]
		if cross2(ring[prev], ring[cur], ring[next]) > 0 {
			*tris = append(*tris, geom.Triangle{prev, cur, next})
			return append(idx[:i], idx[i+1:]...)
		}
	}
	// Every corner is reflex, which only a degenerate ring can produce
	return idx[:0]
}

// inTriangle reports whether p lies inside or on the counter-clockwise triangle abc
func inTriangle(p, a, b, c r3.Vector) bool {
	return cross2(a, b, p) >= 0 && cross2(b, c, p) >= 0 && cross2(c, a, p) >= 0
}

func samePoint(a, b r3.Vector) bool {
	return a.X == b.X && a.Z == b.Z
}
