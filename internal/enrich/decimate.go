package enrich

import "github.com/golang/geo/r3"

// Decimate drops every point closer than epsilon to the last kept point.
// The first point is always kept. A second pass removes nothing.
func Decimate(points []r3.Vector, epsilon float64) []r3.Vector {
	if len(points) == 0 {
		return nil
	}

	out := make([]r3.Vector, 0, len(points))
	out = append(out, points[0])
	last := points[0]

	for _, p := range points[1:] {
		if withinEpsilon(p, last, epsilon) {
			continue
		}
		out = append(out, p)
		last = p
	}
	return out
}

func withinEpsilon(a, b r3.Vector, epsilon float64) bool {
	return a.Sub(b).Norm2() < epsilon*epsilon
}
