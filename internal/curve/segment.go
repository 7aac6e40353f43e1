// Package curve splits enriched polylines into chains of length-bounded
// segments for roads and railways.
package curve

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/wegman-software/osm2scs-go/internal/geom"
)

// Defaults for linear features
const (
	DefaultMaxSegmentLength = 50.0
	DefaultViewDistance     = 1400
)

// Config controls chain construction
type Config struct {
	MaxSegmentLength    float64
	RoadViewDistance    int
	RailwayViewDistance int
}

// DefaultConfig returns the stock curve settings
func DefaultConfig() Config {
	return Config{
		MaxSegmentLength:    DefaultMaxSegmentLength,
		RoadViewDistance:    DefaultViewDistance,
		RailwayViewDistance: DefaultViewDistance,
	}
}

// Segment splits a polyline so that no segment is longer than maxLen.
// A pair further apart than maxLen becomes ceil(d/maxLen) equal parts.
// Each segment starts where the previous one ends and the last part of
// every pair ends exactly on the pair's second point.
func Segment(points []r3.Vector, maxLen float64) []geom.Segment {
	if len(points) < 2 {
		return nil
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxSegmentLength
	}

	segs := make([]geom.Segment, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev, next := points[i-1], points[i]
		d := next.Sub(prev).Norm()
		if d <= maxLen {
			segs = append(segs, geom.Segment{Start: prev, Forward: next})
			continue
		}

		count := int(math.Ceil(d / maxLen))
		part := next.Sub(prev).Mul(1 / float64(count))
		start := prev
		for k := 1; k <= count; k++ {
			end := next
			if k < count {
				end = prev.Add(part.Mul(float64(k)))
			}
			segs = append(segs, geom.Segment{Start: start, Forward: end})
			start = end
		}
	}
	return segs
}

// Build turns a decimated polyline into a styled curve chain
func Build(f *geom.Feature, points []r3.Vector, styler Styler, cfg Config) (*geom.CurveChain, error) {
	if len(points) < 2 {
		return nil, geom.ErrInsufficientGeometry
	}

	view := cfg.RoadViewDistance
	if f.Class == geom.ClassRailway {
		view = cfg.RailwayViewDistance
	}

	return &geom.CurveChain{
		FeatureID:    f.ID,
		Class:        f.Class,
		Style:        styler.Style(f),
		ViewDistance: view,
		LinearPath:   true,
		Segments:     Segment(points, cfg.MaxSegmentLength),
	}, nil
}
