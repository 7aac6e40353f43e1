package elevation

import (
	"context"
	"time"

	"github.com/wegman-software/osm2scs-go/internal/geom"
)

// GeoPoint is a geographic sample with its elevation in meters
type GeoPoint struct {
	geom.LatLon
	Elevation float64
}

// Oracle answers elevation queries. Implementations must be safe for
// concurrent use across independent batches.
type Oracle interface {
	// PointElevation returns the elevation at a single coordinate
	PointElevation(ctx context.Context, p geom.LatLon) (float64, error)
	// LineElevation samples elevation along a path. The returned samples include
	// the path's vertices; how many points lie in between is up to the oracle.
	LineElevation(ctx context.Context, path []geom.LatLon) ([]GeoPoint, error)
	// BatchElevation returns one elevation per requested point, in request order
	BatchElevation(ctx context.Context, points []geom.LatLon) ([]float64, error)
}

// Constant is an oracle for a flat world
type Constant float64

// PointElevation returns the constant height
func (c Constant) PointElevation(ctx context.Context, p geom.LatLon) (float64, error) {
	return float64(c), ctx.Err()
}

// LineElevation returns the path's vertices at the constant height
func (c Constant) LineElevation(ctx context.Context, path []geom.LatLon) ([]GeoPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]GeoPoint, len(path))
	for i, p := range path {
		out[i] = GeoPoint{LatLon: p, Elevation: float64(c)}
	}
	return out, nil
}

// BatchElevation returns the constant height for every point
func (c Constant) BatchElevation(ctx context.Context, points []geom.LatLon) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float64, len(points))
	for i := range out {
		out[i] = float64(c)
	}
	return out, nil
}

// Observer receives timing information for every oracle call
type Observer interface {
	ObserveElevation(kind string, points int, elapsed time.Duration, err error)
}

// Observed wraps an oracle and reports each call to an observer
type Observed struct {
	Oracle   Oracle
	Observer Observer
}

// PointElevation forwards to the wrapped oracle
func (o Observed) PointElevation(ctx context.Context, p geom.LatLon) (float64, error) {
	start := time.Now()
	h, err := o.Oracle.PointElevation(ctx, p)
	o.Observer.ObserveElevation("point", 1, time.Since(start), err)
	return h, err
}

// LineElevation forwards to the wrapped oracle
func (o Observed) LineElevation(ctx context.Context, path []geom.LatLon) ([]GeoPoint, error) {
	start := time.Now()
	pts, err := o.Oracle.LineElevation(ctx, path)
	o.Observer.ObserveElevation("line", len(path), time.Since(start), err)
	return pts, err
}

// BatchElevation forwards to the wrapped oracle
func (o Observed) BatchElevation(ctx context.Context, points []geom.LatLon) ([]float64, error) {
	start := time.Now()
	hs, err := o.Oracle.BatchElevation(ctx, points)
	o.Observer.ObserveElevation("batch", len(points), time.Since(start), err)
	return hs, err
}
