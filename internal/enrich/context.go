// Package enrich converts geographic features into local, elevation-aware
// 3D geometry.
//
// Local space: X grows east, Y is elevation, Z grows south. A projected
// coordinate (x, y) maps to (x - Offset.X, h, -(y - Offset.Y)).
package enrich

import (
	"context"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/wegman-software/osm2scs-go/internal/elevation"
	"github.com/wegman-software/osm2scs-go/internal/geom"
	"github.com/wegman-software/osm2scs-go/internal/proj"
)

// DefaultEpsilon is the decimation distance below which points are dropped
const DefaultEpsilon = 0.8

// Context carries the collaborators and the global offset of a run.
// It is a value and is never modified once built.
type Context struct {
	Projection proj.Projection
	Elevation  elevation.Oracle
	Offset     geom.Offset
	Epsilon    float64
}

// NewContext creates a context with the default decimation epsilon
func NewContext(p proj.Projection, oracle elevation.Oracle, off geom.Offset) Context {
	return Context{
		Projection: p,
		Elevation:  oracle,
		Offset:     off,
		Epsilon:    DefaultEpsilon,
	}
}

// ComputeOffset projects the centre of the dataset bounds and snaps it down
// to the terrain tile pitch so tile anchors land on whole tile multiples
func ComputeOffset(p proj.Projection, b geom.Bounds, tileWidth, tileHeight float64) geom.Offset {
	c := b.Center()
	x, y := p.Project(c.Lat, c.Lon)
	return geom.Offset{
		X: snap(x, tileWidth),
		Y: snap(y, tileHeight),
	}
}

func snap(v, pitch float64) float64 {
	if pitch <= 0 {
		return v
	}
	return math.Floor(v/pitch) * pitch
}

// ToLocal converts a geographic coordinate with an elevation to local space
func (c Context) ToLocal(p geom.LatLon, h float64) r3.Vector {
	x, y := c.Projection.Project(p.Lat, p.Lon)
	return r3.Vector{
		X: x - c.Offset.X,
		Y: h,
		Z: -(y - c.Offset.Y),
	}
}

// ToGeo converts a local position back to a geographic coordinate (Y is ignored)
func (c Context) ToGeo(v r3.Vector) geom.LatLon {
	lat, lon := c.Projection.Unproject(v.X+c.Offset.X, -v.Z+c.Offset.Y)
	return geom.LatLon{Lat: lat, Lon: lon}
}

// LocalBounds returns the local-space rectangle covering the dataset bounds,
// with the minimum corner snapped down to the tile pitch
func (c Context) LocalBounds(b geom.Bounds, tileWidth, tileHeight float64) (min, max r3.Vector) {
	// North-west maps to the minimum Z, south-east to the maximum
	nw := c.ToLocal(geom.LatLon{Lat: b.Max.Lat, Lon: b.Min.Lon}, 0)
	se := c.ToLocal(geom.LatLon{Lat: b.Min.Lat, Lon: b.Max.Lon}, 0)

	min = r3.Vector{X: snap(nw.X, tileWidth), Z: snap(nw.Z, tileHeight)}
	max = r3.Vector{X: se.X, Z: se.Z}
	return min, max
}

// EnrichLine samples the elevation along the feature's exact path, converts
// every sample to local space and decimates the result
func (c Context) EnrichLine(ctx context.Context, f *geom.Feature) ([]r3.Vector, error) {
	if len(f.Nodes) < 2 {
		return nil, geom.ErrInsufficientGeometry
	}

	samples, err := c.Elevation.LineElevation(ctx, f.Nodes)
	if err != nil {
		return nil, fmt.Errorf("line elevation for way %d: %w", f.ID, err)
	}

	points := make([]r3.Vector, len(samples))
	for i, s := range samples {
		points[i] = c.ToLocal(s.LatLon, s.Elevation)
	}

	points = Decimate(points, c.epsilon())
	if len(points) < 2 {
		return nil, geom.ErrInsufficientGeometry
	}
	return points, nil
}

// Polygon is a decimated building outline relative to its placement
type Polygon struct {
	// Ring holds the outline without closing point, relative to Position, Y = 0
	Ring []r3.Vector
	// Position is the area centroid in local space, Y is its ground elevation
	Position r3.Vector
}

// EnrichPolygon projects a closed feature flat, decimates it and samples the
// ground elevation once at its centroid
func (c Context) EnrichPolygon(ctx context.Context, f *geom.Feature) (*Polygon, error) {
	nodes := f.Nodes
	if n := len(nodes); n > 1 && nodes[0] == nodes[n-1] {
		nodes = nodes[:n-1]
	}

	ring := make([]r3.Vector, len(nodes))
	for i, p := range nodes {
		ring[i] = c.ToLocal(p, 0)
	}

	eps := c.epsilon()
	ring = Decimate(ring, eps)
	if n := len(ring); n > 3 && withinEpsilon(ring[n-1], ring[0], eps) {
		ring = ring[:n-1]
	}
	if len(ring) < 3 {
		return nil, geom.ErrDegeneratePolygon
	}

	center := centroid(ring)
	h, err := c.Elevation.PointElevation(ctx, c.ToGeo(center))
	if err != nil {
		return nil, fmt.Errorf("centroid elevation for way %d: %w", f.ID, err)
	}

	rel := make([]r3.Vector, len(ring))
	for i, v := range ring {
		rel[i] = r3.Vector{X: v.X - center.X, Z: v.Z - center.Z}
	}

	return &Polygon{
		Ring:     rel,
		Position: r3.Vector{X: center.X, Y: h, Z: center.Z},
	}, nil
}

// centroid returns the area-weighted centroid of a flat ring
func centroid(ring []r3.Vector) r3.Vector {
	r := make(orb.Ring, 0, len(ring)+1)
	for _, v := range ring {
		r = append(r, orb.Point{v.X, v.Z})
	}
	r = append(r, r[0])

	p, _ := planar.CentroidArea(orb.Polygon{r})
	return r3.Vector{X: p[0], Z: p[1]}
}

func (c Context) epsilon() float64 {
	if c.Epsilon > 0 {
		return c.Epsilon
	}
	return DefaultEpsilon
}
