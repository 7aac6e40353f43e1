package proj

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// SRID constants for supported projections
const (
	SRID3857 = 3857 // Web Mercator
)

// Projection converts between geographic and planar coordinates.
// Implementations must be pure and safe for concurrent use.
type Projection interface {
	// Project converts lat/lon to planar x/y (meters, y grows north)
	Project(lat, lon float64) (x, y float64)
	// Unproject is the inverse of Project
	Unproject(x, y float64) (lat, lon float64)
	SRID() int
}

// maxMercatorLat keeps projected coordinates finite near the poles
const maxMercatorLat = 85.06

// WebMercator is the spherical Web Mercator projection (EPSG:3857)
type WebMercator struct{}

// Project converts WGS84 lat/lon to Web Mercator x/y
func (WebMercator) Project(lat, lon float64) (x, y float64) {
	if lat > maxMercatorLat {
		lat = maxMercatorLat
	} else if lat < -maxMercatorLat {
		lat = -maxMercatorLat
	}
	p := project.WGS84.ToMercator(orb.Point{lon, lat})
	return p.X(), p.Y()
}

// Unproject converts Web Mercator x/y back to WGS84 lat/lon
func (WebMercator) Unproject(x, y float64) (lat, lon float64) {
	p := project.Mercator.ToWGS84(orb.Point{x, y})
	return p.Lat(), p.Lon()
}

// SRID returns 3857
func (WebMercator) SRID() int {
	return SRID3857
}

// Parse returns the projection for a name or SRID string.
// Accepts: "3857", "EPSG:3857", "webmercator", "mercator"
func Parse(s string) (Projection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "3857", "epsg:3857", "webmercator", "mercator":
		return WebMercator{}, nil
	default:
		return nil, fmt.Errorf("unsupported projection: %s (supported: 3857)", s)
	}
}
