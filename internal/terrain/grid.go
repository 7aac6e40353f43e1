// Package terrain builds fixed-topology ground tiles that cover the dataset
// and fills their lattice heights from the elevation oracle.
package terrain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/wegman-software/osm2scs-go/internal/enrich"
	"github.com/wegman-software/osm2scs-go/internal/geom"
)

// Defaults for terrain generation
const (
	DefaultCols         = 32
	DefaultRows         = 16
	DefaultStep         = geom.Step16
	DefaultBatchSize    = 128
	DefaultBias         = -0.15
	DefaultViewDistance = 1500
	DefaultImageryZoom  = 18
)

// Config holds the tile topology
type Config struct {
	Cols         int
	Rows         int
	Step         geom.StepSize
	ViewDistance int
	ImageryZoom  int
}

// DefaultConfig returns a 32x16 grid of 16 unit quads
func DefaultConfig() Config {
	return Config{
		Cols:         DefaultCols,
		Rows:         DefaultRows,
		Step:         DefaultStep,
		ViewDistance: DefaultViewDistance,
		ImageryZoom:  DefaultImageryZoom,
	}
}

// TileWidth returns the tile extent along X, which is also the tile pitch
func (c Config) TileWidth() float64 {
	return float64(c.Cols) * float64(c.Step)
}

// TileHeight returns the tile extent along Z
func (c Config) TileHeight() float64 {
	return float64(c.Rows) * float64(c.Step)
}

// Validate checks the topology
func (c Config) Validate() error {
	if c.Cols <= 0 || c.Rows <= 0 {
		return fmt.Errorf("terrain grid must have positive columns and rows, got %dx%d", c.Cols, c.Rows)
	}
	if !c.Step.Valid() {
		return fmt.Errorf("unsupported terrain step size %d (allowed: 2, 4, 12, 16)", c.Step)
	}
	return nil
}

// ParseStepSize parses a quad size from its decimal form
func ParseStepSize(s string) (geom.StepSize, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid step size %q: %w", s, err)
	}
	step := geom.StepSize(v)
	if !step.Valid() {
		return 0, fmt.Errorf("unsupported step size %d (allowed: 2, 4, 12, 16)", v)
	}
	return step, nil
}

// Layout returns the anchors of the tiles covering [min, max) in local space,
// row by row from the minimum Z. Anchors are integer multiples of the pitch
// away from min so neighbouring tiles share their edges exactly.
func Layout(min, max r3.Vector, cols, rows int, step geom.StepSize) []r3.Vector {
	width := float64(cols) * float64(step)
	height := float64(rows) * float64(step)
	if width <= 0 || height <= 0 {
		return nil
	}

	nx := tileCount(max.X-min.X, width)
	nz := tileCount(max.Z-min.Z, height)

	anchors := make([]r3.Vector, 0, nx*nz)
	for iz := 0; iz < nz; iz++ {
		for ix := 0; ix < nx; ix++ {
			anchors = append(anchors, r3.Vector{
				X: min.X + float64(ix)*width,
				Z: min.Z + float64(iz)*height,
			})
		}
	}
	return anchors
}

func tileCount(extent, pitch float64) int {
	n := int(math.Ceil(extent / pitch))
	if n < 1 {
		return 1
	}
	return n
}

// NewTile creates a flat tile with its lattice laid out column by column
func NewTile(index int, anchor r3.Vector, cols, rows int, step geom.StepSize) *geom.TerrainTile {
	offsets := make([]geom.VertexOffset, 0, (cols+1)*(rows+1))
	for c := 0; c <= cols; c++ {
		for r := 0; r <= rows; r++ {
			offsets = append(offsets, geom.VertexOffset{
				Col:      c,
				Row:      r,
				Position: r3.Vector{X: float64(c) * float64(step), Z: float64(r) * float64(step)},
			})
		}
	}

	return &geom.TerrainTile{
		Index:   index,
		Anchor:  anchor,
		Forward: anchor.Add(r3.Vector{X: float64(cols) * float64(step)}),
		Cols:    cols,
		Rows:    rows,
		Step:    step,
		Offsets: offsets,
	}
}

// BuildTiles lays out and creates every tile covering the local bounds,
// including its geographic footprint
func BuildTiles(ec enrich.Context, min, max r3.Vector, cfg Config) []*geom.TerrainTile {
	anchors := Layout(min, max, cfg.Cols, cfg.Rows, cfg.Step)
	tiles := make([]*geom.TerrainTile, len(anchors))
	for i, a := range anchors {
		t := NewTile(i, a, cfg.Cols, cfg.Rows, cfg.Step)
		t.ViewDistance = cfg.ViewDistance
		t.Footprint = Footprint(ec, t, cfg.ImageryZoom)
		tiles[i] = t
	}
	return tiles
}

// Footprint converts the tile's corners back to geographic coordinates and
// lists the imagery tiles at the given zoom that cover it
func Footprint(ec enrich.Context, t *geom.TerrainTile, zoom int) geom.Footprint {
	// The anchor is the north-west corner since Z grows southwards
	nw := ec.ToGeo(t.Anchor)
	se := ec.ToGeo(t.Anchor.Add(r3.Vector{X: t.Width(), Z: t.Height()}))

	fp := geom.Footprint{
		Min: geom.LatLon{Lat: math.Min(nw.Lat, se.Lat), Lon: math.Min(nw.Lon, se.Lon)},
		Max: geom.LatLon{Lat: math.Max(nw.Lat, se.Lat), Lon: math.Max(nw.Lon, se.Lon)},
	}
	if zoom > 0 {
		fp.ImageryTiles = imageryTiles(fp, maptile.Zoom(zoom))
	}
	return fp
}

func imageryTiles(fp geom.Footprint, z maptile.Zoom) []string {
	// Tile Y grows southwards, so the north-west corner has the smallest indices
	first := maptile.At(orb.Point{fp.Min.Lon, fp.Max.Lat}, z)
	last := maptile.At(orb.Point{fp.Max.Lon, fp.Min.Lat}, z)

	var names []string
	for y := first.Y; y <= last.Y; y++ {
		for x := first.X; x <= last.X; x++ {
			names = append(names, fmt.Sprintf("%d/%d/%d", z, x, y))
		}
	}
	return names
}
