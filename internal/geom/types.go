package geom

import (
	"errors"
	"fmt"
	"image/color"
	"math"

	"github.com/golang/geo/r3"
)

// Geometry errors that reject a single feature without aborting the run
var (
	ErrInsufficientGeometry = errors.New("insufficient geometry")
	ErrDegeneratePolygon    = errors.New("degenerate polygon")
)

// LatLon is a geographic coordinate in degrees
type LatLon struct {
	Lat float64
	Lon float64
}

// String returns the coordinate as "lat,lon"
func (p LatLon) String() string {
	return fmt.Sprintf("%.7f,%.7f", p.Lat, p.Lon)
}

// Bounds is a geographic bounding box
type Bounds struct {
	Min LatLon
	Max LatLon
	set bool
}

// NewBounds creates bounds from two corners
func NewBounds(min, max LatLon) Bounds {
	return Bounds{Min: min, Max: max, set: true}
}

// Extend grows the bounds to include p
func (b *Bounds) Extend(p LatLon) {
	if !b.set {
		b.Min, b.Max, b.set = p, p, true
		return
	}
	b.Min.Lat = math.Min(b.Min.Lat, p.Lat)
	b.Min.Lon = math.Min(b.Min.Lon, p.Lon)
	b.Max.Lat = math.Max(b.Max.Lat, p.Lat)
	b.Max.Lon = math.Max(b.Max.Lon, p.Lon)
}

// IsEmpty reports whether no point was ever added
func (b Bounds) IsEmpty() bool {
	return !b.set
}

// Center returns the midpoint of the bounds
func (b Bounds) Center() LatLon {
	return LatLon{
		Lat: b.Min.Lat + (b.Max.Lat-b.Min.Lat)/2,
		Lon: b.Min.Lon + (b.Max.Lon-b.Min.Lon)/2,
	}
}

// Kind is the geometry kind of a feature
type Kind int

const (
	KindPolyline Kind = iota
	KindPolygon
)

// Class is the feature class a way belongs to
type Class int

const (
	ClassHighway Class = iota
	ClassRailway
	ClassBuilding
)

// String returns the tag key the class is derived from
func (c Class) String() string {
	switch c {
	case ClassHighway:
		return "highway"
	case ClassRailway:
		return "railway"
	case ClassBuilding:
		return "building"
	default:
		return "unknown"
	}
}

// Feature is a tagged way read from the source data
type Feature struct {
	ID    int64
	Kind  Kind
	Class Class
	Nodes []LatLon
	Tags  map[string]string
}

// Offset is the global translation applied to all projected coordinates
type Offset struct {
	X float64
	Y float64
}

// Vertex is a mesh vertex with a single texture coordinate
type Vertex struct {
	Position r3.Vector
	Normal   r3.Vector
	Color    color.RGBA
	UV       [2]float32
}

// Triangle holds three vertex indices, counter-clockwise seen from the outward face
type Triangle [3]int

// Inverted returns the triangle with its winding reversed
func (t Triangle) Inverted() Triangle {
	return Triangle{t[0], t[2], t[1]}
}

// Mesh is an indexed triangle mesh
type Mesh struct {
	Vertices  []Vertex
	Triangles []Triangle
	Material  string
}

// AddVertex appends a vertex and returns its index
func (m *Mesh) AddVertex(v Vertex) int {
	m.Vertices = append(m.Vertices, v)
	return len(m.Vertices) - 1
}

// Model is a solid mesh placed on the map
type Model struct {
	FeatureID    int64
	Name         string
	Mesh         *Mesh
	Outline      []r3.Vector // ground ring relative to Position
	Position     r3.Vector
	Rotation     float64
	ViewDistance int
}

// Style is the visual appearance of a curve
type Style struct {
	Unit string
	Look string
}

// Segment is one linear piece of a curve chain
type Segment struct {
	Start   r3.Vector
	Forward r3.Vector
}

// Length returns the 3D length of the segment
func (s Segment) Length() float64 {
	return s.Forward.Sub(s.Start).Norm()
}

// CurveChain is a road or railway as a chain of length-bounded segments
type CurveChain struct {
	FeatureID    int64
	Class        Class
	Style        Style
	ViewDistance int
	LinearPath   bool
	Segments     []Segment
}

// Points returns the chain's node positions, start of the first segment first
func (c *CurveChain) Points() []r3.Vector {
	if len(c.Segments) == 0 {
		return nil
	}
	pts := make([]r3.Vector, 0, len(c.Segments)+1)
	pts = append(pts, c.Segments[0].Start)
	for _, s := range c.Segments {
		pts = append(pts, s.Forward)
	}
	return pts
}

// StepSize is the quad side length of a terrain tile
type StepSize int

// Allowed step sizes
const (
	Step2  StepSize = 2
	Step4  StepSize = 4
	Step12 StepSize = 12
	Step16 StepSize = 16
)

// Valid reports whether the step size is one the engine accepts
func (s StepSize) Valid() bool {
	switch s {
	case Step2, Step4, Step12, Step16:
		return true
	}
	return false
}

// VertexOffset is a lattice vertex of a terrain tile, relative to the anchor
type VertexOffset struct {
	Col      int
	Row      int
	Position r3.Vector
}

// Footprint is the geographic extent of a terrain tile
type Footprint struct {
	Min LatLon
	Max LatLon
	// Imagery tiles as z/x/y, used for satellite texture lookups
	ImageryTiles []string
}

// TerrainTile is a fixed-topology quad grid with per-vertex height offsets
type TerrainTile struct {
	Index        int
	Anchor       r3.Vector
	Forward      r3.Vector
	Cols         int
	Rows         int
	Step         StepSize
	Offsets      []VertexOffset
	Footprint    Footprint
	ViewDistance int
}

// Width returns the tile extent along X
func (t *TerrainTile) Width() float64 {
	return float64(t.Cols) * float64(t.Step)
}

// Height returns the tile extent along Z
func (t *TerrainTile) Height() float64 {
	return float64(t.Rows) * float64(t.Step)
}
