package sink

import (
	"github.com/golang/geo/r3"

	"github.com/wegman-software/osm2scs-go/internal/geom"
	"github.com/wegman-software/osm2scs-go/internal/wkb"
)

// Flat row forms shared by the parquet and postgis sinks.
// Geometry columns hold EWKB; scene geometry has no SRID, footprints are WGS84.

type modelRow struct {
	FeatureID    int64
	Name         string
	Material     string
	ViewDistance int32
	Rotation     float64
	Vertices     int32
	Triangles    int32
	Position     []byte // POINT Z
	Mesh         []byte // TIN Z in scene space
	Outline      []byte // POLYGON Z in scene space, nil without outline
}

type curveRow struct {
	FeatureID    int64
	Class        string
	Unit         string
	Look         string
	ViewDistance int32
	LinearPath   bool
	Segments     int32
	Path         []byte // LINESTRING Z through all segment nodes
}

type terrainRow struct {
	Index        int32
	Cols         int32
	Rows         int32
	Step         int32
	ViewDistance int32
	Anchor       []byte // POINT Z
	Forward      []byte // POINT Z
	Heights      []float64
	ImageryTiles []string
	Footprint    []byte // POLYGON, SRID 4326
}

// rowEncoder owns the WKB encoders used while converting a batch
type rowEncoder struct {
	local *wkb.Encoder
	geo   *wkb.Encoder
}

func newRowEncoder() *rowEncoder {
	return &rowEncoder{
		local: wkb.NewEncoder(1024),
		geo:   wkb.NewEncoderWithSRID(128, wkb.SRID4326),
	}
}

// clone copies an encoder result out of the shared buffer
func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

func (e *rowEncoder) model(m *geom.Model) modelRow {
	r := modelRow{
		FeatureID:    m.FeatureID,
		Name:         m.Name,
		ViewDistance: int32(m.ViewDistance),
		Rotation:     m.Rotation,
		Position:     clone(e.local.EncodePointZ(m.Position)),
	}
	if m.Mesh != nil {
		r.Material = m.Mesh.Material
		r.Vertices = int32(len(m.Mesh.Vertices))
		r.Triangles = int32(len(m.Mesh.Triangles))
		r.Mesh = clone(e.local.EncodeTIN(m.Mesh, m.Position))
	}
	if len(m.Outline) > 0 {
		ring := make([]r3.Vector, len(m.Outline))
		for i, p := range m.Outline {
			ring[i] = p.Add(m.Position)
		}
		r.Outline = clone(e.local.EncodePolygonZ(ring))
	}
	return r
}

func (e *rowEncoder) curve(c *geom.CurveChain) curveRow {
	return curveRow{
		FeatureID:    c.FeatureID,
		Class:        c.Class.String(),
		Unit:         c.Style.Unit,
		Look:         c.Style.Look,
		ViewDistance: int32(c.ViewDistance),
		LinearPath:   c.LinearPath,
		Segments:     int32(len(c.Segments)),
		Path:         clone(e.local.EncodeLineStringZ(c.Points())),
	}
}

// terrain flattens the lattice heights in lattice order (column-major)
func (e *rowEncoder) terrain(t *geom.TerrainTile) terrainRow {
	heights := make([]float64, len(t.Offsets))
	for i, o := range t.Offsets {
		heights[i] = o.Position.Y
	}
	return terrainRow{
		Index:        int32(t.Index),
		Cols:         int32(t.Cols),
		Rows:         int32(t.Rows),
		Step:         int32(t.Step),
		ViewDistance: int32(t.ViewDistance),
		Anchor:       clone(e.local.EncodePointZ(t.Anchor)),
		Forward:      clone(e.local.EncodePointZ(t.Forward)),
		Heights:      heights,
		ImageryTiles: t.Footprint.ImageryTiles,
		Footprint:    clone(e.geo.EncodeBox(t.Footprint.Min, t.Footprint.Max)),
	}
}
