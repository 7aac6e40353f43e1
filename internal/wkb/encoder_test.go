package wkb

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/wegman-software/osm2scs-go/internal/geom"
)

func readFloat(b []byte, off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
}

func TestEncodePointZ(t *testing.T) {
	e := NewEncoder(64)
	b := e.EncodePointZ(r3.Vector{X: 1.5, Y: 2, Z: -3})

	if len(b) != 29 {
		t.Fatalf("len = %d, want 29", len(b))
	}
	if b[0] != 0x01 {
		t.Errorf("byte order = %x, want little-endian", b[0])
	}
	if typ := binary.LittleEndian.Uint32(b[1:]); typ != wkbPoint|wkbZFlag {
		t.Errorf("type = %x", typ)
	}
	if readFloat(b, 5) != 1.5 || readFloat(b, 13) != 2 || readFloat(b, 21) != -3 {
		t.Error("coordinates not encoded as X, Y, Z")
	}
}

func TestEncodeWithSRID(t *testing.T) {
	e := NewEncoderWithSRID(64, SRID4326)
	b := e.EncodeBox(geom.LatLon{Lat: 45, Lon: 6}, geom.LatLon{Lat: 46, Lon: 7})

	if typ := binary.LittleEndian.Uint32(b[1:]); typ != wkbPolygon|wkbSRIDFlag {
		t.Errorf("type = %x", typ)
	}
	if srid := binary.LittleEndian.Uint32(b[5:]); srid != SRID4326 {
		t.Errorf("srid = %d", srid)
	}
	if rings := binary.LittleEndian.Uint32(b[9:]); rings != 1 {
		t.Errorf("rings = %d", rings)
	}
	if pts := binary.LittleEndian.Uint32(b[13:]); pts != 5 {
		t.Errorf("points = %d", pts)
	}
	// first point is lon, lat of the min corner
	if readFloat(b, 17) != 6 || readFloat(b, 25) != 45 {
		t.Error("box not encoded lon/lat from min corner")
	}
	if len(b) != 17+5*16 {
		t.Errorf("len = %d", len(b))
	}
}

func TestEncodeLineStringZ(t *testing.T) {
	e := NewEncoder(0)
	pts := []r3.Vector{{X: 0}, {X: 10, Y: 1}, {X: 20, Y: 2, Z: -5}}
	b := e.EncodeLineStringZ(pts)

	if n := binary.LittleEndian.Uint32(b[5:]); n != 3 {
		t.Errorf("points = %d", n)
	}
	if len(b) != 9+3*24 {
		t.Errorf("len = %d", len(b))
	}
	if readFloat(b, 9+2*24+16) != -5 {
		t.Error("last Z not encoded")
	}
}

func TestEncodePolygonZClosesRing(t *testing.T) {
	e := NewEncoder(0)
	ring := []r3.Vector{{X: 0}, {X: 1}, {X: 1, Z: 1}}
	b := e.EncodePolygonZ(ring)

	if n := binary.LittleEndian.Uint32(b[9:]); n != 4 {
		t.Errorf("ring points = %d, want 4", n)
	}
	if len(b) != 13+4*24 {
		t.Errorf("len = %d", len(b))
	}

	if e.EncodePolygonZ(nil) != nil {
		t.Error("empty ring should encode to nil")
	}
}

func TestEncodeTIN(t *testing.T) {
	m := &geom.Mesh{
		Vertices: []geom.Vertex{
			{Position: r3.Vector{X: 0}},
			{Position: r3.Vector{X: 1}},
			{Position: r3.Vector{Z: 1}},
		},
		Triangles: []geom.Triangle{{0, 1, 2}, {0, 2, 1}},
	}
	origin := r3.Vector{X: 100, Y: 5, Z: -100}

	e := NewEncoder(0)
	b := e.EncodeTIN(m, origin)

	if typ := binary.LittleEndian.Uint32(b[1:]); typ != wkbTIN|wkbZFlag {
		t.Errorf("type = %x", typ)
	}
	if n := binary.LittleEndian.Uint32(b[5:]); n != 2 {
		t.Errorf("triangles = %d", n)
	}
	if len(b) != 9+2*109 {
		t.Errorf("len = %d, want %d", len(b), 9+2*109)
	}

	// first triangle starts after the TIN header
	tri := b[9:]
	if typ := binary.LittleEndian.Uint32(tri[1:]); typ != wkbTriangle|wkbZFlag {
		t.Errorf("triangle type = %x", typ)
	}
	if readFloat(tri, 13) != 100 || readFloat(tri, 21) != 5 || readFloat(tri, 29) != -100 {
		t.Error("origin not applied to vertices")
	}
}
