// Package wkb encodes generated geometry as PostGIS extended WKB.
// Local scene geometry carries Z and no SRID; geographic footprints
// are written in WGS84.
package wkb

import (
	"encoding/binary"
	"math"

	"github.com/golang/geo/r3"

	"github.com/wegman-software/osm2scs-go/internal/geom"
)

// WKB type constants
const (
	wkbPoint      = 1
	wkbLineString = 2
	wkbPolygon    = 3
	wkbTIN        = 15
	wkbTriangle   = 17

	// EWKB flags
	wkbZFlag    = 0x80000000
	wkbSRIDFlag = 0x20000000
)

// Common SRID constants
const (
	SRIDLocal = 0    // scene space, no reference system
	SRID4326  = 4326 // WGS84
)

// Encoder encodes geometries to little-endian EWKB.
// The returned slices alias the internal buffer until the next call.
type Encoder struct {
	buf  []byte
	srid uint32
}

// NewEncoder creates an encoder for local scene geometry
func NewEncoder(initialSize int) *Encoder {
	return NewEncoderWithSRID(initialSize, SRIDLocal)
}

// NewEncoderWithSRID creates an encoder that tags geometries with srid
func NewEncoderWithSRID(initialSize int, srid int) *Encoder {
	return &Encoder{
		buf:  make([]byte, 0, initialSize),
		srid: uint32(srid),
	}
}

// Reset clears the buffer for reuse
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// EncodePointZ encodes a 3D point
func (e *Encoder) EncodePointZ(p r3.Vector) []byte {
	e.Reset()
	e.ensureCapacity(9 + 24)
	e.header(wkbPoint | wkbZFlag)
	e.appendVector(p)
	return e.buf
}

// EncodeLineStringZ encodes a 3D polyline
func (e *Encoder) EncodeLineStringZ(points []r3.Vector) []byte {
	e.Reset()
	e.ensureCapacity(13 + len(points)*24)
	e.header(wkbLineString | wkbZFlag)
	e.appendUint32(uint32(len(points)))
	for _, p := range points {
		e.appendVector(p)
	}
	return e.buf
}

// EncodePolygonZ encodes a single 3D ring. The ring is closed if needed.
func (e *Encoder) EncodePolygonZ(ring []r3.Vector) []byte {
	e.Reset()
	if len(ring) == 0 {
		return nil
	}
	closed := ring[0] == ring[len(ring)-1]
	n := len(ring)
	if !closed {
		n++
	}
	e.ensureCapacity(17 + n*24)
	e.header(wkbPolygon | wkbZFlag)
	e.appendUint32(1)
	e.appendUint32(uint32(n))
	for _, p := range ring {
		e.appendVector(p)
	}
	if !closed {
		e.appendVector(ring[0])
	}
	return e.buf
}

// EncodeTIN encodes a triangle mesh as a TIN Z, each triangle offset by origin
func (e *Encoder) EncodeTIN(m *geom.Mesh, origin r3.Vector) []byte {
	e.Reset()
	// Per triangle: 1 + 4 (type) + 4 (rings) + 4 (points) + 4*24
	e.ensureCapacity(13 + len(m.Triangles)*109)
	e.header(wkbTIN | wkbZFlag)
	e.appendUint32(uint32(len(m.Triangles)))

	for _, t := range m.Triangles {
		// Embedded geometries carry no SRID
		e.buf = append(e.buf, 0x01)
		e.appendUint32(wkbTriangle | wkbZFlag)
		e.appendUint32(1)
		e.appendUint32(4)
		for _, i := range [4]int{t[0], t[1], t[2], t[0]} {
			e.appendVector(m.Vertices[i].Position.Add(origin))
		}
	}
	return e.buf
}

// EncodeBox encodes a geographic rectangle as a 2D polygon
func (e *Encoder) EncodeBox(min, max geom.LatLon) []byte {
	e.Reset()
	e.ensureCapacity(17 + 5*16)
	e.header(wkbPolygon)
	e.appendUint32(1)
	e.appendUint32(5)
	for _, p := range [5]geom.LatLon{
		{Lat: min.Lat, Lon: min.Lon},
		{Lat: min.Lat, Lon: max.Lon},
		{Lat: max.Lat, Lon: max.Lon},
		{Lat: max.Lat, Lon: min.Lon},
		{Lat: min.Lat, Lon: min.Lon},
	} {
		e.appendFloat64(p.Lon)
		e.appendFloat64(p.Lat)
	}
	return e.buf
}

// header writes byte order, type and the SRID when one is set
func (e *Encoder) header(typ uint32) {
	e.buf = append(e.buf, 0x01)
	if e.srid != SRIDLocal {
		e.appendUint32(typ | wkbSRIDFlag)
		e.appendUint32(e.srid)
		return
	}
	e.appendUint32(typ)
}

func (e *Encoder) ensureCapacity(n int) {
	if cap(e.buf) < n {
		e.buf = make([]byte, 0, n)
	}
}

func (e *Encoder) appendVector(p r3.Vector) {
	e.appendFloat64(p.X)
	e.appendFloat64(p.Y)
	e.appendFloat64(p.Z)
}

func (e *Encoder) appendUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) appendFloat64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}
