package extrude

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/wegman-software/osm2scs-go/internal/enrich"
	"github.com/wegman-software/osm2scs-go/internal/geom"
)

func square(size float64) []r3.Vector {
	return []r3.Vector{
		{X: 0, Z: 0},
		{X: size, Z: 0},
		{X: size, Z: size},
		{X: 0, Z: size},
	}
}

func reversed(ring []r3.Vector) []r3.Vector {
	out := make([]r3.Vector, len(ring))
	for i, v := range ring {
		out[len(ring)-1-i] = v
	}
	return out
}

// lShape is a concave hexagon, counter-clockwise
func lShape() []r3.Vector {
	return []r3.Vector{
		{X: 0, Z: 0},
		{X: 20, Z: 0},
		{X: 20, Z: 10},
		{X: 10, Z: 10},
		{X: 10, Z: 20},
		{X: 0, Z: 20},
	}
}

func triangleNormal(m *geom.Mesh, t geom.Triangle) r3.Vector {
	a, b, c := m.Vertices[t[0]].Position, m.Vertices[t[1]].Position, m.Vertices[t[2]].Position
	return b.Sub(a).Cross(c.Sub(a))
}

func TestHeight(t *testing.T) {
	cfg := DefaultHeightConfig()
	tests := []struct {
		name string
		tags map[string]string
		want float64
	}{
		{"explicit", map[string]string{"height": "12"}, 12},
		{"with unit", map[string]string{"height": "7.5 m"}, 7.5},
		{"comma decimal", map[string]string{"height": "4,5"}, 4.5},
		{"levels", map[string]string{"building:levels": "4"}, 12},
		{"height wins", map[string]string{"height": "20", "building:levels": "2"}, 20},
		{"unparsable height uses levels", map[string]string{"height": "tall", "building:levels": "2"}, 6},
		{"negative height uses default", map[string]string{"height": "-3"}, 8},
		{"zero levels uses default", map[string]string{"building:levels": "0"}, 8},
		{"no tags", map[string]string{}, 8},
		{"NaN height uses default", map[string]string{"height": "NaN"}, 8},
		{"inf height uses default", map[string]string{"height": "inf"}, 8},
		{"Infinity height uses levels", map[string]string{"height": "Infinity", "building:levels": "3"}, 9},
		{"inf levels uses default", map[string]string{"building:levels": "inf"}, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Height(tt.tags, cfg); got != tt.want {
				t.Errorf("Height = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestNormalizeWinding(t *testing.T) {
	rings := [][]r3.Vector{square(10), reversed(square(10)), lShape(), reversed(lShape())}

	for i, r := range rings {
		got := NormalizeWinding(r)
		if SignedArea(got) <= 0 {
			t.Errorf("ring %d: area after normalization = %f, want > 0", i, SignedArea(got))
		}
	}

	if a := SignedArea(square(10)); a != 100 {
		t.Errorf("square area = %f, want 100", a)
	}
	if a := SignedArea(reversed(square(10))); a != -100 {
		t.Errorf("reversed square area = %f, want -100", a)
	}
}

func TestTriangulateConcave(t *testing.T) {
	ring := lShape()
	tris, err := Triangulate(ring)
	if err != nil {
		t.Fatalf("Triangulate failed: %v", err)
	}
	if len(tris) != len(ring)-2 {
		t.Errorf("got %d triangles, want %d", len(tris), len(ring)-2)
	}

	var area float64
	for _, tr := range tris {
		a := SignedArea([]r3.Vector{ring[tr[0]], ring[tr[1]], ring[tr[2]]})
		if a <= 0 {
			t.Errorf("triangle %v is not counter-clockwise", tr)
		}
		area += a
	}
	if math.Abs(area-300) > 1e-9 {
		t.Errorf("triangulated area = %f, want 300", area)
	}
}

func TestTriangulateCollinear(t *testing.T) {
	// Square with an extra point in the middle of one edge
	ring := []r3.Vector{
		{X: 0, Z: 0},
		{X: 5, Z: 0},
		{X: 10, Z: 0},
		{X: 10, Z: 10},
		{X: 0, Z: 10},
	}
	tris, err := Triangulate(ring)
	if err != nil {
		t.Fatalf("Triangulate failed: %v", err)
	}

	var area float64
	for _, tr := range tris {
		area += SignedArea([]r3.Vector{ring[tr[0]], ring[tr[1]], ring[tr[2]]})
	}
	if math.Abs(area-100) > 1e-9 {
		t.Errorf("triangulated area = %f, want 100", area)
	}
}

func TestTriangulateDegenerate(t *testing.T) {
	tests := []struct {
		name string
		ring []r3.Vector
	}{
		{"two points", []r3.Vector{{X: 0}, {X: 1}}},
		{"repeated points", []r3.Vector{{X: 0}, {X: 1}, {X: 1}, {X: 0}}},
		{"collinear", []r3.Vector{{X: 0}, {X: 1}, {X: 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Triangulate(tt.ring); !errors.Is(err, geom.ErrDegeneratePolygon) {
				t.Errorf("err = %v, want ErrDegeneratePolygon", err)
			}
		})
	}
}

func TestExtrudeSquare(t *testing.T) {
	h := Height(map[string]string{"height": "12"}, DefaultHeightConfig())
	mesh, err := Extrude(square(10), h, FillColor)
	if err != nil {
		t.Fatalf("Extrude failed: %v", err)
	}

	// 2 bottom + 2 top + 4 edges x 2
	if len(mesh.Triangles) != 12 {
		t.Fatalf("got %d triangles, want 12", len(mesh.Triangles))
	}
	// 4 bottom + 4 top + 4 edges x 4
	if len(mesh.Vertices) != 24 {
		t.Errorf("got %d vertices, want 24", len(mesh.Vertices))
	}

	for i := 4; i < 8; i++ {
		v := mesh.Vertices[i]
		if v.Position.Y != 12 {
			t.Errorf("top vertex %d at y=%f, want 12", i, v.Position.Y)
		}
		if v.Normal != (r3.Vector{Y: 1}) {
			t.Errorf("top vertex %d normal = %v, want (0,1,0)", i, v.Normal)
		}
		if v.Position.X != mesh.Vertices[i-4].Position.X || v.Position.Z != mesh.Vertices[i-4].Position.Z {
			t.Errorf("top vertex %d is not the bottom vertex translated by (0,12,0)", i)
		}
	}
	for i := 0; i < 4; i++ {
		if mesh.Vertices[i].Normal != (r3.Vector{Y: -1}) {
			t.Errorf("bottom vertex %d normal = %v, want (0,-1,0)", i, mesh.Vertices[i].Normal)
		}
	}
	for i, v := range mesh.Vertices {
		if v.Color != FillColor {
			t.Errorf("vertex %d color = %v, want %v", i, v.Color, FillColor)
		}
	}
	if mesh.Material != DefaultMaterial {
		t.Errorf("material = %s, want %s", mesh.Material, DefaultMaterial)
	}
}

func TestExtrudeOutwardFaces(t *testing.T) {
	rings := map[string][]r3.Vector{
		"ccw square": square(10),
		"cw square":  reversed(square(10)),
		"ccw L":      lShape(),
		"cw L":       reversed(lShape()),
	}

	for name, ring := range rings {
		t.Run(name, func(t *testing.T) {
			mesh, err := Extrude(ring, 5, FillColor)
			if err != nil {
				t.Fatalf("Extrude failed: %v", err)
			}

			n := len(ring)
			caps := (len(mesh.Triangles) - 2*n) / 2
			if caps != n-2 {
				t.Errorf("cap triangles = %d, want %d", caps, n-2)
			}

			// Centre of the footprint bounding box lies inside both shapes
			center := r3.Vector{X: 7.5, Y: 2.5, Z: 7.5}
			if name == "ccw square" || name == "cw square" {
				center = r3.Vector{X: 5, Y: 2.5, Z: 5}
			}

			for i, tr := range mesh.Triangles {
				winding := triangleNormal(mesh, tr)
				declared := mesh.Vertices[tr[0]].Normal
				if winding.Dot(declared) <= 0 {
					t.Errorf("triangle %d winding disagrees with its normal", i)
				}

				a := mesh.Vertices[tr[0]].Position
				if i >= 2*caps {
					// Side walls face away from the interior
					if a.Sub(center).Dot(declared) <= 0 && mesh.Vertices[tr[1]].Position.Sub(center).Dot(declared) <= 0 {
						t.Errorf("side triangle %d faces inwards", i)
					}
				}
			}
		})
	}
}

func TestBuildModel(t *testing.T) {
	f := &geom.Feature{ID: 77, Kind: geom.KindPolygon, Class: geom.ClassBuilding, Tags: map[string]string{"building": "yes"}}
	poly := &enrich.Polygon{Ring: square(10), Position: r3.Vector{X: 100, Y: 50, Z: -20}}

	m, err := BuildModel(f, poly, DefaultModelConfig())
	if err != nil {
		t.Fatalf("BuildModel failed: %v", err)
	}
	if m.Name != "generated_bld_77" {
		t.Errorf("name = %s, want generated_bld_77", m.Name)
	}
	if m.Position != poly.Position {
		t.Errorf("position = %v, want %v", m.Position, poly.Position)
	}
	if m.ViewDistance != 950 {
		t.Errorf("view distance = %d, want 950", m.ViewDistance)
	}
	if len(m.Outline) != 4 {
		t.Errorf("outline has %d points, want 4", len(m.Outline))
	}
	if y := m.Mesh.Vertices[4].Position.Y; y != 8 {
		t.Errorf("default height top at %f, want 8", y)
	}

	cfg := DefaultModelConfig()
	cfg.HeightOverride = func(tags map[string]string) (float64, bool) { return 30, true }
	m, err = BuildModel(f, poly, cfg)
	if err != nil {
		t.Fatalf("BuildModel failed: %v", err)
	}
	if y := m.Mesh.Vertices[4].Position.Y; y != 30 {
		t.Errorf("override height top at %f, want 30", y)
	}
}

func TestBuildModelDegenerate(t *testing.T) {
	f := &geom.Feature{ID: 1}
	poly := &enrich.Polygon{Ring: []r3.Vector{{X: 0}, {X: 1}, {X: 2}}}
	if _, err := BuildModel(f, poly, DefaultModelConfig()); !errors.Is(err, geom.ErrDegeneratePolygon) {
		t.Errorf("err = %v, want ErrDegeneratePolygon", err)
	}
}
