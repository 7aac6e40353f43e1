// Package extrude turns building outlines into closed, flat-shaded solids.
package extrude

import (
	"fmt"
	"image/color"

	"github.com/golang/geo/r3"

	"github.com/wegman-software/osm2scs-go/internal/enrich"
	"github.com/wegman-software/osm2scs-go/internal/geom"
)

// DefaultMaterial is the material every generated solid references
const DefaultMaterial = "/material/generated/building.mat"

// DefaultViewDistance is the distance at which buildings are drawn
const DefaultViewDistance = 950

// FillColor is the vertex color of generated solids
var FillColor = color.RGBA{R: 211, G: 211, B: 211, A: 255}

var (
	down = r3.Vector{Y: -1}
	up   = r3.Vector{Y: 1}
)

// Extrude builds a closed solid from a flat ring (Y ignored) and a height.
// Caps share the triangulation, walls get four unshared vertices per edge
// so every face is shaded flat.
func Extrude(ring []r3.Vector, height float64, fill color.RGBA) (*geom.Mesh, error) {
	ring = NormalizeWinding(ring)

	tris, err := Triangulate(ring)
	if err != nil {
		return nil, err
	}

	n := len(ring)
	mesh := &geom.Mesh{
		Vertices:  make([]geom.Vertex, 0, 6*n),
		Triangles: make([]geom.Triangle, 0, 2*len(tris)+2*n),
		Material:  DefaultMaterial,
	}

	lift := r3.Vector{Y: height}
	flat := func(v r3.Vector) r3.Vector { return r3.Vector{X: v.X, Z: v.Z} }

	for _, v := range ring {
		mesh.AddVertex(geom.Vertex{Position: flat(v), Normal: down, Color: fill})
	}
	for _, v := range ring {
		mesh.AddVertex(geom.Vertex{Position: flat(v).Add(lift), Normal: up, Color: fill})
	}

	mesh.Triangles = append(mesh.Triangles, tris...)
	for _, t := range tris {
		top := geom.Triangle{t[0] + n, t[1] + n, t[2] + n}
		mesh.Triangles = append(mesh.Triangles, top.Inverted())
	}

	for i := 0; i < n; i++ {
		p0, p1 := flat(ring[i]), flat(ring[(i+1)%n])
		t0 := p0.Add(lift)

		normal := t0.Sub(p0).Cross(p1.Sub(p0)).Normalize()

		b0 := mesh.AddVertex(geom.Vertex{Position: p0, Normal: normal, Color: fill})
		b1 := mesh.AddVertex(geom.Vertex{Position: p1, Normal: normal, Color: fill})
		u0 := mesh.AddVertex(geom.Vertex{Position: t0, Normal: normal, Color: fill})
		u1 := mesh.AddVertex(geom.Vertex{Position: p1.Add(lift), Normal: normal, Color: fill})

		mesh.Triangles = append(mesh.Triangles,
			geom.Triangle{b0, u0, b1},
			geom.Triangle{b1, u0, u1},
		)
	}

	return mesh, nil
}

// ModelConfig controls how building solids are derived and placed
type ModelConfig struct {
	Height       HeightConfig
	ViewDistance int
	Color        color.RGBA
	// HeightOverride, when set, is consulted before the tag rules.
	// It returns false to fall back to them.
	HeightOverride func(tags map[string]string) (float64, bool)
}

// DefaultModelConfig returns the stock building settings
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Height:       DefaultHeightConfig(),
		ViewDistance: DefaultViewDistance,
		Color:        FillColor,
	}
}

// ModelName returns the name a building's model is registered under
func ModelName(id int64) string {
	return fmt.Sprintf("generated_bld_%d", id)
}

// BuildModel extrudes a building outline and places it at its centroid
func BuildModel(f *geom.Feature, poly *enrich.Polygon, cfg ModelConfig) (*geom.Model, error) {
	height := 0.0
	if cfg.HeightOverride != nil {
		if h, ok := cfg.HeightOverride(f.Tags); ok && h > 0 {
			height = h
		}
	}
	if height == 0 {
		height = Height(f.Tags, cfg.Height)
	}

	mesh, err := Extrude(poly.Ring, height, cfg.Color)
	if err != nil {
		return nil, fmt.Errorf("way %d: %w", f.ID, err)
	}

	return &geom.Model{
		FeatureID:    f.ID,
		Name:         ModelName(f.ID),
		Mesh:         mesh,
		Outline:      poly.Ring,
		Position:     poly.Position,
		ViewDistance: cfg.ViewDistance,
	}, nil
}
