// Package sink persists generated primitives. Every Write call receives a
// complete feature class, so a stage that aborts leaves nothing behind.
package sink

import (
	"context"
	"sync"

	"github.com/wegman-software/osm2scs-go/internal/geom"
)

// Sink receives the output of each pipeline stage
type Sink interface {
	WriteTerrain(ctx context.Context, tiles []*geom.TerrainTile) error
	WriteCurves(ctx context.Context, class geom.Class, chains []*geom.CurveChain) error
	WriteModels(ctx context.Context, models []*geom.Model) error
	Close() error
}

// Memory keeps everything in memory, for tests and dry runs
type Memory struct {
	mu       sync.Mutex
	Terrain  []*geom.TerrainTile
	Curves   map[geom.Class][]*geom.CurveChain
	Models   []*geom.Model
	IsClosed bool
}

// NewMemory creates an empty memory sink
func NewMemory() *Memory {
	return &Memory{Curves: make(map[geom.Class][]*geom.CurveChain)}
}

func (m *Memory) WriteTerrain(ctx context.Context, tiles []*geom.TerrainTile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Terrain = append(m.Terrain, tiles...)
	return nil
}

func (m *Memory) WriteCurves(ctx context.Context, class geom.Class, chains []*geom.CurveChain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Curves[class] = append(m.Curves[class], chains...)
	return nil
}

func (m *Memory) WriteModels(ctx context.Context, models []*geom.Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Models = append(m.Models, models...)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IsClosed = true
	return nil
}
