package terrain

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osm2scs-go/internal/elevation"
	"github.com/wegman-software/osm2scs-go/internal/enrich"
	"github.com/wegman-software/osm2scs-go/internal/geom"
	"github.com/wegman-software/osm2scs-go/internal/logger"
)

// Scheduler fills tile heights with one elevation query per batch of tiles.
// Batches run concurrently; each one only touches its own tiles.
type Scheduler struct {
	ctx       enrich.Context
	oracle    elevation.Oracle
	batchSize int
	workers   int
	bias      float64

	// progress is called after every finished batch. Calls never overlap
	// and done increases by one each time.
	progress func(done, total int)
}

// NewScheduler creates a scheduler. workers <= 0 runs every batch at once.
func NewScheduler(ec enrich.Context, batchSize, workers int, bias float64) *Scheduler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Scheduler{
		ctx:       ec,
		oracle:    ec.Elevation,
		batchSize: batchSize,
		workers:   workers,
		bias:      bias,
	}
}

// OnProgress registers a batch completion callback
func (s *Scheduler) OnProgress(fn func(done, total int)) {
	s.progress = fn
}

// BatchCount returns how many batches n tiles are split into
func (s *Scheduler) BatchCount(n int) int {
	return (n + s.batchSize - 1) / s.batchSize
}

// Fill samples the ground under every lattice vertex of every tile.
// The first failing batch cancels the others and its error is returned.
func (s *Scheduler) Fill(ctx context.Context, tiles []*geom.TerrainTile) error {
	total := s.BatchCount(len(tiles))
	if total == 0 {
		return nil
	}

	log := logger.Stage("terrain")
	log.Debug("Scheduling elevation batches",
		zap.Int("tiles", len(tiles)),
		zap.Int("batches", total),
		zap.Int("batch_size", s.batchSize))

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	if s.workers > 0 {
		g.SetLimit(s.workers)
	}

	for b := 0; b < total; b++ {
		start := b * s.batchSize
		end := start + s.batchSize
		if end > len(tiles) {
			end = len(tiles)
		}
		batch := tiles[start:end]
		index := b

		g.Go(func() error {
			if err := s.fillBatch(gctx, batch); err != nil {
				return fmt.Errorf("elevation batch %d: %w", index, err)
			}
			mu.Lock()
			defer mu.Unlock()
			done++
			if s.progress != nil {
				s.progress(done, total)
			}
			return nil
		})
	}

	return g.Wait()
}

func (s *Scheduler) fillBatch(ctx context.Context, batch []*geom.TerrainTile) error {
	size := 0
	for _, t := range batch {
		size += 1 + len(t.Offsets)
	}

	// Per tile: the anchor, then every lattice vertex in lattice order
	points := make([]geom.LatLon, 0, size)
	starts := make([]int, len(batch))
	for i, t := range batch {
		starts[i] = len(points)
		points = append(points, s.ctx.ToGeo(t.Anchor))
		for _, o := range t.Offsets {
			points = append(points, s.ctx.ToGeo(t.Anchor.Add(o.Position)))
		}
	}

	heights, err := s.oracle.BatchElevation(ctx, points)
	if err != nil {
		return err
	}
	if len(heights) != len(points) {
		return fmt.Errorf("oracle returned %d heights for %d points", len(heights), len(points))
	}

	for i, t := range batch {
		base := heights[starts[i]]
		// Both ends of the anchor edge share one height so the engine
		// derives the same quad count from the edge length
		t.Anchor.Y = base
		t.Forward.Y = base
		for k := range t.Offsets {
			t.Offsets[k].Position.Y = heights[starts[i]+1+k] - base + s.bias
		}
	}
	return nil
}
