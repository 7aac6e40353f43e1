// Package pipeline runs the generator stages over a dataset in a fixed
// order: terrain, roads, railways, buildings.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/osm2scs-go/internal/config"
	"github.com/wegman-software/osm2scs-go/internal/curve"
	"github.com/wegman-software/osm2scs-go/internal/elevation"
	"github.com/wegman-software/osm2scs-go/internal/enrich"
	"github.com/wegman-software/osm2scs-go/internal/extrude"
	"github.com/wegman-software/osm2scs-go/internal/geom"
	"github.com/wegman-software/osm2scs-go/internal/logger"
	"github.com/wegman-software/osm2scs-go/internal/metrics"
	"github.com/wegman-software/osm2scs-go/internal/proj"
	"github.com/wegman-software/osm2scs-go/internal/sink"
	"github.com/wegman-software/osm2scs-go/internal/source"
	"github.com/wegman-software/osm2scs-go/internal/style"
	"github.com/wegman-software/osm2scs-go/internal/terrain"
)

// Stage names, in run order
const (
	StageTerrain   = "terrain"
	StageRoads     = "roads"
	StageRailways  = "railways"
	StageBuildings = "buildings"
)

// ErrEmptyDataset is returned when there are no bounds to build a frame from
var ErrEmptyDataset = errors.New("dataset has no bounds")

// how often feature stages report progress
const progressEvery = 250

// Deps are the collaborators of a run. Projection, Elevation and Sink are
// required; the others fall back to the built-in behaviour when nil.
type Deps struct {
	Projection proj.Projection
	Elevation  elevation.Oracle
	Sink       sink.Sink
	Styler     curve.Styler
	Filters    *style.Filters
	// HeightOverride is consulted before the building height tag rules
	HeightOverride func(tags map[string]string) (float64, bool)
	Metrics        *metrics.Pipeline
}

// Coordinator orchestrates one generator run
type Coordinator struct {
	cfg  *config.Config
	deps Deps
}

// NewCoordinator checks the dependencies and fills in defaults
func NewCoordinator(cfg *config.Config, deps Deps) (*Coordinator, error) {
	if deps.Projection == nil || deps.Elevation == nil || deps.Sink == nil {
		return nil, fmt.Errorf("projection, elevation and sink are required")
	}
	if deps.Styler == nil {
		deps.Styler = curve.NewTableStyler(nil)
	}
	if deps.Filters == nil {
		deps.Filters = style.DefaultConfig().Filters()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewPipeline()
	}
	return &Coordinator{cfg: cfg, deps: deps}, nil
}

// Metrics returns the run's metrics
func (c *Coordinator) Metrics() *metrics.Pipeline {
	return c.deps.Metrics
}

// Run builds the frame and executes every stage in order. A failing stage
// aborts the run; classes written by earlier stages stay written.
// Events are sent on progress when it is not nil; Run never closes it.
func (c *Coordinator) Run(ctx context.Context, ds *source.Dataset, progress chan<- Event) (*Stats, error) {
	log := logger.Get()
	stats := newStats()

	if c.cfg.MetricsInterval > 0 {
		metricsCtx, cancelMetrics := context.WithCancel(ctx)
		defer cancelMetrics()

		collector := metrics.NewCollector(c.cfg.MetricsInterval, log)
		go collector.Start(metricsCtx)
		log.Info("System metrics collection started",
			zap.Duration("interval", c.cfg.MetricsInterval))
	}

	bounds := ds.Bounds
	if c.cfg.BBox != nil && c.cfg.BBox.IsSet {
		bounds = c.cfg.BBox.Bounds()
	}
	if bounds.IsEmpty() {
		return nil, ErrEmptyDataset
	}

	tc := c.cfg.TerrainConfig()
	offset := enrich.ComputeOffset(c.deps.Projection, bounds, tc.TileWidth(), tc.TileHeight())
	oracle := elevation.Observed{Oracle: c.deps.Elevation, Observer: c.deps.Metrics}
	ec := enrich.NewContext(c.deps.Projection, oracle, offset)
	ec.Epsilon = c.cfg.Epsilon
	stats.Offset = offset

	log.Info("Frame computed",
		zap.Stringer("min", bounds.Min),
		zap.Stringer("max", bounds.Max),
		zap.Float64("offset_x", offset.X),
		zap.Float64("offset_y", offset.Y))

	r := &run{c: c, ec: ec, bounds: bounds, stats: stats, progress: progress}

	stages := []struct {
		name string
		fn   func(context.Context) error
		skip bool
	}{
		{StageTerrain, r.terrain, c.cfg.SkipTerrain},
		{StageRoads, r.curves(geom.ClassHighway, ds.ByClass(geom.ClassHighway)), false},
		{StageRailways, r.curves(geom.ClassRailway, ds.ByClass(geom.ClassRailway)), false},
		{StageBuildings, r.buildings(ds.ByClass(geom.ClassBuilding)), false},
	}

	for _, s := range stages {
		if s.skip {
			log.Info("Stage skipped", zap.String("stage", s.name))
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		start := time.Now()
		if err := s.fn(ctx); err != nil {
			return stats, fmt.Errorf("%s stage failed: %w", s.name, err)
		}
		elapsed := time.Since(start)
		stats.Durations[s.name] = elapsed
		c.deps.Metrics.StageDone(s.name, elapsed)
	}

	return stats, nil
}

// run holds the state shared by the stages of one Run call
type run struct {
	c        *Coordinator
	ec       enrich.Context
	bounds   geom.Bounds
	stats    *Stats
	progress chan<- Event
}

func (r *run) emit(ctx context.Context, ev Event) {
	if r.progress == nil {
		return
	}
	select {
	case r.progress <- ev:
	case <-ctx.Done():
	}
}

func (r *run) terrain(ctx context.Context) error {
	log := logger.Stage(StageTerrain)
	cfg := r.c.cfg
	tc := cfg.TerrainConfig()

	min, max := r.ec.LocalBounds(r.bounds, tc.TileWidth(), tc.TileHeight())
	tiles := terrain.BuildTiles(r.ec, min, max, tc)

	sched := terrain.NewScheduler(r.ec, cfg.BatchSize, cfg.Workers, cfg.TerrainBias)
	total := sched.BatchCount(len(tiles))
	r.emit(ctx, Event{Stage: StageTerrain, Total: total, Message: fmt.Sprintf("Sampling %d tiles", len(tiles))})

	sched.OnProgress(func(done, total int) {
		r.c.deps.Metrics.TerrainBatch()
		r.emit(ctx, Event{Stage: StageTerrain, Done: done, Total: total})
	})

	if err := sched.Fill(ctx, tiles); err != nil {
		return err
	}
	if err := r.c.deps.Sink.WriteTerrain(ctx, tiles); err != nil {
		return fmt.Errorf("failed to write terrain: %w", err)
	}

	r.stats.Tiles = len(tiles)
	r.c.deps.Metrics.TerrainTiles(len(tiles))
	log.Info("Terrain generated", zap.Int("tiles", len(tiles)), zap.Int("batches", total))
	return nil
}

// curves builds the road or railway stage
func (r *run) curves(class geom.Class, features []*geom.Feature) func(context.Context) error {
	stage := StageRoads
	if class == geom.ClassRailway {
		stage = StageRailways
	}

	return func(ctx context.Context) error {
		log := logger.Stage(stage)
		m := r.c.deps.Metrics
		cc := r.c.cfg.CurveConfig()

		chains := make([]*geom.CurveChain, 0, len(features))
		segments := 0
		for i, f := range features {
			if i%progressEvery == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
				r.emit(ctx, Event{Stage: stage, Done: i, Total: len(features)})
			}

			if curve.Excluded(f) || !r.c.deps.Filters.Keep(f) {
				r.stats.filtered(class)
				m.Feature(class.String(), metrics.OutcomeFiltered)
				continue
			}

			points, err := r.ec.EnrichLine(ctx, f)
			if err == nil {
				var chain *geom.CurveChain
				if chain, err = curve.Build(f, points, r.c.deps.Styler, cc); err == nil {
					chains = append(chains, chain)
					segments += len(chain.Segments)
					m.Feature(class.String(), metrics.OutcomeGenerated)
					continue
				}
			}
			if !isLocalReject(err) {
				return fmt.Errorf("way %d: %w", f.ID, err)
			}
			r.stats.rejected(class)
			m.Feature(class.String(), metrics.OutcomeRejected)
			log.Debug("Way rejected", zap.Int64("way", f.ID), zap.Error(err))
		}

		if err := r.c.deps.Sink.WriteCurves(ctx, class, chains); err != nil {
			return fmt.Errorf("failed to write %s curves: %w", class, err)
		}

		r.emit(ctx, Event{Stage: stage, Done: len(features), Total: len(features)})
		m.Segments(class.String(), segments)
		r.stats.Segments += segments
		r.stats.Generated[class] = len(chains)

		log.Info("Curves generated",
			zap.Int("chains", len(chains)),
			zap.Int("segments", segments),
			zap.Int("rejected", r.stats.Rejected[class]),
			zap.Int("filtered", r.stats.Filtered[class]))
		return nil
	}
}

func (r *run) buildings(features []*geom.Feature) func(context.Context) error {
	return func(ctx context.Context) error {
		log := logger.Stage(StageBuildings)
		m := r.c.deps.Metrics
		class := geom.ClassBuilding.String()

		mc := r.c.cfg.ModelConfig()
		mc.HeightOverride = r.c.deps.HeightOverride

		models := make([]*geom.Model, 0, len(features))
		triangles := 0
		for i, f := range features {
			if i%progressEvery == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
				r.emit(ctx, Event{Stage: StageBuildings, Done: i, Total: len(features)})
			}

			if !r.c.deps.Filters.Keep(f) {
				r.stats.filtered(geom.ClassBuilding)
				m.Feature(class, metrics.OutcomeFiltered)
				continue
			}

			poly, err := r.ec.EnrichPolygon(ctx, f)
			if err == nil {
				var model *geom.Model
				if model, err = extrude.BuildModel(f, poly, mc); err == nil {
					models = append(models, model)
					triangles += len(model.Mesh.Triangles)
					m.Feature(class, metrics.OutcomeGenerated)
					continue
				}
			}
			if !isLocalReject(err) {
				return fmt.Errorf("way %d: %w", f.ID, err)
			}
			r.stats.rejected(geom.ClassBuilding)
			m.Feature(class, metrics.OutcomeRejected)
			log.Debug("Building rejected", zap.Int64("way", f.ID), zap.Error(err))
		}

		if err := r.c.deps.Sink.WriteModels(ctx, models); err != nil {
			return fmt.Errorf("failed to write models: %w", err)
		}

		r.emit(ctx, Event{Stage: StageBuildings, Done: len(features), Total: len(features)})
		m.Triangles(triangles)
		r.stats.Triangles += triangles
		r.stats.Generated[geom.ClassBuilding] = len(models)

		log.Info("Buildings generated",
			zap.Int("models", len(models)),
			zap.Int("triangles", triangles),
			zap.Int("rejected", r.stats.Rejected[geom.ClassBuilding]),
			zap.Int("filtered", r.stats.Filtered[geom.ClassBuilding]))
		return nil
	}
}

// isLocalReject reports whether err only disqualifies a single feature
func isLocalReject(err error) bool {
	return errors.Is(err, geom.ErrInsufficientGeometry) || errors.Is(err, geom.ErrDegeneratePolygon)
}
