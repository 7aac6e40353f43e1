package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Feature outcomes
const (
	OutcomeGenerated = "generated"
	OutcomeFiltered  = "filtered"
	OutcomeRejected  = "rejected"
)

// Pipeline holds the counters of one generator run in its own registry
type Pipeline struct {
	registry *prometheus.Registry

	features        *prometheus.CounterVec
	segments        *prometheus.CounterVec
	triangles       prometheus.Counter
	terrainTiles    prometheus.Counter
	terrainBatches  prometheus.Counter
	elevationCalls  *prometheus.CounterVec
	elevationPoints *prometheus.CounterVec
	elevationErrors *prometheus.CounterVec
	elevationTime   *prometheus.HistogramVec
	stageDuration   *prometheus.HistogramVec
}

// NewPipeline creates a fresh registry with the pipeline metrics
func NewPipeline() *Pipeline {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Pipeline{
		registry: reg,
		features: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "osm2scs",
			Subsystem: "features",
			Name:      "processed_total",
			Help:      "Features processed, by class and outcome",
		}, []string{"class", "outcome"}),
		segments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "osm2scs",
			Subsystem: "curves",
			Name:      "segments_total",
			Help:      "Curve segments emitted, by class",
		}, []string{"class"}),
		triangles: f.NewCounter(prometheus.CounterOpts{
			Namespace: "osm2scs",
			Subsystem: "buildings",
			Name:      "triangles_total",
			Help:      "Triangles emitted for building solids",
		}),
		terrainTiles: f.NewCounter(prometheus.CounterOpts{
			Namespace: "osm2scs",
			Subsystem: "terrain",
			Name:      "tiles_total",
			Help:      "Terrain tiles generated",
		}),
		terrainBatches: f.NewCounter(prometheus.CounterOpts{
			Namespace: "osm2scs",
			Subsystem: "terrain",
			Name:      "batches_total",
			Help:      "Elevation batches completed",
		}),
		elevationCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "osm2scs",
			Subsystem: "elevation",
			Name:      "calls_total",
			Help:      "Elevation oracle calls, by kind",
		}, []string{"kind"}),
		elevationPoints: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "osm2scs",
			Subsystem: "elevation",
			Name:      "points_total",
			Help:      "Points sent to the elevation oracle, by kind",
		}, []string{"kind"}),
		elevationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "osm2scs",
			Subsystem: "elevation",
			Name:      "errors_total",
			Help:      "Failed elevation oracle calls, by kind",
		}, []string{"kind"}),
		elevationTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "osm2scs",
			Subsystem: "elevation",
			Name:      "call_duration_seconds",
			Help:      "Elevation oracle call latency",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"kind"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "osm2scs",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage"}),
	}
}

// Registry exposes the underlying registry
func (p *Pipeline) Registry() *prometheus.Registry {
	return p.registry
}

// Feature counts one feature outcome
func (p *Pipeline) Feature(class, outcome string) {
	p.features.WithLabelValues(class, outcome).Inc()
}

// Segments counts emitted curve segments
func (p *Pipeline) Segments(class string, n int) {
	p.segments.WithLabelValues(class).Add(float64(n))
}

// Triangles counts emitted building triangles
func (p *Pipeline) Triangles(n int) {
	p.triangles.Add(float64(n))
}

// TerrainTiles counts generated tiles
func (p *Pipeline) TerrainTiles(n int) {
	p.terrainTiles.Add(float64(n))
}

// TerrainBatch counts one completed elevation batch
func (p *Pipeline) TerrainBatch() {
	p.terrainBatches.Inc()
}

// StageDone records the duration of a stage
func (p *Pipeline) StageDone(stage string, elapsed time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveElevation implements elevation.Observer
func (p *Pipeline) ObserveElevation(kind string, points int, elapsed time.Duration, err error) {
	p.elevationCalls.WithLabelValues(kind).Inc()
	p.elevationPoints.WithLabelValues(kind).Add(float64(points))
	p.elevationTime.WithLabelValues(kind).Observe(elapsed.Seconds())
	if err != nil {
		p.elevationErrors.WithLabelValues(kind).Inc()
	}
}

// WriteTextfile writes all metrics in the text exposition format,
// suitable for the node exporter textfile collector
func (p *Pipeline) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
