package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestPipelineCounters(t *testing.T) {
	p := NewPipeline()

	p.Feature("highway", OutcomeGenerated)
	p.Feature("highway", OutcomeGenerated)
	p.Feature("building", OutcomeRejected)
	p.Segments("railway", 7)
	p.TerrainBatch()
	p.ObserveElevation("batch", 100, 10*time.Millisecond, nil)
	p.ObserveElevation("batch", 50, time.Millisecond, errors.New("boom"))

	if got := testutil.ToFloat64(p.features.WithLabelValues("highway", OutcomeGenerated)); got != 2 {
		t.Errorf("generated highways = %f, want 2", got)
	}
	if got := testutil.ToFloat64(p.segments.WithLabelValues("railway")); got != 7 {
		t.Errorf("railway segments = %f, want 7", got)
	}
	if got := testutil.ToFloat64(p.elevationPoints.WithLabelValues("batch")); got != 150 {
		t.Errorf("elevation points = %f, want 150", got)
	}
	if got := testutil.ToFloat64(p.elevationErrors.WithLabelValues("batch")); got != 1 {
		t.Errorf("elevation errors = %f, want 1", got)
	}
	if got := testutil.ToFloat64(p.terrainBatches); got != 1 {
		t.Errorf("terrain batches = %f, want 1", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	p := NewPipeline()
	p.TerrainTiles(12)
	p.StageDone("terrain", 2*time.Second)

	path := filepath.Join(t.TempDir(), "osm2scs.prom")
	if err := p.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "osm2scs_terrain_tiles_total 12") {
		t.Errorf("metrics file missing tile count:\n%s", text)
	}
	if !strings.Contains(text, `osm2scs_pipeline_stage_duration_seconds_count{stage="terrain"} 1`) {
		t.Errorf("metrics file missing stage duration:\n%s", text)
	}
}

func TestCollectorSample(t *testing.T) {
	c := NewCollector(0, zap.NewNop())
	if c.interval != 30*time.Second {
		t.Errorf("interval = %v, want 30s default", c.interval)
	}

	m := c.Sample()
	if m.Goroutines < 1 {
		t.Errorf("goroutines = %d, want >= 1", m.Goroutines)
	}
	if m.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	cancel()
	<-done

	if c.GetMetrics() == nil {
		t.Error("Start should collect a first sample immediately")
	}
}
