package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osm2scs-go/internal/config"
	"github.com/wegman-software/osm2scs-go/internal/curve"
	"github.com/wegman-software/osm2scs-go/internal/elevation"
	"github.com/wegman-software/osm2scs-go/internal/flex"
	"github.com/wegman-software/osm2scs-go/internal/geom"
	"github.com/wegman-software/osm2scs-go/internal/logger"
	"github.com/wegman-software/osm2scs-go/internal/metrics"
	"github.com/wegman-software/osm2scs-go/internal/pipeline"
	"github.com/wegman-software/osm2scs-go/internal/proj"
	"github.com/wegman-software/osm2scs-go/internal/sink"
	"github.com/wegman-software/osm2scs-go/internal/source"
	"github.com/wegman-software/osm2scs-go/internal/style"
)

// how often stage progress is logged
const progressInterval = 5 * time.Second

var generateCmd = &cobra.Command{
	Use:   "generate <input.osm|input.osm.pbf>",
	Short: "Run the generator (terrain → roads → railways → buildings)",
	Long: `Read an OSM extract and generate map primitives in four stages:

  1. Terrain:   tiles covering the dataset, heights sampled in batches
  2. Roads:     highway ways draped on the ground and split into segments
  3. Railways:  railway ways, same as roads
  4. Buildings: closed building ways extruded into solids

Every stage writes its whole class to the sink at once. A failing stage
aborts the run; classes written by earlier stages are kept.`,
	Args: cobra.ExactArgs(1),
	Run:  runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	d := config.DefaultConfig()
	flags := generateCmd.Flags()

	// Input and styling
	flags.StringP("bbox", "b", "", "Override the dataset bounds: minlon,minlat,maxlon,maxlat")
	flags.StringP("projection", "E", d.Projection, "Projection of the local frame (3857)")
	flags.StringP("style", "S", "", "Style YAML file with filters and road appearances")
	flags.String("lua-style", "", "Lua script with appearance and height hooks")

	// Output
	flags.String("sink", d.Sink, "Output sink: parquet, postgis or memory")

	// Geometry
	flags.Float64("max-segment-length", d.MaxSegmentLength, "Maximum length of a road or railway segment")
	flags.Float64("epsilon", d.Epsilon, "Decimation distance below which points are dropped")
	flags.Float64("building-height", d.BuildingHeight, "Height of buildings without height tags")
	flags.Float64("storey-height", d.StoreyHeight, "Height per building:levels")

	// Terrain
	flags.Bool("skip-terrain", false, "Do not generate terrain tiles")
	flags.String("terrain-step", d.TerrainStepString, "Terrain quad size (2, 4, 12 or 16)")
	flags.Float64("terrain-bias", d.TerrainBias, "Vertical bias added to every terrain vertex")
	flags.Int("imagery-zoom", d.ImageryZoom, "Zoom level of the imagery tiles listed per terrain tile")
	flags.Int("batch-size", d.BatchSize, "Terrain tiles per elevation query")

	// Elevation
	flags.String("elevation", d.Elevation, "Elevation source: dem or constant")
	flags.Float64("flat-elevation", d.FlatElevation, "Ground height for the constant elevation source")
	flags.String("dem-dir", d.DEMDir, "Directory holding SRTM .hgt tiles")
	flags.String("dem-url", d.DEMURL, "Base URL to download missing SRTM tiles from")
	flags.Bool("dem-download", false, "Download missing SRTM tiles before the run")
}

func runGenerate(cmd *cobra.Command, args []string) {
	cfg.InputFile = args[0]

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := generate(ctx, cfg); err != nil {
		exitWithError("generation failed", err)
	}
}

func generate(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()
	totalStart := time.Now()

	logFields := []zap.Field{
		zap.String("input", cfg.InputFile),
		zap.String("sink", cfg.Sink),
		zap.String("elevation", cfg.Elevation),
		zap.Int("workers", cfg.Workers),
	}
	if cfg.BBox != nil && cfg.BBox.IsSet {
		logFields = append(logFields, zap.String("bbox",
			fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", cfg.BBox.MinLon, cfg.BBox.MinLat, cfg.BBox.MaxLon, cfg.BBox.MaxLat)))
	}
	if cfg.StyleFile != "" {
		logFields = append(logFields, zap.String("style", cfg.StyleFile))
	}
	if cfg.LuaFile != "" {
		logFields = append(logFields, zap.String("lua_style", cfg.LuaFile))
	}
	log.Info("Starting osm2scs-go", logFields...)

	projection, err := proj.Parse(cfg.Projection)
	if err != nil {
		return err
	}

	deps := pipeline.Deps{
		Projection: projection,
		Metrics:    metrics.NewPipeline(),
	}

	styleCfg := style.DefaultConfig()
	if cfg.StyleFile != "" {
		if styleCfg, err = style.LoadConfig(cfg.StyleFile); err != nil {
			return err
		}
	}
	deps.Filters = styleCfg.Filters()
	deps.Styler = curve.NewTableStyler(styleCfg.RoadStyles())

	var luaStyler *flex.Styler
	if cfg.LuaFile != "" {
		rt := flex.NewRuntime()
		defer rt.Close()
		if err := rt.LoadFile(cfg.LuaFile); err != nil {
			return err
		}
		luaStyler = flex.NewStyler(rt, deps.Styler)
		deps.Styler = luaStyler
		if rt.HasBuildingHeight() {
			deps.HeightOverride = luaStyler.BuildingHeight
		}
	}

	readStart := time.Now()
	ds, err := source.ReadFile(ctx, cfg.InputFile, cfg.Workers)
	if err != nil {
		return err
	}
	log.Info("Input read",
		zap.Duration("duration", time.Since(readStart).Round(time.Millisecond)),
		zap.Int64("nodes", ds.Stats.Nodes),
		zap.Int64("ways", ds.Stats.Ways),
		zap.Int64("buildings", ds.Stats.Buildings),
		zap.Int64("highways", ds.Stats.Highways),
		zap.Int64("railways", ds.Stats.Railways),
		zap.Int64("missing_nodes", ds.Stats.MissingNodes))

	bounds := ds.Bounds
	if cfg.BBox != nil && cfg.BBox.IsSet {
		bounds = cfg.BBox.Bounds()
	}

	oracle, closeOracle, err := newOracle(ctx, cfg, bounds)
	if err != nil {
		return err
	}
	defer closeOracle()
	deps.Elevation = oracle

	out, err := newSink(ctx, cfg)
	if err != nil {
		return err
	}
	deps.Sink = out

	coordinator, err := pipeline.NewCoordinator(cfg, deps)
	if err != nil {
		out.Close()
		return err
	}

	events := make(chan pipeline.Event, 64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pipeline.LogProgress(log, events, progressInterval)
	}()

	stats, runErr := coordinator.Run(ctx, ds, events)
	close(events)
	wg.Wait()

	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to close sink: %w", err)
	}

	if cfg.MetricsFile != "" {
		if err := coordinator.Metrics().WriteTextfile(cfg.MetricsFile); err != nil {
			log.Warn("Failed to write metrics file", zap.String("path", cfg.MetricsFile), zap.Error(err))
		}
	}

	if runErr != nil {
		return runErr
	}

	summary := []zap.Field{
		zap.Duration("total_time", time.Since(totalStart).Round(time.Second)),
		zap.Int("terrain_tiles", stats.Tiles),
		zap.Int("roads", stats.Generated[geom.ClassHighway]),
		zap.Int("railways", stats.Generated[geom.ClassRailway]),
		zap.Int("segments", stats.Segments),
		zap.Int("buildings", stats.Generated[geom.ClassBuilding]),
		zap.Int("triangles", stats.Triangles),
	}
	if luaStyler != nil {
		summary = append(summary, zap.Int64("lua_errors", luaStyler.Errors()))
	}
	log.Info("Generation complete", summary...)
	return nil
}

// newOracle returns the configured elevation source and a function releasing it
func newOracle(ctx context.Context, cfg *config.Config, bounds geom.Bounds) (elevation.Oracle, func() error, error) {
	if cfg.Elevation == config.ElevationConstant {
		return elevation.Constant(cfg.FlatElevation), func() error { return nil }, nil
	}

	if cfg.DEMDownload && !bounds.IsEmpty() {
		if _, err := downloadDEM(ctx, cfg, bounds); err != nil {
			return nil, nil, err
		}
	}

	dem := elevation.NewDEM(cfg.DEMDir, 0)
	return dem, dem.Close, nil
}

func newSink(ctx context.Context, cfg *config.Config) (sink.Sink, error) {
	switch cfg.Sink {
	case config.SinkPostGIS:
		pg, err := sink.NewPostGIS(ctx, cfg.ConnectionString(), cfg.DBSchema, cfg.Workers)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case config.SinkMemory:
		return sink.NewMemory(), nil
	default:
		pq, err := sink.NewParquet(cfg.OutputDir, 0)
		if err != nil {
			return nil, err
		}
		return pq, nil
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Get().Info("Received signal, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
