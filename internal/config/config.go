package config

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wegman-software/osm2scs-go/internal/curve"
	"github.com/wegman-software/osm2scs-go/internal/elevation"
	"github.com/wegman-software/osm2scs-go/internal/enrich"
	"github.com/wegman-software/osm2scs-go/internal/extrude"
	"github.com/wegman-software/osm2scs-go/internal/geom"
	"github.com/wegman-software/osm2scs-go/internal/terrain"
)

// EnvPrefix is the prefix of environment overrides (OSM2SCS_MAX_SEGMENT_LENGTH, ...)
const EnvPrefix = "OSM2SCS"

// Sink kinds
const (
	SinkParquet = "parquet"
	SinkPostGIS = "postgis"
	SinkMemory  = "memory"
)

// Elevation sources
const (
	ElevationDEM      = "dem"
	ElevationConstant = "constant"
)

// BBox represents a geographic bounding box
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
	IsSet                          bool
}

// Bounds converts the box to geometry bounds
func (b *BBox) Bounds() geom.Bounds {
	return geom.NewBounds(
		geom.LatLon{Lat: b.MinLat, Lon: b.MinLon},
		geom.LatLon{Lat: b.MaxLat, Lon: b.MaxLon},
	)
}

// ParseBBox parses a bbox string in format "minlon,minlat,maxlon,maxlat"
func ParseBBox(s string) (*BBox, error) {
	if s == "" {
		return &BBox{IsSet: false}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values: minlon,minlat,maxlon,maxlat")
	}

	var coords [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox coordinate %q: %w", p, err)
		}
		coords[i] = v
	}

	bbox := &BBox{
		MinLon: coords[0],
		MinLat: coords[1],
		MaxLon: coords[2],
		MaxLat: coords[3],
		IsSet:  true,
	}

	if bbox.MinLon > bbox.MaxLon {
		return nil, fmt.Errorf("minlon (%f) must be <= maxlon (%f)", bbox.MinLon, bbox.MaxLon)
	}
	if bbox.MinLat > bbox.MaxLat {
		return nil, fmt.Errorf("minlat (%f) must be <= maxlat (%f)", bbox.MinLat, bbox.MaxLat)
	}

	return bbox, nil
}

// Config holds the settings of a generator run
type Config struct {
	// Input settings
	InputFile  string `mapstructure:"-"`
	BBox       *BBox  `mapstructure:"-"`
	BBoxString string `mapstructure:"bbox"`
	Projection string `mapstructure:"projection"`
	StyleFile  string `mapstructure:"style"`     // YAML filters and appearance overrides
	LuaFile    string `mapstructure:"lua_style"` // Lua appearance hooks

	// Output settings
	Sink      string `mapstructure:"sink"`
	OutputDir string `mapstructure:"output_dir"`

	// Database settings (postgis sink)
	DBHost     string `mapstructure:"db_host"`
	DBPort     int    `mapstructure:"db_port"`
	DBName     string `mapstructure:"db_name"`
	DBUser     string `mapstructure:"db_user"`
	DBPassword string `mapstructure:"db_password"`
	DBSchema   string `mapstructure:"db_schema"`

	// Geometry settings
	MaxSegmentLength     float64 `mapstructure:"max_segment_length"`
	Epsilon              float64 `mapstructure:"epsilon"`
	BuildingHeight       float64 `mapstructure:"building_height"`
	StoreyHeight         float64 `mapstructure:"storey_height"`
	RoadViewDistance     int     `mapstructure:"road_view_distance"`
	RailwayViewDistance  int     `mapstructure:"railway_view_distance"`
	BuildingViewDistance int     `mapstructure:"building_view_distance"`

	// Terrain settings
	SkipTerrain         bool    `mapstructure:"skip_terrain"`
	TerrainCols         int     `mapstructure:"terrain_cols"`
	TerrainRows         int     `mapstructure:"terrain_rows"`
	TerrainStepString   string  `mapstructure:"terrain_step"`
	TerrainBias         float64 `mapstructure:"terrain_bias"`
	TerrainViewDistance int     `mapstructure:"terrain_view_distance"`
	ImageryZoom         int     `mapstructure:"imagery_zoom"`
	BatchSize           int     `mapstructure:"batch_size"`
	Workers             int     `mapstructure:"workers"` // 0 = one goroutine per batch

	// TerrainStep is parsed from TerrainStepString by Load
	TerrainStep geom.StepSize `mapstructure:"-"`

	// Elevation settings
	Elevation     string  `mapstructure:"elevation"`
	FlatElevation float64 `mapstructure:"flat_elevation"`
	DEMDir        string  `mapstructure:"dem_dir"`
	DEMURL        string  `mapstructure:"dem_url"`
	DEMDownload   bool    `mapstructure:"dem_download"`

	// Logging and metrics
	Verbose         bool          `mapstructure:"verbose"`
	LogFile         string        `mapstructure:"log_file"` // empty = no file logging
	MetricsInterval time.Duration `mapstructure:"metrics_interval"`
	MetricsFile     string        `mapstructure:"metrics_file"` // Prometheus textfile written after the run
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	tc := terrain.DefaultConfig()
	return &Config{
		BBox:       &BBox{},
		Projection: "3857",
		Sink:       SinkParquet,
		OutputDir:  "./scs_data",

		DBHost:   "localhost",
		DBPort:   5432,
		DBName:   "osm",
		DBUser:   "postgres",
		DBSchema: "public",

		MaxSegmentLength:     curve.DefaultMaxSegmentLength,
		Epsilon:              enrich.DefaultEpsilon,
		BuildingHeight:       extrude.DefaultHeightConfig().Default,
		StoreyHeight:         extrude.DefaultHeightConfig().StoreyHeight,
		RoadViewDistance:     curve.DefaultViewDistance,
		RailwayViewDistance:  curve.DefaultViewDistance,
		BuildingViewDistance: extrude.DefaultViewDistance,

		TerrainCols:         tc.Cols,
		TerrainRows:         tc.Rows,
		TerrainStepString:   strconv.Itoa(int(tc.Step)),
		TerrainStep:         tc.Step,
		TerrainBias:         terrain.DefaultBias,
		TerrainViewDistance: tc.ViewDistance,
		ImageryZoom:         tc.ImageryZoom,
		BatchSize:           terrain.DefaultBatchSize,
		Workers:             runtime.NumCPU(),

		Elevation: ElevationDEM,
		DEMDir:    "./dem",
		DEMURL:    elevation.DefaultTileURL,

		MetricsInterval: 30 * time.Second,
	}
}

// SetDefaults registers every key with its default so that environment
// variables are picked up by Unmarshal
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	defaults := map[string]any{
		"bbox":                   d.BBoxString,
		"projection":             d.Projection,
		"style":                  d.StyleFile,
		"lua_style":              d.LuaFile,
		"sink":                   d.Sink,
		"output_dir":             d.OutputDir,
		"db_host":                d.DBHost,
		"db_port":                d.DBPort,
		"db_name":                d.DBName,
		"db_user":                d.DBUser,
		"db_password":            d.DBPassword,
		"db_schema":              d.DBSchema,
		"max_segment_length":     d.MaxSegmentLength,
		"epsilon":                d.Epsilon,
		"building_height":        d.BuildingHeight,
		"storey_height":          d.StoreyHeight,
		"road_view_distance":     d.RoadViewDistance,
		"railway_view_distance":  d.RailwayViewDistance,
		"building_view_distance": d.BuildingViewDistance,
		"skip_terrain":           d.SkipTerrain,
		"terrain_cols":           d.TerrainCols,
		"terrain_rows":           d.TerrainRows,
		"terrain_step":           d.TerrainStepString,
		"terrain_bias":           d.TerrainBias,
		"terrain_view_distance":  d.TerrainViewDistance,
		"imagery_zoom":           d.ImageryZoom,
		"batch_size":             d.BatchSize,
		"workers":                d.Workers,
		"elevation":              d.Elevation,
		"flat_elevation":         d.FlatElevation,
		"dem_dir":                d.DEMDir,
		"dem_url":                d.DEMURL,
		"dem_download":           d.DEMDownload,
		"verbose":                d.Verbose,
		"log_file":               d.LogFile,
		"metrics_interval":       d.MetricsInterval,
		"metrics_file":           d.MetricsFile,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Load resolves the configuration from v with the precedence
// flag > environment > config file > default.
// Flags must already be bound to v under their mapstructure keys.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	bbox, err := ParseBBox(cfg.BBoxString)
	if err != nil {
		return nil, fmt.Errorf("invalid bbox: %w", err)
	}
	cfg.BBox = bbox

	step, err := terrain.ParseStepSize(cfg.TerrainStepString)
	if err != nil {
		return nil, fmt.Errorf("invalid terrain step: %w", err)
	}
	cfg.TerrainStep = step

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// TerrainConfig returns the terrain topology
func (c *Config) TerrainConfig() terrain.Config {
	return terrain.Config{
		Cols:         c.TerrainCols,
		Rows:         c.TerrainRows,
		Step:         c.TerrainStep,
		ViewDistance: c.TerrainViewDistance,
		ImageryZoom:  c.ImageryZoom,
	}
}

// CurveConfig returns the road and railway settings
func (c *Config) CurveConfig() curve.Config {
	return curve.Config{
		MaxSegmentLength:    c.MaxSegmentLength,
		RoadViewDistance:    c.RoadViewDistance,
		RailwayViewDistance: c.RailwayViewDistance,
	}
}

// ModelConfig returns the building settings
func (c *Config) ModelConfig() extrude.ModelConfig {
	mc := extrude.DefaultModelConfig()
	mc.Height = extrude.HeightConfig{Default: c.BuildingHeight, StoreyHeight: c.StoreyHeight}
	mc.ViewDistance = c.BuildingViewDistance
	return mc
}

// Validate checks that the configuration is valid. All problems are reported at once.
func (c *Config) Validate() error {
	var errs []error

	if c.InputFile == "" {
		errs = append(errs, fmt.Errorf("input file is required"))
	}
	if c.MaxSegmentLength <= 0 {
		errs = append(errs, fmt.Errorf("max segment length must be positive"))
	}
	if c.Epsilon <= 0 {
		errs = append(errs, fmt.Errorf("epsilon must be positive"))
	}
	if c.BuildingHeight <= 0 || c.StoreyHeight <= 0 {
		errs = append(errs, fmt.Errorf("building and storey heights must be positive"))
	}
	if err := c.TerrainConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch size must be at least 1"))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative"))
	}
	if c.ImageryZoom < 0 || c.ImageryZoom > 22 {
		errs = append(errs, fmt.Errorf("imagery zoom must be between 0 and 22"))
	}

	switch c.Sink {
	case SinkParquet, SinkMemory:
	case SinkPostGIS:
		if c.DBName == "" {
			errs = append(errs, fmt.Errorf("database name is required for the postgis sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sink %q (supported: parquet, postgis, memory)", c.Sink))
	}

	switch c.Elevation {
	case ElevationConstant:
	case ElevationDEM:
		if c.DEMDir == "" {
			errs = append(errs, fmt.Errorf("dem directory is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown elevation source %q (supported: dem, constant)", c.Elevation))
	}

	return errors.Join(errs...)
}
