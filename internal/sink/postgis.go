package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wegman-software/osm2scs-go/internal/geom"
	"github.com/wegman-software/osm2scs-go/internal/logger"
)

// Table names inside the target schema
const (
	ModelsTable  = "scs_models"
	TerrainTable = "scs_terrain"
)

// CurvesTable returns the table for a curve class, e.g. scs_highway_curves
func CurvesTable(class geom.Class) string {
	return "scs_" + class.String() + "_curves"
}

// table describes one output table: its final columns, the staging
// columns filled by COPY and the projection from staging to final
type table struct {
	name        string
	columns     string
	stageCols   string
	copyCols    []string
	selectCols  string
	geomColumns []string
}

var modelTable = table{
	name: ModelsTable,
	columns: `feature_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		material TEXT,
		view_distance INTEGER,
		rotation DOUBLE PRECISION,
		vertices INTEGER,
		triangles INTEGER,
		position GEOMETRY(PointZ),
		mesh GEOMETRY,
		outline GEOMETRY(PolygonZ)`,
	stageCols: `feature_id BIGINT, name TEXT, material TEXT, view_distance INTEGER,
		rotation DOUBLE PRECISION, vertices INTEGER, triangles INTEGER,
		position_wkb BYTEA, mesh_wkb BYTEA, outline_wkb BYTEA`,
	copyCols: []string{"feature_id", "name", "material", "view_distance", "rotation",
		"vertices", "triangles", "position_wkb", "mesh_wkb", "outline_wkb"},
	selectCols: `feature_id, name, material, view_distance, rotation, vertices, triangles,
		ST_GeomFromEWKB(position_wkb), ST_GeomFromEWKB(mesh_wkb), ST_GeomFromEWKB(outline_wkb)`,
	geomColumns: []string{"position"},
}

var curveTableTemplate = table{
	columns: `feature_id BIGINT NOT NULL,
		class TEXT NOT NULL,
		unit TEXT NOT NULL,
		look TEXT NOT NULL,
		view_distance INTEGER,
		linear_path BOOLEAN,
		segments INTEGER,
		path GEOMETRY(LineStringZ)`,
	stageCols: `feature_id BIGINT, class TEXT, unit TEXT, look TEXT, view_distance INTEGER,
		linear_path BOOLEAN, segments INTEGER, path_wkb BYTEA`,
	copyCols: []string{"feature_id", "class", "unit", "look", "view_distance",
		"linear_path", "segments", "path_wkb"},
	selectCols: `feature_id, class, unit, look, view_distance, linear_path, segments,
		ST_GeomFromEWKB(path_wkb)`,
	geomColumns: []string{"path"},
}

var terrainTable = table{
	name: TerrainTable,
	columns: `tile_index INTEGER NOT NULL,
		grid_cols INTEGER,
		grid_rows INTEGER,
		step INTEGER,
		view_distance INTEGER,
		anchor GEOMETRY(PointZ),
		forward GEOMETRY(PointZ),
		heights DOUBLE PRECISION[],
		imagery_tiles TEXT[],
		footprint GEOMETRY(Polygon, 4326)`,
	stageCols: `tile_index INTEGER, grid_cols INTEGER, grid_rows INTEGER, step INTEGER,
		view_distance INTEGER, anchor_wkb BYTEA, forward_wkb BYTEA,
		heights DOUBLE PRECISION[], imagery_tiles TEXT[], footprint_wkb BYTEA`,
	copyCols: []string{"tile_index", "grid_cols", "grid_rows", "step", "view_distance",
		"anchor_wkb", "forward_wkb", "heights", "imagery_tiles", "footprint_wkb"},
	selectCols: `tile_index, grid_cols, grid_rows, step, view_distance,
		ST_GeomFromEWKB(anchor_wkb), ST_GeomFromEWKB(forward_wkb),
		heights, imagery_tiles, ST_GeomFromEWKB(footprint_wkb)`,
	geomColumns: []string{"anchor", "footprint"},
}

// PostGIS loads primitives into PostgreSQL with COPY.
// Each class is replaced inside one transaction.
type PostGIS struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostGIS connects and makes sure PostGIS and the schema exist
func NewPostGIS(ctx context.Context, connString, schema string, maxConns int) (*PostGIS, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create PostGIS extension: %w", err)
	}
	if schema == "" {
		schema = "public"
	}
	if schema != "public" {
		if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{schema}.Sanitize())); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &PostGIS{pool: pool, schema: schema}, nil
}

func (p *PostGIS) WriteModels(ctx context.Context, models []*geom.Model) error {
	enc := newRowEncoder()
	rows := make([][]any, len(models))
	for i, m := range models {
		r := enc.model(m)
		rows[i] = []any{r.FeatureID, r.Name, r.Material, r.ViewDistance, r.Rotation,
			r.Vertices, r.Triangles, r.Position, r.Mesh, r.Outline}
	}
	return p.load(ctx, modelTable, rows)
}

func (p *PostGIS) WriteCurves(ctx context.Context, class geom.Class, chains []*geom.CurveChain) error {
	enc := newRowEncoder()
	rows := make([][]any, len(chains))
	for i, c := range chains {
		r := enc.curve(c)
		rows[i] = []any{r.FeatureID, r.Class, r.Unit, r.Look, r.ViewDistance,
			r.LinearPath, r.Segments, r.Path}
	}
	t := curveTableTemplate
	t.name = CurvesTable(class)
	return p.load(ctx, t, rows)
}

func (p *PostGIS) WriteTerrain(ctx context.Context, tiles []*geom.TerrainTile) error {
	enc := newRowEncoder()
	rows := make([][]any, len(tiles))
	for i, t := range tiles {
		r := enc.terrain(t)
		rows[i] = []any{r.Index, r.Cols, r.Rows, r.Step, r.ViewDistance,
			r.Anchor, r.Forward, r.Heights, r.ImageryTiles, r.Footprint}
	}
	return p.load(ctx, terrainTable, rows)
}

// Close closes the pool
func (p *PostGIS) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostGIS) qualified(name string) string {
	return pgx.Identifier{p.schema, name}.Sanitize()
}

// load replaces a table's content: recreate, COPY into a staging table,
// convert EWKB to geometry and index, all in a single transaction
func (p *PostGIS) load(ctx context.Context, t table, rows [][]any) error {
	log := logger.Get()
	full := p.qualified(t.name)
	stage := pgx.Identifier{t.name + "_load_tmp"}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmts := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", full),
		fmt.Sprintf("CREATE TABLE %s (%s)", full, t.columns),
		fmt.Sprintf("CREATE TEMP TABLE %s (%s) ON COMMIT DROP", stage.Sanitize(), t.stageCols),
	}
	for _, s := range stmts {
		if _, err := tx.Exec(ctx, s); err != nil {
			return fmt.Errorf("failed to prepare %s: %w", t.name, err)
		}
	}

	copied, err := tx.CopyFrom(ctx, stage, t.copyCols, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("COPY into %s failed: %w", t.name, err)
	}

	insert := fmt.Sprintf("INSERT INTO %s SELECT %s FROM %s", full, t.selectCols, stage.Sanitize())
	if _, err := tx.Exec(ctx, insert); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", t.name, err)
	}

	for _, col := range t.geomColumns {
		idx := fmt.Sprintf("CREATE INDEX %s ON %s USING GIST (%s)",
			pgx.Identifier{t.name + "_" + col + "_idx"}.Sanitize(), full, col)
		if _, err := tx.Exec(ctx, idx); err != nil {
			return fmt.Errorf("failed to index %s: %w", t.name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit %s: %w", t.name, err)
	}

	if _, err := p.pool.Exec(ctx, "ANALYZE "+full); err != nil {
		log.Warn("ANALYZE failed", zap.String("table", t.name), zap.Error(err))
	}

	log.Info("Table loaded", zap.String("table", t.name), zap.Int64("rows", copied))
	return nil
}
