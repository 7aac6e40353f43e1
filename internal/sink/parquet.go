package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"go.uber.org/zap"

	"github.com/wegman-software/osm2scs-go/internal/geom"
	"github.com/wegman-software/osm2scs-go/internal/logger"
)

// Output file names
const (
	ModelsFile  = "models.parquet"
	TerrainFile = "terrain.parquet"
)

// CurvesFile returns the file name for a curve class, e.g. highway_curves.parquet
func CurvesFile(class geom.Class) string {
	return class.String() + "_curves.parquet"
}

var (
	modelSchema = arrow.NewSchema([]arrow.Field{
		{Name: "feature_id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "material", Type: arrow.BinaryTypes.String},
		{Name: "view_distance", Type: arrow.PrimitiveTypes.Int32},
		{Name: "rotation", Type: arrow.PrimitiveTypes.Float64},
		{Name: "vertices", Type: arrow.PrimitiveTypes.Int32},
		{Name: "triangles", Type: arrow.PrimitiveTypes.Int32},
		{Name: "position_wkb", Type: arrow.BinaryTypes.Binary},
		{Name: "mesh_wkb", Type: arrow.BinaryTypes.Binary},
		{Name: "outline_wkb", Type: arrow.BinaryTypes.Binary, Nullable: true},
	}, nil)

	curveSchema = arrow.NewSchema([]arrow.Field{
		{Name: "feature_id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "class", Type: arrow.BinaryTypes.String},
		{Name: "unit", Type: arrow.BinaryTypes.String},
		{Name: "look", Type: arrow.BinaryTypes.String},
		{Name: "view_distance", Type: arrow.PrimitiveTypes.Int32},
		{Name: "linear_path", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "segments", Type: arrow.PrimitiveTypes.Int32},
		{Name: "path_wkb", Type: arrow.BinaryTypes.Binary},
	}, nil)

	terrainSchema = arrow.NewSchema([]arrow.Field{
		{Name: "tile_index", Type: arrow.PrimitiveTypes.Int32},
		{Name: "cols", Type: arrow.PrimitiveTypes.Int32},
		{Name: "rows", Type: arrow.PrimitiveTypes.Int32},
		{Name: "step", Type: arrow.PrimitiveTypes.Int32},
		{Name: "view_distance", Type: arrow.PrimitiveTypes.Int32},
		{Name: "anchor_wkb", Type: arrow.BinaryTypes.Binary},
		{Name: "forward_wkb", Type: arrow.BinaryTypes.Binary},
		{Name: "heights", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64)},
		{Name: "imagery_tiles", Type: arrow.ListOf(arrow.BinaryTypes.String)},
		{Name: "footprint_wkb", Type: arrow.BinaryTypes.Binary},
	}, nil)
)

// Parquet writes one zstd-compressed Parquet file per feature class
type Parquet struct {
	dir       string
	batchSize int
}

// NewParquet creates the output directory
func NewParquet(dir string, batchSize int) (*Parquet, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if batchSize <= 0 {
		batchSize = 10000
	}
	return &Parquet{dir: dir, batchSize: batchSize}, nil
}

func (p *Parquet) WriteModels(ctx context.Context, models []*geom.Model) error {
	enc := newRowEncoder()
	return p.write(ctx, ModelsFile, modelSchema, len(models), func(b *array.RecordBuilder, i int) {
		r := enc.model(models[i])
		b.Field(0).(*array.Int64Builder).Append(r.FeatureID)
		b.Field(1).(*array.StringBuilder).Append(r.Name)
		b.Field(2).(*array.StringBuilder).Append(r.Material)
		b.Field(3).(*array.Int32Builder).Append(r.ViewDistance)
		b.Field(4).(*array.Float64Builder).Append(r.Rotation)
		b.Field(5).(*array.Int32Builder).Append(r.Vertices)
		b.Field(6).(*array.Int32Builder).Append(r.Triangles)
		b.Field(7).(*array.BinaryBuilder).Append(r.Position)
		b.Field(8).(*array.BinaryBuilder).Append(r.Mesh)
		if r.Outline == nil {
			b.Field(9).AppendNull()
		} else {
			b.Field(9).(*array.BinaryBuilder).Append(r.Outline)
		}
	})
}

func (p *Parquet) WriteCurves(ctx context.Context, class geom.Class, chains []*geom.CurveChain) error {
	enc := newRowEncoder()
	return p.write(ctx, CurvesFile(class), curveSchema, len(chains), func(b *array.RecordBuilder, i int) {
		r := enc.curve(chains[i])
		b.Field(0).(*array.Int64Builder).Append(r.FeatureID)
		b.Field(1).(*array.StringBuilder).Append(r.Class)
		b.Field(2).(*array.StringBuilder).Append(r.Unit)
		b.Field(3).(*array.StringBuilder).Append(r.Look)
		b.Field(4).(*array.Int32Builder).Append(r.ViewDistance)
		b.Field(5).(*array.BooleanBuilder).Append(r.LinearPath)
		b.Field(6).(*array.Int32Builder).Append(r.Segments)
		b.Field(7).(*array.BinaryBuilder).Append(r.Path)
	})
}

func (p *Parquet) WriteTerrain(ctx context.Context, tiles []*geom.TerrainTile) error {
	enc := newRowEncoder()
	return p.write(ctx, TerrainFile, terrainSchema, len(tiles), func(b *array.RecordBuilder, i int) {
		r := enc.terrain(tiles[i])
		b.Field(0).(*array.Int32Builder).Append(r.Index)
		b.Field(1).(*array.Int32Builder).Append(r.Cols)
		b.Field(2).(*array.Int32Builder).Append(r.Rows)
		b.Field(3).(*array.Int32Builder).Append(r.Step)
		b.Field(4).(*array.Int32Builder).Append(r.ViewDistance)
		b.Field(5).(*array.BinaryBuilder).Append(r.Anchor)
		b.Field(6).(*array.BinaryBuilder).Append(r.Forward)

		hb := b.Field(7).(*array.ListBuilder)
		hb.Append(true)
		hb.ValueBuilder().(*array.Float64Builder).AppendValues(r.Heights, nil)

		ib := b.Field(8).(*array.ListBuilder)
		ib.Append(true)
		ib.ValueBuilder().(*array.StringBuilder).AppendValues(r.ImageryTiles, nil)

		b.Field(9).(*array.BinaryBuilder).Append(r.Footprint)
	})
}

// Close is a no-op; every class file is closed by its Write call
func (p *Parquet) Close() error {
	return nil
}

// write streams n rows into name via a temporary file that is renamed
// into place only after the Parquet footer was written
func (p *Parquet) write(ctx context.Context, name string, schema *arrow.Schema, n int, appendRow func(*array.RecordBuilder, int)) error {
	path := filepath.Join(p.dir, name)
	tmp := path + ".tmp"

	w, err := newTableWriter(tmp, schema, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}

	for i := 0; i < n; i++ {
		if i%p.batchSize == 0 {
			if err := ctx.Err(); err != nil {
				w.abort()
				return err
			}
		}
		appendRow(w.builder, i)
		if err := w.rowAdded(); err != nil {
			w.abort()
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	if err := w.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finish %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", name, err)
	}

	logger.Get().Debug("Parquet file written", zap.String("file", path), zap.Int("rows", n))
	return nil
}

// tableWriter batches rows into Arrow records
type tableWriter struct {
	path      string
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
}

func newTableWriter(path string, schema *arrow.Schema, batchSize int) (*tableWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(schema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, err
	}

	return &tableWriter{
		path:      path,
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, schema),
		batchSize: batchSize,
	}, nil
}

func (w *tableWriter) rowAdded() error {
	w.count++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

func (w *tableWriter) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.count = 0
	return err
}

// Close flushes pending rows and writes the footer
func (w *tableWriter) Close() error {
	defer w.builder.Release()
	if err := w.flush(); err != nil {
		w.writer.Close()
		return err
	}
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return err
	}
	// the parquet writer closes its sink itself
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

func (w *tableWriter) abort() {
	w.builder.Release()
	w.writer.Close()
	w.file.Close()
	os.Remove(w.path)
}
