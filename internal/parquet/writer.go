package parquet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
)

// Record is one exported feature
type Record struct {
	Class     string
	FeatureID int64
	Tile      int32
	Type      string
	Attrs     string // JSON object
	Label     string // empty is written as null
	Elevation *float64
	Geom      []byte // EWKB
}

// AttrsToJSON converts feature attributes to a JSON object string
func AttrsToJSON(attrs map[string]string) string {
	if len(attrs) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(attrs)
	return string(b)
}

// Columns lists the record fields in schema order
var Columns = []string{"feature_class", "feature_id", "tile_id", "feature_type", "attrs", "label", "elevation_msl", "geom_wkb"}

func featureSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "feature_class", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "feature_id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "tile_id", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
		{Name: "feature_type", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "attrs", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "label", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "elevation_msl", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "geom_wkb", Type: arrow.BinaryTypes.Binary, Nullable: false},
	}, nil)
}

// FeatureWriter writes feature records with WKB geometry to Parquet
type FeatureWriter struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
	total     int64
}

// NewFeatureWriter creates a new feature Parquet writer
func NewFeatureWriter(path string, batchSize int) (*FeatureWriter, error) {
	if batchSize <= 0 {
		batchSize = 10000
	}
	schema := featureSchema()

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

	return &FeatureWriter{
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, schema),
		batchSize: batchSize,
	}, nil
}

// Write appends a record, flushing a row group every batchSize records
func (w *FeatureWriter) Write(r Record) error {
	w.builder.Field(0).(*array.StringBuilder).Append(r.Class)
	w.builder.Field(1).(*array.Int64Builder).Append(r.FeatureID)
	w.builder.Field(2).(*array.Int32Builder).Append(r.Tile)
	w.builder.Field(3).(*array.StringBuilder).Append(r.Type)
	w.builder.Field(4).(*array.StringBuilder).Append(r.Attrs)
	if r.Label == "" {
		w.builder.Field(5).(*array.StringBuilder).AppendNull()
	} else {
		w.builder.Field(5).(*array.StringBuilder).Append(r.Label)
	}
	if r.Elevation == nil {
		w.builder.Field(6).(*array.Float64Builder).AppendNull()
	} else {
		w.builder.Field(6).(*array.Float64Builder).Append(*r.Elevation)
	}
	w.builder.Field(7).(*array.BinaryBuilder).Append(r.Geom)

	w.count++
	w.total++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

// Count returns the number of records written
func (w *FeatureWriter) Count() int64 {
	return w.total
}

func (w *FeatureWriter) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.count = 0
	return err
}

// Close closes the writer
func (w *FeatureWriter) Close() error {
	defer w.builder.Release()
	if err := w.flush(); err != nil {
		w.writer.Close()
		return err
	}
	if err := w.writer.Close(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// ReadFeatures calls fn for every record of a feature Parquet file. Geom
// aliases Arrow memory that is released when ReadFeatures returns.
func ReadFeatures(ctx context.Context, path string, fn func(Record) error) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	if err != nil {
		return 0, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer pf.Close()

	arrowReader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return 0, fmt.Errorf("failed to create arrow reader: %w", err)
	}

	tbl, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read table: %w", err)
	}
	defer tbl.Release()

	if got := int(tbl.NumCols()); got != len(Columns) {
		return 0, fmt.Errorf("%s: %d columns, want %d", path, got, len(Columns))
	}

	cols := make([]*arrow.Chunked, len(Columns))
	for i := range cols {
		cols[i] = tbl.Column(i).Data()
	}

	var count int64
	for c := 0; c < len(cols[0].Chunks()); c++ {
		class := cols[0].Chunk(c).(*array.String)
		ids := cols[1].Chunk(c).(*array.Int64)
		tiles := cols[2].Chunk(c).(*array.Int32)
		types := cols[3].Chunk(c).(*array.String)
		attrs := cols[4].Chunk(c).(*array.String)
		labels := cols[5].Chunk(c).(*array.String)
		elev := cols[6].Chunk(c).(*array.Float64)
		geoms := cols[7].Chunk(c).(*array.Binary)

		for i := 0; i < class.Len(); i++ {
			r := Record{
				Class:     class.Value(i),
				FeatureID: ids.Value(i),
				Tile:      tiles.Value(i),
				Type:      types.Value(i),
				Attrs:     attrs.Value(i),
				Geom:      geoms.Value(i),
			}
			if !labels.IsNull(i) {
				r.Label = labels.Value(i)
			}
			if !elev.IsNull(i) {
				v := elev.Value(i)
				r.Elevation = &v
			}
			if err := fn(r); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}
