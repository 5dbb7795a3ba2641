package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/nilmflow/nilmflow/pkg/electric"
	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
)

const (
	timestampColumn = "timestamp"
	supplyMetaKey   = "nilmflow.supply"
)

var timestampType = &arrow.TimestampType{Unit: arrow.Nanosecond, TimeZone: "UTC"}

// Codec encodes tables to Parquet and back using Apache Arrow.
type Codec struct {
	opts  Options
	alloc memory.Allocator
}

// NewCodec creates a table codec.
func NewCodec(opts Options) *Codec {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	return &Codec{
		opts:  opts,
		alloc: memory.NewGoAllocator(),
	}
}

// tableSchema returns the Arrow schema of t: a UTC nanosecond timestamp
// followed by one float64 column per reading column.
func tableSchema(t *electric.Table) *arrow.Schema {
	fields := make([]arrow.Field, 0, len(t.Columns)+1)
	fields = append(fields, arrow.Field{Name: timestampColumn, Type: timestampType, Nullable: false})
	for _, h := range t.Headers() {
		fields = append(fields, arrow.Field{Name: h, Type: arrow.PrimitiveTypes.Float64, Nullable: true})
	}
	md := arrow.NewMetadata([]string{supplyMetaKey}, []string{t.Supply.String()})
	return arrow.NewSchema(fields, &md)
}

func (c *Codec) writerProperties() *parquet.WriterProperties {
	props := []parquet.WriterProperty{
		parquet.WithCompression(c.opts.Compression.codec()),
		parquet.WithDictionaryDefault(false),
		parquet.WithVersion(parquet.V2_LATEST),
		parquet.WithDataPageSize(1024 * 1024), // 1MB
	}
	switch c.opts.Compression {
	case CompressionGzip, CompressionZstd:
		if c.opts.CompressionLevel > 0 {
			props = append(props, parquet.WithCompressionLevel(c.opts.CompressionLevel))
		}
	}
	return parquet.NewWriterProperties(props...)
}

// Encode writes t to w as a single Parquet file.
func (c *Codec) Encode(w io.Writer, t *electric.Table) error {
	if err := c.opts.Validate(); err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}

	schema := tableSchema(t)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	// Encode into memory so the parquet writer never closes w.
	var buf bytes.Buffer
	fw, err := pqarrow.NewFileWriter(schema, &buf, c.writerProperties(), arrowProps)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}

	for start := 0; start < t.Len(); start += c.opts.BatchSize {
		end := start + c.opts.BatchSize
		if end > t.Len() {
			end = t.Len()
		}
		if err := c.writeBatch(fw, schema, t, start, end); err != nil {
			fw.Close()
			return err
		}
	}

	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// writeBatch appends rows [start, end) of t as one record batch.
func (c *Codec) writeBatch(fw *pqarrow.FileWriter, schema *arrow.Schema, t *electric.Table, start, end int) error {
	tsBuilder := array.NewTimestampBuilder(c.alloc, timestampType)
	defer tsBuilder.Release()
	tsBuilder.Reserve(end - start)
	for _, ts := range t.Index[start:end] {
		tsBuilder.Append(arrow.Timestamp(ts.UnixNano()))
	}

	cols := make([]arrow.Array, 0, len(t.Columns)+1)
	defer func() {
		for _, col := range cols {
			col.Release()
		}
	}()
	cols = append(cols, tsBuilder.NewArray())

	for _, values := range t.Values {
		b := array.NewFloat64Builder(c.alloc)
		b.AppendValues(values[start:end], nil)
		cols = append(cols, b.NewArray())
		b.Release()
	}

	rec := array.NewRecord(schema, cols, int64(end-start))
	defer rec.Release()

	if err := fw.Write(rec); err != nil {
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	return nil
}

// Decode reads a Parquet file produced by Encode.
func (c *Codec) Decode(ctx context.Context, data []byte) (*electric.Table, error) {
	pqReader, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer pqReader.Close()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{
		BatchSize: int64(c.opts.BatchSize),
	}, c.alloc)
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow reader: %w", err)
	}

	tbl, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}
	defer tbl.Release()

	return tableFromArrow(tbl)
}

func tableFromArrow(tbl arrow.Table) (*electric.Table, error) {
	schema := tbl.Schema()
	rows := int(tbl.NumRows())

	tsIdx := -1
	var headers []string
	var valueIdx []int
	for i, f := range schema.Fields() {
		if f.Name == timestampColumn {
			tsIdx = i
			continue
		}
		headers = append(headers, f.Name)
		valueIdx = append(valueIdx, i)
	}
	if tsIdx < 0 {
		return nil, nferrors.New(nferrors.CodeMalformedTable, "stored table has no timestamp column")
	}

	kind := electric.InferSupplyKind(headers)
	md := schema.Metadata()
	if i := md.FindKey(supplyMetaKey); i >= 0 {
		k, err := electric.ParseSupplyKind(md.Values()[i])
		if err != nil {
			return nil, nferrors.Wrap(err, nferrors.CodeMalformedTable, "invalid supply declaration")
		}
		kind = k
	}

	index, err := readTimestamps(tbl.Column(tsIdx), rows)
	if err != nil {
		return nil, err
	}

	columns := make([]electric.Column, len(headers))
	values := make([][]float64, len(headers))
	for j, h := range headers {
		col, err := electric.ParseHeader(h, kind)
		if err != nil {
			return nil, nferrors.Wrap(err, nferrors.CodeMalformedTable, "invalid column name")
		}
		columns[j] = col
		if values[j], err = readFloats(tbl.Column(valueIdx[j]), rows); err != nil {
			return nil, err
		}
	}

	return electric.NewTable(kind, index, columns, values)
}

func unitNanos(u arrow.TimeUnit) int64 {
	switch u {
	case arrow.Second:
		return int64(time.Second)
	case arrow.Millisecond:
		return int64(time.Millisecond)
	case arrow.Microsecond:
		return int64(time.Microsecond)
	default:
		return 1
	}
}

func readTimestamps(col *arrow.Column, rows int) ([]time.Time, error) {
	out := make([]time.Time, 0, rows)
	mult := int64(1)
	if tt, ok := col.DataType().(*arrow.TimestampType); ok {
		mult = unitNanos(tt.Unit)
	}

	for _, chunk := range col.Data().Chunks() {
		switch arr := chunk.(type) {
		case *array.Timestamp:
			for i := 0; i < arr.Len(); i++ {
				out = append(out, time.Unix(0, int64(arr.Value(i))*mult).UTC())
			}
		case *array.Int64:
			for i := 0; i < arr.Len(); i++ {
				out = append(out, time.Unix(0, arr.Value(i)*mult).UTC())
			}
		default:
			return nil, nferrors.Newf(nferrors.CodeMalformedTable, "unsupported timestamp type %s", chunk.DataType())
		}
	}
	return out, nil
}

func readFloats(col *arrow.Column, rows int) ([]float64, error) {
	out := make([]float64, 0, rows)
	for _, chunk := range col.Data().Chunks() {
		arr, ok := chunk.(*array.Float64)
		if !ok {
			return nil, nferrors.Newf(nferrors.CodeMalformedTable, "unsupported value type %s", chunk.DataType()).
				WithContext("column", col.Name())
		}
		for i := 0; i < arr.Len(); i++ {
			if arr.IsNull(i) {
				out = append(out, math.NaN())
				continue
			}
			out = append(out, arr.Value(i))
		}
	}
	return out, nil
}
