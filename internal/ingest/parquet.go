package ingest

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/basekick-labs/lineproto/internal/config"
	"github.com/basekick-labs/lineproto/pkg/models"
	"github.com/rs/zerolog"
)

// sharedArrowAllocator is safe for concurrent use.
var sharedArrowAllocator = memory.NewGoAllocator()

// ParquetWriter writes the lines of one measurement as a Parquet file.
//
// The schema has a nullable int64 "time" column first, then one column per
// tag (string) and per field (typed by the field's kind) in name order. A
// column whose values have different kinds across lines is an error. Rows
// are ordered by the configured sort keys, then by time.
type ParquetWriter struct {
	compression     compress.Compression
	useDictionary   bool
	writeStatistics bool
	dataPageVersion string

	sortKeys        map[string][]string
	defaultSortKeys []string

	logger zerolog.Logger
}

// NewParquetWriter creates a new Parquet writer
func NewParquetWriter(cfg *config.ParquetConfig, logger zerolog.Logger) (*ParquetWriter, error) {
	var comp compress.Compression
	switch cfg.Compression {
	case "gzip":
		comp = compress.Codecs.Gzip
	case "zstd":
		comp = compress.Codecs.Zstd
	case "none":
		comp = compress.Codecs.Uncompressed
	default:
		comp = compress.Codecs.Snappy
	}

	sortKeys, defaultSortKeys, err := config.ParseSortKeys(*cfg)
	if err != nil {
		return nil, err
	}

	return &ParquetWriter{
		compression:     comp,
		useDictionary:   cfg.UseDictionary,
		writeStatistics: cfg.WriteStatistics,
		dataPageVersion: cfg.DataPageVersion,
		sortKeys:        sortKeys,
		defaultSortKeys: defaultSortKeys,
		logger:          logger.With().Str("component", "parquet-writer").Logger(),
	}, nil
}

// WriteColumnar writes one columnar batch, as produced by BatchToColumnar,
// as a Parquet file. An empty batch is an error.
func (w *ParquetWriter) WriteColumnar(batch *models.ColumnarRecord) ([]byte, error) {
	if batch == nil || batch.RowCount == 0 {
		return nil, fmt.Errorf("no rows to write")
	}

	schema, err := inferSchema(batch)
	if err != nil {
		return nil, fmt.Errorf("measurement %q: %w", batch.Measurement, err)
	}

	order := w.rowOrder(batch)

	arrays := make([]arrow.Array, 0, len(schema.Fields()))
	defer func() {
		for _, arr := range arrays {
			arr.Release()
		}
	}()

	for _, field := range schema.Fields() {
		arr, err := buildColumn(field, batch.Columns[field.Name], order)
		if err != nil {
			return nil, fmt.Errorf("measurement %q: %w", batch.Measurement, err)
		}
		arrays = append(arrays, arr)
	}

	return w.writeRecordToParquet(schema, arrays, int64(batch.RowCount))
}

// writeRecordToParquet writes Arrow arrays to Parquet bytes
func (w *ParquetWriter) writeRecordToParquet(schema *arrow.Schema, arrays []arrow.Array, rows int64) ([]byte, error) {
	record := array.NewRecord(schema, arrays, rows)
	defer record.Release()

	var buf bytes.Buffer

	writerOpts := []parquet.WriterProperty{
		parquet.WithCompression(w.compression),
		parquet.WithDictionaryDefault(w.useDictionary),
		parquet.WithStats(w.writeStatistics),
	}
	if w.dataPageVersion == "2.0" {
		writerOpts = append(writerOpts, parquet.WithDataPageVersion(parquet.DataPageV2))
	}
	writerProps := parquet.NewWriterProperties(writerOpts...)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(schema, &buf, writerProps, arrowProps)
	if err != nil {
		return nil, fmt.Errorf("failed to create Parquet writer: %w", err)
	}

	if err := writer.Write(record); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write record batch: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close Parquet writer: %w", err)
	}

	w.logger.Debug().
		Int("columns", len(schema.Fields())).
		Int64("rows", rows).
		Int("size", buf.Len()).
		Msg("Wrote Parquet file")

	return buf.Bytes(), nil
}

// inferSchema derives the Arrow schema from the Go types held by each
// column. A column that only holds nils becomes a string column.
func inferSchema(batch *models.ColumnarRecord) (*arrow.Schema, error) {
	names := make([]string, 0, len(batch.Columns))
	for name := range batch.Columns {
		if name != TimeColumn {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	fields := []arrow.Field{{Name: TimeColumn, Type: arrow.PrimitiveTypes.Int64, Nullable: true}}
	for _, name := range names {
		dt, err := columnType(name, batch.Columns[name])
		if err != nil {
			return nil, err
		}
		fields = append(fields, arrow.Field{Name: name, Type: dt, Nullable: true})
	}
	return arrow.NewSchema(fields, nil), nil
}

func columnType(name string, values []interface{}) (arrow.DataType, error) {
	var dt arrow.DataType
	var first interface{}
	for _, v := range values {
		if v == nil {
			continue
		}
		vt, err := arrowType(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		if dt == nil {
			dt, first = vt, v
			continue
		}
		if !arrow.TypeEqual(dt, vt) {
			return nil, fmt.Errorf("column %s mixes %T and %T values", name, first, v)
		}
	}
	if dt == nil {
		return arrow.BinaryTypes.String, nil
	}
	return dt, nil
}

func arrowType(v interface{}) (arrow.DataType, error) {
	switch v.(type) {
	case float64:
		return arrow.PrimitiveTypes.Float64, nil
	case int64:
		return arrow.PrimitiveTypes.Int64, nil
	case uint64:
		return arrow.PrimitiveTypes.Uint64, nil
	case bool:
		return arrow.FixedWidthTypes.Boolean, nil
	case string:
		return arrow.BinaryTypes.String, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// buildColumn appends values in the given row order; nil becomes null.
func buildColumn(field arrow.Field, values []interface{}, order []int) (arrow.Array, error) {
	switch field.Type.ID() {
	case arrow.INT64:
		builder := array.NewInt64Builder(sharedArrowAllocator)
		defer builder.Release()
		for _, i := range order {
			if values[i] == nil {
				builder.AppendNull()
				continue
			}
			builder.Append(values[i].(int64))
		}
		return builder.NewArray(), nil

	case arrow.UINT64:
		builder := array.NewUint64Builder(sharedArrowAllocator)
		defer builder.Release()
		for _, i := range order {
			if values[i] == nil {
				builder.AppendNull()
				continue
			}
			builder.Append(values[i].(uint64))
		}
		return builder.NewArray(), nil

	case arrow.FLOAT64:
		builder := array.NewFloat64Builder(sharedArrowAllocator)
		defer builder.Release()
		for _, i := range order {
			if values[i] == nil {
				builder.AppendNull()
				continue
			}
			builder.Append(values[i].(float64))
		}
		return builder.NewArray(), nil

	case arrow.BOOL:
		builder := array.NewBooleanBuilder(sharedArrowAllocator)
		defer builder.Release()
		for _, i := range order {
			if values[i] == nil {
				builder.AppendNull()
				continue
			}
			builder.Append(values[i].(bool))
		}
		return builder.NewArray(), nil

	case arrow.STRING:
		builder := array.NewStringBuilder(sharedArrowAllocator)
		defer builder.Release()
		for _, i := range order {
			if values[i] == nil {
				builder.AppendNull()
				continue
			}
			builder.Append(values[i].(string))
		}
		return builder.NewArray(), nil

	default:
		return nil, fmt.Errorf("unsupported Arrow type for column %s: %s", field.Name, field.Type.Name())
	}
}

// rowOrder returns row indexes sorted by the measurement's sort keys and
// then time. Nulls sort first; the sort is stable so ties keep input order.
func (w *ParquetWriter) rowOrder(batch *models.ColumnarRecord) []int {
	keys, ok := w.sortKeys[batch.Measurement]
	if !ok {
		keys = w.defaultSortKeys
	}
	keys = append(slices.Clone(keys), TimeColumn)

	var columns [][]interface{}
	for _, key := range keys {
		if col, ok := batch.Columns[key]; ok {
			columns = append(columns, col)
		}
	}

	order := make([]int, batch.RowCount)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		for _, col := range columns {
			if c := compareValues(col[a], col[b]); c != 0 {
				return c
			}
		}
		return 0
	})
	return order
}

// compareValues orders two values of one column. Columns are homogeneous
// once inferSchema has accepted them.
func compareValues(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch av := a.(type) {
	case int64:
		return cmp.Compare(av, b.(int64))
	case uint64:
		return cmp.Compare(av, b.(uint64))
	case float64:
		return cmp.Compare(av, b.(float64))
	case string:
		return cmp.Compare(av, b.(string))
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	}
	return 0
}
