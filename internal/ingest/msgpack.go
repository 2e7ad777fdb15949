package ingest

import (
	"fmt"

	"github.com/basekick-labs/lineproto/pkg/lineprotocol"
	"github.com/basekick-labs/lineproto/pkg/models"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// MessagePackEncoder writes lines as MessagePack documents.
//
// Row format:      {batch: [{m: "cpu", t: 1609459200000000000, tags: {...}, fields: {...}}, ...]}
// Columnar format: {batch: [{m: "cpu", columns: {time: [...], usage: [...], host: [...]}}, ...]}
//
// Integers are written with their full width so that int64 and uint64 fields
// keep their kind when decoded.
type MessagePackEncoder struct {
	logger zerolog.Logger
}

// NewMessagePackEncoder creates a new MessagePack encoder
func NewMessagePackEncoder(logger zerolog.Logger) *MessagePackEncoder {
	return &MessagePackEncoder{
		logger: logger.With().Str("component", "msgpack-encoder").Logger(),
	}
}

// EncodeRows encodes one row document per line, in input order.
func (e *MessagePackEncoder) EncodeRows(lines []*lineprotocol.Line) ([]byte, error) {
	batch := make([]interface{}, len(lines))
	sanitized := 0
	for i, line := range lines {
		record, n := toRecord(line)
		sanitized += n
		batch[i] = record
	}
	e.logSanitized(sanitized)

	data, err := msgpack.Marshal(&models.MsgPackPayload{Batch: batch})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal msgpack rows: %w", err)
	}

	e.logger.Debug().
		Int("rows", len(lines)).
		Int("size", len(data)).
		Msg("Encoded MessagePack rows")
	return data, nil
}

// EncodeColumnar encodes one columnar document per measurement, in
// ascending measurement order.
func (e *MessagePackEncoder) EncodeColumnar(lines []*lineprotocol.Line) ([]byte, error) {
	records := make([]*models.Record, len(lines))
	sanitized := 0
	for i, line := range lines {
		record, n := toRecord(line)
		sanitized += n
		records[i] = record
	}
	e.logSanitized(sanitized)

	columnar := BatchToColumnar(records)
	batch := make([]interface{}, 0, len(columnar))
	for _, measurement := range SortedMeasurements(columnar) {
		batch = append(batch, columnar[measurement])
	}

	data, err := msgpack.Marshal(&models.MsgPackPayload{Batch: batch})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal msgpack columns: %w", err)
	}

	e.logger.Debug().
		Int("rows", len(lines)).
		Int("measurements", len(batch)).
		Int("size", len(data)).
		Msg("Encoded MessagePack columns")
	return data, nil
}

func (e *MessagePackEncoder) logSanitized(count int) {
	if count > 0 {
		e.logger.Warn().
			Int("sanitized_fields", count).
			Msg("Sanitized non-UTF8 characters in string fields")
	}
}

// MessagePackDecoder reads MessagePack documents back into lines.
//
// Accepted shapes: a single document, an array of documents, or a map whose
// "batch" key holds documents. A row document is a map with "m", "fields"
// and optional "t" and "tags"; a columnar document carries "columns" instead
// of "fields".
type MessagePackDecoder struct {
	logger       zerolog.Logger
	totalDecoded uint64
	totalErrors  uint64
}

// NewMessagePackDecoder creates a new MessagePack decoder
func NewMessagePackDecoder(logger zerolog.Logger) *MessagePackDecoder {
	return &MessagePackDecoder{
		logger: logger.With().Str("component", "msgpack-decoder").Logger(),
	}
}

// DecodeRows decodes row documents into lines. Columnar documents are
// expanded row by row: the time column becomes the timestamp, string
// columns named in tagColumns become tags and every other non-nil value a
// field. Documents that fail to decode are logged and skipped; only a
// payload that is not MessagePack at all is an error.
func (d *MessagePackDecoder) DecodeRows(data []byte, tagColumns ...string) ([]*lineprotocol.Line, error) {
	docs, err := d.documents(data)
	if err != nil {
		d.totalErrors++
		return nil, err
	}

	isTag := make(map[string]bool, len(tagColumns))
	for _, name := range tagColumns {
		isTag[name] = true
	}

	var lines []*lineprotocol.Line
	for i, doc := range docs {
		var decoded []*lineprotocol.Line
		if _, columnar := doc["columns"]; columnar {
			decoded, err = d.decodeColumnar(doc, isTag)
		} else {
			var line *lineprotocol.Line
			line, err = d.decodeRow(doc)
			decoded = []*lineprotocol.Line{line}
		}
		if err != nil {
			d.totalErrors++
			d.logger.Error().Err(err).Int("document", i).Msg("Failed to decode document")
			continue
		}
		lines = append(lines, decoded...)
	}

	d.totalDecoded += uint64(len(lines))
	return lines, nil
}

// documents unmarshals data and flattens it into a list of documents.
func (d *MessagePackDecoder) documents(data []byte) ([]map[string]interface{}, error) {
	// Decode to interface{} first: clients may send a bare array of documents
	var raw interface{}
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal msgpack: %w", err)
	}

	var items []interface{}
	switch payload := raw.(type) {
	case map[string]interface{}:
		if batch, ok := payload["batch"]; ok {
			batchSlice, ok := batch.([]interface{})
			if !ok {
				return nil, fmt.Errorf("msgpack 'batch' must be an array, got %T", batch)
			}
			items = batchSlice
		} else {
			items = []interface{}{payload}
		}
	case []interface{}:
		items = payload
	default:
		return nil, fmt.Errorf("unsupported msgpack payload type: %T", raw)
	}

	docs := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		doc, ok := item.(map[string]interface{})
		if !ok {
			d.logger.Warn().Str("type", fmt.Sprintf("%T", item)).Msg("Skipping unknown array item type")
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// decodeRow handles row format
// Input: {m: "cpu", t: 1609459200000000000, tags: {...}, fields: {...}}
func (d *MessagePackDecoder) decodeRow(doc map[string]interface{}) (*lineprotocol.Line, error) {
	measurement, err := extractMeasurement(doc["m"])
	if err != nil {
		return nil, err
	}

	rawFields, ok := doc["fields"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing required field 'fields'")
	}

	record := &models.Record{
		Measurement: measurement,
		Fields:      make(map[string]interface{}, len(rawFields)),
	}
	if t, ok := doc["t"]; ok && t != nil {
		ts, err := extractTimestamp(t)
		if err != nil {
			return nil, err
		}
		record.Timestamp = &ts
	}

	if rawTags, ok := doc["tags"].(map[string]interface{}); ok {
		record.Tags = make(map[string]string, len(rawTags))
		for k, v := range rawTags {
			if s, ok := v.(string); ok {
				record.Tags[k] = s
			} else {
				record.Tags[k] = fmt.Sprintf("%v", v)
			}
		}
	}

	sanitized := 0
	for k, v := range rawFields {
		value, n, err := valueFromMsgpack(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		sanitized += n
		record.Fields[k] = value
	}
	if sanitized > 0 {
		d.logger.Warn().
			Str("measurement", measurement).
			Int("sanitized_fields", sanitized).
			Msg("Sanitized non-UTF8 characters in string fields")
	}

	return FromRecord(record)
}

// decodeColumnar handles columnar format
// Input: {m: "cpu", columns: {time: [...], usage: [...], host: [...]}}
func (d *MessagePackDecoder) decodeColumnar(doc map[string]interface{}, isTag map[string]bool) ([]*lineprotocol.Line, error) {
	measurement, err := extractMeasurement(doc["m"])
	if err != nil {
		return nil, err
	}

	rawColumns, ok := doc["columns"].(map[string]interface{})
	if !ok || len(rawColumns) == 0 {
		return nil, fmt.Errorf("columnar format requires non-empty 'columns' map")
	}

	// Validate all arrays have same length
	columns := make(map[string][]interface{}, len(rawColumns))
	numRows := -1
	for name, raw := range rawColumns {
		col, ok := raw.([]interface{})
		if !ok {
			return nil, fmt.Errorf("column '%s' is not an array", name)
		}
		if numRows >= 0 && len(col) != numRows {
			return nil, fmt.Errorf("columnar format: array length mismatch (expected %d, got %d for '%s')",
				numRows, len(col), name)
		}
		numRows = len(col)
		columns[name] = col
	}

	lines := make([]*lineprotocol.Line, 0, numRows)
	for row := 0; row < numRows; row++ {
		b := lineprotocol.New(measurement)
		for name, col := range columns {
			v := col[row]
			if v == nil {
				continue
			}
			switch {
			case name == TimeColumn:
				ts, err := extractTimestamp(v)
				if err != nil {
					return nil, fmt.Errorf("row %d: %w", row, err)
				}
				b.WithTimestamp(ts)
			case isTag[name]:
				s, ok := v.(string)
				if !ok {
					return nil, fmt.Errorf("row %d: tag column '%s' holds %T", row, name, v)
				}
				b.AddTag(name, s)
			default:
				value, _, err := valueFromMsgpack(v)
				if err != nil {
					return nil, fmt.Errorf("row %d: column '%s': %w", row, name, err)
				}
				b.AddField(name, value)
			}
		}

		line, err := b.Build()
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// GetStats returns decoder statistics
func (d *MessagePackDecoder) GetStats() map[string]interface{} {
	var errorRate float64
	if d.totalDecoded > 0 {
		errorRate = float64(d.totalErrors) / float64(d.totalDecoded)
	}

	return map[string]interface{}{
		"total_decoded": d.totalDecoded,
		"total_errors":  d.totalErrors,
		"error_rate":    errorRate,
	}
}

// extractMeasurement extracts measurement name from a document
func extractMeasurement(m interface{}) (string, error) {
	switch v := m.(type) {
	case nil:
		return "", fmt.Errorf("missing required field 'm' (measurement)")
	case string:
		return v, nil
	case int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("measurement_%v", v), nil
	default:
		return "", fmt.Errorf("invalid measurement type: %T", m)
	}
}

// extractTimestamp converts any MessagePack integer to an int64 timestamp.
// Timestamps are opaque in line protocol, so no unit is inferred.
func extractTimestamp(t interface{}) (int64, error) {
	switch v := t.(type) {
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > 1<<63-1 {
			return 0, fmt.Errorf("timestamp %d overflows int64", v)
		}
		return int64(v), nil
	default:
		return 0, fmt.Errorf("invalid timestamp type: %T", t)
	}
}

// valueFromMsgpack maps a decoded MessagePack scalar to a field value.
// Signed integer encodings become integers, unsigned encodings unsigned
// integers. The second result is 1 when a string had to be sanitized.
func valueFromMsgpack(v interface{}) (lineprotocol.Value, int, error) {
	switch val := v.(type) {
	case string:
		clean, modified := SanitizeUTF8(val)
		if modified {
			return lineprotocol.StringValue(clean), 1, nil
		}
		return lineprotocol.StringValue(val), 0, nil
	case []byte:
		return valueFromMsgpack(string(val))
	default:
		value, err := lineprotocol.ValueOf(v)
		return value, 0, err
	}
}
