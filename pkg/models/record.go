package models

import (
	"encoding/json"
	"maps"
	"math"
	"strconv"
)

// Record is a data point in plain Go form, used when lines leave the line
// protocol world (JSON output, MessagePack, Parquet).
//
// Field values are one of float64, int64, uint64, bool or string.
type Record struct {
	Measurement string                 `json:"measurement" msgpack:"m"`
	Tags        map[string]string      `json:"tags,omitempty" msgpack:"tags,omitempty"`
	Fields      map[string]interface{} `json:"fields" msgpack:"fields"`
	Timestamp   *int64                 `json:"timestamp,omitempty" msgpack:"t,omitempty"` // nil when the line had none
}

// MarshalJSON encodes the record with non-finite float fields written as the
// strings "NaN", "+Inf" and "-Inf", which JSON has no number for.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	out := plain(r)
	copied := false
	for key, value := range r.Fields {
		f, ok := value.(float64)
		if !ok || !(math.IsNaN(f) || math.IsInf(f, 0)) {
			continue
		}
		// Never modify the caller's map
		if !copied {
			out.Fields = maps.Clone(r.Fields)
			copied = true
		}
		out.Fields[key] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return json.Marshal(out)
}

// ColumnarRecord holds the points of one measurement column by column.
// Every column has RowCount entries; a nil entry means the point did not
// carry that tag or field.
type ColumnarRecord struct {
	Measurement string                   `json:"measurement" msgpack:"m"`
	Columns     map[string][]interface{} `json:"columns" msgpack:"columns"`
	RowCount    int                      `json:"row_count" msgpack:"-"`
}

// MsgPackPayload is the top-level MessagePack document.
type MsgPackPayload struct {
	// Row format, single point
	M      interface{}            `msgpack:"m,omitempty"`      // measurement
	T      interface{}            `msgpack:"t,omitempty"`      // timestamp
	Fields map[string]interface{} `msgpack:"fields,omitempty"` // fields
	Tags   map[string]string      `msgpack:"tags,omitempty"`   // tags

	// Columnar format
	Columns map[string][]interface{} `msgpack:"columns,omitempty"`

	// Batch format: a list of row or columnar documents
	Batch []interface{} `msgpack:"batch,omitempty"`
}
