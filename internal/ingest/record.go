// Package ingest converts parsed line protocol into the shapes used by the
// output formats: plain records (JSON), MessagePack documents and Parquet
// files, and reads raw (optionally gzipped) input.
package ingest

import (
	"fmt"
	"sort"

	"github.com/basekick-labs/lineproto/pkg/lineprotocol"
	"github.com/basekick-labs/lineproto/pkg/models"
)

// TimeColumn is the column holding the line timestamp in flat and columnar
// output.
const TimeColumn = "time"

// Suffixes for names that collide: a field named like a tag (or like the
// time column) and a tag named like the time column.
const (
	conflictSuffix    = "_value"
	tagConflictSuffix = "_tag"
)

// ToRecord converts a line into a Record. String fields are sanitized to
// valid UTF-8.
func ToRecord(line *lineprotocol.Line) *models.Record {
	record, _ := toRecord(line)
	return record
}

// toRecord is ToRecord that also reports how many strings were sanitized.
func toRecord(line *lineprotocol.Line) (*models.Record, int) {
	sanitized := 0
	values := line.Fields()
	fields := make(map[string]interface{}, len(values))
	for key, value := range values {
		v := value.Interface()
		if s, ok := v.(string); ok {
			if clean, modified := SanitizeUTF8(s); modified {
				v = clean
				sanitized++
			}
		}
		fields[key] = v
	}

	record := &models.Record{
		Measurement: line.Measurement(),
		Tags:        line.Tags(),
		Fields:      fields,
	}
	if ts, ok := line.Timestamp(); ok {
		record.Timestamp = &ts
	}
	return record, sanitized
}

// ToRecords converts lines into records, preserving order.
func ToRecords(lines []*lineprotocol.Line) []*models.Record {
	records := make([]*models.Record, len(lines))
	for i, line := range lines {
		records[i] = ToRecord(line)
	}
	return records
}

// FromRecord builds a line from a record. Field values may be of any type
// accepted by lineprotocol.ValueOf; the usual validation applies.
func FromRecord(record *models.Record) (*lineprotocol.Line, error) {
	if record == nil {
		return nil, fmt.Errorf("nil record")
	}

	b := lineprotocol.New(record.Measurement)
	for key, value := range record.Tags {
		b.AddTag(key, value)
	}
	for key, value := range record.Fields {
		b.AddField(key, value)
	}
	if record.Timestamp != nil {
		b.WithTimestamp(*record.Timestamp)
	}
	return b.Build()
}

// BatchToColumnar groups records by measurement and converts each group to
// columnar form. Every column of a group has one entry per record; records
// lacking a tag or field leave nil in that column.
func BatchToColumnar(records []*models.Record) map[string]*models.ColumnarRecord {
	byMeasurement := make(map[string][]*models.Record)
	for _, record := range records {
		byMeasurement[record.Measurement] = append(byMeasurement[record.Measurement], record)
	}

	result := make(map[string]*models.ColumnarRecord, len(byMeasurement))
	for measurement, group := range byMeasurement {
		columns := map[string][]interface{}{
			TimeColumn: make([]interface{}, len(group)),
		}
		column := func(name string) []interface{} {
			col, ok := columns[name]
			if !ok {
				col = make([]interface{}, len(group))
				columns[name] = col
			}
			return col
		}

		for i, record := range group {
			columns[TimeColumn][i] = timeValue(record)
			for key, value := range record.Tags {
				column(tagColumn(key))[i] = value
			}
			for key, value := range record.Fields {
				column(fieldColumn(record, key))[i] = value
			}
		}

		result[measurement] = &models.ColumnarRecord{
			Measurement: measurement,
			Columns:     columns,
			RowCount:    len(group),
		}
	}
	return result
}

// SortedMeasurements returns the keys of a BatchToColumnar result in
// ascending order.
func SortedMeasurements(batches map[string]*models.ColumnarRecord) []string {
	names := make([]string, 0, len(batches))
	for name := range batches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func timeValue(record *models.Record) interface{} {
	if record.Timestamp == nil {
		return nil
	}
	return *record.Timestamp
}

func tagColumn(key string) string {
	if key == TimeColumn {
		return key + tagConflictSuffix
	}
	return key
}

func fieldColumn(record *models.Record, key string) string {
	if _, hasTag := record.Tags[key]; hasTag || key == TimeColumn {
		return key + conflictSuffix
	}
	return key
}
