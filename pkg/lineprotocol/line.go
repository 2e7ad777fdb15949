// Package lineprotocol builds, parses and serializes InfluxDB line protocol.
//
// Line Protocol Format:
//
//	measurement[,tag_key=tag_value...] field_key=field_value[,field_key=field_value...] [timestamp]
//
// Examples:
//
//	cpu,host=server01,region=us-west usage_idle=90.5,usage_system=2.1 1609459200000000000
//	temperature,sensor=bedroom temp=22.5
//	http_requests,method=GET,status=200 count=1i
//
// A Line is always valid: it can only be obtained from Builder.Build or the
// parser. To change a Line, call Edit, modify the returned Builder and build
// again.
package lineprotocol

import (
	"maps"
	"slices"
)

// Line is a single data point. It is immutable and safe to share between
// goroutines.
type Line struct {
	measurement  string
	tags         map[string]string // nil when the point has no tags
	fields       map[string]Value
	timestamp    int64
	hasTimestamp bool
}

// Measurement returns the unescaped measurement name.
func (l *Line) Measurement() string { return l.measurement }

// Tag returns the value of the tag with the given key.
func (l *Line) Tag(key string) (string, bool) {
	v, ok := l.tags[key]
	return v, ok
}

// Tags returns a copy of the tag set, or nil when the line has no tags.
func (l *Line) Tags() map[string]string {
	if len(l.tags) == 0 {
		return nil
	}
	return maps.Clone(l.tags)
}

// TagKeys returns the tag keys in serialization order.
func (l *Line) TagKeys() []string {
	return sortedKeys(l.tags)
}

// Field returns the value of the field with the given key.
func (l *Line) Field(key string) (Value, bool) {
	v, ok := l.fields[key]
	return v, ok
}

// Fields returns a copy of the field set.
func (l *Line) Fields() map[string]Value {
	return maps.Clone(l.fields)
}

// FieldKeys returns the field keys in serialization order.
func (l *Line) FieldKeys() []string {
	return sortedKeys(l.fields)
}

// Timestamp returns the timestamp and whether one is set. The unit is
// whatever the producer used; it is never converted.
func (l *Line) Timestamp() (int64, bool) {
	return l.timestamp, l.hasTimestamp
}

// Equal reports whether two lines have the same measurement, tags, fields
// and timestamp. A line without tags equals a line with an empty tag set.
func (l *Line) Equal(other *Line) bool {
	if l == nil || other == nil {
		return l == other
	}
	if l.measurement != other.measurement ||
		l.hasTimestamp != other.hasTimestamp ||
		l.timestamp != other.timestamp {
		return false
	}
	return maps.Equal(l.tags, other.tags) && maps.Equal(l.fields, other.fields)
}

// Edit returns a Builder seeded with a copy of the line. The line itself is
// left untouched.
func (l *Line) Edit() *Builder {
	b := &Builder{
		measurement:  l.measurement,
		fields:       maps.Clone(l.fields),
		timestamp:    l.timestamp,
		hasTimestamp: l.hasTimestamp,
	}
	if len(l.tags) > 0 {
		b.tags = maps.Clone(l.tags)
	}
	return b
}

func sortedKeys[V any](m map[string]V) []string {
	if len(m) == 0 {
		return nil
	}
	return slices.Sorted(maps.Keys(m))
}
