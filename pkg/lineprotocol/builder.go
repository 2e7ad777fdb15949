package lineprotocol

import (
	"maps"
	"strings"
)

// Builder accumulates a data point. Every setter mutates the builder and
// returns it for chaining; none of them fail. Problems are reported by Build.
//
// A Builder must not be used from several goroutines at once.
type Builder struct {
	measurement  string
	tags         map[string]string
	fields       map[string]Value
	timestamp    int64
	hasTimestamp bool

	// first value AddField could not convert
	fieldErr error
}

// New starts a data point with the given (unescaped) measurement name.
func New(measurement string) *Builder {
	return &Builder{
		measurement: measurement,
		fields:      make(map[string]Value),
	}
}

// Measurement replaces the measurement name.
func (b *Builder) Measurement(name string) *Builder {
	b.measurement = name
	return b
}

// AddTag adds a tag, overwriting any tag with the same key.
func (b *Builder) AddTag(key, value string) *Builder {
	if b.tags == nil {
		b.tags = make(map[string]string)
	}
	b.tags[key] = value
	return b
}

// DeleteTag removes a tag. Removing the last tag leaves the line without a
// tag set.
func (b *Builder) DeleteTag(key string) *Builder {
	delete(b.tags, key)
	if len(b.tags) == 0 {
		b.tags = nil
	}
	return b
}

// AddField adds a field, overwriting any field with the same key. value may
// be a Value or any Go scalar accepted by ValueOf. An unsupported type is
// remembered and makes Build fail with ErrUnsupportedFieldType.
func (b *Builder) AddField(key string, value any) *Builder {
	v, err := ValueOf(value)
	if err != nil {
		if b.fieldErr == nil {
			b.fieldErr = err
		}
		return b
	}
	return b.setField(key, v)
}

func (b *Builder) AddFloat(key string, f float64) *Builder { return b.setField(key, FloatValue(f)) }
func (b *Builder) AddInt(key string, i int64) *Builder { return b.setField(key, IntValue(i)) }
func (b *Builder) AddUint(key string, u uint64) *Builder { return b.setField(key, UintValue(u)) }
func (b *Builder) AddBool(key string, v bool) *Builder { return b.setField(key, BoolValue(v)) }
func (b *Builder) AddString(key string, s string) *Builder { return b.setField(key, StringValue(s)) }

func (b *Builder) setField(key string, v Value) *Builder {
	if b.fields == nil {
		b.fields = make(map[string]Value)
	}
	b.fields[key] = v
	return b
}

// DeleteField removes a field.
func (b *Builder) DeleteField(key string) *Builder {
	delete(b.fields, key)
	return b
}

// WithTimestamp sets the timestamp. The unit is up to the caller
// (nanoseconds by InfluxDB convention).
func (b *Builder) WithTimestamp(ts int64) *Builder {
	b.timestamp = ts
	b.hasTimestamp = true
	return b
}

// DeleteTimestamp clears the timestamp.
func (b *Builder) DeleteTimestamp() *Builder {
	b.timestamp = 0
	b.hasTimestamp = false
	return b
}

// Build validates the accumulated point and returns it as a Line. The
// returned Line does not share state with the builder.
//
// Checks run in a fixed order and the first failure wins: empty
// measurement, no fields, empty tag key, empty tag value, empty field key,
// unsupported field value type.
func (b *Builder) Build() (*Line, error) {
	if strings.TrimSpace(b.measurement) == "" {
		return nil, &ValidationError{Err: ErrEmptyMeasurement}
	}
	if len(b.fields) == 0 {
		return nil, &ValidationError{Err: ErrNoFields}
	}
	for _, key := range sortedKeys(b.tags) {
		if key == "" {
			return nil, &ValidationError{Err: ErrEmptyTagKey}
		}
		if b.tags[key] == "" {
			return nil, &ValidationError{Err: ErrEmptyTagValue}
		}
	}
	if _, ok := b.fields[""]; ok {
		return nil, &ValidationError{Err: ErrEmptyFieldKey}
	}
	if b.fieldErr != nil {
		return nil, &ValidationError{Err: b.fieldErr}
	}

	line := &Line{
		measurement:  b.measurement,
		fields:       maps.Clone(b.fields),
		timestamp:    b.timestamp,
		hasTimestamp: b.hasTimestamp,
	}
	if len(b.tags) > 0 {
		line.tags = maps.Clone(b.tags)
	}
	return line, nil
}

// String builds the point and serializes it. An invalid point renders as the
// empty string; use Build to see why.
func (b *Builder) String() string {
	line, err := b.Build()
	if err != nil {
		return ""
	}
	return line.String()
}
