package lineprotocol

import "strconv"

// Serialize renders l as a single line of line protocol, without a trailing
// newline.
//
// Tags and fields are written in ascending order of their unescaped keys, so
// equal lines always serialize to identical text whether they were built or
// parsed.
func Serialize(l *Line) string {
	return string(l.AppendTo(nil))
}

// String returns the serialized line.
func (l *Line) String() string {
	return Serialize(l)
}

// AppendTo appends the serialized line to b and returns the extended buffer.
func (l *Line) AppendTo(b []byte) []byte {
	measurement := Escape(l.measurement, ContextMeasurement)
	// A leading '#' would turn the line into a comment
	if len(measurement) > 0 && measurement[0] == '#' {
		b = append(b, '\\')
	}
	b = append(b, measurement...)

	for _, key := range sortedKeys(l.tags) {
		b = append(b, ',')
		b = append(b, Escape(key, ContextKey)...)
		b = append(b, '=')
		b = append(b, Escape(l.tags[key], ContextTagValue)...)
	}

	b = append(b, ' ')
	for i, key := range sortedKeys(l.fields) {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, Escape(key, ContextKey)...)
		b = append(b, '=')
		b = l.fields[key].appendLiteral(b)
	}

	if l.hasTimestamp {
		b = append(b, ' ')
		b = strconv.AppendInt(b, l.timestamp, 10)
	}
	return b
}
