package lineprotocol

import "strings"

// Context selects which characters are special in a piece of line protocol.
type Context uint8

const (
	// ContextMeasurement escapes commas and spaces.
	ContextMeasurement Context = iota
	// ContextKey escapes commas, equals signs and spaces in tag and field keys.
	ContextKey
	// ContextTagValue escapes commas, equals signs and spaces in tag values.
	ContextTagValue
	// ContextQuotedString escapes double quotes inside a quoted string field.
	ContextQuotedString
)

// The backslash is special everywhere, otherwise Unescape could not tell a
// literal backslash from an escape.
var specialChars = [...][256]bool{
	ContextMeasurement:  {',': true, ' ': true, '\\': true},
	ContextKey:          {',': true, '=': true, ' ': true, '\\': true},
	ContextTagValue:     {',': true, '=': true, ' ': true, '\\': true},
	ContextQuotedString: {'"': true, '\\': true},
}

func (c Context) String() string {
	switch c {
	case ContextMeasurement:
		return "measurement"
	case ContextKey:
		return "key"
	case ContextTagValue:
		return "tag value"
	case ContextQuotedString:
		return "quoted string"
	default:
		return "unknown"
	}
}

func (c Context) isSpecial(b byte) bool {
	if int(c) >= len(specialChars) {
		return false
	}
	return specialChars[c][b]
}

// Escape inserts a backslash before every character of s that is special in c.
// All special characters are ASCII, so multi-byte UTF-8 sequences pass through
// untouched.
func Escape(s string, c Context) string {
	// Fast path: nothing to escape
	n := 0
	for i := 0; i < len(s); i++ {
		if c.isSpecial(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + n)
	for i := 0; i < len(s); i++ {
		if c.isSpecial(s[i]) {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Unescape reverses Escape. The character following each backslash is taken
// verbatim, whether or not it is special in c, so text from lenient producers
// still decodes. A backslash at the very end of s yields ErrTrailingBackslash.
func Unescape(s string, c Context) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			if i+1 >= len(s) {
				return "", parseErr(ErrTrailingBackslash, "in %s %q", c, s)
			}
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String(), nil
}
