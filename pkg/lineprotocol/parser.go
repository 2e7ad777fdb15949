package lineprotocol

import (
	"strconv"
	"strings"
)

// ParseLine parses a single line of line protocol.
//
// Surrounding spaces are ignored. A line whose first character is '#' is a
// comment and yields ErrCommentLine. Every error is a *ParseError.
func ParseLine(text string) (*Line, error) {
	line, err := parseLine(text)
	if err != nil {
		return nil, err
	}
	return line, nil
}

// Result is the outcome of parsing one line of a multi-line input.
type Result struct {
	LineNumber int // 1-based, counting every line of the input
	Line       *Line
	Err        error
}

// ParseLines parses newline-delimited line protocol. Blank lines and
// comments are skipped; every other line yields exactly one Result, in
// input order. A bad line never stops the lines after it from parsing.
func ParseLines(text string) []Result {
	inputs := splitInput(text)
	results := make([]Result, len(inputs))
	for i, in := range inputs {
		results[i] = parseNumbered(in)
	}
	return results
}

type numberedLine struct {
	number int
	text   string
}

// splitInput returns the lines worth parsing, with their 1-based numbers.
func splitInput(text string) []numberedLine {
	var out []numberedLine
	number := 0
	for raw := range strings.SplitSeq(text, "\n") {
		number++
		if strings.TrimSpace(raw) == "" || isComment(raw) {
			continue
		}
		out = append(out, numberedLine{number: number, text: raw})
	}
	return out
}

func parseNumbered(in numberedLine) Result {
	line, err := parseLine(in.text)
	if err != nil {
		err.Line = in.number
		return Result{LineNumber: in.number, Err: err}
	}
	return Result{LineNumber: in.number, Line: line}
}

func isComment(text string) bool {
	return strings.HasPrefix(strings.TrimLeft(text, " "), "#")
}

func parseLine(text string) (*Line, *ParseError) {
	text = strings.Trim(text, " ")
	if text == "" {
		return nil, parseErr(ErrMalformedLine, "empty line")
	}
	if isComment(text) {
		return nil, &ParseError{Err: ErrCommentLine}
	}

	segments := splitSegments(text)
	if len(segments) < 2 || len(segments) > 3 {
		return nil, parseErr(ErrMalformedLine, "expected 2 or 3 space separated sections, got %d", len(segments))
	}

	line := &Line{}
	if err := parseIdentity(segments[0], line); err != nil {
		return nil, err
	}
	if err := parseFieldSet(segments[1], line); err != nil {
		return nil, err
	}

	if len(segments) == 3 {
		ts := segments[2]
		if !isIntegerNumeral(ts, true) {
			return nil, parseErr(ErrInvalidTimestamp, "%q", ts)
		}
		n, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return nil, parseErr(ErrInvalidTimestamp, "%q out of range", ts)
		}
		line.timestamp = n
		line.hasTimestamp = true
	}

	return line, nil
}

// parseIdentity parses measurement[,tag_key=tag_value...]
func parseIdentity(segment string, line *Line) *ParseError {
	components := splitIdentity(segment)

	measurement, err := Unescape(components[0], ContextMeasurement)
	if err != nil {
		return asParseError(err, "measurement")
	}
	if strings.TrimSpace(measurement) == "" {
		return parseErr(ErrMalformedLine, "missing measurement")
	}
	line.measurement = measurement

	for _, component := range components[1:] {
		idx := indexUnescaped(component, '=')
		if idx <= 0 || idx == len(component)-1 {
			return parseErr(ErrEmptyTagComponent, "%q", component)
		}
		key, err := Unescape(component[:idx], ContextKey)
		if err != nil {
			return asParseError(err, "tag key")
		}
		value, err := Unescape(component[idx+1:], ContextTagValue)
		if err != nil {
			return asParseError(err, "tag value")
		}
		if line.tags == nil {
			line.tags = make(map[string]string)
		}
		line.tags[key] = value
	}
	return nil
}

// parseFieldSet parses field_key=field_value[,field_key=field_value...]
func parseFieldSet(segment string, line *Line) *ParseError {
	line.fields = make(map[string]Value)

	for _, component := range splitValueAware(segment, ',', true) {
		if component == "" {
			return parseErr(ErrMalformedLine, "empty field in %q", segment)
		}
		idx := indexUnescaped(component, '=')
		if idx < 0 {
			return parseErr(ErrMalformedLine, "field %q has no '='", component)
		}
		if idx == 0 {
			return parseErr(ErrEmptyFieldKey, "%q", component)
		}
		key, err := Unescape(component[:idx], ContextKey)
		if err != nil {
			return asParseError(err, "field key")
		}
		value, err := ParseValue(component[idx+1:])
		if err != nil {
			return asParseError(err, "field "+strconv.Quote(key))
		}
		line.fields[key] = value
	}

	if len(line.fields) == 0 {
		return &ParseError{Err: ErrNoFields}
	}
	return nil
}

// splitSegments splits a line into identity, field set and optional
// timestamp. The identity ends at the first unescaped space; quotes only
// matter after it, where a space inside a quoted field value is not a
// separator.
func splitSegments(text string) []string {
	idx := indexUnescaped(text, ' ')
	if idx < 0 {
		return []string{text}
	}
	rest := strings.TrimLeft(text[idx+1:], " ")
	return append([]string{text[:idx]}, splitValueAware(rest, ' ', false)...)
}

// splitIdentity splits measurement[,tag...] on unescaped commas, keeping
// empty parts so that stray commas are reported.
func splitIdentity(segment string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(segment); i++ {
		switch segment[i] {
		case '\\':
			i++
		case ',':
			parts = append(parts, segment[start:i])
			start = i + 1
		}
	}
	return append(parts, segment[start:])
}

// splitValueAware splits data on every delim that is neither escaped nor
// inside a quoted field value. A quoted value opens with a '"' directly after
// an unescaped '=' and closes at the next unescaped '"'. Escape sequences are
// kept intact so the parts can be unescaped later. Empty parts are dropped
// unless keepEmpty is set.
func splitValueAware(data string, delim byte, keepEmpty bool) []string {
	var parts []string
	inQuotes := false
	afterEquals := false
	start := 0

	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case c == '\\':
			// Escaped character - skip it along with the backslash
			i++
		case inQuotes:
			if c == '"' {
				inQuotes = false
			}
		case c == '"' && afterEquals:
			inQuotes = true
		case c == delim:
			if keepEmpty || i > start {
				parts = append(parts, data[start:i])
			}
			start = i + 1
		}
		afterEquals = c == '=' && !inQuotes
	}

	if keepEmpty || start < len(data) {
		parts = append(parts, data[start:])
	}
	return parts
}

// indexUnescaped returns the index of the first c in s not preceded by an
// escaping backslash, or -1.
func indexUnescaped(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case c:
			return i
		}
	}
	return -1
}
