package lineprotocol

import (
	"errors"
	"fmt"
)

// Validation errors, returned by Builder.Build wrapped in a *ValidationError.
var (
	// ErrEmptyMeasurement indicates the measurement is empty or only whitespace.
	ErrEmptyMeasurement = errors.New("measurement name cannot be empty")

	// ErrNoFields indicates a data point without any field. Returned by both
	// the builder and the parser.
	ErrNoFields = errors.New("at least one field is required")

	// ErrEmptyTagKey indicates a tag with an empty key.
	ErrEmptyTagKey = errors.New("tag key cannot be empty")

	// ErrEmptyTagValue indicates a tag with an empty value.
	ErrEmptyTagValue = errors.New("tag value cannot be empty")

	// ErrEmptyFieldKey indicates a field with an empty key.
	ErrEmptyFieldKey = errors.New("field key cannot be empty")

	// ErrUnsupportedFieldType indicates a Go value that has no field value kind.
	ErrUnsupportedFieldType = errors.New("unsupported field value type")
)

// Parse errors, returned by the parser wrapped in a *ParseError.
var (
	ErrMalformedLine          = errors.New("malformed line")
	ErrUnterminatedQuote      = errors.New("unterminated quoted string")
	ErrTrailingBackslash      = errors.New("trailing backslash")
	ErrInvalidIntegerLiteral  = errors.New("invalid integer literal")
	ErrInvalidUnsignedLiteral = errors.New("invalid unsigned integer literal")
	ErrInvalidFloatLiteral    = errors.New("invalid float literal")
	ErrInvalidTimestamp       = errors.New("invalid timestamp")
	ErrEmptyTagComponent      = errors.New("tag key and value cannot be empty")
	ErrCommentLine            = errors.New("line is a comment")
)

// ValidationError is returned when a Builder fails to produce a valid Line.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "invalid line protocol: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ParseError is returned when text cannot be parsed into a Line.
// Line is the 1-based line number within a multi-line input, or 0 when the
// error came from ParseLine on a single line.
type ParseError struct {
	Line   int
	Err    error
	Detail string
}

func (e *ParseError) Error() string {
	msg := e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseErr(kind error, format string, args ...any) *ParseError {
	return &ParseError{Err: kind, Detail: fmt.Sprintf(format, args...)}
}

// asParseError lifts errors from the escaping and value layers into the parse
// error family, attaching context about where they occurred.
func asParseError(err error, where string) *ParseError {
	var pe *ParseError
	if errors.As(err, &pe) {
		if pe.Detail == "" {
			pe.Detail = where
		} else {
			pe.Detail = where + ": " + pe.Detail
		}
		return pe
	}
	return &ParseError{Err: err, Detail: where}
}
