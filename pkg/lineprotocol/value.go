package lineprotocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindFloat Kind = iota
	KindInteger
	KindUnsigned
	KindBoolean
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInteger:
		return "integer"
	case KindUnsigned:
		return "unsigned"
	case KindBoolean:
		return "boolean"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Value is a field value: exactly one of float, integer, unsigned integer,
// boolean or string. Numeric and boolean payloads share bits; floats are
// stored by their IEEE-754 bit pattern, so two Values compare equal with ==
// only when kind and bits match.
type Value struct {
	kind Kind
	bits uint64
	str  string
}

func FloatValue(f float64) Value { return Value{kind: KindFloat, bits: math.Float64bits(f)} }
func IntValue(i int64) Value { return Value{kind: KindInteger, bits: uint64(i)} }
func UintValue(u uint64) Value { return Value{kind: KindUnsigned, bits: u} }
func StringValue(s string) Value { return Value{kind: KindString, str: s} }
func BoolValue(b bool) Value {
	v := Value{kind: KindBoolean}
	if b {
		v.bits = 1
	}
	return v
}

// ValueOf converts a Go scalar to a Value. It accepts a Value, any integer or
// float width, bool, string and []byte (stored as a string).
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		return x, nil
	case float64:
		return FloatValue(x), nil
	case float32:
		return FloatValue(float64(x)), nil
	case int:
		return IntValue(int64(x)), nil
	case int8:
		return IntValue(int64(x)), nil
	case int16:
		return IntValue(int64(x)), nil
	case int32:
		return IntValue(int64(x)), nil
	case int64:
		return IntValue(x), nil
	case uint:
		return UintValue(uint64(x)), nil
	case uint8:
		return UintValue(uint64(x)), nil
	case uint16:
		return UintValue(uint64(x)), nil
	case uint32:
		return UintValue(uint64(x)), nil
	case uint64:
		return UintValue(x), nil
	case bool:
		return BoolValue(x), nil
	case string:
		return StringValue(x), nil
	case []byte:
		return StringValue(string(x)), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedFieldType, v)
	}
}

func (v Value) Kind() Kind { return v.kind }

// Float returns the float payload. Only meaningful for KindFloat.
func (v Value) Float() float64 { return math.Float64frombits(v.bits) }

// Int returns the integer payload. Only meaningful for KindInteger.
func (v Value) Int() int64 { return int64(v.bits) }

// Uint returns the unsigned payload. Only meaningful for KindUnsigned.
func (v Value) Uint() uint64 { return v.bits }

// Bool returns the boolean payload. Only meaningful for KindBoolean.
func (v Value) Bool() bool { return v.bits != 0 }

// Str returns the string payload. Only meaningful for KindString.
func (v Value) Str() string { return v.str }

// Interface returns the payload as float64, int64, uint64, bool or string.
func (v Value) Interface() any {
	switch v.kind {
	case KindFloat:
		return v.Float()
	case KindInteger:
		return v.Int()
	case KindUnsigned:
		return v.Uint()
	case KindBoolean:
		return v.Bool()
	case KindString:
		return v.str
	default:
		return nil
	}
}

// Format returns the canonical line protocol literal for v.
func (v Value) Format() string {
	return string(v.appendLiteral(nil))
}

func (v Value) String() string { return v.Format() }

func (v Value) appendLiteral(b []byte) []byte {
	switch v.kind {
	case KindFloat:
		return strconv.AppendFloat(b, v.Float(), 'g', -1, 64)
	case KindInteger:
		b = strconv.AppendInt(b, v.Int(), 10)
		return append(b, 'i')
	case KindUnsigned:
		b = strconv.AppendUint(b, v.bits, 10)
		return append(b, 'u')
	case KindBoolean:
		if v.Bool() {
			return append(b, "true"...)
		}
		return append(b, "false"...)
	case KindString:
		b = append(b, '"')
		b = append(b, Escape(v.str, ContextQuotedString)...)
		return append(b, '"')
	default:
		return b
	}
}

// ParseValue infers the kind of a raw field value token and parses it.
//
// Classification order:
//   - leading '"': quoted string
//   - trailing 'i': signed integer
//   - trailing 'u': unsigned integer
//   - exact boolean literal: t, T, true, True, TRUE, f, F, false, False, FALSE
//   - anything else: float
func ParseValue(token string) (Value, error) {
	if strings.HasPrefix(token, `"`) {
		return parseQuoted(token)
	}

	if strings.HasSuffix(token, "i") {
		num := token[:len(token)-1]
		if !isIntegerNumeral(num, true) {
			return Value{}, parseErr(ErrInvalidIntegerLiteral, "%q", token)
		}
		i, err := strconv.ParseInt(num, 10, 64)
		if err != nil {
			return Value{}, parseErr(ErrInvalidIntegerLiteral, "%q out of range", token)
		}
		return IntValue(i), nil
	}

	if strings.HasSuffix(token, "u") {
		num := token[:len(token)-1]
		if !isIntegerNumeral(num, false) {
			return Value{}, parseErr(ErrInvalidUnsignedLiteral, "%q", token)
		}
		u, err := strconv.ParseUint(num, 10, 64)
		if err != nil {
			return Value{}, parseErr(ErrInvalidUnsignedLiteral, "%q out of range", token)
		}
		return UintValue(u), nil
	}

	switch token {
	case "t", "T", "true", "True", "TRUE":
		return BoolValue(true), nil
	case "f", "F", "false", "False", "FALSE":
		return BoolValue(false), nil
	}

	if !isFloatNumeral(token) {
		return Value{}, parseErr(ErrInvalidFloatLiteral, "%q", token)
	}
	f, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return Value{}, parseErr(ErrInvalidFloatLiteral, "%q", token)
	}
	return FloatValue(f), nil
}

// parseQuoted scans to the first unescaped closing quote. Nothing may follow it.
func parseQuoted(token string) (Value, error) {
	end := -1
	for i := 1; i < len(token); i++ {
		if token[i] == '\\' {
			i++
			continue
		}
		if token[i] == '"' {
			end = i
			break
		}
	}
	if end < 0 {
		return Value{}, parseErr(ErrUnterminatedQuote, "%q", token)
	}
	if end != len(token)-1 {
		return Value{}, parseErr(ErrMalformedLine, "unexpected characters after quoted string %q", token)
	}

	s, err := Unescape(token[1:end], ContextQuotedString)
	if err != nil {
		return Value{}, err
	}
	return StringValue(s), nil
}

// isIntegerNumeral reports whether s is digit+ (optionally led by '-' when
// signed is set). strconv accepts a leading '+' and we don't.
func isIntegerNumeral(s string, signed bool) bool {
	if signed && strings.HasPrefix(s, "-") {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// isFloatNumeral reports whether s is a decimal numeral with an optional
// sign, fraction and exponent, or a non-finite literal in any case: nan,
// or inf and infinity with an optional sign. Hex floats and digit separators
// are rejected even though strconv accepts them.
func isFloatNumeral(s string) bool {
	if strings.EqualFold(s, "nan") {
		return true
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	switch strings.ToLower(s) {
	case "inf", "infinity":
		return true
	}

	digits := 0
	i := 0
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		digits++
	}
	if i < len(s) && s[i] == '.' {
		for i++; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '-' || s[i] == '+') {
			i++
		}
		exp := i
		for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		}
		if i == exp {
			return false
		}
	}
	return i == len(s)
}
