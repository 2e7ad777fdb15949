package ingest

import "unicode/utf8"

// SanitizeUTF8 replaces every invalid byte of s with U+FFFD and reports
// whether anything was replaced. Valid input is returned as is, without
// allocating.
//
// Line protocol strings are arbitrary bytes, while JSON, MessagePack str and
// Parquet UTF8 columns are not.
func SanitizeUTF8(s string) (string, bool) {
	if utf8.ValidString(s) {
		return s, false
	}

	out := make([]byte, 0, len(s)+len(s)/8)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			out = utf8.AppendRune(out, utf8.RuneError)
			i++
			continue
		}
		out = append(out, s[i:i+size]...)
		i += size
	}
	return string(out), true
}
