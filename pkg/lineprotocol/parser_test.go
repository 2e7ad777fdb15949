package lineprotocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine_Basic(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantMeasure string
		wantTags    map[string]string
		wantFields  map[string]Value
		wantTS      int64
		wantHasTS   bool
	}{
		{
			name:        "simple measurement with one field",
			input:       "cpu usage=90.5 1609459200000000000",
			wantMeasure: "cpu",
			wantFields:  map[string]Value{"usage": FloatValue(90.5)},
			wantTS:      1609459200000000000,
			wantHasTS:   true,
		},
		{
			name:        "measurement with tags and fields",
			input:       "cpu,host=server01,region=us-west usage_idle=90.5,usage_system=2.1 1609459200000000000",
			wantMeasure: "cpu",
			wantTags:    map[string]string{"host": "server01", "region": "us-west"},
			wantFields:  map[string]Value{"usage_idle": FloatValue(90.5), "usage_system": FloatValue(2.1)},
			wantTS:      1609459200000000000,
			wantHasTS:   true,
		},
		{
			name:        "measurement with integer field",
			input:       "http_requests,method=GET count=42i 1609459200000000000",
			wantMeasure: "http_requests",
			wantTags:    map[string]string{"method": "GET"},
			wantFields:  map[string]Value{"count": IntValue(42)},
			wantTS:      1609459200000000000,
			wantHasTS:   true,
		},
		{
			name:        "measurement with unsigned integer field",
			input:       "memory bytes=1024u 1609459200000000000",
			wantMeasure: "memory",
			wantFields:  map[string]Value{"bytes": UintValue(1024)},
			wantTS:      1609459200000000000,
			wantHasTS:   true,
		},
		{
			name:        "measurement with boolean fields",
			input:       "status active=true,error=F",
			wantMeasure: "status",
			wantFields:  map[string]Value{"active": BoolValue(true), "error": BoolValue(false)},
		},
		{
			name:        "measurement with string field",
			input:       `event,type=error message="disk full, retrying" 1609459200000000000`,
			wantMeasure: "event",
			wantTags:    map[string]string{"type": "error"},
			wantFields:  map[string]Value{"message": StringValue("disk full, retrying")},
			wantTS:      1609459200000000000,
			wantHasTS:   true,
		},
		{
			name:        "negative timestamp",
			input:       "temperature,sensor=bedroom temp=22.5 -3600",
			wantMeasure: "temperature",
			wantTags:    map[string]string{"sensor": "bedroom"},
			wantFields:  map[string]Value{"temp": FloatValue(22.5)},
			wantTS:      -3600,
			wantHasTS:   true,
		},
		{
			name:        "surrounding and repeated spaces",
			input:       "  cpu   value=1   10  ",
			wantMeasure: "cpu",
			wantFields:  map[string]Value{"value": FloatValue(1)},
			wantTS:      10,
			wantHasTS:   true,
		},
		{
			name:        "duplicate tag and field keys keep the last value",
			input:       "cpu,t=a,t=b value=1,value=2i",
			wantMeasure: "cpu",
			wantTags:    map[string]string{"t": "b"},
			wantFields:  map[string]Value{"value": IntValue(2)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := ParseLine(tt.input)
			require.NoError(t, err)

			assert.Equal(t, tt.wantMeasure, line.Measurement())
			if len(tt.wantTags) == 0 {
				assert.Nil(t, line.Tags())
			} else {
				assert.Equal(t, tt.wantTags, line.Tags())
			}
			assert.Equal(t, tt.wantFields, line.Fields())

			ts, ok := line.Timestamp()
			assert.Equal(t, tt.wantHasTS, ok)
			assert.Equal(t, tt.wantTS, ts)
		})
	}
}

func TestParseLine_EscapedCharacters(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantMeasure string
		wantTags    map[string]string
		wantFields  map[string]Value
	}{
		{
			name:        "escaped comma in measurement",
			input:       `cpu\,usage value=1.0 1609459200000000000`,
			wantMeasure: "cpu,usage",
			wantFields:  map[string]Value{"value": FloatValue(1)},
		},
		{
			name:        "escaped space in measurement",
			input:       `cpu\ usage value=1.0`,
			wantMeasure: "cpu usage",
			wantFields:  map[string]Value{"value": FloatValue(1)},
		},
		{
			name:        "escaped space in tag value",
			input:       `cpu,host=server\ 01 value=1.0 1609459200000000000`,
			wantMeasure: "cpu",
			wantTags:    map[string]string{"host": "server 01"},
			wantFields:  map[string]Value{"value": FloatValue(1)},
		},
		{
			name:        "escaped equals in tag value",
			input:       `cpu,equation=a\=b value=1.0 1609459200000000000`,
			wantMeasure: "cpu",
			wantTags:    map[string]string{"equation": "a=b"},
			wantFields:  map[string]Value{"value": FloatValue(1)},
		},
		{
			name:        "escaped characters in field key",
			input:       `cpu field\ one\,x\=y=1i`,
			wantMeasure: "cpu",
			wantFields:  map[string]Value{"field one,x=y": IntValue(1)},
		},
		{
			name:        "quotes in identity are literal",
			input:       `cpu,tag="quoted" value=1`,
			wantMeasure: "cpu",
			wantTags:    map[string]string{"tag": `"quoted"`},
			wantFields:  map[string]Value{"value": FloatValue(1)},
		},
		{
			name:        "non-special escape is consumed",
			input:       `c\pu value=1`,
			wantMeasure: "cpu",
			wantFields:  map[string]Value{"value": FloatValue(1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := ParseLine(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMeasure, line.Measurement())
			for k, v := range tt.wantTags {
				got, ok := line.Tag(k)
				assert.True(t, ok, "tag %q missing", k)
				assert.Equal(t, v, got)
			}
			assert.Equal(t, tt.wantFields, line.Fields())
		})
	}
}

func TestParseLine_QuotedStringWithSeparators(t *testing.T) {
	input := `measurement,tag2=value,tag=value field="value",field2="{\"test\": \"hello\"}" 1729270461612452700`

	line, err := ParseLine(input)
	require.NoError(t, err)

	assert.Equal(t, "measurement", line.Measurement())
	assert.Equal(t, map[string]string{"tag2": "value", "tag": "value"}, line.Tags())
	assert.Equal(t, map[string]Value{
		"field":  StringValue("value"),
		"field2": StringValue(`{"test": "hello"}`),
	}, line.Fields())

	ts, ok := line.Timestamp()
	assert.True(t, ok)
	assert.Equal(t, int64(1729270461612452700), ts)
}

func TestParseLine_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"empty line", "", ErrMalformedLine},
		{"measurement only", "cpu", ErrMalformedLine},
		{"missing field set", "measurement,tag=value 1729270461612452800", ErrMalformedLine},
		{"too many sections", "cpu value=1 10 20", ErrMalformedLine},
		{"missing measurement", `,tag=value field="value"`, ErrMalformedLine},
		{"blank measurement", `\  value=1`, ErrMalformedLine},
		{"empty tag value", "measurement,tag= value=1", ErrEmptyTagComponent},
		{"empty tag key", "cpu,=v value=1", ErrEmptyTagComponent},
		{"tag without equals", "cpu,host value=1", ErrEmptyTagComponent},
		{"trailing comma in identity", "cpu, value=1", ErrEmptyTagComponent},
		{"empty field value", "measurement field= 1729270461612452800", ErrInvalidFloatLiteral},
		{"empty field key", "cpu =1", ErrEmptyFieldKey},
		{"field without equals", "cpu value", ErrMalformedLine},
		{"only commas in field set", "cpu ,,", ErrMalformedLine},
		{"empty field between commas", "cpu a=1,,b=2", ErrMalformedLine},
		{"trailing comma in field set", "cpu a=1,", ErrMalformedLine},
		{"trailing comma before timestamp", "cpu a=1, 5", ErrMalformedLine},
		{"leading comma in field set", "cpu ,a=1", ErrMalformedLine},
		{"hex float field", "cpu a=0x1p3", ErrInvalidFloatLiteral},
		{"digit separator in field", "cpu a=1_0", ErrInvalidFloatLiteral},
		{"invalid timestamp", `measurement field="value" timestamp`, ErrInvalidTimestamp},
		{"float timestamp", "cpu value=1 1.5", ErrInvalidTimestamp},
		{"timestamp overflow", "cpu value=1 9223372036854775808", ErrInvalidTimestamp},
		{"unterminated quote", `cpu value="abc`, ErrUnterminatedQuote},
		{"junk after quote", `cpu value="abc"x`, ErrMalformedLine},
		{"bad integer", "cpu value=1.5i", ErrInvalidIntegerLiteral},
		{"bad unsigned", "cpu value=-1u", ErrInvalidUnsignedLiteral},
		{"bad float", "cpu value=12x", ErrInvalidFloatLiteral},
		{"comment", "# this is a comment", ErrCommentLine},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := ParseLine(tt.input)
			require.Error(t, err)
			assert.Nil(t, line)
			assert.ErrorIs(t, err, tt.wantErr)

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, 0, pe.Line)
		})
	}
}

func TestParseLines(t *testing.T) {
	input := "cpu,host=server01 usage=90.5 1609459200000000000\n" +
		"# this is a comment\n" +
		"memory,host=server01 free=1024i 1609459200000000000\n" +
		"\n" +
		"   \t\n" +
		"disk,host=server01 used=50.0 1609459200000000000"

	results := ParseLines(input)
	require.Len(t, results, 3)

	wantMeasurements := []string{"cpu", "memory", "disk"}
	wantNumbers := []int{1, 3, 6}
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, wantMeasurements[i], r.Line.Measurement())
		assert.Equal(t, wantNumbers[i], r.LineNumber)
	}
}

func TestParseLines_IsolatesFailures(t *testing.T) {
	input := "cpu value=1\ncpu,host=a\nmem free=2i"

	results := ParseLines(input)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, "cpu", results[0].Line.Measurement())

	assert.Nil(t, results[1].Line)
	assert.ErrorIs(t, results[1].Err, ErrMalformedLine)
	var pe *ParseError
	require.ErrorAs(t, results[1].Err, &pe)
	assert.Equal(t, 2, pe.Line)
	assert.Contains(t, pe.Error(), "line 2: ")

	assert.NoError(t, results[2].Err)
	assert.Equal(t, "mem", results[2].Line.Measurement())
}

func TestParseLines_Empty(t *testing.T) {
	assert.Empty(t, ParseLines(""))
	assert.Empty(t, ParseLines("\n\n# only comments\n"))
}

func BenchmarkParseLine(b *testing.B) {
	line := "cpu,host=server01,region=us-west,env=prod usage_idle=90.5,usage_system=2.1,usage_user=7.4 1609459200000000000"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ParseLine(line)
	}
}

func BenchmarkParseLines(b *testing.B) {
	batch := `cpu,host=server01 usage=90.5 1609459200000000000
cpu,host=server02 usage=85.0 1609459200000000001
cpu,host=server03 usage=75.0 1609459200000000002
cpu,host=server04 usage=88.0 1609459200000000003
cpu,host=server05 usage=92.0 1609459200000000004
memory,host=server01 free=1024i 1609459200000000000
memory,host=server02 free=2048i 1609459200000000001
disk,host=server01 used=50.0 1609459200000000000
disk,host=server02 used=75.0 1609459200000000001
disk,host=server03 used=30.0 1609459200000000002`

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseLines(batch)
	}
}
