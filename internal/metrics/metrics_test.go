package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_Snapshot(t *testing.T) {
	m := New()
	m.IncInputBytes(100)
	m.IncLines(10)
	m.IncLinesInvalid(2)
	m.IncMsgPackDecoded(3)
	m.IncMsgPackInvalid(1)
	m.IncRecordsWritten(8)
	m.IncOutputBytes(64)
	m.IncParquetFiles()
	m.IncParquetFiles()
	m.RecordParseDuration(1500 * time.Microsecond)
	m.RecordWriteDuration(2 * time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, int64(100), snap["input_bytes_total"])
	assert.Equal(t, int64(10), snap["lines_total"])
	assert.Equal(t, int64(2), snap["lines_invalid"])
	assert.Equal(t, int64(3), snap["msgpack_documents_decoded"])
	assert.Equal(t, int64(1), snap["msgpack_documents_invalid"])
	assert.Equal(t, int64(8), snap["records_written_total"])
	assert.Equal(t, int64(64), snap["output_bytes_total"])
	assert.Equal(t, int64(2), snap["parquet_files_total"])
	assert.Equal(t, int64(1500), snap["parse_duration_us"])
	assert.Equal(t, int64(2000), snap["write_duration_us"])
}

func TestMetrics_PrometheusFormat(t *testing.T) {
	m := New()
	m.IncLines(5)
	m.IncLinesInvalid(1)
	m.RecordParseDuration(250 * time.Millisecond)

	out := m.PrometheusFormat()
	assert.Contains(t, out, "# TYPE lpfmt_lines_total counter\nlpfmt_lines_total 5\n")
	assert.Contains(t, out, "lpfmt_lines_invalid_total 1\n")
	assert.Contains(t, out, `lpfmt_phase_duration_seconds{phase="parse"} 0.25`+"\n")
	assert.Contains(t, out, `lpfmt_phase_duration_seconds{phase="write"} 0`+"\n")

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		assert.True(t, strings.HasPrefix(line, "lpfmt_"), "unexpected line %q", line)
	}
}
