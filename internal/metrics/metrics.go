package metrics

import (
	"runtime"
	"strconv"
	"sync/atomic"
	"time"
)

// Metrics holds counters for a single lpfmt run
type Metrics struct {
	startTime time.Time

	// Input
	inputBytesTotal atomic.Int64

	// Line protocol
	linesTotal   atomic.Int64
	linesInvalid atomic.Int64

	// MessagePack
	msgpackDocumentsDecoded atomic.Int64
	msgpackDocumentsInvalid atomic.Int64

	// Output
	recordsWrittenTotal atomic.Int64
	outputBytesTotal    atomic.Int64
	parquetFilesTotal   atomic.Int64

	// Phase durations (microseconds)
	parseDurationMicros atomic.Int64
	writeDurationMicros atomic.Int64
}

// New returns a Metrics whose uptime starts now
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// Input Metrics
func (m *Metrics) IncInputBytes(bytes int64) { m.inputBytesTotal.Add(bytes) }

// Line Protocol Metrics
func (m *Metrics) IncLines(count int64)        { m.linesTotal.Add(count) }
func (m *Metrics) IncLinesInvalid(count int64) { m.linesInvalid.Add(count) }

// MessagePack Metrics
func (m *Metrics) IncMsgPackDecoded(count int64) { m.msgpackDocumentsDecoded.Add(count) }
func (m *Metrics) IncMsgPackInvalid(count int64) { m.msgpackDocumentsInvalid.Add(count) }

// Output Metrics
func (m *Metrics) IncRecordsWritten(count int64) { m.recordsWrittenTotal.Add(count) }
func (m *Metrics) IncOutputBytes(bytes int64)    { m.outputBytesTotal.Add(bytes) }
func (m *Metrics) IncParquetFiles()              { m.parquetFilesTotal.Add(1) }

// RecordParseDuration adds time spent parsing or decoding input
func (m *Metrics) RecordParseDuration(d time.Duration) {
	m.parseDurationMicros.Add(d.Microseconds())
}

// RecordWriteDuration adds time spent encoding output
func (m *Metrics) RecordWriteDuration(d time.Duration) {
	m.writeDurationMicros.Add(d.Microseconds())
}

// Snapshot returns the current values keyed by metric name
func (m *Metrics) Snapshot() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]interface{}{
		// Process info
		"uptime_seconds": time.Since(m.startTime).Seconds(),
		"gomaxprocs":     runtime.GOMAXPROCS(0),

		// Memory (Go runtime)
		"memory_total_alloc_bytes": memStats.TotalAlloc,
		"memory_heap_inuse_bytes":  memStats.HeapInuse,
		"gc_cycles":                memStats.NumGC,

		"input_bytes_total": m.inputBytesTotal.Load(),

		"lines_total":   m.linesTotal.Load(),
		"lines_invalid": m.linesInvalid.Load(),

		"msgpack_documents_decoded": m.msgpackDocumentsDecoded.Load(),
		"msgpack_documents_invalid": m.msgpackDocumentsInvalid.Load(),

		"records_written_total": m.recordsWrittenTotal.Load(),
		"output_bytes_total":    m.outputBytesTotal.Load(),
		"parquet_files_total":   m.parquetFilesTotal.Load(),

		"parse_duration_us": m.parseDurationMicros.Load(),
		"write_duration_us": m.writeDurationMicros.Load(),
	}
}

// PrometheusFormat returns metrics in Prometheus text exposition format,
// suitable for the node_exporter textfile collector.
func (m *Metrics) PrometheusFormat() string {
	var b []byte
	b = appendFamily(b, "lpfmt_uptime_seconds", "gauge", "Time since lpfmt started",
		time.Since(m.startTime).Seconds())

	b = appendFamily(b, "lpfmt_input_bytes_total", "counter", "Input bytes after decompression",
		float64(m.inputBytesTotal.Load()))

	b = appendFamily(b, "lpfmt_lines_total", "counter", "Line protocol records parsed, valid or not",
		float64(m.linesTotal.Load()))
	b = appendFamily(b, "lpfmt_lines_invalid_total", "counter", "Line protocol records that failed to parse",
		float64(m.linesInvalid.Load()))

	b = appendFamily(b, "lpfmt_msgpack_documents_total", "counter", "MessagePack documents decoded",
		float64(m.msgpackDocumentsDecoded.Load()))
	b = appendFamily(b, "lpfmt_msgpack_documents_invalid_total", "counter", "MessagePack documents skipped",
		float64(m.msgpackDocumentsInvalid.Load()))

	b = appendFamily(b, "lpfmt_records_written_total", "counter", "Records written to the output",
		float64(m.recordsWrittenTotal.Load()))
	b = appendFamily(b, "lpfmt_output_bytes_total", "counter", "Bytes written to the output",
		float64(m.outputBytesTotal.Load()))
	b = appendFamily(b, "lpfmt_parquet_files_total", "counter", "Parquet files written",
		float64(m.parquetFilesTotal.Load()))

	b = append(b, "# HELP lpfmt_phase_duration_seconds Time spent per phase\n"...)
	b = append(b, "# TYPE lpfmt_phase_duration_seconds gauge\n"...)
	b = appendMetricWithLabel(b, "lpfmt_phase_duration_seconds", "phase", "parse",
		float64(m.parseDurationMicros.Load())/1e6)
	b = appendMetricWithLabel(b, "lpfmt_phase_duration_seconds", "phase", "write",
		float64(m.writeDurationMicros.Load())/1e6)

	return string(b)
}

// Helper functions for Prometheus format
func appendFamily(b []byte, name, typ, help string, value float64) []byte {
	b = append(b, "# HELP "...)
	b = append(b, name...)
	b = append(b, ' ')
	b = append(b, help...)
	b = append(b, "\n# TYPE "...)
	b = append(b, name...)
	b = append(b, ' ')
	b = append(b, typ...)
	b = append(b, '\n')
	return appendMetric(b, name, value)
}

func appendMetric(b []byte, name string, value float64) []byte {
	b = append(b, name...)
	b = append(b, ' ')
	b = strconv.AppendFloat(b, value, 'g', -1, 64)
	b = append(b, '\n')
	return b
}

func appendMetricWithLabel(b []byte, name, labelName, labelValue string, value float64) []byte {
	b = append(b, name...)
	b = append(b, '{')
	b = append(b, labelName...)
	b = append(b, '=', '"')
	b = append(b, labelValue...)
	b = append(b, '"', '}', ' ')
	b = strconv.AppendFloat(b, value, 'g', -1, 64)
	b = append(b, '\n')
	return b
}
