package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/basekick-labs/lineproto/internal/config"
	"github.com/basekick-labs/lineproto/internal/ingest"
	"github.com/basekick-labs/lineproto/internal/metrics"
	"github.com/basekick-labs/lineproto/internal/storage"
	"github.com/basekick-labs/lineproto/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInput = `# sample
cpu,region=us-west,host=server01 usage=90.5,count=3i 1609459200000000000

mem,host=server01 free=1024i 1609459200000000000
cpu,host=server02 usage= 1
cpu,host=server02 usage=85 1609459200000000001
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Log:   config.LogConfig{Level: "info", Format: "json"},
		Parse: config.ParseConfig{Workers: 2, MaxInputSize: 1 << 20},
		Output: config.OutputConfig{
			Format:    "lp",
			Directory: t.TempDir(),
		},
		Parquet: config.ParquetConfig{
			Compression:     "snappy",
			UseDictionary:   true,
			WriteStatistics: true,
			DataPageVersion: "2.0",
		},
	}
}

func runWith(t *testing.T, cfg *config.Config, input string, args ...string) (int, []byte, error) {
	t.Helper()
	opts, err := parseFlags(args, cfg)
	require.NoError(t, err)

	var out bytes.Buffer
	failed, err := run(context.Background(), opts, cfg, metrics.New(), strings.NewReader(input), &out)
	return failed, out.Bytes(), err
}

func TestParseFlags(t *testing.T) {
	cfg := testConfig(t)

	opts, err := parseFlags([]string{"-format", "json", "-tag-columns", "host, region,,"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "-", opts.input)
	assert.Equal(t, "lp", opts.inputFormat)
	assert.Equal(t, "json", opts.format)
	assert.Equal(t, cfg.Output.Directory, opts.outDir)
	assert.Equal(t, []string{"host", "region"}, opts.tagColumns)
	assert.True(t, opts.overwrite)

	tests := [][]string{
		{"-format", "csv"},
		{"-input-format", "json"},
		{"extra"},
		{"-unknown"},
	}
	for _, args := range tests {
		_, err := parseFlags(args, cfg)
		assert.Error(t, err, "args %v", args)
	}
}

func TestRun_LineProtocol(t *testing.T) {
	failed, out, err := runWith(t, testConfig(t), testInput)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
	assert.Equal(t, strings.Join([]string{
		"cpu,host=server01,region=us-west count=3i,usage=90.5 1609459200000000000",
		"mem,host=server01 free=1024i 1609459200000000000",
		"cpu,host=server02 usage=85 1609459200000000001",
		"",
	}, "\n"), string(out))
}

func TestRun_Metrics(t *testing.T) {
	cfg := testConfig(t)
	opts, err := parseFlags([]string{"-format", "parquet"}, cfg)
	require.NoError(t, err)

	m := metrics.New()
	failed, err := run(context.Background(), opts, cfg, m, strings.NewReader(testInput), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	snap := m.Snapshot()
	assert.Equal(t, int64(len(testInput)), snap["input_bytes_total"])
	assert.Equal(t, int64(4), snap["lines_total"])
	assert.Equal(t, int64(1), snap["lines_invalid"])
	assert.Equal(t, int64(3), snap["records_written_total"])
	assert.Equal(t, int64(2), snap["parquet_files_total"])
	assert.Greater(t, snap["output_bytes_total"].(int64), int64(0))
}

func TestRun_Check(t *testing.T) {
	failed, out, err := runWith(t, testConfig(t), testInput, "-check")
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
	assert.Empty(t, out)

	failed, _, err = runWith(t, testConfig(t), "cpu value=1\n", "-check")
	require.NoError(t, err)
	assert.Zero(t, failed)
}

func TestRun_JSON(t *testing.T) {
	failed, out, err := runWith(t, testConfig(t), testInput, "-format", "json")
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	dec := json.NewDecoder(bytes.NewReader(out))
	var records []models.Record
	for dec.More() {
		var r models.Record
		require.NoError(t, dec.Decode(&r))
		records = append(records, r)
	}
	require.Len(t, records, 3)
	assert.Equal(t, "cpu", records[0].Measurement)
	assert.Equal(t, "us-west", records[0].Tags["region"])
	assert.Equal(t, 90.5, records[0].Fields["usage"])
	require.NotNil(t, records[2].Timestamp)
	assert.Equal(t, int64(1609459200000000001), *records[2].Timestamp)
}

func TestRun_JSONNonFinite(t *testing.T) {
	failed, out, err := runWith(t, testConfig(t), "cpu ok=1 1\ncpu v=NaN 2\ncpu v=-Inf 3\ncpu ok=2 4\n", "-format", "json")
	require.NoError(t, err)
	assert.Zero(t, failed)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"measurement":"cpu","fields":{"v":"NaN"},"timestamp":2}`, lines[1])
	assert.JSONEq(t, `{"measurement":"cpu","fields":{"v":"-Inf"},"timestamp":3}`, lines[2])
	assert.JSONEq(t, `{"measurement":"cpu","fields":{"ok":2},"timestamp":4}`, lines[3])
}

func TestRun_MessagePack(t *testing.T) {
	cfg := testConfig(t)

	_, rows, err := runWith(t, cfg, testInput, "-format", "msgpack")
	require.NoError(t, err)

	// Feed the encoded rows back through the msgpack input path
	failed, out, err := runWith(t, cfg, string(rows), "-input-format", "msgpack")
	require.NoError(t, err)
	assert.Zero(t, failed)
	assert.Equal(t, 3, strings.Count(string(out), "\n"))
	assert.Contains(t, string(out), "cpu,host=server01,region=us-west count=3i,usage=90.5 1609459200000000000\n")
}

func TestRun_MessagePackColumnar(t *testing.T) {
	cfg := testConfig(t)

	_, cols, err := runWith(t, cfg, testInput, "-format", "msgpack-columnar")
	require.NoError(t, err)

	lines, err := ingest.NewMessagePackDecoder(zerolog.Nop()).DecodeRows(cols, "host", "region")
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "cpu,host=server01,region=us-west count=3i,usage=90.5 1609459200000000000", lines[0].String())
	assert.Equal(t, "mem,host=server01 free=1024i 1609459200000000000", lines[2].String())
}

func TestRun_Parquet(t *testing.T) {
	cfg := testConfig(t)
	dir := filepath.Join(cfg.Output.Directory, "nested")

	failed, out, err := runWith(t, cfg, testInput, "-format", "parquet", "-out-dir", dir)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
	assert.Empty(t, out)

	for _, name := range []string{"cpu.parquet", "mem.parquet"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		require.Greater(t, len(data), 8)
		assert.Equal(t, "PAR1", string(data[:4]))
		assert.Equal(t, "PAR1", string(data[len(data)-4:]))
	}
}

func TestRun_ParquetNoOverwrite(t *testing.T) {
	cfg := testConfig(t)
	dir := cfg.Output.Directory
	existing := filepath.Join(dir, "mem.parquet")
	require.NoError(t, os.WriteFile(existing, []byte("keep"), 0o644))

	_, _, err := runWith(t, cfg, testInput, "-format", "parquet", "-overwrite=false")
	require.ErrorIs(t, err, storage.ErrObjectExists)
	assert.Contains(t, err.Error(), existing)

	// Nothing was written, not even the measurement without a file
	assert.NoFileExists(t, filepath.Join(dir, "cpu.parquet"))
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))

	_, _, err = runWith(t, cfg, testInput, "-format", "parquet")
	require.NoError(t, err)
	data, err = os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "PAR1", string(data[:4]))
}

func TestRun_ParquetKindConflict(t *testing.T) {
	cfg := testConfig(t)
	_, _, err := runWith(t, cfg, "cpu v=1 1\ncpu v=1i 2\n", "-format", "parquet")
	assert.Error(t, err)
}

func TestRun_InputTooLarge(t *testing.T) {
	cfg := testConfig(t)
	cfg.Parse.MaxInputSize = 8

	_, _, err := runWith(t, cfg, testInput)
	assert.ErrorIs(t, err, ingest.ErrPayloadTooLarge)
}

func TestRun_Cancelled(t *testing.T) {
	cfg := testConfig(t)
	opts, err := parseFlags(nil, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = run(ctx, opts, cfg, metrics.New(), strings.NewReader(strings.Repeat("cpu value=1\n", 5000)), &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}
