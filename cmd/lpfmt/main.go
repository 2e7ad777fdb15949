package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/basekick-labs/lineproto/internal/config"
	"github.com/basekick-labs/lineproto/internal/ingest"
	"github.com/basekick-labs/lineproto/internal/logger"
	"github.com/basekick-labs/lineproto/internal/metrics"
	"github.com/basekick-labs/lineproto/internal/storage"
	"github.com/basekick-labs/lineproto/pkg/lineprotocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Version is set at build time
var Version = "dev"

type options struct {
	input       string
	inputFormat string
	format      string
	outDir      string
	check       bool
	overwrite   bool
	tagColumns  []string
	metricsFile string
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	opts, err := parseFlags(os.Args[1:], cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	// Setup logger
	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	log.Debug().Str("version", Version).Msg("Starting lpfmt")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	in := io.Reader(os.Stdin)
	if opts.input != "-" {
		f, err := os.Open(opts.input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	m := metrics.New()
	out := bufio.NewWriter(os.Stdout)
	failed, err := run(ctx, opts, cfg, m, in, out)
	if flushErr := out.Flush(); err == nil {
		err = flushErr
	}
	if opts.metricsFile != "" {
		if writeErr := os.WriteFile(opts.metricsFile, []byte(m.PrometheusFormat()), 0o644); writeErr != nil {
			log.Warn().Err(writeErr).Str("path", opts.metricsFile).Msg("Failed to write metrics")
		}
	}
	if err != nil {
		log.Error().Err(err).Msg("lpfmt failed")
		stop()
		os.Exit(1)
	}
	if failed > 0 {
		stop()
		os.Exit(1)
	}
}

func parseFlags(args []string, cfg *config.Config) (*options, error) {
	fs := flag.NewFlagSet("lpfmt", flag.ContinueOnError)
	opts := &options{}
	var tagColumns string

	fs.StringVar(&opts.input, "input", "-", "input file (- for stdin); gzip is detected automatically")
	fs.StringVar(&opts.inputFormat, "input-format", "lp", "input format: lp or msgpack")
	fs.StringVar(&opts.format, "format", cfg.Output.Format, "output format: lp, json, msgpack, msgpack-columnar or parquet")
	fs.StringVar(&opts.outDir, "out-dir", cfg.Output.Directory, "parquet output location: a directory, s3://bucket/prefix or azure://container/prefix")
	fs.BoolVar(&opts.check, "check", false, "only validate the input")
	fs.BoolVar(&opts.overwrite, "overwrite", true, "replace existing parquet files; with -overwrite=false the run fails before writing if any exists")
	fs.StringVar(&tagColumns, "tag-columns", "", "comma-separated columns read as tags from columnar msgpack input")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "write run metrics in Prometheus text format to this file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if opts.inputFormat != "lp" && opts.inputFormat != "msgpack" {
		return nil, fmt.Errorf("invalid -input-format %q", opts.inputFormat)
	}
	switch opts.format {
	case "lp", "json", "msgpack", "msgpack-columnar", "parquet":
	default:
		return nil, fmt.Errorf("invalid -format %q", opts.format)
	}

	for _, col := range strings.Split(tagColumns, ",") {
		if col = strings.TrimSpace(col); col != "" {
			opts.tagColumns = append(opts.tagColumns, col)
		}
	}
	return opts, nil
}

// run reads, validates and converts the input. It returns the number of
// records that could not be parsed; err is reserved for failures that stop
// the whole run.
func run(ctx context.Context, opts *options, cfg *config.Config, m *metrics.Metrics, in io.Reader, out io.Writer) (int, error) {
	log := logger.Get("lpfmt")

	data, err := ingest.ReadPayload(in, cfg.Parse.MaxInputSize)
	if err != nil {
		return 0, err
	}
	m.IncInputBytes(int64(len(data)))

	var lines []*lineprotocol.Line
	failed := 0
	start := time.Now()

	switch opts.inputFormat {
	case "msgpack":
		decoder := ingest.NewMessagePackDecoder(log)
		lines, err = decoder.DecodeRows(data, opts.tagColumns...)
		if err != nil {
			return 0, err
		}
		stats := decoder.GetStats()
		failed = int(stats["total_errors"].(uint64))
		m.IncMsgPackDecoded(int64(stats["total_decoded"].(uint64)))
		m.IncMsgPackInvalid(int64(failed))

	default:
		results, err := lineprotocol.ParseLinesConcurrent(ctx, string(data), cfg.Parse.Workers)
		if err != nil {
			return 0, err
		}
		lines = make([]*lineprotocol.Line, 0, len(results))
		for _, r := range results {
			if r.Err != nil {
				failed++
				log.Warn().
					Int("line", r.LineNumber).
					Err(r.Err).
					Msg("Skipping invalid line")
				continue
			}
			lines = append(lines, r.Line)
		}
		m.IncLines(int64(len(results)))
		m.IncLinesInvalid(int64(failed))
	}
	m.RecordParseDuration(time.Since(start))

	log.Info().
		Int("valid", len(lines)).
		Int("invalid", failed).
		Msg("Input processed")

	if opts.check {
		return failed, nil
	}

	start = time.Now()
	counted := &countingWriter{w: out}
	if err := writeOutput(ctx, opts, cfg, lines, counted, m, log); err != nil {
		return failed, err
	}
	m.IncOutputBytes(counted.n)
	m.IncRecordsWritten(int64(len(lines)))
	m.RecordWriteDuration(time.Since(start))
	return failed, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func writeOutput(ctx context.Context, opts *options, cfg *config.Config, lines []*lineprotocol.Line, out io.Writer, m *metrics.Metrics, log zerolog.Logger) error {
	switch opts.format {
	case "lp":
		buf := make([]byte, 0, 256)
		for _, line := range lines {
			buf = append(line.AppendTo(buf[:0]), '\n')
			if _, err := out.Write(buf); err != nil {
				return err
			}
		}
		return nil

	case "json":
		enc := json.NewEncoder(out)
		for _, record := range ingest.ToRecords(lines) {
			if err := enc.Encode(record); err != nil {
				return fmt.Errorf("failed to encode json: %w", err)
			}
		}
		return nil

	case "msgpack", "msgpack-columnar":
		encoder := ingest.NewMessagePackEncoder(log)
		encode := encoder.EncodeRows
		if opts.format == "msgpack-columnar" {
			encode = encoder.EncodeColumnar
		}
		data, err := encode(lines)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err

	case "parquet":
		return writeParquet(ctx, opts, cfg, lines, m, log)

	default:
		return fmt.Errorf("unknown output format %q", opts.format)
	}
}

// writeParquet writes one <measurement>.parquet file per measurement to
// opts.outDir, which may be a local directory or an s3:// or azure://
// location.
func writeParquet(ctx context.Context, opts *options, cfg *config.Config, lines []*lineprotocol.Line, m *metrics.Metrics, log zerolog.Logger) error {
	writer, err := ingest.NewParquetWriter(&cfg.Parquet, log)
	if err != nil {
		return err
	}

	backend, err := storage.Open(opts.outDir, storageOptions(&cfg.Storage), log)
	if err != nil {
		return fmt.Errorf("failed to open output location: %w", err)
	}
	defer backend.Close()

	batches := ingest.BatchToColumnar(ingest.ToRecords(lines))
	measurements := ingest.SortedMeasurements(batches)

	if !opts.overwrite {
		for _, measurement := range measurements {
			name := parquetFileName(measurement)
			exists, err := backend.Exists(ctx, name)
			if err != nil {
				return fmt.Errorf("failed to check %s: %w", name, err)
			}
			if exists {
				return fmt.Errorf("%w: %s", storage.ErrObjectExists, backend.Location(name))
			}
		}
	}

	for _, measurement := range measurements {
		data, err := writer.WriteColumnar(batches[measurement])
		if err != nil {
			return err
		}
		name := parquetFileName(measurement)
		if err := backend.Write(ctx, name, data); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		m.IncParquetFiles()
		m.IncOutputBytes(int64(len(data)))
		log.Info().
			Str("measurement", measurement).
			Str("location", backend.Location(name)).
			Str("storage", backend.Type()).
			Int("size", len(data)).
			Msg("Wrote Parquet file")
	}
	return nil
}

func parquetFileName(measurement string) string {
	return url.PathEscape(measurement) + ".parquet"
}

func storageOptions(cfg *config.StorageConfig) storage.Options {
	return storage.Options{
		S3: storage.S3Config{
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
			PathStyle: cfg.S3.PathStyle,
		},
		Azure: storage.AzureBlobConfig{
			ConnectionString:   cfg.Azure.ConnectionString,
			AccountName:        cfg.Azure.AccountName,
			AccountKey:         cfg.Azure.AccountKey,
			SASToken:           cfg.Azure.SASToken,
			UseManagedIdentity: cfg.Azure.UseManagedIdentity,
			Endpoint:           cfg.Azure.Endpoint,
		},
	}
}
