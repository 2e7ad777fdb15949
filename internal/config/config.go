package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for lpfmt
type Config struct {
	Log     LogConfig
	Parse   ParseConfig
	Output  OutputConfig
	Parquet ParquetConfig
	Storage StorageConfig
}

type LogConfig struct {
	Level  string
	Format string // json or console
}

type ParseConfig struct {
	Workers      int   // Goroutines used for large inputs (default: GOMAXPROCS)
	MaxInputSize int64 // Max input bytes, after gzip decompression
}

type OutputConfig struct {
	Format    string // lp, json, msgpack, msgpack-columnar or parquet
	Directory string // Where parquet files are written
}

type ParquetConfig struct {
	Compression     string   // snappy, gzip, zstd or none
	UseDictionary   bool     // Use dictionary encoding
	WriteStatistics bool     // Write Parquet statistics
	DataPageVersion string   // Parquet data page version: 1.0 or 2.0
	SortKeys        []string // Per-measurement sort keys: "measurement:col1,col2"
	DefaultSortKeys string   // Sort keys for measurements not in SortKeys
}

// StorageConfig holds credentials for remote output locations. The bucket or
// container itself comes from the s3:// or azure:// output directory.
type StorageConfig struct {
	S3    S3Config
	Azure AzureConfig
}

type S3Config struct {
	Region    string
	Endpoint  string // Custom endpoint for MinIO (e.g., "localhost:9000")
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool // Required for MinIO
}

type AzureConfig struct {
	ConnectionString   string
	AccountName        string
	AccountKey         string
	SASToken           string
	UseManagedIdentity bool
	Endpoint           string // Custom endpoint for Azurite
}

// Load reads configuration from defaults, an optional lpfmt.toml and
// LPFMT_* environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("LPFMT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file (optional)
	v.SetConfigName("lpfmt")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/lpfmt/")
	v.AddConfigPath("$HOME/.lpfmt/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	maxInputSize, err := ParseSize(v.GetString("parse.max_input_size"))
	if err != nil {
		return nil, fmt.Errorf("invalid parse.max_input_size: %w", err)
	}

	cfg := &Config{
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Parse: ParseConfig{
			Workers:      v.GetInt("parse.workers"),
			MaxInputSize: maxInputSize,
		},
		Output: OutputConfig{
			Format:    v.GetString("output.format"),
			Directory: v.GetString("output.directory"),
		},
		Parquet: ParquetConfig{
			Compression:     v.GetString("parquet.compression"),
			UseDictionary:   v.GetBool("parquet.use_dictionary"),
			WriteStatistics: v.GetBool("parquet.write_statistics"),
			DataPageVersion: v.GetString("parquet.data_page_version"),
			SortKeys:        v.GetStringSlice("parquet.sort_keys"),
			DefaultSortKeys: v.GetString("parquet.default_sort_keys"),
		},
		Storage: StorageConfig{
			S3: S3Config{
				Region:    v.GetString("storage.s3.region"),
				Endpoint:  v.GetString("storage.s3.endpoint"),
				AccessKey: v.GetString("storage.s3.access_key"),
				SecretKey: v.GetString("storage.s3.secret_key"),
				UseSSL:    v.GetBool("storage.s3.use_ssl"),
				PathStyle: v.GetBool("storage.s3.path_style"),
			},
			Azure: AzureConfig{
				ConnectionString:   v.GetString("storage.azure.connection_string"),
				AccountName:        v.GetString("storage.azure.account_name"),
				AccountKey:         v.GetString("storage.azure.account_key"),
				SASToken:           v.GetString("storage.azure.sas_token"),
				UseManagedIdentity: v.GetBool("storage.azure.use_managed_identity"),
				Endpoint:           v.GetString("storage.azure.endpoint"),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Parse defaults
	v.SetDefault("parse.workers", getDefaultWorkers())
	v.SetDefault("parse.max_input_size", "256MB")

	// Output defaults
	v.SetDefault("output.format", "lp")
	v.SetDefault("output.directory", ".")

	// Parquet defaults
	v.SetDefault("parquet.compression", "snappy")
	v.SetDefault("parquet.use_dictionary", true)
	v.SetDefault("parquet.write_statistics", true)
	v.SetDefault("parquet.data_page_version", "2.0")
	v.SetDefault("parquet.sort_keys", []string{})
	v.SetDefault("parquet.default_sort_keys", "")

	// Storage defaults
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key", "")
	v.SetDefault("storage.s3.secret_key", "")
	v.SetDefault("storage.s3.use_ssl", true)
	v.SetDefault("storage.s3.path_style", false)
	v.SetDefault("storage.azure.connection_string", "")
	v.SetDefault("storage.azure.account_name", "")
	v.SetDefault("storage.azure.account_key", "")
	v.SetDefault("storage.azure.sas_token", "")
	v.SetDefault("storage.azure.use_managed_identity", false)
	v.SetDefault("storage.azure.endpoint", "")
}

func getDefaultWorkers() int {
	return runtime.GOMAXPROCS(0)
}

var (
	outputFormats      = []string{"lp", "json", "msgpack", "msgpack-columnar", "parquet"}
	parquetCompression = []string{"snappy", "gzip", "zstd", "none"}
)

// Validate checks enumerated settings so that mistakes surface at startup.
func (cfg *Config) Validate() error {
	if !contains(outputFormats, cfg.Output.Format) {
		return fmt.Errorf("invalid output.format %q (expected one of %s)", cfg.Output.Format, strings.Join(outputFormats, ", "))
	}
	if !contains(parquetCompression, cfg.Parquet.Compression) {
		return fmt.Errorf("invalid parquet.compression %q (expected one of %s)", cfg.Parquet.Compression, strings.Join(parquetCompression, ", "))
	}
	if v := cfg.Parquet.DataPageVersion; v != "1.0" && v != "2.0" {
		return fmt.Errorf("invalid parquet.data_page_version %q (expected 1.0 or 2.0)", v)
	}
	if cfg.Parse.Workers < 0 {
		return fmt.Errorf("parse.workers cannot be negative: %d", cfg.Parse.Workers)
	}
	if _, _, err := ParseSortKeys(cfg.Parquet); err != nil {
		return err
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// ParseSize parses a human-readable size string (e.g., "1GB", "500MB", "100KB") to bytes.
// Supports: B, KB, MB, GB (case-insensitive).
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	units := []struct {
		suffix     string
		multiplier int64
	}{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, unit := range units {
		if !strings.HasSuffix(sizeStr, unit.suffix) {
			continue
		}
		numStr := strings.TrimSpace(strings.TrimSuffix(sizeStr, unit.suffix))

		var num float64
		var trailing string
		n, _ := fmt.Sscanf(numStr, "%f%s", &num, &trailing)
		if n == 0 {
			return 0, fmt.Errorf("invalid size number: %s", numStr)
		}
		if trailing != "" {
			// e.g. the "T" of "1TB"
			return 0, fmt.Errorf("invalid size format: %s (use e.g., '1GB', '500MB', '100KB')", sizeStr)
		}
		if num < 0 {
			return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
		}
		return int64(num * float64(unit.multiplier)), nil
	}

	// Plain number of bytes
	var num int64
	var trailing string
	n, _ := fmt.Sscanf(sizeStr, "%d%s", &num, &trailing)
	if n == 0 || trailing != "" {
		return 0, fmt.Errorf("invalid size format: %s (use e.g., '1GB', '500MB', '100KB')", sizeStr)
	}
	if num < 0 {
		return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
	}
	return num, nil
}
