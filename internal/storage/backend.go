package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"
)

// ErrObjectExists is returned when an output must not replace an existing
// object.
var ErrObjectExists = errors.New("output already exists")

// Backend is a destination for output files (local directory, S3/MinIO, Azure Blob)
type Backend interface {
	// Write writes data to path, relative to the backend root
	Write(ctx context.Context, path string, data []byte) error

	// Exists checks if an object exists at the specified path
	Exists(ctx context.Context, path string) (bool, error)

	// Location returns the full path or URL a relative path is written to
	Location(path string) string

	// Close closes any resources held by the backend
	Close() error

	// Type returns the storage type identifier ("local", "s3", "azure")
	Type() string
}

// Target is a parsed output location.
type Target struct {
	Scheme string // local, s3 or azure
	Root   string // Directory, bucket or container
	Prefix string // Key prefix inside the bucket or container
}

// ParseTarget parses s3://bucket/prefix, azure://container/prefix or a plain
// directory path.
func ParseTarget(target string) (Target, error) {
	scheme, rest, ok := strings.Cut(target, "://")
	if !ok {
		if target == "" {
			return Target{}, fmt.Errorf("empty output location")
		}
		return Target{Scheme: "local", Root: target}, nil
	}

	switch scheme {
	case "s3", "azure":
	case "file":
		if rest == "" {
			return Target{}, fmt.Errorf("empty output location")
		}
		return Target{Scheme: "local", Root: rest}, nil
	default:
		return Target{}, fmt.Errorf("unsupported output scheme %q (expected s3, azure or a local path)", scheme)
	}

	root, prefix, _ := strings.Cut(rest, "/")
	if root == "" {
		return Target{}, fmt.Errorf("%s output location %q has no bucket or container", scheme, target)
	}
	return Target{Scheme: scheme, Root: root, Prefix: strings.Trim(prefix, "/")}, nil
}

// Options carries credentials for remote backends.
type Options struct {
	S3    S3Config
	Azure AzureBlobConfig

	// Retry policy for remote backends; nil uses DefaultResilientConfig
	Resilience *ResilientConfig
}

// Open returns the backend for target. Bucket and container names in opts
// are replaced by the one named in target. Remote backends are wrapped in a
// ResilientBackend.
func Open(target string, opts Options, logger zerolog.Logger) (Backend, error) {
	t, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}

	var remote Backend
	switch t.Scheme {
	case "s3":
		cfg := opts.S3
		cfg.Bucket = t.Root
		cfg.Prefix = t.Prefix
		b, err := NewS3Backend(&cfg, logger)
		if err != nil {
			return nil, err
		}
		remote = b
	case "azure":
		cfg := opts.Azure
		cfg.ContainerName = t.Root
		cfg.Prefix = t.Prefix
		b, err := NewAzureBlobBackend(&cfg, logger)
		if err != nil {
			return nil, err
		}
		remote = b
	default:
		b, err := NewLocalBackend(t.Root, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	return NewResilientBackend(remote, opts.Resilience, logger), nil
}

// objectKey joins a key prefix and a relative path.
func objectKey(prefix, p string) string {
	p = strings.TrimPrefix(sanitizePath(p), "/")
	if prefix == "" {
		return p
	}
	return path.Join(prefix, p)
}

// contentType returns the MIME type for an output file
func contentType(p string) string {
	if strings.HasSuffix(p, ".parquet") {
		return "application/vnd.apache.parquet"
	}
	return "application/octet-stream"
}
