package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrCircuitOpen is returned once a backend has failed too many writes in a row
var ErrCircuitOpen = errors.New("storage circuit open: too many consecutive write failures")

// ResilientBackend wraps a remote backend with retries and a fail-fast breaker
type ResilientBackend struct {
	backend Backend
	logger  zerolog.Logger

	maxFailures   int
	maxRetries    int
	retryDelay    time.Duration
	retryMaxDelay time.Duration

	mu       sync.Mutex
	failures int
}

// ResilientConfig holds configuration for the resilient backend
type ResilientConfig struct {
	// MaxFailures is the number of consecutive failed writes (after retries)
	// before every further write is rejected with ErrCircuitOpen
	MaxFailures int

	// Retry settings
	MaxRetries    int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
}

// DefaultResilientConfig returns default resilient backend configuration
func DefaultResilientConfig() *ResilientConfig {
	return &ResilientConfig{
		MaxFailures:   3,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
		RetryMaxDelay: 5 * time.Second,
	}
}

// NewResilientBackend creates a new resilient storage backend
func NewResilientBackend(backend Backend, cfg *ResilientConfig, logger zerolog.Logger) *ResilientBackend {
	if cfg == nil {
		cfg = DefaultResilientConfig()
	}

	return &ResilientBackend{
		backend:       backend,
		logger:        logger.With().Str("component", "resilient-storage").Str("storage", backend.Type()).Logger(),
		maxFailures:   cfg.MaxFailures,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		retryMaxDelay: cfg.RetryMaxDelay,
	}
}

// Write writes data with exponential backoff between attempts
func (r *ResilientBackend) Write(ctx context.Context, path string, data []byte) error {
	if r.isOpen() {
		r.logger.Warn().
			Str("path", path).
			Msg("Storage write rejected - circuit open")
		return ErrCircuitOpen
	}

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		err := r.backend.Write(ctx, path, data)
		if err == nil {
			r.recordResult(nil)
			return nil
		}
		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == r.maxRetries {
			break
		}

		delay := r.backoff(attempt)
		r.logger.Warn().
			Err(err).
			Str("path", path).
			Int("attempt", attempt+1).
			Int("max_retries", r.maxRetries).
			Dur("retry_delay", delay).
			Msg("Storage write failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.recordResult(lastErr)
	return fmt.Errorf("storage write failed after %d retries: %w", r.maxRetries, lastErr)
}

// Exists is not retried
func (r *ResilientBackend) Exists(ctx context.Context, path string) (bool, error) {
	return r.backend.Exists(ctx, path)
}

func (r *ResilientBackend) Close() error {
	return r.backend.Close()
}

func (r *ResilientBackend) Type() string {
	return r.backend.Type()
}

func (r *ResilientBackend) Location(path string) string {
	return r.backend.Location(path)
}

func (r *ResilientBackend) backoff(attempt int) time.Duration {
	delay := r.retryDelay * time.Duration(1<<uint(attempt))
	if delay > r.retryMaxDelay {
		delay = r.retryMaxDelay
	}
	return delay
}

func (r *ResilientBackend) isOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxFailures > 0 && r.failures >= r.maxFailures
}

func (r *ResilientBackend) recordResult(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err == nil {
		r.failures = 0
		return
	}
	r.failures++
	if r.maxFailures > 0 && r.failures == r.maxFailures {
		r.logger.Error().
			Int("failures", r.failures).
			Msg("Storage circuit opened")
	}
}
