package ingest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ErrPayloadTooLarge is returned when input exceeds the configured size.
var ErrPayloadTooLarge = errors.New("payload exceeds size limit")

// Pool for gzip readers - each holds ~32KB of decompression state
var gzipReaderPool = sync.Pool{}

// ReadPayload reads all of r. Gzip input (magic 0x1f 0x8b) is decompressed
// transparently. maxSize caps the returned bytes, after decompression; zero
// or less means no limit.
func ReadPayload(r io.Reader, maxSize int64) ([]byte, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		return decompressGzip(br, maxSize)
	}
	return readLimited(br, maxSize)
}

// decompressGzip decompresses gzip data using pooled readers to minimize allocations
func decompressGzip(r io.Reader, maxSize int64) ([]byte, error) {
	var reader *gzip.Reader
	var err error
	if pooled := gzipReaderPool.Get(); pooled != nil {
		reader = pooled.(*gzip.Reader)
		err = reader.Reset(r)
	} else {
		reader, err = gzip.NewReader(r)
	}
	if err != nil {
		if reader != nil {
			gzipReaderPool.Put(reader)
		}
		return nil, fmt.Errorf("failed to decompress gzip data: %w", err)
	}
	defer gzipReaderPool.Put(reader)

	data, err := readLimited(reader, maxSize)
	if err != nil {
		if errors.Is(err, ErrPayloadTooLarge) {
			return nil, fmt.Errorf("decompressed %w", err)
		}
		return nil, fmt.Errorf("failed to decompress gzip data: %w", err)
	}
	return data, nil
}

func readLimited(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		return io.ReadAll(r)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, err
	}
	if n > maxSize {
		return nil, fmt.Errorf("%w of %d bytes", ErrPayloadTooLarge, maxSize)
	}
	return buf.Bytes(), nil
}
