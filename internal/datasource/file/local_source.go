// Package file implements a local filesystem-backed data source.
//
// Exports may be stored compressed; the codec is chosen from the file
// extension (".gz" or ".zst") and the returned reader yields the decoded
// bytes. Every reader fingerprints the decoded stream with xxh3 so a load can
// report which content it saw.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"gamestats/internal/datasource"
)

// Compression names a supported on-disk codec.
type Compression string

const (
	CompressionNone Compression = ""
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// CompressionFor reports the codec implied by path's extension.
func CompressionFor(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return CompressionGzip
	case ".zst", ".zstd":
		return CompressionZstd
	default:
		return CompressionNone
	}
}

// TrimCompression strips a compression extension, so "a.csv.gz" → "a.csv".
func TrimCompression(path string) string {
	if CompressionFor(path) == CompressionNone {
		return path
	}
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// Local is a filesystem data source that opens files from the local disk.
type Local struct{ path string }

// NewLocal returns a new Local data source bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

var (
	_ datasource.Source      = (*Local)(nil)
	_ datasource.Checksummer = (*Reader)(nil)
)

// Open opens the configured path and returns a *Reader over its decoded
// content.
//
// If ctx is already done, Open returns its error without touching the
// filesystem. Filesystem errors are wrapped with the path while still
// permitting errors.Is checks (e.g. os.ErrNotExist).
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}

	r := &Reader{closers: []io.Closer{f}}
	var decoded io.Reader = f
	switch CompressionFor(l.path) {
	case CompressionGzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open %s: gzip: %w", l.path, err)
		}
		r.closers = append([]io.Closer{zr}, r.closers...)
		decoded = zr
	case CompressionZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open %s: zstd: %w", l.path, err)
		}
		r.closers = append([]io.Closer{zr.IOReadCloser()}, r.closers...)
		decoded = zr
	}
	r.digest = NewDigest(decoded)
	return r, nil
}

// Reader is an opened local export.
type Reader struct {
	digest  *Digest
	closers []io.Closer
}

func (r *Reader) Read(p []byte) (int, error) { return r.digest.Read(p) }

// Checksum returns the xxh3 digest of the bytes read so far.
func (r *Reader) Checksum() string { return r.digest.Sum() }

// Close releases decoders first, then the file.
func (r *Reader) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
