// Package datasource defines how the loader obtains the bytes of an export.
package datasource

import (
	"context"
	"io"
)

// Source opens an export for reading.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Checksummer is implemented by readers that fingerprint what was read
// through them. Checksum is only meaningful after the reader hit EOF.
type Checksummer interface {
	Checksum() string
}
