// Package csv reads comma-separated exports. Field counts vary from row to
// row (sections have different widths) and quoting in real exports is not
// always strict, so the reader is configured leniently.
package csv

import (
	"encoding/csv"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Reader reads rows from a CSV export.
type Reader struct {
	r *csv.Reader
}

// NewReader wraps r. A leading UTF-8 or UTF-16 byte order mark selects the
// decoding and is dropped; without one the input is taken as UTF-8.
func NewReader(r io.Reader) *Reader {
	decoded := transform.NewReader(r, unicode.BOMOverride(transform.Nop))
	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return &Reader{r: cr}
}

// Read returns the next row, or io.EOF.
func (r *Reader) Read() ([]string, error) { return r.r.Read() }

// Line reports the input line of the most recently read row. It must only
// be called after a successful Read.
func (r *Reader) Line() int {
	line, _ := r.r.FieldPos(0)
	return line
}
