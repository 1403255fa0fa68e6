// Package parser turns an export into a stream of rows. Both CSV and XLSX
// exports feed the same section scanner, so they share the RowReader shape.
package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gamestats/internal/parser/csv"
	"gamestats/internal/parser/xlsx"
)

// RowReader yields one row per call and io.EOF after the last row. A
// returned slice is owned by the caller.
type RowReader interface {
	Read() ([]string, error)
}

// LineReporter is implemented by readers that know the input line of the
// row they returned last. Blank lines are never returned as rows, so the
// line can run ahead of the row count.
type LineReporter interface {
	Line() int
}

// SheetReporter is implemented by workbook readers.
type SheetReporter interface {
	Sheet() string
}

// Format identifies an export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFor picks the format from name's extension; anything that is not a
// workbook is read as CSV.
func FormatFor(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

// Options tunes the readers.
type Options struct {
	// Sheet selects the workbook sheet; empty means the first one.
	Sheet string
}

// New returns a RowReader for r in format f. The returned closer releases
// any resources held beyond r itself and is never nil.
func New(f Format, r io.Reader, opt Options) (RowReader, io.Closer, error) {
	switch f {
	case FormatCSV:
		return csv.NewReader(r), noClose{}, nil
	case FormatXLSX:
		xr, err := xlsx.NewReader(r, opt.Sheet)
		if err != nil {
			return nil, nil, err
		}
		return xr, xr, nil
	default:
		return nil, nil, fmt.Errorf("parser: unsupported format %q", f)
	}
}

type noClose struct{}

func (noClose) Close() error { return nil }
