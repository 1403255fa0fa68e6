// Package xlsx reads exports saved as Excel workbooks. One sheet is read;
// each spreadsheet row becomes one row of cell texts, exactly as the CSV
// reader would produce for the same data.
package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Reader streams the rows of one sheet.
type Reader struct {
	f     *excelize.File
	rows  *excelize.Rows
	sheet string
}

// NewReader opens the workbook in r and positions on sheet, or on the first
// sheet when sheet is empty.
func NewReader(r io.Reader, sheet string) (*Reader, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("xlsx: open: %w", err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("xlsx: workbook has no sheets")
	}
	if sheet == "" {
		sheet = sheets[0]
	} else if !contains(sheets, sheet) {
		f.Close()
		return nil, fmt.Errorf("xlsx: sheet %q not found (have %v)", sheet, sheets)
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("xlsx: sheet %q: %w", sheet, err)
	}
	return &Reader{f: f, rows: rows, sheet: sheet}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Sheet returns the sheet being read.
func (r *Reader) Sheet() string { return r.sheet }

// Read returns the next row's cell texts, or io.EOF. Trailing empty cells
// are dropped, so an empty spreadsheet row comes back with no fields.
func (r *Reader) Read() ([]string, error) {
	if !r.rows.Next() {
		if err := r.rows.Error(); err != nil {
			return nil, fmt.Errorf("xlsx: %w", err)
		}
		return nil, io.EOF
	}
	cols, err := r.rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	return cols, nil
}

// Close releases the workbook.
func (r *Reader) Close() error {
	rerr := r.rows.Close()
	if err := r.f.Close(); err != nil {
		return err
	}
	return rerr
}
