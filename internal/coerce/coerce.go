// Package coerce converts raw export fields into typed values for one
// destination table. Conversion is driven by the column kinds in a
// schema.Table; sentinel handling lives in a single table in normalize.go.
package coerce

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"gamestats/internal/schema"
)

// DatetimeLayout is the fixed literal form of every coerced timestamp.
const DatetimeLayout = "2006-01-02 15:04:05"

// Value is a single coerced field. Text holds the literal form used when the
// statement is rendered for humans; Arg is what the driver receives.
type Value struct {
	Null   bool
	Text   string
	Quoted bool
	Arg    any
}

// Null is the coerced form of every sentinel.
var Null = Value{Null: true, Text: "NULL"}

// Literal renders v as a SQL literal.
func (v Value) Literal() string {
	if v.Null {
		return "NULL"
	}
	if v.Quoted {
		return "'" + strings.ReplaceAll(v.Text, "'", "''") + "'"
	}
	return v.Text
}

// FieldError reports a field that could not be coerced to its column kind.
type FieldError struct {
	Table  string
	Column string
	Value  string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("coerce: %s.%s: value %q: %v", e.Table, e.Column, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Coercer converts raw rows for one table.
type Coercer struct {
	table   schema.Table
	columns []schema.Column

	// ParseTime parses free-form date text. Defaults to dateparse.ParseAny.
	ParseTime func(string) (time.Time, error)
}

// New returns a Coercer for t. Identity columns are dropped from the insert
// list up front.
func New(t schema.Table) *Coercer {
	cols := make([]schema.Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Identity {
			continue
		}
		cols = append(cols, c)
	}
	return &Coercer{table: t, columns: cols, ParseTime: parseAny}
}

// Table returns the destination table.
func (c *Coercer) Table() schema.Table { return c.table }

// Columns returns the insert column names in order.
func (c *Coercer) Columns() []string { return c.table.InsertColumns() }

// Row coerces fields positionally against the insert columns. Missing
// trailing fields are treated as blank; surplus fields are ignored.
func (c *Coercer) Row(fields []string) ([]Value, error) {
	out := make([]Value, len(c.columns))
	for i, col := range c.columns {
		raw := ""
		if i < len(fields) {
			raw = fields[i]
		}
		v, err := c.Field(col, raw)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Field coerces a single raw value for col.
func (c *Coercer) Field(col schema.Column, raw string) (Value, error) {
	if _, known := nullSentinels[col.Type]; !known {
		return Value{}, c.fail(col, raw, fmt.Errorf("%w: %q", schema.ErrUnknownType, col.Type))
	}
	if isNull(col.Type, raw) {
		return Null, nil
	}

	switch col.Type {
	case schema.KindInt, schema.KindBigInt:
		// Integers are not parsed; the database decides what the text means.
		return Value{Text: raw, Arg: raw}, nil

	case schema.KindFloat:
		if strings.HasSuffix(raw, percentSuffix) {
			f, err := strconv.ParseFloat(strings.TrimSuffix(raw, percentSuffix), 64)
			if err != nil {
				return Value{}, c.fail(col, raw, err)
			}
			f /= 100
			return Value{Text: strconv.FormatFloat(f, 'f', -1, 64), Arg: f}, nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, c.fail(col, raw, err)
		}
		return Value{Text: raw, Arg: f}, nil

	case schema.KindVarchar:
		return Value{Text: raw, Quoted: true, Arg: raw}, nil

	case schema.KindDatetime:
		t, err := c.ParseTime(raw)
		if err != nil {
			return Value{}, c.fail(col, raw, err)
		}
		s := t.Format(DatetimeLayout)
		return Value{Text: s, Quoted: true, Arg: s}, nil

	case schema.KindTime:
		return Value{Text: raw, Quoted: true, Arg: raw}, nil

	case schema.KindBoolean:
		if raw == boolTrue {
			return Value{Text: "1", Arg: true}, nil
		}
		return Value{Text: "0", Arg: false}, nil
	}

	// Unreachable while nullSentinels and this switch agree.
	return Value{}, c.fail(col, raw, fmt.Errorf("%w: %q", schema.ErrUnknownType, col.Type))
}

func parseAny(s string) (time.Time, error) { return dateparse.ParseAny(s) }

func (c *Coercer) fail(col schema.Column, raw string, err error) error {
	return &FieldError{Table: c.table.Name, Column: col.Name, Value: raw, Err: err}
}

// Args extracts driver arguments from vs.
func Args(vs []Value) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		if v.Null {
			continue
		}
		out[i] = v.Arg
	}
	return out
}

// Literals renders vs as SQL literals.
func Literals(vs []Value) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Literal()
	}
	return out
}
