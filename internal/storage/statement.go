package storage

import (
	"context"
	"fmt"
	"strings"

	"gamestats/internal/schema"
)

// Dialect captures the per-backend SQL differences the loader cares about.
type Dialect struct {
	Name string

	// QuoteIdent quotes a table or column name.
	QuoteIdent func(string) string

	// Placeholder returns the bind marker for the i-th argument (1-based).
	Placeholder func(i int) string

	// ColumnType maps a column kind to a DDL type.
	ColumnType func(schema.Kind) string

	// IdentityType is the full DDL fragment for an identity first column.
	IdentityType string

	// CreateTable wraps a CREATE TABLE body so it is skipped when the
	// table exists. Nil means "CREATE TABLE IF NOT EXISTS" is supported.
	CreateTable func(table, body string) string
}

// Insert is one single-row INSERT.
type Insert struct {
	Table   string
	Columns []string
	// Args are the driver arguments, aligned with Columns.
	Args []any
	// Literals are the same values rendered as SQL text, for diagnostics.
	Literals []string
	// Returning names the identity column to capture, if any.
	Returning string
}

// SQL builds the parameterized statement without any identity clause.
func (ins Insert) SQL(d Dialect) string { return ins.SQLWith(d, "", "") }

// SQLWith builds the parameterized statement with an optional clause placed
// before VALUES (SQL Server's OUTPUT) and one appended at the end
// (RETURNING).
func (ins Insert) SQLWith(d Dialect, beforeValues, after string) string {
	marks := make([]string, len(ins.Columns))
	for i := range marks {
		marks[i] = d.Placeholder(i + 1)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) ", d.QuoteIdent(ins.Table), quoteAll(d, ins.Columns))
	if beforeValues != "" {
		b.WriteString(beforeValues)
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "VALUES (%s)", strings.Join(marks, ","))
	if after != "" {
		b.WriteByte(' ')
		b.WriteString(after)
	}
	return b.String()
}

// Render builds the statement with literal values, as it would be typed by
// hand. It is used only for error reporting.
func (ins Insert) Render(d Dialect) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteIdent(ins.Table), quoteAll(d, ins.Columns), strings.Join(ins.Literals, ","))
}

func quoteAll(d Dialect, names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = d.QuoteIdent(n)
	}
	return strings.Join(q, ",")
}

// InsertError carries the statement that failed so it can be shown to the
// operator before the load aborts.
type InsertError struct {
	Table     string
	Statement string
	Err       error
}

func (e *InsertError) Error() string {
	return fmt.Sprintf("insert into %s failed: %v\n  statement: %s", e.Table, e.Err, e.Statement)
}

func (e *InsertError) Unwrap() error { return e.Err }

// ExecInsert runs ins on repo and wraps any failure in an InsertError.
func ExecInsert(ctx context.Context, repo Repository, ins Insert) (int64, error) {
	id, err := repo.Insert(ctx, ins)
	if err != nil {
		return 0, &InsertError{Table: ins.Table, Statement: ins.Render(repo.Dialect()), Err: err}
	}
	return id, nil
}

// QuoteWith returns an identifier quoter using open/close runes, doubling
// any embedded close rune.
func QuoteWith(open, close string) func(string) string {
	return func(s string) string {
		return open + strings.ReplaceAll(s, close, close+close) + close
	}
}

// QuestionMark is the placeholder style of MySQL and SQLite.
func QuestionMark(int) string { return "?" }
