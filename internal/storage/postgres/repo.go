// Package postgres implements a Postgres repository using pgx v5 on a single
// connection. Identity values come back through INSERT ... RETURNING.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"gamestats/internal/schema"
	"gamestats/internal/storage"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN string // libpq URL or key=value string
}

// pgConnLike is the subset of *pgx.Conn the repository uses.
type pgConnLike interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close(ctx context.Context) error
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	conn pgConnLike
}

var connect = func(ctx context.Context, dsn string) (pgConnLike, error) {
	return pgx.Connect(ctx, dsn)
}

// NewRepository connects to cfg.DSN and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if _, err := pgx.ParseConfig(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("postgres dsn: %w", err)
	}
	c, err := connect(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgx connect: %w", err)
	}
	closeFn := func() { _ = c.Close(context.Background()) }
	return &Repository{conn: c}, closeFn, nil
}

var dialect = storage.Dialect{
	Name:         "postgres",
	QuoteIdent:   pgIdent,
	Placeholder:  func(i int) string { return fmt.Sprintf("$%d", i) },
	ColumnType:   columnType,
	IdentityType: "INTEGER GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY",
}

// pgIdent quotes an identifier with double quotes.
func pgIdent(s string) string { return pgx.Identifier{s}.Sanitize() }

func columnType(k schema.Kind) string {
	switch k {
	case schema.KindInt:
		return "INTEGER"
	case schema.KindBigInt:
		return "BIGINT"
	case schema.KindFloat:
		return "DOUBLE PRECISION"
	case schema.KindDatetime:
		return "TIMESTAMP"
	case schema.KindTime:
		return "TIME"
	case schema.KindBoolean:
		return "BOOLEAN"
	default:
		return "VARCHAR(255)"
	}
}

// Dialect implements storage.Repository.
func (r *Repository) Dialect() storage.Dialect { return dialect }

// Insert executes one INSERT. Datetime and time values travel as text and
// are cast by the server.
func (r *Repository) Insert(ctx context.Context, ins storage.Insert) (int64, error) {
	if ins.Returning == "" {
		_, err := r.conn.Exec(ctx, ins.SQL(dialect), ins.Args...)
		return 0, err
	}
	var id int64
	q := ins.SQLWith(dialect, "", "RETURNING "+pgIdent(ins.Returning))
	if err := r.conn.QueryRow(ctx, q, ins.Args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Exec runs a statement that returns no rows.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	_, err := r.conn.Exec(ctx, sql)
	return err
}

// resetSQL truncates all tables in one statement; CASCADE covers the
// foreign keys and RESTART IDENTITY rewinds the generated ids.
func resetSQL(tables []string) string {
	q := make([]string, len(tables))
	for i, t := range tables {
		q[i] = pgIdent(t)
	}
	return "TRUNCATE TABLE " + strings.Join(q, ", ") + " RESTART IDENTITY CASCADE"
}

// Reset empties tables and restarts their identity sequences.
func (r *Repository) Reset(ctx context.Context, tables []string) error {
	if len(tables) == 0 {
		return nil
	}
	if _, err := r.conn.Exec(ctx, resetSQL(tables)); err != nil {
		return fmt.Errorf("postgres: reset: %w", err)
	}
	return nil
}

const describeSQL = `SELECT column_name, data_type, is_identity, COALESCE(column_default, '')
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`

// Describe reads the live column layout of table from information_schema.
func (r *Repository) Describe(ctx context.Context, table string) (schema.Table, error) {
	rows, err := r.conn.Query(ctx, describeSQL, table)
	if err != nil {
		return schema.Table{}, fmt.Errorf("postgres: describe %s: %w", table, err)
	}
	defer rows.Close()

	out := schema.Table{Name: table}
	for rows.Next() {
		var name, typ, isIdentity, dflt string
		if err := rows.Scan(&name, &typ, &isIdentity, &dflt); err != nil {
			return schema.Table{}, fmt.Errorf("postgres: describe %s: %w", table, err)
		}
		col, err := describedColumn(name, typ, isIdentity, dflt)
		if err != nil {
			return schema.Table{}, fmt.Errorf("postgres: describe %s: %w", table, err)
		}
		out.Columns = append(out.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return schema.Table{}, fmt.Errorf("postgres: describe %s: %w", table, err)
	}
	if len(out.Columns) == 0 {
		return schema.Table{}, fmt.Errorf("postgres: describe %s: table not found", table)
	}
	return out, nil
}

// describedColumn maps one information_schema row. Both identity columns
// and serial (nextval) defaults count as generated.
func describedColumn(name, dataType, isIdentity, dflt string) (schema.Column, error) {
	kind, err := schema.ParseKind(dataType)
	if err != nil {
		return schema.Column{}, fmt.Errorf("%s: %w", name, err)
	}
	return schema.Column{
		Name:     name,
		Type:     kind,
		Identity: isIdentity == "YES" || strings.HasPrefix(dflt, "nextval("),
	}, nil
}
