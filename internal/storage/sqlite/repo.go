// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql and the pure-Go modernc driver. It is the backend used for
// local runs and for end-to-end tests (":memory:").
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"gamestats/internal/schema"
	"gamestats/internal/storage"
)

// Config holds SQLite repository configuration.
type Config struct {
	// DSN is passed directly to database/sql, e.g. "gamestats.db" or
	// "file:gamestats.db?cache=shared".
	DSN string
}

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db *sql.DB
}

// Open opens dsn with a single connection so that PRAGMAs and ":memory:"
// databases apply to every statement.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}
	return db, nil
}

// New wraps an already opened database.
func New(db *sql.DB) *Repository { return &Repository{db: db} }

var (
	_ storage.Repository = (*Repository)(nil)
	_ storage.Describer  = (*Repository)(nil)
)

// Close closes the underlying database.
func (r *Repository) Close() { _ = r.db.Close() }

// NewRepository opens cfg.DSN and returns a Repository plus a Close function.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := Open(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	r := &Repository{db: db}
	return r, r.Close, nil
}

var dialect = storage.Dialect{
	Name:         "sqlite",
	QuoteIdent:   storage.QuoteWith(`"`, `"`),
	Placeholder:  storage.QuestionMark,
	ColumnType:   columnType,
	IdentityType: "INTEGER PRIMARY KEY AUTOINCREMENT",
}

func columnType(k schema.Kind) string {
	switch k {
	case schema.KindInt:
		return "INT"
	case schema.KindBigInt:
		return "BIGINT"
	case schema.KindFloat:
		return "FLOAT"
	case schema.KindDatetime:
		return "DATETIME"
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

// Insert executes one INSERT. SQLite reports the generated rowid through
// LastInsertId, which is the identity value for an INTEGER PRIMARY KEY.
func (r *Repository) Insert(ctx context.Context, ins storage.Insert) (int64, error) {
	res, err := r.db.ExecContext(ctx, ins.SQL(dialect), ins.Args...)
	if err != nil {
		return 0, err
	}
	if ins.Returning == "" {
		return 0, nil
	}
	return res.LastInsertId()
}

// Exec runs a statement that returns no rows.
func (r *Repository) Exec(ctx context.Context, sqlStmt string) error {
	_, err := r.db.ExecContext(ctx, sqlStmt)
	return err
}

// Reset deletes every row of tables with foreign keys off, and rewinds their
// AUTOINCREMENT counters. SQLite ignores the foreign_keys PRAGMA inside a
// transaction, so the statements run on the bare connection.
func (r *Repository) Reset(ctx context.Context, tables []string) (err error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: reset: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("sqlite: reset: %w", err)
	}
	defer func() {
		if _, e := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); e != nil && err == nil {
			err = fmt.Errorf("sqlite: reset: %w", e)
		}
	}()

	for _, t := range tables {
		if _, err := conn.ExecContext(ctx, "DELETE FROM "+dialect.QuoteIdent(t)); err != nil {
			return fmt.Errorf("sqlite: reset %s: %w", t, err)
		}
	}

	var n int
	row := conn.QueryRowContext(ctx,
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'sqlite_sequence'")
	if err := row.Scan(&n); err != nil {
		return fmt.Errorf("sqlite: reset: %w", err)
	}
	if n == 0 {
		return nil
	}
	for _, t := range tables {
		if _, err := conn.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name = ?", t); err != nil {
			return fmt.Errorf("sqlite: reset sequence %s: %w", t, err)
		}
	}
	return nil
}

// Describe reads the live column layout of table via PRAGMA table_info.
// An INTEGER primary key is reported as the identity column.
func (r *Repository) Describe(ctx context.Context, table string) (schema.Table, error) {
	rows, err := r.db.QueryContext(ctx, "PRAGMA table_info("+dialect.QuoteIdent(table)+")")
	if err != nil {
		return schema.Table{}, fmt.Errorf("sqlite: describe %s: %w", table, err)
	}
	defer rows.Close()

	out := schema.Table{Name: table}
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return schema.Table{}, fmt.Errorf("sqlite: describe %s: %w", table, err)
		}
		kind, err := schema.ParseKind(typ)
		if err != nil {
			return schema.Table{}, fmt.Errorf("sqlite: describe %s.%s: %w", table, name, err)
		}
		out.Columns = append(out.Columns, schema.Column{
			Name:     name,
			Type:     kind,
			Identity: pk == 1 && strings.EqualFold(typ, "INTEGER"),
		})
	}
	if err := rows.Err(); err != nil {
		return schema.Table{}, fmt.Errorf("sqlite: describe %s: %w", table, err)
	}
	if len(out.Columns) == 0 {
		return schema.Table{}, fmt.Errorf("sqlite: describe %s: table not found", table)
	}
	return out, nil
}
