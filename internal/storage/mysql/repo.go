// Package mysql implements a MySQL-backed storage.Repository using
// database/sql and go-sql-driver/mysql. All statements run on a single
// connection so that session settings such as FOREIGN_KEY_CHECKS stay in
// effect for the statements that need them.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"gamestats/internal/schema"
	"gamestats/internal/storage"
)

// Config holds MySQL repository configuration.
type Config struct {
	// DSN in go-sql-driver form: user:pass@tcp(host:3306)/gamestats
	DSN string
}

// sqlCore is the subset of *sql.DB and *sql.Conn used for writes.
type sqlCore interface {
	ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error)
}

// connCore is a dedicated session; *sql.Conn satisfies it.
type connCore interface {
	sqlCore
	Close() error
}

// Repository is a MySQL-backed implementation of storage.Repository.
type Repository struct {
	db   *sql.DB
	core sqlCore
	conn func(ctx context.Context) (connCore, error)
}

// NewRepository validates and opens cfg.DSN and returns a Repository plus a
// Close function.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if _, err := mysql.ParseDSN(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	return newWithDB(db), func() { _ = db.Close() }, nil
}

func newWithDB(db *sql.DB) *Repository {
	return &Repository{
		db:   db,
		core: db,
		conn: func(ctx context.Context) (connCore, error) { return db.Conn(ctx) },
	}
}

var dialect = storage.Dialect{
	Name:         "mysql",
	QuoteIdent:   myIdent,
	Placeholder:  storage.QuestionMark,
	ColumnType:   columnType,
	IdentityType: "INT AUTO_INCREMENT PRIMARY KEY",
}

// myIdent backtick-quotes an identifier, doubling embedded backticks.
func myIdent(s string) string { return storage.QuoteWith("`", "`")(s) }

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
		return "TINYINT(1)"
	default:
		return "VARCHAR(255)"
	}
}

// Dialect implements storage.Repository.
func (r *Repository) Dialect() storage.Dialect { return dialect }

// Insert executes one INSERT and, when an identity is requested, returns
// LAST_INSERT_ID() as reported by the driver.
func (r *Repository) Insert(ctx context.Context, ins storage.Insert) (int64, error) {
	res, err := r.core.ExecContext(ctx, ins.SQL(dialect), ins.Args...)
	if err != nil {
		return 0, err
	}
	if ins.Returning == "" {
		return 0, nil
	}
	return res.LastInsertId()
}

// Exec runs a statement that returns no rows.
func (r *Repository) Exec(ctx context.Context, q string) error {
	_, err := r.core.ExecContext(ctx, q)
	return err
}

// resetStatements lists, in order, what Reset sends on its session.
func resetStatements(tables []string) []string {
	out := make([]string, 0, len(tables)+2)
	out = append(out, "SET FOREIGN_KEY_CHECKS = 0")
	for _, t := range tables {
		out = append(out, "TRUNCATE TABLE "+myIdent(t))
	}
	return append(out, "SET FOREIGN_KEY_CHECKS = 1")
}

// Reset truncates tables with foreign key checks disabled. TRUNCATE also
// rewinds AUTO_INCREMENT. Checks are re-enabled even when a TRUNCATE fails.
func (r *Repository) Reset(ctx context.Context, tables []string) error {
	c, err := r.conn(ctx)
	if err != nil {
		return fmt.Errorf("mysql: reset: %w", err)
	}
	defer c.Close()

	stmts := resetStatements(tables)
	last := stmts[len(stmts)-1]
	for _, q := range stmts[:len(stmts)-1] {
		if _, err := c.ExecContext(ctx, q); err != nil {
			_, _ = c.ExecContext(ctx, last)
			return fmt.Errorf("mysql: reset: %s: %w", q, err)
		}
	}
	if _, err := c.ExecContext(ctx, last); err != nil {
		return fmt.Errorf("mysql: reset: %w", err)
	}
	return nil
}

const describeSQL = `SELECT COLUMN_NAME, COLUMN_TYPE, EXTRA
FROM information_schema.COLUMNS
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
ORDER BY ORDINAL_POSITION`

// Describe reads the live column layout of table from information_schema.
func (r *Repository) Describe(ctx context.Context, table string) (schema.Table, error) {
	rows, err := r.db.QueryContext(ctx, describeSQL, table)
	if err != nil {
		return schema.Table{}, fmt.Errorf("mysql: describe %s: %w", table, err)
	}
	defer rows.Close()

	out := schema.Table{Name: table}
	for rows.Next() {
		var name, typ, extra string
		if err := rows.Scan(&name, &typ, &extra); err != nil {
			return schema.Table{}, fmt.Errorf("mysql: describe %s: %w", table, err)
		}
		col, err := describedColumn(name, typ, extra)
		if err != nil {
			return schema.Table{}, fmt.Errorf("mysql: describe %s: %w", table, err)
		}
		out.Columns = append(out.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return schema.Table{}, fmt.Errorf("mysql: describe %s: %w", table, err)
	}
	if len(out.Columns) == 0 {
		return schema.Table{}, fmt.Errorf("mysql: describe %s: table not found", table)
	}
	return out, nil
}

// describedColumn maps one information_schema row. MySQL reports the
// display width ("int(11)", "tinyint(1)"); only the base type matters.
func describedColumn(name, columnType, extra string) (schema.Column, error) {
	kind, err := schema.ParseKind(columnType)
	if err != nil {
		return schema.Column{}, fmt.Errorf("%s: %w", name, err)
	}
	return schema.Column{
		Name:     name,
		Type:     kind,
		Identity: strings.Contains(strings.ToLower(extra), "auto_increment"),
	}, nil
}
