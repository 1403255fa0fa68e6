// Package mssql implements a Microsoft SQL Server repository using
// go-mssqldb. Identity values are read back with an OUTPUT clause.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"gamestats/internal/schema"
	"gamestats/internal/storage"
)

// Config holds MSSQL repository configuration.
type Config struct {
	DSN string
}

// sqlCore abstracts the two shapes of statement the repository sends.
type sqlCore interface {
	ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error)
	QueryInt64(ctx context.Context, q string, args ...any) (int64, error)
}

type realSQLDB struct{ db *sql.DB }

func (r realSQLDB) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return r.db.ExecContext(ctx, q, args...)
}

func (r realSQLDB) QueryInt64(ctx context.Context, q string, args ...any) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	core sqlCore
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	return &Repository{core: realSQLDB{db: db}}, func() { _ = db.Close() }, nil
}

var dialect = storage.Dialect{
	Name:         "mssql",
	QuoteIdent:   msIdent,
	Placeholder:  func(i int) string { return fmt.Sprintf("@p%d", i) },
	ColumnType:   columnType,
	IdentityType: "INT IDENTITY(1,1) PRIMARY KEY",
	CreateTable: func(table, body string) string {
		return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s %s",
			strings.ReplaceAll(table, "'", "''"), msIdent(table), body)
	},
}

// msIdent brackets an identifier, doubling any embedded ']'.
func msIdent(s string) string { return storage.QuoteWith("[", "]")(s) }

func columnType(k schema.Kind) string {
	switch k {
	case schema.KindInt:
		return "INT"
	case schema.KindBigInt:
		return "BIGINT"
	case schema.KindFloat:
		return "FLOAT"
	case schema.KindDatetime:
		return "DATETIME2"
	case schema.KindTime:
		return "TIME"
	case schema.KindBoolean:
		return "BIT"
	default:
		return "NVARCHAR(255)"
	}
}

// Dialect implements storage.Repository.
func (r *Repository) Dialect() storage.Dialect { return dialect }

// Insert executes one INSERT. With Returning set, the generated value is
// read through OUTPUT INSERTED.<col>.
func (r *Repository) Insert(ctx context.Context, ins storage.Insert) (int64, error) {
	if ins.Returning == "" {
		_, err := r.core.ExecContext(ctx, ins.SQL(dialect), ins.Args...)
		return 0, err
	}
	q := ins.SQLWith(dialect, "OUTPUT INSERTED."+msIdent(ins.Returning), "")
	return r.core.QueryInt64(ctx, q, ins.Args...)
}

// Exec runs a statement that returns no rows.
func (r *Repository) Exec(ctx context.Context, q string) error {
	_, err := r.core.ExecContext(ctx, q)
	return err
}

// usedIdentitySQL counts identity columns that have handed out a value.
// Reseeding a never-used identity to 0 would make its first value 0.
const usedIdentitySQL = `SELECT COUNT(*) FROM sys.identity_columns
WHERE object_id = OBJECT_ID(@p1) AND last_value IS NOT NULL`

// Reset disables constraints, deletes every row, reseeds used identities and
// re-enables constraints with validation. SQL Server refuses TRUNCATE on a
// referenced table, hence DELETE.
func (r *Repository) Reset(ctx context.Context, tables []string) error {
	for _, t := range tables {
		if err := r.Exec(ctx, "ALTER TABLE "+msIdent(t)+" NOCHECK CONSTRAINT ALL"); err != nil {
			return fmt.Errorf("mssql: reset %s: %w", t, err)
		}
	}
	for _, t := range tables {
		if err := r.Exec(ctx, "DELETE FROM "+msIdent(t)); err != nil {
			return fmt.Errorf("mssql: reset %s: %w", t, err)
		}
		used, err := r.core.QueryInt64(ctx, usedIdentitySQL, t)
		if err != nil {
			return fmt.Errorf("mssql: reset %s: %w", t, err)
		}
		if used > 0 {
			reseed := fmt.Sprintf("DBCC CHECKIDENT ('%s', RESEED, 0)", strings.ReplaceAll(t, "'", "''"))
			if err := r.Exec(ctx, reseed); err != nil {
				return fmt.Errorf("mssql: reseed %s: %w", t, err)
			}
		}
	}
	for _, t := range tables {
		if err := r.Exec(ctx, "ALTER TABLE "+msIdent(t)+" WITH CHECK CHECK CONSTRAINT ALL"); err != nil {
			return fmt.Errorf("mssql: reset %s: %w", t, err)
		}
	}
	return nil
}
