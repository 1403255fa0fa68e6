// Package storage contains the backend-agnostic contract used by the loader
// and a small registry that maps a storage kind ("mysql", "postgres", ...) to
// a constructor. Backends register themselves from init; importing
// gamestats/internal/storage/all enables every built-in backend.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gamestats/internal/schema"
)

// Config selects and parameterizes a backend.
type Config struct {
	// Kind is the registered backend name, e.g. "mysql".
	Kind string
	// DSN is passed to the backend's driver unchanged.
	DSN string
}

// Repository is what the loader needs from a database: one INSERT per row
// with optional identity capture, raw statements for DDL, and the fixed
// four-table reset. Implementations hold a single connection.
type Repository interface {
	// Dialect describes quoting, placeholders and DDL types.
	Dialect() Dialect

	// Insert executes ins. When ins.Returning is set, the backend-assigned
	// value of that column is returned; otherwise the result is 0.
	Insert(ctx context.Context, ins Insert) (int64, error)

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, sql string) error

	// Reset empties tables (given children first) with referential checks
	// disabled for the duration.
	Reset(ctx context.Context, tables []string) error

	Close()
}

// Describer is implemented by backends that can report a table's live
// column layout.
type Describer interface {
	Describe(ctx context.Context, table string) (schema.Table, error)
}

// Factory constructs a Repository for a registered kind.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens a Repository for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds, sorted. The slice is a copy.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
