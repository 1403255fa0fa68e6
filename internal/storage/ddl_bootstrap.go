package storage

import (
	"context"
	"fmt"
	"strings"

	"gamestats/internal/schema"
)

// CreateTableSQL builds the DDL for t in dialect d. When parent is non-nil
// and has an identity column, t's first column references it.
func CreateTableSQL(d Dialect, t schema.Table, parent *schema.Table) string {
	lines := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		typ := d.ColumnType(c.Type)
		if c.Identity {
			typ = d.IdentityType
		}
		lines = append(lines, fmt.Sprintf("  %s %s", d.QuoteIdent(c.Name), typ))
	}
	if parent != nil && parent.HasIdentity() && !t.HasIdentity() {
		lines = append(lines, fmt.Sprintf("  FOREIGN KEY (%s) REFERENCES %s (%s)",
			d.QuoteIdent(t.Columns[0].Name), d.QuoteIdent(parent.Name), d.QuoteIdent(parent.IdentityColumn())))
	}
	body := "(\n" + strings.Join(lines, ",\n") + "\n)"

	if d.CreateTable != nil {
		return d.CreateTable(t.Name, body)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s %s", d.QuoteIdent(t.Name), body)
}

// EnsureTables creates every table in desc that does not exist yet, parents
// before children. Existing tables are left untouched; there is no ALTER.
func EnsureTables(ctx context.Context, repo Repository, desc *schema.Descriptor) error {
	parent, ok := desc.Table(schema.SectionOverview)
	if !ok {
		return fmt.Errorf("storage: descriptor has no %q table", schema.SectionOverview)
	}
	for _, section := range schema.Sections {
		t, _ := desc.Table(section)
		var p *schema.Table
		if section != schema.SectionOverview {
			p = &parent
		}
		if err := repo.Exec(ctx, CreateTableSQL(repo.Dialect(), t, p)); err != nil {
			return fmt.Errorf("storage: create table %s: %w", t.Name, err)
		}
	}
	return nil
}
