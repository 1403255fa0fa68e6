package storage

import (
	"context"
	"fmt"

	"gamestats/internal/schema"
)

// Introspect rebuilds base from the live database: table names and
// sections are kept, columns come from d. The result is validated.
func Introspect(ctx context.Context, d Describer, base *schema.Descriptor) (*schema.Descriptor, error) {
	out := &schema.Descriptor{
		Version:       base.Version,
		JunkShortfall: base.JunkShortfall,
		Tables:        make([]schema.Table, 0, len(base.Tables)),
	}
	for _, t := range base.Tables {
		live, err := d.Describe(ctx, t.Name)
		if err != nil {
			return nil, fmt.Errorf("storage: introspect: %w", err)
		}
		if len(live.Columns) == 0 {
			return nil, fmt.Errorf("storage: introspect: table %s not found", t.Name)
		}
		live.Name = t.Name
		live.Section = t.Section
		out.Tables = append(out.Tables, live)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("storage: introspect: %w", err)
	}
	return out, nil
}
