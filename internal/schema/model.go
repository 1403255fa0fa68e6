// Package schema describes the destination tables of a gamestats load: their
// column order, declared types and which section of the export feeds them.
//
// The descriptor replaces live schema introspection. Loads are driven by a
// versioned YAML document (an embedded default ships with the binary) so the
// coercion logic never needs a database round-trip to learn column layouts.
package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind is the normalized column type understood by the coercer.
type Kind string

const (
	KindInt      Kind = "int"
	KindBigInt   Kind = "bigint"
	KindFloat    Kind = "float"
	KindVarchar  Kind = "varchar"
	KindDatetime Kind = "datetime"
	KindTime     Kind = "time"
	KindBoolean  Kind = "boolean"
)

// ErrUnknownType is returned when a declared column type has no Kind.
var ErrUnknownType = errors.New("schema: unknown column type")

// kindAliases maps declared SQL type names (lowercased, without size or
// modifiers) to a Kind.
var kindAliases = map[string]Kind{
	"int":       KindInt,
	"integer":   KindInt,
	"smallint":  KindInt,
	"mediumint": KindInt,
	"bigint":    KindBigInt,
	"float":     KindFloat,
	"double":    KindFloat,
	"real":      KindFloat,
	"decimal":   KindFloat,
	"numeric":   KindFloat,
	"varchar":   KindVarchar,
	"char":      KindVarchar,
	"character": KindVarchar,
	"text":      KindVarchar,
	"nvarchar":  KindVarchar,
	"datetime":  KindDatetime,
	"timestamp": KindDatetime,
	"datetime2": KindDatetime,
	"time":      KindTime,
	"tinyint":   KindBoolean,
	"boolean":   KindBoolean,
	"bool":      KindBoolean,
	"bit":       KindBoolean,
}

var leadingWord = regexp.MustCompile(`^\s*(\w+)`)

// ParseKind reduces a declared type such as "int(11) unsigned" or "VARCHAR"
// to its Kind. Unknown types wrap ErrUnknownType.
func ParseKind(declared string) (Kind, error) {
	m := leadingWord.FindStringSubmatch(declared)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, declared)
	}
	k, ok := kindAliases[strings.ToLower(m[1])]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, declared)
	}
	return k, nil
}

// UnmarshalText lets descriptors spell types with any known alias.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Column is one destination column in positional order.
type Column struct {
	Name     string `yaml:"name"`
	Type     Kind   `yaml:"type"`
	Identity bool   `yaml:"identity,omitempty"` // backend-generated; never inserted
}

// Table maps one export section to one destination table.
type Table struct {
	Name    string   `yaml:"name"`
	Section string   `yaml:"section"`
	Columns []Column `yaml:"columns"`
}

// HasIdentity reports whether the table's first column is generated by the
// backend. Only the first column may be an identity.
func (t Table) HasIdentity() bool {
	return len(t.Columns) > 0 && t.Columns[0].Identity
}

// IdentityColumn returns the identity column name or "" when there is none.
func (t Table) IdentityColumn() string {
	if !t.HasIdentity() {
		return ""
	}
	return t.Columns[0].Name
}

// InsertColumns returns the column names sent in an INSERT, in order.
func (t Table) InsertColumns() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Identity {
			continue
		}
		out = append(out, c.Name)
	}
	return out
}
