package schema

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Section labels as they appear in the second field of a marker row.
const (
	SectionOverview    = "MATCH OVERVIEW"
	SectionPerformance = "MATCH PERFORMANCE"
	SectionRounds      = "PLAYER ROUNDS DATA"
	SectionEvents      = "ROUND EVENTS BREAKDOWN"
)

// Sections lists the labels in file order. The overview comes first because
// it produces the match id the others reference.
var Sections = []string{SectionOverview, SectionPerformance, SectionRounds, SectionEvents}

// CurrentVersion is the only descriptor version this build understands.
const CurrentVersion = 1

// DefaultJunkShortfall is the historical tolerance for malformed trailing
// rows: a row whose field count is this many (or more) below the column count
// ends a section.
const DefaultJunkShortfall = 10

//go:embed gamestats.yaml
var defaultDescriptor []byte

// Descriptor is the versioned schema document consumed by the loader.
type Descriptor struct {
	Version       int     `yaml:"version"`
	JunkShortfall int     `yaml:"junk_shortfall,omitempty"`
	Tables        []Table `yaml:"tables"`
}

// Default returns the descriptor embedded in the binary.
func Default() (*Descriptor, error) {
	return Decode(bytes.NewReader(defaultDescriptor))
}

// LoadFile reads and validates a descriptor from path.
func LoadFile(path string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: open %s: %w", path, err)
	}
	defer f.Close()
	d, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("schema: %s: %w", path, err)
	}
	return d, nil
}

// Decode parses a YAML descriptor and validates it.
func Decode(r io.Reader) (*Descriptor, error) {
	var d Descriptor
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("schema: decode: %w", err)
	}
	if d.JunkShortfall == 0 {
		d.JunkShortfall = DefaultJunkShortfall
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Encode writes d as YAML.
func (d *Descriptor) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("schema: encode: %w", err)
	}
	return enc.Close()
}

// Validate checks structural invariants: a supported version, one table per
// known section, unique names and identity only in first position.
func (d *Descriptor) Validate() error {
	if d.Version != CurrentVersion {
		return fmt.Errorf("schema: unsupported descriptor version %d (want %d)", d.Version, CurrentVersion)
	}
	if d.JunkShortfall < 0 {
		return fmt.Errorf("schema: junk_shortfall must be >= 0, got %d", d.JunkShortfall)
	}

	known := map[string]bool{}
	for _, s := range Sections {
		known[s] = true
	}
	seenTable := map[string]bool{}
	seenSection := map[string]bool{}
	for i, t := range d.Tables {
		path := fmt.Sprintf("tables[%d]", i)
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("schema: %s: name must not be empty", path)
		}
		if seenTable[t.Name] {
			return fmt.Errorf("schema: %s: duplicate table %q", path, t.Name)
		}
		seenTable[t.Name] = true

		if !known[t.Section] {
			return fmt.Errorf("schema: %s: unknown section %q", path, t.Section)
		}
		if seenSection[t.Section] {
			return fmt.Errorf("schema: %s: section %q mapped twice", path, t.Section)
		}
		seenSection[t.Section] = true

		if len(t.Columns) == 0 {
			return fmt.Errorf("schema: %s (%s): no columns", path, t.Name)
		}
		seenCol := map[string]bool{}
		for j, c := range t.Columns {
			if c.Name == "" {
				return fmt.Errorf("schema: %s.columns[%d]: name must not be empty", path, j)
			}
			if seenCol[c.Name] {
				return fmt.Errorf("schema: %s.columns[%d]: duplicate column %q", path, j, c.Name)
			}
			seenCol[c.Name] = true
			if c.Type == "" {
				return fmt.Errorf("schema: %s.columns[%d] (%s): %w: empty", path, j, c.Name, ErrUnknownType)
			}
			if c.Identity && j != 0 {
				return fmt.Errorf("schema: %s.columns[%d] (%s): identity must be the first column", path, j, c.Name)
			}
		}
	}
	for _, s := range Sections {
		if !seenSection[s] {
			return fmt.Errorf("schema: no table for section %q", s)
		}
	}
	return nil
}

// Table returns the table fed by section.
func (d *Descriptor) Table(section string) (Table, bool) {
	for _, t := range d.Tables {
		if t.Section == section {
			return t, true
		}
	}
	return Table{}, false
}

// ResetOrder returns table names children-first, the order in which they
// can be emptied without violating foreign keys.
func (d *Descriptor) ResetOrder() []string {
	out := make([]string, 0, len(Sections))
	for i := len(Sections) - 1; i >= 0; i-- {
		if t, ok := d.Table(Sections[i]); ok {
			out = append(out, t.Name)
		}
	}
	return out
}
