package coerce

import "gamestats/internal/schema"

// nullSentinels lists, per column kind, the raw field values the export uses
// to mean "no value". Everything that knows about "-", "undefined", "NaN" or
// "aN:aN" reads it from here.
var nullSentinels = map[schema.Kind][]string{
	schema.KindInt:      {"", "-", "undefined"},
	schema.KindBigInt:   {"", "-", "undefined", "NaN"},
	schema.KindFloat:    {"", "NaN"},
	schema.KindVarchar:  {"", "-"},
	schema.KindDatetime: nil,
	schema.KindTime:     {"aN:aN"},
	schema.KindBoolean:  {""},
}

// boolTrue is the only raw value read as a true boolean.
const boolTrue = "true"

// percentSuffix marks a fractional field expressed as a percentage.
const percentSuffix = "%"

// isNull reports whether raw is a null sentinel for kind.
func isNull(kind schema.Kind, raw string) bool {
	for _, s := range nullSentinels[kind] {
		if raw == s {
			return true
		}
	}
	return false
}
