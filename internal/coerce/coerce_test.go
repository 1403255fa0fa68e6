package coerce

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamestats/internal/schema"
)

func col(kind schema.Kind) schema.Column { return schema.Column{Name: "c", Type: kind} }

func newTestCoercer() *Coercer {
	return New(schema.Table{Name: "t", Columns: []schema.Column{{Name: "c", Type: schema.KindInt}}})
}

// TestField_Table walks the per-kind normalization table: sentinels become
// NULL, everything else becomes the documented literal.
func TestField_Table(t *testing.T) {
	t.Parallel()

	c := newTestCoercer()
	cases := []struct {
		name    string
		kind    schema.Kind
		raw     string
		literal string
	}{
		{"int_blank", schema.KindInt, "", "NULL"},
		{"int_dash", schema.KindInt, "-", "NULL"},
		{"int_undefined", schema.KindInt, "undefined", "NULL"},
		{"int_value", schema.KindInt, "42", "42"},
		{"int_negative", schema.KindInt, "-3", "-3"},

		{"bigint_nan", schema.KindBigInt, "NaN", "NULL"},
		{"bigint_value", schema.KindBigInt, "9000000000", "9000000000"},
		{"int_non_canonical", schema.KindInt, "12.0", "12.0"},

		{"float_blank", schema.KindFloat, "", "NULL"},
		{"float_nan", schema.KindFloat, "NaN", "NULL"},
		{"float_percent", schema.KindFloat, "87%", "0.87"},
		{"float_percent_fraction", schema.KindFloat, "12.5%", "0.125"},
		{"float_verbatim", schema.KindFloat, "1.35", "1.35"},

		{"varchar_blank", schema.KindVarchar, "", "NULL"},
		{"varchar_dash", schema.KindVarchar, "-", "NULL"},
		{"varchar_value", schema.KindVarchar, "Ascent", "'Ascent'"},
		{"varchar_quote", schema.KindVarchar, "O'Neil", "'O''Neil'"},

		{"time_sentinel", schema.KindTime, "aN:aN", "NULL"},
		{"time_value", schema.KindTime, "01:47", "'01:47'"},
		{"time_blank_passes", schema.KindTime, "", "''"},

		{"bool_blank", schema.KindBoolean, "", "NULL"},
		{"bool_true", schema.KindBoolean, "true", "1"},
		{"bool_false", schema.KindBoolean, "false", "0"},
		{"bool_other", schema.KindBoolean, "yes", "0"},

		{"datetime_iso", schema.KindDatetime, "2023-04-05T18:30:00", "'2023-04-05 18:30:00'"},
		{"datetime_us", schema.KindDatetime, "04/05/2023 18:30", "'2023-04-05 18:30:00'"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			v, err := c.Field(col(tc.kind), tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.literal, v.Literal())
		})
	}
}

func TestField_Args(t *testing.T) {
	t.Parallel()

	c := newTestCoercer()

	v, err := c.Field(col(schema.KindInt), "7")
	require.NoError(t, err)
	assert.Equal(t, "7", v.Arg)

	v, err = c.Field(col(schema.KindFloat), "87%")
	require.NoError(t, err)
	assert.InDelta(t, 0.87, v.Arg, 1e-12)
	assert.Equal(t, "0.87", v.Text)

	v, err = c.Field(col(schema.KindBoolean), "true")
	require.NoError(t, err)
	assert.Equal(t, true, v.Arg)

	v, err = c.Field(col(schema.KindFloat), "NaN")
	require.NoError(t, err)
	assert.True(t, v.Null)
	assert.Nil(t, Args([]Value{v})[0])
}

// TestField_TimePassThrough checks that any clock-shaped text other than the
// sentinel is forwarded untouched.
func TestField_TimePassThrough(t *testing.T) {
	t.Parallel()

	c := newTestCoercer()
	for m := 0; m < 60; m += 7 {
		for s := 0; s < 60; s += 11 {
			raw := pad(m) + ":" + pad(s)
			v, err := c.Field(col(schema.KindTime), raw)
			require.NoError(t, err)
			assert.Equal(t, raw, v.Text)
			assert.Equal(t, raw, v.Arg)
		}
	}
}

func pad(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func TestField_Errors(t *testing.T) {
	t.Parallel()

	c := newTestCoercer()
	cases := []struct {
		kind schema.Kind
		raw  string
	}{
		{schema.KindFloat, "%"},
		{schema.KindFloat, "high"},
		{schema.KindDatetime, ""},
		{schema.KindDatetime, "not a date"},
	}
	for _, tc := range cases {
		_, err := c.Field(col(tc.kind), tc.raw)
		require.Error(t, err, "%s %q", tc.kind, tc.raw)

		var fe *FieldError
		require.True(t, errors.As(err, &fe), "%v", err)
		assert.Equal(t, "t", fe.Table)
		assert.Equal(t, "c", fe.Column)
		assert.Equal(t, tc.raw, fe.Value)
	}
}

func TestField_UnknownKind(t *testing.T) {
	t.Parallel()

	_, err := newTestCoercer().Field(col(schema.Kind("geometry")), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, schema.ErrUnknownType))
}

func TestField_DatetimeParserOverride(t *testing.T) {
	t.Parallel()

	c := newTestCoercer()
	boom := errors.New("boom")
	c.ParseTime = func(string) (time.Time, error) { return time.Time{}, boom }

	_, err := c.Field(col(schema.KindDatetime), "2023-01-01")
	assert.True(t, errors.Is(err, boom))
}

func TestRow_PadsAndSkipsIdentity(t *testing.T) {
	t.Parallel()

	c := New(schema.Table{
		Name: "matches",
		Columns: []schema.Column{
			{Name: "match_id", Type: schema.KindInt, Identity: true},
			{Name: "map", Type: schema.KindVarchar},
			{Name: "score", Type: schema.KindInt},
			{Name: "ranked", Type: schema.KindBoolean},
		},
	})
	assert.Equal(t, []string{"map", "score", "ranked"}, c.Columns())

	vs, err := c.Row([]string{"Bind"})
	require.NoError(t, err)
	require.Len(t, vs, 3)
	assert.Equal(t, []string{"'Bind'", "NULL", "NULL"}, Literals(vs))

	vs, err = c.Row([]string{"Haven", "13", "true", "surplus", "fields"})
	require.NoError(t, err)
	assert.Equal(t, []string{"'Haven'", "13", "1"}, Literals(vs))
	assert.Equal(t, []any{"Haven", "13", true}, Args(vs))
}

// TestField_IntegerPassThrough checks that integer text is forwarded as
// written, even when it is not a canonical integer.
func TestField_IntegerPassThrough(t *testing.T) {
	t.Parallel()

	c := newTestCoercer()
	for _, kind := range []schema.Kind{schema.KindInt, schema.KindBigInt} {
		for _, raw := range []string{"12.0", " 13", "13 ", "1e3", "abc"} {
			v, err := c.Field(col(kind), raw)
			require.NoError(t, err, "%s %q", kind, raw)
			assert.False(t, v.Null)
			assert.Equal(t, raw, v.Text)
			assert.Equal(t, raw, v.Arg)
			assert.Equal(t, raw, v.Literal())
		}
	}
}
