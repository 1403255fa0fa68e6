package parser

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FormatCSV, FormatFor("match.csv"))
	assert.Equal(t, FormatCSV, FormatFor("match"))
	assert.Equal(t, FormatXLSX, FormatFor("Match.XLSX"))
}

func TestNew_CSV(t *testing.T) {
	t.Parallel()

	rr, closer, err := New(FormatCSV, strings.NewReader("a,b\n"), Options{})
	require.NoError(t, err)
	require.NotNil(t, closer)
	defer closer.Close()

	row, err := rr.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, row)
	_, err = rr.Read()
	assert.Equal(t, io.EOF, err)
}

func TestNew_Unsupported(t *testing.T) {
	t.Parallel()

	_, _, err := New(Format("ods"), strings.NewReader(""), Options{})
	assert.Error(t, err)
}
