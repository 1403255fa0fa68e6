package etl

import (
	"errors"
	"fmt"
	"io"

	"gamestats/internal/parser"
	"gamestats/internal/schema"
)

// state is the section scanner's position in an export.
type state int

const (
	seekingLabel state = iota
	loadingOverview
	loadingPerformance
	loadingRounds
	loadingEvents
	done
)

func (s state) String() string {
	switch s {
	case seekingLabel:
		return "SEEKING_LABEL"
	case loadingOverview:
		return "LOADING_OVERVIEW"
	case loadingPerformance:
		return "LOADING_PERFORMANCE"
	case loadingRounds:
		return "LOADING_ROUNDS"
	case loadingEvents:
		return "LOADING_EVENTS"
	case done:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// labelStates maps a marker label (second field of a row) to the state that
// loads its section.
var labelStates = map[string]state{
	schema.SectionOverview:    loadingOverview,
	schema.SectionPerformance: loadingPerformance,
	schema.SectionRounds:      loadingRounds,
	schema.SectionEvents:      loadingEvents,
}

var stateSections = map[state]string{
	loadingOverview:    schema.SectionOverview,
	loadingPerformance: schema.SectionPerformance,
	loadingRounds:      schema.SectionRounds,
	loadingEvents:      schema.SectionEvents,
}

// minFields is the width below which a row is a blank separator.
const minFields = 2

// labelOf returns the section state announced by row, if any.
func labelOf(row []string) (state, bool) {
	if len(row) < minFields {
		return seekingLabel, false
	}
	s, ok := labelStates[row[1]]
	return s, ok
}

// cursor reads rows with one row of pushback, so the row that ends a
// section can be looked at again as a possible label.
type cursor struct {
	r        parser.RowReader
	lines    parser.LineReporter // nil when the reader has no line numbers
	pending  []string
	pendLine int
	hasPend  bool
	eof      bool
	n        int // rows consumed, for error messages
	line     int // input line of the last returned row
}

func newCursor(r parser.RowReader) *cursor {
	c := &cursor{r: r}
	c.lines, _ = r.(parser.LineReporter)
	return c
}

// next returns the next row or io.EOF. Once the reader is exhausted every
// later call reports io.EOF without touching it again.
func (c *cursor) next() ([]string, error) {
	if c.hasPend {
		row := c.pending
		c.pending, c.hasPend = nil, false
		c.n++
		c.line = c.pendLine
		return row, nil
	}
	if c.eof {
		return nil, io.EOF
	}
	row, err := c.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			c.eof = true
			return nil, io.EOF
		}
		return nil, err
	}
	c.n++
	if c.lines != nil {
		c.line = c.lines.Line()
	}
	return row, nil
}

// unread pushes row back; the next call to next returns it.
func (c *cursor) unread(row []string) {
	c.pending, c.hasPend = row, true
	c.pendLine = c.line
	c.n--
}

// row reports the 1-based index of the most recently returned row.
func (c *cursor) row() int { return c.n }

// where describes the most recently returned row for error messages.
func (c *cursor) where() string {
	if c.lines == nil || c.line == 0 {
		return fmt.Sprintf("row %d", c.n)
	}
	return fmt.Sprintf("row %d (line %d)", c.n, c.line)
}
