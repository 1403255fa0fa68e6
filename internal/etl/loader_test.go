package etl

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"gamestats/internal/coerce"
	"gamestats/internal/metrics"
	"gamestats/internal/parser"
	"gamestats/internal/schema"
	"gamestats/internal/storage"
	"gamestats/internal/storage/sqlite"
)

/*
Fixture rows. Field counts follow the export layout: overview rows carry a
leading blank then 14 values; child rows carry two leading fields then the
table's non-key columns.
*/

func overviewRow(mapName string) []string {
	return []string{"", "2024-03-01 19:42:11", mapName, "Competitive", "Alpha", "Bravo",
		"13", "11", "7", "5", "6", "6", "24", "38:12", "true"}
}

func performanceRow(player string) []string {
	return []string{"", "1", player, "Alpha", "Jett", "Diamond 2", "245.3", "21", "15", "4", "6",
		"1.4", "150.2", "27%", "75%", "3", "2", "4", "1", "0", "3600", "65"}
}

func roundRow(round, player string) []string {
	return []string{"", "r", round, player, "Alpha", "Attack", "Jett", "2", "0", "1", "300", "1",
		"3900", "3900", "100", "Vandal", "Heavy", "true", "false"}
}

func eventRow(round string) []string {
	return []string{"", "e", round, "0:42", "kill", "ace", "Alpha", "bob", "Bravo", "Vandal", "true",
		"10.5", "-3", "NaN", ""}
}

func label(s string) []string { return []string{"", s} }

func header(n int) []string {
	h := make([]string, n)
	for i := range h {
		h[i] = "col"
	}
	return h
}

func toCSV(rows ...[]string) string {
	var b strings.Builder
	for _, r := range rows {
		b.WriteString(strings.Join(r, ","))
		b.WriteByte('\n')
	}
	return b.String()
}

// fullExport is a well-formed four-section file. Labels follow data rows
// directly in places, with no blank separator.
func fullExport() [][]string {
	return [][]string{
		{"Match export"},
		label(schema.SectionOverview), header(15),
		overviewRow("Ascent"),
		{},
		label(schema.SectionPerformance), header(22),
		performanceRow("ace"), performanceRow("bob"),
		label(schema.SectionRounds), header(19),
		roundRow("1", "ace"), roundRow("1", "bob"),
		{""},
		label(schema.SectionEvents), header(15),
		eventRow("1"), eventRow("2"),
	}
}

type harness struct {
	db     *sql.DB
	loader *Loader
}

func newHarness(tb testing.TB, opt Options) *harness {
	tb.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = db.Close() })

	repo := sqlite.New(db)
	desc, err := schema.Default()
	require.NoError(tb, err)
	require.NoError(tb, storage.EnsureTables(context.Background(), repo, desc))

	opt.Logger = zerolog.Nop()
	l, err := NewLoader(repo, desc, opt)
	require.NoError(tb, err)
	return &harness{db: db, loader: l}
}

func (h *harness) load(tb testing.TB, rows ...[]string) (*Result, error) {
	tb.Helper()
	rr, _, err := parser.New(parser.FormatCSV, strings.NewReader(toCSV(rows...)), parser.Options{})
	require.NoError(tb, err)
	return h.loader.Load(context.Background(), rr)
}

func (h *harness) count(tb testing.TB, query string, args ...any) int {
	tb.Helper()
	var n int
	require.NoError(tb, h.db.QueryRow(query, args...).Scan(&n))
	return n
}

func (h *harness) counts(tb testing.TB) map[string]int {
	tb.Helper()
	out := map[string]int{}
	for _, t := range []string{"matches", "performance", "player_rounds", "round_events"} {
		out[t] = h.count(tb, `SELECT count(*) FROM "`+t+`"`)
	}
	return out
}

/*
Unit tests
*/

func TestLoad_FullExport(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	res, err := h.load(t, fullExport()...)
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.MatchID)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, map[string]int{"matches": 1, "performance": 2, "player_rounds": 2, "round_events": 2}, res.Inserted)
	assert.Equal(t, 7, res.Rows())
	assert.Equal(t, map[string]int{"matches": 1, "performance": 2, "player_rounds": 2, "round_events": 2}, h.counts(t))

	for _, table := range []string{"performance", "player_rounds", "round_events"} {
		assert.Equal(t, 0, h.count(t, `SELECT count(*) FROM "`+table+`" WHERE match_id <> ?`, res.MatchID), table)
	}

	var (
		mapName string
		ranked  int
		kast    float64
		victimX sql.NullFloat64
		hs      int
	)
	require.NoError(t, h.db.QueryRow(`SELECT map, ranked FROM matches`).Scan(&mapName, &ranked))
	assert.Equal(t, "Ascent", mapName)
	assert.Equal(t, 1, ranked)
	require.NoError(t, h.db.QueryRow(`SELECT kast FROM performance WHERE player = 'ace'`).Scan(&kast))
	assert.InDelta(t, 0.75, kast, 1e-9)
	require.NoError(t, h.db.QueryRow(`SELECT victim_x, headshot FROM round_events WHERE round = 1`).Scan(&victimX, &hs))
	assert.False(t, victimX.Valid)
	assert.Equal(t, 1, hs)
}

func TestLoad_JunkRowEndsSectionAndIsSkipped(t *testing.T) {
	t.Parallel()

	rows := fullExport()
	// A totals line after the performance rows: wide enough to not be a
	// blank separator, far too narrow to be data.
	withJunk := append([][]string{}, rows[:9]...)
	withJunk = append(withJunk, []string{"", "Totals", "42"})
	withJunk = append(withJunk, rows[9:]...)

	h := newHarness(t, Options{})
	res, err := h.load(t, withJunk...)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, res.Inserted["performance"])
	assert.Equal(t, 2, res.Inserted["player_rounds"])
}

func TestLoad_UnknownLabelsAndPreamble(t *testing.T) {
	t.Parallel()

	rows := append([][]string{label("TEAM COMPOSITION"), {"", "x", "y"}}, fullExport()...)
	h := newHarness(t, Options{})
	res, err := h.load(t, rows...)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 7, res.Rows())
}

func TestLoad_StopsAfterEvents(t *testing.T) {
	t.Parallel()

	rows := append(fullExport(), label(schema.SectionOverview), header(15), overviewRow("Bind"))
	h := newHarness(t, Options{})
	res, err := h.load(t, rows...)
	require.NoError(t, err)
	assert.Equal(t, 1, h.counts(t)["matches"])
	assert.Equal(t, int64(1), res.MatchID)
}

func TestLoad_Incomplete(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	res, err := h.load(t, fullExport()[:9]...)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIncomplete)
	require.NotNil(t, res)
	assert.Equal(t, 3, res.Rows())
	assert.Equal(t, 2, h.counts(t)["performance"])
}

func TestLoad_EmptyInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	_, err := h.load(t)
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestLoad_EventsLabelAtEOF(t *testing.T) {
	t.Parallel()

	rows := fullExport()[:14]
	rows = append(rows, label(schema.SectionEvents))
	h := newHarness(t, Options{})
	res, err := h.load(t, rows...)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted["round_events"])
}

func TestLoad_ChildBeforeOverview(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	_, err := h.load(t, label(schema.SectionPerformance), header(22), performanceRow("ace"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoMatchID)
	assert.Contains(t, err.Error(), schema.SectionPerformance)
	assert.Equal(t, 0, h.counts(t)["performance"])
}

func TestLoad_SecondOverviewReplacesMatchID(t *testing.T) {
	t.Parallel()

	rows := [][]string{
		label(schema.SectionOverview), header(15), overviewRow("Ascent"),
		label(schema.SectionOverview), header(15), overviewRow("Bind"),
	}
	rows = append(rows, fullExport()[5:]...)

	h := newHarness(t, Options{})
	res, err := h.load(t, rows...)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.MatchID)
	assert.Equal(t, 4, h.count(t, `SELECT count(*) FROM performance WHERE match_id = 2`)+
		h.count(t, `SELECT count(*) FROM player_rounds WHERE match_id = 2`))
}

func TestLoad_CoercionErrorAborts(t *testing.T) {
	t.Parallel()

	rows := fullExport()
	bad := overviewRow("Ascent")
	bad[1] = "not a date"
	rows[3] = bad

	h := newHarness(t, Options{})
	_, err := h.load(t, rows...)
	require.Error(t, err)

	var fe *coerce.FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "played_at", fe.Column)
	assert.Contains(t, err.Error(), "row 4 (line 4)")
	assert.Equal(t, 0, h.counts(t)["matches"])
}

func TestLoad_ErrorReportsInputLine(t *testing.T) {
	t.Parallel()

	// Two blank lines precede the last event row, so its line runs two
	// ahead of its row number.
	rows := fullExport()
	bad := eventRow("2")
	bad[11] = "left"
	rows[len(rows)-1] = bad

	h := newHarness(t, Options{})
	res, err := h.load(t, rows...)
	require.Error(t, err)

	var fe *coerce.FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "actor_x", fe.Column)
	assert.Contains(t, err.Error(), "row 16 (line 18)")
	assert.Equal(t, 1, res.Inserted["round_events"])
}

func TestLoad_DefaultShortfallBoundary(t *testing.T) {
	t.Parallel()

	// round_events has 14 columns and the default shortfall is 10: a row
	// must carry more than 4 fields to be data.
	h := newHarness(t, Options{})
	res, err := h.load(t, append(fullExport(), eventRow("3")[:4])...)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted["round_events"])

	h = newHarness(t, Options{})
	res, err = h.load(t, append(fullExport(), eventRow("3")[:5])...)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted["round_events"])
	assert.Equal(t, 1, h.count(t, `SELECT count(*) FROM round_events WHERE round = 3 AND event = 'kill' AND actor IS NULL`))
}

func TestLoad_ShortfallOverride(t *testing.T) {
	t.Parallel()

	// 12 fields against 14 columns. With a shortfall of 2 the row is junk;
	// with the descriptor's 10 it is data.
	short := eventRow("3")[:12]
	rows := append(fullExport(), short)

	h := newHarness(t, Options{JunkShortfall: 2})
	res, err := h.load(t, rows...)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted["round_events"])

	h = newHarness(t, Options{})
	res, err = h.load(t, rows...)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted["round_events"])
}

func TestReset_EmptiesTables(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	_, err := h.load(t, fullExport()...)
	require.NoError(t, err)

	require.NoError(t, h.loader.Reset(context.Background()))
	for table, n := range h.counts(t) {
		assert.Equal(t, 0, n, table)
	}

	res, err := h.load(t, fullExport()...)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.MatchID)
}

func TestNewLoader_Errors(t *testing.T) {
	t.Parallel()

	desc, err := schema.Default()
	require.NoError(t, err)

	_, err = NewLoader(nil, desc, Options{})
	assert.Error(t, err)

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	_, err = NewLoader(sqlite.New(db), nil, Options{})
	assert.Error(t, err)

	bad := *desc
	bad.Version = 99
	_, err = NewLoader(sqlite.New(db), &bad, Options{})
	assert.Error(t, err)
}

func TestLoadFile_Gzip(t *testing.T) {
	t.Parallel()

	data := toCSV(append(fullExport(), []string{"", "trailing", "row"})...)
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "match.csv.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	h := newHarness(t, Options{})
	res, err := h.loader.LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, res.File)
	assert.Equal(t, 7, res.Rows())
	assert.Len(t, res.Checksum, 16)

	// The checksum covers decoded bytes, so the plain file hashes the same.
	plain := filepath.Join(t.TempDir(), "match.csv")
	require.NoError(t, os.WriteFile(plain, []byte(data), 0o644))
	h2 := newHarness(t, Options{})
	res2, err := h2.loader.LoadFile(context.Background(), plain)
	require.NoError(t, err)
	assert.Equal(t, res.Checksum, res2.Checksum)
}

func TestLoadFile_XLSX(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	f.NewSheet("Export")
	line := 1
	for _, row := range fullExport() {
		if len(row) == 0 {
			continue
		}
		cells := make([]interface{}, len(row))
		for i, v := range row {
			cells[i] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, line)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Export", cell, &cells))
		line++
	}
	path := filepath.Join(t.TempDir(), "match.xlsx")
	require.NoError(t, f.SaveAs(path))

	var logs bytes.Buffer
	h := newHarness(t, Options{Sheet: "Export"})
	h.loader.log = zerolog.New(&logs)
	res, err := h.loader.LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"matches": 1, "performance": 2, "player_rounds": 2, "round_events": 2}, res.Inserted)
	assert.Contains(t, logs.String(), `"sheet":"Export"`)
}

func TestLoadFile_Missing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	_, err := h.loader.LoadFile(context.Background(), filepath.Join(t.TempDir(), "none.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// recorder captures metric calls.
type recorder struct {
	mu       sync.Mutex
	counters map[string]float64
}

func (r *recorder) IncCounter(name string, v float64, l metrics.Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := name
	if k, ok := l["kind"]; ok {
		key += "/" + l["table"] + "/" + k
	}
	if s, ok := l["status"]; ok {
		key += "/" + s
	}
	r.counters[key] += v
}

func (r *recorder) ObserveHistogram(string, float64, metrics.Labels) {}
func (r *recorder) Flush() error                                     { return nil }

// Not parallel: installs a process-wide metrics backend.
func TestLoad_RecordsMetrics(t *testing.T) {
	rec := &recorder{counters: map[string]float64{}}
	metrics.SetBackend(rec)
	t.Cleanup(func() { metrics.SetBackend(nil) })

	rows := fullExport()
	withJunk := append([][]string{}, rows[:9]...)
	withJunk = append(withJunk, []string{"", "Totals", "42"})
	withJunk = append(withJunk, rows[9:]...)

	h := newHarness(t, Options{Job: "test"})
	_, err := h.load(t, withJunk...)
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1.0, rec.counters[metrics.LoadsTotal+"/success"])
	assert.Equal(t, 4.0, rec.counters[metrics.SectionTotal+"/success"])
	assert.Equal(t, 2.0, rec.counters[metrics.RowsTotal+"/performance/"+metrics.RowInserted])
	assert.Equal(t, 1.0, rec.counters[metrics.RowsTotal+"/performance/"+metrics.RowSkippedJunk])
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "SEEKING_LABEL", seekingLabel.String())
	assert.Equal(t, "LOADING_EVENTS", loadingEvents.String())
	assert.Equal(t, "DONE", done.String())
	assert.Equal(t, "UNKNOWN", state(42).String())
}
