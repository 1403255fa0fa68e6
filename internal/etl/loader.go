// Package etl loads one match export into the four destination tables.
//
// An export is a single file holding labeled sections. The scanner walks the
// rows looking for section labels; each label hands the following rows to the
// loader for the table that section feeds. The overview section produces the
// match id, which every later section writes as its foreign key.
package etl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gamestats/internal/coerce"
	"gamestats/internal/datasource"
	"gamestats/internal/datasource/file"
	"gamestats/internal/metrics"
	"gamestats/internal/parser"
	"gamestats/internal/schema"
	"gamestats/internal/storage"
)

var (
	// ErrIncomplete means the input ended before the events section was
	// loaded. Rows inserted up to that point are kept.
	ErrIncomplete = errors.New("etl: input ended before the ROUND EVENTS BREAKDOWN section")

	// ErrNoMatchID means a child section appeared before any overview row
	// had produced a match id.
	ErrNoMatchID = errors.New("etl: section has no preceding MATCH OVERVIEW")
)

// DefaultJob labels metrics when Options.Job is empty.
const DefaultJob = "gamestats"

// Options tunes a Loader.
type Options struct {
	// JunkShortfall overrides the descriptor's junk shortfall when > 0.
	JunkShortfall int
	// Sheet selects the workbook sheet for XLSX exports.
	Sheet  string
	Logger zerolog.Logger
	Job    string
}

// Loader drives exports into a repository. It is not safe for concurrent
// use; loads are sequential on a single connection.
type Loader struct {
	repo      storage.Repository
	desc      *schema.Descriptor
	log       zerolog.Logger
	shortfall int
	sheet     string
	job       string
	coercers  map[string]*coerce.Coercer
}

// NewLoader validates desc and prepares one coercer per section.
func NewLoader(repo storage.Repository, desc *schema.Descriptor, opt Options) (*Loader, error) {
	if repo == nil {
		return nil, errors.New("etl: nil repository")
	}
	if desc == nil {
		return nil, errors.New("etl: nil schema descriptor")
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	l := &Loader{
		repo:      repo,
		desc:      desc,
		log:       opt.Logger,
		shortfall: desc.JunkShortfall,
		sheet:     opt.Sheet,
		job:       opt.Job,
		coercers:  make(map[string]*coerce.Coercer, len(schema.Sections)),
	}
	if opt.JunkShortfall > 0 {
		l.shortfall = opt.JunkShortfall
	}
	if l.job == "" {
		l.job = DefaultJob
	}
	for _, s := range schema.Sections {
		t, _ := desc.Table(s)
		l.coercers[s] = coerce.New(t)
	}
	return l, nil
}

// Result summarizes one load. On failure it still reports what was inserted
// before the error.
type Result struct {
	RunID    string
	File     string
	MatchID  int64
	Inserted map[string]int
	Skipped  int
	Checksum string
	Duration time.Duration

	matched bool
}

// Rows returns the total number of inserted rows.
func (r *Result) Rows() int {
	n := 0
	for _, c := range r.Inserted {
		n += c
	}
	return n
}

// Reset empties every destination table, children first.
func (l *Loader) Reset(ctx context.Context) error {
	tables := l.desc.ResetOrder()
	if err := l.repo.Reset(ctx, tables); err != nil {
		return fmt.Errorf("etl: reset: %w", err)
	}
	l.log.Info().Strs("tables", tables).Msg("tables reset")
	return nil
}

// LoadFile opens path (decompressing .gz/.zst), picks the CSV or XLSX reader
// from the remaining extension and loads it. The checksum in the result
// covers the whole decoded file.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Result, error) {
	return l.loadSource(ctx, file.NewLocal(path), path)
}

func (l *Loader) loadSource(ctx context.Context, src datasource.Source, path string) (*Result, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		err = fmt.Errorf("etl: %w", err)
		metrics.RecordLoad(l.job, err)
		return nil, err
	}
	defer rc.Close()

	rows, closer, err := parser.New(parser.FormatFor(file.TrimCompression(path)), rc, parser.Options{Sheet: l.sheet})
	if err != nil {
		err = fmt.Errorf("etl: %s: %w", path, err)
		metrics.RecordLoad(l.job, err)
		return nil, err
	}
	defer closer.Close()
	if sr, ok := rows.(parser.SheetReporter); ok {
		l.log.Info().Str("file", path).Str("sheet", sr.Sheet()).Msg("reading workbook sheet")
	}

	res, err := l.run(ctx, rows, path)
	if err != nil {
		return res, err
	}

	// Rows after the events section are never scanned; read them anyway so
	// the digest covers the file.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return res, fmt.Errorf("etl: %s: drain: %w", path, err)
	}
	if cs, ok := rc.(datasource.Checksummer); ok {
		res.Checksum = cs.Checksum()
	}
	l.log.Info().
		Str("run_id", res.RunID).
		Str("file", path).
		Str("checksum", res.Checksum).
		Msg("file checksum")
	return res, nil
}

// Load scans rows until the events section has been loaded.
func (l *Loader) Load(ctx context.Context, rows parser.RowReader) (*Result, error) {
	return l.run(ctx, rows, "")
}

func (l *Loader) run(ctx context.Context, rows parser.RowReader, name string) (*Result, error) {
	res := &Result{
		RunID:    uuid.NewString(),
		File:     name,
		Inserted: make(map[string]int, len(schema.Sections)),
	}
	log := l.log.With().Str("run_id", res.RunID).Str("file", name).Logger()
	log.Info().Int("junk_shortfall", l.shortfall).Msg("load started")

	start := time.Now()
	err := l.scan(ctx, log, newCursor(rows), res)
	res.Duration = time.Since(start)
	metrics.RecordLoad(l.job, err)

	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	ev.Int64("match_id", res.MatchID).
		Int("rows", res.Rows()).
		Int("skipped", res.Skipped).
		Dur("duration", res.Duration).
		Msg("load finished")
	return res, err
}

// scan is the label state machine.
func (l *Loader) scan(ctx context.Context, log zerolog.Logger, cur *cursor, res *Result) error {
	st := seekingLabel
	lastTable := ""
	for st != done {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := cur.next()
		if errors.Is(err, io.EOF) {
			return ErrIncomplete
		}
		if err != nil {
			return fmt.Errorf("etl: read row %d: %w", cur.row()+1, err)
		}

		next, ok := labelOf(row)
		if !ok {
			if len(row) >= minFields {
				res.Skipped++
				metrics.RecordRows(l.job, lastTable, metrics.RowSkippedJunk, 1)
				log.Debug().Int("row", cur.row()).Int("fields", len(row)).Msg("row ignored")
			}
			continue
		}

		section := stateSections[next]
		log.Debug().Stringer("from", st).Stringer("to", next).Str("at", cur.where()).Msg("section label")
		st = next

		// Exactly one header row follows a label.
		if _, err := cur.next(); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("etl: %s: read header: %w", section, err)
		}

		table, err := l.loadSection(ctx, log, cur, section, res)
		if err != nil {
			return err
		}
		lastTable = table

		if st == loadingEvents {
			st = done
		} else {
			st = seekingLabel
		}
	}
	log.Debug().Stringer("state", st).Msg("scan complete")
	return nil
}

// loadSection inserts rows until one is too short to be data or the input
// ends. The short row is pushed back for the scanner.
func (l *Loader) loadSection(ctx context.Context, log zerolog.Logger, cur *cursor, section string, res *Result) (tableName string, err error) {
	c := l.coercers[section]
	table := c.Table()
	identity := table.HasIdentity()

	start := time.Now()
	var inserted int64
	defer func() {
		metrics.RecordSection(l.job, section, err, time.Since(start))
		metrics.RecordRows(l.job, table.Name, metrics.RowInserted, inserted)
	}()

	if !identity && !res.matched {
		return table.Name, fmt.Errorf("%w: %s", ErrNoMatchID, section)
	}
	if identity && res.matched {
		log.Warn().Int64("match_id", res.MatchID).Msg("second overview section; match id will be replaced")
	}

	// A data row must be wider than this.
	minWidth := len(table.Columns) - l.shortfall

	for {
		if err := ctx.Err(); err != nil {
			return table.Name, err
		}
		row, err := cur.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return table.Name, fmt.Errorf("etl: %s: read row %d: %w", section, cur.row()+1, err)
		}
		if len(row) < minFields || len(row) <= minWidth {
			cur.unread(row)
			break
		}

		var fields []string
		if identity {
			fields = row[1:]
		} else {
			fields = make([]string, 0, len(row)-1)
			fields = append(fields, strconv.FormatInt(res.MatchID, 10))
			fields = append(fields, row[2:]...)
		}
		vs, err := c.Row(fields)
		if err != nil {
			return table.Name, fmt.Errorf("etl: %s %s: %w", section, cur.where(), err)
		}

		id, err := storage.ExecInsert(ctx, l.repo, storage.Insert{
			Table:     table.Name,
			Columns:   c.Columns(),
			Args:      coerce.Args(vs),
			Literals:  coerce.Literals(vs),
			Returning: table.IdentityColumn(),
		})
		if err != nil {
			return table.Name, fmt.Errorf("etl: %s %s: %w", section, cur.where(), err)
		}
		if identity {
			res.MatchID, res.matched = id, true
		}
		inserted++
		res.Inserted[table.Name]++
	}

	log.Info().
		Str("section", section).
		Str("table", table.Name).
		Int64("rows", inserted).
		Int64("match_id", res.MatchID).
		Dur("elapsed", time.Since(start)).
		Msg("section loaded")
	return table.Name, nil
}
