// Package migrate evolves the canonical table by rebuilding it: rename the
// live table aside, create the target shape, copy rows forward, compute
// new columns, drop the aside copy. Every step runs in one transaction.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/franz/suno-catalog/internal/report"
	"github.com/franz/suno-catalog/internal/store"
	"github.com/franz/suno-catalog/internal/util"
)

// asideTable holds the previous shape while a step runs
const asideTable = store.SongsTable + "_old"

// DefaultBatchSize is the number of rows computed per query
const DefaultBatchSize = 1000

// Row holds the input columns of one old row, keyed by column name.
// Inputs the old table lacks are nil.
type Row map[string]any

// Computed fills one new column from an old row
type Computed struct {
	Column string
	Inputs []string
	Fn     func(id string, row Row) (any, error)
}

// Migration is one rebuild of the canonical table into a target shape
type Migration struct {
	Version  int
	Name     string
	Columns  []store.Column
	Computed []Computed
}

// Migrator applies pending migrations to a store
type Migrator struct {
	store      *store.Store
	logger     *report.EventLogger
	migrations []Migration
}

// Config holds migrator configuration
type Config struct {
	Store      *store.Store
	Logger     *report.EventLogger
	Migrations []Migration // ordered by version
}

// New creates a new Migrator
func New(cfg *Config) *Migrator {
	return &Migrator{
		store:      cfg.Store,
		logger:     cfg.Logger,
		migrations: cfg.Migrations,
	}
}

// Options controls a migration run
type Options struct {
	// AllowNarrowing permits steps that drop existing columns
	AllowNarrowing bool
	BatchSize      int
}

// Step is one pending migration with its effect on the column set
type Step struct {
	Migration Migration
	Added     []string
	Dropped   []string
}

// Plan lists the migrations above the recorded version and the columns
// each of them adds and drops
func (m *Migrator) Plan(ctx context.Context) ([]Step, error) {
	current, err := m.store.SongsVersion(ctx)
	if err != nil {
		return nil, err
	}

	live, err := store.TableColumns(m.store.DB(), store.SongsTable)
	if err != nil {
		return nil, err
	}

	var steps []Step
	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}
		target := columnNames(mig.Columns)
		steps = append(steps, Step{
			Migration: mig,
			Added:     difference(target, live),
			Dropped:   difference(live, target),
		})
		live = target
	}
	return steps, nil
}

// StepResult reports one applied step
type StepResult struct {
	Version     int
	Name        string
	Added       []string
	Dropped     []string
	Rows        int
	SkippedNoID int // rows without id in the old table, not carried forward
	Elapsed     time.Duration
}

// Result reports a migration run
type Result struct {
	From    int
	To      int
	Steps   []StepResult
	Columns []string
	Rows    int
}

// Run applies every pending step in a single transaction. Any failure
// rolls everything back and the canonical table keeps its prior shape.
// Steps that drop columns are refused unless opts.AllowNarrowing is set.
func (m *Migrator) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	from, err := m.store.SongsVersion(ctx)
	if err != nil {
		return nil, err
	}

	steps, err := m.Plan(ctx)
	if err != nil {
		return nil, err
	}

	for _, s := range steps {
		if len(s.Dropped) == 0 {
			continue
		}
		if !opts.AllowNarrowing {
			return nil, fmt.Errorf("v%d %s would drop %s: %w",
				s.Migration.Version, s.Migration.Name, strings.Join(s.Dropped, ", "), util.ErrNarrowing)
		}
		util.WarnLog("v%d %s drops columns: %s", s.Migration.Version, s.Migration.Name, strings.Join(s.Dropped, ", "))
	}

	result := &Result{From: from, To: from}
	if len(steps) == 0 {
		util.InfoLog("Schema is up to date (v%d)", from)
	}

	err = m.store.Transaction(ctx, func(tx *sql.Tx) error {
		for _, s := range steps {
			util.InfoLog("Applying v%d: %s", s.Migration.Version, s.Migration.Name)
			sr, err := m.apply(ctx, tx, s, opts.BatchSize)
			if err != nil {
				return fmt.Errorf("migration v%d (%s) failed: %w", s.Migration.Version, s.Migration.Name, err)
			}
			result.Steps = append(result.Steps, *sr)
			result.To = s.Migration.Version
		}
		return nil
	})
	if err != nil {
		for _, s := range steps {
			m.logger.LogError(report.EventMigrate, fmt.Sprintf("v%d", s.Migration.Version), err)
		}
		return nil, err
	}

	for _, sr := range result.Steps {
		m.logger.LogMigrate(sr.Version, sr.Name, sr.Rows, sr.Dropped, sr.Elapsed)
	}

	result.Columns, err = store.TableColumns(m.store.DB(), store.SongsTable)
	if err != nil {
		return nil, err
	}
	result.Rows, err = m.store.CountSongs(ctx)
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (m *Migrator) apply(ctx context.Context, tx *sql.Tx, s Step, batchSize int) (*StepResult, error) {
	start := time.Now()
	mig := s.Migration

	exists, err := store.TableExists(tx, asideTable)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("table %s already exists; an earlier rebuild was interrupted outside a transaction", asideTable)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", store.SongsTable, asideTable)); err != nil {
		return nil, fmt.Errorf("failed to move %s aside: %w", store.SongsTable, err)
	}

	if err := store.CreateSongsTable(tx, store.SongsTable, mig.Columns); err != nil {
		return nil, err
	}

	oldCols, err := store.TableColumns(tx, asideTable)
	if err != nil {
		return nil, err
	}
	shared := intersection(columnNames(mig.Columns), oldCols)

	quoted := make([]string, len(shared))
	for i, c := range shared {
		quoted[i] = store.QuoteIdent(c)
	}
	list := strings.Join(quoted, ", ")

	var nullIDs int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+asideTable+" WHERE id IS NULL").Scan(&nullIDs); err != nil {
		return nil, fmt.Errorf("failed to count rows without id: %w", err)
	}
	if nullIDs > 0 {
		util.WarnLog("Skipping %d row(s) without id", nullIDs)
	}

	copied, err := tx.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s WHERE id IS NOT NULL",
		store.SongsTable, list, list, asideTable))
	if err != nil {
		return nil, fmt.Errorf("failed to copy rows: %w", err)
	}
	rows, err := copied.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to count copied rows: %w", err)
	}

	if len(mig.Computed) > 0 {
		if err := computeColumns(ctx, tx, asideTable, oldCols, mig.Computed, batchSize, int(rows)); err != nil {
			return nil, err
		}
	}

	// Indexes follow the renamed table, so the aside copy goes first
	if _, err := tx.ExecContext(ctx, "DROP TABLE "+asideTable); err != nil {
		return nil, fmt.Errorf("failed to drop %s: %w", asideTable, err)
	}

	if err := store.CreateSongIndexes(tx, mig.Columns); err != nil {
		return nil, err
	}

	if err := store.SetSchemaVersion(tx, mig.Version); err != nil {
		return nil, err
	}

	return &StepResult{
		Version:     mig.Version,
		Name:        mig.Name,
		Added:       s.Added,
		Dropped:     s.Dropped,
		Rows:        int(rows),
		SkippedNoID: nullIDs,
		Elapsed:     time.Since(start),
	}, nil
}

// computeColumns reads inputs from src in id order and writes the computed
// values into the canonical table
func computeColumns(ctx context.Context, tx *sql.Tx, src string, srcCols []string, computed []Computed, batchSize, total int) error {
	available := make(map[string]bool, len(srcCols))
	for _, c := range srcCols {
		available[c] = true
	}

	// Union of inputs the source can provide
	var inputs []string
	seen := map[string]bool{"id": true}
	for _, c := range computed {
		for _, in := range c.Inputs {
			if !seen[in] && available[in] {
				inputs = append(inputs, in)
				seen[in] = true
			}
		}
	}

	selectCols := []string{"id"}
	for _, in := range inputs {
		selectCols = append(selectCols, store.QuoteIdent(in))
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id IS NOT NULL AND (? IS NULL OR id > ?) ORDER BY id LIMIT ?",
		strings.Join(selectCols, ", "), src)

	sets := make([]string, len(computed))
	for i, c := range computed {
		sets[i] = store.QuoteIdent(c.Column) + " = ?"
	}
	update, err := tx.PrepareContext(ctx, fmt.Sprintf("UPDATE %s SET %s WHERE id = ?",
		store.SongsTable, strings.Join(sets, ", ")))
	if err != nil {
		return fmt.Errorf("failed to prepare update: %w", err)
	}
	defer update.Close()

	bar := util.NewProgressBar(int64(total), "Computing", "rows")
	defer func() {
		if bar != nil {
			bar.Finish()
		}
	}()

	var after any
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := readBatch(ctx, tx, query, after, batchSize, inputs)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		for _, r := range batch {
			args := make([]any, 0, len(computed)+1)
			for _, c := range computed {
				v, err := c.Fn(r.id, r.row)
				if err != nil {
					return fmt.Errorf("failed to compute %s for %s: %w", c.Column, r.id, err)
				}
				args = append(args, v)
			}
			args = append(args, r.id)
			if _, err := update.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("failed to update %s: %w", r.id, err)
			}
		}

		after = batch[len(batch)-1].id
		if bar != nil {
			bar.Add(len(batch))
		}
	}
}

type inputRow struct {
	id  string
	row Row
}

func readBatch(ctx context.Context, tx *sql.Tx, query string, after any, limit int, inputs []string) ([]inputRow, error) {
	rows, err := tx.QueryContext(ctx, query, after, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch: %w", err)
	}
	defer rows.Close()

	var batch []inputRow
	for rows.Next() {
		var id string
		vals := make([]any, len(inputs))
		dest := make([]any, len(inputs)+1)
		dest[0] = &id
		for i := range vals {
			dest[i+1] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(Row, len(inputs))
		for i, in := range inputs {
			row[in] = vals[i]
		}
		batch = append(batch, inputRow{id: id, row: row})
	}
	return batch, rows.Err()
}

// RefreshLocality recomputes the locality flags in place, for media that
// was fetched after the last migration
func (m *Migrator) RefreshLocality(ctx context.Context, computed []Computed, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	cols, err := m.store.SongTableColumns(ctx)
	if err != nil {
		return 0, err
	}
	for _, c := range computed {
		if !cols[c.Column] {
			return 0, fmt.Errorf("column %s missing: %w", c.Column, util.ErrSchemaOutdated)
		}
	}

	total, err := m.store.CountSongs(ctx)
	if err != nil {
		return 0, err
	}

	live := make([]string, 0, len(cols))
	for c := range cols {
		live = append(live, c)
	}

	err = m.store.Transaction(ctx, func(tx *sql.Tx) error {
		return computeColumns(ctx, tx, store.SongsTable, live, computed, batchSize, total)
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func columnNames(cols []store.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// difference returns the elements of a not in b, in the order of a
func difference(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[s] = true
	}
	var out []string
	for _, s := range a {
		if !in[s] {
			out = append(out, s)
		}
	}
	return out
}

func intersection(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[s] = true
	}
	var out []string
	for _, s := range a {
		if in[s] {
			out = append(out, s)
		}
	}
	return out
}
