package prompt

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/franz/suno-catalog/internal/report"
	"github.com/franz/suno-catalog/internal/store"
	"github.com/franz/suno-catalog/internal/util"
)

// DefaultBatchSize is the number of rows updated per transaction
const DefaultBatchSize = 1000

// Enricher recomputes prompt_template and template_length for every row
type Enricher struct {
	store     *store.Store
	logger    *report.EventLogger
	batchSize int
}

// Config holds enricher configuration
type Config struct {
	Store     *store.Store
	Logger    *report.EventLogger
	BatchSize int
}

// NewEnricher creates a new Enricher
func NewEnricher(cfg *Config) *Enricher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Enricher{
		store:     cfg.Store,
		logger:    cfg.Logger,
		batchSize: cfg.BatchSize,
	}
}

// Result summarizes an enrichment pass
type Result struct {
	Rows         int
	WithTemplate int
	Elapsed      time.Duration
}

// Run walks the canonical table in id order and rewrites the derived
// template columns. Each batch commits on its own; an interrupted run
// can simply be repeated.
func (e *Enricher) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	cols, err := e.store.SongTableColumns(ctx)
	if err != nil {
		return nil, err
	}
	if !cols["prompt_template"] || !cols["template_length"] {
		return nil, fmt.Errorf("prompt_template columns missing: %w", util.ErrSchemaOutdated)
	}

	total, err := e.store.CountSongs(ctx)
	if err != nil {
		return nil, err
	}
	bar := util.NewProgressBar(int64(total), "Enriching", "rows")

	result := &Result{}
	var after any // nil until the first batch
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var n, withTemplate int
		err := e.store.Transaction(ctx, func(tx *sql.Tx) error {
			var err error
			n, withTemplate, after, err = e.enrichBatch(ctx, tx, after)
			return err
		})
		if err != nil {
			return result, err
		}
		if n == 0 {
			break
		}

		result.Rows += n
		result.WithTemplate += withTemplate
		if bar != nil {
			bar.Add(n)
		} else {
			util.DebugLog("Enriched %d/%d rows", result.Rows, total)
		}
	}

	if bar != nil {
		bar.Finish()
	}

	result.Elapsed = time.Since(start)
	e.logger.LogEnrich(result.Rows, result.WithTemplate, result.Elapsed)
	return result, nil
}

type pendingRow struct {
	id     string
	prompt sql.NullString
}

func (e *Enricher) enrichBatch(ctx context.Context, tx *sql.Tx, after any) (n, withTemplate int, last any, err error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT id, meta_prompt FROM "+store.SongsTable+" WHERE (? IS NULL OR id > ?) ORDER BY id LIMIT ?",
		after, after, e.batchSize)
	if err != nil {
		return 0, 0, after, fmt.Errorf("failed to read prompts: %w", err)
	}

	var batch []pendingRow
	for rows.Next() {
		var r pendingRow
		if err := rows.Scan(&r.id, &r.prompt); err != nil {
			rows.Close()
			return 0, 0, after, fmt.Errorf("failed to scan prompt: %w", err)
		}
		batch = append(batch, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, after, err
	}
	if len(batch) == 0 {
		return 0, 0, after, nil
	}

	stmt, err := tx.PrepareContext(ctx,
		"UPDATE "+store.SongsTable+" SET prompt_template = ?, template_length = ? WHERE id = ?")
	if err != nil {
		return 0, 0, after, fmt.Errorf("failed to prepare update: %w", err)
	}
	defer stmt.Close()

	for _, r := range batch {
		// NULL prompt: empty template
		tpl := Extract(r.prompt.String)
		if _, err := stmt.ExecContext(ctx, tpl.String(), tpl.Len(), r.id); err != nil {
			return 0, 0, after, fmt.Errorf("failed to update %s: %w", r.id, err)
		}
		if tpl.Len() > 0 {
			withTemplate++
		}
	}

	return len(batch), withTemplate, batch[len(batch)-1].id, nil
}

// Entry is one enriched row
type Entry struct {
	ID       string
	Title    string
	Length   int
	Template string
}

// Interesting lists rows whose template has more than minLen tokens,
// longest first
func (e *Enricher) Interesting(ctx context.Context, minLen, limit int) ([]Entry, error) {
	cols, err := e.store.SongTableColumns(ctx)
	if err != nil {
		return nil, err
	}
	if !cols["template_length"] {
		return nil, fmt.Errorf("template_length missing: %w", util.ErrSchemaOutdated)
	}

	query := `SELECT id, COALESCE(title, ''), template_length, COALESCE(prompt_template, '')
		FROM ` + store.SongsTable + `
		WHERE template_length > ?
		ORDER BY template_length DESC, id`
	args := []any{minLen}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := e.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var en Entry
		if err := rows.Scan(&en.ID, &en.Title, &en.Length, &en.Template); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		entries = append(entries, en)
	}
	return entries, rows.Err()
}
