package aggregate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/franz/suno-catalog/internal/report"
	"github.com/franz/suno-catalog/internal/store"
)

// Builder recomputes the summary tables from the canonical table
type Builder struct {
	store     *store.Store
	reference Reference
	logger    *report.EventLogger
}

// Config holds builder configuration
type Config struct {
	Store     *store.Store
	Reference Reference
	Logger    *report.EventLogger
}

// New creates a new Builder
func New(cfg *Config) *Builder {
	return &Builder{
		store:     cfg.Store,
		reference: cfg.Reference,
		logger:    cfg.Logger,
	}
}

// Summary holds the rebuilt tables as read back after commit
type Summary struct {
	Languages []store.Language
	Models    []store.Model
}

// Rebuild drops and recreates both summary tables in one transaction.
// The result depends only on the canonical rows and the reference.
func (b *Builder) Rebuild(ctx context.Context) (*Summary, error) {
	err := b.store.Transaction(ctx, func(tx *sql.Tx) error {
		if err := b.rebuildLanguages(ctx, tx); err != nil {
			return err
		}
		return b.rebuildModels(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	langs, err := b.store.Languages(ctx)
	if err != nil {
		return nil, err
	}
	models, err := b.store.Models(ctx)
	if err != nil {
		return nil, err
	}

	b.logger.LogAggregate("languages", len(langs))
	b.logger.LogAggregate("models", len(models))

	return &Summary{Languages: langs, Models: models}, nil
}

func (b *Builder) rebuildLanguages(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS languages"); err != nil {
		return fmt.Errorf("failed to drop languages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, store.LanguagesDDL); err != nil {
		return fmt.Errorf("failed to create languages: %w", err)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO languages (language_code, count)
		SELECT meta_prompt_lang, COUNT(*)
		FROM `+store.SongsTable+`
		WHERE meta_prompt_lang IS NOT NULL
		GROUP BY meta_prompt_lang
	`)
	if err != nil {
		return fmt.Errorf("failed to count languages: %w", err)
	}

	// Left join: codes without a reference entry keep a NULL name
	stmt, err := tx.PrepareContext(ctx, "UPDATE languages SET language = ? WHERE language_code = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare language update: %w", err)
	}
	defer stmt.Close()

	codes, err := languageCodes(ctx, tx)
	if err != nil {
		return err
	}
	for _, code := range codes {
		name, ok := b.reference[code]
		if !ok {
			continue
		}
		if _, err := stmt.ExecContext(ctx, name, code); err != nil {
			return fmt.Errorf("failed to name language %s: %w", code, err)
		}
	}

	return nil
}

func languageCodes(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT language_code FROM languages ORDER BY language_code")
	if err != nil {
		return nil, fmt.Errorf("failed to list language codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan language code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (b *Builder) rebuildModels(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS models"); err != nil {
		return fmt.Errorf("failed to drop models: %w", err)
	}
	if _, err := tx.ExecContext(ctx, store.ModelsDDL); err != nil {
		return fmt.Errorf("failed to create models: %w", err)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO models (model_name, count)
		SELECT model_name, COUNT(*)
		FROM `+store.SongsTable+`
		WHERE model_name IS NOT NULL
		GROUP BY model_name
	`)
	if err != nil {
		return fmt.Errorf("failed to count models: %w", err)
	}
	return nil
}
