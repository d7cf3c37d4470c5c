package store

import (
	"context"
	"fmt"
)

// Language is one row of the languages summary table.
// Name is empty when the code has no entry in the reference file.
type Language struct {
	Code  string `json:"language_code"`
	Name  string `json:"language"`
	Count int    `json:"count"`
}

// Model is one row of the models summary table
type Model struct {
	Name  string `json:"model_name"`
	Count int    `json:"count"`
}

// Languages reads the languages summary, most frequent first
func (s *Store) Languages(ctx context.Context) ([]Language, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT language_code, COALESCE(language, ''), COALESCE(count, 0)
		FROM languages
		ORDER BY count DESC, language_code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query languages: %w", err)
	}
	defer rows.Close()

	var langs []Language
	for rows.Next() {
		var l Language
		if err := rows.Scan(&l.Code, &l.Name, &l.Count); err != nil {
			return nil, fmt.Errorf("failed to scan language: %w", err)
		}
		langs = append(langs, l)
	}

	return langs, rows.Err()
}

// Models reads the models summary, most frequent first
func (s *Store) Models(ctx context.Context) ([]Model, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model_name, COALESCE(count, 0)
		FROM models
		ORDER BY count DESC, model_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}
	defer rows.Close()

	var models []Model
	for rows.Next() {
		var m Model
		if err := rows.Scan(&m.Name, &m.Count); err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		models = append(models, m)
	}

	return models, rows.Err()
}
