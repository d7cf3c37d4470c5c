package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/franz/suno-catalog/internal/util"
)

// Song is the read model of one canonical row
type Song struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Handle         string  `json:"handle"`
	DisplayName    string  `json:"display_name"`
	CreatedAt      string  `json:"created_at"`
	Prompt         string  `json:"prompt"`
	Tags           string  `json:"tags"`
	Duration       float64 `json:"duration"`
	PlayCount      int64   `json:"play_count"`
	UpvoteCount    int64   `json:"upvote_count"`
	Language       string  `json:"language"`
	ModelName      string  `json:"model_name"`
	AudioURL       string  `json:"audio_url"`
	ImageURL       string  `json:"image_url"`
	VideoURL       string  `json:"video_url"`
	LocalImage     bool    `json:"local_image"`
	LocalAudio     bool    `json:"local_audio"`
	PromptTemplate string  `json:"prompt_template,omitempty"`
	TemplateLength int     `json:"template_length"`
}

// songSelect builds the select list for Song, substituting literals for
// columns an older table version does not have. Values are stored
// untyped, so numeric columns holding anything but a number read as 0.
func songSelect(cols map[string]bool) string {
	text := func(col string) string {
		if cols[col] {
			return fmt.Sprintf("COALESCE(%s, '')", col)
		}
		return "''"
	}
	num := func(col, typ string) string {
		if cols[col] {
			return numericExpr(col, typ)
		}
		return "0"
	}

	return strings.Join([]string{
		"COALESCE(id, '')",
		text("title"),
		text("handle"),
		text("display_name"),
		text("created_at"),
		text("meta_prompt"),
		text("meta_tags"),
		num("meta_duration", "REAL"),
		num("play_count", "INTEGER"),
		num("upvote_count", "INTEGER"),
		text("meta_prompt_lang"),
		text("model_name"),
		text("audio_url"),
		text("image_url"),
		text("video_url"),
		num("local_image", "INTEGER"),
		num("local_audio", "INTEGER"),
		text("prompt_template"),
		num("template_length", "INTEGER"),
	}, ", ")
}

// numericExpr reads col as typ when it holds a number and 0 otherwise
func numericExpr(col, typ string) string {
	return fmt.Sprintf("CASE WHEN typeof(%s) IN ('integer', 'real') THEN CAST(%s AS %s) ELSE 0 END", col, col, typ)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSong(r rowScanner) (*Song, error) {
	s := &Song{}
	err := r.Scan(
		&s.ID, &s.Title, &s.Handle, &s.DisplayName, &s.CreatedAt,
		&s.Prompt, &s.Tags, &s.Duration, &s.PlayCount, &s.UpvoteCount,
		&s.Language, &s.ModelName, &s.AudioURL, &s.ImageURL, &s.VideoURL,
		&s.LocalImage, &s.LocalAudio, &s.PromptTemplate, &s.TemplateLength,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SongWriter inserts records with insert-or-ignore semantics through one
// prepared statement. A primary-key collision is a silent no-op; the first
// writer of an id wins.
type SongWriter struct {
	stmt    *sql.Stmt
	columns []string
}

// NewSongWriter prepares an insert over the given canonical columns
func (s *Store) NewSongWriter(ctx context.Context, columns []string) (*SongWriter, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("no columns to insert")
	}

	cols, err := s.SongTableColumns(ctx)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, c := range columns {
		if !cols[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s lacks column(s) %s: %w",
			SongsTable, strings.Join(missing, ", "), util.ErrSchemaOutdated)
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO NOTHING",
		SongsTable, strings.Join(quoted, ", "), placeholders,
	)

	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}

	return &SongWriter{stmt: stmt, columns: columns}, nil
}

// Insert writes one record. It reports false without error when the id
// already exists. A record without id fails the NOT NULL constraint.
func (w *SongWriter) Insert(ctx context.Context, values []any) (bool, error) {
	if len(values) != len(w.columns) {
		return false, fmt.Errorf("record has %d values, expected %d", len(values), len(w.columns))
	}

	result, err := w.stmt.ExecContext(ctx, values...)
	if err != nil {
		return false, fmt.Errorf("failed to insert song: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// Close releases the prepared statement
func (w *SongWriter) Close() error {
	return w.stmt.Close()
}

// InsertSong is a one-shot insert-or-ignore
func (s *Store) InsertSong(ctx context.Context, columns []string, values []any) (bool, error) {
	w, err := s.NewSongWriter(ctx, columns)
	if err != nil {
		return false, err
	}
	defer w.Close()
	return w.Insert(ctx, values)
}

// CountSongs returns the number of canonical rows
func (s *Store) CountSongs(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+SongsTable).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count songs: %w", err)
	}
	return count, nil
}

// GetSong retrieves a song by id, or nil if absent
func (s *Store) GetSong(ctx context.Context, id string) (*Song, error) {
	cols, err := s.SongTableColumns(ctx)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", songSelect(cols), SongsTable), id)

	song, err := scanSong(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get song: %w", err)
	}
	return song, nil
}

// RawValue returns a single column of one row as stored, for inspection
func (s *Store) RawValue(ctx context.Context, id, column string) (any, error) {
	var v any
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", quoteIdent(column), SongsTable), id).Scan(&v)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s of %s: %w", column, id, err)
	}
	return v, nil
}

// LocalityCounts returns how many rows have a local image and audio copy
func (s *Store) LocalityCounts(ctx context.Context) (images, audio int, err error) {
	cols, err := s.SongTableColumns(ctx)
	if err != nil {
		return 0, 0, err
	}
	if !cols["local_image"] || !cols["local_audio"] {
		return 0, 0, nil
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(local_image = 1), 0), COALESCE(SUM(local_audio = 1), 0)
		FROM `+SongsTable).Scan(&images, &audio)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count local media: %w", err)
	}
	return images, audio, nil
}

// TemplateCounts returns rows with a non-empty prompt template and the
// average template length across them
func (s *Store) TemplateCounts(ctx context.Context) (withTemplate int, avgLength float64, err error) {
	cols, err := s.SongTableColumns(ctx)
	if err != nil {
		return 0, 0, err
	}
	if !cols["template_length"] {
		return 0, 0, nil
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(template_length), 0)
		FROM `+SongsTable+` WHERE template_length > 0`).Scan(&withTemplate, &avgLength)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count templates: %w", err)
	}
	return withTemplate, avgLength, nil
}
