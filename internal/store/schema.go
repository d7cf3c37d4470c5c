package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// SongsTable is the canonical table holding one row per song record.
// The name matches databases produced by the earlier import scripts.
const SongsTable = "json_data"

// Canonical table versions
const (
	// SongsV1 is the shape written by ingestion: the flattened record
	SongsV1 = 1
	// SongsV2 adds the local media flags
	SongsV2 = 2
	// SongsV3 adds the derived prompt template
	SongsV3 = 3

	CurrentSongsVersion = SongsV3
)

// Column is one column of the canonical table
type Column struct {
	Name string
	Type string
}

// Definition renders the column for CREATE TABLE
func (c Column) Definition() string {
	return quoteIdent(c.Name) + " " + c.Type
}

var baseColumns = []Column{
	{"id", "TEXT PRIMARY KEY NOT NULL"},
	{"video_url", "TEXT"},
	{"audio_url", "TEXT"},
	{"image_url", "TEXT"},
	{"image_large_url", "TEXT"},
	{"is_video_pending", "BOOLEAN"},
	{"major_model_version", "TEXT"},
	{"model_name", "TEXT"},
	{"reaction", "TEXT"},
	{"display_name", "TEXT"},
	{"handle", "TEXT"},
	{"is_handle_updated", "BOOLEAN"},
	{"avatar_image_url", "TEXT"},
	{"is_following_creator", "BOOLEAN"},
	{"user_id", "TEXT"},
	{"created_at", "TEXT"},
	{"status", "TEXT"},
	{"title", "TEXT"},
	{"play_count", "INTEGER"},
	{"upvote_count", "INTEGER"},
	{"is_public", "BOOLEAN"},
	{"meta_tags", "TEXT"},
	{"meta_negative_tags", "TEXT"},
	{"meta_prompt", "TEXT"},
	{"meta_audio_prompt_id", "TEXT"},
	{"meta_history", "TEXT"},
	{"meta_concat_history", "TEXT"},
	{"meta_stem_from_id", "TEXT"},
	{"meta_type", "TEXT"},
	{"meta_duration", "REAL"},
	{"meta_refund_credits", "BOOLEAN"},
	{"meta_stream", "BOOLEAN"},
	{"meta_infill", "TEXT"},
	{"meta_has_vocal", "BOOLEAN"},
	{"meta_is_audio_upload_tos_accepted", "BOOLEAN"},
	{"meta_error_type", "TEXT"},
	{"meta_error_message", "TEXT"},
	{"meta_configurations", "TEXT"},
	{"meta_artist_clip_id", "TEXT"},
	{"meta_cover_clip_id", "TEXT"},
	{"meta_prompt_lang", "TEXT"},
	{"meta_gpt_lang", "TEXT"},
}

var localityColumns = []Column{
	{"local_image", "BOOLEAN DEFAULT FALSE"},
	{"local_audio", "BOOLEAN DEFAULT FALSE"},
}

var templateColumns = []Column{
	{"prompt_template", "TEXT"},
	{"template_length", "INTEGER"},
}

// SongColumns returns the canonical column set of a table version
func SongColumns(version int) []Column {
	cols := append([]Column{}, baseColumns...)
	if version >= SongsV2 {
		cols = append(cols, localityColumns...)
	}
	if version >= SongsV3 {
		cols = append(cols, templateColumns...)
	}
	return cols
}

// BaseColumnNames returns the columns populated by ingestion, in order
func BaseColumnNames() []string {
	names := make([]string, len(baseColumns))
	for i, c := range baseColumns {
		names[i] = c.Name
	}
	return names
}

// DetectSongsVersion infers the version of an unversioned canonical table
func DetectSongsVersion(cols []string) int {
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[c] = true
	}
	switch {
	case set["prompt_template"] && set["template_length"]:
		return SongsV3
	case set["local_image"] && set["local_audio"]:
		return SongsV2
	default:
		return SongsV1
	}
}

// CreateSongsTable creates a canonical-shaped table under name
func CreateSongsTable(tx *sql.Tx, name string, cols []Column) error {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = "  " + c.Definition()
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (\n%s\n)", quoteIdent(name), strings.Join(defs, ",\n"))

	if _, err := tx.Exec(ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}
	return nil
}

// songIndexes back the read contract: ordering and exact-match filters
var songIndexes = map[string]string{
	"idx_json_data_play_count": "play_count DESC",
	"idx_json_data_lang":       "meta_prompt_lang",
	"idx_json_data_model":      "model_name",
	"idx_json_data_local":      "local_audio",
}

// CreateSongIndexes creates the read-path indexes whose column exists in cols
func CreateSongIndexes(tx *sql.Tx, cols []Column) error {
	present := make(map[string]bool, len(cols))
	for _, c := range cols {
		present[c.Name] = true
	}

	for name, expr := range songIndexes {
		column := strings.Fields(expr)[0]
		if !present[column] {
			continue
		}
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", name, SongsTable, expr)
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create index %s: %w", name, err)
		}
	}
	return nil
}

// bookkeepingSchema holds the version log and the summary tables.
// Summary tables are created empty so front ends can read them before
// the first aggregation run; aggregation drops and recreates them.
const bookkeepingSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS languages (
  language_code TEXT PRIMARY KEY,
  language TEXT,
  count INTEGER
);

CREATE TABLE IF NOT EXISTS models (
  model_name TEXT PRIMARY KEY,
  count INTEGER
);
`

// LanguagesDDL and ModelsDDL recreate the summary tables
const (
	LanguagesDDL = `CREATE TABLE languages (
  language_code TEXT PRIMARY KEY,
  language TEXT,
  count INTEGER
)`

	ModelsDDL = `CREATE TABLE models (
  model_name TEXT PRIMARY KEY,
  count INTEGER
)`
)

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteIdent quotes an SQL identifier
func QuoteIdent(name string) string {
	return quoteIdent(name)
}
