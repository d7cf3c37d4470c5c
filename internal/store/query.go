package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/franz/suno-catalog/internal/util"
	"golang.org/x/text/unicode/norm"
)

// Op is a predicate operator of the query builder
type Op string

const (
	// OpContains is a case-insensitive substring match; with several
	// fields, any of them may match
	OpContains Op = "contains"
	// OpEquals is an exact match
	OpEquals Op = "eq"
	// OpIsTrue matches boolean columns set to true; Value is ignored
	OpIsTrue Op = "true"
)

// Constraint is one structured predicate: {fields, operator, value}
type Constraint struct {
	Fields []string
	Op     Op
	Value  any
}

// queryableFields lists the columns a constraint may reference.
// Field names are the only part of a predicate spliced into query text.
var queryableFields = map[string]bool{
	"id":               true,
	"title":            true,
	"meta_prompt":      true,
	"meta_tags":        true,
	"handle":           true,
	"meta_prompt_lang": true,
	"model_name":       true,
	"local_audio":      true,
	"local_image":      true,
}

// SongFilter is the filter description exposed to front ends
type SongFilter struct {
	Search    string // substring of title or prompt
	Language  string // exact prompt language code
	Model     string // exact model name
	LocalOnly bool   // only songs with a locally cached audio file
	Limit     int    // 0 = no cap
	Offset    int
}

// Constraints converts the filter into builder predicates; empty fields
// add no predicate.
func (f SongFilter) Constraints() []Constraint {
	var cs []Constraint
	if search := strings.TrimSpace(f.Search); search != "" {
		cs = append(cs, Constraint{Fields: []string{"title", "meta_prompt"}, Op: OpContains, Value: search})
	}
	if f.Language != "" {
		cs = append(cs, Constraint{Fields: []string{"meta_prompt_lang"}, Op: OpEquals, Value: f.Language})
	}
	if f.Model != "" {
		cs = append(cs, Constraint{Fields: []string{"model_name"}, Op: OpEquals, Value: f.Model})
	}
	if f.LocalOnly {
		cs = append(cs, Constraint{Fields: []string{"local_audio"}, Op: OpIsTrue})
	}
	return cs
}

// Query composes a parameterized SELECT over the canonical table.
// Values are always bound, never interpolated.
type Query struct {
	clauses []string
	args    []any
	orderBy string
	limit   int
	offset  int
	err     error
}

// NewQuery starts a query ordered by descending play count. Rows without
// an id, which only an unmigrated legacy table can hold, never match.
func NewQuery() *Query {
	return &Query{
		clauses: []string{"id IS NOT NULL"},
		orderBy: numericExpr("play_count", "INTEGER") + " DESC, id",
	}
}

// Where adds a constraint; errors are reported by Build
func (q *Query) Where(c Constraint) *Query {
	if q.err != nil {
		return q
	}
	if len(c.Fields) == 0 {
		q.err = fmt.Errorf("constraint %q has no fields", c.Op)
		return q
	}
	for _, f := range c.Fields {
		if !queryableFields[f] {
			q.err = fmt.Errorf("field %q is not queryable", f)
			return q
		}
	}

	var parts []string
	switch c.Op {
	case OpContains:
		s, ok := c.Value.(string)
		if !ok {
			q.err = fmt.Errorf("contains on %v needs a string value", c.Fields)
			return q
		}
		pattern := "%" + escapeLike(norm.NFC.String(s)) + "%"
		for _, f := range c.Fields {
			parts = append(parts, f+` LIKE ? ESCAPE '\'`)
			q.args = append(q.args, pattern)
		}
	case OpEquals:
		for _, f := range c.Fields {
			parts = append(parts, f+" = ?")
			q.args = append(q.args, c.Value)
		}
	case OpIsTrue:
		for _, f := range c.Fields {
			parts = append(parts, f+" = 1")
		}
	default:
		q.err = fmt.Errorf("unknown operator %q", c.Op)
		return q
	}

	if len(parts) == 1 {
		q.clauses = append(q.clauses, parts[0])
	} else {
		q.clauses = append(q.clauses, "("+strings.Join(parts, " OR ")+")")
	}
	return q
}

// Limit caps the number of rows; n <= 0 means no cap
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Offset skips the first n rows
func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

func (q *Query) where() string {
	if len(q.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.clauses, " AND ")
}

// Build renders the SELECT with the given select list
func (q *Query) Build(selectList string) (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s%s ORDER BY %s", selectList, SongsTable, q.where(), q.orderBy)

	args := append([]any{}, q.args...)
	if q.limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.limit)
		if q.offset > 0 {
			sb.WriteString(" OFFSET ?")
			args = append(args, q.offset)
		}
	} else if q.offset > 0 {
		sb.WriteString(" LIMIT -1 OFFSET ?")
		args = append(args, q.offset)
	}

	return sb.String(), args, nil
}

// BuildCount renders a COUNT(*) over the same predicates, without paging
func (q *Query) BuildCount() (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", SongsTable, q.where()), append([]any{}, q.args...), nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// SearchResult is one page of matches plus the uncapped total
type SearchResult struct {
	Total int     `json:"total"`
	Songs []*Song `json:"songs"`
}

// SearchSongs runs a filtered read over the canonical table
func (s *Store) SearchSongs(ctx context.Context, filter SongFilter) (*SearchResult, error) {
	cols, err := s.SongTableColumns(ctx)
	if err != nil {
		return nil, err
	}
	if filter.LocalOnly && !cols["local_audio"] {
		return nil, fmt.Errorf("local-only filter needs local_audio: %w", util.ErrSchemaOutdated)
	}

	q := NewQuery().Limit(filter.Limit).Offset(filter.Offset)
	for _, c := range filter.Constraints() {
		q.Where(c)
	}

	countSQL, countArgs, err := q.BuildCount()
	if err != nil {
		return nil, err
	}
	result := &SearchResult{Songs: []*Song{}}
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&result.Total); err != nil {
		return nil, fmt.Errorf("failed to count matches: %w", err)
	}

	query, args, err := q.Build(songSelect(cols))
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search songs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan song: %w", err)
		}
		result.Songs = append(result.Songs, song)
	}

	return result, rows.Err()
}
