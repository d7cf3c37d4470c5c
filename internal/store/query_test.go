package store

import (
	"context"
	"strings"
	"testing"
)

func seedOcean(t *testing.T, s *Store) {
	t.Helper()

	columns := []string{"id", "title", "meta_prompt", "play_count", "meta_prompt_lang", "model_name", "local_audio"}
	rows := [][]any{
		{"1", "Ocean Dream", "waves at night", 50, "en", "chirp-v3", true},
		{"2", "Ocean Tide", "marée haute", 80, "fr", "chirp-v3", false},
		{"3", "Desert Wind", "dry heat", 10, "en", "chirp-v2", true},
	}
	for _, r := range rows {
		if _, err := s.InsertSong(context.Background(), columns, r); err != nil {
			t.Fatalf("failed to seed: %v", err)
		}
	}
}

func titles(songs []*Song) []string {
	out := make([]string, len(songs))
	for i, s := range songs {
		out[i] = s.Title
	}
	return out
}

func TestSearchSongsOrderedByPlayCount(t *testing.T) {
	store := openTestStore(t)
	seedOcean(t, store)

	result, err := store.SearchSongs(context.Background(), SongFilter{Search: "ocean"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	got := strings.Join(titles(result.Songs), ",")
	if got != "Ocean Tide,Ocean Dream" {
		t.Errorf("expected [Ocean Tide Ocean Dream], got [%s]", got)
	}
	if result.Total != 2 {
		t.Errorf("expected total 2, got %d", result.Total)
	}
}

func TestSearchSongsFilters(t *testing.T) {
	store := openTestStore(t)
	seedOcean(t, store)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter SongFilter
		want   string
		total  int
	}{
		{"no filter", SongFilter{}, "Ocean Tide,Ocean Dream,Desert Wind", 3},
		{"language", SongFilter{Language: "en"}, "Ocean Dream,Desert Wind", 2},
		{"search and language", SongFilter{Search: "ocean", Language: "en"}, "Ocean Dream", 1},
		{"model", SongFilter{Model: "chirp-v2"}, "Desert Wind", 1},
		{"local only", SongFilter{LocalOnly: true}, "Ocean Dream,Desert Wind", 2},
		{"prompt match", SongFilter{Search: "HEAT"}, "Desert Wind", 1},
		{"limit keeps total", SongFilter{Limit: 1}, "Ocean Tide", 3},
		{"offset", SongFilter{Limit: 1, Offset: 1}, "Ocean Dream", 3},
		{"no match", SongFilter{Search: "volcano"}, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := store.SearchSongs(ctx, tt.filter)
			if err != nil {
				t.Fatalf("search failed: %v", err)
			}
			got := strings.Join(titles(result.Songs), ",")
			if got != tt.want {
				t.Errorf("expected [%s], got [%s]", tt.want, got)
			}
			if result.Total != tt.total {
				t.Errorf("expected total %d, got %d", tt.total, result.Total)
			}
		})
	}
}

func TestSearchSongsEscapesWildcards(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	columns := []string{"id", "title"}
	for _, r := range [][]any{{"1", "100% Love"}, {"2", "100 Love"}, {"3", "snake_case"}, {"4", "snakeXcase"}} {
		if _, err := store.InsertSong(ctx, columns, r); err != nil {
			t.Fatal(err)
		}
	}

	result, err := store.SearchSongs(ctx, SongFilter{Search: "100%"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 1 || result.Songs[0].Title != "100% Love" {
		t.Errorf("expected only the literal percent match, got %v", titles(result.Songs))
	}

	result, err = store.SearchSongs(ctx, SongFilter{Search: "e_c"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 1 || result.Songs[0].Title != "snake_case" {
		t.Errorf("expected only the literal underscore match, got %v", titles(result.Songs))
	}
}

func TestSearchSongsInjectionIsInert(t *testing.T) {
	store := openTestStore(t)
	seedOcean(t, store)
	ctx := context.Background()

	result, err := store.SearchSongs(ctx, SongFilter{Language: "en' OR '1'='1"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 0 {
		t.Errorf("expected no matches, got %d", result.Total)
	}

	count, err := store.CountSongs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("table should be untouched, got %d rows", count)
	}
}

func TestQueryBuilder(t *testing.T) {
	q := NewQuery().
		Where(Constraint{Fields: []string{"title", "meta_prompt"}, Op: OpContains, Value: "a_b"}).
		Where(Constraint{Fields: []string{"model_name"}, Op: OpEquals, Value: "v3"}).
		Limit(20)

	query, args, err := q.Build("id")
	if err != nil {
		t.Fatal(err)
	}

	want := `SELECT id FROM json_data WHERE id IS NOT NULL AND (title LIKE ? ESCAPE '\' OR meta_prompt LIKE ? ESCAPE '\') AND model_name = ? ORDER BY CASE WHEN typeof(play_count) IN ('integer', 'real') THEN CAST(play_count AS INTEGER) ELSE 0 END DESC, id LIMIT ?`
	if query != want {
		t.Errorf("unexpected query:\n got: %s\nwant: %s", query, want)
	}
	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %d", len(args))
	}
	if args[0] != `%a\_b%` || args[2] != "v3" || args[3] != 20 {
		t.Errorf("unexpected args: %v", args)
	}
}

func TestQueryBuilderRejectsUnknownField(t *testing.T) {
	_, _, err := NewQuery().
		Where(Constraint{Fields: []string{"title; DROP TABLE json_data"}, Op: OpEquals, Value: "x"}).
		Build("id")
	if err == nil {
		t.Fatal("expected unknown field to be rejected")
	}

	_, _, err = NewQuery().
		Where(Constraint{Fields: []string{"title"}, Op: "regex", Value: "x"}).
		BuildCount()
	if err == nil {
		t.Fatal("expected unknown operator to be rejected")
	}
}
