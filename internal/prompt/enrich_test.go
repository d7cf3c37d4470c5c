package prompt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/franz/suno-catalog/internal/store"
	"github.com/franz/suno-catalog/internal/util"
)

func openStore(t *testing.T, version int) *store.Store {
	t.Helper()

	st, err := store.OpenWithOptions(filepath.Join(t.TempDir(), "test.db"), &store.OpenOptions{SongsVersion: version})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestEnricherRun(t *testing.T) {
	st := openStore(t, store.SongsV3)
	ctx := context.Background()

	columns := []string{"id", "title", "meta_prompt"}
	rows := [][]any{
		{"a", "One", "[Verse] lorem [Chorus] ipsum [  ]"},
		{"b", "Two", "plain text"},
		{"c", "Three", nil},
		{"d", "Four", "[Intro][Verse][Bridge][Outro]"},
		{"e", "Five", "[Drop]"},
	}
	for _, r := range rows {
		if _, err := st.InsertSong(ctx, columns, r); err != nil {
			t.Fatal(err)
		}
	}

	// Small batches exercise the keyset pagination
	e := NewEnricher(&Config{Store: st, BatchSize: 2})
	result, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("enrich failed: %v", err)
	}
	if result.Rows != 5 {
		t.Errorf("expected 5 rows, got %d", result.Rows)
	}
	if result.WithTemplate != 3 {
		t.Errorf("expected 3 rows with a template, got %d", result.WithTemplate)
	}

	song, err := st.GetSong(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if song.PromptTemplate != "[Verse]\n[Chorus]" || song.TemplateLength != 2 {
		t.Errorf("unexpected template for a: %q (%d)", song.PromptTemplate, song.TemplateLength)
	}

	song, err = st.GetSong(ctx, "c")
	if err != nil {
		t.Fatal(err)
	}
	if song.PromptTemplate != "" || song.TemplateLength != 0 {
		t.Errorf("NULL prompt should give an empty template, got %q (%d)", song.PromptTemplate, song.TemplateLength)
	}

	entries, err := e.Interesting(ctx, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].ID != "d" || entries[1].ID != "a" {
		t.Errorf("unexpected interesting prompts: %+v", entries)
	}

	entries, err = e.Interesting(ctx, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Length != 4 {
		t.Errorf("limit not applied: %+v", entries)
	}
}

func TestEnricherIsRepeatable(t *testing.T) {
	st := openStore(t, store.SongsV3)
	ctx := context.Background()

	if _, err := st.InsertSong(ctx, []string{"id", "meta_prompt"}, []any{"x", "[A] [B]"}); err != nil {
		t.Fatal(err)
	}

	e := NewEnricher(&Config{Store: st})
	for i := 0; i < 2; i++ {
		if _, err := e.Run(ctx); err != nil {
			t.Fatalf("run %d failed: %v", i+1, err)
		}
	}

	song, err := st.GetSong(ctx, "x")
	if err != nil {
		t.Fatal(err)
	}
	if song.TemplateLength != 2 {
		t.Errorf("expected length 2, got %d", song.TemplateLength)
	}
}

func TestEnricherRequiresTemplateColumns(t *testing.T) {
	st := openStore(t, store.SongsV2)

	_, err := NewEnricher(&Config{Store: st}).Run(context.Background())
	if !errors.Is(err, util.ErrSchemaOutdated) {
		t.Fatalf("expected ErrSchemaOutdated, got %v", err)
	}
}
