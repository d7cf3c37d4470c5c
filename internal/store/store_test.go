package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreOpenCreatesLatestSchema(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	version, err := store.SongsVersion(ctx)
	if err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}
	if version != CurrentSongsVersion {
		t.Errorf("expected schema version %d, got %d", CurrentSongsVersion, version)
	}

	for _, table := range []string{SongsTable, "languages", "models", "schema_version"} {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}

	cols, err := store.SongTableColumns(ctx)
	if err != nil {
		t.Fatalf("failed to read columns: %v", err)
	}
	if len(cols) != len(SongColumns(CurrentSongsVersion)) {
		t.Errorf("expected %d columns, got %d", len(SongColumns(CurrentSongsVersion)), len(cols))
	}
	for _, c := range []string{"id", "meta_prompt", "meta_gpt_lang", "local_audio", "template_length"} {
		if !cols[c] {
			t.Errorf("expected column %s", c)
		}
	}

	for _, index := range []string{"idx_json_data_play_count", "idx_json_data_lang", "idx_json_data_local"} {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", index).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query index %s: %v", index, err)
		}
		if count != 1 {
			t.Errorf("expected index %s to exist", index)
		}
	}
}

func TestStoreOpenAtOlderVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v1.db")
	store, err := OpenWithOptions(path, &OpenOptions{SongsVersion: SongsV1})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	version, err := store.SongsVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if version != SongsV1 {
		t.Errorf("expected version %d, got %d", SongsV1, version)
	}

	cols, err := store.SongTableColumns(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cols["local_audio"] {
		t.Error("v1 table should not have local_audio")
	}
	if _, err := store.SearchSongs(ctx, SongFilter{LocalOnly: true}); err == nil {
		t.Error("expected local-only search on v1 to fail")
	}
}

func TestStoreDetectsUnversionedLegacyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	// Build a database the way the old import scripts did: table only
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(`CREATE TABLE json_data (id TEXT PRIMARY KEY, title TEXT, local_image BOOLEAN, local_audio BOOLEAN)`)
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open legacy store: %v", err)
	}
	defer store.Close()

	version, err := store.SongsVersion(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if version != SongsV2 {
		t.Errorf("expected detected version %d, got %d", SongsV2, version)
	}
}

func TestInsertSongIgnoresDuplicates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	columns := []string{"id", "title", "play_count"}

	inserted, err := store.InsertSong(ctx, columns, []any{"abc", "First", 10})
	if err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	if !inserted {
		t.Error("expected first insert to write a row")
	}

	inserted, err = store.InsertSong(ctx, columns, []any{"abc", "Second", 99})
	if err != nil {
		t.Fatalf("duplicate insert should not fail: %v", err)
	}
	if inserted {
		t.Error("expected duplicate insert to be a no-op")
	}

	song, err := store.GetSong(ctx, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if song == nil {
		t.Fatal("expected song to exist")
	}
	if song.Title != "First" || song.PlayCount != 10 {
		t.Errorf("first writer should win, got title=%q play_count=%d", song.Title, song.PlayCount)
	}

	count, err := store.CountSongs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}
}

func TestInsertSongWithoutIDFails(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.InsertSong(ctx, []string{"id", "title"}, []any{nil, "Nameless"})
	if err == nil {
		t.Fatal("expected NOT NULL violation for missing id")
	}

	count, err := store.CountSongs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected no rows, got %d", count)
	}
}

func TestGetSongMissing(t *testing.T) {
	store := openTestStore(t)

	song, err := store.GetSong(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if song != nil {
		t.Errorf("expected nil, got %+v", song)
	}
}

func TestSongWriterArity(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	w, err := store.NewSongWriter(ctx, []string{"id", "title"})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if _, err := w.Insert(ctx, []any{"only-id"}); err == nil {
		t.Error("expected arity mismatch error")
	}
}

func TestSummariesEmptyBeforeAggregation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	langs, err := store.Languages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(langs) != 0 {
		t.Errorf("expected no languages, got %d", len(langs))
	}

	models, err := store.Models(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 0 {
		t.Errorf("expected no models, got %d", len(models))
	}
}

func TestLocalityAndTemplateCounts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	columns := []string{"id", "local_image", "local_audio", "template_length"}
	rows := [][]any{
		{"a", true, true, 2},
		{"b", true, false, 0},
		{"c", false, false, 4},
	}
	for _, r := range rows {
		if _, err := store.InsertSong(ctx, columns, r); err != nil {
			t.Fatal(err)
		}
	}

	images, audio, err := store.LocalityCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if images != 2 || audio != 1 {
		t.Errorf("expected 2 images and 1 audio, got %d and %d", images, audio)
	}

	with, avg, err := store.TemplateCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if with != 2 || avg != 3 {
		t.Errorf("expected 2 templates averaging 3, got %d and %v", with, avg)
	}
}
