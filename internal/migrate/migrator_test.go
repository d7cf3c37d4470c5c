package migrate

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/franz/suno-catalog/internal/locality"
	"github.com/franz/suno-catalog/internal/store"
	"github.com/franz/suno-catalog/internal/util"
)

func openV1(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.OpenWithOptions(filepath.Join(t.TempDir(), "v1.db"), &store.OpenOptions{SongsVersion: store.SongsV1})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	columns := []string{"id", "title", "meta_prompt", "play_count", "meta_prompt_lang"}
	rows := [][]any{
		{"a", "Alpha", "[Verse] one [Chorus] two", 5, "en"},
		{"b", "Beta", "no brackets", 3, "fr"},
		{"c", "Gamma", nil, 1, nil},
	}
	for _, r := range rows {
		if _, err := st.InsertSong(context.Background(), columns, r); err != nil {
			t.Fatal(err)
		}
	}
	return st
}

func columnSet(t *testing.T, st *store.Store) map[string]bool {
	t.Helper()

	cols, err := st.SongTableColumns(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return cols
}

func tableExists(t *testing.T, st *store.Store, name string) bool {
	t.Helper()

	var n int
	err := st.DB().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	if err != nil {
		t.Fatal(err)
	}
	return n > 0
}

func TestRunToLatest(t *testing.T) {
	st := openV1(t)
	ctx := context.Background()

	media := t.TempDir()
	os.WriteFile(filepath.Join(media, "a.jpeg"), []byte("img"), 0644)
	os.WriteFile(filepath.Join(media, "a.mp3"), []byte("snd"), 0644)
	os.WriteFile(filepath.Join(media, "b.mp3"), []byte("snd"), 0644)

	m := New(&Config{Store: st, Migrations: Migrations(locality.New(nil, media))})

	steps, err := m.Plan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 pending steps, got %d", len(steps))
	}
	if len(steps[0].Added) != 2 || len(steps[0].Dropped) != 0 {
		t.Errorf("unexpected v2 plan: %+v", steps[0])
	}

	result, err := m.Run(ctx, Options{BatchSize: 2})
	if err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	if result.From != store.SongsV1 || result.To != store.SongsV3 {
		t.Errorf("expected v1 -> v3, got v%d -> v%d", result.From, result.To)
	}
	if result.Rows != 3 {
		t.Errorf("expected 3 rows, got %d", result.Rows)
	}

	version, err := st.SongsVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if version != store.SongsV3 {
		t.Errorf("expected recorded version %d, got %d", store.SongsV3, version)
	}

	if tableExists(t, st, asideTable) {
		t.Error("aside table should be gone")
	}

	expect := map[string]struct {
		image, audio bool
		template     string
		length       int
	}{
		"a": {true, true, "[Verse]\n[Chorus]", 2},
		"b": {false, true, "", 0},
		"c": {false, false, "", 0},
	}
	for id, want := range expect {
		song, err := st.GetSong(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if song == nil {
			t.Fatalf("song %s lost in migration", id)
		}
		if song.LocalImage != want.image || song.LocalAudio != want.audio {
			t.Errorf("%s: local_image=%v local_audio=%v, want %v %v", id, song.LocalImage, song.LocalAudio, want.image, want.audio)
		}
		if song.PromptTemplate != want.template || song.TemplateLength != want.length {
			t.Errorf("%s: template %q (%d), want %q (%d)", id, song.PromptTemplate, song.TemplateLength, want.template, want.length)
		}
	}

	song, _ := st.GetSong(ctx, "a")
	if song.Title != "Alpha" || song.PlayCount != 5 || song.Language != "en" {
		t.Errorf("existing columns not carried forward: %+v", song)
	}

	var idx int
	st.DB().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_json_data_local'").Scan(&idx)
	if idx != 1 {
		t.Error("expected locality index after migration")
	}

	// Nothing left to do
	again, err := m.Run(ctx, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Steps) != 0 {
		t.Errorf("expected no steps on second run, got %d", len(again.Steps))
	}
}

func TestRunRollsBackOnFailure(t *testing.T) {
	st := openV1(t)
	ctx := context.Background()

	calls := 0
	failing := Migration{
		Version: store.SongsV2,
		Name:    "crash mid-copy",
		Columns: store.SongColumns(store.SongsV2),
		Computed: []Computed{{
			Column: "local_image",
			Fn: func(id string, _ Row) (any, error) {
				calls++
				if calls == 2 {
					return nil, errors.New("simulated crash")
				}
				return false, nil
			},
		}},
	}

	m := New(&Config{Store: st, Migrations: []Migration{failing}})
	if _, err := m.Run(ctx, Options{BatchSize: 1}); err == nil {
		t.Fatal("expected migration to fail")
	}

	if !tableExists(t, st, store.SongsTable) {
		t.Fatal("canonical table must survive a failed migration")
	}
	if tableExists(t, st, asideTable) {
		t.Error("aside table must not survive a failed migration")
	}

	cols := columnSet(t, st)
	if cols["local_image"] {
		t.Error("expected pre-migration columns after rollback")
	}

	count, err := st.CountSongs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("expected 3 rows after rollback, got %d", count)
	}

	version, err := st.SongsVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if version != store.SongsV1 {
		t.Errorf("expected version to stay %d, got %d", store.SongsV1, version)
	}
}

func TestRunRefusesNarrowing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(`
		CREATE TABLE json_data (id TEXT PRIMARY KEY, title TEXT, custom_note TEXT);
		INSERT INTO json_data VALUES ('x', 'Kept', 'scratch');
		INSERT INTO json_data VALUES (NULL, 'Orphan', NULL);
	`)
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	st, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	ctx := context.Background()

	m := New(&Config{Store: st, Migrations: Migrations(locality.New(nil, t.TempDir()))})

	steps, err := m.Plan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) == 0 || len(steps[0].Dropped) != 1 || steps[0].Dropped[0] != "custom_note" {
		t.Fatalf("expected plan to report custom_note as dropped, got %+v", steps)
	}

	_, err = m.Run(ctx, Options{})
	if !errors.Is(err, util.ErrNarrowing) {
		t.Fatalf("expected ErrNarrowing, got %v", err)
	}
	if !columnSet(t, st)["custom_note"] {
		t.Fatal("refused migration must not touch the table")
	}

	result, err := m.Run(ctx, Options{AllowNarrowing: true})
	if err != nil {
		t.Fatalf("narrowing migration failed: %v", err)
	}
	if columnSet(t, st)["custom_note"] {
		t.Error("expected custom_note to be dropped")
	}
	if result.Rows != 1 || result.Steps[0].SkippedNoID != 1 {
		t.Errorf("expected 1 row kept and 1 id-less row skipped, got %+v", result)
	}

	song, err := st.GetSong(ctx, "x")
	if err != nil {
		t.Fatal(err)
	}
	if song == nil || song.Title != "Kept" {
		t.Errorf("expected row x to survive, got %+v", song)
	}
}

func TestRefreshLocality(t *testing.T) {
	media := t.TempDir()
	st, err := store.Open(filepath.Join(t.TempDir(), "latest.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	ctx := context.Background()

	if _, err := st.InsertSong(ctx, []string{"id"}, []any{"late"}); err != nil {
		t.Fatal(err)
	}

	prober := locality.New(nil, media)
	m := New(&Config{Store: st, Migrations: Migrations(prober)})

	// The file arrives after the row was written
	os.WriteFile(filepath.Join(media, "late.mp3"), []byte("snd"), 0644)

	n, err := m.RefreshLocality(ctx, LocalityColumns(prober), 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 row refreshed, got %d", n)
	}

	song, _ := st.GetSong(ctx, "late")
	if !song.LocalAudio || song.LocalImage {
		t.Errorf("expected audio only, got image=%v audio=%v", song.LocalImage, song.LocalAudio)
	}
}

func TestRefreshLocalityNeedsColumns(t *testing.T) {
	st := openV1(t)
	prober := locality.New(nil, t.TempDir())

	_, err := New(&Config{Store: st}).RefreshLocality(context.Background(), LocalityColumns(prober), 0)
	if !errors.Is(err, util.ErrSchemaOutdated) {
		t.Fatalf("expected ErrSchemaOutdated, got %v", err)
	}
}
