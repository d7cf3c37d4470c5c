package locality

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func TestExistsPerKind(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/media/X.jpeg", []byte("img"), 0644)

	p := New(fs, "/media")

	if !p.Exists("X", KindImage) {
		t.Error("expected image to exist")
	}
	if p.Exists("X", KindAudio) {
		t.Error("audio flag must not follow the image flag")
	}

	afero.WriteFile(fs, "/media/X.mp3", []byte("snd"), 0644)
	if !p.Exists("X", KindAudio) {
		t.Error("expected audio to exist once written")
	}

	fs.Remove("/media/X.jpeg")
	if p.Exists("X", KindImage) {
		t.Error("expected image to disappear after removal")
	}
}

func TestExistsRejectsUnsafeIDs(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/secret.mp3", []byte("x"), 0644)
	afero.WriteFile(fs, "/media/sub/y.mp3", []byte("x"), 0644)

	p := New(fs, "/media")

	for _, id := range []string{"../secret", "sub/y", `sub\y`, "", ".."} {
		if p.Exists(id, KindAudio) {
			t.Errorf("id %q should be treated as absent", id)
		}
		if p.Path(id, KindAudio) != "" {
			t.Errorf("id %q should have no path", id)
		}
	}
}

func TestExistsIgnoresDirectories(t *testing.T) {
	fs := afero.NewMemMapFs()
	fs.MkdirAll("/media/odd.mp3", 0755)

	if New(fs, "/media").Exists("odd", KindAudio) {
		t.Error("a directory is not a cached file")
	}
}

func TestExistsOnDisk(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "abc.mp3"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	p := New(nil, root)
	if !p.Exists("abc", KindAudio) {
		t.Error("expected audio on disk")
	}
	if got, want := p.Path("abc", KindImage), filepath.Join(root, "abc.jpeg"); got != want {
		t.Errorf("Path = %s, want %s", got, want)
	}
}
