package media

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestClassify(t *testing.T) {
	t.Run("every supported extension is a single file", func(t *testing.T) {
		dir := t.TempDir()
		for ext := range videoExtensions {
			path := touch(t, dir, "movie."+ext)
			c, err := Classify(path)
			if err != nil {
				t.Fatalf("Classify(%s) returned error: %v", path, err)
			}
			if c.Kind != KindSingleFile {
				t.Errorf("Classify(%s) kind = %v, want single file", path, c.Kind)
			}
		}
	})

	t.Run("unsupported extension fails", func(t *testing.T) {
		dir := t.TempDir()
		path := touch(t, dir, "notes.txt")
		if _, err := Classify(path); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Classify(%s) error = %v, want ErrInvalidPath", path, err)
		}
	})

	t.Run("missing path fails", func(t *testing.T) {
		if _, err := Classify("/does/not/exist.mkv"); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("error = %v, want ErrInvalidPath", err)
		}
	})

	t.Run("empty directory fails", func(t *testing.T) {
		if _, err := Classify(t.TempDir()); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("error = %v, want ErrInvalidPath", err)
		}
	})

	t.Run("episode numbering makes a tv-show directory", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "Show.S01E04.mkv")
		touch(t, dir, "Show.S01E02.mkv")
		touch(t, dir, "Show.S01E03.mkv")

		c, err := Classify(dir)
		if err != nil {
			t.Fatal(err)
		}
		if c.Kind != KindTvShowDirectory {
			t.Fatalf("kind = %v, want tv-show directory", c.Kind)
		}
		if c.StartEpisode != 2 {
			t.Errorf("start episode = %d, want 2 (lowest numbered)", c.StartEpisode)
		}
	})

	t.Run("unnumbered files make a loose directory", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "holiday.mp4")
		touch(t, dir, "wedding.mkv")

		c, err := Classify(dir)
		if err != nil {
			t.Fatal(err)
		}
		if c.Kind != KindLooseDirectory {
			t.Errorf("kind = %v, want loose directory", c.Kind)
		}
	})

	t.Run("a single numbered file is not a season", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "Show.S01E01.mkv")
		touch(t, dir, "extras.mkv")

		c, err := Classify(dir)
		if err != nil {
			t.Fatal(err)
		}
		if c.Kind != KindLooseDirectory {
			t.Errorf("kind = %v, want loose directory", c.Kind)
		}
	})
}

func TestEpisodeNumber(t *testing.T) {
	cases := []struct {
		name string
		want int
		ok   bool
	}{
		{"Show.S01E05.mkv", 5, true},
		{"show.s2e12.1080p.mkv", 12, true},
		{"Show - 1x07.mkv", 7, true},
		{"Show Episode 9.mkv", 9, true},
		{"Show.Ep03.mkv", 3, true},
		{"Movie.2019.mkv", 0, false},
		{"holiday.mp4", 0, false},
	}

	for _, c := range cases {
		got, ok := EpisodeNumber(c.name)
		if got != c.want || ok != c.ok {
			t.Errorf("EpisodeNumber(%q) = (%d, %v), want (%d, %v)", c.name, got, ok, c.want, c.ok)
		}
	}
}

func TestBatch(t *testing.T) {
	t.Run("tv-show batch is ordered and starts at the start episode", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "Show.S01E03.mkv")
		touch(t, dir, "Show.S01E05.mkv")
		touch(t, dir, "Show.S01E04.mkv")

		items, err := Batch(&Classified{Kind: KindTvShowDirectory, Path: dir, StartEpisode: 4})
		if err != nil {
			t.Fatal(err)
		}
		if len(items) != 2 {
			t.Fatalf("len(items) = %d, want 2", len(items))
		}
		if items[0].Episode != 4 || items[1].Episode != 5 {
			t.Errorf("episodes = %d, %d, want 4, 5", items[0].Episode, items[1].Episode)
		}
	})

	t.Run("converted outputs are not picked up again", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "movie.mkv")
		touch(t, dir, "movie.en.stream.mp4")

		items, err := Batch(&Classified{Kind: KindLooseDirectory, Path: dir})
		if err != nil {
			t.Fatal(err)
		}
		if len(items) != 1 {
			t.Fatalf("len(items) = %d, want 1", len(items))
		}
		if filepath.Base(items[0].Path) != "movie.mkv" {
			t.Errorf("item = %s, want movie.mkv", items[0].Path)
		}
	})
}
