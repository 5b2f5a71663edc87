package stream

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPlayerPage(t *testing.T) {
	page, err := PlayerPage(
		"http://localhost:32000/movie.mp4",
		"http://localhost:32000/movie.en.stream.vtt",
		"eng",
	)
	if err != nil {
		t.Fatalf("PlayerPage: %v", err)
	}

	for _, part := range []string{
		`<source src="http://localhost:32000/movie.mp4" type="video/mp4">`,
		`<track src="http://localhost:32000/movie.en.stream.vtt"`,
		`srclang="en"`,
		`label="Eng"`,
	} {
		if !strings.Contains(page, part) {
			t.Errorf("page missing %q:\n%s", part, page)
		}
	}
}

func TestPlayerPageUnknownLang(t *testing.T) {
	page, err := PlayerPage("http://h/v.mp4", "http://h/s.vtt", "")
	if err != nil {
		t.Fatalf("PlayerPage: %v", err)
	}
	if !strings.Contains(page, `srclang="un"`) {
		t.Errorf("page missing fallback srclang:\n%s", page)
	}
}

func TestWritePlayerPage(t *testing.T) {
	dir := t.TempDir()
	movie := filepath.Join(dir, "movie.mp4")

	htmlPath, err := WritePlayerPage(movie, "http://h/movie.mp4", "http://h/movie.en.stream.vtt", "en")
	if err != nil {
		t.Fatalf("WritePlayerPage: %v", err)
	}
	if want := filepath.Join(dir, "movie.html"); htmlPath != want {
		t.Errorf("path = %q, want %q", htmlPath, want)
	}

	raw, err := os.ReadFile(htmlPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "<video controls") {
		t.Errorf("written page looks wrong:\n%s", raw)
	}
}
