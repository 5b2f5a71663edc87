package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	s := &State{
		Nginx: &Nginx{
			MediaDir: "/media",
			Host:     "10.0.0.2",
			Port:     32000,
			IPv4:     true,
			SiteName: "browser_stream",
		},
	}
	if err := s.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Nginx == nil {
		t.Fatal("nginx configuration lost on reload")
	}
	if *loaded.Nginx != *s.Nginx {
		t.Errorf("loaded nginx = %+v, want %+v", *loaded.Nginx, *s.Nginx)
	}
	if loaded.Plex != nil {
		t.Errorf("plex configuration appeared from nowhere: %+v", loaded.Plex)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Nginx != nil || s.Plex != nil {
		t.Errorf("missing file should yield an empty state, got %+v", s)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected an error for a corrupt state file")
	}
}

func TestReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := (&State{}).Save(path); err != nil {
		t.Fatal(err)
	}

	if err := Reset(path); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("state file still present: %v", err)
	}
	if err := Reset(path); err != nil {
		t.Errorf("resetting twice should be a no-op, got %v", err)
	}
}

func TestJSONOmitsEmptyBackends(t *testing.T) {
	out, err := (&State{Plex: &Plex{MediaDir: "/media", Token: "ABC"}}).JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if strings.Contains(out, "nginx") {
		t.Errorf("absent backend serialized: %s", out)
	}
	if !strings.Contains(out, `"x_token": "ABC"`) {
		t.Errorf("plex token missing: %s", out)
	}
}
