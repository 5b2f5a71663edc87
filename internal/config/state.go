package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// ErrNoActiveConfig signals that a backend was requested before its
// setup command was ever run.
var ErrNoActiveConfig = errors.New("no active backend configuration")

// Nginx is the persisted configuration of the generic reverse-proxy
// backend.
type Nginx struct {
	MediaDir   string `json:"media_dir"`
	Host       string `json:"host,omitempty"`
	Domain     string `json:"domain,omitempty"`
	Port       int    `json:"port"`
	IPv4       bool   `json:"ipv4"`
	IPv6       bool   `json:"ipv6"`
	SSL        bool   `json:"ssl"`
	Token      string `json:"token,omitempty"`
	SiteName   string `json:"site_name"`
	AllowIndex bool   `json:"allow_index"`
}

// Plex is the persisted configuration of the Plex backend.
type Plex struct {
	MediaDir string `json:"media_dir"`
	Token    string `json:"x_token"`
	ServerID string `json:"server_id"`
	BaseURL  string `json:"base_url"`
}

// State holds one active configuration per backend kind, nil when that
// backend was never set up. It is loaded at command start, passed around
// explicitly, and overwritten wholesale on save.
type State struct {
	Nginx *Nginx `json:"nginx,omitempty"`
	Plex  *Plex  `json:"plex,omitempty"`
}

// DefaultDir returns the per-user state directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".browser-stream"
	}
	return filepath.Join(home, ".browser-stream")
}

// Path resolves the state file location, honoring the `state-file`
// setting.
func Path() string {
	if p := viper.GetString("state-file"); p != "" {
		return p
	}
	return filepath.Join(DefaultDir(), "state.json")
}

// Load reads the persisted state; a missing file yields an empty state.
func Load(path string) (*State, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	s := &State{}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", path, err)
	}

	log.Debug().Str("path", path).Msg("state loaded")
	return s, nil
}

// Save overwrites the state file wholesale, last writer wins.
func (s *State) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	log.Debug().Str("path", path).Msg("saving state")
	return os.WriteFile(path, append(raw, '\n'), 0600)
}

// Reset removes the state file; a missing file is not an error.
func Reset(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// JSON renders the state for `config` output.
func (s *State) JSON() (string, error) {
	raw, err := json.MarshalIndent(s, "", "  ")
	return string(raw), err
}
