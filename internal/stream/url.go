package stream

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/solesensei/browser-stream/internal/config"
)

// Backend is the serving mechanism for prepared media.
type Backend int

const (
	BackendNginx Backend = iota
	BackendPlex
)

func (b Backend) String() string {
	switch b {
	case BackendNginx:
		return "nginx"
	case BackendPlex:
		return "plex"
	}
	return "unknown"
}

// ParseBackend maps the --server flag value onto a backend kind.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(s) {
	case "", "nginx":
		return BackendNginx, nil
	case "plex":
		return BackendPlex, nil
	}
	return 0, fmt.Errorf("unknown server %q, expected nginx or plex", s)
}

// relativeTo resolves path against the configured media root; files
// outside of it cannot be served.
func relativeTo(mediaDir, path string) (string, error) {
	rel, err := filepath.Rel(mediaDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("media file must be inside the media directory %s: %s", mediaDir, path)
	}
	return filepath.ToSlash(rel), nil
}

// NginxURL builds the shareable URL for a file served by the generic
// reverse-proxy backend. The result depends only on its inputs.
func NginxURL(cfg *config.Nginx, mediaPath string) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("%w: run `browser-stream setup nginx` first", config.ErrNoActiveConfig)
	}

	rel, err := relativeTo(cfg.MediaDir, mediaPath)
	if err != nil {
		return "", err
	}

	scheme := "http"
	if cfg.SSL {
		scheme = "https"
	}

	host := cfg.Domain
	if host == "" {
		host = cfg.Host
	}
	if host == "" {
		host = "localhost"
	}

	u := url.URL{
		Scheme: scheme,
		// JoinHostPort brackets IPv6 literals
		Host: net.JoinHostPort(host, strconv.Itoa(cfg.Port)),
		Path: "/" + rel,
	}
	if cfg.Token != "" {
		u.RawQuery = "x-token=" + url.QueryEscape(cfg.Token)
	}
	return u.String(), nil
}

// PlexURL builds the shareable direct URL for a file already known to the
// Plex server. The result depends only on its inputs.
func PlexURL(cfg *config.Plex, mediaPath string) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("%w: run `browser-stream setup plex` first", config.ErrNoActiveConfig)
	}

	rel, err := relativeTo(cfg.MediaDir, mediaPath)
	if err != nil {
		return "", err
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid plex base url %q: %w", cfg.BaseURL, err)
	}

	u := *base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + rel
	u.RawQuery = "X-Plex-Token=" + url.QueryEscape(cfg.Token)
	return u.String(), nil
}
