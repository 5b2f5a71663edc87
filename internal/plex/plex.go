package plex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrMissingCredential signals that neither a token/server-id pair nor a
// download URL was supplied for the Plex backend.
var ErrMissingCredential = errors.New("missing plex credential")

// DefaultBaseURL is the local Plex server address.
const DefaultBaseURL = "http://localhost:32400"

// Credentials are the resolved Plex access parameters.
type Credentials struct {
	Token    string
	ServerID string
	BaseURL  string
}

// Resolve turns user-supplied setup flags into credentials. Either a
// token/server-id pair or a pasted download URL must be given.
func Resolve(token, serverID, baseURL, downloadURL string) (*Credentials, error) {
	if downloadURL != "" {
		return ParseDirectURL(downloadURL)
	}
	if token == "" || serverID == "" {
		return nil, fmt.Errorf("%w: provide either --x-token with --server-id, or --download-url", ErrMissingCredential)
	}
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.plex.direct:32400", serverID)
	}
	return &Credentials{
		Token:    token,
		ServerID: serverID,
		BaseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

// ParseDirectURL extracts credentials from a Plex direct download URL of
// the form
// https://192-168-1-2.<server-id>.plex.direct:32400/library/parts/...?download=1&X-Plex-Token=...
func ParseDirectURL(raw string) (*Credentials, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid download url: %v", ErrMissingCredential, err)
	}

	token := u.Query().Get("X-Plex-Token")
	if token == "" {
		return nil, fmt.Errorf("%w: download url carries no X-Plex-Token", ErrMissingCredential)
	}

	serverID := ""
	if parts := strings.Split(u.Hostname(), "."); len(parts) >= 3 && strings.HasSuffix(u.Hostname(), "plex.direct") {
		serverID = parts[1]
	}

	return &Credentials{
		Token:    token,
		ServerID: serverID,
		BaseURL:  u.Scheme + "://" + u.Host,
	}, nil
}

// Client talks to the Plex server HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  zerolog.Logger
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  log.With().Str("module", "plex").Logger(),
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+strings.TrimLeft(path, "/"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	q := req.URL.Query()
	q.Set("X-Plex-Token", c.token)
	req.URL.RawQuery = q.Encode()

	c.logger.Debug().Str("path", path).Msg("plex api request")
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("plex api %s: unexpected status %s", path, res.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type mediaContainer struct {
	MediaContainer struct {
		Directory []struct {
			Key      string `json:"key"`
			Title    string `json:"title"`
			Location []struct {
				Path string `json:"path"`
			} `json:"Location"`
		} `json:"Directory"`
		Metadata []struct {
			RatingKey string `json:"ratingKey"`
			Media     []struct {
				Part []struct {
					File string `json:"file"`
				} `json:"Part"`
			} `json:"Media"`
		} `json:"Metadata"`
	} `json:"MediaContainer"`
}

// Library is one Plex library section.
type Library struct {
	Key   string
	Title string
	Paths []string
}

// Libraries lists the server's library sections.
func (c *Client) Libraries(ctx context.Context) ([]Library, error) {
	var out mediaContainer
	if err := c.get(ctx, "/library/sections", &out); err != nil {
		return nil, err
	}

	var libs []Library
	for _, d := range out.MediaContainer.Directory {
		lib := Library{Key: d.Key, Title: d.Title}
		for _, l := range d.Location {
			lib.Paths = append(lib.Paths, l.Path)
		}
		libs = append(libs, lib)
	}
	return libs, nil
}

// LibraryKeyByPath finds the metadata rating key of the media item whose
// file path matches the given one.
func (c *Client) LibraryKeyByPath(ctx context.Context, path string) (string, error) {
	libs, err := c.Libraries(ctx)
	if err != nil {
		return "", err
	}

	var section *Library
	var known []string
	for i := range libs {
		for _, p := range libs[i].Paths {
			if strings.HasPrefix(path, p) {
				section = &libs[i]
			}
			known = append(known, p)
		}
	}
	if section == nil {
		return "", fmt.Errorf("no plex library covers path %s (known locations: %s)", path, strings.Join(known, ", "))
	}

	var out mediaContainer
	if err := c.get(ctx, fmt.Sprintf("/library/sections/%s/all", section.Key), &out); err != nil {
		return "", err
	}

	for _, meta := range out.MediaContainer.Metadata {
		for _, media := range meta.Media {
			for _, part := range media.Part {
				if part.File == path {
					return meta.RatingKey, nil
				}
			}
		}
	}
	return "", fmt.Errorf("no media found for path %s in library %q", path, section.Title)
}

// Scan asks the server to rescan a library section.
func (c *Client) Scan(ctx context.Context, sectionKey string) error {
	return c.get(ctx, fmt.Sprintf("/library/sections/%s/refresh", sectionKey), nil)
}
