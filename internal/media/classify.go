package media

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Kind is the classification of an input path.
type Kind int

const (
	// KindSingleFile is one playable media file.
	KindSingleFile Kind = iota
	// KindLooseDirectory is a directory of unrelated media files.
	KindLooseDirectory
	// KindTvShowDirectory is a directory whose files follow a
	// season/episode naming convention.
	KindTvShowDirectory
)

func (k Kind) String() string {
	switch k {
	case KindSingleFile:
		return "single file"
	case KindLooseDirectory:
		return "loose directory"
	case KindTvShowDirectory:
		return "tv-show directory"
	}
	return "unknown"
}

// Classified is the result of inspecting an input path.
type Classified struct {
	Kind Kind
	Path string

	// lowest episode number found, only set for tv-show directories
	StartEpisode int
}

// matches `S01E02`, `1x02`, `Episode 2` and similar
var episodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)s\d{1,2}e(\d{1,3})`),
	regexp.MustCompile(`(?i)\b\d{1,2}x(\d{1,3})\b`),
	regexp.MustCompile(`(?i)\bep(?:isode)?[ ._-]?(\d{1,3})\b`),
}

// EpisodeNumber extracts the episode number from a file name, or returns
// false when the name follows no known convention.
func EpisodeNumber(name string) (int, bool) {
	for _, p := range episodePatterns {
		if m := p.FindStringSubmatch(name); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// Classify inspects a filesystem path and decides how downstream
// processing should treat it.
func Classify(path string) (*Classified, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}

	if !info.IsDir() {
		if !IsVideoFile(path) {
			return nil, fmt.Errorf("%w: unsupported video file: %s", ErrInvalidPath, path)
		}
		return &Classified{Kind: KindSingleFile, Path: path}, nil
	}

	videos, err := VideoFiles(path)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("%w: no video files found in directory: %s", ErrInvalidPath, path)
	}

	numbered := 0
	start := 0
	for _, v := range videos {
		n, ok := EpisodeNumber(filepath.Base(v))
		if !ok {
			continue
		}
		numbered++
		if numbered == 1 || n < start {
			start = n
		}
	}

	// one numbered file could be a coincidence, two is a season
	if numbered >= 2 {
		return &Classified{Kind: KindTvShowDirectory, Path: path, StartEpisode: start}, nil
	}
	return &Classified{Kind: KindLooseDirectory, Path: path}, nil
}

// VideoFiles lists playable files directly inside dir, sorted by name.
func VideoFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, dir)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if IsVideoFile(e.Name()) && !strings.Contains(e.Name(), ".stream.") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Batch expands a classified path into the ordered items to process. For
// tv-show directories the batch starts at the lowest-numbered episode and
// runs in episode order; loose directories run in lexical order.
func Batch(c *Classified) ([]Item, error) {
	switch c.Kind {
	case KindSingleFile:
		return []Item{{Path: c.Path}}, nil

	case KindLooseDirectory:
		videos, err := VideoFiles(c.Path)
		if err != nil {
			return nil, err
		}
		items := make([]Item, 0, len(videos))
		for _, v := range videos {
			items = append(items, Item{Path: v})
		}
		return items, nil

	case KindTvShowDirectory:
		videos, err := VideoFiles(c.Path)
		if err != nil {
			return nil, err
		}
		var items []Item
		for _, v := range videos {
			n, ok := EpisodeNumber(filepath.Base(v))
			if !ok || n < c.StartEpisode {
				continue
			}
			items = append(items, Item{Path: v, Episode: n})
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Episode < items[j].Episode })
		return items, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrInvalidPath, c.Path)
}
