package media

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/solesensei/browser-stream/internal/ffmpeg"
)

// Prober inspects a media file's container and streams.
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
}

// SubtitleMode says how a selected subtitle reaches the viewer.
type SubtitleMode int

const (
	// SubtitleNone drops subtitles entirely.
	SubtitleNone SubtitleMode = iota
	// SubtitleSidecar serves the subtitle as a separate VTT file.
	SubtitleSidecar
	// SubtitleEmbed muxes the subtitle into the MP4 as mov_text.
	SubtitleEmbed
	// SubtitleBurn re-encodes video with the subtitle rendered in.
	SubtitleBurn
)

// TrackOptions carries the user's track preferences for one media file.
type TrackOptions struct {
	AudioFile    string
	AudioLang    string
	SubtitleFile string
	SubtitleLang string

	// search sibling files matching the media base name
	ScanExternal bool

	SubtitleMode SubtitleMode
}

// Selection is the outcome of track selection: at most one audio source
// and one subtitle source. Selection is pure; any conversion it implies
// is carried out later by the pipeline.
type Selection struct {
	// external audio file, empty when an internal stream was chosen
	AudioFile string
	// internal audio stream index, -1 when external or absent
	AudioStream int
	AudioLang   string
	AudioCodec  string
	// the chosen internal stream is the container's first audio track,
	// the one a browser plays by default
	AudioIsDefault bool

	// external subtitle file, empty when internal or none
	SubtitleFile string
	// internal subtitle stream index, -1 when external or none
	SubtitleStream int
	SubtitleLang   string
	SubtitleCodec  string

	SubtitleMode SubtitleMode
}

// HasSubtitle reports whether any subtitle source was selected.
func (s *Selection) HasSubtitle() bool {
	return s.SubtitleFile != "" || s.SubtitleStream >= 0
}

// SelectTracks chooses the audio and subtitle source for a media file.
// Explicit files always win; otherwise external siblings are considered
// when asked for, and internal streams are matched by language tag with
// the first match winning.
func SelectTracks(ctx context.Context, prober Prober, mediaPath string, opts TrackOptions) (*Selection, error) {
	sel := &Selection{
		AudioStream:    -1,
		SubtitleStream: -1,
		SubtitleMode:   opts.SubtitleMode,
	}

	info, err := prober.Probe(ctx, mediaPath)
	if err != nil {
		return nil, err
	}

	if err := selectAudio(ctx, prober, mediaPath, info, opts, sel); err != nil {
		return nil, err
	}
	if err := selectSubtitle(ctx, prober, mediaPath, info, opts, sel); err != nil {
		return nil, err
	}

	if sel.SubtitleMode != SubtitleNone && !sel.HasSubtitle() {
		if opts.SubtitleMode == SubtitleEmbed || opts.SubtitleMode == SubtitleBurn {
			return nil, fmt.Errorf("%w: no subtitles found for %s", ErrNoMatchingTrack, filepath.Base(mediaPath))
		}
		sel.SubtitleMode = SubtitleNone
	}

	return sel, nil
}

func selectAudio(ctx context.Context, prober Prober, mediaPath string, info *ffmpeg.MediaInfo, opts TrackOptions, sel *Selection) error {
	// explicit file wins regardless of internal streams
	if opts.AudioFile != "" {
		fileInfo, err := prober.Probe(ctx, opts.AudioFile)
		if err != nil {
			return err
		}
		audios := fileInfo.Audios()
		if len(audios) == 0 {
			return fmt.Errorf("%w: no audio stream in %s", ErrNoMatchingTrack, opts.AudioFile)
		}
		sel.AudioFile = opts.AudioFile
		sel.AudioCodec = audios[0].Codec
		sel.AudioLang = pickLang(opts.AudioLang, audios[0].Language)
		return nil
	}

	if opts.ScanExternal {
		files, err := siblingFiles(mediaPath, IsAudioFile)
		if err != nil {
			return err
		}
		for _, f := range files {
			fileInfo, err := prober.Probe(ctx, f)
			if err != nil || len(fileInfo.Audios()) == 0 {
				continue
			}
			audio := fileInfo.Audios()[0]
			if !LangMatches(audio.Language, opts.AudioLang) {
				continue
			}
			sel.AudioFile = f
			sel.AudioCodec = audio.Codec
			sel.AudioLang = pickLang(opts.AudioLang, audio.Language)
			return nil
		}
	}

	audios := info.Audios()
	for _, audio := range audios {
		if !LangMatches(audio.Language, opts.AudioLang) {
			continue
		}
		sel.AudioStream = audio.Index
		sel.AudioCodec = audio.Codec
		sel.AudioLang = pickLang(opts.AudioLang, audio.Language)
		sel.AudioIsDefault = audio.Index == audios[0].Index
		return nil
	}

	if opts.AudioLang != "" {
		return fmt.Errorf("%w: no audio track for language %q in %s", ErrNoMatchingTrack, opts.AudioLang, filepath.Base(mediaPath))
	}
	// container with no audio at all is left alone
	return nil
}

func selectSubtitle(ctx context.Context, prober Prober, mediaPath string, info *ffmpeg.MediaInfo, opts TrackOptions, sel *Selection) error {
	if opts.SubtitleFile != "" {
		sel.SubtitleFile = opts.SubtitleFile
		sel.SubtitleCodec = Ext(opts.SubtitleFile)
		sel.SubtitleLang = pickLang(opts.SubtitleLang, sidecarLang(opts.SubtitleFile))
		if sel.SubtitleMode == SubtitleNone {
			sel.SubtitleMode = SubtitleSidecar
		}
		return nil
	}

	// subtitles are opt-in: a language, external scan, or an embed/burn
	// request asks for them
	wanted := opts.SubtitleLang != "" || opts.ScanExternal || opts.SubtitleMode != SubtitleNone
	if !wanted {
		return nil
	}

	if opts.ScanExternal {
		files, err := siblingFiles(mediaPath, IsSubtitleFile)
		if err != nil {
			return err
		}
		for _, f := range files {
			if !LangMatches(sidecarLang(f), opts.SubtitleLang) {
				continue
			}
			sel.SubtitleFile = f
			sel.SubtitleCodec = Ext(f)
			sel.SubtitleLang = pickLang(opts.SubtitleLang, sidecarLang(f))
			if sel.SubtitleMode == SubtitleNone {
				sel.SubtitleMode = SubtitleSidecar
			}
			return nil
		}
	}

	for _, sub := range info.Subtitles() {
		if !LangMatches(sub.Language, opts.SubtitleLang) {
			continue
		}
		sel.SubtitleStream = sub.Index
		sel.SubtitleCodec = sub.Codec
		sel.SubtitleLang = pickLang(opts.SubtitleLang, sub.Language)
		if sel.SubtitleMode == SubtitleNone {
			sel.SubtitleMode = SubtitleSidecar
		}
		return nil
	}

	if opts.SubtitleLang != "" {
		return fmt.Errorf("%w: no subtitle track for language %q in %s", ErrNoMatchingTrack, opts.SubtitleLang, filepath.Base(mediaPath))
	}
	return nil
}

// siblingFiles returns files next to the media file that share its base
// name prefix, sorted by name.
func siblingFiles(mediaPath string, match func(string) bool) ([]string, error) {
	dir := filepath.Dir(mediaPath)
	stem := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))

	entries, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if !match(e) {
			continue
		}
		// `Movie.en.srt` matches `Movie.mkv` through its first name part
		first := strings.SplitN(strings.TrimSuffix(filepath.Base(e), filepath.Ext(e)), ".", 2)[0]
		if first != "" && strings.Contains(stem, first) {
			out = append(out, e)
		}
	}
	sort.Strings(out)
	return out, nil
}

// sidecarLang reads a language code out of a `name.<lang>.ext` file name.
func sidecarLang(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i := strings.LastIndex(stem, "."); i >= 0 {
		code := stem[i+1:]
		if len(code) == 2 || len(code) == 3 {
			return strings.ToLower(code)
		}
	}
	return ""
}

// LangMatches compares language codes by their first two letters. An
// untagged stream stays a candidate so that poorly tagged files are not
// unreachable.
func LangMatches(streamLang, wantLang string) bool {
	if wantLang == "" || streamLang == "" {
		return true
	}
	return prefix2(streamLang) == prefix2(wantLang)
}

func prefix2(lang string) string {
	lang = strings.ToLower(lang)
	if len(lang) > 2 {
		return lang[:2]
	}
	return lang
}

func pickLang(requested, tagged string) string {
	if tagged != "" {
		return strings.ToLower(tagged)
	}
	return strings.ToLower(requested)
}
