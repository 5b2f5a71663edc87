package media

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidPath signals a path that does not exist or holds no
	// recognizable media.
	ErrInvalidPath = errors.New("invalid media path")
	// ErrNoMatchingTrack signals that an explicitly requested language
	// matched no audio or subtitle track.
	ErrNoMatchingTrack = errors.New("no matching track")
)

var videoExtensions = map[string]struct{}{
	"mkv": {}, "mp4": {}, "avi": {}, "mov": {}, "webm": {},
	"m4v": {}, "mpg": {}, "mpeg": {}, "wmv": {}, "flv": {}, "ts": {},
}

var audioExtensions = map[string]struct{}{
	"aac": {}, "mp3": {}, "ac3": {}, "eac3": {}, "dts": {},
	"flac": {}, "m4a": {}, "ogg": {}, "opus": {}, "wav": {}, "mka": {},
}

var subtitleExtensions = map[string]struct{}{
	"srt": {}, "ass": {}, "ssa": {}, "sub": {}, "vtt": {},
}

// Ext returns the lowercased extension of path without the leading dot.
func Ext(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

func IsVideoFile(path string) bool {
	_, ok := videoExtensions[Ext(path)]
	return ok
}

func IsAudioFile(path string) bool {
	_, ok := audioExtensions[Ext(path)]
	return ok
}

func IsSubtitleFile(path string) bool {
	_, ok := subtitleExtensions[Ext(path)]
	return ok
}

// Item is a single video asset moving through the pipeline: classified,
// tracks selected, converted, then turned into a URL.
type Item struct {
	// source file path
	Path string
	// episode number when the item came from a tv-show directory scan
	Episode int

	// finalized file to serve; set once conversion (or raw passthrough)
	// has decided what will actually be streamed
	OutputPath string
	// sidecar subtitle to serve next to the output, if any
	SubtitlePath string
	SubtitleLang string
	// subtitles were burned into the video stream
	SubtitlesBurned bool
}

// StreamOutputPath derives the converted-output name for a media file:
// `Movie.mkv` with language `eng` becomes `Movie.en.stream.mp4`.
func StreamOutputPath(path, lang string) string {
	return DerivedPath(path, lang, "mp4")
}

// DerivedPath names a generated file after its source: `Movie.mkv` with
// language `eng` and extension `aac` becomes `Movie.en.stream.aac`. A
// trailing language code or an earlier `.stream` marker in the name is
// stripped first so repeated runs converge on one name.
func DerivedPath(path, lang, ext string) string {
	lang = strings.ToLower(lang)
	if len(lang) > 2 {
		lang = lang[:2]
	}
	if lang == "" {
		lang = "un"
	}

	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.ReplaceAll(stem, ".stream", "")

	if i := strings.LastIndex(stem, "."); i >= 0 && len(stem)-i-1 <= 3 {
		stem = stem[:i] // trailing language code
	}

	return filepath.Join(filepath.Dir(path), stem+"."+lang+".stream."+ext)
}
