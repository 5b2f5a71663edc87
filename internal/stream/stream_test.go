package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/solesensei/browser-stream/internal/config"
	"github.com/solesensei/browser-stream/internal/ffmpeg"
	"github.com/solesensei/browser-stream/internal/media"
)

type fakeProber struct {
	infos  map[string]*ffmpeg.MediaInfo
	failOn string
	calls  int
}

func (p *fakeProber) Probe(_ context.Context, path string) (*ffmpeg.MediaInfo, error) {
	p.calls++
	if p.failOn != "" && path == p.failOn {
		return nil, fmt.Errorf("probe failed for %s", path)
	}
	info, ok := p.infos[path]
	if !ok {
		return nil, fmt.Errorf("no probe data for %s", path)
	}
	return info, nil
}

type audioCall struct {
	input   string
	stream  int
	output  string
	codec   string
	bitrate string
}

type fakeEncoder struct {
	converts  int
	toVTT     int
	extracted int
	audio     int
	lastJob   ffmpeg.ConvertJob
	lastAudio audioCall
}

func (e *fakeEncoder) ConvertToMP4(_ context.Context, job ffmpeg.ConvertJob) error {
	e.converts++
	e.lastJob = job
	return nil
}

func (e *fakeEncoder) SubtitleToVTT(_ context.Context, _, _, _ string) error {
	e.toVTT++
	return nil
}

func (e *fakeEncoder) ExtractSubtitle(_ context.Context, _ string, _ int, _, _ string) error {
	e.extracted++
	return nil
}

func (e *fakeEncoder) ExtractAudio(_ context.Context, mediaFile string, streamIndex int, outputFile, _, codec, bitrate string) error {
	e.audio++
	e.lastAudio = audioCall{input: mediaFile, stream: streamIndex, output: outputFile, codec: codec, bitrate: bitrate}
	return nil
}

func (e *fakeEncoder) ConvertAudio(_ context.Context, audioFile, outputFile, _, codec, bitrate string) error {
	e.audio++
	e.lastAudio = audioCall{input: audioFile, stream: -1, output: outputFile, codec: codec, bitrate: bitrate}
	return nil
}

func (e *fakeEncoder) total() int {
	return e.converts + e.toVTT + e.extracted + e.audio
}

func browserReady(path string) *ffmpeg.MediaInfo {
	return &ffmpeg.MediaInfo{
		Path:       path,
		FormatName: []string{"mov", "mp4"},
		Streams: []ffmpeg.Stream{
			{Index: 0, Type: ffmpeg.StreamVideo, Codec: "h264"},
			{Index: 1, Type: ffmpeg.StreamAudio, Codec: "aac", Language: "eng"},
		},
	}
}

func nginxState(mediaDir string) *config.State {
	return &config.State{Nginx: &config.Nginx{MediaDir: mediaDir, Host: "localhost", Port: 32000}}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestRunRaw(t *testing.T) {
	dir := t.TempDir()
	movie := filepath.Join(dir, "movie.mp4")
	touch(t, movie)

	prober := &fakeProber{}
	encoder := &fakeEncoder{}
	s := New(nginxState(dir), prober, encoder)
	var out bytes.Buffer
	s.Out = &out

	err := s.Run(context.Background(), movie, Options{Backend: BackendNginx, Raw: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if encoder.total() != 0 {
		t.Errorf("raw mode invoked the encoder %d times", encoder.total())
	}
	if prober.calls != 0 {
		t.Errorf("raw mode probed the file %d times", prober.calls)
	}
	if got, want := out.String(), "http://localhost:32000/movie.mp4\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestRunBrowserReadySource(t *testing.T) {
	dir := t.TempDir()
	movie := filepath.Join(dir, "movie.mp4")
	touch(t, movie)

	prober := &fakeProber{infos: map[string]*ffmpeg.MediaInfo{movie: browserReady(movie)}}
	encoder := &fakeEncoder{}
	s := New(nginxState(dir), prober, encoder)
	var out bytes.Buffer
	s.Out = &out

	err := s.Run(context.Background(), movie, Options{Backend: BackendNginx})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// aac audio in an mp4 container needs no work at all
	if encoder.total() != 0 {
		t.Errorf("browser-ready source invoked the encoder %d times", encoder.total())
	}
	if got, want := out.String(), "http://localhost:32000/movie.mp4\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestRunConvertsMkv(t *testing.T) {
	dir := t.TempDir()
	movie := filepath.Join(dir, "movie.mkv")
	touch(t, movie)

	prober := &fakeProber{infos: map[string]*ffmpeg.MediaInfo{movie: {
		Path:       movie,
		FormatName: []string{"matroska", "webm"},
		Streams: []ffmpeg.Stream{
			{Index: 0, Type: ffmpeg.StreamVideo, Codec: "h264"},
			{Index: 1, Type: ffmpeg.StreamAudio, Codec: "aac", Language: "eng"},
		},
	}}}
	encoder := &fakeEncoder{}
	s := New(nginxState(dir), prober, encoder)
	var out bytes.Buffer
	s.Out = &out

	err := s.Run(context.Background(), movie, Options{Backend: BackendNginx})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if encoder.converts != 1 {
		t.Fatalf("ConvertToMP4 called %d times, want 1", encoder.converts)
	}
	want := filepath.Join(dir, "movie.en.stream.mp4")
	if encoder.lastJob.Output != want {
		t.Errorf("job output = %q, want %q", encoder.lastJob.Output, want)
	}
	if got := out.String(); got != "http://localhost:32000/movie.en.stream.mp4\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRunRemapsNonDefaultAudio(t *testing.T) {
	dir := t.TempDir()
	movie := filepath.Join(dir, "movie.mp4")
	touch(t, movie)

	prober := &fakeProber{infos: map[string]*ffmpeg.MediaInfo{movie: {
		Path:       movie,
		FormatName: []string{"mov", "mp4"},
		Streams: []ffmpeg.Stream{
			{Index: 0, Type: ffmpeg.StreamVideo, Codec: "h264"},
			{Index: 1, Type: ffmpeg.StreamAudio, Codec: "aac", Language: "eng"},
			{Index: 2, Type: ffmpeg.StreamAudio, Codec: "aac", Language: "fre"},
		},
	}}}
	encoder := &fakeEncoder{}
	s := New(nginxState(dir), prober, encoder)
	var out bytes.Buffer
	s.Out = &out

	opts := Options{Backend: BackendNginx, Tracks: media.TrackOptions{AudioLang: "fr"}}
	if err := s.Run(context.Background(), movie, opts); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// an mp4 source is not enough to skip the remux when the selected
	// track is not the one a browser plays by default
	if encoder.converts != 1 {
		t.Fatalf("ConvertToMP4 called %d times, want 1", encoder.converts)
	}
	if encoder.lastJob.AudioStream != 2 {
		t.Errorf("job audio stream = %d, want 2", encoder.lastJob.AudioStream)
	}
	if got, want := out.String(), "http://localhost:32000/movie.fr.stream.mp4\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestRunNormalizesNonBrowserAudio(t *testing.T) {
	dir := t.TempDir()
	movie := filepath.Join(dir, "movie.mkv")
	touch(t, movie)

	prober := &fakeProber{infos: map[string]*ffmpeg.MediaInfo{movie: {
		Path:       movie,
		FormatName: []string{"matroska", "webm"},
		Streams: []ffmpeg.Stream{
			{Index: 0, Type: ffmpeg.StreamVideo, Codec: "h264"},
			{Index: 1, Type: ffmpeg.StreamAudio, Codec: "ac3", Language: "eng"},
		},
	}}}
	encoder := &fakeEncoder{}
	s := New(nginxState(dir), prober, encoder)
	var out bytes.Buffer
	s.Out = &out

	if err := s.Run(context.Background(), movie, Options{Backend: BackendNginx}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if encoder.audio != 1 {
		t.Fatalf("audio normalization ran %d times, want 1", encoder.audio)
	}
	aac := filepath.Join(dir, "movie.en.stream.aac")
	want := audioCall{input: movie, stream: 1, output: aac, codec: "aac", bitrate: "192k"}
	if encoder.lastAudio != want {
		t.Errorf("audio call = %+v, want %+v", encoder.lastAudio, want)
	}

	// the remux consumes the normalized sidecar, not the ac3 stream
	if encoder.converts != 1 {
		t.Fatalf("ConvertToMP4 called %d times, want 1", encoder.converts)
	}
	if encoder.lastJob.AudioFile != aac || encoder.lastJob.AudioStream != -1 {
		t.Errorf("job audio = %q/%d, want %q/-1", encoder.lastJob.AudioFile, encoder.lastJob.AudioStream, aac)
	}
}

func TestRunOutputReuse(t *testing.T) {
	mkvInfo := func(path string) *ffmpeg.MediaInfo {
		return &ffmpeg.MediaInfo{
			Path:       path,
			FormatName: []string{"matroska", "webm"},
			Streams: []ffmpeg.Stream{
				{Index: 0, Type: ffmpeg.StreamVideo, Codec: "h264"},
				{Index: 1, Type: ffmpeg.StreamAudio, Codec: "aac", Language: "eng"},
			},
		}
	}

	t.Run("matching output is reused", func(t *testing.T) {
		dir := t.TempDir()
		movie := filepath.Join(dir, "movie.mkv")
		existing := filepath.Join(dir, "movie.en.stream.mp4")
		touch(t, movie)
		touch(t, existing)

		prober := &fakeProber{infos: map[string]*ffmpeg.MediaInfo{
			movie:    mkvInfo(movie),
			existing: browserReady(existing),
		}}
		encoder := &fakeEncoder{}
		s := New(nginxState(dir), prober, encoder)
		var out bytes.Buffer
		s.Out = &out

		if err := s.Run(context.Background(), movie, Options{Backend: BackendNginx}); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if encoder.converts != 0 {
			t.Errorf("matching output was reconverted %d times", encoder.converts)
		}
		if got, want := out.String(), "http://localhost:32000/movie.en.stream.mp4\n"; got != want {
			t.Errorf("output = %q, want %q", got, want)
		}
	})

	t.Run("stale output with burned subtitles is redone", func(t *testing.T) {
		dir := t.TempDir()
		movie := filepath.Join(dir, "movie.mkv")
		existing := filepath.Join(dir, "movie.en.stream.mp4")
		touch(t, movie)
		touch(t, existing)

		stale := browserReady(existing)
		stale.Comment = "burned-subs-lang:en"
		prober := &fakeProber{infos: map[string]*ffmpeg.MediaInfo{
			movie:    mkvInfo(movie),
			existing: stale,
		}}
		encoder := &fakeEncoder{}
		s := New(nginxState(dir), prober, encoder)
		var out bytes.Buffer
		s.Out = &out

		if err := s.Run(context.Background(), movie, Options{Backend: BackendNginx}); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if encoder.converts != 1 {
			t.Errorf("stale output reused, ConvertToMP4 called %d times, want 1", encoder.converts)
		}
	})

	t.Run("overwrite forces a reconvert", func(t *testing.T) {
		dir := t.TempDir()
		movie := filepath.Join(dir, "movie.mkv")
		existing := filepath.Join(dir, "movie.en.stream.mp4")
		touch(t, movie)
		touch(t, existing)

		prober := &fakeProber{infos: map[string]*ffmpeg.MediaInfo{
			movie:    mkvInfo(movie),
			existing: browserReady(existing),
		}}
		encoder := &fakeEncoder{}
		s := New(nginxState(dir), prober, encoder)
		var out bytes.Buffer
		s.Out = &out

		if err := s.Run(context.Background(), movie, Options{Backend: BackendNginx, Overwrite: true}); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if encoder.converts != 1 {
			t.Errorf("ConvertToMP4 called %d times, want 1", encoder.converts)
		}
	})
}

func TestRunPrepareOnly(t *testing.T) {
	dir := t.TempDir()
	movie := filepath.Join(dir, "movie.mp4")
	touch(t, movie)

	prober := &fakeProber{infos: map[string]*ffmpeg.MediaInfo{movie: browserReady(movie)}}
	encoder := &fakeEncoder{}
	s := New(nginxState(dir), prober, encoder)
	var out bytes.Buffer
	s.Out = &out

	err := s.Run(context.Background(), movie, Options{Backend: BackendNginx, PrepareOnly: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("prepare-only printed %q", out.String())
	}
}

func TestRunBatchAbortsOnFailure(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		touch(t, filepath.Join(dir, name))
	}

	prober := &fakeProber{
		infos: map[string]*ffmpeg.MediaInfo{
			filepath.Join(dir, "a.mp4"): browserReady(filepath.Join(dir, "a.mp4")),
			filepath.Join(dir, "c.mp4"): browserReady(filepath.Join(dir, "c.mp4")),
		},
		failOn: filepath.Join(dir, "b.mp4"),
	}
	encoder := &fakeEncoder{}
	s := New(nginxState(dir), prober, encoder)
	var out bytes.Buffer
	s.Out = &out

	err := s.Run(context.Background(), dir, Options{Backend: BackendNginx})
	if err == nil {
		t.Fatal("expected the batch to fail")
	}
	if !strings.Contains(err.Error(), "b.mp4") {
		t.Errorf("error %q does not name the failed item", err)
	}

	// only the item before the failure produced a url, nothing after it ran
	if got, want := out.String(), "http://localhost:32000/a.mp4\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestRunWithoutConfiguration(t *testing.T) {
	dir := t.TempDir()
	movie := filepath.Join(dir, "movie.mp4")
	touch(t, movie)

	s := New(&config.State{}, &fakeProber{}, &fakeEncoder{})
	var out bytes.Buffer
	s.Out = &out

	err := s.Run(context.Background(), movie, Options{Backend: BackendNginx, Raw: true})
	if !errors.Is(err, config.ErrNoActiveConfig) {
		t.Errorf("err = %v, want ErrNoActiveConfig", err)
	}

	err = s.Run(context.Background(), movie, Options{Backend: BackendPlex, Raw: true})
	if !errors.Is(err, config.ErrNoActiveConfig) {
		t.Errorf("err = %v, want ErrNoActiveConfig", err)
	}
}

func TestRunSidecarSubtitlesGetPlayerPage(t *testing.T) {
	dir := t.TempDir()
	movie := filepath.Join(dir, "movie.mp4")
	sub := filepath.Join(dir, "movie.en.srt")
	touch(t, movie)
	if err := os.WriteFile(sub, []byte("1\n00:00:01,000 --> 00:00:02,000\nhello\n"), 0644); err != nil {
		t.Fatal(err)
	}

	prober := &fakeProber{infos: map[string]*ffmpeg.MediaInfo{movie: browserReady(movie)}}
	encoder := &fakeEncoder{}
	s := New(nginxState(dir), prober, encoder)
	var out bytes.Buffer
	s.Out = &out

	opts := Options{
		Backend: BackendNginx,
		Tracks:  media.TrackOptions{SubtitleFile: sub},
	}
	if err := s.Run(context.Background(), movie, opts); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if encoder.toVTT != 1 {
		t.Errorf("SubtitleToVTT called %d times, want 1", encoder.toVTT)
	}
	if got, want := out.String(), "http://localhost:32000/movie.html\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if _, err := os.Stat(filepath.Join(dir, "movie.html")); err != nil {
		t.Errorf("player page was not written: %v", err)
	}
}
