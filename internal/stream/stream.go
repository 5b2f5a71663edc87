package stream

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/solesensei/browser-stream/internal/config"
	"github.com/solesensei/browser-stream/internal/ffmpeg"
	"github.com/solesensei/browser-stream/internal/media"
	"github.com/solesensei/browser-stream/internal/utils"
)

// Encoder is the external media-encoding tool, behind an interface so
// tests can observe invocations without ffmpeg installed.
type Encoder interface {
	ConvertToMP4(ctx context.Context, job ffmpeg.ConvertJob) error
	SubtitleToVTT(ctx context.Context, subtitleFile, outputFile, lang string) error
	ExtractSubtitle(ctx context.Context, mediaFile string, streamIndex int, outputFile, lang string) error
	ExtractAudio(ctx context.Context, mediaFile string, streamIndex int, outputFile, lang, codec, bitrate string) error
	ConvertAudio(ctx context.Context, audioFile, outputFile, lang, codec, bitrate string) error
}

// Options carries the stream command's flags.
type Options struct {
	Backend Backend

	// serve the source file unchanged, skipping all encoder work
	Raw bool
	// stop after conversion, do not emit a URL
	PrepareOnly bool
	// redo conversions even when an up-to-date output exists
	Overwrite bool

	Tracks media.TrackOptions
}

// Streamer runs the prepare-and-share pipeline: classify the input,
// select tracks, convert, then print the stream URL per item.
type Streamer struct {
	State   *config.State
	Prober  media.Prober
	Encoder Encoder

	// final URLs go here, everything else goes to the log
	Out io.Writer

	logger zerolog.Logger
}

func New(state *config.State, prober media.Prober, encoder Encoder) *Streamer {
	return &Streamer{
		State:   state,
		Prober:  prober,
		Encoder: encoder,
		Out:     os.Stdout,
		logger:  log.With().Str("module", "stream").Logger(),
	}
}

// Run processes one input path: a single file or a whole directory
// batch. Batch processing is strictly sequential and stops at the first
// failing item.
func (s *Streamer) Run(ctx context.Context, path string, opts Options) error {
	if err := s.checkBackend(opts); err != nil {
		return err
	}

	classified, err := media.Classify(path)
	if err != nil {
		return err
	}

	items, err := media.Batch(classified)
	if err != nil {
		return err
	}

	ev := s.logger.Info().Stringer("kind", classified.Kind).Int("items", len(items))
	if classified.Kind == media.KindTvShowDirectory {
		ev = ev.Int("start_episode", classified.StartEpisode)
	}
	ev.Msg("input classified")

	for i := range items {
		if err := s.runItem(ctx, &items[i], opts); err != nil {
			// abort the rest of the batch, rerunning starts over
			return fmt.Errorf("%s: %w", items[i].Path, err)
		}
	}
	return nil
}

func (s *Streamer) checkBackend(opts Options) error {
	switch opts.Backend {
	case BackendNginx:
		if s.State.Nginx == nil {
			return fmt.Errorf("%w: run `browser-stream setup nginx` first", config.ErrNoActiveConfig)
		}
	case BackendPlex:
		if s.State.Plex == nil {
			return fmt.Errorf("%w: run `browser-stream setup plex` first", config.ErrNoActiveConfig)
		}
	}
	return nil
}

func (s *Streamer) runItem(ctx context.Context, item *media.Item, opts Options) error {
	logger := s.logger.With().Str("media", item.Path).Logger()

	if opts.Raw {
		// served as-is; an unsupported container fails at playback time
		if media.Ext(item.Path) != "mp4" {
			logger.Warn().Msg("raw mode: container is not mp4, browsers will likely refuse to play it")
		}
		item.OutputPath = item.Path
	} else {
		sel, err := media.SelectTracks(ctx, s.Prober, item.Path, opts.Tracks)
		if err != nil {
			return err
		}
		logger.Info().
			Str("audio_lang", sel.AudioLang).
			Str("audio_codec", sel.AudioCodec).
			Bool("subtitles", sel.HasSubtitle()).
			Msg("tracks selected")

		if err := s.convert(ctx, item, sel, opts); err != nil {
			return err
		}
	}

	if opts.PrepareOnly {
		logger.Info().Str("output", item.OutputPath).Msg("prepared, skipping url")
		return nil
	}

	target := item.OutputPath
	var err error

	// sidecar subtitles need a player page, a bare file URL cannot
	// reference them
	if item.SubtitlePath != "" && !item.SubtitlesBurned && opts.Backend == BackendNginx {
		target, err = s.playerPage(item)
		if err != nil {
			return err
		}
	}

	var streamURL string
	switch opts.Backend {
	case BackendNginx:
		streamURL, err = NginxURL(s.State.Nginx, target)
	case BackendPlex:
		streamURL, err = PlexURL(s.State.Plex, target)
	}
	if err != nil {
		return err
	}

	logger.Info().Str("url", streamURL).Msg("ready to stream")
	fmt.Fprintln(s.Out, streamURL)
	return nil
}

func (s *Streamer) playerPage(item *media.Item) (string, error) {
	videoURL, err := NginxURL(s.State.Nginx, item.OutputPath)
	if err != nil {
		return "", err
	}
	subtitleURL, err := NginxURL(s.State.Nginx, item.SubtitlePath)
	if err != nil {
		return "", err
	}

	htmlPath, err := WritePlayerPage(item.OutputPath, videoURL, subtitleURL, item.SubtitleLang)
	if err != nil {
		return "", err
	}
	s.logger.Info().Str("path", htmlPath).Msg("player page written")
	return htmlPath, nil
}

// convert materializes the selection: audio normalized to a browser-safe
// codec, subtitles extracted/converted, container remuxed to MP4.
func (s *Streamer) convert(ctx context.Context, item *media.Item, sel *media.Selection, opts Options) error {
	audioFile, audioStream := sel.AudioFile, sel.AudioStream

	// external audio in a non-browser codec is converted up front
	if audioFile != "" && sel.AudioCodec != ffmpeg.BrowserAudioCodec {
		aac := media.DerivedPath(audioFile, sel.AudioLang, ffmpeg.BrowserAudioCodec)
		if s.needsWork(aac, opts) {
			if err := s.Encoder.ConvertAudio(ctx, audioFile, aac, sel.AudioLang, ffmpeg.BrowserAudioCodec, ffmpeg.BrowserAudioBitrate); err != nil {
				return err
			}
		}
		audioFile = aac
	}

	// ditto for an internal stream, extracted into a sidecar first
	if audioFile == "" && audioStream >= 0 && sel.AudioCodec != ffmpeg.BrowserAudioCodec {
		aac := media.DerivedPath(item.Path, sel.AudioLang, ffmpeg.BrowserAudioCodec)
		if s.needsWork(aac, opts) {
			if err := s.Encoder.ExtractAudio(ctx, item.Path, audioStream, aac, sel.AudioLang, ffmpeg.BrowserAudioCodec, ffmpeg.BrowserAudioBitrate); err != nil {
				return err
			}
		}
		audioFile, audioStream = aac, -1
	}

	// an internal subtitle stream becomes a sidecar file first
	subtitleFile := sel.SubtitleFile
	if subtitleFile == "" && sel.SubtitleStream >= 0 {
		out := media.DerivedPath(item.Path, sel.SubtitleLang, subtitleExt(sel.SubtitleCodec))
		if s.needsWork(out, opts) {
			if err := s.Encoder.ExtractSubtitle(ctx, item.Path, sel.SubtitleStream, out, sel.SubtitleLang); err != nil {
				return err
			}
		}
		subtitleFile = out
	}

	if subtitleFile != "" {
		var err error
		subtitleFile, err = utils.EnforceUTF8(subtitleFile)
		if err != nil {
			return fmt.Errorf("subtitle encoding check: %w", err)
		}
	}

	embed := sel.SubtitleMode == media.SubtitleEmbed
	burn := sel.SubtitleMode == media.SubtitleBurn

	// a browser-ready source playing its default audio track needs no
	// remux; a non-default track selection must be remapped
	if media.Ext(item.Path) == "mp4" && audioFile == "" && !embed && !burn &&
		(audioStream < 0 || sel.AudioIsDefault) {
		item.OutputPath = item.Path
	} else {
		output := media.StreamOutputPath(item.Path, sel.AudioLang)
		if s.outputReusable(ctx, output, sel, opts) {
			s.logger.Info().Str("output", output).Msg("using existing converted file")
		} else {
			job := ffmpeg.ConvertJob{
				Input:          item.Path,
				Output:         output,
				AudioFile:      audioFile,
				AudioStream:    audioStream,
				AudioLang:      sel.AudioLang,
				SubtitleLang:   sel.SubtitleLang,
				EmbedSubtitles: embed,
				BurnSubtitles:  burn,
			}
			if embed || burn {
				job.SubtitleFile = subtitleFile
			}
			if err := s.Encoder.ConvertToMP4(ctx, job); err != nil {
				return err
			}
		}
		item.OutputPath = output
	}

	// sidecar delivery needs webvtt, the only format <track> accepts
	if sel.SubtitleMode == media.SubtitleSidecar && subtitleFile != "" {
		if media.Ext(subtitleFile) != "vtt" {
			vtt := media.DerivedPath(subtitleFile, sel.SubtitleLang, "vtt")
			if s.needsWork(vtt, opts) {
				if err := s.Encoder.SubtitleToVTT(ctx, subtitleFile, vtt, sel.SubtitleLang); err != nil {
					return err
				}
			}
			subtitleFile = vtt
		}
		item.SubtitlePath = subtitleFile
		item.SubtitleLang = sel.SubtitleLang
	}

	item.SubtitlesBurned = burn
	return nil
}

// needsWork reports whether an output file still has to be generated.
func (s *Streamer) needsWork(path string, opts Options) bool {
	if opts.Overwrite {
		return true
	}
	_, err := os.Stat(path)
	return err != nil
}

// outputReusable reports whether an existing converted file already
// carries the requested tracks. Converted outputs share one name per
// audio language, so an earlier run with different subtitle handling
// leaves a stale file behind under the same name.
func (s *Streamer) outputReusable(ctx context.Context, path string, sel *media.Selection, opts Options) bool {
	if opts.Overwrite {
		return false
	}
	if _, err := os.Stat(path); err != nil {
		return false
	}

	info, err := s.Prober.Probe(ctx, path)
	if err != nil {
		s.logger.Warn().Err(err).Str("output", path).Msg("existing output is unreadable, reconverting")
		return false
	}

	if sel.AudioFile != "" || sel.AudioStream >= 0 {
		audios := info.Audios()
		if len(audios) == 0 || !media.LangMatches(audios[0].Language, sel.AudioLang) {
			return false
		}
	}

	burned := info.BurnedSubtitlesLang()
	switch sel.SubtitleMode {
	case media.SubtitleBurn:
		return burned != "" && media.LangMatches(burned, sel.SubtitleLang)
	case media.SubtitleEmbed:
		subs := info.Subtitles()
		return burned == "" && len(subs) > 0 && media.LangMatches(subs[0].Language, sel.SubtitleLang)
	}
	return burned == ""
}

func subtitleExt(codec string) string {
	switch codec {
	case "subrip", "srt":
		return "srt"
	case "ass", "ssa":
		return "ass"
	case "webvtt", "vtt":
		return "vtt"
	case "mov_text":
		return "srt"
	}
	return "srt"
}
