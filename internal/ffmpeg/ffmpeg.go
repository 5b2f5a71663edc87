package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/solesensei/browser-stream/internal/utils"
)

// ErrConversionFailed wraps a non-zero ffmpeg exit, with the tool's
// diagnostic output attached to the message.
var ErrConversionFailed = errors.New("conversion failed")

const (
	// codecs browsers can play back natively in a progressive MP4
	BrowserAudioCodec   = "aac"
	BrowserAudioBitrate = "192k"

	DefaultCRF    = "23"
	DefaultPreset = "veryfast"
)

type Runner struct {
	FFmpegBinary  string
	FFprobeBinary string

	logger zerolog.Logger
}

func NewRunner(ffmpegBinary, ffprobeBinary string) *Runner {
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	if ffprobeBinary == "" {
		ffprobeBinary = "ffprobe"
	}

	return &Runner{
		FFmpegBinary:  ffmpegBinary,
		FFprobeBinary: ffprobeBinary,
		logger:        log.With().Str("module", "ffmpeg").Logger(),
	}
}

// Installed reports whether both binaries are resolvable in PATH.
func (r *Runner) Installed() error {
	for _, bin := range []string{r.FFmpegBinary, r.FFprobeBinary} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("'%s' is not found in PATH: %w", bin, err)
		}
	}
	return nil
}

func (r *Runner) run(ctx context.Context, args []string) error {
	r.logger.Debug().Str("cmd", r.FFmpegBinary+" "+strings.Join(args, " ")).Msg("running command")

	cmd := exec.CommandContext(ctx, r.FFmpegBinary, args...)

	var stderr bytes.Buffer
	cmd.Stdout = utils.LogWriter(r.logger)
	cmd.Stderr = io.MultiWriter(&stderr, utils.LogWriter(r.logger))

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrConversionFailed, err, tail(stderr.String(), 20))
	}
	return nil
}

// tail returns the last n lines of s, where ffmpeg puts its actual error.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// ConvertJob describes a single remux/transcode of a media file into a
// browser-playable MP4.
type ConvertJob struct {
	Input  string
	Output string

	// external audio sidecar, added as a second input
	AudioFile string
	// internal audio stream index, used when AudioFile is empty; -1 selects none
	AudioStream int
	AudioLang   string

	SubtitleFile string
	SubtitleLang string
	// embed subtitles as a mov_text stream instead of leaving a sidecar
	EmbedSubtitles bool
	// re-encode video with subtitles burned into the picture
	BurnSubtitles bool
}

// Args builds the fixed-shape ffmpeg argument list for the job. Video is
// stream-copied unless subtitles are burned in.
func (j ConvertJob) Args() []string {
	args := []string{"-i", j.Input}

	inputIndex := 0
	audioInput, subtitleInput := 0, 0
	if j.AudioFile != "" {
		inputIndex++
		audioInput = inputIndex
		args = append(args, "-i", j.AudioFile)
	}
	if j.SubtitleFile != "" && j.EmbedSubtitles && !j.BurnSubtitles {
		inputIndex++
		subtitleInput = inputIndex
		args = append(args, "-i", j.SubtitleFile)
	}

	args = append(args, "-map", "0:v:0")

	if j.BurnSubtitles && j.SubtitleFile != "" {
		args = append(args,
			"-c:v", "libx264",
			"-crf", DefaultCRF,
			"-preset", DefaultPreset,
			"-vf", fmt.Sprintf("subtitles=%s", j.SubtitleFile),
			"-metadata", fmt.Sprintf("comment=burned-subs-lang:%s", langCode(j.SubtitleLang, 3)),
		)
	} else {
		args = append(args, "-c:v", "copy")
	}

	switch {
	case j.AudioFile != "":
		args = append(args, "-map", fmt.Sprintf("%d:a:0", audioInput), "-c:a", "copy")
	case j.AudioStream >= 0:
		args = append(args, "-map", fmt.Sprintf("0:%d", j.AudioStream), "-c:a", "copy")
	}
	if j.AudioLang != "" {
		args = append(args, "-metadata:s:a:0", fmt.Sprintf("language=%s", langCode(j.AudioLang, 3)))
	}

	if j.SubtitleFile != "" && j.EmbedSubtitles && !j.BurnSubtitles {
		args = append(args,
			"-map", fmt.Sprintf("%d:0", subtitleInput),
			"-c:s", "mov_text",
			"-metadata:s:s:0", fmt.Sprintf("language=%s", langCode(j.SubtitleLang, 3)),
		)
	}

	return append(args, "-y", j.Output)
}

// ConvertToMP4 runs the job, blocking until ffmpeg exits.
func (r *Runner) ConvertToMP4(ctx context.Context, job ConvertJob) error {
	if job.Input == job.Output {
		return fmt.Errorf("output file %s cannot be the same as input file", job.Output)
	}
	r.logger.Info().Str("input", job.Input).Str("output", job.Output).Msg("converting media file to mp4")
	return r.run(ctx, job.Args())
}

// SubtitleToVTT converts a subtitle file into WebVTT, the only subtitle
// format HTML5 <track> accepts.
func (r *Runner) SubtitleToVTT(ctx context.Context, subtitleFile, outputFile, lang string) error {
	if subtitleFile == outputFile {
		return fmt.Errorf("output file %s cannot be the same as input file", outputFile)
	}
	r.logger.Info().Str("input", subtitleFile).Str("output", outputFile).Msg("converting subtitle to vtt")

	args := []string{
		"-i", subtitleFile,
		"-c:s", "webvtt",
	}
	if lang != "" {
		args = append(args, "-metadata:s:s:0", fmt.Sprintf("language=%s", langCode(lang, 3)))
	}
	args = append(args, "-y", outputFile)
	return r.run(ctx, args)
}

// ExtractSubtitle demuxes one subtitle stream into a standalone file.
func (r *Runner) ExtractSubtitle(ctx context.Context, mediaFile string, streamIndex int, outputFile, lang string) error {
	r.logger.Info().Str("input", mediaFile).Int("stream", streamIndex).Str("output", outputFile).Msg("extracting subtitle stream")

	args := []string{
		"-i", mediaFile,
		"-map", fmt.Sprintf("0:%d", streamIndex),
	}
	if lang != "" {
		args = append(args, "-metadata:s:s:0", fmt.Sprintf("language=%s", langCode(lang, 3)))
	}
	args = append(args, "-y", outputFile)
	return r.run(ctx, args)
}

// ExtractAudio demuxes one audio stream, optionally converting it to a
// browser-safe codec.
func (r *Runner) ExtractAudio(ctx context.Context, mediaFile string, streamIndex int, outputFile, lang, codec, bitrate string) error {
	r.logger.Info().Str("input", mediaFile).Int("stream", streamIndex).Str("output", outputFile).Msg("extracting audio stream")

	args := []string{
		"-i", mediaFile,
		"-map", fmt.Sprintf("0:%d", streamIndex),
	}
	if lang != "" {
		args = append(args, "-metadata:s:a:0", fmt.Sprintf("language=%s", langCode(lang, 3)))
	}
	if codec == "" {
		args = append(args, "-c:a", "copy")
	} else {
		args = append(args, "-c:a", codec)
		if bitrate != "" {
			args = append(args, "-b:a", bitrate)
		}
	}
	args = append(args, "-y", outputFile)
	return r.run(ctx, args)
}

// ConvertAudio re-encodes a standalone audio file.
func (r *Runner) ConvertAudio(ctx context.Context, audioFile, outputFile, lang, codec, bitrate string) error {
	if audioFile == outputFile {
		return fmt.Errorf("output file %s cannot be the same as input file", outputFile)
	}
	r.logger.Info().Str("input", audioFile).Str("output", outputFile).Str("codec", codec).Msg("converting audio file")

	args := []string{
		"-i", audioFile,
		"-c:a", codec,
		"-b:a", bitrate,
	}
	if lang != "" {
		args = append(args, "-metadata:s:a:0", fmt.Sprintf("language=%s", langCode(lang, 3)))
	}
	args = append(args, "-y", outputFile)
	return r.run(ctx, args)
}

func langCode(lang string, max int) string {
	lang = strings.ToLower(lang)
	if len(lang) > max {
		return lang[:max]
	}
	return lang
}
