package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

type StreamType string

const (
	StreamVideo    StreamType = "video"
	StreamAudio    StreamType = "audio"
	StreamSubtitle StreamType = "subtitle"
)

type Stream struct {
	Index    int
	Type     StreamType
	Codec    string
	Language string
	Title    string

	// for video streams
	Width  int
	Height int
}

type MediaInfo struct {
	Path       string
	FormatName []string
	Duration   time.Duration
	BitRate    string
	Title      string
	Comment    string
	Streams    []Stream
}

func (m *MediaInfo) Video() *Stream {
	for i := range m.Streams {
		if m.Streams[i].Type == StreamVideo {
			return &m.Streams[i]
		}
	}
	return nil
}

func (m *MediaInfo) Audios() []Stream {
	return m.streamsOf(StreamAudio)
}

func (m *MediaInfo) Subtitles() []Stream {
	return m.streamsOf(StreamSubtitle)
}

func (m *MediaInfo) streamsOf(t StreamType) []Stream {
	var out []Stream
	for _, s := range m.Streams {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}

// BurnedSubtitlesLang reports the language of subtitles burned into the
// video stream by an earlier conversion, recorded in the container
// comment as `burned-subs-lang:<code>`.
func (m *MediaInfo) BurnedSubtitlesLang() string {
	const marker = "burned-subs-lang:"
	if i := strings.Index(m.Comment, marker); i >= 0 {
		lang := m.Comment[i+len(marker):]
		if j := strings.IndexAny(lang, " ;,"); j >= 0 {
			lang = lang[:j]
		}
		return lang
	}
	return ""
}

// Probe inspects a media file with ffprobe and returns its container and
// stream layout.
func (r *Runner) Probe(ctx context.Context, inputPath string) (*MediaInfo, error) {
	args := []string{
		"-v", "error", // hide debug information
		"-show_format",  // show container information
		"-show_streams", // show codec information
		"-of", "json",
		inputPath,
	}

	cmd := exec.CommandContext(ctx, r.FFprobeBinary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		r.logger.Debug().Str("stderr", stderr.String()).Msg("ffprobe failed")
		return nil, fmt.Errorf("ffprobe %s: %w: %s", inputPath, err, strings.TrimSpace(stderr.String()))
	}

	out := struct {
		Streams []struct {
			Index     int    `json:"index"`
			CodecName string `json:"codec_name"`
			CodecType string `json:"codec_type"`

			// for video streams
			Width  int `json:"width"`
			Height int `json:"height"`

			Tags struct {
				Language string `json:"language"`
				Title    string `json:"title"`
			} `json:"tags"`
		} `json:"streams"`
		Format struct {
			FormatName string `json:"format_name"`
			Duration   string `json:"duration"`
			BitRate    string `json:"bit_rate"`
			Tags       struct {
				Title   string `json:"title"`
				Comment string `json:"comment"`
			} `json:"tags"`
		} `json:"format"`
	}{}

	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, err
	}

	data := MediaInfo{
		Path:    inputPath,
		BitRate: out.Format.BitRate,
		Title:   out.Format.Tags.Title,
		Comment: out.Format.Tags.Comment,
	}

	for _, stream := range out.Streams {
		switch stream.CodecType {
		case "video", "audio", "subtitle":
			data.Streams = append(data.Streams, Stream{
				Index:    stream.Index,
				Type:     StreamType(stream.CodecType),
				Codec:    strings.ToLower(stream.CodecName),
				Language: strings.ToLower(stream.Tags.Language),
				Title:    stream.Tags.Title,
				Width:    stream.Width,
				Height:   stream.Height,
			})
		}
	}

	if out.Format.FormatName != "" {
		data.FormatName = strings.Split(out.Format.FormatName, ",")
	}

	if out.Format.Duration != "" {
		var err error
		data.Duration, err = time.ParseDuration(out.Format.Duration + "s")
		if err != nil {
			return nil, fmt.Errorf("unable to parse format duration: %v", err)
		}
	}

	return &data, nil
}
