package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/solesensei/browser-stream/internal/config"
	"github.com/solesensei/browser-stream/internal/ffmpeg"
	"github.com/solesensei/browser-stream/internal/media"
	"github.com/solesensei/browser-stream/internal/stream"
)

type streamConfig struct {
	Server       string
	Raw          bool
	PrepareOnly  bool
	Overwrite    bool
	EmbedSubs    bool
	BurnSubs     bool
	ScanExternal bool
	AudioLang    string
	SubtitleLang string
	AudioFile    string
	SubtitleFile string
}

func (streamConfig) Init(cmd *cobra.Command) error {
	cmd.Flags().String("server", "nginx", "serving backend, nginx or plex")
	if err := viper.BindPFlag("server", cmd.Flags().Lookup("server")); err != nil {
		return err
	}

	cmd.Flags().Bool("raw", false, "skip conversion and serve the source file unchanged")
	if err := viper.BindPFlag("raw", cmd.Flags().Lookup("raw")); err != nil {
		return err
	}

	cmd.Flags().Bool("prepare-only", false, "convert the media but do not emit a URL")
	if err := viper.BindPFlag("prepare-only", cmd.Flags().Lookup("prepare-only")); err != nil {
		return err
	}

	cmd.Flags().Bool("overwrite", false, "redo conversions even when outputs already exist")
	if err := viper.BindPFlag("overwrite", cmd.Flags().Lookup("overwrite")); err != nil {
		return err
	}

	cmd.Flags().Bool("embed-subs", false, "mux selected subtitles into the MP4 instead of a sidecar file")
	if err := viper.BindPFlag("embed-subs", cmd.Flags().Lookup("embed-subs")); err != nil {
		return err
	}

	cmd.Flags().Bool("burn-subs", false, "re-encode video with subtitles burned into the picture")
	if err := viper.BindPFlag("burn-subs", cmd.Flags().Lookup("burn-subs")); err != nil {
		return err
	}

	cmd.Flags().Bool("scan-external", false, "search sibling audio/subtitle files next to the media")
	if err := viper.BindPFlag("scan-external", cmd.Flags().Lookup("scan-external")); err != nil {
		return err
	}

	cmd.Flags().String("audio-lang", "", "preferred audio language code, e.g. en, rus")
	if err := viper.BindPFlag("audio-lang", cmd.Flags().Lookup("audio-lang")); err != nil {
		return err
	}

	cmd.Flags().String("subtitle-lang", "", "preferred subtitle language code")
	if err := viper.BindPFlag("subtitle-lang", cmd.Flags().Lookup("subtitle-lang")); err != nil {
		return err
	}

	cmd.Flags().String("audio-file", "", "explicit external audio file to use")
	if err := viper.BindPFlag("audio-file", cmd.Flags().Lookup("audio-file")); err != nil {
		return err
	}

	cmd.Flags().String("subtitle-file", "", "explicit external subtitle file to use")
	if err := viper.BindPFlag("subtitle-file", cmd.Flags().Lookup("subtitle-file")); err != nil {
		return err
	}

	return nil
}

func (c *streamConfig) Set() {
	c.Server = viper.GetString("server")
	c.Raw = viper.GetBool("raw")
	c.PrepareOnly = viper.GetBool("prepare-only")
	c.Overwrite = viper.GetBool("overwrite")
	c.EmbedSubs = viper.GetBool("embed-subs")
	c.BurnSubs = viper.GetBool("burn-subs")
	c.ScanExternal = viper.GetBool("scan-external")
	c.AudioLang = viper.GetString("audio-lang")
	c.SubtitleLang = viper.GetString("subtitle-lang")
	c.AudioFile = viper.GetString("audio-file")
	c.SubtitleFile = viper.GetString("subtitle-file")
}

func init() {
	cfg := &streamConfig{}

	command := &cobra.Command{
		Use:   "stream <path>",
		Short: "prepare a media file or directory and print its stream URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Set()
			return runStream(cmd, args[0], cfg)
		},
	}

	if err := cfg.Init(command); err != nil {
		log.Panic().Err(err).Msg("unable to set up stream command")
	}

	rootCmd.AddCommand(command)
}

func runStream(cmd *cobra.Command, path string, cfg *streamConfig) error {
	backend, err := stream.ParseBackend(cfg.Server)
	if err != nil {
		return err
	}
	if cfg.EmbedSubs && cfg.BurnSubs {
		return fmt.Errorf("only one of --embed-subs or --burn-subs can be enabled")
	}

	path, err = filepath.Abs(path)
	if err != nil {
		return err
	}

	state, err := config.Load(config.Path())
	if err != nil {
		return err
	}

	runner := ffmpeg.NewRunner(viper.GetString("ffmpeg-binary"), viper.GetString("ffprobe-binary"))
	if !cfg.Raw {
		if err := runner.Installed(); err != nil {
			return err
		}
	}

	mode := media.SubtitleNone
	switch {
	case cfg.BurnSubs:
		mode = media.SubtitleBurn
	case cfg.EmbedSubs:
		mode = media.SubtitleEmbed
	}

	opts := stream.Options{
		Backend:     backend,
		Raw:         cfg.Raw,
		PrepareOnly: cfg.PrepareOnly,
		Overwrite:   cfg.Overwrite,
		Tracks: media.TrackOptions{
			AudioFile:    cfg.AudioFile,
			AudioLang:    cfg.AudioLang,
			SubtitleFile: cfg.SubtitleFile,
			SubtitleLang: cfg.SubtitleLang,
			ScanExternal: cfg.ScanExternal,
			SubtitleMode: mode,
		},
	}

	return stream.New(state, runner, runner).Run(cmd.Context(), path, opts)
}
