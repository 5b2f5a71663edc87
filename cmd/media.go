package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/solesensei/browser-stream/internal/config"
	"github.com/solesensei/browser-stream/internal/ffmpeg"
	"github.com/solesensei/browser-stream/internal/plex"
)

func init() {
	mediaCmd := &cobra.Command{
		Use:   "media",
		Short: "media file helpers",
	}

	mediaCmd.AddCommand(&cobra.Command{
		Use:   "info <file>",
		Short: "print container and stream information",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := ffmpeg.NewRunner(viper.GetString("ffmpeg-binary"), viper.GetString("ffprobe-binary"))
			if err := runner.Installed(); err != nil {
				return err
			}

			info, err := runner.Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := struct {
				Path     string           `json:"path"`
				Format   []string         `json:"format"`
				Duration string           `json:"duration"`
				BitRate  string           `json:"bit_rate,omitempty"`
				Title    string           `json:"title,omitempty"`
				Streams  []mediaInfoEntry `json:"streams"`
			}{
				Path:     info.Path,
				Format:   info.FormatName,
				Duration: info.Duration.String(),
				BitRate:  info.BitRate,
				Title:    info.Title,
			}
			for _, s := range info.Streams {
				out.Streams = append(out.Streams, mediaInfoEntry{
					Index:    s.Index,
					Type:     string(s.Type),
					Codec:    s.Codec,
					Language: s.Language,
					Title:    s.Title,
				})
			}

			raw, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return nil
		},
	})

	mediaCmd.AddCommand(&cobra.Command{
		Use:   "locate <file>",
		Short: "look up a file's library key on the configured Plex server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := config.Load(config.Path())
			if err != nil {
				return err
			}
			if state.Plex == nil {
				return fmt.Errorf("%w: run `browser-stream setup plex` first", config.ErrNoActiveConfig)
			}

			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			client := plex.NewClient(state.Plex.BaseURL, state.Plex.Token)
			key, err := client.LibraryKeyByPath(cmd.Context(), path)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	})

	rootCmd.AddCommand(mediaCmd)
}

type mediaInfoEntry struct {
	Index    int    `json:"index"`
	Type     string `json:"type"`
	Codec    string `json:"codec"`
	Language string `json:"language,omitempty"`
	Title    string `json:"title,omitempty"`
}
