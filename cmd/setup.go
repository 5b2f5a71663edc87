package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/solesensei/browser-stream/internal/config"
	"github.com/solesensei/browser-stream/internal/nginx"
	"github.com/solesensei/browser-stream/internal/plex"
	"github.com/solesensei/browser-stream/internal/utils"
)

func init() {
	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "configure a serving backend",
	}

	setupCmd.AddCommand(setupNginxCommand())
	setupCmd.AddCommand(setupPlexCommand())
	rootCmd.AddCommand(setupCmd)
}

func setupNginxCommand() *cobra.Command {
	var (
		mediaDir    string
		ipv4        bool
		ipv6        bool
		port        int
		domain      string
		host        string
		ssl         bool
		updateToken bool
		siteName    string
		allowIndex  bool
		reset       bool
		skipReload  bool
	)

	command := &cobra.Command{
		Use:   "nginx",
		Short: "generate and install the nginx site configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			service := nginx.NewService()
			statePath := config.Path()

			if reset {
				if err := service.RemoveSite(siteName); err != nil {
					return err
				}
				state, err := config.Load(statePath)
				if err != nil {
					return err
				}
				state.Nginx = nil
				return state.Save(statePath)
			}

			if mediaDir == "" {
				return fmt.Errorf("--media-dir is required")
			}
			absDir, err := filepath.Abs(mediaDir)
			if err != nil {
				return err
			}

			if err := service.Installed(); err != nil {
				return err
			}

			state, err := config.Load(statePath)
			if err != nil {
				return err
			}

			// the generic backend works without a token; one is only
			// generated when asked for, and kept across reconfigures
			token := ""
			if state.Nginx != nil {
				token = state.Nginx.Token
			}
			wantToken, _ := cmd.Flags().GetBool("token")
			if updateToken || (wantToken && token == "") {
				log.Info().Msg("generating new access token")
				token, err = utils.GenerateToken()
				if err != nil {
					return err
				}
			}

			params := nginx.SiteParams{
				MediaDir:   absDir,
				Port:       port,
				IPv4:       ipv4,
				IPv6:       ipv6,
				SSL:        ssl,
				Domain:     domain,
				Token:      token,
				AllowIndex: allowIndex,
			}
			content, err := nginx.Render(params)
			if err != nil {
				return err
			}

			if service.SiteUpToDate(siteName, content) {
				log.Info().Msg("nginx site configuration is up-to-date")
			} else {
				if err := service.WriteSite(siteName, content); err != nil {
					return err
				}
				if !skipReload {
					if err := service.Test(cmd.Context()); err != nil {
						return err
					}
					if err := service.Reload(cmd.Context()); err != nil {
						return err
					}
				}
			}

			state.Nginx = &config.Nginx{
				MediaDir:   absDir,
				Host:       host,
				Domain:     domain,
				Port:       port,
				IPv4:       ipv4,
				IPv6:       ipv6,
				SSL:        ssl,
				Token:      token,
				SiteName:   siteName,
				AllowIndex: allowIndex,
			}
			if err := state.Save(statePath); err != nil {
				return err
			}

			log.Info().Str("site", siteName).Msg("nginx backend configured")
			if allowIndex {
				log.Warn().Msg("directory listing is enabled, anyone with the URL can browse your media files")
			}
			return nil
		},
	}

	command.Flags().StringVar(&mediaDir, "media-dir", "", "path to the media root directory")
	command.Flags().BoolVar(&ipv4, "ipv4", true, "listen on IPv4")
	command.Flags().BoolVar(&ipv6, "ipv6", false, "listen on IPv6")
	command.Flags().IntVar(&port, "port", 32000, "port to listen on")
	command.Flags().StringVar(&domain, "domain", "", "domain name, required for ssl")
	command.Flags().StringVar(&host, "host", "", "public host or IP used in stream URLs when no domain is set")
	command.Flags().BoolVar(&ssl, "ssl", false, "enable TLS in the generated site")
	command.Flags().BoolVar(&updateToken, "update-token", false, "rotate the URL access token")
	command.Flags().Bool("token", false, "guard stream URLs with a generated x-token")
	command.Flags().StringVar(&siteName, "site-name", "browser_stream", "name of the nginx site configuration file")
	command.Flags().BoolVar(&allowIndex, "allow-index", false, "allow directory listing")
	command.Flags().BoolVar(&reset, "reset", false, "remove the site configuration and stored settings")
	command.Flags().BoolVar(&skipReload, "skip-reload", false, "write the site file without testing and reloading nginx")

	return command
}

func setupPlexCommand() *cobra.Command {
	var (
		mediaDir    string
		xToken      string
		serverID    string
		baseURL     string
		downloadURL string
	)

	command := &cobra.Command{
		Use:   "plex",
		Short: "store Plex credentials for direct stream URLs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if mediaDir == "" {
				return fmt.Errorf("--media-dir is required")
			}
			absDir, err := filepath.Abs(mediaDir)
			if err != nil {
				return err
			}

			creds, err := plex.Resolve(xToken, serverID, baseURL, downloadURL)
			if err != nil {
				return err
			}

			statePath := config.Path()
			state, err := config.Load(statePath)
			if err != nil {
				return err
			}
			state.Plex = &config.Plex{
				MediaDir: absDir,
				Token:    creds.Token,
				ServerID: creds.ServerID,
				BaseURL:  creds.BaseURL,
			}
			if err := state.Save(statePath); err != nil {
				return err
			}

			log.Info().Str("base_url", creds.BaseURL).Msg("plex backend configured")
			return nil
		},
	}

	command.Flags().StringVar(&mediaDir, "media-dir", "", "path to the media root directory")
	command.Flags().StringVar(&xToken, "x-token", "", "X-Plex-Token value")
	command.Flags().StringVar(&serverID, "server-id", "", "plex.direct server identifier")
	command.Flags().StringVar(&baseURL, "base-url", "", "Plex server base URL (default derived from --server-id)")
	command.Flags().StringVar(&downloadURL, "download-url", "", "pasted Plex download URL to extract credentials from")

	return command
}
