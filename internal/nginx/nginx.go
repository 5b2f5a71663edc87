package nginx

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/solesensei/browser-stream/internal/utils"
)

// SiteParams are the inputs of the rendered site configuration.
type SiteParams struct {
	MediaDir   string
	Port       int
	IPv4       bool
	IPv6       bool
	SSL        bool
	Domain     string
	Token      string
	AllowIndex bool
}

// The generated site serves the media root directly, so stream URL paths
// and filesystem paths line up one to one. With a token set, every
// request must carry `?x-token=` or gets a 403.
var siteTemplate = template.Must(template.New("site").Parse(`server {
{{- if .IPv4 }}
    listen {{ .Port }}{{ if .SSL }} ssl{{ end }};
{{- end }}
{{- if .IPv6 }}
    listen [::]:{{ .Port }}{{ if .SSL }} ssl{{ end }};
{{- end }}
    server_name {{ if .Domain }}{{ .Domain }}{{ else }}_{{ end }};
{{- if .SSL }}

    ssl_certificate /etc/letsencrypt/live/{{ .Domain }}/fullchain.pem;
    ssl_certificate_key /etc/letsencrypt/live/{{ .Domain }}/privkey.pem;
    ssl_protocols TLSv1.2 TLSv1.3;
    ssl_ciphers HIGH:!aNULL:!MD5;

    if ($scheme != "https") {
        return 301 https://$host$request_uri;
    }
{{- end }}

    location / {
        root "{{ .MediaDir }}";
        autoindex {{ if .AllowIndex }}on{{ else }}off{{ end }};
{{- if .Token }}

        set $allow_access 0;
        set $secret "{{ .Token }}";
        if ($arg_x-token = $secret) {
            set $allow_access 1;
        }
        if ($allow_access = 0) {
            return 403;
        }
{{- end }}

        types {
            video/mp4 mp4;
            text/html html;
            text/vtt vtt;
        }
        default_type application/octet-stream;
    }
}
`))

// Render produces the site configuration text for the given parameters.
func Render(p SiteParams) (string, error) {
	if !p.IPv4 && !p.IPv6 {
		return "", fmt.Errorf("at least one of ipv4 or ipv6 must be enabled")
	}
	if p.SSL && p.Domain == "" {
		return "", fmt.Errorf("a domain name is required for an ssl configuration")
	}

	var buf bytes.Buffer
	if err := siteTemplate.Execute(&buf, p); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const (
	sitesAvailable = "/etc/nginx/sites-available"
	sitesEnabled   = "/etc/nginx/sites-enabled"
)

// Service wraps the nginx binary and its site directory layout.
type Service struct {
	Binary string
	// overridable for tests
	AvailableDir string
	EnabledDir   string

	logger zerolog.Logger
}

func NewService() *Service {
	return &Service{
		Binary:       "nginx",
		AvailableDir: sitesAvailable,
		EnabledDir:   sitesEnabled,
		logger:       log.With().Str("module", "nginx").Logger(),
	}
}

// Installed reports whether the nginx binary is resolvable in PATH.
func (s *Service) Installed() error {
	if _, err := exec.LookPath(s.Binary); err != nil {
		return fmt.Errorf("'%s' is not found in PATH: %w", s.Binary, err)
	}
	return nil
}

func (s *Service) run(ctx context.Context, args ...string) error {
	s.logger.Debug().Str("cmd", s.Binary+" "+strings.Join(args, " ")).Msg("running command")

	cmd := exec.CommandContext(ctx, s.Binary, args...)
	var out bytes.Buffer
	cmd.Stdout = utils.LogWriter(s.logger)
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("nginx %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return nil
}

// Test validates the full nginx configuration (`nginx -t`).
func (s *Service) Test(ctx context.Context) error {
	s.logger.Info().Msg("testing nginx configuration")
	return s.run(ctx, "-t")
}

// Reload signals nginx to pick up the new site (`nginx -s reload`).
func (s *Service) Reload(ctx context.Context) error {
	s.logger.Info().Msg("reloading nginx configuration")
	return s.run(ctx, "-s", "reload")
}

func (s *Service) sitePath(name string) string {
	return filepath.Join(s.AvailableDir, name)
}

func (s *Service) enabledPath(name string) string {
	return filepath.Join(s.EnabledDir, name)
}

// SiteUpToDate reports whether the written site already matches content.
func (s *Service) SiteUpToDate(name, content string) bool {
	raw, err := os.ReadFile(s.sitePath(name))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(raw)) == strings.TrimSpace(content)
}

// WriteSite writes the site file and symlinks it into the enabled dir.
func (s *Service) WriteSite(name, content string) error {
	site := s.sitePath(name)
	s.logger.Info().Str("path", site).Msg("writing site configuration")
	if err := os.WriteFile(site, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing site file (are you root?): %w", err)
	}

	enabled := s.enabledPath(name)
	if _, err := os.Lstat(enabled); os.IsNotExist(err) {
		s.logger.Info().Str("path", enabled).Msg("enabling site")
		if err := os.Symlink(site, enabled); err != nil {
			return fmt.Errorf("enabling site: %w", err)
		}
	}
	return nil
}

// RemoveSite deletes the site file and its enabled symlink.
func (s *Service) RemoveSite(name string) error {
	for _, p := range []string{s.enabledPath(name), s.sitePath(name)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	s.logger.Info().Str("site", name).Msg("site configuration removed")
	return nil
}
