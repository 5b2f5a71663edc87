package stream

import (
	"bytes"
	"html/template"
	"os"
	"strings"
)

// playerTemplate is a minimal self-contained page wiring a video source
// and a subtitle track together, for backends that serve subtitles as a
// sidecar file (HTML5 <track> cannot be attached to a bare video URL).
var playerTemplate = template.Must(template.New("player").Parse(`<video controls style="position: fixed; top: 0; left: 0; width: 100vw; height: 100vh; object-fit: cover;">
    <source src="{{ .VideoURL }}" type="video/mp4">
    <track src="{{ .SubtitleURL }}" kind="subtitles" srclang="{{ .SrcLang }}" label="{{ .Label }}" default>
    Your browser does not support the video tag.
</video>
`))

// PlayerPage renders the HTML player page for a video with sidecar
// subtitles.
func PlayerPage(videoURL, subtitleURL, lang string) (string, error) {
	if lang == "" {
		lang = "unknown"
	}

	data := struct {
		VideoURL    template.URL
		SubtitleURL template.URL
		SrcLang     string
		Label       string
	}{
		VideoURL:    template.URL(videoURL),
		SubtitleURL: template.URL(subtitleURL),
		SrcLang:     strings.ToLower(lang)[:min(2, len(lang))],
		Label:       strings.ToUpper(lang[:1]) + strings.ToLower(lang[1:]),
	}

	var buf bytes.Buffer
	if err := playerTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WritePlayerPage writes the page next to the media file and returns its
// path.
func WritePlayerPage(mediaPath, videoURL, subtitleURL, lang string) (string, error) {
	page, err := PlayerPage(videoURL, subtitleURL, lang)
	if err != nil {
		return "", err
	}

	htmlPath := strings.TrimSuffix(mediaPath, ".mp4") + ".html"
	if err := os.WriteFile(htmlPath, []byte(page), 0644); err != nil {
		return "", err
	}
	return htmlPath, nil
}
