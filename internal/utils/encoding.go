package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// EnforceUTF8 makes sure a text file (typically a subtitle sidecar) is
// UTF-8 encoded. Valid UTF-8 files are returned as-is; everything else is
// re-encoded into a `<name>.utf8<ext>` sibling and that path is returned.
//
// Browsers refuse to render <track> subtitles in legacy encodings, hence
// the conversion before the file is ever referenced from a player page.
func EnforceUTF8(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	decoded, ok := decodeText(raw)
	if ok {
		return path, nil
	}

	ext := filepath.Ext(path)
	out := strings.TrimSuffix(path, ext) + ".utf8" + ext
	if err := os.WriteFile(out, decoded, 0644); err != nil {
		return "", err
	}
	return out, nil
}

// decodeText returns file content as UTF-8. The second return value is
// true when the input already was valid UTF-8.
func decodeText(raw []byte) ([]byte, bool) {
	// UTF-16 files carry a BOM, subtitle editors on windows produce them
	if bytes.HasPrefix(raw, []byte{0xFF, 0xFE}) || bytes.HasPrefix(raw, []byte{0xFE, 0xFF}) {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		if out, err := dec.Bytes(raw); err == nil {
			return out, false
		}
	}

	if utf8.Valid(raw) {
		return raw, true
	}

	// fall back to windows-1252, the overwhelmingly common legacy case
	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return raw, true
	}
	return out, false
}
