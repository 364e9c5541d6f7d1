// Package export renders compiled songs as source files that embed them in
// a WASM-4 cart.
package export

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"unicode"

	"github.com/Masterminds/sprig"
)

var ErrUnknownLanguage = errors.New("unknown export language")

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(
	template.New("export").Funcs(sprig.TxtFuncMap()).ParseFS(templateFS, "templates/*.tmpl"),
)

var extensions = map[string]string{
	"c":    ".h",
	"go":   ".go",
	"rust": ".rs",
	"zig":  ".zig",
}

const bytesPerRow = 16

// Languages returns the supported languages.
func Languages() []string {
	return []string{"c", "go", "rust", "zig"}
}

// Extension returns the file extension for lang, or "" when it is unknown.
func Extension(lang string) string {
	return extensions[lang]
}

type source struct {
	Name string
	Size int
	Rows [][]string
}

// Render returns blob as a source file in lang, declared under an
// identifier derived from name.
func Render(lang, name string, blob []byte) ([]byte, error) {
	if _, ok := extensions[lang]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}

	src := source{Name: identifier(name), Size: len(blob)}
	for off := 0; off < len(blob); off += bytesPerRow {
		row := blob[off:min(off+bytesPerRow, len(blob))]
		cells := make([]string, len(row))
		for i, b := range row {
			cells[i] = fmt.Sprintf("0x%02x", b)
		}
		src.Rows = append(src.Rows, cells)
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, lang+".tmpl", src); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", lang, err)
	}
	return buf.Bytes(), nil
}

// identifier turns name into lower case words joined by underscores,
// usable as an identifier in every language.
func identifier(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	id := strings.Trim(b.String(), "_")
	for strings.Contains(id, "__") {
		id = strings.ReplaceAll(id, "__", "_")
	}
	if id == "" {
		return "song"
	}
	if unicode.IsDigit(rune(id[0])) {
		return "song_" + id
	}
	return id
}
