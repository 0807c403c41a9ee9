package format

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const defaultGlyph = "📄"

// Checked in order; the first substring found in the display name wins.
var categoryGlyphs = []struct {
	substr string
	glyph  string
}{
	{"report", "📊"},
	{"case", "💼"},
	{"study", "🔬"},
	{"analysis", "📈"},
}

// Citations renders one link line per index where both the citation and the
// hyperlink are present and non-empty. Input order is kept.
func Citations(citations, hyperlinks []string) []string {
	n := len(citations)
	if len(hyperlinks) > n {
		n = len(hyperlinks)
	}
	var lines []string
	for i := 0; i < n; i++ {
		if i >= len(citations) || i >= len(hyperlinks) {
			continue
		}
		c, h := strings.TrimSpace(citations[i]), strings.TrimSpace(hyperlinks[i])
		if c == "" || h == "" {
			continue
		}
		line, err := citationLine(i, c, h)
		if err != nil {
			line = fmt.Sprintf("%s [Source %d](%s)", defaultGlyph, i+1, h)
		}
		lines = append(lines, line)
	}
	return lines
}

func citationLine(i int, citation, hyperlink string) (string, error) {
	link, err := encodeLink(hyperlink)
	if err != nil {
		return "", err
	}
	name := DisplayName(citation)
	if name == "" {
		name = fmt.Sprintf("Source %d", i+1)
	}
	return fmt.Sprintf("%s [%s](%s)", Glyph(name), name, link), nil
}

// DisplayName turns a source path such as "docs/Annual_Report__v2.pdf" into
// "Annual Report".
func DisplayName(citation string) string {
	name := citation
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ReplaceAll(name, "%20", " ")
	if i := strings.Index(name, "__"); i >= 0 {
		name = name[:i]
	}
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)

	words := strings.Fields(name)
	caser := cases.Title(language.Und)
	for i, w := range words {
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}

// Glyph picks the category icon for a display name.
func Glyph(name string) string {
	lower := strings.ToLower(name)
	for _, g := range categoryGlyphs {
		if strings.Contains(lower, g.substr) {
			return g.glyph
		}
	}
	return defaultGlyph
}

var errBadLink = errors.New("hyperlink is not a usable URL")

// encodeLink percent-encodes characters that would break a Markdown link while
// keeping URL delimiters such as ?, = and & intact.
func encodeLink(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" && u.Host == "" && u.Path == "" {
		return "", errBadLink
	}
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if keepInLink(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String(), nil
}

func keepInLink(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("-_.~:/?#[]@!$&'*+,;=%", c) >= 0
}
