package format

import (
	"regexp"
	"strings"
)

var (
	brRe       = regexp.MustCompile(`<br\s*/?>`)
	tagRe      = regexp.MustCompile(`<.*?>`)
	edgeWSRe   = regexp.MustCompile(`[^\S\n]*\n[^\S\n]*`)
	newlinesRe = regexp.MustCompile(`\n+`)
	spacesRe   = regexp.MustCompile(`[^\S\n]{2,}`)
)

// Clean strips HTML from answer text and collapses whitespace. Line breaks
// survive as single newlines. Clean(Clean(s)) == Clean(s).
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = brRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, "")
	s = edgeWSRe.ReplaceAllString(s, "\n")
	s = newlinesRe.ReplaceAllString(s, "\n")
	s = spacesRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
