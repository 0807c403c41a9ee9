package format

import (
	"strings"
	"unicode/utf8"
)

// Wrap breaks each line of s on word boundaries so no line exceeds width
// runes. Words longer than width get a line of their own. width <= 0 is a no-op.
func Wrap(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = wrapLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func wrapLine(line string, width int) string {
	var b strings.Builder
	n := 0
	for _, w := range strings.Fields(line) {
		wl := utf8.RuneCountInString(w)
		switch {
		case n == 0:
		case n+1+wl > width:
			b.WriteByte('\n')
			n = 0
		default:
			b.WriteByte(' ')
			n++
		}
		b.WriteString(w)
		n += wl
	}
	return b.String()
}
