// Package format turns a raw endpoint answer into the Markdown shown to users:
// widget markers become diagrams and tables, leftover HTML is stripped, and
// citations are listed as links.
package format

import "strings"

const (
	header         = "**Assistant:**\n"
	learnMoreTitle = "\n\n**Learn more:**\n"
)

// Message is a formatted answer before it is flattened to a string.
type Message struct {
	Body    string
	Sources []string
}

func (m Message) String() string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString(m.Body)
	if len(m.Sources) > 0 {
		b.WriteString(learnMoreTitle)
		b.WriteString(strings.Join(m.Sources, "\n"))
	}
	return b.String()
}

type Formatter struct {
	width int
}

type Option func(*Formatter)

// WithWrapWidth wraps answer text (not widget blocks) at width runes.
func WithWrapWidth(width int) Option {
	return func(f *Formatter) { f.width = width }
}

func New(opts ...Option) *Formatter {
	f := &Formatter{}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Format renders answer with its citations into the display string.
func (f *Formatter) Format(answer string, citations, hyperlinks []string) string {
	return f.Render(answer, citations, hyperlinks).String()
}

// Render is Format without the final flattening.
func (f *Formatter) Render(answer string, citations, hyperlinks []string) Message {
	return Message{
		Body:    f.Body(answer),
		Sources: Citations(citations, hyperlinks),
	}
}

// Body expands widgets and cleans the text around them.
func (f *Formatter) Body(answer string) string {
	var parts []string
	for _, seg := range expandWidgets(answer) {
		if seg.block {
			parts = append(parts, seg.text)
			continue
		}
		text := Wrap(Clean(seg.text), f.width)
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}
