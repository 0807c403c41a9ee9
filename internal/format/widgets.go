package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// segment is a run of answer text or an expanded widget block.
type segment struct {
	text  string
	block bool
}

type widgetRenderer func(payload []byte) (string, error)

var widgets = map[string]widgetRenderer{
	"chart":     renderChart,
	"table":     renderTable,
	"flowchart": renderFlowchart,
}

// expandWidgets splits s into text and rendered widget blocks in a single
// left-to-right pass. A payload that does not decode is replaced inline by an
// error marker and scanning continues.
func expandWidgets(s string) []segment {
	var (
		out  []segment
		text strings.Builder
	)
	flush := func() {
		if text.Len() > 0 {
			out = append(out, segment{text: text.String()})
			text.Reset()
		}
	}

	last := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		m, ok := scanMarker(s, i)
		if !ok {
			continue
		}
		text.WriteString(s[last:i])
		block, err := widgets[m.name]([]byte(s[m.payloadStart:m.payloadEnd]))
		if err != nil {
			fmt.Fprintf(&text, "[⚠️ %s error: %v]", m.name, err)
		} else {
			flush()
			out = append(out, segment{text: block, block: true})
		}
		last = m.end
		i = m.end - 1
	}
	text.WriteString(s[last:])
	flush()
	return out
}

type marker struct {
	name         string
	payloadStart int
	payloadEnd   int
	end          int
}

// scanMarker matches `{name: <payload> }` starting at s[start] == '{'.
func scanMarker(s string, start int) (marker, bool) {
	j := skipSpace(s, start+1)
	k := j
	for k < len(s) && isIdent(s[k]) {
		k++
	}
	name := strings.ToLower(s[j:k])
	if _, ok := widgets[name]; !ok {
		return marker{}, false
	}
	k = skipSpace(s, k)
	if k >= len(s) || s[k] != ':' {
		return marker{}, false
	}
	p := skipSpace(s, k+1)
	if p >= len(s) {
		return marker{}, false
	}

	if s[p] != '{' && s[p] != '[' {
		return looseMarker(s, name, p), true
	}

	pe := matchBalanced(s, p)
	if pe < 0 {
		return looseMarker(s, name, p), true
	}
	c := skipSpace(s, pe)
	if c >= len(s) || s[c] != '}' {
		return looseMarker(s, name, p), true
	}
	return marker{name: name, payloadStart: p, payloadEnd: pe, end: c + 1}, true
}

// looseMarker is the span of a payload that is not well-formed JSON: it runs
// to the next closing brace, or to the end of s. Decoding it fails, so the
// widget turns into an inline error marker instead of leaking raw.
func looseMarker(s, name string, p int) marker {
	end := strings.IndexByte(s[p:], '}')
	if end < 0 {
		return marker{name: name, payloadStart: p, payloadEnd: len(s), end: len(s)}
	}
	return marker{name: name, payloadStart: p, payloadEnd: p + end, end: p + end + 1}
}

// matchBalanced returns the index just past the bracket closing s[open], or -1.
// Brackets inside JSON strings are ignored.
func matchBalanced(s string, open int) int {
	depth := 0
	inString := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

func isIdent(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func decodePayload(payload []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	return dec.Decode(v)
}

type chartPayload struct {
	Title string `json:"title"`
	Data  []struct {
		Label string      `json:"label"`
		Value json.Number `json:"value"`
	} `json:"data"`
}

func renderChart(payload []byte) (string, error) {
	var c chartPayload
	if err := decodePayload(payload, &c); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("```mermaid\npie")
	if c.Title != "" {
		b.WriteString(" title ")
		b.WriteString(oneLine(c.Title))
	}
	b.WriteByte('\n')
	for _, d := range c.Data {
		v := d.Value.String()
		if v == "" {
			v = "0"
		}
		fmt.Fprintf(&b, "    \"%s\" : %s\n", quoteSafe(d.Label), v)
	}
	b.WriteString("```")
	return b.String(), nil
}

type tablePayload struct {
	Headers []string `json:"headers"`
	Rows    [][]any  `json:"rows"`
}

// renderTable emits a Markdown table. Rows are written with the cells they
// have; short or long rows are neither padded nor truncated.
func renderTable(payload []byte) (string, error) {
	var t tablePayload
	if err := decodePayload(payload, &t); err != nil {
		return "", err
	}
	lines := make([]string, 0, len(t.Rows)+2)
	lines = append(lines, tableRow(t.Headers))
	sep := make([]string, len(t.Headers))
	for i := range sep {
		sep[i] = "---"
	}
	lines = append(lines, tableRow(sep))
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = cellText(c)
		}
		lines = append(lines, tableRow(cells))
	}
	return strings.Join(lines, "\n"), nil
}

func tableRow(cells []string) string {
	esc := make([]string, len(cells))
	for i, c := range cells {
		esc[i] = strings.ReplaceAll(oneLine(c), "|", `\|`)
	}
	return "| " + strings.Join(esc, " | ") + " |"
}

func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// nodeID accepts ids written as JSON strings or numbers.
type nodeID string

func (n *nodeID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*n = nodeID(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("node id must be a string or number, got %s", b)
	}
	*n = nodeID(num.String())
	return nil
}

type flowchartPayload struct {
	Nodes []struct {
		ID    nodeID `json:"id"`
		Label string `json:"label"`
	} `json:"nodes"`
	Edges []struct {
		From  nodeID `json:"from"`
		To    nodeID `json:"to"`
		Label string `json:"label"`
	} `json:"edges"`
}

func renderFlowchart(payload []byte) (string, error) {
	var f flowchartPayload
	if err := decodePayload(payload, &f); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("```mermaid\ngraph TD\n")
	for _, n := range f.Nodes {
		label := n.Label
		if label == "" {
			label = string(n.ID)
		}
		fmt.Fprintf(&b, "    %s[\"%s\"]\n", graphID(n.ID), quoteSafe(label))
	}
	for _, e := range f.Edges {
		if e.Label != "" {
			fmt.Fprintf(&b, "    %s -->|%s| %s\n", graphID(e.From), quoteSafe(e.Label), graphID(e.To))
			continue
		}
		fmt.Fprintf(&b, "    %s --> %s\n", graphID(e.From), graphID(e.To))
	}
	b.WriteString("```")
	return b.String(), nil
}

// graphID keeps ids usable as diagram identifiers.
func graphID(id nodeID) string {
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '[', ']', '(', ')', '{', '}', '"', '|', '>', '-':
			return '_'
		}
		return r
	}, string(id))
	if s == "" {
		return "_"
	}
	return s
}

func quoteSafe(s string) string {
	return strings.ReplaceAll(oneLine(s), `"`, "'")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
