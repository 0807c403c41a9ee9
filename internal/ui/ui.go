package ui

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/varsilias/askdesk/internal/chat"
	"github.com/varsilias/askdesk/internal/models"
	"github.com/varsilias/askdesk/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

type UI struct {
	log      *slog.Logger
	tpl      *template.Template
	chat     *chat.Controller
	models   models.Manager
	sessions session.Store
	md       goldmark.Markdown
	policy   *bluemonday.Policy
	logout   bool
}

type Option func(*UI)

// WithLogout shows a sign-out link; set when the login gate is on.
func WithLogout() Option {
	return func(u *UI) { u.logout = true }
}

func New(log *slog.Logger, c *chat.Controller, m models.Manager, s session.Store, opts ...Option) (*UI, error) {
	t, err := template.New("root").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	md := goldmark.New(
		goldmark.WithRendererOptions(gmhtml.WithUnsafe(), gmhtml.WithHardWraps()),
		goldmark.WithExtensions(
			extension.Table,
			extension.Linkify,
			highlighting.NewHighlighting(
				highlighting.WithStyle("dracula"),
				highlighting.WithFormatOptions(
					chromahtml.WithLineNumbers(false),
				),
			),
		),
	)

	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").OnElements("code", "pre", "span")
	p.AllowAttrs("style").OnElements("span", "pre") // inline styles from the highlighter

	u := &UI{
		log:      log,
		tpl:      t,
		chat:     c,
		models:   m,
		sessions: s,
		md:       md,
		policy:   p,
	}
	for _, o := range opts {
		o(u)
	}
	return u, nil
}

type MsgView struct {
	Role    string
	HTML    template.HTML
	Latency int64
	At      string
	// Rateable bubbles get the helpful / not helpful buttons.
	Rateable  bool
	SessionID string
}

func (u *UI) mdHTML(src string) template.HTML {
	var buf bytes.Buffer
	if err := u.md.Convert([]byte(src), &buf); err != nil {
		u.log.Warn("markdown render", "err", err)
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(u.policy.SanitizeBytes(buf.Bytes()))
}

func (u *UI) render(w http.ResponseWriter, name string, data any, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := u.tpl.ExecuteTemplate(w, name, data); err != nil {
		u.errTpl(w, err)
	}
}

func (u *UI) bubble(w http.ResponseWriter, m MsgView) {
	if err := u.tpl.ExecuteTemplate(w, "message.html", m); err != nil {
		u.errTpl(w, err)
	}
}

func (u *UI) errTpl(w http.ResponseWriter, err error) {
	u.log.Error("template execute", "err", err)
	_, _ = w.Write([]byte("<pre>template error: " + template.HTMLEscapeString(err.Error()) + "</pre>"))
}
