package ui

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/varsilias/askdesk/internal/buildinfo"
	"github.com/varsilias/askdesk/internal/chat"
	"github.com/varsilias/askdesk/internal/session"
	"github.com/varsilias/askdesk/pkg/types"
)

const defaultSession = "default"

// RegisterRoutes mounts the browser UI. The version pill stays public so
// rollouts are visible on the login redirect too. owner puts the
// conversation owner into the request context; nil means one owner per
// browser cookie.
func RegisterRoutes(mux chi.Router, h *UI, owner func(http.Handler) http.Handler) {
	if owner == nil {
		owner = session.BrowserOwner()
	}
	mux.Get("/ui/version-pill", h.VersionPill)

	mux.Group(func(r chi.Router) {
		r.Use(owner)
		r.Get("/", h.Home)
		r.Post("/ui/chat", h.ChatPost)
		r.Post("/ui/session/new", h.NewSession)
		r.Post("/ui/session/clear", h.ClearSession)
		r.Post("/ui/session/end", h.EndSession)
		r.Post("/ui/feedback", h.Feedback)
	})
}

func sessionFrom(v string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return defaultSession
}

// key scopes a session id to the caller. The owner is always set by the
// middleware installed in RegisterRoutes.
func key(r *http.Request, sessionID string) string {
	return session.Key(session.OwnerFrom(r.Context()), sessionID)
}

// Home shows the chat UI. Optional session via query: /?s=<id>
func (u *UI) Home(w http.ResponseWriter, r *http.Request) {
	sid := sessionFrom(r.URL.Query().Get("s"))

	mods, err := u.models.List(r.Context())
	if err != nil {
		u.log.Warn("list models", "err", err)
	}

	msgs, err := u.sessions.Get(key(r, sid))
	if err != nil {
		u.log.Error("load history", "session", sid, "err", err)
	}
	hist := make([]MsgView, 0, len(msgs)+1)
	if len(msgs) == 0 {
		hist = append(hist, MsgView{Role: "assistant", HTML: u.mdHTML(chat.Welcome)})
	}
	for _, m := range msgs {
		hist = append(hist, MsgView{
			Role: string(m.Role),
			HTML: u.mdHTML(chat.Display(m)),
			At:   m.Timestamp.Format(time.RFC822),
		})
	}

	var sessions []session.Summary
	if l, ok := u.sessions.(session.Lister); ok {
		if sessions, err = session.ListOwned(l, session.OwnerFrom(r.Context())); err != nil {
			u.log.Warn("list sessions", "err", err)
		}
		sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].Updated.After(sessions[j].Updated) })
	}

	u.render(w, "chat.html", map[string]any{
		"Models":    mods,
		"SessionID": sid,
		"History":   hist,
		"Sessions":  sessions,
		"MaxChars":  u.chat.MaxQuestionChars(),
		"Logout":    u.logout,
		"Commit":    buildinfo.Commit,
		"Version":   buildinfo.Version,
		"BuiltAt":   buildinfo.BuiltAt,
	}, http.StatusOK)
}

// ChatPost returns two fragments: the user bubble then the assistant bubble.
// Rejected questions come back as a single notice bubble.
func (u *UI) ChatPost(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	question := r.Form.Get("question")
	sid := sessionFrom(r.Form.Get("session_id"))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := u.chat.Validate(question); err != nil {
		u.bubble(w, MsgView{Role: "notice", HTML: u.mdHTML(u.chat.Notice(err))})
		return
	}

	u.bubble(w, MsgView{Role: string(types.RoleUser), HTML: u.mdHTML(question), At: time.Now().Format(time.RFC822)})
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	reply, err := u.chat.Chat(r.Context(), key(r, sid), question)
	if err != nil {
		u.log.Error("chat", "session", sid, "err", err)
		u.bubble(w, MsgView{Role: "error", HTML: u.mdHTML(u.chat.Notice(err))})
		return
	}
	role := string(types.RoleAssistant)
	if reply.Failed {
		role = "error"
	}
	u.bubble(w, MsgView{
		Role:      role,
		HTML:      u.mdHTML(reply.Content),
		Latency:   reply.Latency.Milliseconds(),
		At:        time.Now().Format(time.RFC822),
		Rateable:  !reply.Failed,
		SessionID: sid,
	})
}

// NewSession creates a fresh session id and redirects to /?s=...
func (u *UI) NewSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	if l, ok := u.sessions.(session.Lister); ok {
		if err := l.Touch(key(r, id)); err != nil {
			u.log.Warn("touch session", "session", id, "err", err)
		}
	}
	redirect(w, r, "/?s="+id)
}

// ClearSession wipes the history and replaces the message list with a notice.
func (u *UI) ClearSession(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	sid := sessionFrom(r.Form.Get("session_id"))
	msg, err := u.chat.Clear(key(r, sid))
	if err != nil {
		u.log.Error("clear session", "session", sid, "err", err)
		http.Error(w, "could not clear chat", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	u.bubble(w, MsgView{Role: "notice", HTML: u.mdHTML(msg)})
	u.bubble(w, MsgView{Role: string(types.RoleAssistant), HTML: u.mdHTML(chat.Welcome)})
}

// EndSession clears the history and says goodbye.
func (u *UI) EndSession(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	sid := sessionFrom(r.Form.Get("session_id"))
	if _, err := u.chat.Clear(key(r, sid)); err != nil {
		u.log.Error("end session", "session", sid, "err", err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	u.bubble(w, MsgView{Role: string(types.RoleAssistant), HTML: u.mdHTML(chat.Goodbye)})
}

func (u *UI) Feedback(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	sid := sessionFrom(r.Form.Get("session_id"))
	msgs, err := u.chat.Feedback(key(r, sid), chat.FeedbackKind(r.Form.Get("type")))
	if errors.Is(err, chat.ErrUnknownFeedback) {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	for _, m := range msgs {
		u.bubble(w, MsgView{Role: "notice", HTML: u.mdHTML(m)})
	}
}

type versionVM struct {
	Version string
	Commit  string
	BuiltAt string
}

func (u *UI) VersionPill(w http.ResponseWriter, r *http.Request) {
	// no caching so rollouts show quickly
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	data := versionVM{
		Version: buildinfo.Version,
		Commit:  buildinfo.Commit,
		BuiltAt: buildinfo.BuiltAt,
	}
	if err := u.tpl.ExecuteTemplate(w, "version-pill.html", data); err != nil {
		u.errTpl(w, err)
	}
}

// redirect does a full navigation for htmx requests and a 302 otherwise.
func redirect(w http.ResponseWriter, r *http.Request, url string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", url)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}
