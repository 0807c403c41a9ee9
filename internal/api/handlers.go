package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/varsilias/askdesk/internal/buildinfo"
	"github.com/varsilias/askdesk/internal/chat"
	"github.com/varsilias/askdesk/internal/models"
	"github.com/varsilias/askdesk/internal/session"
	"github.com/varsilias/askdesk/pkg/utils"
)

type Handlers struct {
	log      *slog.Logger
	chat     *chat.Controller
	models   models.Manager
	sessions session.Store
}

func NewHandlers(log *slog.Logger, chatCtrl *chat.Controller, manager models.Manager, store session.Store) *Handlers {
	return &Handlers{
		log:      log,
		chat:     chatCtrl,
		models:   manager,
		sessions: store,
	}
}

// Health is a basic liveness endpoint.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, map[string]any{
		"status":    true,
		"message":   "askdesk",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, map[string]any{
		"version":  buildinfo.Version,
		"commit":   buildinfo.Commit,
		"built_at": buildinfo.BuiltAt,
	})
}

// ListModels GET /api/models
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	mods, err := h.models.List(r.Context())
	if err != nil {
		h.log.Warn("list models", "err", err)
		utils.Error(w, http.StatusBadGateway, "model listing unavailable")
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{"models": mods})
}

// owner returns the caller's conversation owner, or writes a 401.
func (h *Handlers) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	o := session.OwnerFrom(r.Context())
	if o == "" {
		utils.Error(w, http.StatusUnauthorized, "no conversation owner")
		return "", false
	}
	return o, true
}

// owned resolves a session id from the URL to its store key, answering 404
// when the caller has no such session.
func (h *Handlers) owned(w http.ResponseWriter, r *http.Request) (sessionID, key string, ok bool) {
	owner, ok := h.owner(w, r)
	if !ok {
		return "", "", false
	}
	sessionID = strings.TrimSpace(chi.URLParam(r, "session_id"))
	if sessionID == "" {
		utils.Error(w, http.StatusBadRequest, "missing session_id")
		return "", "", false
	}
	mine, err := session.Owns(h.sessions, owner, sessionID)
	if err != nil {
		h.log.Error("session lookup", "session", sessionID, "err", err)
		utils.Error(w, http.StatusInternalServerError, "history unavailable")
		return "", "", false
	}
	if !mine {
		utils.Error(w, http.StatusNotFound, "session not found")
		return "", "", false
	}
	return sessionID, session.Key(owner, sessionID), true
}

// Chat POST /api/chat { session_id, question }
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req struct {
		SessionID string `json:"session_id"`
		Question  string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	reply, err := h.chat.Chat(r.Context(), session.Key(owner, req.SessionID), req.Question)
	switch {
	case errors.Is(err, chat.ErrEmptyQuestion), errors.Is(err, chat.ErrQuestionTooLong):
		utils.Error(w, http.StatusBadRequest, h.chat.Notice(err))
		return
	case err != nil:
		h.log.Error("chat", "session", req.SessionID, "err", err)
		utils.Error(w, http.StatusInternalServerError, h.chat.Notice(err))
		return
	}

	res := map[string]any{
		"response":   reply.Content,
		"failed":     reply.Failed,
		"latency_ms": reply.Latency.Milliseconds(),
		"session_id": req.SessionID,
	}
	if !reply.Failed {
		res["timestamp"] = reply.Message.Timestamp.UTC().Format(time.RFC3339)
		res["sources"] = reply.Message.Sources
	}
	utils.JSON(w, http.StatusOK, res)
}

type historyItem struct {
	Role      string   `json:"role"`
	Content   string   `json:"content"`
	Sources   []string `json:"sources,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// GetHistory GET /api/history/{session_id}
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID, key, ok := h.owned(w, r)
	if !ok {
		return
	}

	history, err := h.sessions.Get(key)
	if err != nil {
		h.log.Error("load history", "session", sessionID, "err", err)
		utils.Error(w, http.StatusInternalServerError, "history unavailable")
		return
	}

	out := make([]historyItem, 0, len(history))
	for _, m := range history {
		out = append(out, historyItem{
			Role:      string(m.Role),
			Content:   m.Content,
			Sources:   m.Sources,
			Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	utils.JSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "history": out})
}

// ClearHistory DELETE /api/history/{session_id}
func (h *Handlers) ClearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID, key, ok := h.owned(w, r)
	if !ok {
		return
	}
	msg, err := h.chat.Clear(key)
	if err != nil {
		h.log.Error("clear history", "session", sessionID, "err", err)
		utils.Error(w, http.StatusInternalServerError, "could not clear history")
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{"message": msg, "session_id": sessionID})
}

// Feedback POST /api/feedback { session_id, type }
func (h *Handlers) Feedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Type      string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	msgs, err := h.chat.Feedback(session.Key(owner, req.SessionID), chat.FeedbackKind(req.Type))
	if err != nil {
		utils.Error(w, http.StatusBadRequest, "type must be helpful or not_helpful")
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{"messages": msgs})
}
