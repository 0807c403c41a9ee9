package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/varsilias/askdesk/internal/session"
)

// RegisterRoutes mounts the JSON API. Routes under /api run behind owner,
// which must put the conversation owner into the request context; nil means
// one owner per browser cookie.
func RegisterRoutes(mux chi.Router, h *Handlers, owner func(http.Handler) http.Handler) {
	if owner == nil {
		owner = session.BrowserOwner()
	}
	mux.Get("/healthz", h.Health)
	mux.Get("/version", h.Version)

	mux.Route("/api", func(r chi.Router) {
		r.Use(owner)
		r.Post("/chat", h.Chat)
		r.Post("/feedback", h.Feedback)
		r.Get("/models", h.ListModels)
		r.Get("/history/{session_id}", h.GetHistory)
		r.Delete("/history/{session_id}", h.ClearHistory)
	})
}
