package auth

import "github.com/go-chi/chi/v5"

func RegisterRoutes(mux chi.Router, g *Gate) {
	mux.Get("/auth/login", g.Login)
	mux.Get(g.callback, g.Callback)
	mux.Get("/auth/logout", g.Logout)
}
