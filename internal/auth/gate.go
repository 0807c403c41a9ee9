// Package auth gates the chat behind an OAuth2 authorization-code login with
// PKCE against an external identity provider.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/varsilias/askdesk/internal/session"
	"github.com/varsilias/askdesk/pkg/utils"
)

const (
	defaultCookie     = "askdesk_login"
	defaultSessionTTL = 12 * time.Hour
	pendingTTL        = 10 * time.Minute
)

var ErrUnknownState = errors.New("code verifier not found in session")

type Config struct {
	ClientID     string
	ClientSecret string
	// TenantID selects the Microsoft identity platform when AuthURL and
	// TokenURL are empty.
	TenantID    string
	AuthURL     string
	TokenURL    string
	RedirectURL string
	Scopes      []string
	CookieName  string
	SessionTTL  time.Duration
}

// Enabled reports whether a login provider is configured at all.
func (c Config) Enabled() bool { return c.ClientID != "" }

func (c Config) endpoint() (oauth2.Endpoint, error) {
	switch {
	case c.AuthURL != "" && c.TokenURL != "":
		return oauth2.Endpoint{AuthURL: c.AuthURL, TokenURL: c.TokenURL}, nil
	case c.TenantID != "":
		return microsoft.AzureADEndpoint(c.TenantID), nil
	default:
		return oauth2.Endpoint{}, errors.New("auth: tenant id or auth/token urls are required")
	}
}

type pendingLogin struct {
	verifier string
	created  time.Time
}

type loginSession struct {
	// user is the conversation owner for this login.
	user    string
	expires time.Time
}

// Gate runs the login flow and keeps login sessions in memory.
type Gate struct {
	log      *slog.Logger
	oauth    *oauth2.Config
	cookie   string
	ttl      time.Duration
	callback string
	now      func() time.Time

	mu       sync.Mutex
	pending  map[string]pendingLogin
	sessions map[string]loginSession
}

func NewGate(cfg Config, log *slog.Logger) (*Gate, error) {
	if !cfg.Enabled() {
		return nil, errors.New("auth: client id is required")
	}
	ep, err := cfg.endpoint()
	if err != nil {
		return nil, err
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("auth: redirect url is required")
	}
	ru, err := url.Parse(cfg.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("auth: redirect url: %w", err)
	}
	callback := ru.Path
	if callback == "" {
		callback = "/auth/callback"
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "User.Read"}
	}
	g := &Gate{
		log: log,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     ep,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		cookie:   cfg.CookieName,
		ttl:      cfg.SessionTTL,
		callback: callback,
		now:      time.Now,
		pending:  make(map[string]pendingLogin),
		sessions: make(map[string]loginSession),
	}
	if g.cookie == "" {
		g.cookie = defaultCookie
	}
	if g.ttl <= 0 {
		g.ttl = defaultSessionTTL
	}
	return g, nil
}

// PKCEPair returns a fresh code verifier and its S256 challenge.
func PKCEPair() (verifier, challenge string) {
	verifier = oauth2.GenerateVerifier()
	return verifier, oauth2.S256ChallengeFromVerifier(verifier)
}

// Login starts the flow: remember the verifier under a random state and send
// the browser to the provider.
func (g *Gate) Login(w http.ResponseWriter, r *http.Request) {
	verifier, _ := PKCEPair()
	state := newState()

	g.mu.Lock()
	g.prune()
	g.pending[state] = pendingLogin{verifier: verifier, created: g.now()}
	g.mu.Unlock()

	target := g.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	http.Redirect(w, r, target, http.StatusFound)
}

// Callback finishes the flow started by Login.
func (g *Gate) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		g.log.Warn("login rejected by provider", "error", e, "description", q.Get("error_description"))
		utils.Error(w, http.StatusUnauthorized, "Authentication failed")
		return
	}

	verifier, err := g.takeVerifier(q.Get("state"))
	if err != nil {
		utils.Error(w, http.StatusBadRequest, "Code verifier not found in session.")
		return
	}

	tok, err := g.oauth.Exchange(r.Context(), q.Get("code"), oauth2.VerifierOption(verifier))
	if err != nil || tok.AccessToken == "" {
		g.log.Warn("token exchange failed", "err", errString(err))
		utils.Error(w, http.StatusUnauthorized, "Authentication failed")
		return
	}

	id := uuid.NewString()
	user := subject(tok)
	if user == "" {
		user = "login:" + id
	}
	expires := g.now().Add(g.ttl)
	g.mu.Lock()
	g.sessions[id] = loginSession{user: user, expires: expires}
	g.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     g.cookie,
		Value:    id,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	g.log.Info("login succeeded")
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout drops the login session and clears the cookie.
func (g *Gate) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(g.cookie); err == nil {
		g.mu.Lock()
		delete(g.sessions, c.Value)
		g.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: g.cookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	http.Redirect(w, r, "/auth/login", http.StatusFound)
}

// Authenticated reports whether r carries a live login session.
func (g *Gate) Authenticated(r *http.Request) bool {
	_, ok := g.User(r)
	return ok
}

// User returns the identity behind r's login session.
func (g *Gate) User(r *http.Request) (string, bool) {
	c, err := r.Cookie(g.cookie)
	if err != nil || c.Value == "" {
		return "", false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[c.Value]
	if !ok {
		return "", false
	}
	if g.now().After(s.expires) {
		delete(g.sessions, c.Value)
		return "", false
	}
	return s.user, true
}

// RequireLogin lets authenticated requests through with their identity as
// the conversation owner. API calls get a 401, browsers are sent to the
// login page.
func (g *Gate) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, ok := g.User(r); ok {
			next.ServeHTTP(w, r.WithContext(session.WithOwner(r.Context(), user)))
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/") || strings.Contains(r.Header.Get("Accept"), "application/json") {
			utils.Error(w, http.StatusUnauthorized, "login required")
			return
		}
		if r.Header.Get("HX-Request") == "true" {
			w.Header().Set("HX-Redirect", "/auth/login")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.Redirect(w, r, "/auth/login", http.StatusFound)
	})
}

func (g *Gate) takeVerifier(state string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pending[state]
	if !ok || state == "" {
		return "", ErrUnknownState
	}
	delete(g.pending, state)
	if g.now().Sub(p.created) > pendingTTL {
		return "", fmt.Errorf("%w: login attempt expired", ErrUnknownState)
	}
	return p.verifier, nil
}

// prune drops stale pending logins and expired sessions. Callers hold g.mu.
func (g *Gate) prune() {
	now := g.now()
	for k, p := range g.pending {
		if now.Sub(p.created) > pendingTTL {
			delete(g.pending, k)
		}
	}
	for k, s := range g.sessions {
		if now.After(s.expires) {
			delete(g.sessions, k)
		}
	}
}

func newState() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(b[:])
}

func errString(err error) string {
	if err == nil {
		return "empty access token"
	}
	return err.Error()
}

// subject reads the stable user id from the ID token returned by the token
// endpoint. The token came straight from the provider over TLS, so its
// claims are read without signature checks.
func subject(tok *oauth2.Token) string {
	raw, _ := tok.Extra("id_token").(string)
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return ""
	}
	var claims struct {
		Oid string `json:"oid"`
		Sub string `json:"sub"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return ""
	}
	switch {
	case claims.Oid != "":
		return "user:" + claims.Oid
	case claims.Sub != "":
		return "user:" + claims.Sub
	}
	return ""
}
