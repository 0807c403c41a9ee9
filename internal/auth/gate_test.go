package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/varsilias/askdesk/internal/logging"
	"github.com/varsilias/askdesk/internal/session"
)

type tokenServer struct {
	*httptest.Server
	verifier string
	fail     bool
	idToken  string
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		ts.verifier = r.PostForm.Get("code_verifier")
		w.Header().Set("Content-Type", "application/json")
		if ts.fail {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
			return
		}
		body := map[string]any{"access_token": "tok", "token_type": "Bearer", "expires_in": 3600}
		if ts.idToken != "" {
			body["id_token"] = ts.idToken
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestGate(t *testing.T, tokenURL string) (*Gate, http.Handler) {
	t.Helper()
	g, err := NewGate(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		AuthURL:      "https://idp.example/authorize",
		TokenURL:     tokenURL,
		RedirectURL:  "http://localhost:8080/getAToken",
	}, logging.Discard())
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	mux := chi.NewRouter()
	RegisterRoutes(mux, g)
	mux.With(g.RequireLogin).Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "chat")
	})
	mux.With(g.RequireLogin).Post("/api/chat", func(w http.ResponseWriter, r *http.Request) {})
	mux.With(g.RequireLogin).Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, session.OwnerFrom(r.Context()))
	})
	return g, mux
}

func TestPKCEPair(t *testing.T) {
	v, c := PKCEPair()
	if len(v) != 43 {
		t.Fatalf("verifier length = %d", len(v))
	}
	sum := sha256.Sum256([]byte(v))
	if want := base64.RawURLEncoding.EncodeToString(sum[:]); c != want {
		t.Fatalf("challenge = %s, want %s", c, want)
	}
	if v2, _ := PKCEPair(); v2 == v {
		t.Fatal("verifiers repeat")
	}
}

func TestLoginFlow(t *testing.T) {
	ts := newTokenServer(t)
	_, h := newTestGate(t, ts.URL)

	// login redirects to the provider with an S256 challenge
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	if w.Code != http.StatusFound {
		t.Fatalf("login status = %d", w.Code)
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	q := loc.Query()
	if loc.Host != "idp.example" || q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		t.Fatalf("unexpected authorize url: %s", loc)
	}
	state := q.Get("state")

	// provider sends the browser back
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/getAToken?code=abc&state="+state, nil))
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Fatalf("callback status = %d, location = %q, body = %s", w.Code, w.Header().Get("Location"), w.Body)
	}
	sum := sha256.Sum256([]byte(ts.verifier))
	if base64.RawURLEncoding.EncodeToString(sum[:]) != q.Get("code_challenge") {
		t.Fatal("token exchange did not send the matching verifier")
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || !cookies[0].HttpOnly {
		t.Fatalf("cookies = %+v", cookies)
	}

	// the cookie opens the gate
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "chat" {
		t.Fatalf("gated page status = %d", w.Code)
	}

	// the state cannot be replayed
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/getAToken?code=abc&state="+state, nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("replay status = %d", w.Code)
	}
}

func TestCallbackUnknownState(t *testing.T) {
	_, h := newTestGate(t, newTokenServer(t).URL)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/getAToken?code=abc&state=nope", nil))

	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if w.Code != http.StatusBadRequest || body["error"] != "Code verifier not found in session." {
		t.Fatalf("status = %d body = %v", w.Code, body)
	}
}

func TestCallbackExchangeFailure(t *testing.T) {
	ts := newTokenServer(t)
	ts.fail = true
	g, h := newTestGate(t, ts.URL)
	state := "s1"
	g.pending[state] = pendingLogin{verifier: "v", created: time.Now()}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/getAToken?code=abc&state="+state, nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestRequireLoginResponses(t *testing.T) {
	_, h := newTestGate(t, "http://unused")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/auth/login" {
		t.Fatalf("browser: status = %d location = %q", w.Code, w.Header().Get("Location"))
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/chat", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("api: status = %d", w.Code)
	}
}

func TestSessionExpiry(t *testing.T) {
	g, _ := newTestGate(t, "http://unused")
	now := time.Now()
	g.now = func() time.Time { return now }
	g.sessions["old"] = loginSession{expires: now.Add(-time.Minute)}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: defaultCookie, Value: "old"})
	if g.Authenticated(req) {
		t.Fatal("expired session accepted")
	}
	if _, ok := g.sessions["old"]; ok {
		t.Fatal("expired session not dropped")
	}
}

func TestNewGateNeedsEndpoint(t *testing.T) {
	if _, err := NewGate(Config{ClientID: "c", RedirectURL: "http://x/cb"}, logging.Discard()); err == nil {
		t.Fatal("expected error without tenant or urls")
	}
	g, err := NewGate(Config{ClientID: "c", TenantID: "contoso", RedirectURL: "http://x/cb"}, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if g.oauth.Endpoint.TokenURL != "https://login.microsoftonline.com/contoso/oauth2/v2.0/token" {
		t.Fatalf("token url = %s", g.oauth.Endpoint.TokenURL)
	}
}

func fakeIDToken(claims string) string {
	enc := base64.RawURLEncoding.EncodeToString
	return enc([]byte(`{"alg":"none"}`)) + "." + enc([]byte(claims)) + ".sig"
}

// login runs the whole flow and returns the login cookie.
func login(t *testing.T, h http.Handler) *http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	loc, _ := url.Parse(w.Header().Get("Location"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/getAToken?code=c&state="+loc.Query().Get("state"), nil))
	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("callback status = %d, cookies = %+v", w.Code, cookies)
	}
	return cookies[0]
}

func whoami(h http.Handler, c *http.Cookie) string {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(c)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Body.String()
}

func TestRequireLoginSetsOwner(t *testing.T) {
	ts := newTokenServer(t)
	_, h := newTestGate(t, ts.URL)

	ts.idToken = fakeIDToken(`{"oid":"alice-oid","sub":"a-sub"}`)
	alice1 := login(t, h)
	alice2 := login(t, h)
	ts.idToken = fakeIDToken(`{"sub":"bob-sub"}`)
	bob := login(t, h)

	if got := whoami(h, alice1); got != "user:alice-oid" {
		t.Fatalf("alice owner = %q", got)
	}
	if whoami(h, alice2) != whoami(h, alice1) {
		t.Fatal("two logins of the same user got different owners")
	}
	if got := whoami(h, bob); got != "user:bob-sub" {
		t.Fatalf("bob owner = %q", got)
	}
}

func TestOwnerWithoutIDToken(t *testing.T) {
	_, h := newTestGate(t, newTokenServer(t).URL)
	a, b := login(t, h), login(t, h)
	oa, ob := whoami(h, a), whoami(h, b)
	if !strings.HasPrefix(oa, "login:") || oa == ob {
		t.Fatalf("owners = %q, %q", oa, ob)
	}
}
