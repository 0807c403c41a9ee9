package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/varsilias/askdesk/internal/logging"
)

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(seen) != 16 || w.Header().Get("X-Request-ID") != seen {
		t.Fatalf("generated id = %q header = %q", seen, w.Header().Get("X-Request-ID"))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "upstream-1" {
		t.Fatalf("upstream id not kept: %q", seen)
	}
}

func TestRecoverer(t *testing.T) {
	h := Recoverer(logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	for _, tc := range []struct {
		path, ctype string
	}{
		{"/api/chat", "application/json"},
		{"/", "text/plain"},
	} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("%s: status = %d", tc.path, w.Code)
		}
		if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, tc.ctype) {
			t.Fatalf("%s: content type = %q", tc.path, ct)
		}
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWriter(&buf, "info", true)
	h := RequestID()(AccessLog(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("hi"))
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	out := buf.String()
	for _, want := range []string{`"status":418`, `"bytes":2`, `"path":"/x"`, `"req_id":"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log %q missing %s", out, want)
		}
	}

	buf.Reset()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if buf.Len() != 0 {
		t.Fatalf("health check logged at info: %s", buf.String())
	}
}

func TestVersionHeader(t *testing.T) {
	h := VersionHeader()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Header().Get("X-App-Version") == "" || w.Header().Get("X-App-Commit") == "" {
		t.Fatalf("headers = %v", w.Header())
	}
}
