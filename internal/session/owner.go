package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OwnerCookie identifies an anonymous browser when no login gate runs.
const OwnerCookie = "askdesk_owner"

const ownerCookieTTL = 365 * 24 * time.Hour

type ownerKey struct{}

// WithOwner records who the conversations of this request belong to.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFrom returns the owner set by WithOwner, or "".
func OwnerFrom(ctx context.Context) string {
	o, _ := ctx.Value(ownerKey{}).(string)
	return o
}

// Key namespaces a client-chosen session id under its owner. Store keys are
// always built this way, so one owner cannot address another's history.
func Key(owner, sessionID string) string {
	return owner + "/" + sessionID
}

// BrowserOwner gives every browser its own owner id through a cookie. It is
// the owner source when no login gate is configured.
func BrowserOwner() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(OwnerCookie); err == nil {
				if u, err := uuid.Parse(c.Value); err == nil {
					id = u.String()
				}
			}
			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     OwnerCookie,
					Value:    id,
					Path:     "/",
					MaxAge:   int(ownerCookieTTL / time.Second),
					HttpOnly: true,
					Secure:   r.TLS != nil,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), "browser:"+id)))
		})
	}
}

// ListOwned returns owner's sessions with the owner prefix removed from ids.
func ListOwned(l Lister, owner string) ([]Summary, error) {
	all, err := l.List()
	if err != nil {
		return nil, err
	}
	prefix := Key(owner, "")
	var out []Summary
	for _, s := range all {
		if id, ok := strings.CutPrefix(s.ID, prefix); ok && id != "" {
			s.ID = id
			out = append(out, s)
		}
	}
	return out, nil
}

// Owns reports whether owner has a session called sessionID. Stores that can
// list sessions know about empty ones too; others need at least one turn.
func Owns(s Store, owner, sessionID string) (bool, error) {
	if owner == "" || sessionID == "" {
		return false, nil
	}
	key := Key(owner, sessionID)
	if l, ok := s.(Lister); ok {
		all, err := l.List()
		if err != nil {
			return false, err
		}
		for _, sum := range all {
			if sum.ID == key {
				return true, nil
			}
		}
		return false, nil
	}
	msgs, err := s.Get(key)
	if err != nil {
		return false, err
	}
	return len(msgs) > 0, nil
}
