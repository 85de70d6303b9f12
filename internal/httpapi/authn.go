package httpapi

import (
	"errors"
	"net/http"

	"rampline.io/internal/identity"
	"rampline.io/internal/session"
)

// withSession authenticates the request from the session cookie. Claims
// are a snapshot taken at login; the active flag alone is re-read from
// the store so a deactivated account loses access on its next request,
// not at cookie expiry.
func (a *API) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := session.FromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		claims, err := a.sessions.Parse(token)
		if err != nil {
			a.sessions.ClearCookie(w)
			writeError(w, http.StatusUnauthorized, "invalid session")
			return
		}

		active, err := a.store.IdentityActive(r.Context(), claims.IdentityID())
		if err != nil {
			if errors.Is(err, identity.ErrNotFound) {
				a.sessions.ClearCookie(w)
				writeError(w, http.StatusUnauthorized, "invalid session")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !active {
			a.sessions.ClearCookie(w)
			writeError(w, http.StatusUnauthorized, "account deactivated")
			return
		}

		if a.sessions.ShouldRefresh(claims) {
			if token, fresh, err := a.sessions.Refresh(claims); err == nil {
				a.sessions.SetCookie(w, token)
				claims = fresh
			}
		}

		next.ServeHTTP(w, r.WithContext(session.ContextWithClaims(r.Context(), claims)))
	})
}

// actorFrom extracts the acting identity; withSession guarantees presence
// on protected routes.
func actorFrom(r *http.Request) (identity.Actor, bool) {
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		return identity.Actor{}, false
	}
	return claims.Actor(), true
}
