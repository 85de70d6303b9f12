package httpapi

import (
	"net/http"
	"strings"

	"rampline.io/internal/identity"
	"rampline.io/internal/session"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Identity   identity.Identity `json:"identity"`
	Department string            `json:"department,omitempty"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	ident, dept, err := a.identities.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	token, _, err := a.sessions.Issue(ident, dept)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	a.sessions.SetCookie(w, token)
	writeJSON(w, http.StatusOK, sessionResponse{Identity: ident, Department: dept.Name})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type claimsResponse struct {
	ID             string   `json:"id"`
	Roles          []string `json:"roles"`
	FullName       string   `json:"full_name"`
	DepartmentID   string   `json:"department_id"`
	DepartmentName string   `json:"department_name"`
	Active         bool     `json:"active"`
}

// handleMe serves the session's claims bundle as issued at login. No store
// read happens here; the snapshot is the answer.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, claimsResponse{
		ID:             claims.IdentityID(),
		Roles:          claims.Roles,
		FullName:       claims.FullName,
		DepartmentID:   claims.DepartmentID,
		DepartmentName: claims.DepartmentName,
		Active:         claims.Active,
	})
}

type profileUpdateRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Password  *string `json:"password"`
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req profileUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ident, err := a.identities.UpdateOwnProfile(r.Context(), actor.ID, identity.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ident)
}
