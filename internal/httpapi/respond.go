package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"rampline.io/internal/content"
	"rampline.io/internal/identity"
	"rampline.io/internal/obs"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeDomainError maps service sentinels onto HTTP statuses. Anything
// unrecognized is logged and reported as an opaque 500 so internals never
// leak to clients.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrNotFound), errors.Is(err, content.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, identity.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, identity.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, identity.ErrSelfLockout):
		writeError(w, http.StatusConflict, "cannot remove your own superadmin role")
	case errors.Is(err, identity.ErrSelfDeactivation):
		writeError(w, http.StatusConflict, "cannot deactivate your own account")
	case errors.Is(err, identity.ErrHasMembers):
		writeError(w, http.StatusConflict, "department still has members")
	case errors.Is(err, identity.ErrConflict), errors.Is(err, content.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrInvalidInput), errors.Is(err, content.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		obs.Logger().WithError(err).WithFields(map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
