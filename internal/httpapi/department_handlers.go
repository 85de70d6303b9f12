package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rampline.io/internal/identity"
)

type createDepartmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateDepartmentRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type assignManagerRequest struct {
	ManagerID string `json:"manager_id"`
}

func (a *API) handleListDepartments(w http.ResponseWriter, r *http.Request) {
	list, err := a.identities.ListDepartments(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

func (a *API) handleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req createDepartmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dept, err := a.identities.CreateDepartment(r.Context(), actor, req.Name, req.Description)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/departments/%s", dept.ID))
	writeJSON(w, http.StatusCreated, dept)
}

func (a *API) handleGetDepartment(w http.ResponseWriter, r *http.Request) {
	dept, err := a.identities.GetDepartment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dept)
}

func (a *API) handleUpdateDepartment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req updateDepartmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dept, err := a.identities.UpdateDepartment(r.Context(), actor, chi.URLParam(r, "id"), identity.DepartmentUpdate{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dept)
}

func (a *API) handleAssignManager(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req assignManagerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.identities.AssignManager(r.Context(), actor, chi.URLParam(r, "id"), req.ManagerID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeactivateDepartment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.identities.DeactivateDepartment(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
