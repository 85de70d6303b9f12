// Package httpapi exposes the administrative HTTP surface: session auth,
// identity and department management, and the onboarding content tree.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rampline.io/internal/content"
	"rampline.io/internal/identity"
	"rampline.io/internal/obs"
	"rampline.io/internal/session"
)

// ReadyProbe reports whether downstream dependencies can serve traffic.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer. Handlers stay thin: decode, delegate to a
// service, map the error, encode.
type API struct {
	router     chi.Router
	identities *identity.Service
	content    *content.Service
	sessions   *session.Manager
	store      identity.Store
	readyProbe ReadyProbe
	version    string
}

// Options carries the API's collaborators.
type Options struct {
	Identities *identity.Service
	Content    *content.Service
	Sessions   *session.Manager
	Store      identity.Store
	ReadyProbe ReadyProbe
	Version    string
}

func New(opts Options) *API {
	a := &API{
		router:     chi.NewRouter(),
		identities: opts.Identities,
		content:    opts.Content,
		sessions:   opts.Sessions,
		store:      opts.Store,
		readyProbe: opts.ReadyProbe,
		version:    opts.Version,
	}
	a.routes()
	return a
}

func (a *API) routes() {
	r := a.router

	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReadyz)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.withSession)

			r.Post("/auth/logout", a.handleLogout)
			r.Get("/auth/me", a.handleMe)
			r.Put("/auth/me", a.handleUpdateProfile)

			r.Route("/identities", func(r chi.Router) {
				r.Get("/", a.handleListIdentities)
				r.Post("/", a.handleCreateIdentity)
				r.Get("/{id}", a.handleGetIdentity)
				r.Put("/{id}", a.handleUpdateIdentity)
				r.Post("/{id}/activate", a.handleActivateIdentity)
				r.Post("/{id}/deactivate", a.handleDeactivateIdentity)
				r.Post("/{id}/credential", a.handleResetCredential)
				r.Post("/{id}/roles", a.handleAssignRole)
				r.Delete("/{id}/roles/{role}", a.handleRemoveRole)
			})

			r.Route("/departments", func(r chi.Router) {
				r.Get("/", a.handleListDepartments)
				r.Post("/", a.handleCreateDepartment)
				r.Get("/{id}", a.handleGetDepartment)
				r.Put("/{id}", a.handleUpdateDepartment)
				r.Post("/{id}/manager", a.handleAssignManager)
				r.Post("/{id}/deactivate", a.handleDeactivateDepartment)
			})

			r.Route("/folders", func(r chi.Router) {
				r.Get("/", a.handleListFolders)
				r.Post("/", a.handleCreateFolder)
				r.Get("/{id}", a.handleGetFolder)
				r.Put("/{id}", a.handleUpdateFolder)
				r.Delete("/{id}", a.handleDeleteFolder)
				r.Get("/{id}/tasks", a.handleListTasks)
				r.Post("/{id}/tasks", a.handleCreateTask)
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/{id}", a.handleGetTask)
				r.Put("/{id}", a.handleUpdateTask)
				r.Delete("/{id}", a.handleDeleteTask)
				r.Get("/{id}/steps", a.handleListSteps)
				r.Post("/{id}/steps", a.handleCreateStep)
				r.Get("/{id}/materials", a.handleListMaterials)
				r.Post("/{id}/materials", a.handleUploadMaterial)
			})

			r.Route("/steps", func(r chi.Router) {
				r.Put("/{id}", a.handleUpdateStep)
				r.Delete("/{id}", a.handleDeleteStep)
			})

			r.Route("/materials", func(r chi.Router) {
				r.Get("/{id}", a.handleDownloadMaterial)
				r.Put("/{id}", a.handleReplaceMaterial)
				r.Delete("/{id}", a.handleDeleteMaterial)
			})
		})
	})
}

// Handler returns the routable handler wrapped with metrics.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "rampline-api",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
