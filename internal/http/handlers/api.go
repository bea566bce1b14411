// Package handlers implements the REST surface served by the development server.
// Every mutation is announced to connected push clients.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chklst/deploysync/internal/events"
	httpapi "github.com/chklst/deploysync/internal/http"
	"github.com/chklst/deploysync/internal/model"
	"github.com/chklst/deploysync/internal/storage"
)

// Repository is the persistence the handlers need.
type Repository interface {
	ListDeployments(ctx context.Context, filter storage.DeploymentFilter) ([]model.Deployment, error)
	GetDeployment(ctx context.Context, id int64) (model.Deployment, error)
	CreateDeployment(ctx context.Context, d model.Deployment) (model.Deployment, error)
	UpdateDeployment(ctx context.Context, d model.Deployment) (model.Deployment, error)
	DeleteDeployment(ctx context.Context, id int64) error

	ListProjects(ctx context.Context) ([]model.Project, error)
	GetProject(ctx context.Context, id int64) (model.Project, error)
	CreateProject(ctx context.Context, p model.Project) (model.Project, error)
	UpdateProject(ctx context.Context, p model.Project) (model.Project, error)
	DeleteProject(ctx context.Context, id int64) error

	GetComponent(ctx context.Context, projectID, componentID int64) (model.Component, error)
	CreateComponent(ctx context.Context, c model.Component) (model.Component, error)
	UpdateComponent(ctx context.Context, c model.Component) (model.Component, error)
	DeleteComponent(ctx context.Context, projectID, componentID int64) error

	GetDocument(ctx context.Context, name string, out any) error
	PutDocument(ctx context.Context, name string, value any) error
}

// Broadcaster delivers an event to every connected push client.
type Broadcaster interface {
	Broadcast(ev events.Event)
}

// API groups HTTP handlers and dependencies.
type API struct {
	repo        Repository
	broadcaster Broadcaster
	logger      *slog.Logger
	now         func() time.Time
}

func New(repo Repository, broadcaster Broadcaster, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		repo:        repo,
		broadcaster: broadcaster,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Mount registers the REST routes on r.
func (a *API) Mount(r chi.Router) {
	r.Route("/deployments", func(r chi.Router) {
		r.Get("/", a.ListDeployments)
		r.Post("/", a.CreateDeployment)
		r.Get("/{id}", a.GetDeployment)
		r.Put("/{id}", a.UpdateDeployment)
		r.Delete("/{id}", a.DeleteDeployment)
	})
	r.Route("/projects", func(r chi.Router) {
		r.Get("/", a.ListProjects)
		r.Post("/", a.CreateProject)
		r.Get("/{id}", a.GetProject)
		r.Put("/{id}", a.UpdateProject)
		r.Delete("/{id}", a.DeleteProject)

		r.Get("/{id}/components", a.ListComponents)
		r.Post("/{id}/components", a.CreateComponent)
		r.Put("/{id}/components/{cid}", a.UpdateComponent)
		r.Delete("/{id}/components/{cid}", a.DeleteComponent)
	})
	r.Get("/library", a.GetLibrary)
	r.Put("/library", a.SaveLibrary)
	r.Get("/settings", a.GetSettings)
	r.Post("/settings", a.SaveSettings)
}

func (a *API) announce(kind events.Kind, payload any) {
	if a.broadcaster == nil {
		return
	}
	ev, err := events.New(kind, payload)
	if err != nil {
		a.logger.Error("build push event failed", "kind", kind.String(), "err", err)
		return
	}
	a.broadcaster.Broadcast(ev)
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// writeStoreError maps repository errors onto HTTP statuses.
func (a *API) writeStoreError(w http.ResponseWriter, code, notFound string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpapi.WriteError(w, http.StatusNotFound, "not_found", notFound)
	case errors.Is(err, storage.ErrConflict):
		httpapi.WriteError(w, http.StatusConflict, "conflict", err.Error())
	default:
		a.logger.Error("request failed", "code", code, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, code, err.Error())
	}
}

func invalidPayload(w http.ResponseWriter) {
	httpapi.WriteError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
}

func invalidID(w http.ResponseWriter) {
	httpapi.WriteError(w, http.StatusBadRequest, "invalid_id", "id must be a positive integer")
}
