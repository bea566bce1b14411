package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/chklst/deploysync/internal/events"
	httpapi "github.com/chklst/deploysync/internal/http"
	"github.com/chklst/deploysync/internal/model"
	"github.com/chklst/deploysync/internal/storage"
)

// ListDeployments accepts optional project_id, month and year filters.
func (a *API) ListDeployments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	projectID, err := queryInt(query, "project_id")
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid_filter", err.Error())
		return
	}
	month, err := queryInt(query, "month")
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid_filter", err.Error())
		return
	}
	year, err := queryInt(query, "year")
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid_filter", err.Error())
		return
	}

	filter := storage.DeploymentFilter{ProjectID: projectID, Month: int(month), Year: int(year)}
	items, err := a.repo.ListDeployments(r.Context(), filter)
	if err != nil {
		a.writeStoreError(w, "list_failed", "", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, items)
}

func queryInt(query url.Values, name string) (int64, error) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return value, nil
}

func (a *API) GetDeployment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		invalidID(w)
		return
	}
	d, err := a.repo.GetDeployment(r.Context(), id)
	if err != nil {
		a.writeStoreError(w, "get_failed", "Deployment not found", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, d)
}

func (a *API) CreateDeployment(w http.ResponseWriter, r *http.Request) {
	var payload model.Deployment
	if err := httpapi.DecodeJSON(r, &payload); err != nil {
		invalidPayload(w)
		return
	}
	if payload.ProjectID <= 0 {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid_deployment", "project_id is required")
		return
	}
	payload.ID = 0
	created, err := a.repo.CreateDeployment(r.Context(), payload)
	if err != nil {
		a.writeStoreError(w, "create_failed", "", err)
		return
	}
	a.announce(events.KindDeploymentCreated, created)
	httpapi.WriteJSON(w, http.StatusCreated, created)
}

// UpdateDeployment merges the request body onto the stored deployment.
func (a *API) UpdateDeployment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		invalidID(w)
		return
	}
	current, err := a.repo.GetDeployment(r.Context(), id)
	if err != nil {
		a.writeStoreError(w, "update_failed", "Deployment not found", err)
		return
	}
	if err := httpapi.DecodeJSON(r, &current); err != nil {
		invalidPayload(w)
		return
	}
	current.ID = id
	current.Project, current.Component = nil, nil
	updated, err := a.repo.UpdateDeployment(r.Context(), current)
	if err != nil {
		a.writeStoreError(w, "update_failed", "Deployment not found", err)
		return
	}
	a.announce(events.KindDeploymentUpdated, updated)
	httpapi.WriteJSON(w, http.StatusOK, updated)
}

func (a *API) DeleteDeployment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		invalidID(w)
		return
	}
	current, err := a.repo.GetDeployment(r.Context(), id)
	if err == nil {
		err = a.repo.DeleteDeployment(r.Context(), id)
	}
	if err != nil {
		a.writeStoreError(w, "delete_failed", "Deployment not found", err)
		return
	}
	a.announce(events.KindDeploymentDeleted, model.Deployment{ID: current.ID, ProjectID: current.ProjectID})
	w.WriteHeader(http.StatusNoContent)
}
