package handlers

import (
	"net/http"
	"strings"

	"github.com/chklst/deploysync/internal/events"
	httpapi "github.com/chklst/deploysync/internal/http"
	"github.com/chklst/deploysync/internal/model"
)

func (a *API) ListProjects(w http.ResponseWriter, r *http.Request) {
	items, err := a.repo.ListProjects(r.Context())
	if err != nil {
		a.writeStoreError(w, "list_failed", "", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, items)
}

func (a *API) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		invalidID(w)
		return
	}
	p, err := a.repo.GetProject(r.Context(), id)
	if err != nil {
		a.writeStoreError(w, "get_failed", "Project not found", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, p)
}

// CreateProject stores the project and any components sent with it.
func (a *API) CreateProject(w http.ResponseWriter, r *http.Request) {
	var payload model.Project
	if err := httpapi.DecodeJSON(r, &payload); err != nil {
		invalidPayload(w)
		return
	}
	payload.Name = strings.TrimSpace(payload.Name)
	if payload.Name == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid_project", "name is required")
		return
	}
	created, err := a.repo.CreateProject(r.Context(), payload)
	if err != nil {
		a.writeStoreError(w, "create_failed", "", err)
		return
	}
	for _, c := range payload.Components {
		c.ID = 0
		c.ProjectID = created.ID
		if _, err := a.repo.CreateComponent(r.Context(), c); err != nil {
			a.writeStoreError(w, "create_failed", "", err)
			return
		}
	}
	if len(payload.Components) > 0 {
		if created, err = a.repo.GetProject(r.Context(), created.ID); err != nil {
			a.writeStoreError(w, "create_failed", "", err)
			return
		}
	}
	a.announce(events.KindProjectCreated, created)
	httpapi.WriteJSON(w, http.StatusCreated, created)
}

// UpdateProject merges the request body onto the stored project's own fields.
func (a *API) UpdateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		invalidID(w)
		return
	}
	current, err := a.repo.GetProject(r.Context(), id)
	if err != nil {
		a.writeStoreError(w, "update_failed", "Project not found", err)
		return
	}
	if err := httpapi.DecodeJSON(r, &current); err != nil {
		invalidPayload(w)
		return
	}
	current.ID = id
	updated, err := a.repo.UpdateProject(r.Context(), current)
	if err != nil {
		a.writeStoreError(w, "update_failed", "Project not found", err)
		return
	}
	a.announce(events.KindProjectUpdated, updated)
	httpapi.WriteJSON(w, http.StatusOK, updated)
}

func (a *API) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		invalidID(w)
		return
	}
	if err := a.repo.DeleteProject(r.Context(), id); err != nil {
		a.writeStoreError(w, "delete_failed", "Project not found", err)
		return
	}
	a.announce(events.KindProjectDeleted, model.Project{ID: id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) ListComponents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		invalidID(w)
		return
	}
	p, err := a.repo.GetProject(r.Context(), id)
	if err != nil {
		a.writeStoreError(w, "list_failed", "Project not found", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, p.Components)
}

func (a *API) CreateComponent(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(r, "id")
	if !ok {
		invalidID(w)
		return
	}
	var payload model.Component
	if err := httpapi.DecodeJSON(r, &payload); err != nil {
		invalidPayload(w)
		return
	}
	payload.Name = strings.TrimSpace(payload.Name)
	if payload.Name == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid_component", "name is required")
		return
	}
	payload.ID = 0
	payload.ProjectID = projectID
	created, err := a.repo.CreateComponent(r.Context(), payload)
	if err != nil {
		a.writeStoreError(w, "create_failed", "Project not found", err)
		return
	}
	a.announce(events.KindComponentCreated, created)
	httpapi.WriteJSON(w, http.StatusCreated, created)
}

func (a *API) UpdateComponent(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(r, "id")
	if !ok {
		invalidID(w)
		return
	}
	componentID, ok := pathID(r, "cid")
	if !ok {
		invalidID(w)
		return
	}
	current, err := a.repo.GetComponent(r.Context(), projectID, componentID)
	if err != nil {
		a.writeStoreError(w, "update_failed", "Component not found", err)
		return
	}
	if err := httpapi.DecodeJSON(r, &current); err != nil {
		invalidPayload(w)
		return
	}
	current.ID, current.ProjectID = componentID, projectID
	updated, err := a.repo.UpdateComponent(r.Context(), current)
	if err != nil {
		a.writeStoreError(w, "update_failed", "Component not found", err)
		return
	}
	a.announce(events.KindComponentUpdated, updated)
	httpapi.WriteJSON(w, http.StatusOK, updated)
}

func (a *API) DeleteComponent(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(r, "id")
	if !ok {
		invalidID(w)
		return
	}
	componentID, ok := pathID(r, "cid")
	if !ok {
		invalidID(w)
		return
	}
	if err := a.repo.DeleteComponent(r.Context(), projectID, componentID); err != nil {
		a.writeStoreError(w, "delete_failed", "Component not found", err)
		return
	}
	a.announce(events.KindComponentDeleted, model.Component{ID: componentID, ProjectID: projectID})
	w.WriteHeader(http.StatusNoContent)
}
