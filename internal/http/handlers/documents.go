package handlers

import (
	"errors"
	"net/http"

	"github.com/chklst/deploysync/internal/events"
	httpapi "github.com/chklst/deploysync/internal/http"
	"github.com/chklst/deploysync/internal/model"
	"github.com/chklst/deploysync/internal/storage"
)

const documentID = 1

// GetLibrary returns the stored presets, or empty lists before the first save.
func (a *API) GetLibrary(w http.ResponseWriter, r *http.Request) {
	presets := model.LibraryPresets{ID: documentID}
	if err := a.repo.GetDocument(r.Context(), storage.DocumentLibrary, &presets); err != nil && !errors.Is(err, storage.ErrNotFound) {
		a.writeStoreError(w, "get_failed", "", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, presets.Normalize())
}

// SaveLibrary replaces the presets document.
func (a *API) SaveLibrary(w http.ResponseWriter, r *http.Request) {
	var current model.LibraryPresets
	if err := a.repo.GetDocument(r.Context(), storage.DocumentLibrary, &current); err != nil && !errors.Is(err, storage.ErrNotFound) {
		a.writeStoreError(w, "save_failed", "", err)
		return
	}
	var payload model.LibraryPresets
	if err := httpapi.DecodeJSON(r, &payload); err != nil {
		invalidPayload(w)
		return
	}
	payload = payload.Normalize()
	payload.ID = documentID
	payload.CreatedAt, payload.UpdatedAt = current.CreatedAt, a.now()
	if payload.CreatedAt.IsZero() {
		payload.CreatedAt = payload.UpdatedAt
	}
	if err := a.repo.PutDocument(r.Context(), storage.DocumentLibrary, payload); err != nil {
		a.writeStoreError(w, "save_failed", "", err)
		return
	}
	a.announce(events.KindLibraryUpdated, payload)
	httpapi.WriteJSON(w, http.StatusOK, payload)
}

// GetSettings returns the stored settings, or the defaults before the first save.
func (a *API) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.loadSettings(r)
	if err != nil {
		a.writeStoreError(w, "get_failed", "", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, settings)
}

// SaveSettings merges the request body onto the stored settings.
func (a *API) SaveSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.loadSettings(r)
	if err != nil {
		a.writeStoreError(w, "save_failed", "", err)
		return
	}
	createdAt := settings.CreatedAt
	if err := httpapi.DecodeJSON(r, &settings); err != nil {
		invalidPayload(w)
		return
	}
	settings.ID = documentID
	settings.CreatedAt, settings.UpdatedAt = createdAt, a.now()
	if settings.CreatedAt.IsZero() {
		settings.CreatedAt = settings.UpdatedAt
	}
	if err := a.repo.PutDocument(r.Context(), storage.DocumentSettings, settings); err != nil {
		a.writeStoreError(w, "save_failed", "", err)
		return
	}
	a.announce(events.KindSettingsUpdated, settings)
	httpapi.WriteJSON(w, http.StatusOK, settings)
}

func (a *API) loadSettings(r *http.Request) (model.AppSettings, error) {
	settings := model.DefaultSettings()
	settings.ID = documentID
	err := a.repo.GetDocument(r.Context(), storage.DocumentSettings, &settings)
	if errors.Is(err, storage.ErrNotFound) {
		return settings, nil
	}
	return settings, err
}
