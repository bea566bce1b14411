// Package mirror serves read-only views of a running session's caches over HTTP.
package mirror

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chklst/deploysync/internal/announce"
	httpapi "github.com/chklst/deploysync/internal/http"
	"github.com/chklst/deploysync/internal/model"
	"github.com/chklst/deploysync/internal/session"
)

const defaultRecent = 10

type storeStatus struct {
	Fetched bool   `json:"fetched"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
	Size    *int   `json:"size,omitempty"`
}

type statusResponse struct {
	Channel  string                 `json:"channel"`
	Endpoint string                 `json:"endpoint"`
	Stores   map[string]storeStatus `json:"stores"`
}

type eventResponse struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Mirror struct {
	session  *session.Session
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// New builds the mirror. gatherer may be nil to leave /metrics unmounted.
func New(sess *session.Session, gatherer prometheus.Gatherer, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{session: sess, gatherer: gatherer, logger: logger}
}

func (m *Mirror) Handler() http.Handler {
	r := httpapi.NewRouter(m.logger)
	if m.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	}
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(20 * time.Second))
		r.Get("/status", m.status)
		r.Post("/resync", m.resync)
		r.Get("/deployments", m.deployments)
		r.Get("/deployments/last", m.lastDeployment)
		r.Get("/deployments/{id}/announcement", m.announcement)
		r.Get("/projects", m.projects)
		r.Get("/projects/options", m.projectOptions)
		r.Get("/projects/{id}/components", m.components)
		r.Get("/library", m.library)
		r.Get("/settings", m.settings)
		r.Get("/events/last", m.lastEvent)
		r.Get("/subscriptions", m.subscriptions)
		r.Get("/toast", m.toast)
	})
	return r
}

func (m *Mirror) status(w http.ResponseWriter, _ *http.Request) {
	s := m.session
	deployments, projects := s.Deployments.Len(), s.Projects.Len()
	httpapi.WriteJSON(w, http.StatusOK, statusResponse{
		Channel:  s.Channel.State().String(),
		Endpoint: s.Channel.Endpoint(),
		Stores: map[string]storeStatus{
			s.Deployments.Name(): {Fetched: s.Deployments.Fetched(), Loading: s.Deployments.Loading(), Error: s.Deployments.Err(), Size: &deployments},
			s.Projects.Name():    {Fetched: s.Projects.Fetched(), Loading: s.Projects.Loading(), Error: s.Projects.Err(), Size: &projects},
			s.Library.Name():     {Fetched: s.Library.Fetched(), Loading: s.Library.Loading(), Error: s.Library.Err()},
			s.Settings.Name():    {Fetched: s.Settings.Fetched(), Loading: s.Settings.Loading(), Error: s.Settings.Err()},
		},
	})
}

func (m *Mirror) resync(w http.ResponseWriter, _ *http.Request) {
	m.session.TriggerResync()
	httpapi.WriteJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

// deployments serves the full list, or one view selected by recent,
// project_id or month+year.
func (m *Mirror) deployments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	store := m.session.Deployments

	var items []model.Deployment
	switch {
	case query.Has("recent"):
		n := defaultRecent
		if raw := strings.TrimSpace(query.Get("recent")); raw != "" {
			value, err := strconv.Atoi(raw)
			if err != nil {
				httpapi.WriteError(w, http.StatusBadRequest, "invalid_filter", "recent must be an integer")
				return
			}
			n = value
		}
		items = store.Recent(n)
	case query.Has("project_id"):
		id, err := strconv.ParseInt(query.Get("project_id"), 10, 64)
		if err != nil {
			httpapi.WriteError(w, http.StatusBadRequest, "invalid_filter", "project_id must be an integer")
			return
		}
		items = store.ByProject(id)
	case query.Has("month") || query.Has("year"):
		month, errMonth := strconv.Atoi(query.Get("month"))
		year, errYear := strconv.Atoi(query.Get("year"))
		if errMonth != nil || errYear != nil {
			httpapi.WriteError(w, http.StatusBadRequest, "invalid_filter", "month and year must both be integers")
			return
		}
		items = store.ByMonth(month, year)
	default:
		items = store.Items()
	}
	httpapi.WriteJSON(w, http.StatusOK, items)
}

func (m *Mirror) lastDeployment(w http.ResponseWriter, _ *http.Request) {
	last, ok := m.session.Deployments.Last()
	if !ok {
		httpapi.WriteError(w, http.StatusNotFound, "not_found", "No deployment recorded yet")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, last)
}

// announcement renders the chat summary of one cached deployment as plain text.
func (m *Mirror) announcement(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid_id", "id must be an integer")
		return
	}
	d, ok := m.session.Deployments.Get(id)
	if !ok {
		httpapi.WriteError(w, http.StatusNotFound, "not_found", "Deployment not found")
		return
	}
	if d.Project == nil {
		if p, ok := m.session.Projects.Get(d.ProjectID); ok {
			d.Project = &p
		}
	}
	if d.Component == nil && d.ComponentID != nil {
		for _, c := range m.session.Projects.Components(d.ProjectID) {
			if c.ID == *d.ComponentID {
				d.Component = &c
				break
			}
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, announce.FormatForTeams(announce.FromDeployment(d)))
}

func (m *Mirror) projects(w http.ResponseWriter, _ *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, m.session.Projects.Items())
}

func (m *Mirror) projectOptions(w http.ResponseWriter, _ *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, m.session.Projects.Options())
}

func (m *Mirror) components(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid_id", "id must be an integer")
		return
	}
	if _, ok := m.session.Projects.Get(id); !ok {
		httpapi.WriteError(w, http.StatusNotFound, "not_found", "Project not found")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, m.session.Projects.Components(id))
}

func (m *Mirror) library(w http.ResponseWriter, _ *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, m.session.Library.Value())
}

func (m *Mirror) settings(w http.ResponseWriter, _ *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, m.session.Settings.Value())
}

func (m *Mirror) lastEvent(w http.ResponseWriter, _ *http.Request) {
	ev, ok := m.session.Channel.LastEvent()
	if !ok {
		httpapi.WriteError(w, http.StatusNotFound, "not_found", "No event received yet")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, eventResponse{Kind: ev.Name, Data: ev.Data})
}

func (m *Mirror) subscriptions(w http.ResponseWriter, _ *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, m.session.Relay.Subscriptions())
}

func (m *Mirror) toast(w http.ResponseWriter, _ *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, m.session.Toasts.Current())
}
