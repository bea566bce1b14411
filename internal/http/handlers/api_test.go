package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/chklst/deploysync/internal/events"
	"github.com/chklst/deploysync/internal/model"
	"github.com/chklst/deploysync/internal/storage"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBroadcaster) Broadcast(ev events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *recordingBroadcaster) kinds() []events.Kind {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.Kind, 0, len(b.events))
	for _, ev := range b.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (b *recordingBroadcaster) last(t *testing.T) events.Event {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		t.Fatalf("no events broadcast")
	}
	return b.events[len(b.events)-1]
}

type testServer struct {
	router      chi.Router
	broadcaster *recordingBroadcaster
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo, err := storage.New(context.Background(), filepath.Join(t.TempDir(), "dev.db"), logger)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	broadcaster := &recordingBroadcaster{}
	router := chi.NewRouter()
	New(repo, broadcaster, logger).Mount(router)
	return &testServer{router: router, broadcaster: broadcaster}
}

func (s *testServer) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func TestProjectAndComponentRoutes(t *testing.T) {
	s := newTestServer(t)

	var project model.Project
	if code := s.do(t, http.MethodPost, "/projects", map[string]any{"name": " portal "}, &project); code != http.StatusCreated {
		t.Fatalf("create project status = %d", code)
	}
	if project.Name != "portal" || project.ID == 0 {
		t.Fatalf("unexpected project %+v", project)
	}
	if code := s.do(t, http.MethodPost, "/projects", map[string]any{"name": "portal"}, nil); code != http.StatusConflict {
		t.Fatalf("duplicate project status = %d, want 409", code)
	}

	var component model.Component
	path := "/projects/1/components"
	if code := s.do(t, http.MethodPost, path, map[string]any{"name": "web"}, &component); code != http.StatusCreated {
		t.Fatalf("create component status = %d", code)
	}
	if component.ProjectID != project.ID {
		t.Fatalf("component project = %d, want %d", component.ProjectID, project.ID)
	}

	var updated model.Component
	if code := s.do(t, http.MethodPut, "/projects/1/components/1", map[string]any{"developer": "Asha"}, &updated); code != http.StatusOK {
		t.Fatalf("update component status = %d", code)
	}
	if updated.Name != "web" || updated.Developer != "Asha" {
		t.Fatalf("update should merge onto stored component, got %+v", updated)
	}

	var listed []model.Project
	s.do(t, http.MethodGet, "/projects", nil, &listed)
	if len(listed) != 1 || len(listed[0].Components) != 1 {
		t.Fatalf("unexpected listing %+v", listed)
	}

	if code := s.do(t, http.MethodDelete, "/projects/1/components/1", nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete component status = %d", code)
	}
	deleted, err := events.Payload[model.Component](s.broadcaster.last(t))
	if err != nil {
		t.Fatalf("decode delete payload: %v", err)
	}
	if deleted.ID != 1 || deleted.ProjectID != 1 {
		t.Fatalf("unexpected delete payload %+v", deleted)
	}
	if code := s.do(t, http.MethodDelete, "/projects/1", nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete project status = %d", code)
	}
	if code := s.do(t, http.MethodGet, "/projects/1", nil, nil); code != http.StatusNotFound {
		t.Fatalf("get deleted project status = %d, want 404", code)
	}

	want := []events.Kind{
		events.KindProjectCreated,
		events.KindComponentCreated,
		events.KindComponentUpdated,
		events.KindComponentDeleted,
		events.KindProjectDeleted,
	}
	got := s.broadcaster.kinds()
	if len(got) != len(want) {
		t.Fatalf("broadcast kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("broadcast kinds = %v, want %v", got, want)
		}
	}
}

func TestDeploymentRoutes(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/projects", map[string]any{"name": "portal"}, nil)

	if code := s.do(t, http.MethodPost, "/deployments", map[string]any{"jira_id": "OPS-1"}, nil); code != http.StatusBadRequest {
		t.Fatalf("missing project status = %d, want 400", code)
	}

	var created model.Deployment
	body := map[string]any{"project_id": 1, "jira_id": "OPS-1", "timestamp": "2025-11-30T16:47:00Z", "build_status": "success"}
	if code := s.do(t, http.MethodPost, "/deployments", body, &created); code != http.StatusCreated {
		t.Fatalf("create deployment status = %d", code)
	}
	if created.Project == nil || created.Project.Name != "portal" {
		t.Fatalf("expected project relation, got %+v", created.Project)
	}

	var updated model.Deployment
	if code := s.do(t, http.MethodPut, "/deployments/1", map[string]any{"deploy_status": "failed"}, &updated); code != http.StatusOK {
		t.Fatalf("update deployment status = %d", code)
	}
	if updated.JiraID != "OPS-1" || updated.DeployStatus != model.StatusFailed {
		t.Fatalf("update should merge onto stored deployment, got %+v", updated)
	}
	if ev := s.broadcaster.last(t); ev.Kind != events.KindDeploymentUpdated {
		t.Fatalf("last event = %s, want deployment_updated", ev.Kind)
	}

	var november, october []model.Deployment
	s.do(t, http.MethodGet, "/deployments?month=11&year=2025&project_id=1", nil, &november)
	s.do(t, http.MethodGet, "/deployments?month=10&year=2025", nil, &october)
	if len(november) != 1 || len(october) != 0 {
		t.Fatalf("month filter: november=%d october=%d", len(november), len(october))
	}
	if code := s.do(t, http.MethodGet, "/deployments?month=nov", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad filter status = %d, want 400", code)
	}

	if code := s.do(t, http.MethodDelete, "/deployments/1", nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete deployment status = %d", code)
	}
	if code := s.do(t, http.MethodDelete, "/deployments/1", nil, nil); code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", code)
	}
	if code := s.do(t, http.MethodGet, "/deployments/abc", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d, want 400", code)
	}
}

func TestDocumentRoutes(t *testing.T) {
	s := newTestServer(t)

	var settings model.AppSettings
	s.do(t, http.MethodGet, "/settings", nil, &settings)
	if settings.DefaultDeployedBy != model.DefaultSettings().DefaultDeployedBy {
		t.Fatalf("expected default settings, got %+v", settings)
	}
	if code := s.do(t, http.MethodPost, "/settings", map[string]any{"auto_clear_after_save": true}, &settings); code != http.StatusOK {
		t.Fatalf("save settings status = %d", code)
	}
	if !settings.AutoClearAfterSave || settings.ExcelExportPath != model.DefaultSettings().ExcelExportPath {
		t.Fatalf("settings should merge onto defaults, got %+v", settings)
	}

	var presets model.LibraryPresets
	s.do(t, http.MethodGet, "/library", nil, &presets)
	if presets.Developers == nil || len(presets.Developers) != 0 {
		t.Fatalf("expected empty developer list, got %#v", presets.Developers)
	}
	if code := s.do(t, http.MethodPut, "/library", map[string]any{"developers": []string{"Asha"}}, &presets); code != http.StatusOK {
		t.Fatalf("save library status = %d", code)
	}
	if len(presets.Developers) != 1 || presets.Environments == nil {
		t.Fatalf("unexpected presets %+v", presets)
	}

	got := s.broadcaster.kinds()
	if len(got) != 2 || got[0] != events.KindSettingsUpdated || got[1] != events.KindLibraryUpdated {
		t.Fatalf("broadcast kinds = %v", got)
	}
	if code := s.do(t, http.MethodPost, "/settings", "not an object", nil); code != http.StatusBadRequest {
		t.Fatalf("bad payload status = %d, want 400", code)
	}
}
