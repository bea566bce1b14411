package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/chklst/deploysync/internal/model"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo, err := New(context.Background(), dbPath, logger)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestProjectLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateProject(ctx, model.Project{Name: "portal", Environment: "prod"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if created.ID == 0 || created.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamps, got %+v", created)
	}
	if created.Components == nil || len(created.Components) != 0 {
		t.Fatalf("expected empty components list, got %#v", created.Components)
	}

	if _, err := repo.CreateProject(ctx, model.Project{Name: "portal"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate name: expected ErrConflict, got %v", err)
	}

	component, err := repo.CreateComponent(ctx, model.Component{ProjectID: created.ID, Name: "web"})
	if err != nil {
		t.Fatalf("create component: %v", err)
	}
	if component.VCSType != model.VCSGit || component.Enabled == nil || !*component.Enabled {
		t.Fatalf("expected git and enabled defaults, got %+v", component)
	}

	created.Description = "customer portal"
	updated, err := repo.UpdateProject(ctx, created)
	if err != nil {
		t.Fatalf("update project: %v", err)
	}
	if updated.Description != "customer portal" || len(updated.Components) != 1 {
		t.Fatalf("unexpected updated project %+v", updated)
	}

	projects, err := repo.ListProjects(ctx)
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(projects) != 1 || projects[0].Components[0].Name != "web" {
		t.Fatalf("unexpected listing %+v", projects)
	}

	if err := repo.DeleteProject(ctx, created.ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if _, err := repo.GetComponent(ctx, created.ID, component.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("component should be gone with its project, got %v", err)
	}
	if err := repo.DeleteProject(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestComponentRequiresProject(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.CreateComponent(context.Background(), model.Component{ProjectID: 42, Name: "orphan"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestComponentUpdateAndDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	project, _ := repo.CreateProject(ctx, model.Project{Name: "billing"})
	component, _ := repo.CreateComponent(ctx, model.Component{ProjectID: project.ID, Name: "api"})

	disabled := false
	component.Enabled = &disabled
	component.VCSType = model.VCSSVN
	updated, err := repo.UpdateComponent(ctx, component)
	if err != nil {
		t.Fatalf("update component: %v", err)
	}
	if *updated.Enabled || updated.VCSType != model.VCSSVN {
		t.Fatalf("unexpected component %+v", updated)
	}

	component.ProjectID = project.ID + 1
	if _, err := repo.UpdateComponent(ctx, component); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update under wrong project: expected ErrNotFound, got %v", err)
	}
	if err := repo.DeleteComponent(ctx, project.ID, updated.ID); err != nil {
		t.Fatalf("delete component: %v", err)
	}
	if err := repo.DeleteComponent(ctx, project.ID, updated.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestDeploymentFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	portal, _ := repo.CreateProject(ctx, model.Project{Name: "portal"})
	billing, _ := repo.CreateProject(ctx, model.Project{Name: "billing"})
	web, _ := repo.CreateComponent(ctx, model.Component{ProjectID: portal.ID, Name: "web"})

	inputs := []model.Deployment{
		{ProjectID: portal.ID, ComponentID: &web.ID, Timestamp: time.Date(2025, 11, 1, 0, 0, 0, 500, time.UTC), BuildStatus: model.StatusSuccess},
		{ProjectID: portal.ID, Timestamp: time.Date(2025, 10, 31, 23, 59, 59, 0, time.UTC)},
		{ProjectID: billing.ID, Timestamp: time.Date(2025, 11, 30, 16, 47, 0, 0, time.UTC)},
	}
	for _, in := range inputs {
		if _, err := repo.CreateDeployment(ctx, in); err != nil {
			t.Fatalf("create deployment: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter DeploymentFilter
		want   int
	}{
		{name: "all", filter: DeploymentFilter{}, want: 3},
		{name: "by project", filter: DeploymentFilter{ProjectID: portal.ID}, want: 2},
		{name: "november", filter: DeploymentFilter{Month: 11, Year: 2025}, want: 2},
		{name: "project in november", filter: DeploymentFilter{ProjectID: portal.ID, Month: 11, Year: 2025}, want: 1},
		{name: "month without year", filter: DeploymentFilter{Month: 11}, want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListDeployments(ctx, tt.filter)
			if err != nil {
				t.Fatalf("list deployments: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d deployments, want %d", len(got), tt.want)
			}
		})
	}

	first, err := repo.GetDeployment(ctx, 1)
	if err != nil {
		t.Fatalf("get deployment: %v", err)
	}
	if first.Project == nil || first.Project.Name != "portal" || first.Component == nil || first.Component.Name != "web" {
		t.Fatalf("relations not attached: %+v", first)
	}
}

func TestDeploymentDefaultsAndUpdate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	fixed := time.Date(2025, 11, 30, 16, 47, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	created, err := repo.CreateDeployment(ctx, model.Deployment{ProjectID: 1, DeployStatus: model.StatusPending})
	if err != nil {
		t.Fatalf("create deployment: %v", err)
	}
	if !created.Timestamp.Equal(fixed) || created.ComponentID != nil {
		t.Fatalf("unexpected defaults %+v", created)
	}

	later := fixed.Add(time.Hour)
	repo.now = func() time.Time { return later }
	created.DeployStatus = model.StatusSuccess
	updated, err := repo.UpdateDeployment(ctx, created)
	if err != nil {
		t.Fatalf("update deployment: %v", err)
	}
	if updated.DeployStatus != model.StatusSuccess || !updated.UpdatedAt.Equal(later) || !updated.CreatedAt.Equal(fixed) {
		t.Fatalf("unexpected update %+v", updated)
	}

	if err := repo.DeleteDeployment(ctx, created.ID); err != nil {
		t.Fatalf("delete deployment: %v", err)
	}
	if _, err := repo.GetDeployment(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDocuments(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	var settings model.AppSettings
	if err := repo.GetDocument(ctx, DocumentSettings, &settings); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	want := model.AppSettings{ID: 1, DefaultDeployedBy: "Meera", ExcelExportPath: "/exports"}
	if err := repo.PutDocument(ctx, DocumentSettings, want); err != nil {
		t.Fatalf("put document: %v", err)
	}
	want.ExcelExportPath = "/srv/exports"
	if err := repo.PutDocument(ctx, DocumentSettings, want); err != nil {
		t.Fatalf("overwrite document: %v", err)
	}
	if err := repo.GetDocument(ctx, DocumentSettings, &settings); err != nil {
		t.Fatalf("get document: %v", err)
	}
	if settings != want {
		t.Fatalf("got %+v, want %+v", settings, want)
	}
}
