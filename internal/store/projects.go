package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/chklst/deploysync/internal/events"
	"github.com/chklst/deploysync/internal/model"
	"github.com/chklst/deploysync/internal/relay"
)

// Projects caches projects together with their nested components.
type Projects struct {
	*Synchronizer[model.Project]
}

func NewProjects(req Requester, opts Options) *Projects {
	s := NewSynchronizer[model.Project](Resource{
		Name:     "projects",
		Plural:   "projects",
		Singular: "project",
		Path:     "/projects",
		Family:   events.FamilyProject,
	}, req, opts)
	s.sort = func(projects []model.Project) {
		slices.SortStableFunc(projects, func(a, b model.Project) int {
			return byNameFold(a.Name, b.Name)
		})
	}
	s.merge = keepComponents
	return &Projects{Synchronizer: s}
}

// keepComponents carries cached components over when a replacement omits them.
func keepComponents(cached, incoming model.Project) model.Project {
	if incoming.Components == nil {
		incoming.Components = cached.Components
	}
	return incoming
}

// Attach subscribes to project and component events.
func (p *Projects) Attach(r *relay.Relay) {
	p.Synchronizer.Attach(r)
	p.subscribe(r.Subscribe("projects.components", p.applyComponentEvent, events.KindsOf(events.FamilyComponent)...))
}

// AddComponent creates a component under projectID and appends it to the
// cached project.
func (p *Projects) AddComponent(ctx context.Context, projectID int64, component model.Component) (created model.Component, err error) {
	done := p.status.begin("add_component")
	defer func() { done(err, "Failed to add component") }()

	if err := p.req.Post(ctx, componentsPath(projectID), component, &created); err != nil {
		return model.Component{}, fmt.Errorf("add component to project %d: %w", projectID, err)
	}
	if created.ProjectID == 0 {
		created.ProjectID = projectID
	}
	p.modify(projectID, func(project model.Project) (model.Project, bool) {
		return withComponent(project, created, false)
	})
	return created, nil
}

func (p *Projects) UpdateComponent(ctx context.Context, projectID, componentID int64, patch any) (updated model.Component, err error) {
	done := p.status.begin("update_component")
	defer func() { done(err, "Failed to update component") }()

	if err := p.req.Put(ctx, componentPath(projectID, componentID), patch, &updated); err != nil {
		return model.Component{}, fmt.Errorf("update component %d: %w", componentID, err)
	}
	if updated.ID == 0 {
		return updated, nil
	}
	p.modify(projectID, func(project model.Project) (model.Project, bool) {
		return replaceComponent(project, updated)
	})
	return updated, nil
}

func (p *Projects) DeleteComponent(ctx context.Context, projectID, componentID int64) (err error) {
	done := p.status.begin("delete_component")
	defer func() { done(err, "Failed to delete component") }()

	if err := p.req.Delete(ctx, componentPath(projectID, componentID)); err != nil {
		return fmt.Errorf("delete component %d: %w", componentID, err)
	}
	p.modify(projectID, func(project model.Project) (model.Project, bool) {
		return withoutComponent(project, componentID)
	})
	return nil
}

// ApplyComponentCreated inserts a pushed component at the front of its
// project's list unless it is already there.
func (p *Projects) ApplyComponentCreated(component model.Component) bool {
	if _, ok := component.Identity(); !ok {
		return false
	}
	return p.modify(component.ProjectID, func(project model.Project) (model.Project, bool) {
		return withComponent(project, component, true)
	})
}

func (p *Projects) ApplyComponentUpdated(component model.Component) bool {
	if _, ok := component.Identity(); !ok {
		return false
	}
	return p.modify(component.ProjectID, func(project model.Project) (model.Project, bool) {
		return replaceComponent(project, component)
	})
}

func (p *Projects) ApplyComponentDeleted(projectID, componentID int64) bool {
	return p.modify(projectID, func(project model.Project) (model.Project, bool) {
		return withoutComponent(project, componentID)
	})
}

func (p *Projects) applyComponentEvent(ev events.Event) {
	component, err := events.Payload[model.Component](ev)
	if err != nil {
		p.logger.Warn("ignoring push event", "kind", ev.String(), "err", err)
		return
	}

	var applied bool
	switch ev.Kind.Action() {
	case events.ActionCreated:
		applied = p.ApplyComponentCreated(component)
	case events.ActionUpdated:
		applied = p.ApplyComponentUpdated(component)
	case events.ActionDeleted:
		applied = p.ApplyComponentDeleted(component.ProjectID, component.ID)
	case events.ActionUnknown:
		return
	}
	p.logger.Debug("push event reconciled", "kind", ev.String(), "applied", applied)
}

// ByName returns the project with exactly this name.
func (p *Projects) ByName(name string) (model.Project, bool) {
	for _, project := range p.Items() {
		if project.Name == name {
			return project, true
		}
	}
	return model.Project{}, false
}

// Components returns the cached components of projectID.
func (p *Projects) Components(projectID int64) []model.Component {
	project, ok := p.Get(projectID)
	if !ok {
		return []model.Component{}
	}
	return append([]model.Component{}, project.Components...)
}

// Options flattens every project/component pair for a combined picker.
func (p *Projects) Options() []model.ProjectComponentOption {
	options := []model.ProjectComponentOption{}
	for _, project := range p.Items() {
		for _, component := range project.Components {
			options = append(options, model.ProjectComponentOption{
				Value:       fmt.Sprintf("%d-%d", project.ID, component.ID),
				Label:       project.Name + " > " + component.Name,
				ProjectID:   project.ID,
				ComponentID: component.ID,
			})
		}
	}
	return options
}

// The helpers below never modify project.Components in place, since readers
// may still hold the previous slice.

func withComponent(project model.Project, component model.Component, front bool) (model.Project, bool) {
	id, ok := component.Identity()
	if !ok || indexComponent(project.Components, id) >= 0 {
		return project, false
	}
	next := make([]model.Component, 0, len(project.Components)+1)
	if front {
		next = append(next, component)
		next = append(next, project.Components...)
	} else {
		next = append(next, project.Components...)
		next = append(next, component)
	}
	project.Components = next
	return project, true
}

func replaceComponent(project model.Project, component model.Component) (model.Project, bool) {
	i := indexComponent(project.Components, component.ID)
	if i < 0 {
		return project, false
	}
	next := slices.Clone(project.Components)
	next[i] = component
	project.Components = next
	return project, true
}

func withoutComponent(project model.Project, componentID int64) (model.Project, bool) {
	i := indexComponent(project.Components, componentID)
	if i < 0 {
		return project, false
	}
	next := slices.Clone(project.Components)
	project.Components = slices.Delete(next, i, i+1)
	return project, true
}

func indexComponent(components []model.Component, id int64) int {
	return slices.IndexFunc(components, func(c model.Component) bool { return c.ID == id })
}

func componentsPath(projectID int64) string {
	return "/projects/" + strconv.FormatInt(projectID, 10) + "/components"
}

func componentPath(projectID, componentID int64) string {
	return componentsPath(projectID) + "/" + strconv.FormatInt(componentID, 10)
}

// byNameFold orders names case-insensitively, falling back to byte order for ties.
func byNameFold(a, b string) int {
	if c := cmp.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}
