package store

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/chklst/deploysync/internal/events"
	"github.com/chklst/deploysync/internal/model"
)

// Library caches the shared presets offered when recording a deployment.
type Library struct {
	*Document[model.LibraryPresets]
}

func NewLibrary(req Requester, opts Options) *Library {
	d := newDocument(Resource{
		Name:     "library",
		Plural:   "library presets",
		Singular: "presets",
		Path:     "/library",
		Family:   events.FamilyLibrary,
	}, model.LibraryPresets{}.Normalize(), http.MethodPut, req, opts)
	d.normalize = model.LibraryPresets.Normalize
	d.clone = model.LibraryPresets.Clone
	d.resetOnEmpty = true
	return &Library{Document: d}
}

func (l *Library) AddDeveloper(ctx context.Context, name string) error {
	return l.edit(ctx, func(p *model.LibraryPresets) bool { return addPreset(&p.Developers, name) })
}

func (l *Library) RemoveDeveloper(ctx context.Context, name string) error {
	return l.edit(ctx, func(p *model.LibraryPresets) bool { return removePreset(&p.Developers, name) })
}

func (l *Library) AddBuildServer(ctx context.Context, server string) error {
	return l.edit(ctx, func(p *model.LibraryPresets) bool { return addPreset(&p.BuildServers, server) })
}

func (l *Library) RemoveBuildServer(ctx context.Context, server string) error {
	return l.edit(ctx, func(p *model.LibraryPresets) bool { return removePreset(&p.BuildServers, server) })
}

func (l *Library) AddDeployServer(ctx context.Context, server string) error {
	return l.edit(ctx, func(p *model.LibraryPresets) bool { return addPreset(&p.DeployServers, server) })
}

func (l *Library) RemoveDeployServer(ctx context.Context, server string) error {
	return l.edit(ctx, func(p *model.LibraryPresets) bool { return removePreset(&p.DeployServers, server) })
}

func (l *Library) AddEnvironment(ctx context.Context, env string) error {
	return l.edit(ctx, func(p *model.LibraryPresets) bool { return addPreset(&p.Environments, env) })
}

func (l *Library) RemoveEnvironment(ctx context.Context, env string) error {
	return l.edit(ctx, func(p *model.LibraryPresets) bool { return removePreset(&p.Environments, env) })
}

// edit applies fn to a copy and saves it. The cache only changes once the
// server accepted the new presets. An edit that changes nothing is still
// saved, so every call reports one loading cycle.
func (l *Library) edit(ctx context.Context, fn func(*model.LibraryPresets) bool) error {
	next := l.Value()
	if !fn(&next) {
		l.logger.Debug("library edit changes nothing")
	}
	_, err := l.Save(ctx, next)
	return err
}

func addPreset(list *[]string, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" || slices.Contains(*list, value) {
		return false
	}
	*list = append(*list, value)
	return true
}

func removePreset(list *[]string, value string) bool {
	next := slices.DeleteFunc(slices.Clone(*list), func(v string) bool { return v == value })
	if len(next) == len(*list) {
		return false
	}
	*list = next
	return true
}
