package store

import (
	"slices"
	"sync"
	"time"

	"github.com/chklst/deploysync/internal/events"
	"github.com/chklst/deploysync/internal/model"
)

// Deployments caches the deployment history.
type Deployments struct {
	*Synchronizer[model.Deployment]

	lastMu sync.RWMutex
	last   *model.LastDeployment
}

func NewDeployments(req Requester, opts Options) *Deployments {
	return &Deployments{
		Synchronizer: NewSynchronizer[model.Deployment](Resource{
			Name:     "deployments",
			Plural:   "deployments",
			Singular: "deployment",
			Path:     "/deployments",
			Family:   events.FamilyDeployment,
		}, req, opts),
	}
}

// Recent returns up to n deployments, most recently modified first.
func (d *Deployments) Recent(n int) []model.Deployment {
	if n <= 0 {
		return []model.Deployment{}
	}
	items := d.Items()
	slices.SortStableFunc(items, func(a, b model.Deployment) int {
		return b.LastModified().Compare(a.LastModified())
	})
	return items[:min(n, len(items))]
}

func (d *Deployments) ByProject(projectID int64) []model.Deployment {
	return filter(d.Items(), func(dep model.Deployment) bool {
		return dep.ProjectID == projectID
	})
}

// ByMonth returns deployments whose timestamp falls in month (1-12) of year.
// An out of range month matches nothing.
func (d *Deployments) ByMonth(month, year int) []model.Deployment {
	if month < 1 || month > 12 {
		return []model.Deployment{}
	}
	return filter(d.Items(), func(dep model.Deployment) bool {
		return !dep.Timestamp.IsZero() &&
			dep.Timestamp.Month() == time.Month(month) &&
			dep.Timestamp.Year() == year
	})
}

// SetLast remembers the project/component pair of the latest recorded
// deployment. Push events never change it.
func (d *Deployments) SetLast(projectID, componentID int64) {
	d.lastMu.Lock()
	defer d.lastMu.Unlock()
	d.last = &model.LastDeployment{ProjectID: projectID, ComponentID: componentID}
}

func (d *Deployments) Last() (model.LastDeployment, bool) {
	d.lastMu.RLock()
	defer d.lastMu.RUnlock()
	if d.last == nil {
		return model.LastDeployment{}, false
	}
	return *d.last, true
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := []T{}
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}
