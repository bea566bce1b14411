package model

import "time"

// LibraryPresets holds the shared dropdown values offered when recording a deployment.
type LibraryPresets struct {
	ID            int64     `json:"id,omitempty"`
	Developers    []string  `json:"developers"`
	BuildServers  []string  `json:"build_servers"`
	DeployServers []string  `json:"deploy_servers"`
	Environments  []string  `json:"environments"`
	CreatedAt     time.Time `json:"created_at,omitzero"`
	UpdatedAt     time.Time `json:"updated_at,omitzero"`
}

func (l LibraryPresets) Identity() (int64, bool) { return identity(l.ID) }

// Normalize replaces nil lists with empty ones so the wire form never carries null.
func (l LibraryPresets) Normalize() LibraryPresets {
	l.Developers = nonNil(l.Developers)
	l.BuildServers = nonNil(l.BuildServers)
	l.DeployServers = nonNil(l.DeployServers)
	l.Environments = nonNil(l.Environments)
	return l
}

// Clone returns a deep copy.
func (l LibraryPresets) Clone() LibraryPresets {
	l.Developers = append([]string{}, l.Developers...)
	l.BuildServers = append([]string{}, l.BuildServers...)
	l.DeployServers = append([]string{}, l.DeployServers...)
	l.Environments = append([]string{}, l.Environments...)
	return l
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
