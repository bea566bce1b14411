package model

import "time"

// VCS types accepted for a component.
const (
	VCSGit = "git"
	VCSSVN = "svn"
)

// Project groups components that are deployed together.
type Project struct {
	ID             int64       `json:"id,omitempty"`
	Name           string      `json:"name"`
	BuildServer    string      `json:"build_server,omitempty"`
	DeployServer   string      `json:"deploy_server,omitempty"`
	DatabaseName   string      `json:"database_name,omitempty"`
	Environment    string      `json:"environment,omitempty"`
	BackupLocation string      `json:"backup_location,omitempty"`
	Description    string      `json:"description,omitempty"`
	Components     []Component `json:"components"`
	CreatedAt      time.Time   `json:"created_at,omitzero"`
	UpdatedAt      time.Time   `json:"updated_at,omitzero"`
}

func (p Project) Identity() (int64, bool) { return identity(p.ID) }

// Component is a deployable unit owned by a project.
type Component struct {
	ID           int64     `json:"id,omitempty"`
	ProjectID    int64     `json:"project_id,omitempty"`
	Name         string    `json:"name"`
	Developer    string    `json:"developer,omitempty"`
	VCSType      string    `json:"vcs_type,omitempty"`
	VCSURL       string    `json:"vcs_url,omitempty"`
	BuildCommand string    `json:"build_command,omitempty"`
	ComponentURL string    `json:"component_url,omitempty"`
	Enabled      *bool     `json:"enabled,omitempty"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
}

func (c Component) Identity() (int64, bool) { return identity(c.ID) }

// ProjectComponentOption is one entry of the combined project/component picker.
type ProjectComponentOption struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	ProjectID   int64  `json:"project_id"`
	ComponentID int64  `json:"component_id"`
}
