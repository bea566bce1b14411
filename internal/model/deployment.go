package model

import "time"

// Deployment status values used by build_status and deploy_status.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Deployment is one recorded rollout of a project component.
type Deployment struct {
	ID                  int64     `json:"id,omitempty"`
	JiraID              string    `json:"jira_id,omitempty"`
	Timestamp           time.Time `json:"timestamp,omitzero"`
	ProjectID           int64     `json:"project_id"`
	ComponentID         *int64    `json:"component_id,omitempty"`
	Environment         string    `json:"environment,omitempty"`
	VCSURL              string    `json:"vcs_url,omitempty"`
	DeveloperName       string    `json:"developer_name,omitempty"`
	BuildServer         string    `json:"build_server,omitempty"`
	DeployServer        string    `json:"deploy_server,omitempty"`
	DatabaseName        string    `json:"database_name,omitempty"`
	DBBackupLocation    string    `json:"db_backup_location,omitempty"`
	DatabaseScript      string    `json:"database_script,omitempty"`
	PreviousBuildBackup string    `json:"previous_build_backup,omitempty"`
	BuildStatus         string    `json:"build_status"`
	DeployStatus        string    `json:"deploy_status"`
	Notes               string    `json:"notes,omitempty"`
	DeployedBy          string    `json:"deployed_by,omitempty"`
	CreatedAt           time.Time `json:"created_at,omitzero"`
	UpdatedAt           time.Time `json:"updated_at,omitzero"`

	Project   *Project   `json:"project,omitempty"`
	Component *Component `json:"component,omitempty"`
}

func (d Deployment) Identity() (int64, bool) { return identity(d.ID) }

// LastModified is the timestamp used to order recent deployments.
func (d Deployment) LastModified() time.Time {
	return LastModified(d.CreatedAt, d.UpdatedAt)
}

// LastDeployment remembers the project/component pair used most recently.
type LastDeployment struct {
	ProjectID   int64 `json:"project_id"`
	ComponentID int64 `json:"component_id"`
}
