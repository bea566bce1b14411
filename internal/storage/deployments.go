package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/chklst/deploysync/internal/model"
)

const deploymentColumns = `id, jira_id, timestamp, project_id, component_id, environment, vcs_url, developer_name,
	build_server, deploy_server, database_name, db_backup_location, database_script, previous_build_backup,
	build_status, deploy_status, notes, deployed_by, created_at, updated_at`

// DeploymentFilter narrows ListDeployments. Zero fields match everything;
// Month and Year only apply together.
type DeploymentFilter struct {
	ProjectID int64
	Month     int
	Year      int
}

func (r *Repository) ListDeployments(ctx context.Context, filter DeploymentFilter) ([]model.Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE 1 = 1`
	args := []any{}
	if filter.ProjectID > 0 {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if filter.Month >= 1 && filter.Month <= 12 && filter.Year > 0 {
		start := time.Date(filter.Year, time.Month(filter.Month), 1, 0, 0, 0, 0, time.UTC)
		query += ` AND timestamp >= ? AND timestamp < ?`
		args = append(args, formatTime(start), formatTime(start.AddDate(0, 1, 0)))
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deployments := []model.Deployment{}
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deployments, r.attachRelations(ctx, deployments)
}

func (r *Repository) GetDeployment(ctx context.Context, id int64) (model.Deployment, error) {
	d, err := scanDeployment(r.db.QueryRowContext(ctx, `SELECT `+deploymentColumns+` FROM deployments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Deployment{}, ErrNotFound
	}
	if err != nil {
		return model.Deployment{}, err
	}
	items := []model.Deployment{d}
	if err := r.attachRelations(ctx, items); err != nil {
		return model.Deployment{}, err
	}
	return items[0], nil
}

// CreateDeployment stores d. A zero timestamp defaults to now.
func (r *Repository) CreateDeployment(ctx context.Context, d model.Deployment) (model.Deployment, error) {
	now := r.now()
	if d.Timestamp.IsZero() {
		d.Timestamp = now
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO deployments (jira_id, timestamp, project_id, component_id, environment, vcs_url, developer_name,
			build_server, deploy_server, database_name, db_backup_location, database_script, previous_build_backup,
			build_status, deploy_status, notes, deployed_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.JiraID, formatTime(d.Timestamp), d.ProjectID, fromInt64Ptr(d.ComponentID), d.Environment, d.VCSURL,
		d.DeveloperName, d.BuildServer, d.DeployServer, d.DatabaseName, d.DBBackupLocation, d.DatabaseScript,
		d.PreviousBuildBackup, d.BuildStatus, d.DeployStatus, d.Notes, d.DeployedBy, formatTime(now), formatTime(now),
	)
	if err != nil {
		return model.Deployment{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Deployment{}, err
	}
	return r.GetDeployment(ctx, id)
}

func (r *Repository) UpdateDeployment(ctx context.Context, d model.Deployment) (model.Deployment, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE deployments SET jira_id = ?, timestamp = ?, project_id = ?, component_id = ?, environment = ?, vcs_url = ?,
			developer_name = ?, build_server = ?, deploy_server = ?, database_name = ?, db_backup_location = ?,
			database_script = ?, previous_build_backup = ?, build_status = ?, deploy_status = ?, notes = ?,
			deployed_by = ?, updated_at = ?
		WHERE id = ?`,
		d.JiraID, formatTime(d.Timestamp), d.ProjectID, fromInt64Ptr(d.ComponentID), d.Environment, d.VCSURL,
		d.DeveloperName, d.BuildServer, d.DeployServer, d.DatabaseName, d.DBBackupLocation, d.DatabaseScript,
		d.PreviousBuildBackup, d.BuildStatus, d.DeployStatus, d.Notes, d.DeployedBy, formatTime(r.now()), d.ID,
	)
	if err := affected(res, err); err != nil {
		return model.Deployment{}, err
	}
	return r.GetDeployment(ctx, d.ID)
}

func (r *Repository) DeleteDeployment(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM deployments WHERE id = ?`, id)
	return affected(res, err)
}

// attachRelations fills Project and Component on each deployment.
func (r *Repository) attachRelations(ctx context.Context, deployments []model.Deployment) error {
	if len(deployments) == 0 {
		return nil
	}
	projects, err := r.ListProjects(ctx)
	if err != nil {
		return err
	}
	byProject := make(map[int64]model.Project, len(projects))
	byComponent := map[int64]model.Component{}
	for _, p := range projects {
		for _, c := range p.Components {
			byComponent[c.ID] = c
		}
		p.Components = nil
		byProject[p.ID] = p
	}
	for i := range deployments {
		if p, ok := byProject[deployments[i].ProjectID]; ok {
			deployments[i].Project = &p
		}
		if id := deployments[i].ComponentID; id != nil {
			if c, ok := byComponent[*id]; ok {
				deployments[i].Component = &c
			}
		}
	}
	return nil
}

func scanDeployment(row scanner) (model.Deployment, error) {
	var (
		d                               model.Deployment
		componentID                     sql.NullInt64
		timestamp, createdAt, updatedAt string
	)
	if err := row.Scan(&d.ID, &d.JiraID, &timestamp, &d.ProjectID, &componentID, &d.Environment, &d.VCSURL,
		&d.DeveloperName, &d.BuildServer, &d.DeployServer, &d.DatabaseName, &d.DBBackupLocation, &d.DatabaseScript,
		&d.PreviousBuildBackup, &d.BuildStatus, &d.DeployStatus, &d.Notes, &d.DeployedBy, &createdAt, &updatedAt); err != nil {
		return model.Deployment{}, err
	}
	d.ComponentID = int64Ptr(componentID)
	d.Timestamp = parseTime(timestamp)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return d, nil
}
