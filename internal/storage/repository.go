package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/chklst/deploysync/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

const projectColumns = `id, name, build_server, deploy_server, database_name, environment, backup_location, description, created_at, updated_at`

const componentColumns = `id, project_id, name, developer, vcs_type, vcs_url, build_command, component_url, enabled, description, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

// ListProjects returns every project with its components, ordered by id.
func (r *Repository) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []model.Project{}
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	components, err := r.componentsByProject(ctx)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		projects[i].Components = components[projects[i].ID]
		if projects[i].Components == nil {
			projects[i].Components = []model.Component{}
		}
	}
	return projects, nil
}

func (r *Repository) GetProject(ctx context.Context, id int64) (model.Project, error) {
	project, err := scanProject(r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Project{}, ErrNotFound
	}
	if err != nil {
		return model.Project{}, err
	}
	project.Components, err = r.listComponents(ctx, id)
	if err != nil {
		return model.Project{}, err
	}
	return project, nil
}

func (r *Repository) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	now := formatTime(r.now())
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (name, build_server, deploy_server, database_name, environment, backup_location, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.BuildServer, p.DeployServer, p.DatabaseName, p.Environment, p.BackupLocation, p.Description, now, now,
	)
	if err != nil {
		return model.Project{}, classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Project{}, err
	}
	return r.GetProject(ctx, id)
}

// UpdateProject stores every scalar field of p. Components are not touched.
func (r *Repository) UpdateProject(ctx context.Context, p model.Project) (model.Project, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE projects SET name = ?, build_server = ?, deploy_server = ?, database_name = ?, environment = ?,
			backup_location = ?, description = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.BuildServer, p.DeployServer, p.DatabaseName, p.Environment, p.BackupLocation, p.Description,
		formatTime(r.now()), p.ID,
	)
	if err := affected(res, err); err != nil {
		return model.Project{}, err
	}
	return r.GetProject(ctx, p.ID)
}

func (r *Repository) DeleteProject(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM components WHERE project_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM deployments WHERE project_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err := affected(res, err); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) GetComponent(ctx context.Context, projectID, componentID int64) (model.Component, error) {
	component, err := scanComponent(r.db.QueryRowContext(ctx,
		`SELECT `+componentColumns+` FROM components WHERE id = ? AND project_id = ?`, componentID, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Component{}, ErrNotFound
	}
	return component, err
}

func (r *Repository) CreateComponent(ctx context.Context, c model.Component) (model.Component, error) {
	if _, err := r.GetProject(ctx, c.ProjectID); err != nil {
		return model.Component{}, err
	}
	if c.VCSType == "" {
		c.VCSType = model.VCSGit
	}
	if c.Enabled == nil {
		enabled := true
		c.Enabled = &enabled
	}
	now := formatTime(r.now())
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO components (project_id, name, developer, vcs_type, vcs_url, build_command, component_url, enabled, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ProjectID, c.Name, c.Developer, c.VCSType, c.VCSURL, c.BuildCommand, c.ComponentURL, fromBoolPtr(c.Enabled), c.Description, now, now,
	)
	if err != nil {
		return model.Component{}, classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Component{}, err
	}
	return r.GetComponent(ctx, c.ProjectID, id)
}

func (r *Repository) UpdateComponent(ctx context.Context, c model.Component) (model.Component, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE components SET name = ?, developer = ?, vcs_type = ?, vcs_url = ?, build_command = ?, component_url = ?,
			enabled = ?, description = ?, updated_at = ?
		WHERE id = ? AND project_id = ?`,
		c.Name, c.Developer, c.VCSType, c.VCSURL, c.BuildCommand, c.ComponentURL, fromBoolPtr(c.Enabled), c.Description,
		formatTime(r.now()), c.ID, c.ProjectID,
	)
	if err := affected(res, err); err != nil {
		return model.Component{}, err
	}
	return r.GetComponent(ctx, c.ProjectID, c.ID)
}

func (r *Repository) DeleteComponent(ctx context.Context, projectID, componentID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM components WHERE id = ? AND project_id = ?`, componentID, projectID)
	return affected(res, err)
}

func (r *Repository) listComponents(ctx context.Context, projectID int64) ([]model.Component, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+componentColumns+` FROM components WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	components := []model.Component{}
	for rows.Next() {
		component, err := scanComponent(rows)
		if err != nil {
			return nil, err
		}
		components = append(components, component)
	}
	return components, rows.Err()
}

func (r *Repository) componentsByProject(ctx context.Context) (map[int64][]model.Component, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+componentColumns+` FROM components ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[int64][]model.Component{}
	for rows.Next() {
		component, err := scanComponent(rows)
		if err != nil {
			return nil, err
		}
		result[component.ProjectID] = append(result[component.ProjectID], component)
	}
	return result, rows.Err()
}

func scanProject(row scanner) (model.Project, error) {
	var (
		p                    model.Project
		createdAt, updatedAt string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.BuildServer, &p.DeployServer, &p.DatabaseName, &p.Environment,
		&p.BackupLocation, &p.Description, &createdAt, &updatedAt); err != nil {
		return model.Project{}, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

func scanComponent(row scanner) (model.Component, error) {
	var (
		c                    model.Component
		enabled              sql.NullBool
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Developer, &c.VCSType, &c.VCSURL, &c.BuildCommand,
		&c.ComponentURL, &enabled, &c.Description, &createdAt, &updatedAt); err != nil {
		return model.Component{}, err
	}
	c.Enabled = boolPtr(enabled)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}

// affected turns an exec result that touched no rows into ErrNotFound.
func affected(res sql.Result, err error) error {
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func classify(err error) error {
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
