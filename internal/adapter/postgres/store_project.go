package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/ReviewLoop/internal/domain/project"
	"github.com/Strob0t/ReviewLoop/internal/port/database"
)

const projectColumns = `id, project_id, name, repo_url, default_branch, secrets_provider,
	db_connection_ref, db_context_mode, allowed_schemas, allowed_tables, pii_fields, created_by`

func scanProject(row scannable) (*project.Project, error) {
	var p project.Project
	err := row.Scan(
		&p.ID, &p.ProjectID, &p.Name, &p.RepoURL, &p.DefaultBranch, &p.SecretsProvider,
		&p.DBConnectionRef, &p.DBContextMode, &p.AllowedSchemas, &p.AllowedTables, &p.PIIFields, &p.CreatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProject(ctx context.Context, p *project.Project) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO projects (project_id, name, repo_url, default_branch, secrets_provider,
			db_connection_ref, db_context_mode, allowed_schemas, allowed_tables, pii_fields, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		p.ProjectID, p.Name, p.RepoURL, p.DefaultBranch, p.SecretsProvider,
		p.DBConnectionRef, p.DBContextMode, pgTextArray(p.AllowedSchemas),
		pgTextArray(p.AllowedTables), pgTextArray(p.PIIFields), p.CreatedBy).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("create project %s: %w", p.ProjectID, err)
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, projectID string) (*project.Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE project_id = $1`, projectID)
	p, err := scanProject(row)
	if err != nil {
		return nil, notFoundWrap(err, "get project %s", projectID)
	}
	return p, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]*project.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*project.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *Store) UpdateProject(ctx context.Context, p *project.Project) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET name = $2, repo_url = $3, default_branch = $4, secrets_provider = $5,
			db_connection_ref = $6, db_context_mode = $7, allowed_schemas = $8,
			allowed_tables = $9, pii_fields = $10, updated_at = now()
		 WHERE project_id = $1`,
		p.ProjectID, p.Name, p.RepoURL, p.DefaultBranch, p.SecretsProvider,
		p.DBConnectionRef, p.DBContextMode, pgTextArray(p.AllowedSchemas),
		pgTextArray(p.AllowedTables), pgTextArray(p.PIIFields))
	return execExpectOne(tag, err, "update project %s", p.ProjectID)
}

// AppendDBAccess records one database-context read in the audit log.
func (s *Store) AppendDBAccess(ctx context.Context, rec *database.DBAccessRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO db_access_log (project_id, build_id, accessor, operation, target, accessed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ProjectID, rec.BuildID, rec.Accessor, rec.Operation, rec.Target, rec.AccessedAt)
	if err != nil {
		return fmt.Errorf("append db access log: %w", err)
	}
	return nil
}
