package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/ReviewLoop/internal/domain/build"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const buildColumns = `id, build_id, project_id, build_type, task_id, task_description, plan_build_id,
	commit_sha, branch, changed_files, diff_unified, diff_source, review_bundle,
	test_command, test_exit_code, test_output_tail, coverage,
	lint_command, lint_exit_code, lint_output_tail,
	builder_signal, builder_notes, inspection_status, iteration_count,
	requires_human_approval, approval_reason, human_approved_by, created_at, updated_at`

func scanBuild(row scannable) (*build.Build, error) {
	var b build.Build
	err := row.Scan(
		&b.ID, &b.BuildID, &b.ProjectID, &b.Type, &b.TaskID, &b.TaskDescription, &b.PlanBuildID,
		&b.CommitSHA, &b.Branch, &b.ChangedFiles, &b.DiffUnified, &b.DiffSource, &b.ReviewBundle,
		&b.TestCommand, &b.TestExitCode, &b.TestOutputTail, &b.Coverage,
		&b.LintCommand, &b.LintExitCode, &b.LintOutputTail,
		&b.Signal, &b.BuilderNotes, &b.InspectionStatus, &b.IterationCount,
		&b.RequiresHumanApproval, &b.ApprovalReason, &b.HumanApprovedBy, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// --- Builds ---

func (s *Store) CreateBuild(ctx context.Context, b *build.Build) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO builds (id, build_id, project_id, build_type, task_id, task_description, plan_build_id,
			commit_sha, branch, changed_files, diff_unified, diff_source, review_bundle,
			test_command, test_exit_code, test_output_tail, coverage,
			lint_command, lint_exit_code, lint_output_tail,
			builder_signal, builder_notes, inspection_status, iteration_count,
			requires_human_approval, approval_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $27)`,
		b.ID, b.BuildID, b.ProjectID, b.Type, b.TaskID, b.TaskDescription, b.PlanBuildID,
		b.CommitSHA, b.Branch, pgTextArray(b.ChangedFiles), b.DiffUnified, b.DiffSource, b.ReviewBundle,
		b.TestCommand, b.TestExitCode, b.TestOutputTail, b.Coverage,
		b.LintCommand, b.LintExitCode, b.LintOutputTail,
		b.Signal, b.BuilderNotes, b.InspectionStatus, b.IterationCount,
		b.RequiresHumanApproval, b.ApprovalReason, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("create build %s: %w", b.BuildID, err)
	}
	return nil
}

func (s *Store) GetBuild(ctx context.Context, buildID string) (*build.Build, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+buildColumns+` FROM builds WHERE build_id = $1`, buildID)
	b, err := scanBuild(row)
	if err != nil {
		return nil, notFoundWrap(err, "get build %s", buildID)
	}
	return b, nil
}

// GetLatestReadyBuild returns the newest build that still awaits a
// verdict for the given project.
func (s *Store) GetLatestReadyBuild(ctx context.Context, projectID string) (*build.Build, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+buildColumns+` FROM builds
		 WHERE project_id = $1 AND builder_signal = 'READY_FOR_REVIEW' AND inspection_status = 'PENDING'
		 ORDER BY created_at DESC LIMIT 1`, projectID)
	b, err := scanBuild(row)
	if err != nil {
		return nil, notFoundWrap(err, "latest ready build for %s", projectID)
	}
	return b, nil
}

// NextIteration returns 1 + the highest iteration recorded for the task,
// or 1 when the task has no builds yet. An empty task id always starts
// at 1.
func (s *Store) NextIteration(ctx context.Context, projectID, taskID string) (int, error) {
	if taskID == "" {
		return 1, nil
	}
	var next int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(iteration_count), 0) + 1 FROM builds
		 WHERE project_id = $1 AND task_id = $2`, projectID, taskID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next iteration for %s/%s: %w", projectID, taskID, err)
	}
	return next, nil
}

func (s *Store) UpdateBuildSignal(ctx context.Context, buildID string, signal build.Signal, approvedBy string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE builds SET builder_signal = $2, human_approved_by = $3, updated_at = now()
		 WHERE build_id = $1`, buildID, signal, approvedBy)
	return execExpectOne(tag, err, "update signal for build %s", buildID)
}

func (s *Store) ListBuilds(ctx context.Context, projectID string, limit int) ([]*build.Build, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+buildColumns+` FROM builds
		 WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list builds for %s: %w", projectID, err)
	}
	defer rows.Close()

	var builds []*build.Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		builds = append(builds, b)
	}
	return builds, rows.Err()
}
