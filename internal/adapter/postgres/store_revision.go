package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/ReviewLoop/internal/domain"
	"github.com/Strob0t/ReviewLoop/internal/domain/revision"
)

const revisionColumns = `id, revision_id, build_pk, build_id, feedback_summary,
	priority_fixes, patch_guidance, do_not_change, status, created_at`

func scanRevision(row scannable) (*revision.Revision, error) {
	var (
		r        revision.Revision
		fixesRaw []byte
	)
	err := row.Scan(
		&r.ID, &r.RevisionID, &r.BuildPK, &r.BuildID, &r.FeedbackSummary,
		&fixesRaw, &r.PatchGuidance, &r.DoNotChange, &r.Status, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fixesRaw, &r.PriorityFixes); err != nil {
		return nil, fmt.Errorf("decode priority_fixes for revision %s: %w", r.RevisionID, err)
	}
	return &r, nil
}

// CreateRevision stores a revision request. The project id is resolved
// from the parent build so pending revisions can be listed per project.
func (s *Store) CreateRevision(ctx context.Context, r *revision.Revision) error {
	fixesJSON, err := json.Marshal(r.PriorityFixes)
	if err != nil {
		return fmt.Errorf("marshal priority_fixes: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO revisions (id, revision_id, build_pk, build_id, project_id,
			feedback_summary, priority_fixes, patch_guidance, do_not_change, status, created_at, updated_at)
		 SELECT $1, $2, $3, $4, b.project_id, $5, $6, $7, $8, $9, $10, $10
		 FROM builds b WHERE b.id = $3`,
		r.ID, r.RevisionID, r.BuildPK, r.BuildID,
		r.FeedbackSummary, fixesJSON, r.PatchGuidance, pgTextArray(r.DoNotChange), r.Status, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("create revision %s: %w", r.RevisionID, err)
	}
	return nil
}

// ListPendingRevisions returns a project's open revision requests,
// newest first. A non-empty buildID narrows the list to one build.
func (s *Store) ListPendingRevisions(ctx context.Context, projectID, buildID string) ([]*revision.Revision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+revisionColumns+` FROM revisions
		 WHERE project_id = $1 AND status = 'PENDING'
		   AND ($2 = '' OR build_id = $2)
		 ORDER BY created_at DESC`, projectID, buildID)
	if err != nil {
		return nil, fmt.Errorf("list pending revisions for %s: %w", projectID, err)
	}
	defer rows.Close()

	var revisions []*revision.Revision
	for rows.Next() {
		r, err := scanRevision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		revisions = append(revisions, r)
	}
	return revisions, rows.Err()
}

// UpdateRevisionStatus advances a revision, enforcing the legal
// transitions in SQL. A revision that exists but cannot make the move
// yields ErrConflict.
func (s *Store) UpdateRevisionStatus(ctx context.Context, revisionID string, status revision.Status) error {
	var from []string
	switch status {
	case revision.StatusInProgress:
		from = []string{string(revision.StatusPending)}
	case revision.StatusCompleted:
		from = []string{string(revision.StatusPending), string(revision.StatusInProgress)}
	default:
		return fmt.Errorf("update revision %s: illegal target status %q: %w",
			revisionID, status, domain.ErrValidation)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE revisions SET status = $2, updated_at = now()
		 WHERE revision_id = $1 AND status = ANY($3)`, revisionID, status, from)
	if err != nil {
		return fmt.Errorf("update revision %s: %w", revisionID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM revisions WHERE revision_id = $1)`, revisionID).Scan(&exists); err != nil {
		return fmt.Errorf("update revision %s: %w", revisionID, err)
	}
	if exists {
		return fmt.Errorf("revision %s cannot move to %s: %w", revisionID, status, domain.ErrConflict)
	}
	return fmt.Errorf("update revision %s: %w", revisionID, domain.ErrNotFound)
}
