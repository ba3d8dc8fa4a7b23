package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/ReviewLoop/internal/domain/build"
	"github.com/Strob0t/ReviewLoop/internal/domain/inspection"
)

const inspectionColumns = `id, build_pk, build_id, inspector, passed, issues,
	suggestions, confidence, raw_response, created_at`

func scanInspection(row scannable) (*inspection.Inspection, error) {
	var (
		insp      inspection.Inspection
		issuesRaw []byte
	)
	err := row.Scan(
		&insp.ID, &insp.BuildPK, &insp.BuildID, &insp.Inspector, &insp.Passed, &issuesRaw,
		&insp.Suggestions, &insp.Confidence, &insp.RawResponse, &insp.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(issuesRaw, &insp.Issues); err != nil {
		return nil, fmt.Errorf("decode issues for inspection %s: %w", insp.ID, err)
	}
	return &insp, nil
}

// SubmitInspection stores a verdict idempotently. The insert, the queue
// entry completion, and the build status update commit as one
// transaction. When a verdict already exists for (build, inspector) the
// stored record is returned with created=false and nothing changes.
func (s *Store) SubmitInspection(ctx context.Context, insp *inspection.Inspection) (*inspection.Inspection, bool, error) {
	issuesJSON, err := json.Marshal(insp.Issues)
	if err != nil {
		return nil, false, fmt.Errorf("marshal issues: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("submit inspection: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO inspections (id, build_pk, build_id, inspector, passed, issues, suggestions, confidence, raw_response, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (build_pk, inspector) DO NOTHING`,
		insp.ID, insp.BuildPK, insp.BuildID, insp.Inspector, insp.Passed, issuesJSON,
		insp.Suggestions, insp.Confidence, insp.RawResponse, insp.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("submit inspection for %s: %w", insp.BuildID, err)
	}

	if tag.RowsAffected() == 0 {
		// Duplicate submission. Return the first verdict unchanged.
		row := tx.QueryRow(ctx,
			`SELECT `+inspectionColumns+` FROM inspections WHERE build_pk = $1 AND inspector = $2`,
			insp.BuildPK, insp.Inspector)
		stored, err := scanInspection(row)
		if err != nil {
			return nil, false, notFoundWrap(err, "existing inspection for %s by %s", insp.BuildID, insp.Inspector)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("submit inspection: commit: %w", err)
		}
		return stored, false, nil
	}

	status := build.InspectionFailed
	if insp.Passed {
		status = build.InspectionPassed
	}
	tag, err = tx.Exec(ctx,
		`UPDATE builds SET inspection_status = $2, updated_at = now() WHERE id = $1`,
		insp.BuildPK, status)
	if err := execExpectOne(tag, err, "set inspection status for build %s", insp.BuildID); err != nil {
		return nil, false, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE review_queue SET status = 'COMPLETED', completed_at = now(), updated_at = now()
		 WHERE build_id = $1 AND status = 'DISPATCHED'`, insp.BuildID)
	if err != nil {
		return nil, false, fmt.Errorf("complete queue entries for %s: %w", insp.BuildID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("submit inspection: commit: %w", err)
	}
	return insp, true, nil
}

func (s *Store) ListInspections(ctx context.Context, buildID string) ([]*inspection.Inspection, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+inspectionColumns+` FROM inspections WHERE build_id = $1 ORDER BY created_at ASC`,
		buildID)
	if err != nil {
		return nil, fmt.Errorf("list inspections for %s: %w", buildID, err)
	}
	defer rows.Close()

	var inspections []*inspection.Inspection
	for rows.Next() {
		insp, err := scanInspection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inspection: %w", err)
		}
		inspections = append(inspections, insp)
	}
	return inspections, rows.Err()
}
