package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/ReviewLoop/internal/domain/queue"
)

const queueColumns = `id, queue_type, build_pk, build_id, project_id, task_id, priority,
	status, dispatched_at, completed_at, error_message, created_at, updated_at`

func scanEntry(row scannable) (*queue.Entry, error) {
	var e queue.Entry
	err := row.Scan(
		&e.ID, &e.QueueType, &e.BuildPK, &e.BuildID, &e.ProjectID, &e.TaskID, &e.Priority,
		&e.Status, &e.DispatchedAt, &e.CompletedAt, &e.ErrorMessage, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// EnqueueReview inserts a PENDING entry, superseding any older PENDING
// entry for the same (project, task, queue type) in one transaction.
// Builds without a task id never supersede anything.
func (s *Store) EnqueueReview(ctx context.Context, e *queue.Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("enqueue review: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if e.TaskID != "" {
		_, err = tx.Exec(ctx,
			`DELETE FROM review_queue
			 WHERE project_id = $1 AND task_id = $2 AND queue_type = $3 AND status = 'PENDING'`,
			e.ProjectID, e.TaskID, e.QueueType)
		if err != nil {
			return fmt.Errorf("enqueue review: supersede: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO review_queue (id, queue_type, build_pk, build_id, project_id, task_id, priority, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING', $8, $8)`,
		e.ID, e.QueueType, e.BuildPK, e.BuildID, e.ProjectID, e.TaskID, e.Priority, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue review %s: %w", e.BuildID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("enqueue review: commit: %w", err)
	}
	e.Status = queue.StatusPending
	return nil
}

// FetchPendingEntries returns PENDING entries ordered by priority DESC
// then age, capped at limit.
func (s *Store) FetchPendingEntries(ctx context.Context, limit int) ([]*queue.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+queueColumns+` FROM review_queue
		 WHERE status = 'PENDING'
		 ORDER BY priority DESC, created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending entries: %w", err)
	}
	defer rows.Close()

	var entries []*queue.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkDispatched claims a PENDING entry with a conditional update. A
// false return means another dispatcher won the race.
func (s *Store) MarkDispatched(ctx context.Context, entryID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE review_queue SET status = 'DISPATCHED', dispatched_at = now(), updated_at = now()
		 WHERE id = $1 AND status = 'PENDING'`, entryID)
	if err != nil {
		return false, fmt.Errorf("mark dispatched %s: %w", entryID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) MarkEntryFailed(ctx context.Context, entryID string, errorMessage string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE review_queue SET status = 'FAILED', error_message = $2, updated_at = now()
		 WHERE id = $1 AND status IN ('PENDING', 'DISPATCHED')`, entryID, errorMessage)
	return execExpectOne(tag, err, "mark entry %s failed", entryID)
}

// AppendDispatch records one dispatch attempt. Records are append-only.
func (s *Store) AppendDispatch(ctx context.Context, d *queue.Dispatch) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO review_dispatches (id, queue_entry_pk, build_id, inspector_model, dispatch_method,
			response_code, response_body, error_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.QueueEntryPK, d.BuildID, d.InspectorModel, d.Method,
		d.ResponseCode, d.ResponseBody, d.ErrorType, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("append dispatch for %s: %w", d.BuildID, err)
	}
	return nil
}
