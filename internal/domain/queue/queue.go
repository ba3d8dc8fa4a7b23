// Package queue defines the review queue domain: deduplicated, priority
// ordered entries awaiting dispatch, plus the append-only dispatch log.
package queue

import (
	"fmt"
	"time"

	"github.com/Strob0t/ReviewLoop/internal/domain"
)

// Type classifies a review obligation.
type Type string

const (
	TypePlan Type = "PLAN"
	TypeCode Type = "CODE"
)

// Status is the lifecycle state of a queue entry.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusDispatched Status = "DISPATCHED"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Entry is one review obligation for exactly one build. At most one
// PENDING entry exists per (project_id, task_id, queue_type); enqueueing
// a newer build for the same key supersedes the older pending entry.
type Entry struct {
	ID           string     `json:"id"`
	QueueType    Type       `json:"queue_type"`
	BuildPK      string     `json:"build_pk"`
	BuildID      string     `json:"build_id"`
	ProjectID    string     `json:"project_id"`
	TaskID       string     `json:"task_id,omitempty"`
	Priority     int        `json:"priority"`
	Status       Status     `json:"status"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Dispatch is one append-only record of a dispatch attempt. It is never
// mutated after insertion.
type Dispatch struct {
	ID             string    `json:"id"`
	QueueEntryPK   string    `json:"queue_entry_pk"`
	BuildID        string    `json:"build_id"`
	InspectorModel string    `json:"inspector_model"`
	Method         string    `json:"dispatch_method"`
	ResponseCode   *int      `json:"response_code,omitempty"`
	ResponseBody   string    `json:"response_body,omitempty"`
	ErrorType      string    `json:"error_type,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Dispatch error classifications.
const (
	ErrorTypeRateLimit = "rate_limit"
	ErrorTypeTimeout   = "timeout"
	ErrorTypeDispatch  = "dispatch_error"
)

// validTypes enumerates all valid queue types.
var validTypes = map[Type]bool{
	TypePlan: true,
	TypeCode: true,
}

// transitions is the authoritative state machine for queue entries.
// FAILED and COMPLETED are terminal.
var transitions = map[Status][]Status{
	StatusPending:    {StatusDispatched, StatusFailed},
	StatusDispatched: {StatusCompleted, StatusFailed},
}

// Validate checks an entry before enqueue.
func (e *Entry) Validate() error {
	if e.BuildID == "" {
		return fmt.Errorf("build_id is required: %w", domain.ErrValidation)
	}
	if e.ProjectID == "" {
		return fmt.Errorf("project_id is required: %w", domain.ErrValidation)
	}
	if !validTypes[e.QueueType] {
		return fmt.Errorf("invalid queue_type %q: %w", e.QueueType, domain.ErrValidation)
	}
	if e.Priority < 1 || e.Priority > 10 {
		return fmt.Errorf("priority %d out of range 1-10: %w", e.Priority, domain.ErrValidation)
	}
	return nil
}

// CanTransition reports whether moving from to the given status is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition applies a status change, rejecting illegal ones.
func (e *Entry) Transition(to Status) error {
	if !CanTransition(e.Status, to) {
		return fmt.Errorf("queue entry %s: illegal transition %s -> %s: %w",
			e.ID, e.Status, to, domain.ErrConflict)
	}
	e.Status = to
	return nil
}
