// Package revision defines structured revision feedback records driving
// the fail -> revise -> resubmit loop.
package revision

import (
	"fmt"
	"time"

	"github.com/Strob0t/ReviewLoop/internal/domain"
)

// Status is the lifecycle state of a revision request.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// Revision is one structured feedback record created when inspection
// fails. The builder polls pending revisions and advances the status as
// it acts on them.
type Revision struct {
	ID              string    `json:"id"`
	BuildPK         string    `json:"build_pk"`
	BuildID         string    `json:"build_id"`
	RevisionID      string    `json:"revision_id"`
	FeedbackSummary string    `json:"feedback_summary"`
	PriorityFixes   []string  `json:"priority_fixes"`
	PatchGuidance   string    `json:"patch_guidance,omitempty"`
	DoNotChange     []string  `json:"do_not_change,omitempty"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// CreateRequest holds the fields a reviewer supplies when requesting a revision.
type CreateRequest struct {
	BuildID         string   `json:"build_id"`
	FeedbackSummary string   `json:"feedback_summary"`
	PriorityFixes   []string `json:"priority_fixes"`
	PatchGuidance   string   `json:"patch_guidance,omitempty"`
	DoNotChange     []string `json:"do_not_change,omitempty"`
}

// Validate checks a CreateRequest before persistence.
func (r *CreateRequest) Validate() error {
	if r.BuildID == "" {
		return fmt.Errorf("build_id is required: %w", domain.ErrValidation)
	}
	if r.FeedbackSummary == "" {
		return fmt.Errorf("feedback_summary is required: %w", domain.ErrValidation)
	}
	if len(r.PriorityFixes) == 0 {
		return fmt.Errorf("priority_fixes must not be empty: %w", domain.ErrValidation)
	}
	return nil
}

// transitions is the authoritative state machine for revisions.
var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCompleted},
	StatusInProgress: {StatusCompleted},
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
func (rv *Revision) Transition(to Status) error {
	if !CanTransition(rv.Status, to) {
		return fmt.Errorf("revision %s: illegal transition %s -> %s: %w",
			rv.RevisionID, rv.Status, to, domain.ErrConflict)
	}
	rv.Status = to
	return nil
}
