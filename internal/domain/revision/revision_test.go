package revision

import (
	"errors"
	"testing"

	"github.com/Strob0t/ReviewLoop/internal/domain"
)

func TestCreateRequestValidate(t *testing.T) {
	valid := CreateRequest{
		BuildID:         "b1",
		FeedbackSummary: "tests missing for error paths",
		PriorityFixes:   []string{"add coverage for timeout branch"},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := []CreateRequest{
		{FeedbackSummary: "x", PriorityFixes: []string{"y"}},
		{BuildID: "b1", PriorityFixes: []string{"y"}},
		{BuildID: "b1", FeedbackSummary: "x"},
	}
	for i, req := range bad {
		if err := req.Validate(); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestRevisionTransition(t *testing.T) {
	rv := Revision{RevisionID: "r1", Status: StatusPending}

	if err := rv.Transition(StatusInProgress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rv.Transition(StatusCompleted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// COMPLETED is terminal.
	if err := rv.Transition(StatusPending); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := rv.Transition(StatusInProgress); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRevisionDirectComplete(t *testing.T) {
	rv := Revision{RevisionID: "r1", Status: StatusPending}
	if err := rv.Transition(StatusCompleted); err != nil {
		t.Fatalf("pending -> completed should be legal: %v", err)
	}
}
