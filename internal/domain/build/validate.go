package build

import (
	"fmt"

	"github.com/Strob0t/ReviewLoop/internal/domain"
)

// validTypes enumerates all valid build types.
var validTypes = map[Type]bool{
	TypePlan: true,
	TypeCode: true,
}

// validSignals enumerates all valid builder signals.
var validSignals = map[Signal]bool{
	SignalReadyForReview: true,
	SignalNeedsWork:      true,
	SignalDeployed:       true,
}

// validInspectionStatuses enumerates all valid inspection statuses.
var validInspectionStatuses = map[InspectionStatus]bool{
	InspectionPending: true,
	InspectionPassed:  true,
	InspectionFailed:  true,
}

// Validate checks that a SubmitRequest has all required fields and valid values.
func (r *SubmitRequest) Validate() error {
	if r.ProjectID == "" {
		return fmt.Errorf("project_id is required: %w", domain.ErrValidation)
	}
	if r.CommitSHA == "" {
		return fmt.Errorf("commit_sha is required: %w", domain.ErrValidation)
	}
	if r.Branch == "" {
		return fmt.Errorf("branch is required: %w", domain.ErrValidation)
	}
	if r.BuildType != "" && !validTypes[r.BuildType] {
		return fmt.Errorf("invalid build_type %q: %w", r.BuildType, domain.ErrValidation)
	}
	if r.Signal != "" && !validSignals[r.Signal] {
		return fmt.Errorf("invalid builder_signal %q: %w", r.Signal, domain.ErrValidation)
	}
	if r.Priority != 0 && (r.Priority < 1 || r.Priority > 10) {
		return fmt.Errorf("priority %d out of range 1-10: %w", r.Priority, domain.ErrValidation)
	}
	return nil
}

// ApplyInspection is the single authoritative transition for InspectionStatus.
// Only a PENDING build may receive a verdict.
func (b *Build) ApplyInspection(passed bool) error {
	if b.InspectionStatus != InspectionPending {
		return fmt.Errorf("build %s already inspected (%s): %w",
			b.BuildID, b.InspectionStatus, domain.ErrConflict)
	}
	if passed {
		b.InspectionStatus = InspectionPassed
	} else {
		b.InspectionStatus = InspectionFailed
	}
	return nil
}

// Approve is the single authoritative transition to SignalDeployed.
// It enforces the full approval gate: inspection passed, human approval
// when guardrails require it, and the iteration limit.
func (b *Build) Approve(approvedBy string, maxIterations int) error {
	if b.Signal == SignalDeployed {
		return fmt.Errorf("build %s is already deployed: %w", b.BuildID, domain.ErrConflict)
	}
	if b.InspectionStatus != InspectionPassed {
		return fmt.Errorf("build %s has inspection_status=%s, requires PASSED: %w",
			b.BuildID, b.InspectionStatus, domain.ErrGuardrail)
	}
	if b.RequiresHumanApproval && approvedBy == "" {
		return fmt.Errorf("build %s requires human approval (%s): %w",
			b.BuildID, b.ApprovalReason, domain.ErrGuardrail)
	}
	if b.IterationCount >= maxIterations {
		return fmt.Errorf("build %s reached iteration limit %d, manual review required: %w",
			b.BuildID, maxIterations, domain.ErrGuardrail)
	}
	b.Signal = SignalDeployed
	b.HumanApprovedBy = approvedBy
	return nil
}
