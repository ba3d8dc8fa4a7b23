// Package build defines the Build domain entity: one submitted artifact
// (plan or code) with its verification evidence and review state.
package build

import (
	"encoding/json"
	"time"
)

// Type classifies a build artifact.
type Type string

const (
	TypePlan Type = "PLAN"
	TypeCode Type = "CODE"
)

// Signal is the builder-reported completion signal.
type Signal string

const (
	SignalReadyForReview Signal = "READY_FOR_REVIEW"
	SignalNeedsWork      Signal = "NEEDS_WORK"
	SignalDeployed       Signal = "DEPLOYED"
)

// InspectionStatus is the reviewer-side verdict state of a build.
type InspectionStatus string

const (
	InspectionPending InspectionStatus = "PENDING"
	InspectionPassed  InspectionStatus = "PASSED"
	InspectionFailed  InspectionStatus = "FAILED"
)

// Build represents one submitted artifact and its evolving review state.
// A resubmission after a failed inspection is a new Build row with a new
// BuildID, the same TaskID, and an incremented IterationCount.
type Build struct {
	ID        string `json:"id"`
	BuildID   string `json:"build_id"`
	ProjectID string `json:"project_id"`

	Type            Type   `json:"build_type"`
	TaskID          string `json:"task_id,omitempty"`
	TaskDescription string `json:"task_description,omitempty"`
	PlanBuildID     string `json:"plan_build_id,omitempty"`

	CommitSHA    string   `json:"commit_sha"`
	Branch       string   `json:"branch"`
	ChangedFiles []string `json:"changed_files,omitempty"`
	DiffUnified  string   `json:"diff_unified,omitempty"`
	DiffSource   string   `json:"diff_source,omitempty"`

	ReviewBundle json.RawMessage `json:"review_bundle,omitempty"`

	TestCommand    string          `json:"test_command,omitempty"`
	TestExitCode   *int            `json:"test_exit_code,omitempty"`
	TestOutputTail string          `json:"test_output_tail,omitempty"`
	Coverage       json.RawMessage `json:"coverage,omitempty"`

	LintCommand    string `json:"lint_command,omitempty"`
	LintExitCode   *int   `json:"lint_exit_code,omitempty"`
	LintOutputTail string `json:"lint_output_tail,omitempty"`

	Signal       Signal          `json:"builder_signal"`
	BuilderNotes json.RawMessage `json:"builder_notes,omitempty"`

	InspectionStatus InspectionStatus `json:"inspection_status"`
	IterationCount   int              `json:"iteration_count"`

	RequiresHumanApproval bool   `json:"requires_human_approval"`
	ApprovalReason        string `json:"approval_reason,omitempty"`
	HumanApprovedBy       string `json:"human_approved_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubmitRequest holds the fields a builder supplies when ingesting a build.
type SubmitRequest struct {
	ProjectID       string `json:"project_id"`
	BuildType       Type   `json:"build_type,omitempty"`
	TaskID          string `json:"task_id,omitempty"`
	TaskDescription string `json:"task_description,omitempty"`
	PlanBuildID     string `json:"plan_build_id,omitempty"`

	CommitSHA    string   `json:"commit_sha"`
	Branch       string   `json:"branch"`
	ChangedFiles []string `json:"changed_files,omitempty"`
	DiffUnified  string   `json:"diff_unified,omitempty"`
	DiffSource   string   `json:"diff_source,omitempty"`

	ReviewBundle json.RawMessage `json:"review_bundle,omitempty"`

	TestCommand    string          `json:"test_command,omitempty"`
	TestExitCode   *int            `json:"test_exit_code,omitempty"`
	TestOutputTail string          `json:"test_output_tail,omitempty"`
	Coverage       json.RawMessage `json:"coverage,omitempty"`

	LintCommand    string `json:"lint_command,omitempty"`
	LintExitCode   *int   `json:"lint_exit_code,omitempty"`
	LintOutputTail string `json:"lint_output_tail,omitempty"`

	Signal       Signal          `json:"builder_signal,omitempty"`
	BuilderNotes json.RawMessage `json:"builder_notes,omitempty"`

	// Priority orders the review queue; zero means the default.
	Priority int `json:"priority,omitempty"`
}

// QueueType maps the build classification to the review queue it belongs on.
func (b *Build) QueueType() string {
	return string(b.Type)
}
