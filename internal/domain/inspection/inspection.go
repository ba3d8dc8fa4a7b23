// Package inspection defines the inspection verdict domain: one pass/fail
// verdict with structured issues per (build, inspector) pair.
package inspection

import (
	"fmt"
	"time"

	"github.com/Strob0t/ReviewLoop/internal/domain"
)

// Severity ranks an issue found during inspection.
type Severity string

const (
	SeverityBlocker Severity = "BLOCKER"
	SeverityMajor   Severity = "MAJOR"
	SeverityMinor   Severity = "MINOR"
)

// Issue is one structured finding inside a verdict.
type Issue struct {
	Severity    Severity `json:"severity"`
	File        string   `json:"file,omitempty"`
	Line        int      `json:"line,omitempty"`
	Description string   `json:"description"`
	Evidence    string   `json:"evidence,omitempty"`
	FixHint     string   `json:"fix_hint,omitempty"`
}

// Inspection is one reviewer verdict for one build. Uniqueness on
// (build, inspector) is enforced by the store; a duplicate submission
// returns the existing record unchanged.
type Inspection struct {
	ID          string    `json:"id"`
	BuildPK     string    `json:"build_pk"`
	BuildID     string    `json:"build_id"`
	Inspector   string    `json:"inspector"`
	Passed      bool      `json:"passed"`
	Issues      []Issue   `json:"issues"`
	Suggestions string    `json:"suggestions,omitempty"`
	Confidence  float64   `json:"confidence"`
	RawResponse string    `json:"raw_response,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SubmitRequest holds the fields a reviewer supplies with a verdict.
type SubmitRequest struct {
	BuildID     string  `json:"build_id"`
	Inspector   string  `json:"inspector"`
	Passed      bool    `json:"passed"`
	Issues      []Issue `json:"issues"`
	Suggestions string  `json:"suggestions,omitempty"`
	Confidence  float64 `json:"confidence"`
	RawResponse string  `json:"raw_response,omitempty"`
}

var validSeverities = map[Severity]bool{
	SeverityBlocker: true,
	SeverityMajor:   true,
	SeverityMinor:   true,
}

// Validate checks a SubmitRequest before persistence.
func (r *SubmitRequest) Validate() error {
	if r.BuildID == "" {
		return fmt.Errorf("build_id is required: %w", domain.ErrValidation)
	}
	if r.Inspector == "" {
		return fmt.Errorf("inspector is required: %w", domain.ErrValidation)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %.2f out of range [0,1]: %w", r.Confidence, domain.ErrValidation)
	}
	for i := range r.Issues {
		iss := &r.Issues[i]
		if !validSeverities[iss.Severity] {
			return fmt.Errorf("issue %d: invalid severity %q: %w", i, iss.Severity, domain.ErrValidation)
		}
		if iss.Description == "" {
			return fmt.Errorf("issue %d: description is required: %w", i, domain.ErrValidation)
		}
	}
	return nil
}
