package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/ReviewLoop/internal/adapter/otel"
	"github.com/Strob0t/ReviewLoop/internal/domain"
	"github.com/Strob0t/ReviewLoop/internal/domain/build"
	"github.com/Strob0t/ReviewLoop/internal/domain/inspection"
	"github.com/Strob0t/ReviewLoop/internal/domain/revision"
	"github.com/Strob0t/ReviewLoop/internal/port/database"
	"github.com/Strob0t/ReviewLoop/internal/port/messagequeue"
)

// ApprovalOutcome classifies the result of an approval attempt.
type ApprovalOutcome string

const (
	OutcomeApproved         ApprovalOutcome = "approved"
	OutcomeNotFound         ApprovalOutcome = "not_found"
	OutcomeNotPassed        ApprovalOutcome = "not_passed"
	OutcomeGuardrailBlocked ApprovalOutcome = "guardrail_blocked"
	OutcomeIterationLimit   ApprovalOutcome = "iteration_limit"
	OutcomeAlreadyDeployed  ApprovalOutcome = "already_deployed"
)

// ApprovalResult reports what happened to an approval attempt, including
// the reason when the gate refused.
type ApprovalResult struct {
	Outcome ApprovalOutcome `json:"outcome"`
	Reason  string          `json:"reason,omitempty"`
	Build   *build.Build    `json:"build,omitempty"`
}

// ReviewService handles inspection verdicts, revision requests, and the
// approval gate.
type ReviewService struct {
	store         database.Store
	mq            messagequeue.Queue
	metrics       *otel.Metrics
	maxIterations int
	now           func() time.Time
}

// NewReviewService creates a ReviewService.
func NewReviewService(store database.Store, mq messagequeue.Queue, metrics *otel.Metrics, maxIterations int) *ReviewService {
	return &ReviewService{
		store:         store,
		mq:            mq,
		metrics:       metrics,
		maxIterations: maxIterations,
		now:           time.Now,
	}
}

// SubmitInspection stores a reviewer verdict. The operation is
// idempotent per (build, inspector): replays return the first stored
// verdict unchanged, and conflicting replays never overwrite it. Other
// inspectors may still record their own verdict on an inspected build;
// the build's inspection status follows the latest first-time verdict.
func (s *ReviewService) SubmitInspection(ctx context.Context, req *inspection.SubmitRequest) (*inspection.Inspection, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	b, err := s.store.GetBuild(ctx, req.BuildID)
	if err != nil {
		return nil, false, err
	}

	insp := &inspection.Inspection{
		ID:          uuid.NewString(),
		BuildPK:     b.ID,
		BuildID:     b.BuildID,
		Inspector:   req.Inspector,
		Passed:      req.Passed,
		Issues:      req.Issues,
		Suggestions: req.Suggestions,
		Confidence:  req.Confidence,
		RawResponse: req.RawResponse,
		CreatedAt:   s.now().UTC(),
	}

	stored, created, err := s.store.SubmitInspection(ctx, insp)
	if err != nil {
		return nil, false, err
	}
	if !created {
		return stored, false, nil
	}

	if s.metrics != nil {
		s.metrics.VerdictsSubmitted.Add(ctx, 1)
	}
	s.publishVerdict(ctx, stored)

	slog.Info("inspection submitted",
		"build_id", b.BuildID, "inspector", stored.Inspector,
		"passed", stored.Passed, "issues", len(stored.Issues))
	return stored, true, nil
}

// RequestRevision records structured feedback for a failed build so the
// builder can act on it.
func (s *ReviewService) RequestRevision(ctx context.Context, req *revision.CreateRequest) (*revision.Revision, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	b, err := s.store.GetBuild(ctx, req.BuildID)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	r := &revision.Revision{
		ID:              id,
		BuildPK:         b.ID,
		BuildID:         b.BuildID,
		RevisionID:      "rev-" + id[:8],
		FeedbackSummary: req.FeedbackSummary,
		PriorityFixes:   req.PriorityFixes,
		PatchGuidance:   req.PatchGuidance,
		DoNotChange:     req.DoNotChange,
		Status:          revision.StatusPending,
		CreatedAt:       s.now().UTC(),
	}

	if err := s.store.CreateRevision(ctx, r); err != nil {
		return nil, err
	}

	if s.mq != nil {
		data, _ := json.Marshal(r)
		if err := s.mq.Publish(ctx, messagequeue.SubjectRevisionCreated, data); err != nil {
			slog.Error("publish revision event", "revision_id", r.RevisionID, "error", err)
		}
	}

	slog.Info("revision requested", "revision_id", r.RevisionID, "build_id", b.BuildID)
	return r, nil
}

// PendingRevisions returns the open revision requests of a project,
// newest first. A non-empty buildID narrows the list to one build.
func (s *ReviewService) PendingRevisions(ctx context.Context, projectID, buildID string) ([]*revision.Revision, error) {
	return s.store.ListPendingRevisions(ctx, projectID, buildID)
}

// AdvanceRevision moves a revision to the given status.
func (s *ReviewService) AdvanceRevision(ctx context.Context, revisionID string, status revision.Status) error {
	return s.store.UpdateRevisionStatus(ctx, revisionID, status)
}

// ApproveBuild runs the approval gate. The outcome is always an explicit
// classification; only OutcomeApproved mutates the build.
func (s *ReviewService) ApproveBuild(ctx context.Context, buildID, approvedBy string) (*ApprovalResult, error) {
	b, err := s.store.GetBuild(ctx, buildID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &ApprovalResult{Outcome: OutcomeNotFound, Reason: "build not found"}, nil
		}
		return nil, err
	}

	if err := b.Approve(approvedBy, s.maxIterations); err != nil {
		switch {
		case errors.Is(err, domain.ErrConflict):
			return &ApprovalResult{Outcome: OutcomeAlreadyDeployed, Reason: err.Error(), Build: b}, nil
		case errors.Is(err, domain.ErrGuardrail):
			// Mirror the gate's check order to classify the refusal.
			outcome := OutcomeIterationLimit
			switch {
			case b.InspectionStatus != build.InspectionPassed:
				outcome = OutcomeNotPassed
			case b.RequiresHumanApproval && approvedBy == "":
				outcome = OutcomeGuardrailBlocked
			}
			return &ApprovalResult{Outcome: outcome, Reason: err.Error(), Build: b}, nil
		default:
			return nil, err
		}
	}

	if err := s.store.UpdateBuildSignal(ctx, b.BuildID, build.SignalDeployed, approvedBy); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.BuildsApproved.Add(ctx, 1)
	}

	if s.mq != nil {
		data, _ := json.Marshal(buildEvent{
			BuildID:        b.BuildID,
			ProjectID:      b.ProjectID,
			TaskID:         b.TaskID,
			BuildType:      string(b.Type),
			Signal:         string(b.Signal),
			IterationCount: b.IterationCount,
			ApprovedBy:     approvedBy,
		})
		if err := s.mq.Publish(ctx, messagequeue.SubjectBuildApproved, data); err != nil {
			slog.Error("publish approval event", "build_id", b.BuildID, "error", err)
		}
	}

	slog.Info("build approved", "build_id", b.BuildID, "approved_by", approvedBy)
	return &ApprovalResult{Outcome: OutcomeApproved, Build: b}, nil
}

// Inspections lists all verdicts recorded for a build.
func (s *ReviewService) Inspections(ctx context.Context, buildID string) ([]*inspection.Inspection, error) {
	return s.store.ListInspections(ctx, buildID)
}

func (s *ReviewService) publishVerdict(ctx context.Context, insp *inspection.Inspection) {
	if s.mq == nil {
		return
	}
	data, err := json.Marshal(insp)
	if err != nil {
		slog.Error("marshal verdict event", "error", err)
		return
	}
	if err := s.mq.Publish(ctx, messagequeue.SubjectReviewVerdict, data); err != nil {
		slog.Error("publish verdict event", "build_id", insp.BuildID, "error", err)
	}
}
