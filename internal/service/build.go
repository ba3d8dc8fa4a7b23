// Package service implements the engine's use cases on top of the domain
// packages and the ports.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/ReviewLoop/internal/adapter/otel"
	"github.com/Strob0t/ReviewLoop/internal/domain/build"
	"github.com/Strob0t/ReviewLoop/internal/domain/guardrail"
	"github.com/Strob0t/ReviewLoop/internal/domain/queue"
	"github.com/Strob0t/ReviewLoop/internal/port/database"
	"github.com/Strob0t/ReviewLoop/internal/port/messagequeue"
)

const defaultPriority = 5

// BuildService ingests builds, applies guardrail screening, and enqueues
// review obligations.
type BuildService struct {
	store     database.Store
	mq        messagequeue.Queue
	guardrail guardrail.Config
	metrics   *otel.Metrics
	now       func() time.Time
}

// NewBuildService creates a BuildService.
func NewBuildService(store database.Store, mq messagequeue.Queue, g guardrail.Config, metrics *otel.Metrics) *BuildService {
	return &BuildService{
		store:     store,
		mq:        mq,
		guardrail: g,
		metrics:   metrics,
		now:       time.Now,
	}
}

// buildEvent is the payload published on build lifecycle subjects.
type buildEvent struct {
	BuildID          string `json:"build_id"`
	ProjectID        string `json:"project_id"`
	TaskID           string `json:"task_id,omitempty"`
	BuildType        string `json:"build_type"`
	Signal           string `json:"builder_signal"`
	IterationCount   int    `json:"iteration_count"`
	RequiresApproval bool   `json:"requires_human_approval"`
	ApprovalReason   string `json:"approval_reason,omitempty"`
	ApprovedBy       string `json:"approved_by,omitempty"`
}

// Ingest registers a submitted build: it validates the payload, screens
// the changed files against the guardrails, assigns the build id and
// iteration count, and enqueues a review when the builder signalled
// readiness. The same task resubmitted supersedes its older pending
// review entry.
func (s *BuildService) Ingest(ctx context.Context, req *build.SubmitRequest) (*build.Build, error) {
	if req.BuildType == "" {
		req.BuildType = build.TypeCode
	}
	if req.Signal == "" {
		req.Signal = build.SignalReadyForReview
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	iteration, err := s.store.NextIteration(ctx, req.ProjectID, req.TaskID)
	if err != nil {
		return nil, fmt.Errorf("resolve iteration: %w", err)
	}

	verdict := guardrail.Evaluate(s.guardrail, req.ChangedFiles)
	now := s.now().UTC()

	b := &build.Build{
		ID:                    uuid.NewString(),
		BuildID:               makeBuildID(now, req.CommitSHA),
		ProjectID:             req.ProjectID,
		Type:                  req.BuildType,
		TaskID:                req.TaskID,
		TaskDescription:       req.TaskDescription,
		PlanBuildID:           req.PlanBuildID,
		CommitSHA:             req.CommitSHA,
		Branch:                req.Branch,
		ChangedFiles:          req.ChangedFiles,
		DiffUnified:           req.DiffUnified,
		DiffSource:            req.DiffSource,
		ReviewBundle:          req.ReviewBundle,
		TestCommand:           req.TestCommand,
		TestExitCode:          req.TestExitCode,
		TestOutputTail:        req.TestOutputTail,
		Coverage:              req.Coverage,
		LintCommand:           req.LintCommand,
		LintExitCode:          req.LintExitCode,
		LintOutputTail:        req.LintOutputTail,
		Signal:                req.Signal,
		BuilderNotes:          req.BuilderNotes,
		InspectionStatus:      build.InspectionPending,
		IterationCount:        iteration,
		RequiresHumanApproval: verdict.RequiresApproval,
		ApprovalReason:        verdict.Reason,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.store.CreateBuild(ctx, b); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.BuildsIngested.Add(ctx, 1)
	}

	if req.Signal == build.SignalReadyForReview {
		priority := req.Priority
		if priority == 0 {
			priority = defaultPriority
		}
		entry := &queue.Entry{
			ID:        uuid.NewString(),
			QueueType: queue.Type(b.Type),
			BuildPK:   b.ID,
			BuildID:   b.BuildID,
			ProjectID: b.ProjectID,
			TaskID:    b.TaskID,
			Priority:  priority,
			CreatedAt: now,
		}
		if err := entry.Validate(); err != nil {
			return nil, err
		}
		if err := s.store.EnqueueReview(ctx, entry); err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.ReviewsEnqueued.Add(ctx, 1)
		}
		s.publish(ctx, messagequeue.SubjectReviewQueued, b, "")
	}

	s.publish(ctx, messagequeue.SubjectBuildSubmitted, b, "")

	slog.Info("build ingested",
		"build_id", b.BuildID, "project_id", b.ProjectID, "task_id", b.TaskID,
		"iteration", b.IterationCount, "requires_approval", b.RequiresHumanApproval)
	return b, nil
}

// Get returns a build by its public build id.
func (s *BuildService) Get(ctx context.Context, buildID string) (*build.Build, error) {
	return s.store.GetBuild(ctx, buildID)
}

// LatestReady returns the newest build of a project that still awaits a
// verdict.
func (s *BuildService) LatestReady(ctx context.Context, projectID string) (*build.Build, error) {
	return s.store.GetLatestReadyBuild(ctx, projectID)
}

// List returns the most recent builds of a project.
func (s *BuildService) List(ctx context.Context, projectID string, limit int) ([]*build.Build, error) {
	return s.store.ListBuilds(ctx, projectID, limit)
}

// publish fires a lifecycle event. Event delivery is best effort; a
// broker outage must not fail the write path.
func (s *BuildService) publish(ctx context.Context, subject string, b *build.Build, approvedBy string) {
	if s.mq == nil {
		return
	}
	data, err := json.Marshal(buildEvent{
		BuildID:          b.BuildID,
		ProjectID:        b.ProjectID,
		TaskID:           b.TaskID,
		BuildType:        string(b.Type),
		Signal:           string(b.Signal),
		IterationCount:   b.IterationCount,
		RequiresApproval: b.RequiresHumanApproval,
		ApprovalReason:   b.ApprovalReason,
		ApprovedBy:       approvedBy,
	})
	if err != nil {
		slog.Error("marshal build event", "subject", subject, "error", err)
		return
	}
	if err := s.mq.Publish(ctx, subject, data); err != nil {
		slog.Error("publish build event", "subject", subject, "build_id", b.BuildID, "error", err)
	}
}

// makeBuildID derives the public build id from the submission time, the
// short commit hash, and a random suffix so resubmissions of the same
// commit within one second stay unique,
// e.g. "20260829-153000-a1b2c3d4-9f8e7d6c".
func makeBuildID(now time.Time, commitSHA string) string {
	short := commitSHA
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s-%s-%s", now.Format("20060102-150405"), short, uuid.NewString()[:8])
}
