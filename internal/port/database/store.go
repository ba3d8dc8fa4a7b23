// Package database defines the persistence port for builds, review queue
// entries, inspections, revisions, and the project registry.
package database

import (
	"context"
	"time"

	"github.com/Strob0t/ReviewLoop/internal/domain/build"
	"github.com/Strob0t/ReviewLoop/internal/domain/inspection"
	"github.com/Strob0t/ReviewLoop/internal/domain/project"
	"github.com/Strob0t/ReviewLoop/internal/domain/queue"
	"github.com/Strob0t/ReviewLoop/internal/domain/revision"
)

// DBAccessRecord logs one database-context read performed on behalf of an
// inspector.
type DBAccessRecord struct {
	ProjectID  string
	BuildID    string
	Accessor   string
	Operation  string
	Target     string
	AccessedAt time.Time
}

// Store is the persistence surface the services depend on.
type Store interface {
	// Builds.
	CreateBuild(ctx context.Context, b *build.Build) error
	GetBuild(ctx context.Context, buildID string) (*build.Build, error)
	GetLatestReadyBuild(ctx context.Context, projectID string) (*build.Build, error)
	NextIteration(ctx context.Context, projectID, taskID string) (int, error)
	UpdateBuildSignal(ctx context.Context, buildID string, signal build.Signal, approvedBy string) error
	ListBuilds(ctx context.Context, projectID string, limit int) ([]*build.Build, error)

	// Review queue. EnqueueReview applies the dedup rule: a PENDING
	// entry for the same (project, task, queue type) is superseded by
	// the newcomer inside one transaction.
	EnqueueReview(ctx context.Context, e *queue.Entry) error
	FetchPendingEntries(ctx context.Context, limit int) ([]*queue.Entry, error)
	// MarkDispatched claims a PENDING entry. It returns false without
	// error when another dispatcher already claimed it.
	MarkDispatched(ctx context.Context, entryID string) (bool, error)
	MarkEntryFailed(ctx context.Context, entryID string, errorMessage string) error
	AppendDispatch(ctx context.Context, d *queue.Dispatch) error

	// Inspections. SubmitInspection is idempotent per (build,
	// inspector): created is false when a verdict already existed, and
	// the stored verdict is returned unchanged. A created verdict also
	// sets the build's inspection status and completes the build's
	// DISPATCHED queue entries within the same transaction.
	SubmitInspection(ctx context.Context, insp *inspection.Inspection) (stored *inspection.Inspection, created bool, err error)
	ListInspections(ctx context.Context, buildID string) ([]*inspection.Inspection, error)

	// Revisions. ListPendingRevisions returns newest first; an empty
	// buildID spans the whole project.
	CreateRevision(ctx context.Context, r *revision.Revision) error
	ListPendingRevisions(ctx context.Context, projectID, buildID string) ([]*revision.Revision, error)
	UpdateRevisionStatus(ctx context.Context, revisionID string, status revision.Status) error

	// Project registry.
	CreateProject(ctx context.Context, p *project.Project) error
	GetProject(ctx context.Context, projectID string) (*project.Project, error)
	ListProjects(ctx context.Context) ([]*project.Project, error)
	UpdateProject(ctx context.Context, p *project.Project) error

	// Audit trail for database-context reads.
	AppendDBAccess(ctx context.Context, rec *DBAccessRecord) error

	Close()
}
