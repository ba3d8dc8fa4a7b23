package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Strob0t/ReviewLoop/internal/domain"
	"github.com/Strob0t/ReviewLoop/internal/domain/build"
	"github.com/Strob0t/ReviewLoop/internal/domain/inspection"
	"github.com/Strob0t/ReviewLoop/internal/domain/project"
	"github.com/Strob0t/ReviewLoop/internal/domain/queue"
	"github.com/Strob0t/ReviewLoop/internal/domain/revision"
	"github.com/Strob0t/ReviewLoop/internal/port/database"
	"github.com/Strob0t/ReviewLoop/internal/port/messagequeue"
)

// mockStore is an in-memory database.Store mirroring the transactional
// semantics the services rely on.
type mockStore struct {
	builds      []*build.Build
	entries     []*queue.Entry
	dispatches  []*queue.Dispatch
	inspections []*inspection.Inspection
	revisions   []*revision.Revision
	projects    []*project.Project
	accessLog   []*database.DBAccessRecord

	failEnqueue  error
	failDispatch error
}

func (m *mockStore) CreateBuild(_ context.Context, b *build.Build) error {
	m.builds = append(m.builds, b)
	return nil
}

func (m *mockStore) GetBuild(_ context.Context, buildID string) (*build.Build, error) {
	for _, b := range m.builds {
		if b.BuildID == buildID {
			return b, nil
		}
	}
	return nil, fmt.Errorf("get build %s: %w", buildID, domain.ErrNotFound)
}

func (m *mockStore) GetLatestReadyBuild(_ context.Context, projectID string) (*build.Build, error) {
	var latest *build.Build
	for _, b := range m.builds {
		if b.ProjectID != projectID || b.Signal != build.SignalReadyForReview ||
			b.InspectionStatus != build.InspectionPending {
			continue
		}
		if latest == nil || b.CreatedAt.After(latest.CreatedAt) {
			latest = b
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("latest ready build for %s: %w", projectID, domain.ErrNotFound)
	}
	return latest, nil
}

func (m *mockStore) NextIteration(_ context.Context, projectID, taskID string) (int, error) {
	if taskID == "" {
		return 1, nil
	}
	max := 0
	for _, b := range m.builds {
		if b.ProjectID == projectID && b.TaskID == taskID && b.IterationCount > max {
			max = b.IterationCount
		}
	}
	return max + 1, nil
}

func (m *mockStore) UpdateBuildSignal(_ context.Context, buildID string, signal build.Signal, approvedBy string) error {
	for _, b := range m.builds {
		if b.BuildID == buildID {
			b.Signal = signal
			b.HumanApprovedBy = approvedBy
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) setInspectionStatus(buildID string, status build.InspectionStatus) error {
	for _, b := range m.builds {
		if b.BuildID == buildID {
			b.InspectionStatus = status
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) ListBuilds(_ context.Context, projectID string, _ int) ([]*build.Build, error) {
	var out []*build.Build
	for _, b := range m.builds {
		if b.ProjectID == projectID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *mockStore) EnqueueReview(_ context.Context, e *queue.Entry) error {
	if m.failEnqueue != nil {
		return m.failEnqueue
	}
	if e.TaskID != "" {
		kept := m.entries[:0]
		for _, old := range m.entries {
			if old.Status == queue.StatusPending && old.ProjectID == e.ProjectID &&
				old.TaskID == e.TaskID && old.QueueType == e.QueueType {
				continue
			}
			kept = append(kept, old)
		}
		m.entries = kept
	}
	e.Status = queue.StatusPending
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockStore) FetchPendingEntries(_ context.Context, limit int) ([]*queue.Entry, error) {
	var out []*queue.Entry
	for _, e := range m.entries {
		if e.Status == queue.StatusPending {
			out = append(out, e)
		}
	}
	// Priority DESC, then insertion order.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Priority > out[j-1].Priority; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) MarkDispatched(_ context.Context, entryID string) (bool, error) {
	for _, e := range m.entries {
		if e.ID == entryID {
			if e.Status != queue.StatusPending {
				return false, nil
			}
			e.Status = queue.StatusDispatched
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) MarkEntryFailed(_ context.Context, entryID string, errorMessage string) error {
	for _, e := range m.entries {
		if e.ID == entryID {
			e.Status = queue.StatusFailed
			e.ErrorMessage = errorMessage
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) completeEntriesForBuild(buildID string) {
	for _, e := range m.entries {
		if e.BuildID == buildID && e.Status == queue.StatusDispatched {
			e.Status = queue.StatusCompleted
		}
	}
}

func (m *mockStore) AppendDispatch(_ context.Context, d *queue.Dispatch) error {
	if m.failDispatch != nil {
		return m.failDispatch
	}
	m.dispatches = append(m.dispatches, d)
	return nil
}

func (m *mockStore) SubmitInspection(_ context.Context, insp *inspection.Inspection) (*inspection.Inspection, bool, error) {
	for _, existing := range m.inspections {
		if existing.BuildPK == insp.BuildPK && existing.Inspector == insp.Inspector {
			return existing, false, nil
		}
	}
	m.inspections = append(m.inspections, insp)
	status := build.InspectionFailed
	if insp.Passed {
		status = build.InspectionPassed
	}
	if err := m.setInspectionStatus(insp.BuildID, status); err != nil {
		return nil, false, err
	}
	m.completeEntriesForBuild(insp.BuildID)
	return insp, true, nil
}

func (m *mockStore) ListInspections(_ context.Context, buildID string) ([]*inspection.Inspection, error) {
	var out []*inspection.Inspection
	for _, insp := range m.inspections {
		if insp.BuildID == buildID {
			out = append(out, insp)
		}
	}
	return out, nil
}

func (m *mockStore) CreateRevision(_ context.Context, r *revision.Revision) error {
	m.revisions = append(m.revisions, r)
	return nil
}

func (m *mockStore) ListPendingRevisions(_ context.Context, projectID, buildID string) ([]*revision.Revision, error) {
	var out []*revision.Revision
	for _, r := range m.revisions {
		if r.Status != revision.StatusPending {
			continue
		}
		if buildID != "" && r.BuildID != buildID {
			continue
		}
		for _, b := range m.builds {
			if b.ID == r.BuildPK && b.ProjectID == projectID {
				out = append(out, r)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockStore) UpdateRevisionStatus(_ context.Context, revisionID string, status revision.Status) error {
	for _, r := range m.revisions {
		if r.RevisionID == revisionID {
			if !revision.CanTransition(r.Status, status) {
				return fmt.Errorf("revision %s: %s -> %s: %w", revisionID, r.Status, status, domain.ErrConflict)
			}
			r.Status = status
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) CreateProject(_ context.Context, p *project.Project) error {
	p.ID = int64(len(m.projects) + 1)
	m.projects = append(m.projects, p)
	return nil
}

func (m *mockStore) GetProject(_ context.Context, projectID string) (*project.Project, error) {
	for _, p := range m.projects {
		if p.ProjectID == projectID {
			return p, nil
		}
	}
	return nil, fmt.Errorf("get project %s: %w", projectID, domain.ErrNotFound)
}

func (m *mockStore) ListProjects(_ context.Context) ([]*project.Project, error) {
	return m.projects, nil
}

func (m *mockStore) UpdateProject(_ context.Context, p *project.Project) error {
	for i, existing := range m.projects {
		if existing.ProjectID == p.ProjectID {
			m.projects[i] = p
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) AppendDBAccess(_ context.Context, rec *database.DBAccessRecord) error {
	m.accessLog = append(m.accessLog, rec)
	return nil
}

func (m *mockStore) Close() {}

// mockQueue implements messagequeue.Queue for testing.
type mockQueue struct {
	published []struct {
		subject string
		data    []byte
	}
	publishErr error
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, struct {
		subject string
		data    []byte
	}{subject, data})
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *mockQueue) Close() error { return nil }

func (q *mockQueue) countSubject(subject string) int {
	n := 0
	for _, p := range q.published {
		if p.subject == subject {
			n++
		}
	}
	return n
}

// mockLimiter grants a fixed budget of tokens.
type mockLimiter struct {
	tokens int
	err    error
	calls  int
}

func (l *mockLimiter) Allow(_ context.Context) (bool, error) {
	l.calls++
	if l.err != nil {
		return false, l.err
	}
	if l.tokens <= 0 {
		return false, nil
	}
	l.tokens--
	return true, nil
}

// fixedTime pins service clocks in tests.
var fixedTime = time.Date(2026, 8, 29, 15, 30, 0, 0, time.UTC)
