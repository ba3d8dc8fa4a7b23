package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	rlhttp "github.com/Strob0t/ReviewLoop/internal/adapter/http"
	"github.com/Strob0t/ReviewLoop/internal/domain"
	"github.com/Strob0t/ReviewLoop/internal/domain/build"
	"github.com/Strob0t/ReviewLoop/internal/domain/guardrail"
	"github.com/Strob0t/ReviewLoop/internal/domain/inspection"
	"github.com/Strob0t/ReviewLoop/internal/domain/project"
	"github.com/Strob0t/ReviewLoop/internal/domain/queue"
	"github.com/Strob0t/ReviewLoop/internal/domain/revision"
	"github.com/Strob0t/ReviewLoop/internal/port/database"
	"github.com/Strob0t/ReviewLoop/internal/service"
)

// mockStore implements database.Store for handler testing.
type mockStore struct {
	builds      map[string]*build.Build
	entries     []*queue.Entry
	inspections map[string]*inspection.Inspection // key: buildID + "/" + inspector
	revisions   map[string]*revision.Revision
	projects    map[string]*project.Project
}

func newMockStore() *mockStore {
	return &mockStore{
		builds:      make(map[string]*build.Build),
		inspections: make(map[string]*inspection.Inspection),
		revisions:   make(map[string]*revision.Revision),
		projects:    make(map[string]*project.Project),
	}
}

func (m *mockStore) CreateBuild(_ context.Context, b *build.Build) error {
	cp := *b
	m.builds[b.BuildID] = &cp
	return nil
}

func (m *mockStore) GetBuild(_ context.Context, buildID string) (*build.Build, error) {
	b, ok := m.builds[buildID]
	if !ok {
		return nil, fmt.Errorf("build %s: %w", buildID, domain.ErrNotFound)
	}
	cp := *b
	return &cp, nil
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
		return nil, fmt.Errorf("no ready build for %s: %w", projectID, domain.ErrNotFound)
	}
	cp := *latest
	return &cp, nil
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
	b, ok := m.builds[buildID]
	if !ok {
		return domain.ErrNotFound
	}
	b.Signal = signal
	b.HumanApprovedBy = approvedBy
	return nil
}

func (m *mockStore) ListBuilds(_ context.Context, projectID string, _ int) ([]*build.Build, error) {
	var out []*build.Build
	for _, b := range m.builds {
		if b.ProjectID == projectID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) EnqueueReview(_ context.Context, e *queue.Entry) error {
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockStore) FetchPendingEntries(_ context.Context, _ int) ([]*queue.Entry, error) {
	var out []*queue.Entry
	for _, e := range m.entries {
		if e.Status == queue.StatusPending {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockStore) MarkDispatched(_ context.Context, entryID string) (bool, error) {
	for _, e := range m.entries {
		if e.ID == entryID && e.Status == queue.StatusPending {
			e.Status = queue.StatusDispatched
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) MarkEntryFailed(_ context.Context, entryID, msg string) error {
	for _, e := range m.entries {
		if e.ID == entryID {
			e.Status = queue.StatusFailed
			e.ErrorMessage = msg
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

func (m *mockStore) AppendDispatch(_ context.Context, _ *queue.Dispatch) error { return nil }

func (m *mockStore) SubmitInspection(_ context.Context, insp *inspection.Inspection) (*inspection.Inspection, bool, error) {
	key := insp.BuildID + "/" + insp.Inspector
	if stored, ok := m.inspections[key]; ok {
		cp := *stored
		return &cp, false, nil
	}
	cp := *insp
	m.inspections[key] = &cp
	if b, ok := m.builds[insp.BuildID]; ok {
		if insp.Passed {
			b.InspectionStatus = build.InspectionPassed
		} else {
			b.InspectionStatus = build.InspectionFailed
		}
	}
	m.completeEntriesForBuild(insp.BuildID)
	out := cp
	return &out, true, nil
}

func (m *mockStore) ListInspections(_ context.Context, buildID string) ([]*inspection.Inspection, error) {
	var out []*inspection.Inspection
	for _, insp := range m.inspections {
		if insp.BuildID == buildID {
			cp := *insp
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) CreateRevision(_ context.Context, r *revision.Revision) error {
	cp := *r
	m.revisions[r.RevisionID] = &cp
	return nil
}

func (m *mockStore) ListPendingRevisions(_ context.Context, projectID, buildID string) ([]*revision.Revision, error) {
	var out []*revision.Revision
	for _, r := range m.revisions {
		b, ok := m.builds[r.BuildID]
		if !ok || b.ProjectID != projectID || r.Status != revision.StatusPending {
			continue
		}
		if buildID != "" && r.BuildID != buildID {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockStore) UpdateRevisionStatus(_ context.Context, revisionID string, status revision.Status) error {
	r, ok := m.revisions[revisionID]
	if !ok {
		return fmt.Errorf("revision %s: %w", revisionID, domain.ErrNotFound)
	}
	if !revision.CanTransition(r.Status, status) {
		return fmt.Errorf("revision %s cannot move %s -> %s: %w",
			revisionID, r.Status, status, domain.ErrConflict)
	}
	r.Status = status
	return nil
}

func (m *mockStore) CreateProject(_ context.Context, p *project.Project) error {
	if _, ok := m.projects[p.ProjectID]; ok {
		return fmt.Errorf("project %s: %w", p.ProjectID, domain.ErrConflict)
	}
	cp := *p
	m.projects[p.ProjectID] = &cp
	return nil
}

func (m *mockStore) GetProject(_ context.Context, projectID string) (*project.Project, error) {
	p, ok := m.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *mockStore) ListProjects(_ context.Context) ([]*project.Project, error) {
	var out []*project.Project
	for _, p := range m.projects {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockStore) UpdateProject(_ context.Context, p *project.Project) error {
	if _, ok := m.projects[p.ProjectID]; !ok {
		return fmt.Errorf("project %s: %w", p.ProjectID, domain.ErrNotFound)
	}
	cp := *p
	m.projects[p.ProjectID] = &cp
	return nil
}

func (m *mockStore) AppendDBAccess(_ context.Context, _ *database.DBAccessRecord) error { return nil }

func (m *mockStore) Close() {}

var _ database.Store = (*mockStore)(nil)

func newTestRouter(store *mockStore, adminKey string) chi.Router {
	h := &rlhttp.Handlers{
		Builds:   service.NewBuildService(store, nil, guardrail.DefaultConfig(), nil),
		Reviews:  service.NewReviewService(store, nil, nil, 3),
		Projects: service.NewProjectService(store, nil, 0),
	}
	r := chi.NewRouter()
	rlhttp.MountRoutes(r, h, adminKey)
	return r
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func submitBuild(t *testing.T, r chi.Router, projectID, taskID string) build.Build {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/api/v1/builds", build.SubmitRequest{
		ProjectID: projectID,
		TaskID:    taskID,
		CommitSHA: uuid.NewString()[:12],
		Branch:    "feature/api",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit build: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var b build.Build
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode build: %v", err)
	}
	return b
}

func TestSubmitBuild(t *testing.T) {
	r := newTestRouter(newMockStore(), "")

	b := submitBuild(t, r, "proj-1", "TASK-1")
	if b.BuildID == "" {
		t.Fatal("expected a generated build_id")
	}
	if b.IterationCount != 1 {
		t.Fatalf("expected iteration 1, got %d", b.IterationCount)
	}
	if b.Signal != build.SignalReadyForReview {
		t.Fatalf("expected READY_FOR_REVIEW default, got %s", b.Signal)
	}
}

func TestSubmitBuildValidation(t *testing.T) {
	r := newTestRouter(newMockStore(), "")

	rec := doJSON(t, r, http.MethodPost, "/api/v1/builds", build.SubmitRequest{
		ProjectID: "proj-1",
		Branch:    "main",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing commit_sha, got %d", rec.Code)
	}
}

func TestGetBuildNotFound(t *testing.T) {
	r := newTestRouter(newMockStore(), "")

	rec := doJSON(t, r, http.MethodGet, "/api/v1/builds/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestLatestReadyBuild(t *testing.T) {
	r := newTestRouter(newMockStore(), "")

	submitBuild(t, r, "proj-1", "TASK-1")

	rec := doJSON(t, r, http.MethodGet, "/api/v1/projects/proj-1/builds/latest-ready", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/projects/empty/builds/latest-ready", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for project without ready builds, got %d", rec.Code)
	}
}

func TestSubmitInspectionIdempotent(t *testing.T) {
	r := newTestRouter(newMockStore(), "")

	b := submitBuild(t, r, "proj-1", "TASK-1")

	req := inspection.SubmitRequest{
		BuildID:    b.BuildID,
		Inspector:  "gpt-5.2",
		Passed:     true,
		Confidence: 0.9,
	}
	rec := doJSON(t, r, http.MethodPost, "/api/v1/inspections", req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on first verdict, got %d: %s", rec.Code, rec.Body.String())
	}
	var first inspection.Inspection
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode inspection: %v", err)
	}

	rec = doJSON(t, r, http.MethodPost, "/api/v1/inspections", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", rec.Code)
	}
	var replay inspection.Inspection
	if err := json.Unmarshal(rec.Body.Bytes(), &replay); err != nil {
		t.Fatalf("decode replay: %v", err)
	}
	if replay.ID != first.ID {
		t.Fatalf("replay returned a different verdict: %s vs %s", replay.ID, first.ID)
	}

	// A second inspector records its own verdict on the same build.
	req.Inspector = "other-model"
	rec = doJSON(t, r, http.MethodPost, "/api/v1/inspections", req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for a second inspector, got %d: %s", rec.Code, rec.Body.String())
	}
	var second inspection.Inspection
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode second verdict: %v", err)
	}
	if second.ID == first.ID || second.Inspector != "other-model" {
		t.Fatalf("second verdict = %+v, want a fresh one for other-model", second)
	}
}

func TestRevisionFlow(t *testing.T) {
	r := newTestRouter(newMockStore(), "")

	b := submitBuild(t, r, "proj-1", "TASK-1")

	rec := doJSON(t, r, http.MethodPost, "/api/v1/revisions", revision.CreateRequest{
		BuildID:         b.BuildID,
		FeedbackSummary: "tests missing for the error path",
		PriorityFixes:   []string{"add failure-path test"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var rv revision.Revision
	if err := json.Unmarshal(rec.Body.Bytes(), &rv); err != nil {
		t.Fatalf("decode revision: %v", err)
	}
	if rv.Status != revision.StatusPending {
		t.Fatalf("expected PENDING, got %s", rv.Status)
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/projects/proj-1/revisions/pending", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var pending []revision.Revision
	if err := json.Unmarshal(rec.Body.Bytes(), &pending); err != nil {
		t.Fatalf("decode pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending revision, got %d", len(pending))
	}

	// Scoping to another build yields nothing.
	rec = doJSON(t, r, http.MethodGet, "/api/v1/projects/proj-1/revisions/pending?build_id=other", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &pending); err != nil {
		t.Fatalf("decode scoped pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no revisions for another build, got %d", len(pending))
	}

	rec = doJSON(t, r, http.MethodPost, "/api/v1/revisions/"+rv.RevisionID+"/advance",
		map[string]string{"status": "IN_PROGRESS"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on advance, got %d: %s", rec.Code, rec.Body.String())
	}

	// IN_PROGRESS -> PENDING is not a legal move.
	rec = doJSON(t, r, http.MethodPost, "/api/v1/revisions/"+rv.RevisionID+"/advance",
		map[string]string{"status": "PENDING"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for illegal transition, got %d", rec.Code)
	}
}

func TestRevisionValidation(t *testing.T) {
	r := newTestRouter(newMockStore(), "")

	rec := doJSON(t, r, http.MethodPost, "/api/v1/revisions", revision.CreateRequest{
		BuildID:         "whatever",
		FeedbackSummary: "no fixes listed",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty priority_fixes, got %d", rec.Code)
	}
}

func TestApproveBuild(t *testing.T) {
	r := newTestRouter(newMockStore(), "")

	b := submitBuild(t, r, "proj-1", "TASK-1")

	// Approval before a passing verdict is refused.
	rec := doJSON(t, r, http.MethodPost, "/api/v1/builds/"+b.BuildID+"/approve",
		map[string]string{"approved_by": "alice"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 before verdict, got %d", rec.Code)
	}
	var res service.ApprovalResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Outcome != service.OutcomeNotPassed {
		t.Fatalf("expected not_passed, got %s", res.Outcome)
	}

	doJSON(t, r, http.MethodPost, "/api/v1/inspections", inspection.SubmitRequest{
		BuildID: b.BuildID, Inspector: "gpt-5.2", Passed: true, Confidence: 0.95,
	})

	rec = doJSON(t, r, http.MethodPost, "/api/v1/builds/"+b.BuildID+"/approve",
		map[string]string{"approved_by": "alice"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after passing verdict, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Outcome != service.OutcomeApproved {
		t.Fatalf("expected approved, got %s (%s)", res.Outcome, res.Reason)
	}

	// The gate is not re-entrant.
	rec = doJSON(t, r, http.MethodPost, "/api/v1/builds/"+b.BuildID+"/approve",
		map[string]string{"approved_by": "alice"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on re-approval, got %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodPost, "/api/v1/builds/missing/approve",
		map[string]string{"approved_by": "alice"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown build, got %d", rec.Code)
	}
}

func TestProjectRegistryAdminKey(t *testing.T) {
	r := newTestRouter(newMockStore(), "hunter2")

	p := project.Project{ProjectID: "proj-1", Name: "Demo", RepoURL: "https://example.com/demo.git"}

	rec := doJSON(t, r, http.MethodPost, "/api/v1/projects", p)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without admin key, got %d", rec.Code)
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(p); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects", &buf)
	req.Header.Set("X-Admin-Key", "hunter2")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 with admin key, got %d: %s", rec.Code, rec.Body.String())
	}

	// Reads stay open.
	getRec := doJSON(t, r, http.MethodGet, "/api/v1/projects/proj-1", nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200 on read, got %d", getRec.Code)
	}
}
