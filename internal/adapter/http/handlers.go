package http

import (
	"net/http"
	"strconv"

	"github.com/Strob0t/ReviewLoop/internal/domain/build"
	"github.com/Strob0t/ReviewLoop/internal/domain/inspection"
	"github.com/Strob0t/ReviewLoop/internal/domain/project"
	"github.com/Strob0t/ReviewLoop/internal/domain/revision"
	"github.com/Strob0t/ReviewLoop/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Builds    *service.BuildService
	Reviews   *service.ReviewService
	Projects  *service.ProjectService
	DBContext *service.DBContextService
}

// SubmitBuild handles POST /api/v1/builds
func (h *Handlers) SubmitBuild(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[build.SubmitRequest](w, r)
	if !ok {
		return
	}
	b, err := h.Builds.Ingest(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "build ingestion failed")
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// GetBuild handles GET /api/v1/builds/{build_id}
func (h *Handlers) GetBuild(w http.ResponseWriter, r *http.Request) {
	b, err := h.Builds.Get(r.Context(), urlParam(r, "build_id"))
	if err != nil {
		writeDomainError(w, err, "build not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ListBuilds handles GET /api/v1/projects/{id}/builds
func (h *Handlers) ListBuilds(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	builds, err := h.Builds.List(r.Context(), urlParam(r, "id"), limit)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	if builds == nil {
		builds = []*build.Build{}
	}
	writeJSON(w, http.StatusOK, builds)
}

// LatestReadyBuild handles GET /api/v1/projects/{id}/builds/latest-ready
func (h *Handlers) LatestReadyBuild(w http.ResponseWriter, r *http.Request) {
	b, err := h.Builds.LatestReady(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "no build awaiting review")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// SubmitInspection handles POST /api/v1/inspections
func (h *Handlers) SubmitInspection(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[inspection.SubmitRequest](w, r)
	if !ok {
		return
	}
	insp, created, err := h.Reviews.SubmitInspection(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "build not found")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, insp)
}

// ListInspections handles GET /api/v1/builds/{build_id}/inspections
func (h *Handlers) ListInspections(w http.ResponseWriter, r *http.Request) {
	list, err := h.Reviews.Inspections(r.Context(), urlParam(r, "build_id"))
	if err != nil {
		writeDomainError(w, err, "build not found")
		return
	}
	if list == nil {
		list = []*inspection.Inspection{}
	}
	writeJSON(w, http.StatusOK, list)
}

// RequestRevision handles POST /api/v1/revisions
func (h *Handlers) RequestRevision(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[revision.CreateRequest](w, r)
	if !ok {
		return
	}
	rv, err := h.Reviews.RequestRevision(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "build not found")
		return
	}
	writeJSON(w, http.StatusCreated, rv)
}

// PendingRevisions handles GET /api/v1/projects/{id}/revisions/pending.
// An optional build_id query parameter narrows the list to one build.
func (h *Handlers) PendingRevisions(w http.ResponseWriter, r *http.Request) {
	list, err := h.Reviews.PendingRevisions(r.Context(), urlParam(r, "id"), r.URL.Query().Get("build_id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	if list == nil {
		list = []*revision.Revision{}
	}
	writeJSON(w, http.StatusOK, list)
}

// AdvanceRevision handles POST /api/v1/revisions/{revision_id}/advance
func (h *Handlers) AdvanceRevision(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		Status revision.Status `json:"status"`
	}](w, r)
	if !ok {
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}
	revisionID := urlParam(r, "revision_id")
	if err := h.Reviews.AdvanceRevision(r.Context(), revisionID, req.Status); err != nil {
		writeDomainError(w, err, "revision not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"revision_id": revisionID,
		"status":      string(req.Status),
	})
}

// ApproveBuild handles POST /api/v1/builds/{build_id}/approve
func (h *Handlers) ApproveBuild(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		ApprovedBy string `json:"approved_by"`
	}](w, r)
	if !ok {
		return
	}
	res, err := h.Reviews.ApproveBuild(r.Context(), urlParam(r, "build_id"), req.ApprovedBy)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	status := http.StatusOK
	switch res.Outcome {
	case service.OutcomeNotFound:
		status = http.StatusNotFound
	case service.OutcomeAlreadyDeployed:
		status = http.StatusConflict
	case service.OutcomeNotPassed, service.OutcomeGuardrailBlocked, service.OutcomeIterationLimit:
		status = http.StatusForbidden
	}
	writeJSON(w, status, res)
}

// ListProjects handles GET /api/v1/projects
func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Projects.List(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if projects == nil {
		projects = []*project.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

// GetProject handles GET /api/v1/projects/{id}
func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.Projects.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RegisterProject handles POST /api/v1/projects
func (h *Handlers) RegisterProject(w http.ResponseWriter, r *http.Request) {
	p, ok := readJSON[project.Project](w, r)
	if !ok {
		return
	}
	if err := h.Projects.Register(r.Context(), &p); err != nil {
		writeDomainError(w, err, "project registration failed")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdateProject handles PUT /api/v1/projects/{id}
func (h *Handlers) UpdateProject(w http.ResponseWriter, r *http.Request) {
	p, ok := readJSON[project.Project](w, r)
	if !ok {
		return
	}
	p.ProjectID = urlParam(r, "id")
	if err := h.Projects.Update(r.Context(), &p); err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ProjectDBContext handles GET /api/v1/projects/{id}/db-context
func (h *Handlers) ProjectDBContext(w http.ResponseWriter, r *http.Request) {
	accessor := r.URL.Query().Get("accessor")
	if accessor == "" {
		accessor = "inspector"
	}
	tables, err := h.DBContext.TableContexts(r.Context(),
		urlParam(r, "id"), r.URL.Query().Get("build_id"), accessor)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}
