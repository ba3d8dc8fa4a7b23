package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/ReviewLoop/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router. The
// project registry routes mutate orchestration policy, so they sit
// behind the admin key when one is configured.
func MountRoutes(r chi.Router, h *Handlers, adminKey string) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Build lifecycle
		r.Post("/builds", h.SubmitBuild)
		r.Get("/builds/{build_id}", h.GetBuild)
		r.Post("/builds/{build_id}/approve", h.ApproveBuild)
		r.Get("/builds/{build_id}/inspections", h.ListInspections)

		// Inspection verdicts
		r.Post("/inspections", h.SubmitInspection)

		// Revision loop
		r.Post("/revisions", h.RequestRevision)
		r.Post("/revisions/{revision_id}/advance", h.AdvanceRevision)

		// Project registry (reads open, writes behind the admin key)
		r.Get("/projects", h.ListProjects)
		r.Get("/projects/{id}", h.GetProject)
		r.Get("/projects/{id}/builds", h.ListBuilds)
		r.Get("/projects/{id}/builds/latest-ready", h.LatestReadyBuild)
		r.Get("/projects/{id}/revisions/pending", h.PendingRevisions)
		r.Get("/projects/{id}/db-context", h.ProjectDBContext)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminKey(adminKey))
			r.Post("/projects", h.RegisterProject)
			r.Put("/projects/{id}", h.UpdateProject)
		})
	})
}
