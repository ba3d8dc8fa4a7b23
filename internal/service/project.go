package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Strob0t/ReviewLoop/internal/domain/project"
	"github.com/Strob0t/ReviewLoop/internal/port/cache"
	"github.com/Strob0t/ReviewLoop/internal/port/database"
)

// ProjectService manages the project registry. Reads go through the L1
// cache: the registry is consulted on every build ingest and every
// database-context request, while writes are rare.
type ProjectService struct {
	store database.Store
	cache cache.Cache
	ttl   time.Duration
}

// NewProjectService creates a ProjectService.
func NewProjectService(store database.Store, c cache.Cache, ttl time.Duration) *ProjectService {
	return &ProjectService{store: store, cache: c, ttl: ttl}
}

// Key syntax stays within the NATS KV character set so the shared
// cache backend can store it unchanged.
func projectCacheKey(projectID string) string {
	return "project." + projectID
}

// Register validates and stores a new project.
func (s *ProjectService) Register(ctx context.Context, p *project.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.store.CreateProject(ctx, p)
}

// Get returns a project, serving repeated reads from cache.
func (s *ProjectService) Get(ctx context.Context, projectID string) (*project.Project, error) {
	key := projectCacheKey(projectID)

	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var p project.Project
			if err := json.Unmarshal(data, &p); err == nil {
				return &p, nil
			}
		}
	}

	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(p); err == nil {
			if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
				slog.Warn("cache project", "project_id", projectID, "error", err)
			}
		}
	}
	return p, nil
}

// List returns all registered projects.
func (s *ProjectService) List(ctx context.Context) ([]*project.Project, error) {
	return s.store.ListProjects(ctx)
}

// Update validates and stores project changes, invalidating the cache.
func (s *ProjectService) Update(ctx context.Context, p *project.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.store.UpdateProject(ctx, p); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, projectCacheKey(p.ProjectID)); err != nil {
			slog.Warn("invalidate project cache", "project_id", p.ProjectID, "error", err)
		}
	}
	return nil
}
