// Package project holds the registry entry describing a repository the
// engine reviews, including database context policy and secret references.
package project

import (
	"fmt"

	"github.com/Strob0t/ReviewLoop/internal/domain"
)

// DBContextMode controls how much database context the inspector may see.
type DBContextMode string

const (
	DBContextNone         DBContextMode = "none"
	DBContextMetadataOnly DBContextMode = "metadata_only"
	DBContextReadonly     DBContextMode = "readonly"
)

var validDBContextModes = map[DBContextMode]struct{}{
	DBContextNone:         {},
	DBContextMetadataOnly: {},
	DBContextReadonly:     {},
}

// Project is one registered repository.
type Project struct {
	ID              int64         `json:"id"`
	ProjectID       string        `json:"project_id"`
	Name            string        `json:"name"`
	RepoURL         string        `json:"repo_url"`
	DefaultBranch   string        `json:"default_branch"`
	SecretsProvider string        `json:"secrets_provider"`
	DBConnectionRef string        `json:"db_connection_ref"`
	DBContextMode   DBContextMode `json:"db_context_mode"`
	AllowedSchemas  []string      `json:"allowed_schemas"`
	AllowedTables   []string      `json:"allowed_tables"`
	PIIFields       []string      `json:"pii_fields"`
	CreatedBy       string        `json:"created_by"`
}

// Validate checks a project before registration or update.
func (p *Project) Validate() error {
	if p.ProjectID == "" {
		return fmt.Errorf("%w: project_id is required", domain.ErrValidation)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if p.DBContextMode == "" {
		p.DBContextMode = DBContextNone
	}
	if _, ok := validDBContextModes[p.DBContextMode]; !ok {
		return fmt.Errorf("%w: unknown db_context_mode %q", domain.ErrValidation, p.DBContextMode)
	}
	if p.DBContextMode != DBContextNone && p.DBConnectionRef == "" {
		return fmt.Errorf("%w: db_connection_ref required for db_context_mode %q", domain.ErrValidation, p.DBContextMode)
	}
	if p.DefaultBranch == "" {
		p.DefaultBranch = "main"
	}
	return nil
}

// TableAllowed reports whether the inspector may read the given table.
// An empty allow list denies everything.
func (p *Project) TableAllowed(table string) bool {
	for _, t := range p.AllowedTables {
		if t == table {
			return true
		}
	}
	return false
}

// PIIField reports whether a column is registered as PII and must be
// redacted from sampled rows.
func (p *Project) PIIField(column string) bool {
	for _, f := range p.PIIFields {
		if f == column {
			return true
		}
	}
	return false
}
