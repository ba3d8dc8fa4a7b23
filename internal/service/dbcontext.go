package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/ReviewLoop/internal/domain"
	"github.com/Strob0t/ReviewLoop/internal/domain/project"
	"github.com/Strob0t/ReviewLoop/internal/port/database"
	"github.com/Strob0t/ReviewLoop/internal/secrets"
)

const sampleRowLimit = 5

// TableContext describes one table of a project database as exposed to
// an inspector.
type TableContext struct {
	Schema   string           `json:"schema"`
	Name     string           `json:"name"`
	Columns  []ColumnContext  `json:"columns"`
	RowCount *int64           `json:"row_count,omitempty"`
	Sample   []map[string]any `json:"sample,omitempty"`
}

// ColumnContext is one column's metadata.
type ColumnContext struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
	PII      bool   `json:"pii"`
}

// DBContextService grants inspectors scoped, audited visibility into a
// project's own database. What it returns is bounded by the project's
// db_context_mode and allow lists; PII columns are always redacted from
// samples.
type DBContextService struct {
	projects *ProjectService
	store    database.Store
	resolver *secrets.Resolver

	// connect is swappable for tests.
	connect func(ctx context.Context, dsn string) (dbConn, error)
}

// dbConn is the subset of pgx.Conn the service uses.
type dbConn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// NewDBContextService creates a DBContextService.
func NewDBContextService(projects *ProjectService, store database.Store, resolver *secrets.Resolver) *DBContextService {
	return &DBContextService{
		projects: projects,
		store:    store,
		resolver: resolver,
		connect: func(ctx context.Context, dsn string) (dbConn, error) {
			return pgx.Connect(ctx, dsn)
		},
	}
}

// TableContexts returns the allowed tables of a project database. In
// metadata_only mode only schema information is returned; readonly mode
// adds row counts and a redacted sample. Every call is written to the
// access log.
func (s *DBContextService) TableContexts(ctx context.Context, projectID, buildID, accessor string) ([]TableContext, error) {
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.DBContextMode == project.DBContextNone {
		return nil, fmt.Errorf("project %s does not expose database context: %w", projectID, domain.ErrGuardrail)
	}
	if len(p.AllowedTables) == 0 {
		return nil, fmt.Errorf("project %s has no allowed tables: %w", projectID, domain.ErrGuardrail)
	}

	dsn, err := s.resolver.Resolve(p.DBConnectionRef)
	if err != nil {
		return nil, fmt.Errorf("resolve db connection for %s: %w", projectID, err)
	}

	conn, err := s.connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect project db %s: %w", projectID, err)
	}
	defer func() { _ = conn.Close(ctx) }()

	var out []TableContext
	for _, table := range p.AllowedTables {
		tc, err := s.tableContext(ctx, conn, p, table)
		if err != nil {
			return nil, err
		}
		out = append(out, *tc)
	}

	s.audit(ctx, projectID, buildID, accessor, string(p.DBContextMode), fmt.Sprintf("%d tables", len(out)))
	return out, nil
}

func (s *DBContextService) tableContext(ctx context.Context, conn dbConn, p *project.Project, table string) (*TableContext, error) {
	schema := "public"
	if len(p.AllowedSchemas) > 0 {
		schema = p.AllowedSchemas[0]
	}

	rows, err := conn.Query(ctx,
		`SELECT column_name, data_type, is_nullable = 'YES'
		 FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2
		 ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("describe %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	tc := &TableContext{Schema: schema, Name: table}
	for rows.Next() {
		var col ColumnContext
		if err := rows.Scan(&col.Name, &col.DataType, &col.Nullable); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		col.PII = p.PIIField(col.Name)
		tc.Columns = append(tc.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tc.Columns) == 0 {
		return nil, fmt.Errorf("table %s.%s: %w", schema, table, domain.ErrNotFound)
	}

	if p.DBContextMode != project.DBContextReadonly {
		return tc, nil
	}

	var count int64
	// Identifiers come from the operator-maintained allow list, not
	// from the caller.
	target := pgx.Identifier{schema, table}.Sanitize()
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM "+target).Scan(&count); err != nil {
		return nil, fmt.Errorf("count %s: %w", target, err)
	}
	tc.RowCount = &count

	sample, err := s.sampleRows(ctx, conn, p, tc, target)
	if err != nil {
		return nil, err
	}
	tc.Sample = sample
	return tc, nil
}

// sampleRows reads a handful of rows and replaces PII column values with
// a redaction marker.
func (s *DBContextService) sampleRows(ctx context.Context, conn dbConn, p *project.Project, tc *TableContext, target string) ([]map[string]any, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", target, sampleRowLimit))
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", target, err)
	}
	defer rows.Close()

	var sample []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("sample values of %s: %w", target, err)
		}
		row := make(map[string]any, len(vals))
		for i, fd := range rows.FieldDescriptions() {
			name := string(fd.Name)
			if p.PIIField(name) {
				row[name] = "[redacted]"
				continue
			}
			if i < len(vals) {
				row[name] = vals[i]
			}
		}
		sample = append(sample, row)
	}
	return sample, rows.Err()
}

func (s *DBContextService) audit(ctx context.Context, projectID, buildID, accessor, operation, target string) {
	rec := &database.DBAccessRecord{
		ProjectID:  projectID,
		BuildID:    buildID,
		Accessor:   accessor,
		Operation:  operation,
		Target:     target,
		AccessedAt: time.Now().UTC(),
	}
	if err := s.store.AppendDBAccess(ctx, rec); err != nil {
		// The read already happened; losing the audit row must not
		// fail the request, but it has to be visible.
		slog.Error("append db access log", "project_id", projectID, "error", err)
	}
}
