package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"lookupcore/internal/lookup"
)

// Postgres backs every store contract with one database handle.
type Postgres struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (s *Postgres) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Stores exposes the handle behind every contract.
func (s *Postgres) Stores() *Stores {
	return &Stores{
		Projects:      s,
		Templates:     s,
		DataSources:   s,
		Profiles:      s,
		Links:         s,
		IndexManagers: s,
		Audits:        s,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS lookup_projects (
	project_id    TEXT PRIMARY KEY,
	project_name  TEXT NOT NULL DEFAULT '',
	organization  TEXT NOT NULL DEFAULT '',
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lookup_prompt_templates (
	template_id   TEXT PRIMARY KEY,
	project_id    TEXT NOT NULL,
	template_text TEXT NOT NULL,
	llm_config    JSONB NOT NULL DEFAULT '{}',
	is_active     BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS lookup_data_sources (
	source_id              TEXT PRIMARY KEY,
	project_id             TEXT NOT NULL,
	file_name              TEXT NOT NULL,
	file_path              TEXT NOT NULL DEFAULT '',
	file_size              BIGINT NOT NULL DEFAULT 0,
	file_type              TEXT NOT NULL,
	extracted_content_path TEXT NOT NULL DEFAULT '',
	extraction_status      TEXT NOT NULL DEFAULT 'pending',
	extraction_error       TEXT NOT NULL DEFAULT '',
	version_number         INTEGER NOT NULL,
	is_latest              BOOLEAN NOT NULL DEFAULT TRUE,
	uploaded_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (project_id, version_number, file_name)
);

CREATE TABLE IF NOT EXISTS lookup_profiles (
	profile_id             TEXT PRIMARY KEY,
	project_id             TEXT NOT NULL,
	profile_name           TEXT NOT NULL,
	llm_adapter            TEXT NOT NULL DEFAULT '',
	embedding_adapter      TEXT NOT NULL DEFAULT '',
	vector_store_adapter   TEXT NOT NULL DEFAULT '',
	text_extractor_adapter TEXT NOT NULL DEFAULT '',
	chunk_size             INTEGER NOT NULL DEFAULT 0,
	chunk_overlap          INTEGER NOT NULL DEFAULT 0,
	similarity_top_k       INTEGER NOT NULL DEFAULT 3,
	is_default             BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS lookup_index_managers (
	index_manager_id  TEXT PRIMARY KEY,
	source_id         TEXT NOT NULL,
	profile_id        TEXT NOT NULL,
	raw_index_id      TEXT NOT NULL DEFAULT '',
	index_ids_history JSONB NOT NULL DEFAULT '[]',
	extraction_status JSONB NOT NULL DEFAULT '{}',
	reindex_required  BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (source_id, profile_id)
);

CREATE TABLE IF NOT EXISTS prompt_studio_lookup_links (
	ps_project_id     TEXT NOT NULL,
	lookup_project_id TEXT NOT NULL,
	execution_order   INTEGER NOT NULL,
	PRIMARY KEY (ps_project_id, lookup_project_id)
);

CREATE TABLE IF NOT EXISTS lookup_execution_audits (
	audit_id               TEXT PRIMARY KEY,
	execution_id           TEXT NOT NULL,
	file_execution_id      TEXT NOT NULL DEFAULT '',
	project_id             TEXT NOT NULL DEFAULT '',
	input_data             JSONB,
	reference_data_version INTEGER NOT NULL DEFAULT 0,
	llm_provider           TEXT NOT NULL DEFAULT '',
	llm_model              TEXT NOT NULL DEFAULT '',
	llm_prompt             TEXT NOT NULL DEFAULT '',
	llm_response           TEXT NOT NULL DEFAULT '',
	llm_response_cached    BOOLEAN NOT NULL DEFAULT FALSE,
	enriched_output        JSONB,
	status                 TEXT NOT NULL,
	confidence_score       NUMERIC(3,2),
	execution_time_ms      BIGINT NOT NULL DEFAULT 0,
	llm_call_time_ms       BIGINT,
	error_message          TEXT NOT NULL DEFAULT '',
	executed_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_audits_execution ON lookup_execution_audits (execution_id);
CREATE INDEX IF NOT EXISTS idx_audits_project ON lookup_execution_audits (project_id, executed_at DESC);
CREATE INDEX IF NOT EXISTS idx_sources_latest ON lookup_data_sources (project_id, is_latest);
`

func (s *Postgres) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, schema)
	})
	return s.schemaErr
}

// Projects

func (s *Postgres) GetProject(ctx context.Context, id string) (lookup.Project, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return lookup.Project{}, err
	}
	var p lookup.Project
	err := s.db.QueryRowContext(ctx,
		`SELECT project_id, project_name, organization, is_active, created_at
		 FROM lookup_projects WHERE project_id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Organization, &p.Active, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return lookup.Project{}, ErrNotFound
	}
	if err != nil {
		return lookup.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *Postgres) PutProject(ctx context.Context, p lookup.Project) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lookup_projects (project_id, project_name, organization, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (project_id) DO UPDATE SET
			project_name = EXCLUDED.project_name,
			organization = EXCLUDED.organization,
			is_active = EXCLUDED.is_active`,
		p.ID, p.Name, p.Organization, p.Active, p.CreatedAt)
	return err
}

func (s *Postgres) DeleteProject(ctx context.Context, id string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM lookup_projects WHERE project_id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	for _, q := range []string{
		`DELETE FROM lookup_prompt_templates WHERE project_id = $1`,
		`DELETE FROM lookup_data_sources WHERE project_id = $1`,
		`DELETE FROM lookup_profiles WHERE project_id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Postgres) ListProjects(ctx context.Context) ([]lookup.Project, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_id, project_name, organization, is_active, created_at
		 FROM lookup_projects ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lookup.Project
	for rows.Next() {
		var p lookup.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Organization, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Templates

func (s *Postgres) ActiveTemplate(ctx context.Context, projectID string) (lookup.PromptTemplate, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return lookup.PromptTemplate{}, err
	}
	var t lookup.PromptTemplate
	var cfg []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT template_id, project_id, template_text, llm_config, is_active
		 FROM lookup_prompt_templates WHERE project_id = $1 AND is_active`, projectID).
		Scan(&t.ID, &t.ProjectID, &t.TemplateText, &cfg, &t.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return lookup.PromptTemplate{}, ErrNotFound
	}
	if err != nil {
		return lookup.PromptTemplate{}, fmt.Errorf("get template: %w", err)
	}
	if err := unmarshalJSON(cfg, &t.LLMConfig); err != nil {
		return lookup.PromptTemplate{}, err
	}
	return t, nil
}

func (s *Postgres) PutTemplate(ctx context.Context, t lookup.PromptTemplate) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	cfg, err := marshalJSON(t.LLMConfig)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if t.Active {
		if _, err := tx.ExecContext(ctx,
			`UPDATE lookup_prompt_templates SET is_active = FALSE
			 WHERE project_id = $1 AND template_id <> $2`, t.ProjectID, t.ID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO lookup_prompt_templates (template_id, project_id, template_text, llm_config, is_active)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (template_id) DO UPDATE SET
			template_text = EXCLUDED.template_text,
			llm_config = EXCLUDED.llm_config,
			is_active = EXCLUDED.is_active`,
		t.ID, t.ProjectID, t.TemplateText, cfg, t.Active); err != nil {
		return err
	}
	return tx.Commit()
}
