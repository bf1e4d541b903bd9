package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"lookupcore/internal/lookup"
)

// Profiles

const profileColumns = `profile_id, project_id, profile_name, llm_adapter, embedding_adapter,
	vector_store_adapter, text_extractor_adapter, chunk_size, chunk_overlap, similarity_top_k, is_default`

func scanProfile(scan func(...any) error) (lookup.Profile, error) {
	var p lookup.Profile
	err := scan(&p.ID, &p.ProjectID, &p.ProfileName, &p.LLMAdapter, &p.EmbeddingAdapter,
		&p.VectorStoreAdapter, &p.TextExtractorAdapter,
		&p.ChunkSize, &p.ChunkOverlap, &p.SimilarityTopK, &p.IsDefault)
	return p, err
}

func (s *Postgres) DefaultProfile(ctx context.Context, projectID string) (lookup.Profile, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return lookup.Profile{}, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM lookup_profiles WHERE project_id = $1 AND is_default`,
		projectID)
	p, err := scanProfile(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return lookup.Profile{}, ErrNotFound
	}
	if err != nil {
		return lookup.Profile{}, fmt.Errorf("get default profile: %w", err)
	}
	return p, nil
}

func (s *Postgres) PutProfile(ctx context.Context, p lookup.Profile) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if p.IsDefault {
		if _, err := tx.ExecContext(ctx,
			`UPDATE lookup_profiles SET is_default = FALSE
			 WHERE project_id = $1 AND profile_id <> $2`, p.ProjectID, p.ID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO lookup_profiles (`+profileColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (profile_id) DO UPDATE SET
			profile_name = EXCLUDED.profile_name,
			llm_adapter = EXCLUDED.llm_adapter,
			embedding_adapter = EXCLUDED.embedding_adapter,
			vector_store_adapter = EXCLUDED.vector_store_adapter,
			text_extractor_adapter = EXCLUDED.text_extractor_adapter,
			chunk_size = EXCLUDED.chunk_size,
			chunk_overlap = EXCLUDED.chunk_overlap,
			similarity_top_k = EXCLUDED.similarity_top_k,
			is_default = EXCLUDED.is_default`,
		p.ID, p.ProjectID, p.ProfileName, p.LLMAdapter, p.EmbeddingAdapter,
		p.VectorStoreAdapter, p.TextExtractorAdapter,
		p.ChunkSize, p.ChunkOverlap, p.SimilarityTopK, p.IsDefault); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Postgres) ProjectProfiles(ctx context.Context, projectID string) ([]lookup.Profile, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM lookup_profiles WHERE project_id = $1 ORDER BY profile_name`,
		projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lookup.Profile
	for rows.Next() {
		p, err := scanProfile(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Links

func (s *Postgres) queryLinks(ctx context.Context, where string, args ...any) ([]lookup.PromptStudioLink, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ps_project_id, lookup_project_id, execution_order
		 FROM prompt_studio_lookup_links `+where+` ORDER BY execution_order, lookup_project_id`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lookup.PromptStudioLink
	for rows.Next() {
		var l lookup.PromptStudioLink
		if err := rows.Scan(&l.PSProjectID, &l.LookupProjectID, &l.ExecutionOrder); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Postgres) LinksForPS(ctx context.Context, psProjectID string) ([]lookup.PromptStudioLink, error) {
	return s.queryLinks(ctx, `WHERE ps_project_id = $1`, psProjectID)
}

func (s *Postgres) LinksForProject(ctx context.Context, lookupProjectID string) ([]lookup.PromptStudioLink, error) {
	return s.queryLinks(ctx, `WHERE lookup_project_id = $1`, lookupProjectID)
}

func (s *Postgres) CreateLink(ctx context.Context, link lookup.PromptStudioLink) (lookup.PromptStudioLink, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return lookup.PromptStudioLink{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return lookup.PromptStudioLink{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM prompt_studio_lookup_links
		 WHERE ps_project_id = $1 AND lookup_project_id = $2)`,
		link.PSProjectID, link.LookupProjectID).Scan(&exists); err != nil {
		return lookup.PromptStudioLink{}, err
	}
	if exists {
		return lookup.PromptStudioLink{}, ErrDuplicateLink
	}
	if link.ExecutionOrder == OrderUnset {
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(execution_order), 0) + 1
			 FROM prompt_studio_lookup_links WHERE ps_project_id = $1`,
			link.PSProjectID).Scan(&link.ExecutionOrder); err != nil {
			return lookup.PromptStudioLink{}, err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO prompt_studio_lookup_links (ps_project_id, lookup_project_id, execution_order)
		 VALUES ($1, $2, $3)`,
		link.PSProjectID, link.LookupProjectID, link.ExecutionOrder); err != nil {
		return lookup.PromptStudioLink{}, err
	}
	if err := tx.Commit(); err != nil {
		return lookup.PromptStudioLink{}, err
	}
	return link, nil
}

func (s *Postgres) DeleteLink(ctx context.Context, psProjectID, lookupProjectID string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM prompt_studio_lookup_links
		 WHERE ps_project_id = $1 AND lookup_project_id = $2`,
		psProjectID, lookupProjectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IndexManagers

const indexManagerColumns = `index_manager_id, source_id, profile_id, raw_index_id,
	index_ids_history, extraction_status, reindex_required`

func scanIndexManager(scan func(...any) error) (lookup.IndexManager, error) {
	var m lookup.IndexManager
	var history, status []byte
	if err := scan(&m.ID, &m.DataSourceID, &m.ProfileID, &m.RawIndexID,
		&history, &status, &m.ReindexRequired); err != nil {
		return lookup.IndexManager{}, err
	}
	if err := unmarshalJSON(history, &m.IndexIDsHistory); err != nil {
		return lookup.IndexManager{}, err
	}
	if err := unmarshalJSON(status, &m.ExtractionStatus); err != nil {
		return lookup.IndexManager{}, err
	}
	return m, nil
}

func (s *Postgres) GetIndexManager(ctx context.Context, dataSourceID, profileID string) (lookup.IndexManager, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return lookup.IndexManager{}, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+indexManagerColumns+` FROM lookup_index_managers
		 WHERE source_id = $1 AND profile_id = $2`, dataSourceID, profileID)
	m, err := scanIndexManager(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return lookup.IndexManager{}, ErrNotFound
	}
	if err != nil {
		return lookup.IndexManager{}, fmt.Errorf("get index manager: %w", err)
	}
	return m, nil
}

func (s *Postgres) PutIndexManager(ctx context.Context, m lookup.IndexManager) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.IndexIDsHistory == nil {
		m.IndexIDsHistory = []string{}
	}
	if m.ExtractionStatus == nil {
		m.ExtractionStatus = map[string]lookup.IndexState{}
	}
	history, err := marshalJSON(m.IndexIDsHistory)
	if err != nil {
		return err
	}
	status, err := marshalJSON(m.ExtractionStatus)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lookup_index_managers (`+indexManagerColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (source_id, profile_id) DO UPDATE SET
			raw_index_id = EXCLUDED.raw_index_id,
			index_ids_history = EXCLUDED.index_ids_history,
			extraction_status = EXCLUDED.extraction_status,
			reindex_required = EXCLUDED.reindex_required`,
		m.ID, m.DataSourceID, m.ProfileID, m.RawIndexID, history, status, m.ReindexRequired)
	return err
}

func (s *Postgres) DeleteIndexManager(ctx context.Context, id string) (lookup.IndexManager, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return lookup.IndexManager{}, err
	}
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM lookup_index_managers WHERE index_manager_id = $1
		 RETURNING `+indexManagerColumns, id)
	m, err := scanIndexManager(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return lookup.IndexManager{}, ErrNotFound
	}
	if err != nil {
		return lookup.IndexManager{}, fmt.Errorf("delete index manager: %w", err)
	}
	return m, nil
}

func (s *Postgres) IndexManagersForSource(ctx context.Context, dataSourceID string) ([]lookup.IndexManager, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+indexManagerColumns+` FROM lookup_index_managers
		 WHERE source_id = $1 ORDER BY profile_id`, dataSourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lookup.IndexManager
	for rows.Next() {
		m, err := scanIndexManager(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
