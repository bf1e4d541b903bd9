package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lookupcore/internal/lookup"
)

func marshalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return b, nil
}

func unmarshalJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal json column: %w", err)
	}
	return nil
}

const sourceColumns = `source_id, project_id, file_name, file_path, file_size, file_type,
	extracted_content_path, extraction_status, extraction_error, version_number, is_latest, uploaded_at`

func scanSource(rows *sql.Rows) (lookup.DataSource, error) {
	var d lookup.DataSource
	err := rows.Scan(&d.ID, &d.ProjectID, &d.FileName, &d.FilePath, &d.FileSize, &d.FileType,
		&d.ExtractedContentPath, &d.ExtractionStatus, &d.ExtractionError,
		&d.VersionNumber, &d.IsLatest, &d.UploadedAt)
	return d, err
}

func (s *Postgres) querySources(ctx context.Context, where string, args ...any) ([]lookup.DataSource, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM lookup_data_sources `+where+` ORDER BY uploaded_at, file_name`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lookup.DataSource
	for rows.Next() {
		d, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Postgres) LatestSources(ctx context.Context, projectID string) ([]lookup.DataSource, error) {
	return s.querySources(ctx, `WHERE project_id = $1 AND is_latest`, projectID)
}

func (s *Postgres) SourcesAtVersion(ctx context.Context, projectID string, version int) ([]lookup.DataSource, error) {
	return s.querySources(ctx, `WHERE project_id = $1 AND version_number = $2`, projectID, version)
}

func (s *Postgres) InsertSources(ctx context.Context, sources []lookup.DataSource) ([]lookup.DataSource, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	projectID := sources[0].ProjectID
	for _, ds := range sources {
		if ds.ProjectID != projectID {
			return nil, fmt.Errorf("store: mixed projects in one upload batch")
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var version int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_number), 0) + 1 FROM lookup_data_sources WHERE project_id = $1`,
		projectID).Scan(&version); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE lookup_data_sources SET is_latest = FALSE WHERE project_id = $1 AND is_latest`,
		projectID); err != nil {
		return nil, err
	}

	out := make([]lookup.DataSource, 0, len(sources))
	for _, ds := range sources {
		if ds.ID == "" {
			ds.ID = uuid.NewString()
		}
		if ds.UploadedAt.IsZero() {
			ds.UploadedAt = time.Now().UTC()
		}
		ds.VersionNumber = version
		ds.IsLatest = true
		if ds.ExtractionStatus == "" {
			ds.ExtractionStatus = lookup.ExtractionPending
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lookup_data_sources (`+sourceColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			ds.ID, ds.ProjectID, ds.FileName, ds.FilePath, ds.FileSize, ds.FileType,
			ds.ExtractedContentPath, ds.ExtractionStatus, ds.ExtractionError,
			ds.VersionNumber, ds.IsLatest, ds.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Postgres) SetExtraction(ctx context.Context, id string, status lookup.ExtractionStatus, contentPath, extractionError string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE lookup_data_sources SET
			extraction_status = $2,
			extracted_content_path = CASE WHEN $3 <> '' THEN $3 ELSE extracted_content_path END,
			extraction_error = $4
		 WHERE source_id = $1`,
		id, status, contentPath, extractionError)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
