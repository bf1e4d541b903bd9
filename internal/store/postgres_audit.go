package store

import (
	"context"
	"database/sql"

	"lookupcore/internal/lookup/audit"
)

const auditColumns = `audit_id, execution_id, file_execution_id, project_id, input_data,
	reference_data_version, llm_provider, llm_model, llm_prompt, llm_response,
	llm_response_cached, enriched_output, status, confidence_score,
	execution_time_ms, llm_call_time_ms, error_message, executed_at`

func scanAudit(scan func(...any) error) (audit.Record, error) {
	var r audit.Record
	var input, output []byte
	var confidence sql.NullFloat64
	var llmCallTime sql.NullInt64
	if err := scan(&r.ID, &r.ExecutionID, &r.FileExecutionID, &r.ProjectID, &input,
		&r.ReferenceDataVersion, &r.LLMProvider, &r.LLMModel, &r.LLMPrompt, &r.LLMResponse,
		&r.LLMResponseCached, &output, &r.Status, &confidence,
		&r.ExecutionTimeMS, &llmCallTime, &r.ErrorMessage, &r.ExecutedAt); err != nil {
		return audit.Record{}, err
	}
	if err := unmarshalJSON(input, &r.InputData); err != nil {
		return audit.Record{}, err
	}
	if err := unmarshalJSON(output, &r.EnrichedOutput); err != nil {
		return audit.Record{}, err
	}
	if confidence.Valid {
		r.ConfidenceScore = &confidence.Float64
	}
	if llmCallTime.Valid {
		r.LLMCallTimeMS = &llmCallTime.Int64
	}
	return r, nil
}

func (s *Postgres) Insert(ctx context.Context, rec audit.Record) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	input, err := marshalJSON(rec.InputData)
	if err != nil {
		return err
	}
	output, err := marshalJSON(rec.EnrichedOutput)
	if err != nil {
		return err
	}
	var confidence sql.NullFloat64
	if rec.ConfidenceScore != nil {
		confidence = sql.NullFloat64{Float64: *rec.ConfidenceScore, Valid: true}
	}
	var llmCallTime sql.NullInt64
	if rec.LLMCallTimeMS != nil {
		llmCallTime = sql.NullInt64{Int64: *rec.LLMCallTimeMS, Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lookup_execution_audits (`+auditColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		rec.ID, rec.ExecutionID, rec.FileExecutionID, rec.ProjectID, input,
		rec.ReferenceDataVersion, rec.LLMProvider, rec.LLMModel, rec.LLMPrompt, rec.LLMResponse,
		rec.LLMResponseCached, output, rec.Status, confidence,
		rec.ExecutionTimeMS, llmCallTime, rec.ErrorMessage, rec.ExecutedAt)
	return err
}

func (s *Postgres) queryAudits(ctx context.Context, tail string, args ...any) ([]audit.Record, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM lookup_execution_audits `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		r, err := scanAudit(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Postgres) ByExecution(ctx context.Context, executionID string) ([]audit.Record, error) {
	return s.queryAudits(ctx,
		`WHERE execution_id = $1 ORDER BY executed_at, audit_id`, executionID)
}

func (s *Postgres) ByProject(ctx context.Context, projectID string, limit int) ([]audit.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryAudits(ctx,
		`WHERE project_id = $1 ORDER BY executed_at DESC, audit_id LIMIT $2`, projectID, limit)
}

func (s *Postgres) ByFileExecution(ctx context.Context, fileExecutionID string) ([]audit.Record, error) {
	return s.queryAudits(ctx,
		`WHERE file_execution_id = $1 ORDER BY executed_at, audit_id`, fileExecutionID)
}
