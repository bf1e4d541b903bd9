// Package audit persists one immutable record per look-up executor
// invocation, success or failure.
package audit

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Status of one executor invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Record is the append-only audit row. ExecutionID groups all look-ups of
// one orchestrator call.
type Record struct {
	ID                   string         `json:"id"`
	ExecutionID          string         `json:"execution_id"`
	FileExecutionID      string         `json:"file_execution_id,omitempty"`
	ProjectID            string         `json:"project_id"`
	InputData            map[string]any `json:"input_data,omitempty"`
	ReferenceDataVersion int            `json:"reference_data_version,omitempty"`
	LLMProvider          string         `json:"llm_provider,omitempty"`
	LLMModel             string         `json:"llm_model,omitempty"`
	LLMPrompt            string         `json:"llm_prompt,omitempty"`
	LLMResponse          string         `json:"llm_response,omitempty"`
	LLMResponseCached    bool           `json:"llm_response_cached"`
	EnrichedOutput       map[string]any `json:"enriched_output,omitempty"`
	Status               Status         `json:"status"`
	ConfidenceScore      *float64       `json:"confidence_score,omitempty"`
	ExecutionTimeMS      int64          `json:"execution_time_ms"`
	LLMCallTimeMS        *int64         `json:"llm_call_time_ms,omitempty"`
	ErrorMessage         string         `json:"error_message,omitempty"`
	ExecutedAt           time.Time      `json:"executed_at"`
}

// Store is the append-only persistence contract. Records are never updated
// or deleted.
type Store interface {
	Insert(ctx context.Context, rec Record) error
	ByExecution(ctx context.Context, executionID string) ([]Record, error)
	ByProject(ctx context.Context, projectID string, limit int) ([]Record, error)
	ByFileExecution(ctx context.Context, fileExecutionID string) ([]Record, error)
}

// Logger writes audit records best-effort: a persistence failure is logged
// and swallowed, never converting a successful execution into a failed one.
type Logger struct {
	store Store
}

func NewLogger(store Store) *Logger {
	return &Logger{store: store}
}

// Write normalizes the record and persists it. Safe to call with a nil
// logger or store.
func (l *Logger) Write(ctx context.Context, rec Record) {
	if l == nil || l.store == nil {
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ExecutedAt.IsZero() {
		rec.ExecutedAt = time.Now().UTC()
	}
	// Enforced invariants: failed records carry a message, successful ones
	// carry an output.
	if rec.Status == StatusFailed && rec.ErrorMessage == "" {
		rec.ErrorMessage = "unknown error"
	}
	if rec.Status == StatusSuccess && rec.EnrichedOutput == nil {
		rec.EnrichedOutput = map[string]any{}
	}
	if rec.ConfidenceScore != nil {
		rounded := roundConfidence(*rec.ConfidenceScore)
		rec.ConfidenceScore = &rounded
	}
	if err := l.store.Insert(ctx, rec); err != nil {
		log.Error().Err(err).
			Str("execution_id", rec.ExecutionID).
			Str("project_id", rec.ProjectID).
			Str("status", string(rec.Status)).
			Msg("audit write failed")
	}
}

// roundConfidence clamps into [0, 1] and keeps two decimals, matching the
// numeric(3,2) column.
func roundConfidence(v float64) float64 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return math.Round(v*100) / 100
}

// ProjectSummary aggregates a project's execution history.
type ProjectSummary struct {
	TotalExecutions int      `json:"total_executions"`
	SuccessRate     float64  `json:"success_rate"`
	AvgExecTimeMS   float64  `json:"avg_execution_time_ms"`
	CacheHitRate    float64  `json:"cache_hit_rate"`
	AvgConfidence   *float64 `json:"avg_confidence,omitempty"`
}

// Summarize computes summary statistics over a project's records.
func Summarize(records []Record) ProjectSummary {
	s := ProjectSummary{TotalExecutions: len(records)}
	if len(records) == 0 {
		return s
	}
	var successes, cacheHits, confCount int
	var timeSum, confSum float64
	for _, r := range records {
		if r.Status == StatusSuccess {
			successes++
		}
		if r.LLMResponseCached {
			cacheHits++
		}
		timeSum += float64(r.ExecutionTimeMS)
		if r.ConfidenceScore != nil {
			confSum += *r.ConfidenceScore
			confCount++
		}
	}
	n := float64(len(records))
	s.SuccessRate = float64(successes) / n
	s.AvgExecTimeMS = timeSum / n
	s.CacheHitRate = float64(cacheHits) / n
	if confCount > 0 {
		avg := confSum / float64(confCount)
		s.AvgConfidence = &avg
	}
	return s
}
