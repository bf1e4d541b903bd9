// Package executor runs one look-up end to end: reference load, template
// resolution, cache check, LLM call, and response parsing, with one audit
// record per terminal outcome.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"lookupcore/internal/lookup"
	"lookupcore/internal/lookup/audit"
	"lookupcore/internal/lookup/cache"
	"lookupcore/internal/lookup/llm"
	"lookupcore/internal/lookup/refdata"
	"lookupcore/internal/lookup/resolver"
	"lookupcore/internal/store"
)

// Request is one look-up invocation against one project.
type Request struct {
	Project   lookup.Project
	InputData map[string]any

	// ExecutionID groups the audits of one orchestrator call.
	ExecutionID string
	// FileExecutionID ties the audit back to the caller's file run, if any.
	FileExecutionID string
	// ReferenceVersion pins the corpus; refdata.VersionLatest loads is_latest.
	ReferenceVersion int
	// SkipCache bypasses the cache read; the fresh response is still stored.
	SkipCache bool
}

// Executor runs look-up requests. All collaborators are required except the
// audit logger, which may be nil.
type Executor struct {
	templates store.Templates
	loader    *refdata.Loader
	cache     *cache.ResponseCache
	adapters  llm.Factory
	timeout   time.Duration
	audits    *audit.Logger
}

func New(templates store.Templates, loader *refdata.Loader, respCache *cache.ResponseCache, adapters llm.Factory, timeout time.Duration, audits *audit.Logger) *Executor {
	if timeout <= 0 {
		timeout = llm.DefaultTimeout
	}
	return &Executor{
		templates: templates,
		loader:    loader,
		cache:     respCache,
		adapters:  adapters,
		timeout:   timeout,
		audits:    audits,
	}
}

// Execute runs the request to a terminal result. It never returns an error:
// every failure mode is folded into a failed Result, and exactly one audit
// record is written either way.
func (e *Executor) Execute(ctx context.Context, req Request) lookup.Result {
	start := time.Now()
	rec := audit.Record{
		ExecutionID:     req.ExecutionID,
		FileExecutionID: req.FileExecutionID,
		ProjectID:       req.Project.ID,
		InputData:       req.InputData,
	}

	ref, err := e.loader.Load(ctx, req.Project.ID, req.ReferenceVersion)
	if err != nil {
		return e.fail(ctx, req, rec, err, start)
	}
	rec.ReferenceDataVersion = ref.Version

	tmpl, err := e.templates.ActiveTemplate(ctx, req.Project.ID)
	if errors.Is(err, store.ErrNotFound) {
		err = &lookup.TemplateNotFoundError{ProjectID: req.Project.ID}
	}
	if err != nil {
		return e.fail(ctx, req, rec, err, start)
	}
	rec.LLMProvider = tmpl.LLMConfig.Provider
	rec.LLMModel = tmpl.LLMConfig.Model

	// Input fields are addressable both bare ({{vendor}}) and under the
	// input_data root ({{input_data.vendor}}).
	vars := make(map[string]any, len(req.InputData)+2)
	for k, v := range req.InputData {
		vars[k] = v
	}
	vars["input_data"] = req.InputData
	vars[resolver.ReferenceDataVar] = ref.Content
	prompt := resolver.Resolve(tmpl.TemplateText, vars)
	rec.LLMPrompt = prompt

	key := e.cache.KeyFor(prompt, ref.Content)
	if cached, ok := e.cachedResponse(ctx, req, key); ok {
		rec.LLMResponse = cached
		rec.LLMResponseCached = true
		parsed, err := llm.ExtractJSON(cached)
		if err != nil {
			// Poisoned entry: evict so the next run goes back to the model.
			e.cache.Delete(ctx, key)
			return e.fail(ctx, req, rec, err, start)
		}
		return e.emit(ctx, req, rec, parsed, true, 0, nil)
	}

	adapter, err := e.adapters(ctx, tmpl.LLMConfig)
	if err != nil {
		return e.fail(ctx, req, rec, &lookup.LLMError{Err: err}, start)
	}
	rec.LLMProvider = adapter.Provider()
	rec.LLMModel = adapter.Model()

	client := llm.NewClient(adapter, e.timeout)
	raw, parsed, callTime, err := client.Complete(ctx, prompt)
	if err != nil {
		return e.fail(ctx, req, rec, err, start)
	}
	rec.LLMResponse = raw
	e.cache.Set(ctx, key, raw)

	callMS := callTime.Milliseconds()
	return e.emit(ctx, req, rec, parsed, false, time.Since(start).Milliseconds(), &callMS)
}

func (e *Executor) cachedResponse(ctx context.Context, req Request, key string) (string, bool) {
	if req.SkipCache {
		return "", false
	}
	return e.cache.Get(ctx, key)
}

// emit finalizes a successful run: confidence is lifted out of the payload,
// the audit is written, and the result assembled. Cache hits report zero
// execution time and no LLM call time.
func (e *Executor) emit(ctx context.Context, req Request, rec audit.Record, data map[string]any, cached bool, elapsedMS int64, llmCallMS *int64) lookup.Result {
	confidence := extractConfidence(data)

	rec.Status = audit.StatusSuccess
	rec.EnrichedOutput = data
	rec.ConfidenceScore = confidence
	rec.ExecutionTimeMS = elapsedMS
	rec.LLMCallTimeMS = llmCallMS
	e.audits.Write(ctx, rec)

	return lookup.Result{
		Status:          lookup.StatusSuccess,
		ProjectID:       req.Project.ID,
		ProjectName:     req.Project.Name,
		Data:            data,
		Confidence:      confidence,
		Cached:          cached,
		ExecutionTimeMS: elapsedMS,
	}
}

func (e *Executor) fail(ctx context.Context, req Request, rec audit.Record, err error, start time.Time) lookup.Result {
	elapsed := time.Since(start).Milliseconds()
	rec.Status = audit.StatusFailed
	rec.ErrorMessage = err.Error()
	rec.ExecutionTimeMS = elapsed
	e.audits.Write(ctx, rec)

	res := lookup.FailedResult(req.Project, err, elapsed)
	log.Debug().
		Str("project_id", req.Project.ID).
		Str("error_type", res.ErrorType).
		Msg("look-up failed")
	return res
}

// extractConfidence lifts a numeric "confidence" field out of the enrichment
// payload, clamped into [0, 1]. The key is removed so it never collides with
// record fields during merging.
func extractConfidence(data map[string]any) *float64 {
	raw, ok := data["confidence"]
	if !ok {
		return nil
	}
	delete(data, "confidence")
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case int:
		v = float64(n)
	default:
		return nil
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return &v
}
