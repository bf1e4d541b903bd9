package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"lookupcore/internal/indexer"
	"lookupcore/internal/lookup"
	"lookupcore/internal/lookup/audit"
	"lookupcore/internal/lookup/orchestrator"
	"lookupcore/internal/store"
)

// Handlers serves the look-up REST surface.
type Handlers struct {
	stores  *store.Stores
	orch    *orchestrator.Orchestrator
	indexes indexer.Service
}

func NewHandlers(stores *store.Stores, orch *orchestrator.Orchestrator, indexes indexer.Service) *Handlers {
	if indexes == nil {
		indexes = indexer.Noop{}
	}
	return &Handlers{stores: stores, orch: orch, indexes: indexes}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

type executeRequest struct {
	InputData        map[string]any `json:"input_data"`
	UseCache         *bool          `json:"use_cache,omitempty"`
	TimeoutSeconds   int            `json:"timeout_seconds,omitempty"`
	ExecutionID      string         `json:"execution_id,omitempty"`
	FileExecutionID  string         `json:"file_execution_id,omitempty"`
	ReferenceVersion int            `json:"reference_version,omitempty"`
}

// HandleExecute runs one look-up project against an input record.
// POST /lookup-projects/{id}/execute
func (h *Handlers) HandleExecute(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	project, err := h.stores.Projects.GetProject(r.Context(), projectID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "lookup project not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.InputData == nil {
		req.InputData = map[string]any{}
	}

	out := h.orch.Run(r.Context(), orchestrator.Request{
		InputData:        req.InputData,
		Projects:         []lookup.Project{project},
		ExecutionID:      req.ExecutionID,
		FileExecutionID:  req.FileExecutionID,
		ReferenceVersion: req.ReferenceVersion,
		SkipCache:        req.UseCache != nil && !*req.UseCache,
		TaskTimeout:      time.Duration(req.TimeoutSeconds) * time.Second,
	})

	// The call is an error only when every look-up failed; the single-project
	// endpoint therefore fails on its one failure.
	if out.Metadata.LookupsSuccessful == 0 && out.Metadata.LookupsFailed > 0 {
		writeFailure(w, out)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lookup_enrichment": out.Enrichment,
		"_lookup_metadata":  out.Metadata,
	})
}

// writeFailure maps an all-failed run to 400 carrying the first failure's
// error, with the context-overflow budget numbers when that is the cause.
func writeFailure(w http.ResponseWriter, out orchestrator.Output) {
	body := map[string]any{
		"_lookup_metadata": out.Metadata,
		"error":            "look-up execution failed",
		"error_type":       lookup.ErrTypeUnknown,
	}
	for _, d := range out.Metadata.Enrichments {
		if d.Status != lookup.StatusFailed {
			continue
		}
		body["error"] = d.Error
		if d.ErrorType != "" {
			body["error_type"] = d.ErrorType
		}
		if d.ErrorType == lookup.ErrTypeContextWindowExceeded {
			body["token_count"] = d.TokenCount
			body["context_limit"] = d.ContextLimit
			body["model"] = d.Model
		}
		break
	}
	writeJSON(w, http.StatusBadRequest, body)
}

type enrichRequest struct {
	PromptStudioProjectID string         `json:"prompt_studio_project_id"`
	ExtractedData         map[string]any `json:"extracted_data"`
	ExecutionID           string         `json:"execution_id,omitempty"`
	UseCache              *bool          `json:"use_cache,omitempty"`
}

// HandleEnrichPSOutput runs every look-up linked to a prompt-studio project
// over its extracted output. POST /lookup-debug/enrich_ps_output
func (h *Handlers) HandleEnrichPSOutput(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.PromptStudioProjectID == "" {
		writeError(w, http.StatusBadRequest, "prompt_studio_project_id is required")
		return
	}
	if req.ExtractedData == nil {
		req.ExtractedData = map[string]any{}
	}

	links, err := h.stores.Links.LinksForPS(r.Context(), req.PromptStudioProjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	projects := make([]lookup.Project, 0, len(links))
	for _, l := range links {
		p, err := h.stores.Projects.GetProject(r.Context(), l.LookupProjectID)
		if errors.Is(err, store.ErrNotFound) {
			log.Warn().Str("lookup_project_id", l.LookupProjectID).Msg("link targets missing project")
			continue
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if p.Active {
			projects = append(projects, p)
		}
	}

	out := h.orch.Run(r.Context(), orchestrator.Request{
		InputData:   req.ExtractedData,
		Projects:    projects,
		ExecutionID: req.ExecutionID,
		SkipCache:   req.UseCache != nil && !*req.UseCache,
	})

	enriched := make(map[string]any, len(req.ExtractedData)+len(out.Enrichment))
	for k, v := range req.ExtractedData {
		enriched[k] = v
	}
	for k, v := range out.Enrichment {
		enriched[k] = v
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"original_data":     req.ExtractedData,
		"enriched_data":     enriched,
		"lookup_enrichment": out.Enrichment,
		"_lookup_metadata":  out.Metadata,
	})
}

// HandleDeleteProject removes a look-up project unless prompt-studio links
// still target it. DELETE /lookup-projects/{id}
func (h *Handlers) HandleDeleteProject(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	err := store.RemoveProject(r.Context(), h.stores, projectID)
	var linked *lookup.ProjectLinkedError
	switch {
	case errors.As(err, &linked):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":                         linked.Error(),
			"linked_prompt_studio_projects": linked.PSProjectIDs,
		})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "lookup project not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]any{"deleted": projectID})
	}
}

// HandleDeleteIndexManager tears down one index manager, sweeping every
// vector index it ever created. DELETE /lookup-index-managers/{id}
func (h *Handlers) HandleDeleteIndexManager(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := indexer.Teardown(r.Context(), h.stores.IndexManagers, h.indexes, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "index manager not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	}
}

// HandleProjectAudits lists a project's audit history, newest first.
// GET /lookup-projects/{id}/audits?limit=N
func (h *Handlers) HandleProjectAudits(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	records, err := h.stores.Audits.ByProject(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audits": emptyIfNil(records)})
}

// HandleProjectAuditSummary aggregates a project's execution history.
// GET /lookup-projects/{id}/audits/summary
func (h *Handlers) HandleProjectAuditSummary(w http.ResponseWriter, r *http.Request) {
	records, err := h.stores.Audits.ByProject(r.Context(), r.PathValue("id"), 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, audit.Summarize(records))
}

// HandleExecutionAudits lists the audit rows of one orchestrator call.
// GET /lookup-executions/{id}/audits
func (h *Handlers) HandleExecutionAudits(w http.ResponseWriter, r *http.Request) {
	records, err := h.stores.Audits.ByExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audits": emptyIfNil(records)})
}

// HandleFileExecutionAudits lists the audit rows tied to one source file
// execution. GET /lookup-file-executions/{id}/audits
func (h *Handlers) HandleFileExecutionAudits(w http.ResponseWriter, r *http.Request) {
	records, err := h.stores.Audits.ByFileExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audits": emptyIfNil(records)})
}

func emptyIfNil(records []audit.Record) []audit.Record {
	if records == nil {
		return []audit.Record{}
	}
	return records
}
