package server

import "net/http"

// NewMux wires the REST surface behind the CORS and access-log middleware.
func NewMux(h *Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /lookup-projects/{id}/execute", h.HandleExecute)
	mux.HandleFunc("DELETE /lookup-projects/{id}", h.HandleDeleteProject)
	mux.HandleFunc("GET /lookup-projects/{id}/audits", h.HandleProjectAudits)
	mux.HandleFunc("GET /lookup-projects/{id}/audits/summary", h.HandleProjectAuditSummary)

	mux.HandleFunc("POST /lookup-debug/enrich_ps_output", h.HandleEnrichPSOutput)

	mux.HandleFunc("DELETE /lookup-index-managers/{id}", h.HandleDeleteIndexManager)

	mux.HandleFunc("GET /lookup-executions/{id}/audits", h.HandleExecutionAudits)
	mux.HandleFunc("GET /lookup-executions/{id}/events", h.HandleExecutionEvents)
	mux.HandleFunc("GET /lookup-file-executions/{id}/audits", h.HandleFileExecutionAudits)

	return cors(accessLog(mux))
}
