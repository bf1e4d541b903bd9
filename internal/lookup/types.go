// Package lookup defines the domain model shared by the Look-Up execution
// engine: projects, templates, data sources, adapter profiles, and the
// per-execution result shape.
package lookup

import (
	"fmt"
	"strings"
	"time"
)

// ExtractionStatus tracks a data source through the extraction pipeline.
type ExtractionStatus string

const (
	ExtractionPending    ExtractionStatus = "pending"
	ExtractionProcessing ExtractionStatus = "processing"
	ExtractionCompleted  ExtractionStatus = "completed"
	ExtractionFailed     ExtractionStatus = "failed"
)

// FileType enumerates the supported reference corpus file formats.
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeXLSX FileType = "xlsx"
	FileTypeCSV  FileType = "csv"
	FileTypeDOCX FileType = "docx"
	FileTypeTXT  FileType = "txt"
	FileTypeJSON FileType = "json"
)

// TextNative reports whether the format needs no extraction step before it
// can be fed to an LLM as-is.
func (t FileType) TextNative() bool {
	switch t {
	case FileTypeCSV, FileTypeTXT, FileTypeJSON:
		return true
	}
	return false
}

// Project is one Look-Up: a prompt template bound to a reference corpus and
// an adapter profile.
type Project struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Organization string    `json:"organization,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// PromptTemplate is a project's prompt with {{variable}} placeholders.
// At most one template per project is active.
type PromptTemplate struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	TemplateText string    `json:"template_text"`
	LLMConfig    LLMConfig `json:"llm_config"`
	Active       bool      `json:"active"`
}

// LLMConfig selects the model a template is executed against. Either
// AdapterID or both Provider and Model must be set; everything else is
// passed through to the adapter.
type LLMConfig struct {
	Provider    string         `json:"provider,omitempty"`
	Model       string         `json:"model,omitempty"`
	AdapterID   string         `json:"adapter_id,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Validate checks that the config identifies a model.
func (c LLMConfig) Validate() error {
	if strings.TrimSpace(c.AdapterID) != "" {
		return nil
	}
	if strings.TrimSpace(c.Provider) != "" && strings.TrimSpace(c.Model) != "" {
		return nil
	}
	return fmt.Errorf("llm_config requires adapter_id or both provider and model")
}

// DataSource is one uploaded reference file at one corpus version.
type DataSource struct {
	ID                   string           `json:"id"`
	ProjectID            string           `json:"project_id"`
	FileName             string           `json:"file_name"`
	FilePath             string           `json:"file_path"`
	FileSize             int64            `json:"file_size"`
	FileType             FileType         `json:"file_type"`
	ExtractedContentPath string           `json:"extracted_content_path,omitempty"`
	ExtractionStatus     ExtractionStatus `json:"extraction_status"`
	ExtractionError      string           `json:"extraction_error,omitempty"`
	VersionNumber        int              `json:"version_number"`
	IsLatest             bool             `json:"is_latest"`
	UploadedAt           time.Time        `json:"uploaded_at"`
}

// Profile is the adapter tuple a project uses for extraction, embedding,
// retrieval, and generation. ChunkSize 0 means no RAG: the whole reference
// text is fed to the LLM.
type Profile struct {
	ID                   string `json:"id"`
	ProjectID            string `json:"project_id"`
	ProfileName          string `json:"profile_name"`
	LLMAdapter           string `json:"llm_adapter"`
	EmbeddingAdapter     string `json:"embedding_adapter"`
	VectorStoreAdapter   string `json:"vector_store_adapter"`
	TextExtractorAdapter string `json:"text_extractor_adapter"`
	ChunkSize            int    `json:"chunk_size"`
	ChunkOverlap         int    `json:"chunk_overlap"`
	SimilarityTopK       int    `json:"similarity_top_k"`
	IsDefault            bool   `json:"is_default"`
}

// Validate enforces the profile's numeric bounds.
func (p Profile) Validate() error {
	if p.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must be >= 0")
	}
	if p.ChunkOverlap < 0 {
		return fmt.Errorf("chunk_overlap must be >= 0")
	}
	if p.SimilarityTopK < 1 {
		return fmt.Errorf("similarity_top_k must be >= 1")
	}
	return nil
}

// IndexState is the per-fingerprint extraction record of an index manager.
type IndexState struct {
	Extracted        bool   `json:"extracted"`
	HighlightEnabled bool   `json:"highlight_enabled"`
	Error            string `json:"error,omitempty"`
}

// IndexManager tracks the vector indexes materialized for one
// (data source, profile) pair. IndexIDsHistory keeps every doc id ever
// written so teardown can sweep the vector store.
type IndexManager struct {
	ID               string                `json:"id"`
	DataSourceID     string                `json:"data_source_id"`
	ProfileID        string                `json:"profile_id"`
	RawIndexID       string                `json:"raw_index_id,omitempty"`
	IndexIDsHistory  []string              `json:"index_ids_history"`
	ExtractionStatus map[string]IndexState `json:"extraction_status"`
	ReindexRequired  bool                  `json:"reindex_required"`
}

// PromptStudioLink is a weak back-reference from an external Prompt-Studio
// project to a Look-Up project. Lower ExecutionOrder wins priority ties.
type PromptStudioLink struct {
	PSProjectID     string `json:"ps_project_id"`
	LookupProjectID string `json:"lookup_project_id"`
	ExecutionOrder  int    `json:"execution_order"`
}

// Result statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Result is the per-Look-Up outcome returned by the executor.
type Result struct {
	Status          string         `json:"status"`
	ProjectID       string         `json:"project_id"`
	ProjectName     string         `json:"project_name"`
	Data            map[string]any `json:"data,omitempty"`
	Confidence      *float64       `json:"confidence,omitempty"`
	Cached          bool           `json:"cached"`
	ExecutionTimeMS int64          `json:"execution_time_ms"`
	Error           string         `json:"error,omitempty"`
	ErrorType       string         `json:"error_type,omitempty"`

	// Populated only when ErrorType is "context_window_exceeded" so the
	// HTTP layer can surface the budget numbers.
	TokenCount   int    `json:"token_count,omitempty"`
	ContextLimit int    `json:"context_limit,omitempty"`
	Model        string `json:"model,omitempty"`
}

// Succeeded reports whether the result carries an enrichment.
func (r Result) Succeeded() bool { return r.Status == StatusSuccess }
