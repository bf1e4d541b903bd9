package lookup

import (
	"errors"
	"fmt"
	"strings"
)

// Error type discriminators carried on failed results and HTTP payloads.
const (
	ErrTypeContextWindowExceeded = "context_window_exceeded"
	ErrTypeExtractionNotComplete = "extraction_not_complete"
	ErrTypeTemplateMissing       = "template_missing"
	ErrTypeLLMTimeout            = "llm_timeout"
	ErrTypeExecutionTimeout      = "execution_timeout"
	ErrTypeLLMError              = "llm_error"
	ErrTypeParseError            = "parse_error"
	ErrTypeUnknown               = "unknown"
)

// ExtractionNotCompleteError reports data sources that have not finished
// extraction. Loading fails as a whole; no partial content is returned.
type ExtractionNotCompleteError struct {
	Files []string
}

func (e *ExtractionNotCompleteError) Error() string {
	return fmt.Sprintf("extraction not complete for: %s", strings.Join(e.Files, ", "))
}

func (e *ExtractionNotCompleteError) ErrorType() string { return ErrTypeExtractionNotComplete }

// TemplateNotFoundError means the project has no active prompt template.
type TemplateNotFoundError struct {
	ProjectID string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("no active prompt template for project %s", e.ProjectID)
}

func (e *TemplateNotFoundError) ErrorType() string { return ErrTypeTemplateMissing }

// ContextWindowExceededError is raised pre-flight when the resolved prompt
// does not fit the model's context window minus the reserved output budget.
// The LLM call is never dispatched.
type ContextWindowExceededError struct {
	TokenCount   int
	ContextLimit int
	Model        string
}

func (e *ContextWindowExceededError) Error() string {
	return fmt.Sprintf("prompt of %d tokens exceeds context limit %d for model %s",
		e.TokenCount, e.ContextLimit, e.Model)
}

func (e *ContextWindowExceededError) ErrorType() string { return ErrTypeContextWindowExceeded }

// LLMTimeoutError wraps a request-timeout failure of the LLM call.
type LLMTimeoutError struct {
	Err error
}

func (e *LLMTimeoutError) Error() string     { return "llm request timed out: " + e.Err.Error() }
func (e *LLMTimeoutError) Unwrap() error     { return e.Err }
func (e *LLMTimeoutError) ErrorType() string { return ErrTypeLLMTimeout }

// LLMError wraps any non-timeout LLM-side failure (network, 5xx, bad payload).
type LLMError struct {
	Err error
}

func (e *LLMError) Error() string     { return "llm call failed: " + e.Err.Error() }
func (e *LLMError) Unwrap() error     { return e.Err }
func (e *LLMError) ErrorType() string { return ErrTypeLLMError }

// ParseError wraps a failure to extract a JSON object from a response.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string     { return "response parse failed: " + e.Err.Error() }
func (e *ParseError) Unwrap() error     { return e.Err }
func (e *ParseError) ErrorType() string { return ErrTypeParseError }

// DefaultProfileError means a project is missing its required default
// profile. Surfaced at indexing and retrieval call sites.
type DefaultProfileError struct {
	ProjectID string
}

func (e *DefaultProfileError) Error() string {
	return fmt.Sprintf("no default profile for project %s", e.ProjectID)
}

// RetrievalError wraps a RAG retrieval failure. Converted to LLMError at the
// executor boundary.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string { return "retrieval failed: " + e.Err.Error() }
func (e *RetrievalError) Unwrap() error { return e.Err }

// ProjectLinkedError refuses deletion of a project that is still the target
// of Prompt-Studio links.
type ProjectLinkedError struct {
	ProjectID    string
	PSProjectIDs []string
}

func (e *ProjectLinkedError) Error() string {
	return fmt.Sprintf("project %s is linked by prompt studio projects: %s",
		e.ProjectID, strings.Join(e.PSProjectIDs, ", "))
}

// typedError is implemented by error kinds that map to a result discriminator.
type typedError interface {
	ErrorType() string
}

// ErrorTypeOf maps an error to its result discriminator, defaulting to
// "unknown".
func ErrorTypeOf(err error) string {
	if err == nil {
		return ""
	}
	var te typedError
	if errors.As(err, &te) {
		return te.ErrorType()
	}
	return ErrTypeUnknown
}

// FailedResult builds the failure result shape for an executor error.
func FailedResult(p Project, err error, elapsedMS int64) Result {
	res := Result{
		Status:          StatusFailed,
		ProjectID:       p.ID,
		ProjectName:     p.Name,
		Error:           err.Error(),
		ErrorType:       ErrorTypeOf(err),
		ExecutionTimeMS: elapsedMS,
	}
	var cw *ContextWindowExceededError
	if errors.As(err, &cw) {
		res.TokenCount = cw.TokenCount
		res.ContextLimit = cw.ContextLimit
		res.Model = cw.Model
	}
	return res
}
