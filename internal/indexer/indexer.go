// Package indexer talks to the external extraction/indexing service that
// turns uploaded reference files into text and vector indexes.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"lookupcore/internal/lookup"
	"lookupcore/internal/store"
)

// ExtractRequest asks the service to extract text from one uploaded file.
type ExtractRequest struct {
	SourceID  string          `json:"source_id"`
	FilePath  string          `json:"file_path"`
	FileType  lookup.FileType `json:"file_type"`
	Extractor string          `json:"extractor,omitempty"`
}

// ExtractResult carries the blob path of the extracted text.
type ExtractResult struct {
	ContentPath string `json:"content_path"`
}

// IndexRequest asks the service to build a vector index over extracted text.
// ChunkSize 0 means the project runs without RAG and no index is built.
type IndexRequest struct {
	SourceID     string `json:"source_id"`
	ProfileID    string `json:"profile_id"`
	ContentPath  string `json:"content_path"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
	Embedding    string `json:"embedding,omitempty"`
	VectorStore  string `json:"vector_store,omitempty"`
}

// IndexResult names the created index.
type IndexResult struct {
	IndexID string `json:"index_id"`
}

// Service is the indexing collaborator contract.
type Service interface {
	Extract(ctx context.Context, req ExtractRequest) (ExtractResult, error)
	Index(ctx context.Context, req IndexRequest) (IndexResult, error)
	DeleteIndex(ctx context.Context, indexID string) error
}

// HTTPClient is the JSON-over-HTTP Service implementation.
type HTTPClient struct {
	http    *http.Client
	baseURL string
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		http:    &http.Client{},
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
}

func (c *HTTPClient) Extract(ctx context.Context, req ExtractRequest) (ExtractResult, error) {
	var out ExtractResult
	err := c.post(ctx, "/extract", req, &out)
	return out, err
}

func (c *HTTPClient) Index(ctx context.Context, req IndexRequest) (IndexResult, error) {
	var out IndexResult
	err := c.post(ctx, "/index", req, &out)
	return out, err
}

func (c *HTTPClient) DeleteIndex(ctx context.Context, indexID string) error {
	return c.post(ctx, "/index/delete", map[string]string{"index_id": indexID}, nil)
}

func (c *HTTPClient) post(ctx context.Context, path string, payload, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		const max = 2048
		if len(body) > max {
			body = body[:max]
		}
		return fmt.Errorf("indexer: unexpected status %s: %s", resp.Status, string(body))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Noop satisfies Service without an external process; projects running with
// chunk_size 0 never need one.
type Noop struct{}

func (Noop) Extract(_ context.Context, req ExtractRequest) (ExtractResult, error) {
	return ExtractResult{ContentPath: req.FilePath}, nil
}

func (Noop) Index(context.Context, IndexRequest) (IndexResult, error) {
	return IndexResult{}, nil
}

func (Noop) DeleteIndex(context.Context, string) error { return nil }

// Teardown removes an index manager row and sweeps every index it ever
// created. Delete failures are logged and skipped so a dead vector store
// cannot wedge project cleanup.
func Teardown(ctx context.Context, managers store.IndexManagers, svc Service, indexManagerID string) error {
	m, err := managers.DeleteIndexManager(ctx, indexManagerID)
	if err != nil {
		return err
	}
	for _, indexID := range m.IndexIDsHistory {
		if indexID == "" {
			continue
		}
		if err := svc.DeleteIndex(ctx, indexID); err != nil {
			log.Warn().Err(err).
				Str("index_manager_id", indexManagerID).
				Str("index_id", indexID).
				Msg("vector index delete failed")
		}
	}
	return nil
}
