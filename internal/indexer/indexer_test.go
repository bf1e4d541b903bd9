package indexer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"lookupcore/internal/lookup"
	"lookupcore/internal/store"
)

func TestHTTPClientRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/extract":
			w.Write([]byte(`{"content_path": "extracted/a.txt"}`))
		case "/index":
			w.Write([]byte(`{"index_id": "idx-1"}`))
		case "/index/delete":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	ctx := context.Background()

	ex, err := c.Extract(ctx, ExtractRequest{SourceID: "s1", FilePath: "raw/a.pdf", FileType: lookup.FileTypePDF})
	if err != nil {
		t.Fatal(err)
	}
	if ex.ContentPath != "extracted/a.txt" {
		t.Fatalf("content path = %s", ex.ContentPath)
	}

	idx, err := c.Index(ctx, IndexRequest{SourceID: "s1", ContentPath: ex.ContentPath, ChunkSize: 512})
	if err != nil {
		t.Fatal(err)
	}
	if idx.IndexID != "idx-1" {
		t.Fatalf("index id = %s", idx.IndexID)
	}
	if err := c.DeleteIndex(ctx, "idx-1"); err != nil {
		t.Fatal(err)
	}
}

func TestHTTPClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "extractor crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).Extract(context.Background(), ExtractRequest{SourceID: "s1"})
	if err == nil {
		t.Fatal("expected error on 500")
	}
}

type recordingService struct {
	Noop
	deleted []string
	fail    map[string]error
}

func (s *recordingService) DeleteIndex(_ context.Context, indexID string) error {
	s.deleted = append(s.deleted, indexID)
	return s.fail[indexID]
}

func TestTeardownSweepsHistory(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	if err := mem.PutIndexManager(ctx, lookup.IndexManager{
		ID:              "im1",
		DataSourceID:    "ds1",
		ProfileID:       "pr1",
		IndexIDsHistory: []string{"idx-a", "idx-b", "idx-c"},
	}); err != nil {
		t.Fatal(err)
	}

	svc := &recordingService{fail: map[string]error{"idx-b": errors.New("gone")}}
	if err := Teardown(ctx, mem, svc, "im1"); err != nil {
		t.Fatal(err)
	}
	if len(svc.deleted) != 3 {
		t.Fatalf("deleted %v, want all three attempted", svc.deleted)
	}
	if _, err := mem.GetIndexManager(ctx, "ds1", "pr1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("index manager row not removed")
	}
}

func TestTeardownMissingManager(t *testing.T) {
	err := Teardown(context.Background(), store.NewMemory(), Noop{}, "absent")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}
