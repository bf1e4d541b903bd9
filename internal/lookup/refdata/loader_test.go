package refdata

import (
	"context"
	"errors"
	"strings"
	"testing"

	"lookupcore/internal/lookup"
	"lookupcore/internal/storage/blob"
	"lookupcore/internal/store"
)

func seed(t *testing.T) (*store.Memory, *blob.MemoryStore, *Loader) {
	t.Helper()
	mem := store.NewMemory()
	blobs := blob.NewMemoryStore()
	return mem, blobs, NewLoader(mem, blobs)
}

func completedSource(name, path string, ft lookup.FileType) lookup.DataSource {
	return lookup.DataSource{
		ProjectID:            "p1",
		FileName:             name,
		FileType:             ft,
		ExtractedContentPath: path,
		ExtractionStatus:     lookup.ExtractionCompleted,
	}
}

func TestLoadConcatenatesInOrder(t *testing.T) {
	mem, blobs, l := seed(t)
	ctx := context.Background()

	if err := blobs.Put(ctx, "x/a.txt", []byte("alpha")); err != nil {
		t.Fatal(err)
	}
	if err := blobs.Put(ctx, "x/b.txt", []byte("bravo")); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.InsertSources(ctx, []lookup.DataSource{
		completedSource("a.txt", "x/a.txt", lookup.FileTypeTXT),
		completedSource("b.txt", "x/b.txt", lookup.FileTypeTXT),
	}); err != nil {
		t.Fatal(err)
	}

	ref, err := l.Load(ctx, "p1", VersionLatest)
	if err != nil {
		t.Fatal(err)
	}
	want := "=== File: a.txt ===\n\nalpha\n\n=== File: b.txt ===\n\nbravo\n\n"
	if ref.Content != want {
		t.Fatalf("content = %q", ref.Content)
	}
	if ref.Version != 1 || ref.TotalSize != len(want) {
		t.Fatalf("version=%d size=%d", ref.Version, ref.TotalSize)
	}
	if len(ref.Files) != 2 || ref.Files[0] != "a.txt" {
		t.Fatalf("files = %v", ref.Files)
	}
}

func TestLoadPinnedVersion(t *testing.T) {
	mem, blobs, l := seed(t)
	ctx := context.Background()

	if err := blobs.Put(ctx, "v1.txt", []byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := blobs.Put(ctx, "v2.txt", []byte("new")); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.InsertSources(ctx, []lookup.DataSource{completedSource("v1.txt", "v1.txt", lookup.FileTypeTXT)}); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.InsertSources(ctx, []lookup.DataSource{completedSource("v2.txt", "v2.txt", lookup.FileTypeTXT)}); err != nil {
		t.Fatal(err)
	}

	ref, err := l.Load(ctx, "p1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if ref.Version != 1 || !strings.Contains(ref.Content, "old") || strings.Contains(ref.Content, "new") {
		t.Fatalf("pinned load wrong: version=%d content=%q", ref.Version, ref.Content)
	}

	latest, err := l.Load(ctx, "p1", VersionLatest)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Version != 2 || !strings.Contains(latest.Content, "new") {
		t.Fatalf("latest load wrong: version=%d", latest.Version)
	}
}

func TestLoadFailsOnIncompleteExtraction(t *testing.T) {
	mem, _, l := seed(t)
	ctx := context.Background()

	pending := completedSource("b.pdf", "", lookup.FileTypePDF)
	pending.ExtractionStatus = lookup.ExtractionProcessing
	if _, err := mem.InsertSources(ctx, []lookup.DataSource{
		completedSource("a.txt", "a.txt", lookup.FileTypeTXT),
		pending,
	}); err != nil {
		t.Fatal(err)
	}

	_, err := l.Load(ctx, "p1", VersionLatest)
	var incomplete *lookup.ExtractionNotCompleteError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected ExtractionNotCompleteError, got %v", err)
	}
	if len(incomplete.Files) != 1 || incomplete.Files[0] != "b.pdf" {
		t.Fatalf("offending files = %v", incomplete.Files)
	}
}

func TestLoadTextNativeFallsBackToUploadPath(t *testing.T) {
	mem, blobs, l := seed(t)
	ctx := context.Background()

	if err := blobs.Put(ctx, "raw/data.csv", []byte("x,y\n1,2")); err != nil {
		t.Fatal(err)
	}
	src := lookup.DataSource{
		ProjectID:        "p1",
		FileName:         "data.csv",
		FilePath:         "raw/data.csv",
		FileType:         lookup.FileTypeCSV,
		ExtractionStatus: lookup.ExtractionCompleted,
	}
	if _, err := mem.InsertSources(ctx, []lookup.DataSource{src}); err != nil {
		t.Fatal(err)
	}

	ref, err := l.Load(ctx, "p1", VersionLatest)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ref.Content, "x,y\n1,2") {
		t.Fatalf("content = %q", ref.Content)
	}
}

func TestLoadMissingBlobBecomesPlaceholder(t *testing.T) {
	mem, _, l := seed(t)
	ctx := context.Background()

	if _, err := mem.InsertSources(ctx, []lookup.DataSource{
		completedSource("gone.txt", "missing/path.txt", lookup.FileTypeTXT),
	}); err != nil {
		t.Fatal(err)
	}

	ref, err := l.Load(ctx, "p1", VersionLatest)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ref.Content, "[Error loading file:") {
		t.Fatalf("content = %q", ref.Content)
	}
}

func TestLoadEmptyCorpus(t *testing.T) {
	_, _, l := seed(t)
	ref, err := l.Load(context.Background(), "p1", VersionLatest)
	if err != nil {
		t.Fatal(err)
	}
	if ref.Content != "" || len(ref.Files) != 0 {
		t.Fatalf("empty corpus produced %+v", ref)
	}
}
