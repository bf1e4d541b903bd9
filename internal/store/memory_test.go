package store

import (
	"context"
	"errors"
	"testing"

	"lookupcore/internal/lookup"
)

func TestInsertSourcesBumpsVersion(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first, err := m.InsertSources(ctx, []lookup.DataSource{
		{ProjectID: "p1", FileName: "a.csv", FileType: lookup.FileTypeCSV},
		{ProjectID: "p1", FileName: "b.csv", FileType: lookup.FileTypeCSV},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range first {
		if d.VersionNumber != 1 || !d.IsLatest {
			t.Fatalf("first batch: version=%d latest=%v", d.VersionNumber, d.IsLatest)
		}
	}

	second, err := m.InsertSources(ctx, []lookup.DataSource{
		{ProjectID: "p1", FileName: "c.csv", FileType: lookup.FileTypeCSV},
	})
	if err != nil {
		t.Fatal(err)
	}
	if second[0].VersionNumber != 2 {
		t.Fatalf("second batch version = %d", second[0].VersionNumber)
	}

	latest, err := m.LatestSources(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 1 || latest[0].FileName != "c.csv" {
		t.Fatalf("latest = %+v", latest)
	}

	pinned, err := m.SourcesAtVersion(ctx, "p1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(pinned) != 2 {
		t.Fatalf("version 1 has %d sources", len(pinned))
	}
	if pinned[0].IsLatest || pinned[1].IsLatest {
		t.Fatal("superseded sources still marked latest")
	}
}

func TestInsertSourcesRejectsMixedProjects(t *testing.T) {
	m := NewMemory()
	_, err := m.InsertSources(context.Background(), []lookup.DataSource{
		{ProjectID: "p1", FileName: "a.csv", FileType: lookup.FileTypeCSV},
		{ProjectID: "p2", FileName: "b.csv", FileType: lookup.FileTypeCSV},
	})
	if err == nil {
		t.Fatal("expected mixed-project batch to fail")
	}
}

func TestPutTemplateSingleActive(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.PutTemplate(ctx, lookup.PromptTemplate{ID: "t1", ProjectID: "p1", TemplateText: "old {{reference_data}}", Active: true}); err != nil {
		t.Fatal(err)
	}
	if err := m.PutTemplate(ctx, lookup.PromptTemplate{ID: "t2", ProjectID: "p1", TemplateText: "new {{reference_data}}", Active: true}); err != nil {
		t.Fatal(err)
	}

	got, err := m.ActiveTemplate(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "t2" {
		t.Fatalf("active template = %s, want t2", got.ID)
	}
}

func TestPutProfileSingleDefault(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	p := lookup.Profile{ID: "pr1", ProjectID: "p1", ProfileName: "a", SimilarityTopK: 3, IsDefault: true}
	if err := m.PutProfile(ctx, p); err != nil {
		t.Fatal(err)
	}
	p2 := lookup.Profile{ID: "pr2", ProjectID: "p1", ProfileName: "b", SimilarityTopK: 3, IsDefault: true}
	if err := m.PutProfile(ctx, p2); err != nil {
		t.Fatal(err)
	}

	got, err := m.DefaultProfile(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "pr2" {
		t.Fatalf("default profile = %s, want pr2", got.ID)
	}
}

func TestPutProfileValidates(t *testing.T) {
	m := NewMemory()
	err := m.PutProfile(context.Background(), lookup.Profile{ProjectID: "p1", SimilarityTopK: 0})
	if err == nil {
		t.Fatal("expected validation error for similarity_top_k < 1")
	}
}

func TestCreateLinkAssignsOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	l1, err := m.CreateLink(ctx, lookup.PromptStudioLink{PSProjectID: "ps1", LookupProjectID: "p1", ExecutionOrder: OrderUnset})
	if err != nil {
		t.Fatal(err)
	}
	if l1.ExecutionOrder != 0 {
		t.Fatalf("first link order = %d", l1.ExecutionOrder)
	}

	if _, err := m.CreateLink(ctx, lookup.PromptStudioLink{PSProjectID: "ps1", LookupProjectID: "p2", ExecutionOrder: 5}); err != nil {
		t.Fatal(err)
	}
	l3, err := m.CreateLink(ctx, lookup.PromptStudioLink{PSProjectID: "ps1", LookupProjectID: "p3", ExecutionOrder: OrderUnset})
	if err != nil {
		t.Fatal(err)
	}
	if l3.ExecutionOrder != 6 {
		t.Fatalf("assigned order = %d, want max+1 = 6", l3.ExecutionOrder)
	}

	_, err = m.CreateLink(ctx, lookup.PromptStudioLink{PSProjectID: "ps1", LookupProjectID: "p1", ExecutionOrder: 9})
	if !errors.Is(err, ErrDuplicateLink) {
		t.Fatalf("duplicate link error = %v", err)
	}

	links, err := m.LinksForPS(ctx, "ps1")
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 3 || links[0].LookupProjectID != "p1" || links[2].LookupProjectID != "p3" {
		t.Fatalf("links out of order: %+v", links)
	}
}

func TestRemoveProjectRefusesWhileLinked(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	stores := m.Stores()

	if err := m.PutProject(ctx, lookup.Project{ID: "p1", Name: "linked"}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateLink(ctx, lookup.PromptStudioLink{PSProjectID: "ps1", LookupProjectID: "p1", ExecutionOrder: 0}); err != nil {
		t.Fatal(err)
	}

	err := RemoveProject(ctx, stores, "p1")
	var linked *lookup.ProjectLinkedError
	if !errors.As(err, &linked) {
		t.Fatalf("expected ProjectLinkedError, got %v", err)
	}
	if len(linked.PSProjectIDs) != 1 || linked.PSProjectIDs[0] != "ps1" {
		t.Fatalf("linked projects = %v", linked.PSProjectIDs)
	}

	if err := m.DeleteLink(ctx, "ps1", "p1"); err != nil {
		t.Fatal(err)
	}
	if err := RemoveProject(ctx, stores, "p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetProject(ctx, "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("project still present: %v", err)
	}
}

func TestIndexManagerRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	im := lookup.IndexManager{
		ID:              "im1",
		DataSourceID:    "ds1",
		ProfileID:       "pr1",
		RawIndexID:      "raw-1",
		IndexIDsHistory: []string{"idx-a", "idx-b"},
		ExtractionStatus: map[string]lookup.IndexState{
			"fp1": {Extracted: true},
		},
	}
	if err := m.PutIndexManager(ctx, im); err != nil {
		t.Fatal(err)
	}

	got, err := m.GetIndexManager(ctx, "ds1", "pr1")
	if err != nil {
		t.Fatal(err)
	}
	if got.RawIndexID != "raw-1" || len(got.IndexIDsHistory) != 2 {
		t.Fatalf("round trip lost fields: %+v", got)
	}

	deleted, err := m.DeleteIndexManager(ctx, "im1")
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted.IndexIDsHistory) != 2 {
		t.Fatal("deleted row should return history for teardown sweep")
	}
	if _, err := m.GetIndexManager(ctx, "ds1", "pr1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("index manager still present: %v", err)
	}
}
