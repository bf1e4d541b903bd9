package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"lookupcore/internal/lookup"
	"lookupcore/internal/lookup/audit"
	"lookupcore/internal/lookup/cache"
	"lookupcore/internal/lookup/executor"
	"lookupcore/internal/lookup/llm"
	"lookupcore/internal/lookup/refdata"
	"lookupcore/internal/storage/blob"
	"lookupcore/internal/store"
)

type stubAdapter struct {
	model    string
	response string
	delay    time.Duration
}

func (a *stubAdapter) Provider() string  { return "stub" }
func (a *stubAdapter) Model() string     { return a.model }
func (a *stubAdapter) ContextLimit() int { return 1 << 20 }
func (a *stubAdapter) CountTokens(context.Context, string) (int, error) {
	return 0, llm.ErrNoTokenizer
}
func (a *stubAdapter) Complete(ctx context.Context, _ string) (string, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return a.response, nil
}

type env struct {
	mem      *store.Memory
	blobs    *blob.MemoryStore
	adapters map[string]*stubAdapter
	exec     *executor.Executor
	projects []lookup.Project
}

func newEnv(t *testing.T, taskTimeout time.Duration) *env {
	t.Helper()
	mem := store.NewMemory()
	e := &env{mem: mem, blobs: blob.NewMemoryStore(), adapters: map[string]*stubAdapter{}}

	disk, err := cache.NewDiskStore(cache.DiskConfig{Root: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	factory := func(_ context.Context, cfg lookup.LLMConfig) (llm.Adapter, error) {
		a, ok := e.adapters[cfg.Model]
		if !ok {
			return nil, fmt.Errorf("no adapter for model %s", cfg.Model)
		}
		return a, nil
	}
	e.exec = executor.New(mem, refdata.NewLoader(mem, e.blobs), cache.New(disk),
		factory, taskTimeout, audit.NewLogger(mem))
	return e
}

// addProject wires a project with one completed reference file and an
// adapter that answers with the given JSON.
func (e *env) addProject(t *testing.T, id, response string, delay time.Duration) lookup.Project {
	t.Helper()
	ctx := context.Background()
	p := lookup.Project{ID: id, Name: id, Active: true}
	if err := e.mem.PutProject(ctx, p); err != nil {
		t.Fatal(err)
	}
	path := id + "/ref.txt"
	if err := e.blobs.Put(ctx, path, []byte("reference for "+id)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.mem.InsertSources(ctx, []lookup.DataSource{{
		ProjectID:            id,
		FileName:             "ref.txt",
		FileType:             lookup.FileTypeTXT,
		ExtractedContentPath: path,
		ExtractionStatus:     lookup.ExtractionCompleted,
	}}); err != nil {
		t.Fatal(err)
	}
	model := "model-" + id
	if err := e.mem.PutTemplate(ctx, lookup.PromptTemplate{
		ProjectID:    id,
		TemplateText: "Record {{vendor}}{{country}}. Ref: {{reference_data}}",
		LLMConfig:    lookup.LLMConfig{Provider: "stub", Model: model},
		Active:       true,
	}); err != nil {
		t.Fatal(err)
	}
	e.adapters[model] = &stubAdapter{model: model, response: response, delay: delay}
	e.projects = append(e.projects, p)
	return p
}

func TestRunPriorityWinsUnscoredTie(t *testing.T) {
	e := newEnv(t, time.Second)
	e.addProject(t, "x", `{"vendor": "Slack"}`, 0)
	e.addProject(t, "y", `{"vendor": "Slack Inc"}`, 0)

	out := New(e.exec, audit.NewLogger(e.mem), Config{}).Run(context.Background(), Request{
		InputData: map[string]any{"vendor": "Slack Technologies"},
		Projects:  e.projects,
	})
	if out.Enrichment["vendor"] != "Slack" {
		t.Fatalf("vendor = %v", out.Enrichment["vendor"])
	}
	if out.Metadata.ConflictsResolved != 1 {
		t.Fatalf("conflicts = %d", out.Metadata.ConflictsResolved)
	}

	records, err := e.mem.ByExecution(context.Background(), out.Metadata.ExecutionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("%d audits, want 2", len(records))
	}
	for _, r := range records {
		if r.Status != audit.StatusSuccess {
			t.Fatalf("audit status = %s", r.Status)
		}
	}
}

func TestRunPartialFailure(t *testing.T) {
	e := newEnv(t, time.Second)
	e.addProject(t, "a", `{"country": "US"}`, 0)
	broken := e.addProject(t, "b", `{}`, 0)
	if _, err := e.mem.InsertSources(context.Background(), []lookup.DataSource{{
		ProjectID:        broken.ID,
		FileName:         "stuck.pdf",
		FileType:         lookup.FileTypePDF,
		ExtractionStatus: lookup.ExtractionProcessing,
	}}); err != nil {
		t.Fatal(err)
	}

	out := New(e.exec, audit.NewLogger(e.mem), Config{}).Run(context.Background(), Request{
		InputData: map[string]any{"vendor": "ACME"},
		Projects:  e.projects,
	})
	if out.Enrichment["country"] != "US" || len(out.Enrichment) != 1 {
		t.Fatalf("enrichment = %v", out.Enrichment)
	}
	m := out.Metadata
	if m.LookupsExecuted != 2 || m.LookupsSuccessful != 1 || m.LookupsFailed != 1 {
		t.Fatalf("metadata = %+v", m)
	}
	if len(m.Enrichments) != 2 {
		t.Fatalf("%d enrichment details", len(m.Enrichments))
	}
	if m.Enrichments[1].ErrorType != lookup.ErrTypeExtractionNotComplete {
		t.Fatalf("failed detail = %+v", m.Enrichments[1])
	}
}

func TestRunFiltersUnchangedFields(t *testing.T) {
	e := newEnv(t, time.Second)
	e.addProject(t, "x", `{"vendor": "ACME", "tier": "gold"}`, 0)

	out := New(e.exec, audit.NewLogger(e.mem), Config{}).Run(context.Background(), Request{
		InputData: map[string]any{"vendor": "ACME"},
		Projects:  e.projects,
	})
	if _, ok := out.Enrichment["vendor"]; ok {
		t.Fatal("unchanged input field leaked into enrichment")
	}
	if out.Enrichment["tier"] != "gold" {
		t.Fatalf("enrichment = %v", out.Enrichment)
	}
}

func TestRunEmptyInput(t *testing.T) {
	e := newEnv(t, time.Second)
	out := New(e.exec, audit.NewLogger(e.mem), Config{}).Run(context.Background(), Request{
		InputData: map[string]any{"vendor": "ACME"},
	})
	if out.Metadata.LookupsExecuted != 0 || len(out.Enrichment) != 0 {
		t.Fatalf("output = %+v", out)
	}
	if out.Metadata.ExecutionID == "" {
		t.Fatal("execution id not assigned")
	}
}

func TestRunTaskTimeout(t *testing.T) {
	e := newEnv(t, 10*time.Second)
	e.addProject(t, "slow", `{"v": 1}`, 2*time.Second)

	cfg := Config{TaskTimeout: 50 * time.Millisecond}
	out := New(e.exec, audit.NewLogger(e.mem), cfg).Run(context.Background(), Request{
		InputData: map[string]any{},
		Projects:  e.projects,
	})
	if out.Metadata.LookupsFailed != 1 {
		t.Fatalf("metadata = %+v", out.Metadata)
	}
	d := out.Metadata.Enrichments[0]
	if d.Error != "Execution timeout" {
		t.Fatalf("error = %q", d.Error)
	}
	if d.ErrorType != lookup.ErrTypeExecutionTimeout {
		t.Fatalf("error_type = %q", d.ErrorType)
	}
	if d.ExecutionTimeMS != 50 {
		t.Fatalf("execution_time_ms = %d, want the timeout", d.ExecutionTimeMS)
	}
}

func TestRunQueueTimeoutAuditsUnstartedTasks(t *testing.T) {
	e := newEnv(t, 10*time.Second)
	e.addProject(t, "first", `{"v": 1}`, 300*time.Millisecond)
	e.addProject(t, "second", `{"v": 2}`, 300*time.Millisecond)

	cfg := Config{MaxWorkers: 1, TaskTimeout: 5 * time.Second, QueueTimeout: 100 * time.Millisecond}
	out := New(e.exec, audit.NewLogger(e.mem), cfg).Run(context.Background(), Request{
		InputData:   map[string]any{},
		Projects:    e.projects,
		ExecutionID: "queue-run",
	})
	if out.Metadata.LookupsFailed != 2 || out.Metadata.LookupsSuccessful != 0 {
		t.Fatalf("metadata = %+v", out.Metadata)
	}
	for _, d := range out.Metadata.Enrichments {
		if d.Error != "Queue timeout" {
			t.Fatalf("error = %q", d.Error)
		}
		if d.ErrorType != lookup.ErrTypeExecutionTimeout {
			t.Fatalf("error_type = %q", d.ErrorType)
		}
	}

	// The unstarted task's failure is audited by the orchestrator; the
	// started one writes its own record when it finishes.
	time.Sleep(500 * time.Millisecond)
	records, err := e.mem.ByExecution(context.Background(), "queue-run")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("%d audits, want 2", len(records))
	}
}

func TestRunCountingInvariant(t *testing.T) {
	e := newEnv(t, time.Second)
	for i := 0; i < 5; i++ {
		e.addProject(t, fmt.Sprintf("p%d", i), fmt.Sprintf(`{"f%d": %d}`, i, i), 0)
	}
	out := New(e.exec, audit.NewLogger(e.mem), Config{MaxWorkers: 2}).Run(context.Background(), Request{
		InputData: map[string]any{},
		Projects:  e.projects,
	})
	m := out.Metadata
	if m.LookupsExecuted != 5 || m.LookupsSuccessful+m.LookupsFailed != m.LookupsExecuted {
		t.Fatalf("metadata = %+v", m)
	}
	if len(out.Enrichment) != 5 {
		t.Fatalf("enrichment = %v", out.Enrichment)
	}
}
