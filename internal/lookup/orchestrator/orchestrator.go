// Package orchestrator fans one input record out to its look-up projects
// under a bounded worker pool and merges the enrichments back.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"lookupcore/internal/lookup"
	"lookupcore/internal/lookup/audit"
	"lookupcore/internal/lookup/executor"
	"lookupcore/internal/lookup/merge"
)

// Defaults for the pool and the two timeout layers.
const (
	DefaultMaxWorkers   = 10
	DefaultTaskTimeout  = 30 * time.Second
	DefaultQueueTimeout = 120 * time.Second
)

// Timeout error messages surfaced on failed results.
const (
	errExecutionTimeout = "Execution timeout"
	errQueueTimeout     = "Queue timeout"
)

// Config bounds one orchestrator call.
type Config struct {
	MaxWorkers   int
	TaskTimeout  time.Duration
	QueueTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = DefaultTaskTimeout
	}
	if c.QueueTimeout <= 0 {
		c.QueueTimeout = DefaultQueueTimeout
	}
	return c
}

// Request is one enrichment call: an input record plus the look-up projects
// to run against it, in priority order (lower index wins ties).
type Request struct {
	InputData       map[string]any
	Projects        []lookup.Project
	ExecutionID     string
	FileExecutionID string
	// ReferenceVersion pins every look-up's corpus; zero loads is_latest.
	ReferenceVersion int
	// SkipCache bypasses cache reads for every look-up of this call.
	SkipCache bool
	// TaskTimeout overrides the configured per-task timeout when positive.
	TaskTimeout time.Duration
}

// Metadata describes one orchestrator call next to the merged enrichment.
type Metadata struct {
	ExecutionID          string         `json:"execution_id"`
	ExecutedAt           time.Time      `json:"executed_at"`
	TotalExecutionTimeMS int64          `json:"total_execution_time_ms"`
	LookupsExecuted      int            `json:"lookups_executed"`
	LookupsSuccessful    int            `json:"lookups_successful"`
	LookupsFailed        int            `json:"lookups_failed"`
	ConflictsResolved    int            `json:"conflicts_resolved"`
	Enrichments          []merge.Detail `json:"enrichments"`
}

// Output is the merged enrichment plus its metadata.
type Output struct {
	Enrichment map[string]any `json:"lookup_enrichment"`
	Metadata   Metadata       `json:"_lookup_metadata"`
}

// Orchestrator runs look-ups concurrently and merges their output.
type Orchestrator struct {
	exec   *executor.Executor
	audits *audit.Logger
	cfg    Config
}

func New(exec *executor.Executor, audits *audit.Logger, cfg Config) *Orchestrator {
	return &Orchestrator{exec: exec, audits: audits, cfg: cfg.withDefaults()}
}

type indexed struct {
	i   int
	res lookup.Result
}

// Run executes every look-up of the request and assembles the output. It
// never returns an error: per-look-up failures are folded into the metadata.
func (o *Orchestrator) Run(ctx context.Context, req Request) Output {
	start := time.Now()
	if req.ExecutionID == "" {
		req.ExecutionID = uuid.NewString()
	}
	out := Output{
		Enrichment: map[string]any{},
		Metadata: Metadata{
			ExecutionID: req.ExecutionID,
			ExecutedAt:  start.UTC(),
			Enrichments: []merge.Detail{},
		},
	}
	if len(req.Projects) == 0 {
		return out
	}

	qctx, cancel := context.WithTimeout(ctx, o.cfg.QueueTimeout)
	defer cancel()

	taskTimeout := o.cfg.TaskTimeout
	if req.TaskTimeout > 0 {
		taskTimeout = req.TaskTimeout
	}

	sem := semaphore.NewWeighted(int64(o.cfg.MaxWorkers))
	ch := make(chan indexed, len(req.Projects))
	for i, p := range req.Projects {
		go func(i int, p lookup.Project) {
			if err := sem.Acquire(qctx, 1); err != nil {
				// Never started: the executor will not audit this one.
				o.auditQueueTimeout(req, p)
				ch <- indexed{i, timeoutResult(p, errQueueTimeout, time.Since(start).Milliseconds())}
				return
			}
			defer sem.Release(1)
			ch <- indexed{i, o.runTask(qctx, taskTimeout, executor.Request{
				Project:          p,
				InputData:        req.InputData,
				ExecutionID:      req.ExecutionID,
				FileExecutionID:  req.FileExecutionID,
				ReferenceVersion: req.ReferenceVersion,
				SkipCache:        req.SkipCache,
			})}
		}(i, p)
	}

	results := make([]*lookup.Result, len(req.Projects))
	remaining := len(req.Projects)
collect:
	for remaining > 0 {
		select {
		case r := <-ch:
			if results[r.i] == nil {
				results[r.i] = &r.res
				remaining--
			}
		case <-qctx.Done():
			break collect
		}
	}
	// Uncollected completions after the queue deadline are discarded.
	elapsed := time.Since(start).Milliseconds()
	for i, p := range req.Projects {
		if results[i] == nil {
			res := timeoutResult(p, errQueueTimeout, elapsed)
			results[i] = &res
		}
	}

	var successful, failed []lookup.Result
	for _, r := range results {
		if r.Succeeded() {
			successful = append(successful, *r)
		} else {
			failed = append(failed, *r)
		}
	}
	// Successful results keep input (priority) order; a look-up must not
	// overwrite input fields it did not change.
	for i := range successful {
		successful[i].Data = changedFields(successful[i].Data, req.InputData)
	}

	merged, stats, details := merge.Merge(append(successful, failed...))
	out.Enrichment = merged
	out.Metadata.TotalExecutionTimeMS = time.Since(start).Milliseconds()
	out.Metadata.LookupsExecuted = len(req.Projects)
	out.Metadata.LookupsSuccessful = len(successful)
	out.Metadata.LookupsFailed = len(failed)
	out.Metadata.ConflictsResolved = stats.ConflictsResolved
	out.Metadata.Enrichments = details

	log.Info().
		Str("execution_id", req.ExecutionID).
		Int("executed", out.Metadata.LookupsExecuted).
		Int("successful", out.Metadata.LookupsSuccessful).
		Int("failed", out.Metadata.LookupsFailed).
		Int64("total_ms", out.Metadata.TotalExecutionTimeMS).
		Msg("look-up run complete")
	return out
}

// runTask runs one executor invocation under the per-task watchdog. On
// expiry the task keeps running and writes its own audit when it finishes;
// its late result is discarded here.
func (o *Orchestrator) runTask(ctx context.Context, timeout time.Duration, req executor.Request) lookup.Result {
	done := make(chan lookup.Result, 1)
	go func() { done <- o.exec.Execute(ctx, req) }()

	watchdog := time.NewTimer(timeout)
	defer watchdog.Stop()
	select {
	case res := <-done:
		return res
	case <-watchdog.C:
		return timeoutResult(req.Project, errExecutionTimeout, timeout.Milliseconds())
	case <-ctx.Done():
		return timeoutResult(req.Project, errQueueTimeout, timeout.Milliseconds())
	}
}

func (o *Orchestrator) auditQueueTimeout(req Request, p lookup.Project) {
	o.audits.Write(context.Background(), audit.Record{
		ExecutionID:     req.ExecutionID,
		FileExecutionID: req.FileExecutionID,
		ProjectID:       p.ID,
		InputData:       req.InputData,
		Status:          audit.StatusFailed,
		ErrorMessage:    errQueueTimeout,
	})
}

func timeoutResult(p lookup.Project, message string, elapsedMS int64) lookup.Result {
	return lookup.Result{
		Status:          lookup.StatusFailed,
		ProjectID:       p.ID,
		ProjectName:     p.Name,
		Error:           message,
		ErrorType:       lookup.ErrTypeExecutionTimeout,
		ExecutionTimeMS: elapsedMS,
	}
}

// changedFields drops fields whose value matches the caller's input record.
func changedFields(data, input map[string]any) map[string]any {
	if len(data) == 0 || len(input) == 0 {
		return data
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if prev, ok := input[k]; ok && merge.EqualValues(v, prev) {
			continue
		}
		out[k] = v
	}
	return out
}
