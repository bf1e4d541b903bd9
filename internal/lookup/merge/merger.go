// Package merge folds per-look-up enrichments into one record.
package merge

import (
	"sort"

	"lookupcore/internal/lookup"
)

// Stats counts what a merge did to the record.
type Stats struct {
	FieldsAdded       int `json:"fields_added"`
	ConflictsResolved int `json:"conflicts_resolved"`
}

// Detail is the per-look-up provenance entry reported next to the merged
// record.
type Detail struct {
	ProjectID       string   `json:"project_id"`
	ProjectName     string   `json:"project_name"`
	Status          string   `json:"status"`
	Fields          []string `json:"fields,omitempty"`
	Confidence      *float64 `json:"confidence,omitempty"`
	Cached          bool     `json:"cached"`
	ExecutionTimeMS int64    `json:"execution_time_ms"`
	Error           string   `json:"error,omitempty"`
	ErrorType       string   `json:"error_type,omitempty"`

	// Context-overflow budget numbers, present only on that failure kind.
	TokenCount   int    `json:"token_count,omitempty"`
	ContextLimit int    `json:"context_limit,omitempty"`
	Model        string `json:"model,omitempty"`
}

type claim struct {
	value      any
	confidence *float64
}

// Merge walks the results in input order and assembles the enrichment map.
// The caller is expected to pass successful results sorted by priority, so
// "first wins" ties favor higher-priority look-ups. Conflicting fields
// resolve by confidence first: a strictly higher confidence wins, a scored
// value beats an unscored one, and otherwise the existing value stays.
// Every differing-value conflict counts toward ConflictsResolved; two
// look-ups agreeing on a value do not.
func Merge(results []lookup.Result) (map[string]any, Stats, []Detail) {
	var stats Stats
	merged := make(map[string]any)
	claims := make(map[string]claim)
	details := make([]Detail, 0, len(results))

	for _, res := range results {
		d := Detail{
			ProjectID:       res.ProjectID,
			ProjectName:     res.ProjectName,
			Status:          res.Status,
			Confidence:      res.Confidence,
			Cached:          res.Cached,
			ExecutionTimeMS: res.ExecutionTimeMS,
			Error:           res.Error,
			ErrorType:       res.ErrorType,
			TokenCount:      res.TokenCount,
			ContextLimit:    res.ContextLimit,
			Model:           res.Model,
		}
		if !res.Succeeded() {
			details = append(details, d)
			continue
		}

		fields := make([]string, 0, len(res.Data))
		for k := range res.Data {
			fields = append(fields, k)
		}
		sort.Strings(fields)
		d.Fields = fields
		details = append(details, d)

		next := claim{confidence: res.Confidence}
		for _, k := range fields {
			next.value = res.Data[k]
			prev, contested := claims[k]
			if !contested {
				claims[k] = next
				merged[k] = next.value
				stats.FieldsAdded++
				continue
			}
			// Agreement on the same value is not a conflict.
			if EqualValues(prev.value, next.value) {
				continue
			}
			stats.ConflictsResolved++
			if wins(next, prev) {
				claims[k] = next
				merged[k] = next.value
			}
		}
	}
	return merged, stats, details
}

// wins reports whether the newly arrived claim displaces the existing one.
func wins(next, prev claim) bool {
	switch {
	case next.confidence != nil && prev.confidence != nil:
		return *next.confidence > *prev.confidence
	case next.confidence != nil:
		return true
	default:
		return false
	}
}

// EqualValues compares enrichment values structurally. Payloads come from
// JSON decoding, so the value universe is nil, bool, float64, string, []any,
// and map[string]any.
func EqualValues(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !EqualValues(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, present := bv[k]
			if !present || !EqualValues(v, other) {
				return false
			}
		}
		return true
	}
	return false
}
