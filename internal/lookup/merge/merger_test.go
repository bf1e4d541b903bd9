package merge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lookupcore/internal/lookup"
)

func success(projectID string, data map[string]any, confidence *float64) lookup.Result {
	return lookup.Result{
		Status:      lookup.StatusSuccess,
		ProjectID:   projectID,
		ProjectName: projectID,
		Data:        data,
		Confidence:  confidence,
	}
}

func conf(v float64) *float64 { return &v }

func TestMergeFirstWinsOnUnscoredTie(t *testing.T) {
	merged, stats, _ := Merge([]lookup.Result{
		success("x", map[string]any{"vendor": "Slack"}, nil),
		success("y", map[string]any{"vendor": "Slack Inc"}, nil),
	})
	require.Equal(t, "Slack", merged["vendor"])
	require.Equal(t, 1, stats.ConflictsResolved)
}

func TestMergeConfidenceOverridesPriority(t *testing.T) {
	merged, _, _ := Merge([]lookup.Result{
		success("x", map[string]any{"vendor": "Slack"}, conf(0.55)),
		success("y", map[string]any{"vendor": "Slack Technologies, Inc."}, conf(0.93)),
	})
	require.Equal(t, "Slack Technologies, Inc.", merged["vendor"])
}

func TestMergeScoredBeatsUnscored(t *testing.T) {
	merged, _, _ := Merge([]lookup.Result{
		success("x", map[string]any{"tier": "gold"}, nil),
		success("y", map[string]any{"tier": "silver"}, conf(0.0)),
	})
	require.Equal(t, "silver", merged["tier"], "a scored value must beat an unscored one")
}

func TestMergeEqualConfidenceKeepsFirst(t *testing.T) {
	merged, _, _ := Merge([]lookup.Result{
		success("x", map[string]any{"tier": "gold"}, conf(0.8)),
		success("y", map[string]any{"tier": "silver"}, conf(0.8)),
	})
	require.Equal(t, "gold", merged["tier"])
}

func TestMergeAgreementIsNotAConflict(t *testing.T) {
	merged, stats, _ := Merge([]lookup.Result{
		success("x", map[string]any{"country": "US"}, nil),
		success("y", map[string]any{"country": "US"}, conf(0.4)),
	})
	require.Equal(t, "US", merged["country"])
	require.Zero(t, stats.ConflictsResolved)
}

func TestMergeDisjointFieldsUnion(t *testing.T) {
	merged, stats, details := Merge([]lookup.Result{
		success("x", map[string]any{"a": 1.0, "b": 2.0}, nil),
		success("y", map[string]any{"c": 3.0}, nil),
	})
	require.Len(t, merged, 3)
	require.Equal(t, 3, stats.FieldsAdded)
	require.Zero(t, stats.ConflictsResolved)
	require.Len(t, details, 2)
	require.Equal(t, []string{"a", "b"}, details[0].Fields)
}

func TestMergeFailedResultsContributeProvenanceOnly(t *testing.T) {
	failed := lookup.Result{
		Status:    lookup.StatusFailed,
		ProjectID: "y",
		Error:     "extraction not complete for: a.pdf",
		ErrorType: lookup.ErrTypeExtractionNotComplete,
	}
	merged, _, details := Merge([]lookup.Result{
		success("x", map[string]any{"country": "US"}, nil),
		failed,
	})
	require.Equal(t, map[string]any{"country": "US"}, merged)
	require.Len(t, details, 2)
	require.Equal(t, lookup.StatusFailed, details[1].Status)
	require.Equal(t, lookup.ErrTypeExtractionNotComplete, details[1].ErrorType)
	require.Empty(t, details[1].Fields)
}

func TestMergeNestedValueEquality(t *testing.T) {
	a := map[string]any{"address": map[string]any{"city": "Oslo", "zip": "0150"}}
	b := map[string]any{"address": map[string]any{"zip": "0150", "city": "Oslo"}}
	_, stats, _ := Merge([]lookup.Result{
		success("x", a, nil),
		success("y", b, nil),
	})
	require.Zero(t, stats.ConflictsResolved, "structurally equal maps are agreement")
}

func TestEqualValues(t *testing.T) {
	require.True(t, EqualValues(nil, nil))
	require.True(t, EqualValues(1.5, 1.5))
	require.False(t, EqualValues(1.5, "1.5"))
	require.True(t, EqualValues([]any{1.0, "a"}, []any{1.0, "a"}))
	require.False(t, EqualValues([]any{1.0}, []any{1.0, 2.0}))
	require.False(t, EqualValues(map[string]any{"a": 1.0}, map[string]any{"a": 2.0}))
}
