package resolver

import (
	"errors"
	"strings"
	"testing"
)

func testContext() map[string]any {
	return map[string]any{
		"input_data": map[string]any{
			"vendor": "Slack Technologies",
			"amount": 42.5,
			"count":  float64(3),
			"nested": map[string]any{"country": "US"},
			"items":  []any{"first", "second"},
			"absent": nil,
		},
		"reference_data": "=== File: vendors.csv ===",
	}
}

func TestDetectVariablesDedupedSorted(t *testing.T) {
	tmpl := "{{input_data.vendor}} {{reference_data}} {{input_data.vendor}} {{ input_data.amount }}"
	got := DetectVariables(tmpl)
	want := []string{"input_data.amount", "input_data.vendor", "reference_data"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestResolveScalarsAndWhitespace(t *testing.T) {
	out := Resolve("vendor={{ input_data.vendor }} amount={{input_data.amount}} count={{input_data.count}}", testContext())
	if out != "vendor=Slack Technologies amount=42.5 count=3" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestResolveNestedAndIndexed(t *testing.T) {
	out := Resolve("{{input_data.nested.country}}/{{input_data.items.1}}", testContext())
	if out != "US/second" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestResolveMissingAndNullAreEmpty(t *testing.T) {
	cases := []string{
		"{{input_data.nope}}",
		"{{input_data.items.9}}",
		"{{input_data.items.x}}",
		"{{input_data.vendor.deeper}}",
		"{{input_data.absent}}",
	}
	for _, tmpl := range cases {
		if out := Resolve(tmpl, testContext()); out != "" {
			t.Fatalf("Resolve(%q) = %q, want empty", tmpl, out)
		}
	}
}

func TestResolveNonScalarRendersJSON(t *testing.T) {
	out := Resolve("{{input_data.nested}}", testContext())
	if !strings.Contains(out, `"country": "US"`) {
		t.Fatalf("expected pretty JSON, got %q", out)
	}
}

func TestResolveSinglePassNoRescan(t *testing.T) {
	ctx := map[string]any{
		"input_data":     map[string]any{"a": "{{input_data.b}}", "b": "x"},
		"reference_data": "",
	}
	if out := Resolve("{{input_data.a}}", ctx); out != "{{input_data.b}}" {
		t.Fatalf("resolver re-scanned output: %q", out)
	}
}

func TestResolveIdempotent(t *testing.T) {
	ctx := testContext()
	tmpl := "{{input_data.vendor}} / {{reference_data}} / {{input_data.nested}}"
	once := Resolve(tmpl, ctx)
	twice := Resolve(once, ctx)
	if once != twice {
		t.Fatalf("resolve not idempotent:\nonce:  %q\ntwice: %q", once, twice)
	}
}

func TestValidateSyntax(t *testing.T) {
	if err := ValidateSyntax("{{a}} and {{b.c}}"); err != nil {
		t.Fatalf("valid template rejected: %v", err)
	}
	for _, bad := range []string{"{{a", "a}}", "{{a {{b}} }}"} {
		if err := ValidateSyntax(bad); err == nil {
			t.Fatalf("ValidateSyntax(%q) accepted", bad)
		}
	}
}

func TestValidateReservedKeywords(t *testing.T) {
	for _, bad := range []string{
		"{{_private}}",
		"{{_lookup_metadata}}",
		"{{a=b}}",
		"{{vendor_metadata}}",
	} {
		err := ValidateReservedKeywords(bad)
		if err == nil {
			t.Fatalf("ValidateReservedKeywords(%q) accepted", bad)
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %T", err)
		}
	}
	if err := ValidateReservedKeywords("{{input_data.vendor}}"); err != nil {
		t.Fatalf("valid variable rejected: %v", err)
	}
}

func TestValidateTemplateRequiresReferenceData(t *testing.T) {
	if err := ValidateTemplate("{{input_data.vendor}}"); err == nil {
		t.Fatal("template without reference_data accepted")
	}
	if err := ValidateTemplate("Canonicalize {{input_data.vendor}} using:\n{{reference_data}}"); err != nil {
		t.Fatalf("valid template rejected: %v", err)
	}
}
