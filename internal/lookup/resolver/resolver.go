// Package resolver substitutes {{path.to.field}} placeholders in prompt
// templates from a two-root context (input_data, reference_data).
package resolver

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ReferenceDataVar is the placeholder every template must carry.
const ReferenceDataVar = "reference_data"

var (
	// Strict placeholder grammar: dot-separated identifiers or list indices.
	placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)*)\s*\}\}`)
	// Loose capture used by validation so malformed paths are still seen.
	anyPlaceholderRe = regexp.MustCompile(`\{\{\s*(.*?)\s*\}\}`)
)

// ValidationError carries a human-readable template validation message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// DetectVariables returns the deduplicated, sorted set of placeholder paths
// in the template.
func DetectVariables(template string) []string {
	seen := make(map[string]struct{})
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		seen[m[1]] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Resolve replaces every placeholder in a single left-to-right pass. Missing
// or mistyped paths resolve to the empty string; the output is not re-scanned
// for placeholders.
func Resolve(template string, ctx map[string]any) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		path := placeholderRe.FindStringSubmatch(match)[1]
		val, ok := walk(ctx, strings.Split(path, "."))
		if !ok {
			return ""
		}
		return render(val)
	})
}

func walk(root any, segments []string) (any, bool) {
	cur := root
	for _, seg := range segments {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func render(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any, []any:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return ""
		}
		return string(b)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// ValidateSyntax checks for balanced braces and rejects nested placeholders.
func ValidateSyntax(template string) error {
	depth := 0
	for i := 0; i+1 < len(template); i++ {
		switch template[i : i+2] {
		case "{{":
			if depth > 0 {
				return &ValidationError{Message: fmt.Sprintf("nested '{{' at offset %d", i)}
			}
			depth++
			i++
		case "}}":
			if depth == 0 {
				return &ValidationError{Message: fmt.Sprintf("unmatched '}}' at offset %d", i)}
			}
			depth--
			i++
		}
	}
	if depth != 0 {
		return &ValidationError{Message: "unbalanced '{{' in template"}
	}
	return nil
}

// ValidateReservedKeywords rejects paths that collide with the engine's own
// namespaces: a leading underscore (which covers the _lookup_ prefix), an
// embedded '=', or a trailing _metadata segment.
func ValidateReservedKeywords(template string) error {
	for _, m := range anyPlaceholderRe.FindAllStringSubmatch(template, -1) {
		path := m[1]
		if path == "" {
			continue
		}
		if strings.HasPrefix(path, "_") {
			return &ValidationError{Message: fmt.Sprintf("variable %q uses a reserved prefix", path)}
		}
		if strings.Contains(path, "=") {
			return &ValidationError{Message: fmt.Sprintf("variable %q must not contain '='", path)}
		}
		if strings.HasSuffix(path, "_metadata") {
			return &ValidationError{Message: fmt.Sprintf("variable %q uses a reserved suffix", path)}
		}
	}
	return nil
}

// ValidateTemplate runs all template checks and requires the mandatory
// reference_data placeholder.
func ValidateTemplate(template string) error {
	if err := ValidateSyntax(template); err != nil {
		return err
	}
	if err := ValidateReservedKeywords(template); err != nil {
		return err
	}
	for _, v := range DetectVariables(template) {
		if v == ReferenceDataVar {
			return nil
		}
	}
	return &ValidationError{Message: "template must contain the {{reference_data}} placeholder"}
}
