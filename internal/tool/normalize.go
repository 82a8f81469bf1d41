package tool

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/orchestrax/workflow-orchestrator/runtime/agent/tools"
)

// tagBlockPattern matches a <key>value</key> pair, the structured
// parameter encoding a model may emit in place of a single positional
// string. DOTALL via (?s) so multi-line values (code blocks, JSON) survive.
var tagBlockPattern = regexp.MustCompile(`(?s)<(\w+)>(.*?)</\w+>`)

// Normalize converts raw model output into a params map per §4.6:
//   - if raw contains no recognizable tag block, it is the positional/string
//     encoding: the whole value is passed through as params["input"].
//   - otherwise each <k>v</k> pair is extracted and each v coerced by
//     trying, in order: JSON array/object, integer, float, boolean, string.
//
// Unknown parameters (not present in schema) are dropped silently (the
// caller is expected to log a warning); missing required parameters are
// reported as issues rather than causing a panic or error return, so
// Call can render them as a single BadArgs tool result.
func Normalize(raw string, schema []Param) (map[string]any, []tools.FieldIssue) {
	matches := tagBlockPattern.FindAllStringSubmatch(raw, -1)

	var params map[string]any
	if len(matches) == 0 {
		params = map[string]any{"input": raw}
	} else {
		params = make(map[string]any, len(matches))
		for _, m := range matches {
			key, value := m[1], m[2]
			params[key] = coerce(value)
		}
	}

	if len(schema) > 0 {
		known := make(map[string]bool, len(schema))
		for _, p := range schema {
			known[p.Name] = true
		}
		for key := range params {
			if !known[key] {
				delete(params, key)
			}
		}
	}

	var issues []tools.FieldIssue
	for _, p := range schema {
		if !p.Required {
			continue
		}
		if _, ok := params[p.Name]; !ok {
			issues = append(issues, tools.FieldIssue{Field: p.Name, Constraint: "missing_field"})
		}
	}
	return params, issues
}

// coerce converts one tag-block value into its normalized Go type, trying
// JSON array/object, integer, float, boolean (case-insensitive true/false),
// and finally falling back to the raw string.
func coerce(v string) any {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return ""
	}

	if (strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) ||
		(strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
	}

	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	if strings.EqualFold(trimmed, "true") {
		return true
	}
	if strings.EqualFold(trimmed, "false") {
		return false
	}
	return v
}
