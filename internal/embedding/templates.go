package embedding

import (
	"sort"
	"strings"
)

// semanticFields lists, for a formation type, the field keys that carry
// embeddable meaning: names, descriptions, phenomenology, context. Keys not
// listed (ids, timestamps, status enums, numeric scalars — the metadata
// fields) are never concatenated into embeddable text regardless of
// whether the formation carries them.
var semanticFields = map[string][]string{
	// n1 (personal) types.
	"Realization":     {"name", "description", "insight", "context"},
	"Personal_Pattern": {"name", "description", "trigger", "felt_as"},
	"Struggle":         {"name", "description", "struggle", "felt_as"},
	"Goal":             {"name", "description", "goal", "mindstate"},
	"Memory":           {"name", "description", "content", "context"},

	// n2 (organizational) types.
	"Principle":     {"name", "description", "rationale"},
	"Process":       {"name", "description", "steps"},
	"Decision":      {"name", "description", "rationale", "context"},
	"Role":          {"name", "description", "responsibilities"},
	"Collaboration": {"name", "description", "context"},

	// n3 (ecosystem) types.
	"Mechanism":  {"name", "description", "how_it_works"},
	"Convention": {"name", "description", "rationale"},
	"Trend":      {"name", "description", "context"},

	// shared types.
	"Concept":  {"name", "description"},
	"Entity":   {"name", "description"},
	"Event":    {"name", "description", "context"},
	"Artifact": {"name", "description"},
}

// defaultSemanticFields is used for any formation type not present in
// semanticFields — it covers the common semantic field names shared across
// the schema's node and link families.
var defaultSemanticFields = []string{
	"name", "description", "summary", "content",
	"phenomenology", "context", "felt_as", "struggle", "goal", "mindstate",
}

// BuildEmbeddableText concatenates the semantic fields for formationType
// out of fields, in template order, skipping absent or empty fields. If the
// result is empty it falls back to description, then name, then a
// stringification of whatever fields are present.
func BuildEmbeddableText(formationType string, fields map[string]string) string {
	keys, ok := semanticFields[formationType]
	if !ok {
		keys = defaultSemanticFields
	}

	var parts []string
	for _, k := range keys {
		if v := strings.TrimSpace(fields[k]); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ". ")
	}

	if v := strings.TrimSpace(fields["description"]); v != "" {
		return v
	}
	if v := strings.TrimSpace(fields["name"]); v != "" {
		return v
	}
	return stringifyFields(fields)
}

// stringifyFields is the last-resort fallback: join all non-empty field
// values in sorted-key order so the result is at least deterministic.
func stringifyFields(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		if v := strings.TrimSpace(fields[k]); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}
