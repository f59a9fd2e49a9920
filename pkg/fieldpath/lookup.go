package fieldpath

import (
	"strconv"
	"strings"
)

// Get resolves path against a plain model built from map[string]any and []any.
func Get(model any, path string) (any, bool) {
	segs, err := Parse(path)
	if err != nil {
		return nil, false
	}
	current := model
	for _, seg := range segs {
		switch node := current.(type) {
		case map[string]any:
			if seg.IsIndex {
				return nil, false
			}
			next, ok := node[seg.Name]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			if !seg.IsIndex || seg.Index >= len(node) {
				return nil, false
			}
			current = node[seg.Index]
		default:
			return nil, false
		}
	}
	return current, true
}

// Normalize converts foreign path notations into the grammar of this package.
// It accepts JSON pointers ("/Addresses/1/City", "#/Addresses/1"), dotted
// paths without the leading dot ("Addresses.1.City") and paths that already
// follow the grammar. Purely numeric segments become indexes.
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Root
	}
	if _, err := Parse(trimmed); err == nil && (trimmed[0] == '.' || trimmed[0] == '[') {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "#")
	replacer := strings.NewReplacer("[", ".", "]", "")
	trimmed = replacer.Replace(trimmed)

	parts := strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == '.' || r == '/'
	})
	var b strings.Builder
	for _, part := range parts {
		part = strings.ReplaceAll(part, "~1", "/")
		part = strings.ReplaceAll(part, "~0", "~")
		if idx, err := strconv.Atoi(part); err == nil && idx >= 0 {
			b.WriteString(Index("", idx))
			continue
		}
		b.WriteString(Field("", part))
	}
	return b.String()
}
