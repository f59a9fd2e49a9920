package form

import (
	"sort"
	"strings"

	"github.com/goliatone/go-formstate/pkg/fieldpath"
	"github.com/goliatone/go-formstate/pkg/state"
)

// ApplyErrorPayload attaches server-side messages to nodes. Keys may be JSON
// pointers ("/Addresses/0/StreetAddress1"), dotted paths
// ("data.Addresses.0.StreetAddress1") or paths in the fieldpath grammar;
// wrapper segments such as "data" or "body" are ignored and the deepest
// existing node along the key receives the messages. Messages whose key is
// form level or matches no node are kept as form errors and returned.
func (f *Form) ApplyErrorPayload(payload map[string][]string) []string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var formLevel []string
	for _, raw := range keys {
		messages := normalizeMessages(payload[raw])
		if len(messages) == 0 {
			continue
		}
		node := f.resolvePayloadKey(raw)
		if node == nil {
			formLevel = append(formLevel, messages...)
			continue
		}
		node.SetErrors(normalizeMessages(append(node.Errors(), messages...)))
	}

	formLevel = normalizeMessages(formLevel)
	f.mu.Lock()
	f.formErrors = normalizeMessages(append(f.formErrors, formLevel...))
	f.mu.Unlock()
	return formLevel
}

// ClearFormErrors drops the form-level messages kept from payloads.
func (f *Form) ClearFormErrors() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.formErrors = nil
}

func (f *Form) resolvePayloadKey(raw string) *state.Node {
	if isFormLevelKey(raw) {
		return nil
	}
	segments, err := fieldpath.Parse(fieldpath.Normalize(raw))
	if err != nil {
		return nil
	}
	var best *state.Node
	bestDepth := 0
	for _, variant := range [][]fieldpath.Segment{segments, dropWrapperSegments(segments)} {
		for end := len(variant); end > bestDepth; end-- {
			if node, ok := f.tree.Lookup(fieldpath.Join(variant[:end])); ok {
				best, bestDepth = node, end
				break
			}
		}
	}
	return best
}

func isFormLevelKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "", ".", "/", "#", "$", "form", "base", "__all__", "non_field_errors", "non-field-errors":
		return true
	default:
		return false
	}
}

func dropWrapperSegments(segments []fieldpath.Segment) []fieldpath.Segment {
	out := segments
	for len(out) > 0 && !out[0].IsIndex {
		switch strings.ToLower(out[0].Name) {
		case "$", "body", "request", "payload", "data", "attributes":
			out = out[1:]
			continue
		}
		break
	}
	return out
}

func normalizeMessages(messages []string) []string {
	out := make([]string, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))
	for _, message := range messages {
		trimmed := strings.TrimSpace(message)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
