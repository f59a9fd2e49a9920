package validation

import (
	"sort"

	json "github.com/goccy/go-json"

	"github.com/goliatone/go-formstate/pkg/fieldpath"
)

// ResultKind mirrors the shape of the validated value.
type ResultKind int

const (
	ResultLeaf ResultKind = iota
	ResultRecord
	ResultArray
)

// Result is the error tree of one validation run. Leaves hold the field's
// messages. Arrays hold container messages in Errors and per-item results in
// Items, index aligned with the data; items skipped by a scoped run are nil.
// Records hold field results in Fields and, when a validator is registered on
// the record-valued field itself, that field's messages in Errors.
//
// A nil Errors slice on a record or array means no rule ran for it, so an
// applier should keep what the node already shows; an empty slice means the
// rules ran and passed.
type Result struct {
	Kind   ResultKind
	Errors []string
	Fields map[string]*Result
	Items  []*Result
}

func newRecordResult() *Result {
	return &Result{Kind: ResultRecord, Fields: make(map[string]*Result)}
}

// Field returns the result of a record field, nil when absent.
func (r *Result) Field(name string) *Result {
	if r == nil || r.Fields == nil {
		return nil
	}
	return r.Fields[name]
}

// Item returns the i-th item result, nil when absent or skipped.
func (r *Result) Item(i int) *Result {
	if r == nil || i < 0 || i >= len(r.Items) {
		return nil
	}
	return r.Items[i]
}

// Lookup resolves a path within the result.
func (r *Result) Lookup(path string) (*Result, bool) {
	segs, err := fieldpath.Parse(path)
	if err != nil {
		return nil, false
	}
	current := r
	for _, seg := range segs {
		if seg.IsIndex {
			current = current.Item(seg.Index)
		} else {
			current = current.Field(seg.Name)
		}
		if current == nil {
			return nil, false
		}
	}
	return current, current != nil
}

// Valid reports whether the tree holds no message at any depth.
func (r *Result) Valid() bool {
	if r == nil {
		return true
	}
	if len(r.Errors) > 0 {
		return false
	}
	for _, f := range r.Fields {
		if !f.Valid() {
			return false
		}
	}
	for _, item := range r.Items {
		if !item.Valid() {
			return false
		}
	}
	return true
}

// Flatten lists the non-empty message lists keyed by path.
func (r *Result) Flatten() map[string][]string {
	out := make(map[string][]string)
	r.flatten(fieldpath.Root, out)
	return out
}

func (r *Result) flatten(path string, out map[string][]string) {
	if r == nil {
		return
	}
	if len(r.Errors) > 0 {
		out[path] = append([]string(nil), r.Errors...)
	}
	for name, f := range r.Fields {
		f.flatten(fieldpath.Field(path, name), out)
	}
	for i, item := range r.Items {
		item.flatten(fieldpath.Index(path, i), out)
	}
}

// Plain converts the result into JSON-friendly data: leaves become message
// lists, records objects keyed by field, and arrays objects with "errors"
// and "items". Record-level messages appear under "errors".
func (r *Result) Plain() any {
	if r == nil {
		return nil
	}
	switch r.Kind {
	case ResultRecord:
		out := make(map[string]any, len(r.Fields)+1)
		names := make([]string, 0, len(r.Fields))
		for name := range r.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out[name] = r.Fields[name].Plain()
		}
		if len(r.Errors) > 0 {
			out["errors"] = append([]string(nil), r.Errors...)
		}
		return out
	case ResultArray:
		items := make([]any, len(r.Items))
		for i, item := range r.Items {
			items[i] = item.Plain()
		}
		return map[string]any{
			"errors": nonNil(r.Errors),
			"items":  items,
		}
	default:
		return nonNil(r.Errors)
	}
}

// MarshalJSON encodes Plain.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Plain())
}

func nonNil(msgs []string) []string {
	return append([]string{}, msgs...)
}

// union returns the messages of base followed by those of extra not already
// present, in a new non-nil slice.
func union(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, m := range list {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}
