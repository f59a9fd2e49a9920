package validation

import (
	"sort"
	"sync"

	"github.com/goliatone/go-formstate/pkg/schema"
)

// RuleMap assigns validators to field names of one record type.
type RuleMap map[string][]Validator

// Rules is shorthand for building a RuleMap entry.
func Rules(vs ...Validator) []Validator { return vs }

// Registry stores validators per type tag and field. Registering again for
// the same field appends; nothing is ever replaced.
type Registry struct {
	mu      sync.RWMutex
	entries map[schema.TypeTag]map[string][]Validator
	order   map[schema.TypeTag][]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[schema.TypeTag]map[string][]Validator),
		order:   make(map[schema.TypeTag][]string),
	}
}

// Register appends the validators of rules to tag. Fields new to the tag are
// recorded in sorted name order so iteration stays deterministic.
func (r *Registry) Register(tag schema.TypeTag, rules RuleMap) {
	if r == nil || len(rules) == 0 {
		return
	}
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = make(map[schema.TypeTag]map[string][]Validator)
		r.order = make(map[schema.TypeTag][]string)
	}
	fields := r.entries[tag]
	if fields == nil {
		fields = make(map[string][]Validator)
		r.entries[tag] = fields
	}
	for _, name := range names {
		var added []Validator
		for _, v := range rules[name] {
			if v != nil {
				added = append(added, v)
			}
		}
		if len(added) == 0 {
			continue
		}
		if _, seen := fields[name]; !seen {
			r.order[tag] = append(r.order[tag], name)
		}
		fields[name] = append(fields[name], added...)
	}
}

// ValidatorsFor returns a copy of the validators registered for tag.
func (r *Registry) ValidatorsFor(tag schema.TypeTag) RuleMap {
	if r == nil {
		return RuleMap{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(RuleMap, len(r.entries[tag]))
	for name, vs := range r.entries[tag] {
		out[name] = append([]Validator(nil), vs...)
	}
	return out
}

// Fields lists the fields of tag that carry validators, in the order they
// were first registered.
func (r *Registry) Fields(tag schema.TypeTag) []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order[tag]...)
}

// Tags lists the type tags with registered validators.
func (r *Registry) Tags() []schema.TypeTag {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schema.TypeTag, 0, len(r.entries))
	for tag := range r.entries {
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used by engines built without
// WithRegistry.
func Default() *Registry { return defaultRegistry }

// Register appends rules to the process-wide registry. Intended for
// package init or program start.
func Register(tag schema.TypeTag, rules RuleMap) { defaultRegistry.Register(tag, rules) }

// ValidatorsFor reads the process-wide registry.
func ValidatorsFor(tag schema.TypeTag) RuleMap { return defaultRegistry.ValidatorsFor(tag) }
