package schema

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrUnknownType is returned when a tag is not present in the catalog.
var ErrUnknownType = errors.New("schema: unknown type")

// Catalog stores record types by tag. It is safe for concurrent use; types
// are expected to be registered during setup and read afterwards.
type Catalog struct {
	mu    sync.RWMutex
	types map[TypeTag]*Type
	order []TypeTag
}

// NewCatalog returns a catalog seeded with the supplied types.
func NewCatalog(types ...*Type) *Catalog {
	c := &Catalog{types: make(map[TypeTag]*Type)}
	for _, t := range types {
		c.MustRegister(t)
	}
	return c
}

// Register adds a type. Registering the same tag twice is an error.
func (c *Catalog) Register(t *Type) error {
	if t == nil {
		return errors.New("schema: type is required")
	}
	if t.Tag == "" {
		return errors.New("schema: type tag is required")
	}
	seen := make(map[string]struct{}, len(t.Fields))
	for _, f := range t.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema: type %q has a field without a name", t.Tag)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema: type %q declares field %q twice", t.Tag, f.Name)
		}
		seen[f.Name] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.types == nil {
		c.types = make(map[TypeTag]*Type)
	}
	if _, exists := c.types[t.Tag]; exists {
		return fmt.Errorf("schema: type %q already registered", t.Tag)
	}
	c.types[t.Tag] = t
	c.order = append(c.order, t.Tag)
	return nil
}

// MustRegister panics on registration failure. Useful for init-time wiring.
func (c *Catalog) MustRegister(t *Type) {
	if err := c.Register(t); err != nil {
		panic(err)
	}
}

// Lookup returns the type registered under tag.
func (c *Catalog) Lookup(tag TypeTag) (*Type, error) {
	if c == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownType, tag)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[tag]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownType, tag)
	}
	return t, nil
}

// Tags lists registered tags in registration order.
func (c *Catalog) Tags() []TypeTag {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]TypeTag(nil), c.order...)
}

// Check verifies that every record reference resolves and that arrays declare
// their items.
func (c *Catalog) Check() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tags := make([]string, 0, len(c.types))
	for tag := range c.types {
		tags = append(tags, string(tag))
	}
	sort.Strings(tags)

	var errs []error
	for _, tag := range tags {
		t := c.types[TypeTag(tag)]
		for _, f := range t.Fields {
			if err := c.checkShape(f.Shape); err != nil {
				errs = append(errs, fmt.Errorf("schema: %s.%s: %w", tag, f.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Catalog) checkShape(s Shape) error {
	switch s.Kind {
	case KindRecord:
		if _, ok := c.types[s.Ref]; !ok {
			return fmt.Errorf("%w %q", ErrUnknownType, s.Ref)
		}
	case KindArray:
		if s.Items == nil {
			return errors.New("array shape requires items")
		}
		return c.checkShape(*s.Items)
	case KindString, KindNumber, KindInteger, KindBoolean, KindNull, KindDateTime:
	default:
		return fmt.Errorf("unsupported kind %q", s.Kind)
	}
	return nil
}

// New builds a zero-valued record of the given type: empty strings, zero
// numbers, false, nil for nullable fields, empty arrays and nested zero
// records. Self-referencing records stop at nil.
func (c *Catalog) New(tag TypeTag) (map[string]any, error) {
	return c.newRecord(tag, map[TypeTag]bool{})
}

func (c *Catalog) newRecord(tag TypeTag, visiting map[TypeTag]bool) (map[string]any, error) {
	t, err := c.Lookup(tag)
	if err != nil {
		return nil, err
	}
	visiting[tag] = true
	defer delete(visiting, tag)

	out := make(map[string]any, len(t.Fields))
	for _, f := range t.Fields {
		v, err := c.zero(f.Shape, visiting)
		if err != nil {
			return nil, fmt.Errorf("schema: %s.%s: %w", tag, f.Name, err)
		}
		out[f.Name] = v
	}
	return out, nil
}

// Zero returns the zero value for a shape.
func (c *Catalog) Zero(s Shape) (any, error) {
	return c.zero(s, map[TypeTag]bool{})
}

func (c *Catalog) zero(s Shape, visiting map[TypeTag]bool) (any, error) {
	if s.Nullable {
		return nil, nil
	}
	switch s.Kind {
	case KindString:
		return "", nil
	case KindNumber, KindInteger:
		return float64(0), nil
	case KindBoolean:
		return false, nil
	case KindNull:
		return nil, nil
	case KindDateTime:
		return time.Time{}, nil
	case KindArray:
		return []any{}, nil
	case KindRecord:
		if visiting[s.Ref] {
			return nil, nil
		}
		return c.newRecord(s.Ref, visiting)
	default:
		return nil, fmt.Errorf("unsupported kind %q", s.Kind)
	}
}
