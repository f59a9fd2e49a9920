package schema

import (
	"fmt"
	"reflect"
	"sort"
	"time"
)

// Infer derives a catalog from a sample record. Nested records become their
// own types tagged "<Parent>.<Field>", array element shapes come from the
// first element and empty arrays default to string items. Field order follows
// the sorted keys of the sample since Go maps carry no order.
func Infer(tag TypeTag, sample map[string]any) (*Catalog, error) {
	c := NewCatalog()
	if err := infer(c, tag, sample); err != nil {
		return nil, err
	}
	return c, nil
}

func infer(c *Catalog, tag TypeTag, sample map[string]any) error {
	keys := make([]string, 0, len(sample))
	for k := range sample {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := &Type{Tag: tag}
	for _, k := range keys {
		shape, err := inferShape(c, TypeTag(string(tag)+"."+k), sample[k])
		if err != nil {
			return fmt.Errorf("schema: infer %s.%s: %w", tag, k, err)
		}
		if shape == nil {
			continue
		}
		t.Fields = append(t.Fields, Field{Name: k, Shape: *shape})
	}
	return c.Register(t)
}

// inferShape returns nil for values that carry behaviour rather than data.
func inferShape(c *Catalog, nestedTag TypeTag, v any) (*Shape, error) {
	var s Shape
	switch typed := v.(type) {
	case nil:
		s = Scalar(KindString).OrNull()
	case string:
		s = Scalar(KindString)
	case bool:
		s = Scalar(KindBoolean)
	case time.Time:
		s = Scalar(KindDateTime)
	case map[string]any:
		if err := infer(c, nestedTag, typed); err != nil {
			return nil, err
		}
		s = RecordOf(nestedTag)
	case []any:
		items := Scalar(KindString)
		if len(typed) > 0 {
			inner, err := inferShape(c, nestedTag, typed[0])
			if err != nil {
				return nil, err
			}
			if inner != nil {
				items = *inner
			}
		}
		s = ArrayOf(items)
	default:
		if _, ok := asFloat(v); ok {
			s = Scalar(KindNumber)
			break
		}
		if isFunc(v) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot infer a shape for %T", v)
	}
	return &s, nil
}

func isFunc(v any) bool {
	return reflect.ValueOf(v).Kind() == reflect.Func
}
