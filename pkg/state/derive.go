package state

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/goliatone/go-formstate/pkg/fieldpath"
	"github.com/goliatone/go-formstate/pkg/schema"
)

// Derive mirrors a plain model into a state tree by inspecting the values
// themselves. Records are map[string]T, arrays are slices, leaves are
// strings, booleans, numbers, time.Time and nil. Function-valued record
// fields are skipped; anything else fails with a *DerivationError.
func Derive(model any, opts ...Option) (*Tree, error) {
	t := newTree(opts)
	root, err := t.derive(model, fieldpath.Root)
	if err != nil {
		return nil, err
	}
	t.root = root
	return t, nil
}

func (t *Tree) derive(v any, path string) (*Node, error) {
	switch typed := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for k := range typed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return t.deriveRecord(keys, func(k string) any { return typed[k] }, path)
	case []any:
		return t.deriveArray(len(typed), func(i int) any { return typed[i] }, path)
	}

	if isLeaf(v) {
		n := newNode(t, KindLeaf, path)
		n.value = v
		return n, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			n := newNode(t, KindLeaf, path)
			return n, nil
		}
		return t.derive(rv.Elem().Interface(), path)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, &DerivationError{Path: path, Value: v}
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return t.deriveRecord(keys, func(k string) any {
			return rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface()
		}, path)
	case reflect.Slice, reflect.Array:
		return t.deriveArray(rv.Len(), func(i int) any { return rv.Index(i).Interface() }, path)
	}
	return nil, &DerivationError{Path: path, Value: v}
}

func (t *Tree) deriveRecord(keys []string, get func(string) any, path string) (*Node, error) {
	n := newNode(t, KindRecord, path)
	n.fields = make(map[string]*Node, len(keys))
	for _, k := range keys {
		v := get(k)
		if isFunc(v) {
			t.logger.Debug("state: skipping function field", zap.String("path", fieldpath.Field(path, k)))
			continue
		}
		child, err := t.derive(v, fieldpath.Field(path, k))
		if err != nil {
			return nil, err
		}
		n.fields[k] = child
		n.keys = append(n.keys, k)
	}
	return n, nil
}

func (t *Tree) deriveArray(length int, get func(int) any, path string) (*Node, error) {
	n := newNode(t, KindArray, path)
	n.items = make([]*Node, 0, length)
	for i := 0; i < length; i++ {
		child, err := t.derive(get(i), fieldpath.Index(path, i))
		if err != nil {
			return nil, err
		}
		n.items = append(n.items, child)
	}
	return n, nil
}

// DeriveTyped derives a tree from the declared fields of tag instead of the
// runtime values. Fields missing from model get the zero value of their
// shape, node flags start from the field metadata, and undeclared keys are
// derived structurally after the declared ones. A value that does not match
// its declared composite shape is kept as a leaf so validation can report it.
func DeriveTyped(cat *schema.Catalog, tag schema.TypeTag, model map[string]any, opts ...Option) (*Tree, error) {
	if cat == nil {
		return nil, fmt.Errorf("state: catalog is required")
	}
	t := newTree(opts)
	t.catalog = cat
	root, err := t.deriveTypedRecord(tag, model, fieldpath.Root)
	if err != nil {
		return nil, err
	}
	t.root = root
	return t, nil
}

func (t *Tree) deriveTypedRecord(tag schema.TypeTag, model map[string]any, path string) (*Node, error) {
	typ, err := t.catalog.Lookup(tag)
	if err != nil {
		return nil, err
	}
	n := newNode(t, KindRecord, path)
	n.tag = tag
	n.fields = make(map[string]*Node, len(typ.Fields))

	for i := range typ.Fields {
		field := &typ.Fields[i]
		v, ok := model[field.Name]
		if !ok {
			if v, err = t.catalog.Zero(field.Shape); err != nil {
				return nil, err
			}
		}
		child, err := t.deriveShape(field.Shape, v, fieldpath.Field(path, field.Name))
		if err != nil {
			return nil, err
		}
		child.meta = field
		child.required = field.Required
		child.disabled = field.Disabled
		child.visible = !field.Hidden
		n.fields[field.Name] = child
		n.keys = append(n.keys, field.Name)
	}

	var extra []string
	for k := range model {
		if _, declared := typ.Field(k); !declared {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		if isFunc(model[k]) {
			continue
		}
		child, err := t.derive(model[k], fieldpath.Field(path, k))
		if err != nil {
			return nil, err
		}
		n.fields[k] = child
		n.keys = append(n.keys, k)
	}
	return n, nil
}

func (t *Tree) deriveShape(shape schema.Shape, v any, path string) (*Node, error) {
	var (
		n   *Node
		err error
	)
	switch {
	case shape.Kind == schema.KindRecord && isRecord(v):
		n, err = t.deriveTypedRecord(shape.Ref, v.(map[string]any), path)
	case shape.Kind == schema.KindArray && shape.Items != nil && isArray(v):
		items := v.([]any)
		n = newNode(t, KindArray, path)
		n.items = make([]*Node, 0, len(items))
		for i, item := range items {
			child, err := t.deriveShape(*shape.Items, item, fieldpath.Index(path, i))
			if err != nil {
				return nil, err
			}
			n.items = append(n.items, child)
		}
	case shape.Kind.IsScalar() || v == nil || isLeaf(v):
		n = newNode(t, KindLeaf, path)
		n.value = v
	default:
		n, err = t.derive(v, path)
	}
	if err != nil {
		return nil, err
	}
	s := shape
	n.shape = &s
	return n, nil
}

// FromStruct converts a Go value, typically a struct with json tags, into
// plain model data by a JSON round trip. Numbers come back as float64.
func FromStruct(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("state: encode %T: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("state: decode %T: %w", v, err)
	}
	return out, nil
}

func isLeaf(v any) bool {
	switch v.(type) {
	case nil, string, bool, time.Time:
		return true
	}
	_, ok := schema.AsFloat(v)
	return ok
}

func isFunc(v any) bool {
	return v != nil && reflect.TypeOf(v).Kind() == reflect.Func
}

func isRecord(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

func isArray(v any) bool {
	_, ok := v.([]any)
	return ok
}
