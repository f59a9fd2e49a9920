package state

import (
	"reflect"
)

// ToModel projects a node back into plain data: records become
// map[string]any holding exactly the derived keys, arrays []any and leaves
// their current value.
func ToModel(n *Node) (any, error) {
	if n == nil {
		return nil, nil
	}
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return project(n)
}

// project assumes the tree lock is held.
func project(n *Node) (any, error) {
	if n == nil {
		return nil, nil
	}
	switch n.kind {
	case KindRecord:
		out := make(map[string]any, len(n.keys))
		for _, k := range n.keys {
			v, err := project(n.fields[k])
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case KindArray:
		out := make([]any, len(n.items))
		for i, item := range n.items {
			v, err := project(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		if !representable(n.value) {
			return nil, &DerivationError{Path: n.path, Value: n.value}
		}
		return n.value, nil
	}
}

// representable reports whether v belongs to the plain model variants.
func representable(v any) bool {
	if isLeaf(v) {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		return rv.IsNil() || representable(rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return false
		}
		iter := rv.MapRange()
		for iter.Next() {
			if elem := iter.Value().Interface(); !isFunc(elem) && !representable(elem) {
				return false
			}
		}
		return true
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if !representable(rv.Index(i).Interface()) {
				return false
			}
		}
		return true
	}
	return false
}
