package state

import (
	"fmt"

	"github.com/goliatone/go-formstate/pkg/fieldpath"
)

// OnChange stores a new leaf value, marks the node dirty and notifies the
// tree's subscribers with the node. It returns once every subscriber has run,
// except when called from a subscriber: the change is then queued and
// delivered after the running subscriber returns.
func (n *Node) OnChange(v any) error {
	if n.kind != KindLeaf {
		return fmt.Errorf("%w: %s", ErrNotLeaf, n.Path())
	}
	if !representable(v) {
		return &DerivationError{Path: n.Path(), Value: v}
	}
	n.tree.mu.Lock()
	old := n.value
	n.value = v
	n.dirty = true
	n.tree.mu.Unlock()

	n.tree.notify(change{node: n, old: old, new: v})
	return nil
}

// SetErrors replaces the node's error list. On arrays it sets the container
// errors only.
func (n *Node) SetErrors(errs []string) {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	n.errors = append([]string(nil), errs...)
}

func (n *Node) SetVisibility(visible bool) {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	n.visible = visible
}

func (n *Node) SetDisabled(disabled bool) {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	n.disabled = disabled
}

func (n *Node) SetRequired(required bool) {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	n.required = required
}

// Touch marks the node as visited by the user.
func (n *Node) Touch() {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	n.touched = true
}

// Append derives v as a new last item of an array node and notifies
// subscribers with the array. On typed arrays a nil v appends the zero value
// of the item shape.
func (n *Node) Append(v any) (*Node, error) {
	if n.kind != KindArray {
		return nil, fmt.Errorf("%w: %s", ErrNotArray, n.Path())
	}
	t := n.tree

	t.mu.Lock()
	path := fieldpath.Index(n.path, len(n.items))
	var (
		child *Node
		err   error
	)
	if n.shape != nil && n.shape.Items != nil && t.catalog != nil {
		if v == nil {
			v, err = t.catalog.Zero(*n.shape.Items)
		}
		if err == nil {
			child, err = t.deriveShape(*n.shape.Items, v, path)
		}
	} else {
		child, err = t.derive(v, path)
	}
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}
	n.items = append(n.items, child)
	n.dirty = true
	size := len(n.items)
	t.mu.Unlock()

	t.notify(change{node: n, new: size})
	return child, nil
}

// RemoveAt drops the i-th item of an array node. Following items shift down
// and their paths are rewritten.
func (n *Node) RemoveAt(i int) error {
	if n.kind != KindArray {
		return fmt.Errorf("%w: %s", ErrNotArray, n.Path())
	}
	t := n.tree

	t.mu.Lock()
	if i < 0 || i >= len(n.items) {
		size := len(n.items)
		t.mu.Unlock()
		return fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, size)
	}
	n.items = append(n.items[:i], n.items[i+1:]...)
	for j := i; j < len(n.items); j++ {
		repath(n.items[j], fieldpath.Index(n.path, j))
	}
	n.dirty = true
	size := len(n.items)
	t.mu.Unlock()

	t.notify(change{node: n, new: size})
	return nil
}

func repath(n *Node, path string) {
	n.path = path
	switch n.kind {
	case KindRecord:
		for _, k := range n.keys {
			repath(n.fields[k], fieldpath.Field(path, k))
		}
	case KindArray:
		for i, item := range n.items {
			repath(item, fieldpath.Index(path, i))
		}
	}
}
