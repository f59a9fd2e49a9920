package state

import (
	"github.com/goliatone/go-formstate/pkg/schema"
)

// Kind distinguishes leaves from the two composite node forms.
type Kind int

const (
	KindLeaf Kind = iota
	KindRecord
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindRecord:
		return "record"
	case KindArray:
		return "array"
	default:
		return "leaf"
	}
}

// Node is one input node of a state tree: a scalar field, a record or an
// array container. Its fields are only written through the mutation methods,
// all of which lock the owning tree.
type Node struct {
	tree *Tree
	kind Kind
	path string

	value  any              // leaf
	fields map[string]*Node // record
	keys   []string         // record, in derivation order
	items  []*Node          // array

	errors   []string
	visible  bool
	disabled bool
	dirty    bool
	touched  bool
	required bool

	// Set by typed derivation only.
	meta  *schema.Field
	shape *schema.Shape
	tag   schema.TypeTag
}

func newNode(t *Tree, kind Kind, path string) *Node {
	return &Node{tree: t, kind: kind, path: path, visible: true}
}

// Tree returns the tree the node belongs to.
func (n *Node) Tree() *Tree { return n.tree }

// Kind reports whether the node is a leaf, a record or an array container.
func (n *Node) Kind() Kind { return n.kind }

// Path returns the node's root-relative address.
func (n *Node) Path() string {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.path
}

// Value returns the current scalar for leaves and the projected plain model
// for records and arrays.
func (n *Node) Value() any {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	if n.kind == KindLeaf {
		return n.value
	}
	v, _ := project(n)
	return v
}

// Errors returns a copy of the node's error list. For arrays these are the
// container errors, distinct from the items' own lists.
func (n *Node) Errors() []string {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return append([]string(nil), n.errors...)
}

func (n *Node) Visible() bool {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.visible
}

func (n *Node) Disabled() bool {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.disabled
}

func (n *Node) Dirty() bool {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.dirty
}

func (n *Node) Touched() bool {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.touched
}

func (n *Node) Required() bool {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.required
}

// Meta returns the declared field the node was derived from. Untyped trees
// and array items carry none.
func (n *Node) Meta() (schema.Field, bool) {
	if n.meta == nil {
		return schema.Field{}, false
	}
	return *n.meta, true
}

// Shape returns the declared shape of the node when it was derived from a
// catalog.
func (n *Node) Shape() (schema.Shape, bool) {
	if n.shape == nil {
		return schema.Shape{}, false
	}
	return *n.shape, true
}

// TypeTag returns the record type of a typed record node.
func (n *Node) TypeTag() schema.TypeTag { return n.tag }

// Field returns the child of a record node.
func (n *Node) Field(name string) (*Node, bool) {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	child, ok := n.fields[name]
	return child, ok
}

// Keys lists the field names of a record node in derivation order.
func (n *Node) Keys() []string {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return append([]string(nil), n.keys...)
}

// Index returns the i-th item of an array node.
func (n *Node) Index(i int) (*Node, bool) {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	if i < 0 || i >= len(n.items) {
		return nil, false
	}
	return n.items[i], true
}

// Len returns the number of items of an array node.
func (n *Node) Len() int {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return len(n.items)
}

// Items returns a snapshot of the array's item nodes.
func (n *Node) Items() []*Node {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return append([]*Node(nil), n.items...)
}

// children returns the record fields in key order or the array items.
// Callers hold the tree lock.
func (n *Node) children() []*Node {
	switch n.kind {
	case KindRecord:
		out := make([]*Node, 0, len(n.keys))
		for _, k := range n.keys {
			out = append(out, n.fields[k])
		}
		return out
	case KindArray:
		return append([]*Node(nil), n.items...)
	default:
		return nil
	}
}
