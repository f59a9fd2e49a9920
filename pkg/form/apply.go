package form

import (
	"github.com/goliatone/go-formstate/pkg/state"
	"github.com/goliatone/go-formstate/pkg/validation"
)

// Apply writes a result tree onto the state tree rooted at n, walking both by
// field name and index. Leaves take their message list; records and arrays
// take theirs only when the result carries one. Nodes the result does not
// mention keep their current errors, so scoped runs only touch their scope.
func Apply(res *validation.Result, n *state.Node) {
	apply(res, n, func(*state.Node) bool { return true })
}

// apply writes errors only onto nodes admit accepts. Children are visited
// either way.
func apply(res *validation.Result, n *state.Node, admit func(*state.Node) bool) {
	if res == nil || n == nil {
		return
	}
	switch n.Kind() {
	case state.KindLeaf:
		if admit(n) {
			n.SetErrors(res.Errors)
		}
	case state.KindRecord:
		if res.Errors != nil && admit(n) {
			n.SetErrors(res.Errors)
		}
		for name, child := range res.Fields {
			if node, ok := n.Field(name); ok {
				apply(child, node, admit)
			}
		}
	case state.KindArray:
		if res.Errors != nil && admit(n) {
			n.SetErrors(res.Errors)
		}
		for i, item := range res.Items {
			if item == nil {
				continue
			}
			if node, ok := n.Index(i); ok {
				apply(item, node, admit)
			}
		}
	}
}
