package state

import (
	"errors"
	"fmt"
)

var (
	// ErrNotArray is returned by array mutations on record or leaf nodes.
	ErrNotArray = errors.New("state: node is not an array")
	// ErrNotLeaf is returned when OnChange targets a record or array node.
	ErrNotLeaf = errors.New("state: node is not a leaf")
	// ErrIndexOutOfRange is returned by RemoveAt for indexes past the end.
	ErrIndexOutOfRange = errors.New("state: index out of range")
)

// DerivationError reports a value that is neither a scalar, an array nor a
// keyed record. It is returned by Derive, by ToModel when a leaf was changed
// to such a value, and by OnChange before the value is stored.
type DerivationError struct {
	Path  string
	Value any
}

func (e *DerivationError) Error() string {
	path := e.Path
	if path == "" {
		path = "<root>"
	}
	return fmt.Sprintf("state: cannot represent %T at %s", e.Value, path)
}
