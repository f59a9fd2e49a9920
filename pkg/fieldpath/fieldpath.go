// Package fieldpath implements the path grammar shared by the state tree, the
// validation engine and UI code. The root is the empty string; descending into
// a record field appends ".Name" and descending into an array element appends
// "[i]" (zero based), so the second address street reads
// ".Addresses[1].StreetAddress1".
package fieldpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Root is the path of the top-level model.
const Root = ""

// ErrInvalidPath reports a path that does not follow the grammar.
var ErrInvalidPath = errors.New("fieldpath: invalid path")

// Segment is one step of a path: either a field name or an array index.
type Segment struct {
	Name    string
	Index   int
	IsIndex bool
}

func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return "." + s.Name
}

// Field appends a field descent to base.
func Field(base, name string) string {
	return base + "." + name
}

// Index appends an array element descent to base.
func Index(base string, idx int) string {
	return base + "[" + strconv.Itoa(idx) + "]"
}

// Parse splits a path into segments.
func Parse(path string) ([]Segment, error) {
	if path == Root {
		return nil, nil
	}
	var out []Segment
	i := 0
	for i < len(path) {
		switch path[i] {
		case '.':
			start := i + 1
			end := start
			for end < len(path) && path[end] != '.' && path[end] != '[' {
				end++
			}
			if end == start {
				return nil, fmt.Errorf("%w: empty field name at offset %d in %q", ErrInvalidPath, i, path)
			}
			out = append(out, Segment{Name: path[start:end]})
			i = end
		case '[':
			closing := strings.IndexByte(path[i:], ']')
			if closing < 0 {
				return nil, fmt.Errorf("%w: unterminated index in %q", ErrInvalidPath, path)
			}
			raw := path[i+1 : i+closing]
			idx, err := strconv.Atoi(raw)
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("%w: bad index %q in %q", ErrInvalidPath, raw, path)
			}
			out = append(out, Segment{Index: idx, IsIndex: true})
			i += closing + 1
		default:
			return nil, fmt.Errorf("%w: unexpected %q at offset %d in %q", ErrInvalidPath, path[i], i, path)
		}
	}
	return out, nil
}

// MustParse is Parse that panics, for fixtures and constants.
func MustParse(path string) []Segment {
	segs, err := Parse(path)
	if err != nil {
		panic(err)
	}
	return segs
}

// Join renders segments back into a path string.
func Join(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.String())
	}
	return b.String()
}

// IsAncestorOrSelf reports whether ancestor addresses path itself or one of
// its parents. The check is segment aware: ".Address" is not an ancestor of
// ".AddressLine".
func IsAncestorOrSelf(ancestor, path string) bool {
	if ancestor == path || ancestor == Root {
		return true
	}
	if !strings.HasPrefix(path, ancestor) {
		return false
	}
	next := path[len(ancestor)]
	return next == '.' || next == '['
}

// InScope reports whether current participates in a run scoped to scope.
// Ancestors of the scope run (their rules may read the changed field) and so
// does everything below the scope.
func InScope(current, scope string) bool {
	return IsAncestorOrSelf(current, scope) || IsAncestorOrSelf(scope, current)
}

// Parent strips the last segment of path. The root is its own parent.
func Parent(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' || path[i] == '[' {
			return path[:i]
		}
	}
	return Root
}
