package state

import (
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/goliatone/go-formstate/pkg/fieldpath"
	"github.com/goliatone/go-formstate/pkg/schema"
)

// Tree owns a derived node hierarchy together with its change subscribers.
// Node state is guarded by one RWMutex; subscribers are always invoked with
// no lock held so they may read nodes and call mutations freely.
type Tree struct {
	mu      sync.RWMutex
	root    *Node
	catalog *schema.Catalog
	logger  *zap.Logger

	subMu       sync.Mutex
	nextID      int
	subscribers []subscriber
	hooks       []hook

	// dispatchMu is held by the goroutine draining the queue. dispatcher,
	// queue and delivered are guarded by subMu.
	dispatchMu sync.Mutex
	dispatcher uint64
	queue      []change
	delivered  map[*Node]*delivery
}

// maxDeliveries bounds how often one node is delivered within a single drain
// so subscribers that keep rewriting each other terminate.
const maxDeliveries = 16

type delivery struct {
	value any
	count int
}

type subscriber struct {
	id int
	fn func(*Node)
}

type hook struct {
	id int
	fn func(n *Node, old, new any)
}

// change carries the old and new value of a leaf, or the new item count of
// an array.
type change struct {
	node     *Node
	old, new any
}

// Option configures derivation.
type Option func(*Tree)

// WithLogger routes derivation and dispatch diagnostics to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tree) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func newTree(opts []Option) *Tree {
	t := &Tree{logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Catalog returns the catalog a typed tree was derived from, nil otherwise.
func (t *Tree) Catalog() *schema.Catalog { return t.catalog }

// Model projects the whole tree back into plain data.
func (t *Tree) Model() (any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return project(t.root)
}

// Lookup resolves a path in the grammar of package fieldpath.
func (t *Tree) Lookup(path string) (*Node, bool) {
	segs, err := fieldpath.Parse(path)
	if err != nil {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	current := t.root
	for _, seg := range segs {
		if current == nil {
			return nil, false
		}
		switch {
		case seg.IsIndex && current.kind == KindArray:
			if seg.Index < 0 || seg.Index >= len(current.items) {
				return nil, false
			}
			current = current.items[seg.Index]
		case !seg.IsIndex && current.kind == KindRecord:
			next, ok := current.fields[seg.Name]
			if !ok {
				return nil, false
			}
			current = next
		default:
			return nil, false
		}
	}
	return current, current != nil
}

// Walk visits nodes depth first, parents before children. Returning false
// from fn skips the children of that node.
func (t *Tree) Walk(fn func(*Node) bool) {
	if t.root == nil || fn == nil {
		return
	}
	var visit func(*Node)
	visit = func(n *Node) {
		if !fn(n) {
			return
		}
		t.mu.RLock()
		kids := n.children()
		t.mu.RUnlock()
		for _, child := range kids {
			visit(child)
		}
	}
	visit(t.root)
}

// Subscribe registers fn to receive every node passed to OnChange, Append or
// RemoveAt. The returned function removes the subscription.
func (t *Tree) Subscribe(fn func(*Node)) func() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	t.nextID++
	id := t.nextID
	t.subscribers = append(t.subscribers, subscriber{id: id, fn: fn})
	return func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		for i, s := range t.subscribers {
			if s.id == id {
				t.subscribers = append(t.subscribers[:i], t.subscribers[i+1:]...)
				return
			}
		}
	}
}

// OnDidChange registers fn to receive the previous and new value of every
// changed leaf. Hooks run before subscribers.
func (t *Tree) OnDidChange(fn func(n *Node, old, new any)) func() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	t.nextID++
	id := t.nextID
	t.hooks = append(t.hooks, hook{id: id, fn: fn})
	return func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		for i, h := range t.hooks {
			if h.id == id {
				t.hooks = append(t.hooks[:i], t.hooks[i+1:]...)
				return
			}
		}
	}
}

// notify delivers a change. A change raised by a subscriber is queued and
// drained by the outer call, so subscribers never nest. A queued change is
// skipped when it carries the value already delivered for its node in the
// current drain. Changes raised on other goroutines wait for the running
// drain and are delivered in a drain of their own.
func (t *Tree) notify(c change) {
	gid := goroutineID()
	t.subMu.Lock()
	if t.dispatcher != 0 && t.dispatcher == gid {
		t.queue = append(t.queue, c)
		t.subMu.Unlock()
		return
	}
	t.subMu.Unlock()

	t.dispatchMu.Lock()
	defer t.dispatchMu.Unlock()

	t.subMu.Lock()
	t.dispatcher = gid
	t.delivered = make(map[*Node]*delivery)
	t.queue = append(t.queue[:0], c)
	defer func() {
		t.subMu.Lock()
		t.dispatcher = 0
		t.queue = nil
		t.delivered = nil
		t.subMu.Unlock()
	}()

	for len(t.queue) > 0 {
		next := t.queue[0]
		t.queue = t.queue[1:]
		if !t.admit(next) {
			continue
		}
		hooks := append([]hook(nil), t.hooks...)
		subs := append([]subscriber(nil), t.subscribers...)
		t.subMu.Unlock()

		if next.node.kind == KindLeaf {
			for _, h := range hooks {
				h.fn(next.node, next.old, next.new)
			}
		}
		for _, s := range subs {
			s.fn(next.node)
		}

		t.subMu.Lock()
	}
	t.subMu.Unlock()
}

// admit records a delivery of c and reports whether it should run. It
// assumes subMu is held.
func (t *Tree) admit(c change) bool {
	d, seen := t.delivered[c.node]
	if !seen {
		t.delivered[c.node] = &delivery{value: c.new, count: 1}
		return true
	}
	if reflect.DeepEqual(d.value, c.new) {
		t.logger.Debug("state: value already delivered in this cycle", zap.String("path", c.node.Path()))
		return false
	}
	if d.count >= maxDeliveries {
		t.logger.Warn("state: dropping change, node keeps changing within one cycle",
			zap.String("path", c.node.Path()),
			zap.Int("deliveries", d.count),
		)
		return false
	}
	d.value = c.new
	d.count++
	return true
}
