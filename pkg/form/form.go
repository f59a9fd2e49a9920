// Package form ties a state tree to a validation engine: every change to a
// node schedules a validation run scoped to that node's path and the result
// is written back onto the tree.
package form

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/goliatone/go-formstate/pkg/schema"
	"github.com/goliatone/go-formstate/pkg/state"
	"github.com/goliatone/go-formstate/pkg/validation"
	"github.com/goliatone/go-formstate/pkg/visibility"
	"github.com/goliatone/go-formstate/pkg/visibility/expr"
)

// Form is the controller around one typed state tree.
type Form struct {
	engine     *validation.Engine
	catalog    *schema.Catalog
	tag        schema.TypeTag
	tree       *state.Tree
	logger     *zap.Logger
	policy     StalePolicy
	sanitizer  *bluemonday.Policy
	visibility visibility.Evaluator
	extras     map[string]any
	baseCtx    context.Context

	mu          sync.Mutex
	runs        uint64
	formErrors  []string
	runErrorFns []func(error)

	// written maps a node to the sequence number of the run that last set
	// its errors. Guarded by applyMu.
	applyMu     sync.Mutex
	written     map[*state.Node]uint64
	inflight    sync.WaitGroup
	unsubscribe func()
}

// New derives the tree for model as a record of tag and starts listening for
// changes. cat defaults to the engine's catalog.
func New(engine *validation.Engine, cat *schema.Catalog, tag schema.TypeTag, model map[string]any, opts ...Option) (*Form, error) {
	if engine == nil {
		return nil, errors.New("form: engine is required")
	}
	if cat == nil {
		cat = engine.Catalog()
	}
	f := &Form{
		engine:     engine,
		catalog:    cat,
		tag:        tag,
		logger:     zap.NewNop(),
		sanitizer:  bluemonday.StrictPolicy(),
		visibility: expr.New(),
		baseCtx:    context.Background(),
		written:    make(map[*state.Node]uint64),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	tree, err := state.DeriveTyped(cat, tag, model, state.WithLogger(f.logger))
	if err != nil {
		return nil, fmt.Errorf("form: %w", err)
	}
	f.tree = tree
	f.unsubscribe = tree.Subscribe(f.handleChange)
	f.refreshVisibility()
	return f, nil
}

// Tree returns the underlying state tree.
func (f *Form) Tree() *state.Tree { return f.tree }

// Lookup returns the node at path.
func (f *Form) Lookup(path string) (*state.Node, bool) { return f.tree.Lookup(path) }

// Tag returns the record type of the form's root.
func (f *Form) Tag() schema.TypeTag { return f.tag }

// Model projects the current tree into plain data.
func (f *Form) Model() (map[string]any, error) {
	v, err := f.tree.Model()
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("form: root projected to %T", v)
	}
	return m, nil
}

// OnRunError registers fn to receive failures of background runs. Without a
// handler they are logged.
func (f *Form) OnRunError(fn func(error)) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runErrorFns = append(f.runErrorFns, fn)
}

// Validate runs the whole form synchronously and applies the result.
func (f *Form) Validate(ctx context.Context) (*validation.Result, error) {
	return f.validateNow(ctx, nil)
}

// ValidatePath runs synchronously for the scope of path and applies the
// result.
func (f *Form) ValidatePath(ctx context.Context, path string) (*validation.Result, error) {
	return f.validateNow(ctx, []validation.RunOption{validation.WithScope(path)})
}

func (f *Form) validateNow(ctx context.Context, opts []validation.RunOption) (*validation.Result, error) {
	model, err := f.Model()
	if err != nil {
		return nil, err
	}
	seq := f.nextRun()
	res, err := f.engine.Validate(ctx, f.tag, model, opts...)
	if err != nil {
		return nil, err
	}
	f.applyRun(res, seq)
	return res, nil
}

func (f *Form) nextRun() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return f.runs
}

// applyRun writes the result of run seq onto the tree. Under DiscardStale a
// node already written by a newer run keeps its errors.
func (f *Form) applyRun(res *validation.Result, seq uint64) {
	f.applyMu.Lock()
	defer f.applyMu.Unlock()
	skipped := 0
	apply(res, f.tree.Root(), func(n *state.Node) bool {
		if f.policy == DiscardStale && f.written[n] > seq {
			skipped++
			return false
		}
		f.written[n] = seq
		return true
	})
	if skipped > 0 {
		f.logger.Debug("form: kept errors of newer runs",
			zap.Uint64("run", seq),
			zap.Int("nodes", skipped),
		)
	}
}

// Wait blocks until every background run scheduled so far has finished.
func (f *Form) Wait() { f.inflight.Wait() }

// Close stops reacting to changes and waits for in-flight runs.
func (f *Form) Close() {
	if f.unsubscribe != nil {
		f.unsubscribe()
	}
	f.Wait()
}

// Valid reports whether no node and no form-level message carries an error.
// It reflects the last applied runs; call Wait first to include pending ones.
func (f *Form) Valid() bool {
	f.mu.Lock()
	formLevel := len(f.formErrors)
	f.mu.Unlock()
	return formLevel == 0 && len(f.Errors()) == 0
}

// Errors lists the non-empty error lists of all nodes keyed by path.
func (f *Form) Errors() map[string][]string {
	out := make(map[string][]string)
	f.tree.Walk(func(n *state.Node) bool {
		if errs := n.Errors(); len(errs) > 0 {
			out[n.Path()] = errs
		}
		return true
	})
	return out
}

// FormErrors returns messages that could not be attached to a field.
func (f *Form) FormErrors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.formErrors...)
}

func (f *Form) handleChange(n *state.Node) {
	f.sanitize(n)
	f.refreshVisibility()
	f.schedule(n.Path())
}

func (f *Form) sanitize(n *state.Node) {
	if n.Kind() != state.KindLeaf {
		return
	}
	meta, ok := n.Meta()
	if !ok || !meta.Sanitize {
		return
	}
	raw, ok := n.Value().(string)
	if !ok {
		return
	}
	if clean := f.sanitizer.Sanitize(raw); clean != raw {
		// Queued behind the current delivery and delivered with the clean value.
		if err := n.OnChange(clean); err != nil {
			f.logger.Warn("form: sanitize failed", zap.String("path", n.Path()), zap.Error(err))
		}
	}
}

// schedule starts a background run scoped to path over a snapshot of the
// current model.
func (f *Form) schedule(path string) {
	model, err := f.Model()
	if err != nil {
		f.reportRunError(err)
		return
	}

	seq := f.nextRun()

	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()
		res, err := f.engine.Validate(f.baseCtx, f.tag, model, validation.WithScope(path))
		if err != nil {
			f.reportRunError(err)
			return
		}
		f.applyRun(res, seq)
	}()
}

func (f *Form) reportRunError(err error) {
	f.mu.Lock()
	fns := append(([]func(error))(nil), f.runErrorFns...)
	f.mu.Unlock()
	if len(fns) == 0 {
		f.logger.Error("form: validation run failed", zap.Error(err))
		return
	}
	for _, fn := range fns {
		fn(err)
	}
}

// refreshVisibility re-evaluates every VisibleWhen rule against the current
// model. A failing rule leaves the node visible.
func (f *Form) refreshVisibility() {
	model, err := f.tree.Model()
	if err != nil {
		return
	}
	ctx := visibility.Context{Model: model, Extras: f.extras}
	f.tree.Walk(func(n *state.Node) bool {
		meta, ok := n.Meta()
		if !ok || meta.VisibleWhen == "" {
			return true
		}
		visible, err := f.visibility.Eval(n.Path(), meta.VisibleWhen, ctx)
		if err != nil {
			f.logger.Warn("form: visibility rule failed",
				zap.String("path", n.Path()),
				zap.String("rule", meta.VisibleWhen),
				zap.Error(err),
			)
			visible = true
		}
		n.SetVisibility(visible)
		return true
	})
}

// VisibleLeaves lists the paths of leaves whose node and ancestors are all
// visible, in tree order.
func (f *Form) VisibleLeaves() []string {
	var out []string
	f.tree.Walk(func(n *state.Node) bool {
		if !n.Visible() {
			return false
		}
		if n.Kind() == state.KindLeaf {
			out = append(out, n.Path())
		}
		return true
	})
	return out
}

// ErrorPaths returns the sorted paths that currently carry errors.
func (f *Form) ErrorPaths() []string {
	errs := f.Errors()
	out := make([]string, 0, len(errs))
	for p := range errs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
