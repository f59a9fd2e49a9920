package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-formstate/pkg/fieldpath"
	"github.com/goliatone/go-formstate/pkg/schema"
)

// RuleError reports a validator that failed instead of producing a message.
// It aborts the run that hit it.
type RuleError struct {
	Tag   schema.TypeTag
	Field string
	Path  string
	Err   error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("validation: rule %s.%s at %q failed: %v", e.Tag, e.Field, e.Path, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// Engine walks records of a catalog and runs the validators registered for
// their types.
type Engine struct {
	catalog     *schema.Catalog
	registry    *Registry
	logger      *zap.Logger
	concurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry selects the registry; the process-wide one is used otherwise.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithLogger attaches a logger for run diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithConcurrency bounds how many array items are validated at once. The
// default of 1 validates items one after another.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New builds an engine over cat.
func New(cat *schema.Catalog, opts ...Option) *Engine {
	e := &Engine{
		catalog:     cat,
		registry:    defaultRegistry,
		logger:      zap.NewNop(),
		concurrency: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Catalog returns the engine's catalog.
func (e *Engine) Catalog() *schema.Catalog { return e.catalog }

// Registry returns the engine's registry.
func (e *Engine) Registry() *Registry { return e.registry }

// RunOption configures one Validate call.
type RunOption func(*run)

// WithScope restricts the run to fields that are ancestors of path or lie
// beneath it. Fields outside the scope are absent from the result.
func WithScope(path string) RunOption {
	return func(r *run) {
		r.scoped = true
		r.scope = path
	}
}

type run struct {
	scoped bool
	scope  string
	root   Model
}

func (r *run) inScope(path string) bool {
	return !r.scoped || fieldpath.InScope(path, r.scope)
}

type rootKey struct{}

// RootModel returns the top-level record of the run a validator is called
// from, for rules that need data outside their own record.
func RootModel(ctx context.Context) (Model, bool) {
	m, ok := ctx.Value(rootKey{}).(Model)
	return m, ok
}

// Validate checks model as a record of type tag. Messages are data in the
// returned tree; a failing rule or ctx ending returns an error and no result.
func (e *Engine) Validate(ctx context.Context, tag schema.TypeTag, model Model, opts ...RunOption) (*Result, error) {
	if e.catalog == nil {
		return nil, errors.New("validation: engine has no catalog")
	}
	r := &run{root: model}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.scoped {
		if _, err := fieldpath.Parse(r.scope); err != nil {
			return nil, err
		}
	}

	started := time.Now()
	ctx = context.WithValue(ctx, rootKey{}, model)
	res, err := e.validateRecord(ctx, r, tag, model, fieldpath.Root)
	if err != nil {
		e.logger.Debug("validation: run aborted",
			zap.String("type", string(tag)),
			zap.String("scope", r.scope),
			zap.Error(err),
		)
		return nil, err
	}
	e.logger.Debug("validation: run finished",
		zap.String("type", string(tag)),
		zap.Bool("scoped", r.scoped),
		zap.String("scope", r.scope),
		zap.Bool("valid", res.Valid()),
		zap.Duration("took", time.Since(started)),
	)
	return res, nil
}

func (e *Engine) validateRecord(ctx context.Context, r *run, tag schema.TypeTag, rec Model, base string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	typ, err := e.catalog.Lookup(tag)
	if err != nil {
		return nil, fmt.Errorf("validation: %w", err)
	}
	res := newRecordResult()

	// Registered rules first so their messages precede decode messages.
	rules := e.registry.ValidatorsFor(tag)
	for _, name := range e.ruleOrder(typ, tag) {
		path := fieldpath.Field(base, name)
		if !r.inScope(path) {
			continue
		}
		msgs, err := e.runValidators(ctx, tag, name, path, rec, rules[name])
		if err != nil {
			return nil, err
		}
		dest := res.Fields[name]
		if dest == nil {
			dest = &Result{Kind: resultKindFor(typ, name)}
			res.Fields[name] = dest
		}
		dest.Errors = append(dest.Errors, msgs...)
		if dest.Errors == nil {
			dest.Errors = []string{}
		}
	}

	for _, f := range typ.Fields {
		path := fieldpath.Field(base, f.Name)
		if !r.inScope(path) {
			continue
		}
		v := rec[f.Name]
		existing := res.Fields[f.Name]

		switch {
		case f.Shape.Kind == schema.KindRecord && isRecord(v):
			inner, err := e.validateRecord(ctx, r, f.Shape.Ref, v.(Model), path)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				inner.Errors = union(existing.Errors, inner.Errors)
			}
			res.Fields[f.Name] = inner

		case f.Shape.Kind == schema.KindArray && f.Shape.Items != nil && isArray(v):
			items, err := e.validateItems(ctx, r, *f.Shape.Items, v.([]any), path)
			if err != nil {
				return nil, err
			}
			if existing == nil {
				existing = &Result{Kind: ResultArray}
				res.Fields[f.Name] = existing
			}
			existing.Items = items

		default:
			if existing == nil {
				existing = &Result{Kind: resultKindFor(typ, f.Name)}
				res.Fields[f.Name] = existing
			}
			if existing.Errors == nil {
				existing.Errors = []string{}
			}
			if err := f.Shape.Decode(v); err != nil {
				existing.Errors = append(existing.Errors, err.Error())
			}
		}
	}
	return res, nil
}

// ruleOrder lists fields with validators: declared fields in declaration
// order, then fields only known to the registry in registration order.
func (e *Engine) ruleOrder(typ *schema.Type, tag schema.TypeTag) []string {
	registered := e.registry.Fields(tag)
	if len(registered) == 0 {
		return nil
	}
	has := make(map[string]bool, len(registered))
	for _, name := range registered {
		has[name] = true
	}
	out := make([]string, 0, len(registered))
	for _, f := range typ.Fields {
		if has[f.Name] {
			out = append(out, f.Name)
			delete(has, f.Name)
		}
	}
	for _, name := range registered {
		if has[name] {
			out = append(out, name)
		}
	}
	return out
}

func (e *Engine) validateItems(ctx context.Context, r *run, shape schema.Shape, items []any, base string) ([]*Result, error) {
	slots := make([]*Result, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, item := range items {
		i, item := i, item
		path := fieldpath.Index(base, i)
		if !r.inScope(path) {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.validateValue(gctx, r, shape, item, path)
			if err != nil {
				return err
			}
			slots[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slots, nil
}

func (e *Engine) validateValue(ctx context.Context, r *run, shape schema.Shape, v any, path string) (*Result, error) {
	switch {
	case shape.Kind == schema.KindRecord && isRecord(v):
		return e.validateRecord(ctx, r, shape.Ref, v.(Model), path)
	case shape.Kind == schema.KindArray && shape.Items != nil && isArray(v):
		items, err := e.validateItems(ctx, r, *shape.Items, v.([]any), path)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: ResultArray, Items: items}, nil
	}
	res := &Result{Kind: kindForShape(shape), Errors: []string{}}
	if err := shape.Decode(v); err != nil {
		res.Errors = append(res.Errors, err.Error())
	}
	return res, nil
}

func (e *Engine) runValidators(ctx context.Context, tag schema.TypeTag, field, path string, rec Model, vs []Validator) ([]string, error) {
	var msgs []string
	for _, v := range vs {
		msg, invalid, err := call(ctx, v, rec).Await(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return nil, ctxErr
			}
			return nil, &RuleError{Tag: tag, Field: field, Path: path, Err: err}
		}
		if invalid {
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}

// call invokes v, turning a panic into a rule failure.
func call(ctx context.Context, v Validator, rec Model) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = Fail(fmt.Errorf("validator panicked: %v", p))
		}
	}()
	return v(ctx, rec)
}

func resultKindFor(typ *schema.Type, name string) ResultKind {
	f, ok := typ.Field(name)
	if !ok {
		return ResultLeaf
	}
	return kindForShape(f.Shape)
}

func kindForShape(s schema.Shape) ResultKind {
	switch s.Kind {
	case schema.KindRecord:
		return ResultRecord
	case schema.KindArray:
		return ResultArray
	default:
		return ResultLeaf
	}
}

func isRecord(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

func isArray(v any) bool {
	_, ok := v.([]any)
	return ok
}
