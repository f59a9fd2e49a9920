// Package visibility decides whether a field is shown, from a rule string
// evaluated against the current model.
package visibility

// Evaluator determines whether the field at fieldPath should be visible.
type Evaluator interface {
	Eval(fieldPath, rule string, ctx Context) (bool, error)
}

// Context carries the inputs of an evaluation. Model is the plain data the
// form projects from its state tree; Extras lets callers inject values such
// as user roles or feature flags.
type Context struct {
	Model  any
	Extras map[string]any
}

// EvaluatorFunc adapts a function into an Evaluator.
type EvaluatorFunc func(fieldPath, rule string, ctx Context) (bool, error)

// Eval delegates to the underlying function.
func (fn EvaluatorFunc) Eval(fieldPath, rule string, ctx Context) (bool, error) {
	return fn(fieldPath, rule, ctx)
}
