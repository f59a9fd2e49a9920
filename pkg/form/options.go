package form

import (
	"context"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/goliatone/go-formstate/pkg/visibility"
)

// StalePolicy decides what happens to a run that finishes after a newer run
// has already written some of the same nodes.
type StalePolicy int

const (
	// DiscardStale keeps, node by node, the errors of the newest run that
	// wrote them. Runs are numbered in the order they are started.
	DiscardStale StalePolicy = iota
	// LastWriteWins applies every run when it completes, so a slow early run
	// may overwrite the errors of a fast later one.
	LastWriteWins
)

func (p StalePolicy) String() string {
	if p == LastWriteWins {
		return "last-write-wins"
	}
	return "discard-stale"
}

// Option configures a Form.
type Option func(*Form)

// WithStalePolicy selects how overlapping background runs are reconciled.
func WithStalePolicy(policy StalePolicy) Option {
	return func(f *Form) {
		f.policy = policy
	}
}

// WithSanitizer sets the policy applied to string input on fields declared
// with Sanitize. bluemonday.StrictPolicy is used when none is given.
func WithSanitizer(policy *bluemonday.Policy) Option {
	return func(f *Form) {
		if policy != nil {
			f.sanitizer = policy
		}
	}
}

// WithLogger attaches a logger for background runs and visibility errors.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Form) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithVisibility overrides the evaluator used for VisibleWhen rules.
func WithVisibility(evaluator visibility.Evaluator) Option {
	return func(f *Form) {
		if evaluator != nil {
			f.visibility = evaluator
		}
	}
}

// WithExtras exposes values to visibility rules under the "extras." prefix.
func WithExtras(extras map[string]any) Option {
	return func(f *Form) {
		f.extras = extras
	}
}

// WithContext sets the context background runs are started with.
func WithContext(ctx context.Context) Option {
	return func(f *Form) {
		if ctx != nil {
			f.baseCtx = ctx
		}
	}
}
