package validation

import (
	"context"
	"fmt"
	"time"
)

// Model is the record a validator inspects. It is the whole record holding
// the field the validator is registered for, so sibling fields are readable.
type Model = map[string]any

// Validator is a rule over a record. It reports a message, nothing, a rule
// failure, or a deferred outcome resolved by the engine.
type Validator func(ctx context.Context, m Model) Outcome

type outcomeKind int

const (
	outcomeValid outcomeKind = iota
	outcomeInvalid
	outcomeFailed
	outcomeDeferred
)

// Outcome is the result of one validator call.
type Outcome struct {
	kind    outcomeKind
	message string
	err     error
	pending <-chan Outcome
}

// Valid reports no error.
func Valid() Outcome { return Outcome{kind: outcomeValid} }

// Invalid reports a message for the field.
func Invalid(message string) Outcome {
	return Outcome{kind: outcomeInvalid, message: message}
}

// Invalidf formats the message like fmt.Sprintf.
func Invalidf(format string, args ...any) Outcome {
	return Invalid(fmt.Sprintf(format, args...))
}

// Check returns Invalid(message) when ok is false.
func Check(ok bool, message string) Outcome {
	if ok {
		return Valid()
	}
	return Invalid(message)
}

// Fail aborts the validation run with err. It stands for a broken rule, not
// for invalid input.
func Fail(err error) Outcome {
	if err == nil {
		return Valid()
	}
	return Outcome{kind: outcomeFailed, err: err}
}

// Pending defers to an outcome delivered on ch. A closed channel with no
// value counts as valid.
func Pending(ch <-chan Outcome) Outcome {
	return Outcome{kind: outcomeDeferred, pending: ch}
}

// Defer runs fn on its own goroutine and returns the pending outcome. A panic
// in fn becomes a rule failure.
func Defer(ctx context.Context, fn func(context.Context) Outcome) Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		defer close(ch)
		defer func() {
			if r := recover(); r != nil {
				ch <- Fail(fmt.Errorf("validation: deferred validator panicked: %v", r))
			}
		}()
		ch <- fn(ctx)
	}()
	return Pending(ch)
}

// Await resolves deferred outcomes. invalid is true when a message was
// reported; err is set for rule failures and for ctx ending first.
func (o Outcome) Await(ctx context.Context) (message string, invalid bool, err error) {
	for {
		switch o.kind {
		case outcomeValid:
			return "", false, nil
		case outcomeInvalid:
			return o.message, true, nil
		case outcomeFailed:
			return "", false, o.err
		case outcomeDeferred:
			select {
			case <-ctx.Done():
				return "", false, ctx.Err()
			case next, ok := <-o.pending:
				if !ok {
					return "", false, nil
				}
				o = next
			}
		default:
			return "", false, fmt.Errorf("validation: unknown outcome kind %d", o.kind)
		}
	}
}

// Timeout bounds a validator with d. When the deadline passes before the
// validator resolves, the run fails with context.DeadlineExceeded.
func Timeout(d time.Duration, v Validator) Validator {
	return func(ctx context.Context, m Model) Outcome {
		return Defer(ctx, func(ctx context.Context) Outcome {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			msg, invalid, err := v(tctx, m).Await(tctx)
			switch {
			case err != nil:
				return Fail(err)
			case invalid:
				return Invalid(msg)
			default:
				return Valid()
			}
		})
	}
}
