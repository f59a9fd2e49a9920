// Package prompt fills a form interactively. Each visible, enabled leaf is
// asked for in tree order; answers are coerced to the field's shape, written
// through Node.OnChange and validated in the field's scope before moving on.
package prompt

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/goliatone/go-formstate/pkg/form"
	"github.com/goliatone/go-formstate/pkg/schema"
	"github.com/goliatone/go-formstate/pkg/state"
)

// Filler walks a form and prompts for its leaves.
type Filler struct {
	driver      PromptDriver
	logger      *zap.Logger
	maxAttempts int
	errorPrefix string
}

// Option configures a Filler.
type Option func(*Filler)

// WithPromptDriver overrides the driver, the survey driver by default.
func WithPromptDriver(driver PromptDriver) Option {
	return func(f *Filler) {
		if driver != nil {
			f.driver = driver
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Filler) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithMaxAttempts bounds how often a field is asked for again after an
// invalid answer. Zero or less asks until the answer is valid.
func WithMaxAttempts(n int) Option {
	return func(f *Filler) {
		f.maxAttempts = n
	}
}

// WithErrorPrefix sets the prefix of messages reporting invalid answers.
func WithErrorPrefix(prefix string) Option {
	return func(f *Filler) {
		f.errorPrefix = prefix
	}
}

// New builds a Filler.
func New(opts ...Option) *Filler {
	f := &Filler{
		logger:      zap.NewNop(),
		errorPrefix: "Invalid",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	if f.driver == nil {
		f.driver = NewSurveyDriver(nil)
	}
	return f
}

// Fill prompts for every visible leaf of frm. Leaves that become visible
// through an earlier answer are asked for as well. Fields still invalid after
// the attempt limit keep their errors on the tree.
func (f *Filler) Fill(ctx context.Context, frm *form.Form) error {
	if frm == nil {
		return ErrNoForm
	}
	asked := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		path, ok := nextLeaf(frm, asked)
		if !ok {
			return nil
		}
		asked[path] = struct{}{}
		n, ok := frm.Lookup(path)
		if !ok || n.Disabled() {
			continue
		}
		if err := f.fillLeaf(ctx, frm, n); err != nil {
			return err
		}
	}
}

func nextLeaf(frm *form.Form, asked map[string]struct{}) (string, bool) {
	for _, path := range frm.VisibleLeaves() {
		if _, done := asked[path]; !done {
			return path, true
		}
	}
	return "", false
}

func (f *Filler) fillLeaf(ctx context.Context, frm *form.Form, n *state.Node) error {
	path := n.Path()
	shape, _ := n.Shape()
	label := path
	if meta, ok := n.Meta(); ok {
		label = meta.DisplayName()
	}

	for attempt := 1; ; attempt++ {
		value, err := f.ask(ctx, n, shape, label, path)
		if err != nil {
			return err
		}
		if err := n.OnChange(value); err != nil {
			return fmt.Errorf("prompt: %s: %w", path, err)
		}
		n.Touch()
		if _, err := frm.ValidatePath(ctx, path); err != nil {
			return fmt.Errorf("prompt: validate %s: %w", path, err)
		}
		errs := n.Errors()
		if len(errs) == 0 {
			return nil
		}
		if err := f.driver.Info(ctx, fmt.Sprintf("%s %s: %s", f.errorPrefix, label, strings.Join(errs, "; "))); err != nil {
			return err
		}
		if f.maxAttempts > 0 && attempt >= f.maxAttempts {
			f.logger.Debug("prompt: giving up on field",
				zap.String("path", path),
				zap.Int("attempts", attempt),
			)
			return nil
		}
	}
}

func (f *Filler) ask(ctx context.Context, n *state.Node, shape schema.Shape, label, path string) (any, error) {
	if shape.Kind == schema.KindBoolean {
		current, _ := n.Value().(bool)
		return f.driver.Confirm(ctx, ConfirmConfig{Message: label, Default: current, Help: path})
	}
	cfg := InputConfig{
		Message:   label,
		Default:   defaultString(n.Value()),
		Help:      path,
		Validator: func(raw string) error { _, err := Coerce(shape, raw); return err },
	}
	for {
		raw, err := f.driver.Input(ctx, cfg)
		if err != nil {
			return nil, err
		}
		value, err := Coerce(shape, raw)
		if err == nil {
			return value, nil
		}
		if err := f.driver.Info(ctx, fmt.Sprintf("%s %s: %v", f.errorPrefix, label, err)); err != nil {
			return nil, err
		}
	}
}

// Coerce converts terminal input to a value of shape. Blank input becomes nil
// for nullable shapes; other strings are returned as typed and left to the
// validation engine.
func Coerce(shape schema.Shape, raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" && (shape.Nullable || shape.Kind == schema.KindNull) {
		return nil, nil
	}
	switch shape.Kind {
	case schema.KindInteger:
		i, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", raw)
		}
		return i, nil
	case schema.KindNumber:
		v, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return v, nil
	case schema.KindBoolean:
		b, err := strconv.ParseBool(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", raw)
		}
		return b, nil
	case schema.KindNull:
		return nil, fmt.Errorf("%q is not null", raw)
	default:
		return raw, nil
	}
}

func defaultString(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}
