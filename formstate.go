// Package formstate wires a schema catalog, its declared rules, a validation
// engine and a form controller together. It is the simplest entry point for
// callers that just want a live form over a model.
package formstate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"

	"github.com/goliatone/go-formstate/pkg/form"
	"github.com/goliatone/go-formstate/pkg/rules"
	"github.com/goliatone/go-formstate/pkg/schema"
	"github.com/goliatone/go-formstate/pkg/validation"
)

// Form aliases form.Form for callers importing only the root package.
type Form = form.Form

// Result aliases validation.Result.
type Result = validation.Result

// Catalog aliases schema.Catalog.
type Catalog = schema.Catalog

type config struct {
	registry    *validation.Registry
	logger      *zap.Logger
	concurrency int
	formOptions []form.Option
}

// Option configures New.
type Option func(*config)

// WithRegistry supplies a registry holding hand-written validators. The
// catalog's declared rules are compiled into it after those already present.
func WithRegistry(reg *validation.Registry) Option {
	return func(c *config) {
		if reg != nil {
			c.registry = reg
		}
	}
}

// WithLogger passes a logger to the engine and the form.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithConcurrency bounds how many array items the engine validates at once.
func WithConcurrency(n int) Option {
	return func(c *config) {
		c.concurrency = n
	}
}

// WithFormOptions forwards options to form.New.
func WithFormOptions(opts ...form.Option) Option {
	return func(c *config) {
		c.formOptions = append(c.formOptions, opts...)
	}
}

// New builds a form for model as a record of tag, validated by the rules
// declared in cat plus any registered through WithRegistry.
func New(cat *schema.Catalog, tag schema.TypeTag, model map[string]any, options ...Option) (*form.Form, error) {
	if cat == nil {
		return nil, errors.New("formstate: catalog is required")
	}
	cfg := config{
		registry:    validation.NewRegistry(),
		logger:      zap.NewNop(),
		concurrency: 1,
	}
	for _, opt := range options {
		if opt != nil {
			opt(&cfg)
		}
	}
	if err := rules.RegisterCatalog(cfg.registry, cat); err != nil {
		return nil, fmt.Errorf("formstate: %w", err)
	}
	engine := validation.New(cat,
		validation.WithRegistry(cfg.registry),
		validation.WithLogger(cfg.logger.Named("validation")),
		validation.WithConcurrency(cfg.concurrency),
	)
	opts := append([]form.Option{form.WithLogger(cfg.logger.Named("form"))}, cfg.formOptions...)
	return form.New(engine, cat, tag, model, opts...)
}

// LoadCatalog reads a catalog from fsys. format is "yaml" (also JSON
// catalogs) or "openapi".
func LoadCatalog(ctx context.Context, fsys fs.FS, name, format string) (*schema.Catalog, error) {
	switch format {
	case "", "yaml", "json":
		return schema.LoadFS(fsys, name)
	case "openapi":
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("formstate: read %s: %w", name, err)
		}
		return schema.LoadOpenAPI(ctx, raw)
	default:
		return nil, fmt.Errorf("formstate: unknown schema format %q", format)
	}
}
