package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	formstate "github.com/goliatone/go-formstate"
	"github.com/goliatone/go-formstate/pkg/form"
	"github.com/goliatone/go-formstate/pkg/prompt"
	"github.com/goliatone/go-formstate/pkg/schema"
	"github.com/goliatone/go-formstate/pkg/state"
	"github.com/goliatone/go-formstate/pkg/validation"
)

// errInvalid makes the command exit non-zero after printing a result that
// carries messages.
var errInvalid = errors.New("form is invalid")

// env carries the process dependencies so tests can replace them.
type env struct {
	stdin  io.Reader
	logger *zap.Logger
	driver func() prompt.PromptDriver
}

type flags struct {
	schema      string
	format      string
	typeTag     string
	data        string
	path        string
	concurrency int
	attempts    int
}

func newRootCmd(e env) *cobra.Command {
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.stdin == nil {
		e.stdin = strings.NewReader("")
	}
	root := &cobra.Command{
		Use:           "formstate",
		Short:         "formstate - validate, inspect and fill schema-described forms",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(newValidateCmd(e))
	root.AddCommand(newInspectCmd(e))
	root.AddCommand(newFillCmd(e))
	return root
}

func bindCommon(cmd *cobra.Command, f *flags) {
	cmd.Flags().StringVar(&f.schema, "schema", "", "catalog file (YAML/JSON catalog or OpenAPI document)")
	cmd.Flags().StringVar(&f.format, "format", "yaml", "schema format: yaml or openapi")
	cmd.Flags().StringVar(&f.typeTag, "type", "", "record type of the model")
	cmd.Flags().StringVar(&f.data, "data", "", "model file in JSON or YAML, - for stdin")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 1, "array items validated in parallel")
	_ = cmd.MarkFlagRequired("schema")
	_ = cmd.MarkFlagRequired("type")
}

func newValidateCmd(e env) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a model and print the error tree as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			frm, err := buildForm(cmd.Context(), e, f)
			if err != nil {
				return err
			}
			defer frm.Close()

			var res *validation.Result
			if cmd.Flags().Changed("path") {
				res, err = frm.ValidatePath(cmd.Context(), f.path)
			} else {
				res, err = frm.Validate(cmd.Context())
			}
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Valid() {
				return errInvalid
			}
			return nil
		},
	}
	bindCommon(cmd, &f)
	cmd.Flags().StringVar(&f.path, "path", "", "validate only the scope of this path")
	return cmd
}

// nodeView is one line of inspect output.
type nodeView struct {
	Path     string   `json:"path"`
	Kind     string   `json:"kind"`
	Type     string   `json:"type,omitempty"`
	Value    any      `json:"value,omitempty"`
	Visible  bool     `json:"visible"`
	Disabled bool     `json:"disabled,omitempty"`
	Required bool     `json:"required,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

func newInspectCmd(e env) *cobra.Command {
	var (
		f        flags
		validate bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print every node of the derived state tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			frm, err := buildForm(cmd.Context(), e, f)
			if err != nil {
				return err
			}
			defer frm.Close()
			if validate {
				if _, err := frm.Validate(cmd.Context()); err != nil {
					return err
				}
			}

			var views []nodeView
			frm.Tree().Walk(func(n *state.Node) bool {
				view := nodeView{
					Path:     n.Path(),
					Kind:     n.Kind().String(),
					Visible:  n.Visible(),
					Disabled: n.Disabled(),
					Required: n.Required(),
					Errors:   n.Errors(),
				}
				if shape, ok := n.Shape(); ok {
					view.Type = shape.Name()
				}
				if n.Kind() == state.KindLeaf {
					view.Value = n.Value()
				}
				views = append(views, view)
				return true
			})
			return writeJSON(cmd.OutOrStdout(), views)
		},
	}
	bindCommon(cmd, &f)
	cmd.Flags().BoolVar(&validate, "validate", false, "validate before printing so nodes carry their errors")
	return cmd
}

func newFillCmd(e env) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Prompt for every visible field and print the resulting model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			frm, err := buildForm(cmd.Context(), e, f)
			if err != nil {
				return err
			}
			defer frm.Close()

			opts := []prompt.Option{prompt.WithLogger(e.logger), prompt.WithMaxAttempts(f.attempts)}
			if e.driver != nil {
				opts = append(opts, prompt.WithPromptDriver(e.driver()))
			}
			if err := prompt.New(opts...).Fill(cmd.Context(), frm); err != nil {
				return err
			}
			frm.Wait()
			if _, err := frm.Validate(cmd.Context()); err != nil {
				return err
			}

			model, err := frm.Model()
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), model); err != nil {
				return err
			}
			if !frm.Valid() {
				return errInvalid
			}
			return nil
		},
	}
	bindCommon(cmd, &f)
	cmd.Flags().IntVar(&f.attempts, "attempts", 3, "times a field is asked for again after an invalid answer, 0 for no limit")
	return cmd
}

func buildForm(ctx context.Context, e env, f flags) (*form.Form, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	format := strings.ToLower(strings.TrimSpace(f.format))
	cat, err := formstate.LoadCatalog(ctx, os.DirFS(filepath.Dir(f.schema)), filepath.Base(f.schema), format)
	if err != nil {
		return nil, err
	}
	model, err := loadModel(f.data, e.stdin)
	if err != nil {
		return nil, err
	}
	return formstate.New(cat, schema.TypeTag(f.typeTag), model,
		formstate.WithLogger(e.logger),
		formstate.WithConcurrency(f.concurrency),
		formstate.WithFormOptions(form.WithContext(ctx)),
	)
}

// loadModel reads a JSON or YAML object. An empty path yields an empty model
// that derivation fills with zero values.
func loadModel(path string, stdin io.Reader) (map[string]any, error) {
	var (
		raw []byte
		err error
	)
	switch path {
	case "":
		return map[string]any{}, nil
	case "-":
		raw, err = io.ReadAll(stdin)
	default:
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return map[string]any{}, nil
	}

	var model map[string]any
	if err := json.Unmarshal(raw, &model); err == nil {
		return model, nil
	}
	if err := yaml.Unmarshal(raw, &model); err != nil {
		return nil, fmt.Errorf("parse data: invalid JSON or YAML: %w", err)
	}
	if model == nil {
		return nil, errors.New("parse data: top level must be an object")
	}
	return model, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
