package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formstate/internal/testsupport"
	"github.com/goliatone/go-formstate/pkg/prompt"
)

type scriptedDriver struct {
	inputs  []string
	confirm []bool
}

func (s *scriptedDriver) Input(_ context.Context, cfg prompt.InputConfig) (string, error) {
	if len(s.inputs) == 0 {
		return "", fmt.Errorf("no input scripted for %s", cfg.Help)
	}
	val := s.inputs[0]
	s.inputs = s.inputs[1:]
	return val, nil
}

func (s *scriptedDriver) Confirm(_ context.Context, cfg prompt.ConfirmConfig) (bool, error) {
	if len(s.confirm) == 0 {
		return false, fmt.Errorf("no confirm scripted for %s", cfg.Help)
	}
	val := s.confirm[0]
	s.confirm = s.confirm[1:]
	return val, nil
}

func (s *scriptedDriver) Info(context.Context, string) error { return nil }

func run(t *testing.T, e env, args ...string) (any, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(e)
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	if out.Len() == 0 {
		return nil, err
	}
	return testsupport.DecodeJSON(t, out.Bytes()), err
}

func schemaFile(t *testing.T) string {
	t.Helper()
	return testsupport.WriteFile(t, "person.yaml", testsupport.PersonSchemaYAML)
}

func TestValidateValidModel(t *testing.T) {
	data := testsupport.WriteFile(t, "person.json", testsupport.MustJSON(t, testsupport.PersonModel()))
	got, err := run(t, env{}, "validate", "--schema", schemaFile(t), "--type", "Person", "--data", data)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	want := map[string]any{
		"FirstName":   []any{},
		"Age":         []any{},
		"HasNickname": []any{},
		"Nickname":    []any{},
		"Addresses": map[string]any{
			"errors": []any{},
			"items": []any{
				map[string]any{"StreetAddress1": []any{}, "StreetAddress2": []any{}},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateInvalidModelExitsWithError(t *testing.T) {
	data := testsupport.WriteFile(t, "person.json", `{"FirstName":"ReallyLongName","Addresses":[]}`)
	got, err := run(t, env{}, "validate", "--schema", schemaFile(t), "--type", "Person", "--data", data)
	if !errors.Is(err, errInvalid) {
		t.Fatalf("expected errInvalid, got %v", err)
	}
	res := got.(map[string]any)
	if diff := cmp.Diff([]any{"FirstName is too long"}, res["FirstName"]); diff != "" {
		t.Fatalf("first name mismatch (-want +got):\n%s", diff)
	}
	addresses := res["Addresses"].(map[string]any)
	if diff := cmp.Diff([]any{"must have at least one address"}, addresses["errors"]); diff != "" {
		t.Fatalf("container mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateScopedPath(t *testing.T) {
	data := testsupport.WriteFile(t, "person.json", `{"FirstName":"ReallyLongName","Addresses":[]}`)
	got, err := run(t, env{}, "validate", "--schema", schemaFile(t), "--type", "Person", "--data", data, "--path", ".FirstName")
	if !errors.Is(err, errInvalid) {
		t.Fatalf("expected errInvalid, got %v", err)
	}
	res := got.(map[string]any)
	if _, ok := res["Addresses"]; ok {
		t.Fatalf("expected Addresses outside the scope, got %v", res)
	}
	if diff := cmp.Diff([]any{"FirstName is too long"}, res["FirstName"]); diff != "" {
		t.Fatalf("first name mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateReadsYAMLFromStdin(t *testing.T) {
	stdin := strings.NewReader("FirstName: Ada\nAddresses:\n  - StreetAddress1: Main\n")
	if _, err := run(t, env{stdin: stdin}, "validate", "--schema", schemaFile(t), "--type", "Person", "--data", "-"); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateOpenAPISchema(t *testing.T) {
	doc := `{
  "openapi": "3.0.3",
  "info": {"title": "people", "version": "1.0.0"},
  "paths": {},
  "components": {"schemas": {"Person": {
    "type": "object",
    "required": ["FirstName"],
    "properties": {"FirstName": {"type": "string"}}
  }}}
}`
	schemaPath := testsupport.WriteFile(t, "openapi.json", doc)
	got, err := run(t, env{}, "validate", "--schema", schemaPath, "--format", "openapi", "--type", "Person")
	if !errors.Is(err, errInvalid) {
		t.Fatalf("expected errInvalid, got %v", err)
	}
	res := got.(map[string]any)
	if diff := cmp.Diff([]any{"FirstName is required"}, res["FirstName"]); diff != "" {
		t.Fatalf("first name mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateRequiresFlags(t *testing.T) {
	if _, err := run(t, env{}, "validate"); err == nil || !strings.Contains(err.Error(), "required flag") {
		t.Fatalf("expected missing flag error, got %v", err)
	}
	if _, err := run(t, env{}, "validate", "--schema", schemaFile(t), "--type", "Person", "--format", "xml"); err == nil {
		t.Fatalf("expected unknown format error")
	}
}

func TestInspectListsNodes(t *testing.T) {
	data := testsupport.WriteFile(t, "person.json", testsupport.MustJSON(t, testsupport.PersonModel()))
	got, err := run(t, env{}, "inspect", "--schema", schemaFile(t), "--type", "Person", "--data", data)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	byPath := make(map[string]map[string]any)
	for _, raw := range got.([]any) {
		view := raw.(map[string]any)
		byPath[view["path"].(string)] = view
	}

	street := byPath[".Addresses[0].StreetAddress1"]
	if street["kind"] != "leaf" || street["type"] != "string" || street["value"] != "1 First" || street["required"] != true {
		t.Fatalf("unexpected street node %v", street)
	}
	if byPath[".Nickname"]["visible"] != false {
		t.Fatalf("expected Nickname hidden, got %v", byPath[".Nickname"])
	}
	if byPath[".Addresses"]["kind"] != "array" || byPath[""]["kind"] != "record" {
		t.Fatalf("unexpected composite kinds: %v %v", byPath[".Addresses"], byPath[""])
	}
}

func TestFillPromptsAndPrintsModel(t *testing.T) {
	data := testsupport.WriteFile(t, "person.yaml", "Addresses:\n  - StreetAddress1: ''\n")
	driver := &scriptedDriver{
		inputs:  []string{"<b>Ada</b>", "36", "Main", ""},
		confirm: []bool{false},
	}
	e := env{driver: func() prompt.PromptDriver { return driver }}
	got, err := run(t, e, "fill", "--schema", schemaFile(t), "--type", "Person", "--data", data)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	want := map[string]any{
		"FirstName":   "Ada",
		"Age":         float64(36),
		"HasNickname": false,
		"Nickname":    "",
		"Addresses": []any{
			map[string]any{"StreetAddress1": "Main", "StreetAddress2": ""},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("model mismatch (-want +got):\n%s", diff)
	}
}

func TestFillReportsInvalidResult(t *testing.T) {
	driver := &scriptedDriver{inputs: []string{"Ada", ""}, confirm: []bool{false}}
	e := env{driver: func() prompt.PromptDriver { return driver }}
	got, err := run(t, e, "fill", "--schema", schemaFile(t), "--type", "Person")
	if !errors.Is(err, errInvalid) {
		t.Fatalf("expected errInvalid for a model without addresses, got %v", err)
	}
	if got.(map[string]any)["FirstName"] != "Ada" {
		t.Fatalf("expected the model to be printed, got %v", got)
	}
}
