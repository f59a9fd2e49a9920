package rules

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formstate/pkg/schema"
	"github.com/goliatone/go-formstate/pkg/validation"
)

func message(t *testing.T, v validation.Validator, m validation.Model) string {
	t.Helper()
	msg, _, err := v(context.Background(), m).Await(context.Background())
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	return msg
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		name  string
		v     validation.Validator
		model validation.Model
		want  string
	}{
		{"required nil", Required("Name", ""), validation.Model{}, "Name is required"},
		{"required blank", Required("Name", "fill it"), validation.Model{"Name": "  "}, "fill it"},
		{"required zero number", Required("Age", ""), validation.Model{"Age": 0}, ""},
		{"required empty list", Required("Tags", ""), validation.Model{"Tags": []any{}}, "Tags is required"},
		{"min length", MinLength("Name", 3, ""), validation.Model{"Name": "ab"}, "Name must be at least 3 characters"},
		{"min length empty", MinLength("Name", 3, ""), validation.Model{"Name": ""}, ""},
		{"min length runes", MinLength("Name", 3, ""), validation.Model{"Name": "héé"}, ""},
		{"max length", MaxLength("Name", 8, ""), validation.Model{"Name": "ReallyLongInvalidName"}, "Name must be at most 8 characters"},
		{"min", Min("Age", 18, ""), validation.Model{"Age": 17}, "Age must be at least 18"},
		{"max", Max("Age", 120, ""), validation.Model{"Age": 121.5}, "Age must be at most 120"},
		{"min wrong kind", Min("Age", 18, ""), validation.Model{"Age": "x"}, ""},
		{"pattern", Pattern("Zip", regexp.MustCompile(`^\d{5}$`), ""), validation.Model{"Zip": "12"}, "Zip does not match the required pattern"},
		{"pattern ok", Pattern("Zip", regexp.MustCompile(`^\d{5}$`), ""), validation.Model{"Zip": "12345"}, ""},
		{"min items", MinItems("Addresses", 2, ""), validation.Model{"Addresses": []any{1}}, "Addresses must have at least 2 items"},
		{"at least one", AtLeastOne("Addresses", ""), validation.Model{"Addresses": []any{}}, "Addresses must have at least one item"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := message(t, tc.v, tc.model); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestFromRuleRejectsBadDeclarations(t *testing.T) {
	field := schema.Field{Name: "Name", Shape: schema.Scalar(schema.KindString)}
	for _, rule := range []schema.Rule{
		{Kind: schema.RuleMinLength, Value: "many"},
		{Kind: schema.RuleMax, Value: ""},
		{Kind: schema.RulePattern, Value: "("},
		{Kind: schema.RulePattern},
	} {
		if _, err := FromRule(field, rule); err == nil {
			t.Fatalf("expected %+v to be rejected", rule)
		}
	}
	if _, err := FromRule(field, schema.Rule{Kind: "email"}); !errors.Is(err, ErrUnknownRule) {
		t.Fatalf("expected ErrUnknownRule, got %v", err)
	}
}

func TestRegisterCatalog(t *testing.T) {
	cat := schema.NewCatalog(
		schema.NewType("Address",
			schema.Field{Name: "StreetAddress1", Shape: schema.Scalar(schema.KindString), Label: "Street", Required: true},
		),
		schema.NewType("Person",
			schema.Field{
				Name:  "FirstName",
				Shape: schema.Scalar(schema.KindString),
				Rules: []schema.Rule{{Kind: schema.RuleMaxLength, Value: "8"}},
			},
			schema.Field{
				Name:  "Addresses",
				Shape: schema.ArrayOf(schema.RecordOf("Address")),
				Rules: []schema.Rule{{Kind: schema.RuleMinItems, Value: "1", Message: "must have at least one address"}},
			},
		),
	)
	reg := validation.NewRegistry()
	if err := RegisterCatalog(reg, cat); err != nil {
		t.Fatalf("register: %v", err)
	}

	engine := validation.New(cat, validation.WithRegistry(reg))
	model := validation.Model{"FirstName": "ReallyLongInvalidName", "Addresses": []any{}}
	res, err := engine.Validate(context.Background(), "Person", model)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	want := map[string][]string{
		".FirstName": {"FirstName must be at most 8 characters"},
		".Addresses": {"must have at least one address"},
	}
	if diff := cmp.Diff(want, res.Flatten()); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}

	model = validation.Model{"FirstName": "Ada", "Addresses": []any{validation.Model{"StreetAddress1": ""}}}
	res, err = engine.Validate(context.Background(), "Person", model)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	want = map[string][]string{".Addresses[0].StreetAddress1": {"Street is required"}}
	if diff := cmp.Diff(want, res.Flatten()); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestRegisterCatalogCollectsErrors(t *testing.T) {
	cat := schema.NewCatalog(schema.NewType("Bad",
		schema.Field{Name: "A", Shape: schema.Scalar(schema.KindString), Rules: []schema.Rule{{Kind: "nope"}}},
	))
	if err := RegisterCatalog(validation.NewRegistry(), cat); !errors.Is(err, ErrUnknownRule) {
		t.Fatalf("expected ErrUnknownRule, got %v", err)
	}
}
