package validation

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func messages(t *testing.T, vs []Validator) []string {
	t.Helper()
	var out []string
	for _, v := range vs {
		msg, _, err := v(context.Background(), Model{}).Await(context.Background())
		if err != nil {
			t.Fatalf("await: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

func TestRegistryAppendsInOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register("Person", RuleMap{
		"LastName":  Rules(always("L1")),
		"FirstName": Rules(always("F1"), nil),
	})
	reg.Register("Person", RuleMap{"FirstName": Rules(always("F2"))})
	reg.Register("Person", RuleMap{"Empty": nil})

	got := reg.ValidatorsFor("Person")
	if diff := cmp.Diff([]string{"F1", "F2"}, messages(t, got["FirstName"])); diff != "" {
		t.Fatalf("first name mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"FirstName", "LastName"}, reg.Fields("Person")); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}

	got["FirstName"] = nil
	if len(reg.ValidatorsFor("Person")["FirstName"]) != 2 {
		t.Fatalf("ValidatorsFor must return a copy")
	}
	if len(reg.ValidatorsFor("Unknown")) != 0 {
		t.Fatalf("expected no validators for an unknown tag")
	}
}

func TestDefaultRegistry(t *testing.T) {
	Register("registry_test.Widget", RuleMap{"Name": Rules(always("default"))})
	if Default().Fields("registry_test.Widget")[0] != "Name" {
		t.Fatalf("expected package Register to use the default registry")
	}
	if diff := cmp.Diff([]string{"default"}, messages(t, ValidatorsFor("registry_test.Widget")["Name"])); diff != "" {
		t.Fatalf("default registry mismatch (-want +got):\n%s", diff)
	}
}

func TestOutcomeAwait(t *testing.T) {
	ctx := context.Background()
	closed := make(chan Outcome)
	close(closed)
	cases := []struct {
		name    string
		outcome Outcome
		msg     string
		invalid bool
	}{
		{"valid", Valid(), "", false},
		{"invalid", Invalidf("too %s", "short"), "too short", true},
		{"check ok", Check(true, "x"), "", false},
		{"nil failure", Fail(nil), "", false},
		{"closed pending", Pending(closed), "", false},
		{"deferred", Defer(ctx, func(context.Context) Outcome { return Invalid("later") }), "later", true},
	}
	for _, tc := range cases {
		msg, invalid, err := tc.outcome.Await(ctx)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if msg != tc.msg || invalid != tc.invalid {
			t.Fatalf("%s: expected (%q,%v), got (%q,%v)", tc.name, tc.msg, tc.invalid, msg, invalid)
		}
	}
}
