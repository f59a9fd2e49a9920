package expr

import (
	"testing"

	"github.com/goliatone/go-formstate/pkg/visibility"
)

func personContext() visibility.Context {
	return visibility.Context{
		Model: map[string]any{
			"HasNickname": true,
			"Nickname":    "",
			"Kind":        "business",
			"Age":         21,
			"Score":       "7.5",
			"Middle":      nil,
			"Address":     map[string]any{"Country": "NL"},
			"Addresses": []any{
				map[string]any{"Country": "US", "State": "CA"},
				map[string]any{"Country": "", "State": ""},
			},
		},
		Extras: map[string]any{"role": "admin"},
	}
}

func TestEvaluatorRules(t *testing.T) {
	t.Parallel()

	cases := []struct {
		field string
		rule  string
		want  bool
	}{
		{".Nickname", "", true},
		{".Nickname", "HasNickname", true},
		{".Nickname", "!HasNickname", false},
		{".Nickname", "HasNickname == true", true},
		{".Nickname", `Kind == "business"`, true},
		{".Nickname", `Kind != 'business'`, false},
		{".Nickname", "Kind == business", true},
		{".Nickname", "Age >= 18 && Age < 65", true},
		{".Nickname", "Age > 21", false},
		{".Nickname", "Score <= 7.5", true},
		{".Nickname", "Middle == null", true},
		{".Nickname", "Missing != null", false},
		{".Nickname", "Address.Country == \"NL\"", true},
		{".Nickname", "(Kind == \"personal\" || Age == 21) && HasNickname", true},
		{".Nickname", "extras.role == admin", true},
		{".Addresses[0].State", `Country == "US"`, true},
		{".Addresses[1].State", `Country == "US"`, false},
		{".Addresses[1].State", `.Address.Country == "NL"`, true},
		{".Addresses[1].State", `.Addresses[0].Country == "US"`, true},
		{".Addresses[1].State", "Country", false},
	}
	eval := New()
	for _, tc := range cases {
		got, err := eval.Eval(tc.field, tc.rule, personContext())
		if err != nil {
			t.Fatalf("%s at %s: unexpected error %v", tc.rule, tc.field, err)
		}
		if got != tc.want {
			t.Fatalf("%s at %s: expected %v, got %v", tc.rule, tc.field, tc.want, got)
		}
	}
}

func TestCompileRejectsMalformedRules(t *testing.T) {
	t.Parallel()

	for _, rule := range []string{
		"Kind = 1",
		"a & b",
		"(a",
		"a ==",
		"== 1",
		`Kind == "open`,
		"a b",
	} {
		if _, err := Compile(rule); err == nil {
			t.Fatalf("expected %q to be rejected", rule)
		}
	}
}

func TestOrderingAgainstNullFails(t *testing.T) {
	t.Parallel()

	if _, err := New().Eval(".X", "Age > null", personContext()); err == nil {
		t.Fatalf("expected ordering against null to fail")
	}
}

func TestProgramIsCachedAndReusable(t *testing.T) {
	t.Parallel()

	eval := New()
	for i := 0; i < 3; i++ {
		if _, err := eval.Eval(".Nickname", "HasNickname", personContext()); err != nil {
			t.Fatalf("eval: %v", err)
		}
	}
	if len(eval.cache) != 1 {
		t.Fatalf("expected one cached program, got %d", len(eval.cache))
	}
	p, err := Compile("  Age > 1 ")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if p.String() != "Age > 1" {
		t.Fatalf("unexpected source %q", p.String())
	}
}
