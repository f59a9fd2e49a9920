package form

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formstate/pkg/rules"
	"github.com/goliatone/go-formstate/pkg/schema"
	"github.com/goliatone/go-formstate/pkg/state"
	"github.com/goliatone/go-formstate/pkg/validation"
)

func testCatalog() *schema.Catalog {
	return schema.NewCatalog(
		schema.NewType("Address",
			schema.Field{Name: "StreetAddress1", Shape: schema.Scalar(schema.KindString), Required: true},
			schema.Field{Name: "StreetAddress2", Shape: schema.Scalar(schema.KindString)},
		),
		schema.NewType("Person",
			schema.Field{Name: "FirstName", Shape: schema.Scalar(schema.KindString), Sanitize: true},
			schema.Field{Name: "LastName", Shape: schema.Scalar(schema.KindString)},
			schema.Field{Name: "Code", Shape: schema.Scalar(schema.KindString)},
			schema.Field{Name: "HasNickname", Shape: schema.Scalar(schema.KindBoolean)},
			schema.Field{Name: "Nickname", Shape: schema.Scalar(schema.KindString), VisibleWhen: "HasNickname"},
			schema.Field{Name: "Addresses", Shape: schema.ArrayOf(schema.RecordOf("Address"))},
		),
	)
}

func newTestForm(t *testing.T, reg *validation.Registry, model map[string]any, opts ...Option) *Form {
	t.Helper()
	cat := testCatalog()
	engine := validation.New(cat, validation.WithRegistry(reg))
	f, err := New(engine, nil, "Person", model, opts...)
	if err != nil {
		t.Fatalf("new form: %v", err)
	}
	t.Cleanup(f.Close)
	return f
}

func mustNode(t *testing.T, f *Form, path string) *state.Node {
	t.Helper()
	n, ok := f.Lookup(path)
	if !ok {
		t.Fatalf("expected node at %q", path)
	}
	return n
}

func firstNameRule() validation.RuleMap {
	return validation.RuleMap{"FirstName": validation.Rules(func(_ context.Context, m validation.Model) validation.Outcome {
		name, _ := m["FirstName"].(string)
		return validation.Check(len(name) <= 8, "FirstName is too long")
	})}
}

func TestChangeSchedulesScopedRun(t *testing.T) {
	reg := validation.NewRegistry()
	reg.Register("Person", firstNameRule())
	reg.Register("Person", validation.RuleMap{"LastName": validation.Rules(func(context.Context, validation.Model) validation.Outcome {
		return validation.Invalid("last name rule ran")
	})})
	f := newTestForm(t, reg, map[string]any{"FirstName": "Test"})

	lastName := mustNode(t, f, ".LastName")
	lastName.SetErrors([]string{"from server"})

	first := mustNode(t, f, ".FirstName")
	if err := first.OnChange("ReallyLongInvalidName"); err != nil {
		t.Fatalf("on change: %v", err)
	}
	f.Wait()

	if diff := cmp.Diff([]string{"FirstName is too long"}, first.Errors()); diff != "" {
		t.Fatalf("first name errors mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"from server"}, lastName.Errors()); diff != "" {
		t.Fatalf("out of scope errors must persist (-want +got):\n%s", diff)
	}

	_ = first.OnChange("Ada")
	f.Wait()
	if len(first.Errors()) != 0 {
		t.Fatalf("expected errors to clear, got %v", first.Errors())
	}
}

func TestValidateWholeForm(t *testing.T) {
	reg := validation.NewRegistry()
	reg.Register("Person", firstNameRule())
	f := newTestForm(t, reg, map[string]any{"FirstName": "ReallyLongInvalidName", "HasNickname": "yes"})

	res, err := f.Validate(context.Background())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Valid() || f.Valid() {
		t.Fatalf("expected invalid form")
	}
	want := map[string][]string{
		".FirstName":   {"FirstName is too long"},
		".HasNickname": {`Invalid value "yes" supplied to : boolean`},
	}
	if diff := cmp.Diff(want, f.Errors()); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}

	if _, err := f.ValidatePath(context.Background(), ".Nope["); err == nil {
		t.Fatalf("expected malformed path to fail")
	}
}

// slowCodeRegistry registers a rule that blocks on release for the value
// "slow" and passes immediately otherwise.
func slowCodeRegistry(release <-chan struct{}) *validation.Registry {
	reg := validation.NewRegistry()
	reg.Register("Person", validation.RuleMap{"Code": validation.Rules(func(ctx context.Context, m validation.Model) validation.Outcome {
		if m["Code"] != "slow" {
			return validation.Valid()
		}
		return validation.Defer(ctx, func(context.Context) validation.Outcome {
			<-release
			return validation.Invalid("from slow run")
		})
	})})
	return reg
}

func runOverlapping(t *testing.T, policy StalePolicy) []string {
	t.Helper()
	release := make(chan struct{})
	f := newTestForm(t, slowCodeRegistry(release), map[string]any{}, WithStalePolicy(policy))
	code := mustNode(t, f, ".Code")
	code.SetErrors([]string{"marker"})

	_ = code.OnChange("slow")
	_ = code.OnChange("fast")

	deadline := time.Now().Add(2 * time.Second)
	for len(code.Errors()) != 0 {
		if time.Now().After(deadline) {
			close(release)
			t.Fatalf("fast run never applied")
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	f.Wait()
	return code.Errors()
}

func TestDiscardStaleDropsSupersededRuns(t *testing.T) {
	if got := runOverlapping(t, DiscardStale); len(got) != 0 {
		t.Fatalf("expected the stale slow run to be discarded, got %v", got)
	}
}

func TestDiscardStaleKeepsNewerContainerErrors(t *testing.T) {
	release := make(chan struct{})
	reg := validation.NewRegistry()
	reg.Register("Person", validation.RuleMap{"Addresses": validation.Rules(func(ctx context.Context, m validation.Model) validation.Outcome {
		items, _ := m["Addresses"].([]any)
		if len(items) >= 2 {
			return validation.Valid()
		}
		return validation.Defer(ctx, func(context.Context) validation.Outcome {
			<-release
			return validation.Invalid("need two addresses")
		})
	})})
	f := newTestForm(t, reg, map[string]any{
		"Addresses": []any{map[string]any{"StreetAddress1": "1 First"}},
	})
	addresses := mustNode(t, f, ".Addresses")
	addresses.SetErrors([]string{"marker"})

	// The leaf run still sees one item and blocks; the container run started
	// after it sees two and passes.
	_ = mustNode(t, f, ".Addresses[0].StreetAddress1").OnChange("2 First")
	if _, err := addresses.Append(map[string]any{"StreetAddress1": "3 Third"}); err != nil {
		close(release)
		t.Fatalf("append: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(addresses.Errors()) != 0 {
		if time.Now().After(deadline) {
			close(release)
			t.Fatalf("container run never applied")
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	f.Wait()
	if got := addresses.Errors(); len(got) != 0 {
		t.Fatalf("expected the older leaf run to leave container errors alone, got %v", got)
	}
}

func TestLastWriteWinsKeepsTheRace(t *testing.T) {
	got := runOverlapping(t, LastWriteWins)
	if diff := cmp.Diff([]string{"from slow run"}, got); diff != "" {
		t.Fatalf("expected the slow run to overwrite (-want +got):\n%s", diff)
	}
}

func TestSanitizeStripsMarkup(t *testing.T) {
	f := newTestForm(t, validation.NewRegistry(), map[string]any{})
	first := mustNode(t, f, ".FirstName")
	var delivered []any
	f.Tree().OnDidChange(func(_ *state.Node, _, v any) { delivered = append(delivered, v) })

	raw := `<script>alert(1)</script><b>Ada</b>`
	if err := first.OnChange(raw); err != nil {
		t.Fatalf("on change: %v", err)
	}
	f.Wait()
	if first.Value() != "Ada" {
		t.Fatalf("expected sanitized value, got %q", first.Value())
	}
	if diff := cmp.Diff([]any{raw, "Ada"}, delivered); diff != "" {
		t.Fatalf("expected the sanitized value to be delivered (-want +got):\n%s", diff)
	}

	last := mustNode(t, f, ".LastName")
	_ = last.OnChange("<b>kept</b>")
	if last.Value() != "<b>kept</b>" {
		t.Fatalf("fields without Sanitize must keep markup")
	}
}

func TestDependentFieldWritesAreValidated(t *testing.T) {
	reg := validation.NewRegistry()
	reg.Register("Person", firstNameRule())
	f := newTestForm(t, reg, map[string]any{})
	first := mustNode(t, f, ".FirstName")
	last := mustNode(t, f, ".LastName")

	f.Tree().Subscribe(func(n *state.Node) {
		switch {
		case n == first && first.Value() == "Ada":
			_ = last.OnChange("Lovelace")
		case n == last:
			_ = first.OnChange("ReallyLongInvalidName")
		}
	})

	if err := first.OnChange("Ada"); err != nil {
		t.Fatalf("on change: %v", err)
	}
	f.Wait()
	if first.Value() != "ReallyLongInvalidName" {
		t.Fatalf("expected the dependent write to stick, got %q", first.Value())
	}
	if diff := cmp.Diff([]string{"FirstName is too long"}, first.Errors()); diff != "" {
		t.Fatalf("expected the written value to be validated (-want +got):\n%s", diff)
	}
}

func TestVisibilityFollowsModel(t *testing.T) {
	f := newTestForm(t, validation.NewRegistry(), map[string]any{"HasNickname": false})
	nickname := mustNode(t, f, ".Nickname")
	if nickname.Visible() {
		t.Fatalf("expected Nickname hidden initially")
	}
	for _, p := range f.VisibleLeaves() {
		if p == ".Nickname" {
			t.Fatalf("hidden leaf listed as visible")
		}
	}

	_ = mustNode(t, f, ".HasNickname").OnChange(true)
	if !nickname.Visible() {
		t.Fatalf("expected Nickname visible after toggle")
	}
}

func TestArrayChangesRevalidateContainer(t *testing.T) {
	reg := validation.NewRegistry()
	if err := rules.RegisterCatalog(reg, testCatalog()); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Register("Person", validation.RuleMap{"Addresses": validation.Rules(rules.AtLeastOne("Addresses", "must have at least one address"))})
	f := newTestForm(t, reg, map[string]any{"Addresses": []any{}})

	if _, err := f.Validate(context.Background()); err != nil {
		t.Fatalf("validate: %v", err)
	}
	addresses := mustNode(t, f, ".Addresses")
	if diff := cmp.Diff([]string{"must have at least one address"}, addresses.Errors()); diff != "" {
		t.Fatalf("container errors mismatch (-want +got):\n%s", diff)
	}

	if _, err := addresses.Append(nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Wait()
	if len(addresses.Errors()) != 0 {
		t.Fatalf("expected container errors to clear, got %v", addresses.Errors())
	}
	if diff := cmp.Diff([]string{"StreetAddress1 is required"}, mustNode(t, f, ".Addresses[0].StreetAddress1").Errors()); diff != "" {
		t.Fatalf("item errors mismatch (-want +got):\n%s", diff)
	}
}

func TestBackgroundRuleErrorsAreReported(t *testing.T) {
	boom := errors.New("boom")
	reg := validation.NewRegistry()
	reg.Register("Person", validation.RuleMap{"LastName": validation.Rules(func(context.Context, validation.Model) validation.Outcome {
		return validation.Fail(boom)
	})})
	f := newTestForm(t, reg, map[string]any{})

	var (
		mu   sync.Mutex
		seen []error
	)
	f.OnRunError(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, err)
	})
	last := mustNode(t, f, ".LastName")
	last.SetErrors([]string{"untouched"})
	_ = last.OnChange("x")
	f.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || !errors.Is(seen[0], boom) {
		t.Fatalf("expected the rule error to be reported, got %v", seen)
	}
	var ruleErr *validation.RuleError
	if !errors.As(seen[0], &ruleErr) {
		t.Fatalf("expected RuleError, got %T", seen[0])
	}
	if diff := cmp.Diff([]string{"untouched"}, last.Errors()); diff != "" {
		t.Fatalf("aborted run must not apply (-want +got):\n%s", diff)
	}
}

func TestApplyErrorPayload(t *testing.T) {
	f := newTestForm(t, validation.NewRegistry(), map[string]any{
		"Addresses": []any{map[string]any{"StreetAddress1": ""}},
	})
	formLevel := f.ApplyErrorPayload(map[string][]string{
		"/Addresses/0/StreetAddress1": {"street is required", " street is required "},
		"data.FirstName":              {"name taken"},
		"Addresses[0].StreetAddress2": {"too long"},
		"__all__":                     {"server down"},
		"/Unknown":                    {"lost"},
		"LastName":                    {"  "},
	})
	if diff := cmp.Diff([]string{"lost", "server down"}, formLevel); diff != "" {
		t.Fatalf("form level mismatch (-want +got):\n%s", diff)
	}
	want := map[string][]string{
		".Addresses[0].StreetAddress1": {"street is required"},
		".Addresses[0].StreetAddress2": {"too long"},
		".FirstName":                   {"name taken"},
	}
	if diff := cmp.Diff(want, f.Errors()); diff != "" {
		t.Fatalf("field errors mismatch (-want +got):\n%s", diff)
	}
	if f.Valid() {
		t.Fatalf("expected form errors to make the form invalid")
	}
	if diff := cmp.Diff([]string{".Addresses[0].StreetAddress1", ".Addresses[0].StreetAddress2", ".FirstName"}, f.ErrorPaths()); diff != "" {
		t.Fatalf("error paths mismatch (-want +got):\n%s", diff)
	}
	f.ClearFormErrors()
	if len(f.FormErrors()) != 0 {
		t.Fatalf("expected form errors to clear")
	}
}

func TestApplyLeavesUnmentionedNodes(t *testing.T) {
	tree, err := state.DeriveTyped(testCatalog(), "Person", map[string]any{
		"Addresses": []any{
			map[string]any{"StreetAddress1": "a"},
			map[string]any{"StreetAddress1": "b"},
		},
	})
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	first, _ := tree.Lookup(".Addresses[0].StreetAddress1")
	first.SetErrors([]string{"keep me"})
	addresses, _ := tree.Lookup(".Addresses")
	addresses.SetErrors([]string{"container kept"})

	res := &validation.Result{Kind: validation.ResultRecord, Fields: map[string]*validation.Result{
		"Addresses": {Kind: validation.ResultArray, Items: []*validation.Result{
			nil,
			{Kind: validation.ResultRecord, Fields: map[string]*validation.Result{
				"StreetAddress1": {Kind: validation.ResultLeaf, Errors: []string{"second"}},
			}},
		}},
	}}
	Apply(res, tree.Root())

	second, _ := tree.Lookup(".Addresses[1].StreetAddress1")
	if diff := cmp.Diff([]string{"second"}, second.Errors()); diff != "" {
		t.Fatalf("applied errors mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"keep me"}, first.Errors()); diff != "" {
		t.Fatalf("skipped item must keep errors (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"container kept"}, addresses.Errors()); diff != "" {
		t.Fatalf("container without result errors must keep them (-want +got):\n%s", diff)
	}
}
