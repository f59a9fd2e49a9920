package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goliatone/go-formstate/pkg/schema"
	"github.com/goliatone/go-formstate/pkg/validation"
)

// ErrUnknownRule is returned for rule kinds this package does not implement.
var ErrUnknownRule = errors.New("rules: unknown rule kind")

// FromRule builds the validator for one declared rule of field. Default
// messages use the field's display name.
func FromRule(field schema.Field, rule schema.Rule) (validation.Validator, error) {
	label := field.DisplayName()
	value := strings.TrimSpace(rule.Value)
	message := rule.Message

	switch rule.Kind {
	case schema.RuleRequired:
		return Required(field.Name, orDefault(message, "%s is required", label)), nil
	case schema.RuleMinLength:
		n, err := parseInt(rule)
		if err != nil {
			return nil, err
		}
		return MinLength(field.Name, n, orDefault(message, "%s must be at least %d characters", label, n)), nil
	case schema.RuleMaxLength:
		n, err := parseInt(rule)
		if err != nil {
			return nil, err
		}
		return MaxLength(field.Name, n, orDefault(message, "%s must be at most %d characters", label, n)), nil
	case schema.RuleMin:
		f, err := parseFloat(rule)
		if err != nil {
			return nil, err
		}
		return Min(field.Name, f, orDefault(message, "%s must be at least %v", label, f)), nil
	case schema.RuleMax:
		f, err := parseFloat(rule)
		if err != nil {
			return nil, err
		}
		return Max(field.Name, f, orDefault(message, "%s must be at most %v", label, f)), nil
	case schema.RulePattern:
		if value == "" {
			return nil, fmt.Errorf("rules: pattern rule on %s has no expression", field.Name)
		}
		re, err := regexp.Compile(value)
		if err != nil {
			return nil, fmt.Errorf("rules: pattern rule on %s: %w", field.Name, err)
		}
		return Pattern(field.Name, re, orDefault(message, "%s does not match the required pattern", label)), nil
	case schema.RuleMinItems:
		n, err := parseInt(rule)
		if err != nil {
			return nil, err
		}
		return MinItems(field.Name, n, orDefault(message, "%s must have at least %d items", label, n)), nil
	default:
		return nil, fmt.Errorf("%w %q on %s", ErrUnknownRule, rule.Kind, field.Name)
	}
}

// RegisterCatalog compiles the declared rules of every type in cat into reg.
// A field flagged Required without an explicit required rule gets one.
func RegisterCatalog(reg *validation.Registry, cat *schema.Catalog) error {
	if reg == nil || cat == nil {
		return errors.New("rules: registry and catalog are required")
	}
	var errs []error
	for _, tag := range cat.Tags() {
		typ, err := cat.Lookup(tag)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ruleMap := validation.RuleMap{}
		for _, field := range typ.Fields {
			declared := field.Rules
			if field.Required && !hasRule(declared, schema.RuleRequired) {
				declared = append([]schema.Rule{{Kind: schema.RuleRequired}}, declared...)
			}
			for _, rule := range declared {
				v, err := FromRule(field, rule)
				if err != nil {
					errs = append(errs, fmt.Errorf("rules: %s.%s: %w", tag, field.Name, err))
					continue
				}
				ruleMap[field.Name] = append(ruleMap[field.Name], v)
			}
		}
		reg.Register(tag, ruleMap)
	}
	return errors.Join(errs...)
}

func hasRule(rules []schema.Rule, kind string) bool {
	for _, r := range rules {
		if r.Kind == kind {
			return true
		}
	}
	return false
}

func parseInt(rule schema.Rule) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(rule.Value))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("rules: %s expects a non-negative integer, got %q", rule.Kind, rule.Value)
	}
	return n, nil
}

func parseFloat(rule schema.Rule) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(rule.Value), 64)
	if err != nil {
		return 0, fmt.Errorf("rules: %s expects a number, got %q", rule.Kind, rule.Value)
	}
	return f, nil
}
