// Package rules provides validator constructors for the common field
// constraints and compiles the rules declared on catalog fields into a
// validation registry.
//
// Constructors read a single field of the record they are given. Values of
// the wrong kind pass: type mismatches are reported by the engine's decode
// check, and missing values by Required.
package rules

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/goliatone/go-formstate/pkg/schema"
	"github.com/goliatone/go-formstate/pkg/validation"
)

// Required rejects nil, blank strings and empty arrays or records.
func Required(field, message string) validation.Validator {
	message = orDefault(message, "%s is required", field)
	return func(_ context.Context, m validation.Model) validation.Outcome {
		return validation.Check(present(m[field]), message)
	}
}

// MinLength rejects strings shorter than n characters. Empty strings pass.
func MinLength(field string, n int, message string) validation.Validator {
	message = orDefault(message, "%s must be at least %d characters", field, n)
	return func(_ context.Context, m validation.Model) validation.Outcome {
		s, ok := m[field].(string)
		if !ok || s == "" {
			return validation.Valid()
		}
		return validation.Check(utf8.RuneCountInString(s) >= n, message)
	}
}

// MaxLength rejects strings longer than n characters.
func MaxLength(field string, n int, message string) validation.Validator {
	message = orDefault(message, "%s must be at most %d characters", field, n)
	return func(_ context.Context, m validation.Model) validation.Outcome {
		s, ok := m[field].(string)
		if !ok {
			return validation.Valid()
		}
		return validation.Check(utf8.RuneCountInString(s) <= n, message)
	}
}

// Min rejects numbers below limit.
func Min(field string, limit float64, message string) validation.Validator {
	message = orDefault(message, "%s must be at least %v", field, limit)
	return func(_ context.Context, m validation.Model) validation.Outcome {
		v, ok := schema.AsFloat(m[field])
		if !ok {
			return validation.Valid()
		}
		return validation.Check(v >= limit, message)
	}
}

// Max rejects numbers above limit.
func Max(field string, limit float64, message string) validation.Validator {
	message = orDefault(message, "%s must be at most %v", field, limit)
	return func(_ context.Context, m validation.Model) validation.Outcome {
		v, ok := schema.AsFloat(m[field])
		if !ok {
			return validation.Valid()
		}
		return validation.Check(v <= limit, message)
	}
}

// Pattern rejects non-empty strings that do not match re.
func Pattern(field string, re *regexp.Regexp, message string) validation.Validator {
	message = orDefault(message, "%s does not match the required pattern", field)
	return func(_ context.Context, m validation.Model) validation.Outcome {
		s, ok := m[field].(string)
		if !ok || s == "" {
			return validation.Valid()
		}
		return validation.Check(re.MatchString(s), message)
	}
}

// MinItems rejects arrays with fewer than n items. Its message lands in the
// array's container errors.
func MinItems(field string, n int, message string) validation.Validator {
	message = orDefault(message, "%s must have at least %d items", field, n)
	return func(_ context.Context, m validation.Model) validation.Outcome {
		items, ok := m[field].([]any)
		if !ok {
			return validation.Valid()
		}
		return validation.Check(len(items) >= n, message)
	}
}

// AtLeastOne is MinItems(field, 1, message).
func AtLeastOne(field, message string) validation.Validator {
	return MinItems(field, 1, orDefault(message, "%s must have at least one item", field))
}

func orDefault(message, format string, args ...any) string {
	if strings.TrimSpace(message) != "" {
		return message
	}
	return fmt.Sprintf(format, args...)
}

func present(v any) bool {
	switch typed := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(typed) != ""
	case []any:
		return len(typed) > 0
	case map[string]any:
		return len(typed) > 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	case reflect.Slice, reflect.Map:
		return rv.Len() > 0
	}
	return true
}
