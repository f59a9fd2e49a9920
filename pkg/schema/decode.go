package schema

import (
	"fmt"
	"math"
	"reflect"
	"time"

	json "github.com/goccy/go-json"
)

// DecodeError reports a raw value that does not match its declared shape. It
// is an expected outcome: the validation engine renders it into the field's
// error list instead of failing the run.
type DecodeError struct {
	Value    any
	Expected Shape
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("Invalid value %s supplied to : %s", Stringify(e.Value), e.Expected.Name())
}

// Stringify renders a value the way decode messages quote it: JSON without
// HTML escaping when the value can be encoded, Go syntax otherwise.
func Stringify(v any) string {
	if v == nil {
		return "null"
	}
	raw, err := json.MarshalNoEscape(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

// dateLayouts lists the accepted textual forms of DateTime values.
var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// Decode checks v against the shape. Records are checked for being keyed
// maps and arrays for being slices, element by element for scalar items; the
// contents of records are left to the record's own fields.
func (s Shape) Decode(v any) error {
	if v == nil {
		if s.Nullable || s.Kind == KindNull {
			return nil
		}
		return &DecodeError{Value: v, Expected: s}
	}

	ok := false
	switch s.Kind {
	case KindString:
		_, ok = v.(string)
	case KindBoolean:
		_, ok = v.(bool)
	case KindNumber:
		_, ok = asFloat(v)
	case KindInteger:
		var f float64
		f, ok = asFloat(v)
		ok = ok && !math.IsInf(f, 0) && f == math.Trunc(f)
	case KindNull:
		ok = false
	case KindDateTime:
		ok = decodeDateTime(v)
	case KindRecord:
		_, ok = v.(map[string]any)
	case KindArray:
		items, isSlice := v.([]any)
		if !isSlice {
			break
		}
		ok = true
		if s.Items != nil && s.Items.Kind.IsScalar() {
			for _, item := range items {
				if s.Items.Decode(item) != nil {
					ok = false
					break
				}
			}
		}
	}
	if !ok {
		return &DecodeError{Value: v, Expected: s}
	}
	return nil
}

func decodeDateTime(v any) bool {
	switch typed := v.(type) {
	case time.Time:
		return true
	case *time.Time:
		return typed != nil
	case string:
		for _, layout := range dateLayouts {
			if _, err := time.Parse(layout, typed); err == nil {
				return true
			}
		}
	}
	return false
}

// asFloat accepts every Go numeric kind, which covers values decoded from
// JSON (float64), YAML (int) and hand-built models alike.
func asFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

// AsFloat exposes the numeric coercion used by Decode for rule helpers.
func AsFloat(v any) (float64, bool) { return asFloat(v) }
