// Package schema describes the shape of a model as a closed tagged variant.
// Every record type carries a stable TypeTag; fields declare a Shape whose Kind
// is one of a fixed set, with Ref naming the record type for nested records and
// Items describing array elements. The state deriver and the validation engine
// walk these descriptions instead of sniffing runtime values, and the built-in
// decode check uses them to report type mismatches on leaves.
package schema

import "strings"

// TypeTag identifies a record type. Validators are registered per tag and
// apply to every record of that type, wherever it appears in a model.
type TypeTag string

// Kind enumerates the shapes a field value can take.
type Kind string

const (
	KindString   Kind = "string"
	KindNumber   Kind = "number"
	KindInteger  Kind = "integer"
	KindBoolean  Kind = "boolean"
	KindNull     Kind = "null"
	KindDateTime Kind = "datetime"
	KindRecord   Kind = "record"
	KindArray    Kind = "array"
)

// IsScalar reports whether values of the kind are leaves in the state tree.
func (k Kind) IsScalar() bool {
	switch k {
	case KindRecord, KindArray:
		return false
	default:
		return true
	}
}

// Shape is the declared type of a field or array element.
type Shape struct {
	Kind     Kind
	Ref      TypeTag // record kind only
	Items    *Shape  // array kind only
	Nullable bool
}

// Scalar returns a leaf shape of the given kind.
func Scalar(kind Kind) Shape { return Shape{Kind: kind} }

// RecordOf references a record type.
func RecordOf(tag TypeTag) Shape { return Shape{Kind: KindRecord, Ref: tag} }

// ArrayOf wraps an element shape.
func ArrayOf(items Shape) Shape { return Shape{Kind: KindArray, Items: &items} }

// OrNull marks the shape as accepting nil.
func (s Shape) OrNull() Shape {
	s.Nullable = true
	return s
}

// Name renders the shape the way decode messages refer to it.
func (s Shape) Name() string {
	var base string
	switch s.Kind {
	case KindRecord:
		base = string(s.Ref)
	case KindArray:
		if s.Items == nil {
			base = "Array<unknown>"
		} else {
			base = "Array<" + s.Items.Name() + ">"
		}
	case KindInteger:
		base = "Integer"
	case KindDateTime:
		base = "DateTime"
	default:
		base = string(s.Kind)
	}
	if s.Nullable && s.Kind != KindNull {
		return "(" + base + " | null)"
	}
	return base
}

// Rule kinds understood by the rules package. Numeric and length thresholds
// travel in Value as strings so YAML and OpenAPI sources map onto them
// directly.
const (
	RuleRequired  = "required"
	RuleMin       = "min"
	RuleMax       = "max"
	RuleMinLength = "minLength"
	RuleMaxLength = "maxLength"
	RulePattern   = "pattern"
	RuleMinItems  = "minItems"
)

// Rule is a declarative constraint attached to a field.
type Rule struct {
	Kind    string `yaml:"kind" json:"kind"`
	Value   string `yaml:"value,omitempty" json:"value,omitempty"`
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
}

// Field declares one member of a record type together with the presentation
// flags the state tree starts from.
type Field struct {
	Name        string
	Shape       Shape
	Label       string
	Required    bool
	Disabled    bool
	Hidden      bool
	Sanitize    bool
	VisibleWhen string
	Rules       []Rule
}

// DisplayName falls back to the field name when no label is declared.
func (f Field) DisplayName() string {
	if strings.TrimSpace(f.Label) != "" {
		return f.Label
	}
	return f.Name
}

// Type is a named record type with ordered fields.
type Type struct {
	Tag    TypeTag
	Fields []Field
}

// NewType builds a type from fields, keeping their declaration order.
func NewType(tag TypeTag, fields ...Field) *Type {
	return &Type{Tag: tag, Fields: append([]Field(nil), fields...)}
}

// Field returns the declared field with the given name.
func (t *Type) Field(name string) (Field, bool) {
	if t == nil {
		return Field{}, false
	}
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames lists declared field names in order.
func (t *Type) FieldNames() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		out[i] = f.Name
	}
	return out
}
