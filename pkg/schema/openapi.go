package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// LoadOpenAPI builds a catalog from the components.schemas section of an
// OpenAPI 3 document (JSON or YAML). Each object component becomes a type
// tagged with its component name; inline object properties become types
// tagged "<Component>.<Property>". Declared constraints (required, minLength,
// maxLength, minimum, maximum, pattern, minItems) turn into field rules, title
// into the label and readOnly into the disabled flag.
func LoadOpenAPI(ctx context.Context, raw []byte) (*Catalog, error) {
	if len(raw) == 0 {
		return nil, errors.New("schema openapi: document payload is empty")
	}
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("schema openapi: load document: %w", err)
	}
	if doc.Components == nil || len(doc.Components.Schemas) == 0 {
		return nil, errors.New("schema openapi: document does not define components.schemas")
	}

	names := make([]string, 0, len(doc.Components.Schemas))
	for name := range doc.Components.Schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	c := NewCatalog()
	for _, name := range names {
		ref := doc.Components.Schemas[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		if firstSchemaType(ref.Value.Type) != "object" && len(ref.Value.Properties) == 0 {
			continue
		}
		if err := convertObject(c, TypeTag(name), ref.Value); err != nil {
			return nil, err
		}
	}
	if err := c.Check(); err != nil {
		return nil, err
	}
	return c, nil
}

func convertObject(c *Catalog, tag TypeTag, src *openapi3.Schema) error {
	required := make(map[string]struct{}, len(src.Required))
	for _, name := range src.Required {
		required[name] = struct{}{}
	}

	props := make([]string, 0, len(src.Properties))
	for name := range src.Properties {
		props = append(props, name)
	}
	sort.Strings(props)

	t := &Type{Tag: tag}
	for _, name := range props {
		prop := src.Properties[name]
		shape, err := convertShape(c, TypeTag(string(tag)+"."+name), prop)
		if err != nil {
			return fmt.Errorf("schema openapi: %s.%s: %w", tag, name, err)
		}
		_, isRequired := required[name]
		field := Field{Name: name, Shape: shape, Required: isRequired}
		if prop.Value != nil {
			field.Label = strings.TrimSpace(prop.Value.Title)
			field.Disabled = prop.Value.ReadOnly
			field.Rules = rulesFromSchema(prop.Value, shape)
		}
		if isRequired {
			field.Rules = append([]Rule{{Kind: RuleRequired}}, field.Rules...)
		}
		t.Fields = append(t.Fields, field)
	}
	return c.Register(t)
}

func convertShape(c *Catalog, inlineTag TypeTag, ref *openapi3.SchemaRef) (Shape, error) {
	if ref == nil {
		return Shape{}, errors.New("missing schema")
	}
	if ref.Ref != "" {
		if ref.Value != nil && firstSchemaType(ref.Value.Type) != "object" && len(ref.Value.Properties) == 0 {
			return convertInline(c, inlineTag, ref.Value)
		}
		return RecordOf(TypeTag(refName(ref.Ref))), nil
	}
	if ref.Value == nil {
		return Shape{}, errors.New("unresolved schema")
	}
	return convertInline(c, inlineTag, ref.Value)
}

func convertInline(c *Catalog, inlineTag TypeTag, src *openapi3.Schema) (Shape, error) {
	var shape Shape
	switch firstSchemaType(src.Type) {
	case "string":
		if src.Format == "date-time" || src.Format == "date" {
			shape = Scalar(KindDateTime)
		} else {
			shape = Scalar(KindString)
		}
	case "number":
		shape = Scalar(KindNumber)
	case "integer":
		shape = Scalar(KindInteger)
	case "boolean":
		shape = Scalar(KindBoolean)
	case "null":
		shape = Scalar(KindNull)
	case "array":
		if src.Items == nil {
			return Shape{}, errors.New("array schema must define items")
		}
		items, err := convertShape(c, inlineTag, src.Items)
		if err != nil {
			return Shape{}, fmt.Errorf("items: %w", err)
		}
		shape = ArrayOf(items)
	case "object", "":
		if err := convertObject(c, inlineTag, src); err != nil {
			return Shape{}, err
		}
		shape = RecordOf(inlineTag)
	default:
		return Shape{}, fmt.Errorf("unsupported type %q", firstSchemaType(src.Type))
	}
	if src.Nullable || (src.Type != nil && src.Type.Includes("null")) {
		shape = shape.OrNull()
	}
	return shape, nil
}

func rulesFromSchema(src *openapi3.Schema, shape Shape) []Rule {
	var rules []Rule
	if src.MinLength != 0 {
		rules = append(rules, Rule{Kind: RuleMinLength, Value: strconv.FormatUint(src.MinLength, 10)})
	}
	if src.MaxLength != nil {
		rules = append(rules, Rule{Kind: RuleMaxLength, Value: strconv.FormatUint(*src.MaxLength, 10)})
	}
	if src.Min != nil {
		rules = append(rules, Rule{Kind: RuleMin, Value: strconv.FormatFloat(*src.Min, 'f', -1, 64)})
	}
	if src.Max != nil {
		rules = append(rules, Rule{Kind: RuleMax, Value: strconv.FormatFloat(*src.Max, 'f', -1, 64)})
	}
	if src.Pattern != "" {
		rules = append(rules, Rule{Kind: RulePattern, Value: src.Pattern})
	}
	if shape.Kind == KindArray && src.MinItems != 0 {
		rules = append(rules, Rule{Kind: RuleMinItems, Value: strconv.FormatUint(src.MinItems, 10)})
	}
	return rules
}

// firstSchemaType collapses OpenAPI 3.1 type lists, ignoring "null" which is
// expressed through Nullable.
func firstSchemaType(types *openapi3.Types) string {
	if types == nil {
		return ""
	}
	for _, value := range types.Slice() {
		if value != "null" {
			return value
		}
	}
	if types.Includes("null") {
		return "null"
	}
	return ""
}

func refName(ref string) string {
	if idx := strings.LastIndex(ref, "/"); idx >= 0 {
		return ref[idx+1:]
	}
	return ref
}
