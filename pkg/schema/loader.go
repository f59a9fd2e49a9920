package schema

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// documentFile is the on-disk catalog format:
//
//	types:
//	  Person:
//	    fields:
//	      - name: FirstName
//	        type: string
//	        required: true
//	        rules:
//	          - kind: minLength
//	            value: "1"
//	      - name: Addresses
//	        type: array
//	        items: Address
type documentFile struct {
	Types map[string]typeFile `json:"types" yaml:"types"`
}

type typeFile struct {
	Fields []fieldFile `json:"fields" yaml:"fields"`
}

type fieldFile struct {
	Name          string `json:"name" yaml:"name"`
	Type          string `json:"type" yaml:"type"`
	Items         string `json:"items,omitempty" yaml:"items,omitempty"`
	ItemsNullable bool   `json:"itemsNullable,omitempty" yaml:"itemsNullable,omitempty"`
	Nullable      bool   `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Label         string `json:"label,omitempty" yaml:"label,omitempty"`
	Required      bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Disabled      bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Hidden        bool   `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Sanitize      bool   `json:"sanitize,omitempty" yaml:"sanitize,omitempty"`
	VisibleWhen   string `json:"visibleWhen,omitempty" yaml:"visibleWhen,omitempty"`
	Rules         []Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// LoadFS reads a catalog file from fsys.
func LoadFS(fsys fs.FS, name string) (*Catalog, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", name, err)
	}
	return Load(data, name)
}

// Load parses a catalog document given as JSON or YAML and checks that all
// references resolve. source only decorates error messages.
func Load(data []byte, source string) (*Catalog, error) {
	doc, err := parseDocument(data, source)
	if err != nil {
		return nil, err
	}

	tags := make([]string, 0, len(doc.Types))
	for tag := range doc.Types {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	c := NewCatalog()
	for _, tag := range tags {
		raw := doc.Types[tag]
		t := &Type{Tag: TypeTag(strings.TrimSpace(tag))}
		for _, rf := range raw.Fields {
			f, err := normaliseField(rf)
			if err != nil {
				return nil, fmt.Errorf("schema: %s: type %s: %w", source, tag, err)
			}
			t.Fields = append(t.Fields, f)
		}
		if err := c.Register(t); err != nil {
			return nil, fmt.Errorf("schema: %s: %w", source, err)
		}
	}
	if err := c.Check(); err != nil {
		return nil, err
	}
	return c, nil
}

func parseDocument(data []byte, source string) (documentFile, error) {
	var doc documentFile
	if len(strings.TrimSpace(string(data))) == 0 {
		return documentFile{}, fmt.Errorf("schema: file %s is empty", source)
	}
	if err := json.Unmarshal(data, &doc); err == nil {
		return doc, nil
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return documentFile{}, fmt.Errorf("schema: parse %s: invalid JSON or YAML: %w", source, err)
	}
	return doc, nil
}

func normaliseField(raw fieldFile) (Field, error) {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return Field{}, fmt.Errorf("field name is required")
	}
	shape, err := parseShape(raw.Type, raw.Items, raw.ItemsNullable)
	if err != nil {
		return Field{}, fmt.Errorf("field %s: %w", name, err)
	}
	if raw.Nullable {
		shape = shape.OrNull()
	}
	return Field{
		Name:        name,
		Shape:       shape,
		Label:       raw.Label,
		Required:    raw.Required,
		Disabled:    raw.Disabled,
		Hidden:      raw.Hidden,
		Sanitize:    raw.Sanitize,
		VisibleWhen: strings.TrimSpace(raw.VisibleWhen),
		Rules:       append([]Rule(nil), raw.Rules...),
	}, nil
}

// parseShape maps a type keyword onto a shape. Anything that is not a known
// keyword references a record type by tag.
func parseShape(typ, items string, itemsNullable bool) (Shape, error) {
	keyword := strings.TrimSpace(typ)
	switch strings.ToLower(keyword) {
	case "":
		return Shape{}, fmt.Errorf("type is required")
	case "string", "text":
		return Scalar(KindString), nil
	case "number", "float":
		return Scalar(KindNumber), nil
	case "integer", "int":
		return Scalar(KindInteger), nil
	case "boolean", "bool":
		return Scalar(KindBoolean), nil
	case "null":
		return Scalar(KindNull), nil
	case "datetime", "date-time", "date":
		return Scalar(KindDateTime), nil
	case "array", "list":
		if strings.TrimSpace(items) == "" {
			return Shape{}, fmt.Errorf("array requires items")
		}
		inner, err := parseShape(items, "", false)
		if err != nil {
			return Shape{}, fmt.Errorf("items: %w", err)
		}
		if itemsNullable {
			inner = inner.OrNull()
		}
		return ArrayOf(inner), nil
	default:
		return RecordOf(TypeTag(keyword)), nil
	}
}
