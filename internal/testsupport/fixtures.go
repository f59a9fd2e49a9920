// Package testsupport holds fixtures shared by package and command tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/goliatone/go-formstate/pkg/schema"
)

// PersonSchemaYAML is the catalog document used across command tests.
const PersonSchemaYAML = `types:
  Address:
    fields:
      - name: StreetAddress1
        type: string
        label: Street
        required: true
      - name: StreetAddress2
        type: string
  Person:
    fields:
      - name: FirstName
        type: string
        sanitize: true
        rules:
          - kind: maxLength
            value: "8"
            message: FirstName is too long
      - name: Age
        type: integer
        nullable: true
      - name: HasNickname
        type: boolean
      - name: Nickname
        type: string
        visibleWhen: HasNickname
      - name: Addresses
        type: array
        items: Address
        rules:
          - kind: minItems
            value: "1"
            message: must have at least one address
`

// PersonCatalog loads PersonSchemaYAML.
func PersonCatalog(t *testing.T) *schema.Catalog {
	t.Helper()
	cat, err := schema.Load([]byte(PersonSchemaYAML), "person.yaml")
	if err != nil {
		t.Fatalf("load person catalog: %v", err)
	}
	return cat
}

// PersonModel returns a valid Person instance for PersonCatalog.
func PersonModel() map[string]any {
	return map[string]any{
		"FirstName":   "Ada",
		"Age":         36.0,
		"HasNickname": false,
		"Nickname":    "",
		"Addresses": []any{
			map[string]any{"StreetAddress1": "1 First", "StreetAddress2": "Apt 1"},
		},
	}
}

// WriteFile writes content to name inside a per-test directory and returns
// the full path.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

// MustJSON marshals v, failing the test on error.
func MustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return string(data)
}

// DecodeJSON unmarshals command output into plain data.
func DecodeJSON(t *testing.T, data []byte) any {
	t.Helper()
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode output %q: %v", data, err)
	}
	return out
}
