package ingestion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rpattn/rosterscd/internal/domain"
)

const schemaYAML = `schema:
  columns:
    - name: Entity ID
      type: string
      required: true
      aliases: [Emp ID]
    - name: name
    - name: hired_on
      type: date
    - name: start_date
      type: date
    - name: end_date
      type: date
  positions:
    1: name
`

func TestLoadSchemaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	if err := os.WriteFile(path, []byte(schemaYAML), 0o600); err != nil {
		t.Fatalf("write schema: %v", err)
	}

	schema, err := LoadSchemaFile(path)
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}
	if len(schema.Fields) != 5 {
		t.Fatalf("expected 5 fields, got %d", len(schema.Fields))
	}
	if field, ok := schema.Lookup("emp_id"); !ok || field.Name != domain.FieldEntityID || !field.Required {
		t.Fatalf("expected normalized alias lookup, got %+v", field)
	}
	if field, _ := schema.Lookup("name"); field.Type != domain.FieldTypeString {
		t.Fatalf("expected default string type, got %s", field.Type)
	}
	if schema.Positions[1] != "name" {
		t.Fatalf("expected positional override, got %v", schema.Positions)
	}
}

func TestParseSchemaRejectsInvalid(t *testing.T) {
	if _, err := ParseSchema([]byte("schema:\n  columns:\n    - name: entity_id\n")); err == nil {
		t.Fatalf("expected schema without temporal fields to fail")
	}
	if _, err := ParseSchema([]byte("schema: [")); err == nil {
		t.Fatalf("expected malformed yaml to fail")
	}
}

func TestMarshalSchemaRoundTrip(t *testing.T) {
	raw, err := MarshalSchema(domain.DefaultRosterSchema())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	schema, err := ParseSchema(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	def, ok := schema.Lookup("natterbox")
	if !ok || def.Name != "comms_extension" {
		t.Fatalf("expected alias to survive, got %+v", def)
	}
}
