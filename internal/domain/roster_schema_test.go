package domain

import (
	"strings"
	"testing"
)

func TestDefaultRosterSchemaIsValid(t *testing.T) {
	schema := DefaultRosterSchema()
	if err := schema.Validate(); err != nil {
		t.Fatalf("default schema invalid: %v", err)
	}
	if len(schema.Fields) != 26 {
		t.Fatalf("expected 26 columns, got %d", len(schema.Fields))
	}
	attrs := schema.AttributeNames()
	for _, name := range attrs {
		if name == FieldEntityID || name == FieldStartDate || name == FieldEndDate {
			t.Fatalf("structural field %s leaked into attributes", name)
		}
	}
	if len(attrs) != 23 {
		t.Fatalf("expected 23 attribute fields, got %d", len(attrs))
	}
}

func TestRosterSchemaLookupAliases(t *testing.T) {
	schema := DefaultRosterSchema()
	cases := map[string]string{
		"emp_id":                   FieldEntityID,
		"alo_credential_user_name": "credential_username",
		"barrio_localidad":         "locality",
		"natterbox":                "comms_extension",
		"name":                     "name",
	}
	for column, want := range cases {
		field, ok := schema.Lookup(column)
		if !ok {
			t.Fatalf("lookup %s failed", column)
		}
		if field.Name != want {
			t.Errorf("lookup %s: expected %s, got %s", column, want, field.Name)
		}
	}
	if _, ok := schema.Lookup("shoe_size"); ok {
		t.Fatal("unexpected match for unknown column")
	}
}

func TestRosterSchemaValidateRejectsConflicts(t *testing.T) {
	schema := DefaultRosterSchema()
	schema.Fields = append(schema.Fields, FieldDefinition{Name: "extra", Type: FieldTypeString, Aliases: []string{"emp_id"}})
	err := schema.Validate()
	if err == nil || !strings.Contains(err.Error(), "emp_id") {
		t.Fatalf("expected alias conflict, got %v", err)
	}

	schema = DefaultRosterSchema()
	schema.Positions = map[int]string{0: "not_a_column"}
	if err := schema.Validate(); err == nil {
		t.Fatal("expected unknown position target to be rejected")
	}
}
