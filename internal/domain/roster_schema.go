package domain

import (
	"fmt"
	"sort"
)

// FieldType represents the type of a roster column after normalization.
type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeDate   FieldType = "date"
)

// Canonical names of the structural fields.
const (
	FieldEntityID  = "entity_id"
	FieldStartDate = "start_date"
	FieldEndDate   = "end_date"
)

// FieldDefinition describes one column of the versioned roster table.
type FieldDefinition struct {
	Name        string    `json:"name" yaml:"name"`
	Type        FieldType `json:"type" yaml:"type"`
	Required    bool      `json:"required" yaml:"required"`
	Aliases     []string  `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
}

// RosterSchema is the fixed column contract enforced at the normalizer boundary.
type RosterSchema struct {
	Fields []FieldDefinition `json:"fields" yaml:"columns"`
	// Positions renames the header found at a given zero-based column index
	// before lookup. Used for exports whose header labels drift between runs.
	Positions map[int]string `json:"positions,omitempty" yaml:"positions,omitempty"`
}

// DefaultRosterSchema returns the roster column set in physical table order.
func DefaultRosterSchema() RosterSchema {
	str := func(name string, aliases ...string) FieldDefinition {
		return FieldDefinition{Name: name, Type: FieldTypeString, Aliases: aliases}
	}
	date := func(name string, aliases ...string) FieldDefinition {
		return FieldDefinition{Name: name, Type: FieldTypeDate, Aliases: aliases}
	}

	return RosterSchema{
		Fields: []FieldDefinition{
			{Name: FieldEntityID, Type: FieldTypeString, Required: true, Aliases: []string{"emp_id", "employee_id"}},
			str("site"),
			str("name"),
			str("role"),
			str("status"),
			str("leader"),
			str("manager"),
			str("work_email"),
			str("wave"),
			str("credential_username", "alo_credential_user_name"),
			date("date_of_hire"),
			date("termination_date"),
			date("go_live"),
			date("contract_end_date"),
			str("tenure"),
			str("contract_type"),
			str("flash_card_user"),
			str("national_id"),
			str("personal_email"),
			str("birthday"),
			str("address"),
			str("locality", "barrio_localidad"),
			str("phone_number"),
			str("comms_extension", "natterbox"),
			date(FieldStartDate),
			date(FieldEndDate),
		},
	}
}

// Lookup resolves a normalized column name (or alias) to its field definition.
func (s RosterSchema) Lookup(column string) (FieldDefinition, bool) {
	for _, field := range s.Fields {
		if field.Name == column {
			return field, true
		}
		for _, alias := range field.Aliases {
			if alias == column {
				return field, true
			}
		}
	}
	return FieldDefinition{}, false
}

// AttributeFields returns the compared payload fields, excluding the identifier and temporal fields.
func (s RosterSchema) AttributeFields() []FieldDefinition {
	out := make([]FieldDefinition, 0, len(s.Fields))
	for _, field := range s.Fields {
		if isStructural(field.Name) {
			continue
		}
		out = append(out, field)
	}
	return out
}

// AttributeNames returns the names of AttributeFields in schema order.
func (s RosterSchema) AttributeNames() []string {
	fields := s.AttributeFields()
	names := make([]string, len(fields))
	for i, field := range fields {
		names[i] = field.Name
	}
	return names
}

// DateFields returns the names of every date-typed field.
func (s RosterSchema) DateFields() []string {
	var names []string
	for _, field := range s.Fields {
		if field.Type == FieldTypeDate {
			names = append(names, field.Name)
		}
	}
	return names
}

// Validate checks that the schema carries the structural fields exactly once
// and that no two fields claim the same name or alias.
func (s RosterSchema) Validate() error {
	seen := make(map[string]string)
	claim := func(name, owner string) error {
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("column %q claimed by both %s and %s", name, prev, owner)
		}
		seen[name] = owner
		return nil
	}

	for _, field := range s.Fields {
		if field.Name == "" {
			return fmt.Errorf("schema field without name")
		}
		if field.Type != FieldTypeString && field.Type != FieldTypeDate {
			return fmt.Errorf("field %s: unsupported type %q", field.Name, field.Type)
		}
		if err := claim(field.Name, field.Name); err != nil {
			return err
		}
		for _, alias := range field.Aliases {
			if err := claim(alias, field.Name); err != nil {
				return err
			}
		}
	}

	for _, required := range []string{FieldEntityID, FieldStartDate, FieldEndDate} {
		if _, ok := seen[required]; !ok {
			return fmt.Errorf("schema missing structural field %s", required)
		}
	}
	if f, _ := s.Lookup(FieldStartDate); f.Type != FieldTypeDate {
		return fmt.Errorf("field %s must be a date", FieldStartDate)
	}
	if f, _ := s.Lookup(FieldEndDate); f.Type != FieldTypeDate {
		return fmt.Errorf("field %s must be a date", FieldEndDate)
	}

	positions := make([]int, 0, len(s.Positions))
	for idx := range s.Positions {
		positions = append(positions, idx)
	}
	sort.Ints(positions)
	for _, idx := range positions {
		if idx < 0 {
			return fmt.Errorf("position %d out of range", idx)
		}
		if _, ok := s.Lookup(s.Positions[idx]); !ok {
			return fmt.Errorf("position %d maps to unknown column %q", idx, s.Positions[idx])
		}
	}
	return nil
}

func isStructural(name string) bool {
	return name == FieldEntityID || name == FieldStartDate || name == FieldEndDate
}
