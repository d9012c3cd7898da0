package ingestion

import (
	"fmt"
	"os"

	"github.com/rpattn/rosterscd/internal/domain"

	"gopkg.in/yaml.v3"
)

type schemaDocument struct {
	Schema domain.RosterSchema `yaml:"schema"`
}

// LoadSchemaFile reads a roster schema override from a YAML document of the form:
//
//	schema:
//	  columns:
//	    - name: entity_id
//	      type: string
//	      required: true
//	      aliases: [emp_id]
//	  positions:
//	    3: role
func LoadSchemaFile(path string) (domain.RosterSchema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.RosterSchema{}, fmt.Errorf("read schema file: %w", err)
	}
	return ParseSchema(raw)
}

// ParseSchema decodes and validates a YAML schema document.
func ParseSchema(raw []byte) (domain.RosterSchema, error) {
	var doc schemaDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return domain.RosterSchema{}, fmt.Errorf("decode schema: %w", err)
	}
	for i := range doc.Schema.Fields {
		doc.Schema.Fields[i].Name = NormalizeColumnName(doc.Schema.Fields[i].Name)
		if doc.Schema.Fields[i].Type == "" {
			doc.Schema.Fields[i].Type = domain.FieldTypeString
		}
		for j, alias := range doc.Schema.Fields[i].Aliases {
			doc.Schema.Fields[i].Aliases[j] = NormalizeColumnName(alias)
		}
	}
	if err := doc.Schema.Validate(); err != nil {
		return domain.RosterSchema{}, fmt.Errorf("invalid schema: %w", err)
	}
	return doc.Schema, nil
}

// MarshalSchema renders schema in the document form LoadSchemaFile reads.
func MarshalSchema(schema domain.RosterSchema) ([]byte, error) {
	return yaml.Marshal(schemaDocument{Schema: schema})
}
