package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"
)

const (
	columnRunID    = "run_id"
	columnLoadedAt = "loaded_at"
)

type column struct {
	name string
	typ  domain.FieldType
}

func rosterColumns(schema domain.RosterSchema) []column {
	if len(schema.Fields) == 0 {
		schema = domain.DefaultRosterSchema()
	}
	cols := make([]column, 0, len(schema.Fields))
	for _, field := range schema.Fields {
		cols = append(cols, column{name: field.Name, typ: field.Type})
	}
	return cols
}

// physicalColumns lists the schema columns followed by the bookkeeping columns.
func physicalColumns(cols []column) []string {
	names := make([]string, 0, len(cols)+2)
	for _, col := range cols {
		names = append(names, col.name)
	}
	return append(names, columnRunID, columnLoadedAt)
}

// encodeRecord renders a record as column-ordered values: text columns hold a
// string or nil, date columns a time.Time or nil.
func encodeRecord(cols []column, record domain.EntityRecord) ([]any, error) {
	values := make([]any, len(cols))
	for i, col := range cols {
		switch col.name {
		case domain.FieldEntityID:
			values[i] = record.EntityID
		case domain.FieldStartDate:
			values[i] = domain.Date(record.StartDate)
		case domain.FieldEndDate:
			if record.EndDate != nil {
				values[i] = domain.Date(*record.EndDate)
			}
		default:
			var (
				value any
				err   error
			)
			if col.typ == domain.FieldTypeDate {
				value, err = dateValue(record.Attribute(col.name))
			} else {
				value, err = textValue(record.Attribute(col.name))
			}
			if err != nil {
				return nil, fmt.Errorf("entity %s column %s: %w", record.EntityID, col.name, err)
			}
			values[i] = value
		}
	}
	return values, nil
}

// decodeRecord is the inverse of encodeRecord.
func decodeRecord(cols []column, values []any) domain.EntityRecord {
	record := domain.EntityRecord{Attributes: make(map[string]any, len(cols))}
	for i, col := range cols {
		value := values[i]
		switch col.name {
		case domain.FieldEntityID:
			if s, ok := value.(string); ok {
				record.EntityID = s
			}
		case domain.FieldStartDate:
			if ts, ok := value.(time.Time); ok {
				record.StartDate = domain.Date(ts)
			}
		case domain.FieldEndDate:
			if ts, ok := value.(time.Time); ok {
				record.EndDate = domain.DatePtr(ts)
			}
		default:
			if ts, ok := value.(time.Time); ok {
				value = domain.Date(ts)
			}
			record.Attributes[col.name] = value
		}
	}
	return record
}

func textValue(value any) (any, error) {
	text, err := domain.CanonicalValue(value)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	return text, nil
}

func dateValue(value any) (any, error) {
	switch typed := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if typed.IsZero() {
			return nil, nil
		}
		return domain.Date(typed), nil
	case *time.Time:
		if typed == nil || typed.IsZero() {
			return nil, nil
		}
		return domain.Date(*typed), nil
	case string:
		if strings.TrimSpace(typed) == "" {
			return nil, nil
		}
		ts, err := time.Parse(domain.DateLayout, strings.TrimSpace(typed))
		if err != nil {
			return nil, fmt.Errorf("invalid date %q", typed)
		}
		return ts, nil
	default:
		return nil, fmt.Errorf("%w: %T is not a date", domain.ErrUncomparableValue, value)
	}
}
