package validator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"
)

// RecordValidator checks normalized records against the roster schema and
// versioned timelines against the history invariants.
type RecordValidator struct {
	fields map[string]domain.FieldDefinition
}

// NewRecordValidator creates a validator for the given schema.
func NewRecordValidator(schema domain.RosterSchema) *RecordValidator {
	fields := make(map[string]domain.FieldDefinition, len(schema.Fields))
	for _, field := range schema.Fields {
		fields[field.Name] = field
	}
	return &RecordValidator{fields: fields}
}

// ValidationError represents a validation error
type ValidationError struct {
	EntityID string `json:"entity_id,omitempty"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
	Value    any    `json:"value,omitempty"`
}

func (e ValidationError) Error() string {
	switch {
	case e.EntityID != "" && e.Field != "":
		return fmt.Sprintf("%s.%s: %s", e.EntityID, e.Field, e.Message)
	case e.EntityID != "":
		return fmt.Sprintf("%s: %s", e.EntityID, e.Message)
	default:
		return e.Message
	}
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	IsValid  bool              `json:"is_valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []ValidationError `json:"warnings"`
}

func newResult() ValidationResult {
	return ValidationResult{
		IsValid:  true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}
}

func (r *ValidationResult) fail(e ValidationError) {
	r.IsValid = false
	r.Errors = append(r.Errors, e)
}

func (r *ValidationResult) merge(other ValidationResult) {
	if !other.IsValid {
		r.IsValid = false
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Err summarizes the result as an error, nil when valid.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	messages := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		messages = append(messages, e.Error())
	}
	return fmt.Errorf("validation failed: %s", strings.Join(messages, "; "))
}

// ValidateRecord validates a single record's identifier, temporal fields and attribute types.
func (v *RecordValidator) ValidateRecord(record domain.EntityRecord) ValidationResult {
	result := newResult()

	if strings.TrimSpace(record.EntityID) == "" {
		result.fail(ValidationError{Field: domain.FieldEntityID, Message: "identifier is required"})
	}
	if record.StartDate.IsZero() {
		result.fail(ValidationError{EntityID: record.EntityID, Field: domain.FieldStartDate, Message: "start date is required"})
	}
	if record.EndDate != nil && record.EndDate.Before(record.StartDate) {
		result.Warnings = append(result.Warnings, ValidationError{
			EntityID: record.EntityID,
			Field:    domain.FieldEndDate,
			Message:  fmt.Sprintf("end date %s precedes start date %s", domain.FormatDate(record.EndDate), record.StartDate.Format(domain.DateLayout)),
		})
	}

	names := make([]string, 0, len(record.Attributes))
	for name := range record.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := record.Attributes[name]
		def, ok := v.fields[name]
		if !ok {
			result.fail(ValidationError{
				EntityID: record.EntityID,
				Field:    name,
				Message:  fmt.Sprintf("property '%s' is not defined in schema", name),
				Value:    value,
			})
			continue
		}
		if value == nil {
			if def.Required {
				result.fail(ValidationError{EntityID: record.EntityID, Field: name, Message: fmt.Sprintf("required field '%s' is missing", name)})
			}
			continue
		}
		if err := validateFieldType(name, value, def.Type); err != nil {
			result.fail(ValidationError{EntityID: record.EntityID, Field: name, Message: err.Error(), Value: value})
		}
	}

	return result
}

// ValidateTimeline checks the history invariants over a set of records that may
// span several entities: start dates strictly increase per entity, only the
// latest version may be open, and at most one version is open.
func (v *RecordValidator) ValidateTimeline(records []domain.EntityRecord) ValidationResult {
	result := newResult()

	sorted := make([]domain.EntityRecord, len(records))
	copy(sorted, records)
	domain.SortTimeline(sorted)

	for start := 0; start < len(sorted); {
		end := start
		for end < len(sorted) && sorted[end].EntityID == sorted[start].EntityID {
			end++
		}
		result.merge(validateEntityTimeline(sorted[start:end]))
		start = end
	}

	return result
}

func validateEntityTimeline(versions []domain.EntityRecord) ValidationResult {
	result := newResult()
	open := 0
	for i, version := range versions {
		if version.IsOpen() {
			open++
			if i != len(versions)-1 {
				result.fail(ValidationError{
					EntityID: version.EntityID,
					Field:    domain.FieldEndDate,
					Message:  fmt.Sprintf("version starting %s is open but not the latest", version.StartDate.Format(domain.DateLayout)),
				})
			}
		}
		if i == 0 {
			continue
		}
		prev := versions[i-1]
		if !version.StartDate.After(prev.StartDate) {
			result.fail(ValidationError{
				EntityID: version.EntityID,
				Field:    domain.FieldStartDate,
				Message:  fmt.Sprintf("start date %s does not advance past %s", version.StartDate.Format(domain.DateLayout), prev.StartDate.Format(domain.DateLayout)),
			})
		}
	}
	if open > 1 {
		result.fail(ValidationError{
			EntityID: versions[0].EntityID,
			Message:  fmt.Sprintf("%d open versions", open),
		})
	}
	return result
}

// validateFieldType validates the type of a field value
func validateFieldType(fieldName string, value any, expectedType domain.FieldType) error {
	switch expectedType {
	case domain.FieldTypeString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field '%s' must be a string, got %T", fieldName, value)
		}
	case domain.FieldTypeDate:
		switch v := value.(type) {
		case time.Time:
			if v.IsZero() {
				return fmt.Errorf("field '%s' must be a non-zero date", fieldName)
			}
		case *time.Time:
			if v == nil {
				return nil
			}
		default:
			return fmt.Errorf("field '%s' must be a date, got %T", fieldName, value)
		}
	default:
		return fmt.Errorf("field '%s' has unsupported type %q", fieldName, expectedType)
	}
	return nil
}
