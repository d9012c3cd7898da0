package ingestion

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"
	"github.com/rpattn/rosterscd/internal/logging"

	"github.com/sirupsen/logrus"
)

var invalidColumnChars = regexp.MustCompile(`[^a-z0-9_]+`)

// NormalizeColumnName lowercases and trims a header, collapses every run of
// characters outside [a-z0-9_] into one underscore and strips edge underscores.
func NormalizeColumnName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = invalidColumnChars.ReplaceAllString(name, "_")
	return strings.Trim(name, "_")
}

// NormalizedBatch is the typed, de-duplicated record set handed to reconciliation.
type NormalizedBatch struct {
	Records     []domain.EntityRecord
	Warnings    []domain.DataQualityWarning
	RowsRead    int
	RowsDropped int
	// Duplicates counts rows superseded by a later row with the same identifier.
	Duplicates int
}

// NormalizerOptions configures the Normalizer.
type NormalizerOptions struct {
	Schema              domain.RosterSchema
	AllowUnknownColumns bool
	DateOrder           DateOrder
	Location            *time.Location
	Now                 func() time.Time
	Logger              *logrus.Entry
}

// Normalizer converts a RawBatch into typed entity records.
type Normalizer struct {
	schema       domain.RosterSchema
	allowUnknown bool
	order        DateOrder
	loc          *time.Location
	now          func() time.Time
	logger       *logrus.Entry
}

// NewNormalizer creates a normalizer. Zero-valued options fall back to the default roster schema,
// month-first dates, UTC and the wall clock.
func NewNormalizer(opts NormalizerOptions) *Normalizer {
	n := &Normalizer{
		schema:       opts.Schema,
		allowUnknown: opts.AllowUnknownColumns,
		order:        opts.DateOrder,
		loc:          opts.Location,
		now:          opts.Now,
		logger:       opts.Logger,
	}
	if len(n.schema.Fields) == 0 {
		n.schema = domain.DefaultRosterSchema()
	}
	if n.order == "" {
		n.order = MonthFirst
	}
	if n.loc == nil {
		n.loc = time.UTC
	}
	if n.now == nil {
		n.now = time.Now
	}
	if n.logger == nil {
		n.logger = logging.Nop()
	}
	return n
}

// Schema returns the schema the normalizer enforces.
func (n *Normalizer) Schema() domain.RosterSchema {
	return n.schema
}

type boundColumn struct {
	index int
	field domain.FieldDefinition
}

// Normalize validates headers against the schema and types every row.
// Schema violations are fatal; row level problems become warnings.
func (n *Normalizer) Normalize(raw RawBatch) (NormalizedBatch, error) {
	batch := NormalizedBatch{
		Records:  []domain.EntityRecord{},
		Warnings: []domain.DataQualityWarning{},
	}

	columns, err := n.bindColumns(raw.Headers)
	if err != nil {
		return batch, domain.NewError(domain.KindSchemaMismatch, "bind columns", err)
	}

	var idColumn *boundColumn
	present := make(map[string]bool, len(columns))
	for i := range columns {
		present[columns[i].field.Name] = true
		if columns[i].field.Name == domain.FieldEntityID {
			idColumn = &columns[i]
		}
	}
	if idColumn == nil {
		return batch, domain.NewError(domain.KindSchemaMismatch, "bind columns",
			fmt.Errorf("%w: expected one of %v", domain.ErrMissingIdentifierColumn, identifierNames(n.schema)))
	}
	for _, field := range n.schema.Fields {
		if field.Required && !present[field.Name] {
			return batch, domain.NewError(domain.KindSchemaMismatch, "bind columns",
				fmt.Errorf("required column %s missing", field.Name))
		}
	}

	parser := DateParser{Order: n.order, Date1904: raw.Date1904}
	today := domain.Today(n.now(), n.loc)
	position := make(map[string]int)

	for rowIdx, row := range raw.Rows {
		if isEmptyRow(row) {
			continue
		}
		batch.RowsRead++
		rowNumber := raw.HeaderRowIndex + rowIdx + 2

		entityID := domain.CanonicalNumber(cell(row, idColumn.index))
		if entityID == "" {
			batch.RowsDropped++
			batch.Warnings = append(batch.Warnings, domain.DataQualityWarning{
				RowNumber: rowNumber,
				Column:    domain.FieldEntityID,
				Reason:    "missing identifier, row dropped",
			})
			continue
		}

		record := domain.EntityRecord{
			EntityID:   entityID,
			Attributes: make(map[string]any, len(columns)),
			StartDate:  today,
		}
		// Only columns carried by the file become attributes; the engine
		// leaves absent ones untouched.

		for _, col := range columns {
			value := strings.TrimSpace(cell(row, col.index))
			switch col.field.Name {
			case domain.FieldEntityID:
				continue
			case domain.FieldStartDate, domain.FieldEndDate:
				parsed, perr := parser.Parse(value)
				if perr != nil {
					batch.Warnings = append(batch.Warnings, unparseableDate(rowNumber, col.field.Name, entityID, value))
				}
				if col.field.Name == domain.FieldStartDate {
					if parsed != nil {
						record.StartDate = *parsed
					}
				} else {
					record.EndDate = parsed
				}
				continue
			}

			if col.field.Type == domain.FieldTypeDate {
				parsed, perr := parser.Parse(value)
				if perr != nil {
					batch.Warnings = append(batch.Warnings, unparseableDate(rowNumber, col.field.Name, entityID, value))
				}
				if parsed != nil {
					record.Attributes[col.field.Name] = *parsed
				} else {
					record.Attributes[col.field.Name] = nil
				}
				continue
			}

			if value == "" {
				record.Attributes[col.field.Name] = nil
				continue
			}
			record.Attributes[col.field.Name] = value
		}

		if idx, dup := position[entityID]; dup {
			batch.Duplicates++
			batch.Warnings = append(batch.Warnings, domain.DataQualityWarning{
				RowNumber: rowNumber,
				Column:    domain.FieldEntityID,
				EntityID:  entityID,
				Reason:    "duplicate identifier, supersedes earlier row",
			})
			batch.Records[idx] = record
			continue
		}
		position[entityID] = len(batch.Records)
		batch.Records = append(batch.Records, record)
	}

	if batch.RowsDropped > 0 {
		n.logger.WithField("dropped", batch.RowsDropped).Warn("rows without identifier dropped")
	}
	if batch.Duplicates > 0 {
		n.logger.WithField("duplicates", batch.Duplicates).Warn("duplicate identifiers resolved, last row wins")
	}

	return batch, nil
}

func (n *Normalizer) bindColumns(headers []string) ([]boundColumn, error) {
	var columns []boundColumn
	seen := make(map[string]string)

	for idx, header := range headers {
		name := NormalizeColumnName(header)
		if target, ok := n.schema.Positions[idx]; ok && target != name {
			n.logger.WithFields(logrus.Fields{
				"index":    idx,
				"found":    name,
				"expected": target,
			}).Info("column mismatch corrected by position")
			name = target
		}
		if name == "" {
			n.logger.WithField("index", idx).Debug("ignoring column without header")
			continue
		}

		field, ok := n.schema.Lookup(name)
		if !ok {
			if n.allowUnknown {
				n.logger.WithField("column", header).Info("ignoring column not in roster schema")
				continue
			}
			return nil, fmt.Errorf("%w: %q (normalized %q)", domain.ErrUnknownColumn, header, name)
		}

		if prev, dup := seen[field.Name]; dup {
			return nil, fmt.Errorf("%w: %q and %q both map to %s", domain.ErrDuplicateColumn, prev, header, field.Name)
		}
		seen[field.Name] = header
		columns = append(columns, boundColumn{index: idx, field: field})
	}

	return columns, nil
}

func identifierNames(schema domain.RosterSchema) []string {
	field, _ := schema.Lookup(domain.FieldEntityID)
	return append([]string{field.Name}, field.Aliases...)
}

func unparseableDate(rowNumber int, column, entityID, value string) domain.DataQualityWarning {
	return domain.DataQualityWarning{
		RowNumber: rowNumber,
		Column:    column,
		EntityID:  entityID,
		Reason:    fmt.Sprintf("unparseable date %q treated as empty", value),
	}
}

func cell(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}
