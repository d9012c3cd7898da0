// Package export writes versioned roster tables back out as CSV or XLSX.
package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"
	"github.com/rpattn/rosterscd/internal/logging"
	"github.com/rpattn/rosterscd/internal/repository"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const sheetName = "Sheet1"

// ParseFormat resolves a format name, defaulting to CSV.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", value)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Result describes a finished export.
type Result struct {
	RowsExported int
	BytesWritten int64
}

// Service exports table snapshots and entity histories.
type Service struct {
	store  repository.RosterRepository
	schema domain.RosterSchema
	logger *logrus.Entry
}

// NewService creates an export service over store.
func NewService(store repository.RosterRepository, schema domain.RosterSchema, logger *logrus.Entry) *Service {
	return &Service{store: store, schema: schema, logger: logging.OrNop(logger)}
}

// ExportCurrent writes the current version of every entity in table.
func (s *Service) ExportCurrent(ctx context.Context, table string, format Format, w io.Writer) (Result, error) {
	snapshot, err := s.store.FetchCurrent(ctx, table)
	if err != nil {
		return Result{}, domain.NewError(domain.KindStore, "fetch current", err)
	}
	domain.SortTimeline(snapshot.Records)

	result, err := WriteRecords(w, format, s.schema, snapshot.Records)
	if err != nil {
		return result, err
	}
	s.logger.WithFields(logrus.Fields{
		"table":  table,
		"format": format,
		"rows":   result.RowsExported,
		"bytes":  result.BytesWritten,
	}).Info("exported current snapshot")
	return result, nil
}

// ExportHistory writes the logical timeline of one entity.
func (s *Service) ExportHistory(ctx context.Context, table, entityID string, format Format, w io.Writer) (Result, error) {
	timeline, err := s.store.History(ctx, table, entityID)
	if err != nil {
		return Result{}, domain.NewError(domain.KindStore, "history", err)
	}
	return WriteRecords(w, format, s.schema, timeline)
}

// FileName suggests a download name for a table export.
func FileName(table string, format Format, now time.Time) string {
	base := sanitizeFileComponent(table)
	return fmt.Sprintf("%s-%s.%s", base, now.UTC().Format("20060102"), format)
}

// WriteRecords writes records with one column per schema field, in schema order.
func WriteRecords(w io.Writer, format Format, schema domain.RosterSchema, records []domain.EntityRecord) (Result, error) {
	headers := schemaFieldNames(schema.Fields)
	switch format {
	case FormatCSV:
		return writeCSV(w, headers, records)
	case FormatXLSX:
		return writeXLSX(w, headers, records)
	default:
		return Result{}, fmt.Errorf("unsupported export format %q", format)
	}
}

func writeCSV(w io.Writer, headers []string, records []domain.EntityRecord) (Result, error) {
	buffered := bufio.NewWriterSize(w, 1<<16)
	counter := &countingWriter{writer: buffered}
	csvWriter := csv.NewWriter(counter)

	if err := csvWriter.Write(headers); err != nil {
		return Result{}, fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(headers))
	result := Result{}
	for _, record := range records {
		for i, field := range headers {
			row[i] = formatValue(fieldValue(record, field))
		}
		if err := csvWriter.Write(row); err != nil {
			return result, fmt.Errorf("write row: %w", err)
		}
		result.RowsExported++
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return result, fmt.Errorf("flush rows: %w", err)
	}
	if err := buffered.Flush(); err != nil {
		return result, fmt.Errorf("flush buffered rows: %w", err)
	}
	result.BytesWritten = counter.count
	return result, nil
}

func writeXLSX(w io.Writer, headers []string, records []domain.EntityRecord) (Result, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	stream, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return Result{}, fmt.Errorf("open sheet: %w", err)
	}

	header := make([]any, len(headers))
	for i, name := range headers {
		header[i] = name
	}
	if err := stream.SetRow("A1", header); err != nil {
		return Result{}, fmt.Errorf("write header: %w", err)
	}

	result := Result{}
	for idx, record := range records {
		row := make([]any, len(headers))
		for i, field := range headers {
			row[i] = formatValue(fieldValue(record, field))
		}
		cell, err := excelize.CoordinatesToCellName(1, idx+2)
		if err != nil {
			return result, err
		}
		if err := stream.SetRow(cell, row); err != nil {
			return result, fmt.Errorf("write row %d: %w", idx+2, err)
		}
		result.RowsExported++
	}
	if err := stream.Flush(); err != nil {
		return result, fmt.Errorf("flush sheet: %w", err)
	}

	counter := &countingWriter{writer: bufio.NewWriter(w)}
	if _, err := f.WriteTo(counter); err != nil {
		return result, fmt.Errorf("write workbook: %w", err)
	}
	if err := counter.writer.Flush(); err != nil {
		return result, fmt.Errorf("flush workbook: %w", err)
	}
	result.BytesWritten = counter.count
	return result, nil
}

func fieldValue(record domain.EntityRecord, field string) any {
	switch field {
	case domain.FieldEntityID:
		return record.EntityID
	case domain.FieldStartDate:
		return record.StartDate
	case domain.FieldEndDate:
		return record.EndDate
	default:
		return record.Attribute(field)
	}
}

func schemaFieldNames(fields []domain.FieldDefinition) []string {
	names := make([]string, 0, len(fields))
	for _, field := range fields {
		if strings.TrimSpace(field.Name) != "" {
			names = append(names, field.Name)
		}
	}
	return names
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	result := strings.Trim(builder.String(), "-")
	if result == "" {
		return "roster"
	}
	return result
}

type countingWriter struct {
	writer *bufio.Writer
	count  int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.writer.Write(p)
	c.count += int64(n)
	return n, err
}

// formatValue renders dates as YYYY-MM-DD and nil as an empty cell.
func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.Format(domain.DateLayout)
	case *time.Time:
		return domain.FormatDate(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
