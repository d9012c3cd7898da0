package ingestion

import (
	"errors"
	"testing"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"

	"github.com/xuri/excelize/v2"
)

func TestParseTableCSVWithBOM(t *testing.T) {
	payload := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Emp ID,Name\n1,Alice\n2\n")...)

	raw, err := ParseTable("roster.csv", payload, ParseOptions{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if raw.Headers[0] != "Emp ID" {
		t.Fatalf("expected BOM to be stripped, got %q", raw.Headers[0])
	}
	if len(raw.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(raw.Rows))
	}
	if len(raw.Rows[1]) != 2 || raw.Rows[1][1] != "" {
		t.Fatalf("expected short row to be padded, got %#v", raw.Rows[1])
	}
}

func TestParseTableHeaderRowIndex(t *testing.T) {
	payload := []byte("Roster export,\n,\nEmp ID,Name\n1,Alice\n")
	header := 2

	raw, err := ParseTable("roster.csv", payload, ParseOptions{HeaderRowIndex: &header})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if raw.HeaderRowIndex != 2 || raw.Headers[1] != "Name" {
		t.Fatalf("unexpected header selection: %+v", raw)
	}
	if len(raw.Rows) != 1 || raw.Rows[0][1] != "Alice" {
		t.Fatalf("unexpected rows: %#v", raw.Rows)
	}

	outOfRange := 10
	if _, err := ParseTable("roster.csv", payload, ParseOptions{HeaderRowIndex: &outOfRange}); err == nil {
		t.Fatalf("expected out of range header row to fail")
	}
}

func TestParseTableAutoDetectSkipsBlankRows(t *testing.T) {
	raw, err := ParseTable("roster.csv", []byte(",\nEmp ID,Name\n1,Alice\n"), ParseOptions{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if raw.HeaderRowIndex != 1 {
		t.Fatalf("expected header on row index 1, got %d", raw.HeaderRowIndex)
	}
}

func TestParseTableRejectsInput(t *testing.T) {
	if _, err := ParseTable("roster.csv", nil, ParseOptions{}); !errors.Is(err, domain.ErrEmptyFile) {
		t.Fatalf("expected empty file error, got %v", err)
	}
	if _, err := ParseTable("roster.json", []byte("{}"), ParseOptions{}); !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}

func TestParseTableExcel(t *testing.T) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	rows := [][]any{
		{"Emp ID", "Name", "Start Date"},
		{1001, "Alice", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{1002, "Bob", "2024-04-15"},
	}
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cellRef, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	raw, err := ParseTable("roster.xlsx", buf.Bytes(), ParseOptions{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(raw.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(raw.Rows))
	}

	batch, err := NewNormalizer(NormalizerOptions{Now: fixedClock}).Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got := batch.Records[0].StartDate.Format(domain.DateLayout); got != "2024-03-01" {
		t.Fatalf("expected excel date cell to parse as 2024-03-01, got %s", got)
	}
	if got := batch.Records[1].StartDate.Format(domain.DateLayout); got != "2024-04-15" {
		t.Fatalf("expected text date to parse, got %s", got)
	}
	if batch.Records[0].EntityID != "1001" {
		t.Fatalf("unexpected identifier %s", batch.Records[0].EntityID)
	}
}

func TestParseTableExcelMissingSheet(t *testing.T) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetCellValue("Sheet1", "A1", "Emp ID"); err != nil {
		t.Fatalf("set cell: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	if _, err := ParseTable("roster.xlsx", buf.Bytes(), ParseOptions{Sheet: "Roster"}); err == nil {
		t.Fatalf("expected missing worksheet to fail")
	}
}
