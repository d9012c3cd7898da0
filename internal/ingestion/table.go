package ingestion

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rpattn/rosterscd/internal/domain"

	"github.com/xuri/excelize/v2"
)

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// RawBatch is a parsed but untyped table: one header row and the data rows beneath it.
type RawBatch struct {
	FileName       string
	Headers        []string
	Rows           [][]string
	HeaderRowIndex int
	// Date1904 is set for workbooks using the 1904 date system.
	Date1904 bool
}

// ParseOptions selects the header row and worksheet of the source file.
type ParseOptions struct {
	// HeaderRowIndex is the zero-based row holding the headers. Nil picks the first non-empty row.
	HeaderRowIndex *int
	// Sheet names the worksheet to read; empty reads the first sheet.
	Sheet string
}

// ParseTable reads a CSV or XLSX payload into a RawBatch.
func ParseTable(fileName string, payload []byte, opts ParseOptions) (RawBatch, error) {
	if len(payload) == 0 {
		return RawBatch{}, domain.ErrEmptyFile
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	var (
		records  [][]string
		date1904 bool
		err      error
	)
	switch ext {
	case ".csv":
		records, err = readCSV(payload)
	case ".xlsx", ".xlsm":
		records, date1904, err = readExcel(payload, opts.Sheet)
	default:
		return RawBatch{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return RawBatch{}, err
	}

	batch, err := normalizeTable(records, opts.HeaderRowIndex)
	if err != nil {
		return RawBatch{}, err
	}
	batch.FileName = fileName
	batch.Date1904 = date1904
	return batch, nil
}

func readCSV(payload []byte) ([][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

func readExcel(payload []byte, sheet string) ([][]string, bool, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, false, errors.New("excel file has no sheets")
	}
	if sheet == "" {
		sheet = sheets[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, false, fmt.Errorf("worksheet %q not found", sheet)
	}

	// Raw values keep dates as serial numbers instead of locale-formatted text.
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	var date1904 bool
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	return rows, date1904, nil
}

func normalizeTable(records [][]string, headerRowIndex *int) (RawBatch, error) {
	if len(records) == 0 {
		return RawBatch{}, errors.New("no rows found in file")
	}

	var headerRow []string
	var dataRows [][]string
	headerIndex := -1

	if headerRowIndex != nil {
		if *headerRowIndex < 0 || *headerRowIndex >= len(records) {
			return RawBatch{}, fmt.Errorf("header row index %d out of range", *headerRowIndex)
		}
		selected := cleanRow(records[*headerRowIndex])
		if len(selected) == 0 {
			return RawBatch{}, fmt.Errorf("selected header row %d is empty", *headerRowIndex+1)
		}
		headerRow = records[*headerRowIndex]
		headerIndex = *headerRowIndex
		for idx := *headerRowIndex + 1; idx < len(records); idx++ {
			dataRows = append(dataRows, records[idx])
		}
	} else {
		for idx, row := range records {
			if headerRow == nil {
				if len(cleanRow(row)) == 0 {
					continue
				}
				headerRow = row
				headerIndex = idx
				continue
			}
			dataRows = append(dataRows, row)
		}
	}

	if headerRow == nil {
		return RawBatch{}, errors.New("header row could not be detected")
	}

	headers := make([]string, len(headerRow))
	for i, value := range headerRow {
		headers[i] = strings.TrimSpace(value)
	}

	for i := range dataRows {
		dataRows[i] = padRow(dataRows[i], len(headers))
	}

	return RawBatch{
		Headers:        headers,
		Rows:           dataRows,
		HeaderRowIndex: headerIndex,
	}, nil
}

func cleanRow(row []string) []string {
	var cleaned []string
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			cleaned = append(cleaned, cell)
		}
	}
	return cleaned
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

func isEmptyRow(row []string) bool {
	return len(cleanRow(row)) == 0
}
