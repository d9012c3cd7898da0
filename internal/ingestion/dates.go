package ingestion

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"

	"github.com/xuri/excelize/v2"
)

// DateOrder selects how ambiguous numeric dates such as 03/04/2024 are read.
type DateOrder string

const (
	MonthFirst DateOrder = "mdy"
	DayFirst   DateOrder = "dmy"
)

var errUnparseableDate = errors.New("unrecognized date format")

var (
	isoLayouts = []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05.000000",
		"2006-01-02T15:04:05",
		"2006/01/02",
		"2006.01.02",
		"02-Jan-2006",
		"2-Jan-2006",
		"02-Jan-06",
		"2-Jan-06",
		"Jan 2, 2006",
		"January 2, 2006",
		"2 January 2006",
		"2 Jan 2006",
	}
	monthFirstLayouts = []string{
		"01/02/2006",
		"1/2/2006",
		"01/02/06",
		"1/2/06",
		"01-02-2006",
		"1/2/2006 15:04",
		"1/2/2006 15:04:05",
	}
	dayFirstLayouts = []string{
		"02/01/2006",
		"2/1/2006",
		"02/01/06",
		"2/1/06",
		"02-01-2006",
		"2/1/2006 15:04",
		"2/1/2006 15:04:05",
	}
)

// Excel serial numbers outside this window are not treated as dates.
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465 // 9999-12-31
)

// DateParser is the tolerant date parser applied to every date column.
type DateParser struct {
	Order    DateOrder
	Date1904 bool
}

// Parse returns nil for blank and "-" cells, the calendar day for any recognized
// representation, and errUnparseableDate otherwise.
func (p DateParser) Parse(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "-" {
		return nil, nil
	}
	switch strings.ToLower(raw) {
	case "nan", "nat", "null", "none":
		return nil, nil
	}

	for _, layout := range isoLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return domain.DatePtr(ts), nil
		}
	}

	ordered := monthFirstLayouts
	if p.Order == DayFirst {
		ordered = dayFirstLayouts
	}
	for _, layout := range ordered {
		if ts, err := time.Parse(layout, raw); err == nil {
			return domain.DatePtr(ts), nil
		}
	}

	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial >= minExcelSerial && serial <= maxExcelSerial {
		ts, err := excelize.ExcelDateToTime(serial, p.Date1904)
		if err == nil {
			return domain.DatePtr(ts), nil
		}
	}

	return nil, errUnparseableDate
}
