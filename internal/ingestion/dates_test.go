package ingestion

import (
	"errors"
	"testing"

	"github.com/rpattn/rosterscd/internal/domain"
)

func TestDateParser(t *testing.T) {
	cases := []struct {
		raw   string
		order DateOrder
		want  string
	}{
		{"2024-03-01", MonthFirst, "2024-03-01"},
		{"2024-03-01T08:15:00Z", MonthFirst, "2024-03-01"},
		{"2024/03/01", DayFirst, "2024-03-01"},
		{"03/04/2024", MonthFirst, "2024-03-04"},
		{"03/04/2024", DayFirst, "2024-04-03"},
		{"1/2/24", MonthFirst, "2024-01-02"},
		{"01-Mar-2024", MonthFirst, "2024-03-01"},
		{"45292", MonthFirst, "2024-01-01"},
		{"45292.5", MonthFirst, "2024-01-01"},
	}

	for _, tc := range cases {
		got, err := DateParser{Order: tc.order}.Parse(tc.raw)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.raw, err)
		}
		if domain.FormatDate(got) != tc.want {
			t.Errorf("Parse(%q, %s) = %s, want %s", tc.raw, tc.order, domain.FormatDate(got), tc.want)
		}
	}
}

func TestDateParserBlanks(t *testing.T) {
	for _, raw := range []string{"", "  ", "-", "NaN", "NaT"} {
		got, err := DateParser{}.Parse(raw)
		if err != nil || got != nil {
			t.Fatalf("Parse(%q) = %v, %v; want nil, nil", raw, got, err)
		}
	}
}

func TestDateParserRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"soon", "13/45/2024", "-5"} {
		got, err := DateParser{}.Parse(raw)
		if !errors.Is(err, errUnparseableDate) || got != nil {
			t.Fatalf("Parse(%q) = %v, %v; want unparseable", raw, got, err)
		}
	}
}
