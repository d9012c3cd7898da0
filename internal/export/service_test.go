package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"
	"github.com/rpattn/rosterscd/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testSchema() domain.RosterSchema {
	return domain.RosterSchema{Fields: []domain.FieldDefinition{
		{Name: domain.FieldEntityID, Type: domain.FieldTypeString, Required: true},
		{Name: "name", Type: domain.FieldTypeString},
		{Name: "go_live", Type: domain.FieldTypeDate},
		{Name: domain.FieldStartDate, Type: domain.FieldTypeDate},
		{Name: domain.FieldEndDate, Type: domain.FieldTypeDate},
	}}
}

func seededStore(t *testing.T) repository.RosterRepository {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryRosterRepository(testSchema())
	require.NoError(t, store.EnsureSchema(ctx, "tbl_roster"))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	changed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	first := domain.NewEntityRecord("1002", map[string]any{"name": "Bob", "go_live": start}, start)
	second := domain.NewEntityRecord("1001", map[string]any{"name": "Alice, A.", "go_live": nil}, start)
	_, err := store.Append(ctx, "tbl_roster", []domain.EntityRecord{first, second}, repository.AppendOptions{RunID: uuid.New(), LoadedAt: start})
	require.NoError(t, err)

	closed := second.WithEndDate(domain.DatePtr(changed))
	opened := domain.NewEntityRecord("1001", map[string]any{"name": "Alice"}, changed)
	_, err = store.Append(ctx, "tbl_roster", []domain.EntityRecord{closed, opened}, repository.AppendOptions{RunID: uuid.New(), LoadedAt: changed})
	require.NoError(t, err)
	return store
}

func TestExportCurrentCSV(t *testing.T) {
	service := NewService(seededStore(t), testSchema(), nil)

	var buf bytes.Buffer
	result, err := service.ExportCurrent(context.Background(), "tbl_roster", FormatCSV, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowsExported)
	assert.Equal(t, int64(buf.Len()), result.BytesWritten)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"entity_id", "name", "go_live", "start_date", "end_date"},
		{"1001", "Alice", "", "2024-06-01", ""},
		{"1002", "Bob", "2024-01-01", "2024-01-01", ""},
	}, rows)
}

func TestExportHistoryXLSX(t *testing.T) {
	service := NewService(seededStore(t), testSchema(), nil)

	var buf bytes.Buffer
	result, err := service.ExportHistory(context.Background(), "tbl_roster", "1001", FormatXLSX, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowsExported)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"1001", "Alice, A.", "", "2024-01-01", "2024-06-01"}, rows[1])
	assert.Equal(t, "2024-06-01", rows[2][3])
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, format)

	_, err = ParseFormat("parquet")
	assert.Error(t, err)
}

func TestHTTPHandler(t *testing.T) {
	handler := NewHTTPHandler(NewService(seededStore(t), testSchema(), nil))
	handler.now = func() time.Time { return time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC) }
	mux := http.NewServeMux()
	handler.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tables/tbl_roster/current", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "tbl_roster-20240701.csv")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tables/missing/current", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tables/tbl_roster/current?format=pdf", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
