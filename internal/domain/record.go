package domain

import (
	"sort"
	"time"
)

// DateLayout is the canonical text form of every date the pipeline handles.
const DateLayout = "2006-01-02"

// EntityRecord is one version of a roster entry. EndDate nil means the version is open.
type EntityRecord struct {
	EntityID   string         `json:"entity_id"`
	Attributes map[string]any `json:"attributes"`
	StartDate  time.Time      `json:"start_date"`
	EndDate    *time.Time     `json:"end_date,omitempty"`
}

// StoredRecord is a physical row of the versioned table, including load bookkeeping.
type StoredRecord struct {
	EntityRecord
	RunID    string    `json:"run_id"`
	LoadedAt time.Time `json:"loaded_at"`
}

// NewEntityRecord creates an open record with a copy of the provided attributes.
func NewEntityRecord(entityID string, attributes map[string]any, startDate time.Time) EntityRecord {
	return EntityRecord{
		EntityID:   entityID,
		Attributes: copyAttributes(attributes),
		StartDate:  Date(startDate),
	}
}

// IsOpen reports whether the record is the active version of its entity.
func (r EntityRecord) IsOpen() bool {
	return r.EndDate == nil
}

// Attribute returns the attribute value or nil when absent.
func (r EntityRecord) Attribute(name string) any {
	if r.Attributes == nil {
		return nil
	}
	return r.Attributes[name]
}

// Clone returns a deep copy of the record.
func (r EntityRecord) Clone() EntityRecord {
	out := EntityRecord{
		EntityID:   r.EntityID,
		Attributes: copyAttributes(r.Attributes),
		StartDate:  r.StartDate,
	}
	if r.EndDate != nil {
		end := *r.EndDate
		out.EndDate = &end
	}
	return out
}

// WithEndDate returns a copy of the record closed at the given date (nil reopens it).
func (r EntityRecord) WithEndDate(end *time.Time) EntityRecord {
	out := r.Clone()
	if end == nil {
		out.EndDate = nil
		return out
	}
	d := Date(*end)
	out.EndDate = &d
	return out
}

// Date truncates t to its calendar day, expressed at UTC midnight.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DatePtr truncates t and returns a pointer to the result.
func DatePtr(t time.Time) *time.Time {
	d := Date(t)
	return &d
}

// Today returns the processing date for now in the given location.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Date(now.In(loc))
}

// FormatDate renders a nullable date; nil renders as the empty string.
func FormatDate(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.Format(DateLayout)
}

// EndAfter reports whether end a is later than end b, treating nil as +infinity.
func EndAfter(a, b *time.Time) bool {
	switch {
	case a == nil && b == nil:
		return false
	case a == nil:
		return true
	case b == nil:
		return false
	default:
		return a.After(*b)
	}
}

// SortTimeline orders records of possibly many entities by entity id, then start date.
func SortTimeline(records []EntityRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].EntityID != records[j].EntityID {
			return records[i].EntityID < records[j].EntityID
		}
		return records[i].StartDate.Before(records[j].StartDate)
	})
}

// LogicalRows collapses physical rows so that for each (entity_id, start_date)
// only the most recently loaded row survives. Ties on load time keep the row
// with the later end date, open rows losing to closed ones.
func LogicalRows(rows []StoredRecord) []EntityRecord {
	type key struct {
		id    string
		start time.Time
	}
	latest := make(map[key]StoredRecord, len(rows))
	order := make([]key, 0, len(rows))
	for _, row := range rows {
		k := key{id: row.EntityID, start: Date(row.StartDate)}
		current, ok := latest[k]
		if !ok {
			latest[k] = row
			order = append(order, k)
			continue
		}
		if row.LoadedAt.After(current.LoadedAt) {
			latest[k] = row
			continue
		}
		if row.LoadedAt.Equal(current.LoadedAt) && closedLater(row.EndDate, current.EndDate) {
			latest[k] = row
		}
	}

	out := make([]EntityRecord, 0, len(order))
	for _, k := range order {
		out = append(out, latest[k].EntityRecord.Clone())
	}
	SortTimeline(out)
	return out
}

// CurrentOf picks the max start_date record per entity from a logical timeline.
// The second return value lists entity ids that have more than one open version.
func CurrentOf(timeline []EntityRecord) ([]EntityRecord, []string) {
	current := make(map[string]EntityRecord)
	openCount := make(map[string]int)
	var ids []string
	for _, rec := range timeline {
		if rec.IsOpen() {
			openCount[rec.EntityID]++
		}
		existing, ok := current[rec.EntityID]
		if !ok {
			ids = append(ids, rec.EntityID)
			current[rec.EntityID] = rec
			continue
		}
		if rec.StartDate.After(existing.StartDate) {
			current[rec.EntityID] = rec
		}
	}

	sort.Strings(ids)
	out := make([]EntityRecord, 0, len(ids))
	var corrupt []string
	for _, id := range ids {
		out = append(out, current[id])
		if openCount[id] > 1 {
			corrupt = append(corrupt, id)
		}
	}
	return out, corrupt
}

func closedLater(candidate, current *time.Time) bool {
	if candidate == nil {
		return false
	}
	if current == nil {
		return true
	}
	return candidate.After(*current)
}

func copyAttributes(input map[string]any) map[string]any {
	if input == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}
