package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"
	"github.com/rpattn/rosterscd/pkg/validator"
)

func day(value string) time.Time {
	ts, err := time.Parse(domain.DateLayout, value)
	if err != nil {
		panic(err)
	}
	return ts
}

func record(id, start string, end string, attrs map[string]any) domain.EntityRecord {
	rec := domain.NewEntityRecord(id, attrs, day(start))
	if end != "" {
		rec = rec.WithEndDate(domain.DatePtr(day(end)))
	}
	return rec
}

func newTestEngine() *Engine {
	return NewEngine(Options{
		Schema: domain.DefaultRosterSchema(),
		Now:    func() time.Time { return time.Date(2024, 7, 15, 9, 0, 0, 0, time.UTC) },
	})
}

// history simulates the store read path: every append is a new physical row,
// and the current snapshot is derived from the logical timeline.
type history struct {
	rows  []domain.StoredRecord
	clock time.Time
}

func (h *history) apply(plan Plan) {
	h.clock = h.clock.Add(time.Minute)
	for _, rec := range plan.Appends {
		h.rows = append(h.rows, domain.StoredRecord{EntityRecord: rec, LoadedAt: h.clock})
	}
}

func (h *history) timeline() []domain.EntityRecord {
	return domain.LogicalRows(h.rows)
}

func (h *history) current() []domain.EntityRecord {
	current, _ := domain.CurrentOf(h.timeline())
	return current
}

func TestReconcileNewKey(t *testing.T) {
	plan := newTestEngine().Reconcile(nil, []domain.EntityRecord{
		record("E1", "2024-01-01", "", map[string]any{"name": "Alice"}),
	})

	if len(plan.Appends) != 1 {
		t.Fatalf("expected 1 append, got %d", len(plan.Appends))
	}
	appended := plan.Appends[0]
	if appended.EndDate != nil || !appended.StartDate.Equal(day("2024-01-01")) {
		t.Fatalf("unexpected appended record %+v", appended)
	}
	if plan.Stats.New != 1 || plan.Decisions[0].Outcome != OutcomeNew {
		t.Fatalf("expected new outcome, got %+v", plan.Stats)
	}
}

func TestReconcileUnchangedKey(t *testing.T) {
	existing := []domain.EntityRecord{record("E1", "2024-01-01", "", map[string]any{"name": "Alice"})}
	incoming := []domain.EntityRecord{record("E1", "2024-06-01", "", map[string]any{"name": "Alice"})}

	plan := newTestEngine().Reconcile(existing, incoming)
	if !plan.Empty() {
		t.Fatalf("expected no appends, got %+v", plan.Appends)
	}
	if plan.Stats.Unchanged != 1 {
		t.Fatalf("expected unchanged outcome, got %+v", plan.Stats)
	}
}

func TestReconcileChangedKey(t *testing.T) {
	existing := []domain.EntityRecord{record("E1", "2024-01-01", "", map[string]any{"name": "Alice", "role": "Agent"})}
	incoming := []domain.EntityRecord{record("E1", "2024-06-01", "", map[string]any{"name": "Bob", "role": "Agent"})}

	plan := newTestEngine().Reconcile(existing, incoming)
	if len(plan.Appends) != 2 {
		t.Fatalf("expected 2 appends, got %d", len(plan.Appends))
	}

	closed, opened := plan.Appends[0], plan.Appends[1]
	if closed.Attribute("name") != "Alice" || !closed.StartDate.Equal(day("2024-01-01")) {
		t.Fatalf("unexpected close record %+v", closed)
	}
	if closed.EndDate == nil || !closed.EndDate.Equal(day("2024-06-01")) {
		t.Fatalf("expected close at 2024-06-01, got %v", closed.EndDate)
	}
	if opened.Attribute("name") != "Bob" || opened.EndDate != nil || !opened.StartDate.Equal(day("2024-06-01")) {
		t.Fatalf("unexpected open record %+v", opened)
	}

	decision := plan.Decisions[0]
	if decision.Outcome != OutcomeChanged || len(decision.ChangedFields) != 1 || decision.ChangedFields[0] != "name" {
		t.Fatalf("unexpected decision %+v", decision)
	}
	if existing[0].EndDate != nil {
		t.Fatalf("existing record must not be mutated")
	}
}

func TestReconcileIgnoresExistingOnlyKeys(t *testing.T) {
	existing := []domain.EntityRecord{
		record("E1", "2024-01-01", "", map[string]any{"name": "Alice"}),
		record("E2", "2024-01-01", "", map[string]any{"name": "Bea"}),
	}
	plan := newTestEngine().Reconcile(existing, []domain.EntityRecord{
		record("E1", "2024-02-01", "", map[string]any{"name": "Alice"}),
	})
	if !plan.Empty() || len(plan.Decisions) != 1 {
		t.Fatalf("expected only E1 to be considered, got %+v", plan.Decisions)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	engine := newTestEngine()
	h := &history{clock: day("2024-01-01")}
	batch := []domain.EntityRecord{
		record("E1", "2024-01-01", "", map[string]any{"name": "Alice"}),
		record("E2", "2024-01-01", "", map[string]any{"name": "Bea"}),
	}

	h.apply(engine.Reconcile(h.current(), batch))

	changed := []domain.EntityRecord{
		record("E1", "2024-06-01", "", map[string]any{"name": "Bob"}),
		record("E2", "2024-06-01", "", map[string]any{"name": "Bea"}),
	}
	first := engine.Reconcile(h.current(), changed)
	if len(first.Appends) != 2 {
		t.Fatalf("expected close and open for E1, got %d appends", len(first.Appends))
	}
	h.apply(first)

	second := engine.Reconcile(h.current(), changed)
	if !second.Empty() {
		t.Fatalf("expected second run to be a no-op, got %+v", second.Appends)
	}
	if second.Stats.Unchanged != 2 {
		t.Fatalf("expected 2 unchanged keys, got %+v", second.Stats)
	}
}

func TestReconcileHistoryStaysConsistent(t *testing.T) {
	engine := newTestEngine()
	h := &history{clock: day("2024-01-01")}
	names := []string{"Alice", "Alicia", "Alicia", "Ali", "Alice"}
	starts := []string{"2024-01-01", "2024-02-01", "2024-03-01", "2024-04-01", "2024-05-01"}

	for i := range names {
		h.apply(engine.Reconcile(h.current(), []domain.EntityRecord{
			record("E1", starts[i], "", map[string]any{"name": names[i]}),
		}))
	}

	timeline := h.timeline()
	if len(timeline) != 4 {
		t.Fatalf("expected 4 versions, got %d", len(timeline))
	}
	result := validator.NewRecordValidator(domain.DefaultRosterSchema()).ValidateTimeline(timeline)
	if !result.IsValid {
		t.Fatalf("expected consistent history, got %+v", result.Errors)
	}
	if timeline[3].Attribute("name") != "Alice" || !timeline[3].IsOpen() {
		t.Fatalf("expected latest version open with name Alice, got %+v", timeline[3])
	}
}

func TestReconcileCloseDateNeverMovesBackward(t *testing.T) {
	engine := newTestEngine()

	alreadyClosed := []domain.EntityRecord{record("E1", "2024-01-01", "2024-09-01", map[string]any{"name": "Alice"})}
	plan := engine.Reconcile(alreadyClosed, []domain.EntityRecord{
		record("E1", "2024-06-01", "", map[string]any{"name": "Bob"}),
	})
	if len(plan.Appends) != 1 {
		t.Fatalf("expected only the open record, got %+v", plan.Appends)
	}
	for _, rec := range plan.Appends {
		if rec.EndDate != nil && rec.EndDate.Before(day("2024-09-01")) {
			t.Fatalf("close date moved backward: %v", rec.EndDate)
		}
	}

	closedEarlier := []domain.EntityRecord{record("E1", "2024-01-01", "2024-03-01", map[string]any{"name": "Alice"})}
	plan = engine.Reconcile(closedEarlier, []domain.EntityRecord{
		record("E1", "2024-06-01", "", map[string]any{"name": "Bob"}),
	})
	if len(plan.Appends) != 2 || !plan.Appends[0].EndDate.Equal(day("2024-06-01")) {
		t.Fatalf("expected close date to advance to 2024-06-01, got %+v", plan.Appends)
	}
}

func TestReconcileNormalizedEquality(t *testing.T) {
	existing := []domain.EntityRecord{record("E1", "2024-01-01", "", map[string]any{
		"wave":         5,
		"tenure":       12.0,
		"site":         nil,
		"date_of_hire": day("2023-11-02"),
		"phone_number": " 555 ",
	})}
	incoming := []domain.EntityRecord{record("E1", "2024-06-01", "", map[string]any{
		"wave":         "5",
		"tenure":       "12",
		"site":         "",
		"date_of_hire": "2023-11-02",
		"phone_number": "555",
	})}

	plan := newTestEngine().Reconcile(existing, incoming)
	if !plan.Empty() || plan.Stats.Unchanged != 1 {
		t.Fatalf("expected representation differences to compare equal, got %+v", plan.Decisions)
	}
}

func TestReconcileDuplicateExistingPrefersOpenRow(t *testing.T) {
	existing := []domain.EntityRecord{
		record("E1", "2024-02-01", "2024-03-01", map[string]any{"name": "Alicia"}),
		record("E1", "2024-01-01", "", map[string]any{"name": "Alice"}),
	}
	plan := newTestEngine().Reconcile(existing, []domain.EntityRecord{
		record("E1", "2024-06-01", "", map[string]any{"name": "Alice"}),
	})
	if plan.Stats.Unchanged != 1 {
		t.Fatalf("expected the open row to be selected as current, got %+v", plan.Decisions)
	}

	closedOnly := []domain.EntityRecord{
		record("E1", "2024-01-01", "2024-02-01", map[string]any{"name": "Alice"}),
		record("E1", "2024-02-01", "2024-05-01", map[string]any{"name": "Alicia"}),
	}
	plan = newTestEngine().Reconcile(closedOnly, []domain.EntityRecord{
		record("E1", "2024-06-01", "", map[string]any{"name": "Alicia"}),
	})
	if plan.Stats.Unchanged != 1 {
		t.Fatalf("expected the latest end date to be selected, got %+v", plan.Decisions)
	}
}

func TestReconcileSkipsUncomparableKey(t *testing.T) {
	existing := []domain.EntityRecord{
		record("E1", "2024-01-01", "", map[string]any{"name": "Alice"}),
		record("E2", "2024-01-01", "", map[string]any{"name": "Bea"}),
	}
	incoming := []domain.EntityRecord{
		record("E1", "2024-06-01", "", map[string]any{"name": []string{"Alice", "Bob"}}),
		record("E2", "2024-06-01", "", map[string]any{"name": "Beatriz"}),
	}

	plan := newTestEngine().Reconcile(existing, incoming)
	if plan.Stats.Skipped != 1 || plan.Stats.Changed != 1 {
		t.Fatalf("unexpected stats %+v", plan.Stats)
	}
	if len(plan.Errors) != 1 {
		t.Fatalf("expected one key error, got %+v", plan.Errors)
	}
	keyErr := plan.Errors[0]
	if keyErr.EntityID != "E1" || keyErr.Field != "name" || !errors.Is(keyErr, domain.ErrUncomparableValue) {
		t.Fatalf("unexpected key error %+v", keyErr)
	}
	for _, rec := range plan.Appends {
		if rec.EntityID == "E1" {
			t.Fatalf("skipped key must not append rows")
		}
	}
}

func TestReconcileRejectsNonIncreasingStart(t *testing.T) {
	existing := []domain.EntityRecord{record("E1", "2024-06-01", "", map[string]any{"name": "Alice"})}
	plan := newTestEngine().Reconcile(existing, []domain.EntityRecord{
		record("E1", "2024-06-01", "", map[string]any{"name": "Bob"}),
	})
	if !plan.Empty() || plan.Stats.Skipped != 1 {
		t.Fatalf("expected key to be skipped, got %+v", plan)
	}
	if !errors.Is(plan.Errors[0], domain.ErrNonIncreasingStart) {
		t.Fatalf("expected non-increasing start error, got %v", plan.Errors[0])
	}
}

func TestReconcileDefaultsStartToToday(t *testing.T) {
	incoming := domain.EntityRecord{EntityID: "E1", Attributes: map[string]any{"name": "Alice"}}
	plan := newTestEngine().Reconcile(nil, []domain.EntityRecord{incoming})
	if !plan.Appends[0].StartDate.Equal(day("2024-07-15")) {
		t.Fatalf("expected processing date, got %s", plan.Appends[0].StartDate)
	}
}

func TestReconcileIncomingDuplicatesLastRowWins(t *testing.T) {
	plan := newTestEngine().Reconcile(nil, []domain.EntityRecord{
		record("E1", "2024-01-01", "", map[string]any{"name": "Alice"}),
		record("E2", "2024-01-01", "", map[string]any{"name": "Bea"}),
		record("E1", "2024-01-01", "", map[string]any{"name": "Alicia"}),
	})
	if len(plan.Appends) != 2 {
		t.Fatalf("expected 2 appends, got %d", len(plan.Appends))
	}
	if plan.Appends[0].EntityID != "E1" || plan.Appends[0].Attribute("name") != "Alicia" {
		t.Fatalf("expected last E1 row to win, got %+v", plan.Appends[0])
	}
}

func TestReconcileWithoutSchemaComparesIncomingKeys(t *testing.T) {
	engine := NewEngine(Options{})
	existing := []domain.EntityRecord{record("E1", "2024-01-01", "", map[string]any{"name": "Alice"})}
	plan := engine.Reconcile(existing, []domain.EntityRecord{
		record("E1", "2024-02-01", "", map[string]any{"name": "Alice", "nickname": "Al"}),
	})
	if plan.Stats.Changed != 1 || plan.Decisions[0].ChangedFields[0] != "nickname" {
		t.Fatalf("expected nickname to register as changed, got %+v", plan.Decisions)
	}
}

func TestReconcileAbsentAttributeIsNotCompared(t *testing.T) {
	existing := []domain.EntityRecord{record("E1", "2024-01-01", "", map[string]any{"name": "Alice", "site": "Bogota"})}
	plan := newTestEngine().Reconcile(existing, []domain.EntityRecord{
		record("E1", "2024-06-01", "", map[string]any{"name": "Alice"}),
	})
	if !plan.Empty() || plan.Stats.Unchanged != 1 {
		t.Fatalf("expected a missing column to leave the key unchanged, got %+v", plan.Decisions)
	}
}

func TestReconcileCarriesForwardAbsentAttributes(t *testing.T) {
	existing := []domain.EntityRecord{record("E1", "2024-01-01", "", map[string]any{"name": "Alice", "site": "Bogota"})}
	incoming := []domain.EntityRecord{record("E1", "2024-06-01", "", map[string]any{"name": "Alicia"})}

	plan := newTestEngine().Reconcile(existing, incoming)
	if len(plan.Appends) != 2 {
		t.Fatalf("expected 2 appends, got %d", len(plan.Appends))
	}
	opened := plan.Appends[1]
	if opened.Attribute("name") != "Alicia" || opened.Attribute("site") != "Bogota" {
		t.Fatalf("expected site to carry forward into the open version, got %+v", opened.Attributes)
	}
	if _, ok := incoming[0].Attributes["site"]; ok {
		t.Fatalf("incoming record must not be mutated")
	}
	if changed := plan.Decisions[0].ChangedFields; len(changed) != 1 || changed[0] != "name" {
		t.Fatalf("expected only name to change, got %v", changed)
	}
}
