package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"
	"github.com/rpattn/rosterscd/internal/logging"

	"github.com/sirupsen/logrus"
)

// Outcome is the terminal classification of one entity key.
type Outcome string

const (
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeNew       Outcome = "new"
	OutcomeChanged   Outcome = "changed"
	OutcomeSkipped   Outcome = "skipped"
)

// Decision records what the engine decided for one incoming key.
type Decision struct {
	EntityID string
	Outcome  Outcome
	// Previous is the existing current version, nil for new keys.
	Previous *domain.EntityRecord
	// Close is the appended copy of Previous carrying its end date. Nil when nothing is closed.
	Close *domain.EntityRecord
	// Open is the appended current version.
	Open          *domain.EntityRecord
	ChangedFields []string
	Err           error
}

// Stats counts decisions by outcome.
type Stats struct {
	Unchanged int
	New       int
	Changed   int
	Skipped   int
}

// Plan is the result of reconciling a batch against the current snapshot.
type Plan struct {
	Appends   []domain.EntityRecord
	Decisions []Decision
	Errors    []domain.KeyError
	Stats     Stats
}

// Empty reports whether the plan appends nothing.
func (p Plan) Empty() bool {
	return len(p.Appends) == 0
}

// Options configures an Engine.
type Options struct {
	// Schema supplies the compared attribute fields. An empty schema compares the
	// union of attribute keys found on both records.
	Schema   domain.RosterSchema
	Now      func() time.Time
	Location *time.Location
	Logger   *logrus.Entry
}

// Engine decides, per entity, whether an incoming record is new, unchanged or a
// change that closes the current version and opens a new one.
type Engine struct {
	fields []string
	now    func() time.Time
	loc    *time.Location
	logger *logrus.Entry
}

// NewEngine constructs an Engine.
func NewEngine(opts Options) *Engine {
	e := &Engine{
		fields: opts.Schema.AttributeNames(),
		now:    opts.Now,
		loc:    opts.Location,
		logger: opts.Logger,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	e.logger = logging.OrNop(e.logger)
	return e
}

// Reconcile compares incoming records with the existing current snapshot.
// Keys present only in existing are left untouched. Per-key failures are
// collected in Plan.Errors and the key is skipped; they never abort the batch.
func (e *Engine) Reconcile(existing, incoming []domain.EntityRecord) Plan {
	today := domain.Today(e.now(), e.loc)
	current := indexCurrent(existing)

	plan := Plan{
		Appends:   []domain.EntityRecord{},
		Decisions: make([]Decision, 0, len(incoming)),
		Errors:    []domain.KeyError{},
	}

	for _, record := range dedupeIncoming(incoming) {
		var decision Decision
		if previous, ok := current[record.EntityID]; ok {
			decision = e.reconcileMatch(previous, record, today)
		} else {
			decision = e.reconcileNew(record, today)
		}

		switch decision.Outcome {
		case OutcomeUnchanged:
			plan.Stats.Unchanged++
		case OutcomeNew:
			plan.Stats.New++
		case OutcomeChanged:
			plan.Stats.Changed++
		case OutcomeSkipped:
			plan.Stats.Skipped++
			keyErr := domain.KeyError{EntityID: decision.EntityID, Err: decision.Err}
			var fieldErr fieldError
			if errors.As(decision.Err, &fieldErr) {
				keyErr.Field = fieldErr.field
				keyErr.Err = fieldErr.err
			}
			plan.Errors = append(plan.Errors, keyErr)
			e.logger.WithField("entity_id", decision.EntityID).WithError(decision.Err).Warn("skipping key")
		}

		if decision.Close != nil {
			plan.Appends = append(plan.Appends, *decision.Close)
		}
		if decision.Open != nil {
			plan.Appends = append(plan.Appends, *decision.Open)
		}
		plan.Decisions = append(plan.Decisions, decision)
	}

	e.logger.WithFields(logrus.Fields{
		"unchanged": plan.Stats.Unchanged,
		"new":       plan.Stats.New,
		"changed":   plan.Stats.Changed,
		"skipped":   plan.Stats.Skipped,
		"appends":   len(plan.Appends),
	}).Info("reconciliation complete")

	return plan
}

func (e *Engine) reconcileNew(incoming domain.EntityRecord, today time.Time) Decision {
	open := openVersion(incoming, today)
	return Decision{
		EntityID: incoming.EntityID,
		Outcome:  OutcomeNew,
		Open:     &open,
	}
}

func (e *Engine) reconcileMatch(previous, incoming domain.EntityRecord, today time.Time) Decision {
	decision := Decision{
		EntityID: incoming.EntityID,
		Previous: &previous,
	}

	changed, err := e.changedFields(previous, incoming)
	if err != nil {
		decision.Outcome = OutcomeSkipped
		decision.Err = err
		return decision
	}
	if len(changed) == 0 {
		decision.Outcome = OutcomeUnchanged
		return decision
	}

	open := openVersion(incoming, today)
	carryForward(&open, previous)
	if !open.StartDate.After(previous.StartDate) {
		decision.Outcome = OutcomeSkipped
		decision.ChangedFields = changed
		decision.Err = fmt.Errorf("%w: incoming %s, current %s",
			domain.ErrNonIncreasingStart, open.StartDate.Format(domain.DateLayout), previous.StartDate.Format(domain.DateLayout))
		return decision
	}

	// The close date only ever advances.
	closeDate := previous.EndDate
	if previous.EndDate == nil || open.StartDate.After(*previous.EndDate) {
		closeDate = domain.DatePtr(open.StartDate)
	}
	if previous.EndDate == nil || !closeDate.Equal(*previous.EndDate) {
		closed := previous.WithEndDate(closeDate)
		decision.Close = &closed
	}

	decision.Outcome = OutcomeChanged
	decision.Open = &open
	decision.ChangedFields = changed

	if e.logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		if diff, err := domain.DiffRecords("current", &previous, "incoming", &open); err == nil {
			e.logger.WithFields(logrus.Fields{
				"entity_id": incoming.EntityID,
				"fields":    changed,
			}).Debugf("record changed\n%s", diff)
		}
	}

	return decision
}

type fieldError struct {
	field string
	err   error
}

func (f fieldError) Error() string {
	return fmt.Sprintf("field %s: %v", f.field, f.err)
}

func (f fieldError) Unwrap() error {
	return f.err
}

// changedFields lists the attributes whose canonical text differs. Attributes the
// incoming record does not carry are not compared.
func (e *Engine) changedFields(previous, incoming domain.EntityRecord) ([]string, error) {
	fields := e.fields
	if len(fields) == 0 {
		fields = sortedKeys(incoming.Attributes)
	}

	var changed []string
	for _, field := range fields {
		if _, ok := incoming.Attributes[field]; !ok {
			continue
		}
		before, err := domain.CanonicalValue(previous.Attribute(field))
		if err != nil {
			return nil, fieldError{field: field, err: err}
		}
		after, err := domain.CanonicalValue(incoming.Attribute(field))
		if err != nil {
			return nil, fieldError{field: field, err: err}
		}
		if before != after {
			changed = append(changed, field)
		}
	}
	return changed, nil
}

func openVersion(incoming domain.EntityRecord, today time.Time) domain.EntityRecord {
	open := incoming.Clone()
	if open.StartDate.IsZero() {
		open.StartDate = today
	}
	open.StartDate = domain.Date(open.StartDate)
	open.EndDate = nil
	return open
}

// carryForward copies stored attributes the incoming batch did not carry.
func carryForward(open *domain.EntityRecord, previous domain.EntityRecord) {
	for key, value := range previous.Attributes {
		if _, ok := open.Attributes[key]; ok {
			continue
		}
		if open.Attributes == nil {
			open.Attributes = make(map[string]any, len(previous.Attributes))
		}
		open.Attributes[key] = value
	}
}

// indexCurrent keys the snapshot by entity. Duplicate rows for one id resolve to
// the row with the latest end date (open counts as latest), then the latest start.
func indexCurrent(existing []domain.EntityRecord) map[string]domain.EntityRecord {
	current := make(map[string]domain.EntityRecord, len(existing))
	for _, record := range existing {
		held, ok := current[record.EntityID]
		if !ok {
			current[record.EntityID] = record
			continue
		}
		switch {
		case domain.EndAfter(record.EndDate, held.EndDate):
			current[record.EntityID] = record
		case domain.EndAfter(held.EndDate, record.EndDate):
		case record.StartDate.After(held.StartDate):
			current[record.EntityID] = record
		}
	}
	return current
}

// dedupeIncoming keeps the last record per entity at the position of its first occurrence.
func dedupeIncoming(incoming []domain.EntityRecord) []domain.EntityRecord {
	position := make(map[string]int, len(incoming))
	out := make([]domain.EntityRecord, 0, len(incoming))
	for _, record := range incoming {
		if idx, ok := position[record.EntityID]; ok {
			out[idx] = record
			continue
		}
		position[record.EntityID] = len(out)
		out = append(out, record)
	}
	return out
}

func sortedKeys(attributes map[string]any) []string {
	keys := make([]string, 0, len(attributes))
	for key := range attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
