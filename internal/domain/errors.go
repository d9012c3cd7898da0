package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned when a source file is not CSV or XLSX.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyFile is returned when the source object carries no bytes.
	ErrEmptyFile = errors.New("file is empty")
	// ErrDuplicateColumn is returned when two headers normalize to the same column.
	ErrDuplicateColumn = errors.New("duplicate column")
	// ErrUnknownColumn is returned when a header does not map to the roster schema.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrMissingIdentifierColumn is returned when the identifier column is absent.
	ErrMissingIdentifierColumn = errors.New("identifier column missing")
	// ErrUncomparableValue is returned when an attribute cannot be compared as text.
	ErrUncomparableValue = errors.New("value cannot be compared")
	// ErrNonIncreasingStart is returned when a new version would not start after the current one.
	ErrNonIncreasingStart = errors.New("start date does not advance the timeline")
	// ErrTableNotFound is returned by stores when the versioned table is absent.
	ErrTableNotFound = errors.New("table not found")
	// ErrInvalidTrigger is returned when a trigger lacks a bucket or object name.
	ErrInvalidTrigger = errors.New("invalid trigger")
	// ErrRunInProgress is returned when another run holds the table lock.
	ErrRunInProgress = errors.New("run already in progress for table")
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindIngestion      ErrorKind = "ingestion"
	KindSchemaMismatch ErrorKind = "schema_mismatch"
	KindDataQuality    ErrorKind = "data_quality"
	KindReconciliation ErrorKind = "reconciliation"
	KindStore          ErrorKind = "store"
)

// PipelineError wraps a failure with its taxonomy kind and the failing operation.
type PipelineError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error aborts a run.
func (e *PipelineError) Fatal() bool {
	switch e.Kind {
	case KindDataQuality, KindReconciliation:
		return false
	default:
		return true
	}
}

// NewError wraps err with kind and op. A nil err yields nil.
func NewError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the taxonomy kind of err, or "" when err is not a PipelineError.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsFatal reports whether err should abort a run. Unclassified errors are fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Fatal()
	}
	return true
}

// DataQualityWarning records a recoverable problem found while normalizing a row.
type DataQualityWarning struct {
	RowNumber int    `json:"row_number"`
	Column    string `json:"column,omitempty"`
	EntityID  string `json:"entity_id,omitempty"`
	Reason    string `json:"reason"`
}

func (w DataQualityWarning) String() string {
	switch {
	case w.Column != "" && w.EntityID != "":
		return fmt.Sprintf("row %d (%s) column %s: %s", w.RowNumber, w.EntityID, w.Column, w.Reason)
	case w.Column != "":
		return fmt.Sprintf("row %d column %s: %s", w.RowNumber, w.Column, w.Reason)
	default:
		return fmt.Sprintf("row %d: %s", w.RowNumber, w.Reason)
	}
}

// KeyError records a per-key reconciliation failure. The key is skipped.
type KeyError struct {
	EntityID string `json:"entity_id"`
	Field    string `json:"field,omitempty"`
	Err      error  `json:"-"`
}

func (e KeyError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("entity %s field %s: %v", e.EntityID, e.Field, e.Err)
	}
	return fmt.Sprintf("entity %s: %v", e.EntityID, e.Err)
}

func (e KeyError) Unwrap() error {
	return e.Err
}
