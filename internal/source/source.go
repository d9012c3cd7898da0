// Package source opens roster exports named by a trigger.
package source

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"
)

// ErrObjectNotFound is returned when the trigger names an object that does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Object is an opened source file. Callers must close Body.
type Object struct {
	Bucket       string
	Name         string
	Size         int64
	ContentType  string
	LastModified time.Time
	Body         io.ReadCloser
}

// Source opens the object a trigger points at.
type Source interface {
	Open(ctx context.Context, trigger domain.Trigger) (Object, error)
}
