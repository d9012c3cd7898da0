package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rpattn/rosterscd/internal/domain"
)

// FileSource maps a trigger onto <root>/<bucket>/<name> on the local filesystem.
type FileSource struct {
	root string
}

// NewFileSource creates a filesystem source rooted at root.
func NewFileSource(root string) *FileSource {
	return &FileSource{root: root}
}

// Open opens the file the trigger points at.
func (s *FileSource) Open(_ context.Context, trigger domain.Trigger) (Object, error) {
	if err := trigger.Validate(); err != nil {
		return Object{}, err
	}

	rel := filepath.Join(trigger.Bucket, filepath.FromSlash(trigger.Name))
	if !filepath.IsLocal(rel) {
		return Object{}, fmt.Errorf("%w: %s escapes the source root", domain.ErrInvalidTrigger, trigger.URI())
	}
	path := filepath.Join(s.root, rel)

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Object{}, fmt.Errorf("%w: %s", ErrObjectNotFound, trigger.URI())
	}
	if err != nil {
		return Object{}, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return Object{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return Object{}, fmt.Errorf("%w: %s is a directory", domain.ErrInvalidTrigger, trigger.URI())
	}

	contentType := "application/octet-stream"
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		contentType = "text/csv"
	}
	return Object{
		Bucket:       trigger.Bucket,
		Name:         trigger.Name,
		Size:         info.Size(),
		ContentType:  contentType,
		LastModified: info.ModTime(),
		Body:         f,
	}, nil
}
