package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rpattn/rosterscd/internal/domain"
)

func TestFileSourceOpen(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "rosters", "daily"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "rosters", "daily", "roster.csv"), []byte("emp_id\n1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	src := NewFileSource(root)
	obj, err := src.Open(context.Background(), domain.Trigger{Bucket: "rosters", Name: "daily/roster.csv"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = obj.Body.Close() }()

	data, _ := io.ReadAll(obj.Body)
	if string(data) != "emp_id\n1\n" || obj.ContentType != "text/csv" || obj.Size != 9 {
		t.Fatalf("unexpected object %+v body %q", obj, data)
	}
}

func TestFileSourceErrors(t *testing.T) {
	src := NewFileSource(t.TempDir())

	if _, err := src.Open(context.Background(), domain.Trigger{Bucket: "rosters", Name: "missing.csv"}); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := src.Open(context.Background(), domain.Trigger{Bucket: "rosters", Name: "../../etc/passwd"}); !errors.Is(err, domain.ErrInvalidTrigger) {
		t.Fatalf("expected traversal to be rejected, got %v", err)
	}
}
