package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// objectRoundTripper serves path-style GetObject requests from memory.
type objectRoundTripper struct {
	objects map[string][]byte
}

func (m *objectRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	key := strings.TrimPrefix(req.URL.Path, "/")
	if req.Method != http.MethodGet {
		return &http.Response{StatusCode: http.StatusNotImplemented, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
	}
	body, ok := m.objects[key]
	if !ok {
		payload := `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Body:       io.NopCloser(strings.NewReader(payload)),
			Header:     http.Header{"Content-Type": {"application/xml"}},
		}, nil
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(body)), Header: http.Header{
		"Content-Length": {fmt.Sprintf("%d", len(body))},
		"Content-Type":   {"text/csv"},
		"Last-Modified":  {time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC).Format(http.TimeFormat)},
		"ETag":           {"\"etag\""},
	}}, nil
}

func newMockS3Source(t *testing.T, objects map[string][]byte) *S3Source {
	t.Helper()
	rt := &objectRoundTripper{objects: objects}
	src, err := NewS3Source(context.Background(), S3Config{
		Region:          "us-east-1",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
	}, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
	})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	return src
}

func TestS3SourceOpen(t *testing.T) {
	src := newMockS3Source(t, map[string][]byte{
		"rosters/exports/roster.csv": []byte("emp_id,name\n1,Alice\n"),
	})

	obj, err := src.Open(context.Background(), domain.Trigger{Bucket: "rosters", Name: "exports/roster.csv"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = obj.Body.Close() }()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "emp_id,name\n1,Alice\n" {
		t.Fatalf("unexpected body %q", data)
	}
	if obj.ContentType != "text/csv" || obj.Size != int64(len(data)) {
		t.Fatalf("unexpected metadata %+v", obj)
	}
}

func TestS3SourceMissingObject(t *testing.T) {
	src := newMockS3Source(t, map[string][]byte{})

	_, err := src.Open(context.Background(), domain.Trigger{Bucket: "rosters", Name: "missing.csv"})
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected object not found, got %v", err)
	}
}

func TestS3SourceValidatesTrigger(t *testing.T) {
	src := newMockS3Source(t, map[string][]byte{})

	_, err := src.Open(context.Background(), domain.Trigger{Name: "roster.csv"})
	if !errors.Is(err, domain.ErrInvalidTrigger) {
		t.Fatalf("expected invalid trigger, got %v", err)
	}
}
