package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rpattn/rosterscd/internal/logging"
)

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewWithWriter(&buf, "info", "json")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	var seen string
	handler := LoggingMiddleware(logger.WithField("component", "test"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = LoggerFromContext(r.Context(), nil).Data["request_id"].(string)
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodPost, "/events", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "req-42" {
		t.Fatalf("expected request id in context logger, got %q", seen)
	}
	if rec.Header().Get(RequestIDHeader) != "req-42" {
		t.Fatalf("expected request id echoed, got %q", rec.Header().Get(RequestIDHeader))
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["status"] != float64(http.StatusTeapot) || line["path"] != "/events" || line["request_id"] != "req-42" {
		t.Fatalf("unexpected log line %v", line)
	}
}

func TestLoggingMiddlewareGeneratesRequestID(t *testing.T) {
	handler := LoggingMiddleware(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected generated request id")
	}
}
