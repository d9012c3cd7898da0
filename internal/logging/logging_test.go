package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "debug", "json")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.WithField("table", "tbl_roster").Debug("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json output, got %q", buf.String())
	}
	if line["table"] != "tbl_roster" || line["msg"] != "hello" {
		t.Fatalf("unexpected fields %v", line)
	}
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	if _, err := New("loud", "text"); err == nil {
		t.Fatalf("expected invalid level to fail")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatalf("expected invalid format to fail")
	}
}

func TestNop(t *testing.T) {
	entry := OrNop(nil)
	if entry.Logger.IsLevelEnabled(logrus.ErrorLevel) {
		t.Fatalf("expected nop logger to discard errors")
	}
}
