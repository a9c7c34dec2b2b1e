package observability

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestHandleRedactsOpenAIStyleKeyInMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewJSONHandler(&buf, nil))

	logger.Info("provider rejected key sk-abcdefghijklmnopqrstuvwxyz0123456789ABCD")

	out := buf.String()
	if strings.Contains(out, "sk-abcdefghijklmnopqrstuvwxyz0123456789ABCD") {
		t.Fatalf("log output leaked the raw key: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Fatalf("expected redaction placeholder, got: %s", out)
	}
}

func TestHandleRedactsAttributeValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewJSONHandler(&buf, nil))

	logger.Info("startup", "key", "sk-ant-api03-"+strings.Repeat("a", 95))

	out := buf.String()
	if strings.Contains(out, strings.Repeat("a", 95)) {
		t.Fatalf("log output leaked the raw anthropic key: %s", out)
	}
}

func TestHandlePassesThroughNonSensitiveValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewJSONHandler(&buf, nil))

	logger.Info("request handled", "session_id", "abc-123", "duration_ms", 42)

	out := buf.String()
	if !strings.Contains(out, "abc-123") {
		t.Fatalf("expected non-sensitive value to pass through, got: %s", out)
	}
}
