// Package observability provides the process-wide structured logging
// handler: JSON output via log/slog with redaction of values that look
// like provider API keys or bearer tokens, so a stray "error", "key", or
// raw vendor response logged anywhere in the call chain can never leak a
// credential into stdout.
package observability

import (
	"context"
	"io"
	"log/slog"
	"regexp"
)

// redactPatterns matches the same credential shapes internal/security
// validates (§6's key-format table) plus generic bearer/JWT tokens, so a
// key is caught even if it reaches a log call through a path that never
// went through security.Mask.
var redactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-api03-[A-Za-z0-9\-_]{95}`),
	regexp.MustCompile(`sk-[A-Za-z0-9\-_]{40,}`),
	regexp.MustCompile(`AIza[A-Za-z0-9_\-]{33,}`),
	regexp.MustCompile(`xai-[A-Za-z0-9]{40}`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.]{16,}`),
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
}

const redactedPlaceholder = "[REDACTED]"

// NewJSONHandler builds a slog.Handler writing JSON to w, with every
// string attribute value (and the log message itself) passed through the
// credential redaction patterns before it reaches the handler.
func NewJSONHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return &redactingHandler{inner: slog.NewJSONHandler(w, opts)}
}

type redactingHandler struct {
	inner slog.Handler
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, record slog.Record) error {
	record.Message = redact(record.Message)

	redacted := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, redacted)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &redactingHandler{inner: h.inner.WithAttrs(redacted)}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{inner: h.inner.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, redact(a.Value.String()))
	}
	return a
}

func redact(s string) string {
	for _, re := range redactPatterns {
		s = re.ReplaceAllString(s, redactedPlaceholder)
	}
	return s
}
