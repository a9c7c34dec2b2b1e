// Package providers implements the adapter contract (C3) between the
// orchestrator and concrete LLM vendors, plus the eight vendor adapters
// themselves.
package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code is the error taxonomy crossing component boundaries. Only a Code and
// a short message may cross an adapter boundary; raw vendor error bodies,
// stack traces, and API keys never do.
type Code string

const (
	CodeRateLimited               Code = "RATE_LIMITED"
	CodeProvider5xx                Code = "PROVIDER_5XX"
	CodeProvider4xxNonRateLimit   Code = "PROVIDER_4XX_NON_RATE_LIMIT"
	CodeTransientNetwork          Code = "TRANSIENT_NETWORK"
	CodeTimeout                   Code = "TIMEOUT"
	CodeMalformedResponse         Code = "MALFORMED_RESPONSE"
)

// CallError is the structured error a provider adapter returns from
// ChatCompletion. It carries only a Code and a sanitized Message; Cause is
// retained in-process for logging and is never serialized to a caller.
type CallError struct {
	Code    Code
	Message string
	Cause   error
}

func (e *CallError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return string(e.Code)
}

func (e *CallError) Unwrap() error { return e.Cause }

// NewCallError wraps cause with the taxonomy code for the given HTTP status.
// status == 0 means no HTTP response was ever received (connection/DNS/
// transport-level failure).
func NewCallError(status int, cause error) *CallError {
	return &CallError{
		Code:    classifyStatusCode(status, cause),
		Message: sanitize(cause),
		Cause:   cause,
	}
}

// NewTimeoutError reports a client-side deadline exceeded.
func NewTimeoutError(cause error) *CallError {
	return &CallError{Code: CodeTimeout, Message: "request timed out", Cause: cause}
}

// NewMalformedResponseError reports a response that could not be parsed into
// the expected shape (unexpected stream event, missing field, etc).
func NewMalformedResponseError(cause error) *CallError {
	return &CallError{Code: CodeMalformedResponse, Message: "malformed provider response", Cause: cause}
}

// IsRetryable reports whether C9 should consider retrying an error carrying
// this code. Retry eligibility is decided from the code alone, never from
// the underlying message (spec: "C9 decides retry eligibility from category,
// never from message content").
func (c Code) IsRetryable() bool {
	switch c {
	case CodeRateLimited, CodeProvider5xx, CodeTransientNetwork, CodeTimeout:
		return true
	default:
		return false
	}
}

func classifyStatusCode(status int, cause error) Code {
	switch {
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status >= 500:
		return CodeProvider5xx
	case status >= 400:
		return CodeProvider4xxNonRateLimit
	case status == 0:
		return classifyTransportError(cause)
	default:
		return CodeTransientNetwork
	}
}

func classifyTransportError(cause error) Code {
	if cause == nil {
		return CodeTransientNetwork
	}
	msg := strings.ToLower(cause.Error())
	if strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "context deadline") {
		return CodeTimeout
	}
	return CodeTransientNetwork
}

// sanitize produces a short, vendor-agnostic message safe to propagate
// across the adapter boundary. It deliberately discards the vendor's raw
// error body.
func sanitize(cause error) string {
	if cause == nil {
		return ""
	}
	return "provider call failed"
}

// AsCallError extracts a *CallError from an error chain.
func AsCallError(err error) (*CallError, bool) {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
