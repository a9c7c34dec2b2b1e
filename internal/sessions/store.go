// Package sessions implements the in-memory session store (C5): process-
// lifetime conversation state with fine-grained per-session locking.
package sessions

import (
	"context"
	"fmt"

	"github.com/nexuscore/orchestrator/pkg/contracts"
)

// ErrNotFound is returned when a session ID has no corresponding session.
type ErrNotFound struct {
	SessionID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("sessions: session %q not found", e.SessionID)
}

// Store is the five-operation contract C5 exposes to the rest of the
// system. Every operation deep-copies in and out, so callers can freely
// mutate what they pass in or receive back without affecting stored state.
type Store interface {
	// GetOrCreate returns the session for id, creating it (with agentID)
	// if id is empty or unknown.
	GetOrCreate(ctx context.Context, id string, agentID string) (*contracts.Session, error)

	// Get returns the session for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*contracts.Session, error)

	// AppendMessages atomically appends msgs to the session's history and
	// bumps UpdatedAt/MessageCount. Only the orchestrator and summarizer
	// call this.
	AppendMessages(ctx context.Context, id string, msgs ...contracts.Message) error

	// ReplaceWithSummary atomically drops every message prior to
	// keepFrom's start and replaces them with summary, in one write. Used
	// by the summarizer; the prefix-removal and summary-set always happen
	// together.
	ReplaceWithSummary(ctx context.Context, id string, summary string, keepFrom []contracts.Message, foldedCount int) error

	// AppendTrace appends one step to the session's trace. Only the tracer
	// calls this.
	AppendTrace(ctx context.Context, id string, step contracts.TraceStep) error
}
