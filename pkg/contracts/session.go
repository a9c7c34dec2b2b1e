package contracts

import "time"

// TraceStep is one structured event emitted while processing a request,
// recorded per session and mirrored to metrics (internal/tracer).
type TraceStep struct {
	Time      time.Time      `json:"time"`
	Component string         `json:"component"`
	Event     string         `json:"event"`
	Details   map[string]any `json:"details,omitempty"`
}

// Session is server-side conversation state: messages, an optional
// collapsed-prefix summary, and a trace of everything that happened while
// producing it.
//
// Invariants: messages are append-only within a process lifetime; if
// Summary is non-empty, every message prior to the summarization point has
// been removed from Messages in the same write; CreatedAt <= UpdatedAt;
// MessageCount == len(Messages) + the count of messages folded into Summary.
type Session struct {
	SessionID           string      `json:"session_id"`
	AgentID             string      `json:"agent_id"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
	Messages            []Message   `json:"messages"`
	Summary             string      `json:"summary,omitempty"`
	SummarizedCount     int         `json:"-"`
	Trace               []TraceStep `json:"trace,omitempty"`
	MessageCount        int         `json:"message_count"`
	TraceTruncatedOnce   bool        `json:"-"`
}

// NonSummaryMessageCount returns the number of messages not yet folded
// into the summary — the figure the summarizer's threshold checks.
func (s *Session) NonSummaryMessageCount() int {
	return len(s.Messages)
}
