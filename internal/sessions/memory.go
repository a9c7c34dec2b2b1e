package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexuscore/orchestrator/pkg/contracts"
)

// maxTraceStepsPerSession caps per-session trace growth for long-running
// sessions. Once the cap is hit, the oldest steps are evicted and a single
// trace_truncated marker step is recorded in their place.
const maxTraceStepsPerSession = 2000

// sessionLock is a ref-counted mutex: goroutines touching the same session
// serialize on it, but sessions never contend with each other and an idle
// session's lock is garbage-collected once no goroutine still holds it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// MemoryStore is the process-lifetime, in-memory Store implementation.
// A coarse mutex protects only the top-level session map; all per-session
// mutation serializes on that session's own sessionLock, so concurrent
// requests against different sessions never contend.
type MemoryStore struct {
	mapMu sync.Mutex
	locks map[string]*sessionLock

	dataMu   sync.RWMutex
	sessions map[string]*contracts.Session
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:    make(map[string]*sessionLock),
		sessions: make(map[string]*contracts.Session),
	}
}

func (s *MemoryStore) lockSession(id string) func() {
	s.mapMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mapMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mapMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mapMu.Unlock()
	}
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, id string, agentID string) (*contracts.Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	unlock := s.lockSession(id)
	defer unlock()

	s.dataMu.RLock()
	existing, ok := s.sessions[id]
	s.dataMu.RUnlock()
	if ok {
		return cloneSession(existing), nil
	}

	now := time.Now()
	created := &contracts.Session{
		SessionID: id,
		AgentID:   agentID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.dataMu.Lock()
	s.sessions[id] = cloneSession(created)
	s.dataMu.Unlock()

	return cloneSession(created), nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*contracts.Session, error) {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, &ErrNotFound{SessionID: id}
	}
	return cloneSession(sess), nil
}

func (s *MemoryStore) AppendMessages(ctx context.Context, id string, msgs ...contracts.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	unlock := s.lockSession(id)
	defer unlock()

	s.dataMu.Lock()
	defer s.dataMu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return &ErrNotFound{SessionID: id}
	}
	sess.Messages = append(sess.Messages, msgs...)
	sess.MessageCount = sess.SummarizedCount + len(sess.Messages)
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ReplaceWithSummary(ctx context.Context, id string, summary string, keepFrom []contracts.Message, foldedCount int) error {
	unlock := s.lockSession(id)
	defer unlock()

	s.dataMu.Lock()
	defer s.dataMu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return &ErrNotFound{SessionID: id}
	}
	sess.Summary = summary
	sess.SummarizedCount += foldedCount
	sess.Messages = append([]contracts.Message(nil), keepFrom...)
	sess.MessageCount = sess.SummarizedCount + len(sess.Messages)
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) AppendTrace(ctx context.Context, id string, step contracts.TraceStep) error {
	unlock := s.lockSession(id)
	defer unlock()

	s.dataMu.Lock()
	defer s.dataMu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return &ErrNotFound{SessionID: id}
	}
	sess.Trace = append(sess.Trace, step)
	if len(sess.Trace) > maxTraceStepsPerSession {
		overflow := len(sess.Trace) - maxTraceStepsPerSession
		sess.Trace = sess.Trace[overflow:]
		if !sess.TraceTruncatedOnce {
			sess.TraceTruncatedOnce = true
			sess.Trace = append([]contracts.TraceStep{{
				Time:      time.Now(),
				Component: "tracer",
				Event:     "trace_truncated",
				Details:   map[string]any{"dropped": overflow},
			}}, sess.Trace...)
		}
	}
	sess.UpdatedAt = time.Now()
	return nil
}

func cloneSession(s *contracts.Session) *contracts.Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = cloneMessages(s.Messages)
	out.Trace = append([]contracts.TraceStep(nil), s.Trace...)
	return &out
}

func cloneMessages(msgs []contracts.Message) []contracts.Message {
	out := make([]contracts.Message, len(msgs))
	for i, m := range msgs {
		cm := m
		cm.ToolCalls = append([]contracts.ToolCall(nil), m.ToolCalls...)
		cm.ToolResults = append([]contracts.ToolResult(nil), m.ToolResults...)
		out[i] = cm
	}
	return out
}
