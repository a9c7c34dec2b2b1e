// Package summarizer implements C6: history compaction that keeps a
// session's live message list bounded by folding its older turns into a
// running summary.
package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/nexuscore/orchestrator/internal/providers"
	"github.com/nexuscore/orchestrator/internal/sessions"
	"github.com/nexuscore/orchestrator/pkg/contracts"
)

// DefaultThreshold is the non-summary message count that triggers
// summarization.
const DefaultThreshold = 20

// DefaultKeepRecent is how many of the most recent messages survive
// summarization untouched.
const DefaultKeepRecent = 6

const metaPrompt = `Summarize the conversation so far in a few sentences, ` +
	`preserving any facts, decisions, or open questions a continuation of ` +
	`this conversation would need. Do not include meta-commentary about ` +
	`the summarization process itself.`

// Summarizer decides when a session's history needs compacting and
// performs the compaction via a configured model. Errors from the
// summarization model call are non-fatal: the orchestration request
// proceeds with the uncompacted history.
type Summarizer struct {
	Threshold  int
	KeepRecent int

	// Provider and Model name the LLM used to produce the summary text.
	// Per the spec's open question on summarizer model choice, this is
	// always explicitly configured, never hard-coded to the agent's own
	// provider/model.
	Provider providers.Provider
	Model    string
}

// New builds a Summarizer with the default threshold/keep-recent values.
func New(provider providers.Provider, model string) *Summarizer {
	return &Summarizer{
		Threshold:  DefaultThreshold,
		KeepRecent: DefaultKeepRecent,
		Provider:   provider,
		Model:      model,
	}
}

// ShouldSummarize reports whether sess's non-summary message count has
// reached the threshold.
func (s *Summarizer) ShouldSummarize(sess *contracts.Session) bool {
	return sess.NonSummaryMessageCount() >= s.Threshold
}

// Summarize folds every message except the most recent KeepRecent into
// sess's summary, and writes the result back through store in one atomic
// operation. If the summarization model call fails, Summarize returns the
// error but the caller (the orchestrator) treats it as non-fatal and
// continues with the session's existing, uncompacted history.
func (s *Summarizer) Summarize(ctx context.Context, store sessions.Store, sess *contracts.Session) error {
	if !s.ShouldSummarize(sess) {
		return nil
	}

	keepFrom := s.KeepRecent
	if keepFrom > len(sess.Messages) {
		keepFrom = len(sess.Messages)
	}
	toFold := sess.Messages[:len(sess.Messages)-keepFrom]
	kept := sess.Messages[len(sess.Messages)-keepFrom:]

	summaryText, err := s.summarize(ctx, sess.Summary, toFold)
	if err != nil {
		return fmt.Errorf("summarizer: %w", err)
	}

	return store.ReplaceWithSummary(ctx, sess.SessionID, summaryText, kept, len(toFold))
}

func (s *Summarizer) summarize(ctx context.Context, priorSummary string, messages []contracts.Message) (string, error) {
	var sb strings.Builder
	if priorSummary != "" {
		sb.WriteString("Existing summary:\n")
		sb.WriteString(priorSummary)
		sb.WriteString("\n\n")
	}
	sb.WriteString("New messages to fold in:\n")
	for _, m := range messages {
		sb.WriteString(fmt.Sprintf("%s: %s\n", m.Role, m.Content))
	}

	result, err := s.Provider.ChatCompletion(ctx, providers.CompletionRequest{
		Model:        s.Model,
		SystemPrompt: metaPrompt,
		Messages: []contracts.Message{
			{Role: contracts.RoleUser, Content: sb.String()},
		},
		MaxTokens: 512,
	})
	if err != nil {
		return "", err
	}
	return result.Content, nil
}
