package contracts

import "time"

// OrchestrationRequest drives one pass of the agent loop: a configuration
// for which agent/provider/model to run, the user's new message content,
// and an optional existing session to continue.
type OrchestrationRequest struct {
	AgentConfig AgentConfig `json:"agent_config"`
	Message     string      `json:"message"`
	SessionID   string      `json:"session_id,omitempty"`
}

// ResponseMetadata carries the operational detail around an
// OrchestrationResponse: token accounting, whether summarization or
// retries fired, and the error taxonomy tag on failure.
type ResponseMetadata struct {
	PromptTokens        int    `json:"prompt_tokens,omitempty"`
	CompletionTokens     int    `json:"completion_tokens,omitempty"`
	SummarizationFired  bool   `json:"summarization_fired"`
	RetriesOccurred     bool   `json:"retries_occurred"`
	Attempts            int    `json:"attempts,omitempty"`
	TotalIterations     int    `json:"total_iterations,omitempty"`
	ErrorCode           string `json:"error_code,omitempty"`
}

// OrchestrationResponse is the result of one OrchestrationRequest.
type OrchestrationResponse struct {
	Content   string           `json:"content"`
	SessionID string           `json:"session_id"`
	Provider  ProviderTag      `json:"provider"`
	Model     string           `json:"model"`
	Duration  time.Duration    `json:"duration_ns"`
	Metadata  ResponseMetadata `json:"metadata"`
}
