package providers

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nexuscore/orchestrator/pkg/contracts"
)

// OpenAICompatAdapter talks to any vendor exposing an OpenAI-compatible
// chat-completions endpoint: OpenAI itself, and (via a custom BaseURL)
// Mistral, Grok, Qwen, DeepSeek, and Kimi K2. It performs exactly one
// CreateChatCompletion call per ChatCompletion — no streaming, no internal
// retry.
type OpenAICompatAdapter struct {
	client *openai.Client
	tag    contracts.ProviderTag
	models []string
}

// NewOpenAICompatAdapter builds an adapter for tag, pointed at baseURL
// (empty means the vendor's OpenAI-compatible default). models lists the
// adapter's advertised model set for introspection.
func NewOpenAICompatAdapter(tag contracts.ProviderTag, apiKey, baseURL string, models []string) *OpenAICompatAdapter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAICompatAdapter{
		client: openai.NewClientWithConfig(cfg),
		tag:    tag,
		models: models,
	}
}

func (a *OpenAICompatAdapter) Tag() contracts.ProviderTag { return a.tag }

func (a *OpenAICompatAdapter) SupportedModels() []string { return a.models }

func (a *OpenAICompatAdapter) SupportsTools() bool { return true }

func (a *OpenAICompatAdapter) Health(ctx context.Context) error {
	_, err := a.client.ListModels(ctx)
	if err != nil {
		return NewCallError(0, err)
	}
	return nil
}

func (a *OpenAICompatAdapter) ChatCompletion(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	messages := convertOpenAIMessages(req.SystemPrompt, req.Messages)

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}

	resp, err := a.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return CompletionResult{}, wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return CompletionResult{}, NewMalformedResponseError(errNoChoices)
	}

	msg := resp.Choices[0].Message
	result := CompletionResult{
		Content:          msg.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	for _, tc := range msg.ToolCalls {
		args, aerr := contracts.ArgsFromJSON([]byte(tc.Function.Arguments))
		if aerr != nil {
			return CompletionResult{}, NewMalformedResponseError(aerr)
		}
		result.ToolCalls = append(result.ToolCalls, contracts.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return result, nil
}

var errNoChoices = errOf("provider returned zero choices")

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func errOf(s string) error { return simpleErr(s) }

func convertOpenAIMessages(systemPrompt string, messages []contracts.Message) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	if systemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, m := range messages {
		switch m.Role {
		case contracts.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content})
		case contracts.RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case contracts.RoleAssistant:
			cm := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				argsJSON, _ := contracts.ArgsToJSON(tc.Arguments)
				cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			out = append(out, cm)
		case contracts.RoleTool:
			for _, tr := range m.ToolResults {
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		}
	}
	return out
}

func convertOpenAITools(tools []contracts.ToolSchema) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		raw, _ := json.Marshal(params)
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(raw),
			},
		})
	}
	return out
}

func wrapOpenAIError(err error) error {
	if apiErr, ok := err.(*openai.APIError); ok {
		return NewCallError(apiErr.HTTPStatusCode, err)
	}
	if reqErr, ok := err.(*openai.RequestError); ok {
		return NewCallError(reqErr.HTTPStatusCode, err)
	}
	return NewCallError(0, err)
}
