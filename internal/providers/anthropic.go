package providers

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nexuscore/orchestrator/pkg/contracts"
)

// AnthropicAdapter talks to Claude via a single, non-streaming
// Messages.New call per ChatCompletion. It never retries internally.
type AnthropicAdapter struct {
	client anthropic.Client
	models []string
}

// NewAnthropicAdapter builds an adapter from an already-validated API key.
// baseURL overrides the default endpoint when set (used in tests).
func NewAnthropicAdapter(apiKey, baseURL string) *AnthropicAdapter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicAdapter{
		client: anthropic.NewClient(opts...),
		models: []string{
			"claude-opus-4-1-20250805",
			"claude-sonnet-4-20250514",
			"claude-3-5-haiku-20241022",
		},
	}
}

func (a *AnthropicAdapter) Tag() contracts.ProviderTag { return contracts.ProviderAnthropic }

func (a *AnthropicAdapter) SupportedModels() []string { return a.models }

func (a *AnthropicAdapter) SupportsTools() bool { return true }

func (a *AnthropicAdapter) Health(ctx context.Context) error {
	_, err := a.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return NewCallError(0, err)
	}
	return nil
}

func (a *AnthropicAdapter) ChatCompletion(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	messages, err := convertAnthropicMessages(req.Messages)
	if err != nil {
		return CompletionResult{}, NewMalformedResponseError(err)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(req.MaxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertAnthropicTools(req.Tools)
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return CompletionResult{}, wrapAnthropicError(err)
	}

	result := CompletionResult{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
	}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			result.Content += variant.Text
		case anthropic.ToolUseBlock:
			args, aerr := contracts.ArgsFromJSON(variant.Input)
			if aerr != nil {
				return CompletionResult{}, NewMalformedResponseError(aerr)
			}
			result.ToolCalls = append(result.ToolCalls, contracts.ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: args,
			})
		}
	}
	return result, nil
}

func convertAnthropicMessages(messages []contracts.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case contracts.RoleSystem:
			continue // folded into params.System by the caller
		case contracts.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case contracts.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case contracts.RoleTool:
			var blocks []anthropic.ContentBlockParamUnion
			for _, tr := range m.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out, nil
}

func convertAnthropicTools(tools []contracts.ToolSchema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: t.Parameters,
				},
			},
		})
	}
	return out
}

func wrapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if ok := asAnthropicAPIError(err, &apiErr); ok {
		return NewCallError(apiErr.StatusCode, err)
	}
	return NewCallError(0, err)
}

func asAnthropicAPIError(err error, target **anthropic.Error) bool {
	ae, ok := err.(*anthropic.Error)
	if ok {
		*target = ae
	}
	return ok
}
