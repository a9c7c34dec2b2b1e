package providers

import (
	"context"

	"google.golang.org/genai"

	"github.com/nexuscore/orchestrator/pkg/contracts"
)

// GeminiAdapter talks to Google's Gemini API via a single non-streaming
// GenerateContent call per ChatCompletion.
type GeminiAdapter struct {
	client *genai.Client
	models []string
}

// NewGeminiAdapter builds an adapter from an already-validated API key.
func NewGeminiAdapter(ctx context.Context, apiKey string) (*GeminiAdapter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{
		client: client,
		models: []string{"gemini-2.0-flash", "gemini-1.5-pro"},
	}, nil
}

func (a *GeminiAdapter) Tag() contracts.ProviderTag { return contracts.ProviderGemini }

func (a *GeminiAdapter) SupportedModels() []string { return a.models }

func (a *GeminiAdapter) SupportsTools() bool { return true }

func (a *GeminiAdapter) Health(ctx context.Context) error {
	iter := a.client.Models.List(ctx, &genai.ListModelsConfig{})
	_, err := iter.Next()
	if err != nil && err.Error() != "no more items in iterator" {
		return NewCallError(0, err)
	}
	return nil
}

func (a *GeminiAdapter) ChatCompletion(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	contents := convertGeminiContents(req.Messages)
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		config.Tools = convertGeminiTools(req.Tools)
	}

	resp, err := a.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return CompletionResult{}, wrapGeminiError(err)
	}
	if len(resp.Candidates) == 0 {
		return CompletionResult{}, NewMalformedResponseError(errOf("no candidates returned"))
	}

	var result CompletionResult
	if resp.UsageMetadata != nil {
		result.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			result.Content += part.Text
		}
		if part.FunctionCall != nil {
			args := make(map[string]contracts.ArgValue, len(part.FunctionCall.Args))
			for k, v := range part.FunctionCall.Args {
				args[k] = contracts.FromAny(v)
			}
			result.ToolCalls = append(result.ToolCalls, contracts.ToolCall{
				ID:        part.FunctionCall.ID,
				Name:      part.FunctionCall.Name,
				Arguments: args,
			})
		}
	}
	return result, nil
}

func convertGeminiContents(messages []contracts.Message) []*genai.Content {
	var out []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case contracts.RoleSystem:
			continue
		case contracts.RoleUser:
			out = append(out, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: m.Content}}})
		case contracts.RoleAssistant:
			content := &genai.Content{Role: genai.RoleModel}
			if m.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				args := make(map[string]any, len(tc.Arguments))
				for k, v := range tc.Arguments {
					args[k] = v.ToAny()
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args},
				})
			}
			out = append(out, content)
		case contracts.RoleTool:
			content := &genai.Content{Role: genai.RoleUser}
			for _, tr := range m.ToolResults {
				content.Parts = append(content.Parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						Name:     tr.ToolCallID,
						Response: map[string]any{"content": tr.Content},
					},
				})
			}
			out = append(out, content)
		}
	}
	return out
}

func convertGeminiTools(tools []contracts.ToolSchema) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func wrapGeminiError(err error) error {
	if apiErr, ok := err.(genai.APIError); ok {
		return NewCallError(apiErr.Code, err)
	}
	return NewCallError(0, err)
}
