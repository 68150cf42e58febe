// Package vertexadapter implements llmtypes.Model on top of Google's
// google.golang.org/genai client (Vertex AI / Gemini), condensed from the
// teacher's tool-calling adapter down to the system+user/JSON-mode surface
// the closed structured-output schemas in pkg/llmgateway actually need.
package vertexadapter

import (
	"context"
	"fmt"

	"github.com/agentforge/taskrunner/internal/llmtypes"
	"github.com/agentforge/taskrunner/internal/utils"

	"google.golang.org/genai"
)

// Adapter implements llmtypes.Model using the Google GenAI SDK.
type Adapter struct {
	client  *genai.Client
	modelID string
	logger  utils.ExtendedLogger
}

// New creates a new Vertex/GenAI-backed model adapter.
func New(client *genai.Client, modelID string, logger utils.ExtendedLogger) *Adapter {
	return &Adapter{client: client, modelID: modelID, logger: logger}
}

// GenerateContent implements llmtypes.Model.
func (g *Adapter) GenerateContent(ctx context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	opts := &llmtypes.CallOptions{}
	for _, opt := range options {
		opt(opts)
	}

	modelID := g.modelID
	if opts.Model != "" {
		modelID = opts.Model
	}

	genaiContents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		var parts []*genai.Part
		for _, part := range msg.Parts {
			if tp, ok := part.(llmtypes.TextContent); ok {
				parts = append(parts, genai.NewPartFromText(tp.Text))
			}
		}
		if len(parts) == 0 {
			continue
		}
		genaiContents = append(genaiContents, &genai.Content{
			Role:  convertRole(msg.Role),
			Parts: parts,
		})
	}

	config := &genai.GenerateContentConfig{}
	if opts.Temperature > 0 {
		temp := float32(opts.Temperature)
		config.Temperature = &temp
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.JSONMode {
		config.ResponseMIMEType = "application/json"
	}

	if g.logger != nil {
		g.logger.Debugf("genai request model=%s messages=%d json_mode=%t", modelID, len(messages), opts.JSONMode)
	}

	result, err := g.client.Models.GenerateContent(ctx, modelID, genaiContents, config)
	if err != nil {
		if g.logger != nil {
			g.logger.Errorf("genai GenerateContent failed model=%s: %v", modelID, err)
		}
		return nil, fmt.Errorf("genai generate content: %w", err)
	}

	return convertResponse(result), nil
}

func convertRole(role llmtypes.ChatMessageType) string {
	if role == llmtypes.ChatMessageTypeAI {
		return "model"
	}
	return "user"
}

func convertResponse(result *genai.GenerateContentResponse) *llmtypes.ContentResponse {
	if result == nil {
		return &llmtypes.ContentResponse{Choices: []*llmtypes.ContentChoice{}}
	}

	choices := make([]*llmtypes.ContentChoice, 0, len(result.Candidates))
	for _, candidate := range result.Candidates {
		var content string
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				content += part.Text
			}
		}
		if content == "" {
			content = result.Text()
		}

		choice := &llmtypes.ContentChoice{
			Content:    content,
			StopReason: string(candidate.FinishReason),
		}

		if result.UsageMetadata != nil {
			inputTokens := int(result.UsageMetadata.PromptTokenCount)
			outputTokens := int(result.UsageMetadata.CandidatesTokenCount)
			totalTokens := int(result.UsageMetadata.TotalTokenCount)
			if totalTokens == 0 {
				totalTokens = inputTokens + outputTokens
			}
			choice.GenerationInfo = &llmtypes.GenerationInfo{
				InputTokens:  &inputTokens,
				OutputTokens: &outputTokens,
				TotalTokens:  &totalTokens,
			}
		}

		choices = append(choices, choice)
	}

	return &llmtypes.ContentResponse{Choices: choices}
}
