// Package anthropicadapter implements llmtypes.Model on top of the
// Anthropic Messages API, condensed from the teacher's tool-calling/
// streaming adapter down to the system+user/JSON-mode/max_tokens surface
// the closed structured-output schemas in pkg/llmgateway actually need.
package anthropicadapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentforge/taskrunner/internal/llmtypes"
	"github.com/agentforge/taskrunner/internal/utils"

	"github.com/anthropics/anthropic-sdk-go"
)

// Adapter implements llmtypes.Model using the Anthropic SDK.
type Adapter struct {
	client  anthropic.Client
	modelID string
	logger  utils.ExtendedLogger
}

// New creates a new Anthropic-backed model adapter.
func New(client anthropic.Client, modelID string, logger utils.ExtendedLogger) *Adapter {
	return &Adapter{client: client, modelID: modelID, logger: logger}
}

// GenerateContent implements llmtypes.Model.
func (a *Adapter) GenerateContent(ctx context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	opts := &llmtypes.CallOptions{}
	for _, opt := range options {
		opt(opts)
	}

	modelID := a.modelID
	if opts.Model != "" {
		modelID = opts.Model
	}

	userMessages, systemMessage := convertMessages(messages)
	if opts.JSONMode {
		systemMessage = strings.TrimSpace(systemMessage + "\n\nYou must respond with valid JSON only, no other text. Return a JSON object.")
	}

	maxTokens := int64(4096)
	if opts.MaxTokens > 0 {
		maxTokens = int64(opts.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		Messages:  userMessages,
		MaxTokens: maxTokens,
	}
	if systemMessage != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemMessage}}
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}

	if a.logger != nil {
		a.logger.Debugf("anthropic request model=%s messages=%d json_mode=%t max_tokens=%d", modelID, len(messages), opts.JSONMode, maxTokens)
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		if a.logger != nil {
			a.logger.Errorf("anthropic GenerateContent failed model=%s: %v", modelID, err)
		}
		return nil, fmt.Errorf("anthropic generate content: %w", err)
	}

	return convertResponse(message), nil
}

func convertMessages(msgs []llmtypes.MessageContent) ([]anthropic.MessageParam, string) {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	var system string

	for _, msg := range msgs {
		var text []string
		for _, part := range msg.Parts {
			if tp, ok := part.(llmtypes.TextContent); ok {
				text = append(text, tp.Text)
			}
		}
		content := strings.Join(text, "\n")

		switch msg.Role {
		case llmtypes.ChatMessageTypeSystem:
			system = content
		case llmtypes.ChatMessageTypeAI:
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(content)},
			})
		default:
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(content)},
			})
		}
	}

	return out, system
}

func convertResponse(msg *anthropic.Message) *llmtypes.ContentResponse {
	var text []string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			text = append(text, block.Text)
		}
	}

	inputTokens := int(msg.Usage.InputTokens)
	outputTokens := int(msg.Usage.OutputTokens)
	totalTokens := inputTokens + outputTokens

	return &llmtypes.ContentResponse{
		Choices: []*llmtypes.ContentChoice{
			{
				Content:    strings.Join(text, "\n"),
				StopReason: string(msg.StopReason),
				GenerationInfo: &llmtypes.GenerationInfo{
					InputTokens:  &inputTokens,
					OutputTokens: &outputTokens,
					TotalTokens:  &totalTokens,
				},
			},
		},
	}
}
