// Package openaiadapter implements llmtypes.Model on top of the OpenAI
// Chat Completions API, condensed from the teacher's tool-calling/
// streaming adapter down to the system+user/JSON-mode surface the closed
// structured-output schemas in pkg/llmgateway actually need.
package openaiadapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentforge/taskrunner/internal/llmtypes"
	"github.com/agentforge/taskrunner/internal/utils"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"
)

// Adapter implements llmtypes.Model using the OpenAI SDK.
type Adapter struct {
	client  *openai.Client
	modelID string
	logger  utils.ExtendedLogger
}

// New creates a new OpenAI-backed model adapter.
func New(client *openai.Client, modelID string, logger utils.ExtendedLogger) *Adapter {
	return &Adapter{client: client, modelID: modelID, logger: logger}
}

// GenerateContent implements llmtypes.Model.
func (o *Adapter) GenerateContent(ctx context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	opts := &llmtypes.CallOptions{}
	for _, opt := range options {
		opt(opts)
	}

	modelID := o.modelID
	if opts.Model != "" {
		modelID = opts.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelID),
		Messages: convertMessages(messages, opts.JSONMode),
	}

	if opts.Temperature > 0 {
		params.Temperature = param.NewOpt(opts.Temperature)
	}

	// Some newer models (o1, o3, o4, gpt-4.1) reject max_tokens outright and
	// require max_completion_tokens instead; we omit it entirely rather than
	// branch on model family and rely on each model's own default.

	if opts.JSONMode {
		jsonObjParam := shared.NewResponseFormatJSONObjectParam()
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{OfJSONObject: &jsonObjParam}
	}

	if o.logger != nil {
		o.logger.Debugf("openai request model=%s messages=%d json_mode=%t", modelID, len(messages), opts.JSONMode)
	}

	result, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if o.logger != nil {
			o.logger.Errorf("openai GenerateContent failed model=%s: %v", modelID, err)
		}
		return nil, fmt.Errorf("openai generate content: %w", err)
	}

	return convertResponse(result), nil
}

func convertMessages(msgs []llmtypes.MessageContent, jsonMode bool) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))

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
			if jsonMode {
				content = strings.TrimSpace(content + "\n\nYou must respond with valid JSON only, no other text. Return a JSON object.")
			}
			out = append(out, openai.SystemMessage(content))
		case llmtypes.ChatMessageTypeAI:
			out = append(out, openai.AssistantMessage(content))
		default:
			out = append(out, openai.UserMessage(content))
		}
	}

	return out
}

func convertResponse(result *openai.ChatCompletion) *llmtypes.ContentResponse {
	if result == nil || len(result.Choices) == 0 {
		return &llmtypes.ContentResponse{Choices: []*llmtypes.ContentChoice{}}
	}

	inputTokens := int(result.Usage.PromptTokens)
	outputTokens := int(result.Usage.CompletionTokens)
	totalTokens := int(result.Usage.TotalTokens)

	choice := result.Choices[0]
	return &llmtypes.ContentResponse{
		Choices: []*llmtypes.ContentChoice{
			{
				Content:    choice.Message.Content,
				StopReason: choice.FinishReason,
				GenerationInfo: &llmtypes.GenerationInfo{
					InputTokens:  &inputTokens,
					OutputTokens: &outputTokens,
					TotalTokens:  &totalTokens,
				},
			},
		},
	}
}
