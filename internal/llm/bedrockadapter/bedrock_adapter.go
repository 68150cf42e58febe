// Package bedrockadapter implements llmtypes.Model on top of AWS Bedrock's
// InvokeModel API for Anthropic models, condensed from the teacher's
// tool-calling adapter down to the system+user/JSON-mode surface the
// closed structured-output schemas in pkg/llmgateway actually need.
package bedrockadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentforge/taskrunner/internal/llmtypes"
	"github.com/agentforge/taskrunner/internal/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// Adapter implements llmtypes.Model using the Bedrock runtime client
// against Claude's native request/response shape.
type Adapter struct {
	client  *bedrockruntime.Client
	modelID string
	logger  utils.ExtendedLogger
}

// New creates a new Bedrock-backed model adapter.
func New(client *bedrockruntime.Client, modelID string, logger utils.ExtendedLogger) *Adapter {
	return &Adapter{client: client, modelID: modelID, logger: logger}
}

// GenerateContent implements llmtypes.Model.
func (b *Adapter) GenerateContent(ctx context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	opts := &llmtypes.CallOptions{}
	for _, opt := range options {
		opt(opts)
	}

	modelID := b.modelID
	if opts.Model != "" {
		modelID = opts.Model
	}

	claudeMessages := convertMessages(messages)

	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	requestBody := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"messages":          claudeMessages,
		"max_tokens":        maxTokens,
	}
	if opts.Temperature > 0 {
		requestBody["temperature"] = opts.Temperature
	}

	if opts.JSONMode && len(claudeMessages) > 0 {
		if content, ok := claudeMessages[0]["content"].([]map[string]interface{}); ok {
			jsonInstruction := map[string]interface{}{
				"type": "text",
				"text": "You must respond with valid JSON only, no other text. Return a JSON object.",
			}
			claudeMessages[0]["content"] = append([]map[string]interface{}{jsonInstruction}, content...)
		}
	}

	if b.logger != nil {
		b.logger.Debugf("bedrock request model=%s messages=%d json_mode=%t max_tokens=%d", modelID, len(messages), opts.JSONMode, maxTokens)
	}

	bodyBytes, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("marshal bedrock request: %w", err)
	}

	result, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Body:        bodyBytes,
	})
	if err != nil {
		if b.logger != nil {
			b.logger.Errorf("bedrock InvokeModel failed model=%s: %v", modelID, err)
		}
		return nil, fmt.Errorf("bedrock invoke model: %w", err)
	}

	var responseBody map[string]interface{}
	if err := json.Unmarshal(result.Body, &responseBody); err != nil {
		return nil, fmt.Errorf("unmarshal bedrock response: %w", err)
	}

	return convertResponse(responseBody), nil
}

func convertMessages(msgs []llmtypes.MessageContent) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(msgs))

	for _, msg := range msgs {
		var blocks []map[string]interface{}
		for _, part := range msg.Parts {
			if tp, ok := part.(llmtypes.TextContent); ok {
				blocks = append(blocks, map[string]interface{}{"type": "text", "text": tp.Text})
			}
		}
		if len(blocks) == 0 {
			continue
		}

		role := "user"
		if msg.Role == llmtypes.ChatMessageTypeAI {
			role = "assistant"
		}
		out = append(out, map[string]interface{}{"role": role, "content": blocks})
	}

	return out
}

func convertResponse(responseBody map[string]interface{}) *llmtypes.ContentResponse {
	var contentText strings.Builder

	if contentArray, ok := responseBody["content"].([]interface{}); ok {
		for _, block := range contentArray {
			if blockMap, ok := block.(map[string]interface{}); ok {
				if blockMap["type"] == "text" {
					if text, ok := blockMap["text"].(string); ok {
						if contentText.Len() > 0 {
							contentText.WriteString("\n")
						}
						contentText.WriteString(text)
					}
				}
			}
		}
	}

	stopReason, _ := responseBody["stop_reason"].(string)

	var inputTokens, outputTokens int
	if usage, ok := responseBody["usage"].(map[string]interface{}); ok {
		if v, ok := usage["input_tokens"].(float64); ok {
			inputTokens = int(v)
		}
		if v, ok := usage["output_tokens"].(float64); ok {
			outputTokens = int(v)
		}
	}
	totalTokens := inputTokens + outputTokens

	return &llmtypes.ContentResponse{
		Choices: []*llmtypes.ContentChoice{
			{
				Content:    contentText.String(),
				StopReason: stopReason,
				GenerationInfo: &llmtypes.GenerationInfo{
					InputTokens:  &inputTokens,
					OutputTokens: &outputTokens,
					TotalTokens:  &totalTokens,
				},
			},
		},
	}
}
