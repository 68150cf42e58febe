package llmgateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/agentforge/taskrunner/internal/llm"
	"github.com/agentforge/taskrunner/internal/llmtypes"
	"github.com/agentforge/taskrunner/internal/utils"
	"github.com/agentforge/taskrunner/pkg/apperrors"
)

// Node names a workflow node that calls into the LLM Gateway. Per spec §6,
// configuration is keyed by PLANNING/CODE_PLANNING/CODE_GENERATION/ANSWERING
// plus a DEFAULT fallback; EXECUTION_OBSERVER and REFLECTION are not
// separately configurable and resolve to NodeDefault when unset.
type Node string

const (
	NodePlanning          Node = "PLANNING"
	NodeCodePlanning      Node = "CODE_PLANNING"
	NodeCodeGeneration    Node = "CODE_GENERATION"
	NodeExecutionObserver Node = "EXECUTION_OBSERVER"
	NodeReflection        Node = "REFLECTION"
	NodeAnswering         Node = "ANSWERING"
	NodeDefault           Node = "DEFAULT"
)

// ModelConfig is the per-node LLM configuration named in spec §6.
type ModelConfig struct {
	Provider       llm.Provider
	ModelID        string
	Temperature    float64
	MaxTokens      int
	FallbackModels []string
}

// Gateway implements the LLM Gateway (C2): Complete is exposed as the
// package-level generic function below so its return type can be the
// caller's schema struct without a type-parameterized method (Go forbids
// those); Gateway itself only holds per-node configuration and the lazily
// constructed, cached model clients.
type Gateway struct {
	configs map[Node]ModelConfig
	logger  utils.ExtendedLogger

	mu     sync.Mutex
	models map[Node]llmtypes.Model
}

// NewGateway builds a Gateway from the per-node configuration resolved by
// the config package. configs[NodeDefault] must be present.
func NewGateway(configs map[Node]ModelConfig, logger utils.ExtendedLogger) *Gateway {
	return &Gateway{
		configs: configs,
		logger:  logger,
		models:  make(map[Node]llmtypes.Model),
	}
}

func (g *Gateway) configFor(node Node) (ModelConfig, error) {
	if cfg, ok := g.configs[node]; ok {
		return cfg, nil
	}
	if cfg, ok := g.configs[NodeDefault]; ok {
		return cfg, nil
	}
	return ModelConfig{}, fmt.Errorf("no model configuration for node %s and no DEFAULT configured", node)
}

// modelFor lazily constructs and caches the provider-aware model client for
// node. Safe for concurrent use by multiple tasks, per spec §5 ("LLM client
// connections are shared, safe for concurrent use").
func (g *Gateway) modelFor(ctx context.Context, node Node) (llmtypes.Model, ModelConfig, error) {
	cfg, err := g.configFor(node)
	if err != nil {
		return nil, ModelConfig{}, err
	}

	// A node without its own configuration shares DEFAULT's client.
	key := node
	if _, ok := g.configs[node]; !ok {
		key = NodeDefault
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if model, ok := g.models[key]; ok {
		return model, cfg, nil
	}

	model, err := llm.InitializeLLM(llm.Config{
		Provider:       cfg.Provider,
		ModelID:        cfg.ModelID,
		Temperature:    cfg.Temperature,
		FallbackModels: cfg.FallbackModels,
		Logger:         g.logger,
		Context:        ctx,
	})
	if err != nil {
		return nil, ModelConfig{}, apperrors.Wrap(apperrors.KindLLMProviderFailure, fmt.Sprintf("initialize model for node %s", node), err)
	}

	g.models[key] = model
	return model, cfg, nil
}

// attempt budgets userPrompt against cfg.MaxTokens, makes one
// GenerateContent call, and returns the cleaned content, mapping
// transport/provider failures (including context deadlines, per spec
// §4.2's Timeout failure mode) into apperrors.KindLLMProviderFailure.
func (g *Gateway) attempt(ctx context.Context, model llmtypes.Model, cfg ModelConfig, systemPrompt, userPrompt string) (string, error) {
	userPrompt = budgetPrompt(systemPrompt, userPrompt, cfg.MaxTokens)

	messages := []llmtypes.MessageContent{
		llmtypes.TextPart(llmtypes.ChatMessageTypeSystem, systemPrompt),
		llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, userPrompt),
	}

	opts := []llmtypes.CallOption{llmtypes.WithJSONMode()}
	if cfg.MaxTokens > 0 {
		opts = append(opts, llmtypes.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.Temperature > 0 {
		opts = append(opts, llmtypes.WithTemperature(cfg.Temperature))
	}

	resp, err := model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", apperrors.Wrap(apperrors.KindLLMProviderFailure, "llm call timed out", err)
		}
		return "", apperrors.Wrap(apperrors.KindLLMProviderFailure, "llm call failed", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", apperrors.New(apperrors.KindLLMProviderFailure, "llm returned an empty response")
	}

	return cleanContentForJSON(resp.Choices[0].Content), nil
}

// Complete invokes the model configured for node with a system+user message
// pair and parses the reply into T, enforcing the schema at the boundary
// per spec §4.2: a schema violation triggers exactly one local retry with a
// more explicit prompt before the failure is propagated as
// apperrors.KindLLMSchemaFailure.
func Complete[T any](ctx context.Context, gw *Gateway, node Node, systemPrompt, userPrompt string) (T, error) {
	var zero T

	model, cfg, err := gw.modelFor(ctx, node)
	if err != nil {
		return zero, err
	}

	schema := schemaStringFor(fmt.Sprintf("%T", zero), zero)
	prompt := buildStructuredPromptWithSchema(userPrompt, schema)

	raw, err := gw.attempt(ctx, model, cfg, systemPrompt, prompt)
	if err != nil {
		return zero, err
	}

	var parsed T
	if err := validateJSON(raw, &parsed); err == nil {
		return parsed, nil
	}

	if gw.logger != nil {
		gw.logger.Infof("structured output for node %s failed schema validation, retrying once", node)
	}

	retryPrompt := prompt + "\n\nCRITICAL: Your previous response did not match the required JSON schema. Return ONLY valid JSON. No text, no explanations, no markdown."
	raw, err = gw.attempt(ctx, model, cfg, systemPrompt, retryPrompt)
	if err != nil {
		return zero, err
	}

	var retried T
	if err := validateJSON(raw, &retried); err != nil {
		return zero, apperrors.Wrap(apperrors.KindLLMSchemaFailure, fmt.Sprintf("structured output for node %s did not match schema after retry", node), err)
	}

	return retried, nil
}
