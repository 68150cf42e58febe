// Package llm dispatches model construction across the five providers the
// LLM Gateway can address, each wrapped in a fallback-model retry chain,
// condensed from the teacher's InitializeLLM (which also carried an
// observability.Tracer event stream, a REST-based API-key validation
// surface, and an OpenRouter usage-metadata CallOption this engine has no
// use for — see DESIGN.md).
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/agentforge/taskrunner/internal/llm/anthropicadapter"
	"github.com/agentforge/taskrunner/internal/llm/bedrockadapter"
	"github.com/agentforge/taskrunner/internal/llm/openaiadapter"
	"github.com/agentforge/taskrunner/internal/llm/vertexadapter"
	"github.com/agentforge/taskrunner/internal/llmtypes"
	"github.com/agentforge/taskrunner/internal/utils"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"google.golang.org/genai"
)

// Provider identifies one of the five model backends the Gateway can target.
type Provider string

const (
	ProviderBedrock    Provider = "bedrock"
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderOpenRouter Provider = "openrouter"
	ProviderVertex     Provider = "vertex"
)

// Config holds everything InitializeLLM needs to construct one model,
// including its same-provider fallback chain.
type Config struct {
	Provider       Provider
	ModelID        string
	Temperature    float64
	FallbackModels []string
	Logger         utils.ExtendedLogger
	Context        context.Context
}

// InitializeLLM constructs a provider-aware llmtypes.Model, trying
// config.ModelID first and falling through config.FallbackModels in order
// on failure.
func InitializeLLM(config Config) (llmtypes.Model, error) {
	var init func(Config) (llmtypes.Model, error)

	switch config.Provider {
	case ProviderBedrock:
		init = initializeBedrock
	case ProviderOpenAI:
		init = initializeOpenAI
	case ProviderAnthropic:
		init = initializeAnthropic
	case ProviderOpenRouter:
		init = initializeOpenRouter
	case ProviderVertex:
		init = initializeVertex
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.Provider)
	}

	modelID := config.ModelID
	llm, err := init(config)
	if err != nil {
		if len(config.FallbackModels) == 0 {
			return nil, fmt.Errorf("initialize %s: %w", config.Provider, err)
		}
		if config.Logger != nil {
			config.Logger.Infof("primary %s model %s failed, trying fallbacks %v: %v", config.Provider, config.ModelID, config.FallbackModels, err)
		}
		for _, fallback := range config.FallbackModels {
			fallbackConfig := config
			fallbackConfig.ModelID = fallback
			llm, err = init(fallbackConfig)
			if err == nil {
				modelID = fallback
				break
			}
			if config.Logger != nil {
				config.Logger.Infof("fallback %s model %s failed: %v", config.Provider, fallback, err)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("all %s models failed: %w", config.Provider, err)
		}
	}

	return NewProviderAwareLLM(llm, config.Provider, modelID, config.Logger), nil
}

func initializeBedrock(config Config) (llmtypes.Model, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := bedrockruntime.NewFromConfig(cfg)

	modelID := config.ModelID
	if modelID == "" {
		modelID = "us.anthropic.claude-sonnet-4-20250514-v1:0"
	}

	return bedrockadapter.New(client, modelID, config.Logger), nil
}

func initializeOpenAI(config Config) (llmtypes.Model, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI provider")
	}

	modelID := config.ModelID
	if modelID == "" {
		modelID = "gpt-4.1"
	}

	client := openaisdk.NewClient(option.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
	return openaiadapter.New(&client, modelID, config.Logger), nil
}

func initializeAnthropic(config Config) (llmtypes.Model, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is required")
	}

	modelID := config.ModelID
	if modelID == "" {
		modelID = "claude-sonnet-4-20250514"
	}

	client := anthropic.NewClient(anthropicoption.WithAPIKey(apiKey))
	return anthropicadapter.New(client, modelID, config.Logger), nil
}

func initializeOpenRouter(config Config) (llmtypes.Model, error) {
	if os.Getenv("OPEN_ROUTER_API_KEY") == "" {
		return nil, fmt.Errorf("OPEN_ROUTER_API_KEY environment variable is required for OpenRouter provider")
	}

	modelID := config.ModelID
	if modelID == "" {
		modelID = "moonshotai/kimi-k2"
	}

	clientOptions := []option.RequestOption{
		option.WithAPIKey(os.Getenv("OPEN_ROUTER_API_KEY")),
		option.WithBaseURL("https://openrouter.ai/api/v1"),
	}
	if referer := os.Getenv("OPENROUTER_HTTP_REFERER"); referer != "" {
		clientOptions = append(clientOptions, option.WithHeader("HTTP-Referer", referer))
	}
	if title := os.Getenv("OPENROUTER_X_TITLE"); title != "" {
		clientOptions = append(clientOptions, option.WithHeader("X-Title", title))
	}

	client := openaisdk.NewClient(clientOptions...)
	return openaiadapter.New(&client, modelID, config.Logger), nil
}

func initializeVertex(config Config) (llmtypes.Model, error) {
	apiKey := os.Getenv("VERTEX_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("VERTEX_API_KEY or GOOGLE_API_KEY environment variable is required")
	}

	modelID := config.ModelID
	if modelID == "" {
		modelID = "gemini-2.5-flash"
	}

	ctx := config.Context
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return vertexadapter.New(client, modelID, config.Logger), nil
}

// GetDefaultModel returns the primary model for a provider, overridable per
// provider by a `<PROVIDER>_PRIMARY_MODEL` environment variable.
func GetDefaultModel(provider Provider) string {
	switch provider {
	case ProviderBedrock:
		return envOrDefault("BEDROCK_PRIMARY_MODEL", "us.anthropic.claude-sonnet-4-20250514-v1:0")
	case ProviderOpenAI:
		return envOrDefault("OPENAI_PRIMARY_MODEL", "gpt-4.1-mini")
	case ProviderAnthropic:
		return envOrDefault("ANTHROPIC_PRIMARY_MODEL", "claude-sonnet-4-20250514")
	case ProviderOpenRouter:
		return envOrDefault("OPENROUTER_PRIMARY_MODEL", "moonshotai/kimi-k2")
	case ProviderVertex:
		return envOrDefault("VERTEX_PRIMARY_MODEL", "gemini-2.5-flash")
	default:
		return ""
	}
}

// GetDefaultFallbackModels returns the same-provider fallback chain named by
// a `<PROVIDER>_FALLBACK_MODELS` comma-separated environment variable.
func GetDefaultFallbackModels(provider Provider) []string {
	switch provider {
	case ProviderBedrock:
		return envList("BEDROCK_FALLBACK_MODELS")
	case ProviderOpenAI:
		return envList("OPENAI_FALLBACK_MODELS")
	case ProviderAnthropic:
		return envList("ANTHROPIC_FALLBACK_MODELS")
	case ProviderOpenRouter:
		return envList("OPENROUTER_FALLBACK_MODELS")
	case ProviderVertex:
		return envList("VERTEX_FALLBACK_MODELS")
	default:
		return []string{}
	}
}

// ValidateProvider checks that the string names one of the five supported providers.
func ValidateProvider(provider string) (Provider, error) {
	switch Provider(provider) {
	case ProviderBedrock, ProviderOpenAI, ProviderAnthropic, ProviderOpenRouter, ProviderVertex:
		return Provider(provider), nil
	default:
		return "", fmt.Errorf("unsupported provider: %s (supported: bedrock, openai, anthropic, openrouter, vertex)", provider)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// ProviderAwareLLM wraps a model adapter with the provider/model identity
// the Gateway logs alongside every completion attempt.
type ProviderAwareLLM struct {
	llmtypes.Model
	provider Provider
	modelID  string
	logger   utils.ExtendedLogger
}

// NewProviderAwareLLM wraps llm with its provider and model identity.
func NewProviderAwareLLM(llm llmtypes.Model, provider Provider, modelID string, logger utils.ExtendedLogger) *ProviderAwareLLM {
	return &ProviderAwareLLM{Model: llm, provider: provider, modelID: modelID, logger: logger}
}

// GetProvider returns the wrapped model's provider.
func (p *ProviderAwareLLM) GetProvider() Provider { return p.provider }

// GetModelID returns the wrapped model's model ID.
func (p *ProviderAwareLLM) GetModelID() string { return p.modelID }

// GenerateContent delegates to the wrapped model, logging failures with
// provider/model context and rejecting the handful of malformed-response
// shapes (nil response, no choices, empty first-choice content)
// that would otherwise surface as a confusing downstream JSON error.
func (p *ProviderAwareLLM) GenerateContent(ctx context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	resp, err := p.Model.GenerateContent(ctx, messages, options...)
	if err != nil {
		if p.logger != nil {
			p.logger.Errorf("llm generation failed provider=%s model=%s: %v", p.provider, p.modelID, err)
		}
		return nil, err
	}

	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm response from provider=%s model=%s had no choices", p.provider, p.modelID)
	}
	if resp.Choices[0].Content == "" {
		return nil, fmt.Errorf("llm response from provider=%s model=%s had empty content", p.provider, p.modelID)
	}

	return resp, nil
}
