// Package config loads every environment-configurable value named in
// spec §6 and assembles it into the typed configs each component package
// wants: llmgateway.ModelConfig per node, workflow.Config, sandbox.Config,
// registry.Config, and coordinator.Config.
//
// Grounded on the teacher's cmd/root.go initConfig (godotenv-then-viper
// loading, AutomaticEnv for plain environment variables) — trimmed from
// "cobra flags plus a YAML config file" down to the env-var-only surface
// spec §6 names, since this module has no equivalent of the teacher's
// multi-server MCP config file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentforge/taskrunner/internal/llm"
	"github.com/agentforge/taskrunner/pkg/coordinator"
	"github.com/agentforge/taskrunner/pkg/llmgateway"
	"github.com/agentforge/taskrunner/pkg/registry"
	"github.com/agentforge/taskrunner/pkg/sandbox"
	"github.com/agentforge/taskrunner/pkg/workflow"
)

// Config is the fully-resolved, typed configuration for one process,
// covering every environment variable named in spec §6.
type Config struct {
	LogLevel  string
	LogFormat string
	LogFile   string
	APIKey    string

	ListenAddr string

	Models map[llmgateway.Node]llmgateway.ModelConfig

	MaxFileSizeMB int

	// HistoryDBPath is the sqlite file pkg/history audits terminal tasks
	// into. Empty disables history entirely.
	HistoryDBPath string

	Workflow    workflow.Config
	Registry    registry.Config
	Sandbox     sandbox.Config
	Coordinator coordinator.Config
}

// nodeEnvPrefixes maps each spec §6 env-var prefix to the Node it
// configures. EXECUTION_OBSERVER/REFLECTION have no prefix of their own
// and always resolve through NodeDefault inside llmgateway.Gateway.
var nodeEnvPrefixes = map[string]llmgateway.Node{
	"PLANNING":        llmgateway.NodePlanning,
	"CODE_PLANNING":   llmgateway.NodeCodePlanning,
	"CODE_GENERATION": llmgateway.NodeCodeGeneration,
	"ANSWERING":       llmgateway.NodeAnswering,
	"DEFAULT":         llmgateway.NodeDefault,
}

// Load reads .env (if present) and the process environment, and returns
// the assembled Config. Callers that need a single config file tried
// first (as the teacher's cmd/root.go does for --config) can call
// godotenv.Load explicitly before Load; Load itself only tries the
// conventional locations.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.GetViper()
	v.AutomaticEnv()
	setDefaults(v)

	models := make(map[llmgateway.Node]llmgateway.ModelConfig, len(nodeEnvPrefixes))
	for prefix, node := range nodeEnvPrefixes {
		modelConfig, err := modelConfigFor(v, prefix)
		if err != nil {
			return Config{}, err
		}
		if node != llmgateway.NodeDefault && modelConfig.Provider == "" {
			continue
		}
		models[node] = modelConfig
	}

	cfg := Config{
		LogLevel:      v.GetString("log_level"),
		LogFormat:     v.GetString("log_format"),
		LogFile:       v.GetString("log_file"),
		APIKey:        v.GetString("api_key"),
		ListenAddr:    v.GetString("listen_addr"),
		Models:        models,
		MaxFileSizeMB: v.GetInt("max_file_size_mb"),
		HistoryDBPath: v.GetString("history_db_path"),

		Workflow: workflow.Config{
			MaxGraphSteps:    v.GetInt("max_graph_steps"),
			MaxStepRetries:   v.GetInt("code_planning_max_step_retries"),
			MaxCodeRetries:   v.GetInt("code_generation_max_retries"),
			MaxOutputChars:   v.GetInt("max_output_chars"),
			OutputSplitRatio: v.GetFloat64("output_split_ratio"),
		},

		Registry: registry.Config{
			CleanupInterval: time.Duration(v.GetInt("task_cleanup_interval_seconds")) * time.Second,
			Expiry:          time.Duration(v.GetInt("task_expiry_seconds")) * time.Second,
		},

		Sandbox: sandbox.Config{
			URL:            v.GetString("sandbox_url"),
			WorkingDir:     v.GetString("sandbox_working_dir"),
			RemoteStoreSet: v.GetString("remote_store_bucket") != "",
			RetryConfig:    sandbox.DefaultRetryConfig(),
		},

		Coordinator: coordinator.Config{
			WorkingDir:         v.GetString("sandbox_working_dir"),
			DataTargetFolder:   v.GetString("sandbox_data_dir"),
			RemoteStoreEnabled: v.GetString("remote_store_bucket") != "",
			RemoteBasePath:     v.GetString("remote_store_base_path"),
		},
	}

	if timeout := v.GetInt("sandbox_default_timeout_seconds"); timeout > 0 {
		cfg.Sandbox.RetryConfig.ConnectTimeout = time.Duration(timeout) * time.Second
	}

	return cfg, nil
}

func loadDotEnv() {
	for _, path := range []string{".env", "../.env"} {
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
	fmt.Fprintln(os.Stderr, "no .env file found, using system environment variables")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("max_file_size_mb", 50)
	v.SetDefault("max_graph_steps", 250)
	v.SetDefault("code_planning_max_step_retries", 3)
	v.SetDefault("code_generation_max_retries", 5)
	v.SetDefault("max_output_chars", 25000)
	v.SetDefault("output_split_ratio", 0.6)
	v.SetDefault("task_cleanup_interval_seconds", 60)
	v.SetDefault("task_expiry_seconds", 300)
	v.SetDefault("sandbox_default_timeout_seconds", 2400)
	v.SetDefault("sandbox_working_dir", "/workspace")
	v.SetDefault("sandbox_data_dir", "data")
}

// modelConfigFor reads "<prefix>_PROVIDER"/"<prefix>_MODEL"/
// "<prefix>_MAX_TOKENS"/"<prefix>_TEMPERATURE"/"<prefix>_FALLBACK_MODELS"
// for one node, per spec §6's "LLM provider+model+token-limit per node". A
// configured provider is validated eagerly here (via llm.ValidateProvider)
// so a typo fails Load rather than surfacing later as a confusing runtime
// error on the node's first completion. Load leaves a node whose provider
// is unset out of Config.Models, so the gateway uses DEFAULT's
// configuration for it; an unset DEFAULT provider stays empty and is
// rejected by llm.InitializeLLM on the first completion. An unset
// model or fallback chain falls back to llm.GetDefaultModel/
// GetDefaultFallbackModels for the resolved provider.
func modelConfigFor(v *viper.Viper, prefix string) (llmgateway.ModelConfig, error) {
	key := func(suffix string) string { return strings.ToLower(prefix) + "_" + suffix }

	var provider llm.Provider
	if raw := v.GetString(key("provider")); raw != "" {
		validated, err := llm.ValidateProvider(raw)
		if err != nil {
			return llmgateway.ModelConfig{}, fmt.Errorf("%s_PROVIDER: %w", prefix, err)
		}
		provider = validated
	}

	cfg := llmgateway.ModelConfig{
		Provider:    provider,
		ModelID:     v.GetString(key("model")),
		Temperature: v.GetFloat64(key("temperature")),
		MaxTokens:   v.GetInt(key("max_tokens")),
	}
	if cfg.ModelID == "" {
		cfg.ModelID = llm.GetDefaultModel(provider)
	}

	if raw := v.GetString(key("fallback_models")); raw != "" {
		for _, m := range strings.Split(raw, ",") {
			if m = strings.TrimSpace(m); m != "" {
				cfg.FallbackModels = append(cfg.FallbackModels, m)
			}
		}
	}
	if len(cfg.FallbackModels) == 0 {
		cfg.FallbackModels = llm.GetDefaultFallbackModels(provider)
	}

	return cfg, nil
}
