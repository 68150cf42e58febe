package config

import (
	"os"
	"testing"

	"github.com/agentforge/taskrunner/pkg/llmgateway"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LOG_LEVEL", "API_KEY", "MAX_FILE_SIZE_MB",
		"CODE_PLANNING_MAX_STEP_RETRIES", "CODE_GENERATION_MAX_RETRIES",
		"MAX_OUTPUT_CHARS", "OUTPUT_SPLIT_RATIO",
		"TASK_CLEANUP_INTERVAL_SECONDS", "TASK_EXPIRY_SECONDS",
		"PLANNING_PROVIDER", "PLANNING_MODEL", "DEFAULT_PROVIDER", "DEFAULT_MODEL",
		"REMOTE_STORE_BUCKET", "REMOTE_STORE_BASE_PATH",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_AppliesSpecDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Workflow.MaxGraphSteps != 250 {
		t.Errorf("expected MAX_GRAPH_STEPS default 250, got %d", cfg.Workflow.MaxGraphSteps)
	}
	if cfg.Workflow.MaxStepRetries != 3 {
		t.Errorf("expected CODE_PLANNING_MAX_STEP_RETRIES default 3, got %d", cfg.Workflow.MaxStepRetries)
	}
	if cfg.Workflow.MaxCodeRetries != 5 {
		t.Errorf("expected CODE_GENERATION_MAX_RETRIES default 5, got %d", cfg.Workflow.MaxCodeRetries)
	}
	if cfg.Workflow.MaxOutputChars != 25000 {
		t.Errorf("expected MAX_OUTPUT_CHARS default 25000, got %d", cfg.Workflow.MaxOutputChars)
	}
	if cfg.Workflow.OutputSplitRatio != 0.6 {
		t.Errorf("expected OUTPUT_SPLIT_RATIO default 0.6, got %v", cfg.Workflow.OutputSplitRatio)
	}
	if cfg.Registry.CleanupInterval.Seconds() != 60 {
		t.Errorf("expected TASK_CLEANUP_INTERVAL_SECONDS default 60s, got %v", cfg.Registry.CleanupInterval)
	}
	if cfg.Registry.Expiry.Seconds() != 300 {
		t.Errorf("expected TASK_EXPIRY_SECONDS default 300s, got %v", cfg.Registry.Expiry)
	}
	if cfg.Sandbox.RemoteStoreSet {
		t.Errorf("expected RemoteStoreSet false with no remote store bucket configured")
	}
	if cfg.Coordinator.RemoteStoreEnabled {
		t.Errorf("expected coordinator remote-store mode disabled by default")
	}
}

func TestLoad_PerNodeModelConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("PLANNING_PROVIDER", "anthropic")
	t.Setenv("PLANNING_MODEL", "claude-x")
	t.Setenv("PLANNING_MAX_TOKENS", "4096")
	t.Setenv("DEFAULT_PROVIDER", "openai")
	t.Setenv("DEFAULT_MODEL", "gpt-x")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	planning := cfg.Models[llmgateway.NodePlanning]
	if string(planning.Provider) != "anthropic" || planning.ModelID != "claude-x" || planning.MaxTokens != 4096 {
		t.Errorf("unexpected PLANNING model config: %+v", planning)
	}
	def := cfg.Models[llmgateway.NodeDefault]
	if string(def.Provider) != "openai" || def.ModelID != "gpt-x" {
		t.Errorf("unexpected DEFAULT model config: %+v", def)
	}
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("PLANNING_PROVIDER", "not-a-real-provider")

	if _, err := Load(); err == nil {
		t.Fatal("expected Load to reject an unrecognized PLANNING_PROVIDER")
	}
}

func TestLoad_UnsetModelFallsBackToProviderDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEFAULT_PROVIDER", "anthropic")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Models[llmgateway.NodeDefault].ModelID == "" {
		t.Error("expected an unset DEFAULT_MODEL to resolve to the provider's default model")
	}
}

func TestLoad_RemoteStoreEnabledWhenBucketSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("REMOTE_STORE_BUCKET", "my-bucket")
	t.Setenv("REMOTE_STORE_BASE_PATH", "artifacts")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Sandbox.RemoteStoreSet {
		t.Errorf("expected RemoteStoreSet true once a remote store bucket is configured")
	}
	if !cfg.Coordinator.RemoteStoreEnabled {
		t.Errorf("expected coordinator remote-store mode enabled")
	}
	if cfg.Coordinator.RemoteBasePath != "artifacts" {
		t.Errorf("expected RemoteBasePath %q, got %q", "artifacts", cfg.Coordinator.RemoteBasePath)
	}
}
