package llmgateway

import (
	"strings"
	"testing"
)

func TestEstimateTokens_NonEmptyTextYieldsPositiveCount(t *testing.T) {
	if got := estimateTokens("the quick brown fox jumps over the lazy dog"); got <= 0 {
		t.Errorf("expected a positive token estimate, got %d", got)
	}
}

func TestBudgetPrompt_UnboundedWhenMaxTokensZero(t *testing.T) {
	userPrompt := strings.Repeat("x", 100000)
	if got := budgetPrompt("system", userPrompt, 0); got != userPrompt {
		t.Error("expected maxTokens=0 to leave the prompt untouched")
	}
}

func TestBudgetPrompt_LeavesShortPromptUntouched(t *testing.T) {
	userPrompt := "do the thing"
	if got := budgetPrompt("system prompt", userPrompt, 10000); got != userPrompt {
		t.Errorf("expected a prompt well under budget to pass through unchanged, got %q", got)
	}
}

func TestBudgetPrompt_TrimsOversizedPromptAndKeepsTail(t *testing.T) {
	userPrompt := strings.Repeat("observation content ", 5000) + "TAIL_MARKER_SCHEMA_INSTRUCTIONS"
	got := budgetPrompt("system", userPrompt, 100)

	if got == userPrompt {
		t.Fatal("expected an oversized prompt to be trimmed")
	}
	if !strings.Contains(got, "PROMPT TRUNCATED") {
		t.Errorf("expected a truncation marker, got %q", got)
	}
	if !strings.HasSuffix(got, "TAIL_MARKER_SCHEMA_INSTRUCTIONS") {
		t.Error("expected the schema instructions at the tail of the prompt to survive truncation")
	}
}
