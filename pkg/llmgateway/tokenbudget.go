package llmgateway

import (
	"fmt"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

const promptTruncationMarkerFormat = "\n[--- PROMPT TRUNCATED | middle omitted | original length=%d tokens ---]\n"

var (
	tokenEncodingOnce sync.Once
	tokenEncoding     *tiktoken.Tiktoken
)

// estimateTokens approximates text's token count via tiktoken's cl100k_base
// encoding. No single tokenizer is exact across every provider the Gateway
// can address (Anthropic, OpenAI, Bedrock, Vertex), so this is used as a
// provider-agnostic estimate, not a billing-accurate count. Falls back to a
// chars/4 heuristic if the encoding fails to load.
func estimateTokens(text string) int {
	tokenEncodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			tokenEncoding = enc
		}
	})
	if tokenEncoding == nil {
		return len(text) / 4
	}
	return len(tokenEncoding.Encode(text, nil, nil))
}

// budgetPrompt keeps systemPrompt+userPrompt under cfg.MaxTokens (spec §6's
// per-node token-limit configuration) by trimming the middle of userPrompt
// — the notebook transcript / observation content the node prompt builders
// in pkg/workflow embed — so the structured-output schema instructions
// appended at its tail, and the system prompt, both survive intact. A
// maxTokens of 0 means unbounded: nothing is trimmed.
func budgetPrompt(systemPrompt, userPrompt string, maxTokens int) string {
	if maxTokens <= 0 {
		return userPrompt
	}

	budget := maxTokens - estimateTokens(systemPrompt)
	if budget <= 0 {
		return userPrompt
	}

	total := estimateTokens(userPrompt)
	if total <= budget {
		return userPrompt
	}

	charsPerToken := float64(len(userPrompt)) / float64(total)
	maxChars := int(float64(budget) * charsPerToken)
	if maxChars <= 0 || maxChars >= len(userPrompt) {
		return userPrompt
	}

	headLen := maxChars * 6 / 10
	tailLen := maxChars - headLen
	marker := fmt.Sprintf(promptTruncationMarkerFormat, total)

	return userPrompt[:headLen] + marker + userPrompt[len(userPrompt)-tailLen:]
}
