package llmgateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// buildStructuredPromptWithSchema appends the target schema and a closing
// instruction to a node's user prompt, grounded on the teacher's
// buildStructuredPromptWithSchema (pkg/mcpagent/structured_output.go).
func buildStructuredPromptWithSchema(basePrompt, schema string) string {
	var parts []string
	parts = append(parts, basePrompt)

	if schema != "" {
		parts = append(parts, "\n\nIMPORTANT: You must respond with valid JSON that exactly matches this schema:")
		parts = append(parts, "\nSchema:\n"+schema)
	} else {
		parts = append(parts, "\n\nIMPORTANT: You must respond with valid JSON that matches the expected structure.")
	}

	parts = append(parts, "\n\nCRITICAL: Return ONLY the JSON object that matches the schema exactly. No text, no explanations, no markdown. Just the JSON.")
	return strings.Join(parts, "")
}

// cleanContentForJSON strips markdown code fences and residual formatting
// artifacts a model sometimes wraps its JSON in, even under JSON mode.
func cleanContentForJSON(content string) string {
	cleaned := strings.TrimSpace(content)

	if strings.Contains(cleaned, "```") {
		startIdx := strings.Index(cleaned, "```")
		if startIdx != -1 {
			contentStart := startIdx + 3
			if newlineIdx := strings.Index(cleaned[contentStart:], "\n"); newlineIdx != -1 {
				contentStart += newlineIdx + 1
			}
			if endIdx := strings.LastIndex(cleaned, "```"); endIdx > contentStart {
				cleaned = cleaned[contentStart:endIdx]
			}
		}
	}

	if trimmed := strings.TrimSpace(cleaned); json.Valid([]byte(trimmed)) {
		return trimmed
	}

	cleaned = removeMarkdownArtifacts(cleaned)
	return strings.TrimSpace(cleaned)
}

// removeMarkdownArtifacts strips headers, emphasis, and list markers line by
// line, mirroring the teacher's string-operation approach rather than a
// regex pass.
func removeMarkdownArtifacts(content string) string {
	lines := strings.Split(content, "\n")
	var cleanedLines []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		trimmed = strings.ReplaceAll(trimmed, "**", "")
		trimmed = strings.ReplaceAll(trimmed, "*", "")
		trimmed = strings.ReplaceAll(trimmed, "`", "")
		cleanedLines = append(cleanedLines, trimmed)
	}

	cleaned := strings.Join(cleanedLines, "\n")
	cleaned = strings.ReplaceAll(cleaned, "\n\n\n", "\n")
	cleaned = strings.ReplaceAll(cleaned, "\n\n", "\n")
	return cleaned
}

// validateJSON checks that jsonStr is syntactically valid JSON and, when
// target is non-nil, that it unmarshals into target's type.
func validateJSON(jsonStr string, target any) error {
	var probe any
	if err := json.Unmarshal([]byte(jsonStr), &probe); err != nil {
		return fmt.Errorf("invalid JSON format: %w", err)
	}
	if target != nil {
		if err := json.Unmarshal([]byte(jsonStr), target); err != nil {
			return fmt.Errorf("JSON does not match expected structure: %w", err)
		}
	}
	return nil
}
