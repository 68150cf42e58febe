package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"
)

// validateFilePath ensures filePath resolves inside baseDir and carries no
// path-traversal sequences, ported from the teacher's
// pkg/mcpagent/large_output_virtual_tools.go (validateFilePath), re-targeted
// from guarding large-tool-output reads to guarding sandbox file downloads.
func validateFilePath(filePath, baseDir string) error {
	absFilePath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("invalid file path: %w", err)
	}

	absBaseDir, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("invalid base directory: %w", err)
	}

	rel, err := filepath.Rel(absBaseDir, absFilePath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("file path escapes allowed directory")
	}
	if strings.Contains(filePath, "..") {
		return fmt.Errorf("path traversal detected")
	}

	return nil
}

// resolveDownloadPath implements spec §4.3's DownloadFile fallback: a
// relative path resolves against workingDir; an absolute path is used as-is
// (but must still pass validateFilePath against workingDir).
func resolveDownloadPath(path, workingDir string) (string, error) {
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(workingDir, resolved)
	}
	if err := validateFilePath(resolved, workingDir); err != nil {
		return "", err
	}
	return resolved, nil
}
