// Package notebook assembles the Jupyter-like notebook object spec §6
// names: a markdown header cell, then per-CompletedStep a goal cell, a
// description cell, a code cell, and one output per stdout line, per
// stderr line, per result MIME part, and an error output if applicable.
//
// No teacher file renders an equivalent document; struct/JSON-tag
// conventions follow the rest of the pack's response-struct style
// (cmd/server/server.go's JSON response structs).
package notebook

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/agentforge/taskrunner/pkg/model"
)

// Notebook is a minimal nbformat-v4-shaped document: just enough
// structure for a notebook viewer to render the cells and outputs spec §6
// requires, without depending on the full nbformat schema.
type Notebook struct {
	NBFormat      int           `json:"nbformat"`
	NBFormatMinor int           `json:"nbformat_minor"`
	Metadata      Metadata      `json:"metadata"`
	Cells         []Cell        `json:"cells"`
}

// Metadata carries the kernel/language descriptors nbformat readers expect.
type Metadata struct {
	KernelSpec   KernelSpec `json:"kernelspec"`
	LanguageInfo LangInfo   `json:"language_info"`
}

type KernelSpec struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Language    string `json:"language"`
}

type LangInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Cell is one markdown or code cell.
type Cell struct {
	CellType string          `json:"cell_type"` // "markdown" or "code"
	Source   []string        `json:"source"`
	Outputs  []Output        `json:"outputs,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Output is one nbformat output entry: a stream line, a display_data MIME
// bundle, or an error.
type Output struct {
	OutputType string            `json:"output_type"` // "stream", "display_data", "error"
	Name       string            `json:"name,omitempty"` // "stdout" or "stderr", for stream outputs
	Text       []string          `json:"text,omitempty"`
	Data       map[string]string `json:"data,omitempty"` // MIME type -> content, for display_data
	ErrorName  string            `json:"ename,omitempty"`
	ErrorValue string            `json:"evalue,omitempty"`
}

// mimeKeys maps the result MIME kinds spec §6 names to nbformat MIME types.
var mimeKeys = map[string]string{
	"text":     "text/plain",
	"html":     "text/html",
	"markdown": "text/markdown",
	"png":      "image/png",
	"svg":      "image/svg+xml",
	"json":     "application/json",
}

// Render assembles the notebook for a terminal task: a markdown header
// with taskDescription + rationale, followed by one section per completed
// step.
func Render(taskDescription, rationale string, steps []model.CompletedStep) []byte {
	nb := Notebook{
		NBFormat:      4,
		NBFormatMinor: 5,
		Metadata: Metadata{
			KernelSpec:   KernelSpec{Name: "python3", DisplayName: "Python 3", Language: "python"},
			LanguageInfo: LangInfo{Name: "python", Version: "3"},
		},
	}

	nb.Cells = append(nb.Cells, markdownCell(headerSource(taskDescription, rationale)))

	for _, step := range steps {
		nb.Cells = append(nb.Cells, markdownCell([]string{formatStepGoal(step)}))
		nb.Cells = append(nb.Cells, markdownCell([]string{step.Description}))
		nb.Cells = append(nb.Cells, codeCell(step))
	}

	out, err := json.MarshalIndent(nb, "", "  ")
	if err != nil {
		// Render is never expected to fail: Notebook's fields are all
		// plain strings/maps built from already-validated AgentState data.
		return []byte("{}")
	}
	return out
}

func headerSource(taskDescription, rationale string) []string {
	return []string{
		"# Task\n\n",
		taskDescription + "\n\n",
		"## Rationale\n\n",
		rationale,
	}
}

func formatStepGoal(step model.CompletedStep) string {
	return "## Step " + strconv.Itoa(step.StepNumber) + ": " + step.Goal
}

func markdownCell(source []string) Cell {
	return Cell{CellType: "markdown", Source: source}
}

func codeCell(step model.CompletedStep) Cell {
	cell := Cell{CellType: "code", Source: []string{step.Code}}

	if step.ExecutionResult == nil {
		return cell
	}

	for _, line := range splitNonEmptyLines(step.ExecutionResult.Stdout) {
		cell.Outputs = append(cell.Outputs, Output{OutputType: "stream", Name: "stdout", Text: []string{line}})
	}
	for _, line := range splitNonEmptyLines(step.ExecutionResult.Stderr) {
		cell.Outputs = append(cell.Outputs, Output{OutputType: "stream", Name: "stderr", Text: []string{line}})
	}
	for _, result := range step.ExecutionResult.Results {
		mime, ok := mimeKeys[result.MimeType]
		if !ok {
			mime = result.MimeType
		}
		cell.Outputs = append(cell.Outputs, Output{
			OutputType: "display_data",
			Data:       map[string]string{mime: result.Data},
		})
	}
	if step.ExecutionResult.Error != "" {
		cell.Outputs = append(cell.Outputs, Output{
			OutputType: "error",
			ErrorName:  "ExecutionError",
			ErrorValue: step.ExecutionResult.Error,
		})
	}

	return cell
}

func splitNonEmptyLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
