package notebook

import (
	"encoding/json"
	"testing"

	"github.com/agentforge/taskrunner/pkg/model"
)

func TestRender_ProducesValidNBFormatJSON(t *testing.T) {
	steps := []model.CompletedStep{
		{
			StepNumber:  0,
			Goal:        "print hello",
			Description: "print a greeting",
			Code:        "print('hello')",
			Success:     true,
			ExecutionResult: &model.ExecutionResult{
				Stdout: "hello\n",
				Results: []model.ResultPart{
					{MimeType: "text", Data: "hello"},
				},
			},
		},
	}

	out := Render("print hello", "straightforward task", steps)

	var decoded Notebook
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("expected valid JSON, got error: %v", err)
	}
	if decoded.NBFormat != 4 {
		t.Errorf("expected nbformat 4, got %d", decoded.NBFormat)
	}
	// header + (goal, description, code) per step
	wantCells := 1 + 3*len(steps)
	if len(decoded.Cells) != wantCells {
		t.Errorf("expected %d cells, got %d", wantCells, len(decoded.Cells))
	}
}

func TestRender_CodeCellCarriesStdoutAndResultOutputs(t *testing.T) {
	steps := []model.CompletedStep{
		{
			StepNumber: 0,
			Goal:       "goal",
			Code:       "print('a')\nprint('b')",
			ExecutionResult: &model.ExecutionResult{
				Stdout:  "a\nb\n",
				Results: []model.ResultPart{{MimeType: "png", Data: "base64data"}},
			},
		},
	}

	out := Render("task", "rationale", steps)

	var decoded Notebook
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	codeCell := decoded.Cells[len(decoded.Cells)-1]
	if codeCell.CellType != "code" {
		t.Fatalf("expected last cell of the step to be a code cell, got %q", codeCell.CellType)
	}

	var stdoutOutputs, displayOutputs int
	for _, o := range codeCell.Outputs {
		switch o.OutputType {
		case "stream":
			if o.Name == "stdout" {
				stdoutOutputs++
			}
		case "display_data":
			displayOutputs++
			if _, ok := o.Data["image/png"]; !ok {
				t.Errorf("expected png result mapped to image/png, got %+v", o.Data)
			}
		}
	}
	if stdoutOutputs != 2 {
		t.Errorf("expected one stream output per stdout line, got %d", stdoutOutputs)
	}
	if displayOutputs != 1 {
		t.Errorf("expected one display_data output for the result, got %d", displayOutputs)
	}
}

func TestRender_ErrorOutputIncludedWhenPresent(t *testing.T) {
	steps := []model.CompletedStep{
		{
			StepNumber: 0,
			Goal:       "goal",
			Code:       "raise ValueError('boom')",
			ExecutionResult: &model.ExecutionResult{
				Error: "ValueError: boom",
			},
		},
	}

	out := Render("task", "rationale", steps)

	var decoded Notebook
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	codeCell := decoded.Cells[len(decoded.Cells)-1]
	var foundError bool
	for _, o := range codeCell.Outputs {
		if o.OutputType == "error" {
			foundError = true
			if o.ErrorValue != "ValueError: boom" {
				t.Errorf("expected error value preserved, got %q", o.ErrorValue)
			}
		}
	}
	if !foundError {
		t.Error("expected an error output when ExecutionResult.Error is set")
	}
}

func TestRender_NoStepsStillProducesHeaderCell(t *testing.T) {
	out := Render("task", "rationale", nil)

	var decoded Notebook
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decoded.Cells) != 1 {
		t.Errorf("expected exactly the header cell when there are no steps, got %d cells", len(decoded.Cells))
	}
}
