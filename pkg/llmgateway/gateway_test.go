package llmgateway

import (
	"context"
	"errors"
	"testing"

	"github.com/agentforge/taskrunner/internal/llmtypes"
)

// fakeModel is a scripted llmtypes.Model for exercising Gateway's schema
// enforcement and retry behavior without a real provider.
type fakeModel struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return &llmtypes.ContentResponse{
		Choices: []*llmtypes.ContentChoice{{Content: f.responses[idx]}},
	}, nil
}

func newTestGateway(node Node, model llmtypes.Model) *Gateway {
	gw := NewGateway(map[Node]ModelConfig{NodeDefault: {}}, nil)
	gw.models[node] = model
	return gw
}

func TestComplete_SuccessOnFirstTry(t *testing.T) {
	model := &fakeModel{responses: []string{`{"action_signal":"CODE_PLANNING","task_rationale":"needs code"}`}}
	gw := newTestGateway(NodeDefault, model)

	decision, err := Complete[PlanningDecision](context.Background(), gw, NodePlanning, "system", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.ActionSignal != "CODE_PLANNING" {
		t.Errorf("expected CODE_PLANNING, got %q", decision.ActionSignal)
	}
	if model.calls != 1 {
		t.Errorf("expected exactly one call, got %d", model.calls)
	}
}

func TestComplete_RetriesOnceOnSchemaFailure(t *testing.T) {
	model := &fakeModel{responses: []string{
		"this is not json at all",
		`{"action_signal":"TASK_COMPLETED","current_step_goal":"","current_step_description":"","rationale":"done"}`,
	}}
	gw := newTestGateway(NodeDefault, model)

	decision, err := Complete[CodePlanningDecision](context.Background(), gw, NodeCodePlanning, "system", "user")
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if decision.ActionSignal != "TASK_COMPLETED" {
		t.Errorf("expected TASK_COMPLETED, got %q", decision.ActionSignal)
	}
	if model.calls != 2 {
		t.Errorf("expected exactly two calls (one retry), got %d", model.calls)
	}
}

func TestComplete_PropagatesAfterSecondSchemaFailure(t *testing.T) {
	model := &fakeModel{responses: []string{"not json", "still not json"}}
	gw := newTestGateway(NodeDefault, model)

	_, err := Complete[PlanningDecision](context.Background(), gw, NodePlanning, "system", "user")
	if err == nil {
		t.Fatal("expected error after two schema failures")
	}
	if model.calls != 2 {
		t.Errorf("expected exactly two calls, got %d", model.calls)
	}
}

func TestComplete_ProviderErrorPropagates(t *testing.T) {
	model := &fakeModel{err: errors.New("connection refused")}
	gw := newTestGateway(NodeDefault, model)

	_, err := Complete[PlanningDecision](context.Background(), gw, NodePlanning, "system", "user")
	if err == nil {
		t.Fatal("expected provider error to propagate")
	}
}

func TestConfigFor_FallsBackToDefault(t *testing.T) {
	gw := NewGateway(map[Node]ModelConfig{
		NodeDefault:  {ModelID: "default-model"},
		NodePlanning: {ModelID: "planning-model"},
	}, nil)

	cfg, err := gw.configFor(NodePlanning)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ModelID != "planning-model" {
		t.Errorf("expected node-specific config, got %q", cfg.ModelID)
	}

	cfg, err = gw.configFor(NodeReflection)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ModelID != "default-model" {
		t.Errorf("expected fallback to DEFAULT config, got %q", cfg.ModelID)
	}
}

func TestConfigFor_MissingDefaultErrors(t *testing.T) {
	gw := NewGateway(map[Node]ModelConfig{}, nil)
	if _, err := gw.configFor(NodePlanning); err == nil {
		t.Fatal("expected error when neither node nor DEFAULT configured")
	}
}
