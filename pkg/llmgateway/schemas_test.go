package llmgateway

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSchemaStringFor_ProducesValidJSONSchema(t *testing.T) {
	out := schemaStringFor("PlanningDecision", PlanningDecision{})

	var probe map[string]any
	if err := json.Unmarshal([]byte(out), &probe); err != nil {
		t.Fatalf("expected schemaStringFor to produce valid JSON, got error: %v, output: %s", err, out)
	}
	if !strings.Contains(out, "action_signal") {
		t.Errorf("expected schema to mention action_signal field, got %s", out)
	}
}

func TestSchemaStringFor_Memoizes(t *testing.T) {
	first := schemaStringFor("PythonCode", PythonCode{})
	second := schemaStringFor("PythonCode", PythonCode{})
	if first != second {
		t.Errorf("expected memoized schema string to be stable across calls")
	}
}
