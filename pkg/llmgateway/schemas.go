// Package llmgateway implements the LLM Gateway (C2): a single Complete
// operation that invokes a configured model with a system+user message pair
// and parses the reply into one of a closed set of structured output
// schemas, enforcing that schema at the boundary.
package llmgateway

import (
	"sync"

	"github.com/invopop/jsonschema"
)

// PlanningDecision is the PLANNING node's structured output.
type PlanningDecision struct {
	ActionSignal  string `json:"action_signal" jsonschema:"enum=CODE_PLANNING,enum=GENERAL_ANSWER,enum=CLARIFICATION,required"`
	TaskRationale string `json:"task_rationale" jsonschema:"required"`
}

// CodePlanningDecision is the CODE_PLANNING node's structured output.
type CodePlanningDecision struct {
	ActionSignal           string `json:"action_signal" jsonschema:"enum=ITERATE_CURRENT_STEP,enum=PROCEED_TO_NEXT_STEP,enum=TASK_COMPLETED,enum=TASK_FAILED,required"`
	CurrentStepGoal        string `json:"current_step_goal"`
	CurrentStepDescription string `json:"current_step_description"`
	Rationale              string `json:"rationale"`
}

// PythonCode is the CODE_GENERATION node's structured output.
type PythonCode struct {
	Code string `json:"code" jsonschema:"required"`
}

// ExecutionObserverDecision is the EXECUTION_OBSERVER node's structured output.
type ExecutionObserverDecision struct {
	ExecutionSuccess bool                   `json:"execution_success"`
	Observations     []ObservationPayload   `json:"observations"`
}

// ObservationPayload mirrors model.StepObservation's LLM-facing fields (the
// step_number is stamped by the engine, not returned by the model).
type ObservationPayload struct {
	Title      string `json:"title" jsonschema:"required"`
	Summary    string `json:"summary" jsonschema:"required"`
	Kind       string `json:"kind" jsonschema:"enum=observation,enum=rule,required"`
	Source     string `json:"source" jsonschema:"enum=data,enum=spec,enum=user,required"`
	RawOutput  string `json:"raw_output,omitempty"`
	Importance int    `json:"importance" jsonschema:"minimum=1,maximum=5"`
	Relevance  int    `json:"relevance" jsonschema:"minimum=1,maximum=5"`
}

// ReflectionDecision is the REFLECTION node's structured output: the merged
// world_observations set, per spec §4.1 node 6.
type ReflectionDecision struct {
	Observations []ObservationPayload `json:"observations"`
}

// ClarificationResponse is one of the three ANSWERING shapes: questions back
// to the user when PLANNING classified the request as ambiguous.
type ClarificationResponse struct {
	Questions string `json:"questions" jsonschema:"required"`
}

// GeneralAnswerResponse is one of the three ANSWERING shapes: a direct
// answer when PLANNING classified the request as answerable without code.
type GeneralAnswerResponse struct {
	Answer string `json:"answer" jsonschema:"required"`
}

// TaskAnswerPayload is the ANSWERING node's structured output for the
// TASK_COMPLETED/TASK_FAILED path: a Markdown report plus the artifacts to
// surface, named relative to the sandbox working directory.
type TaskAnswerPayload struct {
	NotebookDescription string                      `json:"notebook_description"`
	Answer              string                      `json:"answer" jsonschema:"required"`
	Success             bool                        `json:"success"`
	Artifacts           []ArtifactDecisionPayload   `json:"artifacts"`
}

// ArtifactDecisionPayload mirrors model.ArtifactDecision.
type ArtifactDecisionPayload struct {
	Type        string `json:"type" jsonschema:"enum=FILE,enum=FOLDER,required"`
	Description string `json:"description"`
	FullPath    string `json:"full_path" jsonschema:"required"`
}

var (
	schemaCacheMu sync.Mutex
	schemaCache   = map[string]string{}
)

// schemaStringFor returns the JSON Schema (as a compact string, suitable for
// embedding in a prompt) for v's type, memoized by Go type name since the
// reflector walk is not free and the closed schema set never changes shape
// at runtime.
func schemaStringFor(name string, v any) string {
	schemaCacheMu.Lock()
	defer schemaCacheMu.Unlock()

	if cached, ok := schemaCache[name]; ok {
		return cached
	}

	r := new(jsonschema.Reflector)
	r.ExpandedStruct = true
	r.DoNotReference = true
	r.RequiredFromJSONSchemaTags = true

	schema := r.Reflect(v)
	out, err := schema.MarshalJSON()
	if err != nil {
		// The reflector only fails on types it cannot introspect; every
		// schema in this file is a plain struct, so this is unreachable in
		// practice. Fall back to an empty object rather than panicking.
		schemaCache[name] = "{}"
		return "{}"
	}

	schemaCache[name] = string(out)
	return schemaCache[name]
}
