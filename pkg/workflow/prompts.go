package workflow

import (
	"fmt"
	"strings"

	"github.com/agentforge/taskrunner/pkg/model"
	"github.com/agentforge/taskrunner/pkg/observation"
)

const planningSystemPrompt = `You are the planning stage of a code-execution agent. Classify the incoming request as exactly one of CODE_PLANNING (requires running code to answer), GENERAL_ANSWER (answerable directly, no code needed), or CLARIFICATION (too ambiguous to proceed). Always explain your choice in task_rationale.`

func planningUserPrompt(state *model.AgentState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task description:\n%s\n\n", state.TaskDescription)
	if state.DataFilesDescription != "" {
		fmt.Fprintf(&b, "Data files description:\n%s\n\n", state.DataFilesDescription)
	}
	if len(state.UploadedFiles) > 0 {
		fmt.Fprintf(&b, "Uploaded files (sandbox paths):\n%s\n", strings.Join(state.UploadedFiles, "\n"))
	}
	return b.String()
}

const codePlanningSystemPrompt = `You are the code-planning stage of a code-execution agent. Given the steps completed so far and the consolidated observations, decide whether to iterate on the current step with a new distinct goal, proceed to a new step, or terminate the task as completed or failed. Return current_step_goal and current_step_description for ITERATE_CURRENT_STEP and PROCEED_TO_NEXT_STEP.`

func codePlanningUserPrompt(state *model.AgentState, observations *observation.Store) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task description:\n%s\n\n", state.TaskDescription)
	fmt.Fprintf(&b, "Current step goal: %s\n", state.CurrentStepGoal)
	fmt.Fprintf(&b, "Step attempts so far: %d\n\n", state.StepAttempts)
	b.WriteString("Completed steps:\n")
	for _, step := range state.CompletedSteps {
		fmt.Fprintf(&b, "- [%d] %s (success=%t)\n", step.StepNumber, step.Goal, step.Success)
	}
	b.WriteString("\nRules (must be obeyed):\n")
	for _, r := range observations.Rules() {
		fmt.Fprintf(&b, "- %s: %s\n", r.Title, r.Summary)
	}
	b.WriteString("\nData observations:\n")
	for _, o := range observations.DataObservations() {
		fmt.Fprintf(&b, "- %s: %s\n", o.Title, o.Summary)
	}
	return b.String()
}

const codeGenerationSystemPrompt = `You are the code-generation stage of a code-execution agent. Write a single self-contained Python code blob that accomplishes the current step goal. Reuse state from prior steps only via their printed/side-effected output; do not reference variables from a different process.`

func codeGenerationUserPrompt(state *model.AgentState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current step goal: %s\n", state.CurrentStepGoal)
	fmt.Fprintf(&b, "Current step description: %s\n\n", state.CurrentStepDescription)

	b.WriteString("Prior notebook transcript (completed steps' code, in order):\n")
	for _, step := range state.CompletedSteps {
		fmt.Fprintf(&b, "# Step %d: %s\n%s\n\n", step.StepNumber, step.Goal, step.Code)
	}

	if state.LastExecutionError != "" {
		fmt.Fprintf(&b, "The previous attempt at this step failed with:\n%s\n", state.LastExecutionError)
	}
	return b.String()
}

const executionObserverSystemPrompt = `You are the execution-observer stage of a code-execution agent. Given the code that ran and its captured stdout/stderr/results/error, decide whether the step succeeded and produce a list of StepObservation entries capturing anything future steps should know: facts (kind=observation) or binding constraints (kind=rule), each with a source (spec/user/data), importance and relevance in [1,5].`

func executionObserverUserPrompt(state *model.AgentState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Code executed:\n%s\n\n", state.GeneratedCode)
	if state.ExecutionResult != nil {
		fmt.Fprintf(&b, "stdout:\n%s\n\nstderr:\n%s\n\n", state.ExecutionResult.Stdout, state.ExecutionResult.Stderr)
		if state.ExecutionResult.Error != "" {
			fmt.Fprintf(&b, "error:\n%s\n\n", state.ExecutionResult.Error)
		}
		for _, r := range state.ExecutionResult.Results {
			fmt.Fprintf(&b, "result (%s):\n%s\n\n", r.MimeType, r.Data)
		}
	}
	return b.String()
}

const reflectionSystemPrompt = `You are the reflection stage of a code-execution agent. Merge the newly captured observations into the existing world observations. Duplicate titles+summaries collapse; rules are never demoted to observations or dropped; spec-sourced rules dominate user-sourced, which dominate data-sourced; on a same-(kind,source) conflict the higher step_number wins; observations with both importance<=2 and relevance<=2 may be dropped. Return the complete merged list.`

func reflectionUserPrompt(observations *observation.Store) string {
	var b strings.Builder
	b.WriteString("Existing world observations:\n")
	for _, o := range observations.World() {
		fmt.Fprintf(&b, "- [%s/%s/step %d] %s: %s\n", o.Kind, o.Source, o.StepNumber, o.Title, o.Summary)
	}
	b.WriteString("\nNewly captured observations for this step:\n")
	for _, o := range observations.SnapshotCurrent() {
		fmt.Fprintf(&b, "- [%s/%s/step %d] %s: %s\n", o.Kind, o.Source, o.StepNumber, o.Title, o.Summary)
	}
	return b.String()
}

const answeringSystemPrompt = `You are the answering stage of a code-execution agent. Produce the final response to the user in the mode requested.`

func clarificationUserPrompt(state *model.AgentState) string {
	return fmt.Sprintf("The request was ambiguous. Rationale: %s\n\nTask description:\n%s\n\nAsk the user clarifying questions.", state.TaskRationale, state.TaskDescription)
}

func generalAnswerUserPrompt(state *model.AgentState) string {
	return fmt.Sprintf("Answer the following directly, no code execution needed.\n\nTask description:\n%s\n\nRationale: %s", state.TaskDescription, state.TaskRationale)
}

func reportUserPrompt(state *model.AgentState, observations *observation.Store, sandboxTree string, completed bool) string {
	var b strings.Builder
	if completed {
		b.WriteString("The task completed successfully. Synthesize a final Markdown report.\n\n")
	} else {
		fmt.Fprintf(&b, "The task failed: %s\nSynthesize a final Markdown report explaining what was attempted and why it failed.\n\n", state.FailureReason)
	}

	fmt.Fprintf(&b, "Task description:\n%s\n\n", state.TaskDescription)

	b.WriteString("Completed steps:\n")
	for _, step := range state.CompletedSteps {
		fmt.Fprintf(&b, "- [%d] %s (success=%t)\n", step.StepNumber, step.Goal, step.Success)
	}

	b.WriteString("\nWorld observations:\n")
	for _, o := range observations.World() {
		fmt.Fprintf(&b, "- [%s/%s] %s: %s\n", o.Kind, o.Source, o.Title, o.Summary)
	}

	fmt.Fprintf(&b, "\nSandbox working directory listing:\n%s\n", sandboxTree)
	b.WriteString("\nFor every artifact worth surfacing to the user, return full_path relative to the sandbox working directory; it will be resolved to an absolute path.")
	return b.String()
}
