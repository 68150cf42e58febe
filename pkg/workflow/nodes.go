package workflow

import (
	"context"
	"fmt"

	"github.com/agentforge/taskrunner/pkg/llmgateway"
	"github.com/agentforge/taskrunner/pkg/model"
	"github.com/agentforge/taskrunner/pkg/notebook"
	"github.com/agentforge/taskrunner/pkg/observation"
)

// runPlanning is node 1 (entry): classify the request as CODE_PLANNING,
// GENERAL_ANSWER, or CLARIFICATION.
func (e *Engine) runPlanning(ctx context.Context, state *model.AgentState) (node, error) {
	decision, err := llmgateway.Complete[llmgateway.PlanningDecision](ctx, e.gateway, llmgateway.NodePlanning,
		planningSystemPrompt, planningUserPrompt(state))
	if err != nil {
		return nodeEnd, err
	}

	state.TaskRationale = decision.TaskRationale
	state.ActionSignal = decision.ActionSignal

	if decision.ActionSignal == "CODE_PLANNING" {
		return nodeCodePlanning, nil
	}
	return nodeAnswering, nil
}

// runCodePlanning is node 2: decide whether to iterate, proceed, or
// terminate the task, short-circuiting to TASK_FAILED when step_attempts
// has been exhausted.
func (e *Engine) runCodePlanning(ctx context.Context, state *model.AgentState, observations *observation.Store) (node, error) {
	if exceedsStepRetries(state.StepAttempts, e.config.MaxStepRetries) {
		state.ActionSignal = "TASK_FAILED"
		state.FailureReason = fmt.Sprintf("Exceeded maximum attempts (%d) for step goal %q", e.config.MaxStepRetries, state.CurrentStepGoal)
		e.archiveCurrentStep(state, observations, false)
		return nodeAnswering, nil
	}

	decision, err := llmgateway.Complete[llmgateway.CodePlanningDecision](ctx, e.gateway, llmgateway.NodeCodePlanning,
		codePlanningSystemPrompt, codePlanningUserPrompt(state, observations))
	if err != nil {
		return nodeEnd, err
	}

	state.ActionSignal = decision.ActionSignal

	switch decision.ActionSignal {
	case "PROCEED_TO_NEXT_STEP":
		e.archiveCurrentStep(state, observations, true)
		state.StepNumber++
		state.StepAttempts = 0
		state.CurrentStepGoal = decision.CurrentStepGoal
		state.CurrentStepDescription = decision.CurrentStepDescription
		state.AppendStepGoal(decision.CurrentStepGoal)
		return nodeCodeGeneration, nil

	case "ITERATE_CURRENT_STEP":
		state.StepAttempts++
		state.CurrentStepGoal = decision.CurrentStepGoal
		state.CurrentStepDescription = decision.CurrentStepDescription
		state.AppendStepGoal(decision.CurrentStepGoal)
		// A new distinct goal starts a fresh code-generation cycle: reset
		// the generation-level counters even though nothing is archived yet
		// (code_generation_attempts counts attempts "within one step", and
		// an iterated goal is a new attempt at that step).
		resetGenerationState(state)
		return nodeCodeGeneration, nil

	case "TASK_COMPLETED", "TASK_FAILED":
		if decision.ActionSignal == "TASK_FAILED" {
			state.FailureReason = decision.Rationale
		}
		e.archiveCurrentStep(state, observations, decision.ActionSignal == "TASK_COMPLETED")
		return nodeAnswering, nil

	default:
		return nodeEnd, fmt.Errorf("unrecognized CodePlanningDecision.action_signal %q", decision.ActionSignal)
	}
}

// archiveCurrentStep appends the step in flight to completed_steps and
// resets the per-step working fields, per spec §4.1 node 2's "On
// PROCEED/COMPLETED/FAILED, append the current step... reset
// code_generation_attempts, generated_code, execution_result,
// last_execution_output, last_execution_error."
func (e *Engine) archiveCurrentStep(state *model.AgentState, observations *observation.Store, success bool) {
	if state.CurrentStepGoal == "" && state.GeneratedCode == "" {
		// Nothing has been attempted yet (e.g. the very first CODE_PLANNING
		// call before any step existed) — nothing to archive.
		return
	}

	state.CompletedSteps = append(state.CompletedSteps, model.CompletedStep{
		StepNumber:      state.StepNumber,
		Goal:            state.CurrentStepGoal,
		Description:     state.CurrentStepDescription,
		Code:            state.GeneratedCode,
		ExecutionResult: state.ExecutionResult,
		Success:         success,
		Observations:    observations.SnapshotCurrent(),
	})

	resetGenerationState(state)
}

// exceedsStepRetries reports spec §8's invariant exactly:
// step_attempts == MAX_STEP_RETRIES is still allowed; only strictly
// exceeding it forces failure.
func exceedsStepRetries(attempts, maxRetries int) bool {
	return attempts > maxRetries
}

func resetGenerationState(state *model.AgentState) {
	state.CodeGenerationAttempt = 0
	state.GeneratedCode = ""
	state.ExecutionResult = nil
	state.LastExecutionOutput = ""
	state.LastExecutionError = ""
}

// runCodeGeneration is node 3: ask for a single Python code blob.
func (e *Engine) runCodeGeneration(ctx context.Context, state *model.AgentState) (node, error) {
	code, err := llmgateway.Complete[llmgateway.PythonCode](ctx, e.gateway, llmgateway.NodeCodeGeneration,
		codeGenerationSystemPrompt, codeGenerationUserPrompt(state))
	if err != nil {
		return nodeEnd, err
	}

	state.GeneratedCode = code.Code
	state.CodeGenerationAttempt++
	state.ActionSignal = "EXECUTE_CODE"
	return nodeCodeExecution, nil
}

// runCodeExecution is node 4: run generated_code in the sandbox, truncate
// captured output, and route on success/failure.
func (e *Engine) runCodeExecution(ctx context.Context, state *model.AgentState) (node, error) {
	result, err := e.sandbox.ExecuteCode(ctx, state.SandboxID, state.GeneratedCode)
	if err != nil {
		// Gateway-side transport failure: recorded, not propagated, per
		// spec §4.1's "Any exception raised by the gateway is caught and
		// surfaced as a failure (not propagated)."
		state.LastExecutionError = err.Error()
		state.ExecutionResult = &model.ExecutionResult{Error: err.Error()}
		state.ActionSignal = "CODE_EXECUTION_FAILED"
		return e.routeExecutionResult(state), nil
	}

	result.Stdout = truncate(result.Stdout, e.config.MaxOutputChars, e.config.OutputSplitRatio)
	result.Stderr = truncate(result.Stderr, e.config.MaxOutputChars, e.config.OutputSplitRatio)
	for i, part := range result.Results {
		result.Results[i].Data = truncate(part.Data, e.config.MaxOutputChars, e.config.OutputSplitRatio)
	}

	state.ExecutionResult = result
	state.LastExecutionOutput = result.Stdout

	if result.Error != "" {
		state.LastExecutionError = truncate(result.Error, e.config.MaxOutputChars, e.config.OutputSplitRatio)
		state.ActionSignal = "CODE_EXECUTION_FAILED"
	} else {
		state.LastExecutionError = ""
		state.ActionSignal = "CODE_EXECUTION_SUCCESS"
	}

	return e.routeExecutionResult(state), nil
}

func (e *Engine) routeExecutionResult(state *model.AgentState) node {
	if state.ActionSignal == "CODE_EXECUTION_SUCCESS" {
		return nodeExecutionObserver
	}
	if state.CodeGenerationAttempt >= e.config.MaxCodeRetries {
		return nodeExecutionObserver
	}
	return nodeCodeGeneration
}

// runExecutionObserver is node 5: ask for StepObservations from the
// execution transcript.
func (e *Engine) runExecutionObserver(ctx context.Context, state *model.AgentState) (node, error) {
	decision, err := llmgateway.Complete[llmgateway.ExecutionObserverDecision](ctx, e.gateway, llmgateway.NodeExecutionObserver,
		executionObserverSystemPrompt, executionObserverUserPrompt(state))
	if err != nil {
		return nodeEnd, err
	}

	state.CurrentStepObservations = toStepObservations(decision.Observations, state.StepNumber)
	state.CurrentStepSuccess = decision.ExecutionSuccess

	if decision.ExecutionSuccess {
		return nodeReflection, nil
	}
	return nodeCodePlanning, nil
}

func toStepObservations(payloads []llmgateway.ObservationPayload, stepNumber int) []model.StepObservation {
	out := make([]model.StepObservation, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, model.StepObservation{
			Title:      p.Title,
			Summary:    p.Summary,
			Kind:       model.ObservationKind(p.Kind),
			Source:     model.ObservationSource(p.Source),
			RawOutput:  p.RawOutput,
			Importance: p.Importance,
			Relevance:  p.Relevance,
			StepNumber: stepNumber,
		})
	}
	return out
}

// runReflection is node 6: merge current_step_observations into
// world_observations. Only reached on execution success.
func (e *Engine) runReflection(ctx context.Context, state *model.AgentState, observations *observation.Store) (node, error) {
	observations.AppendCurrent(state.CurrentStepObservations)

	decision, err := llmgateway.Complete[llmgateway.ReflectionDecision](ctx, e.gateway, llmgateway.NodeReflection,
		reflectionSystemPrompt, reflectionUserPrompt(observations))
	if err != nil {
		return nodeEnd, err
	}

	proposed := toStepObservations(decision.Observations, state.StepNumber)
	state.WorldObservations = observations.Reflect(proposed)
	state.CurrentStepObservations = nil

	return nodeCodePlanning, nil
}

// runAnswering is node 7 (terminal-producing): generate the final
// Markdown answer for one of three modes.
func (e *Engine) runAnswering(ctx context.Context, state *model.AgentState, observations *observation.Store) (node, error) {
	switch state.ActionSignal {
	case "CLARIFICATION":
		resp, err := llmgateway.Complete[llmgateway.ClarificationResponse](ctx, e.gateway, llmgateway.NodeAnswering,
			answeringSystemPrompt, clarificationUserPrompt(state))
		if err != nil {
			return nodeEnd, err
		}
		state.TaskAnswer = &model.TaskAnswer{Answer: resp.Questions, Success: true}
		return nodeEnd, nil

	case "GENERAL_ANSWER":
		resp, err := llmgateway.Complete[llmgateway.GeneralAnswerResponse](ctx, e.gateway, llmgateway.NodeAnswering,
			answeringSystemPrompt, generalAnswerUserPrompt(state))
		if err != nil {
			return nodeEnd, err
		}
		state.TaskAnswer = &model.TaskAnswer{Answer: resp.Answer, Success: true}
		return nodeEnd, nil

	case "TASK_FAILED":
		return e.synthesizeReport(ctx, state, observations, false)

	case "TASK_COMPLETED":
		return e.synthesizeReport(ctx, state, observations, true)

	default:
		return nodeEnd, fmt.Errorf("ANSWERING reached with unrecognized action_signal %q", state.ActionSignal)
	}
}

// synthesizeReport implements spec §4.1 node 7's TASK_COMPLETED/TASK_FAILED
// mode: synthesize a report from completed_steps + world_observations +
// a sandbox working-directory listing, and attach the rendered notebook as
// an extra FILE artifact. Artifact paths are kept as the model named them;
// the Coordinator resolves them to absolute form.
func (e *Engine) synthesizeReport(ctx context.Context, state *model.AgentState, observations *observation.Store, completed bool) (node, error) {
	tree, err := e.sandbox.ListTree(ctx, state.SandboxID, ".")
	if err != nil {
		if e.logger != nil {
			e.logger.Warnf("failed to list sandbox working directory for report synthesis: %v", err)
		}
		tree = ""
	}

	answer, err := llmgateway.Complete[llmgateway.TaskAnswerPayload](ctx, e.gateway, llmgateway.NodeAnswering,
		answeringSystemPrompt, reportUserPrompt(state, observations, tree, completed))
	if err != nil {
		return nodeEnd, err
	}

	artifacts := make([]model.ArtifactDecision, 0, len(answer.Artifacts)+1)
	for _, a := range answer.Artifacts {
		artifacts = append(artifacts, model.ArtifactDecision{
			Type:        model.ArtifactType(a.Type),
			Description: a.Description,
			FullPath:    a.FullPath,
		})
	}

	nb := notebook.Render(state.TaskDescription, state.TaskRationale, state.CompletedSteps)
	notebookPath, err := e.sandbox.SaveNotebook(ctx, state.SandboxID, nb, notebookFilename)
	if err != nil {
		if e.logger != nil {
			e.logger.Warnf("failed to save notebook: %v", err)
		}
	} else {
		artifacts = append(artifacts, model.ArtifactDecision{
			Type:        model.ArtifactFile,
			Description: "Execution notebook",
			FullPath:    notebookPath,
		})
	}

	state.TaskAnswer = &model.TaskAnswer{
		NotebookDescription: answer.NotebookDescription,
		Answer:              answer.Answer,
		Success:             completed && answer.Success,
		Artifacts:           artifacts,
	}
	return nodeEnd, nil
}

const notebookFilename = "execution_report.ipynb"
