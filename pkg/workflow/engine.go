// Package workflow implements the Workflow Engine (C4): the seven-node
// finite-state machine over AgentState named in spec §4.1, its transition
// table, bounded retries, and the hard MAX_GRAPH_STEPS cap.
//
// Grounded on the teacher's pkg/orchestrator/base_orchestrator.go
// (structured per-call logging around each phase of work) and
// pkg/orchestrator/agents/workflow/todo_execution/todo_execution_orchestrator.go
// (sequential phase pipeline with degrade-on-error semantics, directly
// informing the ANSWERING node's report synthesis) — neither ships a
// graph/FSM abstraction of its own, so the node-dispatch loop below is new,
// built in the same "log at each phase, propagate LLM errors, recover
// sandbox errors locally" idiom those files use.
package workflow

import (
	"context"
	"fmt"

	"github.com/agentforge/taskrunner/internal/utils"
	"github.com/agentforge/taskrunner/pkg/apperrors"
	"github.com/agentforge/taskrunner/pkg/llmgateway"
	"github.com/agentforge/taskrunner/pkg/model"
	"github.com/agentforge/taskrunner/pkg/observation"
	"github.com/agentforge/taskrunner/pkg/sandbox"
)

// node names one of the seven named nodes plus the terminal marker. Kept
// unexported: callers only ever see a completed AgentState, never the
// engine's internal node cursor.
type node string

const (
	nodePlanning          node = "PLANNING"
	nodeCodePlanning      node = "CODE_PLANNING"
	nodeCodeGeneration    node = "CODE_GENERATION"
	nodeCodeExecution     node = "CODE_EXECUTION"
	nodeExecutionObserver node = "EXECUTION_OBSERVER"
	nodeReflection        node = "REFLECTION"
	nodeAnswering         node = "ANSWERING"
	nodeEnd               node = "END"
)

// Registry is the subset of pkg/registry.Registry the engine needs: a
// liveness marker on every node entry (spec §4.5).
type Registry interface {
	UpdateStatus(taskID string, status model.TaskStatus, response *model.TaskResponse) error
}

// Engine drives one AgentState through the seven-node FSM. One Engine is
// shared across concurrent tasks; all per-task mutable state lives in the
// AgentState and Store passed into Run.
type Engine struct {
	config   Config
	gateway  *llmgateway.Gateway
	sandbox  sandbox.Gateway
	registry Registry
	logger   utils.ExtendedLogger
}

// New constructs an Engine. config is defaulted via Config.withDefaults.
func New(config Config, gateway *llmgateway.Gateway, sandboxGateway sandbox.Gateway, registry Registry, logger utils.ExtendedLogger) *Engine {
	return &Engine{
		config:   config.withDefaults(),
		gateway:  gateway,
		sandbox:  sandboxGateway,
		registry: registry,
		logger:   logger,
	}
}

// taskScoper and nodeScoper are the optional capabilities pkg/logger.Logger
// offers (ForTask/ForNode) for task- and node-correlated structured
// logging. Checked via type assertion rather than added to
// utils.ExtendedLogger itself, so test fakes that don't implement them
// keep working unchanged.
type taskScoper interface {
	ForTask(taskID string) utils.ExtendedLogger
}

type nodeScoper interface {
	ForNode(node string) utils.ExtendedLogger
}

// Run drives state from PLANNING to a terminal ANSWERING result, mutating
// state in place and populating state.TaskAnswer on return. A non-nil
// error means an LLM failure aborted the task (spec §4.1's "LLM errors ->
// raised, aborting the task"); the Coordinator is responsible for
// converting that into a FAILED TaskResponse. Sandbox failures never
// produce a non-nil error here — they are recorded in AgentState and
// drive the engine to TASK_FAILED through the normal transition table.
func (e *Engine) Run(ctx context.Context, state *model.AgentState, observations *observation.Store) error {
	current := nodePlanning
	steps := 0

	// A shallow copy lets every node handler below (all pointer-receiver
	// methods on *Engine) log through a task_id-correlated logger without
	// touching e.logger, which is shared across every task this Engine
	// concurrently runs.
	task := *e
	if scoper, ok := e.logger.(taskScoper); ok {
		task.logger = scoper.ForTask(state.TaskID)
	}

	for current != nodeEnd {
		steps++
		if steps > e.config.MaxGraphSteps {
			if task.logger != nil {
				task.logger.Warnf("exceeded MAX_GRAPH_STEPS (%d); forcing TASK_FAILED", e.config.MaxGraphSteps)
			}
			state.ActionSignal = "TASK_FAILED"
			state.FailureReason = "graph step budget exhausted"
			current = nodeAnswering
		}

		task.markLive(state.TaskID)

		step := task
		if scoper, ok := task.logger.(nodeScoper); ok {
			step.logger = scoper.ForNode(string(current))
		}
		if step.logger != nil {
			step.logger.Infof("entering node (step %d/%d)", steps, e.config.MaxGraphSteps)
		}

		next, err := step.dispatch(ctx, current, state, observations)
		if err != nil {
			return err
		}
		current = next
	}

	return nil
}

func (e *Engine) markLive(taskID string) {
	if e.registry == nil {
		return
	}
	if err := e.registry.UpdateStatus(taskID, model.StatusInProgress, nil); err != nil && e.logger != nil {
		e.logger.Warnf("failed to mark task live: %v", err)
	}
}

// dispatch runs the handler for current and returns the next node per
// spec §4.1's transition table.
func (e *Engine) dispatch(ctx context.Context, current node, state *model.AgentState, observations *observation.Store) (node, error) {
	switch current {
	case nodePlanning:
		return e.runPlanning(ctx, state)
	case nodeCodePlanning:
		return e.runCodePlanning(ctx, state, observations)
	case nodeCodeGeneration:
		return e.runCodeGeneration(ctx, state)
	case nodeCodeExecution:
		return e.runCodeExecution(ctx, state)
	case nodeExecutionObserver:
		return e.runExecutionObserver(ctx, state)
	case nodeReflection:
		return e.runReflection(ctx, state, observations)
	case nodeAnswering:
		return e.runAnswering(ctx, state, observations)
	default:
		return nodeEnd, apperrors.New(apperrors.KindValidation, fmt.Sprintf("unknown workflow node %q", current))
	}
}
