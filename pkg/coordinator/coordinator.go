// Package coordinator implements the Task Coordinator (C6): the one
// entry point that turns a caller's TaskRequest into a TaskResponse,
// synchronously or in the background. It owns sandbox lifecycle,
// staging uploaded/remote input files, driving the Workflow Engine, and
// artifact materialization — the Workflow Engine itself never touches
// the Registry's response field or the remote object store directly.
//
// Grounded on the teacher's pkg/orchestrator/base_orchestrator.go
// (structured per-phase logging around a multi-stage run) and
// cmd/server/server.go's "go func() { ... }" pattern for the async
// query path (around server.go:1296), adapted here from "stream
// orchestrator events over a channel" to "run to completion and record
// the result in the Registry".
package coordinator

import (
	"context"
	"fmt"

	"github.com/agentforge/taskrunner/internal/utils"
	"github.com/agentforge/taskrunner/pkg/model"
	"github.com/agentforge/taskrunner/pkg/observation"
	"github.com/agentforge/taskrunner/pkg/sandbox"
	"github.com/agentforge/taskrunner/pkg/workflow"
)

// Engine is the subset of workflow.Engine the Coordinator needs.
type Engine interface {
	Run(ctx context.Context, state *model.AgentState, observations *observation.Store) error
}

// Registry is the subset of pkg/registry.Registry the Coordinator needs.
type Registry interface {
	Create() string
	UpdateStatus(taskID string, status model.TaskStatus, response *model.TaskResponse) error
}

// Recorder is the subset of pkg/history.Store the Coordinator needs. It
// is optional: a nil Recorder (the default) simply skips audit logging.
type Recorder interface {
	Record(ctx context.Context, response *model.TaskResponse) error
}

// taskScoper is the optional capability pkg/logger.Logger offers
// (ForTask) for task-correlated structured logging; mirrors
// pkg/workflow's identically named interface. Checked via type
// assertion so test fakes that don't implement it keep working.
type taskScoper interface {
	ForTask(taskID string) utils.ExtendedLogger
}

// taskLogger returns a logger correlated to taskID via a task_id field
// when c.logger supports it, falling back to the plain logger otherwise.
func (c *Coordinator) taskLogger(taskID string) utils.ExtendedLogger {
	if scoper, ok := c.logger.(taskScoper); ok {
		return scoper.ForTask(taskID)
	}
	return c.logger
}

// Coordinator drives one task end to end: sandbox lifecycle, input
// staging, the Workflow Engine run, and artifact materialization.
type Coordinator struct {
	config   Config
	engine   Engine
	sandbox  sandbox.Gateway
	registry Registry
	history  Recorder
	logger   utils.ExtendedLogger
}

// WithHistory attaches an optional audit-log Recorder, recorded best
// effort alongside every terminal Registry update; a write failure here
// is logged and never surfaced to the caller.
func (c *Coordinator) WithHistory(h Recorder) *Coordinator {
	c.history = h
	return c
}

// New constructs a Coordinator. config is defaulted via Config.withDefaults.
func New(config Config, engine *workflow.Engine, sandboxGateway sandbox.Gateway, registry Registry, logger utils.ExtendedLogger) *Coordinator {
	return &Coordinator{
		config:   config.withDefaults(),
		engine:   engine,
		sandbox:  sandboxGateway,
		registry: registry,
		logger:   logger,
	}
}

// ProcessSync runs spec §4.6's synchronous pipeline to completion and
// returns the resulting TaskResponse.
func (c *Coordinator) ProcessSync(ctx context.Context, request model.TaskRequest) (*model.TaskResponse, error) {
	taskID := c.registry.Create()
	return c.run(ctx, taskID, request), nil
}

// ProcessAsync starts spec §4.6's pipeline on a background goroutine and
// returns the task-id immediately; the caller observes progress and the
// eventual result through the Registry via GET /task/{id}.
func (c *Coordinator) ProcessAsync(request model.TaskRequest) string {
	taskID := c.registry.Create()

	go func() {
		// The HTTP request that triggered this task has already returned;
		// run detached so a client disconnect cannot cancel in-flight work.
		c.run(context.Background(), taskID, request)
	}()

	return taskID
}

// run implements the seven-step pipeline named in spec §4.6. It never
// returns an error: every failure mode is captured into a FAILED
// TaskResponse, recorded in the Registry, and returned to the caller.
func (c *Coordinator) run(ctx context.Context, taskID string, request model.TaskRequest) *model.TaskResponse {
	logger := c.taskLogger(taskID)
	if logger != nil {
		logger.Infof("creating sandbox")
	}

	sandboxID, err := c.sandbox.CreateSandbox(ctx)
	if err != nil {
		return c.fail(ctx, taskID, fmt.Sprintf("failed to allocate sandbox: %v", err))
	}

	// Scoped release: guaranteed on every exit path below, success or
	// failure, per spec §4.6 step 6.
	defer func() {
		if destroyErr := c.sandbox.DestroySandbox(context.Background(), sandboxID); destroyErr != nil && logger != nil {
			logger.Warnf("failed to destroy sandbox %s: %v", sandboxID, destroyErr)
		}
	}()

	uploadedFiles, err := c.stageInputs(ctx, sandboxID, request)
	if err != nil {
		return c.fail(ctx, taskID, fmt.Sprintf("failed to stage input files: %v", err))
	}

	state := &model.AgentState{
		TaskDescription:      request.TaskDescription,
		DataFilesDescription: request.DataFilesDescription,
		UploadedFiles:        uploadedFiles,
		SandboxID:            sandboxID,
		TaskID:               taskID,
		RemoteBasePath:       request.RemoteBasePath,
	}
	store := observation.New()

	if err := c.engine.Run(ctx, state, store); err != nil {
		if logger != nil {
			logger.Errorf("workflow aborted: %v", err)
		}
		return c.fail(ctx, taskID, err.Error())
	}

	return c.finish(ctx, taskID, sandboxID, state)
}

// stageInputs uploads request.Files into the sandbox and, if the caller
// named remote keys, downloads those too, merging both lists in input
// order per spec §4.6 step 3.
func (c *Coordinator) stageInputs(ctx context.Context, sandboxID string, request model.TaskRequest) ([]string, error) {
	var paths []string

	if len(request.Files) > 0 {
		uploaded, err := c.sandbox.UploadFiles(ctx, sandboxID, request.Files, c.config.DataTargetFolder)
		if err != nil {
			return nil, err
		}
		paths = append(paths, uploaded...)
	}

	if len(request.RemoteFilePaths) > 0 {
		downloaded, err := c.sandbox.DownloadFromRemoteStore(ctx, sandboxID, request.RemoteFilePaths, c.config.DataTargetFolder)
		if err != nil {
			return nil, err
		}
		paths = append(paths, downloaded...)
	}

	return paths, nil
}

// finish implements spec §4.6 steps 5 and 7: materialize artifacts and
// record the terminal status.
func (c *Coordinator) finish(ctx context.Context, taskID, sandboxID string, state *model.AgentState) *model.TaskResponse {
	if state.TaskAnswer == nil {
		return c.fail(ctx, taskID, "workflow finished without producing a task answer")
	}

	artifacts := c.materializeArtifacts(ctx, sandboxID, taskID, state.RemoteBasePath, state.TaskAnswer.Artifacts)

	status := model.StatusCompleted
	if !state.TaskAnswer.Success {
		status = model.StatusFailed
	}

	response := &model.TaskResponse{
		ID:        taskID,
		Status:    status,
		Answer:    state.TaskAnswer.Answer,
		Success:   state.TaskAnswer.Success,
		Artifacts: artifacts,
	}

	if err := c.registry.UpdateStatus(taskID, status, response); err != nil {
		if l := c.taskLogger(taskID); l != nil {
			l.Warnf("failed to record terminal status: %v", err)
		}
	}
	c.recordHistory(ctx, taskID, response)
	return response
}

// fail records and returns a terminal FAILED TaskResponse.
func (c *Coordinator) fail(ctx context.Context, taskID, reason string) *model.TaskResponse {
	response := &model.TaskResponse{
		ID:        taskID,
		Status:    model.StatusFailed,
		Answer:    reason,
		Success:   false,
		Artifacts: []model.ArtifactResponse{},
	}
	if err := c.registry.UpdateStatus(taskID, model.StatusFailed, response); err != nil {
		if l := c.taskLogger(taskID); l != nil {
			l.Warnf("failed to record failure status: %v", err)
		}
	}
	c.recordHistory(ctx, taskID, response)
	return response
}

// recordHistory is best effort: the audit log never gets to fail a task.
func (c *Coordinator) recordHistory(ctx context.Context, taskID string, response *model.TaskResponse) {
	if c.history == nil {
		return
	}
	if err := c.history.Record(ctx, response); err != nil {
		if l := c.taskLogger(taskID); l != nil {
			l.Warnf("failed to record history: %v", err)
		}
	}
}
