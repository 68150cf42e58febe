// Package model holds the data types shared across the workflow engine,
// the task registry, and the task coordinator. Keeping them in one
// dependency-free package avoids import cycles between those three.
package model

import "time"

// TaskStatus is the lifecycle state of a task as seen by the Registry.
type TaskStatus string

const (
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// UploadedFile is one caller-supplied file, already validated against the
// configured max size.
type UploadedFile struct {
	Filename string
	Bytes    []byte
}

// TaskRequest carries everything the caller supplied for one task.
type TaskRequest struct {
	TaskDescription      string
	DataFilesDescription string
	Files                []UploadedFile
	RemoteFilePaths      []string
	RemoteBasePath       string
	TargetPath           string
}

// ArtifactType distinguishes a single file from a directory artifact.
type ArtifactType string

const (
	ArtifactFile   ArtifactType = "FILE"
	ArtifactFolder ArtifactType = "FOLDER"
)

// ArtifactDecision is one artifact the ANSWERING node decided to surface,
// named relative to the sandbox working directory.
type ArtifactDecision struct {
	Type        ArtifactType
	Description string
	FullPath    string
}

// ArtifactResponse is the caller-facing artifact, after materialization by
// the Coordinator. An inline FILE artifact carries both Content and its
// in-sandbox Path; a remote-store artifact or a folder carries only Path.
type ArtifactResponse struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Type        ArtifactType `json:"type"`
	Name        string       `json:"name"`
	Path        string       `json:"path,omitempty"`
	Content     string       `json:"content,omitempty"` // base64
}

// TaskAnswer is the result produced by the ANSWERING node.
type TaskAnswer struct {
	NotebookDescription string
	Answer              string
	Success             bool
	Artifacts           []ArtifactDecision
}

// TaskResponse is the full caller-facing shape of a terminal or in-flight
// task, per spec §6.
type TaskResponse struct {
	ID        string             `json:"id"`
	Status    TaskStatus         `json:"status"`
	Answer    string             `json:"answer"`
	Success   bool               `json:"success"`
	Artifacts []ArtifactResponse `json:"artifacts"`
}

// TaskInfo is the Registry's record for one task.
type TaskInfo struct {
	TaskID    string
	Status    TaskStatus
	Response  *TaskResponse
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ObservationKind distinguishes a fact from a binding rule.
type ObservationKind string

const (
	KindObservation ObservationKind = "observation"
	KindRule        ObservationKind = "rule"
)

// ObservationSource ranks conflict-resolution priority: spec > user > data.
type ObservationSource string

const (
	SourceSpec ObservationSource = "spec"
	SourceUser ObservationSource = "user"
	SourceData ObservationSource = "data"
)

// sourceRank returns a higher number for higher priority.
func sourceRank(s ObservationSource) int {
	switch s {
	case SourceSpec:
		return 3
	case SourceUser:
		return 2
	case SourceData:
		return 1
	default:
		return 0
	}
}

// SourceRank exposes the conflict-resolution priority order spec > user > data.
func SourceRank(s ObservationSource) int { return sourceRank(s) }

// StepObservation is one atomic piece of evidence captured during a step.
type StepObservation struct {
	Title      string            `json:"title"`
	Summary    string            `json:"summary"`
	Kind       ObservationKind   `json:"kind"`
	Source     ObservationSource `json:"source"`
	RawOutput  string            `json:"raw_output,omitempty"`
	Importance int               `json:"importance"`
	Relevance  int               `json:"relevance"`
	StepNumber int               `json:"step_number"`
}

// ClampScores clamps Importance/Relevance into [1,5] as required on read.
func (o StepObservation) ClampScores() StepObservation {
	clamp := func(v int) int {
		if v < 1 {
			return 1
		}
		if v > 5 {
			return 5
		}
		return v
	}
	o.Importance = clamp(o.Importance)
	o.Relevance = clamp(o.Relevance)
	return o
}

// ExecutionResult is the structured reply from the Sandbox Gateway's
// ExecuteCode operation.
type ExecutionResult struct {
	Stdout  string
	Stderr  string
	Results []ResultPart
	Error   string
}

// ResultPart is one MIME-typed output of a code execution (mirrors Jupyter
// display_data parts: text/html/markdown/png/svg/json).
type ResultPart struct {
	MimeType string
	Data     string
}

// CompletedStep is an immutable, archived unit of work.
type CompletedStep struct {
	StepNumber       int
	Goal             string
	Description      string
	Code             string
	ExecutionResult  *ExecutionResult
	Success          bool
	Observations     []StepObservation
}

// AgentState is the per-task working memory owned exclusively by the
// Workflow Engine for the duration of one run.
type AgentState struct {
	// Inputs
	TaskDescription      string
	DataFilesDescription string
	UploadedFiles        []string
	SandboxID            string
	TaskID               string
	RemoteBasePath       string

	// Planning result
	TaskRationale string
	ActionSignal  string

	// Step tracking
	CurrentStepGoal        string
	CurrentStepDescription string
	StepGoalHistory        []string
	StepNumber             int
	StepAttempts           int
	CompletedSteps         []CompletedStep

	// Code generation
	GeneratedCode         string
	CodeGenerationAttempt int

	// Execution
	ExecutionResult      *ExecutionResult
	LastExecutionOutput  string
	LastExecutionError   string

	// Observations
	CurrentStepObservations []StepObservation
	CurrentStepSuccess      bool
	WorldObservations       []StepObservation

	// Outcome
	FailureReason string
	TaskAnswer    *TaskAnswer
}

// AppendStepGoal appends goal to StepGoalHistory only if not already present.
func (s *AgentState) AppendStepGoal(goal string) {
	for _, g := range s.StepGoalHistory {
		if g == goal {
			return
		}
	}
	s.StepGoalHistory = append(s.StepGoalHistory, goal)
}
