// Package apperrors defines the closed set of error kinds the system
// surfaces at its boundaries, condensed from the teacher's broader
// mcpagent error-classification style (pkg/mcpagent/error_handler.go) down
// to ten kinds. KindAuthRejected and KindGraphBudgetExhausted are declared
// but not constructed anywhere in this engine.
package apperrors

import "errors"

// Kind is one of the ten error kinds named in spec §7.
type Kind string

const (
	KindValidation                Kind = "ValidationError"
	KindFileTooLarge              Kind = "FileTooLarge"
	KindAuthRejected              Kind = "AuthRejected"
	KindSandboxExecutionFailure   Kind = "SandboxExecutionFailure"
	KindSandboxGatewayUnavailable Kind = "SandboxGatewayUnavailable"
	KindLLMSchemaFailure          Kind = "LLMSchemaFailure"
	KindLLMProviderFailure        Kind = "LLMProviderFailure"
	KindGraphBudgetExhausted      Kind = "GraphBudgetExhausted"
	KindTaskNotFound              Kind = "TaskNotFound"
	KindArtifactMissing           Kind = "ArtifactMissing"
)

// Error wraps an underlying cause with one of the closed Kinds, so callers
// can classify with errors.As without parsing message text.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an *Error of the given kind around an existing cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
