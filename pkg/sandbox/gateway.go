// Package sandbox implements the Sandbox Gateway (C1): the contract for
// creating, driving, and tearing down an isolated code-execution
// environment, and the one concrete implementation that addresses a
// sandbox host as an MCP server (grounded on the teacher's
// pkg/mcpclient.Client retry/connect shape, re-targeted from "connect to a
// tool server" to "connect to a sandbox host").
package sandbox

import (
	"context"

	"github.com/agentforge/taskrunner/pkg/model"
)

// Gateway is the contract named in spec §4.3. All operations are blocking
// from the Workflow Engine's perspective; the gateway itself is treated as
// an external collaborator.
type Gateway interface {
	// CreateSandbox allocates a fresh isolated environment and returns its id.
	CreateSandbox(ctx context.Context) (string, error)

	// DestroySandbox tears down sandboxID. Idempotent: destroying an
	// already-destroyed or unknown sandbox is not an error.
	DestroySandbox(ctx context.Context, sandboxID string) error

	// UploadFiles copies files into targetFolder inside sandboxID and
	// returns the resulting in-sandbox paths, in input order.
	UploadFiles(ctx context.Context, sandboxID string, files []model.UploadedFile, targetFolder string) ([]string, error)

	// ExecuteCode runs code inside sandboxID and returns its structured
	// result. Gateway-side failures (process crash, transport error) are
	// returned as an error; a code exception that the sandbox captured is
	// reported inside ExecutionResult.Error, not as a Go error.
	ExecuteCode(ctx context.Context, sandboxID, code string) (*model.ExecutionResult, error)

	// DownloadFile reads path from sandboxID. A relative path is resolved
	// against the gateway's configured working directory.
	DownloadFile(ctx context.Context, sandboxID, path string) ([]byte, error)

	// ListTree returns a bounded recursive listing of root inside sandboxID.
	ListTree(ctx context.Context, sandboxID, root string) (string, error)

	// SaveNotebook writes notebook (already rendered) to filename inside
	// sandboxID and returns its resulting path.
	SaveNotebook(ctx context.Context, sandboxID string, notebook []byte, filename string) (string, error)

	// UploadToRemoteStore uploads the sandbox-local file at source to the
	// remote object store under key, optionally deleting the sandbox-local
	// copy afterward. Returns apperrors.KindSandboxGatewayUnavailable if no
	// remote store is configured.
	UploadToRemoteStore(ctx context.Context, sandboxID, source, key string, deleteSource bool) error

	// DownloadFromRemoteStore fetches keys from the remote object store into
	// target inside sandboxID and returns the resulting in-sandbox paths.
	DownloadFromRemoteStore(ctx context.Context, sandboxID string, keys []string, target string) ([]string, error)
}
