package sandbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/agentforge/taskrunner/internal/utils"
	"github.com/agentforge/taskrunner/pkg/apperrors"
	"github.com/agentforge/taskrunner/pkg/model"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// RetryConfig controls the exponential-backoff retry loop used to connect
// to the sandbox host, grounded on the teacher's
// pkg/mcpclient.RetryConfig/DefaultRetryConfig.
type RetryConfig struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	ConnectTimeout time.Duration
}

// DefaultRetryConfig returns sane defaults for connecting to a sandbox host.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialDelay:   1 * time.Second,
		MaxDelay:       15 * time.Second,
		BackoffFactor:  2.0,
		ConnectTimeout: 30 * time.Second,
	}
}

// Config configures the MCP-backed Gateway implementation.
type Config struct {
	URL            string
	Headers        map[string]string
	WorkingDir     string
	RetryConfig    RetryConfig
	RemoteStoreSet bool
}

// MCPGateway implements Gateway by addressing a sandbox host as an MCP
// server over SSE, grounded on the teacher's pkg/mcpclient.Client
// (Connect/connectOnce dispatch, retry-with-backoff shape) and
// pkg/mcpclient/tool_convert.go (ToolResultAsString's content-extraction
// logic).
type MCPGateway struct {
	config Config
	logger utils.ExtendedLogger

	mu     sync.Mutex
	client *client.Client
}

// NewMCPGateway constructs a Gateway that has not yet connected; the first
// call to any operation triggers a lazy connect-with-retry.
func NewMCPGateway(config Config, logger utils.ExtendedLogger) *MCPGateway {
	if config.RetryConfig == (RetryConfig{}) {
		config.RetryConfig = DefaultRetryConfig()
	}
	return &MCPGateway{config: config, logger: logger}
}

// connect returns the cached MCP client, establishing it on first use (or
// after a prior connection was torn down) with exponential-backoff retry.
func (g *MCPGateway) connect(ctx context.Context) (*client.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}

	var lastErr error
	rc := g.config.RetryConfig

	for attempt := 0; attempt <= rc.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(rc.InitialDelay) * math.Pow(rc.BackoffFactor, float64(attempt-1)))
			if delay > rc.MaxDelay {
				delay = rc.MaxDelay
			}
			if g.logger != nil {
				g.logger.Infof("retrying sandbox host connection (attempt %d/%d) after %v", attempt+1, rc.MaxRetries+1, delay)
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, apperrors.Wrap(apperrors.KindSandboxGatewayUnavailable, "context cancelled during sandbox connect retry", ctx.Err())
			}
		}

		connectCtx, cancel := context.WithTimeout(ctx, rc.ConnectTimeout)
		mcpClient, err := g.connectOnce(connectCtx)
		cancel()
		if err == nil {
			g.client = mcpClient
			return mcpClient, nil
		}

		lastErr = err
		if g.logger != nil {
			g.logger.Errorf("sandbox host connection attempt %d failed: %v", attempt+1, err)
		}
	}

	return nil, apperrors.Wrap(apperrors.KindSandboxGatewayUnavailable, fmt.Sprintf("failed to connect to sandbox host after %d attempts", rc.MaxRetries+1), lastErr)
}

func (g *MCPGateway) connectOnce(ctx context.Context) (*client.Client, error) {
	var options []transport.ClientOption
	if len(g.config.Headers) > 0 {
		options = append(options, transport.WithHeaders(g.config.Headers))
	}

	sseTransport, err := transport.NewSSE(g.config.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("create sandbox SSE transport: %w", err)
	}

	mcpClient := client.NewClient(sseTransport)
	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("start sandbox MCP client: %w", err)
	}

	if _, err := mcpClient.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: "2024-11-05",
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "taskrunner",
				Version: "1.0.0",
			},
		},
	}); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("initialize sandbox MCP connection: %w", err)
	}

	return mcpClient, nil
}

// callTool invokes name on the sandbox host and returns the joined text
// content, classifying connection failures as
// apperrors.KindSandboxGatewayUnavailable and in-sandbox execution failures
// as apperrors.KindSandboxExecutionFailure.
func (g *MCPGateway) callTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	mcpClient, err := g.connect(ctx)
	if err != nil {
		return "", err
	}

	result, err := mcpClient.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindSandboxGatewayUnavailable, fmt.Sprintf("call sandbox tool %s", name), err)
	}

	text := toolResultText(result)
	if result.IsError {
		return "", apperrors.New(apperrors.KindSandboxExecutionFailure, text)
	}

	return text, nil
}

// toolResultText joins a CallToolResult's text content parts, condensed
// from the teacher's ToolResultAsString (drops the debug logging and the
// heuristic implicit-error string matching — this gateway relies on
// result.IsError, which the sandbox host is required to set accurately).
func toolResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}

	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
			continue
		}
		if raw, err := json.Marshal(content); err == nil {
			parts = append(parts, string(raw))
		}
	}

	joined := ""
	for i, p := range parts {
		if i > 0 {
			joined += "\n"
		}
		joined += p
	}
	return joined
}

// CreateSandbox implements Gateway.
func (g *MCPGateway) CreateSandbox(ctx context.Context) (string, error) {
	text, err := g.callTool(ctx, "create_sandbox", nil)
	if err != nil {
		return "", err
	}

	var resp struct {
		SandboxID string `json:"sandbox_id"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return "", apperrors.Wrap(apperrors.KindSandboxGatewayUnavailable, "parse create_sandbox response", err)
	}
	return resp.SandboxID, nil
}

// DestroySandbox implements Gateway. Idempotent: a not-found sandbox is not
// treated as an error since destruction is the caller's intended end state
// either way.
func (g *MCPGateway) DestroySandbox(ctx context.Context, sandboxID string) error {
	_, err := g.callTool(ctx, "destroy_sandbox", map[string]interface{}{"sandbox_id": sandboxID})
	if err != nil && !apperrors.Is(err, apperrors.KindSandboxExecutionFailure) {
		return err
	}
	return nil
}

// UploadFiles implements Gateway.
func (g *MCPGateway) UploadFiles(ctx context.Context, sandboxID string, files []model.UploadedFile, targetFolder string) ([]string, error) {
	type fileArg struct {
		Filename       string `json:"filename"`
		ContentBase64  string `json:"content_base64"`
	}
	args := make([]fileArg, 0, len(files))
	for _, f := range files {
		args = append(args, fileArg{Filename: f.Filename, ContentBase64: base64.StdEncoding.EncodeToString(f.Bytes)})
	}

	text, err := g.callTool(ctx, "upload_files", map[string]interface{}{
		"sandbox_id":    sandboxID,
		"target_folder": targetFolder,
		"files":         args,
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Paths []string `json:"paths"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, apperrors.Wrap(apperrors.KindSandboxGatewayUnavailable, "parse upload_files response", err)
	}
	return resp.Paths, nil
}

// ExecuteCode implements Gateway. Per spec §4.1 node 4, any exception the
// sandbox host itself raises while running code is reported inside
// ExecutionResult.Error and returned with a nil Go error; only gateway
// transport failures return a non-nil error.
func (g *MCPGateway) ExecuteCode(ctx context.Context, sandboxID, code string) (*model.ExecutionResult, error) {
	text, err := g.callTool(ctx, "execute_code", map[string]interface{}{
		"sandbox_id": sandboxID,
		"code":       code,
	})
	if apperrors.Is(err, apperrors.KindSandboxExecutionFailure) {
		return &model.ExecutionResult{Error: err.Error()}, nil
	}
	if err != nil {
		return nil, err
	}

	var resp struct {
		Stdout  string `json:"stdout"`
		Stderr  string `json:"stderr"`
		Results []struct {
			MimeType string `json:"mime_type"`
			Data     string `json:"data"`
		} `json:"results"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, apperrors.Wrap(apperrors.KindSandboxGatewayUnavailable, "parse execute_code response", err)
	}

	result := &model.ExecutionResult{Stdout: resp.Stdout, Stderr: resp.Stderr, Error: resp.Error}
	for _, r := range resp.Results {
		result.Results = append(result.Results, model.ResultPart{MimeType: r.MimeType, Data: r.Data})
	}
	return result, nil
}

// DownloadFile implements Gateway, resolving relative paths against the
// configured working directory before asking the sandbox host for bytes.
func (g *MCPGateway) DownloadFile(ctx context.Context, sandboxID, path string) ([]byte, error) {
	resolved, err := resolveDownloadPath(path, g.config.WorkingDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindArtifactMissing, "resolve download path", err)
	}

	text, err := g.callTool(ctx, "download_file", map[string]interface{}{
		"sandbox_id": sandboxID,
		"path":       resolved,
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		ContentBase64 string `json:"content_base64"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, apperrors.Wrap(apperrors.KindSandboxGatewayUnavailable, "parse download_file response", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(resp.ContentBase64)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSandboxGatewayUnavailable, "decode download_file content", err)
	}
	return decoded, nil
}

// ListTree implements Gateway.
func (g *MCPGateway) ListTree(ctx context.Context, sandboxID, root string) (string, error) {
	text, err := g.callTool(ctx, "list_tree", map[string]interface{}{
		"sandbox_id": sandboxID,
		"root":       root,
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		Tree string `json:"tree"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err == nil && resp.Tree != "" {
		return resp.Tree, nil
	}
	// Some sandbox hosts return the listing as plain text rather than
	// {"tree": "..."}; fall back to the raw joined content.
	return text, nil
}

// SaveNotebook implements Gateway.
func (g *MCPGateway) SaveNotebook(ctx context.Context, sandboxID string, notebook []byte, filename string) (string, error) {
	text, err := g.callTool(ctx, "save_notebook", map[string]interface{}{
		"sandbox_id":     sandboxID,
		"notebook_base64": base64.StdEncoding.EncodeToString(notebook),
		"filename":       filename,
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return "", apperrors.Wrap(apperrors.KindSandboxGatewayUnavailable, "parse save_notebook response", err)
	}
	return resp.Path, nil
}

// UploadToRemoteStore implements Gateway's optional remote-store operation.
func (g *MCPGateway) UploadToRemoteStore(ctx context.Context, sandboxID, source, key string, deleteSource bool) error {
	if !g.config.RemoteStoreSet {
		return apperrors.New(apperrors.KindSandboxGatewayUnavailable, "remote store is not configured")
	}
	_, err := g.callTool(ctx, "upload_to_remote_store", map[string]interface{}{
		"sandbox_id":    sandboxID,
		"source":        source,
		"key":           key,
		"delete_source": deleteSource,
	})
	return err
}

// DownloadFromRemoteStore implements Gateway's optional remote-store operation.
func (g *MCPGateway) DownloadFromRemoteStore(ctx context.Context, sandboxID string, keys []string, target string) ([]string, error) {
	if !g.config.RemoteStoreSet {
		return nil, apperrors.New(apperrors.KindSandboxGatewayUnavailable, "remote store is not configured")
	}

	text, err := g.callTool(ctx, "download_from_remote_store", map[string]interface{}{
		"sandbox_id": sandboxID,
		"keys":       keys,
		"target":     target,
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Paths []string `json:"paths"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, apperrors.Wrap(apperrors.KindSandboxGatewayUnavailable, "parse download_from_remote_store response", err)
	}
	return resp.Paths, nil
}

// Close tears down the cached MCP connection, if any.
func (g *MCPGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client == nil {
		return nil
	}
	err := g.client.Close()
	g.client = nil
	return err
}
