package coordinator

import (
	"context"
	"encoding/base64"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/agentforge/taskrunner/pkg/model"
)

// resolveArtifactPath resolves an ArtifactDecision.FullPath (as named by
// the ANSWERING node, sandbox-relative) to absolute form against
// workingDir, per spec §4.1 node 7 / §4.6.
func resolveArtifactPath(workingDir, fullPath string) string {
	if path.IsAbs(fullPath) {
		return path.Clean(fullPath)
	}
	return path.Join(workingDir, fullPath)
}

// materializeArtifacts implements spec §4.6's artifact materialization:
// resolve each decision's path, skip it (logged, not failed) if missing,
// and otherwise package it either inline (base64 content) or by handing
// it off to the remote object store, depending on c.config. basePath is
// the per-request base_path (spec.md:225); an empty value falls back to
// c.config.RemoteBasePath.
func (c *Coordinator) materializeArtifacts(ctx context.Context, sandboxID, taskID, basePath string, decisions []model.ArtifactDecision) []model.ArtifactResponse {
	if basePath == "" {
		basePath = c.config.RemoteBasePath
	}

	responses := make([]model.ArtifactResponse, 0, len(decisions))

	for _, decision := range decisions {
		absPath := resolveArtifactPath(c.config.WorkingDir, decision.FullPath)

		exists, err := c.artifactExists(ctx, sandboxID, decision.Type, absPath)
		if err != nil || !exists {
			c.logf("skipping missing artifact %q for task %s: %v", absPath, taskID, err)
			continue
		}

		response := model.ArtifactResponse{
			ID:          uuid.New().String(),
			Description: decision.Description,
			Type:        decision.Type,
			Name:        filepath.Base(absPath),
		}

		if c.config.RemoteStoreEnabled {
			if err := c.materializeRemote(ctx, sandboxID, taskID, basePath, absPath, &response); err != nil {
				c.logf("failed to upload artifact %q for task %s to remote store: %v", absPath, taskID, err)
				continue
			}
		} else {
			if err := c.materializeInline(ctx, sandboxID, decision.Type, absPath, &response); err != nil {
				c.logf("failed to download artifact %q for task %s: %v", absPath, taskID, err)
				continue
			}
		}

		responses = append(responses, response)
	}

	return responses
}

func (c *Coordinator) artifactExists(ctx context.Context, sandboxID string, artifactType model.ArtifactType, absPath string) (bool, error) {
	if artifactType == model.ArtifactFolder {
		listing, err := c.sandbox.ListTree(ctx, sandboxID, absPath)
		if err != nil {
			return false, err
		}
		return listing != "", nil
	}

	_, err := c.sandbox.DownloadFile(ctx, sandboxID, absPath)
	if err != nil {
		return false, err
	}
	return true, nil
}

// materializeInline downloads the artifact's bytes and base64-encodes
// them into response.Content; response.Path carries the sandbox-relative
// path, per spec §4.6's inline mode. Folders have no byte content to
// inline, so only the resolved path is recorded.
func (c *Coordinator) materializeInline(ctx context.Context, sandboxID string, artifactType model.ArtifactType, absPath string, response *model.ArtifactResponse) error {
	response.Path = absPath
	if artifactType == model.ArtifactFolder {
		return nil
	}

	data, err := c.sandbox.DownloadFile(ctx, sandboxID, absPath)
	if err != nil {
		return err
	}
	response.Content = base64.StdEncoding.EncodeToString(data)
	return nil
}

// materializeRemote uploads the artifact to the remote object store under
// "<base_path>/task/<task_id>/<relative>", deletes the sandbox-local copy,
// and records the remote key as response.Path, per spec §4.6's remote
// mode. basePath is the caller's per-request base_path, already defaulted
// to c.config.RemoteBasePath by materializeArtifacts when empty.
func (c *Coordinator) materializeRemote(ctx context.Context, sandboxID, taskID, basePath, absPath string, response *model.ArtifactResponse) error {
	relative := absPath
	if rel, err := filepath.Rel(c.config.WorkingDir, absPath); err == nil {
		relative = rel
	}

	key := path.Join(basePath, "task", taskID, relative)
	if err := c.sandbox.UploadToRemoteStore(ctx, sandboxID, absPath, key, true); err != nil {
		return err
	}
	response.Path = key
	return nil
}

func (c *Coordinator) logf(format string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Warnf(format, args...)
}
