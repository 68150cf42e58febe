package coordinator

// Config configures artifact materialization and input staging, the two
// concerns the Coordinator owns on top of driving the Workflow Engine.
type Config struct {
	// WorkingDir is the sandbox working directory artifact paths are
	// resolved against (spec §4.1 node 7 / §4.6).
	WorkingDir string

	// DataTargetFolder is the in-sandbox folder uploaded caller files land
	// in before the Workflow Engine runs.
	DataTargetFolder string

	// RemoteStoreEnabled selects remote-store artifact materialization
	// over inline base64 (spec §4.6, mutually exclusive modes).
	RemoteStoreEnabled bool

	// RemoteBasePath is the remote-store prefix artifacts are uploaded
	// under: "<RemoteBasePath>/task/<task_id>/<relative>".
	RemoteBasePath string
}

func (c Config) withDefaults() Config {
	if c.WorkingDir == "" {
		c.WorkingDir = "/workspace"
	}
	if c.DataTargetFolder == "" {
		c.DataTargetFolder = "data"
	}
	return c
}
