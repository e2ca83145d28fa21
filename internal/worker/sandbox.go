package worker

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/Iron-Ham/baton/internal/config"
	baterr "github.com/Iron-Ham/baton/internal/errors"
)

// shadowDirs are workspace subdirectories that get a fresh tmpfs inside
// the container instead of the host copy. They hold host-specific build
// artifacts that would break or leak inside the sandbox.
var shadowDirs = []string{
	".venv",
	"node_modules",
	"__pycache__",
	".tox",
	"target/debug",
}

// checkContainerRuntime verifies docker is usable before any phase runs.
// A missing runtime is fatal; the run must never silently degrade to
// unsandboxed execution.
func checkContainerRuntime() error {
	path, err := exec.LookPath("docker")
	if err != nil {
		return baterr.NewSandboxError(
			"install Docker or rerun with --sandbox none and explicit risk acceptance",
			baterr.ErrSandboxUnavailable,
		)
	}

	// LookPath proves the binary exists; make sure the daemon answers.
	cmd := exec.Command(path, "info", "--format", "{{.ServerVersion}}")
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Run(); err != nil {
		return baterr.NewSandboxError(
			"the docker daemon is not responding; start it and retry",
			fmt.Errorf("docker info: %w", baterr.ErrSandboxUnavailable),
		)
	}
	return nil
}

// containerArgs builds the docker run argv for a worker invocation. The
// workspace is bind-mounted read-write at the same absolute path so file
// references in prompts and notes stay valid. Networking is disabled; the
// agent talks to its API through the credential mount's proxy socket when
// one is configured.
func containerArgs(cfg config.WorkerConfig, projectRoot string, agentArgs []string) []string {
	args := []string{
		"run", "--rm", "-i",
		"--network", "none",
		"--workdir", projectRoot,
		"--mount", fmt.Sprintf("type=bind,source=%s,target=%s", projectRoot, projectRoot),
	}

	for _, dir := range shadowDirs {
		full := filepath.Join(projectRoot, dir)
		if _, err := os.Stat(full); err == nil {
			args = append(args, "--mount", fmt.Sprintf("type=tmpfs,target=%s", full))
		}
	}

	if cfg.CredentialMount != "" {
		args = append(args, "--mount",
			fmt.Sprintf("type=bind,source=%s,target=%s,readonly", cfg.CredentialMount, cfg.CredentialMount))
	}

	args = append(args, cfg.ContainerImage, cfg.Command)
	args = append(args, agentArgs...)
	return args
}
