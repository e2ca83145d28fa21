package convert

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	baterr "github.com/Iron-Ham/baton/internal/errors"
)

// agentInvoker runs the agent CLI in plain-print mode for one conversion
// call. Conversions only produce text, so no sandbox is involved; the
// agent never touches the workspace.
type agentInvoker struct {
	command string
	model   string
}

// NewAgentInvoker creates the production Invoker using the given agent
// binary and model.
func NewAgentInvoker(command, model string) Invoker {
	return &agentInvoker{command: command, model: model}
}

func (a *agentInvoker) Invoke(ctx context.Context, prompt string) (string, error) {
	args := []string{"--print", "-p", "-"}
	if a.model != "" {
		args = append(args, "--model", a.model)
	}

	cmd := exec.CommandContext(ctx, a.command, args...)
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var execErr *exec.Error
		if baterr.As(err, &execErr) {
			return "", baterr.ErrWorkerNotFound
		}
		return "", fmt.Errorf("conversion agent failed: %w (stderr: %s)",
			err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
