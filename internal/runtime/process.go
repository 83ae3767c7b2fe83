package runtime

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fyrsmithlabs/orchestratord/internal/registry"
)

// InputPlaceholder in a unit's command is replaced by the staged artifact path.
const InputPlaceholder = "{input}"

// InputEnvVar carries the staged artifact path to process units.
const InputEnvVar = "TASK_INPUT"

// ProcessDriver runs each stage as a local child process.
//
// The child receives the artifact path in TASK_INPUT and wherever the
// command contains {input}. Isolation is limited to a fresh process with
// its working directory set to the artifact's workspace.
type ProcessDriver struct {
	// Env is appended to the parent environment for every child.
	Env []string
}

// NewProcessDriver creates a process driver.
func NewProcessDriver(env ...string) *ProcessDriver {
	return &ProcessDriver{Env: env}
}

// Execute implements Driver.
func (d *ProcessDriver) Execute(ctx context.Context, unit registry.ExecutionUnit, inputPath string) StageResult {
	if len(unit.Command) == 0 {
		return Failf(ExecutionError, "task %s has no command", unit.Task)
	}

	argv := make([]string, len(unit.Command))
	for i, arg := range unit.Command {
		if arg == InputPlaceholder {
			arg = inputPath
		}
		argv[i] = arg
	}

	bin, err := exec.LookPath(argv[0])
	if err != nil {
		return Failf(PlatformError, "command %s not available: %v", argv[0], err)
	}

	cmd := exec.CommandContext(ctx, bin, argv[1:]...)
	cmd.Env = append(append(os.Environ(), d.Env...), InputEnvVar+"="+inputPath)
	cmd.Dir = filepath.Dir(inputPath)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := exitErr.Error()
			if s := tail(stderr.String(), stderrTailBytes); s != "" {
				msg += ": " + s
			}
			return Fail(ExecutionError, errors.New(msg))
		}
		return Failf(ExecutionError, "start %s: %v", argv[0], err)
	}

	return decodeOutput(stdout.Bytes())
}
