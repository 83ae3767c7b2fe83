package runtime

import (
	"context"
	"fmt"
	"os"

	"github.com/fyrsmithlabs/orchestratord/internal/registry"
)

// Worker is the capability a task exposes to the pipeline: text in, text out.
type Worker interface {
	Run(ctx context.Context, input string) (string, error)
}

// Stager writes a stage's input artifact and returns its path.
// *workspace.Workspace satisfies it.
type Stager interface {
	Stage(task registry.TaskID, text string) (string, error)
}

// StageWorker adapts a driver into a Worker by staging the input into a
// workspace before every execution.
//
// Run returns a *Failure when the driver fails, and the stager's error
// unchanged when staging fails, so callers can tell the two apart.
type StageWorker struct {
	Unit   registry.ExecutionUnit
	Stager Stager
	Driver Driver
}

// Run implements Worker.
func (w *StageWorker) Run(ctx context.Context, input string) (string, error) {
	path, err := w.Stager.Stage(w.Unit.Task, input)
	if err != nil {
		return "", err
	}

	res := w.Driver.Execute(ctx, w.Unit, path)
	if !res.OK() {
		return "", res.Failure
	}
	return res.Text, nil
}

// TransformFunc is an in-process task implementation.
type TransformFunc func(task registry.TaskID, input string) (string, error)

// Transform returns a driver that reads the staged artifact and applies fn
// in-process. Errors from fn become ExecutionError failures. It lets tests
// and embedders run pipelines without a container engine.
func Transform(fn TransformFunc) Driver {
	return DriverFunc(func(ctx context.Context, unit registry.ExecutionUnit, inputPath string) StageResult {
		if err := ctx.Err(); err != nil {
			return Fail(PlatformError, err)
		}
		data, err := os.ReadFile(inputPath)
		if err != nil {
			return Failf(PlatformError, "read input artifact: %v", err)
		}
		out, err := fn(unit.Task, string(data))
		if err != nil {
			return Fail(ExecutionError, fmt.Errorf("task %s: %w", unit.Task, err))
		}
		return decodeOutput([]byte(out))
	})
}
