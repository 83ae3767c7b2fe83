package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestratord/internal/registry"
)

const stderrTailBytes = 512

// containerSpec describes the transient container for one stage.
type containerSpec struct {
	Image  string
	Source string // host path of the staged artifact
	Target string // path inside the container
	Labels map[string]string
}

// engine is the slice of the container engine API the driver relies on.
type engine interface {
	Ping(ctx context.Context) error
	Create(ctx context.Context, spec containerSpec) (string, error)
	Start(ctx context.Context, id string) error
	Wait(ctx context.Context, id string) (int64, error)
	Logs(ctx context.Context, id string) (stdout, stderr []byte, err error)
	Remove(ctx context.Context, id string) error
	Close() error
}

// DockerConfig configures the docker driver.
type DockerConfig struct {
	// Host overrides DOCKER_HOST when set.
	Host string

	// InputMount is the in-container artifact path (default: /data/input.txt).
	InputMount string
}

// DockerDriver runs each stage in a fresh container that is force-removed
// as soon as its output has been collected.
type DockerDriver struct {
	engine     engine
	inputMount string
	logger     *zap.Logger
}

// NewDockerDriver connects to the docker engine described by cfg and the
// standard DOCKER_* environment variables.
func NewDockerDriver(cfg DockerConfig, logger *zap.Logger) (*DockerDriver, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return newDockerDriver(&dockerEngine{cli: cli}, cfg, logger), nil
}

func newDockerDriver(e engine, cfg DockerConfig, logger *zap.Logger) *DockerDriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	mountPath := cfg.InputMount
	if mountPath == "" {
		mountPath = DefaultInputMount
	}
	return &DockerDriver{
		engine:     e,
		inputMount: mountPath,
		logger:     logger,
	}
}

// Execute implements Driver.
func (d *DockerDriver) Execute(ctx context.Context, unit registry.ExecutionUnit, inputPath string) StageResult {
	if unit.Image == "" {
		return Failf(ExecutionError, "task %s has no container image", unit.Task)
	}

	if err := d.engine.Ping(ctx); err != nil {
		return Failf(PlatformError, "docker engine unreachable: %v", err)
	}

	id, err := d.engine.Create(ctx, containerSpec{
		Image:  unit.Image,
		Source: inputPath,
		Target: d.inputMount,
		Labels: map[string]string{"orchestratord.task": string(unit.Task)},
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return Failf(ExecutionError, "image %s not found: %v", unit.Image, err)
		}
		return Failf(ExecutionError, "create container from %s: %v", unit.Image, err)
	}

	// Teardown must happen even when the caller's context is already done.
	defer func() {
		if err := d.engine.Remove(context.WithoutCancel(ctx), id); err != nil {
			d.logger.Warn("failed to remove container",
				zap.String("container_id", id),
				zap.String("task", string(unit.Task)),
				zap.Error(err))
		}
	}()

	if err := d.engine.Start(ctx, id); err != nil {
		return Failf(ExecutionError, "start container %s: %v", shortID(id), err)
	}

	code, err := d.engine.Wait(ctx, id)
	if err != nil {
		return Failf(PlatformError, "wait for container %s: %v", shortID(id), err)
	}

	stdout, stderr, err := d.engine.Logs(ctx, id)
	if err != nil {
		return Failf(PlatformError, "read output of container %s: %v", shortID(id), err)
	}

	if code != 0 {
		msg := fmt.Sprintf("container exited with status %d", code)
		if s := tail(string(stderr), stderrTailBytes); s != "" {
			msg += ": " + s
		}
		return Fail(ExecutionError, errors.New(msg))
	}

	d.logger.Debug("container finished",
		zap.String("container_id", shortID(id)),
		zap.String("task", string(unit.Task)),
		zap.Int("stdout_bytes", len(stdout)))

	return decodeOutput(stdout)
}

// Close releases the engine connection.
func (d *DockerDriver) Close() error {
	return d.engine.Close()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// dockerEngine implements engine on top of the docker API client.
type dockerEngine struct {
	cli *client.Client
}

func (e *dockerEngine) Ping(ctx context.Context) error {
	_, err := e.cli.Ping(ctx)
	return err
}

func (e *dockerEngine) Create(ctx context.Context, spec containerSpec) (string, error) {
	resp, err := e.cli.ContainerCreate(ctx,
		&container.Config{
			Image:  spec.Image,
			Labels: spec.Labels,
		},
		&container.HostConfig{
			Mounts: []mount.Mount{{
				Type:     mount.TypeBind,
				Source:   spec.Source,
				Target:   spec.Target,
				ReadOnly: true,
			}},
		},
		nil, nil, "")
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (e *dockerEngine) Start(ctx context.Context, id string) error {
	return e.cli.ContainerStart(ctx, id, container.StartOptions{})
}

func (e *dockerEngine) Wait(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := e.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, err
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return status.StatusCode, errors.New(status.Error.Message)
		}
		return status.StatusCode, nil
	}
}

func (e *dockerEngine) Logs(ctx context.Context, id string) ([]byte, []byte, error) {
	rc, err := e.cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return nil, nil, err
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

func (e *dockerEngine) Remove(ctx context.Context, id string) error {
	return e.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

func (e *dockerEngine) Close() error {
	return e.cli.Close()
}
