package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestratord/internal/events"
	"github.com/fyrsmithlabs/orchestratord/internal/logging"
	"github.com/fyrsmithlabs/orchestratord/internal/planner"
	"github.com/fyrsmithlabs/orchestratord/internal/registry"
	"github.com/fyrsmithlabs/orchestratord/internal/runtime"
	"github.com/fyrsmithlabs/orchestratord/internal/workspace"
)

const instrumentationName = "github.com/fyrsmithlabs/orchestratord/internal/pipeline"

// Config holds the collaborators of a Controller.
type Config struct {
	Registry   *registry.Registry
	Workspaces *workspace.Manager
	Driver     runtime.Driver
	Planner    planner.Planner

	// Optional.
	Events events.Publisher
	Logger *logging.Logger
	Tracer trace.Tracer
}

// Controller executes runs. It holds no per-run state and is safe for
// concurrent use.
type Controller struct {
	registry   *registry.Registry
	workspaces *workspace.Manager
	driver     runtime.Driver
	planner    planner.Planner
	events     events.Publisher
	logger     *logging.Logger
	tracer     trace.Tracer
}

// NewController creates a controller from cfg.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Workspaces == nil {
		return nil, errors.New("workspace manager is required")
	}
	if cfg.Driver == nil {
		return nil, errors.New("execution driver is required")
	}
	if cfg.Planner == nil {
		return nil, errors.New("planner is required")
	}
	if cfg.Events == nil {
		cfg.Events = events.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(instrumentationName)
	}

	return &Controller{
		registry:   cfg.Registry,
		workspaces: cfg.Workspaces,
		driver:     cfg.Driver,
		planner:    cfg.Planner,
		events:     cfg.Events,
		logger:     cfg.Logger.Named("pipeline"),
		tracer:     cfg.Tracer,
	}, nil
}

// Registry returns the task registry runs resolve against.
func (c *Controller) Registry() *registry.Registry {
	return c.registry
}

// Run plans instruction and executes the plan against text.
func (c *Controller) Run(ctx context.Context, instruction, text string) Outcome {
	ctx, r := c.begin(ctx, nil)
	defer r.end()

	c.logger.Info(ctx, "planning run", zap.Int("instruction_len", len(instruction)))

	plan, err := c.plan(ctx, instruction)
	if err != nil {
		return c.finish(ctx, r, Outcome{
			State: StatePlanningError,
			Err:   err,
		})
	}

	return c.finish(ctx, r, c.execute(ctx, plan, text))
}

// Execute runs a pre-computed plan against text, skipping the planner.
func (c *Controller) Execute(ctx context.Context, plan Plan, text string) Outcome {
	plan = append(Plan{}, plan...)
	ctx, r := c.begin(ctx, plan)
	defer r.end()

	return c.finish(ctx, r, c.execute(ctx, plan, text))
}

// run carries the bookkeeping of one run between begin and finish.
type run struct {
	id    string
	start time.Time
	span  trace.Span
}

func (r *run) end() {
	ActiveRuns.Dec()
	r.span.End()
}

// begin opens the run and announces it. plan is nil when it is still to
// be computed; run.finished always carries the final plan.
func (c *Controller) begin(ctx context.Context, plan Plan) (context.Context, *run) {
	id := uuid.NewString()
	ctx = logging.WithRunID(ctx, id)
	ctx, span := c.tracer.Start(ctx, "pipeline.Run",
		trace.WithAttributes(attribute.String("run.id", id)),
	)
	ActiveRuns.Inc()
	r := &run{id: id, start: time.Now(), span: span}

	ev := events.Event{Kind: events.RunStarted}
	if plan != nil {
		ev.Plan = plan.Strings()
	}
	c.publish(ctx, ev)
	return ctx, r
}

func (c *Controller) plan(ctx context.Context, instruction string) (Plan, error) {
	ctx, span := c.tracer.Start(ctx, "pipeline.Plan")
	defer span.End()

	tasks, err := c.callPlanner(ctx, instruction)
	if err != nil {
		if !errors.Is(err, ErrPlanning) {
			err = fmt.Errorf("%w: %v", ErrPlanning, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("plan.length", len(tasks)))
	return Plan(tasks), nil
}

// callPlanner turns a planner panic into a planning error.
func (c *Controller) callPlanner(ctx context.Context, instruction string) (tasks []registry.TaskID, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(ctx, "planner panicked", zap.Any("panic", r), zap.Stack("stack"))
			tasks, err = nil, fmt.Errorf("%w: panic: %v", ErrPlanning, r)
		}
	}()
	return c.planner.Plan(ctx, instruction)
}

// execute runs the stage loop. The workspace never outlives this call.
func (c *Controller) execute(ctx context.Context, plan Plan, text string) Outcome {
	outcome := Outcome{Plan: plan, Outputs: NewOutputs()}

	ws, err := c.workspaces.Create()
	if err != nil {
		outcome.State = StateResourceError
		outcome.Err = err
		return outcome
	}
	defer func() {
		if err := ws.Release(); err != nil {
			c.logger.Warn(ctx, "failed to release workspace",
				zap.String("dir", ws.Dir()),
				zap.Error(err),
			)
		}
	}()

	c.logger.Debug(ctx, "workspace created", zap.String("dir", ws.Dir()))

	current := text
	for i, task := range plan {
		unit, err := c.registry.Resolve(task)
		if err != nil {
			return c.fail(outcome, &StageError{Task: task, Stage: i, Kind: ErrUnknownTask, Err: err})
		}

		worker := &runtime.StageWorker{Unit: unit, Stager: ws, Driver: c.driver}
		out, err := c.runStage(ctx, i, task, worker, current)
		if err != nil {
			kind := ErrResource
			var failure *runtime.Failure
			if errors.As(err, &failure) {
				kind = ErrExecution
			}
			return c.fail(outcome, &StageError{Task: task, Stage: i, Kind: kind, Err: err})
		}

		outcome.Outputs.Set(task, out)
		current = out
	}

	outcome.State = StateCompleted
	outcome.FinalResult = current
	return outcome
}

func (c *Controller) runStage(ctx context.Context, stage int, task registry.TaskID, worker runtime.Worker, input string) (string, error) {
	ctx = logging.WithTask(ctx, string(task))
	ctx, span := c.tracer.Start(ctx, "pipeline.Stage",
		trace.WithAttributes(
			attribute.String("task", string(task)),
			attribute.Int("stage", stage),
		),
	)
	defer span.End()

	c.publish(ctx, events.Event{Kind: events.StageStarted, Task: string(task), Stage: stage})
	c.logger.Debug(ctx, "stage started", zap.Int("stage", stage), zap.Int("input_len", len(input)))

	start := time.Now()
	out, err := c.runWorker(ctx, stage, worker, input)
	elapsed := time.Since(start)

	if err != nil {
		StageDuration.WithLabelValues(string(task), "failure").Observe(elapsed.Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.publish(ctx, events.Event{
			Kind:       events.StageFailed,
			Task:       string(task),
			Stage:      stage,
			Error:      err.Error(),
			DurationMS: elapsed.Milliseconds(),
		})
		return "", err
	}

	StageDuration.WithLabelValues(string(task), "success").Observe(elapsed.Seconds())
	c.publish(ctx, events.Event{
		Kind:       events.StageCompleted,
		Task:       string(task),
		Stage:      stage,
		DurationMS: elapsed.Milliseconds(),
	})
	c.logger.Debug(ctx, "stage completed",
		zap.Int("stage", stage),
		zap.Int("output_len", len(out)),
		zap.Duration("duration", elapsed),
	)
	return out, nil
}

// runWorker turns a panicking stage into an execution failure of that stage.
func (c *Controller) runWorker(ctx context.Context, stage int, worker runtime.Worker, input string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(ctx, "stage panicked",
				zap.Int("stage", stage),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			out, err = "", &runtime.Failure{Kind: runtime.ExecutionError, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return worker.Run(ctx, input)
}

func (c *Controller) fail(outcome Outcome, err *StageError) Outcome {
	outcome.State = stateFor(err.Kind)
	outcome.Err = err
	return outcome
}

// finish stamps the run id and duration and reports the outcome.
func (c *Controller) finish(ctx context.Context, r *run, outcome Outcome) Outcome {
	outcome.RunID = r.id
	outcome.Duration = time.Since(r.start)
	if outcome.Outputs == nil {
		outcome.Outputs = NewOutputs()
	}

	RunsTotal.WithLabelValues(string(outcome.State)).Inc()
	r.span.SetAttributes(
		attribute.String("run.state", string(outcome.State)),
		attribute.Int("plan.length", len(outcome.Plan)),
	)

	ev := events.Event{
		Kind:       events.RunFinished,
		Plan:       outcome.Plan.Strings(),
		State:      string(outcome.State),
		DurationMS: outcome.Duration.Milliseconds(),
	}

	fields := []zap.Field{
		zap.String("state", string(outcome.State)),
		zap.Strings("plan", outcome.Plan.Strings()),
		zap.Int("completed_stages", outcome.Outputs.Len()),
		zap.Duration("duration", outcome.Duration),
	}

	if outcome.Err != nil {
		r.span.RecordError(outcome.Err)
		r.span.SetStatus(codes.Error, outcome.Err.Error())
		ev.Error = outcome.Err.Error()
		c.logger.Warn(ctx, "run failed", append(fields, zap.Error(outcome.Err))...)
	} else {
		c.logger.Info(ctx, "run completed", fields...)
	}

	c.publish(ctx, ev)
	return outcome
}

// publish sends ev for the run in ctx. Failures are logged only.
func (c *Controller) publish(ctx context.Context, ev events.Event) {
	ev.RunID = logging.RunIDFromContext(ctx)
	ev.Timestamp = time.Now().UTC()
	if err := c.events.Publish(ctx, ev); err != nil {
		c.logger.Warn(ctx, "failed to publish event",
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
	}
}
