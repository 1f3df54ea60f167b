// Package app runs a world at a fixed tick rate next to the async tasks that drive it through the
// bridge.
package app

import (
	"context"
	"time"

	"github.com/argus-labs/asyncecs/pkg/asyncecs"
	"github.com/argus-labs/asyncecs/pkg/ecs"
	"github.com/argus-labs/asyncecs/pkg/telemetry"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Task is an async routine. It gets its own bridge handle, closed when the task returns.
type Task func(ctx context.Context, aw *asyncecs.AsyncWorld) error

// App owns a world and ticks it on the goroutine that calls Run or Step.
type App struct {
	world  *ecs.World
	bridge *asyncecs.AsyncWorld
	tasks  []Task
	runID  uuid.UUID

	options Options
	tel     telemetry.Telemetry
}

// New builds the world with the configured logger and installs the bridge.
func New(opts Options) (*App, error) {
	cfg, err := loadAppConfig()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load app config")
	}
	options := newDefaultOptions()
	cfg.applyToOptions(&options)
	options.apply(opts)
	if err := options.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid app options")
	}

	tel, err := telemetry.New(options.Telemetry)
	if err != nil {
		return nil, eris.Wrap(err, "failed to initialize telemetry")
	}

	world := ecs.NewWorld(ecs.WithLogger(tel.GetLogger("ecs")))
	if options.Bridge.Logger == nil {
		logger := tel.GetLogger("asyncecs")
		options.Bridge.Logger = &logger
	}
	if err := asyncecs.Install(world, options.Bridge); err != nil {
		return nil, eris.Wrap(err, "failed to install bridge")
	}
	bridge, err := asyncecs.New(world)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create bridge")
	}

	return &App{
		world:   world,
		bridge:  bridge,
		runID:   uuid.New(),
		options: options,
		tel:     tel,
	}, nil
}

// World returns the ECS world. It may only be touched from the goroutine that ticks it.
func (a *App) World() *ecs.World {
	return a.world
}

// Bridge returns the app's own bridge handle. Clone it to hand it to another goroutine.
func (a *App) Bridge() *asyncecs.AsyncWorld {
	return a.bridge
}

// RunID identifies this App in logs.
func (a *App) RunID() uuid.UUID {
	return a.runID
}

// Go registers a task to start with Run. It must be called before Run.
func (a *App) Go(task Task) {
	a.tasks = append(a.tasks, task)
}

// Run starts every task and ticks the world until ctx is done, a task or tick fails, or every task
// has returned. Cancelling ctx is a clean stop and returns nil, even for tasks that were blocked in
// a bridge wait and return the context error.
func (a *App) Run(ctx context.Context) error {
	defer a.shutdown()
	defer func() {
		if r := recover(); r != nil {
			a.tel.ReportPanic(r)
			panic(r)
		}
	}()

	logger := a.tel.GetLogger("app")
	logger.Info().
		Str("run_id", a.runID.String()).
		Float64("tick_rate", a.options.TickRate).
		Int("tasks", len(a.tasks)).
		Msg("starting tick loop")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	for i, task := range a.tasks {
		aw := a.bridge.Clone()
		group.Go(func() error {
			defer aw.Close()
			err := task(groupCtx, aw)
			if err == nil || stoppedByCancel(ctx, err) {
				return nil
			}
			return eris.Wrapf(err, "task %d failed", i)
		})
	}

	var taskErr error
	tasksDone := make(chan struct{})
	go func() {
		taskErr = group.Wait()
		close(tasksDone)
	}()

	// Without tasks only ctx stops the loop.
	stop := groupCtx.Done()
	if len(a.tasks) == 0 {
		stop = ctx.Done()
	}

	tickErr := a.loop(ctx, stop)
	cancel()
	<-tasksDone

	if tickErr != nil {
		a.tel.CaptureException(ctx, tickErr)
		return tickErr
	}
	if taskErr != nil {
		a.tel.CaptureException(ctx, taskErr)
		return taskErr
	}

	// Apply whatever the tasks sent right before returning.
	return a.Step(context.Background())
}

// stoppedByCancel reports whether err is only the task noticing that Run is shutting down.
func stoppedByCancel(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return eris.Is(err, context.Canceled) || eris.Is(err, context.DeadlineExceeded)
}

func (a *App) loop(ctx context.Context, stop <-chan struct{}) error {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / a.options.TickRate))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.Step(ctx); err != nil {
				return err
			}
		case <-stop:
			return nil
		}
	}
}

// Step runs a single traced tick.
func (a *App) Step(ctx context.Context) error {
	tick := a.world.TickCount()
	_, span := a.tel.Tracer.Start(ctx, "app.tick", trace.WithAttributes(
		attribute.Int64("tick", int64(tick)), //nolint:gosec // tick counts never get near the limit
		attribute.String("run_id", a.runID.String()),
	))
	defer span.End()

	if err := a.world.Tick(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tick failed")
		return eris.Wrapf(err, "tick %d failed", tick)
	}
	return nil
}

// shutdown releases the app's bridge handle and flushes telemetry.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.bridge.Close()
	if err := a.tel.Shutdown(ctx); err != nil {
		a.tel.Logger.Error().Err(err).Msg("telemetry shutdown error")
	}
	a.tel.Logger.Info().Uint64("ticks", a.world.TickCount()).Msg("app stopped")
}
