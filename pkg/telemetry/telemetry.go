// Package telemetry builds the logger, tracer and error reporter shared by a running app.
package telemetry

import (
	"context"

	"github.com/argus-labs/asyncecs/pkg/telemetry/sentry"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type Telemetry struct {
	Logger      zerolog.Logger
	Tracer      trace.Tracer
	serviceName string

	shutdown func(context.Context) error
}

// New loads the environment config, lets opts override it, and sets up logging, tracing and
// Sentry.
func New(opts Options) (Telemetry, error) {
	cfg, err := loadConfig()
	if err != nil {
		return Telemetry{}, err
	}

	options := newDefaultOptions()
	cfg.applyToOptions(&options)
	options.apply(opts)
	if err := options.validate(); err != nil {
		return Telemetry{}, eris.Wrap(err, "invalid telemetry options")
	}

	if err := sentry.New(options.Sentry); err != nil {
		return Telemetry{}, err
	}

	tracer, shutdown, err := setupTracing(context.Background(), options)
	if err != nil {
		return Telemetry{}, eris.Wrap(err, "failed to setup tracing")
	}

	return Telemetry{
		Logger:      newLogger(options),
		Tracer:      tracer,
		serviceName: options.ServiceName,
		shutdown:    shutdown,
	}, nil
}

// Shutdown flushes pending spans and error reports.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	sentry.Flush(ctx)
	if t.shutdown != nil {
		return t.shutdown(ctx)
	}
	return nil
}

// GetLogger returns a component-specific logger.
func (t *Telemetry) GetLogger(component string) zerolog.Logger {
	return t.Logger.With().Str("component", component).Logger()
}

// GetLoggerWithTrace returns a component-specific logger enriched with the span in ctx.
func (t *Telemetry) GetLoggerWithTrace(ctx context.Context, component string) zerolog.Logger {
	logger := t.Logger.With().Str("component", component)

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		spanCtx := span.SpanContext()
		logger = logger.
			Str("trace_id", spanCtx.TraceID().String()).
			Str("span_id", spanCtx.SpanID().String())
	}
	return logger.Logger()
}

// CaptureException logs err and reports it to Sentry when enabled.
func (t *Telemetry) CaptureException(ctx context.Context, err error) {
	if err == nil {
		return
	}
	t.Logger.Error().Err(err).Msg("unhandled error")
	sentry.CaptureException(ctx, err)
}

// ReportPanic logs a recovered panic value and reports it to Sentry when enabled. The caller
// decides whether to re-panic.
func (t *Telemetry) ReportPanic(r any) {
	if r == nil {
		return
	}
	t.Logger.Error().Interface("panic", r).Msg("recovered panic")
	sentry.ReportPanic(r)
}
