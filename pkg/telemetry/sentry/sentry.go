// Package sentry reports panics and errors that escape the tick loop.
package sentry

import (
	"context"
	"time"

	sentrygo "github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/trace"
)

const flushTimeout = 5 * time.Second

type Options struct {
	Dsn         string
	Environment string
	Tags        map[string]string
}

// New sets up Sentry. An empty DSN leaves reporting disabled and every other function a no-op.
func New(opt Options) error {
	if opt.Dsn == "" {
		return nil
	}

	return eris.Wrap(sentrygo.Init(sentrygo.ClientOptions{
		Dsn:         opt.Dsn,
		Environment: opt.Environment,
		Tags:        opt.Tags,
	}), "sentry: init failed")
}

// Enabled reports whether New installed a client.
func Enabled() bool {
	return sentrygo.CurrentHub().Client() != nil
}

// ReportPanic sends a recovered panic value and waits for it to be delivered.
func ReportPanic(r any) {
	if !Enabled() || r == nil {
		return
	}
	sentrygo.CurrentHub().Recover(r)
	sentrygo.Flush(flushTimeout)
}

// CaptureException reports a handled error, tagged with the span in ctx if there is one.
func CaptureException(ctx context.Context, err error) {
	if !Enabled() || err == nil {
		return
	}
	hub := sentrygo.CurrentHub().Clone()
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		hub.Scope().SetTags(map[string]string{
			"trace_id": sc.TraceID().String(),
			"span_id":  sc.SpanID().String(),
		})
	}
	hub.CaptureException(err)
}

// Flush waits for buffered events until ctx is done or flushTimeout passes.
func Flush(ctx context.Context) {
	if !Enabled() {
		return
	}
	timeout := flushTimeout
	if dl, ok := ctx.Deadline(); ok {
		if until := time.Until(dl); until > 0 && until < timeout {
			timeout = until
		}
	}
	sentrygo.Flush(timeout)
}
