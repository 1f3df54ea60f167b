package app

import (
	"testing"

	"github.com/argus-labs/asyncecs/pkg/telemetry"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestOptions_Apply(t *testing.T) {
	t.Parallel()

	opts := newDefaultOptions()
	assert.ErrorContains(t, opts.validate(), "tick rate")

	cfg := appConfig{TickRate: 60, ServiceName: "from-env"}
	cfg.applyToOptions(&opts)

	// The env service name survives options that don't set one.
	opts.apply(Options{Telemetry: telemetry.Options{LogLevel: "debug"}})
	assert.NilError(t, opts.validate())
	assert.Check(t, is.Equal(60.0, opts.TickRate))
	assert.Check(t, is.Equal("from-env", opts.Telemetry.ServiceName))
	assert.Check(t, is.Equal("debug", opts.Telemetry.LogLevel))

	opts.apply(Options{TickRate: 20, Telemetry: telemetry.Options{ServiceName: "custom"}})
	assert.Check(t, is.Equal(20.0, opts.TickRate))
	assert.Check(t, is.Equal("custom", opts.Telemetry.ServiceName))
}
