package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gotest.tools/v3/assert/cmp"

	gtassert "gotest.tools/v3/assert"
)

func TestOptions_ApplyAndValidate(t *testing.T) {
	t.Parallel()

	opts := newDefaultOptions()
	cfg := config{LogLevel: "info", LogFormat: "json", TraceEndpoint: "collector:4317", TraceSampleRate: 1.0}
	cfg.applyToOptions(&opts)

	// The defaults are invalid on purpose.
	assert.Error(t, opts.validate())

	opts.apply(Options{ServiceName: "svc", LogLevel: "debug", TraceSampleRate: 0.25})
	gtassert.NilError(t, opts.validate())
	gtassert.Check(t, cmp.Equal("debug", opts.LogLevel))
	gtassert.Check(t, cmp.Equal(0.25, opts.TraceSampleRate))
	gtassert.Check(t, cmp.Equal(LogFormatJSON, opts.LogFormat))

	opts.TraceEnabled = true
	opts.TraceEndpoint = ""
	assert.Error(t, opts.validate())
}

func TestNewSampler(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "AlwaysOnSampler", newSampler(1.0).Description())
	assert.Equal(t, "AlwaysOffSampler", newSampler(0.0).Description())
	assert.Contains(t, newSampler(0.5).Description(), "TraceIDRatioBased{0.5}")
}
