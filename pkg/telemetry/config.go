package telemetry

import (
	"io"
	"strings"

	"github.com/argus-labs/asyncecs/pkg/telemetry/sentry"
	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// config is the environment side of Options.
type config struct {
	// Log level ("debug", "info", "warn", "error", "disabled").
	LogLevel string `env:"ASYNCECS_LOG_LEVEL" envDefault:"info"`

	// Log format ("json", "pretty").
	LogFormat string `env:"ASYNCECS_LOG_FORMAT" envDefault:"json"`

	// TraceEnabled turns on the OTLP trace exporter. A no-op tracer is used otherwise.
	TraceEnabled bool `env:"ASYNCECS_TRACE_ENABLED" envDefault:"false"`

	// TraceEndpoint is the OTLP gRPC collector address.
	TraceEndpoint string `env:"ASYNCECS_TRACE_ENDPOINT" envDefault:"localhost:4317"`

	// TraceSampleRate is the fraction of ticks that are traced (0.0 to 1.0).
	TraceSampleRate float64 `env:"ASYNCECS_TRACE_SAMPLE_RATE" envDefault:"1.0"`

	// SentryDsn enables panic and error reporting when set.
	SentryDsn string `env:"ASYNCECS_SENTRY_DSN"`

	// SentryEnv is the Sentry environment, e.g. "dev" or "prod".
	SentryEnv string `env:"ASYNCECS_SENTRY_ENV"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return cfg, eris.Wrap(err, "telemetry: cannot read environment")
	}

	var fromEnv Options
	cfg.applyToOptions(&fromEnv)
	if err := fromEnv.checkSettings(); err != nil {
		return cfg, eris.Wrap(err, "telemetry: invalid environment")
	}
	return cfg, nil
}

func (cfg *config) applyToOptions(opt *Options) {
	opt.LogLevel = cfg.LogLevel
	opt.LogFormat = ParseLogFormat(cfg.LogFormat)
	opt.TraceEnabled = cfg.TraceEnabled
	opt.TraceEndpoint = cfg.TraceEndpoint
	opt.TraceSampleRate = cfg.TraceSampleRate
	opt.Sentry.Dsn = cfg.SentryDsn
	opt.Sentry.Environment = cfg.SentryEnv
}

type Options struct {
	ServiceName     string    // Name reported on every log line and span
	LogLevel        string    // zerolog level name
	LogFormat       LogFormat // json or pretty
	Writer          io.Writer // Log destination, defaults to stdout
	TraceEnabled    bool
	TraceEndpoint   string
	TraceSampleRate float64

	Sentry sentry.Options
}

// newDefaultOptions leaves the required fields unset and the sample rate out of range, so New fails
// unless the environment or the caller fills them in.
func newDefaultOptions() Options {
	return Options{TraceSampleRate: -1}
}

// apply copies every field that is set in user.
func (opt *Options) apply(user Options) {
	setString(&opt.ServiceName, user.ServiceName)
	setString(&opt.LogLevel, user.LogLevel)
	setString(&opt.TraceEndpoint, user.TraceEndpoint)
	setString(&opt.Sentry.Dsn, user.Sentry.Dsn)
	setString(&opt.Sentry.Environment, user.Sentry.Environment)

	if user.LogFormat != LogFormatUndefined {
		opt.LogFormat = user.LogFormat
	}
	if user.Writer != nil {
		opt.Writer = user.Writer
	}
	if user.TraceSampleRate != 0 {
		opt.TraceSampleRate = user.TraceSampleRate
	}
	if user.Sentry.Tags != nil {
		opt.Sentry.Tags = user.Sentry.Tags
	}
	opt.TraceEnabled = opt.TraceEnabled || user.TraceEnabled
}

func setString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func (opt *Options) validate() error {
	if opt.ServiceName == "" {
		return eris.New("telemetry: service name is required")
	}
	return opt.checkSettings()
}

// checkSettings validates everything that can also come from the environment.
func (opt *Options) checkSettings() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(opt.LogLevel)); err != nil {
		return eris.Errorf("telemetry: unknown log level %q", opt.LogLevel)
	}
	if opt.LogFormat == LogFormatUndefined {
		return eris.New("telemetry: log format must be json or pretty")
	}
	if opt.TraceEnabled && opt.TraceEndpoint == "" {
		return eris.New("telemetry: tracing needs an endpoint")
	}
	if opt.TraceSampleRate < 0 || opt.TraceSampleRate > 1 {
		return eris.Errorf("telemetry: sample rate %v is outside [0, 1]", opt.TraceSampleRate)
	}
	return nil
}

// LogFormat selects how log lines are rendered.
type LogFormat uint8

const (
	LogFormatUndefined LogFormat = iota
	LogFormatJSON
	LogFormatPretty
)

var logFormatNames = map[LogFormat]string{
	LogFormatJSON:   "json",
	LogFormatPretty: "pretty",
}

func (f LogFormat) String() string {
	if name, ok := logFormatNames[f]; ok {
		return name
	}
	return "undefined"
}

// ParseLogFormat is case insensitive. Unknown names give LogFormatUndefined.
func ParseLogFormat(s string) LogFormat {
	s = strings.ToLower(s)
	for f, name := range logFormatNames {
		if name == s {
			return f
		}
	}
	return LogFormatUndefined
}
