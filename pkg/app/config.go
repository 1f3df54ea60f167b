package app

import (
	"github.com/argus-labs/asyncecs/pkg/asyncecs"
	"github.com/argus-labs/asyncecs/pkg/telemetry"
	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
)

// appConfig holds the environment configuration of an App.
type appConfig struct {
	// Number of ticks per second.
	TickRate float64 `env:"ASYNCECS_TICK_RATE" envDefault:"60"`

	// Name reported by logs and traces.
	ServiceName string `env:"ASYNCECS_SERVICE_NAME" envDefault:"asyncecs"`
}

func loadAppConfig() (appConfig, error) {
	cfg := appConfig{}

	if err := env.Parse(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to parse app config")
	}

	if err := cfg.validate(); err != nil {
		return cfg, eris.Wrap(err, "failed to validate config")
	}

	return cfg, nil
}

func (cfg *appConfig) validate() error {
	if cfg.TickRate <= 0 {
		return eris.New("tick rate must be positive")
	}
	if cfg.ServiceName == "" {
		return eris.New("service name cannot be empty")
	}
	return nil
}

func (cfg *appConfig) applyToOptions(opt *Options) {
	opt.TickRate = cfg.TickRate
	opt.Telemetry.ServiceName = cfg.ServiceName
}

type Options struct {
	TickRate  float64           // Number of ticks per second
	Telemetry telemetry.Options // Logging, tracing and error reporting
	Bridge    asyncecs.Options  // Bridge buffer sizes
}

func newDefaultOptions() Options {
	// Set these to invalid values to force users to pass in the correct options.
	return Options{
		TickRate: 0,
	}
}

// apply merges the given options into the current options, overriding non-zero values. Telemetry
// and bridge options are merged by their own packages.
func (opt *Options) apply(newOpt Options) {
	if newOpt.TickRate != 0 {
		opt.TickRate = newOpt.TickRate
	}
	serviceName := opt.Telemetry.ServiceName
	opt.Telemetry = newOpt.Telemetry
	if opt.Telemetry.ServiceName == "" {
		opt.Telemetry.ServiceName = serviceName
	}
	opt.Bridge = newOpt.Bridge
}

func (opt *Options) validate() error {
	if opt.TickRate <= 0 {
		return eris.New("tick rate must be positive")
	}
	return nil
}
