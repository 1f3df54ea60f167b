package asyncecs

import (
	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// bridgeConfig holds the configuration of the bridge.
// Configuration can be set via environment variables with the specified defaults.
type bridgeConfig struct {
	// Initial capacity of the per-tick operation buffer.
	QueueCapacity int `env:"ASYNCECS_QUEUE_CAPACITY" envDefault:"16"`

	// Initial capacity of every operation channel.
	ChannelCapacity int `env:"ASYNCECS_CHANNEL_CAPACITY" envDefault:"4"`
}

// loadBridgeConfig loads the bridge configuration from environment variables.
func loadBridgeConfig() (bridgeConfig, error) {
	cfg := bridgeConfig{}

	if err := env.Parse(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to parse bridge config")
	}

	if err := cfg.validate(); err != nil {
		return cfg, eris.Wrap(err, "failed to validate config")
	}

	return cfg, nil
}

// validate performs validation on the loaded configuration.
func (cfg *bridgeConfig) validate() error {
	if cfg.QueueCapacity < 0 {
		return eris.New("queue capacity cannot be negative")
	}
	if cfg.ChannelCapacity < 0 {
		return eris.New("channel capacity cannot be negative")
	}
	return nil
}

// applyToOptions applies the configuration values to the given Options.
func (cfg *bridgeConfig) applyToOptions(opt *Options) {
	opt.QueueCapacity = cfg.QueueCapacity
	opt.ChannelCapacity = cfg.ChannelCapacity
}

// Options configures Install. Zero values keep the configured defaults.
type Options struct {
	QueueCapacity   int             // Initial capacity of the per-tick operation buffer
	ChannelCapacity int             // Initial capacity of every operation channel
	Logger          *zerolog.Logger // Defaults to the world logger
}

// newDefaultOptions creates Options with invalid values to force them to be configured.
func newDefaultOptions() Options {
	return Options{
		QueueCapacity:   -1,
		ChannelCapacity: -1,
		Logger:          nil,
	}
}

// apply merges the given options into the current options, overriding non-zero values.
func (opt *Options) apply(newOpt Options) {
	if newOpt.QueueCapacity != 0 {
		opt.QueueCapacity = newOpt.QueueCapacity
	}
	if newOpt.ChannelCapacity != 0 {
		opt.ChannelCapacity = newOpt.ChannelCapacity
	}
	if newOpt.Logger != nil {
		opt.Logger = newOpt.Logger
	}
}

// validate checks that all required options are set and valid.
func (opt *Options) validate() error {
	if opt.QueueCapacity < 0 {
		return eris.New("queue capacity cannot be negative")
	}
	if opt.ChannelCapacity < 0 {
		return eris.New("channel capacity cannot be negative")
	}
	return nil
}
