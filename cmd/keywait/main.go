// Command keywait reads key names from stdin, one per line, and prints them as an async task sees
// them pressed inside the world.
package main

import (
	"context"
	"io"
	"os/signal"
	"syscall"

	"github.com/argus-labs/asyncecs/pkg/app"
	"github.com/argus-labs/asyncecs/pkg/asyncecs"
	"github.com/argus-labs/asyncecs/pkg/ecs"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type runConfig struct {
	BindingsPath string
	DumpPath     string
	Limit        int
	Options      app.Options
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("keywait failed")
	}
}

func newRootCmd() *cobra.Command {
	var cfg runConfig
	cmd := &cobra.Command{
		Use:          "keywait",
		Short:        "Wait for key presses through the async bridge",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&cfg.BindingsPath, "bindings", "", "YAML file mapping input lines to key names")
	cmd.Flags().StringVar(&cfg.DumpPath, "dump", "", "write a JSON world snapshot here on exit (.zst compresses it)")
	cmd.Flags().IntVar(&cfg.Limit, "limit", 0, "stop after this many key presses (0 waits for EOF)")
	cmd.Flags().Float64Var(&cfg.Options.TickRate, "tick-rate", 0, "ticks per second (defaults to ASYNCECS_TICK_RATE)")
	return cmd
}

func run(ctx context.Context, cfg runConfig, in io.Reader, out io.Writer) error {
	bindings, err := LoadBindings(cfg.BindingsPath)
	if err != nil {
		return err
	}

	a, err := app.New(cfg.Options)
	if err != nil {
		return err
	}
	ecs.InsertResource(a.World(), KeyboardInput{})
	a.World().AddSystem(pressKeys, ecs.WithHook(ecs.PreUpdate), ecs.WithName("keywait.press_keys"))

	// The listener decides when the program is done, the reader may still be blocked on stdin.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.Go(func(ctx context.Context, aw *asyncecs.AsyncWorld) error {
		return feedKeys(ctx, aw, in, bindings)
	})
	a.Go(func(ctx context.Context, aw *asyncecs.AsyncWorld) error {
		defer cancel()
		return awaitKeys(ctx, aw, out, cfg.Limit)
	})

	if err := a.Run(ctx); err != nil {
		return err
	}

	if cfg.DumpPath != "" {
		return writeDump(a.World(), cfg.DumpPath)
	}
	return nil
}
