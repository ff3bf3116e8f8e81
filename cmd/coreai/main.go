package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/coreai-dashboard/pkg/config"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var a *app
	if err := execute(ctx, &a, os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// execute runs the command line and closes the app whether or not the
// command succeeded; cobra skips post-run hooks on error.
func execute(ctx context.Context, a **app, args []string) error {
	root := rootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if *a != nil {
		(*a).Close()
	}
	return err
}

func rootCmd(a **app) *cobra.Command {
	root := &cobra.Command{
		Use:           "coreai",
		Short:         "CoreAI portfolio dashboard: allocation reconciler, assistant and whale tracker",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
				zerolog.SetGlobalLevel(lvl)
			}
			*a, err = newApp(cmd.Context(), cfg)
			return err
		},
	}

	appFn := func() *app { return *a }
	root.AddCommand(
		serveCmd(appFn),
		reconcileCmd(appFn),
		whalesCmd(appFn),
		adjustCmd(appFn),
		chatCmd(appFn),
	)
	return root
}
