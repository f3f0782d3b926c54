package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/keshon/chatkernel/internal/config"
	"github.com/keshon/chatkernel/internal/console"
	"github.com/keshon/chatkernel/internal/kernel"
	"github.com/keshon/chatkernel/internal/logging"
	"github.com/spf13/cobra"
)

func newConsoleCmd(cfg *config.Config) *cobra.Command {
	var user string
	var guest bool

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Type commands into the runtime from stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Console: cmd.ErrOrStderr()})
			k, err := kernel.New(cfg, log)
			if err != nil {
				return err
			}
			if err := k.Start(ctx); err != nil {
				return err
			}

			c := console.New(cmd.InOrStdin(), cmd.OutOrStdout(), k,
				console.WithPrefix(cfg.CommandPrefix),
				console.WithUser(user, !guest),
			)
			runErr := c.Run(ctx)
			return errors.Join(runErr, k.Stop(context.Background()))
		},
	}
	cmd.Flags().StringVar(&user, "user", "operator", "invoker id for typed commands")
	cmd.Flags().BoolVar(&guest, "guest", false, "run commands without admin rights")
	return cmd
}
