package main

import (
	"github.com/keshon/chatkernel/internal/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var envFile string
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:          "chatkernel",
		Short:        "Run the bot runtime locally and inspect its plugins",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			loaded, err := config.Load(files...)
			if err != nil {
				return err
			}
			*cfg = *loaded
			return cfg.Validate()
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "path to a .env file (default .env)")

	root.AddCommand(
		newConsoleCmd(cfg),
		newPluginsCmd(cfg),
	)
	return root
}
