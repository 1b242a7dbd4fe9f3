package main

import (
	"github.com/spf13/cobra"

	appconfig "github.com/wolfman30/wa-autoresponder/internal/config"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

// env is what every subcommand needs from the process.
type env struct {
	loadConfig func() *appconfig.Config
	logger     func(cfg *appconfig.Config) *logging.Logger
}

func defaultEnv() *env {
	return &env{
		loadConfig: appconfig.Load,
		logger: func(cfg *appconfig.Config) *logging.Logger {
			// Keep the terminal readable; errors still surface.
			return logging.NewWithFormat("error", "text")
		},
	}
}

func newRootCmd() *cobra.Command {
	return newRootCmdWithEnv(defaultEnv())
}

func newRootCmdWithEnv(e *env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "botctl",
		Short:         "Operate the WhatsApp booking assistant from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		newExtractCmd(),
		newProbeCmd(e),
		newSimulateCmd(e),
	)
	return rootCmd
}
