package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ManuelReschke/subscription-engine/internal/pkg/env"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/logger"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "billingctl",
		Short:         "Operations tooling for the subscription engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			env.SetupEnvFile()
		},
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedPlansCmd())
	rootCmd.AddCommand(tokenCmd())

	return rootCmd
}

func cliLogger() zerolog.Logger {
	return logger.New(env.GetEnv("LOG_LEVEL", "info"), true)
}
