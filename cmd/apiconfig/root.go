package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:   "apiconfig",
		Short: "Load gateway configuration from the configuration API",
		Long: `apiconfig runs one fetch-transform cycle against the configuration API:
providers, models and pipelines are fetched, provider secrets are resolved and
the resulting gateway configuration is printed. Entities that cannot be
transformed are skipped and reported as diagnostics.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile == "" {
				return nil
			}
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load env file %s: %w", envFile, err)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment variables from this file before reading configuration")

	root.AddCommand(newFetchCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
