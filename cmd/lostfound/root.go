package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag, dbFlag, logFlag string

	ctx := newCommandContext(&configFlag, &dbFlag, &logFlag)

	rootCmd := &cobra.Command{
		Use:           "lostfound",
		Short:         "Campus lost-and-found matching service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["skipConfig"] == "true" {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "lostfound.toml", "configuration file path")
	rootCmd.PersistentFlags().StringVarP(&dbFlag, "db", "d", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&logFlag, "log", "l", "", "log file path (overrides config)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newInitCommand(ctx))
	rootCmd.AddCommand(newMatchCommand(ctx))
	rootCmd.AddCommand(newScoresCommand(ctx))
	rootCmd.AddCommand(newReindexCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
